package fees

import (
	"errors"
	"math"

	"github.com/ryanavella/wide"
	"go.firedancer.io/litesvm/pkg/accounts"
	"go.firedancer.io/litesvm/pkg/safemath"
	"k8s.io/klog/v2"
)

// There are two aspects of the tx fee cost model:
// 1) fee per signature (5k lamports/sig by default)
// 2) prioritization fees set via a SetComputeUnitPrice instruction

const (
	DefaultLamportsPerSignature = 5000
	microLamportsPerLamport     = 1000000
)

var ErrInsufficientFundsForFee = errors.New("insufficient funds for fee")

// SignatureFee returns the base fee for a transaction carrying numSignatures
// required signatures.
func SignatureFee(numSignatures uint64, lamportsPerSignature uint64) uint64 {
	return safemath.SaturatingMulU64(numSignatures, lamportsPerSignature)
}

// PriorityFee converts a compute unit price in micro-lamports into lamports
// for the whole compute unit limit, rounding up.
func PriorityFee(computeUnitPrice uint64, computeUnitLimit uint32) uint64 {
	if computeUnitPrice == 0 {
		return 0
	}

	microLamportFee := wide.Uint128FromUint64(computeUnitPrice).Mul(wide.Uint128FromUint64(uint64(computeUnitLimit)))
	fee := microLamportFee.Add(wide.Uint128FromUint64(microLamportsPerLamport - 1)).Div(wide.Uint128FromUint64(microLamportsPerLamport))

	if fee.IsUint64() {
		return fee.Uint64()
	}
	return math.MaxUint64
}

// TotalFee is the signature fee plus the priority fee, saturating.
func TotalFee(numSignatures uint64, lamportsPerSignature uint64, computeUnitPrice uint64, computeUnitLimit uint32) uint64 {
	return safemath.SaturatingAddU64(SignatureFee(numSignatures, lamportsPerSignature), PriorityFee(computeUnitPrice, computeUnitLimit))
}

// ApplyTxFee debits fee from the fee payer. The account is left untouched
// when the balance does not cover the fee.
func ApplyTxFee(feePayer *accounts.Account, fee uint64) error {
	balance, err := safemath.CheckedSubU64(feePayer.Lamports, fee)
	if err != nil {
		klog.Errorf("fee payer balance %d does not cover fee %d", feePayer.Lamports, fee)
		return ErrInsufficientFundsForFee
	}

	klog.V(2).Infof("tx fee: %d", fee)
	feePayer.Lamports = balance
	return nil
}

// SplitFees divides collected fees into the burned share and the share paid
// to the fee collector.
func SplitFees(totalFees uint64, burnPercent byte) (burned uint64, collected uint64) {
	if burnPercent > 100 {
		burnPercent = 100
	}
	burned = safemath.SaturatingMulU64(totalFees/100, uint64(burnPercent)) + (totalFees%100)*uint64(burnPercent)/100
	collected = totalFees - burned
	return
}
