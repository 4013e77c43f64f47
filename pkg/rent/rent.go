package rent

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	bin "github.com/gagliardetto/binary"
	"go.firedancer.io/litesvm/pkg/accounts"
	"go.firedancer.io/litesvm/pkg/safemath"
)

const (
	// AccountStorageOverhead is the per-account metadata size charged on top
	// of the data length.
	AccountStorageOverhead = 128

	DefaultLamportsPerByteYear = 1_000_000_000 / 100 * 365 / (1024 * 1024)
	DefaultExemptionThreshold  = 2.0
	DefaultBurnPercent         = 50

	RentStructLen = 17
)

// Rent holds the parameters of the rent-exemption model.
type Rent struct {
	LamportsPerByteYear uint64
	ExemptionThreshold  float64
	BurnPercent         byte
}

func DefaultRent() Rent {
	return Rent{
		LamportsPerByteYear: DefaultLamportsPerByteYear,
		ExemptionThreshold:  DefaultExemptionThreshold,
		BurnPercent:         DefaultBurnPercent,
	}
}

// MinimumBalance returns the lamports an account holding dataLen bytes must
// carry to be rent exempt.
// MinimumBalance saturates at math.MaxUint64 for sizes no balance can cover.
func (r Rent) MinimumBalance(dataLen uint64) uint64 {
	size := safemath.SaturatingAddU64(AccountStorageOverhead, dataLen)
	balance := float64(safemath.SaturatingMulU64(size, r.LamportsPerByteYear)) * r.ExemptionThreshold
	if balance >= math.MaxUint64 {
		return math.MaxUint64
	}
	return uint64(balance)
}

func (r Rent) IsExempt(lamports uint64, dataLen uint64) bool {
	return lamports >= r.MinimumBalance(dataLen)
}

func (r *Rent) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	r.LamportsPerByteYear, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return fmt.Errorf("failed to read LamportsPerByteYear when decoding Rent: %w", err)
	}

	r.ExemptionThreshold, err = decoder.ReadFloat64(bin.LE)
	if err != nil {
		return fmt.Errorf("failed to read ExemptionThreshold when decoding Rent: %w", err)
	}

	r.BurnPercent, err = decoder.ReadByte()
	if err != nil {
		return fmt.Errorf("failed to read BurnPercent when decoding Rent: %w", err)
	}
	return
}

func (r *Rent) MarshalWithEncoder(encoder *bin.Encoder) error {
	_ = encoder.WriteUint64(r.LamportsPerByteYear, bin.LE)
	_ = encoder.WriteFloat64(r.ExemptionThreshold, bin.LE)
	return encoder.WriteByte(r.BurnPercent)
}

func (r *Rent) Marshal() []byte {
	buf := new(bytes.Buffer)
	if err := r.MarshalWithEncoder(bin.NewBinEncoder(buf)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

const (
	RentStateUninitialized = iota
	RentStateRentPaying
	RentStateRentExempt
)

type RentPayingInfo struct {
	Lamports uint64
	DataSize uint64
}

type RentStateInfo struct {
	RentState      uint64
	RentPayingInfo RentPayingInfo
}

var ErrRentStateTransition = errors.New("rent state transition not allowed")

func NewRentStateInfo(r Rent, acct *accounts.Account) *RentStateInfo {
	if acct.Lamports == 0 {
		return &RentStateInfo{RentState: RentStateUninitialized}
	} else if r.IsExempt(acct.Lamports, uint64(len(acct.Data))) {
		return &RentStateInfo{RentState: RentStateRentExempt}
	} else {
		return &RentStateInfo{RentState: RentStateRentPaying, RentPayingInfo: RentPayingInfo{Lamports: acct.Lamports, DataSize: uint64(len(acct.Data))}}
	}
}

// CheckRentStateTransition reports whether an account may move from pre to
// post. Accounts may always end uninitialized or exempt. A rent-paying result
// is only allowed for an account that was already rent paying, kept its size
// and did not gain lamports.
func CheckRentStateTransition(pre, post *RentStateInfo) error {
	switch post.RentState {
	case RentStateUninitialized, RentStateRentExempt:
		return nil
	}

	if pre.RentState != RentStateRentPaying {
		return ErrRentStateTransition
	}
	if post.RentPayingInfo.DataSize == pre.RentPayingInfo.DataSize &&
		post.RentPayingInfo.Lamports <= pre.RentPayingInfo.Lamports {
		return nil
	}
	return ErrRentStateTransition
}

// RentStateError identifies the account whose rent state transition failed.
type RentStateError struct {
	AccountIndex int
}

func (e *RentStateError) Error() string {
	return fmt.Sprintf("account %d: %s", e.AccountIndex, ErrRentStateTransition)
}

func (e *RentStateError) Unwrap() error {
	return ErrRentStateTransition
}

// VerifyRentStateChanges checks every pair of pre and post states. A nil entry
// marks an account that is not checked, such as a readonly one.
func VerifyRentStateChanges(preStates []*RentStateInfo, postStates []*RentStateInfo) error {
	if len(preStates) != len(postStates) {
		panic("programming error - pre tx states and post tx states must be same length")
	}

	for idx := range preStates {
		if preStates[idx] == nil || postStates[idx] == nil {
			continue
		}
		if err := CheckRentStateTransition(preStates[idx], postStates[idx]); err != nil {
			return &RentStateError{AccountIndex: idx}
		}
	}
	return nil
}
