package runtime

import (
	"errors"
	"fmt"

	"go.firedancer.io/litesvm/pkg/sealevel"
)

var (
	TxErrSanitizeFailure         = errors.New("TxErrSanitizeFailure")
	TxErrBlockhashNotFound       = errors.New("TxErrBlockhashNotFound")
	TxErrAlreadyProcessed        = errors.New("TxErrAlreadyProcessed")
	TxErrSignatureFailure        = errors.New("TxErrSignatureFailure")
	TxErrInsufficientFundsForFee = errors.New("TxErrInsufficientFundsForFee")
)

// InstructionError is the failure of the instruction at Index. Err is the
// instruction-level cause, usually one of the sealevel InstrErr values.
type InstructionError struct {
	Index int
	Err   error
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("instruction %d: %s", e.Index, e.Err)
}

func (e *InstructionError) Unwrap() error {
	return e.Err
}

// TxErrInsufficientFundsForRent is returned when the account at AccountIndex
// would be left below the rent-exempt minimum.
type TxErrInsufficientFundsForRent struct {
	AccountIndex int
}

func (e *TxErrInsufficientFundsForRent) Error() string {
	return fmt.Sprintf("TxErrInsufficientFundsForRent: account %d", e.AccountIndex)
}

var errorKinds = []struct {
	err  error
	kind string
}{
	{TxErrSanitizeFailure, "SanitizeFailure"},
	{TxErrBlockhashNotFound, "BlockhashNotFound"},
	{TxErrAlreadyProcessed, "AlreadyProcessed"},
	{TxErrSignatureFailure, "SignatureVerificationFailed"},
	{TxErrInsufficientFundsForFee, "InsufficientFundsForFee"},
	{sealevel.InstrErrInsufficientFunds, "InsufficientFunds"},
	{sealevel.InstrErrAccountAlreadyInUse, "AccountAlreadyExists"},
}

// ErrorKind names the kind of a transaction failure. It returns an empty
// string for nil.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}

	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}

	var rentErr *TxErrInsufficientFundsForRent
	if errors.As(err, &rentErr) {
		return "InsufficientFundsForRent"
	}

	var ixErr *InstructionError
	if errors.As(err, &ixErr) {
		return "InstructionError"
	}
	return "Unknown"
}
