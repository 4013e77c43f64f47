package sealevel

import "errors"

// instruction errors
var (
	InstrErrInvalidInstructionData      = errors.New("InstrErrInvalidInstructionData")
	InstrErrNotEnoughAccountKeys        = errors.New("InstrErrNotEnoughAccountKeys")
	InstrErrComputationalBudgetExceeded = errors.New("InstrErrComputationalBudgetExceeded")
	InstrErrMissingAccount              = errors.New("InstrErrMissingAccount")
	InstrErrMissingRequiredSignature    = errors.New("InstrErrMissingRequiredSignature")
	InstrErrInvalidArgument             = errors.New("InstrErrInvalidArgument")
	InstrErrExecutableDataModified      = errors.New("InstrErrExecutableDataModified")
	InstrErrReadonlyDataModified        = errors.New("InstrErrReadonlyDataModified")
	InstrErrExternalAccountDataModified = errors.New("InstrErrExternalAccountDataModified")
	InstrErrPrivilegeEscalation         = errors.New("InstrErrPrivilegeEscalation")
	InstrErrInvalidRealloc              = errors.New("InstrErrInvalidRealloc")
	InstrErrModifiedProgramId           = errors.New("InstrErrModifiedProgramId")
	InstrErrCallDepth                   = errors.New("InstrErrCallDepth")
	InstrErrUnsupportedProgramId        = errors.New("InstrErrUnsupportedProgramId")
	InstrErrReentrancyNotAllowed        = errors.New("InstrErrReentrancyNotAllowed")
	InstrErrArithmeticOverflow          = errors.New("InstrErrArithmeticOverflow")
	InstrErrUnbalancedInstruction       = errors.New("InstrErrUnbalancedInstruction")
	InstrErrAccountBorrowOutstanding    = errors.New("InstrErrAccountBorrowOutstanding")
	InstrErrExternalAccountLamportSpend = errors.New("InstrErrExternalAccountLamportSpend")
	InstrErrReadonlyLamportChange       = errors.New("InstrErrReadonlyLamportChange")
	InstrErrExecutableLamportChange     = errors.New("InstrErrExecutableLamportChange")
	InstrErrInsufficientFunds           = errors.New("InstrErrInsufficientFunds")
	InstrErrAccountAlreadyInUse         = errors.New("InstrErrAccountAlreadyInUse")
	InstrErrUnsupportedSysvar           = errors.New("InstrErrUnsupportedSysvar")
	InstrErrMaxInstructionTraceLength   = errors.New("InstrErrMaxInstructionTraceLengthExceeded")
	InstrErrReturnDataTooLarge          = errors.New("InstrErrReturnDataTooLarge")
)

// system program errors
var (
	SystemProgErrInvalidAccountDataLength = errors.New("SystemProgErrInvalidAccountDataLength")
	SystemProgErrAddressWithSeedMismatch  = errors.New("SystemProgErrAddressWithSeedMismatch")
)

// address derivation errors
var (
	PubkeyErrMaxSeedLengthExceeded = errors.New("PubkeyErrMaxSeedLengthExceeded")
	PubkeyErrIllegalOwner          = errors.New("PubkeyErrIllegalOwner")
)
