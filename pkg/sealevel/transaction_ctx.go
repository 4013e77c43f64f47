package sealevel

import (
	"github.com/gagliardetto/solana-go"
	"go.firedancer.io/litesvm/pkg/accounts"
)

const (
	MaxInstructionStackDepth  = 5
	MaxInstructionTraceLength = 64
	MaxReturnDataLen          = 1024
)

// TransactionAccounts is the working copy of every account a transaction
// references, indexed like the message account keys. Nothing in it reaches
// the account store until the caller commits it.
type TransactionAccounts struct {
	Keys     []solana.PublicKey
	Accounts []*accounts.Account
	Touched  []bool
	locked   []bool
}

func NewTransactionAccounts(keys []solana.PublicKey, accts []*accounts.Account) *TransactionAccounts {
	if len(keys) != len(accts) {
		panic("programming error - keys and accounts must be same length")
	}
	return &TransactionAccounts{
		Keys:     keys,
		Accounts: accts,
		Touched:  make([]bool, len(accts)),
		locked:   make([]bool, len(accts)),
	}
}

func (txAccts *TransactionAccounts) Len() int {
	return len(txAccts.Accounts)
}

func (txAccts *TransactionAccounts) GetAccount(idx uint64) (*accounts.Account, error) {
	if idx >= uint64(len(txAccts.Accounts)) {
		return nil, InstrErrMissingAccount
	}
	return txAccts.Accounts[idx], nil
}

func (txAccts *TransactionAccounts) Lock(idx uint64) error {
	if idx >= uint64(len(txAccts.locked)) {
		return InstrErrMissingAccount
	}
	if txAccts.locked[idx] {
		return InstrErrAccountBorrowOutstanding
	}
	txAccts.locked[idx] = true
	return nil
}

func (txAccts *TransactionAccounts) Unlock(idx uint64) {
	if idx < uint64(len(txAccts.locked)) {
		txAccts.locked[idx] = false
	}
}

func (txAccts *TransactionAccounts) Touch(idx uint64) error {
	if idx >= uint64(len(txAccts.Touched)) {
		return InstrErrNotEnoughAccountKeys
	}
	txAccts.Touched[idx] = true
	return nil
}

func (txAccts *TransactionAccounts) IndexOfAccount(pubkey solana.PublicKey) (uint64, error) {
	for idx, key := range txAccts.Keys {
		if key == pubkey {
			return uint64(idx), nil
		}
	}
	return 0, InstrErrMissingAccount
}

type TxReturnData struct {
	programId solana.PublicKey
	data      []byte
}

// TransactionCtx tracks the instruction stack and trace of a transaction
// executing against its TransactionAccounts.
type TransactionCtx struct {
	Accounts         *TransactionAccounts
	instructionStack []*InstructionCtx
	instructionTrace []*InstructionCtx
	returnData       TxReturnData
}

func NewTransactionCtx(txAccts *TransactionAccounts) *TransactionCtx {
	return &TransactionCtx{Accounts: txAccts}
}

func (txCtx *TransactionCtx) KeyOfAccountAtIndex(idx uint64) (solana.PublicKey, error) {
	if idx >= uint64(len(txCtx.Accounts.Keys)) {
		return solana.PublicKey{}, InstrErrNotEnoughAccountKeys
	}
	return txCtx.Accounts.Keys[idx], nil
}

func (txCtx *TransactionCtx) IndexOfAccount(pubkey solana.PublicKey) (uint64, error) {
	return txCtx.Accounts.IndexOfAccount(pubkey)
}

func (txCtx *TransactionCtx) CurrentInstructionCtx() (*InstructionCtx, error) {
	if len(txCtx.instructionStack) == 0 {
		return nil, InstrErrCallDepth
	}
	return txCtx.instructionStack[len(txCtx.instructionStack)-1], nil
}

func (txCtx *TransactionCtx) InstructionCtxAtNestingLevel(level uint64) (*InstructionCtx, error) {
	if level >= uint64(len(txCtx.instructionStack)) {
		return nil, InstrErrCallDepth
	}
	return txCtx.instructionStack[level], nil
}

func (txCtx *TransactionCtx) Push(instrCtx *InstructionCtx) error {
	if len(txCtx.instructionTrace) >= MaxInstructionTraceLength {
		return InstrErrMaxInstructionTraceLength
	}
	if len(txCtx.instructionStack) >= MaxInstructionStackDepth {
		return InstrErrCallDepth
	}
	instrCtx.StackHeight = uint64(len(txCtx.instructionStack)) + 1
	txCtx.instructionStack = append(txCtx.instructionStack, instrCtx)
	txCtx.instructionTrace = append(txCtx.instructionTrace, instrCtx)
	return nil
}

func (txCtx *TransactionCtx) Pop() error {
	if len(txCtx.instructionStack) == 0 {
		return InstrErrCallDepth
	}
	txCtx.instructionStack = txCtx.instructionStack[:len(txCtx.instructionStack)-1]
	return nil
}

func (txCtx *TransactionCtx) InstructionCtxStackHeight() uint64 {
	return uint64(len(txCtx.instructionStack))
}

// InstructionTraceLength counts every instruction pushed so far, top-level
// and nested.
func (txCtx *TransactionCtx) InstructionTraceLength() uint64 {
	return uint64(len(txCtx.instructionTrace))
}

func (txCtx *TransactionCtx) SetReturnData(programId solana.PublicKey, data []byte) {
	txCtx.returnData = TxReturnData{programId: programId, data: append([]byte(nil), data...)}
}

func (txCtx *TransactionCtx) GetReturnData() (solana.PublicKey, []byte) {
	return txCtx.returnData.programId, txCtx.returnData.data
}
