package sealevel

import (
	"github.com/gagliardetto/solana-go"
)

type InstructionCtx struct {
	programId           solana.PublicKey
	ProgramAccounts     []uint64
	InstructionAccounts []InstructionAccount
	Data                []byte
	StackHeight         uint64
	snapshot            instructionSnapshot
}

func NewInstructionCtx(programId solana.PublicKey, programAccounts []uint64, instrAccts []InstructionAccount, data []byte) *InstructionCtx {
	return &InstructionCtx{programId: programId, ProgramAccounts: programAccounts, InstructionAccounts: instrAccts, Data: data}
}

func (instrCtx *InstructionCtx) ProgramId() solana.PublicKey {
	return instrCtx.programId
}

func (instrCtx *InstructionCtx) NumberOfInstructionAccounts() uint64 {
	return uint64(len(instrCtx.InstructionAccounts))
}

func (instrCtx *InstructionCtx) CheckNumOfInstructionAccounts(expectedAtLeast uint64) error {
	if instrCtx.NumberOfInstructionAccounts() < expectedAtLeast {
		return InstrErrNotEnoughAccountKeys
	}
	return nil
}

func (instrCtx *InstructionCtx) IndexOfInstructionAccountInTransaction(instrAcctIdx uint64) (uint64, error) {
	if instrAcctIdx >= instrCtx.NumberOfInstructionAccounts() {
		return 0, InstrErrNotEnoughAccountKeys
	}
	return instrCtx.InstructionAccounts[instrAcctIdx].IndexInTransaction, nil
}

// IndexOfInstructionAccount returns the position of pubkey in this
// instruction's account list.
func (instrCtx *InstructionCtx) IndexOfInstructionAccount(txCtx *TransactionCtx, pubkey solana.PublicKey) (uint64, error) {
	for idx, instrAcct := range instrCtx.InstructionAccounts {
		key, err := txCtx.KeyOfAccountAtIndex(instrAcct.IndexInTransaction)
		if err == nil && key == pubkey {
			return uint64(idx), nil
		}
	}
	return 0, InstrErrMissingAccount
}

func (instrCtx *InstructionCtx) IsInstructionAccountSigner(instrAcctIdx uint64) (bool, error) {
	if instrAcctIdx >= instrCtx.NumberOfInstructionAccounts() {
		return false, InstrErrMissingAccount
	}
	return instrCtx.InstructionAccounts[instrAcctIdx].IsSigner, nil
}

func (instrCtx *InstructionCtx) IsInstructionAccountWritable(instrAcctIdx uint64) (bool, error) {
	if instrAcctIdx >= instrCtx.NumberOfInstructionAccounts() {
		return false, InstrErrMissingAccount
	}
	return instrCtx.InstructionAccounts[instrAcctIdx].IsWritable, nil
}

// Signers returns the distinct keys that signed for this instruction.
func (instrCtx *InstructionCtx) Signers(txCtx *TransactionCtx) ([]solana.PublicKey, error) {
	signers := make([]solana.PublicKey, 0)
	for _, instrAcct := range instrCtx.InstructionAccounts {
		if !instrAcct.IsSigner {
			continue
		}
		key, err := txCtx.KeyOfAccountAtIndex(instrAcct.IndexInTransaction)
		if err != nil {
			return nil, err
		}
		if !containsKey(signers, key) {
			signers = append(signers, key)
		}
	}
	return signers, nil
}

// UniqueTransactionIndices returns the transaction indices of the instruction
// accounts with duplicates removed, in first-seen order.
func (instrCtx *InstructionCtx) UniqueTransactionIndices() []uint64 {
	seen := make(map[uint64]struct{}, len(instrCtx.InstructionAccounts))
	indices := make([]uint64, 0, len(instrCtx.InstructionAccounts))
	for _, instrAcct := range instrCtx.InstructionAccounts {
		if _, ok := seen[instrAcct.IndexInTransaction]; ok {
			continue
		}
		seen[instrAcct.IndexInTransaction] = struct{}{}
		indices = append(indices, instrAcct.IndexInTransaction)
	}
	return indices
}

// BorrowInstructionAccount locks the instruction account at instrAcctIdx for
// mutation. The caller must Drop it before borrowing the same account again.
func (instrCtx *InstructionCtx) BorrowInstructionAccount(txCtx *TransactionCtx, instrAcctIdx uint64) (*BorrowedAccount, error) {
	idxInTx, err := instrCtx.IndexOfInstructionAccountInTransaction(instrAcctIdx)
	if err != nil {
		return nil, err
	}

	acct, err := txCtx.Accounts.GetAccount(idxInTx)
	if err != nil {
		return nil, err
	}

	err = txCtx.Accounts.Lock(idxInTx)
	if err != nil {
		return nil, err
	}

	return &BorrowedAccount{TxCtx: txCtx, InstrCtx: instrCtx, IndexInTransaction: idxInTx, IndexInInstruction: instrAcctIdx, Account: acct}, nil
}

func containsKey(keys []solana.PublicKey, key solana.PublicKey) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
