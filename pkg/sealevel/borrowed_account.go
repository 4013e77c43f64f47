package sealevel

import (
	"bytes"

	"github.com/gagliardetto/solana-go"
	"go.firedancer.io/litesvm/pkg/accounts"
	"go.firedancer.io/litesvm/pkg/safemath"
)

// BorrowedAccount is a locked view of one instruction account. Every mutation
// goes through it so privilege and ownership rules are checked before the
// working copy changes.
type BorrowedAccount struct {
	TxCtx              *TransactionCtx
	InstrCtx           *InstructionCtx
	IndexInTransaction uint64
	IndexInInstruction uint64
	Account            *accounts.Account
}

func (acct *BorrowedAccount) Drop() {
	acct.TxCtx.Accounts.Unlock(acct.IndexInTransaction)
}

func (acct *BorrowedAccount) Key() solana.PublicKey {
	key, err := acct.TxCtx.KeyOfAccountAtIndex(acct.IndexInTransaction)
	if err != nil {
		panic("supposedly impossible failure")
	}
	return key
}

func (acct *BorrowedAccount) Owner() solana.PublicKey {
	return acct.Account.Owner
}

func (acct *BorrowedAccount) Lamports() uint64 {
	return acct.Account.Lamports
}

func (acct *BorrowedAccount) Data() []byte {
	return acct.Account.Data
}

func (acct *BorrowedAccount) IsExecutable() bool {
	return acct.Account.Executable
}

func (acct *BorrowedAccount) IsSigner() bool {
	isSigner, err := acct.InstrCtx.IsInstructionAccountSigner(acct.IndexInInstruction)
	if err != nil {
		return false
	}
	return isSigner
}

func (acct *BorrowedAccount) IsWritable() bool {
	writable, err := acct.InstrCtx.IsInstructionAccountWritable(acct.IndexInInstruction)
	if err != nil {
		return false
	}
	return writable
}

func (acct *BorrowedAccount) IsOwnedByCurrentProgram() bool {
	return acct.InstrCtx.ProgramId() == acct.Owner()
}

func (acct *BorrowedAccount) Touch() error {
	return acct.TxCtx.Accounts.Touch(acct.IndexInTransaction)
}

func (acct *BorrowedAccount) SetLamports(lamports uint64) error {
	if !acct.IsOwnedByCurrentProgram() && lamports < acct.Lamports() {
		return InstrErrExternalAccountLamportSpend
	}
	if !acct.IsWritable() {
		return InstrErrReadonlyLamportChange
	}
	if acct.IsExecutable() {
		return InstrErrExecutableLamportChange
	}
	if acct.Lamports() == lamports {
		return nil
	}

	err := acct.Touch()
	if err != nil {
		return err
	}
	acct.Account.Lamports = lamports
	return nil
}

func (acct *BorrowedAccount) CheckedAddLamports(lamports uint64) error {
	balance, err := safemath.CheckedAddU64(acct.Lamports(), lamports)
	if err != nil {
		return InstrErrArithmeticOverflow
	}
	return acct.SetLamports(balance)
}

func (acct *BorrowedAccount) CheckedSubLamports(lamports uint64) error {
	balance, err := safemath.CheckedSubU64(acct.Lamports(), lamports)
	if err != nil {
		return InstrErrArithmeticOverflow
	}
	return acct.SetLamports(balance)
}

func (acct *BorrowedAccount) DataCanBeChanged() error {
	if acct.IsExecutable() {
		return InstrErrExecutableDataModified
	}
	if !acct.IsWritable() {
		return InstrErrReadonlyDataModified
	}
	if !acct.IsOwnedByCurrentProgram() {
		return InstrErrExternalAccountDataModified
	}
	return nil
}

func (acct *BorrowedAccount) SetData(data []byte) error {
	err := acct.DataCanBeChanged()
	if err != nil {
		return err
	}
	if uint64(len(data)) > SystemProgMaxPermittedDataLen {
		return InstrErrInvalidRealloc
	}
	err = acct.Touch()
	if err != nil {
		return err
	}

	acct.Account.Data = append(acct.Account.Data[:0], data...)
	return nil
}

// SetDataLength resizes the account data, zero-filling any growth.
func (acct *BorrowedAccount) SetDataLength(newLength uint64) error {
	if newLength > SystemProgMaxPermittedDataLen {
		return InstrErrInvalidRealloc
	}
	if uint64(len(acct.Data())) == newLength {
		return nil
	}
	err := acct.DataCanBeChanged()
	if err != nil {
		return err
	}
	err = acct.Touch()
	if err != nil {
		return err
	}

	resized := make([]byte, newLength)
	copy(resized, acct.Account.Data)
	acct.Account.Data = resized
	return nil
}

// SetOwner hands the account to a new program. Only the current owner may do
// so, and only while the account is writable, not executable and carries
// zero-initialized data.
func (acct *BorrowedAccount) SetOwner(owner solana.PublicKey) error {
	if !acct.IsOwnedByCurrentProgram() {
		return InstrErrModifiedProgramId
	}
	if !acct.IsWritable() {
		return InstrErrModifiedProgramId
	}
	if acct.IsExecutable() {
		return InstrErrModifiedProgramId
	}
	if !isZeroed(acct.Data()) {
		return InstrErrModifiedProgramId
	}
	if acct.Owner() == owner {
		return nil
	}

	err := acct.Touch()
	if err != nil {
		return err
	}
	acct.Account.Owner = owner
	return nil
}

func isZeroed(data []byte) bool {
	return len(data) == 0 || bytes.Count(data, []byte{0}) == len(data)
}
