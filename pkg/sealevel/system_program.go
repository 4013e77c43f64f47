package sealevel

import (
	"bytes"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"k8s.io/klog/v2"
)

const SystemProgMaxPermittedDataLen = 10 * 1024 * 1024

const (
	SystemProgramInstrTypeCreateAccount = iota
	SystemProgramInstrTypeAssign
	SystemProgramInstrTypeTransfer
	SystemProgramInstrTypeCreateAccountWithSeed
	SystemProgramInstrTypeAdvanceNonceAccount
	SystemProgramInstrTypeWithdrawNonceAccount
	SystemProgramInstrTypeInitializeNonceAccount
	SystemProgramInstrTypeAuthorizeNonceAccount
	SystemProgramInstrTypeAllocate
	SystemProgramInstrTypeAllocateWithSeed
	SystemProgramInstrTypeAssignWithSeed
	SystemProgramInstrTypeTransferWithSeed
	SystemProgramInstrTypeUpgradeNonceAccount
)

type SystemInstrCreateAccount struct {
	Lamports uint64
	Space    uint64
	Owner    solana.PublicKey
}

type SystemInstrAssign struct {
	Owner solana.PublicKey
}

type SystemInstrTransfer struct {
	Lamports uint64
}

type SystemInstrCreateAccountWithSeed struct {
	Base     solana.PublicKey
	Seed     string
	Lamports uint64
	Space    uint64
	Owner    solana.PublicKey
}

type SystemInstrAllocate struct {
	Space uint64
}

type SystemInstrAllocateWithSeed struct {
	Base  solana.PublicKey
	Seed  string
	Space uint64
	Owner solana.PublicKey
}

type SystemInstrAssignWithSeed struct {
	Base  solana.PublicKey
	Seed  string
	Owner solana.PublicKey
}

type SystemInstrTransferWithSeed struct {
	Lamports  uint64
	FromSeed  string
	FromOwner solana.PublicKey
}

type systemInstr interface {
	UnmarshalWithDecoder(decoder *bin.Decoder) error
	MarshalWithEncoder(encoder *bin.Encoder) error
}

func checkWithinDeserializationLimit(decoder *bin.Decoder) error {
	if decoder.Position() > 1232 {
		return InstrErrInvalidInstructionData
	}
	return nil
}

func readPubkey(decoder *bin.Decoder, pk *solana.PublicKey) error {
	b, err := decoder.ReadBytes(solana.PublicKeyLength)
	if err != nil {
		return err
	}
	copy(pk[:], b)
	return nil
}

func writeRustString(encoder *bin.Encoder, s string) error {
	err := encoder.WriteUint64(uint64(len(s)), bin.LE)
	if err != nil {
		return err
	}
	return encoder.WriteBytes([]byte(s), false)
}

// EncodeSystemInstruction serializes a system instruction with its
// little-endian u32 discriminator.
func EncodeSystemInstruction(instrType uint32, instr systemInstr) ([]byte, error) {
	buf := new(bytes.Buffer)
	encoder := bin.NewBinEncoder(buf)

	err := encoder.WriteUint32(instrType, bin.LE)
	if err != nil {
		return nil, err
	}
	if instr != nil {
		err = instr.MarshalWithEncoder(encoder)
		if err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (instr *SystemInstrCreateAccount) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	var err error

	instr.Lamports, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}

	instr.Space, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}

	err = readPubkey(decoder, &instr.Owner)
	if err != nil {
		return err
	}

	return checkWithinDeserializationLimit(decoder)
}

func (instr *SystemInstrCreateAccount) MarshalWithEncoder(encoder *bin.Encoder) error {
	var err error

	err = encoder.WriteUint64(instr.Lamports, bin.LE)
	if err != nil {
		return err
	}

	err = encoder.WriteUint64(instr.Space, bin.LE)
	if err != nil {
		return err
	}

	return encoder.WriteBytes(instr.Owner[:], false)
}

func (instr *SystemInstrAssign) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	err := readPubkey(decoder, &instr.Owner)
	if err != nil {
		return err
	}
	return checkWithinDeserializationLimit(decoder)
}

func (instr *SystemInstrAssign) MarshalWithEncoder(encoder *bin.Encoder) error {
	return encoder.WriteBytes(instr.Owner[:], false)
}

func (instr *SystemInstrTransfer) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	var err error

	instr.Lamports, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}

	return checkWithinDeserializationLimit(decoder)
}

func (instr *SystemInstrTransfer) MarshalWithEncoder(encoder *bin.Encoder) error {
	return encoder.WriteUint64(instr.Lamports, bin.LE)
}

func (instr *SystemInstrCreateAccountWithSeed) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	err := readPubkey(decoder, &instr.Base)
	if err != nil {
		return err
	}

	instr.Seed, err = decoder.ReadRustString()
	if err != nil {
		return err
	}

	instr.Lamports, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}

	instr.Space, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}

	err = readPubkey(decoder, &instr.Owner)
	if err != nil {
		return err
	}

	return checkWithinDeserializationLimit(decoder)
}

func (instr *SystemInstrCreateAccountWithSeed) MarshalWithEncoder(encoder *bin.Encoder) error {
	_ = encoder.WriteBytes(instr.Base[:], false)
	_ = writeRustString(encoder, instr.Seed)
	_ = encoder.WriteUint64(instr.Lamports, bin.LE)
	_ = encoder.WriteUint64(instr.Space, bin.LE)
	return encoder.WriteBytes(instr.Owner[:], false)
}

func (instr *SystemInstrAllocate) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	var err error
	instr.Space, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}

	return checkWithinDeserializationLimit(decoder)
}

func (instr *SystemInstrAllocate) MarshalWithEncoder(encoder *bin.Encoder) error {
	return encoder.WriteUint64(instr.Space, bin.LE)
}

func (instr *SystemInstrAllocateWithSeed) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	err := readPubkey(decoder, &instr.Base)
	if err != nil {
		return err
	}

	instr.Seed, err = decoder.ReadRustString()
	if err != nil {
		return err
	}

	instr.Space, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}

	err = readPubkey(decoder, &instr.Owner)
	if err != nil {
		return err
	}

	return checkWithinDeserializationLimit(decoder)
}

func (instr *SystemInstrAllocateWithSeed) MarshalWithEncoder(encoder *bin.Encoder) error {
	_ = encoder.WriteBytes(instr.Base[:], false)
	_ = writeRustString(encoder, instr.Seed)
	_ = encoder.WriteUint64(instr.Space, bin.LE)
	return encoder.WriteBytes(instr.Owner[:], false)
}

func (instr *SystemInstrAssignWithSeed) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	err := readPubkey(decoder, &instr.Base)
	if err != nil {
		return err
	}

	instr.Seed, err = decoder.ReadRustString()
	if err != nil {
		return err
	}

	err = readPubkey(decoder, &instr.Owner)
	if err != nil {
		return err
	}
	return checkWithinDeserializationLimit(decoder)
}

func (instr *SystemInstrAssignWithSeed) MarshalWithEncoder(encoder *bin.Encoder) error {
	_ = encoder.WriteBytes(instr.Base[:], false)
	_ = writeRustString(encoder, instr.Seed)
	return encoder.WriteBytes(instr.Owner[:], false)
}

func (instr *SystemInstrTransferWithSeed) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	var err error
	instr.Lamports, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}

	instr.FromSeed, err = decoder.ReadRustString()
	if err != nil {
		return err
	}

	err = readPubkey(decoder, &instr.FromOwner)
	if err != nil {
		return err
	}

	return checkWithinDeserializationLimit(decoder)
}

func (instr *SystemInstrTransferWithSeed) MarshalWithEncoder(encoder *bin.Encoder) error {
	_ = encoder.WriteUint64(instr.Lamports, bin.LE)
	_ = writeRustString(encoder, instr.FromSeed)
	return encoder.WriteBytes(instr.FromOwner[:], false)
}

// systemAddress is the target of an allocate or assign. Seeded addresses are
// authorized by their base key rather than by the address itself.
type systemAddress struct {
	address solana.PublicKey
	base    *solana.PublicKey
}

func (addr systemAddress) authority() solana.PublicKey {
	if addr.base != nil {
		return *addr.base
	}
	return addr.address
}

func extractAddress(txCtx *TransactionCtx, instrCtx *InstructionCtx, instrAcctIdx uint64) (systemAddress, error) {
	idx, err := instrCtx.IndexOfInstructionAccountInTransaction(instrAcctIdx)
	if err != nil {
		return systemAddress{}, err
	}

	addr, err := txCtx.KeyOfAccountAtIndex(idx)
	if err != nil {
		return systemAddress{}, err
	}
	return systemAddress{address: addr}, nil
}

func extractAddressWithSeed(txCtx *TransactionCtx, instrCtx *InstructionCtx, instrAcctIdx uint64, base solana.PublicKey, seed string, owner solana.PublicKey) (systemAddress, error) {
	addr, err := extractAddress(txCtx, instrCtx, instrAcctIdx)
	if err != nil {
		return addr, err
	}

	addrWithSeed, err := ValidateAndCreateWithSeed(base, seed, owner)
	if err != nil {
		return addr, err
	}
	if addr.address != addrWithSeed {
		klog.Errorf("Create: address %s does not match derived address %s", addr.address, addrWithSeed)
		return addr, SystemProgErrAddressWithSeedMismatch
	}

	addr.base = &base
	return addr, nil
}

func SystemProgramExecute(execCtx *ExecutionCtx) error {
	err := execCtx.ComputeMeter.Consume(CUSystemProgramDefaultComputeUnits)
	if err != nil {
		return err
	}

	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	decoder := bin.NewBinDecoder(instrCtx.Data)

	instructionType, err := decoder.ReadUint32(bin.LE)
	if err != nil {
		return InstrErrInvalidInstructionData
	}

	signers, err := instrCtx.Signers(txCtx)
	if err != nil {
		return err
	}

	switch instructionType {
	case SystemProgramInstrTypeCreateAccount:
		var createAccount SystemInstrCreateAccount
		err = createAccount.UnmarshalWithDecoder(decoder)
		if err != nil {
			return InstrErrInvalidInstructionData
		}
		err = instrCtx.CheckNumOfInstructionAccounts(2)
		if err != nil {
			return err
		}
		toAddr, err := extractAddress(txCtx, instrCtx, 1)
		if err != nil {
			return err
		}
		return SystemProgramCreateAccount(execCtx, toAddr, createAccount.Lamports, createAccount.Space, createAccount.Owner, signers)

	case SystemProgramInstrTypeAssign:
		var assign SystemInstrAssign
		err = assign.UnmarshalWithDecoder(decoder)
		if err != nil {
			return InstrErrInvalidInstructionData
		}
		err = instrCtx.CheckNumOfInstructionAccounts(1)
		if err != nil {
			return err
		}
		addr, err := extractAddress(txCtx, instrCtx, 0)
		if err != nil {
			return err
		}
		acct, err := instrCtx.BorrowInstructionAccount(txCtx, 0)
		if err != nil {
			return err
		}
		defer acct.Drop()

		return SystemProgramAssign(acct, addr, assign.Owner, signers)

	case SystemProgramInstrTypeTransfer:
		var transfer SystemInstrTransfer
		err = transfer.UnmarshalWithDecoder(decoder)
		if err != nil {
			return InstrErrInvalidInstructionData
		}
		err = instrCtx.CheckNumOfInstructionAccounts(2)
		if err != nil {
			return err
		}
		return SystemProgramTransfer(execCtx, 0, 1, transfer.Lamports)

	case SystemProgramInstrTypeCreateAccountWithSeed:
		var createAcctWithSeed SystemInstrCreateAccountWithSeed
		err = createAcctWithSeed.UnmarshalWithDecoder(decoder)
		if err != nil {
			return InstrErrInvalidInstructionData
		}
		err = instrCtx.CheckNumOfInstructionAccounts(2)
		if err != nil {
			return err
		}
		toAddr, err := extractAddressWithSeed(txCtx, instrCtx, 1, createAcctWithSeed.Base, createAcctWithSeed.Seed, createAcctWithSeed.Owner)
		if err != nil {
			return err
		}
		return SystemProgramCreateAccount(execCtx, toAddr, createAcctWithSeed.Lamports, createAcctWithSeed.Space, createAcctWithSeed.Owner, signers)

	case SystemProgramInstrTypeAllocate:
		var allocate SystemInstrAllocate
		err = allocate.UnmarshalWithDecoder(decoder)
		if err != nil {
			return InstrErrInvalidInstructionData
		}
		err = instrCtx.CheckNumOfInstructionAccounts(1)
		if err != nil {
			return err
		}
		addr, err := extractAddress(txCtx, instrCtx, 0)
		if err != nil {
			return err
		}
		acct, err := instrCtx.BorrowInstructionAccount(txCtx, 0)
		if err != nil {
			return err
		}
		defer acct.Drop()

		return SystemProgramAllocate(acct, addr, allocate.Space, signers)

	case SystemProgramInstrTypeAllocateWithSeed:
		var allocateWithSeed SystemInstrAllocateWithSeed
		err = allocateWithSeed.UnmarshalWithDecoder(decoder)
		if err != nil {
			return InstrErrInvalidInstructionData
		}
		err = instrCtx.CheckNumOfInstructionAccounts(1)
		if err != nil {
			return err
		}
		addr, err := extractAddressWithSeed(txCtx, instrCtx, 0, allocateWithSeed.Base, allocateWithSeed.Seed, allocateWithSeed.Owner)
		if err != nil {
			return err
		}
		acct, err := instrCtx.BorrowInstructionAccount(txCtx, 0)
		if err != nil {
			return err
		}
		defer acct.Drop()

		return SystemProgramAllocateAndAssign(acct, addr, allocateWithSeed.Space, allocateWithSeed.Owner, signers)

	case SystemProgramInstrTypeAssignWithSeed:
		var assignWithSeed SystemInstrAssignWithSeed
		err = assignWithSeed.UnmarshalWithDecoder(decoder)
		if err != nil {
			return InstrErrInvalidInstructionData
		}
		err = instrCtx.CheckNumOfInstructionAccounts(1)
		if err != nil {
			return err
		}
		addr, err := extractAddressWithSeed(txCtx, instrCtx, 0, assignWithSeed.Base, assignWithSeed.Seed, assignWithSeed.Owner)
		if err != nil {
			return err
		}
		acct, err := instrCtx.BorrowInstructionAccount(txCtx, 0)
		if err != nil {
			return err
		}
		defer acct.Drop()

		return SystemProgramAssign(acct, addr, assignWithSeed.Owner, signers)

	case SystemProgramInstrTypeTransferWithSeed:
		var transferWithSeed SystemInstrTransferWithSeed
		err = transferWithSeed.UnmarshalWithDecoder(decoder)
		if err != nil {
			return InstrErrInvalidInstructionData
		}
		err = instrCtx.CheckNumOfInstructionAccounts(3)
		if err != nil {
			return err
		}
		return SystemProgramTransferWithSeed(execCtx, 0, 1, transferWithSeed.FromSeed, transferWithSeed.FromOwner, 2, transferWithSeed.Lamports)

	case SystemProgramInstrTypeAdvanceNonceAccount,
		SystemProgramInstrTypeWithdrawNonceAccount,
		SystemProgramInstrTypeInitializeNonceAccount,
		SystemProgramInstrTypeAuthorizeNonceAccount,
		SystemProgramInstrTypeUpgradeNonceAccount:
		klog.Errorf("durable nonce instruction %d is not supported", instructionType)
		return InstrErrInvalidInstructionData

	default:
		return InstrErrInvalidInstructionData
	}
}

func SystemProgramCreateAccount(execCtx *ExecutionCtx, toAddr systemAddress, lamports uint64, space uint64, owner solana.PublicKey, signers []solana.PublicKey) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	toAcct, err := instrCtx.BorrowInstructionAccount(txCtx, 1)
	if err != nil {
		return err
	}

	if toAcct.Lamports() > 0 {
		toAcct.Drop()
		klog.Errorf("Create Account: account %s already in use", toAddr.address)
		return InstrErrAccountAlreadyInUse
	}

	err = SystemProgramAllocateAndAssign(toAcct, toAddr, space, owner, signers)
	toAcct.Drop()
	if err != nil {
		return err
	}

	return SystemProgramTransfer(execCtx, 0, 1, lamports)
}

func SystemProgramAllocateAndAssign(acct *BorrowedAccount, address systemAddress, space uint64, owner solana.PublicKey, signers []solana.PublicKey) error {
	err := SystemProgramAllocate(acct, address, space, signers)
	if err != nil {
		return err
	}

	return SystemProgramAssign(acct, address, owner, signers)
}

func SystemProgramAllocate(acct *BorrowedAccount, address systemAddress, space uint64, signers []solana.PublicKey) error {
	if !containsKey(signers, address.authority()) {
		klog.Errorf("Allocate: 'to' account %s must sign", address.address)
		return InstrErrMissingRequiredSignature
	}

	if len(acct.Data()) != 0 || acct.Owner() != SystemProgramAddr {
		klog.Errorf("Allocate: account %s already in use", address.address)
		return InstrErrAccountAlreadyInUse
	}

	if space > SystemProgMaxPermittedDataLen {
		klog.Errorf("Allocate: requested %d, max allowed %d", space, SystemProgMaxPermittedDataLen)
		return SystemProgErrInvalidAccountDataLength
	}

	return acct.SetDataLength(space)
}

func SystemProgramAssign(acct *BorrowedAccount, address systemAddress, owner solana.PublicKey, signers []solana.PublicKey) error {
	if acct.Owner() == owner {
		return nil
	}

	if !containsKey(signers, address.authority()) {
		klog.Errorf("Assign: account %s must sign", address.address)
		return InstrErrMissingRequiredSignature
	}

	return acct.SetOwner(owner)
}

func SystemProgramTransfer(execCtx *ExecutionCtx, fromAcctIdx uint64, toAcctIdx uint64, lamports uint64) error {
	instrCtx, err := execCtx.TransactionContext.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	isSigner, err := instrCtx.IsInstructionAccountSigner(fromAcctIdx)
	if err != nil {
		return err
	}

	if !isSigner {
		klog.Errorf("Transfer: `from` account must sign")
		return InstrErrMissingRequiredSignature
	}

	return transferInternal(execCtx, fromAcctIdx, toAcctIdx, lamports)
}

func SystemProgramTransferWithSeed(execCtx *ExecutionCtx, fromAcctIdx uint64, fromBaseAcctIdx uint64, fromSeed string, fromOwner solana.PublicKey, toAcctIdx uint64, lamports uint64) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	isSigner, err := instrCtx.IsInstructionAccountSigner(fromBaseAcctIdx)
	if err != nil {
		return err
	}
	if !isSigner {
		klog.Errorf("Transfer: 'from' base account must sign")
		return InstrErrMissingRequiredSignature
	}

	base, err := extractAddress(txCtx, instrCtx, fromBaseAcctIdx)
	if err != nil {
		return err
	}

	addrFromSeed, err := ValidateAndCreateWithSeed(base.address, fromSeed, fromOwner)
	if err != nil {
		return err
	}

	fromAddr, err := extractAddress(txCtx, instrCtx, fromAcctIdx)
	if err != nil {
		return err
	}

	if fromAddr.address != addrFromSeed {
		klog.Errorf("Transfer: 'from' address %s does not match derived address %s", fromAddr.address, addrFromSeed)
		return SystemProgErrAddressWithSeedMismatch
	}

	return transferInternal(execCtx, fromAcctIdx, toAcctIdx, lamports)
}

func transferInternal(execCtx *ExecutionCtx, fromAcctIdx uint64, toAcctIdx uint64, lamports uint64) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	from, err := instrCtx.BorrowInstructionAccount(txCtx, fromAcctIdx)
	if err != nil {
		return err
	}

	if len(from.Data()) != 0 {
		from.Drop()
		klog.Errorf("Transfer: `from` must not carry data")
		return InstrErrInvalidArgument
	}

	if lamports > from.Lamports() {
		klog.Errorf("Transfer: insufficient lamports %d, need %d", from.Lamports(), lamports)
		from.Drop()
		return InstrErrInsufficientFunds
	}

	err = from.CheckedSubLamports(lamports)
	from.Drop()
	if err != nil {
		return err
	}

	to, err := instrCtx.BorrowInstructionAccount(txCtx, toAcctIdx)
	if err != nil {
		return err
	}
	defer to.Drop()

	return to.CheckedAddLamports(lamports)
}
