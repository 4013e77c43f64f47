package sealevel

import (
	"bytes"
	"errors"

	"github.com/gagliardetto/solana-go"
	"go.firedancer.io/litesvm/pkg/accounts"
	"go.firedancer.io/litesvm/pkg/cu"
	"go.firedancer.io/litesvm/pkg/safemath"
	"k8s.io/klog/v2"
)

// Builtin is a native program entrypoint. It reads the current instruction
// from the execution context and mutates accounts through BorrowedAccount.
type Builtin func(execCtx *ExecutionCtx) error

// ProgramLoader executes programs that are neither the system program nor a
// registered builtin. Implementations return InstrErrUnsupportedProgramId
// for programs they do not know.
type ProgramLoader interface {
	Execute(programId solana.PublicKey, execCtx *ExecutionCtx) error
}

// ExecutionCtx is the state a program executes against. Accounts exposes
// committed state only; instruction accounts are mutated through
// BorrowedAccount.
type ExecutionCtx struct {
	Log                Logger
	Accounts           accounts.Reader
	TransactionContext *TransactionCtx
	ComputeMeter       cu.ComputeMeter
	Builtins           map[solana.PublicKey]Builtin
	ProgramLoader      ProgramLoader
}

// ExecuteTransactionInstruction runs a top-level instruction of the
// transaction. Account privileges come from the instruction's account metas,
// which callers derive from the message header.
func (execCtx *ExecutionCtx) ExecuteTransactionInstruction(instr Instruction) error {
	txCtx := execCtx.TransactionContext

	instrAccts := make([]InstructionAccount, 0, len(instr.Accounts))
	for instrAcctIdx, accountMeta := range instr.Accounts {
		idxInTx, err := txCtx.IndexOfAccount(accountMeta.Pubkey)
		if err != nil {
			klog.Errorf("instruction references unknown account %s", accountMeta.Pubkey)
			return err
		}

		idxInCallee := uint64(instrAcctIdx)
		for prevIdx, prev := range instr.Accounts[:instrAcctIdx] {
			if prev.Pubkey == accountMeta.Pubkey {
				idxInCallee = uint64(prevIdx)
				break
			}
		}

		instrAccts = append(instrAccts, InstructionAccount{
			IndexInTransaction: idxInTx,
			IndexInCaller:      idxInTx,
			IndexInCallee:      idxInCallee,
			IsSigner:           accountMeta.IsSigner,
			IsWritable:         accountMeta.IsWritable,
		})
	}

	var programIndices []uint64
	if programIdx, err := txCtx.IndexOfAccount(instr.ProgramId); err == nil {
		programIndices = append(programIndices, programIdx)
	}

	return execCtx.ProcessInstruction(instr.ProgramId, programIndices, instrAccts, instr.Data)
}

// PrepareInstruction resolves a cross-program invocation against the
// currently executing instruction. Callee privileges may not exceed the
// caller's, except that signers may carry additional program signatures.
func (execCtx *ExecutionCtx) PrepareInstruction(ix Instruction, signers []solana.PublicKey) ([]InstructionAccount, []uint64, error) {
	txCtx := execCtx.TransactionContext

	ixCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return nil, nil, err
	}

	dedupInstructionAccounts := make([]InstructionAccount, 0)
	duplicateIndices := make([]int, 0, len(ix.Accounts))

	for instructionAcctIndex, accountMeta := range ix.Accounts {
		indexInTx, err := txCtx.IndexOfAccount(accountMeta.Pubkey)
		if err != nil {
			klog.Errorf("instruction references unknown account %s", accountMeta.Pubkey)
			return nil, nil, err
		}

		duplicateIndex := -1
		for index, instrAcct := range dedupInstructionAccounts {
			if instrAcct.IndexInTransaction == indexInTx {
				duplicateIndex = index
				break
			}
		}

		if duplicateIndex != -1 {
			duplicateIndices = append(duplicateIndices, duplicateIndex)
			dedupInstructionAccounts[duplicateIndex].IsSigner = dedupInstructionAccounts[duplicateIndex].IsSigner || accountMeta.IsSigner
			dedupInstructionAccounts[duplicateIndex].IsWritable = dedupInstructionAccounts[duplicateIndex].IsWritable || accountMeta.IsWritable
			continue
		}

		indexInCaller, err := ixCtx.IndexOfInstructionAccount(txCtx, accountMeta.Pubkey)
		if err != nil {
			klog.Errorf("instruction account %s missing from caller", accountMeta.Pubkey)
			return nil, nil, err
		}
		duplicateIndices = append(duplicateIndices, len(dedupInstructionAccounts))

		dedupInstructionAccounts = append(dedupInstructionAccounts, InstructionAccount{
			IndexInTransaction: indexInTx,
			IndexInCaller:      indexInCaller,
			IndexInCallee:      uint64(instructionAcctIndex),
			IsSigner:           accountMeta.IsSigner,
			IsWritable:         accountMeta.IsWritable,
		})
	}

	for _, instructionAcct := range dedupInstructionAccounts {
		callerWritable, err := ixCtx.IsInstructionAccountWritable(instructionAcct.IndexInCaller)
		if err != nil {
			return nil, nil, err
		}
		// read-only in caller cannot become writable in callee
		if instructionAcct.IsWritable && !callerWritable {
			klog.Errorf("writable privilege escalated for account at index %d", instructionAcct.IndexInTransaction)
			return nil, nil, InstrErrPrivilegeEscalation
		}

		callerSigner, err := ixCtx.IsInstructionAccountSigner(instructionAcct.IndexInCaller)
		if err != nil {
			return nil, nil, err
		}
		key, err := txCtx.KeyOfAccountAtIndex(instructionAcct.IndexInTransaction)
		if err != nil {
			return nil, nil, err
		}
		// to be signed in the callee, it must be signed in the caller or by the program
		if instructionAcct.IsSigner && !(callerSigner || containsKey(signers, key)) {
			klog.Errorf("signer privilege escalated for account %s", key)
			return nil, nil, InstrErrPrivilegeEscalation
		}
	}

	instructionAccounts := make([]InstructionAccount, 0, len(duplicateIndices))
	for _, duplicateIndex := range duplicateIndices {
		instructionAccounts = append(instructionAccounts, dedupInstructionAccounts[duplicateIndex])
	}

	var programIndices []uint64
	if programIdx, err := txCtx.IndexOfAccount(ix.ProgramId); err == nil {
		programIndices = append(programIndices, programIdx)
	}

	return instructionAccounts, programIndices, nil
}

// NativeInvoke performs a cross-program invocation from a builtin.
func (execCtx *ExecutionCtx) NativeInvoke(instruction Instruction, signers []solana.PublicKey) error {
	err := execCtx.ComputeMeter.Consume(CUInvokeUnits)
	if err != nil {
		return InstrErrComputationalBudgetExceeded
	}

	instrAccts, programIndices, err := execCtx.PrepareInstruction(instruction, signers)
	if err != nil {
		return err
	}

	// changes the caller made so far are checked now and become the caller's
	// new baseline once the callee returns
	caller, err := execCtx.TransactionContext.CurrentInstructionCtx()
	if err != nil {
		return err
	}
	err = caller.snapshot.verify(execCtx.TransactionContext, caller)
	if err != nil {
		return err
	}

	err = execCtx.ProcessInstruction(instruction.ProgramId, programIndices, instrAccts, instruction.Data)
	if err != nil {
		return err
	}

	caller.snapshot = takeInstructionSnapshot(execCtx.TransactionContext, caller)
	return nil
}

func (execCtx *ExecutionCtx) ProcessInstruction(programId solana.PublicKey, programIndices []uint64, instructionAccts []InstructionAccount, instrData []byte) error {
	txCtx := execCtx.TransactionContext
	instrCtx := NewInstructionCtx(programId, programIndices, instructionAccts, instrData)

	err := execCtx.checkReentrancy(programId)
	if err != nil {
		return err
	}

	err = txCtx.Push(instrCtx)
	if err != nil {
		return err
	}

	execCtx.logInvoke(programId, instrCtx.StackHeight)

	instrCtx.snapshot = takeInstructionSnapshot(txCtx, instrCtx)
	err = execCtx.ExecuteInstruction()
	if err == nil {
		err = instrCtx.snapshot.verify(txCtx, instrCtx)
	}

	popErr := txCtx.Pop()
	execCtx.logResult(programId, err)

	if err != nil {
		return err
	}
	return popErr
}

func (execCtx *ExecutionCtx) checkReentrancy(programId solana.PublicKey) error {
	txCtx := execCtx.TransactionContext
	height := txCtx.InstructionCtxStackHeight()
	if height == 0 {
		return nil
	}

	var contains bool
	for level := uint64(0); level < height; level++ {
		ic, err := txCtx.InstructionCtxAtNestingLevel(level)
		if err == nil && ic.ProgramId() == programId {
			contains = true
			break
		}
	}

	current, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}
	isLast := current.ProgramId() == programId

	if contains && !isLast {
		return InstrErrReentrancyNotAllowed
	}
	return nil
}

func (execCtx *ExecutionCtx) ExecuteInstruction() error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	programId := instrCtx.ProgramId()
	klog.V(2).Infof("ExecuteInstruction, program: %s", programId)

	switch programId {
	case SystemProgramAddr:
		err = SystemProgramExecute(execCtx)
	case ComputeBudgetProgramAddr:
		err = ComputeBudgetExecute(execCtx)
	default:
		if builtin, ok := execCtx.Builtins[programId]; ok {
			err = builtin(execCtx)
		} else if execCtx.ProgramLoader != nil {
			err = execCtx.ProgramLoader.Execute(programId, execCtx)
		} else {
			klog.Errorf("unsupported program %s", programId)
			err = InstrErrUnsupportedProgramId
		}
	}

	if errors.Is(err, cu.ErrComputeExceeded) {
		return InstrErrComputationalBudgetExceeded
	}
	return err
}

func (execCtx *ExecutionCtx) StackHeight() uint64 {
	return execCtx.TransactionContext.InstructionCtxStackHeight()
}

// SetReturnData records data as returned by the currently executing program.
func (execCtx *ExecutionCtx) SetReturnData(data []byte) error {
	if len(data) > MaxReturnDataLen {
		return InstrErrReturnDataTooLarge
	}
	instrCtx, err := execCtx.TransactionContext.CurrentInstructionCtx()
	if err != nil {
		return err
	}
	execCtx.TransactionContext.SetReturnData(instrCtx.ProgramId(), data)
	return nil
}

type preAccount struct {
	idx        uint64
	writable   bool
	lamports   uint64
	owner      solana.PublicKey
	executable bool
	data       []byte
}

type instructionSnapshot struct {
	accts []preAccount
}

func takeInstructionSnapshot(txCtx *TransactionCtx, instrCtx *InstructionCtx) instructionSnapshot {
	var snapshot instructionSnapshot
	for _, idx := range instrCtx.UniqueTransactionIndices() {
		acct, err := txCtx.Accounts.GetAccount(idx)
		if err != nil {
			continue
		}

		var writable bool
		for _, instrAcct := range instrCtx.InstructionAccounts {
			if instrAcct.IndexInTransaction == idx && instrAcct.IsWritable {
				writable = true
				break
			}
		}

		snapshot.accts = append(snapshot.accts, preAccount{
			idx:        idx,
			writable:   writable,
			lamports:   acct.Lamports,
			owner:      acct.Owner,
			executable: acct.Executable,
			data:       bytes.Clone(acct.Data),
		})
	}
	return snapshot
}

// verify checks the instruction's account changes against what the program
// was allowed to do, then checks that no lamports were created or destroyed.
func (snapshot instructionSnapshot) verify(txCtx *TransactionCtx, instrCtx *InstructionCtx) error {
	programId := instrCtx.ProgramId()
	preBalances := make([]uint64, 0, len(snapshot.accts))
	postBalances := make([]uint64, 0, len(snapshot.accts))

	for _, pre := range snapshot.accts {
		post, err := txCtx.Accounts.GetAccount(pre.idx)
		if err != nil {
			return err
		}

		if pre.owner != post.Owner {
			if !pre.writable || pre.executable || pre.owner != programId || !isZeroed(post.Data) {
				return InstrErrModifiedProgramId
			}
		}

		if pre.lamports != post.Lamports {
			if !pre.writable {
				return InstrErrReadonlyLamportChange
			}
			if pre.executable {
				return InstrErrExecutableLamportChange
			}
			if post.Lamports < pre.lamports && pre.owner != programId {
				return InstrErrExternalAccountLamportSpend
			}
		}

		if !bytes.Equal(pre.data, post.Data) {
			if pre.executable {
				return InstrErrExecutableDataModified
			}
			if !pre.writable {
				return InstrErrReadonlyDataModified
			}
			if pre.owner != programId {
				return InstrErrExternalAccountDataModified
			}
		}

		preBalances = append(preBalances, pre.lamports)
		postBalances = append(postBalances, post.Lamports)
	}

	preSum, _ := safemath.SumU64(preBalances...)
	postSum, _ := safemath.SumU64(postBalances...)
	if preSum != postSum {
		klog.Errorf("instruction for program %s is unbalanced", programId)
		return InstrErrUnbalancedInstruction
	}
	return nil
}
