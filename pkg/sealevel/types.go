package sealevel

import (
	"github.com/gagliardetto/solana-go"
)

// Instruction is a program invocation with its account list and opaque data.
type Instruction struct {
	Accounts  []AccountMeta
	Data      []byte
	ProgramId solana.PublicKey
}

type AccountMeta struct {
	Pubkey     solana.PublicKey
	IsSigner   bool
	IsWritable bool
}

// InstructionAccount ties an instruction account to its position in the
// transaction account list, along with its privileges for this instruction.
type InstructionAccount struct {
	IndexInTransaction uint64
	IndexInCaller      uint64
	IndexInCallee      uint64
	IsSigner           bool
	IsWritable         bool
}

// NewInstructionFromCompiled resolves a compiled message instruction against
// the message account keys.
func NewInstructionFromCompiled(msg *solana.Message, compiled solana.CompiledInstruction) (Instruction, error) {
	if int(compiled.ProgramIDIndex) >= len(msg.AccountKeys) {
		return Instruction{}, InstrErrNotEnoughAccountKeys
	}

	instr := Instruction{
		ProgramId: msg.AccountKeys[compiled.ProgramIDIndex],
		Data:      compiled.Data,
		Accounts:  make([]AccountMeta, 0, len(compiled.Accounts)),
	}

	for _, idx := range compiled.Accounts {
		if int(idx) >= len(msg.AccountKeys) {
			return Instruction{}, InstrErrNotEnoughAccountKeys
		}
		key := msg.AccountKeys[idx]
		isWritable, err := msg.IsWritable(key)
		if err != nil {
			return Instruction{}, err
		}
		instr.Accounts = append(instr.Accounts, AccountMeta{Pubkey: key, IsSigner: msg.IsSigner(key), IsWritable: isWritable})
	}

	return instr, nil
}
