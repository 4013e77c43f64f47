package sealevel

import (
	"github.com/gagliardetto/solana-go"
)

const SystemProgramAddrStr = "11111111111111111111111111111111"

var SystemProgramAddr = solana.MustPublicKeyFromBase58(SystemProgramAddrStr)

const ComputeBudgetProgramAddrStr = "ComputeBudget111111111111111111111111111111"

var ComputeBudgetProgramAddr = solana.MustPublicKeyFromBase58(ComputeBudgetProgramAddrStr)

const NativeLoaderAddrStr = "NativeLoader1111111111111111111111111111111"

var NativeLoaderAddr = solana.MustPublicKeyFromBase58(NativeLoaderAddrStr)

const SysvarOwnerAddrStr = "Sysvar1111111111111111111111111111111111111"

var SysvarOwnerAddr = solana.MustPublicKeyFromBase58(SysvarOwnerAddrStr)

// IsBuiltinProgram reports whether programId is executed natively by the
// runtime without a registered builtin or a program loader.
func IsBuiltinProgram(programId solana.PublicKey) bool {
	return programId == SystemProgramAddr || programId == ComputeBudgetProgramAddr
}
