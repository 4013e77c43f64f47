package sealevel

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"go.firedancer.io/litesvm/pkg/accounts"
	"go.firedancer.io/litesvm/pkg/cu"
)

func newTestKey(t *testing.T) solana.PublicKey {
	privKey, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return privKey.PublicKey()
}

func newTestExecCtx(keys []solana.PublicKey, accts []*accounts.Account) (*ExecutionCtx, *LogRecorder) {
	logs := new(LogRecorder)
	txCtx := NewTransactionCtx(NewTransactionAccounts(keys, accts))
	execCtx := &ExecutionCtx{
		Log:                logs,
		Accounts:           accounts.NewStore(),
		TransactionContext: txCtx,
		ComputeMeter:       cu.NewComputeMeterDefault(),
		Builtins:           make(map[solana.PublicKey]Builtin),
	}
	return execCtx, logs
}

func systemInstrData(t *testing.T, instrType uint32, instr systemInstr) []byte {
	data, err := EncodeSystemInstruction(instrType, instr)
	require.NoError(t, err)
	return data
}

func systemAccount(lamports uint64) *accounts.Account {
	return &accounts.Account{Lamports: lamports, Owner: SystemProgramAddr}
}

func accountAt(t *testing.T, execCtx *ExecutionCtx, idx uint64) *accounts.Account {
	acct, err := execCtx.TransactionContext.Accounts.GetAccount(idx)
	require.NoError(t, err)
	return acct
}
