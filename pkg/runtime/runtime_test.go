package runtime

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.firedancer.io/litesvm/pkg/accounts"
	"go.firedancer.io/litesvm/pkg/sealevel"
)

const fee = 5000

func TestExecute_Tx_Airdrop(t *testing.T) {
	rt := newTestRuntime(t)
	faucetBefore := rt.GetBalance(rt.Faucet())

	recipient := newKeypair(t).PublicKey()
	meta, err := rt.Airdrop(recipient, 1_000_000)
	require.NoError(t, err)

	assert.Equal(t, uint64(1_000_000), rt.GetBalance(recipient))
	assert.Equal(t, faucetBefore-1_000_000-fee, rt.GetBalance(rt.Faucet()))
	assert.Equal(t, uint64(fee), meta.Fee)
	assert.Equal(t, uint64(sealevel.CUSystemProgramDefaultComputeUnits), meta.ComputeUnitsConsumed)

	acct, ok := rt.GetAccount(recipient)
	require.True(t, ok)
	assert.Equal(t, sealevel.SystemProgramAddr, acct.Owner)
	assert.Empty(t, acct.Data)
}

func TestExecute_Tx_AirdropFeeExempt(t *testing.T) {
	rt := newTestRuntime(t, WithFeeExemptAirdrops(true))
	faucetBefore := rt.GetBalance(rt.Faucet())

	meta, err := rt.Airdrop(newKeypair(t).PublicKey(), 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), meta.Fee)
	assert.Equal(t, faucetBefore-1_000_000, rt.GetBalance(rt.Faucet()))
}

func TestExecute_Tx_AirdropRepeated(t *testing.T) {
	rt := newTestRuntime(t)
	recipient := newKeypair(t).PublicKey()

	_, err := rt.Airdrop(recipient, 1_000_000)
	require.NoError(t, err)

	// identical transaction, identical signature
	_, err = rt.Airdrop(recipient, 1_000_000)
	assert.ErrorIs(t, err, TxErrAlreadyProcessed)

	_, err = rt.ExpireBlockhash()
	require.NoError(t, err)
	_, err = rt.Airdrop(recipient, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000_000), rt.GetBalance(recipient))
}

func TestExecute_Tx_TransferFeeAccounting(t *testing.T) {
	rt := newTestRuntime(t)
	const amount = 10_000

	from := fundedKeypair(t, rt, fee+amount)
	to := newKeypair(t).PublicKey()

	meta, err := rt.SendTransaction(transferTx(t, rt, from, to, amount))
	require.NoError(t, err)
	assert.Equal(t, uint64(fee), meta.Fee)

	assert.Equal(t, uint64(amount), rt.GetBalance(to))
	assert.Equal(t, uint64(0), rt.GetBalance(from.PublicKey()))

	_, ok := rt.GetAccount(from.PublicKey())
	assert.False(t, ok, "drained account must be pruned")
	assert.Equal(t, float64(1), testutil.ToFloat64(rt.metrics.accountsPruned))
}

func TestExecute_Tx_CreateAccountFeeAccounting(t *testing.T) {
	rt := newTestRuntime(t)
	const space = 10
	rentMin := rt.MinimumBalanceForRentExemption(space)
	require.Equal(t, uint64(960480), rentMin)

	payer := fundedKeypair(t, rt, rentMin+2*fee)
	newAcct := newKeypair(t)
	owner := newKeypair(t).PublicKey()

	instr := system.NewCreateAccountInstruction(rentMin, space, owner, payer.PublicKey(), newAcct.PublicKey()).Build()
	meta, err := rt.SendTransaction(signedTx(t, rt, []solana.Instruction{instr}, payer, newAcct))
	require.NoError(t, err)
	assert.Equal(t, uint64(2*fee), meta.Fee)

	acct, ok := rt.GetAccount(newAcct.PublicKey())
	require.True(t, ok)
	assert.Equal(t, rentMin, acct.Lamports)
	assert.Equal(t, make([]byte, space), acct.Data)
	assert.Equal(t, owner, acct.Owner)

	_, ok = rt.GetAccount(payer.PublicKey())
	assert.False(t, ok)
}

func TestExecute_Tx_CreateAccountAlreadyExists(t *testing.T) {
	rt := newTestRuntime(t)
	payer := fundedKeypair(t, rt, 10_000_000)
	existing := fundedKeypair(t, rt, 1_000_000)

	instr := system.NewCreateAccountInstruction(1_000_000, 0, sealevel.SystemProgramAddr, payer.PublicKey(), existing.PublicKey()).Build()
	_, err := rt.SendTransaction(signedTx(t, rt, []solana.Instruction{instr}, payer, existing))

	var ixErr *InstructionError
	require.ErrorAs(t, err, &ixErr)
	assert.Equal(t, 0, ixErr.Index)
	assert.ErrorIs(t, err, sealevel.InstrErrAccountAlreadyInUse)
	assert.Equal(t, "AccountAlreadyExists", ErrorKind(err))
	assert.Equal(t, uint64(10_000_000), rt.GetBalance(payer.PublicKey()))
}

func TestExecute_Tx_Atomicity(t *testing.T) {
	rt := newTestRuntime(t)
	from := fundedKeypair(t, rt, 1_000_000)
	first := newKeypair(t).PublicKey()
	second := newKeypair(t).PublicKey()

	before := rt.StateHash()

	tx := signedTx(t, rt, []solana.Instruction{
		system.NewTransferInstruction(1000, from.PublicKey(), first).Build(),
		system.NewTransferInstruction(10_000_000, from.PublicKey(), second).Build(),
	}, from)

	meta, err := rt.SendTransaction(tx)
	var ixErr *InstructionError
	require.ErrorAs(t, err, &ixErr)
	assert.Equal(t, 1, ixErr.Index)
	assert.ErrorIs(t, err, sealevel.InstrErrInsufficientFunds)
	assert.Equal(t, "InsufficientFunds", ErrorKind(err))

	assert.Equal(t, before, rt.StateHash())
	assert.Equal(t, uint64(1_000_000), rt.GetBalance(from.PublicKey()))
	_, ok := rt.GetAccount(first)
	assert.False(t, ok)

	_, found := rt.GetTransaction(meta.Signature)
	assert.False(t, found)
	assert.Contains(t, meta.Logs, "Program 11111111111111111111111111111111 failed: InstrErrInsufficientFunds")
}

func TestExecute_Tx_AllocateWithoutFundingIsEphemeral(t *testing.T) {
	rt := newTestRuntime(t)
	payer := fundedKeypair(t, rt, 1_000_000)
	target := newKeypair(t)

	instr := system.NewAllocateInstruction(100, target.PublicKey()).Build()
	_, err := rt.SendTransaction(signedTx(t, rt, []solana.Instruction{instr}, payer, target))
	require.NoError(t, err)

	_, ok := rt.GetAccount(target.PublicKey())
	assert.False(t, ok)
	assert.Equal(t, uint64(1_000_000-2*fee), rt.GetBalance(payer.PublicKey()))
}

func TestExecute_Tx_AssignOwner(t *testing.T) {
	rt := newTestRuntime(t)
	acct := fundedKeypair(t, rt, 1_000_000)
	owner := newKeypair(t).PublicKey()

	instr := system.NewAssignInstruction(owner, acct.PublicKey()).Build()
	_, err := rt.SendTransaction(signedTx(t, rt, []solana.Instruction{instr}, acct))
	require.NoError(t, err)

	got, ok := rt.GetAccount(acct.PublicKey())
	require.True(t, ok)
	assert.Equal(t, owner, got.Owner)
	assert.Equal(t, uint64(1_000_000-fee), got.Lamports)
}

func TestExecute_Tx_InsufficientFundsForFee(t *testing.T) {
	rt := newTestRuntime(t)
	payer := newKeypair(t)
	rt.SetAccount(payer.PublicKey(), &accounts.Account{Lamports: fee - 1, Owner: sealevel.SystemProgramAddr})
	before := rt.StateHash()

	_, err := rt.SendTransaction(transferTx(t, rt, payer, newKeypair(t).PublicKey(), 1))
	assert.ErrorIs(t, err, TxErrInsufficientFundsForFee)
	assert.Equal(t, before, rt.StateHash())

	// a payer that does not exist cannot pay either
	_, err = rt.SendTransaction(transferTx(t, rt, newKeypair(t), newKeypair(t).PublicKey(), 1))
	assert.ErrorIs(t, err, TxErrInsufficientFundsForFee)
}

func TestExecute_Tx_BlockhashNotFound(t *testing.T) {
	rt := newTestRuntime(t)
	from := fundedKeypair(t, rt, 1_000_000)

	tx := transferTx(t, rt, from, newKeypair(t).PublicKey(), 1)
	tx.Message.RecentBlockhash = solana.Hash(newKeypair(t).PublicKey())
	_, err := rt.SendTransaction(tx)
	assert.ErrorIs(t, err, TxErrBlockhashNotFound)
	assert.Equal(t, uint64(1_000_000), rt.GetBalance(from.PublicKey()))
}

func TestExecute_Tx_BlockhashExpires(t *testing.T) {
	rt := newTestRuntime(t, WithBlockhashWindow(2))
	from := fundedKeypair(t, rt, 1_000_000)
	stale := transferTx(t, rt, from, newKeypair(t).PublicKey(), 1)

	_, err := rt.ExpireBlockhash()
	require.NoError(t, err)
	_, err = rt.SimulateTransaction(stale)
	require.NoError(t, err, "previous blockhash is still inside the window")

	_, err = rt.ExpireBlockhash()
	require.NoError(t, err)
	_, err = rt.SendTransaction(stale)
	assert.ErrorIs(t, err, TxErrBlockhashNotFound)
}

func TestExecute_Tx_BlockhashCheckDisabled(t *testing.T) {
	rt := newTestRuntime(t, WithBlockhashCheck(false))
	from := fundedKeypair(t, rt, 1_000_000)

	tx := transferTx(t, rt, from, newKeypair(t).PublicKey(), 1)
	tx.Message.RecentBlockhash = solana.Hash{}
	// the message changed, so sign again
	tx.Signatures = nil
	_, err := tx.Sign(func(solana.PublicKey) *solana.PrivateKey { return &from })
	require.NoError(t, err)

	_, err = rt.SendTransaction(tx)
	require.NoError(t, err)
}

func TestExecute_Tx_SignatureFailure(t *testing.T) {
	rt := newTestRuntime(t)
	from := fundedKeypair(t, rt, 1_000_000)

	tx := transferTx(t, rt, from, newKeypair(t).PublicKey(), 1)
	tx.Signatures[0][0] ^= 0xff
	_, err := rt.SendTransaction(tx)
	assert.ErrorIs(t, err, TxErrSignatureFailure)
	assert.Equal(t, "SignatureVerificationFailed", ErrorKind(err))

	unchecked := newTestRuntime(t, WithSigVerify(false))
	from = fundedKeypair(t, unchecked, 1_000_000)
	tx = transferTx(t, unchecked, from, newKeypair(t).PublicKey(), 1)
	tx.Signatures[0][0] ^= 0xff
	_, err = unchecked.SendTransaction(tx)
	require.NoError(t, err)
}

func TestExecute_Tx_SanitizeFailure(t *testing.T) {
	rt := newTestRuntime(t)
	from := fundedKeypair(t, rt, 1_000_000)

	tx := transferTx(t, rt, from, newKeypair(t).PublicKey(), 1)
	tx.Signatures = nil
	_, err := rt.SendTransaction(tx)
	assert.ErrorIs(t, err, TxErrSanitizeFailure)

	tx = transferTx(t, rt, from, newKeypair(t).PublicKey(), 1)
	tx.Message.Instructions[0].ProgramIDIndex = 0
	_, err = rt.SendTransaction(tx)
	assert.ErrorIs(t, err, TxErrSanitizeFailure)
}

func TestExecute_Tx_AlreadyProcessed(t *testing.T) {
	rt := newTestRuntime(t)
	from := fundedKeypair(t, rt, 1_000_000)
	to := newKeypair(t).PublicKey()

	tx := transferTx(t, rt, from, to, 100)
	meta, err := rt.SendTransaction(tx)
	require.NoError(t, err)

	result, ok := rt.GetTransaction(meta.Signature)
	require.True(t, ok)
	assert.NoError(t, result.Err)
	assert.Equal(t, tx.Signatures[0], result.Meta.Signature)

	_, err = rt.SendTransaction(tx)
	assert.ErrorIs(t, err, TxErrAlreadyProcessed)
	assert.Equal(t, uint64(100), rt.GetBalance(to))
}

func TestExecute_Tx_PriorityFee(t *testing.T) {
	rt := newTestRuntime(t)
	from := fundedKeypair(t, rt, 1_000_000)
	to := newKeypair(t).PublicKey()

	setLimit := sealevel.NewSetComputeUnitLimitInstruction(100_000)
	setPrice := sealevel.NewSetComputeUnitPriceInstruction(1000)
	tx := signedTx(t, rt, []solana.Instruction{
		solana.NewInstruction(setLimit.ProgramId, nil, setLimit.Data),
		solana.NewInstruction(setPrice.ProgramId, nil, setPrice.Data),
		system.NewTransferInstruction(100, from.PublicKey(), to).Build(),
	}, from)

	meta, err := rt.SendTransaction(tx)
	require.NoError(t, err)
	// 1000 micro-lamports for 100k units is 100 lamports
	assert.Equal(t, uint64(fee+100), meta.Fee)
	assert.Equal(t, uint64(3*sealevel.CUComputeBudgetProgramDefaultComputeUnits), meta.ComputeUnitsConsumed)
	assert.Equal(t, uint64(1_000_000-fee-100-100), rt.GetBalance(from.PublicKey()))
}

func TestExecute_Tx_FeeCollector(t *testing.T) {
	collector := newKeypair(t).PublicKey()
	rt := newTestRuntime(t, WithFeeCollector(collector))

	_, err := rt.Airdrop(newKeypair(t).PublicKey(), 1_000_000)
	require.NoError(t, err)

	assert.Equal(t, uint64(fee/2), rt.GetBalance(collector))
	assert.Equal(t, float64(fee), testutil.ToFloat64(rt.metrics.feesCollected))
	assert.Equal(t, float64(fee/2), testutil.ToFloat64(rt.metrics.feesBurned))
}

func TestExecute_Tx_RentStateCheck(t *testing.T) {
	rt := newTestRuntime(t, WithRentStateCheck(true))
	from := fundedKeypair(t, rt, 10_000_000)
	to := newKeypair(t).PublicKey()

	_, err := rt.SendTransaction(transferTx(t, rt, from, to, 1000))
	var rentErr *TxErrInsufficientFundsForRent
	require.ErrorAs(t, err, &rentErr)
	assert.Equal(t, 1, rentErr.AccountIndex)
	assert.Equal(t, "InsufficientFundsForRent", ErrorKind(err))
	assert.Equal(t, uint64(10_000_000), rt.GetBalance(from.PublicKey()))

	_, err = rt.SendTransaction(transferTx(t, rt, from, to, rt.MinimumBalanceForRentExemption(0)))
	require.NoError(t, err)
}

func TestExecute_Tx_Simulate(t *testing.T) {
	rt := newTestRuntime(t)
	from := fundedKeypair(t, rt, 1_000_000)
	to := newKeypair(t).PublicKey()

	var calls int
	rt.SetTransactionCallback(func(*solana.Transaction, *TransactionResult, *Runtime) { calls++ })
	before := rt.StateHash()

	tx := transferTx(t, rt, from, to, 100)
	meta, err := rt.SimulateTransaction(tx)
	require.NoError(t, err)
	assert.Equal(t, uint64(fee), meta.Fee)
	assert.NotEmpty(t, meta.Logs)

	assert.Equal(t, before, rt.StateHash())
	assert.Equal(t, 0, calls)

	// simulation leaves no history behind
	_, err = rt.SendTransaction(tx)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), rt.GetBalance(to))
}

func TestCallback_Cardinality(t *testing.T) {
	rt := newTestRuntime(t)
	recipient := newKeypair(t).PublicKey()

	var calls int
	var observed []uint64
	var results []*TransactionResult
	rt.SetTransactionCallback(func(tx *solana.Transaction, result *TransactionResult, rt *Runtime) {
		calls++
		observed = append(observed, rt.GetBalance(recipient))
		results = append(results, result)
	})

	from := fundedKeypair(t, rt, 1_000_000)
	assert.Equal(t, 1, calls, "airdrops are observed")

	_, err := rt.SendTransaction(transferTx(t, rt, from, recipient, 500))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, uint64(500), observed[1], "callback sees committed state")

	_, err = rt.SendTransaction(transferTx(t, rt, from, recipient, 100_000_000))
	require.Error(t, err)
	assert.Equal(t, 3, calls, "failures are observed")
	assert.Equal(t, uint64(500), observed[2])
	assert.ErrorIs(t, results[2].Err, sealevel.InstrErrInsufficientFunds)

	rt.UnsetTransactionCallback()
	_, err = rt.SendTransaction(transferTx(t, rt, from, recipient, 1))
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestCallback_Replace(t *testing.T) {
	var first, second int
	rt := newTestRuntime(t, WithTransactionCallback(func(*solana.Transaction, *TransactionResult, *Runtime) { first++ }))

	fundedKeypair(t, rt, 1_000_000)
	rt.SetTransactionCallback(func(*solana.Transaction, *TransactionResult, *Runtime) { second++ })
	fundedKeypair(t, rt, 1_000_000)

	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
}

func TestCallback_MutationIsIndependent(t *testing.T) {
	rt := newTestRuntime(t)
	target := newKeypair(t).PublicKey()

	var calls int
	rt.SetTransactionCallback(func(tx *solana.Transaction, result *TransactionResult, rt *Runtime) {
		calls++
		if calls == 1 {
			_, err := rt.Airdrop(target, 42)
			assert.NoError(t, err)
		}
	})

	_, err := rt.Airdrop(newKeypair(t).PublicKey(), 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, uint64(42), rt.GetBalance(target))
}

func TestQuery_AccountsOwnedBy(t *testing.T) {
	rt := newTestRuntime(t)
	payer := fundedKeypair(t, rt, 100_000_000)
	program := newKeypair(t).PublicKey()

	for i := 0; i < 3; i++ {
		newAcct := newKeypair(t)
		instr := system.NewCreateAccountInstruction(rt.MinimumBalanceForRentExemption(8), 8, program, payer.PublicKey(), newAcct.PublicKey()).Build()
		_, err := rt.SendTransaction(signedTx(t, rt, []solana.Instruction{instr}, payer, newAcct))
		require.NoError(t, err)
	}

	owned := rt.GetProgramAccounts(program)
	require.Len(t, owned, 3)
	for idx, keyed := range owned {
		if idx > 0 {
			assert.Negative(t, bytes.Compare(owned[idx-1].Key[:], keyed.Key[:]), "ordered by address")
		}
		acct, ok := rt.GetAccount(keyed.Key)
		require.True(t, ok)
		assert.Equal(t, program, acct.Owner)
		assert.True(t, acct.Equal(&keyed.Account))
	}

	empty := rt.AccountsOwnedBy(newKeypair(t).PublicKey())
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestQuery_SetAccount(t *testing.T) {
	rt := newTestRuntime(t)
	var calls int
	rt.SetTransactionCallback(func(*solana.Transaction, *TransactionResult, *Runtime) { calls++ })

	key := newKeypair(t).PublicKey()
	rt.SetAccount(key, &accounts.Account{Lamports: 7, Owner: sealevel.SystemProgramAddr, Data: []byte{1}})
	assert.Equal(t, uint64(7), rt.GetBalance(key))
	assert.Equal(t, 0, calls)

	rt.SetAccount(key, &accounts.Account{})
	_, ok := rt.GetAccount(key)
	assert.False(t, ok)
}

func TestRuntime_Sysvars(t *testing.T) {
	rt := newTestRuntime(t)

	r, err := sealevel.ReadRentSysvar(rt.store)
	require.NoError(t, err)
	assert.Equal(t, rt.Config().Rent, r)

	es, err := sealevel.ReadEpochScheduleSysvar(rt.store)
	require.NoError(t, err)
	assert.Equal(t, sealevel.DefaultEpochSchedule(), es)

	fees, err := sealevel.ReadFeesSysvar(rt.store)
	require.NoError(t, err)
	assert.Equal(t, uint64(fee), fees.FeeCalculator.LamportsPerSignature)

	rbh, err := sealevel.ReadRecentBlockHashesSysvar(rt.store)
	require.NoError(t, err)
	require.Len(t, rbh, 1)
	assert.Equal(t, GenesisBlockhash, rbh[0].Blockhash)

	next, err := rt.ExpireBlockhash()
	require.NoError(t, err)
	rbh, err = sealevel.ReadRecentBlockHashesSysvar(rt.store)
	require.NoError(t, err)
	require.Len(t, rbh, 2)
	assert.Equal(t, next, rbh[0].Blockhash)
	assert.Equal(t, GenesisBlockhash, rbh[1].Blockhash)

	rt.WarpToSlot(1234)
	clock, err := sealevel.ReadClockSysvar(rt.store)
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), clock.Slot)
	assert.Equal(t, uint64(5), clock.Epoch)
	assert.Equal(t, uint64(6), clock.LeaderScheduleEpoch)

	meta, err := rt.Airdrop(newKeypair(t).PublicKey(), 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), meta.Slot)
}

func TestRuntime_BuiltinInvokesSystemProgram(t *testing.T) {
	programId := newKeypair(t).PublicKey()
	rt := newTestRuntime(t, WithBuiltin(programId, func(execCtx *sealevel.ExecutionCtx) error {
		txCtx := execCtx.TransactionContext
		instrCtx, err := txCtx.CurrentInstructionCtx()
		if err != nil {
			return err
		}
		from, err := txCtx.KeyOfAccountAtIndex(instrCtx.InstructionAccounts[0].IndexInTransaction)
		if err != nil {
			return err
		}
		to, err := txCtx.KeyOfAccountAtIndex(instrCtx.InstructionAccounts[1].IndexInTransaction)
		if err != nil {
			return err
		}

		data, err := sealevel.EncodeSystemInstruction(sealevel.SystemProgramInstrTypeTransfer, &sealevel.SystemInstrTransfer{Lamports: 300})
		if err != nil {
			return err
		}
		execCtx.Logf("forwarding %d lamports", 300)
		return execCtx.NativeInvoke(sealevel.Instruction{
			ProgramId: sealevel.SystemProgramAddr,
			Accounts: []sealevel.AccountMeta{
				{Pubkey: from, IsSigner: true, IsWritable: true},
				{Pubkey: to, IsWritable: true},
			},
			Data: data,
		}, nil)
	}))

	from := fundedKeypair(t, rt, 1_000_000)
	to := newKeypair(t).PublicKey()

	instr := solana.NewInstruction(programId, solana.AccountMetaSlice{
		solana.NewAccountMeta(from.PublicKey(), true, true),
		solana.NewAccountMeta(to, true, false),
		solana.NewAccountMeta(sealevel.SystemProgramAddr, false, false),
	}, nil)
	meta, err := rt.SendTransaction(signedTx(t, rt, []solana.Instruction{instr}, from))
	require.NoError(t, err)

	assert.Equal(t, uint64(300), rt.GetBalance(to))
	assert.Equal(t, uint64(1_000_000-fee-300), rt.GetBalance(from.PublicKey()))
	assert.Contains(t, meta.Logs, "Program log: forwarding 300 lamports")
	assert.Contains(t, meta.Logs, "Program 11111111111111111111111111111111 invoke [2]")
}

func TestRuntime_BuiltinCannotShadowNativePrograms(t *testing.T) {
	_, err := New(WithBuiltin(sealevel.SystemProgramAddr, func(*sealevel.ExecutionCtx) error { return nil }))
	assert.Error(t, err)
}

type countingLoader struct {
	programs map[solana.PublicKey]bool
	calls    int
}

func (l *countingLoader) Execute(programId solana.PublicKey, execCtx *sealevel.ExecutionCtx) error {
	l.calls++
	if !l.programs[programId] {
		return sealevel.InstrErrUnsupportedProgramId
	}
	return nil
}

func TestRuntime_ProgramLoader(t *testing.T) {
	known := newKeypair(t).PublicKey()
	loader := &countingLoader{programs: map[solana.PublicKey]bool{known: true}}
	rt := newTestRuntime(t, WithProgramLoader(loader))
	payer := fundedKeypair(t, rt, 1_000_000)

	_, err := rt.SendTransaction(signedTx(t, rt, []solana.Instruction{solana.NewInstruction(known, nil, []byte{1})}, payer))
	require.NoError(t, err)

	before := rt.StateHash()
	_, err = rt.SendTransaction(signedTx(t, rt, []solana.Instruction{solana.NewInstruction(newKeypair(t).PublicKey(), nil, nil)}, payer))
	assert.ErrorIs(t, err, sealevel.InstrErrUnsupportedProgramId)
	assert.Equal(t, before, rt.StateHash())
	assert.Equal(t, 2, loader.calls)
}

func TestRuntime_UnknownProgramWithoutLoader(t *testing.T) {
	rt := newTestRuntime(t)
	payer := fundedKeypair(t, rt, 1_000_000)

	_, err := rt.SendTransaction(signedTx(t, rt, []solana.Instruction{solana.NewInstruction(newKeypair(t).PublicKey(), nil, nil)}, payer))
	var ixErr *InstructionError
	require.True(t, errors.As(err, &ixErr))
	assert.Equal(t, 0, ixErr.Index)
	assert.ErrorIs(t, err, sealevel.InstrErrUnsupportedProgramId)
	assert.Equal(t, "InstructionError", ErrorKind(err))
}

func TestRuntime_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	rt := newTestRuntime(t, WithMetricsRegisterer(reg))
	assert.Equal(t, reg, rt.Metrics())

	from := fundedKeypair(t, rt, 1_000_000)
	tx := transferTx(t, rt, from, newKeypair(t).PublicKey(), 1)
	tx.Message.RecentBlockhash = solana.Hash{1}
	_, err := rt.SendTransaction(tx)
	require.Error(t, err)

	assert.Equal(t, float64(2), testutil.ToFloat64(rt.metrics.txsProcessed))
	assert.Equal(t, float64(1), testutil.ToFloat64(rt.metrics.txsFailed.WithLabelValues("BlockhashNotFound")))
	assert.Equal(t, float64(1), testutil.ToFloat64(rt.metrics.airdrops))
	assert.Equal(t, float64(fee), testutil.ToFloat64(rt.metrics.feesCollected))
	assert.Equal(t, float64(fee), testutil.ToFloat64(rt.metrics.feesBurned))

	count, err := testutil.GatherAndCount(reg, "litesvm_airdrops")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// a second runtime on the same registry collides
	_, err = New(WithMetricsRegisterer(reg))
	assert.Error(t, err)
}

func TestCallback_CannotAlterOutcome(t *testing.T) {
	rt := newTestRuntime(t)
	from := fundedKeypair(t, rt, 1_000_000)

	rt.SetTransactionCallback(func(tx *solana.Transaction, result *TransactionResult, rt *Runtime) {
		result.Meta.Fee = 0
		result.Meta.Logs[0] = "forged"
		result.Meta.Logs = append(result.Meta.Logs, "forged")
		result.Err = TxErrBlockhashNotFound
	})

	meta, err := rt.SendTransaction(transferTx(t, rt, from, newKeypair(t).PublicKey(), 100))
	require.NoError(t, err)
	assert.Equal(t, uint64(fee), meta.Fee)
	assert.NotContains(t, meta.Logs, "forged")

	result, ok := rt.GetTransaction(meta.Signature)
	require.True(t, ok)
	assert.NoError(t, result.Err)
	assert.Equal(t, uint64(fee), result.Meta.Fee)
	assert.Equal(t, meta.Logs, result.Meta.Logs)

	// lookups hand out copies too
	result.Meta.Fee = 1
	again, ok := rt.GetTransaction(meta.Signature)
	require.True(t, ok)
	assert.Equal(t, uint64(fee), again.Meta.Fee)
}

type loaderFunc func(programId solana.PublicKey, execCtx *sealevel.ExecutionCtx) error

func (fn loaderFunc) Execute(programId solana.PublicKey, execCtx *sealevel.ExecutionCtx) error {
	return fn(programId, execCtx)
}

func TestRuntime_ProgramLoaderState(t *testing.T) {
	programId := newKeypair(t).PublicKey()
	loader := loaderFunc(func(programId solana.PublicKey, execCtx *sealevel.ExecutionCtx) error {
		clock, err := sealevel.ReadClockSysvar(execCtx.Accounts)
		if err != nil {
			return err
		}

		txCtx := execCtx.TransactionContext
		instrCtx, err := txCtx.CurrentInstructionCtx()
		if err != nil {
			return err
		}
		acct, err := instrCtx.BorrowInstructionAccount(txCtx, 0)
		if err != nil {
			return err
		}
		defer acct.Drop()
		if err = acct.SetData([]byte{byte(clock.Slot)}); err != nil {
			return err
		}
		return execCtx.SetReturnData([]byte("done"))
	})
	rt := newTestRuntime(t, WithProgramLoader(loader))
	rt.WarpToSlot(7)

	// committed state is not writable from inside a program
	_, writable := any(committedView{store: rt.store}).(accounts.Accounts)
	assert.False(t, writable)

	payer := fundedKeypair(t, rt, 1_000_000)
	target := newKeypair(t).PublicKey()
	rt.SetAccount(target, &accounts.Account{Lamports: 1_000_000, Owner: programId, Data: []byte{0}})

	instr := solana.NewInstruction(programId, solana.AccountMetaSlice{solana.NewAccountMeta(target, true, false)}, nil)
	meta, err := rt.SendTransaction(signedTx(t, rt, []solana.Instruction{instr}, payer))
	require.NoError(t, err)

	acct, ok := rt.GetAccount(target)
	require.True(t, ok)
	assert.Equal(t, []byte{7}, acct.Data)
	assert.Equal(t, programId, meta.ReturnData.ProgramId)
	assert.Equal(t, []byte("done"), meta.ReturnData.Data)
}

func TestRuntime_ConfigIsCopied(t *testing.T) {
	noop := func(*sealevel.ExecutionCtx) error { return nil }
	first, second := newKeypair(t).PublicKey(), newKeypair(t).PublicKey()
	collector := newKeypair(t).PublicKey()

	rt := newTestRuntime(t, WithBuiltin(first, noop), WithFeeCollector(collector))

	derived, err := New(WithConfig(rt.Config()), WithBuiltin(second, noop))
	require.NoError(t, err)
	assert.Len(t, derived.Config().builtins, 2)
	assert.Len(t, rt.Config().builtins, 1)
	assert.NotContains(t, rt.builtins, second)

	cfg := rt.Config()
	*cfg.FeeCollector = newKeypair(t).PublicKey()
	assert.Equal(t, collector, *rt.Config().FeeCollector)
}
