package runtime

import (
	"errors"

	"github.com/gagliardetto/solana-go"
	"github.com/samber/lo"
	"go.firedancer.io/litesvm/pkg/accounts"
	"go.firedancer.io/litesvm/pkg/cu"
	"go.firedancer.io/litesvm/pkg/fees"
	"go.firedancer.io/litesvm/pkg/rent"
	"go.firedancer.io/litesvm/pkg/safemath"
	"go.firedancer.io/litesvm/pkg/sealevel"
	"k8s.io/klog/v2"
)

// TransactionMetadata describes a processed transaction. Logs and compute
// units are only present when instructions were executed.
type TransactionMetadata struct {
	Signature            solana.Signature
	Slot                 uint64
	Fee                  uint64
	ComputeUnitsConsumed uint64
	Logs                 []string
	ReturnData           ReturnData
}

// ReturnData is the last return data set by a program during execution.
// ProgramId is zero when no program set any.
type ReturnData struct {
	ProgramId solana.PublicKey
	Data      []byte
}

func (m *TransactionMetadata) Clone() *TransactionMetadata {
	c := *m
	if m.Logs != nil {
		c.Logs = append([]string(nil), m.Logs...)
	}
	if m.ReturnData.Data != nil {
		c.ReturnData.Data = append([]byte(nil), m.ReturnData.Data...)
	}
	return &c
}

// TransactionResult is the outcome of one transaction. Err is nil on
// success, a TxErr value for a rejected transaction, or an
// *InstructionError when execution failed.
type TransactionResult struct {
	Meta *TransactionMetadata
	Err  error
}

// Clone returns a deep copy of the result. Errors are immutable values and
// are shared.
func (res *TransactionResult) Clone() *TransactionResult {
	c := &TransactionResult{Err: res.Err}
	if res.Meta != nil {
		c.Meta = res.Meta.Clone()
	}
	return c
}

// processOpts select the pipeline variant. Simulation runs everything but
// the commit.
type processOpts struct {
	commit    bool
	feeExempt bool
}

// SendTransaction validates, executes and commits tx. On failure nothing is
// committed: not even the fee is charged. The returned metadata is never nil.
func (r *Runtime) SendTransaction(tx *solana.Transaction) (*TransactionMetadata, error) {
	return r.send(tx, processOpts{commit: true})
}

// SimulateTransaction runs tx through the full pipeline without committing
// it. The history, the metrics and the callback are untouched.
func (r *Runtime) SimulateTransaction(tx *solana.Transaction) (*TransactionMetadata, error) {
	return r.process(tx, processOpts{})
}

func (r *Runtime) send(tx *solana.Transaction, opts processOpts) (*TransactionMetadata, error) {
	meta, err := r.process(tx, opts)

	result := &TransactionResult{Meta: meta, Err: err}
	if err == nil {
		r.history.Add(meta.Signature, result.Clone())
	}

	r.metrics.txsProcessed.Inc()
	if err != nil {
		r.metrics.txsFailed.WithLabelValues(ErrorKind(err)).Inc()
		klog.V(2).Infof("tx %s failed: %s", meta.Signature, err)
	}

	r.notify(tx, result.Clone())
	return meta, err
}

func (r *Runtime) process(tx *solana.Transaction, opts processOpts) (*TransactionMetadata, error) {
	meta := &TransactionMetadata{Slot: r.slot}
	if len(tx.Signatures) > 0 {
		meta.Signature = tx.Signatures[0]
	}

	err := sanitize(tx)
	if err != nil {
		klog.V(2).Infof("tx %s failed sanitization: %s", meta.Signature, err)
		return meta, TxErrSanitizeFailure
	}

	if r.cfg.BlockhashCheck && !r.blockhashes.IsRecent(tx.Message.RecentBlockhash) {
		return meta, TxErrBlockhashNotFound
	}

	if r.history.Contains(meta.Signature) {
		return meta, TxErrAlreadyProcessed
	}

	if r.cfg.SigVerify {
		err = r.verifier.Verify(tx)
		if err != nil {
			klog.V(2).Infof("tx %s: %s", meta.Signature, err)
			return meta, TxErrSignatureFailure
		}
	}

	instrs := make([]sealevel.Instruction, len(tx.Message.Instructions))
	for idx, compiled := range tx.Message.Instructions {
		instrs[idx], err = sealevel.NewInstructionFromCompiled(&tx.Message, compiled)
		if err != nil {
			return meta, TxErrSanitizeFailure
		}
	}

	limits, idx, err := sealevel.ComputeBudgetExecuteInstructions(instrs, r.cfg.ComputeUnitLimit)
	if err != nil {
		return meta, &InstructionError{Index: idx, Err: err}
	}

	if !opts.feeExempt {
		numSigners := uint64(tx.Message.Header.NumRequiredSignatures)
		meta.Fee = fees.TotalFee(numSigners, r.cfg.LamportsPerSignature, limits.ComputeUnitPrice, limits.ComputeUnitLimit)
	}

	keys := tx.Message.AccountKeys
	txAccts := r.loadAccounts(keys)

	err = fees.ApplyTxFee(txAccts[0], meta.Fee)
	if err != nil {
		return meta, TxErrInsufficientFundsForFee
	}

	writable, err := writableIndices(tx)
	if err != nil {
		return meta, TxErrSanitizeFailure
	}

	var preRentStates []*rent.RentStateInfo
	if r.cfg.RentStateCheck {
		preRentStates = r.rentStates(txAccts, writable)
	}

	var log sealevel.LogRecorder
	execCtx := &sealevel.ExecutionCtx{
		Log:                &log,
		Accounts:           committedView{store: r.store},
		TransactionContext: sealevel.NewTransactionCtx(sealevel.NewTransactionAccounts(keys, txAccts)),
		ComputeMeter:       cu.NewComputeMeter(uint64(limits.ComputeUnitLimit)),
		Builtins:           r.builtins,
		ProgramLoader:      r.loader,
	}

	var instrErr error
	for idx, instr := range instrs {
		err = execCtx.ExecuteTransactionInstruction(instr)
		if err != nil {
			instrErr = &InstructionError{Index: idx, Err: err}
			break
		}
	}

	meta.Logs = log.Logs
	meta.ComputeUnitsConsumed = execCtx.ComputeMeter.Used()
	meta.ReturnData.ProgramId, meta.ReturnData.Data = execCtx.TransactionContext.GetReturnData()
	klog.V(2).Infof("tx %s - compute units consumed: %d", meta.Signature, meta.ComputeUnitsConsumed)

	if instrErr != nil {
		return meta, instrErr
	}

	if r.cfg.RentStateCheck {
		err = rent.VerifyRentStateChanges(preRentStates, r.rentStates(txAccts, writable))
		var rentErr *rent.RentStateError
		if errors.As(err, &rentErr) {
			return meta, &TxErrInsufficientFundsForRent{AccountIndex: rentErr.AccountIndex}
		}
	}

	if !opts.commit {
		return meta, nil
	}

	r.commit(keys, txAccts, writable)
	r.distributeFee(meta.Fee)
	klog.V(2).Infof("tx %s committed, fee %d", meta.Signature, meta.Fee)
	return meta, nil
}

// sanitize rejects transactions that are structurally invalid regardless of
// state.
func sanitize(tx *solana.Transaction) error {
	msg := &tx.Message
	header := msg.Header

	if header.NumRequiredSignatures == 0 {
		return errors.New("no required signatures")
	}
	if len(tx.Signatures) != int(header.NumRequiredSignatures) {
		return errors.New("signature count does not match required signatures")
	}
	if header.NumReadonlySignedAccounts >= header.NumRequiredSignatures {
		return errors.New("fee payer is readonly")
	}
	if int(header.NumRequiredSignatures)+int(header.NumReadonlyUnsignedAccounts) > len(msg.AccountKeys) {
		return errors.New("header counts exceed account keys")
	}
	if len(msg.AddressTableLookups) > 0 {
		return errors.New("address table lookups are not supported")
	}
	if len(lo.Uniq(msg.AccountKeys)) != len(msg.AccountKeys) {
		return errors.New("duplicate account keys")
	}

	for _, instr := range msg.Instructions {
		// the fee payer cannot be invoked
		if instr.ProgramIDIndex == 0 || int(instr.ProgramIDIndex) >= len(msg.AccountKeys) {
			return errors.New("invalid program index")
		}
		for _, acctIdx := range instr.Accounts {
			if int(acctIdx) >= len(msg.AccountKeys) {
				return errors.New("invalid account index")
			}
		}
	}
	return nil
}

// writableIndices lists the message accounts a successful transaction may
// write back. Invoked programs are demoted to readonly.
func writableIndices(tx *solana.Transaction) ([]int, error) {
	programIds := lo.Map(tx.Message.Instructions, func(instr solana.CompiledInstruction, _ int) solana.PublicKey {
		return tx.Message.AccountKeys[instr.ProgramIDIndex]
	})

	var writable []int
	for idx, key := range tx.Message.AccountKeys {
		isWritable, err := tx.Message.IsWritable(key)
		if err != nil {
			return nil, err
		}
		if isWritable && !lo.Contains(programIds, key) {
			writable = append(writable, idx)
		}
	}
	return writable, nil
}

// loadAccounts copies the message accounts out of the store. Missing
// accounts load as empty system accounts.
func (r *Runtime) loadAccounts(keys []solana.PublicKey) []*accounts.Account {
	txAccts := make([]*accounts.Account, len(keys))
	for idx, key := range keys {
		acct, ok := r.store.GetAccount(key)
		if !ok {
			acct = &accounts.Account{Owner: sealevel.SystemProgramAddr}
		}
		txAccts[idx] = acct
	}
	return txAccts
}

func (r *Runtime) rentStates(txAccts []*accounts.Account, writable []int) []*rent.RentStateInfo {
	states := make([]*rent.RentStateInfo, len(txAccts))
	for _, idx := range writable {
		states[idx] = rent.NewRentStateInfo(r.cfg.Rent, txAccts[idx])
	}
	return states
}

func (r *Runtime) commit(keys []solana.PublicKey, txAccts []*accounts.Account, writable []int) {
	for _, idx := range writable {
		key, acct := keys[idx], txAccts[idx]
		if _, existed := r.store.GetAccount(key); existed && acct.Lamports == 0 {
			r.metrics.accountsPruned.Inc()
			klog.V(2).Infof("account %s pruned", key)
		}
		r.store.SetAccount(key, acct)
	}
}

// distributeFee burns part of a committed fee and credits the rest to the
// fee collector. Without a collector the whole fee is burned.
func (r *Runtime) distributeFee(fee uint64) {
	burned, collected := fees.SplitFees(fee, r.cfg.Rent.BurnPercent)
	if r.cfg.FeeCollector == nil {
		burned, collected = fee, 0
	}
	r.metrics.feesCollected.Add(float64(fee))
	r.metrics.feesBurned.Add(float64(burned))

	if collected == 0 {
		return
	}

	collector, ok := r.store.GetAccount(*r.cfg.FeeCollector)
	if !ok {
		collector = &accounts.Account{Owner: sealevel.SystemProgramAddr}
	}
	collector.Lamports = safemath.SaturatingAddU64(collector.Lamports, collected)
	r.store.SetAccount(*r.cfg.FeeCollector, collector)
}

// committedView exposes committed state to programs during execution.
// Programs write through BorrowedAccount into the transaction's working copy.
type committedView struct {
	store *accounts.Store
}

func (v committedView) GetAccount(pubkey solana.PublicKey) (*accounts.Account, bool) {
	return v.store.GetAccount(pubkey)
}
