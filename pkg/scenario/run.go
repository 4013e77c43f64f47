package scenario

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/samber/lo"
	"go.firedancer.io/litesvm/pkg/runtime"
	"go.firedancer.io/litesvm/pkg/sealevel"
	"k8s.io/klog/v2"
)

// ExpectOK asserts that a step succeeds.
const ExpectOK = "ok"

type StepResult struct {
	Index        int
	Op           Op
	Signature    solana.Signature
	Fee          uint64
	ComputeUnits uint64
	Logs         []string
	Err          error

	// Unexpected is set when the outcome contradicts the step's Expect.
	Unexpected bool
}

func (s *StepResult) Status() string {
	if s.Err == nil {
		return ExpectOK
	}
	return runtime.ErrorKind(s.Err)
}

type AccountState struct {
	Name       string
	Address    solana.PublicKey
	Lamports   uint64
	Owner      solana.PublicKey
	DataLen    int
	Executable bool
	Exists     bool
}

type Report struct {
	Steps     []StepResult
	Accounts  []AccountState
	StateHash [32]byte
}

// Unexpected counts the steps whose outcome did not match their expectation.
func (r *Report) Unexpected() int {
	return lo.CountBy(r.Steps, func(s StepResult) bool { return s.Unexpected })
}

// Runner executes a scenario against a fresh runtime.
type Runner struct {
	sc      *Scenario
	rt      *runtime.Runtime
	signers map[string]solana.PrivateKey
	addrs   map[string]solana.PublicKey
	order   []string
	onStep  func(StepResult)
}

// NewRunner builds the runtime from the scenario config and seeds its
// accounts. Extra options are applied after the config block.
func NewRunner(sc *Scenario, extra ...runtime.Option) (*Runner, error) {
	opts, err := sc.Config.Options()
	if err != nil {
		return nil, err
	}
	rt, err := runtime.New(append(opts, extra...)...)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		sc:      sc,
		rt:      rt,
		signers: make(map[string]solana.PrivateKey),
		addrs:   make(map[string]solana.PublicKey),
	}
	if err := r.seed(); err != nil {
		return nil, err
	}
	return r, nil
}

// OnStep registers fn to be called after every step, in order.
func (r *Runner) OnStep(fn func(StepResult)) {
	r.onStep = fn
}

func (r *Runner) Runtime() *runtime.Runtime {
	return r.rt
}

// Address returns the address a scenario name resolved to.
func (r *Runner) Address(name string) (solana.PublicKey, bool) {
	addr, ok := r.addrs[name]
	return addr, ok
}

func (r *Runner) seed() error {
	for _, decl := range r.sc.Accounts {
		if decl.Address != "" {
			addr, err := solana.PublicKeyFromBase58(decl.Address)
			if err != nil {
				return fmt.Errorf("account %q: address: %w", decl.Name, err)
			}
			r.register(decl.Name, addr)
		} else if _, err := r.newSigner(decl.Name); err != nil {
			return err
		}

		owner := sealevel.SystemProgramAddr
		if decl.Owner != "" {
			var err error
			if owner, err = r.resolve(decl.Owner); err != nil {
				return err
			}
		}

		acct, err := decl.build(owner)
		if err != nil {
			return err
		}
		r.rt.SetAccount(r.addrs[decl.Name], acct)
		klog.V(2).Infof("seeded %s (%s) with %d lamports", decl.Name, r.addrs[decl.Name], acct.Lamports)
	}
	return nil
}

func (r *Runner) register(name string, addr solana.PublicKey) {
	if _, ok := r.addrs[name]; !ok {
		r.order = append(r.order, name)
	}
	r.addrs[name] = addr
}

func (r *Runner) newSigner(name string) (solana.PrivateKey, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generating keypair for %q: %w", name, err)
	}
	r.signers[name] = key
	r.register(name, key.PublicKey())
	return key, nil
}

// resolve maps a scenario name to an address. Names that are neither
// declared nor valid base58 addresses get a fresh keypair.
func (r *Runner) resolve(name string) (solana.PublicKey, error) {
	if addr, ok := r.addrs[name]; ok {
		return addr, nil
	}
	if addr, err := solana.PublicKeyFromBase58(name); err == nil {
		return addr, nil
	}
	key, err := r.newSigner(name)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return key.PublicKey(), nil
}

func (r *Runner) signer(name string) (solana.PrivateKey, error) {
	if key, ok := r.signers[name]; ok {
		return key, nil
	}
	if _, ok := r.addrs[name]; ok {
		return nil, fmt.Errorf("%q has a fixed address and cannot sign", name)
	}
	if _, err := solana.PublicKeyFromBase58(name); err == nil {
		return nil, fmt.Errorf("%q is a raw address and cannot sign", name)
	}
	return r.newSigner(name)
}

// Run executes every step in order. Failed transactions are recorded in the
// report; only malformed steps abort the run.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	report := &Report{Steps: make([]StepResult, 0, len(r.sc.Steps))}

	for idx, step := range r.sc.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := r.step(idx, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", idx, step.Op, err)
		}
		switch step.Expect {
		case "":
		case ExpectOK:
			result.Unexpected = result.Err != nil
		default:
			result.Unexpected = runtime.ErrorKind(result.Err) != step.Expect
		}

		if result.Err != nil {
			klog.V(1).Infof("step %d (%s) failed: %s", idx, step.Op, result.Err)
		}
		report.Steps = append(report.Steps, *result)
		if r.onStep != nil {
			r.onStep(*result)
		}
	}

	for _, name := range r.order {
		addr := r.addrs[name]
		state := AccountState{Name: name, Address: addr}
		if acct, ok := r.rt.GetAccount(addr); ok {
			state.Exists = true
			state.Lamports = acct.Lamports
			state.Owner = acct.Owner
			state.DataLen = len(acct.Data)
			state.Executable = acct.Executable
		}
		report.Accounts = append(report.Accounts, state)
	}
	report.StateHash = r.rt.StateHash()
	return report, nil
}

func (r *Runner) step(idx int, step Step) (*StepResult, error) {
	result := &StepResult{Index: idx, Op: step.Op}

	var (
		meta *runtime.TransactionMetadata
		err  error
	)
	switch step.Op {
	case OpExpireBlockhash:
		hash, err := r.rt.ExpireBlockhash()
		if err != nil {
			return nil, err
		}
		klog.V(2).Infof("step %d: latest blockhash %s", idx, hash)
		return result, nil

	case OpWarp:
		r.rt.WarpToSlot(step.Slot)
		return result, nil

	case OpAirdrop:
		var to solana.PublicKey
		if to, err = r.resolve(step.To); err != nil {
			return nil, err
		}
		meta, err = r.rt.Airdrop(to, step.Lamports)

	default:
		var (
			instrs  []solana.Instruction
			signers []solana.PrivateKey
		)
		if instrs, signers, err = r.instructions(step); err != nil {
			return nil, err
		}
		meta, err = r.send(instrs, signers...)
	}
	if meta == nil {
		return nil, err
	}

	result.Signature = meta.Signature
	result.Fee = meta.Fee
	result.ComputeUnits = meta.ComputeUnitsConsumed
	result.Logs = meta.Logs
	result.Err = err
	return result, nil
}

// instructions builds the system program instruction for a transaction
// step, along with its signers. The payer signs first.
func (r *Runner) instructions(step Step) ([]solana.Instruction, []solana.PrivateKey, error) {
	switch step.Op {
	case OpTransfer:
		from, err := r.signer(step.From)
		if err != nil {
			return nil, nil, err
		}
		to, err := r.resolve(step.To)
		if err != nil {
			return nil, nil, err
		}
		instr := system.NewTransferInstruction(step.Lamports, from.PublicKey(), to).Build()
		return []solana.Instruction{instr}, []solana.PrivateKey{from}, nil

	case OpCreateAccount:
		from, err := r.signer(step.From)
		if err != nil {
			return nil, nil, err
		}
		newAcct, err := r.signer(step.Account)
		if err != nil {
			return nil, nil, err
		}
		owner := sealevel.SystemProgramAddr
		if step.Owner != "" {
			if owner, err = r.resolve(step.Owner); err != nil {
				return nil, nil, err
			}
		}
		lamports := step.Lamports
		if lamports == 0 {
			lamports = r.rt.MinimumBalanceForRentExemption(step.Space)
		}
		instr := system.NewCreateAccountInstruction(lamports, step.Space, owner, from.PublicKey(), newAcct.PublicKey()).Build()
		return []solana.Instruction{instr}, []solana.PrivateKey{from, newAcct}, nil

	case OpAllocate:
		acct, err := r.signer(step.Account)
		if err != nil {
			return nil, nil, err
		}
		signers, err := r.withPayer(step.From, acct)
		if err != nil {
			return nil, nil, err
		}
		instr := system.NewAllocateInstruction(step.Space, acct.PublicKey()).Build()
		return []solana.Instruction{instr}, signers, nil

	case OpAssign:
		acct, err := r.signer(step.Account)
		if err != nil {
			return nil, nil, err
		}
		owner, err := r.resolve(step.Owner)
		if err != nil {
			return nil, nil, err
		}
		signers, err := r.withPayer(step.From, acct)
		if err != nil {
			return nil, nil, err
		}
		instr := system.NewAssignInstruction(owner, acct.PublicKey()).Build()
		return []solana.Instruction{instr}, signers, nil
	}
	return nil, nil, fmt.Errorf("unknown op %q", step.Op)
}

// withPayer puts the optional payer ahead of acct. Without one, acct pays
// its own fee.
func (r *Runner) withPayer(payer string, acct solana.PrivateKey) ([]solana.PrivateKey, error) {
	if payer == "" {
		return []solana.PrivateKey{acct}, nil
	}
	key, err := r.signer(payer)
	if err != nil {
		return nil, err
	}
	if key.PublicKey() == acct.PublicKey() {
		return []solana.PrivateKey{acct}, nil
	}
	return []solana.PrivateKey{key, acct}, nil
}

// send builds, signs and submits a transaction paid for by the first signer.
// A nil metadata means the transaction could not be built.
func (r *Runner) send(instrs []solana.Instruction, signers ...solana.PrivateKey) (*runtime.TransactionMetadata, error) {
	tx, err := solana.NewTransaction(instrs, r.rt.LatestBlockhash(), solana.TransactionPayer(signers[0].PublicKey()))
	if err != nil {
		return nil, err
	}
	_, err = tx.Sign(func(pubkey solana.PublicKey) *solana.PrivateKey {
		for idx := range signers {
			if signers[idx].PublicKey() == pubkey {
				return &signers[idx]
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.rt.SendTransaction(tx)
}
