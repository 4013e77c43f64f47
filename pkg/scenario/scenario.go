// Package scenario drives a runtime from a declarative YAML description:
// a config block, a set of seed accounts and an ordered list of steps.
package scenario

import (
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"go.firedancer.io/litesvm/pkg/accounts"
	"go.firedancer.io/litesvm/pkg/runtime"
	"gopkg.in/yaml.v3"
)

type Scenario struct {
	Config   Config    `yaml:"config"`
	Accounts []Account `yaml:"accounts"`
	Steps    []Step    `yaml:"steps"`
}

// Config mirrors runtime.Config. Unset fields keep the runtime defaults.
type Config struct {
	LamportsPerSignature *uint64 `yaml:"lamports_per_signature"`
	BlockhashWindow      *int    `yaml:"blockhash_window"`
	HistoryCapacity      *int    `yaml:"history_capacity"`
	SigVerify            *bool   `yaml:"sig_verify"`
	BlockhashCheck       *bool   `yaml:"blockhash_check"`
	FeeExemptAirdrops    *bool   `yaml:"fee_exempt_airdrops"`
	RentStateCheck       *bool   `yaml:"rent_state_check"`
	ComputeUnitLimit     *uint32 `yaml:"compute_unit_limit"`
	FaucetLamports       *uint64 `yaml:"faucet_lamports"`
	FeeCollector         string  `yaml:"fee_collector"`
}

// Account seeds the store before the first step. Accounts without an
// address get a fresh keypair and may sign steps under their name.
type Account struct {
	Name       string `yaml:"name"`
	Address    string `yaml:"address"`
	Lamports   uint64 `yaml:"lamports"`
	Owner      string `yaml:"owner"`
	Data       string `yaml:"data"`
	Space      uint64 `yaml:"space"`
	Executable bool   `yaml:"executable"`
}

type Op string

const (
	OpAirdrop         Op = "airdrop"
	OpTransfer        Op = "transfer"
	OpCreateAccount   Op = "create_account"
	OpAllocate        Op = "allocate"
	OpAssign          Op = "assign"
	OpExpireBlockhash Op = "expire_blockhash"
	OpWarp            Op = "warp"
)

// Step is one action against the runtime. Which fields apply depends on Op.
// Expect, when set, is the error kind the step must fail with; "ok" asserts
// success. For allocate and assign, From optionally pays the fee instead of
// the account itself.
type Step struct {
	Op       Op     `yaml:"op"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
	Account  string `yaml:"account"`
	Owner    string `yaml:"owner"`
	Lamports uint64 `yaml:"lamports"`
	Space    uint64 `yaml:"space"`
	Slot     uint64 `yaml:"slot"`
	Expect   string `yaml:"expect"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if err := sc.validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (sc *Scenario) validate() error {
	seen := make(map[string]bool)
	for idx, acct := range sc.Accounts {
		if acct.Name == "" {
			return fmt.Errorf("account %d: missing name", idx)
		}
		if seen[acct.Name] {
			return fmt.Errorf("account %d: duplicate name %q", idx, acct.Name)
		}
		seen[acct.Name] = true
		if acct.Data != "" && acct.Space != 0 {
			return fmt.Errorf("account %q: data and space are mutually exclusive", acct.Name)
		}
	}

	for idx, step := range sc.Steps {
		var missing string
		switch step.Op {
		case OpAirdrop:
			if step.To == "" {
				missing = "to"
			}
		case OpTransfer:
			if step.From == "" || step.To == "" {
				missing = "from/to"
			}
		case OpCreateAccount:
			if step.From == "" || step.Account == "" {
				missing = "from/account"
			}
		case OpAllocate:
			if step.Account == "" {
				missing = "account"
			}
		case OpAssign:
			if step.Account == "" || step.Owner == "" {
				missing = "account/owner"
			}
		case OpExpireBlockhash, OpWarp:
		default:
			return fmt.Errorf("step %d: unknown op %q", idx, step.Op)
		}
		if missing != "" {
			return fmt.Errorf("step %d (%s): missing %s", idx, step.Op, missing)
		}
	}
	return nil
}

// Options translates the config block into runtime options.
func (c *Config) Options() ([]runtime.Option, error) {
	var opts []runtime.Option
	if c.LamportsPerSignature != nil {
		opts = append(opts, runtime.WithLamportsPerSignature(*c.LamportsPerSignature))
	}
	if c.BlockhashWindow != nil {
		opts = append(opts, runtime.WithBlockhashWindow(*c.BlockhashWindow))
	}
	if c.HistoryCapacity != nil {
		opts = append(opts, runtime.WithTransactionHistory(*c.HistoryCapacity))
	}
	if c.SigVerify != nil {
		opts = append(opts, runtime.WithSigVerify(*c.SigVerify))
	}
	if c.BlockhashCheck != nil {
		opts = append(opts, runtime.WithBlockhashCheck(*c.BlockhashCheck))
	}
	if c.FeeExemptAirdrops != nil {
		opts = append(opts, runtime.WithFeeExemptAirdrops(*c.FeeExemptAirdrops))
	}
	if c.RentStateCheck != nil {
		opts = append(opts, runtime.WithRentStateCheck(*c.RentStateCheck))
	}
	if c.ComputeUnitLimit != nil {
		opts = append(opts, runtime.WithComputeUnitLimit(*c.ComputeUnitLimit))
	}
	if c.FaucetLamports != nil {
		opts = append(opts, runtime.WithFaucetLamports(*c.FaucetLamports))
	}
	if c.FeeCollector != "" {
		collector, err := solana.PublicKeyFromBase58(c.FeeCollector)
		if err != nil {
			return nil, fmt.Errorf("fee_collector: %w", err)
		}
		opts = append(opts, runtime.WithFeeCollector(collector))
	}
	return opts, nil
}

func (a *Account) build(owner solana.PublicKey) (*accounts.Account, error) {
	acct := accounts.NewAccount(a.Lamports, a.Space, owner)
	acct.Executable = a.Executable
	if a.Data != "" {
		data, err := base58.Decode(a.Data)
		if err != nil {
			return nil, fmt.Errorf("account %q: data: %w", a.Name, err)
		}
		acct.Data = data
	}
	return acct, nil
}
