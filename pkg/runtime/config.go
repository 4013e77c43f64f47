package runtime

import (
	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"go.firedancer.io/litesvm/pkg/fees"
	"go.firedancer.io/litesvm/pkg/rent"
	"go.firedancer.io/litesvm/pkg/sealevel"
)

const (
	DefaultBlockhashWindow = 150
	DefaultHistoryCapacity = 10000
	LamportsPerSol         = 1_000_000_000
	DefaultFaucetLamports  = 1_000_000 * LamportsPerSol
)

// Config holds the economic parameters and pipeline toggles of a runtime.
type Config struct {
	LamportsPerSignature uint64
	Rent                 rent.Rent
	EpochSchedule        sealevel.SysvarEpochSchedule

	// BlockhashWindow is how many of the most recently issued blockhashes
	// are accepted.
	BlockhashWindow int

	// HistoryCapacity bounds the number of processed signatures remembered
	// for replay protection. Zero disables replay protection.
	HistoryCapacity int

	SigVerify         bool
	BlockhashCheck    bool
	FeeExemptAirdrops bool
	RentStateCheck    bool

	// ComputeUnitLimit is the default budget granted per instruction when a
	// transaction does not request one.
	ComputeUnitLimit uint32

	FaucetLamports uint64

	// FeeCollector, when set, receives the share of each fee that is not
	// burned.
	FeeCollector *solana.PublicKey

	callback    TransactionCallback
	verifier    SignatureVerifier
	blockhashes BlockhashSource
	loader      sealevel.ProgramLoader
	builtins    map[solana.PublicKey]sealevel.Builtin
	registerer  prometheus.Registerer
}

func DefaultConfig() Config {
	return Config{
		LamportsPerSignature: fees.DefaultLamportsPerSignature,
		Rent:                 rent.DefaultRent(),
		EpochSchedule:        sealevel.DefaultEpochSchedule(),
		BlockhashWindow:      DefaultBlockhashWindow,
		HistoryCapacity:      DefaultHistoryCapacity,
		SigVerify:            true,
		BlockhashCheck:       true,
		ComputeUnitLimit:     sealevel.DefaultInstructionComputeUnitLimit,
		FaucetLamports:       DefaultFaucetLamports,
	}
}

// Option is a function applying a change to the runtime config.
type Option func(*Config)

// WithConfig replaces the whole config. Options given after it still apply.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg.clone()
	}
}

// clone copies cfg so that options applied to the copy leave cfg intact.
func (cfg Config) clone() Config {
	c := cfg
	if cfg.builtins != nil {
		c.builtins = lo.Assign(cfg.builtins)
	}
	if cfg.FeeCollector != nil {
		collector := *cfg.FeeCollector
		c.FeeCollector = &collector
	}
	return c
}

func WithLamportsPerSignature(lamports uint64) Option {
	return func(c *Config) {
		c.LamportsPerSignature = lamports
	}
}

func WithRent(r rent.Rent) Option {
	return func(c *Config) {
		c.Rent = r
	}
}

// WithEpochSchedule sets the schedule used to derive the clock epoch when
// warping.
func WithEpochSchedule(es sealevel.SysvarEpochSchedule) Option {
	return func(cfg *Config) {
		cfg.EpochSchedule = es
	}
}

// WithBlockhashWindow sets how many recent blockhashes stay valid.
func WithBlockhashWindow(window int) Option {
	return func(c *Config) {
		c.BlockhashWindow = window
	}
}

// WithSigVerify toggles ed25519 verification of transaction signatures.
func WithSigVerify(enabled bool) Option {
	return func(c *Config) {
		c.SigVerify = enabled
	}
}

// WithBlockhashCheck toggles rejection of transactions whose recent
// blockhash is unknown or expired.
func WithBlockhashCheck(enabled bool) Option {
	return func(c *Config) {
		c.BlockhashCheck = enabled
	}
}

func WithTransactionHistory(capacity int) Option {
	return func(c *Config) {
		c.HistoryCapacity = capacity
	}
}

// WithFeeExemptAirdrops makes airdrops free for the faucet.
func WithFeeExemptAirdrops(enabled bool) Option {
	return func(c *Config) {
		c.FeeExemptAirdrops = enabled
	}
}

// WithRentStateCheck rejects transactions that leave a writable account
// rent paying when it was not before.
func WithRentStateCheck(enabled bool) Option {
	return func(c *Config) {
		c.RentStateCheck = enabled
	}
}

func WithComputeUnitLimit(units uint32) Option {
	return func(c *Config) {
		c.ComputeUnitLimit = units
	}
}

func WithFaucetLamports(lamports uint64) Option {
	return func(c *Config) {
		c.FaucetLamports = lamports
	}
}

func WithFeeCollector(collector solana.PublicKey) Option {
	return func(c *Config) {
		c.FeeCollector = &collector
	}
}

func WithTransactionCallback(cb TransactionCallback) Option {
	return func(c *Config) {
		c.callback = cb
	}
}

func WithSignatureVerifier(verifier SignatureVerifier) Option {
	return func(c *Config) {
		c.verifier = verifier
	}
}

func WithBlockhashSource(source BlockhashSource) Option {
	return func(c *Config) {
		c.blockhashes = source
	}
}

// WithProgramLoader sets the collaborator that executes programs other than
// the system program, the compute budget program and registered builtins.
func WithProgramLoader(loader sealevel.ProgramLoader) Option {
	return func(c *Config) {
		c.loader = loader
	}
}

// WithBuiltin registers a native program under programId.
func WithBuiltin(programId solana.PublicKey, builtin sealevel.Builtin) Option {
	return func(c *Config) {
		if c.builtins == nil {
			c.builtins = make(map[solana.PublicKey]sealevel.Builtin)
		}
		c.builtins[programId] = builtin
	}
}

// WithMetricsRegisterer registers the runtime's metrics on reg instead of a
// private registry.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(c *Config) {
		c.registerer = reg
	}
}
