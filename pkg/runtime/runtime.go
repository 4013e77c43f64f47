package runtime

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"go.firedancer.io/litesvm/pkg/accounts"
	"go.firedancer.io/litesvm/pkg/sealevel"
	"k8s.io/klog/v2"
)

// Runtime executes transactions against an in-memory account store.
//
// A Runtime is not safe for concurrent use. Callers sharing one instance
// across goroutines must serialize access themselves.
type Runtime struct {
	cfg Config

	store       *accounts.Store
	blockhashes BlockhashSource
	history     *TransactionHistory
	verifier    SignatureVerifier
	builtins    map[solana.PublicKey]sealevel.Builtin
	loader      sealevel.ProgramLoader
	callback    TransactionCallback

	faucet solana.PrivateKey
	slot   uint64

	registerer prometheus.Registerer
	metrics    *runtimeMetrics
}

// New creates a runtime from the default config with opts applied. The
// faucet account and the sysvars are seeded into the store.
func New(opts ...Option) (*Runtime, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &Runtime{
		cfg:         cfg,
		store:       accounts.NewStore(),
		blockhashes: cfg.blockhashes,
		history:     NewTransactionHistory(cfg.HistoryCapacity),
		verifier:    cfg.verifier,
		builtins:    make(map[solana.PublicKey]sealevel.Builtin, len(cfg.builtins)),
		loader:      cfg.loader,
		callback:    cfg.callback,
		registerer:  cfg.registerer,
	}

	if r.blockhashes == nil {
		r.blockhashes = NewBlockhashQueue(cfg.BlockhashWindow)
	}
	if r.verifier == nil {
		r.verifier = Ed25519Verifier{}
	}
	if r.registerer == nil {
		r.registerer = prometheus.NewRegistry()
	}
	for programId, builtin := range cfg.builtins {
		if sealevel.IsBuiltinProgram(programId) {
			return nil, fmt.Errorf("builtin %s shadows a native program", programId)
		}
		r.builtins[programId] = builtin
	}

	m, err := newMetrics(r.registerer)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}
	r.metrics = m

	faucet, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generating faucet keypair: %w", err)
	}
	r.faucet = faucet
	r.store.SetAccount(faucet.PublicKey(), &accounts.Account{Lamports: cfg.FaucetLamports, Owner: sealevel.SystemProgramAddr})

	sealevel.WriteRentSysvar(r.store, cfg.Rent)
	sealevel.WriteEpochScheduleSysvar(r.store, cfg.EpochSchedule, cfg.Rent)
	sealevel.WriteFeesSysvar(r.store, sealevel.SysvarFees{FeeCalculator: sealevel.FeeCalculator{LamportsPerSignature: cfg.LamportsPerSignature}}, cfg.Rent)
	sealevel.WriteClockSysvar(r.store, sealevel.SysvarClock{LeaderScheduleEpoch: cfg.EpochSchedule.GetLeaderScheduleEpoch(0)}, cfg.Rent)
	r.writeRecentBlockhashes()

	klog.V(2).Infof("runtime created, faucet %s, latest blockhash %s", faucet.PublicKey(), r.blockhashes.LatestBlockhash())
	return r, nil
}

// Config returns a copy of the configuration the runtime was built with.
func (r *Runtime) Config() Config {
	return r.cfg.clone()
}

// Faucet returns the address that funds airdrops.
func (r *Runtime) Faucet() solana.PublicKey {
	return r.faucet.PublicKey()
}

// Metrics returns the gatherer the runtime's metrics are registered on, or
// nil when the registerer supplied through WithMetricsRegisterer cannot be
// gathered.
func (r *Runtime) Metrics() prometheus.Gatherer {
	gatherer, _ := r.registerer.(prometheus.Gatherer)
	return gatherer
}

// ExpireBlockhash issues a new latest blockhash. Transactions built against
// blockhashes that fall out of the window are rejected.
func (r *Runtime) ExpireBlockhash() (solana.Hash, error) {
	advancer, ok := r.blockhashes.(blockhashAdvancer)
	if !ok {
		return solana.Hash{}, fmt.Errorf("blockhash source %T cannot issue new blockhashes", r.blockhashes)
	}
	hash := advancer.Advance()
	r.writeRecentBlockhashes()
	klog.V(2).Infof("latest blockhash now %s", hash)
	return hash, nil
}

func (r *Runtime) writeRecentBlockhashes() {
	hashes := []solana.Hash{r.blockhashes.LatestBlockhash()}
	if q, ok := r.blockhashes.(*BlockhashQueue); ok {
		hashes = q.Hashes()
	}
	rbh := sealevel.NewRecentBlockhashes(hashes, r.cfg.LamportsPerSignature)
	sealevel.WriteRecentBlockHashesSysvar(r.store, rbh, r.cfg.Rent)
}

// WarpToSlot moves the runtime to slot and updates the clock sysvar, deriving
// its epoch from the epoch schedule.
func (r *Runtime) WarpToSlot(slot uint64) {
	clock, err := sealevel.ReadClockSysvar(r.store)
	if err != nil {
		klog.Errorf("clock sysvar unreadable, resetting: %s", err)
		clock = sealevel.SysvarClock{}
	}
	clock.Slot = slot
	clock.Epoch = r.cfg.EpochSchedule.GetEpoch(slot)
	clock.LeaderScheduleEpoch = r.cfg.EpochSchedule.GetLeaderScheduleEpoch(slot)
	sealevel.WriteClockSysvar(r.store, clock, r.cfg.Rent)
	r.slot = slot
}

func (r *Runtime) Slot() uint64 {
	return r.slot
}
