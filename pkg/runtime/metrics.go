package runtime

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type runtimeMetrics struct {
	txsProcessed   prometheus.Counter
	txsFailed      *prometheus.CounterVec
	feesCollected  prometheus.Counter
	feesBurned     prometheus.Counter
	accountsPruned prometheus.Counter
	airdrops       prometheus.Counter
}

func newMetrics(r prometheus.Registerer) (*runtimeMetrics, error) {
	m := &runtimeMetrics{
		txsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "litesvm",
			Name:      "txs_processed",
			Help:      "number of transactions processed, successful or not",
		}),
		txsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "litesvm",
			Name:      "txs_failed",
			Help:      "number of failed transactions by error kind",
		}, []string{"kind"}),
		feesCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "litesvm",
			Name:      "fees_collected_lamports",
			Help:      "lamports charged as transaction fees",
		}),
		feesBurned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "litesvm",
			Name:      "fees_burned_lamports",
			Help:      "share of transaction fees that was burned",
		}),
		accountsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "litesvm",
			Name:      "accounts_pruned",
			Help:      "number of accounts removed after reaching zero lamports",
		}),
		airdrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "litesvm",
			Name:      "airdrops",
			Help:      "number of airdrop requests",
		}),
	}

	errs := errors.Join(
		r.Register(m.txsProcessed),
		r.Register(m.txsFailed),
		r.Register(m.feesCollected),
		r.Register(m.feesBurned),
		r.Register(m.accountsPruned),
		r.Register(m.airdrops),
	)
	if errs != nil {
		return nil, errs
	}
	return m, nil
}
