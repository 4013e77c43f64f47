package runtime

import (
	"github.com/gagliardetto/solana-go"
)

// TransactionCallback observes every transaction the runtime processes,
// airdrops included. It runs after the transaction has been committed or
// rolled back, so rt reflects the final state. Transactions it submits
// through rt are processed independently.
type TransactionCallback func(tx *solana.Transaction, result *TransactionResult, rt *Runtime)

// SetTransactionCallback registers cb, replacing any previous callback. A
// nil cb disables notification.
func (r *Runtime) SetTransactionCallback(cb TransactionCallback) {
	r.callback = cb
}

func (r *Runtime) UnsetTransactionCallback() {
	r.callback = nil
}

func (r *Runtime) notify(tx *solana.Transaction, result *TransactionResult) {
	cb := r.callback
	if cb == nil {
		return
	}
	cb(tx, result, r)
}
