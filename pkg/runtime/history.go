package runtime

import (
	"github.com/gagliardetto/solana-go"
	"github.com/gammazero/deque"
)

// TransactionHistory remembers the results of the most recently committed
// transactions by signature. Once full, the oldest entry is evicted.
type TransactionHistory struct {
	order    deque.Deque[solana.Signature]
	results  map[solana.Signature]*TransactionResult
	capacity int
}

func NewTransactionHistory(capacity int) *TransactionHistory {
	return &TransactionHistory{results: make(map[solana.Signature]*TransactionResult), capacity: capacity}
}

func (h *TransactionHistory) Add(sig solana.Signature, result *TransactionResult) {
	if h.capacity <= 0 {
		return
	}
	if _, ok := h.results[sig]; !ok {
		h.order.PushBack(sig)
	}
	h.results[sig] = result

	for h.order.Len() > h.capacity {
		delete(h.results, h.order.PopFront())
	}
}

func (h *TransactionHistory) Get(sig solana.Signature) (*TransactionResult, bool) {
	result, ok := h.results[sig]
	return result, ok
}

func (h *TransactionHistory) Contains(sig solana.Signature) bool {
	_, ok := h.results[sig]
	return ok
}

func (h *TransactionHistory) Len() int {
	return h.order.Len()
}
