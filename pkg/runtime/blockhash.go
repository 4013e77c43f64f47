package runtime

import (
	"github.com/gagliardetto/solana-go"
	"github.com/gammazero/deque"
	"github.com/zeebo/blake3"
)

// BlockhashSource supplies the recency tokens transactions are checked
// against.
type BlockhashSource interface {
	LatestBlockhash() solana.Hash
	IsRecent(hash solana.Hash) bool
}

// blockhashAdvancer is implemented by sources that can issue a new latest
// blockhash on demand.
type blockhashAdvancer interface {
	Advance() solana.Hash
}

// BlockhashQueue keeps the most recently issued blockhashes, oldest first.
// Hashes are chained: each one is the blake3 digest of its predecessor.
type BlockhashQueue struct {
	hashes deque.Deque[solana.Hash]
	window int
}

// GenesisBlockhash is the first blockhash issued by a new queue.
var GenesisBlockhash = solana.Hash(blake3.Sum256([]byte("genesis")))

func NewBlockhashQueue(window int) *BlockhashQueue {
	q := &BlockhashQueue{window: max(window, 1)}
	q.hashes.PushBack(GenesisBlockhash)
	return q
}

func (q *BlockhashQueue) LatestBlockhash() solana.Hash {
	return q.hashes.Back()
}

func (q *BlockhashQueue) IsRecent(hash solana.Hash) bool {
	return q.hashes.Index(func(h solana.Hash) bool { return h == hash }) != -1
}

// Advance issues a new latest blockhash, expiring the oldest one once the
// window is full.
func (q *BlockhashQueue) Advance() solana.Hash {
	prev := q.hashes.Back()
	next := solana.Hash(blake3.Sum256(prev[:]))
	q.hashes.PushBack(next)
	for q.hashes.Len() > q.window {
		q.hashes.PopFront()
	}
	return next
}

func (q *BlockhashQueue) Len() int {
	return q.hashes.Len()
}

// Hashes returns the blockhashes still in the window, oldest first.
func (q *BlockhashQueue) Hashes() []solana.Hash {
	out := make([]solana.Hash, q.hashes.Len())
	for idx := range out {
		out[idx] = q.hashes.At(idx)
	}
	return out
}
