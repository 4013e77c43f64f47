package runtime

import (
	"github.com/gagliardetto/solana-go"
	"go.firedancer.io/litesvm/pkg/accounts"
)

// GetAccount returns a copy of the committed account at key.
func (r *Runtime) GetAccount(key solana.PublicKey) (*accounts.Account, bool) {
	return r.store.GetAccount(key)
}

func (r *Runtime) GetBalance(key solana.PublicKey) uint64 {
	acct, ok := r.store.GetAccount(key)
	if !ok {
		return 0
	}
	return acct.Lamports
}

// SetAccount writes acct directly to the store, bypassing the transaction
// pipeline and the callback. A zero-lamport account is removed.
func (r *Runtime) SetAccount(key solana.PublicKey, acct *accounts.Account) {
	r.store.SetAccount(key, acct)
}

// AccountsOwnedBy returns the committed accounts owned by owner, ordered by
// address.
func (r *Runtime) AccountsOwnedBy(owner solana.PublicKey) []accounts.KeyedAccount {
	return r.store.AccountsOwnedBy(owner)
}

func (r *Runtime) GetProgramAccounts(programId solana.PublicKey) []accounts.KeyedAccount {
	return r.AccountsOwnedBy(programId)
}

func (r *Runtime) MinimumBalanceForRentExemption(dataLen uint64) uint64 {
	return r.cfg.Rent.MinimumBalance(dataLen)
}

func (r *Runtime) LatestBlockhash() solana.Hash {
	return r.blockhashes.LatestBlockhash()
}

// GetTransaction looks up a committed transaction by signature. Only the
// most recent transactions are remembered.
func (r *Runtime) GetTransaction(sig solana.Signature) (*TransactionResult, bool) {
	result, ok := r.history.Get(sig)
	if !ok {
		return nil, false
	}
	return result.Clone(), true
}

// StateHash digests all committed accounts. It changes whenever any account
// does.
func (r *Runtime) StateHash() [32]byte {
	return r.store.Hash()
}

// Keys returns every live address in ascending order.
func (r *Runtime) Keys() []solana.PublicKey {
	return r.store.Keys()
}
