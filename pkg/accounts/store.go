package accounts

import (
	"bytes"

	"github.com/gagliardetto/solana-go"
	"github.com/tidwall/btree"
	"github.com/zeebo/blake3"
)

type ownerIndexEntry struct {
	owner solana.PublicKey
	key   solana.PublicKey
}

func ownerIndexLess(a, b ownerIndexEntry) bool {
	if c := bytes.Compare(a.owner[:], b.owner[:]); c != 0 {
		return c < 0
	}
	return bytes.Compare(a.key[:], b.key[:]) < 0
}

func keyLess(a, b solana.PublicKey) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// Store is the in-memory account database. Accounts holding zero lamports
// do not exist: they are never returned and are removed as soon as they are
// written. Every account is reachable through an ordered (owner, address)
// index used for program account enumeration.
//
// Store is not safe for concurrent use.
type Store struct {
	accts      map[solana.PublicKey]*Account
	keys       *btree.BTreeG[solana.PublicKey]
	ownerIndex *btree.BTreeG[ownerIndexEntry]
}

func NewStore() *Store {
	return &Store{
		accts:      make(map[solana.PublicKey]*Account),
		keys:       btree.NewBTreeG[solana.PublicKey](keyLess),
		ownerIndex: btree.NewBTreeG[ownerIndexEntry](ownerIndexLess),
	}
}

// GetAccount returns a copy of the account stored under pubkey.
func (s *Store) GetAccount(pubkey solana.PublicKey) (*Account, bool) {
	acct, ok := s.accts[pubkey]
	if !ok || acct.Lamports == 0 {
		return nil, false
	}
	return acct.Clone(), true
}

// SetAccount stores a copy of acct, or deletes the entry if acct holds no
// lamports.
func (s *Store) SetAccount(pubkey solana.PublicKey, acct *Account) {
	if prev, ok := s.accts[pubkey]; ok {
		s.ownerIndex.Delete(ownerIndexEntry{owner: prev.Owner, key: pubkey})
	}

	if acct == nil || acct.Lamports == 0 {
		delete(s.accts, pubkey)
		s.keys.Delete(pubkey)
		return
	}

	s.accts[pubkey] = acct.Clone()
	s.keys.Set(pubkey)
	s.ownerIndex.Set(ownerIndexEntry{owner: acct.Owner, key: pubkey})
}

// AccountsOwnedBy returns copies of every live account owned by owner,
// ordered by address. The result is empty, not nil, when there are none.
func (s *Store) AccountsOwnedBy(owner solana.PublicKey) []KeyedAccount {
	owned := make([]KeyedAccount, 0)
	s.ownerIndex.Ascend(ownerIndexEntry{owner: owner}, func(entry ownerIndexEntry) bool {
		if entry.owner != owner {
			return false
		}
		owned = append(owned, KeyedAccount{Key: entry.key, Account: *s.accts[entry.key].Clone()})
		return true
	})
	return owned
}

func (s *Store) Len() int {
	return len(s.accts)
}

// Keys returns all live addresses in ascending order.
func (s *Store) Keys() []solana.PublicKey {
	keys := make([]solana.PublicKey, 0, s.keys.Len())
	s.keys.Scan(func(key solana.PublicKey) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// Hash returns a blake3 digest over the account hashes of every live
// account, in address order. Two stores with identical contents hash the
// same.
func (s *Store) Hash() [32]byte {
	hasher := blake3.New()
	s.keys.Scan(func(key solana.PublicKey) bool {
		h := Hash(key, s.accts[key])
		_, _ = hasher.Write(h[:])
		return true
	})

	var out [32]byte
	copy(out[:], hasher.Sum(nil))
	return out
}

func (s *Store) Clone() *Store {
	c := NewStore()
	for key, acct := range s.accts {
		c.SetAccount(key, acct)
	}
	return c
}
