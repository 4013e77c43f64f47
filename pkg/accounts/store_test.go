package accounts

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) solana.PublicKey {
	privKey, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return privKey.PublicKey()
}

func TestStore_GetMissingAccount(t *testing.T) {
	store := NewStore()
	acct, ok := store.GetAccount(newKey(t))
	assert.False(t, ok)
	assert.Nil(t, acct)
}

func TestStore_SetAndGetReturnsCopy(t *testing.T) {
	store := NewStore()
	key := newKey(t)
	store.SetAccount(key, &Account{Lamports: 1000, Data: []byte{1, 2, 3}, Owner: solana.SystemProgramID})

	acct, ok := store.GetAccount(key)
	require.True(t, ok)
	acct.Lamports = 1
	acct.Data[0] = 9

	again, ok := store.GetAccount(key)
	require.True(t, ok)
	assert.Equal(t, uint64(1000), again.Lamports)
	assert.Equal(t, []byte{1, 2, 3}, again.Data)
}

func TestStore_ZeroLamportsPruned(t *testing.T) {
	store := NewStore()
	key := newKey(t)
	owner := newKey(t)
	store.SetAccount(key, &Account{Lamports: 10, Owner: owner})
	require.Equal(t, 1, store.Len())

	store.SetAccount(key, &Account{Lamports: 0, Data: make([]byte, 10), Owner: owner})
	_, ok := store.GetAccount(key)
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())
	assert.Empty(t, store.AccountsOwnedBy(owner))
}

func TestStore_AccountsOwnedBy(t *testing.T) {
	store := NewStore()
	programA := newKey(t)
	programB := newKey(t)

	var ownedByA []solana.PublicKey
	for i := 0; i < 5; i++ {
		key := newKey(t)
		store.SetAccount(key, &Account{Lamports: uint64(i + 1), Data: make([]byte, i), Owner: programA})
		ownedByA = append(ownedByA, key)
	}
	store.SetAccount(newKey(t), &Account{Lamports: 7, Owner: programB})

	owned := store.AccountsOwnedBy(programA)
	require.Len(t, owned, 5)
	for idx, keyed := range owned {
		assert.Contains(t, ownedByA, keyed.Key)
		assert.Equal(t, programA, keyed.Owner)
		single, ok := store.GetAccount(keyed.Key)
		require.True(t, ok)
		assert.True(t, single.Equal(&keyed.Account))
		if idx > 0 {
			assert.True(t, keyLess(owned[idx-1].Key, keyed.Key))
		}
	}

	assert.Len(t, store.AccountsOwnedBy(programB), 1)

	none := store.AccountsOwnedBy(newKey(t))
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestStore_OwnerChangeMovesIndexEntry(t *testing.T) {
	store := NewStore()
	key := newKey(t)
	oldOwner := newKey(t)
	newOwner := newKey(t)

	store.SetAccount(key, &Account{Lamports: 5, Owner: oldOwner})
	store.SetAccount(key, &Account{Lamports: 5, Owner: newOwner})

	assert.Empty(t, store.AccountsOwnedBy(oldOwner))
	owned := store.AccountsOwnedBy(newOwner)
	require.Len(t, owned, 1)
	assert.Equal(t, key, owned[0].Key)
}

func TestStore_HashTracksContents(t *testing.T) {
	store := NewStore()
	key := newKey(t)
	store.SetAccount(key, &Account{Lamports: 5, Owner: solana.SystemProgramID})
	before := store.Hash()

	clone := store.Clone()
	assert.Equal(t, before, clone.Hash())

	store.SetAccount(key, &Account{Lamports: 6, Owner: solana.SystemProgramID})
	assert.NotEqual(t, before, store.Hash())

	store.SetAccount(key, &Account{Lamports: 5, Owner: solana.SystemProgramID})
	assert.Equal(t, before, store.Hash())
}

func TestAccount_MarshalUnmarshal(t *testing.T) {
	acct := &Account{Lamports: 42, Data: []byte("hello"), Owner: newKey(t), Executable: true, RentEpoch: 7}
	data, err := acct.Marshal()
	require.NoError(t, err)
	assert.Len(t, data, 8+8+5+32+1+8)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.True(t, acct.Equal(decoded))

	_, err = Unmarshal(data[:20])
	assert.Error(t, err)
}
