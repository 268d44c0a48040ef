package trie_test

import (
	"testing"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/core/trie"
	"github.com/NethermindEth/katana/db"
	"github.com/NethermindEth/katana/db/pebble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTxn(t *testing.T) db.Transaction {
	t.Helper()
	txn, err := pebble.NewMemTest(t).NewTransaction(true)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, txn.Discard()) })
	return txn
}

// storedRoot inserts leaves one by one into a fresh stored trie and returns its root.
func storedRoot(t *testing.T, height uint8, hash trie.HashFunc, leaves []trie.Leaf) *felt.Felt {
	t.Helper()
	tr, err := trie.New(newTxn(t), []byte{0x1}, height, hash)
	require.NoError(t, err)
	for _, l := range leaves {
		require.NoError(t, tr.Put(l.Key, l.Value))
	}
	root, err := tr.Root()
	require.NoError(t, err)
	return root
}

func TestTrieShapes(t *testing.T) {
	t.Run("empty trie", func(t *testing.T) {
		assert.True(t, storedRoot(t, 8, sum, nil).IsZero())
	})

	t.Run("single leaf", func(t *testing.T) {
		assert.Equal(t, u(28), storedRoot(t, 8, sum, []trie.Leaf{{Key: u(5), Value: u(10)}}))
	})

	t.Run("shared prefix", func(t *testing.T) {
		assert.Equal(t, u(20), storedRoot(t, 3, sum, []trie.Leaf{
			{Key: u(3), Value: u(6)},
			{Key: u(2), Value: u(4)},
		}))
	})

	t.Run("key too long", func(t *testing.T) {
		tr, err := trie.New(newTxn(t), nil, 8, sum)
		require.NoError(t, err)
		require.Error(t, tr.Put(u(256), u(1)))
	})
}

func TestTrieIncrementalUpdates(t *testing.T) {
	txn := newTxn(t)
	prefix := []byte("storage")

	// keys spread over the whole key space
	current := make(map[felt.Felt]*felt.Felt)
	key := func(i uint64) *felt.Felt {
		k := crypto.Pedersen(u(i), u(i))
		b := k.Bytes()
		b[0] &= 0x07
		return new(felt.Felt).SetBytes(b[:])
	}
	expected := func() *felt.Felt {
		leaves := make([]trie.Leaf, 0, len(current))
		for k, v := range current {
			leaves = append(leaves, trie.Leaf{Key: &k, Value: v})
		}
		root, err := trie.Root(251, crypto.Pedersen, leaves)
		require.NoError(t, err)
		return root
	}
	// every round reopens the trie to read the persisted root pointer
	round := func(t *testing.T, writes map[felt.Felt]*felt.Felt) {
		t.Helper()
		tr, err := trie.New(txn, prefix, 251, crypto.Pedersen)
		require.NoError(t, err)
		for k, v := range writes {
			require.NoError(t, tr.Put(&k, v))
			if v.IsZero() {
				delete(current, k)
			} else {
				current[k] = v
			}
		}
		root, err := tr.Root()
		require.NoError(t, err)
		assert.Equal(t, expected(), root)
	}

	t.Run("inserts", func(t *testing.T) {
		for batch := uint64(0); batch < 4; batch++ {
			writes := make(map[felt.Felt]*felt.Felt)
			for i := batch * 8; i < batch*8+8; i++ {
				writes[*key(i)] = u(i + 1)
			}
			round(t, writes)
		}
	})

	t.Run("overwrites", func(t *testing.T) {
		round(t, map[felt.Felt]*felt.Felt{*key(3): u(300), *key(17): u(1700)})
	})

	t.Run("deletes", func(t *testing.T) {
		writes := make(map[felt.Felt]*felt.Felt)
		for i := uint64(0); i < 32; i += 3 {
			writes[*key(i)] = new(felt.Felt)
		}
		writes[*key(100)] = new(felt.Felt)
		round(t, writes)
	})

	t.Run("insert and delete in one round", func(t *testing.T) {
		round(t, map[felt.Felt]*felt.Felt{*key(40): u(4), *key(1): new(felt.Felt), *key(2): u(22)})
	})

	t.Run("get", func(t *testing.T) {
		tr, err := trie.New(txn, prefix, 251, crypto.Pedersen)
		require.NoError(t, err)
		v, err := tr.Get(key(17))
		require.NoError(t, err)
		assert.Equal(t, u(1700), v)
		v, err = tr.Get(key(0))
		require.NoError(t, err)
		assert.True(t, v.IsZero())
	})

	t.Run("delete everything", func(t *testing.T) {
		writes := make(map[felt.Felt]*felt.Felt, len(current))
		for k := range current {
			writes[k] = new(felt.Felt)
		}
		round(t, writes)

		tr, err := trie.New(txn, prefix, 251, crypto.Pedersen)
		require.NoError(t, err)
		root, err := tr.Root()
		require.NoError(t, err)
		assert.True(t, root.IsZero())
	})
}

func TestTriePrefixesAreIsolated(t *testing.T) {
	txn := newTxn(t)
	a, err := trie.New(txn, []byte("a"), 8, sum)
	require.NoError(t, err)
	b, err := trie.New(txn, []byte("b"), 8, sum)
	require.NoError(t, err)

	require.NoError(t, a.Put(u(5), u(10)))
	_, err = a.Root()
	require.NoError(t, err)

	root, err := b.Root()
	require.NoError(t, err)
	assert.True(t, root.IsZero())
}
