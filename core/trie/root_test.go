package trie_test

import (
	"testing"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/core/trie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feltFromString(t *testing.T, s string) *felt.Felt {
	t.Helper()
	f, err := new(felt.Felt).SetString(s)
	require.NoError(t, err)
	return f
}

// sum is a toy hash that keeps expected roots computable by hand.
func sum(a, b *felt.Felt) *felt.Felt {
	twice := new(felt.Felt).Add(b, b)
	return new(felt.Felt).Add(a, twice)
}

func u(v uint64) *felt.Felt {
	return new(felt.Felt).SetUint64(v)
}

func TestRootShapes(t *testing.T) {
	t.Run("empty trie", func(t *testing.T) {
		root, err := trie.Root(8, sum, nil)
		require.NoError(t, err)
		assert.True(t, root.IsZero())
	})

	t.Run("zero values are absent", func(t *testing.T) {
		root, err := trie.Root(8, sum, []trie.Leaf{{Key: u(3), Value: new(felt.Felt)}})
		require.NoError(t, err)
		assert.True(t, root.IsZero())
	})

	t.Run("single leaf is an edge over the whole key", func(t *testing.T) {
		// edge: 10 + 2*5 + 8
		root, err := trie.Root(8, sum, []trie.Leaf{{Key: u(5), Value: u(10)}})
		require.NoError(t, err)
		assert.Equal(t, u(28), root)
	})

	t.Run("leaves split at the top bit", func(t *testing.T) {
		// height 2, keys 0b00 and 0b10
		// left edge, path 0 of length 1: 7 + 0 + 1 = 8
		// right edge, path 0 of length 1: 9 + 0 + 1 = 10
		// binary: 8 + 2*10 = 28
		root, err := trie.Root(2, sum, []trie.Leaf{
			{Key: u(2), Value: u(9)},
			{Key: u(0), Value: u(7)},
		})
		require.NoError(t, err)
		assert.Equal(t, u(28), root)
	})

	t.Run("shared prefix becomes an edge above a binary node", func(t *testing.T) {
		// height 3, keys 0b010 and 0b011 share "01"
		// binary at depth 2: 4 + 2*6 = 16
		// edge: 16 + 2*1 + 2 = 20
		root, err := trie.Root(3, sum, []trie.Leaf{
			{Key: u(2), Value: u(4)},
			{Key: u(3), Value: u(6)},
		})
		require.NoError(t, err)
		assert.Equal(t, u(20), root)
	})

	t.Run("order does not matter", func(t *testing.T) {
		leaves := []trie.Leaf{
			{Key: u(1), Value: u(11)},
			{Key: u(200), Value: u(12)},
			{Key: u(77), Value: u(13)},
		}
		a, err := trie.Root(64, crypto.Pedersen, leaves)
		require.NoError(t, err)
		b, err := trie.Root(64, crypto.Pedersen, []trie.Leaf{leaves[2], leaves[0], leaves[1]})
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("duplicate keys", func(t *testing.T) {
		_, err := trie.Root(8, sum, []trie.Leaf{{Key: u(1), Value: u(1)}, {Key: u(1), Value: u(2)}})
		require.ErrorIs(t, err, trie.ErrDuplicateKey)
	})

	t.Run("key too long", func(t *testing.T) {
		_, err := trie.Root(8, sum, []trie.Leaf{{Key: u(256), Value: u(1)}})
		require.Error(t, err)
	})
}

// TestMainnetGenesisRoot checks the commitment of the Starknet mainnet block 0 state.
// See https://alpha-mainnet.starknet.io/feeder_gateway/get_state_update?blockNumber=0.
func TestMainnetGenesisRoot(t *testing.T) {
	type (
		diff  struct{ key, val string }
		diffs map[string][]diff
	)

	addresses := diffs{
		"0x735596016a37ee972c42adef6a3cf628c19bb3794369c65d2c82ba034aecf2c": {
			{"0x5", "0x64"},
			{
				"0x2f50710449a06a9fa789b3c029a63bd0b1f722f46505828a9f815cf91b31d8",
				"0x2a222e62eabe91abdb6838fa8b267ffe81a6eb575f61e96ec9aa4460c0925a2",
			},
		},
		"0x20cfa74ee3564b4cd5435cdace0f9c4d43b939620e4a0bb5076105df0a626c6": {
			{"0x5", "0x22b"},
			{
				"0x5aee31408163292105d875070f98cb48275b8c87e80380b78d30647e05854d5",
				"0x7e5",
			},
			{
				"0x313ad57fdf765addc71329abf8d74ac2bce6d46da8c2b9b82255a5076620300",
				"0x4e7e989d58a17cd279eca440c5eaa829efb6f9967aaad89022acbe644c39b36",
			},
			{
				"0x313ad57fdf765addc71329abf8d74ac2bce6d46da8c2b9b82255a5076620301",
				"0x453ae0c9610197b18b13645c44d3d0a407083d96562e8752aab3fab616cecb0",
			},
			{
				"0x6cf6c2f36d36b08e591e4489e92ca882bb67b9c39a3afccf011972a8de467f0",
				"0x7ab344d88124307c07b56f6c59c12f4543e9c96398727854a322dea82c73240",
			},
		},
		"0x6ee3440b08a9c805305449ec7f7003f27e9f7e287b83610952ec36bdc5a6bae": {
			{
				"0x1e2cd4b3588e8f6f9c4e89fb0e293bf92018c96d7a93ee367d29a284223b6ff",
				"0x71d1e9d188c784a0bde95c1d508877a0d93e9102b37213d1e13f3ebc54a7751",
			},
			{
				"0x5f750dc13ed239fa6fc43ff6e10ae9125a33bd05ec034fc3bb4dd168df3505f",
				"0x7e5",
			},
			{
				"0x48cba68d4e86764105adcdcf641ab67b581a55a4f367203647549c8bf1feea2",
				"0x362d24a3b030998ac75e838955dfee19ec5b6eceb235b9bfbeccf51b6304d0b",
			},
			{
				"0x449908c349e90f81ab13042b1e49dc251eb6e3e51092d9a40f86859f7f415b0",
				"0x6cb6104279e754967a721b52bcf5be525fdc11fa6db6ef5c3a4db832acf7804",
			},
			{
				"0x5bdaf1d47b176bfcd1114809af85a46b9c4376e87e361d86536f0288a284b65",
				"0x28dff6722aa73281b2cf84cac09950b71fa90512db294d2042119abdd9f4b87",
			},
			{
				"0x5bdaf1d47b176bfcd1114809af85a46b9c4376e87e361d86536f0288a284b66",
				"0x57a8f8a019ccab5bfc6ff86c96b1392257abb8d5d110c01d326b94247af161c",
			},
		},
		"0x31c887d82502ceb218c06ebb46198da3f7b92864a8223746bc836dda3e34b52": {
			{
				"0x5f750dc13ed239fa6fc43ff6e10ae9125a33bd05ec034fc3bb4dd168df3505f",
				"0x7c7",
			},
			{
				"0xdf28e613c065616a2e79ca72f9c1908e17b8c913972a9993da77588dc9cae9",
				"0x1432126ac23c7028200e443169c2286f99cdb5a7bf22e607bcd724efa059040",
			},
		},
		"0x31c9cdb9b00cb35cf31c05855c0ec3ecf6f7952a1ce6e3c53c3455fcd75a280": {
			{"0x5", "0x65"},
			{
				"0x5aee31408163292105d875070f98cb48275b8c87e80380b78d30647e05854d5",
				"0x7c7",
			},
			{
				"0xcfc2e2866fd08bfb4ac73b70e0c136e326ae18fc797a2c090c8811c695577e",
				"0x5f1dd5a5aef88e0498eeca4e7b2ea0fa7110608c11531278742f0b5499af4b3",
			},
			{
				"0x5fac6815fddf6af1ca5e592359862ede14f171e1544fd9e792288164097c35d",
				"0x299e2f4b5a873e95e65eb03d31e532ea2cde43b498b50cd3161145db5542a5",
			},
			{
				"0x5fac6815fddf6af1ca5e592359862ede14f171e1544fd9e792288164097c35e",
				"0x3d6897cf23da3bf4fd35cc7a43ccaf7c5eaf8f7c5b9031ac9b09a929204175f",
			},
		},
	}

	classHash := feltFromString(t, "0x10455c752b86932ce552f2b0fe81a880746649b9aee7e0d842bf3f52378f9f8")

	contracts := make([]trie.Leaf, 0, len(addresses))
	for addr, slots := range addresses {
		storage := make([]trie.Leaf, 0, len(slots))
		for _, slot := range slots {
			storage = append(storage, trie.Leaf{Key: feltFromString(t, slot.key), Value: feltFromString(t, slot.val)})
		}
		storageRoot, err := trie.Root(251, crypto.Pedersen, storage)
		require.NoError(t, err)
		assert.Equal(t, storageRoot, storedRoot(t, 251, crypto.Pedersen, storage))

		leaf := crypto.Pedersen(classHash, storageRoot)
		leaf = crypto.Pedersen(leaf, new(felt.Felt))
		leaf = crypto.Pedersen(leaf, new(felt.Felt))
		contracts = append(contracts, trie.Leaf{Key: feltFromString(t, addr), Value: leaf})
	}

	got, err := trie.Root(251, crypto.Pedersen, contracts)
	require.NoError(t, err)
	assert.Equal(t, got, storedRoot(t, 251, crypto.Pedersen, contracts))
	assert.Equal(t, "0x21870ba80540e7831fb21c591ee93481f5ae1bb71ff85a86ddd465be4eddee6", got.String())
}
