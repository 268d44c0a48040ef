package state_test

import (
	"context"
	"errors"
	"testing"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/db"
	"github.com/NethermindEth/katana/db/pebble"
	"github.com/NethermindEth/katana/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v uint64) *felt.Felt {
	return new(felt.Felt).SetUint64(v)
}

func sierraClass(t *testing.T, program uint64) (*felt.Felt, core.Class) {
	t.Helper()
	class := &core.Cairo1Class{
		SemanticVersion: "0.1.0",
		Program:         []*felt.Felt{f(program)},
	}
	hash, err := class.Hash()
	require.NoError(t, err)
	return hash, class
}

// apply writes diff as block number n.
func apply(t *testing.T, database db.DB, n uint64, diff *core.StateDiff, classes map[felt.Felt]core.Class) {
	t.Helper()
	require.NoError(t, database.Update(func(txn db.Transaction) error {
		return state.NewWriter(txn).Apply(n, diff, classes)
	}))
}

func TestLatestAndHistorical(t *testing.T) {
	database := pebble.NewMemTest(t)
	addr, key := f(0x100), f(0x5)
	classHash, class := sierraClass(t, 1)

	block0 := core.EmptyStateDiff()
	block0.DeployedContracts[*addr] = classHash
	block0.DeclaredV1Classes[*classHash] = f(0xc0)
	block0.StorageDiffs[*addr] = map[felt.Felt]*felt.Felt{*key: f(1)}
	apply(t, database, 0, block0, map[felt.Felt]core.Class{*classHash: class})

	block1 := core.EmptyStateDiff()
	block1.Nonces[*addr] = f(1)
	apply(t, database, 1, block1, nil)

	block2 := core.EmptyStateDiff()
	block2.StorageDiffs[*addr] = map[felt.Felt]*felt.Felt{*key: f(2)}
	block2.Nonces[*addr] = f(2)
	apply(t, database, 2, block2, nil)

	require.NoError(t, database.View(func(txn db.Transaction) error {
		latest := state.NewLatest(txn)
		value, err := latest.ContractStorage(addr, key)
		require.NoError(t, err)
		assert.Equal(t, f(2), value)

		nonce, err := latest.ContractNonce(addr)
		require.NoError(t, err)
		assert.Equal(t, f(2), nonce)

		compiled, err := latest.CompiledClassHash(classHash)
		require.NoError(t, err)
		assert.Equal(t, f(0xc0), compiled)

		deployed, err := state.IsDeployed(latest, addr)
		require.NoError(t, err)
		assert.True(t, deployed)

		tests := []struct {
			block   uint64
			storage uint64
			nonce   uint64
		}{
			{block: 0, storage: 1, nonce: 0},
			{block: 1, storage: 1, nonce: 1},
			{block: 2, storage: 2, nonce: 2},
			{block: 10, storage: 2, nonce: 2},
		}
		for _, test := range tests {
			historical := state.NewHistorical(txn, test.block)
			value, err := historical.ContractStorage(addr, key)
			require.NoError(t, err)
			assert.Equal(t, f(test.storage), value, "storage at block %d", test.block)

			nonce, err := historical.ContractNonce(addr)
			require.NoError(t, err)
			assert.Equal(t, f(test.nonce), nonce, "nonce at block %d", test.block)

			declared, err := historical.Class(classHash)
			require.NoError(t, err)
			assert.Equal(t, uint64(0), declared.At)
		}

		unknown, err := latest.ContractClassHash(f(0xdead))
		require.NoError(t, err)
		assert.True(t, unknown.IsZero())

		_, err = latest.Class(f(0xdead))
		assert.ErrorIs(t, err, state.ErrClassNotFound)
		return nil
	}))
}

func TestHistoricalClassVisibility(t *testing.T) {
	database := pebble.NewMemTest(t)
	apply(t, database, 0, core.EmptyStateDiff(), nil)

	classHash, class := sierraClass(t, 7)
	diff := core.EmptyStateDiff()
	diff.DeclaredV1Classes[*classHash] = f(0xc7)
	apply(t, database, 3, diff, map[felt.Felt]core.Class{*classHash: class})

	require.NoError(t, database.View(func(txn db.Transaction) error {
		_, err := state.NewHistorical(txn, 2).Class(classHash)
		assert.ErrorIs(t, err, state.ErrClassNotFound)
		_, err = state.NewHistorical(txn, 2).CompiledClassHash(classHash)
		assert.ErrorIs(t, err, state.ErrClassNotFound)

		declared, err := state.NewHistorical(txn, 3).Class(classHash)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), declared.At)
		compiled, err := state.NewHistorical(txn, 3).CompiledClassHash(classHash)
		require.NoError(t, err)
		assert.Equal(t, f(0xc7), compiled)
		return nil
	}))
}

func TestWriterRejectsMissingClass(t *testing.T) {
	database := pebble.NewMemTest(t)
	diff := core.EmptyStateDiff()
	diff.DeclaredV1Classes[*f(1)] = f(2)

	err := database.Update(func(txn db.Transaction) error {
		return state.NewWriter(txn).Apply(0, diff, nil)
	})
	assert.ErrorIs(t, err, state.ErrMissingClassDefinition)
}

func TestCorruptHistory(t *testing.T) {
	database := pebble.NewMemTest(t)
	addr := f(0x100)

	diff := core.EmptyStateDiff()
	diff.Nonces[*addr] = f(1)
	apply(t, database, 4, diff, nil)

	require.NoError(t, database.Update(func(txn db.Transaction) error {
		return txn.Delete(db.ContractNonceHistoryKey(4, addr))
	}))

	require.NoError(t, database.View(func(txn db.Transaction) error {
		_, err := state.NewHistorical(txn, 5).ContractNonce(addr)
		var corrupt *state.CorruptHistoryError
		require.ErrorAs(t, err, &corrupt)
		assert.Equal(t, uint64(4), corrupt.Block)
		return nil
	}))
}

func TestPendingOverlay(t *testing.T) {
	database := pebble.NewMemTest(t)
	addr, key := f(0x100), f(0x5)

	base := core.EmptyStateDiff()
	base.DeployedContracts[*addr] = f(0xaa)
	base.StorageDiffs[*addr] = map[felt.Felt]*felt.Felt{*key: f(1)}
	apply(t, database, 0, base, nil)

	txn, err := database.NewTransaction(false)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, txn.Discard()) })

	pending := state.NewPending(state.NewLatest(txn), 1)

	t.Run("reads fall through", func(t *testing.T) {
		value, err := pending.ContractStorage(addr, key)
		require.NoError(t, err)
		assert.Equal(t, f(1), value)
	})

	t.Run("failed child leaves no trace", func(t *testing.T) {
		child := pending.Child()
		child.SetStorage(addr, key, f(99))
		child.SetNonce(addr, f(1))

		value, err := child.ContractStorage(addr, key)
		require.NoError(t, err)
		assert.Equal(t, f(99), value)

		value, err = pending.ContractStorage(addr, key)
		require.NoError(t, err)
		assert.Equal(t, f(1), value)
		assert.Zero(t, pending.StateDiff().Length())
	})

	t.Run("merged child is visible", func(t *testing.T) {
		child := pending.Child()
		child.SetStorage(addr, key, f(2))
		require.NoError(t, child.SetClassHash(addr, f(0xbb)))
		require.NoError(t, child.SetClassHash(f(0x200), f(0xaa)))
		pending.Merge(child.StateDiff(), child.Classes())

		diff := pending.StateDiff()
		assert.Equal(t, f(0xbb), diff.ReplacedClasses[*addr])
		assert.Equal(t, f(0xaa), diff.DeployedContracts[*f(0x200)])
		assert.Equal(t, f(2), diff.StorageDiffs[*addr][*key])

		classHash, err := pending.ContractClassHash(addr)
		require.NoError(t, err)
		assert.Equal(t, f(0xbb), classHash)
	})

	t.Run("clone is independent", func(t *testing.T) {
		clone := pending.Clone()
		clone.SetNonce(addr, f(7))

		nonce, err := pending.ContractNonce(addr)
		require.NoError(t, err)
		assert.True(t, nonce.IsZero())
	})

	t.Run("declared classes", func(t *testing.T) {
		classHash, class := sierraClass(t, 3)
		pending.DeclareClass(classHash, f(0xc3), class)

		declared, err := pending.Class(classHash)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), declared.At)

		compiled, err := pending.CompiledClassHash(classHash)
		require.NoError(t, err)
		assert.Equal(t, f(0xc3), compiled)
	})
}

type fakeRemote struct {
	calls   int
	nonces  map[felt.Felt]*felt.Felt
	storage map[felt.Felt]*felt.Felt
	classes map[felt.Felt]core.Class
}

func (r *fakeRemote) Nonce(_ context.Context, _ uint64, addr *felt.Felt) (*felt.Felt, error) {
	r.calls++
	if n, ok := r.nonces[*addr]; ok {
		return n, nil
	}
	return new(felt.Felt), nil
}

func (r *fakeRemote) ClassHashAt(context.Context, uint64, *felt.Felt) (*felt.Felt, error) {
	r.calls++
	return f(0xabc), nil
}

func (r *fakeRemote) StorageAt(_ context.Context, _ uint64, _, key *felt.Felt) (*felt.Felt, error) {
	r.calls++
	if v, ok := r.storage[*key]; ok {
		return v, nil
	}
	return new(felt.Felt), nil
}

func (r *fakeRemote) Class(_ context.Context, _ uint64, classHash *felt.Felt) (core.Class, error) {
	r.calls++
	if c, ok := r.classes[*classHash]; ok {
		return c, nil
	}
	return nil, state.ErrRemoteClassNotFound
}

func TestForked(t *testing.T) {
	database := pebble.NewMemTest(t)
	apply(t, database, 0, core.EmptyStateDiff(), nil)

	addr, key := f(0x100), f(0x5)
	remote := &fakeRemote{
		nonces:  map[felt.Felt]*felt.Felt{*addr: f(4)},
		storage: map[felt.Felt]*felt.Felt{*key: f(42)},
		classes: map[felt.Felt]core.Class{*f(0xabc): &core.Cairo0Class{Program: "remote"}},
	}
	cache := state.NewForkCache(remote, 1000)
	assert.Equal(t, uint64(1000), cache.Block())

	txn, err := database.NewTransaction(false)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, txn.Discard()) })

	forked := state.NewForked(state.NewLatest(txn), cache)

	value, err := forked.ContractStorage(addr, key)
	require.NoError(t, err)
	assert.Equal(t, f(42), value)

	nonce, err := forked.ContractNonce(addr)
	require.NoError(t, err)
	assert.Equal(t, f(4), nonce)

	calls := remote.calls
	_, err = forked.ContractStorage(addr, key)
	require.NoError(t, err)
	assert.Equal(t, calls, remote.calls, "cached reads never reach the remote")

	declared, err := forked.Class(f(0xabc))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), declared.At)

	_, err = forked.Class(f(0xdef))
	assert.ErrorIs(t, err, state.ErrClassNotFound)

	t.Run("local writes win", func(t *testing.T) {
		pending := state.NewPending(forked, 1)
		pending.SetNonce(addr, f(5))

		nonce, err := pending.ContractNonce(addr)
		require.NoError(t, err)
		assert.Equal(t, f(5), nonce)

		value, err := pending.ContractStorage(addr, key)
		require.NoError(t, err)
		assert.Equal(t, f(42), value)
	})
}

func TestForkedLocalZeroWrite(t *testing.T) {
	database := pebble.NewMemTest(t)
	addr, key := f(0x100), f(0x5)
	remote := &fakeRemote{storage: map[felt.Felt]*felt.Felt{*key: f(42)}}
	cache := state.NewForkCache(remote, 1000)

	apply(t, database, 0, core.EmptyStateDiff(), nil)
	spent := core.EmptyStateDiff()
	spent.StorageDiffs[*addr] = map[felt.Felt]*felt.Felt{*key: new(felt.Felt)}
	apply(t, database, 1, spent, nil)

	txn, err := database.NewTransaction(false)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, txn.Discard()) })

	tests := map[string]struct {
		local state.Reader
		want  *felt.Felt
	}{
		"latest":           {local: state.NewLatest(txn), want: new(felt.Felt)},
		"after the write":  {local: state.NewHistorical(txn, 1), want: new(felt.Felt)},
		"before the write": {local: state.NewHistorical(txn, 0), want: f(42)},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			value, err := state.NewForked(test.local, cache).ContractStorage(addr, key)
			require.NoError(t, err)
			assert.Equal(t, test.want, value)
		})
	}

	t.Run("cached remote value does not leak", func(t *testing.T) {
		value, err := state.NewForked(state.NewHistorical(txn, 0), cache).ContractStorage(addr, key)
		require.NoError(t, err)
		require.Equal(t, f(42), value)

		value, err = state.NewForked(state.NewLatest(txn), cache).ContractStorage(addr, key)
		require.NoError(t, err)
		assert.True(t, value.IsZero())
	})
}

type failingRemote struct{ fakeRemote }

func (failingRemote) StorageAt(context.Context, uint64, *felt.Felt, *felt.Felt) (*felt.Felt, error) {
	return nil, errors.New("connection refused")
}

func TestForkedRemoteError(t *testing.T) {
	database := pebble.NewMemTest(t)
	txn, err := database.NewTransaction(false)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, txn.Discard()) })

	forked := state.NewForked(state.NewLatest(txn), state.NewForkCache(&failingRemote{}, 1))
	_, err = forked.ContractStorage(f(1), f(2))
	require.Error(t, err)
}

func TestRoot(t *testing.T) {
	database := pebble.NewMemTest(t)

	var empty *felt.Felt
	require.NoError(t, database.View(func(txn db.Transaction) error {
		var err error
		empty, err = state.Root(txn)
		return err
	}))
	assert.True(t, empty.IsZero())

	addr := f(0x100)
	diff := core.EmptyStateDiff()
	diff.DeployedContracts[*addr] = f(0xaa)
	diff.StorageDiffs[*addr] = map[felt.Felt]*felt.Felt{*f(1): f(1)}
	apply(t, database, 0, diff, nil)

	var withContract *felt.Felt
	require.NoError(t, database.View(func(txn db.Transaction) error {
		var err error
		withContract, err = state.Root(txn)
		return err
	}))
	assert.False(t, withContract.IsZero())

	classHash, class := sierraClass(t, 1)
	declare := core.EmptyStateDiff()
	declare.DeclaredV1Classes[*classHash] = f(0xc1)
	apply(t, database, 1, declare, map[felt.Felt]core.Class{*classHash: class})

	require.NoError(t, database.View(func(txn db.Transaction) error {
		root, err := state.Root(txn)
		require.NoError(t, err)
		assert.NotEqual(t, withContract, root)
		return nil
	}))

	t.Run("clearing storage restores the root", func(t *testing.T) {
		other := pebble.NewMemTest(t)
		apply(t, other, 0, diff, nil)
		clear := core.EmptyStateDiff()
		clear.StorageDiffs[*addr] = map[felt.Felt]*felt.Felt{*f(1): new(felt.Felt)}
		apply(t, other, 1, clear, nil)

		onlyDeployed := core.EmptyStateDiff()
		onlyDeployed.DeployedContracts[*addr] = f(0xaa)
		fresh := pebble.NewMemTest(t)
		apply(t, fresh, 0, onlyDeployed, nil)

		var a, b *felt.Felt
		require.NoError(t, other.View(func(txn db.Transaction) (err error) {
			a, err = state.Root(txn)
			return err
		}))
		require.NoError(t, fresh.View(func(txn db.Transaction) (err error) {
			b, err = state.Root(txn)
			return err
		}))
		assert.Equal(t, a, b)
	})
}
