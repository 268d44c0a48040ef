package mempool_test

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/mempool"
	"github.com/NethermindEth/katana/mocks"
	"github.com/NethermindEth/katana/utils"
	"github.com/NethermindEth/katana/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func f(v uint64) *felt.Felt {
	return new(felt.Felt).SetUint64(v)
}

func invoke(hash, sender, nonce uint64) core.BroadcastedTransaction {
	return core.BroadcastedTransaction{Transaction: &core.InvokeTransaction{
		TransactionHash: f(hash),
		SenderAddress:   f(sender),
		Nonce:           f(nonce),
		MaxFee:          f(hash),
		Version:         core.NewTransactionVersion(1),
	}}
}

type nonces map[uint64]uint64

func (n nonces) ContractNonce(addr *felt.Felt) (*felt.Felt, error) {
	for sender, nonce := range n {
		if addr.Equal(f(sender)) {
			return f(nonce), nil
		}
	}
	return new(felt.Felt), nil
}

var acceptAll = mempool.ValidatorFunc(func(core.BroadcastedTransaction) error { return nil })

func newPool(ordering mempool.Ordering) *mempool.Pool {
	return mempool.New(acceptAll, ordering, utils.NewNopZapLogger())
}

func hashes(txs []*mempool.PendingTx) []uint64 {
	out := make([]uint64, 0, len(txs))
	for _, tx := range txs {
		out = append(out, tx.Hash().BigInt(new(big.Int)).Uint64())
	}
	return out
}

func TestAdd(t *testing.T) {
	pool := newPool(mempool.FIFO{})
	var sizes []int
	pool.WithListener(&mempool.SelectiveListener{OnAddedCb: func(size int) { sizes = append(sizes, size) }})

	hash, err := pool.Add(invoke(1, 0x10, 0))
	require.NoError(t, err)
	assert.Equal(t, f(1), hash)
	assert.True(t, pool.Contains(f(1)))
	assert.Equal(t, 1, pool.Len())

	got, ok := pool.Get(f(1))
	require.True(t, ok)
	assert.Equal(t, f(1), got.Hash())

	_, err = pool.Add(invoke(1, 0x10, 0))
	require.ErrorIs(t, err, mempool.ErrDuplicateTx)
	assert.Equal(t, []int{1}, sizes)

	t.Run("pool full", func(t *testing.T) {
		full := newPool(mempool.FIFO{}).WithMaxTxs(1)
		_, err := full.Add(invoke(1, 0x10, 0))
		require.NoError(t, err)
		_, err = full.Add(invoke(2, 0x10, 1))
		require.ErrorIs(t, err, mempool.ErrPoolFull)
	})
}

func TestValidatedOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	validator := mocks.NewMockValidator(ctrl)
	pool := mempool.New(validator, mempool.FIFO{}, utils.NewNopZapLogger())

	tx := invoke(1, 0x10, 0)
	validator.EXPECT().Validate(tx).Return(nil).Times(1)
	_, err := pool.Add(tx)
	require.NoError(t, err)

	// Duplicates are refused before validation.
	_, err = pool.Add(tx)
	require.ErrorIs(t, err, mempool.ErrDuplicateTx)

	stale := invoke(2, 0x10, 0)
	validator.EXPECT().Validate(stale).Return(&mempool.InvalidTransactionError{Reason: vm.ErrInvalidNonce})
	_, err = pool.Add(stale)
	require.ErrorIs(t, err, vm.ErrInvalidNonce)
	assert.Equal(t, 1, pool.Len())
}

func TestAddRefused(t *testing.T) {
	reason := errors.New("bad signature")
	var rejected []error
	pool := mempool.New(mempool.ValidatorFunc(func(tx core.BroadcastedTransaction) error {
		if tx.Transaction.Hash().Equal(f(1)) {
			return &mempool.InvalidTransactionError{Reason: reason}
		}
		return errors.New("state unavailable")
	}), mempool.FIFO{}, utils.NewNopZapLogger())
	pool.WithListener(&mempool.SelectiveListener{OnRejectedCb: func(err error) { rejected = append(rejected, err) }})

	_, err := pool.Add(invoke(1, 0x10, 0))
	var invalidErr *mempool.InvalidTransactionError
	require.ErrorAs(t, err, &invalidErr)
	require.ErrorIs(t, err, reason)
	assert.Equal(t, reason, pool.Rejected(f(1)))
	assert.Equal(t, []error{reason}, rejected)

	_, err = pool.Add(invoke(2, 0x10, 0))
	require.Error(t, err)
	assert.False(t, errors.As(err, &invalidErr))
	assert.NoError(t, pool.Rejected(f(2)))
	assert.Zero(t, pool.Len())
}

func TestOrdering(t *testing.T) {
	t.Run("fifo", func(t *testing.T) {
		pool := newPool(mempool.FIFO{})
		for i := uint64(1); i <= 3; i++ {
			_, err := pool.Add(invoke(10-i, i, 0))
			require.NoError(t, err)
		}
		taken, err := pool.Take(nonces{}, 0)
		require.NoError(t, err)
		assert.Equal(t, []uint64{9, 8, 7}, hashes(taken))
		assert.Zero(t, pool.Len())
	})

	t.Run("tip", func(t *testing.T) {
		pool := newPool(mempool.TipOrdering{})
		tipped := &core.InvokeTransaction{
			TransactionHash: f(1),
			SenderAddress:   f(0x1),
			Nonce:           f(0),
			Tip:             500,
			Version:         core.NewTransactionVersion(3),
		}
		for _, tx := range []core.BroadcastedTransaction{
			invoke(100, 0x2, 0),
			{Transaction: tipped},
			invoke(200, 0x3, 0),
			invoke(100+1, 0x4, 0),
		} {
			_, err := pool.Add(tx)
			require.NoError(t, err)
		}
		taken, err := pool.Take(nonces{}, 0)
		require.NoError(t, err)
		// Max fees equal the hashes here.
		assert.Equal(t, []uint64{1, 200, 101, 100}, hashes(taken))
	})
}

func TestTake(t *testing.T) {
	pool := newPool(mempool.TipOrdering{})
	state := nonces{0xa: 5}
	for _, tx := range []core.BroadcastedTransaction{
		invoke(300, 0xa, 6), // ready once 5 is taken
		invoke(200, 0xa, 5),
		invoke(100, 0xa, 8), // gap
		invoke(50, 0xa, 4),  // stale
		invoke(20, 0xb, 0),
	} {
		_, err := pool.Add(tx)
		require.NoError(t, err)
	}
	var rejected []error
	pool.WithListener(&mempool.SelectiveListener{OnRejectedCb: func(err error) { rejected = append(rejected, err) }})

	taken, err := pool.Take(state, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{200}, hashes(taken))

	// The pending state has executed nonce 5.
	state[0xa] = 6
	taken, err = pool.Take(state, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint64{300, 20}, hashes(taken))
	assert.False(t, pool.Contains(f(50)))
	assert.Error(t, pool.Rejected(f(50)))
	require.Len(t, rejected, 1)
	assert.Equal(t, pool.Rejected(f(50)), rejected[0])

	state[0xa] = 7
	taken, err = pool.Take(state, 0)
	require.NoError(t, err)
	assert.Empty(t, taken)
	assert.Equal(t, 1, pool.Len(), "nonce 8 waits for 7")

	t.Run("l1 handlers are always ready", func(t *testing.T) {
		_, err := pool.Add(core.BroadcastedTransaction{Transaction: &core.L1HandlerTransaction{
			TransactionHash: f(77),
			Nonce:           f(1000),
			Version:         core.NewTransactionVersion(0),
		}})
		require.NoError(t, err)
		taken, err := pool.Take(state, 0)
		require.NoError(t, err)
		assert.Equal(t, []uint64{77}, hashes(taken))
	})
}

func TestReturn(t *testing.T) {
	pool := newPool(mempool.FIFO{})
	for i := uint64(1); i <= 3; i++ {
		_, err := pool.Add(invoke(i, i, 0))
		require.NoError(t, err)
	}
	taken, err := pool.Take(nonces{}, 2)
	require.NoError(t, err)
	require.Len(t, taken, 2)

	pool.Return(taken)
	assert.Equal(t, 3, pool.Len())
	all, err := pool.Take(nonces{}, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, hashes(all))
}

func TestRevalidate(t *testing.T) {
	pool := newPool(mempool.FIFO{})
	for _, tx := range []core.BroadcastedTransaction{
		invoke(1, 0xa, 0),
		invoke(2, 0xa, 1),
		invoke(3, 0xb, 0),
	} {
		_, err := pool.Add(tx)
		require.NoError(t, err)
	}

	evicted, err := pool.Revalidate(nonces{0xa: 1})
	require.NoError(t, err)
	assert.Equal(t, []*felt.Felt{f(1)}, evicted)
	assert.Equal(t, 2, pool.Len())
	assert.Error(t, pool.Rejected(f(1)))
}

func TestWaitAndSubscribe(t *testing.T) {
	pool := newPool(mempool.FIFO{})
	sub := pool.Subscribe()
	t.Cleanup(sub.Unsubscribe)

	_, err := pool.Add(invoke(1, 0xa, 0))
	require.NoError(t, err)

	select {
	case <-pool.Wait():
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}
	select {
	case tx := <-sub.Recv():
		assert.Equal(t, f(1), tx.Hash())
	case <-time.After(time.Second):
		t.Fatal("no subscription value")
	}
}
