package builder_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/backend"
	"github.com/NethermindEth/katana/builder"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/db/pebble"
	"github.com/NethermindEth/katana/gasoracle"
	"github.com/NethermindEth/katana/genesis"
	"github.com/NethermindEth/katana/mempool"
	"github.com/NethermindEth/katana/utils"
	"github.com/NethermindEth/katana/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v uint64) *felt.Felt {
	return new(felt.Felt).SetUint64(v)
}

var maxFee = utils.MustHexToFelt("0x100000000000000")

type env struct {
	backend  *backend.Backend
	pool     *mempool.Pool
	accounts []genesis.DevAccount
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gen := genesis.Default(utils.DefaultChainID)
	gen.AccountsCount = 2
	log := utils.NewNopZapLogger()

	b, err := backend.New(context.Background(), &backend.Config{ChainID: utils.DefaultChainID, Genesis: gen},
		pebble.NewMemTest(t), gasoracle.NewFixed(gasoracle.DefaultGasPrice, gasoracle.DefaultDataGasPrice), log)
	require.NoError(t, err)
	accounts, err := gen.DevAccounts()
	require.NoError(t, err)

	accept := mempool.ValidatorFunc(func(core.BroadcastedTransaction) error { return nil })
	return &env{
		backend:  b,
		pool:     mempool.New(accept, mempool.FIFO{}, log),
		accounts: accounts,
	}
}

func (e *env) producer(t *testing.T, mode builder.Mode) *builder.Producer {
	p := builder.New(e.backend, e.pool, mode, vm.SimulationFlags{}, utils.NewNopZapLogger())
	t.Cleanup(p.Close)
	return p
}

// transfer signs an invoke v1 sending amount wei of ETH from account to 0x99.
func (e *env) transfer(t *testing.T, account genesis.DevAccount, nonce, amount uint64) core.BroadcastedTransaction {
	t.Helper()
	tx := &core.InvokeTransaction{
		SenderAddress: account.Address,
		CallData: []*felt.Felt{
			f(1), genesis.ETHAddress, crypto.Selector("transfer"), f(3), f(0x99), f(amount), f(0),
		},
		MaxFee:  maxFee,
		Nonce:   f(nonce),
		Version: core.NewTransactionVersion(1),
	}
	hash, err := core.TransactionHash(tx, utils.DefaultChainID.Felt())
	require.NoError(t, err)
	tx.TransactionHash = hash
	r, s, err := crypto.Sign(account.PrivateKey, hash)
	require.NoError(t, err)
	tx.TransactionSignature = []*felt.Felt{r, s}
	return core.BroadcastedTransaction{Transaction: tx}
}

func (e *env) add(t *testing.T, tx core.BroadcastedTransaction) {
	t.Helper()
	_, err := e.pool.Add(tx)
	require.NoError(t, err)
}

func pendingTxs(txs ...core.BroadcastedTransaction) []*mempool.PendingTx {
	pending := make([]*mempool.PendingTx, len(txs))
	for i, tx := range txs {
		pending[i] = &mempool.PendingTx{ID: uint64(i), Tx: tx}
	}
	return pending
}

func TestInstant(t *testing.T) {
	e := newEnv(t)
	p := e.producer(t, builder.Instant())
	sub := p.SubscribeOutcomes()
	t.Cleanup(sub.Unsubscribe)

	tx := e.transfer(t, e.accounts[0], 0, 1000)
	e.add(t, tx)
	require.NoError(t, p.Drain())
	assert.Zero(t, e.pool.Len())

	select {
	case outcome := <-sub.Recv():
		assert.Equal(t, uint64(1), outcome.BlockNumber)
		assert.Equal(t, []*felt.Felt{tx.Transaction.Hash()}, outcome.TxHashes)
	default:
		require.FailNow(t, "no block mined")
	}

	receipt, _, number, err := e.backend.Chain().Receipt(tx.Transaction.Hash())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), number)
	assert.False(t, receipt.Reverted)

	t.Run("invalid transaction mines nothing", func(t *testing.T) {
		stale := e.transfer(t, e.accounts[0], 0, 2000)
		require.NoError(t, p.QueueTransactions(pendingTxs(stale)))

		height, err := e.backend.Chain().Height()
		require.NoError(t, err)
		assert.Equal(t, uint64(1), height)
		assert.ErrorIs(t, e.pool.Rejected(stale.Transaction.Hash()), vm.ErrInvalidNonce)
	})
}

func TestOnDemand(t *testing.T) {
	e := newEnv(t)
	p := e.producer(t, builder.OnDemand())
	account := e.accounts[0]

	require.NoError(t, p.QueueTransactions(pendingTxs(e.transfer(t, account, 0, 1), e.transfer(t, account, 1, 1))))

	pending, err := p.Pending()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), pending.Block.Number)
	assert.Len(t, pending.Block.Transactions, 2)
	assert.Len(t, pending.Block.Receipts, 2)
	assert.Nil(t, pending.Block.Hash)
	assert.NotEmpty(t, pending.StateUpdate.StateDiff.StorageDiffs)

	reader, _, closer, err := p.PendingState()
	require.NoError(t, err)
	nonce, err := reader.ContractNonce(account.Address)
	require.NoError(t, err)
	assert.Equal(t, f(2), nonce)
	require.NoError(t, closer())

	height, err := e.backend.Chain().Height()
	require.NoError(t, err)
	assert.Zero(t, height)

	outcome, err := p.ForceMine()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), outcome.BlockNumber)
	assert.Len(t, outcome.TxHashes, 2)

	t.Run("empty block", func(t *testing.T) {
		empty, err := p.ForceMine()
		require.NoError(t, err)
		assert.Equal(t, uint64(2), empty.BlockNumber)
		assert.Empty(t, empty.TxHashes)
		assert.Equal(t, outcome.BlockHash, empty.Block.ParentHash)
	})

	t.Run("pending block moves on", func(t *testing.T) {
		pending, err := p.Pending()
		require.NoError(t, err)
		assert.Equal(t, uint64(3), pending.Block.Number)
		assert.Empty(t, pending.Block.Transactions)
	})
}

func TestDrainWaitsForNonceGap(t *testing.T) {
	e := newEnv(t)
	p := e.producer(t, builder.OnDemand())
	account := e.accounts[0]

	e.add(t, e.transfer(t, account, 1, 1))
	require.NoError(t, p.Drain())
	assert.Equal(t, 1, e.pool.Len())

	e.add(t, e.transfer(t, account, 0, 1))
	require.NoError(t, p.Drain())
	assert.Zero(t, e.pool.Len())

	pending, err := p.Pending()
	require.NoError(t, err)
	assert.Len(t, pending.Block.Transactions, 2)
}

func TestInterval(t *testing.T) {
	e := newEnv(t)
	p := e.producer(t, builder.Interval(10 * time.Millisecond))
	sub := p.SubscribeOutcomes()
	t.Cleanup(sub.Unsubscribe)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	// Outcomes keep only the latest block, which need not be the first one.
	select {
	case outcome := <-sub.Recv():
		assert.Empty(t, outcome.TxHashes)
		require.Positive(t, outcome.BlockNumber)
		parent, err := e.backend.Chain().HeaderByNumber(outcome.BlockNumber - 1)
		require.NoError(t, err)
		assert.Equal(t, parent.Hash, outcome.Block.ParentHash)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "no block mined")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestClock(t *testing.T) {
	e := newEnv(t)
	now := time.Unix(1000, 0)
	p := e.producer(t, builder.OnDemand()).WithClock(func() time.Time { return now })

	mine := func() uint64 {
		t.Helper()
		outcome, err := p.ForceMine()
		require.NoError(t, err)
		return outcome.Block.Timestamp
	}

	assert.Equal(t, uint64(1000), mine())

	require.NoError(t, p.SetNextBlockTimestamp(5000))
	assert.Equal(t, uint64(5000), mine())

	now = now.Add(10 * time.Second)
	assert.Equal(t, uint64(5010), mine())

	require.NoError(t, p.IncreaseNextBlockTimestamp(100))
	assert.Equal(t, uint64(5110), p.NextBlockTimestamp())

	p.ResetTimestampOffset()
	assert.Equal(t, uint64(1010), p.NextBlockTimestamp())

	t.Run("refused with pending transactions", func(t *testing.T) {
		require.NoError(t, p.QueueTransactions(pendingTxs(e.transfer(t, e.accounts[0], 0, 1))))
		require.ErrorIs(t, p.SetNextBlockTimestamp(9000), builder.ErrPendingTransactions)
		require.ErrorIs(t, p.IncreaseNextBlockTimestamp(1), builder.ErrPendingTransactions)
	})
}

func TestSetStorageAt(t *testing.T) {
	e := newEnv(t)
	p := e.producer(t, builder.OnDemand())

	require.NoError(t, p.SetStorageAt(f(0x123), f(1), f(0x42)))
	reader, _, closer, err := p.PendingState()
	require.NoError(t, err)
	value, err := reader.ContractStorage(f(0x123), f(1))
	require.NoError(t, err)
	assert.Equal(t, f(0x42), value)
	require.NoError(t, closer())

	_, err = p.ForceMine()
	require.NoError(t, err)

	head, headCloser, err := e.backend.HeadState()
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, headCloser()) })
	value, err = head.ContractStorage(f(0x123), f(1))
	require.NoError(t, err)
	assert.Equal(t, f(0x42), value)
}

type failingBackend struct {
	*backend.Backend
}

func TestClose(t *testing.T) {
	e := newEnv(t)
	p := e.producer(t, builder.OnDemand())

	e.add(t, e.transfer(t, e.accounts[0], 0, 1))
	require.NoError(t, p.Drain())
	require.Zero(t, e.pool.Len())

	p.Close()
	assert.Equal(t, 1, e.pool.Len())
	p.Close()

	// the producer opens a fresh pending block on demand
	pending, err := p.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending.Block.Transactions)
}

var errCommit = errors.New("commit failed")

func (failingBackend) MinePendingBlock(*backend.ExecutedBlock) (*backend.MinedBlockOutcome, error) {
	return nil, errCommit
}

func TestCommitFailure(t *testing.T) {
	e := newEnv(t)
	p := builder.New(failingBackend{e.backend}, e.pool, builder.OnDemand(), vm.SimulationFlags{}, utils.NewNopZapLogger())
	t.Cleanup(p.Close)

	e.add(t, e.transfer(t, e.accounts[0], 0, 1))
	require.NoError(t, p.Drain())
	assert.Zero(t, e.pool.Len())

	_, err := p.ForceMine()
	var productionErr *builder.BlockProductionError
	require.ErrorAs(t, err, &productionErr)
	require.ErrorIs(t, err, errCommit)
	assert.Equal(t, 1, e.pool.Len())

	pending, err := p.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending.Block.Transactions)
}
