package sequencer_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/backend"
	"github.com/NethermindEth/katana/builder"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/db/pebble"
	"github.com/NethermindEth/katana/feed"
	"github.com/NethermindEth/katana/gasoracle"
	"github.com/NethermindEth/katana/genesis"
	"github.com/NethermindEth/katana/mempool"
	"github.com/NethermindEth/katana/sequencer"
	"github.com/NethermindEth/katana/utils"
	"github.com/NethermindEth/katana/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T) (*backend.Backend, []genesis.DevAccount) {
	t.Helper()
	gen := genesis.Default(utils.DefaultChainID)
	gen.AccountsCount = 1
	b, err := backend.New(context.Background(), &backend.Config{ChainID: utils.DefaultChainID, Genesis: gen},
		pebble.NewMemTest(t), gasoracle.NewFixed(gasoracle.DefaultGasPrice, gasoracle.DefaultDataGasPrice),
		utils.NewNopZapLogger())
	require.NoError(t, err)
	accounts, err := gen.DevAccounts()
	require.NoError(t, err)
	return b, accounts
}

func transfer(t *testing.T, account genesis.DevAccount, nonce uint64) core.BroadcastedTransaction {
	t.Helper()
	tx := &core.InvokeTransaction{
		SenderAddress: account.Address,
		CallData: []*felt.Felt{
			new(felt.Felt).SetUint64(1), genesis.ETHAddress, crypto.Selector("transfer"), new(felt.Felt).SetUint64(3),
			new(felt.Felt).SetUint64(0x99), new(felt.Felt).SetUint64(1), new(felt.Felt),
		},
		MaxFee:  utils.MustHexToFelt("0x100000000000000"),
		Nonce:   new(felt.Felt).SetUint64(nonce),
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

func TestInstantMining(t *testing.T) {
	b, accounts := newBackend(t)
	log := utils.NewNopZapLogger()
	pool := mempool.New(mempool.ValidatorFunc(func(core.BroadcastedTransaction) error { return nil }), mempool.FIFO{}, log)
	producer := builder.New(b, pool, builder.Instant(), vm.SimulationFlags{}, log)
	t.Cleanup(producer.Close)
	seq := sequencer.New(producer, pool, b, log)

	heads := seq.SubscribeNewHeads()
	t.Cleanup(heads.Unsubscribe)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- seq.Run(ctx) }()

	for nonce := range uint64(2) {
		tx := transfer(t, accounts[0], nonce)
		_, err := pool.Add(tx)
		require.NoError(t, err)

		select {
		case head := <-heads.Recv():
			assert.Equal(t, nonce+1, head.Number)
			require.Len(t, head.Transactions, 1)
			assert.Equal(t, tx.Transaction.Hash(), head.Transactions[0].Hash())
		case <-time.After(5 * time.Second):
			require.FailNow(t, "no block mined")
		}
	}

	cancel()
	require.NoError(t, <-done)
	assert.Zero(t, pool.Len())
}

type fakeProducer struct {
	runs     atomic.Int32
	runErr   error
	drainErr error
	outcomes *feed.Feed[*backend.MinedBlockOutcome]
}

func (p *fakeProducer) Run(ctx context.Context) error {
	if p.runs.Add(1) == 1 && p.runErr != nil {
		return p.runErr
	}
	<-ctx.Done()
	return nil
}

func (p *fakeProducer) Drain() error {
	return p.drainErr
}

func (p *fakeProducer) SubscribeOutcomes() *feed.Subscription[*backend.MinedBlockOutcome] {
	return p.outcomes.Subscribe()
}

type idlePool struct{}

func (idlePool) Wait() <-chan struct{} {
	return nil
}

func (idlePool) Revalidate(mempool.NonceReader) ([]*felt.Felt, error) {
	return nil, nil
}

func TestProducerRestartsAfterFailedBlock(t *testing.T) {
	b, _ := newBackend(t)
	producer := &fakeProducer{
		runErr:   &builder.BlockProductionError{Err: errors.New("disk full")},
		outcomes: feed.New[*backend.MinedBlockOutcome](),
	}
	seq := sequencer.New(producer, idlePool{}, b, utils.NewNopZapLogger()).WithRestartDelay(time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- seq.Run(ctx) }()

	require.Eventually(t, func() bool { return producer.runs.Load() == 2 }, 5*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestFatalErrorStopsSequencer(t *testing.T) {
	b, _ := newBackend(t)
	fatal := errors.New("corrupted head")

	t.Run("from the producer", func(t *testing.T) {
		producer := &fakeProducer{runErr: fatal, outcomes: feed.New[*backend.MinedBlockOutcome]()}
		err := sequencer.New(producer, idlePool{}, b, utils.NewNopZapLogger()).Run(context.Background())
		require.ErrorIs(t, err, fatal)
	})

	t.Run("from the pool listener", func(t *testing.T) {
		producer := &fakeProducer{drainErr: fatal, outcomes: feed.New[*backend.MinedBlockOutcome]()}
		err := sequencer.New(producer, idlePool{}, b, utils.NewNopZapLogger()).Run(context.Background())
		require.ErrorIs(t, err, fatal)
	})
}

type fakeMessaging struct {
	mined atomic.Int32
}

func (m *fakeMessaging) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (m *fakeMessaging) BlockMined() {
	m.mined.Add(1)
}

func TestOutcomesReachMessaging(t *testing.T) {
	b, _ := newBackend(t)
	outcomes := feed.New[*backend.MinedBlockOutcome]()
	messaging := &fakeMessaging{}
	seq := sequencer.New(&fakeProducer{outcomes: outcomes}, idlePool{}, b, utils.NewNopZapLogger()).
		WithMessaging(messaging)
	heads := seq.SubscribeNewHeads()
	t.Cleanup(heads.Unsubscribe)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- seq.Run(ctx) }()

	block := &core.Block{Header: &core.Header{Number: 7}}
	require.Eventually(t, func() bool { return outcomes.Len() > 0 }, 5*time.Second, time.Millisecond)
	outcomes.Send(&backend.MinedBlockOutcome{BlockNumber: 7, Block: block})

	select {
	case head := <-heads.Recv():
		assert.Equal(t, block, head)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "no head forwarded")
	}
	assert.Equal(t, int32(1), messaging.mined.Load())

	cancel()
	require.NoError(t, <-done)
}
