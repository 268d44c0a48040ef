// Package builder produces blocks: it executes the transactions handed out by the pool on top of
// a pending block and seals that block according to the mining mode.
package builder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/backend"
	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/feed"
	"github.com/NethermindEth/katana/mempool"
	"github.com/NethermindEth/katana/state"
	"github.com/NethermindEth/katana/utils"
	"github.com/NethermindEth/katana/vm"
)

// ErrPendingTransactions is returned by the clock controls while the pending block has
// transactions: they were executed at the current timestamp.
var ErrPendingTransactions = errors.New("pending block already has transactions")

// BlockProductionError is returned when a block could not be committed. Its transactions went
// back to the pool.
type BlockProductionError struct {
	Err error
}

func (e *BlockProductionError) Error() string {
	return fmt.Sprintf("block production: %v", e.Err)
}

func (e *BlockProductionError) Unwrap() error {
	return e.Err
}

type modeKind uint8

const (
	instant modeKind = iota
	interval
	onDemand
)

// Mode decides when blocks are sealed.
type Mode struct {
	kind     modeKind
	interval time.Duration
}

// Instant seals a block for every transaction.
func Instant() Mode {
	return Mode{kind: instant}
}

// Interval seals the pending block every d, whether it has transactions or not.
func Interval(d time.Duration) Mode {
	return Mode{kind: interval, interval: d}
}

// OnDemand seals the pending block only on ForceMine.
func OnDemand() Mode {
	return Mode{kind: onDemand}
}

func (m Mode) String() string {
	switch m.kind {
	case interval:
		return fmt.Sprintf("interval(%s)", m.interval)
	case onDemand:
		return "on-demand"
	default:
		return "instant"
	}
}

// Backend seals the blocks built by the producer.
type Backend interface {
	HeadHeader() (*core.Header, error)
	HeadState() (state.Reader, blockchain.StateCloser, error)
	NewBlockEnv(timestamp uint64) (*core.BlockEnv, error)
	ExecutorFactory() vm.ExecutorFactory
	MinePendingBlock(block *backend.ExecutedBlock) (*backend.MinedBlockOutcome, error)
}

// Pool hands out ready transactions and takes back those that could not be mined.
type Pool interface {
	Take(nonces mempool.NonceReader, max int) ([]*mempool.PendingTx, error)
	Return(txs []*mempool.PendingTx)
	Reject(hash *felt.Felt, reason error)
}

type Producer struct {
	backend  Backend
	pool     Pool
	mode     Mode
	flags    vm.SimulationFlags
	log      utils.SimpleLogger
	listener EventListener

	mu      sync.Mutex
	pending *pendingBlock
	clock   clock

	outcomes *feed.Feed[*backend.MinedBlockOutcome]
}

func New(b Backend, pool Pool, mode Mode, flags vm.SimulationFlags, log utils.SimpleLogger) *Producer {
	return &Producer{
		backend:  b,
		pool:     pool,
		mode:     mode,
		flags:    flags,
		log:      log,
		listener: &SelectiveListener{},
		clock:    clock{now: time.Now},
		outcomes: feed.New[*backend.MinedBlockOutcome](),
	}
}

func (p *Producer) WithListener(listener EventListener) *Producer {
	p.listener = listener
	return p
}

// WithClock replaces the wall clock block timestamps are derived from.
func (p *Producer) WithClock(now func() time.Time) *Producer {
	p.clock.now = now
	return p
}

func (p *Producer) Mode() Mode {
	return p.mode
}

// Run seals the pending block on every tick of an interval producer. Other modes only wait for
// ctx. The pending block is abandoned on return and its transactions go back to the pool.
func (p *Producer) Run(ctx context.Context) error {
	defer p.Close()

	if p.mode.kind != interval {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(p.mode.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := p.ForceMine(); err != nil {
				return err
			}
		}
	}
}

// Close abandons the pending block: its transactions go back to the pool and the state snapshot
// it executes on is released. A later call that needs a pending block opens a new one.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return
	}
	p.pool.Return(p.pending.txs)
	p.discard()
}

// SubscribeOutcomes streams the blocks sealed by the producer.
func (p *Producer) SubscribeOutcomes() *feed.Subscription[*backend.MinedBlockOutcome] {
	return p.outcomes.SubscribeKeepLast()
}

// Drain takes every ready transaction from the pool and executes it.
func (p *Producer) Drain() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensurePending(); err != nil {
		return err
	}
	txs, err := p.pool.Take(p.pending.executor.State(), 0)
	if err != nil {
		return err
	}
	return p.queue(txs)
}

// QueueTransactions executes txs on top of the pending block. An instant producer seals a block
// for each transaction that made it in.
func (p *Producer) QueueTransactions(txs []*mempool.PendingTx) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue(txs)
}

func (p *Producer) queue(txs []*mempool.PendingTx) error {
	if len(txs) == 0 {
		return nil
	}
	if p.mode.kind != instant {
		if err := p.ensurePending(); err != nil {
			return err
		}
		p.execute(txs)
		return nil
	}

	for i, tx := range txs {
		if err := p.ensurePending(); err != nil {
			p.pool.Return(txs[i:])
			return err
		}
		if p.execute([]*mempool.PendingTx{tx}) == 0 {
			continue
		}
		if _, err := p.seal(); err != nil {
			p.pool.Return(txs[i+1:])
			return err
		}
	}
	return nil
}

// execute runs txs on the pending block and returns how many made it in. Transactions failing
// validation are dropped and reported to the pool, reverted ones stay in the block.
func (p *Producer) execute(txs []*mempool.PendingTx) int {
	broadcasted := make([]core.BroadcastedTransaction, len(txs))
	for i, tx := range txs {
		broadcasted[i] = tx.Tx
	}

	included := 0
	for i, res := range p.pending.executor.Execute(broadcasted) {
		if res.Failed() {
			p.log.Debugw("Transaction dropped", "hash", txs[i].Hash(), "err", res.Err)
			p.pool.Reject(txs[i].Hash(), res.Err)
			continue
		}
		if res.Receipt.Reverted {
			p.log.Debugw("Transaction reverted", "hash", txs[i].Hash(), "reason", res.Receipt.RevertReason)
		}
		p.pending.txs = append(p.pending.txs, txs[i])
		p.pending.receipts = append(p.pending.receipts, res.Receipt)
		p.pending.traces = append(p.pending.traces, res.Trace)
		included++
	}
	p.listener.OnTransactionsExecuted(included, len(txs)-included)
	return included
}

// ForceMine seals the pending block, an empty one if nothing is pending.
func (p *Producer) ForceMine() (*backend.MinedBlockOutcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensurePending(); err != nil {
		return nil, err
	}
	return p.seal()
}

func (p *Producer) seal() (*backend.MinedBlockOutcome, error) {
	start := time.Now()
	pending := p.pending
	st := pending.executor.State()
	outcome, err := p.backend.MinePendingBlock(&backend.ExecutedBlock{
		Env:          pending.executor.Env(),
		Transactions: pending.transactions(),
		Receipts:     pending.receipts,
		Traces:       pending.traces,
		StateDiff:    st.StateDiff(),
		Classes:      st.Classes(),
	})
	p.discard()
	if err != nil {
		p.pool.Return(pending.txs)
		return nil, &BlockProductionError{Err: err}
	}

	p.listener.OnBlockFinalised(outcome.Block.Header, time.Since(start))
	p.outcomes.Send(outcome)
	return outcome, nil
}

// ensurePending opens a pending block on top of the head if there is none.
func (p *Producer) ensurePending() error {
	if p.pending != nil {
		return nil
	}

	parent, err := p.backend.HeadHeader()
	if err != nil {
		return err
	}
	env, err := p.backend.NewBlockEnv(p.clock.next())
	if err != nil {
		return err
	}
	reader, closer, err := p.backend.HeadState()
	if err != nil {
		return err
	}
	base := newSharedState(reader, closer)
	p.pending = &pendingBlock{
		parent:   parent,
		base:     base,
		executor: p.backend.ExecutorFactory().NewExecutor(base, env, p.flags),
	}
	return nil
}

func (p *Producer) discard() {
	if err := p.pending.base.release(); err != nil {
		p.log.Errorw("Failed to close pending state", "err", err)
	}
	p.pending = nil
}

// Pending returns a copy of the block being built.
func (p *Producer) Pending() (*PendingBlock, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensurePending(); err != nil {
		return nil, err
	}
	return p.pending.snapshot()
}

// PendingState returns a copy of the state of the pending block with its environment. The closer
// must be called once the state is no longer used.
func (p *Producer) PendingState() (state.Reader, *core.BlockEnv, func() error, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensurePending(); err != nil {
		return nil, nil, nil, err
	}
	p.pending.base.acquire()
	env := *p.pending.executor.Env()
	return p.pending.executor.State().Clone(), &env, p.pending.base.release, nil
}

// ValidationState is the state incoming transactions are validated against.
func (p *Producer) ValidationState() (state.Reader, *core.BlockEnv, func() error, error) {
	return p.PendingState()
}

// SetStorageAt writes value into the pending state. It is committed with the pending block.
func (p *Producer) SetStorageAt(addr, key, value *felt.Felt) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensurePending(); err != nil {
		return err
	}
	p.pending.executor.State().SetStorage(addr, key, value)
	return nil
}

// SetNextBlockTimestamp makes ts the timestamp of the next block. Later blocks keep the same
// distance to the wall clock.
func (p *Producer) SetNextBlockTimestamp(ts uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkNoTransactions(); err != nil {
		return err
	}
	p.clock.nextStart = ts
	p.restamp()
	return nil
}

// IncreaseNextBlockTimestamp moves the clock of the next blocks forward by seconds.
func (p *Producer) IncreaseNextBlockTimestamp(seconds uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkNoTransactions(); err != nil {
		return err
	}
	p.clock.offset += int64(seconds)
	p.restamp()
	return nil
}

// ResetTimestampOffset puts block timestamps back on the wall clock.
func (p *Producer) ResetTimestampOffset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clock.offset = 0
	p.clock.nextStart = 0
}

// NextBlockTimestamp is the timestamp of the pending block, or the one the next block would get.
func (p *Producer) NextBlockTimestamp() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pending != nil {
		return p.pending.executor.Env().Timestamp
	}
	c := p.clock
	return c.next()
}

func (p *Producer) checkNoTransactions() error {
	if p.pending != nil && len(p.pending.txs) > 0 {
		return ErrPendingTransactions
	}
	return nil
}

// restamp moves an open pending block, which has no transactions, to the current clock.
func (p *Producer) restamp() {
	if p.pending != nil {
		p.pending.executor.Env().Timestamp = p.clock.next()
	}
}
