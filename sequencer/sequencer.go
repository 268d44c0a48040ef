// Package sequencer runs block production: it feeds the pool to the producer, keeps the producer
// running and forwards every mined block to the pool, the messaging service and subscribers.
package sequencer

import (
	"context"
	"errors"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/backend"
	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/builder"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/feed"
	"github.com/NethermindEth/katana/mempool"
	"github.com/NethermindEth/katana/service"
	"github.com/NethermindEth/katana/state"
	"github.com/NethermindEth/katana/utils"
	"github.com/sourcegraph/conc"
)

var _ service.Service = (*Sequencer)(nil)

const defaultRestartDelay = time.Second

type Producer interface {
	Run(ctx context.Context) error
	Drain() error
	SubscribeOutcomes() *feed.Subscription[*backend.MinedBlockOutcome]
}

type Pool interface {
	Wait() <-chan struct{}
	Revalidate(nonces mempool.NonceReader) ([]*felt.Felt, error)
}

type HeadStater interface {
	HeadState() (state.Reader, blockchain.StateCloser, error)
}

// Messaging is told about mined blocks so their messages are sent without waiting for its next
// round.
type Messaging interface {
	service.Service
	BlockMined()
}

type Sequencer struct {
	producer     Producer
	pool         Pool
	head         HeadStater
	messaging    Messaging
	log          utils.SimpleLogger
	restartDelay time.Duration

	newHeads *feed.Feed[*core.Block]
}

func New(producer Producer, pool Pool, head HeadStater, log utils.SimpleLogger) *Sequencer {
	return &Sequencer{
		producer:     producer,
		pool:         pool,
		head:         head,
		log:          log,
		restartDelay: defaultRestartDelay,
		newHeads:     feed.New[*core.Block](),
	}
}

func (s *Sequencer) WithMessaging(m Messaging) *Sequencer {
	s.messaging = m
	return s
}

// WithRestartDelay sets how long the producer stays down after a block failed to commit.
func (s *Sequencer) WithRestartDelay(d time.Duration) *Sequencer {
	s.restartDelay = d
	return s
}

func (s *Sequencer) SubscribeNewHeads() *feed.Subscription[*core.Block] {
	return s.newHeads.Subscribe()
}

// Run returns when ctx is cancelled, or with the first error block production cannot recover
// from. Every task is stopped before it returns.
func (s *Sequencer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := s.producer.SubscribeOutcomes()
	defer outcomes.Unsubscribe()

	errs := make(chan error, 3)
	fail := func(err error) {
		errs <- err
		cancel()
	}

	var wg conc.WaitGroup
	wg.Go(func() {
		if err := s.runProducer(ctx); err != nil {
			fail(err)
		}
	})
	wg.Go(func() {
		if err := s.listenPool(ctx); err != nil {
			fail(err)
		}
	})
	wg.Go(func() {
		if err := s.forwardOutcomes(ctx, outcomes); err != nil {
			fail(err)
		}
	})
	if s.messaging != nil {
		wg.Go(func() {
			if err := s.messaging.Run(ctx); err != nil {
				s.log.Errorw("Messaging stopped", "err", err)
			}
		})
	}
	wg.Wait()

	close(errs)
	return <-errs
}

// runProducer restarts the producer when a block fails to commit. Its transactions went back to
// the pool and are retried with the next block.
func (s *Sequencer) runProducer(ctx context.Context) error {
	for {
		err := s.producer.Run(ctx)
		var productionErr *builder.BlockProductionError
		if !errors.As(err, &productionErr) {
			return err
		}

		s.log.Errorw("Block production failed, restarting", "err", err, "after", s.restartDelay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.restartDelay):
		}
	}
}

// listenPool hands every transaction the pool makes ready to the producer.
func (s *Sequencer) listenPool(ctx context.Context) error {
	for {
		if err := s.producer.Drain(); err != nil {
			var productionErr *builder.BlockProductionError
			if !errors.As(err, &productionErr) {
				return err
			}
			s.log.Errorw("Block production failed", "err", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-s.pool.Wait():
		}
	}
}

func (s *Sequencer) forwardOutcomes(ctx context.Context, outcomes *feed.Subscription[*backend.MinedBlockOutcome]) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case outcome := <-outcomes.Recv():
			if err := s.revalidatePool(); err != nil {
				return err
			}
			if s.messaging != nil {
				s.messaging.BlockMined()
			}
			s.newHeads.Send(outcome.Block)
		}
	}
}

// revalidatePool evicts the pool transactions whose nonce the new head made stale.
func (s *Sequencer) revalidatePool() error {
	head, closer, err := s.head.HeadState()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closer(); closeErr != nil {
			s.log.Errorw("Failed to close head state", "err", closeErr)
		}
	}()

	evicted, err := s.pool.Revalidate(head)
	if len(evicted) > 0 {
		s.log.Debugw("Evicted pool transactions", "hashes", evicted)
	}
	return err
}
