package messaging

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/mempool"
	"github.com/NethermindEth/katana/service"
	"github.com/NethermindEth/katana/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sourcegraph/conc"
)

// Settlement is the settlement chain end of the bridge. *Messenger implements it.
type Settlement interface {
	GatherMessages(ctx context.Context, from, maxBlocks uint64, chainID *felt.Felt) (uint64, []*core.L1HandlerTransaction, error)
	SendMessages(ctx context.Context, messages []*core.L2ToL1Message) ([]common.Hash, error)
}

// BlockSource is the local chain. *blockchain.Blockchain implements it.
type BlockSource interface {
	Height() (uint64, error)
	BlockByNumber(number uint64) (*core.Block, error)
	BlockStatus(number uint64) (blockchain.BlockStatus, error)
	TransactionByHash(hash *felt.Felt) (core.Transaction, error)
	SetL1Accepted(number uint64) error
}

type Pool interface {
	Add(tx core.BroadcastedTransaction) (*felt.Felt, error)
}

// Service moves messages both ways on every interval. Gathered messages go to the pool, the
// messages of mined blocks are sent in block order and the block is then accepted on L1. Failed
// rounds are retried on the next tick from the same block.
type Service struct {
	settlement Settlement
	chain      BlockSource
	pool       Pool
	chainID    *felt.Felt
	interval   time.Duration
	maxBlocks  uint64
	listener   EventListener
	log        utils.SimpleLogger

	gatherFrom atomic.Uint64
	sendFrom   atomic.Uint64
	mined      chan struct{}
}

var _ service.Service = (*Service)(nil)

func NewService(settlement Settlement, chain BlockSource, pool Pool, chainID *felt.Felt, cfg *Config,
	log utils.SimpleLogger,
) *Service {
	s := &Service{
		settlement: settlement,
		chain:      chain,
		pool:       pool,
		chainID:    chainID,
		interval:   time.Duration(cfg.Interval) * time.Second,
		maxBlocks:  DefaultMaxBlocks,
		listener:   &SelectiveListener{},
		log:        log,
		mined:      make(chan struct{}, 1),
	}
	s.gatherFrom.Store(cfg.FromBlock)
	return s
}

func (s *Service) WithListener(listener EventListener) *Service {
	s.listener = listener
	return s
}

func (s *Service) WithMaxBlocks(n uint64) *Service {
	s.maxBlocks = n
	return s
}

// Watermarks are the next settlement block to gather from and the next local block to send.
func (s *Service) Watermarks() (gatherFrom, sendFrom uint64) {
	return s.gatherFrom.Load(), s.sendFrom.Load()
}

// BlockMined wakes up the send loop without waiting for the next tick.
func (s *Service) BlockMined() {
	select {
	case s.mined <- struct{}{}:
	default:
	}
}

func (s *Service) Run(ctx context.Context) error {
	sendFrom, err := s.firstUnsettled()
	if err != nil {
		return err
	}
	s.sendFrom.Store(sendFrom)
	s.log.Infow("Messaging started", "interval", s.interval, "gatherFrom", s.gatherFrom.Load(), "sendFrom", sendFrom)

	var wg conc.WaitGroup
	wg.Go(func() {
		s.loop(ctx, nil, func() {
			if err := s.Gather(ctx); err != nil && ctx.Err() == nil {
				s.listener.OnError("gather")
				s.log.Warnw("Failed to gather messages", "from", s.gatherFrom.Load(), "err", err)
			}
		})
	})
	wg.Go(func() {
		s.loop(ctx, s.mined, func() {
			if err := s.Send(ctx); err != nil && ctx.Err() == nil {
				s.listener.OnError("send")
				s.log.Warnw("Failed to send messages", "block", s.sendFrom.Load(), "err", err)
			}
		})
	})
	wg.Wait()
	return nil
}

func (s *Service) loop(ctx context.Context, wake <-chan struct{}, round func()) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-wake:
		}
		round()
	}
}

// firstUnsettled is the block after the last one accepted on L1, walking back from the head.
func (s *Service) firstUnsettled() (uint64, error) {
	height, err := s.chain.Height()
	if err != nil {
		return 0, err
	}
	for n := height; ; n-- {
		status, err := s.chain.BlockStatus(n)
		if err != nil {
			return 0, err
		}
		if status == blockchain.StatusAcceptedOnL1 {
			return n + 1, nil
		}
		if n == 0 {
			return 0, nil
		}
	}
}

// Gather submits the messages of the next settlement window to the pool.
func (s *Service) Gather(ctx context.Context) error {
	from := s.gatherFrom.Load()
	to, txs, err := s.settlement.GatherMessages(ctx, from, s.maxBlocks, s.chainID)
	if err != nil {
		return err
	}

	added := 0
	for _, tx := range txs {
		if _, err := s.chain.TransactionByHash(tx.TransactionHash); err == nil {
			continue
		} else if !errors.Is(err, blockchain.ErrTransactionNotFound) {
			return err
		}

		if _, err := s.pool.Add(core.BroadcastedTransaction{Transaction: tx}); err != nil {
			if errors.Is(err, mempool.ErrDuplicateTx) {
				continue
			}
			var invalidErr *mempool.InvalidTransactionError
			if errors.As(err, &invalidErr) {
				s.log.Warnw("Dropping invalid message", "hash", tx.TransactionHash, "reason", invalidErr.Reason)
				continue
			}
			return err
		}
		s.log.Infow("Message received", "hash", tx.TransactionHash, "to", tx.ContractAddress,
			"selector", tx.EntryPointSelector, "nonce", tx.Nonce)
		added++
	}

	if to >= from {
		s.gatherFrom.Store(to + 1)
	}
	if added > 0 {
		s.listener.OnMessagesGathered(added)
	}
	return nil
}

// Send settles the messages of every mined block not sent yet, in order.
func (s *Service) Send(ctx context.Context) error {
	height, err := s.chain.Height()
	if err != nil {
		return err
	}

	for number := s.sendFrom.Load(); number <= height; number++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		block, err := s.chain.BlockByNumber(number)
		if err != nil {
			return err
		}

		if messages := blockMessages(block); len(messages) > 0 {
			hashes, err := s.settlement.SendMessages(ctx, messages)
			if err != nil {
				return err
			}
			for _, h := range hashes {
				s.log.Infow("Message sent", "block", number, "hash", h)
			}
			s.listener.OnMessagesSent(len(hashes))
		}

		if err := s.chain.SetL1Accepted(number); err != nil {
			return err
		}
		s.sendFrom.Store(number + 1)
	}
	return nil
}

func blockMessages(block *core.Block) []*core.L2ToL1Message {
	var messages []*core.L2ToL1Message
	for _, receipt := range block.Receipts {
		if receipt.Reverted {
			continue
		}
		messages = append(messages, receipt.L2ToL1Message...)
	}
	return messages
}
