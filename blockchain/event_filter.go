package blockchain

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/db"
)

var errChunkSizeReached = errors.New("chunk size reached")

// EventFilter scans a block range for events matching an address set and a key pattern. It reads
// from a single database snapshot until closed.
type EventFilter struct {
	txn       db.Transaction
	fromBlock uint64
	toBlock   uint64
	matcher   EventMatcher
	pending   *core.Block
}

// EventFilter returns a filter over [0, head]. Callers must Close it.
func (b *Blockchain) EventFilter(addresses []felt.Felt, keys [][]felt.Felt) (*EventFilter, error) {
	b.listener.OnRead("EventFilter")
	txn, err := b.database.NewTransaction(false)
	if err != nil {
		return nil, err
	}

	height, err := chainHeight(txn)
	if err != nil {
		return nil, errors.Join(err, txn.Discard())
	}
	return &EventFilter{
		txn:     txn,
		toBlock: height,
		matcher: NewEventMatcher(addresses, keys),
	}, nil
}

// SetRange narrows the scanned blocks to [from, to], both inclusive.
func (e *EventFilter) SetRange(from, to uint64) {
	e.fromBlock, e.toBlock = from, to
}

// WithPending makes the filter also scan the block being built, right after the sealed range
// when it ends at the head.
func (e *EventFilter) WithPending(pending *core.Block) *EventFilter {
	e.pending = pending
	return e
}

func (e *EventFilter) Close() error {
	return e.txn.Discard()
}

type ContinuationToken struct {
	fromBlock       uint64
	processedEvents uint64
}

func (c *ContinuationToken) String() string {
	return fmt.Sprintf("%d-%d", c.fromBlock, c.processedEvents)
}

func (c *ContinuationToken) FromString(str string) error {
	_, err := fmt.Sscanf(str, "%d-%d", &c.fromBlock, &c.processedEvents)
	return err
}

type FilteredEvent struct {
	*core.Event
	// BlockNumber and BlockHash are nil for events of the pending block.
	BlockNumber      *uint64
	BlockHash        *felt.Felt
	TransactionHash  *felt.Felt
	TransactionIndex uint
	EventIndex       uint
}

// Events returns up to chunkSize matching events starting at cToken, or at the start of the range
// when cToken is nil. A non-nil token is returned when more events may follow.
func (e *EventFilter) Events(cToken *ContinuationToken, chunkSize uint64) ([]FilteredEvent, *ContinuationToken, error) {
	if chunkSize == 0 {
		return nil, nil, errors.New("chunk size must be positive")
	}

	latest, err := chainHeight(e.txn)
	if err != nil {
		return nil, nil, err
	}

	start, skipped := e.fromBlock, uint64(0)
	if cToken != nil {
		start, skipped = cToken.fromBlock, cToken.processedEvents
	}

	var matched []FilteredEvent
	end := min(e.toBlock, latest)
	for number := start; number <= end; number++ {
		filter, err := eventsBloom(e.txn, number)
		if err != nil {
			return nil, nil, err
		}
		if !e.matcher.TestBloom(filter) {
			skipped = 0
			continue
		}

		header, err := headerByNumber(e.txn, number)
		if err != nil {
			return nil, nil, err
		}
		_, receipts, err := blockBody(e.txn, number)
		if err != nil {
			return nil, nil, err
		}

		var processed uint64
		matched, processed, err = e.matcher.AppendBlockEvents(matched, header, receipts, skipped, chunkSize)
		if errors.Is(err, errChunkSizeReached) {
			return matched, &ContinuationToken{fromBlock: number, processedEvents: processed}, nil
		} else if err != nil {
			return nil, nil, err
		}
		skipped = 0
	}

	if e.pending == nil || e.toBlock <= latest || start > e.pending.Number {
		return matched, nil, nil
	}

	var processed uint64
	matched, processed, err = e.matcher.AppendBlockEvents(matched, e.pending.Header, e.pending.Receipts, skipped,
		chunkSize)
	if errors.Is(err, errChunkSizeReached) {
		return matched, &ContinuationToken{fromBlock: e.pending.Number, processedEvents: processed}, nil
	}
	return matched, nil, err
}
