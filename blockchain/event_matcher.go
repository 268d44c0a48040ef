package blockchain

import (
	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/bits-and-blooms/bloom/v3"
)

// keyFilter holds the accepted values of one key position. An empty filter accepts anything.
type keyFilter map[felt.Felt]struct{}

// EventMatcher selects events by emitting contract and by keys. Blocks are first tested against
// their events bloom, which holds every emitter address and every key suffixed with its position.
type EventMatcher struct {
	addresses map[felt.Felt]struct{}
	keys      []keyFilter
}

func NewEventMatcher(contractAddresses []felt.Felt, keys [][]felt.Felt) EventMatcher {
	m := EventMatcher{
		addresses: make(map[felt.Felt]struct{}, len(contractAddresses)),
		keys:      make([]keyFilter, len(keys)),
	}
	for _, addr := range contractAddresses {
		m.addresses[addr] = struct{}{}
	}
	for pos, alternatives := range keys {
		m.keys[pos] = make(keyFilter, len(alternatives))
		for _, key := range alternatives {
			m.keys[pos][key] = struct{}{}
		}
	}
	return m
}

// MatchesEventKeys treats keys [["V1", "V2"], [], ["V3"]] as
// (Keys[0] == "V1" OR Keys[0] == "V2") AND Keys[2] == "V3".
func (e *EventMatcher) MatchesEventKeys(eventKeys []*felt.Felt) bool {
	if len(eventKeys) < len(e.keys) {
		return false
	}
	for pos, accepted := range e.keys {
		if len(accepted) == 0 {
			continue
		}
		if _, ok := accepted[*eventKeys[pos]]; !ok {
			return false
		}
	}
	return true
}

func (e *EventMatcher) MatchesAddress(eventFrom *felt.Felt) bool {
	if len(e.addresses) == 0 {
		return true
	}
	if eventFrom == nil {
		return false
	}
	_, ok := e.addresses[*eventFrom]
	return ok
}

// TestBloom reports whether a block with the given events bloom may hold a matching event.
func (e *EventMatcher) TestBloom(filter *bloom.BloomFilter) bool {
	anyOf := func(candidates map[felt.Felt]struct{}, suffix ...byte) bool {
		for candidate := range candidates {
			b := candidate.Bytes()
			if filter.Test(append(b[:], suffix...)) {
				return true
			}
		}
		return false
	}

	if len(e.addresses) > 0 && !anyOf(e.addresses) {
		return false
	}
	for pos, accepted := range e.keys {
		if len(accepted) > 0 && !anyOf(accepted, byte(pos)) {
			return false
		}
	}
	return true
}

// AppendBlockEvents appends the matching events of a block after skipping the first skippedEvents
// events. It stops with errChunkSizeReached once matched holds chunkSize events; the returned count
// is then the number of events of the block already consumed.
func (e *EventMatcher) AppendBlockEvents(
	matched []FilteredEvent,
	header *core.Header,
	receipts []*core.TransactionReceipt,
	skippedEvents uint64,
	chunkSize uint64,
) ([]FilteredEvent, uint64, error) {
	// Pending blocks have no hash and report no number either.
	var blockNumber *uint64
	if header.Hash != nil {
		blockNumber = &header.Number
	}

	var processed uint64
	for txIndex, receipt := range receipts {
		for eventIndex, event := range receipt.Events {
			if processed < skippedEvents {
				processed++
				continue
			}
			if !e.MatchesAddress(event.From) || !e.MatchesEventKeys(event.Keys) {
				processed++
				continue
			}
			if uint64(len(matched)) >= chunkSize {
				return matched, processed, errChunkSizeReached
			}

			matched = append(matched, FilteredEvent{
				Event:            event,
				BlockNumber:      blockNumber,
				BlockHash:        header.Hash,
				TransactionHash:  receipt.TransactionHash,
				TransactionIndex: uint(txIndex),
				EventIndex:       uint(eventIndex),
			})
			processed++
		}
	}
	return matched, processed, nil
}
