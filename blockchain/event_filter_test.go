package blockchain_test

import (
	"testing"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventFilter(t *testing.T) {
	chain := newChain(t)
	genesis := finalise(t, chain, nil)

	emitterA, emitterB := f(0x200), f(0x300)
	tx1, r1 := invoke(0x1, emitterA, 1, 2)
	block1 := &core.Block{
		Header:       header(1, genesis.Hash),
		Transactions: []core.Transaction{tx1},
		Receipts:     []*core.TransactionReceipt{r1},
	}
	_, err := chain.Finalise(block1, core.EmptyStateDiff(), nil, nil)
	require.NoError(t, err)

	tx2, r2 := invoke(0x2, emitterB, 1)
	tx3, r3 := invoke(0x3, emitterA, 3)
	block2 := &core.Block{
		Header:       header(2, block1.Hash),
		Transactions: []core.Transaction{tx2, tx3},
		Receipts:     []*core.TransactionReceipt{r2, r3},
	}
	_, err = chain.Finalise(block2, core.EmptyStateDiff(), nil, nil)
	require.NoError(t, err)

	collect := func(t *testing.T, filter *blockchain.EventFilter, chunk uint64) ([]blockchain.FilteredEvent, int) {
		t.Helper()
		var (
			all   []blockchain.FilteredEvent
			token *blockchain.ContinuationToken
			pages int
		)
		for {
			events, next, err := filter.Events(token, chunk)
			require.NoError(t, err)
			all = append(all, events...)
			pages++
			if next == nil {
				return all, pages
			}
			// the token survives a round trip through its string form
			token = new(blockchain.ContinuationToken)
			require.NoError(t, token.FromString(next.String()))
		}
	}

	t.Run("everything", func(t *testing.T) {
		filter, err := chain.EventFilter(nil, nil)
		require.NoError(t, err)
		defer filter.Close()

		events, pages := collect(t, filter, 100)
		require.Len(t, events, 4)
		assert.Equal(t, 1, pages)
		assert.Equal(t, tx3.Hash(), events[3].TransactionHash)
		assert.Equal(t, uint(1), events[3].TransactionIndex)
		assert.Equal(t, uint64(2), *events[3].BlockNumber)
		assert.Equal(t, block2.Hash, events[3].BlockHash)
	})

	t.Run("chunked", func(t *testing.T) {
		filter, err := chain.EventFilter(nil, nil)
		require.NoError(t, err)
		defer filter.Close()

		events, pages := collect(t, filter, 1)
		assert.Len(t, events, 4)
		assert.Equal(t, 4, pages)
	})

	t.Run("by address", func(t *testing.T) {
		filter, err := chain.EventFilter([]felt.Felt{*emitterB}, nil)
		require.NoError(t, err)
		defer filter.Close()

		events, _ := collect(t, filter, 10)
		require.Len(t, events, 1)
		assert.Equal(t, tx2.Hash(), events[0].TransactionHash)
	})

	t.Run("by key", func(t *testing.T) {
		filter, err := chain.EventFilter(nil, [][]felt.Felt{{*f(1), *f(3)}})
		require.NoError(t, err)
		defer filter.Close()

		events, _ := collect(t, filter, 10)
		require.Len(t, events, 3)
		for _, e := range events {
			assert.NotEqual(t, f(2), e.Keys[0])
		}
	})

	t.Run("range", func(t *testing.T) {
		filter, err := chain.EventFilter([]felt.Felt{*emitterA}, nil)
		require.NoError(t, err)
		defer filter.Close()
		filter.SetRange(2, 2)

		events, _ := collect(t, filter, 10)
		require.Len(t, events, 1)
		assert.Equal(t, tx3.Hash(), events[0].TransactionHash)
	})

	t.Run("pending", func(t *testing.T) {
		tx4, r4 := invoke(0x4, emitterA, 9)
		pending := &core.Block{
			Header:       header(3, block2.Hash),
			Transactions: []core.Transaction{tx4},
			Receipts:     []*core.TransactionReceipt{r4},
		}

		filter, err := chain.EventFilter(nil, [][]felt.Felt{{*f(9)}})
		require.NoError(t, err)
		defer filter.Close()
		filter.WithPending(pending).SetRange(0, 3)

		events, _ := collect(t, filter, 10)
		require.Len(t, events, 1)
		assert.Nil(t, events[0].BlockNumber)
		assert.Nil(t, events[0].BlockHash)
	})
}

func TestEventMatcher(t *testing.T) {
	matcher := blockchain.NewEventMatcher(nil, [][]felt.Felt{{}, {*f(5)}})

	assert.True(t, matcher.MatchesEventKeys([]*felt.Felt{f(1), f(5)}))
	assert.True(t, matcher.MatchesEventKeys([]*felt.Felt{f(1), f(5), f(7)}))
	assert.False(t, matcher.MatchesEventKeys([]*felt.Felt{f(5)}))
	assert.False(t, matcher.MatchesEventKeys([]*felt.Felt{f(5), f(1)}))

	receipts := []*core.TransactionReceipt{{Events: []*core.Event{{From: f(1), Keys: []*felt.Felt{f(0), f(5)}}}}}
	assert.True(t, matcher.TestBloom(core.EventsBloom(receipts)))
	receipts[0].Events[0].Keys[1] = f(6)
	assert.False(t, matcher.TestBloom(core.EventsBloom(receipts)))
}
