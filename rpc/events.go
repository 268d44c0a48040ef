package rpc

import (
	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/jsonrpc"
)

type EventsArg struct {
	EventFilter
	ResultPageRequest
}

type EventFilter struct {
	FromBlock *BlockID      `json:"from_block"`
	ToBlock   *BlockID      `json:"to_block"`
	Address   *felt.Felt    `json:"address"`
	Keys      [][]felt.Felt `json:"keys"`
}

type ResultPageRequest struct {
	ContinuationToken string `json:"continuation_token"`
	ChunkSize         uint64 `json:"chunk_size" validate:"min=1"`
}

type EmittedEvent struct {
	*Event
	BlockNumber     *uint64    `json:"block_number,omitempty"`
	BlockHash       *felt.Felt `json:"block_hash,omitempty"`
	TransactionHash *felt.Felt `json:"transaction_hash"`
}

type EventsChunk struct {
	Events            []*EmittedEvent `json:"events"`
	ContinuationToken string          `json:"continuation_token,omitempty"`
}

/****************************************************
		Events Handler
*****************************************************/

// Events returns the events matching the filter in chunks. A to_block of "pending" also scans
// the block being built.
func (h *Handler) Events(args EventsArg) (*EventsChunk, *jsonrpc.Error) {
	if args.ChunkSize > MaxEventChunkSize {
		return nil, ErrPageSizeTooBig
	}
	if len(args.Keys) > MaxEventFilterKeys {
		return nil, ErrTooManyKeysInFilter
	}

	height, err := h.chain.Height()
	if err != nil {
		return nil, ErrNoBlock
	}

	var addresses []felt.Felt
	if args.Address != nil {
		addresses = []felt.Felt{*args.Address}
	}
	filter, err := h.chain.EventFilter(addresses, args.Keys)
	if err != nil {
		return nil, h.adaptError(err)
	}
	defer func() {
		if closeErr := filter.Close(); closeErr != nil {
			h.log.Errorw("Failed to close event filter", "err", closeErr)
		}
	}()

	from, rpcErr := h.eventRangeBound(args.FromBlock, 0, height)
	if rpcErr != nil {
		return nil, rpcErr
	}
	to, rpcErr := h.eventRangeBound(args.ToBlock, height, height)
	if rpcErr != nil {
		return nil, rpcErr
	}
	filter.SetRange(from, to)
	if args.ToBlock != nil && args.ToBlock.Pending {
		pending, err := h.producer.Pending()
		if err != nil {
			return nil, h.adaptError(err)
		}
		filter.WithPending(pending.Block)
	}

	var cToken *blockchain.ContinuationToken
	if args.ContinuationToken != "" {
		cToken = new(blockchain.ContinuationToken)
		if err = cToken.FromString(args.ContinuationToken); err != nil {
			return nil, ErrInvalidContinuationToken
		}
	}

	filtered, cToken, err := filter.Events(cToken, args.ChunkSize)
	if err != nil {
		return nil, h.adaptError(err)
	}

	emitted := make([]*EmittedEvent, len(filtered))
	for i := range filtered {
		emitted[i] = adaptFilteredEvent(&filtered[i])
	}

	var token string
	if cToken != nil {
		token = cToken.String()
	}
	return &EventsChunk{Events: emitted, ContinuationToken: token}, nil
}

// eventRangeBound resolves a bound of the scanned range. The pending block sits right after the
// head.
func (h *Handler) eventRangeBound(id *BlockID, fallback, height uint64) (uint64, *jsonrpc.Error) {
	switch {
	case id == nil:
		return fallback, nil
	case id.Pending:
		return height + 1, nil
	case id.Latest:
		return height, nil
	case id.Hash != nil:
		header, err := h.chain.HeaderByHash(id.Hash)
		if err != nil {
			return 0, h.adaptError(err)
		}
		return header.Number, nil
	default:
		if _, err := h.chain.HeaderByNumber(id.Number); err != nil {
			return 0, h.adaptError(err)
		}
		return id.Number, nil
	}
}

func adaptFilteredEvent(e *blockchain.FilteredEvent) *EmittedEvent {
	return &EmittedEvent{
		Event:           adaptEvent(e.Event),
		BlockNumber:     e.BlockNumber,
		BlockHash:       e.BlockHash,
		TransactionHash: e.TransactionHash,
	}
}

func adaptEvent(e *core.Event) *Event {
	return &Event{From: e.From, Keys: e.Keys, Data: e.Data}
}
