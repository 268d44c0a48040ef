package rpc

import (
	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/jsonrpc"
	"github.com/NethermindEth/katana/vm"
)

// StateUpdate of a pending block has neither BlockHash nor NewRoot.
type StateUpdate struct {
	BlockHash *felt.Felt    `json:"block_hash,omitempty"`
	NewRoot   *felt.Felt    `json:"new_root,omitempty"`
	OldRoot   *felt.Felt    `json:"old_root"`
	StateDiff *vm.StateDiff `json:"state_diff"`
}

func (h *Handler) StateUpdate(id BlockID) (*StateUpdate, *jsonrpc.Error) {
	var (
		update *core.StateUpdate
		err    error
	)
	switch {
	case id.Pending:
		pending, pErr := h.producer.Pending()
		if pErr != nil {
			return nil, h.adaptError(pErr)
		}
		return &StateUpdate{
			OldRoot:   pending.StateUpdate.OldRoot,
			StateDiff: vm.NewStateDiff(pending.StateUpdate.StateDiff),
		}, nil
	case id.Latest:
		var height uint64
		if height, err = h.chain.Height(); err == nil {
			update, err = h.chain.StateUpdateByNumber(height)
		}
	case id.Hash != nil:
		update, err = h.chain.StateUpdateByHash(id.Hash)
	default:
		update, err = h.chain.StateUpdateByNumber(id.Number)
	}
	if err != nil {
		return nil, h.adaptError(err)
	}

	return &StateUpdate{
		BlockHash: update.BlockHash,
		NewRoot:   update.NewRoot,
		OldRoot:   update.OldRoot,
		StateDiff: vm.NewStateDiff(update.StateDiff),
	}, nil
}

// StorageAt reads zero for contracts that do not exist.
func (h *Handler) StorageAt(address, key felt.Felt, id BlockID) (*felt.Felt, *jsonrpc.Error) {
	reader, closer, rpcErr := h.stateByBlockID(&id)
	if rpcErr != nil {
		return nil, rpcErr
	}
	defer h.closeState(closer)

	value, err := reader.ContractStorage(&address, &key)
	if err != nil {
		return nil, h.adaptError(err)
	}
	return value, nil
}

func (h *Handler) Nonce(id BlockID, address felt.Felt) (*felt.Felt, *jsonrpc.Error) {
	reader, closer, rpcErr := h.stateByBlockID(&id)
	if rpcErr != nil {
		return nil, rpcErr
	}
	defer h.closeState(closer)

	if _, rpcErr = h.classHashAt(reader, &address); rpcErr != nil {
		return nil, rpcErr
	}
	nonce, err := reader.ContractNonce(&address)
	if err != nil {
		return nil, h.adaptError(err)
	}
	return nonce, nil
}
