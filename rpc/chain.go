package rpc

import (
	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/jsonrpc"
)

func (h *Handler) SpecVersion() (string, *jsonrpc.Error) {
	return "0.7.1", nil
}

func (h *Handler) ChainID() (*felt.Felt, *jsonrpc.Error) {
	return h.chain.ChainID().Felt(), nil
}

// Syncing is always false: a sequencer produces its chain, it never syncs one.
func (h *Handler) Syncing() (bool, *jsonrpc.Error) {
	return false, nil
}
