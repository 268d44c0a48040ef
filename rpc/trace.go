package rpc

import (
	"errors"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/jsonrpc"
	"github.com/NethermindEth/katana/vm"
)

type TracedBlockTransaction struct {
	TraceRoot       *vm.TransactionTrace `json:"trace_root,omitempty"`
	TransactionHash *felt.Felt           `json:"transaction_hash,omitempty"`
}

// TraceTransaction returns the trace recorded when the transaction was executed, either in a mined
// block or in the pending one.
func (h *Handler) TraceTransaction(hash felt.Felt) (*vm.TransactionTrace, *jsonrpc.Error) {
	trace, err := h.chain.Trace(&hash)
	if err == nil {
		return trace, nil
	}
	if !errors.Is(err, blockchain.ErrTraceNotFound) && !errors.Is(err, blockchain.ErrTransactionNotFound) {
		return nil, h.adaptError(err)
	}

	pending, err := h.producer.Pending()
	if err != nil {
		return nil, h.adaptError(err)
	}
	for i, txn := range pending.Block.Transactions {
		if txn.Hash().Equal(&hash) && i < len(pending.Traces) {
			return pending.Traces[i], nil
		}
	}
	return nil, ErrTxnHashNotFound
}

func (h *Handler) TraceBlockTransactions(id BlockID) ([]TracedBlockTransaction, *jsonrpc.Error) {
	var (
		traces []*vm.TransactionTrace
		hashes []*felt.Felt
	)
	if id.Pending {
		pending, err := h.producer.Pending()
		if err != nil {
			return nil, h.adaptError(err)
		}
		traces = pending.Traces
		for _, txn := range pending.Block.Transactions {
			hashes = append(hashes, txn.Hash())
		}
	} else {
		block, rpcErr := h.blockByID(&id)
		if rpcErr != nil {
			return nil, rpcErr
		}
		var err error
		if traces, err = h.chain.BlockTraces(block.Number); err != nil {
			return nil, h.adaptError(err)
		}
		for _, txn := range block.Transactions {
			hashes = append(hashes, txn.Hash())
		}
	}

	result := make([]TracedBlockTransaction, 0, len(traces))
	for i, trace := range traces {
		if i >= len(hashes) {
			break
		}
		result = append(result, TracedBlockTransaction{TraceRoot: trace, TransactionHash: hashes[i]})
	}
	return result, nil
}
