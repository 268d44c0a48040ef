package builder

import (
	"sync/atomic"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/mempool"
	"github.com/NethermindEth/katana/state"
	"github.com/NethermindEth/katana/vm"
	"github.com/jinzhu/copier"
)

// sharedState is the head state the pending block is built on. Readers of the pending state hold
// a reference so the snapshot outlives the pending block they got it from.
type sharedState struct {
	state.Reader
	closer blockchain.StateCloser
	refs   atomic.Int32
}

func newSharedState(reader state.Reader, closer blockchain.StateCloser) *sharedState {
	s := &sharedState{Reader: reader, closer: closer}
	s.refs.Store(1)
	return s
}

func (s *sharedState) acquire() {
	s.refs.Add(1)
}

func (s *sharedState) release() error {
	if s.refs.Add(-1) == 0 {
		return s.closer()
	}
	return nil
}

type pendingBlock struct {
	parent   *core.Header
	base     *sharedState
	executor vm.Executor
	txs      []*mempool.PendingTx
	receipts []*core.TransactionReceipt
	traces   []*vm.TransactionTrace
}

func (b *pendingBlock) transactions() []core.Transaction {
	txs := make([]core.Transaction, len(b.txs))
	for i, tx := range b.txs {
		txs[i] = tx.Tx.Transaction
	}
	return txs
}

// PendingBlock is a copy of the block being built. The header is not sealed: it has no hash, no
// state root and no commitments.
type PendingBlock struct {
	Block       *core.Block
	StateUpdate *core.StateUpdate
	Classes     map[felt.Felt]core.Class
	Traces      []*vm.TransactionTrace
}

func (b *pendingBlock) snapshot() (*PendingBlock, error) {
	header := new(core.Header)
	if err := copier.CopyWithOption(header, b.executor.Env().Header(b.parent.Hash), copier.Option{DeepCopy: true}); err != nil {
		return nil, err
	}
	receipts := make([]*core.TransactionReceipt, 0, len(b.receipts))
	if err := copier.CopyWithOption(&receipts, b.receipts, copier.Option{DeepCopy: true}); err != nil {
		return nil, err
	}
	header.TransactionCount = uint64(len(b.txs))
	header.EventCount = core.EventCount(receipts)

	pending := b.executor.State()
	return &PendingBlock{
		Block: &core.Block{
			Header:       header,
			Transactions: b.transactions(),
			Receipts:     receipts,
		},
		StateUpdate: &core.StateUpdate{
			OldRoot:   b.parent.GlobalStateRoot,
			StateDiff: pending.StateDiff(),
		},
		Classes: pending.Classes(),
		Traces:  append([]*vm.TransactionTrace(nil), b.traces...),
	}, nil
}
