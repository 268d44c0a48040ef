package backend

import (
	"fmt"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/vm"
)

// ExecutedBlock is a block whose transactions ran but which is not sealed yet.
type ExecutedBlock struct {
	Env          *core.BlockEnv
	Transactions []core.Transaction
	Receipts     []*core.TransactionReceipt
	Traces       []*vm.TransactionTrace
	StateDiff    *core.StateDiff
	Classes      map[felt.Felt]core.Class
}

type MinedBlockOutcome struct {
	BlockNumber uint64
	BlockHash   *felt.Felt
	TxHashes    []*felt.Felt
	Block       *core.Block
	StateUpdate *core.StateUpdate
}

// HeadHeader is the header of the latest block.
func (b *Backend) HeadHeader() (*core.Header, error) {
	height, err := b.chain.Height()
	if err != nil {
		return nil, fmt.Errorf("read head: %w", err)
	}
	return b.chain.HeaderByNumber(height)
}

// UpdateBlockEnv points env at the block following the head and stamps it with the current gas
// prices. The timestamp is left to the caller.
func (b *Backend) UpdateBlockEnv(env *core.BlockEnv) error {
	head, err := b.HeadHeader()
	if err != nil {
		return err
	}
	env.Number = head.Number + 1
	env.L1GasPrice = b.oracle.GasPrices()
	env.L1DataGasPrice = b.oracle.DataGasPrices()
	env.SequencerAddress = b.genesis.SequencerAddress
	env.ProtocolVersion = core.ProtocolVersion
	return nil
}

// NewBlockEnv is the environment of the block following the head, stamped with timestamp.
func (b *Backend) NewBlockEnv(timestamp uint64) (*core.BlockEnv, error) {
	env := &core.BlockEnv{Timestamp: timestamp, L1DAMode: core.Calldata}
	if err := b.UpdateBlockEnv(env); err != nil {
		return nil, err
	}
	return env, nil
}

// MinePendingBlock seals block on top of the head: the state diff is applied, the commitments,
// the state root and the hash are computed and everything is committed at once.
func (b *Backend) MinePendingBlock(block *ExecutedBlock) (*MinedBlockOutcome, error) {
	head, err := b.chain.HeaderByNumber(block.Env.Number - 1)
	if err != nil {
		return nil, fmt.Errorf("read parent of block %d: %w", block.Env.Number, err)
	}

	sealed := &core.Block{
		Header:       block.Env.Header(head.Hash),
		Transactions: block.Transactions,
		Receipts:     block.Receipts,
	}
	diff := block.StateDiff
	if diff == nil {
		diff = core.EmptyStateDiff()
	}
	update, err := b.chain.Finalise(sealed, diff, block.Classes, block.Traces)
	if err != nil {
		return nil, err
	}

	hashes := make([]*felt.Felt, len(sealed.Transactions))
	for i, tx := range sealed.Transactions {
		hashes[i] = tx.Hash()
	}
	b.log.Infow("Block mined", "number", sealed.Number, "hash", sealed.Hash, "txs", len(hashes))
	return &MinedBlockOutcome{
		BlockNumber: sealed.Number,
		BlockHash:   sealed.Hash,
		TxHashes:    hashes,
		Block:       sealed,
		StateUpdate: update,
	}, nil
}

// MineEmptyBlock seals a block without transactions on top of the head.
func (b *Backend) MineEmptyBlock(timestamp uint64) (*MinedBlockOutcome, error) {
	env, err := b.NewBlockEnv(timestamp)
	if err != nil {
		return nil, err
	}
	return b.MinePendingBlock(&ExecutedBlock{Env: env, StateDiff: core.EmptyStateDiff()})
}
