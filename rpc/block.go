package rpc

import (
	"encoding/json"
	"errors"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/builder"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/jsonrpc"
	"github.com/NethermindEth/katana/state"
	"github.com/NethermindEth/katana/utils"
)

// BlockID is one of "latest", "pending", {"block_number": n} or {"block_hash": h}.
type BlockID struct {
	Pending bool
	Latest  bool
	Hash    *felt.Felt
	Number  uint64
}

func (b *BlockID) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"latest"`:
		b.Latest = true
	case `"pending"`:
		b.Pending = true
	default:
		jsonObject := make(map[string]json.RawMessage)
		if err := json.Unmarshal(data, &jsonObject); err != nil {
			return err
		}
		if hash, ok := jsonObject["block_hash"]; ok {
			b.Hash = new(felt.Felt)
			return json.Unmarshal(hash, b.Hash)
		}
		if number, ok := jsonObject["block_number"]; ok {
			return json.Unmarshal(number, &b.Number)
		}
		return errors.New("cannot unmarshal block id")
	}
	return nil
}

type BlockStatus uint8

const (
	BlockPending BlockStatus = iota
	BlockAcceptedL2
	BlockAcceptedL1
)

func (s BlockStatus) MarshalText() ([]byte, error) {
	switch s {
	case BlockPending:
		return []byte("PENDING"), nil
	case BlockAcceptedL2:
		return []byte("ACCEPTED_ON_L2"), nil
	case BlockAcceptedL1:
		return []byte("ACCEPTED_ON_L1"), nil
	default:
		return nil, errors.New("unknown block status")
	}
}

type ResourcePrice struct {
	InFri *felt.Felt `json:"price_in_fri"`
	InWei *felt.Felt `json:"price_in_wei"`
}

// BlockHeader leaves out the hash, number and root of a pending block.
type BlockHeader struct {
	Hash             *felt.Felt     `json:"block_hash,omitempty"`
	ParentHash       *felt.Felt     `json:"parent_hash"`
	Number           *uint64        `json:"block_number,omitempty"`
	NewRoot          *felt.Felt     `json:"new_root,omitempty"`
	Timestamp        uint64         `json:"timestamp"`
	SequencerAddress *felt.Felt     `json:"sequencer_address"`
	L1GasPrice       *ResourcePrice `json:"l1_gas_price"`
	L1DataGasPrice   *ResourcePrice `json:"l1_data_gas_price"`
	L1DAMode         string         `json:"l1_da_mode"`
	StarknetVersion  string         `json:"starknet_version"`
}

type BlockWithTxHashes struct {
	Status BlockStatus `json:"status"`
	BlockHeader
	TxnHashes []*felt.Felt `json:"transactions"`
}

type BlockWithTxs struct {
	Status BlockStatus `json:"status"`
	BlockHeader
	Transactions []*Transaction `json:"transactions"`
}

type TransactionWithReceipt struct {
	Transaction *Transaction        `json:"transaction"`
	Receipt     *TransactionReceipt `json:"receipt"`
}

type BlockWithReceipts struct {
	Status BlockStatus `json:"status"`
	BlockHeader
	Transactions []TransactionWithReceipt `json:"transactions"`
}

type BlockHashAndNumber struct {
	Hash   *felt.Felt `json:"block_hash"`
	Number uint64     `json:"block_number"`
}

func adaptBlockHeader(header *core.Header) BlockHeader {
	var number *uint64
	// a pending header has no hash
	if header.Hash != nil {
		number = utils.HeapPtr(header.Number)
	}
	gasPrice, dataGasPrice := header.L1GasPrice.Clone(), header.L1DataGasPrice.Clone()
	return BlockHeader{
		Hash:             header.Hash,
		ParentHash:       header.ParentHash,
		Number:           number,
		NewRoot:          header.GlobalStateRoot,
		Timestamp:        header.Timestamp,
		SequencerAddress: utils.FeltOrZero(header.SequencerAddress),
		L1GasPrice:       &ResourcePrice{InFri: gasPrice.PriceInFri, InWei: gasPrice.PriceInWei},
		L1DataGasPrice:   &ResourcePrice{InFri: dataGasPrice.PriceInFri, InWei: dataGasPrice.PriceInWei},
		L1DAMode:         header.L1DAMode.String(),
		StarknetVersion:  header.ProtocolVersion,
	}
}

/****************************************************
		Block Handlers
*****************************************************/

func (h *Handler) BlockWithTxHashes(id BlockID) (*BlockWithTxHashes, *jsonrpc.Error) {
	block, status, rpcErr := h.blockWithStatus(&id)
	if rpcErr != nil {
		return nil, rpcErr
	}

	hashes := make([]*felt.Felt, len(block.Transactions))
	for i, tx := range block.Transactions {
		hashes[i] = tx.Hash()
	}
	return &BlockWithTxHashes{
		Status:      status,
		BlockHeader: adaptBlockHeader(block.Header),
		TxnHashes:   hashes,
	}, nil
}

func (h *Handler) BlockWithTxs(id BlockID) (*BlockWithTxs, *jsonrpc.Error) {
	block, status, rpcErr := h.blockWithStatus(&id)
	if rpcErr != nil {
		return nil, rpcErr
	}

	return &BlockWithTxs{
		Status:       status,
		BlockHeader:  adaptBlockHeader(block.Header),
		Transactions: utils.Map(block.Transactions, AdaptTransaction),
	}, nil
}

func (h *Handler) BlockWithReceipts(id BlockID) (*BlockWithReceipts, *jsonrpc.Error) {
	block, status, rpcErr := h.blockWithStatus(&id)
	if rpcErr != nil {
		return nil, rpcErr
	}

	finality := TxnAcceptedOnL2
	if status == BlockAcceptedL1 {
		finality = TxnAcceptedOnL1
	}
	txs := make([]TransactionWithReceipt, len(block.Transactions))
	for i, tx := range block.Transactions {
		txs[i] = TransactionWithReceipt{
			Transaction: AdaptTransaction(tx),
			// the block is given by the enclosing object
			Receipt: AdaptReceipt(block.Receipts[i], tx, finality, nil, 0),
		}
	}
	return &BlockWithReceipts{
		Status:       status,
		BlockHeader:  adaptBlockHeader(block.Header),
		Transactions: txs,
	}, nil
}

func (h *Handler) BlockTransactionCount(id BlockID) (uint64, *jsonrpc.Error) {
	if id.Pending {
		pending, err := h.producer.Pending()
		if err != nil {
			return 0, h.adaptError(err)
		}
		return uint64(len(pending.Block.Transactions)), nil
	}

	header, rpcErr := h.blockHeaderByID(&id)
	if rpcErr != nil {
		return 0, rpcErr
	}
	return header.TransactionCount, nil
}

func (h *Handler) BlockNumber() (uint64, *jsonrpc.Error) {
	height, err := h.chain.Height()
	if err != nil {
		return 0, ErrNoBlock
	}
	return height, nil
}

func (h *Handler) BlockHashAndNumber() (*BlockHashAndNumber, *jsonrpc.Error) {
	height, err := h.chain.Height()
	if err != nil {
		return nil, ErrNoBlock
	}
	header, err := h.chain.HeaderByNumber(height)
	if err != nil {
		return nil, h.adaptError(err)
	}
	return &BlockHashAndNumber{Hash: header.Hash, Number: header.Number}, nil
}

func (h *Handler) blockWithStatus(id *BlockID) (*core.Block, BlockStatus, *jsonrpc.Error) {
	if id.Pending {
		pending, err := h.producer.Pending()
		if err != nil {
			return nil, 0, h.adaptError(err)
		}
		return pending.Block, BlockPending, nil
	}

	block, rpcErr := h.blockByID(id)
	if rpcErr != nil {
		return nil, 0, rpcErr
	}
	status, err := h.chain.BlockStatus(block.Number)
	if err != nil {
		return nil, 0, h.adaptError(err)
	}
	if status == blockchain.StatusAcceptedOnL1 {
		return block, BlockAcceptedL1, nil
	}
	return block, BlockAcceptedL2, nil
}

func (h *Handler) blockByID(id *BlockID) (*core.Block, *jsonrpc.Error) {
	var (
		block *core.Block
		err   error
	)
	switch {
	case id.Pending:
		var pending *builder.PendingBlock
		if pending, err = h.producer.Pending(); err == nil {
			block = pending.Block
		}
	case id.Latest:
		block, err = h.chain.Head()
	case id.Hash != nil:
		block, err = h.chain.BlockByHash(id.Hash)
	default:
		block, err = h.chain.BlockByNumber(id.Number)
	}
	if err != nil {
		return nil, h.adaptError(err)
	}
	return block, nil
}

func (h *Handler) blockHeaderByID(id *BlockID) (*core.Header, *jsonrpc.Error) {
	var (
		header *core.Header
		err    error
	)
	switch {
	case id.Pending:
		var pending *builder.PendingBlock
		if pending, err = h.producer.Pending(); err == nil {
			header = pending.Block.Header
		}
	case id.Latest:
		var height uint64
		if height, err = h.chain.Height(); err == nil {
			header, err = h.chain.HeaderByNumber(height)
		}
	case id.Hash != nil:
		header, err = h.chain.HeaderByHash(id.Hash)
	default:
		header, err = h.chain.HeaderByNumber(id.Number)
	}
	if err != nil {
		return nil, h.adaptError(err)
	}
	return header, nil
}

// stateByBlockID returns the state after the block. The closer must be called once the state is
// no longer used.
func (h *Handler) stateByBlockID(id *BlockID) (state.Reader, func() error, *jsonrpc.Error) {
	reader, _, closer, rpcErr := h.stateAndEnv(id, false)
	return reader, closer, rpcErr
}

// stateAndEnv returns the state after the block, and when withEnv is set the environment of the
// block, which calls and simulations run under.
func (h *Handler) stateAndEnv(id *BlockID, withEnv bool) (state.Reader, *core.BlockEnv, func() error, *jsonrpc.Error) {
	if id.Pending {
		reader, env, closer, err := h.producer.PendingState()
		if err != nil {
			return nil, nil, nil, h.adaptError(err)
		}
		return reader, env, closer, nil
	}

	var (
		header *core.Header
		rpcErr *jsonrpc.Error
	)
	if withEnv {
		if header, rpcErr = h.blockHeaderByID(id); rpcErr != nil {
			return nil, nil, nil, rpcErr
		}
	}

	var (
		reader state.Reader
		closer blockchain.StateCloser
		err    error
	)
	switch {
	case id.Latest:
		reader, closer, err = h.chain.HeadState()
	case id.Hash != nil:
		reader, closer, err = h.chain.StateAtBlockHash(id.Hash)
	default:
		reader, closer, err = h.chain.StateAtBlockNumber(id.Number)
	}
	if err != nil {
		return nil, nil, nil, h.adaptError(err)
	}

	var env *core.BlockEnv
	if header != nil {
		env = &core.BlockEnv{
			Number:           header.Number,
			Timestamp:        header.Timestamp,
			L1GasPrice:       header.L1GasPrice.Clone(),
			L1DataGasPrice:   header.L1DataGasPrice.Clone(),
			SequencerAddress: header.SequencerAddress,
			L1DAMode:         header.L1DAMode,
			ProtocolVersion:  header.ProtocolVersion,
		}
	}
	return reader, env, closer, nil
}

func (h *Handler) closeState(closer func() error) {
	if err := closer(); err != nil {
		h.log.Errorw("Failed to close state", "err", err)
	}
}
