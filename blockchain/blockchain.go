// Package blockchain is the append-only log of sealed blocks, their transactions, receipts,
// traces and state updates.
package blockchain

import (
	"errors"
	"fmt"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/db"
	"github.com/NethermindEth/katana/state"
	"github.com/NethermindEth/katana/utils"
	"github.com/NethermindEth/katana/vm"
	lru "github.com/hashicorp/golang-lru/v2"
)

const headerCacheSize = 1024

var (
	ErrBlockNotFound          = errors.New("block not found")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrTraceNotFound          = errors.New("trace not found")
	ErrInvalidTxIndex         = errors.New("invalid transaction index in a block")
	ErrParentDoesNotMatchHead = errors.New("block's parent hash does not match head block hash")
	ErrBlockNumberGap         = errors.New("block number does not follow the head")
	ErrChainIDMismatch        = errors.New("database was created for another chain")
	ErrIncompleteBlock        = errors.New("block and its receipts or traces do not line up")
)

type BlockStatus uint8

const (
	StatusAcceptedOnL2 BlockStatus = iota + 1
	StatusAcceptedOnL1
)

func (s BlockStatus) String() string {
	switch s {
	case StatusAcceptedOnL2:
		return "ACCEPTED_ON_L2"
	case StatusAcceptedOnL1:
		return "ACCEPTED_ON_L1"
	default:
		return "UNKNOWN"
	}
}

// Reader is the read side of the log, as used by the RPC handlers and the messaging service.
//
//go:generate mockgen -destination=../mocks/mock_blockchain.go -package=mocks github.com/NethermindEth/katana/blockchain Reader
type Reader interface {
	ChainID() utils.ChainID
	Height() (uint64, error)
	Head() (*core.Block, error)
	HeaderByNumber(number uint64) (*core.Header, error)
	HeaderByHash(hash *felt.Felt) (*core.Header, error)
	BlockByNumber(number uint64) (*core.Block, error)
	BlockByHash(hash *felt.Felt) (*core.Block, error)
	BlockStatus(number uint64) (BlockStatus, error)
	TransactionByHash(hash *felt.Felt) (core.Transaction, error)
	TransactionByBlockNumberAndIndex(number, index uint64) (core.Transaction, error)
	Receipt(hash *felt.Felt) (*core.TransactionReceipt, *felt.Felt, uint64, error)
	Trace(hash *felt.Felt) (*vm.TransactionTrace, error)
	BlockTraces(number uint64) ([]*vm.TransactionTrace, error)
	StateUpdateByNumber(number uint64) (*core.StateUpdate, error)
	StateUpdateByHash(hash *felt.Felt) (*core.StateUpdate, error)
	L1HandlerTxnHash(msgHash []byte) (*felt.Felt, error)
	HeadState() (state.Reader, StateCloser, error)
	StateAtBlockNumber(number uint64) (state.Reader, StateCloser, error)
	StateAtBlockHash(hash *felt.Felt) (state.Reader, StateCloser, error)
	EventFilter(addresses []felt.Felt, keys [][]felt.Felt) (*EventFilter, error)
}

var _ Reader = (*Blockchain)(nil)

// Blockchain is the single writer of the log. Reads may run concurrently with a write.
type Blockchain struct {
	database  db.DB
	chainID   utils.ChainID
	forkCache *state.ForkCache
	headers   *lru.Cache[uint64, *core.Header]
	listener  EventListener
}

func New(database db.DB, chainID utils.ChainID) *Blockchain {
	headers, err := lru.New[uint64, *core.Header](headerCacheSize)
	if err != nil {
		panic(err)
	}
	return &Blockchain{
		database: database,
		chainID:  chainID,
		headers:  headers,
		listener: &SelectiveListener{},
	}
}

func (b *Blockchain) WithListener(listener EventListener) *Blockchain {
	b.listener = listener
	return b
}

// WithForkCache makes every state view fall back to the forked chain for data it has not
// written itself.
func (b *Blockchain) WithForkCache(cache *state.ForkCache) *Blockchain {
	b.forkCache = cache
	return b
}

func (b *Blockchain) ChainID() utils.ChainID {
	return b.chainID
}

// VerifyChainID stamps a fresh database with the chain id, or checks it against the stored one.
func (b *Blockchain) VerifyChainID() error {
	return b.database.Update(func(txn db.Transaction) error {
		var stored *felt.Felt
		err := txn.Get(db.ChainID.Key(), func(v []byte) error {
			stored = new(felt.Felt).SetBytes(v)
			return nil
		})
		if errors.Is(err, db.ErrKeyNotFound) {
			return txn.Set(db.ChainID.Key(), b.chainID.Felt().Marshal())
		} else if err != nil {
			return err
		}

		if !stored.Equal(b.chainID.Felt()) {
			return fmt.Errorf("%w: stored %s, configured %s", ErrChainIDMismatch,
				utils.ChainIDFromFelt(stored), b.chainID)
		}
		return nil
	})
}

// Height returns the number of the latest block. db.ErrKeyNotFound is returned for an empty chain.
func (b *Blockchain) Height() (height uint64, err error) {
	b.listener.OnRead("Height")
	return height, b.database.View(func(txn db.Transaction) error {
		height, err = chainHeight(txn)
		return err
	})
}

func (b *Blockchain) Head() (head *core.Block, err error) {
	b.listener.OnRead("Head")
	return head, b.database.View(func(txn db.Transaction) error {
		height, err := chainHeight(txn)
		if err != nil {
			return err
		}
		head, err = b.blockByNumber(txn, height)
		return err
	})
}

// HeaderByNumber returns a shared header; callers must not modify it.
func (b *Blockchain) HeaderByNumber(number uint64) (header *core.Header, err error) {
	b.listener.OnRead("HeaderByNumber")
	return header, b.database.View(func(txn db.Transaction) error {
		header, err = b.headerByNumber(txn, number)
		return err
	})
}

func (b *Blockchain) HeaderByHash(hash *felt.Felt) (header *core.Header, err error) {
	b.listener.OnRead("HeaderByHash")
	return header, b.database.View(func(txn db.Transaction) error {
		number, err := blockNumberByHash(txn, hash)
		if err != nil {
			return err
		}
		header, err = b.headerByNumber(txn, number)
		return err
	})
}

func (b *Blockchain) headerByNumber(txn db.Transaction, number uint64) (*core.Header, error) {
	if header, ok := b.headers.Get(number); ok {
		return header, nil
	}
	header, err := headerByNumber(txn, number)
	if err != nil {
		return nil, err
	}
	b.headers.Add(number, header)
	return header, nil
}

func (b *Blockchain) BlockByNumber(number uint64) (block *core.Block, err error) {
	b.listener.OnRead("BlockByNumber")
	return block, b.database.View(func(txn db.Transaction) error {
		block, err = b.blockByNumber(txn, number)
		return err
	})
}

func (b *Blockchain) BlockByHash(hash *felt.Felt) (block *core.Block, err error) {
	b.listener.OnRead("BlockByHash")
	return block, b.database.View(func(txn db.Transaction) error {
		number, err := blockNumberByHash(txn, hash)
		if err != nil {
			return err
		}
		block, err = b.blockByNumber(txn, number)
		return err
	})
}

func (b *Blockchain) blockByNumber(txn db.Transaction, number uint64) (*core.Block, error) {
	header, err := b.headerByNumber(txn, number)
	if err != nil {
		return nil, err
	}
	txs, receipts, err := blockBody(txn, number)
	if err != nil {
		return nil, err
	}
	return &core.Block{Header: header, Transactions: txs, Receipts: receipts}, nil
}

// BlockBodies returns the transactions of the blocks in [from, to].
func (b *Blockchain) BlockBodies(from, to uint64) (bodies [][]core.Transaction, err error) {
	b.listener.OnRead("BlockBodies")
	return bodies, b.database.View(func(txn db.Transaction) error {
		for n := from; n <= to; n++ {
			txs, _, err := blockBody(txn, n)
			if err != nil {
				return err
			}
			bodies = append(bodies, txs)
		}
		return nil
	})
}

func (b *Blockchain) BlockStatus(number uint64) (status BlockStatus, err error) {
	b.listener.OnRead("BlockStatus")
	return status, b.database.View(func(txn db.Transaction) error {
		err := txn.Get(db.BlockStatusKey(number), func(v []byte) error {
			status = BlockStatus(v[0])
			return nil
		})
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrBlockNotFound
		}
		return err
	})
}

// SetL1Accepted promotes every block up to and including number to AcceptedOnL1.
func (b *Blockchain) SetL1Accepted(number uint64) error {
	err := b.database.Update(func(txn db.Transaction) error {
		height, err := chainHeight(txn)
		if err != nil {
			return err
		}
		if number > height {
			return ErrBlockNotFound
		}

		for n := number; ; n-- {
			var status BlockStatus
			if err := txn.Get(db.BlockStatusKey(n), func(v []byte) error {
				status = BlockStatus(v[0])
				return nil
			}); err != nil {
				return err
			}
			if status == StatusAcceptedOnL1 {
				return nil
			}
			if err := txn.Set(db.BlockStatusKey(n), []byte{byte(StatusAcceptedOnL1)}); err != nil {
				return err
			}
			if n == 0 {
				return nil
			}
		}
	})
	if err != nil {
		return err
	}
	b.listener.OnL1Accepted(number)
	return nil
}

// Finalise seals block on top of the head: it applies diff, computes the state root, the
// commitments and the block hash, and stores everything in a single batch. The header of block is
// filled in place.
func (b *Blockchain) Finalise(block *core.Block, diff *core.StateDiff, classes map[felt.Felt]core.Class,
	traces []*vm.TransactionTrace,
) (*core.StateUpdate, error) {
	start := time.Now()
	var update *core.StateUpdate
	err := b.database.Update(func(txn db.Transaction) error {
		head, err := b.verifyBlock(txn, block)
		if err != nil {
			return err
		}
		if err := state.NewWriter(txn).Apply(block.Number, diff, classes); err != nil {
			return err
		}

		oldRoot := new(felt.Felt)
		if head != nil {
			oldRoot = head.GlobalStateRoot
		}
		newRoot, err := state.Root(txn)
		if err != nil {
			return err
		}

		commitments, err := core.Commitments(block.Transactions, block.Receipts, diff)
		if err != nil {
			return err
		}
		header := block.Header
		header.GlobalStateRoot = newRoot
		header.TransactionCount = uint64(len(block.Transactions))
		header.EventCount = core.EventCount(block.Receipts)
		header.StateDiffLength = diff.Length()
		header.TransactionCommitment = commitments.TransactionCommitment
		header.EventCommitment = commitments.EventCommitment
		header.ReceiptCommitment = commitments.ReceiptCommitment
		header.StateDiffCommitment = commitments.StateDiffCommitment
		if header.Hash, err = core.BlockHash(header); err != nil {
			return err
		}

		update = &core.StateUpdate{
			BlockHash: header.Hash,
			NewRoot:   newRoot,
			OldRoot:   oldRoot,
			StateDiff: diff,
		}
		return storeBlock(txn, block, update, traces)
	})
	if err != nil {
		return nil, err
	}

	took := time.Since(start)
	b.headers.Add(block.Number, block.Header)
	b.listener.OnStored(block.Number, len(block.Transactions), took)
	return update, nil
}

// Store appends a block that was sealed elsewhere, such as the synthesised genesis of a forked
// chain. The header is trusted as is.
func (b *Blockchain) Store(block *core.Block, update *core.StateUpdate, classes map[felt.Felt]core.Class,
	traces []*vm.TransactionTrace,
) error {
	start := time.Now()
	err := b.database.Update(func(txn db.Transaction) error {
		if _, err := b.verifyBlock(txn, block); err != nil {
			return err
		}
		if block.Hash == nil {
			return errors.New("cannot store a block without hash")
		}
		if err := state.NewWriter(txn).Apply(block.Number, update.StateDiff, classes); err != nil {
			return err
		}
		return storeBlock(txn, block, update, traces)
	})
	if err != nil {
		return err
	}

	took := time.Since(start)
	b.headers.Add(block.Number, block.Header)
	b.listener.OnStored(block.Number, len(block.Transactions), took)
	return nil
}

// verifyBlock checks block extends the head and returns the head header, nil for an empty chain.
// The genesis block may have any parent hash.
func (b *Blockchain) verifyBlock(txn db.Transaction, block *core.Block) (*core.Header, error) {
	if len(block.Receipts) != len(block.Transactions) {
		return nil, ErrIncompleteBlock
	}

	height, err := chainHeight(txn)
	if errors.Is(err, db.ErrKeyNotFound) {
		if block.Number != 0 {
			return nil, fmt.Errorf("%w: empty chain, got block %d", ErrBlockNumberGap, block.Number)
		}
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	head, err := b.headerByNumber(txn, height)
	if err != nil {
		return nil, err
	}
	if head.Number+1 != block.Number {
		return nil, fmt.Errorf("%w: head is %d, got %d", ErrBlockNumberGap, head.Number, block.Number)
	}
	if block.ParentHash == nil || !block.ParentHash.Equal(head.Hash) {
		return nil, ErrParentDoesNotMatchHead
	}
	return head, nil
}

// storeBlock writes everything but the state:
//
//	[Headers](number) -> Header
//	[BlockHashes](number) -> hash, [BlockNumbers](hash) -> number
//	[BlockBodyIndices](number) -> {first tx number, tx count}
//	[Transactions|Receipts|TxTraces|TxHashes|TxBlocks](tx number), [TxNumbers](tx hash)
//	[BlockStatuses](number), [StateUpdates](number), [EventsBloom](number)
//	[ChainHeight] -> number
func storeBlock(txn db.Transaction, block *core.Block, update *core.StateUpdate, traces []*vm.TransactionTrace) error {
	if traces != nil && len(traces) != len(block.Transactions) {
		return ErrIncompleteBlock
	}

	firstTx, err := nextTxNumber(txn)
	if err != nil {
		return err
	}
	number := block.Number

	if err := putEncoded(txn, db.HeaderKey(number), block.Header); err != nil {
		return err
	}
	if err := txn.Set(db.BlockHashKey(number), block.Hash.Marshal()); err != nil {
		return err
	}
	if err := txn.Set(db.BlockNumberKey(block.Hash), db.Uint64Key(number)); err != nil {
		return err
	}
	indices := BodyIndices{TxOffset: firstTx, TxCount: uint64(len(block.Transactions))}
	if err := putEncoded(txn, db.BlockBodyIndicesKey(number), indices); err != nil {
		return err
	}

	for i, tx := range block.Transactions {
		txNumber := firstTx + uint64(i)
		if err := putEncoded(txn, db.TransactionKey(txNumber), &tx); err != nil {
			return err
		}
		if err := putEncoded(txn, db.ReceiptKey(txNumber), block.Receipts[i]); err != nil {
			return err
		}
		if traces != nil && traces[i] != nil {
			if err := putEncoded(txn, db.TxTraceKey(txNumber), traces[i]); err != nil {
				return err
			}
		}
		if err := txn.Set(db.TxHashKey(txNumber), tx.Hash().Marshal()); err != nil {
			return err
		}
		if err := txn.Set(db.TxNumberKey(tx.Hash()), db.Uint64Key(txNumber)); err != nil {
			return err
		}
		if err := txn.Set(db.TxBlockKey(txNumber), db.Uint64Key(number)); err != nil {
			return err
		}
		if l1Handler, ok := tx.(*core.L1HandlerTransaction); ok {
			if err := txn.Set(db.L1HandlerTxHashKey(l1Handler.MessageHash.Bytes()), tx.Hash().Marshal()); err != nil {
				return err
			}
		}
	}

	if err := txn.Set(db.BlockStatusKey(number), []byte{byte(StatusAcceptedOnL2)}); err != nil {
		return err
	}
	if err := putEncoded(txn, db.StateUpdateKey(number), update); err != nil {
		return err
	}
	if err := putEventsBloom(txn, number, core.EventsBloom(block.Receipts)); err != nil {
		return err
	}
	return txn.Set(db.ChainHeight.Key(), db.Uint64Key(number))
}
