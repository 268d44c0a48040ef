package blockchain

import (
	"errors"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/db"
	"github.com/NethermindEth/katana/vm"
)

func (b *Blockchain) TransactionByHash(hash *felt.Felt) (tx core.Transaction, err error) {
	b.listener.OnRead("TransactionByHash")
	return tx, b.database.View(func(txn db.Transaction) error {
		pos, err := txPositionByHash(txn, hash)
		if err != nil {
			return err
		}
		tx, err = transactionByNumber(txn, pos.number)
		return err
	})
}

func (b *Blockchain) TransactionByBlockNumberAndIndex(number, index uint64) (tx core.Transaction, err error) {
	b.listener.OnRead("TransactionByBlockNumberAndIndex")
	return tx, b.database.View(func(txn db.Transaction) error {
		indices, err := bodyIndices(txn, number)
		if err != nil {
			return err
		}
		if index >= indices.TxCount {
			return ErrInvalidTxIndex
		}
		tx, err = transactionByNumber(txn, indices.TxOffset+index)
		return err
	})
}

// Receipt returns the receipt of a sealed transaction along with the hash and number of its block.
func (b *Blockchain) Receipt(hash *felt.Felt) (receipt *core.TransactionReceipt, blockHash *felt.Felt,
	blockNumber uint64, err error,
) {
	b.listener.OnRead("Receipt")
	return receipt, blockHash, blockNumber, b.database.View(func(txn db.Transaction) error {
		pos, err := txPositionByHash(txn, hash)
		if err != nil {
			return err
		}
		if receipt, err = receiptByNumber(txn, pos.number); err != nil {
			return err
		}
		header, err := b.headerByNumber(txn, pos.blockNumber)
		if err != nil {
			return err
		}
		blockHash, blockNumber = header.Hash, header.Number
		return nil
	})
}

// TransactionIndex returns the block number and the position within that block of a sealed
// transaction.
func (b *Blockchain) TransactionIndex(hash *felt.Felt) (blockNumber, index uint64, err error) {
	b.listener.OnRead("TransactionIndex")
	return blockNumber, index, b.database.View(func(txn db.Transaction) error {
		pos, err := txPositionByHash(txn, hash)
		if err != nil {
			return err
		}
		blockNumber, index = pos.blockNumber, pos.index
		return nil
	})
}

func (b *Blockchain) Trace(hash *felt.Felt) (trace *vm.TransactionTrace, err error) {
	b.listener.OnRead("Trace")
	return trace, b.database.View(func(txn db.Transaction) error {
		pos, err := txPositionByHash(txn, hash)
		if err != nil {
			return err
		}
		trace, err = traceByNumber(txn, pos.number)
		return err
	})
}

// BlockTraces returns the traces of every transaction of a block, in order.
func (b *Blockchain) BlockTraces(number uint64) (traces []*vm.TransactionTrace, err error) {
	b.listener.OnRead("BlockTraces")
	return traces, b.database.View(func(txn db.Transaction) error {
		indices, err := bodyIndices(txn, number)
		if err != nil {
			return err
		}
		traces = make([]*vm.TransactionTrace, 0, indices.TxCount)
		for n := indices.TxOffset; n < indices.TxOffset+indices.TxCount; n++ {
			trace, err := traceByNumber(txn, n)
			if err != nil {
				return err
			}
			traces = append(traces, trace)
		}
		return nil
	})
}

// L1HandlerTxnHash returns the hash of the L1 handler transaction that consumed an L1 to L2 message.
func (b *Blockchain) L1HandlerTxnHash(msgHash []byte) (hash *felt.Felt, err error) {
	b.listener.OnRead("L1HandlerTxnHash")
	return hash, b.database.View(func(txn db.Transaction) error {
		err := txn.Get(db.L1HandlerTxHashKey(msgHash), func(v []byte) error {
			hash = new(felt.Felt).SetBytes(v)
			return nil
		})
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrTransactionNotFound
		}
		return err
	})
}
