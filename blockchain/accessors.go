package blockchain

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/db"
	"github.com/NethermindEth/katana/encoder"
	"github.com/NethermindEth/katana/vm"
	"github.com/bits-and-blooms/bloom/v3"
)

// BodyIndices locate the transactions of a block in the global transaction number space.
type BodyIndices struct {
	TxOffset uint64
	TxCount  uint64
}

// txPosition is where a transaction landed in the chain.
type txPosition struct {
	number      uint64
	blockNumber uint64
	index       uint64
}

func getUint64(txn db.Transaction, key []byte) (uint64, error) {
	var v uint64
	err := txn.Get(key, func(b []byte) error {
		v = binary.BigEndian.Uint64(b)
		return nil
	})
	return v, err
}

func getEncoded[T any](txn db.Transaction, key []byte) (*T, error) {
	v := new(T)
	if err := txn.Get(key, func(b []byte) error {
		return encoder.Unmarshal(b, v)
	}); err != nil {
		return nil, err
	}
	return v, nil
}

func putEncoded(txn db.Transaction, key []byte, v any) error {
	b, err := encoder.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, b)
}

func chainHeight(txn db.Transaction) (uint64, error) {
	return getUint64(txn, db.ChainHeight.Key())
}

func headerByNumber(txn db.Transaction, number uint64) (*core.Header, error) {
	header, err := getEncoded[core.Header](txn, db.HeaderKey(number))
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, ErrBlockNotFound
	}
	return header, err
}

func blockNumberByHash(txn db.Transaction, hash *felt.Felt) (uint64, error) {
	number, err := getUint64(txn, db.BlockNumberKey(hash))
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, ErrBlockNotFound
	}
	return number, err
}

func bodyIndices(txn db.Transaction, number uint64) (*BodyIndices, error) {
	indices, err := getEncoded[BodyIndices](txn, db.BlockBodyIndicesKey(number))
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, ErrBlockNotFound
	}
	return indices, err
}

// nextTxNumber is the first unused transaction number.
func nextTxNumber(txn db.Transaction) (uint64, error) {
	height, err := chainHeight(txn)
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	indices, err := bodyIndices(txn, height)
	if err != nil {
		return 0, err
	}
	return indices.TxOffset + indices.TxCount, nil
}

func transactionByNumber(txn db.Transaction, number uint64) (core.Transaction, error) {
	var tx core.Transaction
	err := txn.Get(db.TransactionKey(number), func(b []byte) error {
		return encoder.Unmarshal(b, &tx)
	})
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, ErrTransactionNotFound
	}
	return tx, err
}

func receiptByNumber(txn db.Transaction, number uint64) (*core.TransactionReceipt, error) {
	receipt, err := getEncoded[core.TransactionReceipt](txn, db.ReceiptKey(number))
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, ErrTransactionNotFound
	}
	return receipt, err
}

func traceByNumber(txn db.Transaction, number uint64) (*vm.TransactionTrace, error) {
	trace, err := getEncoded[vm.TransactionTrace](txn, db.TxTraceKey(number))
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, ErrTraceNotFound
	}
	return trace, err
}

func txPositionByHash(txn db.Transaction, hash *felt.Felt) (*txPosition, error) {
	number, err := getUint64(txn, db.TxNumberKey(hash))
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, ErrTransactionNotFound
	} else if err != nil {
		return nil, err
	}

	blockNumber, err := getUint64(txn, db.TxBlockKey(number))
	if err != nil {
		return nil, err
	}
	indices, err := bodyIndices(txn, blockNumber)
	if err != nil {
		return nil, err
	}
	return &txPosition{number: number, blockNumber: blockNumber, index: number - indices.TxOffset}, nil
}

func blockBody(txn db.Transaction, number uint64) ([]core.Transaction, []*core.TransactionReceipt, error) {
	indices, err := bodyIndices(txn, number)
	if err != nil {
		return nil, nil, err
	}

	txs := make([]core.Transaction, 0, indices.TxCount)
	receipts := make([]*core.TransactionReceipt, 0, indices.TxCount)
	for n := indices.TxOffset; n < indices.TxOffset+indices.TxCount; n++ {
		tx, err := transactionByNumber(txn, n)
		if err != nil {
			return nil, nil, err
		}
		receipt, err := receiptByNumber(txn, n)
		if err != nil {
			return nil, nil, err
		}
		txs = append(txs, tx)
		receipts = append(receipts, receipt)
	}
	return txs, receipts, nil
}

func eventsBloom(txn db.Transaction, number uint64) (*bloom.BloomFilter, error) {
	filter := new(bloom.BloomFilter)
	err := txn.Get(db.EventsBloomKey(number), func(b []byte) error {
		_, err := filter.ReadFrom(bytes.NewReader(b))
		return err
	})
	return filter, err
}

func putEventsBloom(txn db.Transaction, number uint64, filter *bloom.BloomFilter) error {
	var buf bytes.Buffer
	if _, err := filter.WriteTo(&buf); err != nil {
		return err
	}
	return txn.Set(db.EventsBloomKey(number), buf.Bytes())
}
