package state

import (
	"encoding/binary"
	"errors"
	"sort"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/db"
)

var _ Reader = (*Historical)(nil)

// Historical reads the state as it was right after block blockNumber was sealed.
//
// Every mutable entity keeps a change set: the sorted block numbers in which it was written.
// A read at block N looks up the greatest entry <= N and fetches the value written in that
// block from the history bucket.
type Historical struct {
	txn         db.Transaction
	blockNumber uint64
}

func NewHistorical(txn db.Transaction, blockNumber uint64) *Historical {
	return &Historical{txn: txn, blockNumber: blockNumber}
}

func (h *Historical) ContractClassHash(addr *felt.Felt) (*felt.Felt, error) {
	return h.valueAt(db.ContractClassChangeSetKey(addr), func(block uint64) []byte {
		return db.ContractClassHistoryKey(block, addr)
	})
}

func (h *Historical) ContractNonce(addr *felt.Felt) (*felt.Felt, error) {
	return h.valueAt(db.ContractNonceChangeSetKey(addr), func(block uint64) []byte {
		return db.ContractNonceHistoryKey(block, addr)
	})
}

func (h *Historical) ContractStorage(addr, key *felt.Felt) (*felt.Felt, error) {
	return h.valueAt(db.StorageChangeSetKey(addr, key), func(block uint64) []byte {
		return db.StorageHistoryKey(block, addr, key)
	})
}

// StorageWritten reports whether the slot was written at or before the pinned block.
func (h *Historical) StorageWritten(addr, key *felt.Felt) (bool, error) {
	changes, err := getChangeSet(h.txn, db.StorageChangeSetKey(addr, key))
	if err != nil {
		return false, err
	}
	return len(changes) > 0 && changes[0] <= h.blockNumber, nil
}

func (h *Historical) Class(classHash *felt.Felt) (*DeclaredClass, error) {
	class, err := getDeclaredClass(h.txn, classHash)
	if err != nil {
		return nil, err
	}
	if class.At > h.blockNumber {
		return nil, ErrClassNotFound
	}
	return class, nil
}

func (h *Historical) CompiledClassHash(classHash *felt.Felt) (*felt.Felt, error) {
	var declaredAt uint64
	err := h.txn.Get(db.ClassDeclarationBlockKey(classHash), func(b []byte) error {
		declaredAt = binary.BigEndian.Uint64(b)
		return nil
	})
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, ErrClassNotFound
	} else if err != nil {
		return nil, err
	}

	if declaredAt > h.blockNumber {
		return nil, ErrClassNotFound
	}
	return NewLatest(h.txn).CompiledClassHash(classHash)
}

func (h *Historical) valueAt(changeSetKey []byte, historyKey func(block uint64) []byte) (*felt.Felt, error) {
	changes, err := getChangeSet(h.txn, changeSetKey)
	if err != nil {
		return nil, err
	}

	// first entry strictly greater than the pinned block
	i := sort.Search(len(changes), func(i int) bool { return changes[i] > h.blockNumber })
	if i == 0 {
		return new(felt.Felt), nil
	}

	block := changes[i-1]
	key := historyKey(block)
	var value *felt.Felt
	err = h.txn.Get(key, func(b []byte) error {
		value = new(felt.Felt).SetBytes(b)
		return nil
	})
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, &CorruptHistoryError{Block: block, Key: key}
	}
	return value, err
}
