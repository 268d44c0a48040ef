// Package state layers the views over the contract state: the latest state, the state at a past
// block, a pending overlay used while building a block and a view backed by a forked remote chain.
package state

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/db"
	"github.com/NethermindEth/katana/encoder"
	_ "github.com/NethermindEth/katana/encoder/registry"
)

var ErrClassNotFound = errors.New("class not found")

// DeclaredClass is a class together with the block it was declared in.
type DeclaredClass struct {
	At    uint64
	Class core.Class
}

// Reader answers state queries. Contracts that do not exist read as zero nonce, zero class
// hash and zero storage; classes that do not exist return ErrClassNotFound.
//
//go:generate mockgen -destination=../mocks/mock_state_reader.go -package=mocks -mock_names Reader=MockStateReader github.com/NethermindEth/katana/state Reader
type Reader interface {
	ContractClassHash(addr *felt.Felt) (*felt.Felt, error)
	ContractNonce(addr *felt.Felt) (*felt.Felt, error)
	ContractStorage(addr, key *felt.Felt) (*felt.Felt, error)
	Class(classHash *felt.Felt) (*DeclaredClass, error)
	CompiledClassHash(classHash *felt.Felt) (*felt.Felt, error)
}

// writeTracker is implemented by readers that can tell a storage slot written as zero from one
// never written.
type writeTracker interface {
	StorageWritten(addr, key *felt.Felt) (bool, error)
}

// CorruptHistoryError reports a change set entry without its history row.
type CorruptHistoryError struct {
	Block uint64
	Key   []byte
}

func (e *CorruptHistoryError) Error() string {
	return fmt.Sprintf("corrupt state history: no entry for key %x at block %d", e.Key, e.Block)
}

// IsDeployed reports whether a contract lives at addr.
func IsDeployed(r Reader, addr *felt.Felt) (bool, error) {
	classHash, err := r.ContractClassHash(addr)
	if err != nil {
		return false, err
	}
	return !classHash.IsZero(), nil
}

func getFelt(txn db.Transaction, key []byte) (*felt.Felt, error) {
	value := new(felt.Felt)
	err := txn.Get(key, func(b []byte) error {
		value.SetBytes(b)
		return nil
	})
	if errors.Is(err, db.ErrKeyNotFound) {
		return value, nil
	}
	return value, err
}

func getDeclaredClass(txn db.Transaction, classHash *felt.Felt) (*DeclaredClass, error) {
	var class DeclaredClass
	err := txn.Get(db.ClassKey(classHash), func(b []byte) error {
		return encoder.Unmarshal(b, &class)
	})
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, ErrClassNotFound
	} else if err != nil {
		return nil, err
	}
	return &class, nil
}

func getChangeSet(txn db.Transaction, key []byte) ([]uint64, error) {
	var changes []uint64
	err := txn.Get(key, func(b []byte) error {
		return encoder.Unmarshal(b, &changes)
	})
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, nil
	}
	return changes, err
}
