package state

import (
	"errors"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/db"
)

var _ Reader = (*Latest)(nil)

// Latest reads the state as of the last sealed block.
type Latest struct {
	txn db.Transaction
}

func NewLatest(txn db.Transaction) *Latest {
	return &Latest{txn: txn}
}

func (l *Latest) ContractClassHash(addr *felt.Felt) (*felt.Felt, error) {
	return getFelt(l.txn, db.ContractClassHashKey(addr))
}

func (l *Latest) ContractNonce(addr *felt.Felt) (*felt.Felt, error) {
	return getFelt(l.txn, db.ContractNonceKey(addr))
}

func (l *Latest) ContractStorage(addr, key *felt.Felt) (*felt.Felt, error) {
	return getFelt(l.txn, db.ContractStorageKey(addr, key))
}

// StorageWritten reports whether the slot was ever written, zero writes included.
func (l *Latest) StorageWritten(addr, key *felt.Felt) (bool, error) {
	return l.txn.Has(db.StorageChangeSetKey(addr, key))
}

func (l *Latest) Class(classHash *felt.Felt) (*DeclaredClass, error) {
	return getDeclaredClass(l.txn, classHash)
}

func (l *Latest) CompiledClassHash(classHash *felt.Felt) (*felt.Felt, error) {
	var compiled *felt.Felt
	err := l.txn.Get(db.CompiledClassHashKey(classHash), func(b []byte) error {
		compiled = new(felt.Felt).SetBytes(b)
		return nil
	})
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, ErrClassNotFound
	}
	return compiled, err
}
