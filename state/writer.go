package state

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/core/trie"
	"github.com/NethermindEth/katana/db"
	"github.com/NethermindEth/katana/encoder"
)

var ErrMissingClassDefinition = errors.New("declared class has no definition")

// Writer applies the state diff of a sealed block.
type Writer struct {
	txn db.Transaction
}

func NewWriter(txn db.Transaction) *Writer {
	return &Writer{txn: txn}
}

// Apply updates the latest state with diff, records every write in the state history under
// blockNumber and stores the declared classes. classes must hold the definition of every class
// declared in diff. The commitment tries are updated for the touched entries only.
func (w *Writer) Apply(blockNumber uint64, diff *core.StateDiff, classes map[felt.Felt]core.Class) error {
	touched := make(map[felt.Felt]struct{})
	for addr, nonce := range diff.Nonces {
		if err := w.putNonce(blockNumber, &addr, nonce); err != nil {
			return err
		}
		touched[addr] = struct{}{}
	}

	// replaced classes take precedence over a deployment in the same block
	for _, contracts := range []map[felt.Felt]*felt.Felt{diff.DeployedContracts, diff.ReplacedClasses} {
		for addr, classHash := range contracts {
			if err := w.putClassHash(blockNumber, &addr, classHash); err != nil {
				return err
			}
			touched[addr] = struct{}{}
		}
	}

	for addr, storage := range diff.StorageDiffs {
		if err := w.putContractStorage(blockNumber, &addr, storage); err != nil {
			return err
		}
		touched[addr] = struct{}{}
	}

	classesTrie, err := trie.New(w.txn, db.ClassesTrie.Key(), globalTrieHeight, crypto.Poseidon)
	if err != nil {
		return err
	}
	for _, classHash := range diff.DeclaredV0Classes {
		if err := w.putClass(blockNumber, classHash, nil, classes); err != nil {
			return err
		}
	}
	for classHash, compiled := range diff.DeclaredV1Classes {
		if err := w.putClass(blockNumber, &classHash, compiled, classes); err != nil {
			return err
		}
		if err := classesTrie.Put(&classHash, core.ClassLeaf(compiled)); err != nil {
			return err
		}
	}
	if _, err := classesTrie.Root(); err != nil {
		return fmt.Errorf("classes root: %w", err)
	}

	return w.updateContracts(touched)
}

// updateContracts refreshes the contracts trie leaves of addrs. A contract with no class, nonce
// or storage left has no leaf.
func (w *Writer) updateContracts(addrs map[felt.Felt]struct{}) error {
	contractsTrie, err := trie.New(w.txn, db.ContractsTrie.Key(), globalTrieHeight, crypto.Pedersen)
	if err != nil {
		return err
	}

	latest := NewLatest(w.txn)
	for addr := range addrs {
		classHash, err := latest.ContractClassHash(&addr)
		if err != nil {
			return err
		}
		nonce, err := latest.ContractNonce(&addr)
		if err != nil {
			return err
		}
		storageRoot, err := getFelt(w.txn, db.ContractStorageRootKey(&addr))
		if err != nil {
			return err
		}

		leaf := new(felt.Felt)
		if !classHash.IsZero() || !nonce.IsZero() || !storageRoot.IsZero() {
			leaf = core.ContractLeaf(classHash, storageRoot, nonce)
		}
		if err := contractsTrie.Put(&addr, leaf); err != nil {
			return err
		}
	}

	if _, err := contractsTrie.Root(); err != nil {
		return fmt.Errorf("contracts root: %w", err)
	}
	return nil
}

func (w *Writer) putContractStorage(blockNumber uint64, addr *felt.Felt, storage map[felt.Felt]*felt.Felt) error {
	storageTrie, err := trie.New(w.txn, db.ContractStorageTriePrefix(addr), core.ContractStorageTrieHeight, crypto.Pedersen)
	if err != nil {
		return err
	}
	for key, value := range storage {
		if err := w.putStorage(blockNumber, addr, &key, value); err != nil {
			return err
		}
		if err := storageTrie.Put(&key, value); err != nil {
			return err
		}
	}

	root, err := storageTrie.Root()
	if err != nil {
		return fmt.Errorf("storage root of %s: %w", addr, err)
	}
	if root.IsZero() {
		return w.txn.Delete(db.ContractStorageRootKey(addr))
	}
	return w.txn.Set(db.ContractStorageRootKey(addr), root.Marshal())
}

func (w *Writer) putNonce(blockNumber uint64, addr, nonce *felt.Felt) error {
	if err := w.txn.Set(db.ContractNonceKey(addr), nonce.Marshal()); err != nil {
		return err
	}
	if err := w.txn.Set(db.ContractNonceHistoryKey(blockNumber, addr), nonce.Marshal()); err != nil {
		return err
	}
	return w.appendChangeSet(db.ContractNonceChangeSetKey(addr), blockNumber)
}

func (w *Writer) putClassHash(blockNumber uint64, addr, classHash *felt.Felt) error {
	if err := w.txn.Set(db.ContractClassHashKey(addr), classHash.Marshal()); err != nil {
		return err
	}
	if err := w.txn.Set(db.ContractClassHistoryKey(blockNumber, addr), classHash.Marshal()); err != nil {
		return err
	}
	return w.appendChangeSet(db.ContractClassChangeSetKey(addr), blockNumber)
}

func (w *Writer) putStorage(blockNumber uint64, addr, key, value *felt.Felt) error {
	var err error
	if value.IsZero() {
		err = w.txn.Delete(db.ContractStorageKey(addr, key))
	} else {
		err = w.txn.Set(db.ContractStorageKey(addr, key), value.Marshal())
	}
	if err != nil {
		return err
	}
	if err := w.txn.Set(db.StorageHistoryKey(blockNumber, addr, key), value.Marshal()); err != nil {
		return err
	}
	return w.appendChangeSet(db.StorageChangeSetKey(addr, key), blockNumber)
}

func (w *Writer) putClass(blockNumber uint64, classHash, compiled *felt.Felt, classes map[felt.Felt]core.Class) error {
	class, ok := classes[*classHash]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingClassDefinition, classHash)
	}

	encoded, err := encoder.Marshal(&DeclaredClass{At: blockNumber, Class: class})
	if err != nil {
		return err
	}
	if err := w.txn.Set(db.ClassKey(classHash), encoded); err != nil {
		return err
	}
	if compiled != nil {
		if err := w.txn.Set(db.CompiledClassHashKey(classHash), compiled.Marshal()); err != nil {
			return err
		}
	}
	return w.txn.Set(db.ClassDeclarationBlockKey(classHash), db.Uint64Key(blockNumber))
}

// appendChangeSet keeps change sets sorted and free of duplicates.
func (w *Writer) appendChangeSet(key []byte, blockNumber uint64) error {
	changes, err := getChangeSet(w.txn, key)
	if err != nil {
		return err
	}
	if n := len(changes); n > 0 {
		last := changes[n-1]
		if last == blockNumber {
			return nil
		}
		if last > blockNumber {
			return fmt.Errorf("state history for key %x already has block %d, cannot append %d", key, last, blockNumber)
		}
	}

	encoded, err := encoder.Marshal(append(changes, blockNumber))
	if err != nil {
		return err
	}
	return w.txn.Set(key, encoded)
}
