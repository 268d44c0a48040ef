package state

import (
	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/core/trie"
	"github.com/NethermindEth/katana/db"
)

const globalTrieHeight = 251

var stateVersion = new(felt.Felt).SetBytes([]byte(`STARKNET_STATE_V0`))

// Root returns the state commitment of the latest state. The tries are kept up to date by Writer,
// so this only hashes the two roots together.
func Root(txn db.Transaction) (*felt.Felt, error) {
	contractsRoot, err := trieRoot(txn, db.ContractsTrie, crypto.Pedersen)
	if err != nil {
		return nil, err
	}
	classesRoot, err := trieRoot(txn, db.ClassesTrie, crypto.Poseidon)
	if err != nil {
		return nil, err
	}

	if classesRoot.IsZero() {
		return contractsRoot, nil
	}
	return crypto.PoseidonArray(stateVersion, contractsRoot, classesRoot), nil
}

func trieRoot(txn db.Transaction, bucket db.Bucket, hash trie.HashFunc) (*felt.Felt, error) {
	t, err := trie.New(txn, bucket.Key(), globalTrieHeight, hash)
	if err != nil {
		return nil, err
	}
	return t.Root()
}
