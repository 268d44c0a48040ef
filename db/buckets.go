package db

import (
	"bytes"
)

// Pebble does not support buckets to differentiate between groups of
// keys like Bolt or MDBX does. We use a global prefix list as a poor
// man's bucket alternative.
type Bucket byte

const (
	SchemaVersion Bucket = iota // singleton: uint64
	ChainID                     // singleton: felt
	ChainHeight                 // singleton: uint64, number of the latest sealed block

	// Blockchain log
	Headers           // block number -> Header
	BlockHashes       // block number -> block hash
	BlockNumbers      // block hash -> block number
	BlockBodyIndices  // block number -> BodyIndices{TxOffset, TxCount}
	Transactions      // tx number -> Transaction
	TxHashes          // tx number -> tx hash
	TxNumbers         // tx hash -> tx number
	TxBlocks          // tx number -> block number
	Receipts          // tx number -> Receipt
	TxTraces          // tx number -> TransactionTrace
	BlockStatuses     // block number -> status
	StateUpdates      // block number -> StateUpdate
	EventsBloom       // block number -> bloom filter of the block's events
	L1HandlerTxHashes // message hash -> L1 handler tx hash

	// Latest state
	ContractNonce         // contract address -> nonce
	ContractClassHash     // contract address -> class hash
	ContractStorage       // contract address + storage key -> value
	ContractStorageRoot   // contract address -> storage trie root
	Class                 // class hash -> DeclaredClass
	CompiledClassHash     // class hash -> compiled class hash
	ClassDeclarationBlock // class hash -> block number

	// State history
	ContractNonceChangeSet // contract address -> sorted block numbers
	ContractClassChangeSet // contract address -> sorted block numbers
	StorageChangeSet       // contract address + storage key -> sorted block numbers
	ContractNonceHistory   // block number + contract address -> nonce
	ContractClassHistory   // block number + contract address -> class hash
	StorageHistory         // block number + contract address + storage key -> value

	// State commitment tries, nodes keyed by path
	ContractStorageTrie // contract address + node path -> storage trie node
	ContractsTrie       // node path -> contracts trie node
	ClassesTrie         // node path -> classes trie node
)

func (b Bucket) String() string {
	names := [...]string{
		"SchemaVersion", "ChainID", "ChainHeight",
		"Headers", "BlockHashes", "BlockNumbers", "BlockBodyIndices", "Transactions", "TxHashes",
		"TxNumbers", "TxBlocks", "Receipts", "TxTraces", "BlockStatuses", "StateUpdates",
		"EventsBloom", "L1HandlerTxHashes",
		"ContractNonce", "ContractClassHash", "ContractStorage", "ContractStorageRoot", "Class",
		"CompiledClassHash", "ClassDeclarationBlock",
		"ContractNonceChangeSet", "ContractClassChangeSet", "StorageChangeSet",
		"ContractNonceHistory", "ContractClassHistory", "StorageHistory",
		"ContractStorageTrie", "ContractsTrie", "ClassesTrie",
	}
	if int(b) < len(names) {
		return names[b]
	}
	return "Unknown"
}

// Key flattens a prefix and series of byte arrays into a single []byte.
func (b Bucket) Key(key ...[]byte) []byte {
	return append([]byte{byte(b)}, bytes.Join(key, []byte{})...)
}
