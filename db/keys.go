package db

import (
	"encoding/binary"

	"github.com/NethermindEth/juno/core/felt"
)

func Uint64Key(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func HeaderKey(blockNum uint64) []byte {
	return Headers.Key(Uint64Key(blockNum))
}

func BlockHashKey(blockNum uint64) []byte {
	return BlockHashes.Key(Uint64Key(blockNum))
}

func BlockNumberKey(hash *felt.Felt) []byte {
	return BlockNumbers.Key(hash.Marshal())
}

func BlockBodyIndicesKey(blockNum uint64) []byte {
	return BlockBodyIndices.Key(Uint64Key(blockNum))
}

func TransactionKey(txNum uint64) []byte {
	return Transactions.Key(Uint64Key(txNum))
}

func TxHashKey(txNum uint64) []byte {
	return TxHashes.Key(Uint64Key(txNum))
}

func TxNumberKey(hash *felt.Felt) []byte {
	return TxNumbers.Key(hash.Marshal())
}

func TxBlockKey(txNum uint64) []byte {
	return TxBlocks.Key(Uint64Key(txNum))
}

func ReceiptKey(txNum uint64) []byte {
	return Receipts.Key(Uint64Key(txNum))
}

func TxTraceKey(txNum uint64) []byte {
	return TxTraces.Key(Uint64Key(txNum))
}

func BlockStatusKey(blockNum uint64) []byte {
	return BlockStatuses.Key(Uint64Key(blockNum))
}

func StateUpdateKey(blockNum uint64) []byte {
	return StateUpdates.Key(Uint64Key(blockNum))
}

func EventsBloomKey(blockNum uint64) []byte {
	return EventsBloom.Key(Uint64Key(blockNum))
}

func L1HandlerTxHashKey(msgHash []byte) []byte {
	return L1HandlerTxHashes.Key(msgHash)
}

func ContractNonceKey(addr *felt.Felt) []byte {
	return ContractNonce.Key(addr.Marshal())
}

func ContractClassHashKey(addr *felt.Felt) []byte {
	return ContractClassHash.Key(addr.Marshal())
}

func ContractStorageKey(addr, key *felt.Felt) []byte {
	return ContractStorage.Key(addr.Marshal(), key.Marshal())
}

func ContractStorageRootKey(addr *felt.Felt) []byte {
	return ContractStorageRoot.Key(addr.Marshal())
}

// ContractStorageTriePrefix is the prefix of the storage trie of addr.
func ContractStorageTriePrefix(addr *felt.Felt) []byte {
	return ContractStorageTrie.Key(addr.Marshal())
}

func ClassKey(classHash *felt.Felt) []byte {
	return Class.Key(classHash.Marshal())
}

func CompiledClassHashKey(classHash *felt.Felt) []byte {
	return CompiledClassHash.Key(classHash.Marshal())
}

func ClassDeclarationBlockKey(classHash *felt.Felt) []byte {
	return ClassDeclarationBlock.Key(classHash.Marshal())
}

func ContractNonceChangeSetKey(addr *felt.Felt) []byte {
	return ContractNonceChangeSet.Key(addr.Marshal())
}

func ContractClassChangeSetKey(addr *felt.Felt) []byte {
	return ContractClassChangeSet.Key(addr.Marshal())
}

func StorageChangeSetKey(addr, key *felt.Felt) []byte {
	return StorageChangeSet.Key(addr.Marshal(), key.Marshal())
}

func ContractNonceHistoryKey(blockNum uint64, addr *felt.Felt) []byte {
	return ContractNonceHistory.Key(Uint64Key(blockNum), addr.Marshal())
}

func ContractClassHistoryKey(blockNum uint64, addr *felt.Felt) []byte {
	return ContractClassHistory.Key(Uint64Key(blockNum), addr.Marshal())
}

func StorageHistoryKey(blockNum uint64, addr, key *felt.Felt) []byte {
	return StorageHistory.Key(Uint64Key(blockNum), addr.Marshal(), key.Marshal())
}
