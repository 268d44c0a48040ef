package core

import (
	"fmt"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/core/trie"
	"github.com/bits-and-blooms/bloom/v3"
)

const commitmentTrieHeight = 64

const (
	// Calculated at https://hur.st/bloomfilter/?n=1000&p=&m=8192&k=
	// provides 1 in 51 possibility of false positives for approximately 1000 elements
	EventsBloomLength    = 8192
	EventsBloomHashFuncs = 6
)

type BlockCommitments struct {
	TransactionCommitment *felt.Felt
	EventCommitment       *felt.Felt
	ReceiptCommitment     *felt.Felt
	StateDiffCommitment   *felt.Felt
}

// Commitments computes every commitment a block header carries.
func Commitments(txs []Transaction, receipts []*TransactionReceipt, diff *StateDiff) (*BlockCommitments, error) {
	if len(txs) != len(receipts) {
		return nil, fmt.Errorf("len of transactions: %v do not match len of receipts: %v", len(txs), len(receipts))
	}

	txCommitment, err := TransactionCommitment(txs)
	if err != nil {
		return nil, err
	}
	eventCommitment, err := EventCommitment(receipts)
	if err != nil {
		return nil, err
	}
	receiptCommitment, err := ReceiptCommitment(receipts)
	if err != nil {
		return nil, err
	}
	return &BlockCommitments{
		TransactionCommitment: txCommitment,
		EventCommitment:       eventCommitment,
		ReceiptCommitment:     receiptCommitment,
		StateDiffCommitment:   diff.Commitment(),
	}, nil
}

// TransactionCommitment is the root of a height 64 binary Merkle Patricia tree of the
// transaction hashes and signatures in a block.
func TransactionCommitment(txs []Transaction) (*felt.Felt, error) {
	leaves := make([]trie.Leaf, len(txs))
	for i, tx := range txs {
		sig := tx.Signature()
		if len(sig) == 0 {
			sig = []*felt.Felt{new(felt.Felt)}
		}
		leaves[i] = trie.Leaf{
			Key:   new(felt.Felt).SetUint64(uint64(i)),
			Value: crypto.PoseidonArray(append([]*felt.Felt{tx.Hash()}, sig...)...),
		}
	}
	return trie.Root(commitmentTrieHeight, crypto.Poseidon, leaves)
}

// EventCommitment is the root of a height 64 trie over every event emitted in a block.
func EventCommitment(receipts []*TransactionReceipt) (*felt.Felt, error) {
	var leaves []trie.Leaf
	for _, r := range receipts {
		for _, e := range r.Events {
			elems := []*felt.Felt{e.From, r.TransactionHash, new(felt.Felt).SetUint64(uint64(len(e.Keys)))}
			elems = append(elems, e.Keys...)
			elems = append(elems, new(felt.Felt).SetUint64(uint64(len(e.Data))))
			elems = append(elems, e.Data...)
			leaves = append(leaves, trie.Leaf{
				Key:   new(felt.Felt).SetUint64(uint64(len(leaves))),
				Value: crypto.PoseidonArray(elems...),
			})
		}
	}
	return trie.Root(commitmentTrieHeight, crypto.Poseidon, leaves)
}

// ReceiptCommitment is the root of a height 64 trie over the receipts of a block.
func ReceiptCommitment(receipts []*TransactionReceipt) (*felt.Felt, error) {
	leaves := make([]trie.Leaf, len(receipts))
	for i, r := range receipts {
		leaves[i] = trie.Leaf{
			Key:   new(felt.Felt).SetUint64(uint64(i)),
			Value: receiptHash(r),
		}
	}
	return trie.Root(commitmentTrieHeight, crypto.Poseidon, leaves)
}

func EventsBloom(receipts []*TransactionReceipt) *bloom.BloomFilter {
	filter := bloom.New(EventsBloomLength, EventsBloomHashFuncs)

	for _, receipt := range receipts {
		for _, event := range receipt.Events {
			fromBytes := event.From.Bytes()
			filter.TestOrAdd(fromBytes[:])
			for index, key := range event.Keys {
				keyBytes := key.Bytes()
				keyAndIndexBytes := append(keyBytes[:], byte(index))
				filter.TestOrAdd(keyAndIndexBytes)
			}
		}
	}
	return filter
}

func EventCount(receipts []*TransactionReceipt) uint64 {
	var n uint64
	for _, r := range receipts {
		n += uint64(len(r.Events))
	}
	return n
}
