package trie

import (
	"errors"
	"fmt"
	"math/big"
	"slices"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/bits-and-blooms/bitset"
)

var ErrDuplicateKey = errors.New("duplicate leaf key")

type Leaf struct {
	Key   *felt.Felt
	Value *felt.Felt
}

type keyedLeaf struct {
	bits  *bitset.BitSet
	key   *felt.Felt
	value *felt.Felt
}

type builder struct {
	height uint
	hash   HashFunc
}

// Root returns the commitment of a throwaway trie of the given height holding leaves. Block
// commitments use it; the state tries are kept on disk by [Trie]. Leaves with a zero
// value are treated as absent, and the empty trie commits to zero.
func Root(height uint8, hash HashFunc, leaves []Leaf) (*felt.Felt, error) {
	keyed := make([]keyedLeaf, 0, len(leaves))
	for _, l := range leaves {
		if l.Value == nil || l.Value.IsZero() {
			continue
		}
		bits, err := keyBits(l.Key, uint(height))
		if err != nil {
			return nil, err
		}
		keyed = append(keyed, keyedLeaf{bits: bits, key: l.Key, value: l.Value})
	}
	if len(keyed) == 0 {
		return new(felt.Felt), nil
	}

	slices.SortFunc(keyed, func(a, b keyedLeaf) int {
		return a.key.Cmp(b.key)
	})
	for i := 1; i < len(keyed); i++ {
		if keyed[i].key.Equal(keyed[i-1].key) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, keyed[i].key)
		}
	}

	b := builder{height: uint(height), hash: hash}
	return b.node(keyed, 0), nil
}

// node returns the hash of the subtree at depth holding exactly leaves. Depth counts the key
// bits, from the most significant one, already consumed by ancestors.
func (b *builder) node(leaves []keyedLeaf, depth uint) *felt.Felt {
	if depth == b.height {
		v := *leaves[0].value
		return &v
	}

	common := b.commonPrefix(leaves[0].bits, leaves[len(leaves)-1].bits, depth)
	if common > 0 {
		child := b.node(leaves, depth+common)
		path := b.pathFelt(leaves[0].bits, depth, common)
		h := b.hash(child, path)
		return h.Add(h, new(felt.Felt).SetUint64(uint64(common)))
	}

	// leaves are sorted, so everything branching right comes after everything branching left
	split := 0
	for split < len(leaves) && !b.bit(leaves[split].bits, depth) {
		split++
	}
	left := b.node(leaves[:split], depth+1)
	right := b.node(leaves[split:], depth+1)
	return b.hash(left, right)
}

// bit reports the key bit at depth, depth 0 being the most significant bit of the trie key.
func (b *builder) bit(bits *bitset.BitSet, depth uint) bool {
	return bits.Test(b.height - 1 - depth)
}

func (b *builder) commonPrefix(first, last *bitset.BitSet, depth uint) uint {
	var n uint
	for d := depth; d < b.height; d++ {
		if b.bit(first, d) != b.bit(last, d) {
			break
		}
		n++
	}
	return n
}

func (b *builder) pathFelt(bits *bitset.BitSet, depth, length uint) *felt.Felt {
	path := new(big.Int)
	for d := depth; d < depth+length; d++ {
		path.Lsh(path, 1)
		if b.bit(bits, d) {
			path.SetBit(path, 0, 1)
		}
	}
	return new(felt.Felt).SetBytes(path.Bytes())
}

func keyBits(key *felt.Felt, height uint) (*bitset.BitSet, error) {
	raw := key.Bytes()
	bits := bitset.New(height)
	for i := uint(0); i < uint(len(raw))*8; i++ {
		if raw[len(raw)-1-int(i/8)]>>(i%8)&1 == 0 {
			continue
		}
		if i >= height {
			return nil, fmt.Errorf("key %s does not fit in %d bits", key, height)
		}
		bits.Set(i)
	}
	return bits, nil
}
