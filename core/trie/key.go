package trie

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/holiman/uint256"
)

const encodedKeyLen = 1 + 32

// Key is the path from the top of a trie to a node: the len most significant bits of a leaf key.
// The bits are kept right-aligned in path, so the key of a leaf is the leaf key itself.
type Key struct {
	len  uint8
	path uint256.Int
}

func NewKey(length uint8, b []byte) Key {
	k := Key{len: length}
	k.path.SetBytes(b)
	return k
}

func (k *Key) Len() uint8 {
	return k.len
}

// Test reports bit i of the path, bit 0 being the least significant one.
func (k *Key) Test(i uint8) bool {
	var shifted uint256.Int
	shifted.Rsh(&k.path, uint(i))
	return shifted.Uint64()&1 == 1
}

func (k *Key) Equal(other *Key) bool {
	if k == nil || other == nil {
		return k == other
	}
	return k.len == other.len && k.path.Eq(&other.path)
}

func (k *Key) Felt() *felt.Felt {
	b := k.path.Bytes32()
	return new(felt.Felt).SetBytes(b[:])
}

func (k *Key) String() string {
	return fmt.Sprintf("%d:%s", k.len, k.path.Hex())
}

// prefix returns the n most significant bits of k.
func (k *Key) prefix(n uint8) Key {
	if n >= k.len {
		return *k
	}
	out := Key{len: n}
	out.path.Rsh(&k.path, uint(k.len-n))
	return out
}

// suffix returns the n least significant bits of k.
func (k *Key) suffix(n uint8) Key {
	if n >= k.len {
		return *k
	}
	out := Key{len: n}
	var mask uint256.Int
	mask.Lsh(uint256.NewInt(1), uint(n))
	mask.SubUint64(&mask, 1)
	out.path.And(&k.path, &mask)
	return out
}

// isPrefixOf reports whether the node at k is an ancestor of, or is, the node at other.
func (k *Key) isPrefixOf(other *Key) bool {
	if k.len > other.len {
		return false
	}
	p := other.prefix(k.len)
	return p.Equal(k)
}

// commonPrefix returns the longest key that is a prefix of both a and b.
func commonPrefix(a, b *Key) Key {
	n := min(a.len, b.len)
	pa, pb := a.prefix(n), b.prefix(n)

	var diff uint256.Int
	diff.Xor(&pa.path, &pb.path)
	return pa.prefix(n - uint8(diff.BitLen()))
}

// edgePath is the path stored on the edge from parent down to the node at key. The bit right
// below parent is left out since the branch already encodes it. A nil parent is the top of the
// trie.
func edgePath(key, parent *Key) Key {
	if parent == nil {
		return *key
	}
	return key.suffix(key.len - parent.len - 1)
}

func (k *Key) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, encodedKeyLen)
	path := k.path.Bytes32()
	b = append(b, k.len)
	return append(b, path[:]...), nil
}

func (k *Key) UnmarshalBinary(data []byte) error {
	if len(data) < encodedKeyLen {
		return errors.New("trie key too short")
	}
	k.len = data[0]
	k.path.SetBytes32(data[1:encodedKeyLen])
	return nil
}
