package trie

import (
	"errors"

	"github.com/NethermindEth/juno/core/felt"
)

// Node is a stored trie node. A leaf holds the leaf value; a binary node holds the hash of its
// two children, each seen through the edge leading to it.
type Node struct {
	Value *felt.Felt
	Left  *Key
	Right *Key
}

// Hash is the hash of n as seen from above through an edge labelled path.
func (n *Node) Hash(path *Key, hash HashFunc) *felt.Felt {
	if path.Len() == 0 {
		v := *n.Value
		return &v
	}
	h := hash(n.Value, path.Felt())
	return h.Add(h, new(felt.Felt).SetUint64(uint64(path.Len())))
}

func (n *Node) MarshalBinary() ([]byte, error) {
	if n.Value == nil {
		return nil, errors.New("cannot marshal node with nil value")
	}
	value := n.Value.Bytes()
	b := append(make([]byte, 0, felt.Bytes+2*encodedKeyLen), value[:]...)
	if n.Left == nil {
		return b, nil
	}

	for _, child := range []*Key{n.Left, n.Right} {
		encoded, err := child.MarshalBinary()
		if err != nil {
			return nil, err
		}
		b = append(b, encoded...)
	}
	return b, nil
}

func (n *Node) UnmarshalBinary(data []byte) error {
	switch len(data) {
	case felt.Bytes:
		n.Value = new(felt.Felt).SetBytes(data)
		n.Left, n.Right = nil, nil
		return nil
	case felt.Bytes + 2*encodedKeyLen:
		n.Value = new(felt.Felt).SetBytes(data[:felt.Bytes])
		data = data[felt.Bytes:]
		n.Left, n.Right = new(Key), new(Key)
		if err := n.Left.UnmarshalBinary(data[:encodedKeyLen]); err != nil {
			return err
		}
		return n.Right.UnmarshalBinary(data[encodedKeyLen:])
	default:
		return errors.New("malformed trie node")
	}
}
