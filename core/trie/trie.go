// Package trie implements the binary Merkle-Patricia tries Starknet commits to.
// https://docs.starknet.io/architecture-and-concepts/network-architecture/starknet-state/#trie_construction
package trie

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/db"
)

type HashFunc func(*felt.Felt, *felt.Felt) *felt.Felt

// Trie is a dense Merkle-Patricia trie stored in a database transaction: every internal node
// has two children, and nodes are keyed by their path from the top rather than by their hash.
// A leaf is therefore reached in a single lookup, and an update only rehashes the nodes on the
// way to the leaves it touched.
//
// Hashes are computed lazily. Put only restructures the trie; Root rehashes the dirty paths and
// persists the root pointer.
type Trie struct {
	txn    db.Transaction
	prefix []byte
	height uint8
	hash   HashFunc

	rootKey   *Key
	rootDirty bool
	dirty     []Key
}

// New opens the trie stored under prefix. The root pointer lives at prefix itself and every node
// at prefix followed by its encoded key.
func New(txn db.Transaction, prefix []byte, height uint8, hash HashFunc) (*Trie, error) {
	if height > felt.Bits {
		return nil, fmt.Errorf("max trie height is %d, got: %d", felt.Bits, height)
	}

	t := &Trie{txn: txn, prefix: prefix, height: height, hash: hash}
	err := txn.Get(prefix, func(b []byte) error {
		t.rootKey = new(Key)
		return t.rootKey.UnmarshalBinary(b)
	})
	if err != nil && !errors.Is(err, db.ErrKeyNotFound) {
		return nil, err
	}
	return t, nil
}

func (t *Trie) nodeKey(key *Key) ([]byte, error) {
	encoded, err := key.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return append(append(make([]byte, 0, len(t.prefix)+len(encoded)), t.prefix...), encoded...), nil
}

func (t *Trie) get(key *Key) (*Node, error) {
	dbKey, err := t.nodeKey(key)
	if err != nil {
		return nil, err
	}
	node := new(Node)
	if err := t.txn.Get(dbKey, node.UnmarshalBinary); err != nil {
		return nil, err
	}
	return node, nil
}

func (t *Trie) put(key *Key, node *Node) error {
	dbKey, err := t.nodeKey(key)
	if err != nil {
		return err
	}
	encoded, err := node.MarshalBinary()
	if err != nil {
		return err
	}
	return t.txn.Set(dbKey, encoded)
}

func (t *Trie) delete(key *Key) error {
	dbKey, err := t.nodeKey(key)
	if err != nil {
		return err
	}
	return t.txn.Delete(dbKey)
}

func (t *Trie) leafKey(k *felt.Felt) (Key, error) {
	b := k.Bytes()
	key := NewKey(t.height, b[:])
	if key.path.BitLen() > int(t.height) {
		return Key{}, fmt.Errorf("key %s exceeds trie height %d", k, t.height)
	}
	return key, nil
}

// Get returns the value stored at key, zero when absent.
func (t *Trie) Get(key *felt.Felt) (*felt.Felt, error) {
	leafKey, err := t.leafKey(key)
	if err != nil {
		return nil, err
	}
	node, err := t.get(&leafKey)
	if errors.Is(err, db.ErrKeyNotFound) {
		return new(felt.Felt), nil
	} else if err != nil {
		return nil, err
	}
	return node.Value, nil
}

type storedNode struct {
	key  *Key
	node *Node
}

// pathTo returns the stored nodes met walking from the root towards key, root first. The walk
// stops at key itself or at the first node that is not on the way to it.
func (t *Trie) pathTo(key *Key) ([]storedNode, error) {
	var nodes []storedNode
	for cur := t.rootKey; cur != nil; {
		node, err := t.get(cur)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, storedNode{key: cur, node: node})

		if cur.Len() >= key.Len() || !cur.isPrefixOf(key) {
			break
		}
		if key.Test(key.Len() - cur.Len() - 1) {
			cur = node.Right
		} else {
			cur = node.Left
		}
	}
	return nodes, nil
}

// Put sets the value at key. A zero value removes the leaf.
func (t *Trie) Put(key, value *felt.Felt) error {
	leafKey, err := t.leafKey(key)
	if err != nil {
		return err
	}
	v := *value
	leaf := &Node{Value: &v}

	// an existing leaf is overwritten in place
	if !value.IsZero() {
		_, err := t.get(&leafKey)
		if err == nil {
			t.dirty = append(t.dirty, leafKey)
			return t.put(&leafKey, leaf)
		} else if !errors.Is(err, db.ErrKeyNotFound) {
			return err
		}
	}

	nodes, err := t.pathTo(&leafKey)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		if value.IsZero() {
			return nil
		}
		t.setRoot(&leafKey)
		return t.put(&leafKey, leaf)
	}

	last := nodes[len(nodes)-1]
	if last.key.Equal(&leafKey) {
		return t.deleteLast(nodes)
	}
	if value.IsZero() {
		return nil
	}

	// the new leaf branches off right above last
	common := commonPrefix(&leafKey, last.key)
	parent := &Node{Value: new(felt.Felt)}
	if leafKey.Test(leafKey.Len() - common.Len() - 1) {
		parent.Left, parent.Right = last.key, &leafKey
	} else {
		parent.Left, parent.Right = &leafKey, last.key
	}
	if err := t.put(&common, parent); err != nil {
		return err
	}

	if len(nodes) > 1 {
		grandparent := nodes[len(nodes)-2]
		if grandparent.node.Left.Equal(last.key) {
			grandparent.node.Left = &common
		} else {
			grandparent.node.Right = &common
		}
		if err := t.put(grandparent.key, grandparent.node); err != nil {
			return err
		}
	} else {
		t.setRoot(&common)
	}

	t.dirty = append(t.dirty, leafKey)
	return t.put(&leafKey, leaf)
}

// deleteLast removes the leaf at the end of nodes. Its parent goes with it and the sibling takes
// the parent's place.
func (t *Trie) deleteLast(nodes []storedNode) error {
	last := nodes[len(nodes)-1]
	if err := t.delete(last.key); err != nil {
		return err
	}
	if len(nodes) == 1 {
		t.setRoot(nil)
		return nil
	}

	parent := nodes[len(nodes)-2]
	if err := t.delete(parent.key); err != nil {
		return err
	}
	sibling := parent.node.Left
	if sibling.Equal(last.key) {
		sibling = parent.node.Right
	}

	if len(nodes) == 2 {
		t.setRoot(sibling)
		return nil
	}

	grandparent := nodes[len(nodes)-3]
	if grandparent.node.Left.Equal(parent.key) {
		grandparent.node.Left = sibling
	} else {
		grandparent.node.Right = sibling
	}
	t.dirty = append(t.dirty, *sibling)
	return t.put(grandparent.key, grandparent.node)
}

func (t *Trie) setRoot(key *Key) {
	t.rootKey = key
	t.rootDirty = true
}

// rehash recomputes the binary nodes under key that lie on the way to one of dirty.
func (t *Trie) rehash(key *Key, dirty []Key) (*Node, error) {
	node, err := t.get(key)
	if err != nil {
		return nil, err
	}
	if key.Len() == t.height {
		return node, nil
	}

	var left, right []Key
	for i := range dirty {
		d := &dirty[i]
		if d.Len() <= key.Len() || !key.isPrefixOf(d) {
			continue
		}
		if d.Test(d.Len() - key.Len() - 1) {
			right = append(right, *d)
		} else {
			left = append(left, *d)
		}
	}
	if len(left) == 0 && len(right) == 0 {
		return node, nil
	}

	leftChild, err := t.rehash(node.Left, left)
	if err != nil {
		return nil, err
	}
	rightChild, err := t.rehash(node.Right, right)
	if err != nil {
		return nil, err
	}

	leftPath, rightPath := edgePath(node.Left, key), edgePath(node.Right, key)
	node.Value = t.hash(leftChild.Hash(&leftPath, t.hash), rightChild.Hash(&rightPath, t.hash))
	return node, t.put(key, node)
}

// Root rehashes what changed since the last call and returns the commitment. The empty trie
// commits to zero.
func (t *Trie) Root() (*felt.Felt, error) {
	if t.rootDirty {
		if t.rootKey == nil {
			if err := t.txn.Delete(t.prefix); err != nil {
				return nil, err
			}
		} else {
			encoded, err := t.rootKey.MarshalBinary()
			if err != nil {
				return nil, err
			}
			if err := t.txn.Set(t.prefix, encoded); err != nil {
				return nil, err
			}
		}
		t.rootDirty = false
	}

	if t.rootKey == nil {
		t.dirty = nil
		return new(felt.Felt), nil
	}

	root, err := t.rehash(t.rootKey, t.dirty)
	if err != nil {
		return nil, err
	}
	t.dirty = nil

	path := edgePath(t.rootKey, nil)
	return root.Hash(&path, t.hash), nil
}
