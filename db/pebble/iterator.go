package pebble

import (
	"bytes"

	"github.com/NethermindEth/katana/db"
	"github.com/cockroachdb/pebble"
)

var _ db.Iterator = (*iterator)(nil)

// iterator copies keys and values out of pebble's buffers, which are reused on every move.
type iterator struct {
	iter *pebble.Iterator
	// Next and Prev on a fresh iterator start from the first and last key respectively.
	positioned bool
}

func (i *iterator) Valid() bool {
	return i.iter.Valid()
}

func (i *iterator) Key() []byte {
	if key := i.iter.Key(); key != nil {
		return bytes.Clone(key)
	}
	return nil
}

func (i *iterator) Value() ([]byte, error) {
	val, err := i.iter.ValueAndErr()
	if err != nil {
		return nil, err
	}
	return append([]byte{}, val...), nil
}

func (i *iterator) First() bool {
	i.positioned = true
	return i.iter.First()
}

func (i *iterator) Next() bool {
	if i.positioned {
		return i.iter.Next()
	}
	return i.First()
}

func (i *iterator) Prev() bool {
	if i.positioned {
		return i.iter.Prev()
	}
	i.positioned = true
	return i.iter.Last()
}

func (i *iterator) Seek(key []byte) bool {
	i.positioned = true
	return i.iter.SeekGE(key)
}

func (i *iterator) Close() error {
	return i.iter.Close()
}
