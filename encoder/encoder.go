// Package encoder is the on-disk codec: canonical CBOR, with every concrete type that hides
// behind an interface registered under its own tag.
package encoder

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"
)

// FirstFreeTag is the start of the CBOR tag range IANA leaves unassigned.
const FirstFreeTag uint64 = 65536

// Bounds decoding of untrusted lengths.
const maxElements = 10 * 1024 * 1024

type modes struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var (
	mu      sync.Mutex
	tags    = cbor.NewTagSet()
	current atomic.Pointer[modes]
)

// Register binds the concrete type of v to tag. Tags are written next to every value, so a tag
// must never be reassigned once data has been stored with it.
func Register(tag uint64, v any) error {
	if tag < FirstFreeTag {
		return fmt.Errorf("tag %d is reserved", tag)
	}

	mu.Lock()
	defer mu.Unlock()
	opts := cbor.TagOptions{EncTag: cbor.EncTagRequired, DecTag: cbor.DecTagRequired}
	if err := tags.Add(opts, reflect.TypeOf(v), tag); err != nil {
		return err
	}
	return rebuild()
}

// rebuild must be called with mu held.
func rebuild() error {
	enc, err := cbor.CanonicalEncOptions().EncModeWithTags(tags)
	if err != nil {
		return err
	}
	dec, err := cbor.DecOptions{
		MaxArrayElements: maxElements,
		MaxMapPairs:      maxElements,
	}.DecModeWithTags(tags)
	if err != nil {
		return err
	}
	current.Store(&modes{enc: enc, dec: dec})
	return nil
}

func load() *modes {
	if m := current.Load(); m != nil {
		return m
	}

	mu.Lock()
	defer mu.Unlock()
	if current.Load() == nil {
		if err := rebuild(); err != nil {
			panic(err)
		}
	}
	return current.Load()
}

func Marshal(v any) ([]byte, error) {
	return load().enc.Marshal(v)
}

func Unmarshal(b []byte, v any) error {
	return load().dec.Unmarshal(b, v)
}
