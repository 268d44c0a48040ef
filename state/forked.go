package state

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
)

// ErrRemoteClassNotFound is returned by a RemoteProvider for classes unknown to the remote chain.
var ErrRemoteClassNotFound = errors.New("class not found on the forked chain")

// RemoteProvider reads the state of the forked chain at a fixed block.
type RemoteProvider interface {
	Nonce(ctx context.Context, block uint64, addr *felt.Felt) (*felt.Felt, error)
	ClassHashAt(ctx context.Context, block uint64, addr *felt.Felt) (*felt.Felt, error)
	StorageAt(ctx context.Context, block uint64, addr, key *felt.Felt) (*felt.Felt, error)
	Class(ctx context.Context, block uint64, classHash *felt.Felt) (core.Class, error)
}

const remoteTimeout = 30 * time.Second

type storageSlot struct {
	addr felt.Felt
	key  felt.Felt
}

// ForkCache remembers what the forked chain answered. The remote block never changes, so a
// single cache serves every view for the lifetime of the process.
type ForkCache struct {
	remote RemoteProvider
	block  uint64

	mu          sync.RWMutex
	nonces      map[felt.Felt]*felt.Felt
	classHashes map[felt.Felt]*felt.Felt
	storage     map[storageSlot]*felt.Felt
	classes     map[felt.Felt]core.Class
}

func NewForkCache(remote RemoteProvider, block uint64) *ForkCache {
	return &ForkCache{
		remote:      remote,
		block:       block,
		nonces:      make(map[felt.Felt]*felt.Felt),
		classHashes: make(map[felt.Felt]*felt.Felt),
		storage:     make(map[storageSlot]*felt.Felt),
		classes:     make(map[felt.Felt]core.Class),
	}
}

// Block is the block of the forked chain the cache is pinned to.
func (c *ForkCache) Block() uint64 {
	return c.block
}

func cached[K comparable, V any](c *ForkCache, m map[K]V, key K, fetch func(ctx context.Context) (V, error)) (V, error) {
	c.mu.RLock()
	v, ok := m[key]
	c.mu.RUnlock()
	if ok {
		return v, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
	defer cancel()
	v, err := fetch(ctx)
	if err != nil {
		return v, err
	}

	c.mu.Lock()
	m[key] = v
	c.mu.Unlock()
	return v, nil
}

func (c *ForkCache) nonce(addr *felt.Felt) (*felt.Felt, error) {
	return cached(c, c.nonces, *addr, func(ctx context.Context) (*felt.Felt, error) {
		return c.remote.Nonce(ctx, c.block, addr)
	})
}

func (c *ForkCache) classHash(addr *felt.Felt) (*felt.Felt, error) {
	return cached(c, c.classHashes, *addr, func(ctx context.Context) (*felt.Felt, error) {
		return c.remote.ClassHashAt(ctx, c.block, addr)
	})
}

func (c *ForkCache) storageAt(addr, key *felt.Felt) (*felt.Felt, error) {
	return cached(c, c.storage, storageSlot{addr: *addr, key: *key}, func(ctx context.Context) (*felt.Felt, error) {
		return c.remote.StorageAt(ctx, c.block, addr, key)
	})
}

func (c *ForkCache) class(classHash *felt.Felt) (core.Class, error) {
	return cached(c, c.classes, *classHash, func(ctx context.Context) (core.Class, error) {
		return c.remote.Class(ctx, c.block, classHash)
	})
}

var _ Reader = (*Forked)(nil)

// Forked answers reads from the local state first and falls back to the forked chain.
//
// A contract with a non-zero nonce or class hash in the local state is materialised locally:
// its nonce and storage reads that are not in the cache never reach the remote chain. A storage
// slot written locally, even to zero, never reads through to the remote chain either.
type Forked struct {
	local Reader
	cache *ForkCache
}

func NewForked(local Reader, cache *ForkCache) *Forked {
	return &Forked{local: local, cache: cache}
}

func (f *Forked) materialised(addr *felt.Felt) (bool, error) {
	nonce, err := f.local.ContractNonce(addr)
	if err != nil {
		return false, err
	}
	if !nonce.IsZero() {
		return true, nil
	}
	classHash, err := f.local.ContractClassHash(addr)
	if err != nil {
		return false, err
	}
	return !classHash.IsZero(), nil
}

func (f *Forked) ContractClassHash(addr *felt.Felt) (*felt.Felt, error) {
	classHash, err := f.local.ContractClassHash(addr)
	if err != nil || !classHash.IsZero() {
		return classHash, err
	}
	return f.cache.classHash(addr)
}

func (f *Forked) ContractNonce(addr *felt.Felt) (*felt.Felt, error) {
	nonce, err := f.local.ContractNonce(addr)
	if err != nil || !nonce.IsZero() {
		return nonce, err
	}

	local, err := f.materialised(addr)
	if err != nil || local {
		return nonce, err
	}
	return f.cache.nonce(addr)
}

func (f *Forked) ContractStorage(addr, key *felt.Felt) (*felt.Felt, error) {
	value, err := f.local.ContractStorage(addr, key)
	if err != nil || !value.IsZero() {
		return value, err
	}
	// a slot cleared locally stays cleared
	if tracker, ok := f.local.(writeTracker); ok {
		written, err := tracker.StorageWritten(addr, key)
		if err != nil || written {
			return value, err
		}
	}

	f.cache.mu.RLock()
	remote, ok := f.cache.storage[storageSlot{addr: *addr, key: *key}]
	f.cache.mu.RUnlock()
	if ok {
		return remote, nil
	}

	local, err := f.materialised(addr)
	if err != nil || local {
		return value, err
	}
	return f.cache.storageAt(addr, key)
}

func (f *Forked) Class(classHash *felt.Felt) (*DeclaredClass, error) {
	class, err := f.local.Class(classHash)
	if !errors.Is(err, ErrClassNotFound) {
		return class, err
	}

	remote, err := f.cache.class(classHash)
	if errors.Is(err, ErrRemoteClassNotFound) {
		return nil, ErrClassNotFound
	} else if err != nil {
		return nil, err
	}
	return &DeclaredClass{At: 0, Class: remote}, nil
}

// CompiledClassHash of a class only known to the forked chain is zero: the remote RPC does not
// expose it.
func (f *Forked) CompiledClassHash(classHash *felt.Felt) (*felt.Felt, error) {
	compiled, err := f.local.CompiledClassHash(classHash)
	if !errors.Is(err, ErrClassNotFound) {
		return compiled, err
	}
	if _, err := f.Class(classHash); err != nil {
		return nil, err
	}
	return new(felt.Felt), nil
}
