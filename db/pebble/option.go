package pebble

import (
	"github.com/NethermindEth/katana/utils"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// pebble refuses block caches smaller than its own default.
const minCacheSizeMB = 8

type Option func(*pebble.Options)

// WithCacheSize sizes the shared block cache. Values under 8MB are raised to 8MB.
func WithCacheSize(sizeMB uint) Option {
	return func(opts *pebble.Options) {
		opts.Cache = pebble.NewCache(int64(max(sizeMB, minCacheSizeMB) * utils.Megabyte))
	}
}

func WithLogger(logger pebble.Logger) Option {
	return func(opts *pebble.Options) {
		opts.Logger = logger
	}
}

// inMemory backs the store with a volatile filesystem. Open selects it for empty paths.
func inMemory() Option {
	return func(opts *pebble.Options) {
		opts.FS = vfs.NewMem()
	}
}
