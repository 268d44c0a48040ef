package pebble

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/NethermindEth/katana/db"
	"github.com/NethermindEth/katana/utils"
	"github.com/cockroachdb/pebble"
)

var _ db.DB = (*DB)(nil)

// DB serialises writers behind a single mutex. Readers work on snapshots and never block.
type DB struct {
	store    *pebble.DB
	writer   sync.Mutex
	listener db.EventListener
}

// Open opens the chain store at path, or a volatile one when path is empty. Stores written
// under another schema version are refused.
func Open(path string, options ...Option) (*DB, error) {
	opts := new(pebble.Options)
	if path == "" {
		options = append(options, inMemory())
	}
	for _, option := range options {
		option(opts)
	}

	store, err := pebble.Open(path, opts)
	if opts.Cache != nil {
		// Open holds its own reference.
		opts.Cache.Unref()
	}
	if err != nil {
		return nil, err
	}

	d := &DB{store: store, listener: &db.SelectiveListener{}}
	if err = db.CheckSchema(d); err != nil {
		return nil, errors.Join(fmt.Errorf("check schema of %q: %w", path, err), store.Close())
	}
	return d, nil
}

// NewMemTest opens a volatile store that is closed when the test ends
func NewMemTest(t testing.TB) *DB {
	t.Helper()
	memDB, err := Open("")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	t.Cleanup(func() {
		if err := memDB.Close(); err != nil {
			t.Errorf("close in-memory db: %v", err)
		}
	})
	return memDB
}

func (d *DB) WithListener(listener db.EventListener) db.DB {
	d.listener = listener
	return d
}

// NewTransaction hands out an indexed batch holding the writer lock for updates, and a snapshot
// otherwise.
func (d *DB) NewTransaction(update bool) (db.Transaction, error) {
	if !update {
		return &Transaction{snapshot: d.store.NewSnapshot(), listener: d.listener}, nil
	}

	d.writer.Lock()
	return &Transaction{
		batch:    d.store.NewIndexedBatch(),
		lock:     &d.writer,
		listener: d.listener,
	}, nil
}

func (d *DB) Close() error {
	return d.store.Close()
}

func (d *DB) View(fn func(txn db.Transaction) error) error {
	return d.run(false, fn)
}

func (d *DB) Update(fn func(txn db.Transaction) error) error {
	return d.run(true, fn)
}

func (d *DB) run(update bool, fn func(txn db.Transaction) error) error {
	txn, err := d.NewTransaction(update)
	if err != nil {
		return err
	}
	defer discardOnPanic(txn)

	if err = fn(txn); err != nil || !update {
		return utils.RunAndWrapOnError(txn.Discard, err)
	}
	return utils.RunAndWrapOnError(txn.Discard, txn.Commit())
}

func (d *DB) Impl() any {
	return d.store
}

// DiskUsage is the approximate on-disk footprint of the store.
func (d *DB) DiskUsage() utils.DataSize {
	return utils.DataSize(d.store.Metrics().DiskSpaceUsage())
}

func discardOnPanic(txn db.Transaction) {
	if p := recover(); p != nil {
		if err := txn.Discard(); err != nil {
			fmt.Fprintf(os.Stderr, "discard transaction after panic: %v\n", err)
		}
		panic(p)
	}
}
