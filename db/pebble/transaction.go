package pebble

import (
	"errors"
	"sync"
	"time"

	"github.com/NethermindEth/katana/db"
	"github.com/cockroachdb/pebble"
)

var _ db.Transaction = (*Transaction)(nil)

// Transaction is either a read-write indexed batch or a read-only snapshot.
type Transaction struct {
	batch    *pebble.Batch
	snapshot *pebble.Snapshot
	lock     *sync.Mutex
	listener db.EventListener
}

func (t *Transaction) reader() (pebble.Reader, error) {
	switch {
	case t.batch != nil:
		return t.batch, nil
	case t.snapshot != nil:
		return t.snapshot, nil
	}
	return nil, db.ErrDiscardedTransaction
}

// Discard releases the transaction. Calling it more than once is harmless.
func (t *Transaction) Discard() error {
	var err error
	if t.batch != nil {
		err = t.batch.Close()
		t.batch = nil
	}
	if t.snapshot != nil {
		err = errors.Join(err, t.snapshot.Close())
		t.snapshot = nil
	}
	if t.lock != nil {
		t.lock.Unlock()
		t.lock = nil
	}
	return err
}

func (t *Transaction) Commit() (err error) {
	defer db.CloseAndWrapOnError(t.Discard, &err)
	if t.batch == nil {
		return db.ErrDiscardedTransaction
	}

	start := time.Now()
	err = t.batch.Commit(pebble.Sync)
	t.listener.OnCommit(time.Since(start))
	return err
}

func (t *Transaction) writable() error {
	if t.batch == nil {
		return db.ErrReadOnlyTransaction
	}
	return nil
}

func (t *Transaction) Set(key, val []byte) error {
	if err := t.writable(); err != nil {
		return err
	}
	if len(key) == 0 {
		return db.ErrEmptyKey
	}

	start := time.Now()
	err := t.batch.Set(key, val, pebble.Sync)
	t.listener.OnIO(true, time.Since(start))
	return err
}

func (t *Transaction) Delete(key []byte) error {
	if err := t.writable(); err != nil {
		return err
	}

	start := time.Now()
	err := t.batch.Delete(key, pebble.Sync)
	t.listener.OnIO(true, time.Since(start))
	return err
}

// Get passes the value of key to cb. The slice is only valid until cb returns.
func (t *Transaction) Get(key []byte, cb func([]byte) error) (err error) {
	r, err := t.reader()
	if err != nil {
		return err
	}

	start := time.Now()
	val, closer, err := r.Get(key)
	t.listener.OnIO(false, time.Since(start))
	if errors.Is(err, pebble.ErrNotFound) {
		return db.ErrKeyNotFound
	} else if err != nil {
		return err
	}
	defer db.CloseAndWrapOnError(closer.Close, &err)
	return cb(val)
}

func (t *Transaction) Has(key []byte) (bool, error) {
	err := t.Get(key, func([]byte) error { return nil })
	if errors.Is(err, db.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (t *Transaction) Impl() any {
	r, _ := t.reader()
	return r
}

func (t *Transaction) NewIterator(lowerBound []byte, withUpperBound bool) (db.Iterator, error) {
	r, err := t.reader()
	if err != nil {
		return nil, err
	}

	bounds := &pebble.IterOptions{LowerBound: lowerBound}
	if withUpperBound {
		bounds.UpperBound = db.UpperBound(lowerBound)
	}
	iter, err := r.NewIter(bounds)
	if err != nil {
		return nil, err
	}
	return &iterator{iter: iter}, nil
}
