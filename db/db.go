package db

import (
	"errors"
	"io"
)

// DB is a key-value database
type DB interface {
	io.Closer

	// NewTransaction returns a transaction on this database, it should block if an update transaction
	// is requested while another one is still in progress
	NewTransaction(update bool) (Transaction, error)
	// View runs a read-only transaction
	View(fn func(txn Transaction) error) error
	// Update runs a read-write transaction
	Update(fn func(txn Transaction) error) error

	// Impl returns the underlying database object
	Impl() any

	// WithListener registers an EventListener
	WithListener(listener EventListener) DB
}

// Iterator is an iterator over a DB's key/value pairs.
type Iterator interface {
	io.Closer

	// Valid returns true if the iterator is positioned at a valid key/value pair.
	Valid() bool

	// First moves the iterator to the first key/value pair.
	First() bool

	// Next moves the iterator to the next key/value pair. It returns whether the
	// iterator is valid after the call. Once invalid, the iterator remains
	// invalid.
	Next() bool

	// Prev moves the iterator to the previous key/value pair
	Prev() bool

	// Key returns the key at the current position.
	Key() []byte

	// Value returns the value at the current position.
	Value() ([]byte, error)

	// Seek would seek to the provided key if present. If absent, it would seek to the next
	// key in lexicographical order
	Seek(key []byte) bool
}

// Transaction provides an interface to access the database's state at the point the transaction was created
// Updates done to the database with a transaction should be only visible to other newly created transaction after
// the transaction is committed.
type Transaction interface {
	// NewIterator returns an iterator over keys starting at lowerBound. With withUpperBound set
	// the iterator stops at the end of the lowerBound prefix.
	NewIterator(lowerBound []byte, withUpperBound bool) (Iterator, error)
	// Discard discards all the changes done to the database with this transaction
	Discard() error
	// Commit flushes all the changes pending on this transaction to the database, making the changes visible to other
	// transaction
	Commit() error

	// Set updates the value of the given key
	Set(key, val []byte) error
	// Delete removes the key from the database
	Delete(key []byte) error
	// Get fetches the value for the given key, should return ErrKeyNotFound if key is not present
	// Caller should not assume that the slice would stay valid after the call to cb
	Get(key []byte, cb func([]byte) error) error
	// Has reports whether key is present
	Has(key []byte) (bool, error)

	// Impl returns the underlying transaction object
	Impl() any
}

// CloseAndWrapOnError closes closer and joins its error into err.
func CloseAndWrapOnError(closerFn func() error, existingErr *error) {
	if closeErr := closerFn(); closeErr != nil {
		*existingErr = errors.Join(*existingErr, closeErr)
	}
}

// UpperBound returns the exclusive upper bound of every key starting with prefix, nil if there is
// none.
func UpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}
