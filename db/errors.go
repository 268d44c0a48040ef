package db

import (
	"errors"
	"fmt"
)

var (
	ErrKeyNotFound          = errors.New("key not found")
	ErrDiscardedTransaction = errors.New("discarded txn")
	ErrReadOnlyTransaction  = errors.New("read only transaction")
	ErrEmptyKey             = errors.New("empty key")
)

// SchemaMismatchError is returned when opening a database written by an incompatible version.
type SchemaMismatchError struct {
	Have uint64
	Want uint64
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("database schema version %d does not match expected version %d", e.Have, e.Want)
}
