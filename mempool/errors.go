package mempool

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateTx = errors.New("a transaction with the same hash already exists")
	ErrPoolFull    = errors.New("transaction pool is full")
)

// InvalidTransactionError is returned for transactions the validator refused. Reason is one of
// the vm validation errors or ErrDuplicateTx.
type InvalidTransactionError struct {
	Reason error
}

func (e *InvalidTransactionError) Error() string {
	return fmt.Sprintf("invalid transaction: %v", e.Reason)
}

func (e *InvalidTransactionError) Unwrap() error {
	return e.Reason
}

func invalid(reason error) error {
	return &InvalidTransactionError{Reason: reason}
}
