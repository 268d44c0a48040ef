package mempool

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/state"
	"github.com/NethermindEth/katana/vm"
)

// Validator decides whether a transaction may enter the pool. It returns nil for valid
// transactions, an *InvalidTransactionError for refused ones and any other error when the
// transaction could not be checked.
//
//go:generate mockgen -destination=../mocks/mock_mempool.go -package=mocks github.com/NethermindEth/katana/mempool Validator
type Validator interface {
	Validate(tx core.BroadcastedTransaction) error
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(tx core.BroadcastedTransaction) error

func (f ValidatorFunc) Validate(tx core.BroadcastedTransaction) error {
	return f(tx)
}

// StateSource gives the state and environment transactions are validated against, usually those
// of the pending block.
type StateSource interface {
	ValidationState() (state.Reader, *core.BlockEnv, func() error, error)
}

// StateSourceFunc adapts a function to StateSource. It lets the pool be built before the producer
// that owns the state.
type StateSourceFunc func() (state.Reader, *core.BlockEnv, func() error, error)

func (f StateSourceFunc) ValidationState() (state.Reader, *core.BlockEnv, func() error, error) {
	return f()
}

// TxLookup finds transactions already included in the chain.
type TxLookup interface {
	TransactionByHash(hash *felt.Felt) (core.Transaction, error)
}

type ValidatorConfig struct {
	// Skip the balance and max fee checks.
	DisableFee bool
	// Skip __validate__.
	DisableValidate bool
}

// StatefulValidator checks nonces and declared classes against the current state, then runs the
// transaction on a throwaway executor to check its fee and its signature. Nonces above the
// account nonce are accepted and wait in the pool until the gap closes.
type StatefulValidator struct {
	factory vm.ExecutorFactory
	source  StateSource
	chain   TxLookup
	cfg     ValidatorConfig
}

func NewStatefulValidator(factory vm.ExecutorFactory, source StateSource, chain TxLookup, cfg ValidatorConfig) *StatefulValidator {
	return &StatefulValidator{factory: factory, source: source, chain: chain, cfg: cfg}
}

func (v *StatefulValidator) Validate(tx core.BroadcastedTransaction) (err error) {
	if v.chain != nil {
		if _, lookupErr := v.chain.TransactionByHash(tx.Transaction.Hash()); lookupErr == nil {
			return invalid(ErrDuplicateTx)
		}
	}

	reader, env, closer, err := v.source.ValidationState()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closer(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()

	// L1 handlers are only produced by the messaging service and are not signed.
	if _, ok := tx.Transaction.(*core.L1HandlerTransaction); ok {
		return nil
	}

	if declare, ok := tx.Transaction.(*core.DeclareTransaction); ok {
		_, classErr := reader.Class(declare.ClassHash)
		if classErr == nil {
			return invalid(fmt.Errorf("%w: %s", vm.ErrClassAlreadyDeclared, declare.ClassHash))
		} else if !errors.Is(classErr, state.ErrClassNotFound) {
			return classErr
		}
	}

	if sender, nonce := core.SenderAddress(tx.Transaction), core.TransactionNonce(tx.Transaction); sender != nil && nonce != nil {
		current, nonceErr := reader.ContractNonce(sender)
		if nonceErr != nil {
			return nonceErr
		}
		if nonce.Cmp(current) < 0 {
			return invalid(fmt.Errorf("%w: account nonce %s, transaction nonce %s", vm.ErrInvalidNonce, current, nonce))
		}
	}

	// The nonce was checked above; future nonces are simulated as if they were next.
	executor := v.factory.NewExecutor(reader, env, vm.SimulationFlags{
		SkipValidate:          v.cfg.DisableValidate,
		SkipFeeTransfer:       v.cfg.DisableFee,
		SkipAccountValidation: true,
	})
	results := executor.Simulate([]core.BroadcastedTransaction{tx})
	if len(results) != 1 {
		return fmt.Errorf("validation returned %d results", len(results))
	}
	if results[0].Err != nil {
		return invalid(results[0].Err)
	}
	return nil
}
