// Package vm defines how the sequencer talks to a contract executor. The producer, the pool
// and the RPC handlers only see these interfaces; vm/native provides the built-in executor.
package vm

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/state"
	"github.com/NethermindEth/katana/utils"
)

// Validation errors. A transaction failing with one of these is not included in a block.
var (
	ErrInvalidNonce          = errors.New("invalid transaction nonce")
	ErrInsufficientMaxFee    = errors.New("max fee is smaller than the minimal transaction cost")
	ErrInsufficientBalance   = errors.New("account balance is smaller than the transaction's max fee")
	ErrValidationFailure     = errors.New("account validation failed")
	ErrNonAccount            = errors.New("sender address is not an account contract")
	ErrClassAlreadyDeclared  = errors.New("class already declared")
	ErrUnsupportedTxVersion  = errors.New("the transaction version is not supported")
	ErrCompiledClassMismatch = errors.New("compiled class hash is missing or zero")
)

// Call errors.
var (
	ErrContractNotFound        = errors.New("contract not found")
	ErrEntryPointNotFound      = errors.New("entry point not found in contract")
	ErrEntryPointNotExecutable = errors.New("entry point not executable")
	ErrStepLimitExceeded       = errors.New("step limit exceeded")
)

// TransactionExecutionError reports the transaction of a batch that could not be executed.
type TransactionExecutionError struct {
	Index uint64
	Cause error
}

func (e *TransactionExecutionError) Error() string {
	return fmt.Sprintf("execute transaction #%d: %v", e.Index, e.Cause)
}

func (e *TransactionExecutionError) Unwrap() error {
	return e.Cause
}

// SimulationFlags toggle parts of the transaction flow. SkipAccountValidation also skips the
// nonce check.
type SimulationFlags struct {
	SkipValidate          bool
	SkipFeeTransfer       bool
	SkipAccountValidation bool
}

// FeeTokens are the ERC20 contracts fees are paid in.
type FeeTokens struct {
	ETH  *felt.Felt
	STRK *felt.Felt
}

// For returns the token fees of unit are paid in.
func (t FeeTokens) For(unit core.FeeUnit) *felt.Felt {
	if unit == core.STRK {
		return t.STRK
	}
	return t.ETH
}

// ChainConfig is the part of the execution environment that stays fixed for the chain.
type ChainConfig struct {
	ChainID   utils.ChainID
	FeeTokens FeeTokens
	// Upper bounds on the steps spent in __execute__ and __validate__.
	InvokeMaxSteps   uint64
	ValidateMaxSteps uint64
}

// ExecutionResult is either a Receipt with its Trace, or Err when the transaction failed
// validation and must not be part of a block.
type ExecutionResult struct {
	Receipt *core.TransactionReceipt
	Trace   *TransactionTrace
	Err     error
}

func (r *ExecutionResult) Failed() bool {
	return r.Err != nil
}

type CallInfo struct {
	ContractAddress *felt.Felt
	Selector        *felt.Felt
	Calldata        []*felt.Felt
}

type FeeEstimate struct {
	GasConsumed     *felt.Felt
	GasPrice        *felt.Felt
	DataGasConsumed *felt.Felt
	DataGasPrice    *felt.Felt
	OverallFee      *felt.Felt
	Unit            core.FeeUnit
}

// ExecutorFactory creates executors over a state view and block environment.
//
//go:generate mockgen -destination=../mocks/mock_vm.go -package=mocks github.com/NethermindEth/katana/vm ExecutorFactory,Executor
type ExecutorFactory interface {
	NewExecutor(base state.Reader, env *core.BlockEnv, flags SimulationFlags) Executor
	Config() *ChainConfig
}

// Executor runs transactions on top of a pending overlay it owns. Transactions given to
// Execute see the writes of all transactions executed before them.
type Executor interface {
	// Execute runs txs in order and keeps their writes. Failed results leave no writes behind.
	Execute(txs []core.BroadcastedTransaction) []ExecutionResult
	// Simulate runs txs like Execute and discards their writes.
	Simulate(txs []core.BroadcastedTransaction) []ExecutionResult
	// EstimateFee simulates txs and prices them. Any failure or revert aborts the estimate with a
	// TransactionExecutionError.
	EstimateFee(txs []core.BroadcastedTransaction) ([]FeeEstimate, error)
	// Call runs a read-only entry point and returns its result.
	Call(call *CallInfo) ([]*felt.Felt, error)
	State() *state.Pending
	Env() *core.BlockEnv
}
