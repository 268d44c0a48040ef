package rpc

import (
	"errors"

	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/builder"
	"github.com/NethermindEth/katana/jsonrpc"
	"github.com/NethermindEth/katana/mempool"
	"github.com/NethermindEth/katana/state"
	"github.com/NethermindEth/katana/utils"
	"github.com/NethermindEth/katana/vm"
)

const (
	MaxEventChunkSize  = 1024
	MaxEventFilterKeys = 1024

	throttledExecutorErr = "execution throughput limit reached, try again"
)

var (
	ErrFailedToReceiveTxn        = &jsonrpc.Error{Code: 1, Message: "Failed to write transaction"}
	ErrContractNotFound          = &jsonrpc.Error{Code: 20, Message: "Contract not found"}
	ErrEntrypointNotFound        = &jsonrpc.Error{Code: 21, Message: "Requested entrypoint does not exist in the contract"}
	ErrBlockNotFound             = &jsonrpc.Error{Code: 24, Message: "Block not found"}
	ErrInvalidTxIndex            = &jsonrpc.Error{Code: 27, Message: "Invalid transaction index in a block"}
	ErrClassHashNotFound         = &jsonrpc.Error{Code: 28, Message: "Class hash not found"}
	ErrTxnHashNotFound           = &jsonrpc.Error{Code: 29, Message: "Transaction hash not found"}
	ErrPageSizeTooBig            = &jsonrpc.Error{Code: 31, Message: "Requested page size is too big"}
	ErrNoBlock                   = &jsonrpc.Error{Code: 32, Message: "There are no blocks"}
	ErrInvalidContinuationToken  = &jsonrpc.Error{Code: 33, Message: "The supplied continuation token is invalid or unknown"}
	ErrTooManyKeysInFilter       = &jsonrpc.Error{Code: 34, Message: "Too many keys provided in a filter"}
	ErrContractError             = &jsonrpc.Error{Code: 40, Message: "Contract error"}
	ErrTransactionExecutionError = &jsonrpc.Error{Code: 41, Message: "Transaction execution error"}
	ErrInvalidContractClass      = &jsonrpc.Error{Code: 50, Message: "Invalid contract class"}
	ErrClassAlreadyDeclared      = &jsonrpc.Error{Code: 51, Message: "Class already declared"}
	ErrInvalidTransactionNonce   = &jsonrpc.Error{Code: 52, Message: "Invalid transaction nonce"}
	ErrInsufficientMaxFee        = &jsonrpc.Error{Code: 53, Message: "Max fee is smaller than the minimal transaction cost (validation plus fee transfer)"} //nolint:lll
	ErrInsufficientBalance       = &jsonrpc.Error{Code: 54, Message: "Account balance is smaller than the transaction's max_fee"}
	ErrValidationFailure         = &jsonrpc.Error{Code: 55, Message: "Account validation failed"}
	ErrNonAccount                = &jsonrpc.Error{Code: 58, Message: "Sender address is not an account contract"}
	ErrDuplicateTx               = &jsonrpc.Error{Code: 59, Message: "A transaction with the same hash already exists in the mempool"}
	ErrCompiledClassHashMismatch = &jsonrpc.Error{Code: 60, Message: "the compiled class hash did not match the one supplied in the transaction"} //nolint:lll
	ErrUnsupportedTxVersion      = &jsonrpc.Error{Code: 61, Message: "the transaction version is not supported"}
	ErrInternal                  = &jsonrpc.Error{Code: jsonrpc.InternalError, Message: "Internal error"}

	// Errors of the dev namespace.
	ErrPendingTransactions = &jsonrpc.Error{Code: 1000, Message: "Pending block already has transactions"}
	ErrUnknownFeeUnit      = &jsonrpc.Error{Code: 1001, Message: "Unknown fee unit"}
)

// validationErrors maps the reasons a transaction is refused to their codes.
var validationErrors = []struct {
	err    error
	rpcErr *jsonrpc.Error
}{
	{vm.ErrClassAlreadyDeclared, ErrClassAlreadyDeclared},
	{vm.ErrInvalidNonce, ErrInvalidTransactionNonce},
	{vm.ErrInsufficientMaxFee, ErrInsufficientMaxFee},
	{vm.ErrInsufficientBalance, ErrInsufficientBalance},
	{vm.ErrValidationFailure, ErrValidationFailure},
	{vm.ErrNonAccount, ErrNonAccount},
	{mempool.ErrDuplicateTx, ErrDuplicateTx},
	{vm.ErrCompiledClassMismatch, ErrCompiledClassHashMismatch},
	{vm.ErrUnsupportedTxVersion, ErrUnsupportedTxVersion},
}

// validationError returns the code of the reason err refuses a transaction for, if any.
func validationError(err error) (*jsonrpc.Error, bool) {
	for _, v := range validationErrors {
		if errors.Is(err, v.err) {
			return v.rpcErr, true
		}
	}
	return nil, false
}

// adaptError maps a core error to its rpc error. Errors with no code become ErrInternal and
// are logged rather than sent to the caller.
func (h *Handler) adaptError(err error) *jsonrpc.Error {
	if errors.Is(err, utils.ErrResourceBusy) {
		return ErrInternal.CloneWithData(throttledExecutorErr)
	}
	if rpcErr, ok := validationError(err); ok {
		return rpcErr
	}

	switch {
	case errors.Is(err, blockchain.ErrBlockNotFound):
		return ErrBlockNotFound
	case errors.Is(err, blockchain.ErrTransactionNotFound), errors.Is(err, blockchain.ErrTraceNotFound):
		return ErrTxnHashNotFound
	case errors.Is(err, blockchain.ErrInvalidTxIndex):
		return ErrInvalidTxIndex
	case errors.Is(err, state.ErrClassNotFound):
		return ErrClassHashNotFound
	case errors.Is(err, vm.ErrContractNotFound):
		return ErrContractNotFound
	case errors.Is(err, builder.ErrPendingTransactions):
		return ErrPendingTransactions
	}

	h.log.Errorw("Unexpected error serving rpc request", "err", err)
	return ErrInternal
}
