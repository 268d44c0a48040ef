package rpc

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/jsonrpc"
	"github.com/NethermindEth/katana/utils"
	"github.com/NethermindEth/katana/vm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type FunctionCall struct {
	ContractAddress    felt.Felt   `json:"contract_address" validate:"required"`
	EntryPointSelector felt.Felt   `json:"entry_point_selector" validate:"required"`
	Calldata           []felt.Felt `json:"calldata" validate:"required"`
}

type SimulationFlag int

const (
	SkipValidateFlag SimulationFlag = iota + 1
	SkipFeeChargeFlag
)

func (s *SimulationFlag) UnmarshalJSON(bytes []byte) error {
	switch flag := string(bytes); flag {
	case `"SKIP_VALIDATE"`:
		*s = SkipValidateFlag
	case `"SKIP_FEE_CHARGE"`:
		*s = SkipFeeChargeFlag
	default:
		return fmt.Errorf("unknown simulation flag %q", flag)
	}
	return nil
}

func adaptSimulationFlags(flags []SimulationFlag) vm.SimulationFlags {
	var res vm.SimulationFlags
	for _, flag := range flags {
		switch flag {
		case SkipValidateFlag:
			res.SkipValidate = true
		case SkipFeeChargeFlag:
			res.SkipFeeTransfer = true
		}
	}
	return res
}

type FeeEstimate struct {
	GasConsumed     *felt.Felt `json:"gas_consumed"`
	GasPrice        *felt.Felt `json:"gas_price"`
	DataGasConsumed *felt.Felt `json:"data_gas_consumed"`
	DataGasPrice    *felt.Felt `json:"data_gas_price"`
	OverallFee      *felt.Felt `json:"overall_fee"`
	Unit            FeeUnit    `json:"unit"`
}

func adaptFeeEstimate(estimate *vm.FeeEstimate) FeeEstimate {
	return FeeEstimate{
		GasConsumed:     estimate.GasConsumed,
		GasPrice:        estimate.GasPrice,
		DataGasConsumed: estimate.DataGasConsumed,
		DataGasPrice:    estimate.DataGasPrice,
		OverallFee:      estimate.OverallFee,
		Unit:            adaptFeeUnit(estimate.Unit),
	}
}

// MsgFromL1 is a message sent from the settlement chain, to be consumed by an l1 handler.
type MsgFromL1 struct {
	From     common.Address `json:"from_address" validate:"required"`
	To       felt.Felt      `json:"to_address" validate:"required"`
	Selector felt.Felt      `json:"entry_point_selector" validate:"required"`
	Payload  []felt.Felt    `json:"payload" validate:"required"`
}

type SimulatedTransaction struct {
	TransactionTrace *vm.TransactionTrace `json:"transaction_trace"`
	FeeEstimation    FeeEstimate          `json:"fee_estimation"`
}

type ContractErrorData struct {
	RevertError string `json:"revert_error"`
}

type TransactionExecutionErrorData struct {
	TransactionIndex uint64 `json:"transaction_index"`
	ExecutionError   string `json:"execution_error"`
}

func (h *Handler) executor(id *BlockID, flags vm.SimulationFlags) (vm.Executor, func() error, *jsonrpc.Error) {
	reader, env, closer, rpcErr := h.stateAndEnv(id, true)
	if rpcErr != nil {
		return nil, nil, rpcErr
	}
	return h.factory.NewExecutor(reader, env, flags), closer, nil
}

func (h *Handler) Call(funcCall FunctionCall, id BlockID) ([]*felt.Felt, *jsonrpc.Error) {
	executor, closer, rpcErr := h.executor(&id, vm.SimulationFlags{})
	if rpcErr != nil {
		return nil, rpcErr
	}
	defer h.closeState(closer)

	res, err := executor.Call(&vm.CallInfo{
		ContractAddress: &funcCall.ContractAddress,
		Selector:        &funcCall.EntryPointSelector,
		Calldata:        utils.Map(funcCall.Calldata, utils.HeapPtr[felt.Felt]),
	})
	if err != nil {
		switch {
		case errors.Is(err, utils.ErrResourceBusy):
			return nil, ErrInternal.CloneWithData(throttledExecutorErr)
		case errors.Is(err, vm.ErrContractNotFound):
			return nil, ErrContractNotFound
		case errors.Is(err, vm.ErrEntryPointNotFound):
			return nil, ErrEntrypointNotFound
		default:
			return nil, ErrContractError.CloneWithData(ContractErrorData{RevertError: err.Error()})
		}
	}
	return res, nil
}

func (h *Handler) EstimateFee(broadcastedTxns []BroadcastedTransaction, simulationFlags []SimulationFlag,
	id BlockID,
) ([]FeeEstimate, *jsonrpc.Error) {
	txns := make([]core.BroadcastedTransaction, 0, len(broadcastedTxns))
	for i := range broadcastedTxns {
		txn, rpcErr := h.coreTransaction(&broadcastedTxns[i])
		if rpcErr != nil {
			return nil, rpcErr
		}
		txns = append(txns, txn)
	}

	executor, closer, rpcErr := h.executor(&id, adaptSimulationFlags(simulationFlags))
	if rpcErr != nil {
		return nil, rpcErr
	}
	defer h.closeState(closer)

	estimates, err := executor.EstimateFee(txns)
	if err != nil {
		return nil, h.adaptExecutionError(err)
	}
	return utils.Map(estimates, func(e vm.FeeEstimate) FeeEstimate { return adaptFeeEstimate(&e) }), nil
}

func (h *Handler) EstimateMessageFee(msg MsgFromL1, id BlockID) (*FeeEstimate, *jsonrpc.Error) { //nolint:gocritic
	calldata := make([]*felt.Felt, 0, len(msg.Payload)+1)
	calldata = append(calldata, new(felt.Felt).SetBytes(msg.From.Bytes()))
	for i := range msg.Payload {
		calldata = append(calldata, &msg.Payload[i])
	}
	tx := &core.L1HandlerTransaction{
		ContractAddress:    &msg.To,
		EntryPointSelector: &msg.Selector,
		Nonce:              new(felt.Felt),
		CallData:           calldata,
		Version:            core.NewTransactionVersion(0),
		PaidFeeOnL1:        new(felt.Felt).SetUint64(1),
	}
	hash, err := core.TransactionHash(tx, h.chain.ChainID().Felt())
	if err != nil {
		return nil, h.adaptError(err)
	}
	tx.TransactionHash = hash

	executor, closer, rpcErr := h.executor(&id, vm.SimulationFlags{})
	if rpcErr != nil {
		return nil, rpcErr
	}
	defer h.closeState(closer)

	estimates, err := executor.EstimateFee([]core.BroadcastedTransaction{{Transaction: tx}})
	if err != nil {
		var execErr *vm.TransactionExecutionError
		if errors.As(err, &execErr) && !errors.Is(err, utils.ErrResourceBusy) {
			if errors.Is(execErr.Cause, vm.ErrContractNotFound) {
				return nil, ErrContractNotFound
			}
			return nil, ErrContractError.CloneWithData(ContractErrorData{RevertError: execErr.Cause.Error()})
		}
		return nil, h.adaptError(err)
	}
	estimate := adaptFeeEstimate(&estimates[0])
	return &estimate, nil
}

func (h *Handler) SimulateTransactions(id BlockID, broadcastedTxns []BroadcastedTransaction,
	simulationFlags []SimulationFlag,
) ([]SimulatedTransaction, *jsonrpc.Error) {
	txns := make([]core.BroadcastedTransaction, 0, len(broadcastedTxns))
	for i := range broadcastedTxns {
		txn, rpcErr := h.coreTransaction(&broadcastedTxns[i])
		if rpcErr != nil {
			return nil, rpcErr
		}
		txns = append(txns, txn)
	}

	executor, closer, rpcErr := h.executor(&id, adaptSimulationFlags(simulationFlags))
	if rpcErr != nil {
		return nil, rpcErr
	}
	defer h.closeState(closer)

	results := executor.Simulate(txns)
	env := executor.Env()
	simulated := make([]SimulatedTransaction, 0, len(results))
	for i, res := range results {
		if res.Err != nil {
			return nil, h.adaptExecutionError(&vm.TransactionExecutionError{Index: uint64(i), Cause: res.Err})
		}
		simulated = append(simulated, SimulatedTransaction{
			TransactionTrace: res.Trace,
			FeeEstimation:    feeEstimateOf(res.Receipt, env),
		})
	}
	return simulated, nil
}

// feeEstimateOf derives the gas a transaction consumed from the fee it was charged.
func feeEstimateOf(receipt *core.TransactionReceipt, env *core.BlockEnv) FeeEstimate {
	fee := utils.FeltOrZero(receipt.Fee)
	gasPrice := env.GasPriceIn(receipt.FeeUnit)

	gasConsumed := new(felt.Felt)
	if !gasPrice.IsZero() {
		feeBytes, priceBytes := fee.Bytes(), gasPrice.Bytes()
		gas := new(uint256.Int).Div(new(uint256.Int).SetBytes32(feeBytes[:]), new(uint256.Int).SetBytes32(priceBytes[:]))
		gasBytes := gas.Bytes32()
		gasConsumed.SetBytes(gasBytes[:])
	}
	return FeeEstimate{
		GasConsumed:     gasConsumed,
		GasPrice:        gasPrice,
		DataGasConsumed: new(felt.Felt),
		DataGasPrice:    env.DataGasPriceIn(receipt.FeeUnit),
		OverallFee:      fee,
		Unit:            adaptFeeUnit(receipt.FeeUnit),
	}
}

func (h *Handler) adaptExecutionError(err error) *jsonrpc.Error {
	var execErr *vm.TransactionExecutionError
	if errors.As(err, &execErr) && !errors.Is(err, utils.ErrResourceBusy) {
		return ErrTransactionExecutionError.CloneWithData(TransactionExecutionErrorData{
			TransactionIndex: execErr.Index,
			ExecutionError:   execErr.Cause.Error(),
		})
	}
	return h.adaptError(err)
}
