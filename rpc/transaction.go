package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/jsonrpc"
	"github.com/NethermindEth/katana/mempool"
	"github.com/NethermindEth/katana/utils"
	"github.com/NethermindEth/katana/vm"
)

type TxnStatus uint8

const (
	TxnStatusReceived TxnStatus = iota + 1
	TxnStatusRejected
	TxnStatusAcceptedOnL2
	TxnStatusAcceptedOnL1
)

func (s TxnStatus) MarshalText() ([]byte, error) {
	switch s {
	case TxnStatusReceived:
		return []byte("RECEIVED"), nil
	case TxnStatusRejected:
		return []byte("REJECTED"), nil
	case TxnStatusAcceptedOnL1:
		return []byte("ACCEPTED_ON_L1"), nil
	case TxnStatusAcceptedOnL2:
		return []byte("ACCEPTED_ON_L2"), nil
	default:
		return nil, fmt.Errorf("unknown ExecutionStatus %v", s)
	}
}

type TxnExecutionStatus uint8

const (
	TxnSuccess TxnExecutionStatus = iota + 1
	TxnFailure
)

func (es TxnExecutionStatus) MarshalText() ([]byte, error) {
	switch es {
	case TxnSuccess:
		return []byte("SUCCEEDED"), nil
	case TxnFailure:
		return []byte("REVERTED"), nil
	default:
		return nil, fmt.Errorf("unknown ExecutionStatus %v", es)
	}
}

type TxnFinalityStatus uint8

const (
	TxnAcceptedOnL2 TxnFinalityStatus = iota + 3
	TxnAcceptedOnL1
)

func (fs TxnFinalityStatus) MarshalText() ([]byte, error) {
	switch fs {
	case TxnAcceptedOnL1:
		return []byte("ACCEPTED_ON_L1"), nil
	case TxnAcceptedOnL2:
		return []byte("ACCEPTED_ON_L2"), nil
	default:
		return nil, fmt.Errorf("unknown FinalityStatus %v", fs)
	}
}

type DataAvailabilityMode uint32

const (
	DAModeL1 DataAvailabilityMode = iota
	DAModeL2
)

func (m DataAvailabilityMode) MarshalText() ([]byte, error) {
	switch m {
	case DAModeL1:
		return []byte("L1"), nil
	case DAModeL2:
		return []byte("L2"), nil
	default:
		return nil, fmt.Errorf("unknown DataAvailabilityMode %v", m)
	}
}

func (m *DataAvailabilityMode) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"L1"`:
		*m = DAModeL1
	case `"L2"`:
		*m = DAModeL2
	default:
		return fmt.Errorf("unknown DataAvailabilityMode: %q", string(data))
	}
	return nil
}

type FeeUnit byte

const (
	WEI FeeUnit = iota
	FRI
)

func (u FeeUnit) MarshalText() ([]byte, error) {
	switch u {
	case WEI:
		return []byte("WEI"), nil
	case FRI:
		return []byte("FRI"), nil
	default:
		return nil, fmt.Errorf("unknown FeeUnit %v", u)
	}
}

func (u *FeeUnit) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"WEI"`:
		*u = WEI
	case `"FRI"`, `"STRK"`:
		*u = FRI
	default:
		return fmt.Errorf("unknown FeeUnit: %q", string(data))
	}
	return nil
}

func adaptFeeUnit(u core.FeeUnit) FeeUnit {
	if u == core.STRK {
		return FRI
	}
	return WEI
}

func (u FeeUnit) core() core.FeeUnit {
	if u == FRI {
		return core.STRK
	}
	return core.WEI
}

type ResourceBounds struct {
	MaxAmount       *felt.Felt `json:"max_amount" validate:"required"`
	MaxPricePerUnit *felt.Felt `json:"max_price_per_unit" validate:"required"`
}

type ResourceBoundsMap struct {
	L1Gas *ResourceBounds `json:"l1_gas" validate:"required"`
	L2Gas *ResourceBounds `json:"l2_gas" validate:"required"`
}

// Transaction is the wire form of every transaction type. Which fields are set depends on the
// type and the version.
//
//nolint:lll
type Transaction struct {
	Hash                  *felt.Felt            `json:"transaction_hash,omitempty"`
	Type                  vm.TransactionType    `json:"type" validate:"required"`
	Version               *felt.Felt            `json:"version,omitempty" validate:"required"`
	Nonce                 *felt.Felt            `json:"nonce,omitempty" validate:"required_unless=Version 0x0"`
	MaxFee                *felt.Felt            `json:"max_fee,omitempty" validate:"required_if=Version 0x0,required_if=Version 0x1,required_if=Version 0x2"`
	ContractAddress       *felt.Felt            `json:"contract_address,omitempty"`
	ContractAddressSalt   *felt.Felt            `json:"contract_address_salt,omitempty" validate:"required_if=Type DEPLOY,required_if=Type DEPLOY_ACCOUNT"`
	ClassHash             *felt.Felt            `json:"class_hash,omitempty" validate:"required_if=Type DEPLOY,required_if=Type DEPLOY_ACCOUNT"`
	ConstructorCallData   *[]*felt.Felt         `json:"constructor_calldata,omitempty" validate:"required_if=Type DEPLOY,required_if=Type DEPLOY_ACCOUNT"`
	SenderAddress         *felt.Felt            `json:"sender_address,omitempty" validate:"required_if=Type DECLARE,required_if=Type INVOKE Version 0x1,required_if=Type INVOKE Version 0x3"`
	Signature             *[]*felt.Felt         `json:"signature,omitempty" validate:"required"`
	CallData              *[]*felt.Felt         `json:"calldata,omitempty" validate:"required_if=Type INVOKE"`
	EntryPointSelector    *felt.Felt            `json:"entry_point_selector,omitempty" validate:"required_if=Type INVOKE Version 0x0"`
	CompiledClassHash     *felt.Felt            `json:"compiled_class_hash,omitempty" validate:"required_if=Type DECLARE Version 0x2"`
	ResourceBounds        *ResourceBoundsMap    `json:"resource_bounds,omitempty" validate:"required_if=Version 0x3"`
	Tip                   *felt.Felt            `json:"tip,omitempty" validate:"required_if=Version 0x3"`
	PaymasterData         *[]*felt.Felt         `json:"paymaster_data,omitempty" validate:"required_if=Version 0x3"`
	AccountDeploymentData *[]*felt.Felt         `json:"account_deployment_data,omitempty" validate:"required_if=Type INVOKE Version 0x3,required_if=Type DECLARE Version 0x3"`
	NonceDAMode           *DataAvailabilityMode `json:"nonce_data_availability_mode,omitempty" validate:"required_if=Version 0x3"`
	FeeDAMode             *DataAvailabilityMode `json:"fee_data_availability_mode,omitempty" validate:"required_if=Version 0x3"`
}

type TransactionStatus struct {
	Finality      TxnStatus          `json:"finality_status"`
	Execution     TxnExecutionStatus `json:"execution_status,omitempty"`
	FailureReason string             `json:"failure_reason,omitempty"`
}

type MsgToL1 struct {
	From    *felt.Felt   `json:"from_address,omitempty"`
	To      *felt.Felt   `json:"to_address"`
	Payload []*felt.Felt `json:"payload"`
}

type Event struct {
	From *felt.Felt   `json:"from_address,omitempty"`
	Keys []*felt.Felt `json:"keys"`
	Data []*felt.Felt `json:"data"`
}

type TransactionReceipt struct {
	Type               vm.TransactionType     `json:"type"`
	Hash               *felt.Felt             `json:"transaction_hash"`
	ActualFee          *FeePayment            `json:"actual_fee"`
	ExecutionStatus    TxnExecutionStatus     `json:"execution_status"`
	FinalityStatus     TxnFinalityStatus      `json:"finality_status"`
	BlockHash          *felt.Felt             `json:"block_hash,omitempty"`
	BlockNumber        *uint64                `json:"block_number,omitempty"`
	MessagesSent       []*MsgToL1             `json:"messages_sent"`
	Events             []*Event               `json:"events"`
	ContractAddress    *felt.Felt             `json:"contract_address,omitempty"`
	RevertReason       string                 `json:"revert_reason,omitempty"`
	ExecutionResources *vm.ExecutionResources `json:"execution_resources,omitempty"`
	MessageHash        string                 `json:"message_hash,omitempty"`
}

type FeePayment struct {
	Amount *felt.Felt `json:"amount"`
	Unit   FeeUnit    `json:"unit"`
}

type AddTxResponse struct {
	TransactionHash *felt.Felt `json:"transaction_hash"`
	ContractAddress *felt.Felt `json:"contract_address,omitempty"`
	ClassHash       *felt.Felt `json:"class_hash,omitempty"`
}

type BroadcastedTransaction struct {
	Transaction
	ContractClass json.RawMessage `json:"contract_class,omitempty" validate:"required_if=Transaction.Type DECLARE"`
}

var errUnsupportedTxType = errors.New("unsupported transaction type")

// coreTransaction converts a broadcasted transaction, decoding its class and computing its hash
// on the chain.
func (h *Handler) coreTransaction(broadcasted *BroadcastedTransaction) (core.BroadcastedTransaction, *jsonrpc.Error) {
	tx := &broadcasted.Transaction
	version := (*core.TransactionVersion)(tx.Version)
	if version == nil {
		version = core.NewTransactionVersion(0)
	}

	var supported bool
	switch tx.Type {
	case vm.TxnInvoke:
		supported = version.Is(0) || version.Is(1) || version.Is(3)
	case vm.TxnDeclare:
		supported = version.Is(0) || version.Is(1) || version.Is(2) || version.Is(3)
	case vm.TxnDeployAccount:
		supported = version.Is(1) || version.Is(3)
	default:
		return core.BroadcastedTransaction{}, jsonrpc.Err(jsonrpc.InvalidParams, errUnsupportedTxType.Error())
	}
	if !supported {
		return core.BroadcastedTransaction{}, ErrUnsupportedTxVersion
	}

	var (
		resourceBounds map[core.Resource]core.ResourceBounds
		tip            uint64
		nonceDAMode    core.DataAvailabilityMode
		feeDAMode      core.DataAvailabilityMode
	)
	if version.Is(3) {
		var err error
		if resourceBounds, err = adaptToCoreResourceBounds(tx.ResourceBounds); err != nil {
			return core.BroadcastedTransaction{}, jsonrpc.Err(jsonrpc.InvalidParams, err.Error())
		}
		var ok bool
		if tip, ok = utils.FeltToUint64(utils.FeltOrZero(tx.Tip)); !ok {
			return core.BroadcastedTransaction{}, jsonrpc.Err(jsonrpc.InvalidParams, "tip does not fit in 64 bits")
		}
		if tx.NonceDAMode != nil {
			nonceDAMode = core.DataAvailabilityMode(*tx.NonceDAMode)
		}
		if tx.FeeDAMode != nil {
			feeDAMode = core.DataAvailabilityMode(*tx.FeeDAMode)
		}
	}

	var result core.BroadcastedTransaction
	switch tx.Type {
	case vm.TxnInvoke:
		result.Transaction = &core.InvokeTransaction{
			CallData:              deref(tx.CallData),
			TransactionSignature:  deref(tx.Signature),
			MaxFee:                tx.MaxFee,
			ContractAddress:       tx.ContractAddress,
			Version:               version,
			EntryPointSelector:    tx.EntryPointSelector,
			Nonce:                 tx.Nonce,
			SenderAddress:         tx.SenderAddress,
			ResourceBounds:        resourceBounds,
			Tip:                   tip,
			PaymasterData:         deref(tx.PaymasterData),
			AccountDeploymentData: deref(tx.AccountDeploymentData),
			NonceDAMode:           nonceDAMode,
			FeeDAMode:             feeDAMode,
		}
	case vm.TxnDeclare:
		if len(broadcasted.ContractClass) == 0 {
			return result, ErrInvalidContractClass
		}
		class, err := decodeClass(broadcasted.ContractClass)
		if err != nil {
			return result, ErrInvalidContractClass.CloneWithData(err.Error())
		}
		classHash, err := class.Hash()
		if err != nil {
			return result, ErrInvalidContractClass.CloneWithData(err.Error())
		}
		result.DeclaredClass = class
		result.Transaction = &core.DeclareTransaction{
			ClassHash:             classHash,
			SenderAddress:         tx.SenderAddress,
			MaxFee:                tx.MaxFee,
			TransactionSignature:  deref(tx.Signature),
			Nonce:                 tx.Nonce,
			Version:               version,
			CompiledClassHash:     tx.CompiledClassHash,
			ResourceBounds:        resourceBounds,
			Tip:                   tip,
			PaymasterData:         deref(tx.PaymasterData),
			AccountDeploymentData: deref(tx.AccountDeploymentData),
			NonceDAMode:           nonceDAMode,
			FeeDAMode:             feeDAMode,
		}
	case vm.TxnDeployAccount:
		calldata := deref(tx.ConstructorCallData)
		result.Transaction = &core.DeployAccountTransaction{
			DeployTransaction: core.DeployTransaction{
				ContractAddressSalt: tx.ContractAddressSalt,
				ContractAddress:     core.ContractAddress(new(felt.Felt), tx.ClassHash, tx.ContractAddressSalt, calldata),
				ClassHash:           tx.ClassHash,
				ConstructorCallData: calldata,
				Version:             version,
			},
			MaxFee:               tx.MaxFee,
			TransactionSignature: deref(tx.Signature),
			Nonce:                tx.Nonce,
			ResourceBounds:       resourceBounds,
			Tip:                  tip,
			PaymasterData:        deref(tx.PaymasterData),
			NonceDAMode:          nonceDAMode,
			FeeDAMode:            feeDAMode,
		}
	}

	hash, err := core.TransactionHash(result.Transaction, h.chain.ChainID().Felt())
	if err != nil {
		return result, jsonrpc.Err(jsonrpc.InvalidParams, err.Error())
	}
	switch t := result.Transaction.(type) {
	case *core.InvokeTransaction:
		t.TransactionHash = hash
	case *core.DeclareTransaction:
		t.TransactionHash = hash
	case *core.DeployAccountTransaction:
		t.TransactionHash = hash
	}
	return result, nil
}

func deref(s *[]*felt.Felt) []*felt.Felt {
	if s == nil {
		return []*felt.Felt{}
	}
	return *s
}

func adaptToCoreResourceBounds(rb *ResourceBoundsMap) (map[core.Resource]core.ResourceBounds, error) {
	if rb == nil {
		return nil, errors.New("resource bounds are required for v3 transactions")
	}
	bounds := make(map[core.Resource]core.ResourceBounds, 2)
	for resource, b := range map[core.Resource]*ResourceBounds{core.ResourceL1Gas: rb.L1Gas, core.ResourceL2Gas: rb.L2Gas} {
		if b == nil {
			bounds[resource] = core.ResourceBounds{MaxPricePerUnit: new(felt.Felt)}
			continue
		}
		amount, ok := utils.FeltToUint64(utils.FeltOrZero(b.MaxAmount))
		if !ok {
			return nil, fmt.Errorf("max amount of %s does not fit in 64 bits", resource)
		}
		bounds[resource] = core.ResourceBounds{MaxAmount: amount, MaxPricePerUnit: utils.FeltOrZero(b.MaxPricePerUnit)}
	}
	return bounds, nil
}

func adaptResourceBounds(rb map[core.Resource]core.ResourceBounds) *ResourceBoundsMap {
	bounds := func(r core.Resource) *ResourceBounds {
		b := rb[r]
		return &ResourceBounds{
			MaxAmount:       new(felt.Felt).SetUint64(b.MaxAmount),
			MaxPricePerUnit: utils.FeltOrZero(b.MaxPricePerUnit),
		}
	}
	return &ResourceBoundsMap{L1Gas: bounds(core.ResourceL1Gas), L2Gas: bounds(core.ResourceL2Gas)}
}

func AdaptTransaction(t core.Transaction) *Transaction {
	var txn *Transaction
	switch v := t.(type) {
	case *core.DeployTransaction:
		txn = &Transaction{
			Type:                vm.TxnDeploy,
			Hash:                v.Hash(),
			ClassHash:           v.ClassHash,
			Version:             v.Version.AsFelt(),
			ContractAddressSalt: v.ContractAddressSalt,
			ConstructorCallData: &v.ConstructorCallData,
		}
	case *core.InvokeTransaction:
		txn = &Transaction{
			Type:               vm.TxnInvoke,
			Hash:               v.Hash(),
			MaxFee:             v.MaxFee,
			Version:            v.Version.AsFelt(),
			Signature:          utils.HeapPtr(v.Signature()),
			Nonce:              v.Nonce,
			CallData:           &v.CallData,
			ContractAddress:    v.ContractAddress,
			SenderAddress:      v.SenderAddress,
			EntryPointSelector: v.EntryPointSelector,
		}
		if v.Version.Is(3) {
			txn.MaxFee = nil
			txn.ResourceBounds = adaptResourceBounds(v.ResourceBounds)
			txn.Tip = new(felt.Felt).SetUint64(v.Tip)
			txn.PaymasterData = &v.PaymasterData
			txn.AccountDeploymentData = &v.AccountDeploymentData
			txn.NonceDAMode = utils.HeapPtr(DataAvailabilityMode(v.NonceDAMode))
			txn.FeeDAMode = utils.HeapPtr(DataAvailabilityMode(v.FeeDAMode))
		}
	case *core.DeclareTransaction:
		txn = &Transaction{
			Hash:              v.Hash(),
			Type:              vm.TxnDeclare,
			MaxFee:            v.MaxFee,
			Version:           v.Version.AsFelt(),
			Signature:         utils.HeapPtr(v.Signature()),
			Nonce:             v.Nonce,
			ClassHash:         v.ClassHash,
			SenderAddress:     v.SenderAddress,
			CompiledClassHash: v.CompiledClassHash,
		}
		if v.Version.Is(3) {
			txn.MaxFee = nil
			txn.ResourceBounds = adaptResourceBounds(v.ResourceBounds)
			txn.Tip = new(felt.Felt).SetUint64(v.Tip)
			txn.PaymasterData = &v.PaymasterData
			txn.AccountDeploymentData = &v.AccountDeploymentData
			txn.NonceDAMode = utils.HeapPtr(DataAvailabilityMode(v.NonceDAMode))
			txn.FeeDAMode = utils.HeapPtr(DataAvailabilityMode(v.FeeDAMode))
		}
	case *core.DeployAccountTransaction:
		txn = &Transaction{
			Hash:                v.Hash(),
			MaxFee:              v.MaxFee,
			Version:             v.Version.AsFelt(),
			Signature:           utils.HeapPtr(v.Signature()),
			Nonce:               v.Nonce,
			Type:                vm.TxnDeployAccount,
			ContractAddressSalt: v.ContractAddressSalt,
			ConstructorCallData: &v.ConstructorCallData,
			ClassHash:           v.ClassHash,
		}
		if v.Version.Is(3) {
			txn.MaxFee = nil
			txn.ResourceBounds = adaptResourceBounds(v.ResourceBounds)
			txn.Tip = new(felt.Felt).SetUint64(v.Tip)
			txn.PaymasterData = &v.PaymasterData
			txn.NonceDAMode = utils.HeapPtr(DataAvailabilityMode(v.NonceDAMode))
			txn.FeeDAMode = utils.HeapPtr(DataAvailabilityMode(v.FeeDAMode))
		}
	case *core.L1HandlerTransaction:
		txn = &Transaction{
			Type:               vm.TxnL1Handler,
			Hash:               v.Hash(),
			Version:            v.Version.AsFelt(),
			Nonce:              utils.FeltOrZero(v.Nonce),
			ContractAddress:    v.ContractAddress,
			EntryPointSelector: v.EntryPointSelector,
			CallData:           &v.CallData,
		}
	default:
		panic("not a transaction")
	}

	if txn.Version.IsZero() && txn.Type != vm.TxnL1Handler {
		txn.Nonce = nil
	}
	return txn
}

// AdaptReceipt converts a receipt. A nil blockHash marks a pending receipt, which carries
// neither the hash nor the number of its block.
func AdaptReceipt(receipt *core.TransactionReceipt, txn core.Transaction,
	finalityStatus TxnFinalityStatus, blockHash *felt.Felt, blockNumber uint64,
) *TransactionReceipt {
	messages := make([]*MsgToL1, len(receipt.L2ToL1Message))
	for idx, msg := range receipt.L2ToL1Message {
		messages[idx] = &MsgToL1{
			To:      msg.To,
			Payload: msg.Payload,
			From:    msg.From,
		}
	}

	events := make([]*Event, len(receipt.Events))
	for idx, event := range receipt.Events {
		events[idx] = &Event{
			From: event.From,
			Keys: event.Keys,
			Data: event.Data,
		}
	}

	var messageHash string
	contractAddress := receipt.ContractAddress
	switch v := txn.(type) {
	case *core.DeployTransaction:
		contractAddress = v.ContractAddress
	case *core.DeployAccountTransaction:
		contractAddress = v.ContractAddress
	case *core.L1HandlerTransaction:
		messageHash = "0x" + hex.EncodeToString(v.MessageHash.Bytes())
	}

	var receiptBlockNumber *uint64
	if blockHash != nil {
		receiptBlockNumber = &blockNumber
	}

	es := TxnSuccess
	if receipt.Reverted {
		es = TxnFailure
	}

	return &TransactionReceipt{
		FinalityStatus:  finalityStatus,
		ExecutionStatus: es,
		Type:            vm.TransactionTypeOf(txn),
		Hash:            txn.Hash(),
		ActualFee: &FeePayment{
			Amount: utils.FeltOrZero(receipt.Fee),
			Unit:   adaptFeeUnit(receipt.FeeUnit),
		},
		BlockHash:          blockHash,
		BlockNumber:        receiptBlockNumber,
		MessagesSent:       messages,
		Events:             events,
		ContractAddress:    contractAddress,
		RevertReason:       receipt.RevertReason,
		ExecutionResources: adaptExecutionResources(receipt.ExecutionResources),
		MessageHash:        messageHash,
	}
}

func adaptExecutionResources(resources *core.ExecutionResources) *vm.ExecutionResources {
	if resources == nil {
		return &vm.ExecutionResources{}
	}
	res := &vm.ExecutionResources{
		ComputationResources: vm.ComputationResources{
			Steps:        resources.Steps,
			MemoryHoles:  resources.MemoryHoles,
			Pedersen:     resources.BuiltinInstanceCounter.Pedersen,
			RangeCheck:   resources.BuiltinInstanceCounter.RangeCheck,
			Bitwise:      resources.BuiltinInstanceCounter.Bitwise,
			Ecdsa:        resources.BuiltinInstanceCounter.Ecsda,
			EcOp:         resources.BuiltinInstanceCounter.EcOp,
			Keccak:       resources.BuiltinInstanceCounter.Keccak,
			Poseidon:     resources.BuiltinInstanceCounter.Poseidon,
			SegmentArena: resources.BuiltinInstanceCounter.SegmentArena,
		},
		DataAvailability: &vm.DataAvailability{},
	}
	if da := resources.DataAvailability; da != nil {
		res.DataAvailability.L1Gas = da.L1Gas
		res.DataAvailability.L1DataGas = da.L1DataGas
	}
	return res
}

/****************************************************
		Transaction Handlers
*****************************************************/

func (h *Handler) TransactionByHash(hash felt.Felt) (*Transaction, *jsonrpc.Error) {
	txn, err := h.chain.TransactionByHash(&hash)
	if err == nil {
		return AdaptTransaction(txn), nil
	}
	if !errors.Is(err, blockchain.ErrTransactionNotFound) {
		return nil, h.adaptError(err)
	}

	pending, err := h.producer.Pending()
	if err != nil {
		return nil, h.adaptError(err)
	}
	for _, txn := range pending.Block.Transactions {
		if txn.Hash().Equal(&hash) {
			return AdaptTransaction(txn), nil
		}
	}
	return nil, ErrTxnHashNotFound
}

func (h *Handler) TransactionByBlockIDAndIndex(id BlockID, txIndex int) (*Transaction, *jsonrpc.Error) {
	if txIndex < 0 {
		return nil, ErrInvalidTxIndex
	}

	block, rpcErr := h.blockByID(&id)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if txIndex >= len(block.Transactions) {
		return nil, ErrInvalidTxIndex
	}
	return AdaptTransaction(block.Transactions[txIndex]), nil
}

func (h *Handler) TransactionReceiptByHash(hash felt.Felt) (*TransactionReceipt, *jsonrpc.Error) {
	receipt, blockHash, blockNumber, err := h.chain.Receipt(&hash)
	if err == nil {
		txn, err := h.chain.TransactionByHash(&hash)
		if err != nil {
			return nil, h.adaptError(err)
		}
		status, err := h.chain.BlockStatus(blockNumber)
		if err != nil {
			return nil, h.adaptError(err)
		}
		finality := TxnAcceptedOnL2
		if status == blockchain.StatusAcceptedOnL1 {
			finality = TxnAcceptedOnL1
		}
		return AdaptReceipt(receipt, txn, finality, blockHash, blockNumber), nil
	}
	if !errors.Is(err, blockchain.ErrTransactionNotFound) {
		return nil, h.adaptError(err)
	}

	pending, err := h.producer.Pending()
	if err != nil {
		return nil, h.adaptError(err)
	}
	for i, txn := range pending.Block.Transactions {
		if txn.Hash().Equal(&hash) {
			return AdaptReceipt(pending.Block.Receipts[i], txn, TxnAcceptedOnL2, nil, 0), nil
		}
	}
	return nil, ErrTxnHashNotFound
}

// TransactionStatus looks for the transaction in the chain, the pending block and the pool, in
// that order.
func (h *Handler) TransactionStatus(hash felt.Felt) (*TransactionStatus, *jsonrpc.Error) {
	receipt, rpcErr := h.TransactionReceiptByHash(hash)
	switch rpcErr {
	case nil:
		status := TxnStatusAcceptedOnL2
		if receipt.FinalityStatus == TxnAcceptedOnL1 {
			status = TxnStatusAcceptedOnL1
		}
		return &TransactionStatus{
			Finality:      status,
			Execution:     receipt.ExecutionStatus,
			FailureReason: receipt.RevertReason,
		}, nil
	case ErrTxnHashNotFound:
	default:
		return nil, rpcErr
	}

	if h.pool.Contains(&hash) {
		return &TransactionStatus{Finality: TxnStatusReceived}, nil
	}
	if reason := h.pool.Rejected(&hash); reason != nil {
		return &TransactionStatus{Finality: TxnStatusRejected, FailureReason: reason.Error()}, nil
	}
	return nil, ErrTxnHashNotFound
}

func (h *Handler) AddInvokeTransaction(tx BroadcastedTransaction) (*AddTxResponse, *jsonrpc.Error) {
	return h.addTransaction(&tx, vm.TxnInvoke)
}

func (h *Handler) AddDeclareTransaction(tx BroadcastedTransaction) (*AddTxResponse, *jsonrpc.Error) {
	return h.addTransaction(&tx, vm.TxnDeclare)
}

func (h *Handler) AddDeployAccountTransaction(tx BroadcastedTransaction) (*AddTxResponse, *jsonrpc.Error) {
	return h.addTransaction(&tx, vm.TxnDeployAccount)
}

func (h *Handler) addTransaction(tx *BroadcastedTransaction, want vm.TransactionType) (*AddTxResponse, *jsonrpc.Error) {
	if tx.Type != want {
		return nil, jsonrpc.Err(jsonrpc.InvalidParams, fmt.Sprintf("expected a %s transaction, got %s", want, tx.Type))
	}
	if (*core.TransactionVersion)(tx.Version).HasQueryBit() {
		return nil, ErrUnsupportedTxVersion
	}

	broadcasted, rpcErr := h.coreTransaction(tx)
	if rpcErr != nil {
		return nil, rpcErr
	}
	hash, err := h.pool.Add(broadcasted)
	if err != nil {
		return nil, h.adaptAddError(err)
	}

	res := &AddTxResponse{TransactionHash: hash}
	switch t := broadcasted.Transaction.(type) {
	case *core.DeployAccountTransaction:
		res.ContractAddress = t.ContractAddress
	case *core.DeclareTransaction:
		res.ClassHash = t.ClassHash
	}
	return res, nil
}

func (h *Handler) adaptAddError(err error) *jsonrpc.Error {
	if errors.Is(err, mempool.ErrPoolFull) {
		return ErrFailedToReceiveTxn
	}
	rpcErr, ok := validationError(err)
	if !ok {
		return h.adaptError(err)
	}
	if rpcErr == ErrValidationFailure {
		return rpcErr.CloneWithData(err.Error())
	}
	return rpcErr
}
