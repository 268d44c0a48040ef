package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/utils"
	"github.com/ethereum/go-ethereum/common"
)

type Resource uint32

const (
	ResourceL1Gas Resource = iota + 1
	ResourceL2Gas
)

func (r Resource) String() string {
	switch r {
	case ResourceL1Gas:
		return "L1_GAS"
	case ResourceL2Gas:
		return "L2_GAS"
	default:
		return ""
	}
}

type ResourceBounds struct {
	MaxAmount       uint64
	MaxPricePerUnit *felt.Felt
}

// DataAvailabilityMode selects where the data of a transaction is published.
type DataAvailabilityMode uint32

const (
	DAModeL1 DataAvailabilityMode = iota
	DAModeL2
)

// TransactionVersion is a felt whose 2^128 bit marks a query-only (simulation) transaction.
type TransactionVersion felt.Felt

var queryBit = new(felt.Felt).SetBytes(append([]byte{1}, make([]byte, 16)...))

func NewTransactionVersion(v uint64) *TransactionVersion {
	return (*TransactionVersion)(new(felt.Felt).SetUint64(v))
}

// Is checks the version ignoring the query bit.
func (v *TransactionVersion) Is(u uint64) bool {
	if v == nil {
		return u == 0
	}
	f := v.WithoutQueryBit().AsFelt()
	return f.Equal(new(felt.Felt).SetUint64(u))
}

func (v *TransactionVersion) HasQueryBit() bool {
	if v == nil {
		return false
	}
	b := v.AsFelt().Bytes()
	return b[15]&1 == 1
}

func (v *TransactionVersion) WithoutQueryBit() *TransactionVersion {
	if !v.HasQueryBit() {
		return v
	}
	f := new(felt.Felt).Sub(v.AsFelt(), queryBit)
	return (*TransactionVersion)(f)
}

func (v *TransactionVersion) AsFelt() *felt.Felt {
	if v == nil {
		return new(felt.Felt)
	}
	return (*felt.Felt)(v)
}

func (v *TransactionVersion) String() string {
	return v.AsFelt().String()
}

func (v *TransactionVersion) MarshalCBOR() ([]byte, error) {
	return v.AsFelt().MarshalCBOR()
}

func (v *TransactionVersion) UnmarshalCBOR(data []byte) error {
	return (*felt.Felt)(v).UnmarshalCBOR(data)
}

type Transaction interface {
	Hash() *felt.Felt
	Signature() []*felt.Felt
	TxVersion() *TransactionVersion
}

var (
	_ Transaction = (*DeployTransaction)(nil)
	_ Transaction = (*DeployAccountTransaction)(nil)
	_ Transaction = (*DeclareTransaction)(nil)
	_ Transaction = (*InvokeTransaction)(nil)
	_ Transaction = (*L1HandlerTransaction)(nil)
)

// DeployTransaction only appears in the genesis block, where it places the system contracts.
type DeployTransaction struct {
	TransactionHash *felt.Felt
	// A random number used to distinguish between different instances of the contract.
	ContractAddressSalt *felt.Felt
	// The address of the contract.
	ContractAddress *felt.Felt
	// The hash of the class which defines the contract’s functionality.
	ClassHash *felt.Felt
	// The arguments passed to the constructor during deployment.
	ConstructorCallData []*felt.Felt
	Version             *TransactionVersion
}

func (d *DeployTransaction) Hash() *felt.Felt {
	return d.TransactionHash
}

func (d *DeployTransaction) Signature() []*felt.Felt {
	return make([]*felt.Felt, 0)
}

func (d *DeployTransaction) TxVersion() *TransactionVersion {
	return d.Version
}

type DeployAccountTransaction struct {
	DeployTransaction
	// The maximum fee that the sender is willing to pay for the transaction.
	MaxFee *felt.Felt
	// Additional information given by the sender, used to validate the transaction.
	TransactionSignature []*felt.Felt
	// The transaction nonce.
	Nonce *felt.Felt

	// Version 3 fields
	ResourceBounds map[Resource]ResourceBounds
	Tip            uint64
	PaymasterData  []*felt.Felt
	NonceDAMode    DataAvailabilityMode
	FeeDAMode      DataAvailabilityMode
}

func (d *DeployAccountTransaction) Hash() *felt.Felt {
	return d.TransactionHash
}

func (d *DeployAccountTransaction) Signature() []*felt.Felt {
	return d.TransactionSignature
}

type InvokeTransaction struct {
	TransactionHash *felt.Felt
	// The arguments that are passed to the validated and execute functions.
	CallData []*felt.Felt
	// Additional information given by the sender, used to validate the transaction.
	TransactionSignature []*felt.Felt
	// The maximum fee that the sender is willing to pay for the transaction
	MaxFee *felt.Felt
	// The address of the contract invoked by this transaction (version 0 only).
	ContractAddress *felt.Felt
	Version         *TransactionVersion
	// The encoding of the selector for the function invoked (version 0 only).
	EntryPointSelector *felt.Felt
	// The transaction nonce (version 1 and above).
	Nonce *felt.Felt
	// The address of the sender of this transaction (version 1 and above).
	SenderAddress *felt.Felt

	// Version 3 fields
	ResourceBounds        map[Resource]ResourceBounds
	Tip                   uint64
	PaymasterData         []*felt.Felt
	AccountDeploymentData []*felt.Felt
	NonceDAMode           DataAvailabilityMode
	FeeDAMode             DataAvailabilityMode
}

func (i *InvokeTransaction) Hash() *felt.Felt {
	return i.TransactionHash
}

func (i *InvokeTransaction) Signature() []*felt.Felt {
	return i.TransactionSignature
}

func (i *InvokeTransaction) TxVersion() *TransactionVersion {
	return i.Version
}

type DeclareTransaction struct {
	TransactionHash *felt.Felt
	// The class hash
	ClassHash *felt.Felt
	// The address of the account initiating the transaction.
	SenderAddress *felt.Felt
	// The maximum fee that the sender is willing to pay for the transaction.
	MaxFee *felt.Felt
	// Additional information given by the sender, used to validate the transaction.
	TransactionSignature []*felt.Felt
	// The transaction nonce.
	Nonce   *felt.Felt
	Version *TransactionVersion
	// The hash of the compiled class (version 2 and above).
	CompiledClassHash *felt.Felt

	// Version 3 fields
	ResourceBounds        map[Resource]ResourceBounds
	Tip                   uint64
	PaymasterData         []*felt.Felt
	AccountDeploymentData []*felt.Felt
	NonceDAMode           DataAvailabilityMode
	FeeDAMode             DataAvailabilityMode
}

func (d *DeclareTransaction) Hash() *felt.Felt {
	return d.TransactionHash
}

func (d *DeclareTransaction) Signature() []*felt.Felt {
	return d.TransactionSignature
}

func (d *DeclareTransaction) TxVersion() *TransactionVersion {
	return d.Version
}

// L1HandlerTransaction is synthesised by the sequencer out of a message sent from the
// settlement chain. It carries no signature.
type L1HandlerTransaction struct {
	TransactionHash *felt.Felt
	// The address of the contract.
	ContractAddress *felt.Felt
	// The encoding of the selector for the function invoked.
	EntryPointSelector *felt.Felt
	// The transaction nonce.
	Nonce *felt.Felt
	// The arguments passed to the l1 handler, starting with the sender on the settlement chain.
	CallData []*felt.Felt
	Version  *TransactionVersion
	// Keccak hash of the message on the settlement chain.
	MessageHash common.Hash
	// The fee paid on the settlement chain, denominated in wei.
	PaidFeeOnL1 *felt.Felt
}

func (l *L1HandlerTransaction) Hash() *felt.Felt {
	return l.TransactionHash
}

func (l *L1HandlerTransaction) Signature() []*felt.Felt {
	return make([]*felt.Felt, 0)
}

func (l *L1HandlerTransaction) TxVersion() *TransactionVersion {
	return l.Version
}

// BroadcastedTransaction is a transaction together with the data needed to execute it that is not
// part of the transaction itself.
type BroadcastedTransaction struct {
	Transaction   Transaction
	DeclaredClass Class
}

var (
	invokeFelt        = new(felt.Felt).SetBytes([]byte("invoke"))
	declareFelt       = new(felt.Felt).SetBytes([]byte("declare"))
	deployFelt        = new(felt.Felt).SetBytes([]byte("deploy"))
	l1HandlerFelt     = new(felt.Felt).SetBytes([]byte("l1_handler"))
	deployAccountFelt = new(felt.Felt).SetBytes([]byte("deploy_account"))

	constructorSelector = crypto.Selector("constructor")

	ErrUnknownTransaction = errors.New("unknown transaction")
)

func errInvalidTransactionVersion(t Transaction, version *TransactionVersion) error {
	return fmt.Errorf("invalid Transaction (type: %v) version: %v", reflect.TypeOf(t), version.AsFelt().Text(felt.Base10))
}

// TransactionHash computes the hash of transaction on the chain identified by chainID.
func TransactionHash(transaction Transaction, chainID *felt.Felt) (*felt.Felt, error) {
	switch t := transaction.(type) {
	case *DeclareTransaction:
		return declareTransactionHash(t, chainID)
	case *InvokeTransaction:
		return invokeTransactionHash(t, chainID)
	case *DeployTransaction:
		return deployTransactionHash(t, chainID), nil
	case *L1HandlerTransaction:
		return l1HandlerTransactionHash(t, chainID)
	case *DeployAccountTransaction:
		return deployAccountTransactionHash(t, chainID)
	default:
		return nil, ErrUnknownTransaction
	}
}

func invokeTransactionHash(i *InvokeTransaction, chainID *felt.Felt) (*felt.Felt, error) {
	switch {
	case i.Version.Is(0):
		return crypto.PedersenArray(
			invokeFelt,
			i.Version.AsFelt(),
			i.ContractAddress,
			i.EntryPointSelector,
			crypto.PedersenArray(i.CallData...),
			utils.FeltOrZero(i.MaxFee),
			chainID,
		), nil
	case i.Version.Is(1):
		return crypto.PedersenArray(
			invokeFelt,
			i.Version.AsFelt(),
			i.SenderAddress,
			new(felt.Felt),
			crypto.PedersenArray(i.CallData...),
			utils.FeltOrZero(i.MaxFee),
			chainID,
			i.Nonce,
		), nil
	case i.Version.Is(3):
		return crypto.PoseidonArray(
			invokeFelt,
			i.Version.AsFelt(),
			i.SenderAddress,
			tipAndResourcesHash(i.Tip, i.ResourceBounds),
			crypto.PoseidonArray(i.PaymasterData...),
			chainID,
			i.Nonce,
			dataAvailabilityMode(i.FeeDAMode, i.NonceDAMode),
			crypto.PoseidonArray(i.AccountDeploymentData...),
			crypto.PoseidonArray(i.CallData...),
		), nil
	default:
		return nil, errInvalidTransactionVersion(i, i.Version)
	}
}

func declareTransactionHash(d *DeclareTransaction, chainID *felt.Felt) (*felt.Felt, error) {
	switch {
	case d.Version.Is(0):
		return crypto.PedersenArray(
			declareFelt,
			d.Version.AsFelt(),
			d.SenderAddress,
			new(felt.Felt),
			crypto.PedersenArray(),
			utils.FeltOrZero(d.MaxFee),
			chainID,
			d.ClassHash,
		), nil
	case d.Version.Is(1):
		return crypto.PedersenArray(
			declareFelt,
			d.Version.AsFelt(),
			d.SenderAddress,
			new(felt.Felt),
			crypto.PedersenArray(d.ClassHash),
			utils.FeltOrZero(d.MaxFee),
			chainID,
			d.Nonce,
		), nil
	case d.Version.Is(2):
		return crypto.PedersenArray(
			declareFelt,
			d.Version.AsFelt(),
			d.SenderAddress,
			new(felt.Felt),
			crypto.PedersenArray(d.ClassHash),
			utils.FeltOrZero(d.MaxFee),
			chainID,
			d.Nonce,
			d.CompiledClassHash,
		), nil
	case d.Version.Is(3):
		return crypto.PoseidonArray(
			declareFelt,
			d.Version.AsFelt(),
			d.SenderAddress,
			tipAndResourcesHash(d.Tip, d.ResourceBounds),
			crypto.PoseidonArray(d.PaymasterData...),
			chainID,
			d.Nonce,
			dataAvailabilityMode(d.FeeDAMode, d.NonceDAMode),
			crypto.PoseidonArray(d.AccountDeploymentData...),
			d.ClassHash,
			d.CompiledClassHash,
		), nil
	default:
		return nil, errInvalidTransactionVersion(d, d.Version)
	}
}

func deployTransactionHash(d *DeployTransaction, chainID *felt.Felt) *felt.Felt {
	return crypto.PedersenArray(
		deployFelt,
		d.Version.AsFelt(),
		d.ContractAddress,
		constructorSelector,
		crypto.PedersenArray(d.ConstructorCallData...),
		new(felt.Felt),
		chainID,
	)
}

func l1HandlerTransactionHash(l *L1HandlerTransaction, chainID *felt.Felt) (*felt.Felt, error) {
	if !l.Version.Is(0) {
		return nil, errInvalidTransactionVersion(l, l.Version)
	}
	return crypto.PedersenArray(
		l1HandlerFelt,
		l.Version.AsFelt(),
		l.ContractAddress,
		l.EntryPointSelector,
		crypto.PedersenArray(l.CallData...),
		new(felt.Felt),
		chainID,
		utils.FeltOrZero(l.Nonce),
	), nil
}

func deployAccountTransactionHash(d *DeployAccountTransaction, chainID *felt.Felt) (*felt.Felt, error) {
	switch {
	case d.Version.Is(1):
		callData := []*felt.Felt{d.ClassHash, d.ContractAddressSalt}
		callData = append(callData, d.ConstructorCallData...)
		return crypto.PedersenArray(
			deployAccountFelt,
			d.Version.AsFelt(),
			d.ContractAddress,
			new(felt.Felt),
			crypto.PedersenArray(callData...),
			utils.FeltOrZero(d.MaxFee),
			chainID,
			d.Nonce,
		), nil
	case d.Version.Is(3):
		return crypto.PoseidonArray(
			deployAccountFelt,
			d.Version.AsFelt(),
			d.ContractAddress,
			tipAndResourcesHash(d.Tip, d.ResourceBounds),
			crypto.PoseidonArray(d.PaymasterData...),
			chainID,
			d.Nonce,
			dataAvailabilityMode(d.FeeDAMode, d.NonceDAMode),
			crypto.PoseidonArray(d.ConstructorCallData...),
			d.ClassHash,
			d.ContractAddressSalt,
		), nil
	default:
		return nil, errInvalidTransactionVersion(d, d.Version)
	}
}

func tipAndResourcesHash(tip uint64, bounds map[Resource]ResourceBounds) *felt.Felt {
	return crypto.PoseidonArray(
		new(felt.Felt).SetUint64(tip),
		resourceBoundsFelt(ResourceL1Gas, bounds[ResourceL1Gas]),
		resourceBoundsFelt(ResourceL2Gas, bounds[ResourceL2Gas]),
	)
}

// resourceBoundsFelt packs name (60 bits) | max amount (64 bits) | max price per unit (128 bits).
func resourceBoundsFelt(r Resource, b ResourceBounds) *felt.Felt {
	var packed [32]byte
	name := []byte(r.String())
	copy(packed[8-len(name):8], name)
	binary.BigEndian.PutUint64(packed[8:16], b.MaxAmount)
	price := utils.FeltOrZero(b.MaxPricePerUnit).Bytes()
	copy(packed[16:], price[16:])
	return new(felt.Felt).SetBytes(packed[:])
}

func dataAvailabilityMode(feeDAMode, nonceDAMode DataAvailabilityMode) *felt.Felt {
	return new(felt.Felt).SetUint64(uint64(nonceDAMode)<<32 | uint64(feeDAMode))
}

// SenderAddress is the account a transaction is executed on behalf of. L1 handler and deploy
// transactions have none.
func SenderAddress(t Transaction) *felt.Felt {
	switch tx := t.(type) {
	case *InvokeTransaction:
		if tx.Version.Is(0) {
			return tx.ContractAddress
		}
		return tx.SenderAddress
	case *DeclareTransaction:
		return tx.SenderAddress
	case *DeployAccountTransaction:
		return tx.ContractAddress
	default:
		return nil
	}
}

// TransactionNonce returns the nonce carried by t, nil for transactions without one.
func TransactionNonce(t Transaction) *felt.Felt {
	switch tx := t.(type) {
	case *InvokeTransaction:
		return tx.Nonce
	case *DeclareTransaction:
		return tx.Nonce
	case *DeployAccountTransaction:
		return tx.Nonce
	case *L1HandlerTransaction:
		return tx.Nonce
	default:
		return nil
	}
}
