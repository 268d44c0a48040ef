package core

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/utils"
)

type Header struct {
	// The hash of this block
	Hash *felt.Felt `cbor:"1,keyasint,omitempty"`
	// The hash of this block’s parent
	ParentHash *felt.Felt `cbor:"2,keyasint,omitempty"`
	// The number (height) of this block
	Number uint64 `cbor:"3,keyasint,omitempty"`
	// The state commitment after this block
	GlobalStateRoot *felt.Felt `cbor:"4,keyasint,omitempty"`
	// The Starknet address of the sequencer who created this block
	SequencerAddress *felt.Felt `cbor:"5,keyasint,omitempty"`
	// The amount Transactions and Receipts stored in this block
	TransactionCount uint64 `cbor:"6,keyasint,omitempty"`
	// The amount of events stored in transaction receipts
	EventCount uint64 `cbor:"7,keyasint,omitempty"`
	// The time the sequencer created this block before executing transactions
	Timestamp uint64 `cbor:"8,keyasint,omitempty"`
	// The version of the Starknet protocol used when creating this block
	ProtocolVersion string `cbor:"9,keyasint,omitempty"`
	// Price of a unit of L1 gas
	L1GasPrice *GasPrice `cbor:"10,keyasint,omitempty"`
	// Price of a unit of L1 data gas (blobs)
	L1DataGasPrice *GasPrice `cbor:"11,keyasint,omitempty"`
	L1DAMode       L1DAMode  `cbor:"12,keyasint,omitempty"`
	// The amount of entries in the state diff of this block
	StateDiffLength uint64 `cbor:"13,keyasint,omitempty"`

	TransactionCommitment *felt.Felt `cbor:"14,keyasint,omitempty"`
	EventCommitment       *felt.Felt `cbor:"15,keyasint,omitempty"`
	ReceiptCommitment     *felt.Felt `cbor:"16,keyasint,omitempty"`
	StateDiffCommitment   *felt.Felt `cbor:"17,keyasint,omitempty"`
}

type L1DAMode uint

const (
	Calldata L1DAMode = iota
	Blob
)

func (m L1DAMode) String() string {
	if m == Blob {
		return "BLOB"
	}
	return "CALLDATA"
}

type GasPrice struct {
	PriceInWei *felt.Felt `cbor:"1,keyasint,omitempty"`
	PriceInFri *felt.Felt `cbor:"2,keyasint,omitempty"`
}

// Clone returns a deep copy; nil prices become zero.
func (g *GasPrice) Clone() *GasPrice {
	if g == nil {
		return &GasPrice{PriceInWei: new(felt.Felt), PriceInFri: new(felt.Felt)}
	}
	wei, fri := *utils.FeltOrZero(g.PriceInWei), *utils.FeltOrZero(g.PriceInFri)
	return &GasPrice{PriceInWei: &wei, PriceInFri: &fri}
}

type Block struct {
	*Header
	Transactions []Transaction
	Receipts     []*TransactionReceipt
}

var (
	starknetBlockHash0 = new(felt.Felt).SetBytes([]byte("STARKNET_BLOCK_HASH0"))
	starknetGasPrices0 = new(felt.Felt).SetBytes([]byte("STARKNET_GAS_PRICES0"))

	ErrMissingCommitments = errors.New("header is missing commitments")
)

// BlockHash computes the hash of a sealed header. All commitments must have been filled in.
//
// The layout follows Starknet 0.13.2:
// https://docs.starknet.io/architecture-and-concepts/network-architecture/block-structure/#block_hash
func BlockHash(h *Header) (*felt.Felt, error) {
	if h.TransactionCommitment == nil || h.EventCommitment == nil ||
		h.ReceiptCommitment == nil || h.StateDiffCommitment == nil {
		return nil, ErrMissingCommitments
	}

	if err := CheckProtocolVersion(h.ProtocolVersion); err != nil {
		return nil, err
	}
	version, err := protocolVersionFelt(h.ProtocolVersion)
	if err != nil {
		return nil, err
	}

	return crypto.PoseidonArray(
		starknetBlockHash0,
		new(felt.Felt).SetUint64(h.Number),
		utils.FeltOrZero(h.GlobalStateRoot),
		utils.FeltOrZero(h.SequencerAddress),
		new(felt.Felt).SetUint64(h.Timestamp),
		concatCounts(h.TransactionCount, h.EventCount, h.StateDiffLength, h.L1DAMode),
		h.StateDiffCommitment,
		h.TransactionCommitment,
		h.EventCommitment,
		h.ReceiptCommitment,
		gasPricesHash(h.L1GasPrice, h.L1DataGasPrice),
		version,
		new(felt.Felt),
		utils.FeltOrZero(h.ParentHash),
	), nil
}

// concatCounts packs the block counts into one felt:
// transactions (64 bits) | events (64 bits) | state diff length (64 bits) | da mode (1 bit) | 0 (63 bits)
func concatCounts(txCount, eventCount, stateDiffLength uint64, mode L1DAMode) *felt.Felt {
	var b [32]byte
	binary.BigEndian.PutUint64(b[0:8], txCount)
	binary.BigEndian.PutUint64(b[8:16], eventCount)
	binary.BigEndian.PutUint64(b[16:24], stateDiffLength)
	if mode == Blob {
		b[24] = 0x80
	}
	return new(felt.Felt).SetBytes(b[:])
}

func gasPricesHash(gas, data *GasPrice) *felt.Felt {
	gas, data = gas.Clone(), data.Clone()
	return crypto.PoseidonArray(
		starknetGasPrices0,
		gas.PriceInWei,
		gas.PriceInFri,
		data.PriceInWei,
		data.PriceInFri,
	)
}

func protocolVersionFelt(version string) (*felt.Felt, error) {
	f, err := utils.EncodeShortString(version)
	if err != nil {
		return nil, fmt.Errorf("protocol version %q: %w", version, err)
	}
	return f, nil
}
