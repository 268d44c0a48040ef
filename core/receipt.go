package core

import (
	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/utils"
	"github.com/ethereum/go-ethereum/common"
)

type FeeUnit byte

const (
	WEI FeeUnit = iota
	STRK
)

func (u FeeUnit) String() string {
	if u == STRK {
		return "FRI"
	}
	return "WEI"
}

type Event struct {
	Data []*felt.Felt
	From *felt.Felt
	Keys []*felt.Felt
}

type L1ToL2Message struct {
	From     common.Address
	Nonce    *felt.Felt
	Payload  []*felt.Felt
	Selector *felt.Felt
	To       *felt.Felt
}

// L2ToL1Message is a message sent by a contract with send_message_to_l1. To is a felt rather than
// an Ethereum address since appchains settling on Starknet use the full field.
type L2ToL1Message struct {
	From    *felt.Felt
	Payload []*felt.Felt
	To      *felt.Felt
}

type ExecutionResources struct {
	BuiltinInstanceCounter BuiltinInstanceCounter
	MemoryHoles            uint64
	Steps                  uint64
	DataAvailability       *DataAvailability
}

type BuiltinInstanceCounter struct {
	Pedersen     uint64
	RangeCheck   uint64
	Bitwise      uint64
	Output       uint64
	Ecsda        uint64
	EcOp         uint64
	Keccak       uint64
	Poseidon     uint64
	SegmentArena uint64
}

type DataAvailability struct {
	L1Gas     uint64
	L1DataGas uint64
}

type TransactionReceipt struct {
	Fee                *felt.Felt
	FeeUnit            FeeUnit
	Events             []*Event
	ExecutionResources *ExecutionResources
	L1ToL2Message      *L1ToL2Message
	L2ToL1Message      []*L2ToL1Message
	TransactionHash    *felt.Felt
	Reverted           bool
	RevertReason       string
	// Set for deploy and deploy account transactions
	ContractAddress *felt.Felt
}

// receiptHash is the leaf of the receipt commitment trie.
func receiptHash(r *TransactionReceipt) *felt.Felt {
	var revertReasonHash *felt.Felt
	if r.Reverted {
		revertReasonHash = crypto.StarknetKeccak([]byte(r.RevertReason))
	} else {
		revertReasonHash = new(felt.Felt)
	}

	var l1Gas, l1DataGas uint64
	if r.ExecutionResources != nil && r.ExecutionResources.DataAvailability != nil {
		l1Gas = r.ExecutionResources.DataAvailability.L1Gas
		l1DataGas = r.ExecutionResources.DataAvailability.L1DataGas
	}

	return crypto.PoseidonArray(
		r.TransactionHash,
		utils.FeltOrZero(r.Fee),
		messagesSentHash(r.L2ToL1Message),
		revertReasonHash,
		new(felt.Felt), // l2 gas
		new(felt.Felt).SetUint64(l1Gas),
		new(felt.Felt).SetUint64(l1DataGas),
	)
}

func messagesSentHash(messages []*L2ToL1Message) *felt.Felt {
	elems := []*felt.Felt{new(felt.Felt).SetUint64(uint64(len(messages)))}
	for _, m := range messages {
		elems = append(elems, m.From, m.To, new(felt.Felt).SetUint64(uint64(len(m.Payload))))
		elems = append(elems, m.Payload...)
	}
	return crypto.PoseidonArray(elems...)
}
