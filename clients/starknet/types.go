package starknet

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
)

// BlockID selects a block by tag, number or hash.
type BlockID struct {
	Latest  bool
	Pending bool
	Number  uint64
	Hash    *felt.Felt
}

func LatestBlock() BlockID {
	return BlockID{Latest: true}
}

func PendingBlock() BlockID {
	return BlockID{Pending: true}
}

func BlockByNumber(n uint64) BlockID {
	return BlockID{Number: n}
}

func BlockByHash(h *felt.Felt) BlockID {
	return BlockID{Hash: h}
}

func (id BlockID) MarshalJSON() ([]byte, error) {
	switch {
	case id.Latest:
		return json.Marshal("latest")
	case id.Pending:
		return json.Marshal("pending")
	case id.Hash != nil:
		return json.Marshal(map[string]*felt.Felt{"block_hash": id.Hash})
	default:
		return json.Marshal(map[string]uint64{"block_number": id.Number})
	}
}

func (id *BlockID) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		switch tag {
		case "latest":
			*id = LatestBlock()
		case "pending":
			*id = PendingBlock()
		default:
			return fmt.Errorf("unknown block tag %q", tag)
		}
		return nil
	}

	var obj struct {
		Number *uint64    `json:"block_number"`
		Hash   *felt.Felt `json:"block_hash"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	switch {
	case obj.Hash != nil:
		*id = BlockByHash(obj.Hash)
	case obj.Number != nil:
		*id = BlockByNumber(*obj.Number)
	default:
		return errors.New("block id needs a tag, a number or a hash")
	}
	return nil
}

type resourcePrice struct {
	PriceInFri *felt.Felt `json:"price_in_fri"`
	PriceInWei *felt.Felt `json:"price_in_wei"`
}

func (p *resourcePrice) gasPrice() *core.GasPrice {
	if p == nil {
		return nil
	}
	return &core.GasPrice{PriceInWei: p.PriceInWei, PriceInFri: p.PriceInFri}
}

type blockHeader struct {
	Hash             *felt.Felt     `json:"block_hash"`
	ParentHash       *felt.Felt     `json:"parent_hash"`
	Number           uint64         `json:"block_number"`
	NewRoot          *felt.Felt     `json:"new_root"`
	Timestamp        uint64         `json:"timestamp"`
	SequencerAddress *felt.Felt     `json:"sequencer_address"`
	L1GasPrice       *resourcePrice `json:"l1_gas_price"`
	L1DataGasPrice   *resourcePrice `json:"l1_data_gas_price"`
	L1DAMode         string         `json:"l1_da_mode"`
	StarknetVersion  string         `json:"starknet_version"`
}

func (h *blockHeader) core() *core.Header {
	header := &core.Header{
		Hash:             h.Hash,
		ParentHash:       h.ParentHash,
		Number:           h.Number,
		GlobalStateRoot:  h.NewRoot,
		Timestamp:        h.Timestamp,
		SequencerAddress: h.SequencerAddress,
		L1GasPrice:       h.L1GasPrice.gasPrice(),
		L1DataGasPrice:   h.L1DataGasPrice.gasPrice(),
		ProtocolVersion:  h.StarknetVersion,
	}
	if h.L1DAMode == "BLOB" {
		header.L1DAMode = core.Blob
	}
	return header
}

type entryPoint struct {
	Selector    *felt.Felt `json:"selector"`
	Offset      *felt.Felt `json:"offset,omitempty"`
	FunctionIdx *uint64    `json:"function_idx,omitempty"`
}

type contractClass struct {
	// Sierra
	SierraProgram        []*felt.Felt `json:"sierra_program"`
	ContractClassVersion string       `json:"contract_class_version"`
	// Cairo 0
	Program string `json:"program"`

	EntryPoints struct {
		Constructor []entryPoint `json:"CONSTRUCTOR"`
		External    []entryPoint `json:"EXTERNAL"`
		L1Handler   []entryPoint `json:"L1_HANDLER"`
	} `json:"entry_points_by_type"`
	Abi json.RawMessage `json:"abi"`
}

var errUnknownClassFormat = errors.New("class is neither a sierra nor a cairo 0 class")

func (c *contractClass) core() (core.Class, error) {
	if c.SierraProgram != nil {
		sierra := func(eps []entryPoint) []core.SierraEntryPoint {
			out := make([]core.SierraEntryPoint, 0, len(eps))
			for _, ep := range eps {
				var idx uint64
				if ep.FunctionIdx != nil {
					idx = *ep.FunctionIdx
				}
				out = append(out, core.SierraEntryPoint{Index: idx, Selector: ep.Selector})
			}
			return out
		}
		// The abi of a sierra class is a json encoded string.
		var abi string
		if err := json.Unmarshal(c.Abi, &abi); err != nil && len(c.Abi) > 0 {
			abi = string(c.Abi)
		}

		class := &core.Cairo1Class{
			Abi:             abi,
			Program:         c.SierraProgram,
			SemanticVersion: c.ContractClassVersion,
		}
		class.EntryPoints.Constructor = sierra(c.EntryPoints.Constructor)
		class.EntryPoints.External = sierra(c.EntryPoints.External)
		class.EntryPoints.L1Handler = sierra(c.EntryPoints.L1Handler)
		return class, nil
	}

	if c.Program == "" {
		return nil, errUnknownClassFormat
	}
	deprecated := func(eps []entryPoint) []core.EntryPoint {
		out := make([]core.EntryPoint, 0, len(eps))
		for _, ep := range eps {
			out = append(out, core.EntryPoint{Selector: ep.Selector, Offset: ep.Offset})
		}
		return out
	}
	return &core.Cairo0Class{
		Abi:          c.Abi,
		Externals:    deprecated(c.EntryPoints.External),
		L1Handlers:   deprecated(c.EntryPoints.L1Handler),
		Constructors: deprecated(c.EntryPoints.Constructor),
		Program:      c.Program,
	}, nil
}

// EventFilter is the filter of starknet_getEvents.
type EventFilter struct {
	FromBlock         *BlockID       `json:"from_block,omitempty"`
	ToBlock           *BlockID       `json:"to_block,omitempty"`
	Address           *felt.Felt     `json:"address,omitempty"`
	Keys              [][]*felt.Felt `json:"keys,omitempty"`
	ChunkSize         uint64         `json:"chunk_size"`
	ContinuationToken string         `json:"continuation_token,omitempty"`
}

type EmittedEvent struct {
	From            *felt.Felt   `json:"from_address"`
	Keys            []*felt.Felt `json:"keys"`
	Data            []*felt.Felt `json:"data"`
	BlockHash       *felt.Felt   `json:"block_hash"`
	BlockNumber     *uint64      `json:"block_number"`
	TransactionHash *felt.Felt   `json:"transaction_hash"`
}

type EventsChunk struct {
	Events            []EmittedEvent `json:"events"`
	ContinuationToken string         `json:"continuation_token"`
}

type invokeV1 struct {
	Type          string       `json:"type"`
	SenderAddress *felt.Felt   `json:"sender_address"`
	Calldata      []*felt.Felt `json:"calldata"`
	MaxFee        *felt.Felt   `json:"max_fee"`
	Version       string       `json:"version"`
	Signature     []*felt.Felt `json:"signature"`
	Nonce         *felt.Felt   `json:"nonce"`
}
