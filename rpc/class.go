package rpc

import (
	"encoding/json"
	"errors"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/jsonrpc"
	"github.com/NethermindEth/katana/state"
)

type EntryPoint struct {
	Index    *uint64    `json:"function_idx,omitempty"`
	Offset   *felt.Felt `json:"offset,omitempty"`
	Selector *felt.Felt `json:"selector"`
}

type EntryPoints struct {
	Constructor []EntryPoint `json:"CONSTRUCTOR"`
	External    []EntryPoint `json:"EXTERNAL"`
	L1Handler   []EntryPoint `json:"L1_HANDLER"`
}

// Class is either a Sierra class, with SierraProgram and ContractClassVersion set, or a Cairo 0
// class with Program set.
type Class struct {
	SierraProgram        []*felt.Felt    `json:"sierra_program,omitempty"`
	Program              string          `json:"program,omitempty"`
	ContractClassVersion string          `json:"contract_class_version,omitempty"`
	EntryPoints          EntryPoints     `json:"entry_points_by_type"`
	Abi                  json.RawMessage `json:"abi,omitempty"`
}

var errUnknownClassFormat = errors.New("class is neither a sierra nor a cairo 0 class")

// AdaptClass converts a class to its wire form. The abi of a Sierra class goes out as a string.
func AdaptClass(class core.Class) (*Class, error) {
	switch c := class.(type) {
	case *core.Cairo0Class:
		deprecated := func(eps []core.EntryPoint) []EntryPoint {
			out := make([]EntryPoint, 0, len(eps))
			for _, ep := range eps {
				out = append(out, EntryPoint{Offset: ep.Offset, Selector: ep.Selector})
			}
			return out
		}
		return &Class{
			Program: c.Program,
			EntryPoints: EntryPoints{
				Constructor: deprecated(c.Constructors),
				External:    deprecated(c.Externals),
				L1Handler:   deprecated(c.L1Handlers),
			},
			Abi: c.Abi,
		}, nil
	case *core.Cairo1Class:
		sierra := func(eps []core.SierraEntryPoint) []EntryPoint {
			out := make([]EntryPoint, 0, len(eps))
			for _, ep := range eps {
				out = append(out, EntryPoint{Index: &ep.Index, Selector: ep.Selector})
			}
			return out
		}
		abi, err := json.Marshal(c.Abi)
		if err != nil {
			return nil, err
		}
		return &Class{
			SierraProgram:        c.Program,
			ContractClassVersion: c.SemanticVersion,
			EntryPoints: EntryPoints{
				Constructor: sierra(c.EntryPoints.Constructor),
				External:    sierra(c.EntryPoints.External),
				L1Handler:   sierra(c.EntryPoints.L1Handler),
			},
			Abi: abi,
		}, nil
	default:
		return nil, errUnknownClassFormat
	}
}

// Core converts the wire class back. A Sierra abi may come either as a string or as raw json.
func (c *Class) Core() (core.Class, error) {
	if c.SierraProgram != nil {
		sierra := func(eps []EntryPoint) []core.SierraEntryPoint {
			out := make([]core.SierraEntryPoint, 0, len(eps))
			for _, ep := range eps {
				var idx uint64
				if ep.Index != nil {
					idx = *ep.Index
				}
				out = append(out, core.SierraEntryPoint{Index: idx, Selector: ep.Selector})
			}
			return out
		}
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
	deprecated := func(eps []EntryPoint) []core.EntryPoint {
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

func decodeClass(raw json.RawMessage) (core.Class, error) {
	var class Class
	if err := json.Unmarshal(raw, &class); err != nil {
		return nil, err
	}
	return class.Core()
}

/****************************************************
		Class Handlers
*****************************************************/

func (h *Handler) Class(id BlockID, classHash felt.Felt) (*Class, *jsonrpc.Error) {
	reader, closer, rpcErr := h.stateByBlockID(&id)
	if rpcErr != nil {
		return nil, rpcErr
	}
	defer h.closeState(closer)

	declared, err := reader.Class(&classHash)
	if err != nil {
		return nil, h.adaptError(err)
	}
	return h.adaptDeclaredClass(declared)
}

func (h *Handler) ClassHashAt(id BlockID, address felt.Felt) (*felt.Felt, *jsonrpc.Error) {
	reader, closer, rpcErr := h.stateByBlockID(&id)
	if rpcErr != nil {
		return nil, rpcErr
	}
	defer h.closeState(closer)

	return h.classHashAt(reader, &address)
}

func (h *Handler) ClassAt(id BlockID, address felt.Felt) (*Class, *jsonrpc.Error) {
	reader, closer, rpcErr := h.stateByBlockID(&id)
	if rpcErr != nil {
		return nil, rpcErr
	}
	defer h.closeState(closer)

	classHash, rpcErr := h.classHashAt(reader, &address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	declared, err := reader.Class(classHash)
	if err != nil {
		return nil, h.adaptError(err)
	}
	return h.adaptDeclaredClass(declared)
}

func (h *Handler) classHashAt(reader state.Reader, address *felt.Felt) (*felt.Felt, *jsonrpc.Error) {
	classHash, err := reader.ContractClassHash(address)
	if err != nil {
		return nil, h.adaptError(err)
	}
	if classHash.IsZero() {
		return nil, ErrContractNotFound
	}
	return classHash, nil
}

func (h *Handler) adaptDeclaredClass(declared *state.DeclaredClass) (*Class, *jsonrpc.Error) {
	class, err := AdaptClass(declared.Class)
	if err != nil {
		return nil, h.adaptError(err)
	}
	return class, nil
}
