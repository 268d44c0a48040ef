package core

import (
	"encoding/json"
	"errors"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core/crypto"
)

// Class unambiguously defines a Contract's semantics.
type Class interface {
	Version() uint64
	Hash() (*felt.Felt, error)
}

var (
	_ Class = (*Cairo0Class)(nil)
	_ Class = (*Cairo1Class)(nil)
)

// Cairo0Class unambiguously defines a Contract's semantics.
type Cairo0Class struct {
	Abi json.RawMessage
	// External functions defined in the class.
	Externals []EntryPoint
	// Functions that receive L1 messages. See
	// https://www.cairo-lang.org/docs/hello_starknet/l1l2.html#receiving-a-message-from-l1
	L1Handlers []EntryPoint
	// Constructors for the class. Currently, only one is allowed.
	Constructors []EntryPoint
	// Base64 encoding of compressed Program
	Program string
}

// EntryPoint uniquely identifies a Cairo function to execute.
type EntryPoint struct {
	// starknet_keccak hash of the function signature.
	Selector *felt.Felt
	// The offset of the instruction in the class's bytecode.
	Offset *felt.Felt
}

func (c *Cairo0Class) Version() uint64 {
	return 0
}

// Hash commits to the entry points and the program blob. Hinted program hashes need the Cairo 0
// compiler's JSON normalisation, so the program is committed to as an opaque byte string.
func (c *Cairo0Class) Hash() (*felt.Felt, error) {
	flatten := func(eps []EntryPoint) *felt.Felt {
		elems := make([]*felt.Felt, 0, len(eps)*2)
		for _, ep := range eps {
			elems = append(elems, ep.Selector, ep.Offset)
		}
		return crypto.PedersenArray(elems...)
	}
	return crypto.PedersenArray(
		new(felt.Felt),
		flatten(c.Externals),
		flatten(c.L1Handlers),
		flatten(c.Constructors),
		crypto.PedersenArray(),
		crypto.StarknetKeccak([]byte(c.Program)),
		crypto.StarknetKeccak(c.Abi),
	), nil
}

// Cairo1Class unambiguously defines a Contract's semantics.
type Cairo1Class struct {
	Abi         string
	AbiHash     *felt.Felt
	EntryPoints struct {
		Constructor []SierraEntryPoint
		External    []SierraEntryPoint
		L1Handler   []SierraEntryPoint
	}
	Program         []*felt.Felt
	ProgramHash     *felt.Felt
	SemanticVersion string
}

type SierraEntryPoint struct {
	Index    uint64
	Selector *felt.Felt
}

func (c *Cairo1Class) Version() uint64 {
	return 1
}

var ErrEmptySemanticVersion = errors.New("sierra class has no contract class version")

func (c *Cairo1Class) Hash() (*felt.Felt, error) {
	if c.SemanticVersion == "" {
		return nil, ErrEmptySemanticVersion
	}

	programHash := c.ProgramHash
	if programHash == nil {
		programHash = crypto.PoseidonArray(c.Program...)
	}
	abiHash := c.AbiHash
	if abiHash == nil {
		abiHash = crypto.StarknetKeccak([]byte(c.Abi))
	}

	return crypto.PoseidonArray(
		new(felt.Felt).SetBytes([]byte("CONTRACT_CLASS_V"+c.SemanticVersion)),
		sierraEntryPointsHash(c.EntryPoints.External),
		sierraEntryPointsHash(c.EntryPoints.L1Handler),
		sierraEntryPointsHash(c.EntryPoints.Constructor),
		abiHash,
		programHash,
	), nil
}

func sierraEntryPointsHash(eps []SierraEntryPoint) *felt.Felt {
	elems := make([]*felt.Felt, 0, len(eps)*2)
	for _, ep := range eps {
		elems = append(elems, ep.Selector, new(felt.Felt).SetUint64(ep.Index))
	}
	return crypto.PoseidonArray(elems...)
}

var classLeafPrefix = new(felt.Felt).SetBytes([]byte("CONTRACT_CLASS_LEAF_V0"))

// ClassLeaf is the value committed to in the classes trie for a Sierra class.
func ClassLeaf(compiledClassHash *felt.Felt) *felt.Felt {
	return crypto.Poseidon(classLeafPrefix, compiledClassHash)
}
