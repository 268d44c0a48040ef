package core

import (
	"maps"
	"slices"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core/crypto"
)

type StateUpdate struct {
	BlockHash *felt.Felt
	NewRoot   *felt.Felt
	OldRoot   *felt.Felt
	StateDiff *StateDiff
}

type StateDiff struct {
	StorageDiffs      map[felt.Felt]map[felt.Felt]*felt.Felt // addr -> {key -> value, ...}
	Nonces            map[felt.Felt]*felt.Felt               // addr -> nonce
	DeployedContracts map[felt.Felt]*felt.Felt               // addr -> class hash
	DeclaredV0Classes []*felt.Felt                           // class hashes
	DeclaredV1Classes map[felt.Felt]*felt.Felt               // class hash -> compiled class hash
	ReplacedClasses   map[felt.Felt]*felt.Felt               // addr -> class hash
}

func EmptyStateDiff() *StateDiff {
	return &StateDiff{
		StorageDiffs:      make(map[felt.Felt]map[felt.Felt]*felt.Felt),
		Nonces:            make(map[felt.Felt]*felt.Felt),
		DeployedContracts: make(map[felt.Felt]*felt.Felt),
		DeclaredV0Classes: make([]*felt.Felt, 0),
		DeclaredV1Classes: make(map[felt.Felt]*felt.Felt),
		ReplacedClasses:   make(map[felt.Felt]*felt.Felt),
	}
}

// Length is the number of state entries the diff touches. Cairo 0 class declarations are not
// counted.
func (d *StateDiff) Length() uint64 {
	length := len(d.Nonces) + len(d.DeployedContracts) + len(d.DeclaredV1Classes) + len(d.ReplacedClasses)
	for _, storage := range d.StorageDiffs {
		length += len(storage)
	}
	return uint64(length)
}

// Merge folds other into d; entries of other win.
func (d *StateDiff) Merge(other *StateDiff) {
	for addr, storage := range other.StorageDiffs {
		if d.StorageDiffs[addr] == nil {
			d.StorageDiffs[addr] = make(map[felt.Felt]*felt.Felt, len(storage))
		}
		maps.Copy(d.StorageDiffs[addr], storage)
	}
	maps.Copy(d.Nonces, other.Nonces)
	maps.Copy(d.DeployedContracts, other.DeployedContracts)
	maps.Copy(d.DeclaredV1Classes, other.DeclaredV1Classes)
	maps.Copy(d.ReplacedClasses, other.ReplacedClasses)
	for _, h := range other.DeclaredV0Classes {
		if !slices.ContainsFunc(d.DeclaredV0Classes, h.Equal) {
			d.DeclaredV0Classes = append(d.DeclaredV0Classes, h)
		}
	}
}

// Clone deep copies the maps. Felt values are shared since they are never mutated in place.
func (d *StateDiff) Clone() *StateDiff {
	c := EmptyStateDiff()
	c.Merge(d)
	return c
}

var starknetStateDiff0 = new(felt.Felt).SetBytes([]byte("STARKNET_STATE_DIFF0"))

// Commitment is the Poseidon hash of the sorted diff as defined in Starknet 0.13.2.
func (d *StateDiff) Commitment() *felt.Felt {
	elems := []*felt.Felt{starknetStateDiff0}

	updated := make(map[felt.Felt]*felt.Felt, len(d.DeployedContracts)+len(d.ReplacedClasses))
	maps.Copy(updated, d.DeployedContracts)
	maps.Copy(updated, d.ReplacedClasses)
	elems = appendSortedPairs(elems, updated)

	elems = appendSortedPairs(elems, d.DeclaredV1Classes)

	v0 := slices.Clone(d.DeclaredV0Classes)
	slices.SortFunc(v0, func(a, b *felt.Felt) int { return a.Cmp(b) })
	elems = append(elems, new(felt.Felt).SetUint64(uint64(len(v0))))
	elems = append(elems, v0...)

	// data availability placeholder
	elems = append(elems, new(felt.Felt).SetUint64(1), new(felt.Felt))

	addrs := sortedKeys(d.StorageDiffs)
	elems = append(elems, new(felt.Felt).SetUint64(uint64(len(addrs))))
	for _, addr := range addrs {
		a := addr
		elems = append(elems, &a)
		elems = appendSortedPairs(elems, d.StorageDiffs[addr])
	}

	elems = appendSortedPairs(elems, d.Nonces)
	return crypto.PoseidonArray(elems...)
}

// appendSortedPairs appends len(m) followed by the key value pairs of m in key order.
func appendSortedPairs(elems []*felt.Felt, m map[felt.Felt]*felt.Felt) []*felt.Felt {
	elems = append(elems, new(felt.Felt).SetUint64(uint64(len(m))))
	for _, k := range sortedKeys(m) {
		key := k
		elems = append(elems, &key, m[k])
	}
	return elems
}

func sortedKeys[V any](m map[felt.Felt]V) []felt.Felt {
	keys := slices.Collect(maps.Keys(m))
	slices.SortFunc(keys, func(a, b felt.Felt) int { return a.Cmp(&b) })
	return keys
}
