package crypto

import (
	"github.com/NethermindEth/juno/core/felt"
	"golang.org/x/crypto/sha3"
)

// StarknetKeccak implements [Starknet keccak]
//
// [Starknet keccak]: https://docs.starknet.io/architecture-and-concepts/cryptography/hash-functions/#starknet_keccak
func StarknetKeccak(b []byte) *felt.Felt {
	d := Keccak256(b)
	// Remove the first 6 bits from the first byte
	d[0] &= 3
	return new(felt.Felt).SetBytes(d[:])
}

// Keccak256 is the Ethereum flavour of keccak.
func Keccak256(chunks ...[]byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	for _, b := range chunks {
		h.Write(b) //nolint:errcheck
	}
	var out [32]byte
	h.Sum(out[:0])
	return out
}

// Selector returns the entry point selector for a function name.
func Selector(name string) *felt.Felt {
	return StarknetKeccak([]byte(name))
}
