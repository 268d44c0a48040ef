// Package crypto holds the hash and signature primitives of the chain. Pedersen and Poseidon
// are provided by juno's implementation over the stark curve.
package crypto

import (
	junocrypto "github.com/NethermindEth/juno/core/crypto"
	"github.com/NethermindEth/juno/core/felt"
)

// Pedersen implements the [Pedersen hash] of two felts.
//
// [Pedersen hash]: https://docs.starknet.io/architecture-and-concepts/cryptography/hash-functions/#pedersen_hash
func Pedersen(a, b *felt.Felt) *felt.Felt {
	return junocrypto.Pedersen(a, b)
}

// PedersenArray is the chained Pedersen hash of elems followed by their count.
func PedersenArray(elems ...*felt.Felt) *felt.Felt {
	return junocrypto.PedersenArray(elems...)
}

// Poseidon implements the [Poseidon hash] of two felts.
//
// [Poseidon hash]: https://docs.starknet.io/architecture-and-concepts/cryptography/hash-functions/#poseidon_hash
func Poseidon(a, b *felt.Felt) *felt.Felt {
	return junocrypto.Poseidon(a, b)
}

// PoseidonArray is the sponge-mode Poseidon hash of elems.
func PoseidonArray(elems ...*felt.Felt) *felt.Felt {
	return junocrypto.PoseidonArray(elems...)
}
