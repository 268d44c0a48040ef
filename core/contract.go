package core

import (
	"math/big"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core/crypto"
)

const (
	ContractStorageTrieHeight = 251
	// Storage keys and addresses live below 2^251 - 256.
	addressBoundBits = 251
)

var (
	contractAddressPrefix = new(felt.Felt).SetBytes([]byte("STARKNET_CONTRACT_ADDRESS"))
	addressUpperBound     = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), addressBoundBits), big.NewInt(256))
)

// ContractAddress computes the address of a Starknet contract.
// https://docs.starknet.io/architecture-and-concepts/smart-contracts/contract-address/
func ContractAddress(callerAddress, classHash, salt *felt.Felt, constructorCallData []*felt.Felt) *felt.Felt {
	callDataHash := crypto.PedersenArray(constructorCallData...)

	addr := crypto.PedersenArray(
		contractAddressPrefix,
		callerAddress,
		salt,
		classHash,
		callDataHash,
	)
	return normalizeAddress(addr)
}

func normalizeAddress(addr *felt.Felt) *felt.Felt {
	v := addr.BigInt(new(big.Int))
	if v.Cmp(addressUpperBound) < 0 {
		return addr
	}
	v.Mod(v, addressUpperBound)
	return new(felt.Felt).SetBytes(v.Bytes())
}

// StorageVarAddress computes the storage key of a Cairo storage variable, optionally indexed by
// keys as in a mapping.
func StorageVarAddress(name string, keys ...*felt.Felt) *felt.Felt {
	res := crypto.StarknetKeccak([]byte(name))
	for _, k := range keys {
		res = crypto.Pedersen(res, k)
	}
	return normalizeAddress(res)
}

// ContractLeaf is the value committed to in the contracts trie.
func ContractLeaf(classHash, storageRoot, nonce *felt.Felt) *felt.Felt {
	// https://docs.starknet.io/architecture-and-concepts/network-architecture/starknet-state/#the_contract_trie
	h := crypto.Pedersen(classHash, storageRoot)
	h = crypto.Pedersen(h, nonce)
	// the last argument is the contract class version, always 0
	return crypto.Pedersen(h, new(felt.Felt))
}
