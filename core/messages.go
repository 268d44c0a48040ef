package core

import (
	"math/big"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core/crypto"
	"github.com/ethereum/go-ethereum/common"
)

// L2ToL1MessageHash is the hash under which the Starknet core contract on the settlement chain
// registers a message: keccak256(from || to || len(payload) || payload...), each word a 32 byte
// big-endian integer.
func L2ToL1MessageHash(from, to *felt.Felt, payload []*felt.Felt) common.Hash {
	words := make([][]byte, 0, 3+len(payload))
	words = append(words, feltWord(from), feltWord(to), uintWord(uint64(len(payload))))
	for _, p := range payload {
		words = append(words, feltWord(p))
	}
	return crypto.Keccak256(words...)
}

// L1ToL2MessageHash is the hash the settlement chain assigns to a message consumed by an L1
// handler: keccak256(from || to || nonce || selector || len(payload) || payload...).
func L1ToL2MessageHash(from common.Address, to, selector, nonce *felt.Felt, payload []*felt.Felt) common.Hash {
	words := make([][]byte, 0, 5+len(payload))
	words = append(words,
		common.LeftPadBytes(from.Bytes(), 32),
		feltWord(to),
		feltWord(nonce),
		feltWord(selector),
		uintWord(uint64(len(payload))),
	)
	for _, p := range payload {
		words = append(words, feltWord(p))
	}
	return crypto.Keccak256(words...)
}

// Hash of the message as seen from the settlement chain.
func (m *L1ToL2Message) Hash() common.Hash {
	return L1ToL2MessageHash(m.From, m.To, m.Selector, m.Nonce, m.Payload)
}

// Hash of the message as registered on the settlement chain.
func (m *L2ToL1Message) Hash() common.Hash {
	return L2ToL1MessageHash(m.From, m.To, m.Payload)
}

func feltWord(f *felt.Felt) []byte {
	b := f.Bytes()
	return b[:]
}

func uintWord(v uint64) []byte {
	return common.LeftPadBytes(new(big.Int).SetUint64(v).Bytes(), 32)
}
