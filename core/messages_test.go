package core_test

import (
	"testing"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/crypto"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestL2ToL1MessageHash(t *testing.T) {
	msg := &core.L2ToL1Message{
		From:    crypto.Selector("from_address"),
		To:      crypto.Selector("to_address"),
		Payload: []*felt.Felt{new(felt.Felt).SetUint64(1), new(felt.Felt).SetUint64(2)},
	}
	assert.Equal(t,
		common.HexToHash("0x5ba1d2e131360f15e26dd4f6ff10550685611cc25f75e7950b704adb04b36162"),
		msg.Hash(),
	)
}

func TestL1ToL2MessageHash(t *testing.T) {
	msg := &core.L1ToL2Message{
		From:     common.HexToAddress("0xbe3C44c09bc1a3566F3e1CA12e5AbA0fA4Ca72Be"),
		To:       new(felt.Felt).SetUint64(0x39),
		Selector: new(felt.Felt).SetUint64(0x2f),
		Nonce:    new(felt.Felt).SetUint64(783082),
		Payload:  []*felt.Felt{new(felt.Felt).SetUint64(1), new(felt.Felt).SetUint64(2)},
	}

	var (
		fromWord = common.LeftPadBytes(msg.From.Bytes(), 32)
		word     = func(v uint64) []byte {
			return common.LeftPadBytes(new(felt.Felt).SetUint64(v).Marshal(), 32)
		}
	)
	want := crypto.Keccak256(fromWord, word(0x39), word(783082), word(0x2f), word(2), word(1), word(2))
	assert.Equal(t, common.Hash(want), msg.Hash())

	msg.Nonce = new(felt.Felt).SetUint64(783083)
	assert.NotEqual(t, common.Hash(want), msg.Hash())
}
