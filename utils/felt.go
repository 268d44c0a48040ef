package utils

import (
	"encoding/binary"
	"math/big"

	"github.com/NethermindEth/juno/core/felt"
)

// MustHexToFelt panics on malformed input. Meant for constants and tests.
func MustHexToFelt(hex string) *felt.Felt {
	f, err := new(felt.Felt).SetString(hex)
	if err != nil {
		panic(err)
	}
	return f
}

func Uint64ToFelt(v uint64) *felt.Felt {
	return new(felt.Felt).SetUint64(v)
}

// FeltToUint64 reports false if f does not fit in 64 bits.
func FeltToUint64(f *felt.Felt) (uint64, bool) {
	if f == nil {
		return 0, true
	}
	b := f.Bytes()
	for _, x := range b[:24] {
		if x != 0 {
			return 0, false
		}
	}
	return binary.BigEndian.Uint64(b[24:]), true
}

func FeltToBig(f *felt.Felt) *big.Int {
	return f.BigInt(new(big.Int))
}

// BigToFelt reduces b modulo the field prime.
func BigToFelt(b *big.Int) *felt.Felt {
	return new(felt.Felt).SetBytes(b.Bytes())
}

// FeltOrZero returns a fresh zero felt in place of nil.
func FeltOrZero(f *felt.Felt) *felt.Felt {
	if f == nil {
		return new(felt.Felt)
	}
	return f
}
