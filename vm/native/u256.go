package native

import (
	"errors"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/holiman/uint256"
)

var errU256OutOfRange = errors.New("u256 limb does not fit in 128 bits")

var one = new(felt.Felt).SetUint64(1)

// u256FromLimbs joins the low and high 128-bit limbs of a Cairo u256.
func u256FromLimbs(low, high *felt.Felt) (*uint256.Int, error) {
	lb, hb := low.Bytes(), high.Bytes()
	for i := range 16 {
		if lb[i] != 0 || hb[i] != 0 {
			return nil, errU256OutOfRange
		}
	}

	v := new(uint256.Int).SetBytes(hb[16:])
	v.Lsh(v, 128)
	return v.Or(v, new(uint256.Int).SetBytes(lb[16:])), nil
}

func u256ToLimbs(v *uint256.Int) (low, high *felt.Felt) {
	b := v.Bytes32()
	return new(felt.Felt).SetBytes(b[16:]), new(felt.Felt).SetBytes(b[:16])
}

func u256FromFelt(f *felt.Felt) *uint256.Int {
	b := f.Bytes()
	return new(uint256.Int).SetBytes32(b[:])
}

// u256ToFelt reduces v modulo the field prime.
func u256ToFelt(v *uint256.Int) *felt.Felt {
	b := v.Bytes32()
	return new(felt.Felt).SetBytes(b[:])
}
