package crypto

import (
	"errors"
	"math/big"

	"github.com/NethermindEth/juno/core/felt"
	starkcurve "github.com/consensys/gnark-crypto/ecc/stark-curve"
	"github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
	"github.com/consensys/gnark-crypto/ecc/stark-curve/fr"
)

var (
	ErrInvalidPrivateKey = errors.New("invalid private key")
	ErrInvalidPublicKey  = errors.New("public key is not on the curve")
	ErrInvalidSignature  = errors.New("invalid signature")
)

// Signatures, message hashes and keys are bounded by 2^251.
var (
	bound251 = new(big.Int).Lsh(big.NewInt(1), 251)
	curveB   fp.Element
)

func init() {
	if _, err := curveB.SetString("0x6f21413efbe40de150e596d72f7a8c5609ad26c15c915c1f4cdfcb99cee9e89"); err != nil {
		panic(err)
	}
}

func curveOrder() *big.Int {
	return fr.Modulus()
}

func generator() starkcurve.G1Jac {
	g, _ := starkcurve.Generators()
	return g
}

// PublicKey derives the x coordinate of priv·G.
func PublicKey(priv *felt.Felt) (*felt.Felt, error) {
	k := priv.BigInt(new(big.Int))
	if k.Sign() == 0 || k.Cmp(curveOrder()) >= 0 {
		return nil, ErrInvalidPrivateKey
	}

	g := generator()
	var p starkcurve.G1Jac
	p.ScalarMultiplication(&g, k)
	var aff starkcurve.G1Affine
	aff.FromJacobian(&p)
	return feltFromElement(&aff.X), nil
}

// Sign produces an (r, s) signature of msgHash. The nonce is derived deterministically from the
// key and the message.
func Sign(priv, msgHash *felt.Felt) (r, s *felt.Felt, err error) {
	d := priv.BigInt(new(big.Int))
	n := curveOrder()
	if d.Sign() == 0 || d.Cmp(n) >= 0 {
		return nil, nil, ErrInvalidPrivateKey
	}
	z := msgHash.BigInt(new(big.Int))
	g := generator()

	for counter := uint64(0); ; counter++ {
		seed := PoseidonArray(priv, msgHash, new(felt.Felt).SetUint64(counter))
		k := seed.BigInt(new(big.Int))
		k.Mod(k, n)
		if k.Sign() == 0 {
			continue
		}

		var kg starkcurve.G1Jac
		kg.ScalarMultiplication(&g, k)
		var aff starkcurve.G1Affine
		aff.FromJacobian(&kg)
		rInt := aff.X.BigInt(new(big.Int))
		rInt.Mod(rInt, n)
		if rInt.Sign() == 0 || rInt.Cmp(bound251) >= 0 {
			continue
		}

		kInv := new(big.Int).ModInverse(k, n)
		sInt := new(big.Int).Mul(rInt, d)
		sInt.Add(sInt, z)
		sInt.Mul(sInt, kInv)
		sInt.Mod(sInt, n)
		if sInt.Sign() == 0 || sInt.Cmp(bound251) >= 0 {
			continue
		}
		return feltFromBig(rInt), feltFromBig(sInt), nil
	}
}

// Verify checks an (r, s) signature of msgHash against the x coordinate of a public key.
func Verify(pubKey, msgHash, r, s *felt.Felt) (bool, error) {
	rInt := r.BigInt(new(big.Int))
	sInt := s.BigInt(new(big.Int))
	z := msgHash.BigInt(new(big.Int))
	n := curveOrder()

	if rInt.Sign() == 0 || rInt.Cmp(bound251) >= 0 ||
		sInt.Sign() == 0 || sInt.Cmp(n) >= 0 ||
		z.Cmp(bound251) >= 0 {
		return false, nil
	}

	q, err := pointFromX(pubKey)
	if err != nil {
		return false, err
	}

	w := new(big.Int).ModInverse(sInt, n)
	if w == nil {
		return false, nil
	}
	u1 := new(big.Int).Mul(z, w)
	u1.Mod(u1, n)
	u2 := new(big.Int).Mul(rInt, w)
	u2.Mod(u2, n)

	g := generator()
	var zg starkcurve.G1Jac
	zg.ScalarMultiplication(&g, u1)

	// the public key is only known up to the sign of y
	for _, candidate := range []starkcurve.G1Affine{q, negate(q)} {
		var qJac, rq starkcurve.G1Jac
		qJac.FromAffine(&candidate)
		rq.ScalarMultiplication(&qJac, u2)
		rq.AddAssign(&zg)

		var res starkcurve.G1Affine
		res.FromJacobian(&rq)
		x := res.X.BigInt(new(big.Int))
		x.Mod(x, n)
		if x.Cmp(rInt) == 0 {
			return true, nil
		}
	}
	return false, nil
}

func pointFromX(x *felt.Felt) (starkcurve.G1Affine, error) {
	var p starkcurve.G1Affine
	xb := x.Bytes()
	p.X.SetBytes(xb[:])

	// y^2 = x^3 + x + b
	var rhs, x3 fp.Element
	x3.Square(&p.X).Mul(&x3, &p.X)
	rhs.Add(&x3, &p.X).Add(&rhs, &curveB)
	if p.Y.Sqrt(&rhs) == nil {
		return p, ErrInvalidPublicKey
	}
	return p, nil
}

func negate(p starkcurve.G1Affine) starkcurve.G1Affine {
	var n starkcurve.G1Affine
	n.X = p.X
	n.Y.Neg(&p.Y)
	return n
}

func feltFromElement(e *fp.Element) *felt.Felt {
	b := e.Bytes()
	return new(felt.Felt).SetBytes(b[:])
}

func feltFromBig(b *big.Int) *felt.Felt {
	return new(felt.Felt).SetBytes(b.Bytes())
}
