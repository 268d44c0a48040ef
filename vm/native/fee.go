package native

import (
	"fmt"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/vm"
	"github.com/holiman/uint256"
)

const (
	stepsPerL1Gas = 400
	// Publishing one felt of state diff on L1.
	l1GasPerFelt = 612
)

// minimalL1Gas is what the cheapest transaction, a bare call that bumps the nonce, uses.
var minimalL1Gas = l1Gas(callSteps, 1)

func l1Gas(steps, writtenFelts uint64) uint64 {
	return (steps+stepsPerL1Gas-1)/stepsPerL1Gas + l1GasPerFelt*writtenFelts
}

// feeUnit is FRI for v3 transactions and WEI for older ones.
func feeUnit(tx core.Transaction) core.FeeUnit {
	if tx.TxVersion().Is(3) {
		return core.STRK
	}
	return core.WEI
}

func feeFor(gas uint64, price *felt.Felt) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(gas), u256FromFelt(price))
}

// feeBounds is what a transaction is willing to pay.
type feeBounds struct {
	maxFee *uint256.Int
	// v3 only
	maxGas   uint64
	maxPrice *felt.Felt
}

func boundsOf(tx core.Transaction) feeBounds {
	var (
		maxFee *felt.Felt
		bounds map[core.Resource]core.ResourceBounds
	)
	switch t := tx.(type) {
	case *core.InvokeTransaction:
		maxFee, bounds = t.MaxFee, t.ResourceBounds
	case *core.DeclareTransaction:
		maxFee, bounds = t.MaxFee, t.ResourceBounds
	case *core.DeployAccountTransaction:
		maxFee, bounds = t.MaxFee, t.ResourceBounds
	}

	if tx.TxVersion().Is(3) {
		l1 := bounds[core.ResourceL1Gas]
		price := l1.MaxPricePerUnit
		if price == nil {
			price = new(felt.Felt)
		}
		return feeBounds{
			maxFee:   feeFor(l1.MaxAmount, price),
			maxGas:   l1.MaxAmount,
			maxPrice: price,
		}
	}
	if maxFee == nil {
		maxFee = new(felt.Felt)
	}
	return feeBounds{maxFee: u256FromFelt(maxFee)}
}

// precheck rejects bounds that cannot cover the cheapest transaction at the current prices.
func (b feeBounds) precheck(unit core.FeeUnit, price *felt.Felt) error {
	if b.maxPrice != nil {
		if b.maxGas < minimalL1Gas {
			return fmt.Errorf("%w: max L1 gas amount %d, minimal %d", vm.ErrInsufficientMaxFee, b.maxGas, minimalL1Gas)
		}
		if b.maxPrice.Cmp(price) < 0 {
			return fmt.Errorf("%w: max L1 gas price %s, actual %s", vm.ErrInsufficientMaxFee, b.maxPrice, price)
		}
		return nil
	}

	minimal := feeFor(minimalL1Gas, price)
	if b.maxFee.IsZero() || b.maxFee.Lt(minimal) {
		return fmt.Errorf("%w: max fee %s, minimal %s %s", vm.ErrInsufficientMaxFee, b.maxFee.Dec(), minimal.Dec(), unit)
	}
	return nil
}

// exceeded returns a revert reason when an actual usage is above the bounds.
func (b feeBounds) exceeded(gas uint64, fee *uint256.Int) (string, bool) {
	if b.maxPrice != nil && gas > b.maxGas {
		return fmt.Sprintf("Insufficient max L1Gas: max amount: %d, actual used: %d.", b.maxGas, gas), true
	}
	if fee.Gt(b.maxFee) {
		return fmt.Sprintf("Insufficient max fee: max fee: %s, actual fee: %s", b.maxFee.Dec(), fee.Dec()), true
	}
	return "", false
}
