package mempool

import (
	"math"
	"math/big"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
)

// Ordering ranks pending transactions. Transactions with a higher priority are taken first;
// equal priorities are taken in arrival order.
type Ordering interface {
	Priority(tx core.Transaction) uint64
}

// FIFO takes transactions in arrival order.
type FIFO struct{}

func (FIFO) Priority(core.Transaction) uint64 {
	return 0
}

// TipOrdering takes transactions paying more first: the tip of v3 transactions, the max fee of
// older ones.
type TipOrdering struct{}

func (TipOrdering) Priority(tx core.Transaction) uint64 {
	switch t := tx.(type) {
	case *core.InvokeTransaction:
		return fee(t.Version, t.Tip, t.MaxFee)
	case *core.DeclareTransaction:
		return fee(t.Version, t.Tip, t.MaxFee)
	case *core.DeployAccountTransaction:
		return fee(t.Version, t.Tip, t.MaxFee)
	}
	return 0
}

func fee(version *core.TransactionVersion, tip uint64, maxFee *felt.Felt) uint64 {
	if version.Is(3) {
		return tip
	}
	if maxFee == nil {
		return 0
	}
	v := maxFee.BigInt(new(big.Int))
	if !v.IsUint64() {
		return math.MaxUint64
	}
	return v.Uint64()
}
