// Package gasoracle decides the L1 gas prices stamped on new blocks.
package gasoracle

import (
	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
)

// Oracle returns the prices for the next block. Implementations never block.
//
//go:generate mockgen -destination=../mocks/mock_gasoracle.go -package=mocks github.com/NethermindEth/katana/gasoracle Oracle
type Oracle interface {
	GasPrices() *core.GasPrice
	DataGasPrices() *core.GasPrice
}

// Default prices of a chain without a settlement chain to sample.
var (
	DefaultGasPrice     = &core.GasPrice{PriceInWei: new(felt.Felt).SetUint64(20_000_000_000), PriceInFri: new(felt.Felt).SetUint64(20_000_000_000)}
	DefaultDataGasPrice = &core.GasPrice{PriceInWei: new(felt.Felt).SetUint64(1_000_000), PriceInFri: new(felt.Felt).SetUint64(1_000_000)}
)

var _ Oracle = (*Fixed)(nil)

type Fixed struct {
	gas  *core.GasPrice
	data *core.GasPrice
}

func NewFixed(gas, data *core.GasPrice) *Fixed {
	return &Fixed{gas: gas.Clone(), data: data.Clone()}
}

func (f *Fixed) GasPrices() *core.GasPrice {
	return f.gas.Clone()
}

func (f *Fixed) DataGasPrices() *core.GasPrice {
	return f.data.Clone()
}
