package gasoracle

import "github.com/NethermindEth/katana/core"

type EventListener interface {
	OnPrices(gas, data *core.GasPrice)
}

type SelectiveListener struct {
	OnPricesCb func(gas, data *core.GasPrice)
}

func (l SelectiveListener) OnPrices(gas, data *core.GasPrice) {
	if l.OnPricesCb != nil {
		l.OnPricesCb(gas, data)
	}
}
