package core

import "github.com/NethermindEth/juno/core/felt"

// BlockEnv is the environment transactions of a block execute under.
type BlockEnv struct {
	Number           uint64
	Timestamp        uint64
	L1GasPrice       *GasPrice
	L1DataGasPrice   *GasPrice
	SequencerAddress *felt.Felt
	L1DAMode         L1DAMode
	ProtocolVersion  string
}

// Header returns an unsealed header for a block built under env.
func (e *BlockEnv) Header(parentHash *felt.Felt) *Header {
	return &Header{
		ParentHash:       parentHash,
		Number:           e.Number,
		Timestamp:        e.Timestamp,
		SequencerAddress: e.SequencerAddress,
		L1GasPrice:       e.L1GasPrice.Clone(),
		L1DataGasPrice:   e.L1DataGasPrice.Clone(),
		L1DAMode:         e.L1DAMode,
		ProtocolVersion:  e.ProtocolVersion,
	}
}

// GasPriceIn returns the L1 gas price in the unit fees are paid in.
func (e *BlockEnv) GasPriceIn(unit FeeUnit) *felt.Felt {
	price := e.L1GasPrice.Clone()
	if unit == STRK {
		return price.PriceInFri
	}
	return price.PriceInWei
}

// DataGasPriceIn returns the L1 data gas price in the unit fees are paid in.
func (e *BlockEnv) DataGasPriceIn(unit FeeUnit) *felt.Felt {
	price := e.L1DataGasPrice.Clone()
	if unit == STRK {
		return price.PriceInFri
	}
	return price.PriceInWei
}
