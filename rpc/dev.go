package rpc

import (
	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/jsonrpc"
	"github.com/NethermindEth/katana/vm"
	"github.com/holiman/uint256"
)

var balanceOfSelector = crypto.Selector("balanceOf")

type GeneratedBlock struct {
	BlockNumber uint64     `json:"block_number"`
	BlockHash   *felt.Felt `json:"block_hash"`
}

type PredeployedAccount struct {
	Address    *felt.Felt `json:"address"`
	PublicKey  *felt.Felt `json:"public_key"`
	PrivateKey *felt.Felt `json:"private_key,omitempty"`
	ClassHash  *felt.Felt `json:"class_hash"`
	Balance    *felt.Felt `json:"balance,omitempty"`
}

type FeeTokenInfo struct {
	Name     string     `json:"name"`
	Symbol   string     `json:"symbol"`
	Decimals uint8      `json:"decimals"`
	Address  *felt.Felt `json:"address"`
	Unit     FeeUnit    `json:"unit"`
}

/****************************************************
		Dev Handlers
*****************************************************/

// GenerateBlock closes the pending block right away, even when it holds no transaction.
func (h *Handler) GenerateBlock() (*GeneratedBlock, *jsonrpc.Error) {
	outcome, err := h.producer.ForceMine()
	if err != nil {
		return nil, h.adaptError(err)
	}
	return &GeneratedBlock{BlockNumber: outcome.BlockNumber, BlockHash: outcome.BlockHash}, nil
}

func (h *Handler) NextBlockTimestamp() (uint64, *jsonrpc.Error) {
	return h.producer.NextBlockTimestamp(), nil
}

// SetNextBlockTimestamp fails with ErrPendingTransactions while the pending block holds
// transactions, since their execution already saw the current timestamp.
func (h *Handler) SetNextBlockTimestamp(timestamp uint64) (*struct{}, *jsonrpc.Error) {
	if err := h.producer.SetNextBlockTimestamp(timestamp); err != nil {
		return nil, h.adaptError(err)
	}
	return nil, nil
}

func (h *Handler) IncreaseNextBlockTimestamp(timestamp uint64) (*struct{}, *jsonrpc.Error) {
	if err := h.producer.IncreaseNextBlockTimestamp(timestamp); err != nil {
		return nil, h.adaptError(err)
	}
	return nil, nil
}

// SetStorageAt writes straight into the pending state. The contract does not need to exist.
func (h *Handler) SetStorageAt(address, key, value felt.Felt) (*struct{}, *jsonrpc.Error) {
	if err := h.producer.SetStorageAt(&address, &key, &value); err != nil {
		return nil, h.adaptError(err)
	}
	return nil, nil
}

func (h *Handler) PredeployedAccounts() ([]PredeployedAccount, *jsonrpc.Error) {
	accounts, err := h.genesis.AllAccounts()
	if err != nil {
		return nil, h.adaptError(err)
	}
	res := make([]PredeployedAccount, 0, len(accounts))
	for _, acc := range accounts {
		res = append(res, PredeployedAccount{
			Address:    acc.Address,
			PublicKey:  acc.PublicKey,
			PrivateKey: acc.PrivateKey,
			ClassHash:  acc.ClassHash,
			Balance:    acc.Balance,
		})
	}
	return res, nil
}

// AccountBalance reads the balance of address in the fee token of unit, WEI when unit is
// omitted, as of the pending block. The balance is a u256 and comes back as a hex string.
func (h *Handler) AccountBalance(address felt.Felt, unit *string) (string, *jsonrpc.Error) {
	feeUnit := core.WEI
	if unit != nil {
		switch *unit {
		case "WEI":
		case "FRI", "STRK":
			feeUnit = core.STRK
		default:
			return "", ErrUnknownFeeUnit.CloneWithData(*unit)
		}
	}

	executor, closer, rpcErr := h.executor(&BlockID{Pending: true}, vm.SimulationFlags{})
	if rpcErr != nil {
		return "", rpcErr
	}
	defer h.closeState(closer)

	res, err := executor.Call(&vm.CallInfo{
		ContractAddress: h.factory.Config().FeeTokens.For(feeUnit),
		Selector:        balanceOfSelector,
		Calldata:        []*felt.Felt{&address},
	})
	if err != nil {
		return "", h.adaptError(err)
	}
	if len(res) != 2 {
		h.log.Errorw("Unexpected balanceOf result", "len", len(res))
		return "", ErrInternal
	}

	lowBytes, highBytes := res[0].Bytes(), res[1].Bytes()
	low := new(uint256.Int).SetBytes32(lowBytes[:])
	high := new(uint256.Int).SetBytes32(highBytes[:])
	return new(uint256.Int).Or(new(uint256.Int).Lsh(high, 128), low).Hex(), nil
}

func (h *Handler) FeeToken() ([]FeeTokenInfo, *jsonrpc.Error) {
	tokens := []FeeTokenInfo{
		{Name: h.genesis.ETH.Name, Symbol: h.genesis.ETH.Symbol, Decimals: h.genesis.ETH.Decimals, Unit: WEI},
		{Name: h.genesis.STRK.Name, Symbol: h.genesis.STRK.Symbol, Decimals: h.genesis.STRK.Decimals, Unit: FRI},
	}
	feeTokens := h.factory.Config().FeeTokens
	tokens[0].Address, tokens[1].Address = feeTokens.ETH, feeTokens.STRK
	return tokens, nil
}
