package core_test

import (
	"testing"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestL1HandlerTransactionHash(t *testing.T) {
	// message sent on Goerli from 0xbe3C44c09bc1a3566F3e1CA12e5AbA0fA4Ca72Be with payload [1, 2]
	from := utils.HexToFelt(t, "0xbe3C44c09bc1a3566F3e1CA12e5AbA0fA4Ca72Be")
	tx := &core.L1HandlerTransaction{
		ContractAddress:    utils.HexToFelt(t, "0x039dc79e64f4bb3289240f88e0bae7d21735bef0d1a51b2bf3c4730cb16983e1"),
		EntryPointSelector: utils.HexToFelt(t, "0x02f15cff7b0eed8b9beb162696cf4e3e0e35fa7032af69cd1b7d2ac67a13f40f"),
		Nonce:              new(felt.Felt).SetUint64(783082),
		CallData:           []*felt.Felt{from, new(felt.Felt).SetUint64(1), new(felt.Felt).SetUint64(2)},
		Version:            core.NewTransactionVersion(0),
	}

	chainID := utils.MustChainID("SN_GOERLI")
	hash, err := core.TransactionHash(tx, chainID.Felt())
	require.NoError(t, err)
	assert.Equal(t, "0x6182c63599a9638272f1ce5b5cadabece9c81c2d2b8f88ab7a294472b8fce8b", hash.String())

	t.Run("only version 0 exists", func(t *testing.T) {
		tx.Version = core.NewTransactionVersion(1)
		_, err := core.TransactionHash(tx, chainID.Felt())
		require.Error(t, err)
	})
}

func TestTransactionHashDependsOnChain(t *testing.T) {
	tx := &core.InvokeTransaction{
		SenderAddress: new(felt.Felt).SetUint64(0x99),
		CallData:      []*felt.Felt{new(felt.Felt).SetUint64(1)},
		MaxFee:        new(felt.Felt).SetUint64(1000),
		Nonce:         new(felt.Felt).SetUint64(3),
		Version:       core.NewTransactionVersion(1),
	}

	a, err := core.TransactionHash(tx, utils.MustChainID("KATANA").Felt())
	require.NoError(t, err)
	b, err := core.TransactionHash(tx, utils.MustChainID("SN_SEPOLIA").Felt())
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	again, err := core.TransactionHash(tx, utils.MustChainID("KATANA").Felt())
	require.NoError(t, err)
	assert.Equal(t, a, again)
}

func TestTransactionHashVersions(t *testing.T) {
	chainID := utils.DefaultChainID.Felt()
	bounds := map[core.Resource]core.ResourceBounds{
		core.ResourceL1Gas: {MaxAmount: 100, MaxPricePerUnit: new(felt.Felt).SetUint64(10)},
		core.ResourceL2Gas: {MaxAmount: 0, MaxPricePerUnit: new(felt.Felt)},
	}

	txs := map[string]core.Transaction{
		"invoke v0": &core.InvokeTransaction{
			ContractAddress:    new(felt.Felt).SetUint64(1),
			EntryPointSelector: new(felt.Felt).SetUint64(2),
			Version:            core.NewTransactionVersion(0),
		},
		"invoke v3": &core.InvokeTransaction{
			SenderAddress:  new(felt.Felt).SetUint64(1),
			Nonce:          new(felt.Felt),
			ResourceBounds: bounds,
			Version:        core.NewTransactionVersion(3),
		},
		"declare v2": &core.DeclareTransaction{
			SenderAddress:     new(felt.Felt).SetUint64(1),
			ClassHash:         new(felt.Felt).SetUint64(2),
			CompiledClassHash: new(felt.Felt).SetUint64(3),
			Nonce:             new(felt.Felt),
			Version:           core.NewTransactionVersion(2),
		},
		"declare v3": &core.DeclareTransaction{
			SenderAddress:     new(felt.Felt).SetUint64(1),
			ClassHash:         new(felt.Felt).SetUint64(2),
			CompiledClassHash: new(felt.Felt).SetUint64(3),
			Nonce:             new(felt.Felt),
			ResourceBounds:    bounds,
			Version:           core.NewTransactionVersion(3),
		},
		"deploy account v3": &core.DeployAccountTransaction{
			DeployTransaction: core.DeployTransaction{
				ContractAddress:     new(felt.Felt).SetUint64(7),
				ClassHash:           new(felt.Felt).SetUint64(2),
				ContractAddressSalt: new(felt.Felt).SetUint64(5),
				Version:             core.NewTransactionVersion(3),
			},
			Nonce:          new(felt.Felt),
			ResourceBounds: bounds,
		},
		"deploy": &core.DeployTransaction{
			ContractAddress: new(felt.Felt).SetUint64(7),
			ClassHash:       new(felt.Felt).SetUint64(2),
			Version:         core.NewTransactionVersion(0),
		},
	}

	seen := make(map[felt.Felt]string)
	for name, tx := range txs {
		t.Run(name, func(t *testing.T) {
			hash, err := core.TransactionHash(tx, chainID)
			require.NoError(t, err)
			require.False(t, hash.IsZero())
			other, ok := seen[*hash]
			assert.False(t, ok, "collides with %s", other)
			seen[*hash] = name
		})
	}

	t.Run("unsupported version", func(t *testing.T) {
		_, err := core.TransactionHash(&core.InvokeTransaction{Version: core.NewTransactionVersion(2)}, chainID)
		require.Error(t, err)
	})
}

func TestTransactionVersionQueryBit(t *testing.T) {
	queryV1 := (*core.TransactionVersion)(utils.HexToFelt(t, "0x100000000000000000000000000000001"))
	assert.True(t, queryV1.HasQueryBit())
	assert.True(t, queryV1.Is(1))
	assert.False(t, queryV1.Is(0))

	v3 := core.NewTransactionVersion(3)
	assert.False(t, v3.HasQueryBit())
	assert.True(t, v3.Is(3))
	assert.Equal(t, v3, v3.WithoutQueryBit())
	assert.Equal(t, "0x1", queryV1.WithoutQueryBit().String())

	var nilVersion *core.TransactionVersion
	assert.True(t, nilVersion.Is(0))
}

func TestSenderAddressAndNonce(t *testing.T) {
	sender := new(felt.Felt).SetUint64(0x42)
	nonce := new(felt.Felt).SetUint64(9)

	invoke := &core.InvokeTransaction{SenderAddress: sender, Nonce: nonce, Version: core.NewTransactionVersion(1)}
	assert.Equal(t, sender, core.SenderAddress(invoke))
	assert.Equal(t, nonce, core.TransactionNonce(invoke))

	invokeV0 := &core.InvokeTransaction{ContractAddress: sender, Version: core.NewTransactionVersion(0)}
	assert.Equal(t, sender, core.SenderAddress(invokeV0))

	deployAccount := &core.DeployAccountTransaction{DeployTransaction: core.DeployTransaction{ContractAddress: sender}}
	assert.Equal(t, sender, core.SenderAddress(deployAccount))

	assert.Nil(t, core.SenderAddress(&core.L1HandlerTransaction{}))
	assert.Nil(t, core.TransactionNonce(&core.DeployTransaction{}))
}
