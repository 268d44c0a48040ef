package genesis_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/db/pebble"
	"github.com/NethermindEth/katana/genesis"
	"github.com/NethermindEth/katana/state"
	"github.com/NethermindEth/katana/utils"
	"github.com/NethermindEth/katana/vm"
	"github.com/NethermindEth/katana/vm/native"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v uint64) *felt.Felt {
	return new(felt.Felt).SetUint64(v)
}

func TestDevAccounts(t *testing.T) {
	accounts, err := genesis.DevAccounts("0", 3, native.AccountClassHash, f(1000))
	require.NoError(t, err)
	require.Len(t, accounts, 3)

	again, err := genesis.DevAccounts("0", 3, native.AccountClassHash, f(1000))
	require.NoError(t, err)
	assert.Equal(t, accounts, again)

	seen := make(map[felt.Felt]struct{})
	for _, acc := range accounts {
		pub, err := crypto.PublicKey(acc.PrivateKey)
		require.NoError(t, err)
		assert.Equal(t, pub, acc.PublicKey)
		assert.Equal(t, core.ContractAddress(new(felt.Felt), native.AccountClassHash, new(felt.Felt), []*felt.Felt{pub}), acc.Address)
		assert.Equal(t, -1, acc.PrivateKey.Cmp(new(felt.Felt).SetBytes([]byte{0x08, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
			0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})))
		seen[*acc.Address] = struct{}{}
	}
	assert.Len(t, seen, 3)

	other, err := genesis.DevAccounts("1", 1, native.AccountClassHash, f(1000))
	require.NoError(t, err)
	assert.NotEqual(t, accounts[0].PrivateKey, other[0].PrivateKey)
}

const genesisJSON = `{
	"number": 0,
	"timestamp": 1700000000,
	"sequencerAddress": "0x99",
	"gasPrices": {"eth": "0x64", "strk": "0xc8"},
	"feeTokens": {"ETH": {"name": "Ether", "symbol": "ETH", "decimals": 18}},
	"seed": "katana",
	"accountsCount": 2,
	"balance": "0x1000",
	"accounts": {
		"0x1234": {"publicKey": "0x5", "balance": "0x10", "storage": {"0x1": "0x2"}}
	},
	"contracts": {
		"0x777": {"class": "0x02a8846878b6ad1f54f6ba46f5f40e11cee755c677f130b2c4b60566c9003f1f",
			"constructorCalldata": ["0x1", "0x1", "0x12", "0x0", "0x0", "0x777"], "balance": "0x20"}
	}
}`

const genesisYAML = `
timestamp: 1700000000
sequencerAddress: "0x99"
gasPrices:
  eth: "0x64"
seed: katana
accountsCount: 2
`

func TestParse(t *testing.T) {
	cfg, err := genesis.Parse([]byte(genesisJSON), utils.DefaultChainID)
	require.NoError(t, err)

	assert.Equal(t, uint64(1700000000), cfg.Timestamp)
	assert.Equal(t, f(0x99), cfg.SequencerAddress)
	assert.Equal(t, f(100), cfg.GasPrices.PriceInWei)
	assert.Equal(t, f(200), cfg.GasPrices.PriceInFri)
	assert.Equal(t, genesis.ETHAddress, cfg.ETH.Address)
	assert.Equal(t, "STRK", cfg.STRK.Symbol)
	assert.Equal(t, "katana", cfg.Seed)
	assert.Equal(t, 2, cfg.AccountsCount)
	assert.Equal(t, f(0x1000), cfg.Balance)

	require.Len(t, cfg.Accounts, 1)
	assert.Equal(t, f(0x1234), cfg.Accounts[0].Address)
	assert.Equal(t, f(2), cfg.Accounts[0].Storage[*f(1)])
	require.Len(t, cfg.Contracts, 1)
	assert.Equal(t, native.ERC20ClassHash, cfg.Contracts[0].ClassHash)

	t.Run("yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "genesis.yaml")
		require.NoError(t, os.WriteFile(path, []byte(genesisYAML), 0o600))

		fromYAML, err := genesis.Load(path, utils.DefaultChainID)
		require.NoError(t, err)
		assert.Equal(t, f(0x99), fromYAML.SequencerAddress)
		assert.Equal(t, f(100), fromYAML.GasPrices.PriceInWei)
		assert.Equal(t, 2, fromYAML.AccountsCount)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := genesis.Parse([]byte(`{"feeTokens": {"DAI": {}}}`), utils.DefaultChainID)
		require.Error(t, err)
		_, err = genesis.Parse([]byte(`{"accounts": {"0x1": {}}}`), utils.DefaultChainID)
		require.Error(t, err)
		_, err = genesis.Parse([]byte(`{"contracts": {"0x1": {}}}`), utils.DefaultChainID)
		require.Error(t, err)
	})
}

func TestBlock(t *testing.T) {
	cfg, err := genesis.Parse([]byte(genesisJSON), utils.DefaultChainID)
	require.NoError(t, err)

	database := pebble.NewMemTest(t)
	factory := native.NewFactory(&vm.ChainConfig{
		ChainID:          cfg.ChainID,
		FeeTokens:        vm.FeeTokens{ETH: cfg.ETH.Address, STRK: cfg.STRK.Address},
		InvokeMaxSteps:   1_000_000,
		ValidateMaxSteps: 100_000,
	}, native.DefaultRegistry(), utils.NewNopZapLogger())

	txn, err := database.NewTransaction(false)
	require.NoError(t, err)
	result, err := genesis.Block(cfg, factory, state.NewLatest(txn))
	require.NoError(t, txn.Discard())
	require.NoError(t, err)

	block := result.Block
	assert.Equal(t, uint64(0), block.Number)
	assert.Equal(t, f(0x99), block.SequencerAddress)
	assert.Len(t, block.Receipts, len(block.Transactions))
	for _, tx := range block.Transactions {
		hash, err := core.TransactionHash(tx, cfg.ChainID.Felt())
		require.NoError(t, err)
		assert.Equal(t, hash, tx.Hash())
	}

	chain := blockchain.New(database, cfg.ChainID)
	require.NoError(t, chain.VerifyChainID())
	_, err = chain.Finalise(block, result.StateDiff, result.Classes, result.Traces)
	require.NoError(t, err)

	head, closer, err := chain.HeadState()
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, closer()) })

	accounts, err := cfg.AllAccounts()
	require.NoError(t, err)
	require.Len(t, accounts, 3)

	exec := factory.NewExecutor(head, cfg.Env(), vm.SimulationFlags{})
	balanceOf := func(token, owner *felt.Felt) *felt.Felt {
		res, err := exec.Call(&vm.CallInfo{
			ContractAddress: token,
			Selector:        crypto.Selector("balanceOf"),
			Calldata:        []*felt.Felt{owner},
		})
		require.NoError(t, err)
		return res[0]
	}

	assert.Equal(t, f(0x10), balanceOf(genesis.ETHAddress, f(0x1234)))
	assert.Equal(t, f(0x10), balanceOf(genesis.STRKAddress, f(0x1234)))
	assert.Equal(t, f(0x20), balanceOf(genesis.ETHAddress, f(0x777)))
	for _, acc := range accounts[1:] {
		assert.Equal(t, f(0x1000), balanceOf(genesis.ETHAddress, acc.Address))
		assert.Equal(t, f(0x1000), balanceOf(genesis.STRKAddress, acc.Address))

		nonce, err := head.ContractNonce(acc.Address)
		require.NoError(t, err)
		assert.True(t, nonce.IsZero())
	}
	assert.True(t, balanceOf(genesis.ETHAddress, genesis.MinterAddress()).IsZero())

	stored, err := head.ContractStorage(f(0x1234), f(1))
	require.NoError(t, err)
	assert.Equal(t, f(2), stored)

	classHash, err := head.ContractClassHash(genesis.UDCAddress)
	require.NoError(t, err)
	assert.Equal(t, native.UDCClassHash, classHash)

	pub, err := exec.Call(&vm.CallInfo{
		ContractAddress: accounts[1].Address,
		Selector:        crypto.Selector("get_public_key"),
	})
	require.NoError(t, err)
	assert.Equal(t, []*felt.Felt{accounts[1].PublicKey}, pub)
}
