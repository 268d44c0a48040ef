// Package genesis describes the initial state of a Katana chain and builds block 0 from it.
package genesis

import (
	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/utils"
	"github.com/NethermindEth/katana/vm/native"
)

var (
	ETHAddress  = utils.MustHexToFelt("0x049d36570d4e46f48e99674bd3fcc84644ddd6b96f7c741b1562b82f9e004dc7")
	STRKAddress = utils.MustHexToFelt("0x04718f5a0fc34cc1af16a1cdee98ffb20c31f5cd61d6ab07201858f4287c938d")
	UDCAddress  = utils.MustHexToFelt("0x041a78e741e5af2fec34b695679bc6891742439f7afb8484ecd7766661ad02bf")

	DefaultSequencerAddress = utils.MustHexToFelt("0x1")
	// 10000 ETH
	DefaultAccountBalance = utils.MustHexToFelt("0x21e19e0c9bab2400000")
)

const (
	DefaultSeed          = "0"
	DefaultAccountsCount = 10
)

type FeeToken struct {
	Name     string
	Symbol   string
	Decimals uint8
	Address  *felt.Felt
}

// Class is a class declared at genesis on top of the built-in ones.
type Class struct {
	ClassHash         *felt.Felt
	CompiledClassHash *felt.Felt
	Class             core.Class
}

// Account is an account contract deployed and funded at genesis. Its address is derived from the
// public key unless given.
type Account struct {
	Address    *felt.Felt
	PublicKey  *felt.Felt
	PrivateKey *felt.Felt
	ClassHash  *felt.Felt
	Salt       *felt.Felt
	Balance    *felt.Felt
	Storage    map[felt.Felt]*felt.Felt
}

func (a *Account) fillDefaults() {
	if a.ClassHash == nil {
		a.ClassHash = native.AccountClassHash
	}
	if a.Salt == nil {
		a.Salt = new(felt.Felt)
	}
	if a.Address == nil {
		a.Address = AccountAddress(a.ClassHash, a.Salt, a.PublicKey)
	}
}

// Contract is a non-account contract deployed at a fixed address at genesis.
type Contract struct {
	Address             *felt.Felt
	ClassHash           *felt.Felt
	ConstructorCalldata []*felt.Felt
	Balance             *felt.Felt
	Storage             map[felt.Felt]*felt.Felt
}

type Config struct {
	ChainID    utils.ChainID
	ParentHash *felt.Felt
	// Root of the forked chain's state. Block 0 of a forked chain carries it instead of the root
	// of its own state.
	StateRoot         *felt.Felt
	Number            uint64
	Timestamp         uint64
	SequencerAddress  *felt.Felt
	GasPrices         core.GasPrice
	DataGasPrices     core.GasPrice
	ETH               FeeToken
	STRK              FeeToken
	UniversalDeployer *felt.Felt
	Classes           []Class
	Accounts          []Account
	Contracts         []Contract

	// Dev accounts derived from Seed. AllAccounts appends them to Accounts.
	Seed          string
	AccountsCount int
	Balance       *felt.Felt
}

// Default is the genesis of a fresh Katana chain: the fee tokens, the UDC and ten dev accounts.
func Default(chainID utils.ChainID) *Config {
	cfg := &Config{
		ChainID:          chainID,
		ParentHash:       new(felt.Felt),
		SequencerAddress: DefaultSequencerAddress,
		GasPrices: core.GasPrice{
			PriceInWei: new(felt.Felt).SetUint64(20_000_000_000),
			PriceInFri: new(felt.Felt).SetUint64(20_000_000_000),
		},
		DataGasPrices: core.GasPrice{
			PriceInWei: new(felt.Felt).SetUint64(1_000_000),
			PriceInFri: new(felt.Felt).SetUint64(1_000_000),
		},
		ETH:               FeeToken{Name: "Ether", Symbol: "ETH", Decimals: 18, Address: ETHAddress},
		STRK:              FeeToken{Name: "Starknet Token", Symbol: "STRK", Decimals: 18, Address: STRKAddress},
		UniversalDeployer: UDCAddress,
		Seed:              DefaultSeed,
		AccountsCount:     DefaultAccountsCount,
		Balance:           DefaultAccountBalance,
	}
	return cfg
}

// DevAccounts derives the dev accounts of cfg. The result depends only on the seed, the count,
// the balance and the account class.
func (c *Config) DevAccounts() ([]DevAccount, error) {
	return DevAccounts(c.Seed, c.AccountsCount, native.AccountClassHash, c.Balance)
}

// AllAccounts is Accounts followed by the dev accounts.
func (c *Config) AllAccounts() ([]Account, error) {
	dev, err := c.DevAccounts()
	if err != nil {
		return nil, err
	}
	accounts := make([]Account, 0, len(c.Accounts)+len(dev))
	accounts = append(accounts, c.Accounts...)
	for _, acc := range dev {
		accounts = append(accounts, acc.Account())
	}
	return accounts, nil
}
