package messaging

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainStarknet Chain = "starknet"
)

// DefaultMaxBlocks bounds the settlement blocks scanned per gather, larger windows get rejected
// by some providers.
const DefaultMaxBlocks = 200

// Config describes the settlement chain messages are exchanged with.
type Config struct {
	Chain           Chain  `mapstructure:"chain"`
	RPCURL          string `mapstructure:"rpc_url"`
	ContractAddress string `mapstructure:"contract_address"`
	SenderAddress   string `mapstructure:"sender_address"`
	PrivateKey      string `mapstructure:"private_key"`
	// Seconds between two gather and send rounds.
	Interval  uint64 `mapstructure:"interval"`
	FromBlock uint64 `mapstructure:"from_block"`
	// Max fee of the invokes sent to a Starknet settlement chain. Defaults to DefaultMaxFee.
	MaxFee string `mapstructure:"max_fee"`
}

// LoadConfig reads a messaging config file. The format follows the extension: json, toml or yaml.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("interval", 2)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read messaging config: %w", err)
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode messaging config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return errors.New("messaging rpc_url is required")
	}
	if c.Interval == 0 {
		return errors.New("messaging interval must be positive")
	}

	switch c.Chain {
	case ChainEthereum:
		if !common.IsHexAddress(c.ContractAddress) {
			return fmt.Errorf("invalid messaging contract address %q", c.ContractAddress)
		}
	case ChainStarknet:
		for name, value := range map[string]string{
			"contract_address": c.ContractAddress,
			"sender_address":   c.SenderAddress,
			"private_key":      c.PrivateKey,
		} {
			if _, err := new(felt.Felt).SetString(value); err != nil {
				return fmt.Errorf("invalid messaging %s: %w", name, err)
			}
		}
		if c.MaxFee != "" {
			if _, err := new(felt.Felt).SetString(c.MaxFee); err != nil {
				return fmt.Errorf("invalid messaging max_fee: %w", err)
			}
		}
	default:
		return fmt.Errorf("unknown settlement chain %q, expected %q or %q", c.Chain, ChainEthereum, ChainStarknet)
	}
	return nil
}
