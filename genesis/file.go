package genesis

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/utils"
	"gopkg.in/yaml.v3"
)

type fileGasPrices struct {
	ETH  *felt.Felt `json:"eth"`
	STRK *felt.Felt `json:"strk"`
}

type fileFeeToken struct {
	Name     string     `json:"name"`
	Symbol   string     `json:"symbol"`
	Decimals *uint8     `json:"decimals"`
	Address  *felt.Felt `json:"address"`
}

type fileAllocation struct {
	PublicKey           *felt.Felt            `json:"publicKey"`
	PrivateKey          *felt.Felt            `json:"privateKey"`
	Class               *felt.Felt            `json:"class"`
	Salt                *felt.Felt            `json:"salt"`
	Balance             *felt.Felt            `json:"balance"`
	ConstructorCalldata []*felt.Felt          `json:"constructorCalldata"`
	Storage             map[string]*felt.Felt `json:"storage"`
}

type fileUDC struct {
	Address *felt.Felt `json:"address"`
}

type file struct {
	Number            uint64                    `json:"number"`
	ParentHash        *felt.Felt                `json:"parentHash"`
	Timestamp         uint64                    `json:"timestamp"`
	SequencerAddress  *felt.Felt                `json:"sequencerAddress"`
	GasPrices         *fileGasPrices            `json:"gasPrices"`
	DataGasPrices     *fileGasPrices            `json:"dataGasPrices"`
	FeeTokens         map[string]fileFeeToken   `json:"feeTokens"`
	UniversalDeployer *fileUDC                  `json:"universalDeployer"`
	Accounts          map[string]fileAllocation `json:"accounts"`
	Contracts         map[string]fileAllocation `json:"contracts"`
	Seed              *string                   `json:"seed"`
	AccountsCount     *int                      `json:"accountsCount"`
	Balance           *felt.Felt                `json:"balance"`
}

// Load reads a genesis file in JSON or YAML, chosen by extension. Fields the file leaves out
// keep the values of Default.
func Load(path string, chainID utils.ChainID) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		// Felts only know how to decode from JSON.
		var doc any
		if err = yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode genesis %s: %w", path, err)
		}
		if data, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("decode genesis %s: %w", path, err)
		}
	}
	return Parse(data, chainID)
}

// Parse decodes a JSON genesis document.
func Parse(data []byte, chainID utils.ChainID) (*Config, error) {
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}

	cfg := Default(chainID)
	cfg.Number = f.Number
	cfg.Timestamp = f.Timestamp
	if f.ParentHash != nil {
		cfg.ParentHash = f.ParentHash
	}
	if f.SequencerAddress != nil {
		cfg.SequencerAddress = f.SequencerAddress
	}
	f.GasPrices.apply(&cfg.GasPrices.PriceInWei, &cfg.GasPrices.PriceInFri)
	f.DataGasPrices.apply(&cfg.DataGasPrices.PriceInWei, &cfg.DataGasPrices.PriceInFri)

	for symbol, token := range f.FeeTokens {
		var dst *FeeToken
		switch strings.ToUpper(symbol) {
		case "ETH":
			dst = &cfg.ETH
		case "STRK":
			dst = &cfg.STRK
		default:
			return nil, fmt.Errorf("unknown fee token %q, expected ETH or STRK", symbol)
		}
		token.apply(dst)
	}
	if f.UniversalDeployer != nil && f.UniversalDeployer.Address != nil {
		cfg.UniversalDeployer = f.UniversalDeployer.Address
	}
	if f.Seed != nil {
		cfg.Seed = *f.Seed
	}
	if f.AccountsCount != nil {
		cfg.AccountsCount = *f.AccountsCount
	}
	if f.Balance != nil {
		cfg.Balance = f.Balance
	}

	for _, addr := range sortedKeys(f.Accounts) {
		alloc := f.Accounts[addr]
		if alloc.PublicKey == nil {
			return nil, fmt.Errorf("account %s: missing public key", addr)
		}
		address, storage, err := alloc.decode(addr)
		if err != nil {
			return nil, err
		}
		cfg.Accounts = append(cfg.Accounts, Account{
			Address:    address,
			PublicKey:  alloc.PublicKey,
			PrivateKey: alloc.PrivateKey,
			ClassHash:  alloc.Class,
			Salt:       alloc.Salt,
			Balance:    alloc.Balance,
			Storage:    storage,
		})
	}
	for _, addr := range sortedKeys(f.Contracts) {
		alloc := f.Contracts[addr]
		if alloc.Class == nil {
			return nil, fmt.Errorf("contract %s: missing class", addr)
		}
		address, storage, err := alloc.decode(addr)
		if err != nil {
			return nil, err
		}
		cfg.Contracts = append(cfg.Contracts, Contract{
			Address:             address,
			ClassHash:           alloc.Class,
			ConstructorCalldata: alloc.ConstructorCalldata,
			Balance:             alloc.Balance,
			Storage:             storage,
		})
	}
	return cfg, nil
}

func (p *fileGasPrices) apply(wei, fri **felt.Felt) {
	if p == nil {
		return
	}
	if p.ETH != nil {
		*wei = p.ETH
	}
	if p.STRK != nil {
		*fri = p.STRK
	}
}

func (t fileFeeToken) apply(dst *FeeToken) {
	if t.Name != "" {
		dst.Name = t.Name
	}
	if t.Symbol != "" {
		dst.Symbol = t.Symbol
	}
	if t.Decimals != nil {
		dst.Decimals = *t.Decimals
	}
	if t.Address != nil {
		dst.Address = t.Address
	}
}

func (a fileAllocation) decode(addr string) (*felt.Felt, map[felt.Felt]*felt.Felt, error) {
	address, err := new(felt.Felt).SetString(addr)
	if err != nil {
		return nil, nil, fmt.Errorf("allocation address %q: %w", addr, err)
	}
	var storage map[felt.Felt]*felt.Felt
	if len(a.Storage) > 0 {
		storage = make(map[felt.Felt]*felt.Felt, len(a.Storage))
		for k, v := range a.Storage {
			key, err := new(felt.Felt).SetString(k)
			if err != nil {
				return nil, nil, fmt.Errorf("allocation %s: storage key %q: %w", addr, k, err)
			}
			storage[*key] = v
		}
	}
	return address, storage, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
