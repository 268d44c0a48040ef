package genesis

import (
	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/crypto"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

type DevAccount struct {
	Address    *felt.Felt
	PrivateKey *felt.Felt
	PublicKey  *felt.Felt
	ClassHash  *felt.Felt
	Balance    *felt.Felt
}

func (a *DevAccount) Account() Account {
	return Account{
		Address:    a.Address,
		PublicKey:  a.PublicKey,
		PrivateKey: a.PrivateKey,
		ClassHash:  a.ClassHash,
		Balance:    a.Balance,
	}
}

// DevAccounts derives n accounts from seed. Each private key is the keccak of the previous one,
// starting from the seed bytes, with the top bits cleared so the key stays below 2^251.
func DevAccounts(seed string, n int, classHash, balance *felt.Felt) ([]DevAccount, error) {
	var state [32]byte
	copy(state[:], seed)

	accounts := make([]DevAccount, 0, n)
	for len(accounts) < n {
		state = [32]byte(ethcrypto.Keccak256(state[:]))
		state[0] %= 0x8

		priv := new(felt.Felt).SetBytes(state[:])
		if priv.IsZero() {
			continue
		}
		pub, err := crypto.PublicKey(priv)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, DevAccount{
			Address:    AccountAddress(classHash, new(felt.Felt), pub),
			PrivateKey: priv,
			PublicKey:  pub,
			ClassHash:  classHash,
			Balance:    balance,
		})
	}
	return accounts, nil
}

// AccountAddress is the address an account with pub is deployed at from the zero address.
func AccountAddress(classHash, salt, pub *felt.Felt) *felt.Felt {
	return core.ContractAddress(new(felt.Felt), classHash, salt, []*felt.Felt{pub})
}
