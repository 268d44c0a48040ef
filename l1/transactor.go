package l1

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Transactor sends signed calls to one settlement chain contract.
type Transactor struct {
	client   *Client
	contract *bind.BoundContract
	key      *ecdsa.PrivateKey
	from     common.Address
}

// NewTransactor binds address with the given ABI. privateKey is a hex secp256k1 key with or
// without the 0x prefix.
func NewTransactor(client *Client, address common.Address, contractABI, privateKey string) (*Transactor, error) {
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	backend := client.Backend()
	return &Transactor{
		client:   client,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func (t *Transactor) From() common.Address {
	return t.from
}

// Transact signs and sends a call to method. Gas and fees are estimated by the backend.
func (t *Transactor) Transact(ctx context.Context, method string, args ...any) (*types.Transaction, error) {
	chainID, err := t.client.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	opts, err := bind.NewKeyedTransactorWithChainID(t.key, chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx

	tx, err := t.contract.Transact(opts, method, args...)
	if err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}
	return tx, nil
}

// WaitMined blocks until tx is included and fails when it reverted.
func (t *Transactor) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, t.client.DeployBackend(), tx)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("transaction %s reverted", tx.Hash())
	}
	return receipt, nil
}
