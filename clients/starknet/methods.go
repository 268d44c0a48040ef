package starknet

import (
	"context"
	"errors"
	"fmt"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/state"
)

var _ state.RemoteProvider = (*Client)(nil)

func (c *Client) ChainID(ctx context.Context) (*felt.Felt, error) {
	id := new(felt.Felt)
	if err := c.call(ctx, id, "starknet_chainId"); err != nil {
		return nil, err
	}
	return id, nil
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var number uint64
	err := c.call(ctx, &number, "starknet_blockNumber")
	return number, err
}

// BlockHeader reads the header of a sealed block.
func (c *Client) BlockHeader(ctx context.Context, id BlockID) (*core.Header, error) {
	var header blockHeader
	if err := c.call(ctx, &header, "starknet_getBlockWithTxHashes", id); err != nil {
		return nil, err
	}
	if header.Hash == nil {
		return nil, fmt.Errorf("%w: pending block has no header", ErrBlockNotFound)
	}
	return header.core(), nil
}

// felt reads a felt that is zero for contracts the chain does not know.
func (c *Client) felt(ctx context.Context, method string, args ...any) (*felt.Felt, error) {
	v := new(felt.Felt)
	err := c.call(ctx, v, method, args...)
	if errors.Is(err, ErrContractNotFound) {
		return new(felt.Felt), nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (c *Client) Nonce(ctx context.Context, block uint64, addr *felt.Felt) (*felt.Felt, error) {
	return c.felt(ctx, "starknet_getNonce", BlockByNumber(block), addr)
}

// PendingNonce is the nonce the next transaction of addr must carry.
func (c *Client) PendingNonce(ctx context.Context, addr *felt.Felt) (*felt.Felt, error) {
	return c.felt(ctx, "starknet_getNonce", PendingBlock(), addr)
}

func (c *Client) ClassHashAt(ctx context.Context, block uint64, addr *felt.Felt) (*felt.Felt, error) {
	return c.felt(ctx, "starknet_getClassHashAt", BlockByNumber(block), addr)
}

func (c *Client) StorageAt(ctx context.Context, block uint64, addr, key *felt.Felt) (*felt.Felt, error) {
	return c.felt(ctx, "starknet_getStorageAt", addr, key, BlockByNumber(block))
}

func (c *Client) Class(ctx context.Context, block uint64, classHash *felt.Felt) (core.Class, error) {
	var class contractClass
	err := c.call(ctx, &class, "starknet_getClass", BlockByNumber(block), classHash)
	if errors.Is(err, ErrClassNotFound) {
		return nil, state.ErrRemoteClassNotFound
	}
	if err != nil {
		return nil, err
	}
	return class.core()
}

func (c *Client) Events(ctx context.Context, filter EventFilter) (*EventsChunk, error) {
	chunk := new(EventsChunk)
	if err := c.call(ctx, chunk, "starknet_getEvents", filter); err != nil {
		return nil, err
	}
	return chunk, nil
}

// AddInvokeTransaction submits a signed v1 invoke.
func (c *Client) AddInvokeTransaction(ctx context.Context, tx *core.InvokeTransaction) (*felt.Felt, error) {
	if !tx.Version.Is(1) {
		return nil, fmt.Errorf("only v1 invokes can be submitted, got %s", tx.Version.AsFelt())
	}
	req := invokeV1{
		Type:          "INVOKE",
		SenderAddress: tx.SenderAddress,
		Calldata:      tx.CallData,
		MaxFee:        tx.MaxFee,
		Version:       "0x1",
		Signature:     tx.TransactionSignature,
		Nonce:         tx.Nonce,
	}
	var res struct {
		TransactionHash *felt.Felt `json:"transaction_hash"`
	}
	if err := c.call(ctx, &res, "starknet_addInvokeTransaction", req); err != nil {
		return nil, err
	}
	return res.TransactionHash, nil
}
