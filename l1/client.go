// Package l1 is the JSON-RPC client of the settlement chain. The gas oracle samples fees with it
// and the Ethereum messenger reads and writes messages through it.
package l1

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

var ErrEmptyFeeHistory = errors.New("empty fee history")

// FeeSample is the fees of the latest settlement block. BlobBaseFee is zero before Cancun.
type FeeSample struct {
	Block       uint64
	BaseFee     *big.Int
	BlobBaseFee *big.Int
}

type Client struct {
	rpc      *rpc.Client
	eth      *ethclient.Client
	listener EventListener
}

// Dial connects to url, which may be an http, websocket or ipc endpoint.
func Dial(ctx context.Context, url string) (*Client, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial settlement chain: %w", err)
	}
	return NewClient(client), nil
}

func NewClient(client *rpc.Client) *Client {
	return &Client{
		rpc:      client,
		eth:      ethclient.NewClient(client),
		listener: SelectiveListener{},
	}
}

func (c *Client) WithListener(l EventListener) *Client {
	c.listener = l
	return c
}

func (c *Client) observe(method string, start time.Time) {
	c.listener.OnCall(method, time.Since(start))
}

type feeHistory struct {
	OldestBlock  hexutil.Uint64 `json:"oldestBlock"`
	BaseFee      []*hexutil.Big `json:"baseFeePerGas"`
	BlobBaseFee  []*hexutil.Big `json:"baseFeePerBlobGas"`
	GasUsedRatio []float64      `json:"gasUsedRatio"`
}

// FeeHistory calls eth_feeHistory for the latest block and returns its base fees. The response
// has one entry more than requested, the fee of the next block, which is the one used.
func (c *Client) FeeHistory(ctx context.Context) (*FeeSample, error) {
	defer c.observe("eth_feeHistory", time.Now())

	var history feeHistory
	if err := c.rpc.CallContext(ctx, &history, "eth_feeHistory", hexutil.Uint64(1), "latest", []float64{}); err != nil {
		return nil, fmt.Errorf("eth_feeHistory: %w", err)
	}
	if len(history.BaseFee) == 0 {
		return nil, ErrEmptyFeeHistory
	}

	sample := &FeeSample{
		Block:       uint64(history.OldestBlock),
		BaseFee:     history.BaseFee[len(history.BaseFee)-1].ToInt(),
		BlobBaseFee: new(big.Int),
	}
	if n := len(history.BlobBaseFee); n > 0 {
		sample.BlobBaseFee = history.BlobBaseFee[n-1].ToInt()
	}
	return sample, nil
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	defer c.observe("eth_blockNumber", time.Now())
	return c.eth.BlockNumber(ctx)
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	defer c.observe("eth_chainId", time.Now())
	return c.eth.ChainID(ctx)
}

func (c *Client) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	defer c.observe("eth_getLogs", time.Now())
	return c.eth.FilterLogs(ctx, query)
}

// Backend is the contract backend transactions are signed and sent through.
func (c *Client) Backend() bind.ContractBackend {
	return c.eth
}

func (c *Client) DeployBackend() bind.DeployBackend {
	return c.eth
}

func (c *Client) Close() {
	c.rpc.Close()
}
