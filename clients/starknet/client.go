// Package starknet is a client of the Starknet JSON-RPC API. It backs the forked state view, the
// forked genesis and the Starknet messenger.
package starknet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NethermindEth/katana/utils"
	"github.com/ethereum/go-ethereum/rpc"
)

// Starknet JSON-RPC error codes the client gives a meaning to.
const (
	codeContractNotFound  = 20
	codeBlockNotFound     = 24
	codeClassHashNotFound = 28
)

var (
	ErrBlockNotFound    = errors.New("block not found")
	ErrContractNotFound = errors.New("contract not found")
	ErrClassNotFound    = errors.New("class hash not found")
)

type Backoff func(wait time.Duration) time.Duration

func ExponentialBackoff(wait time.Duration) time.Duration {
	return wait * 2
}

type Client struct {
	rpc        *rpc.Client
	log        utils.SimpleLogger
	listener   EventListener
	backoff    Backoff
	maxRetries int
	minWait    time.Duration
	maxWait    time.Duration
}

func Dial(ctx context.Context, url string) (*Client, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial starknet node: %w", err)
	}
	return NewClient(client), nil
}

func NewClient(client *rpc.Client) *Client {
	return &Client{
		rpc:        client,
		log:        utils.NewNopZapLogger(),
		listener:   SelectiveListener{},
		backoff:    ExponentialBackoff,
		maxRetries: 5,
		minWait:    250 * time.Millisecond,
		maxWait:    4 * time.Second,
	}
}

func (c *Client) WithLogger(log utils.SimpleLogger) *Client {
	c.log = log
	return c
}

func (c *Client) WithListener(l EventListener) *Client {
	c.listener = l
	return c
}

func (c *Client) WithMaxRetries(n int) *Client {
	c.maxRetries = n
	return c
}

func (c *Client) WithBackoff(b Backoff, minWait, maxWait time.Duration) *Client {
	c.backoff, c.minWait, c.maxWait = b, minWait, maxWait
	return c
}

func (c *Client) Close() {
	c.rpc.Close()
}

// call retries transport failures. Errors returned by the node itself are final and mapped to
// the client's sentinel errors where one exists.
func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	var (
		err  error
		wait time.Duration
	)
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		start := time.Now()
		err = c.rpc.CallContext(ctx, result, method, args...)
		c.listener.OnRequest(method, time.Since(start), err)

		var rpcErr rpc.Error
		if err == nil || errors.As(err, &rpcErr) {
			return nodeError(err)
		}

		if wait < c.minWait {
			wait = c.minWait
		} else {
			wait = min(c.backoff(wait), c.maxWait)
		}
		c.log.Debugw("Starknet request failed, retrying", "method", method, "retryAfter", wait, "err", err)
	}
	return fmt.Errorf("%s: %w", method, err)
}

func nodeError(err error) error {
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return err
	}
	switch rpcErr.ErrorCode() {
	case codeContractNotFound:
		return ErrContractNotFound
	case codeBlockNotFound:
		return ErrBlockNotFound
	case codeClassHashNotFound:
		return ErrClassNotFound
	}
	return err
}
