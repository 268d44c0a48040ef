package starknet_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/clients/starknet"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/state"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nodeError struct {
	code int
	msg  string
}

func (e *nodeError) Error() string  { return e.msg }
func (e *nodeError) ErrorCode() int { return e.code }

var (
	errContractNotFound = &nodeError{20, "Contract not found"}
	errClassNotFound    = &nodeError{28, "Class hash not found"}
	errInternal         = &nodeError{-32603, "internal"}
)

type starknetService struct {
	blockIDs []json.RawMessage
	invoked  map[string]any
}

func (s *starknetService) ChainId() *felt.Felt {
	return new(felt.Felt).SetBytes([]byte("SN_SEPOLIA"))
}

func (s *starknetService) BlockNumber() uint64 {
	return 42
}

func (s *starknetService) GetBlockWithTxHashes(id json.RawMessage) (map[string]any, error) {
	s.blockIDs = append(s.blockIDs, id)
	if string(id) == `"pending"` {
		return map[string]any{"parent_hash": "0x1", "timestamp": 10}, nil
	}
	return map[string]any{
		"block_hash":        "0xabc",
		"parent_hash":       "0xab",
		"block_number":      42,
		"new_root":          "0x123",
		"timestamp":         1700000000,
		"sequencer_address": "0x1",
		"l1_gas_price":      map[string]string{"price_in_wei": "0x10", "price_in_fri": "0x20"},
		"l1_data_gas_price": map[string]string{"price_in_wei": "0x1", "price_in_fri": "0x2"},
		"l1_da_mode":        "BLOB",
		"starknet_version":  "0.13.1",
	}, nil
}

func (s *starknetService) GetNonce(id json.RawMessage, addr *felt.Felt) (*felt.Felt, error) {
	s.blockIDs = append(s.blockIDs, id)
	if addr.Equal(new(felt.Felt).SetUint64(1)) {
		return new(felt.Felt).SetUint64(7), nil
	}
	return nil, errContractNotFound
}

func (s *starknetService) GetClassHashAt(id json.RawMessage, addr *felt.Felt) (*felt.Felt, error) {
	if addr.Equal(new(felt.Felt).SetUint64(1)) {
		return new(felt.Felt).SetUint64(0xc1a55), nil
	}
	return nil, errContractNotFound
}

func (s *starknetService) GetStorageAt(addr, key *felt.Felt, id json.RawMessage) (*felt.Felt, error) {
	if addr.Equal(new(felt.Felt).SetUint64(1)) {
		return key, nil
	}
	return nil, errInternal
}

func (s *starknetService) GetClass(id json.RawMessage, classHash *felt.Felt) (json.RawMessage, error) {
	switch classHash.String() {
	case "0x1":
		return json.RawMessage(`{
			"sierra_program": ["0x1", "0x2"],
			"contract_class_version": "0.1.0",
			"entry_points_by_type": {
				"CONSTRUCTOR": [],
				"EXTERNAL": [{"selector": "0x5", "function_idx": 3}],
				"L1_HANDLER": []
			},
			"abi": "[]"
		}`), nil
	case "0x2":
		return json.RawMessage(`{
			"program": "H4sIAAAAAAAA",
			"entry_points_by_type": {
				"CONSTRUCTOR": [{"selector": "0x6", "offset": "0x10"}],
				"EXTERNAL": [],
				"L1_HANDLER": []
			},
			"abi": []
		}`), nil
	}
	return nil, errClassNotFound
}

func (s *starknetService) GetEvents(filter starknet.EventFilter) (*starknet.EventsChunk, error) {
	block := uint64(3)
	chunk := &starknet.EventsChunk{
		Events: []starknet.EmittedEvent{{
			From:        filter.Address,
			Keys:        []*felt.Felt{new(felt.Felt).SetUint64(1)},
			BlockNumber: &block,
		}},
	}
	if filter.ContinuationToken == "" {
		chunk.ContinuationToken = "next"
	}
	return chunk, nil
}

func (s *starknetService) AddInvokeTransaction(tx map[string]any) map[string]string {
	s.invoked = tx
	return map[string]string{"transaction_hash": "0xfeed"}
}

func newClient(t *testing.T, service *starknetService) *starknet.Client {
	t.Helper()
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("starknet", service))
	t.Cleanup(server.Stop)
	client := starknet.NewClient(rpc.DialInProc(server))
	t.Cleanup(client.Close)
	return client
}

func TestChainAndHeader(t *testing.T) {
	service := new(starknetService)
	client := newClient(t, service)
	ctx := context.Background()

	id, err := client.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, new(felt.Felt).SetBytes([]byte("SN_SEPOLIA")), id)

	number, err := client.BlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), number)

	header, err := client.BlockHeader(ctx, starknet.BlockByNumber(42))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), header.Number)
	assert.Equal(t, "0xabc", header.Hash.String())
	assert.Equal(t, "0x123", header.GlobalStateRoot.String())
	assert.Equal(t, "0x10", header.L1GasPrice.PriceInWei.String())
	assert.Equal(t, "0x2", header.L1DataGasPrice.PriceInFri.String())
	assert.Equal(t, core.Blob, header.L1DAMode)
	assert.Equal(t, "0.13.1", header.ProtocolVersion)
	assert.JSONEq(t, `{"block_number":42}`, string(service.blockIDs[0]))

	_, err = client.BlockHeader(ctx, starknet.PendingBlock())
	require.ErrorIs(t, err, starknet.ErrBlockNotFound)
}

func TestRemoteProvider(t *testing.T) {
	service := new(starknetService)
	client := newClient(t, service)
	ctx := context.Background()
	known := new(felt.Felt).SetUint64(1)
	unknown := new(felt.Felt).SetUint64(2)

	t.Run("nonce", func(t *testing.T) {
		nonce, err := client.Nonce(ctx, 5, known)
		require.NoError(t, err)
		assert.Equal(t, new(felt.Felt).SetUint64(7), nonce)

		nonce, err = client.Nonce(ctx, 5, unknown)
		require.NoError(t, err)
		assert.True(t, nonce.IsZero())

		_, err = client.PendingNonce(ctx, known)
		require.NoError(t, err)
		assert.Equal(t, `"pending"`, string(service.blockIDs[len(service.blockIDs)-1]))
	})

	t.Run("class hash", func(t *testing.T) {
		hash, err := client.ClassHashAt(ctx, 5, known)
		require.NoError(t, err)
		assert.Equal(t, new(felt.Felt).SetUint64(0xc1a55), hash)

		hash, err = client.ClassHashAt(ctx, 5, unknown)
		require.NoError(t, err)
		assert.True(t, hash.IsZero())
	})

	t.Run("storage", func(t *testing.T) {
		key := new(felt.Felt).SetUint64(99)
		value, err := client.StorageAt(ctx, 5, known, key)
		require.NoError(t, err)
		assert.Equal(t, key, value)

		_, err = client.StorageAt(ctx, 5, unknown, key)
		var rpcErr rpc.Error
		require.True(t, errors.As(err, &rpcErr))
		assert.Equal(t, -32603, rpcErr.ErrorCode())
	})

	t.Run("sierra class", func(t *testing.T) {
		class, err := client.Class(ctx, 5, new(felt.Felt).SetUint64(1))
		require.NoError(t, err)
		sierra, ok := class.(*core.Cairo1Class)
		require.True(t, ok)
		assert.Len(t, sierra.Program, 2)
		assert.Equal(t, "[]", sierra.Abi)
		assert.Equal(t, "0.1.0", sierra.SemanticVersion)
		require.Len(t, sierra.EntryPoints.External, 1)
		assert.Equal(t, uint64(3), sierra.EntryPoints.External[0].Index)
	})

	t.Run("cairo 0 class", func(t *testing.T) {
		class, err := client.Class(ctx, 5, new(felt.Felt).SetUint64(2))
		require.NoError(t, err)
		deprecated, ok := class.(*core.Cairo0Class)
		require.True(t, ok)
		require.Len(t, deprecated.Constructors, 1)
		assert.Equal(t, "0x10", deprecated.Constructors[0].Offset.String())
	})

	t.Run("unknown class", func(t *testing.T) {
		_, err := client.Class(ctx, 5, new(felt.Felt).SetUint64(3))
		require.ErrorIs(t, err, state.ErrRemoteClassNotFound)
	})
}

func TestEvents(t *testing.T) {
	client := newClient(t, new(starknetService))
	from := starknet.BlockByNumber(1)
	addr := new(felt.Felt).SetUint64(0x5)

	chunk, err := client.Events(context.Background(), starknet.EventFilter{FromBlock: &from, Address: addr, ChunkSize: 10})
	require.NoError(t, err)
	require.Len(t, chunk.Events, 1)
	assert.Equal(t, addr, chunk.Events[0].From)
	assert.Equal(t, "next", chunk.ContinuationToken)

	chunk, err = client.Events(context.Background(), starknet.EventFilter{
		FromBlock: &from, Address: addr, ChunkSize: 10, ContinuationToken: chunk.ContinuationToken,
	})
	require.NoError(t, err)
	assert.Empty(t, chunk.ContinuationToken)
}

func TestAddInvokeTransaction(t *testing.T) {
	service := new(starknetService)
	client := newClient(t, service)

	tx := &core.InvokeTransaction{
		SenderAddress:        new(felt.Felt).SetUint64(1),
		CallData:             []*felt.Felt{new(felt.Felt).SetUint64(2)},
		TransactionSignature: []*felt.Felt{},
		MaxFee:               new(felt.Felt).SetUint64(100),
		Nonce:                new(felt.Felt).SetUint64(3),
		Version:              core.NewTransactionVersion(1),
	}
	hash, err := client.AddInvokeTransaction(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, "0xfeed", hash.String())
	assert.Equal(t, "INVOKE", service.invoked["type"])
	assert.Equal(t, "0x1", service.invoked["version"])
	assert.Equal(t, "0x3", service.invoked["nonce"])

	tx.Version = core.NewTransactionVersion(3)
	_, err = client.AddInvokeTransaction(context.Background(), tx)
	require.Error(t, err)
}

func TestRetry(t *testing.T) {
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("starknet", new(starknetService)))
	t.Cleanup(server.Stop)

	var failures atomic.Int32
	failures.Store(2)
	httpServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failures.Add(-1) >= 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		server.ServeHTTP(w, r)
	}))
	t.Cleanup(httpServer.Close)

	rpcClient, err := rpc.DialHTTP(httpServer.URL)
	require.NoError(t, err)

	var requests int
	client := starknet.NewClient(rpcClient).
		WithBackoff(starknet.ExponentialBackoff, time.Millisecond, 2*time.Millisecond).
		WithListener(starknet.SelectiveListener{OnRequestCb: func(string, time.Duration, error) {
			requests++
		}})
	t.Cleanup(client.Close)

	number, err := client.BlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), number)
	assert.Equal(t, 3, requests)

	t.Run("gives up", func(t *testing.T) {
		failures.Store(100)
		_, err := client.WithMaxRetries(1).BlockNumber(context.Background())
		require.Error(t, err)
	})
}
