package l1_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/NethermindEth/katana/l1"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ethService struct {
	baseFees []*hexutil.Big
	blobFees []*hexutil.Big
}

type feeHistoryResult struct {
	OldestBlock hexutil.Uint64 `json:"oldestBlock"`
	BaseFee     []*hexutil.Big `json:"baseFeePerGas"`
	BlobBaseFee []*hexutil.Big `json:"baseFeePerBlobGas,omitempty"`
}

func (s *ethService) FeeHistory(count hexutil.Uint64, newest string, _ []float64) (*feeHistoryResult, error) {
	return &feeHistoryResult{OldestBlock: 100, BaseFee: s.baseFees, BlobBaseFee: s.blobFees}, nil
}

func (s *ethService) BlockNumber() hexutil.Uint64 {
	return 101
}

func hexBig(v int64) *hexutil.Big {
	return (*hexutil.Big)(new(big.Int).SetInt64(v))
}

func newClient(t *testing.T, service *ethService) *l1.Client {
	t.Helper()
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", service))
	t.Cleanup(server.Stop)
	client := l1.NewClient(rpc.DialInProc(server))
	t.Cleanup(client.Close)
	return client
}

func TestFeeHistory(t *testing.T) {
	t.Run("blob fees", func(t *testing.T) {
		var calls []string
		client := newClient(t, &ethService{
			baseFees: []*hexutil.Big{hexBig(10), hexBig(11)},
			blobFees: []*hexutil.Big{hexBig(1), hexBig(2)},
		}).WithListener(l1.SelectiveListener{OnCallCb: func(method string, _ time.Duration) {
			calls = append(calls, method)
		}})

		sample, err := client.FeeHistory(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint64(100), sample.Block)
		assert.Equal(t, int64(11), sample.BaseFee.Int64())
		assert.Equal(t, int64(2), sample.BlobBaseFee.Int64())
		assert.Equal(t, []string{"eth_feeHistory"}, calls)
	})

	t.Run("before blobs", func(t *testing.T) {
		client := newClient(t, &ethService{baseFees: []*hexutil.Big{hexBig(10), hexBig(11)}})
		sample, err := client.FeeHistory(context.Background())
		require.NoError(t, err)
		assert.Zero(t, sample.BlobBaseFee.Sign())
	})

	t.Run("empty", func(t *testing.T) {
		client := newClient(t, &ethService{})
		_, err := client.FeeHistory(context.Background())
		require.ErrorIs(t, err, l1.ErrEmptyFeeHistory)
	})
}

func TestBlockNumber(t *testing.T) {
	client := newClient(t, &ethService{})
	number, err := client.BlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(101), number)
}
