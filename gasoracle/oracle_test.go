package gasoracle_test

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/gasoracle"
	"github.com/NethermindEth/katana/l1"
	"github.com/NethermindEth/katana/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gwei = 1_000_000_000

func price(wei, fri uint64) *core.GasPrice {
	return &core.GasPrice{PriceInWei: new(felt.Felt).SetUint64(wei), PriceInFri: new(felt.Felt).SetUint64(fri)}
}

func TestFixed(t *testing.T) {
	oracle := gasoracle.NewFixed(price(1, 2), price(3, 4))
	assert.Equal(t, price(1, 2), oracle.GasPrices())
	assert.Equal(t, price(3, 4), oracle.DataGasPrices())

	// Callers get copies.
	oracle.GasPrices().PriceInWei.SetUint64(100)
	assert.Equal(t, price(1, 2), oracle.GasPrices())
}

func TestSampledConvergence(t *testing.T) {
	oracle := gasoracle.NewSampled(nil, utils.NewNopZapLogger())
	for range 60 {
		oracle.Push(big.NewInt(100*gwei), big.NewInt(100*gwei))
	}

	assert.Equal(t, price(101*gwei, 101*gwei), oracle.GasPrices())
	assert.Equal(t, price(100*gwei, 100*gwei), oracle.DataGasPrices())
}

func TestSampledWindow(t *testing.T) {
	oracle := gasoracle.NewSampled(nil, utils.NewNopZapLogger())
	for i := range int64(75) {
		oracle.Push(big.NewInt(i), big.NewInt(2*i))
	}

	baseFees, blobFees := oracle.Samples()
	require.Len(t, baseFees, 60)
	require.Len(t, blobFees, 60)
	for i, fee := range baseFees {
		assert.Equal(t, int64(15+i), fee.Int64())
		assert.Equal(t, int64(2*(15+i)), blobFees[i].Int64())
	}

	// avg(15..74) = 44, avg(30..148) = 89
	assert.Equal(t, price(44+gwei, 44+gwei), oracle.GasPrices())
	assert.Equal(t, price(89, 89), oracle.DataGasPrices())
}

func TestSampledStrkRate(t *testing.T) {
	var published atomic.Int32
	oracle := gasoracle.NewSampled(nil, utils.NewNopZapLogger(),
		gasoracle.WithStrkRate(3),
		gasoracle.WithListener(gasoracle.SelectiveListener{OnPricesCb: func(_, _ *core.GasPrice) {
			published.Add(1)
		}}))

	assert.Equal(t, gasoracle.DefaultGasPrice, oracle.GasPrices())

	oracle.Push(big.NewInt(10), big.NewInt(5))
	assert.Equal(t, price(10+gwei, 3*(10+gwei)), oracle.GasPrices())
	assert.Equal(t, price(5, 15), oracle.DataGasPrices())
	assert.Equal(t, int32(1), published.Load())
}

type fakeSource struct {
	calls atomic.Int32
	fail  bool
}

func (s *fakeSource) FeeHistory(context.Context) (*l1.FeeSample, error) {
	n := s.calls.Add(1)
	if s.fail {
		return nil, errors.New("unreachable")
	}
	return &l1.FeeSample{Block: uint64(n), BaseFee: big.NewInt(gwei), BlobBaseFee: big.NewInt(7)}, nil
}

func TestSampledRun(t *testing.T) {
	t.Run("samples on ticks", func(t *testing.T) {
		source := &fakeSource{}
		oracle := gasoracle.NewSampled(source, utils.NewNopZapLogger(), gasoracle.WithInterval(time.Millisecond))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error)
		go func() { done <- oracle.Run(ctx) }()

		require.Eventually(t, func() bool { return source.calls.Load() >= 3 }, time.Second, time.Millisecond)
		cancel()
		require.NoError(t, <-done)

		assert.Equal(t, price(2*gwei, 2*gwei), oracle.GasPrices())
		assert.Equal(t, price(7, 7), oracle.DataGasPrices())
	})

	t.Run("failures keep the last prices", func(t *testing.T) {
		source := &fakeSource{fail: true}
		oracle := gasoracle.NewSampled(source, utils.NewNopZapLogger(), gasoracle.WithInterval(time.Millisecond))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error)
		go func() { done <- oracle.Run(ctx) }()

		require.Eventually(t, func() bool { return source.calls.Load() >= 2 }, time.Second, time.Millisecond)
		cancel()
		require.NoError(t, <-done)
		assert.Equal(t, gasoracle.DefaultGasPrice, oracle.GasPrices())
	})
}
