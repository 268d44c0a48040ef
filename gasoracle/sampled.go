package gasoracle

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/l1"
	"github.com/NethermindEth/katana/service"
	"github.com/NethermindEth/katana/utils"
)

const (
	bufferSize      = 60
	defaultInterval = time.Minute
)

var gasPremium = big.NewInt(1_000_000_000)

// FeeSource is the settlement chain the oracle samples.
type FeeSource interface {
	FeeHistory(ctx context.Context) (*l1.FeeSample, error)
}

var (
	_ Oracle          = (*Sampled)(nil)
	_ service.Service = (*Sampled)(nil)
)

// Sampled follows the fees of the settlement chain. It averages the last 60 samples of the base
// fee and of the blob base fee; the gas price carries a 1 gwei premium over the average. Until
// the first sample it serves the prices it was created with.
type Sampled struct {
	source   FeeSource
	log      utils.SimpleLogger
	interval time.Duration
	// FRI per WEI.
	strkRate *big.Int
	listener EventListener

	mu        sync.RWMutex
	baseFees  *ring
	blobFees  *ring
	gasPrice  *core.GasPrice
	dataPrice *core.GasPrice
}

type Option func(*Sampled)

func WithInterval(d time.Duration) Option {
	return func(s *Sampled) { s.interval = d }
}

func WithStrkRate(rate uint64) Option {
	return func(s *Sampled) { s.strkRate = new(big.Int).SetUint64(rate) }
}

func WithListener(l EventListener) Option {
	return func(s *Sampled) { s.listener = l }
}

func NewSampled(source FeeSource, log utils.SimpleLogger, opts ...Option) *Sampled {
	s := &Sampled{
		source:    source,
		log:       log,
		interval:  defaultInterval,
		strkRate:  big.NewInt(1),
		listener:  SelectiveListener{},
		baseFees:  newRing(bufferSize),
		blobFees:  newRing(bufferSize),
		gasPrice:  DefaultGasPrice.Clone(),
		dataPrice: DefaultDataGasPrice.Clone(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sampled) GasPrices() *core.GasPrice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gasPrice.Clone()
}

func (s *Sampled) DataGasPrices() *core.GasPrice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dataPrice.Clone()
}

// Run samples right away and then on every tick. Failed samples are logged and retried on the
// next tick.
func (s *Sampled) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.sample(ctx); err != nil && ctx.Err() == nil {
			s.log.Warnw("Failed to sample settlement chain fees", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Sampled) sample(ctx context.Context) error {
	sample, err := s.source.FeeHistory(ctx)
	if err != nil {
		return err
	}
	s.Push(sample.BaseFee, sample.BlobBaseFee)
	s.log.Debugw("Sampled settlement chain fees", "block", sample.Block, "baseFee", sample.BaseFee,
		"blobBaseFee", sample.BlobBaseFee)
	return nil
}

// Push adds one sample to the buffers and publishes the new averages.
func (s *Sampled) Push(baseFee, blobBaseFee *big.Int) {
	s.mu.Lock()
	s.baseFees.push(baseFee)
	s.blobFees.push(blobBaseFee)

	gasWei := new(big.Int).Add(s.baseFees.average(), gasPremium)
	dataWei := s.blobFees.average()
	s.gasPrice = s.priced(gasWei)
	s.dataPrice = s.priced(dataWei)
	gas, data := s.gasPrice.Clone(), s.dataPrice.Clone()
	s.mu.Unlock()

	s.listener.OnPrices(gas, data)
}

func (s *Sampled) priced(wei *big.Int) *core.GasPrice {
	fri := new(big.Int).Mul(wei, s.strkRate)
	return &core.GasPrice{
		PriceInWei: new(felt.Felt).SetBytes(wei.Bytes()),
		PriceInFri: new(felt.Felt).SetBytes(fri.Bytes()),
	}
}

// Samples returns the buffered base fees, oldest first.
func (s *Sampled) Samples() (baseFees, blobBaseFees []*big.Int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baseFees.values(), s.blobFees.values()
}
