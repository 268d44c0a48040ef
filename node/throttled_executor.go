package node

import (
	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/state"
	"github.com/NethermindEth/katana/utils"
	"github.com/NethermindEth/katana/vm"
)

var _ vm.ExecutorFactory = (*ThrottledFactory)(nil)

// ThrottledFactory bounds how many executions the rpc handlers run at once. Block production
// uses the unthrottled factory.
type ThrottledFactory struct {
	vm.ExecutorFactory
	throttler *utils.Throttler[struct{}]
}

func NewThrottledFactory(factory vm.ExecutorFactory, concurrencyBudget uint, maxQueueLen int32) *ThrottledFactory {
	return &ThrottledFactory{
		ExecutorFactory: factory,
		throttler:       utils.NewThrottler(concurrencyBudget, &struct{}{}).WithMaxQueueLen(maxQueueLen),
	}
}

func (f *ThrottledFactory) NewExecutor(base state.Reader, env *core.BlockEnv, flags vm.SimulationFlags) vm.Executor {
	return &throttledExecutor{
		Executor:  f.ExecutorFactory.NewExecutor(base, env, flags),
		throttler: f.throttler,
	}
}

func (f *ThrottledFactory) JobsRunning() int {
	return f.throttler.JobsRunning()
}

func (f *ThrottledFactory) QueueLen() int {
	return f.throttler.QueueLen()
}

type throttledExecutor struct {
	vm.Executor
	throttler *utils.Throttler[struct{}]
}

func (e *throttledExecutor) Simulate(txs []core.BroadcastedTransaction) []vm.ExecutionResult {
	var results []vm.ExecutionResult
	if err := e.throttler.Do(func(*struct{}) error {
		results = e.Executor.Simulate(txs)
		return nil
	}); err != nil {
		results = make([]vm.ExecutionResult, len(txs))
		for i := range results {
			results[i].Err = err
		}
	}
	return results
}

func (e *throttledExecutor) EstimateFee(txs []core.BroadcastedTransaction) ([]vm.FeeEstimate, error) {
	var estimates []vm.FeeEstimate
	err := e.throttler.Do(func(*struct{}) error {
		var err error
		estimates, err = e.Executor.EstimateFee(txs)
		return err
	})
	return estimates, err
}

func (e *throttledExecutor) Call(call *vm.CallInfo) ([]*felt.Felt, error) {
	var ret []*felt.Felt
	err := e.throttler.Do(func(*struct{}) error {
		var err error
		ret, err = e.Executor.Call(call)
		return err
	})
	return ret, err
}
