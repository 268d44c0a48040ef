package native

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/state"
	"github.com/NethermindEth/katana/utils"
	"github.com/NethermindEth/katana/vm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	executeSelector         = crypto.Selector("__execute__")
	validateSelector        = crypto.Selector("__validate__")
	validateDeclareSelector = crypto.Selector("__validate_declare__")
	validateDeploySelector  = crypto.Selector("__validate_deploy__")
	transferSelector        = crypto.Selector("transfer")

	zero = new(felt.Felt)
)

var _ vm.ExecutorFactory = (*Factory)(nil)

type Factory struct {
	cfg      *vm.ChainConfig
	registry *Registry
	log      utils.SimpleLogger
}

func NewFactory(cfg *vm.ChainConfig, registry *Registry, log utils.SimpleLogger) *Factory {
	return &Factory{cfg: cfg, registry: registry, log: log}
}

func (f *Factory) Config() *vm.ChainConfig {
	return f.cfg
}

func (f *Factory) NewExecutor(base state.Reader, env *core.BlockEnv, flags vm.SimulationFlags) vm.Executor {
	return &Executor{
		factory: f,
		env:     env,
		flags:   flags,
		pending: state.NewPending(base, env.Number),
	}
}

var _ vm.Executor = (*Executor)(nil)

// Executor is not safe for concurrent use.
type Executor struct {
	factory *Factory
	env     *core.BlockEnv
	flags   vm.SimulationFlags
	pending *state.Pending
}

func (e *Executor) State() *state.Pending {
	return e.pending
}

func (e *Executor) Env() *core.BlockEnv {
	return e.env
}

func (e *Executor) Execute(txs []core.BroadcastedTransaction) []vm.ExecutionResult {
	return e.run(e.pending, e.flags, txs)
}

func (e *Executor) Simulate(txs []core.BroadcastedTransaction) []vm.ExecutionResult {
	return e.run(e.pending.Clone(), e.flags, txs)
}

// EstimateFee prices txs without charging them, so transactions with no fee bounds can be
// estimated.
func (e *Executor) EstimateFee(txs []core.BroadcastedTransaction) ([]vm.FeeEstimate, error) {
	flags := e.flags
	flags.SkipFeeTransfer = true

	results := e.run(e.pending.Clone(), flags, txs)
	estimates := make([]vm.FeeEstimate, 0, len(results))
	for i, res := range results {
		if res.Err != nil {
			return nil, &vm.TransactionExecutionError{Index: uint64(i), Cause: res.Err}
		}
		if res.Receipt.Reverted {
			return nil, &vm.TransactionExecutionError{Index: uint64(i), Cause: errors.New(res.Receipt.RevertReason)}
		}

		unit := res.Receipt.FeeUnit
		var gas uint64
		if resources := res.Receipt.ExecutionResources; resources != nil {
			gas = l1Gas(resources.Steps, 0)
			if resources.DataAvailability != nil {
				gas += resources.DataAvailability.L1Gas
			}
		}
		estimates = append(estimates, vm.FeeEstimate{
			GasConsumed:     new(felt.Felt).SetUint64(gas),
			GasPrice:        e.env.GasPriceIn(unit),
			DataGasConsumed: new(felt.Felt),
			DataGasPrice:    e.env.DataGasPriceIn(unit),
			OverallFee:      res.Receipt.Fee,
			Unit:            unit,
		})
	}
	return estimates, nil
}

// Call runs an entry point on top of the pending writes and discards whatever it writes.
func (e *Executor) Call(call *vm.CallInfo) ([]*felt.Felt, error) {
	exec := e.execution(e.pending.Child(), txInfo{}, e.factory.cfg.InvokeMaxSteps)
	invocation, err := exec.invoke(zero, call.ContractAddress, External, call.Selector, call.Calldata)
	if err != nil {
		return nil, err
	}
	return invocation.Result, nil
}

func (e *Executor) execution(st *state.Pending, info txInfo, maxSteps uint64) *execution {
	return &execution{
		state:    st,
		registry: e.factory.registry,
		env:      e.env,
		cfg:      e.factory.cfg,
		tx:       info,
		maxSteps: maxSteps,
	}
}

func (e *Executor) run(pending *state.Pending, flags vm.SimulationFlags, txs []core.BroadcastedTransaction) []vm.ExecutionResult {
	results := make([]vm.ExecutionResult, len(txs))
	for i, btx := range txs {
		child := pending.Child()
		r := &txRun{
			e:     e,
			flags: flags,
			state: child,
			tx:    btx.Transaction,
			unit:  feeUnit(btx.Transaction),
			trace: &vm.TransactionTrace{Type: vm.TransactionTypeOf(btx.Transaction)},
			info: txInfo{
				hash:      btx.Transaction.Hash(),
				signature: btx.Transaction.Signature(),
				nonce:     core.TransactionNonce(btx.Transaction),
				version:   btx.Transaction.TxVersion(),
				sender:    core.SenderAddress(btx.Transaction),
			},
		}

		results[i] = r.execute(btx)
		if results[i].Err == nil {
			pending.Merge(child.StateDiff(), child.Classes())
		} else if e.factory.log != nil {
			e.factory.log.Debugw("Transaction failed validation", "hash", btx.Transaction.Hash(), "err", results[i].Err)
		}
	}
	return results
}

// txRun carries one transaction through its phases. Every phase writes to state, an overlay that
// is only kept when the transaction does not fail.
type txRun struct {
	e     *Executor
	flags vm.SimulationFlags
	state *state.Pending
	tx    core.Transaction
	info  txInfo
	unit  core.FeeUnit
	trace *vm.TransactionTrace

	steps           uint64
	reverted        bool
	revertReason    string
	contractAddress *felt.Felt
	l1Message       *core.L1ToL2Message
}

func (r *txRun) execute(btx core.BroadcastedTransaction) vm.ExecutionResult {
	var (
		fee *uint256.Int
		err error
	)
	switch tx := btx.Transaction.(type) {
	case *core.InvokeTransaction:
		fee, err = r.invoke(tx)
	case *core.DeclareTransaction:
		fee, err = r.declare(tx, btx.DeclaredClass)
	case *core.DeployAccountTransaction:
		fee, err = r.deployAccount(tx)
	case *core.DeployTransaction:
		fee, err = r.deploy(tx)
	case *core.L1HandlerTransaction:
		fee, err = r.l1Handler(tx)
	default:
		err = fmt.Errorf("%w: %T", core.ErrUnknownTransaction, tx)
	}
	if err != nil {
		return vm.ExecutionResult{Err: err}
	}
	return r.result(fee)
}

func (r *txRun) exec(st *state.Pending, maxSteps uint64) *execution {
	return r.e.execution(st, r.info, maxSteps)
}

func (r *txRun) cfg() *vm.ChainConfig {
	return r.e.factory.cfg
}

func (r *txRun) invoke(tx *core.InvokeTransaction) (*uint256.Int, error) {
	if !tx.Version.Is(1) && !tx.Version.Is(3) {
		return nil, fmt.Errorf("%w: invoke %s", vm.ErrUnsupportedTxVersion, tx.Version)
	}
	sender := tx.SenderAddress
	bounds := boundsOf(tx)
	if err := r.checkNonce(sender, tx.Nonce); err != nil {
		return nil, err
	}
	if err := r.precheckFee(sender, bounds); err != nil {
		return nil, err
	}
	if err := r.validate(sender, validateSelector, tx.CallData); err != nil {
		return nil, err
	}

	execState := r.state.Child()
	exec := r.exec(execState, r.cfg().InvokeMaxSteps)
	invocation, err := exec.invoke(zero, sender, External, executeSelector, tx.CallData)
	r.steps += exec.steps
	if err != nil {
		r.revert(err.Error())
	} else {
		r.trace.ExecuteInvocation = &vm.ExecuteInvocation{FunctionInvocation: invocation}
	}

	if err := r.bumpNonce(sender); err != nil {
		return nil, err
	}

	written := r.state.StateDiff()
	if !r.reverted {
		written.Merge(execState.StateDiff())
	}
	gas := l1Gas(r.steps, written.Length())
	fee := feeFor(gas, r.e.env.GasPriceIn(r.unit))
	if !r.flags.SkipFeeTransfer && !r.reverted {
		if reason, exceeded := bounds.exceeded(gas, fee); exceeded {
			r.revert(reason)
			fee = bounds.maxFee
		}
	}
	if !r.reverted {
		r.state.Merge(execState.StateDiff(), execState.Classes())
	}

	return fee, r.transferFee(sender, fee)
}

func (r *txRun) revert(reason string) {
	r.reverted, r.revertReason = true, reason
	r.trace.ExecuteInvocation = &vm.ExecuteInvocation{RevertReason: reason}
}

func (r *txRun) declare(tx *core.DeclareTransaction, class core.Class) (*uint256.Int, error) {
	if class == nil {
		return nil, errors.New("declared class definition is missing")
	}
	legacy := tx.Version.Is(0) || tx.Version.Is(1)
	switch {
	case legacy && class.Version() != 0, !legacy && class.Version() == 0:
		return nil, fmt.Errorf("%w: declare %s of a Cairo %d class", vm.ErrUnsupportedTxVersion, tx.Version,
			class.Version())
	case !legacy && !tx.Version.Is(2) && !tx.Version.Is(3):
		return nil, fmt.Errorf("%w: declare %s", vm.ErrUnsupportedTxVersion, tx.Version)
	case !legacy && (tx.CompiledClassHash == nil || tx.CompiledClassHash.IsZero()):
		return nil, vm.ErrCompiledClassMismatch
	}

	if _, err := r.state.Class(tx.ClassHash); err == nil {
		return nil, fmt.Errorf("%w: %s", vm.ErrClassAlreadyDeclared, tx.ClassHash)
	} else if !errors.Is(err, state.ErrClassNotFound) {
		return nil, err
	}

	// v0 declarations predate accounts and are only used to bootstrap a chain.
	if tx.Version.Is(0) {
		r.state.DeclareClass(tx.ClassHash, tx.CompiledClassHash, class)
		return r.unchargedFee(), nil
	}

	sender := tx.SenderAddress
	bounds := boundsOf(tx)
	if err := r.checkNonce(sender, tx.Nonce); err != nil {
		return nil, err
	}
	if err := r.precheckFee(sender, bounds); err != nil {
		return nil, err
	}
	if err := r.validate(sender, validateDeclareSelector, []*felt.Felt{tx.ClassHash}); err != nil {
		return nil, err
	}

	r.state.DeclareClass(tx.ClassHash, tx.CompiledClassHash, class)
	if err := r.bumpNonce(sender); err != nil {
		return nil, err
	}
	fee, err := r.boundedFee(bounds)
	if err != nil {
		return nil, err
	}
	return fee, r.transferFee(sender, fee)
}

func (r *txRun) deployAccount(tx *core.DeployAccountTransaction) (*uint256.Int, error) {
	if !tx.Version.Is(1) && !tx.Version.Is(3) {
		return nil, fmt.Errorf("%w: deploy account %s", vm.ErrUnsupportedTxVersion, tx.Version)
	}
	addr := core.ContractAddress(zero, tx.ClassHash, tx.ContractAddressSalt, tx.ConstructorCallData)
	if tx.ContractAddress != nil && !tx.ContractAddress.Equal(addr) {
		return nil, fmt.Errorf("%w: contract address %s does not match the computed %s", vm.ErrValidationFailure,
			tx.ContractAddress, addr)
	}
	r.info.sender, r.contractAddress = addr, addr

	bounds := boundsOf(tx)
	if err := r.checkNonce(addr, tx.Nonce); err != nil {
		return nil, err
	}
	if err := r.precheckFee(addr, bounds); err != nil {
		return nil, err
	}

	exec := r.exec(r.state, r.cfg().ValidateMaxSteps)
	_, invocation, err := exec.deploy(zero, zero, tx.ClassHash, tx.ContractAddressSalt, tx.ConstructorCallData)
	r.steps += exec.steps
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vm.ErrValidationFailure, err)
	}
	r.trace.ConstructorInvocation = invocation

	validateCalldata := append([]*felt.Felt{tx.ClassHash, tx.ContractAddressSalt}, tx.ConstructorCallData...)
	if err := r.validate(addr, validateDeploySelector, validateCalldata); err != nil {
		return nil, err
	}

	if err := r.bumpNonce(addr); err != nil {
		return nil, err
	}
	fee, err := r.boundedFee(bounds)
	if err != nil {
		return nil, err
	}
	return fee, r.transferFee(addr, fee)
}

// deploy places a contract without an account. The address is taken from the transaction when
// set, which lets a genesis block put system contracts at well known addresses.
func (r *txRun) deploy(tx *core.DeployTransaction) (*uint256.Int, error) {
	addr := tx.ContractAddress
	if addr == nil {
		addr = core.ContractAddress(zero, tx.ClassHash, tx.ContractAddressSalt, tx.ConstructorCallData)
	}
	r.contractAddress = addr

	if _, err := r.state.Class(tx.ClassHash); err != nil {
		return nil, fmt.Errorf("deploy %s: %w", tx.ClassHash, err)
	}
	exec := r.exec(r.state, 0)
	invocation, err := exec.place(zero, addr, tx.ClassHash, tx.ConstructorCallData)
	r.steps += exec.steps
	if err != nil {
		return nil, err
	}
	r.trace.ConstructorInvocation = invocation
	return r.unchargedFee(), nil
}

// l1Handler runs a message from the settlement chain. Its fee was paid there, so nothing is
// charged here.
func (r *txRun) l1Handler(tx *core.L1HandlerTransaction) (*uint256.Int, error) {
	if !tx.Version.Is(0) {
		return nil, fmt.Errorf("%w: l1 handler %s", vm.ErrUnsupportedTxVersion, tx.Version)
	}
	if len(tx.CallData) > 0 {
		fromBytes := tx.CallData[0].Bytes()
		r.l1Message = &core.L1ToL2Message{
			From:     common.BytesToAddress(fromBytes[12:]),
			Nonce:    tx.Nonce,
			Payload:  tx.CallData[1:],
			Selector: tx.EntryPointSelector,
			To:       tx.ContractAddress,
		}
	}

	execState := r.state.Child()
	exec := r.exec(execState, r.cfg().InvokeMaxSteps)
	invocation, err := exec.invoke(zero, tx.ContractAddress, L1Handler, tx.EntryPointSelector, tx.CallData)
	r.steps += exec.steps
	r.trace.FunctionInvocation = invocation
	if err != nil {
		r.reverted, r.revertReason = true, err.Error()
	} else {
		r.state.Merge(execState.StateDiff(), execState.Classes())
	}
	return r.unchargedFee(), nil
}

func (r *txRun) checkNonce(addr, nonce *felt.Felt) error {
	if r.flags.SkipAccountValidation {
		return nil
	}
	current, err := r.state.ContractNonce(addr)
	if err != nil {
		return err
	}
	if nonce == nil || !current.Equal(nonce) {
		return fmt.Errorf("%w: account %s expects nonce %s, got %s", vm.ErrInvalidNonce, addr, current,
			utils.FeltOrZero(nonce))
	}
	return nil
}

func (r *txRun) bumpNonce(addr *felt.Felt) error {
	current, err := r.state.ContractNonce(addr)
	if err != nil {
		return err
	}
	r.state.SetNonce(addr, new(felt.Felt).Add(current, one))
	return nil
}

func (r *txRun) balance(addr *felt.Felt) (*uint256.Int, error) {
	token := r.cfg().FeeTokens.For(r.unit)
	key := BalanceKey(addr)
	low, err := r.state.ContractStorage(token, key)
	if err != nil {
		return nil, err
	}
	high, err := r.state.ContractStorage(token, new(felt.Felt).Add(key, one))
	if err != nil {
		return nil, err
	}
	return u256FromLimbs(low, high)
}

func (r *txRun) precheckFee(addr *felt.Felt, bounds feeBounds) error {
	if r.flags.SkipFeeTransfer {
		return nil
	}
	if err := bounds.precheck(r.unit, r.e.env.GasPriceIn(r.unit)); err != nil {
		return err
	}
	balance, err := r.balance(addr)
	if err != nil {
		return err
	}
	if balance.Lt(bounds.maxFee) {
		return fmt.Errorf("%w: balance %s, max fee %s", vm.ErrInsufficientBalance, balance.Dec(), bounds.maxFee.Dec())
	}
	return nil
}

func (r *txRun) validate(addr, selector *felt.Felt, calldata []*felt.Felt) error {
	if r.flags.SkipValidate {
		return nil
	}
	exec := r.exec(r.state, r.cfg().ValidateMaxSteps)
	invocation, err := exec.invoke(zero, addr, External, selector, calldata)
	r.steps += exec.steps
	switch {
	case errors.Is(err, vm.ErrContractNotFound), errors.Is(err, vm.ErrEntryPointNotFound):
		return fmt.Errorf("%w: %v", vm.ErrNonAccount, err)
	case err != nil:
		return fmt.Errorf("%w: %v", vm.ErrValidationFailure, err)
	}
	r.trace.ValidateInvocation = invocation
	return nil
}

// unchargedFee prices the transaction without enforcing any bound.
func (r *txRun) unchargedFee() *uint256.Int {
	return feeFor(l1Gas(r.steps, r.state.StateDiff().Length()), r.e.env.GasPriceIn(r.unit))
}

// boundedFee prices a transaction that has no revertible phase: going over the bounds rejects it.
func (r *txRun) boundedFee(bounds feeBounds) (*uint256.Int, error) {
	gas := l1Gas(r.steps, r.state.StateDiff().Length())
	fee := feeFor(gas, r.e.env.GasPriceIn(r.unit))
	if r.flags.SkipFeeTransfer {
		return fee, nil
	}
	if reason, exceeded := bounds.exceeded(gas, fee); exceeded {
		return nil, fmt.Errorf("%w: %s", vm.ErrInsufficientMaxFee, reason)
	}
	return fee, nil
}

// transferFee moves the fee from payer to the sequencer. The steps it takes are not charged.
func (r *txRun) transferFee(payer *felt.Felt, fee *uint256.Int) error {
	if r.flags.SkipFeeTransfer {
		return nil
	}
	low, high := u256ToLimbs(fee)
	sequencer := utils.FeltOrZero(r.e.env.SequencerAddress)
	exec := r.exec(r.state, 0)
	invocation, err := exec.invoke(payer, r.cfg().FeeTokens.For(r.unit), External, transferSelector,
		[]*felt.Felt{sequencer, low, high})
	if err != nil {
		return fmt.Errorf("%w: fee transfer: %v", vm.ErrInsufficientBalance, err)
	}
	r.trace.FeeTransferInvocation = invocation
	return nil
}

func (r *txRun) result(fee *uint256.Int) vm.ExecutionResult {
	diff := r.state.StateDiff()
	r.trace.StateDiff = vm.NewStateDiff(diff)

	resources := &vm.ExecutionResources{
		ComputationResources: r.trace.TotalComputationResources(),
		DataAvailability:     &vm.DataAvailability{L1Gas: l1GasPerFelt * diff.Length()},
	}
	resources.Steps = r.steps
	r.trace.ExecutionResources = resources

	ordered := r.trace.AllEvents()
	slices.SortStableFunc(ordered, func(a, b vm.OrderedEvent) int { return cmp.Compare(a.Order, b.Order) })
	events := make([]*core.Event, 0, len(ordered))
	for _, e := range ordered {
		events = append(events, &core.Event{From: e.From, Keys: e.Keys, Data: e.Data})
	}
	messages := make([]*core.L2ToL1Message, 0)
	for _, m := range r.trace.AllMessages() {
		messages = append(messages, &core.L2ToL1Message{From: m.From, To: m.To, Payload: m.Payload})
	}

	return vm.ExecutionResult{
		Receipt: &core.TransactionReceipt{
			Fee:                u256ToFelt(fee),
			FeeUnit:            r.unit,
			Events:             events,
			ExecutionResources: resources.CoreResources(),
			L1ToL2Message:      r.l1Message,
			L2ToL1Message:      messages,
			TransactionHash:    r.tx.Hash(),
			Reverted:           r.reverted,
			RevertReason:       r.revertReason,
			ContractAddress:    r.contractAddress,
		},
		Trace: r.trace,
	}
}
