package native

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/state"
	"github.com/NethermindEth/katana/vm"
	"github.com/holiman/uint256"
)

// Step costs of the operations a program performs.
const (
	callSteps         = 100
	storageReadSteps  = 10
	storageWriteSteps = 25
	hashSteps         = 5
	eventSteps        = 20
	messageSteps      = 50
	deploySteps       = 200
	signatureSteps    = 1200
)

type txInfo struct {
	hash      *felt.Felt
	signature []*felt.Felt
	nonce     *felt.Felt
	version   *core.TransactionVersion
	sender    *felt.Felt
}

// execution is one top-level run of a transaction phase against an overlay. Calls nested in it
// share the step budget and the event and message order counters.
type execution struct {
	state    *state.Pending
	registry *Registry
	env      *core.BlockEnv
	cfg      *vm.ChainConfig
	tx       txInfo

	steps    uint64
	maxSteps uint64
	events   uint64
	messages uint64
}

// callError carries the contract and entry point a failure happened in.
type callError struct {
	contract *felt.Felt
	selector *felt.Felt
	err      error
}

func (e *callError) Error() string {
	return fmt.Sprintf("Error in the called contract (%s) at entry point %s:\n%v", e.contract, e.selector, e.err)
}

func (e *callError) Unwrap() error {
	return e.err
}

func (e *execution) invoke(caller, addr *felt.Felt, kind EntryPointKind, selector *felt.Felt,
	calldata []*felt.Felt,
) (*vm.FunctionInvocation, error) {
	classHash, err := e.state.ContractClassHash(addr)
	if err != nil {
		return nil, err
	}
	if classHash.IsZero() {
		return nil, fmt.Errorf("%w: %s", vm.ErrContractNotFound, addr)
	}
	return e.invokeClass(caller, addr, classHash, kind, selector, calldata)
}

func (e *execution) invokeClass(caller, addr, classHash *felt.Felt, kind EntryPointKind, selector *felt.Felt,
	calldata []*felt.Felt,
) (*vm.FunctionInvocation, error) {
	invocation := &vm.FunctionInvocation{
		ContractAddress:    *addr,
		EntryPointSelector: selector,
		Calldata:           calldata,
		CallerAddress:      *caller,
		ClassHash:          classHash,
		EntryPointType:     kind.String(),
		CallType:           "CALL",
		Result:             []*felt.Felt{},
		Calls:              []vm.FunctionInvocation{},
		Events:             []vm.OrderedEvent{},
		Messages:           []vm.OrderedL2toL1Message{},
		ExecutionResources: &vm.ComputationResources{},
	}

	program, ok := e.registry.Program(classHash)
	if !ok {
		return invocation, &callError{contract: addr, selector: selector, err: vm.ErrEntryPointNotExecutable}
	}
	h, ok := program.entryPoint(kind, selector)
	if !ok {
		return invocation, &callError{contract: addr, selector: selector, err: vm.ErrEntryPointNotFound}
	}

	f := &frame{exec: e, self: addr, caller: caller, invocation: invocation}
	if err := f.charge(callSteps); err != nil {
		return invocation, err
	}
	result, err := h(f, calldata)
	if err != nil {
		invocation.IsReverted = true
		var nested *callError
		if errors.As(err, &nested) || errors.Is(err, vm.ErrStepLimitExceeded) {
			return invocation, err
		}
		return invocation, &callError{contract: addr, selector: selector, err: err}
	}
	invocation.Result = result
	return invocation, nil
}

// deploy places a contract of classHash at the address derived from deployer and runs its
// constructor. Constructors of classes without a native program are not run.
func (e *execution) deploy(caller, deployer, classHash, salt *felt.Felt, calldata []*felt.Felt,
) (*felt.Felt, *vm.FunctionInvocation, error) {
	if _, err := e.state.Class(classHash); errors.Is(err, state.ErrClassNotFound) {
		return nil, nil, fmt.Errorf("class with hash %s is not declared", classHash)
	} else if err != nil {
		return nil, nil, err
	}

	addr := core.ContractAddress(deployer, classHash, salt, calldata)
	invocation, err := e.place(caller, addr, classHash, calldata)
	return addr, invocation, err
}

// place deploys classHash at a given address.
func (e *execution) place(caller, addr, classHash *felt.Felt, calldata []*felt.Felt) (*vm.FunctionInvocation, error) {
	if deployed, err := state.IsDeployed(e.state, addr); err != nil {
		return nil, err
	} else if deployed {
		return nil, fmt.Errorf("contract already deployed at address %s", addr)
	}
	if err := e.state.SetClassHash(addr, classHash); err != nil {
		return nil, err
	}
	return e.construct(caller, addr, classHash, calldata)
}

func (e *execution) construct(caller, addr, classHash *felt.Felt, calldata []*felt.Felt) (*vm.FunctionInvocation, error) {
	program, ok := e.registry.Program(classHash)
	if ok {
		if _, hasConstructor := program.entryPoint(Constructor, constructorSelector); hasConstructor {
			return e.invokeClass(caller, addr, classHash, Constructor, constructorSelector, calldata)
		}
		if len(calldata) > 0 {
			return nil, errors.New("cannot pass calldata to a contract with no constructor")
		}
	}
	return &vm.FunctionInvocation{
		ContractAddress:    *addr,
		EntryPointSelector: constructorSelector,
		Calldata:           calldata,
		CallerAddress:      *caller,
		ClassHash:          classHash,
		EntryPointType:     Constructor.String(),
		CallType:           "CALL",
		Result:             []*felt.Felt{},
		Calls:              []vm.FunctionInvocation{},
		Events:             []vm.OrderedEvent{},
		Messages:           []vm.OrderedL2toL1Message{},
		ExecutionResources: &vm.ComputationResources{},
	}, nil
}

// frame is the view a running entry point has of the chain.
type frame struct {
	exec       *execution
	self       *felt.Felt
	caller     *felt.Felt
	invocation *vm.FunctionInvocation
}

func (f *frame) charge(steps uint64) error {
	f.exec.steps += steps
	f.invocation.ExecutionResources.Steps += steps
	if f.exec.maxSteps > 0 && f.exec.steps > f.exec.maxSteps {
		return fmt.Errorf("%w: %d", vm.ErrStepLimitExceeded, f.exec.maxSteps)
	}
	return nil
}

// storageVar is the storage key of a named variable, like a Cairo storage_var.
func (f *frame) storageVar(name string, keys ...*felt.Felt) *felt.Felt {
	f.invocation.ExecutionResources.Pedersen += uint64(len(keys))
	f.invocation.ExecutionResources.Steps += hashSteps * uint64(len(keys))
	f.exec.steps += hashSteps * uint64(len(keys))
	return core.StorageVarAddress(name, keys...)
}

func (f *frame) read(key *felt.Felt) (*felt.Felt, error) {
	if err := f.charge(storageReadSteps); err != nil {
		return nil, err
	}
	return f.exec.state.ContractStorage(f.self, key)
}

func (f *frame) write(key, value *felt.Felt) error {
	if err := f.charge(storageWriteSteps); err != nil {
		return err
	}
	f.exec.state.SetStorage(f.self, key, value)
	return nil
}

// readU256 reads a u256 stored as its low limb at key and its high limb at key+1.
func (f *frame) readU256(key *felt.Felt) (*uint256.Int, error) {
	low, err := f.read(key)
	if err != nil {
		return nil, err
	}
	high, err := f.read(new(felt.Felt).Add(key, one))
	if err != nil {
		return nil, err
	}
	return u256FromLimbs(low, high)
}

func (f *frame) writeU256(key *felt.Felt, v *uint256.Int) error {
	low, high := u256ToLimbs(v)
	if err := f.write(key, low); err != nil {
		return err
	}
	return f.write(new(felt.Felt).Add(key, one), high)
}

func (f *frame) emit(keys, data []*felt.Felt) error {
	if err := f.charge(eventSteps * uint64(1+len(keys)+len(data))); err != nil {
		return err
	}
	f.invocation.Events = append(f.invocation.Events, vm.OrderedEvent{
		Order: f.exec.events,
		Keys:  keys,
		Data:  data,
	})
	f.exec.events++
	return nil
}

func (f *frame) sendMessage(to *felt.Felt, payload []*felt.Felt) error {
	if err := f.charge(messageSteps); err != nil {
		return err
	}
	f.invocation.Messages = append(f.invocation.Messages, vm.OrderedL2toL1Message{
		Order:   f.exec.messages,
		To:      to,
		Payload: payload,
	})
	f.exec.messages++
	return nil
}

func (f *frame) call(to, selector *felt.Felt, calldata []*felt.Felt) ([]*felt.Felt, error) {
	invocation, err := f.exec.invoke(f.self, to, External, selector, calldata)
	if invocation != nil {
		f.invocation.Calls = append(f.invocation.Calls, *invocation)
	}
	if err != nil {
		return nil, err
	}
	return invocation.Result, nil
}

func (f *frame) deploy(deployer, classHash, salt *felt.Felt, calldata []*felt.Felt) (*felt.Felt, error) {
	if err := f.charge(deploySteps); err != nil {
		return nil, err
	}
	addr, invocation, err := f.exec.deploy(f.self, deployer, classHash, salt, calldata)
	if invocation != nil {
		f.invocation.Calls = append(f.invocation.Calls, *invocation)
	}
	return addr, err
}

// verifySignature checks the transaction signature against pub.
func (f *frame) verifySignature(pub, hash *felt.Felt, signature []*felt.Felt) (bool, error) {
	if err := f.charge(signatureSteps); err != nil {
		return false, err
	}
	f.invocation.ExecutionResources.Ecdsa++
	if len(signature) != 2 {
		return false, nil
	}
	return crypto.Verify(pub, hash, signature[0], signature[1])
}

// args fails the way a Cairo entry point does when calldata is too short to deserialize.
func args(calldata []*felt.Felt, n int) error {
	if len(calldata) < n {
		return fmt.Errorf("Failed to deserialize param #%d", len(calldata)+1)
	}
	return nil
}

// span reads a length-prefixed array at calldata[at:].
func span(calldata []*felt.Felt, at int) ([]*felt.Felt, int, error) {
	if err := args(calldata, at+1); err != nil {
		return nil, 0, err
	}
	length, ok := feltToInt(calldata[at])
	if !ok || at+1+length > len(calldata) {
		return nil, 0, fmt.Errorf("Failed to deserialize param #%d", at+2)
	}
	return calldata[at+1 : at+1+length], at + 1 + length, nil
}

func feltToInt(f *felt.Felt) (int, bool) {
	b := f.Bytes()
	for _, x := range b[:28] {
		if x != 0 {
			return 0, false
		}
	}
	return int(b[28])<<24 | int(b[29])<<16 | int(b[30])<<8 | int(b[31]), true
}
