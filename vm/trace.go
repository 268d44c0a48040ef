package vm

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/utils"
)

type StateDiff struct {
	StorageDiffs              []StorageDiff      `json:"storage_diffs"`
	Nonces                    []Nonce            `json:"nonces"`
	DeployedContracts         []DeployedContract `json:"deployed_contracts"`
	DeprecatedDeclaredClasses []*felt.Felt       `json:"deprecated_declared_classes"`
	DeclaredClasses           []DeclaredClass    `json:"declared_classes"`
	ReplacedClasses           []ReplacedClass    `json:"replaced_classes"`
}

type Nonce struct {
	ContractAddress felt.Felt `json:"contract_address"`
	Nonce           felt.Felt `json:"nonce"`
}

type StorageDiff struct {
	Address        felt.Felt `json:"address"`
	StorageEntries []Entry   `json:"storage_entries"`
}

type Entry struct {
	Key   felt.Felt `json:"key"`
	Value felt.Felt `json:"value"`
}

type DeployedContract struct {
	Address   felt.Felt `json:"address"`
	ClassHash felt.Felt `json:"class_hash"`
}

type ReplacedClass struct {
	ContractAddress felt.Felt `json:"contract_address"`
	ClassHash       felt.Felt `json:"class_hash"`
}

type DeclaredClass struct {
	ClassHash         felt.Felt `json:"class_hash"`
	CompiledClassHash felt.Felt `json:"compiled_class_hash"`
}

// NewStateDiff flattens d into lists sorted by address, then key.
func NewStateDiff(d *core.StateDiff) *StateDiff {
	diff := &StateDiff{
		StorageDiffs:              []StorageDiff{},
		Nonces:                    []Nonce{},
		DeployedContracts:         []DeployedContract{},
		DeprecatedDeclaredClasses: utils.CloneFelts(d.DeclaredV0Classes),
		DeclaredClasses:           []DeclaredClass{},
		ReplacedClasses:           []ReplacedClass{},
	}
	if diff.DeprecatedDeclaredClasses == nil {
		diff.DeprecatedDeclaredClasses = []*felt.Felt{}
	}
	slices.SortFunc(diff.DeprecatedDeclaredClasses, func(a, b *felt.Felt) int { return a.Cmp(b) })

	for _, addr := range sortedKeys(d.StorageDiffs) {
		storage := d.StorageDiffs[addr]
		entries := make([]Entry, 0, len(storage))
		for _, key := range sortedKeys(storage) {
			entries = append(entries, Entry{Key: key, Value: *storage[key]})
		}
		diff.StorageDiffs = append(diff.StorageDiffs, StorageDiff{Address: addr, StorageEntries: entries})
	}
	for _, addr := range sortedKeys(d.Nonces) {
		diff.Nonces = append(diff.Nonces, Nonce{ContractAddress: addr, Nonce: *d.Nonces[addr]})
	}
	for _, addr := range sortedKeys(d.DeployedContracts) {
		diff.DeployedContracts = append(diff.DeployedContracts, DeployedContract{Address: addr, ClassHash: *d.DeployedContracts[addr]})
	}
	for _, classHash := range sortedKeys(d.DeclaredV1Classes) {
		diff.DeclaredClasses = append(diff.DeclaredClasses, DeclaredClass{
			ClassHash:         classHash,
			CompiledClassHash: *d.DeclaredV1Classes[classHash],
		})
	}
	for _, addr := range sortedKeys(d.ReplacedClasses) {
		diff.ReplacedClasses = append(diff.ReplacedClasses, ReplacedClass{ContractAddress: addr, ClassHash: *d.ReplacedClasses[addr]})
	}
	return diff
}

func sortedKeys[V any](m map[felt.Felt]V) []felt.Felt {
	keys := slices.Collect(maps.Keys(m))
	slices.SortFunc(keys, func(a, b felt.Felt) int { return a.Cmp(&b) })
	return keys
}

type TransactionType uint8

const (
	Invalid TransactionType = iota
	TxnDeclare
	TxnDeploy
	TxnDeployAccount
	TxnInvoke
	TxnL1Handler
)

// TransactionTypeOf returns Invalid for unknown transaction types.
func TransactionTypeOf(tx core.Transaction) TransactionType {
	switch tx.(type) {
	case *core.DeclareTransaction:
		return TxnDeclare
	case *core.DeployTransaction:
		return TxnDeploy
	case *core.DeployAccountTransaction:
		return TxnDeployAccount
	case *core.InvokeTransaction:
		return TxnInvoke
	case *core.L1HandlerTransaction:
		return TxnL1Handler
	default:
		return Invalid
	}
}

var transactionTypeNames = [...]string{
	TxnDeclare:       "DECLARE",
	TxnDeploy:        "DEPLOY",
	TxnDeployAccount: "DEPLOY_ACCOUNT",
	TxnInvoke:        "INVOKE",
	TxnL1Handler:     "L1_HANDLER",
}

func (t TransactionType) String() string {
	if t == Invalid || int(t) >= len(transactionTypeNames) {
		return "<unknown>"
	}
	return transactionTypeNames[t]
}

func (t TransactionType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText also accepts INVOKE_FUNCTION, the legacy name of invoke transactions.
func (t *TransactionType) UnmarshalText(text []byte) error {
	name := string(text)
	if name == "INVOKE_FUNCTION" {
		name = "INVOKE"
	}
	for typ, known := range transactionTypeNames {
		if typ != int(Invalid) && known == name {
			*t = TransactionType(typ)
			return nil
		}
	}
	return fmt.Errorf("unknown transaction type %q", name)
}

type TransactionTrace struct {
	Type                  TransactionType     `json:"type,omitempty"`
	ValidateInvocation    *FunctionInvocation `json:"validate_invocation,omitempty"`
	ExecuteInvocation     *ExecuteInvocation  `json:"execute_invocation,omitempty"`
	FeeTransferInvocation *FunctionInvocation `json:"fee_transfer_invocation,omitempty"`
	ConstructorInvocation *FunctionInvocation `json:"constructor_invocation,omitempty"`
	FunctionInvocation    *FunctionInvocation `json:"function_invocation,omitempty"`
	StateDiff             *StateDiff          `json:"state_diff,omitempty"`
	ExecutionResources    *ExecutionResources `json:"execution_resources,omitempty"`
}

func (t *TransactionTrace) allInvocations() []*FunctionInvocation {
	var executeInvocation *FunctionInvocation
	if t.ExecuteInvocation != nil {
		executeInvocation = t.ExecuteInvocation.FunctionInvocation
	}
	return slices.DeleteFunc([]*FunctionInvocation{
		t.ConstructorInvocation,
		t.ValidateInvocation,
		t.FeeTransferInvocation,
		executeInvocation,
		t.FunctionInvocation,
	}, func(i *FunctionInvocation) bool { return i == nil })
}

// TotalComputationResources sums the resources of every invocation of the transaction.
func (t *TransactionTrace) TotalComputationResources() ComputationResources {
	var total ComputationResources
	for _, invocation := range t.allInvocations() {
		total.add(invocation.totalResources())
	}
	return total
}

func (t *TransactionTrace) RevertReason() string {
	if t.ExecuteInvocation == nil {
		return ""
	}
	return t.ExecuteInvocation.RevertReason
}

// AllEvents returns the events of the transaction in emission order.
func (t *TransactionTrace) AllEvents() []OrderedEvent {
	events := make([]OrderedEvent, 0)
	globalOrder := 0

	addEvents := func(invocation *FunctionInvocation) {
		if invocation != nil {
			allEvents := invocation.allEvents()
			for _, event := range allEvents {
				event.Order += uint64(globalOrder)
				events = append(events, event)
			}
			globalOrder += len(allEvents)
		}
	}

	if t.Type == TxnDeployAccount {
		addEvents(t.ConstructorInvocation)
		addEvents(t.ValidateInvocation)
	} else {
		addEvents(t.ValidateInvocation)
		if t.ExecuteInvocation != nil {
			addEvents(t.ExecuteInvocation.FunctionInvocation)
		}
		addEvents(t.ConstructorInvocation)
	}
	addEvents(t.FunctionInvocation)
	addEvents(t.FeeTransferInvocation)

	return events
}

func (t *TransactionTrace) AllMessages() []OrderedL2toL1Message {
	messages := make([]OrderedL2toL1Message, 0)
	for _, invocation := range t.allInvocations() {
		messages = append(messages, invocation.allMessages()...)
	}
	return messages
}

type FunctionInvocation struct {
	ContractAddress    felt.Felt              `json:"contract_address"`
	EntryPointSelector *felt.Felt             `json:"entry_point_selector,omitempty"`
	Calldata           []*felt.Felt           `json:"calldata"`
	CallerAddress      felt.Felt              `json:"caller_address"`
	ClassHash          *felt.Felt             `json:"class_hash,omitempty"`
	EntryPointType     string                 `json:"entry_point_type,omitempty"`
	CallType           string                 `json:"call_type,omitempty"`
	Result             []*felt.Felt           `json:"result"`
	Calls              []FunctionInvocation   `json:"calls"`
	Events             []OrderedEvent         `json:"events"`
	Messages           []OrderedL2toL1Message `json:"messages"`
	ExecutionResources *ComputationResources  `json:"execution_resources,omitempty"`
	IsReverted         bool                   `json:"is_reverted,omitempty"`
}

func (invocation *FunctionInvocation) allEvents() []OrderedEvent {
	events := make([]OrderedEvent, 0)
	for i := range invocation.Calls {
		events = append(events, invocation.Calls[i].allEvents()...)
	}
	return append(events, utils.Map(invocation.Events, func(e OrderedEvent) OrderedEvent {
		e.From = &invocation.ContractAddress
		return e
	})...)
}

func (invocation *FunctionInvocation) allMessages() []OrderedL2toL1Message {
	messages := make([]OrderedL2toL1Message, 0)
	for i := range invocation.Calls {
		messages = append(messages, invocation.Calls[i].allMessages()...)
	}
	return append(messages, utils.Map(invocation.Messages, func(m OrderedL2toL1Message) OrderedL2toL1Message {
		m.From = &invocation.ContractAddress
		return m
	})...)
}

func (invocation *FunctionInvocation) totalResources() ComputationResources {
	var total ComputationResources
	if invocation.ExecutionResources != nil {
		total = *invocation.ExecutionResources
	}
	for i := range invocation.Calls {
		total.add(invocation.Calls[i].totalResources())
	}
	return total
}

type ExecuteInvocation struct {
	RevertReason        string `json:"revert_reason"`
	*FunctionInvocation `json:",omitempty"`
}

func (e ExecuteInvocation) MarshalJSON() ([]byte, error) {
	if e.FunctionInvocation != nil {
		return json.Marshal(e.FunctionInvocation)
	}
	type alias ExecuteInvocation
	return json.Marshal(alias(e))
}

type OrderedEvent struct {
	Order uint64       `json:"order"`
	From  *felt.Felt   `json:"from_address,omitempty"`
	Keys  []*felt.Felt `json:"keys"`
	Data  []*felt.Felt `json:"data"`
}

type OrderedL2toL1Message struct {
	Order   uint64       `json:"order"`
	From    *felt.Felt   `json:"from_address,omitempty"`
	To      *felt.Felt   `json:"to_address"`
	Payload []*felt.Felt `json:"payload"`
}

type ComputationResources struct {
	Steps        uint64 `json:"steps"`
	MemoryHoles  uint64 `json:"memory_holes,omitempty"`
	Pedersen     uint64 `json:"pedersen_builtin_applications,omitempty"`
	RangeCheck   uint64 `json:"range_check_builtin_applications,omitempty"`
	Bitwise      uint64 `json:"bitwise_builtin_applications,omitempty"`
	Ecdsa        uint64 `json:"ecdsa_builtin_applications,omitempty"`
	EcOp         uint64 `json:"ec_op_builtin_applications,omitempty"`
	Keccak       uint64 `json:"keccak_builtin_applications,omitempty"`
	Poseidon     uint64 `json:"poseidon_builtin_applications,omitempty"`
	SegmentArena uint64 `json:"segment_arena_builtin,omitempty"`
}

func (r *ComputationResources) add(o ComputationResources) {
	r.Steps += o.Steps
	r.MemoryHoles += o.MemoryHoles
	r.Pedersen += o.Pedersen
	r.RangeCheck += o.RangeCheck
	r.Bitwise += o.Bitwise
	r.Ecdsa += o.Ecdsa
	r.EcOp += o.EcOp
	r.Keccak += o.Keccak
	r.Poseidon += o.Poseidon
	r.SegmentArena += o.SegmentArena
}

type DataAvailability struct {
	L1Gas     uint64 `json:"l1_gas"`
	L1DataGas uint64 `json:"l1_data_gas"`
}

type ExecutionResources struct {
	ComputationResources
	DataAvailability *DataAvailability `json:"data_availability,omitempty"`
}

// CoreResources converts r to the form stored in receipts.
func (r *ExecutionResources) CoreResources() *core.ExecutionResources {
	res := &core.ExecutionResources{
		Steps:       r.Steps,
		MemoryHoles: r.MemoryHoles,
		BuiltinInstanceCounter: core.BuiltinInstanceCounter{
			Pedersen:     r.Pedersen,
			RangeCheck:   r.RangeCheck,
			Bitwise:      r.Bitwise,
			Ecsda:        r.Ecdsa,
			EcOp:         r.EcOp,
			Keccak:       r.Keccak,
			Poseidon:     r.Poseidon,
			SegmentArena: r.SegmentArena,
		},
	}
	if r.DataAvailability != nil {
		res.DataAvailability = &core.DataAvailability{
			L1Gas:     r.DataAvailability.L1Gas,
			L1DataGas: r.DataAvailability.L1DataGas,
		}
	}
	return res
}
