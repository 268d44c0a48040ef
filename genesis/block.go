package genesis

import (
	"fmt"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/state"
	"github.com/NethermindEth/katana/utils"
	"github.com/NethermindEth/katana/vm"
	"github.com/NethermindEth/katana/vm/native"
	"github.com/pkg/errors"
)

// The minter receives the whole fee token supply at deployment and hands it out to the
// allocations.
var minterSalt = utils.MustHexToFelt("0x6b6174616e615f6d696e746572") // "katana_minter"

// MinterAddress is the account fee tokens are minted to before being transferred to the
// allocations.
func MinterAddress() *felt.Felt {
	return AccountAddress(native.AccountClassHash, minterSalt, new(felt.Felt))
}

// Result is an unsealed block 0 together with what sealing it needs.
type Result struct {
	Block     *core.Block
	StateDiff *core.StateDiff
	Classes   map[felt.Felt]core.Class
	Traces    []*vm.TransactionTrace
}

// Env is the block environment block 0 is executed under.
func (c *Config) Env() *core.BlockEnv {
	return &core.BlockEnv{
		Number:           c.Number,
		Timestamp:        c.Timestamp,
		L1GasPrice:       c.GasPrices.Clone(),
		L1DataGasPrice:   c.DataGasPrices.Clone(),
		SequencerAddress: c.SequencerAddress,
		ProtocolVersion:  core.ProtocolVersion,
	}
}

// Block builds block 0 out of transactions: the system classes are declared, the fee tokens, the
// UDC and the allocations are deployed, and the allocations are funded by transfers from the
// minter. The transactions run on top of base with validation and fees skipped.
func Block(cfg *Config, factory vm.ExecutorFactory, base state.Reader) (*Result, error) {
	b, err := newBuilder(cfg)
	if err != nil {
		return nil, err
	}
	txs, err := b.transactions()
	if err != nil {
		return nil, errors.Wrap(err, "genesis transactions")
	}

	executor := factory.NewExecutor(base, cfg.Env(), vm.SimulationFlags{
		SkipValidate:          true,
		SkipFeeTransfer:       true,
		SkipAccountValidation: true,
	})
	results := executor.Execute(txs)

	block := &core.Block{Header: cfg.Env().Header(cfg.ParentHash)}
	traces := make([]*vm.TransactionTrace, 0, len(results))
	for i, res := range results {
		if res.Err != nil {
			return nil, errors.Wrapf(res.Err, "genesis transaction %d", i)
		}
		if res.Receipt.Reverted {
			return nil, errors.Errorf("genesis transaction %d reverted: %s", i, res.Receipt.RevertReason)
		}
		block.Transactions = append(block.Transactions, txs[i].Transaction)
		block.Receipts = append(block.Receipts, res.Receipt)
		traces = append(traces, res.Trace)
	}

	pending := executor.State()
	for _, s := range b.storage {
		pending.SetStorage(s.addr, s.key, s.value)
	}
	return &Result{
		Block:     block,
		StateDiff: pending.StateDiff(),
		Classes:   pending.Classes(),
		Traces:    traces,
	}, nil
}

type storageWrite struct {
	addr, key, value *felt.Felt
}

type builder struct {
	cfg      *Config
	chainID  *felt.Felt
	accounts []Account
	storage  []storageWrite
}

func newBuilder(cfg *Config) (*builder, error) {
	accounts, err := cfg.AllAccounts()
	if err != nil {
		return nil, err
	}
	return &builder{cfg: cfg, chainID: cfg.ChainID.Felt(), accounts: accounts}, nil
}

func (b *builder) transactions() ([]core.BroadcastedTransaction, error) {
	var txs []core.BroadcastedTransaction
	add := func(tx core.BroadcastedTransaction, err error) error {
		if err != nil {
			return err
		}
		txs = append(txs, tx)
		return nil
	}

	declares := []func() (core.BroadcastedTransaction, error){
		func() (core.BroadcastedTransaction, error) {
			return b.declareV0(native.ERC20ClassHash, native.ERC20Program().DeprecatedClass())
		},
		func() (core.BroadcastedTransaction, error) {
			return b.declareV0(native.UDCClassHash, native.UDCProgram().DeprecatedClass())
		},
		func() (core.BroadcastedTransaction, error) {
			return b.declareV2(native.AccountClassHash, native.AccountCompiledClassHash, native.AccountProgram().SierraClass())
		},
	}
	for _, declare := range declares {
		if err := add(declare()); err != nil {
			return nil, err
		}
	}
	for _, class := range b.cfg.Classes {
		var err error
		if deprecated, ok := class.Class.(*core.Cairo0Class); ok {
			err = add(b.declareV0(class.ClassHash, deprecated))
		} else {
			err = add(b.declareV2(class.ClassHash, class.CompiledClassHash, class.Class))
		}
		if err != nil {
			return nil, err
		}
	}

	supply := b.totalSupply()
	minter := MinterAddress()
	if err := add(b.deploy(minter, native.AccountClassHash, minterSalt, []*felt.Felt{new(felt.Felt)})); err != nil {
		return nil, err
	}
	for _, token := range []FeeToken{b.cfg.ETH, b.cfg.STRK} {
		calldata, err := tokenCalldata(token, supply, minter)
		if err != nil {
			return nil, err
		}
		if err := add(b.deploy(token.Address, native.ERC20ClassHash, new(felt.Felt), calldata)); err != nil {
			return nil, err
		}
	}
	if b.cfg.UniversalDeployer != nil {
		if err := add(b.deploy(b.cfg.UniversalDeployer, native.UDCClassHash, new(felt.Felt), nil)); err != nil {
			return nil, err
		}
	}

	var funded []fund
	for i := range b.accounts {
		acc := &b.accounts[i]
		acc.fillDefaults()
		if err := add(b.deploy(acc.Address, acc.ClassHash, acc.Salt, []*felt.Felt{acc.PublicKey})); err != nil {
			return nil, err
		}
		b.addStorage(acc.Address, acc.Storage)
		funded = append(funded, fund{acc.Address, acc.Balance})
	}
	for _, contract := range b.cfg.Contracts {
		if err := add(b.deploy(contract.Address, contract.ClassHash, new(felt.Felt), contract.ConstructorCalldata)); err != nil {
			return nil, err
		}
		b.addStorage(contract.Address, contract.Storage)
		funded = append(funded, fund{contract.Address, contract.Balance})
	}

	if !supply.IsZero() {
		if err := add(b.fundInvoke(minter, funded)); err != nil {
			return nil, err
		}
	}
	return txs, nil
}

type fund struct {
	to, amount *felt.Felt
}

func (b *builder) totalSupply() *felt.Felt {
	total := new(felt.Felt)
	for _, acc := range b.accounts {
		if acc.Balance != nil {
			total.Add(total, acc.Balance)
		}
	}
	for _, contract := range b.cfg.Contracts {
		if contract.Balance != nil {
			total.Add(total, contract.Balance)
		}
	}
	return total
}

func (b *builder) addStorage(addr *felt.Felt, storage map[felt.Felt]*felt.Felt) {
	for key, value := range storage {
		b.storage = append(b.storage, storageWrite{addr: addr, key: &key, value: value})
	}
}

func (b *builder) declareV0(classHash *felt.Felt, class core.Class) (core.BroadcastedTransaction, error) {
	tx := &core.DeclareTransaction{
		ClassHash:     classHash,
		SenderAddress: new(felt.Felt),
		Version:       core.NewTransactionVersion(0),
	}
	return b.hashed(tx, class)
}

func (b *builder) declareV2(classHash, compiledClassHash *felt.Felt, class core.Class) (core.BroadcastedTransaction, error) {
	if compiledClassHash == nil || compiledClassHash.IsZero() {
		return core.BroadcastedTransaction{}, fmt.Errorf("class %s: %w", classHash, vm.ErrCompiledClassMismatch)
	}
	tx := &core.DeclareTransaction{
		ClassHash:         classHash,
		CompiledClassHash: compiledClassHash,
		SenderAddress:     new(felt.Felt),
		Nonce:             new(felt.Felt),
		Version:           core.NewTransactionVersion(2),
	}
	return b.hashed(tx, class)
}

func (b *builder) deploy(addr, classHash, salt *felt.Felt, calldata []*felt.Felt) (core.BroadcastedTransaction, error) {
	if calldata == nil {
		calldata = []*felt.Felt{}
	}
	tx := &core.DeployTransaction{
		ContractAddressSalt: salt,
		ContractAddress:     addr,
		ClassHash:           classHash,
		ConstructorCallData: calldata,
		Version:             core.NewTransactionVersion(0),
	}
	return b.hashed(tx, nil)
}

// fundInvoke transfers each allocation its balance in both fee tokens.
func (b *builder) fundInvoke(minter *felt.Felt, funded []fund) (core.BroadcastedTransaction, error) {
	transfer := crypto.Selector("transfer")
	calls := 0
	var body []*felt.Felt
	for _, token := range []*felt.Felt{b.cfg.ETH.Address, b.cfg.STRK.Address} {
		for _, f := range funded {
			if f.amount == nil || f.amount.IsZero() {
				continue
			}
			low, high := limbs(f.amount)
			body = append(body, token, transfer, new(felt.Felt).SetUint64(3), f.to, low, high)
			calls++
		}
	}
	tx := &core.InvokeTransaction{
		SenderAddress:        minter,
		CallData:             append([]*felt.Felt{new(felt.Felt).SetUint64(uint64(calls))}, body...),
		TransactionSignature: []*felt.Felt{},
		MaxFee:               new(felt.Felt),
		Nonce:                new(felt.Felt),
		Version:              core.NewTransactionVersion(1),
	}
	return b.hashed(tx, nil)
}

func (b *builder) hashed(tx core.Transaction, class core.Class) (core.BroadcastedTransaction, error) {
	hash, err := core.TransactionHash(tx, b.chainID)
	if err != nil {
		return core.BroadcastedTransaction{}, err
	}
	switch t := tx.(type) {
	case *core.DeclareTransaction:
		t.TransactionHash = hash
	case *core.DeployTransaction:
		t.TransactionHash = hash
	case *core.InvokeTransaction:
		t.TransactionHash = hash
	}
	return core.BroadcastedTransaction{Transaction: tx, DeclaredClass: class}, nil
}

func tokenCalldata(token FeeToken, supply, recipient *felt.Felt) ([]*felt.Felt, error) {
	name, err := utils.EncodeShortString(token.Name)
	if err != nil {
		return nil, fmt.Errorf("fee token name: %w", err)
	}
	symbol, err := utils.EncodeShortString(token.Symbol)
	if err != nil {
		return nil, fmt.Errorf("fee token symbol: %w", err)
	}
	low, high := limbs(supply)
	return []*felt.Felt{name, symbol, new(felt.Felt).SetUint64(uint64(token.Decimals)), low, high, recipient}, nil
}

// limbs splits v into its low and high 128 bits.
func limbs(v *felt.Felt) (low, high *felt.Felt) {
	b := v.Bytes()
	return new(felt.Felt).SetBytes(b[16:]), new(felt.Felt).SetBytes(b[:16])
}
