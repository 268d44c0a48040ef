package mempool_test

import (
	"errors"
	"testing"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/db/pebble"
	"github.com/NethermindEth/katana/genesis"
	"github.com/NethermindEth/katana/mempool"
	"github.com/NethermindEth/katana/mocks"
	"github.com/NethermindEth/katana/state"
	"github.com/NethermindEth/katana/utils"
	"github.com/NethermindEth/katana/vm"
	"github.com/NethermindEth/katana/vm/native"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type headSource struct {
	chain *blockchain.Blockchain
	env   *core.BlockEnv
}

func (s *headSource) ValidationState() (state.Reader, *core.BlockEnv, func() error, error) {
	reader, closer, err := s.chain.HeadState()
	return reader, s.env, closer, err
}

type validatorChain struct {
	chain    *blockchain.Blockchain
	factory  *native.Factory
	accounts []genesis.DevAccount
	source   *headSource
}

func newValidatorChain(t *testing.T) *validatorChain {
	t.Helper()
	cfg := genesis.Default(utils.DefaultChainID)
	cfg.AccountsCount = 2

	database := pebble.NewMemTest(t)
	factory := native.NewFactory(&vm.ChainConfig{
		ChainID:          cfg.ChainID,
		FeeTokens:        vm.FeeTokens{ETH: cfg.ETH.Address, STRK: cfg.STRK.Address},
		InvokeMaxSteps:   1_000_000,
		ValidateMaxSteps: 100_000,
	}, native.DefaultRegistry(), utils.NewNopZapLogger())

	txn, err := database.NewTransaction(false)
	require.NoError(t, err)
	result, err := genesis.Block(cfg, factory, state.NewLatest(txn))
	require.NoError(t, txn.Discard())
	require.NoError(t, err)

	chain := blockchain.New(database, cfg.ChainID)
	require.NoError(t, chain.VerifyChainID())
	_, err = chain.Finalise(result.Block, result.StateDiff, result.Classes, result.Traces)
	require.NoError(t, err)

	accounts, err := cfg.DevAccounts()
	require.NoError(t, err)
	env := cfg.Env()
	env.Number = 1
	return &validatorChain{
		chain:    chain,
		factory:  factory,
		accounts: accounts,
		source:   &headSource{chain: chain, env: env},
	}
}

// transfer signs an invoke v1 sending 1 wei of ETH from account to itself.
func (c *validatorChain) transfer(t *testing.T, account genesis.DevAccount, nonce uint64, maxFee *felt.Felt) core.BroadcastedTransaction {
	t.Helper()
	tx := &core.InvokeTransaction{
		SenderAddress: account.Address,
		CallData: []*felt.Felt{
			f(1), genesis.ETHAddress, crypto.Selector("transfer"), f(3), account.Address, f(1), f(0),
		},
		MaxFee:  maxFee,
		Nonce:   f(nonce),
		Version: core.NewTransactionVersion(1),
	}
	hash, err := core.TransactionHash(tx, utils.DefaultChainID.Felt())
	require.NoError(t, err)
	tx.TransactionHash = hash
	r, s, err := crypto.Sign(account.PrivateKey, hash)
	require.NoError(t, err)
	tx.TransactionSignature = []*felt.Felt{r, s}
	return core.BroadcastedTransaction{Transaction: tx}
}

func TestStatefulValidator(t *testing.T) {
	c := newValidatorChain(t)
	validator := mempool.NewStatefulValidator(c.factory, c.source, c.chain, mempool.ValidatorConfig{})
	account := c.accounts[0]
	maxFee := utils.MustHexToFelt("0x100000000000000")

	t.Run("valid", func(t *testing.T) {
		require.NoError(t, validator.Validate(c.transfer(t, account, 0, maxFee)))
	})

	t.Run("future nonce", func(t *testing.T) {
		require.NoError(t, validator.Validate(c.transfer(t, account, 3, maxFee)))
	})

	t.Run("bad signature", func(t *testing.T) {
		tx := c.transfer(t, account, 0, maxFee)
		tx.Transaction.(*core.InvokeTransaction).TransactionSignature[0] = f(1)
		err := validator.Validate(tx)
		var invalidErr *mempool.InvalidTransactionError
		require.ErrorAs(t, err, &invalidErr)
		require.ErrorIs(t, err, vm.ErrValidationFailure)
	})

	t.Run("max fee too low", func(t *testing.T) {
		err := validator.Validate(c.transfer(t, account, 0, f(1)))
		require.ErrorIs(t, err, vm.ErrInsufficientMaxFee)
	})

	t.Run("fees disabled", func(t *testing.T) {
		noFee := mempool.NewStatefulValidator(c.factory, c.source, c.chain, mempool.ValidatorConfig{DisableFee: true})
		require.NoError(t, noFee.Validate(c.transfer(t, account, 0, f(0))))
	})

	t.Run("validation disabled", func(t *testing.T) {
		noValidate := mempool.NewStatefulValidator(c.factory, c.source, c.chain, mempool.ValidatorConfig{DisableValidate: true})
		tx := c.transfer(t, account, 0, maxFee)
		tx.Transaction.(*core.InvokeTransaction).TransactionSignature = []*felt.Felt{}
		require.NoError(t, noValidate.Validate(tx))
	})

	t.Run("class already declared", func(t *testing.T) {
		err := validator.Validate(core.BroadcastedTransaction{
			Transaction: &core.DeclareTransaction{
				TransactionHash:   f(0xdec),
				ClassHash:         native.AccountClassHash,
				CompiledClassHash: native.AccountCompiledClassHash,
				SenderAddress:     account.Address,
				Nonce:             f(0),
				MaxFee:            maxFee,
				Version:           core.NewTransactionVersion(2),
			},
			DeclaredClass: native.AccountProgram().SierraClass(),
		})
		require.ErrorIs(t, err, vm.ErrClassAlreadyDeclared)
	})

	t.Run("included in the chain", func(t *testing.T) {
		head, err := c.chain.Head()
		require.NoError(t, err)
		err = validator.Validate(core.BroadcastedTransaction{Transaction: head.Transactions[0]})
		require.ErrorIs(t, err, mempool.ErrDuplicateTx)
	})

	t.Run("in a pool", func(t *testing.T) {
		pool := mempool.New(validator, mempool.FIFO{}, utils.NewNopZapLogger())
		hash, err := pool.Add(c.transfer(t, c.accounts[1], 0, maxFee))
		require.NoError(t, err)
		assert.True(t, pool.Contains(hash))

		_, err = pool.Add(c.transfer(t, c.accounts[1], 1, f(1)))
		require.ErrorIs(t, err, vm.ErrInsufficientMaxFee)
		assert.Equal(t, 1, pool.Len())
	})
}

func TestStatefulValidatorChecks(t *testing.T) {
	ctrl := gomock.NewController(t)
	reader := mocks.NewMockStateReader(ctrl)
	factory := mocks.NewMockExecutorFactory(ctrl)
	env := &core.BlockEnv{Number: 3}

	closed := 0
	source := mempool.StateSourceFunc(func() (state.Reader, *core.BlockEnv, func() error, error) {
		return reader, env, func() error { closed++; return nil }, nil
	})
	v := mempool.NewStatefulValidator(factory, source, nil, mempool.ValidatorConfig{DisableFee: true})

	t.Run("nonce below account nonce", func(t *testing.T) {
		reader.EXPECT().ContractNonce(f(0x10)).Return(f(5), nil)
		err := v.Validate(invoke(1, 0x10, 4))
		require.ErrorIs(t, err, vm.ErrInvalidNonce)
		var invalidErr *mempool.InvalidTransactionError
		assert.ErrorAs(t, err, &invalidErr)
	})

	t.Run("class already declared", func(t *testing.T) {
		declare := core.BroadcastedTransaction{Transaction: &core.DeclareTransaction{
			TransactionHash: f(2),
			ClassHash:       f(0xc1a55),
			SenderAddress:   f(0x10),
			Nonce:           f(5),
			Version:         core.NewTransactionVersion(1),
		}}
		reader.EXPECT().Class(f(0xc1a55)).Return(&state.DeclaredClass{}, nil)
		require.ErrorIs(t, v.Validate(declare), vm.ErrClassAlreadyDeclared)
	})

	t.Run("future nonce is simulated", func(t *testing.T) {
		executor := mocks.NewMockExecutor(ctrl)
		tx := invoke(3, 0x10, 9)
		reader.EXPECT().ContractNonce(f(0x10)).Return(f(5), nil)
		factory.EXPECT().NewExecutor(reader, env, vm.SimulationFlags{
			SkipFeeTransfer:       true,
			SkipAccountValidation: true,
		}).Return(executor)
		executor.EXPECT().Simulate([]core.BroadcastedTransaction{tx}).Return([]vm.ExecutionResult{{}})
		require.NoError(t, v.Validate(tx))
	})

	t.Run("execution failure", func(t *testing.T) {
		executor := mocks.NewMockExecutor(ctrl)
		reason := errors.New("invalid signature")
		reader.EXPECT().ContractNonce(gomock.Any()).Return(f(5), nil)
		factory.EXPECT().NewExecutor(gomock.Any(), gomock.Any(), gomock.Any()).Return(executor)
		executor.EXPECT().Simulate(gomock.Any()).Return([]vm.ExecutionResult{{Err: reason}})
		err := v.Validate(invoke(4, 0x10, 5))
		require.ErrorIs(t, err, reason)
		var invalidErr *mempool.InvalidTransactionError
		assert.ErrorAs(t, err, &invalidErr)
	})

	t.Run("state errors are not rejections", func(t *testing.T) {
		unavailable := errors.New("state unavailable")
		reader.EXPECT().ContractNonce(gomock.Any()).Return(nil, unavailable)
		err := v.Validate(invoke(5, 0x10, 5))
		require.ErrorIs(t, err, unavailable)
		var invalidErr *mempool.InvalidTransactionError
		assert.False(t, errors.As(err, &invalidErr))
	})

	assert.Equal(t, 5, closed)
}
