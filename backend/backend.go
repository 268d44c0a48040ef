// Package backend is the composition root of the chain: it owns the blockchain log, the executor
// factory and the gas oracle, seeds genesis and seals the blocks the producer builds.
package backend

import (
	"context"
	"fmt"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/clients/starknet"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/db"
	"github.com/NethermindEth/katana/gasoracle"
	"github.com/NethermindEth/katana/genesis"
	"github.com/NethermindEth/katana/state"
	"github.com/NethermindEth/katana/utils"
	"github.com/NethermindEth/katana/vm"
	"github.com/NethermindEth/katana/vm/native"
	"github.com/pkg/errors"
)

const (
	DefaultInvokeMaxSteps   = 10_000_000
	DefaultValidateMaxSteps = 1_000_000
)

// ErrChainIDMismatch is returned when the database was created for another chain.
var ErrChainIDMismatch = blockchain.ErrChainIDMismatch

// ForkProvider reads the chain being forked.
type ForkProvider interface {
	state.RemoteProvider
	ChainID(ctx context.Context) (*felt.Felt, error)
	BlockHeader(ctx context.Context, id starknet.BlockID) (*core.Header, error)
}

type ForkConfig struct {
	Provider ForkProvider
	// Block to fork at. The head of the forked chain when nil.
	Block *uint64
}

type Config struct {
	ChainID utils.ChainID
	// Genesis of a fresh chain. genesis.Default when nil.
	Genesis          *genesis.Config
	InvokeMaxSteps   uint64
	ValidateMaxSteps uint64
	Fork             *ForkConfig
}

type Backend struct {
	chain   *blockchain.Blockchain
	factory vm.ExecutorFactory
	oracle  gasoracle.Oracle
	genesis *genesis.Config
	log     utils.SimpleLogger
}

// New opens the chain stored in database, creating block 0 when the database is empty.
func New(ctx context.Context, cfg *Config, database db.DB, oracle gasoracle.Oracle, log utils.SimpleLogger) (*Backend, error) {
	chainID := cfg.ChainID
	var remoteHead *core.Header
	if cfg.Fork != nil {
		remoteID, err := cfg.Fork.Provider.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("forked chain id: %w", err)
		}
		chainID = utils.ChainIDFromFelt(remoteID)
	}

	gen := cfg.Genesis
	if gen == nil {
		gen = genesis.Default(chainID)
	}
	gen.ChainID = chainID

	b := &Backend{
		chain:   blockchain.New(database, chainID),
		oracle:  oracle,
		genesis: gen,
		log:     log,
	}
	if err := b.chain.VerifyChainID(); err != nil {
		return nil, err
	}

	invokeSteps, validateSteps := cfg.InvokeMaxSteps, cfg.ValidateMaxSteps
	if invokeSteps == 0 {
		invokeSteps = DefaultInvokeMaxSteps
	}
	if validateSteps == 0 {
		validateSteps = DefaultValidateMaxSteps
	}
	b.factory = native.NewFactory(&vm.ChainConfig{
		ChainID:          chainID,
		FeeTokens:        vm.FeeTokens{ETH: gen.ETH.Address, STRK: gen.STRK.Address},
		InvokeMaxSteps:   invokeSteps,
		ValidateMaxSteps: validateSteps,
	}, native.DefaultRegistry(), log)

	_, err := b.chain.Height()
	fresh := errors.Is(err, db.ErrKeyNotFound)
	if err != nil && !fresh {
		return nil, err
	}

	if cfg.Fork != nil {
		if remoteHead, err = b.forkHead(ctx, cfg.Fork, fresh); err != nil {
			return nil, err
		}
		b.chain.WithForkCache(state.NewForkCache(cfg.Fork.Provider, remoteHead.Number))
		log.Infow("Forking chain", "chainID", chainID, "block", remoteHead.Number, "hash", remoteHead.Hash)
	}

	if fresh {
		if remoteHead != nil {
			err = b.initForkedGenesis(remoteHead)
		} else {
			err = b.initGenesis()
		}
		if err != nil {
			return nil, errors.Wrap(err, "initialise genesis")
		}
	}
	return b, nil
}

// forkHead finds the block the chain is forked at. A chain that already has a block 0 keeps the
// block it was first forked at.
func (b *Backend) forkHead(ctx context.Context, fork *ForkConfig, fresh bool) (*core.Header, error) {
	id := starknet.LatestBlock()
	switch {
	case !fresh:
		first, err := b.chain.HeaderByNumber(0)
		if err != nil {
			return nil, err
		}
		id = starknet.BlockByHash(first.ParentHash)
	case fork.Block != nil:
		id = starknet.BlockByNumber(*fork.Block)
	}

	head, err := fork.Provider.BlockHeader(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("forked block header: %w", err)
	}
	return head, nil
}

func (b *Backend) initGenesis() error {
	base, closer, err := b.chain.HeadState()
	if err != nil {
		return err
	}
	defer b.closeState(closer)

	res, err := genesis.Block(b.genesis, b.factory, base)
	if err != nil {
		return err
	}
	if _, err := b.chain.Finalise(res.Block, res.StateDiff, res.Classes, res.Traces); err != nil {
		return err
	}
	b.log.Infow("Genesis block created", "hash", res.Block.Hash, "root", res.Block.GlobalStateRoot)
	return nil
}

func (b *Backend) initForkedGenesis(head *core.Header) error {
	base, closer, err := b.chain.HeadState()
	if err != nil {
		return err
	}
	defer b.closeState(closer)

	block, update, classes, err := genesis.Forked(b.genesis, head, base)
	if err != nil {
		return err
	}
	if err := b.chain.Store(block, update, classes, nil); err != nil {
		return err
	}
	b.log.Infow("Forked genesis block created", "hash", block.Hash, "parent", block.ParentHash)
	return nil
}

func (b *Backend) closeState(closer blockchain.StateCloser) {
	if err := closer(); err != nil {
		b.log.Errorw("Failed to close state", "err", err)
	}
}

func (b *Backend) Chain() *blockchain.Blockchain {
	return b.chain
}

func (b *Backend) ExecutorFactory() vm.ExecutorFactory {
	return b.factory
}

func (b *Backend) GasOracle() gasoracle.Oracle {
	return b.oracle
}

func (b *Backend) Genesis() *genesis.Config {
	return b.genesis
}

// ChainCfgEnv is the part of the execution environment shared by every block.
func (b *Backend) ChainCfgEnv() *vm.ChainConfig {
	return b.factory.Config()
}

// HeadState returns a view of the state after the latest block.
func (b *Backend) HeadState() (state.Reader, blockchain.StateCloser, error) {
	return b.chain.HeadState()
}
