package genesis

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/state"
	"github.com/NethermindEth/katana/vm/native"
)

// Forked builds block 0 of a chain forked at head. The block inherits the state root, the
// timestamp and the gas prices of head and points at it as its parent.
//
// The fee tokens already live on the forked chain, so the allocations are not funded by
// transactions: their contracts and balances are written straight into storage on top of base.
func Forked(cfg *Config, head *core.Header, base state.Reader) (*core.Block, *core.StateUpdate, map[felt.Felt]core.Class, error) {
	accounts, err := cfg.AllAccounts()
	if err != nil {
		return nil, nil, nil, err
	}

	pending := state.NewPending(base, 0)
	if _, err := base.Class(native.AccountClassHash); errors.Is(err, state.ErrClassNotFound) {
		pending.DeclareClass(native.AccountClassHash, native.AccountCompiledClassHash, native.AccountProgram().SierraClass())
	} else if err != nil {
		return nil, nil, nil, fmt.Errorf("look up account class: %w", err)
	}

	tokens := []*felt.Felt{cfg.ETH.Address, cfg.STRK.Address}
	allocate := func(addr, classHash, balance *felt.Felt, storage map[felt.Felt]*felt.Felt) error {
		if err := pending.SetClassHash(addr, classHash); err != nil {
			return err
		}
		if balance != nil {
			low, high := limbs(balance)
			for _, token := range tokens {
				key := native.BalanceKey(addr)
				pending.SetStorage(token, key, low)
				pending.SetStorage(token, new(felt.Felt).Add(key, new(felt.Felt).SetUint64(1)), high)
			}
		}
		for key, value := range storage {
			pending.SetStorage(addr, &key, value)
		}
		return nil
	}

	for i := range accounts {
		acc := &accounts[i]
		acc.fillDefaults()
		if err := allocate(acc.Address, acc.ClassHash, acc.Balance, acc.Storage); err != nil {
			return nil, nil, nil, fmt.Errorf("allocate account %s: %w", acc.Address, err)
		}
		pending.SetStorage(acc.Address, native.PublicKeyKey(), acc.PublicKey)
	}
	for _, contract := range cfg.Contracts {
		if err := allocate(contract.Address, contract.ClassHash, contract.Balance, contract.Storage); err != nil {
			return nil, nil, nil, fmt.Errorf("allocate contract %s: %w", contract.Address, err)
		}
	}

	diff := pending.StateDiff()
	commitments, err := core.Commitments(nil, nil, diff)
	if err != nil {
		return nil, nil, nil, err
	}
	header := &core.Header{
		ParentHash:            head.Hash,
		Number:                0,
		GlobalStateRoot:       head.GlobalStateRoot,
		SequencerAddress:      cfg.SequencerAddress,
		Timestamp:             head.Timestamp,
		ProtocolVersion:       core.ProtocolVersion,
		L1GasPrice:            head.L1GasPrice.Clone(),
		L1DataGasPrice:        head.L1DataGasPrice.Clone(),
		L1DAMode:              head.L1DAMode,
		StateDiffLength:       diff.Length(),
		TransactionCommitment: commitments.TransactionCommitment,
		EventCommitment:       commitments.EventCommitment,
		ReceiptCommitment:     commitments.ReceiptCommitment,
		StateDiffCommitment:   commitments.StateDiffCommitment,
	}
	if header.Hash, err = core.BlockHash(header); err != nil {
		return nil, nil, nil, err
	}

	update := &core.StateUpdate{
		BlockHash: header.Hash,
		NewRoot:   head.GlobalStateRoot,
		OldRoot:   new(felt.Felt),
		StateDiff: diff,
	}
	return &core.Block{Header: header}, update, pending.Classes(), nil
}
