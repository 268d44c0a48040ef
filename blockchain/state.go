package blockchain

import (
	"errors"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/db"
	"github.com/NethermindEth/katana/state"
)

// StateCloser releases the database snapshot backing a state view.
type StateCloser = func() error

// HeadState returns a view of the state after the latest block. On an empty chain it reads as an
// empty state.
func (b *Blockchain) HeadState() (state.Reader, StateCloser, error) {
	b.listener.OnRead("HeadState")
	txn, err := b.database.NewTransaction(false)
	if err != nil {
		return nil, nil, err
	}
	return b.wrapFork(state.NewLatest(txn)), txn.Discard, nil
}

// StateAtBlockNumber returns a view of the state right after block number was applied.
func (b *Blockchain) StateAtBlockNumber(number uint64) (state.Reader, StateCloser, error) {
	b.listener.OnRead("StateAtBlockNumber")
	txn, err := b.database.NewTransaction(false)
	if err != nil {
		return nil, nil, err
	}

	height, err := chainHeight(txn)
	if err == nil && number > height {
		err = ErrBlockNotFound
	} else if errors.Is(err, db.ErrKeyNotFound) {
		err = ErrBlockNotFound
	}
	if err != nil {
		return nil, nil, errors.Join(err, txn.Discard())
	}

	if number == height {
		return b.wrapFork(state.NewLatest(txn)), txn.Discard, nil
	}
	return b.wrapFork(state.NewHistorical(txn, number)), txn.Discard, nil
}

func (b *Blockchain) StateAtBlockHash(hash *felt.Felt) (state.Reader, StateCloser, error) {
	b.listener.OnRead("StateAtBlockHash")
	var number uint64
	if err := b.database.View(func(txn db.Transaction) error {
		var err error
		number, err = blockNumberByHash(txn, hash)
		return err
	}); err != nil {
		return nil, nil, err
	}
	return b.StateAtBlockNumber(number)
}

func (b *Blockchain) wrapFork(local state.Reader) state.Reader {
	if b.forkCache == nil {
		return local
	}
	return state.NewForked(local, b.forkCache)
}

func (b *Blockchain) StateUpdateByNumber(number uint64) (update *core.StateUpdate, err error) {
	b.listener.OnRead("StateUpdateByNumber")
	return update, b.database.View(func(txn db.Transaction) error {
		update, err = getEncoded[core.StateUpdate](txn, db.StateUpdateKey(number))
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrBlockNotFound
		}
		return err
	})
}

func (b *Blockchain) StateUpdateByHash(hash *felt.Felt) (update *core.StateUpdate, err error) {
	b.listener.OnRead("StateUpdateByHash")
	return update, b.database.View(func(txn db.Transaction) error {
		number, err := blockNumberByHash(txn, hash)
		if err != nil {
			return err
		}
		update, err = getEncoded[core.StateUpdate](txn, db.StateUpdateKey(number))
		return err
	})
}
