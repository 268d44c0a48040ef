// Package mempool holds transactions between their submission and their inclusion in a block.
package mempool

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/feed"
	"github.com/NethermindEth/katana/utils"
	lru "github.com/hashicorp/golang-lru/v2"
)

const rejectedCacheSize = 1024

// PendingTx is a validated transaction waiting in the pool.
type PendingTx struct {
	// Arrival order, unique within the pool.
	ID       uint64
	Tx       core.BroadcastedTransaction
	Priority uint64
	Added    time.Time
}

func (p *PendingTx) Hash() *felt.Felt {
	return p.Tx.Transaction.Hash()
}

// before reports whether p is taken ahead of other.
func (p *PendingTx) before(other *PendingTx) bool {
	if p.Priority != other.Priority {
		return p.Priority > other.Priority
	}
	return p.ID < other.ID
}

// NonceReader gives the nonce the next transaction of an account must carry.
type NonceReader interface {
	ContractNonce(addr *felt.Felt) (*felt.Felt, error)
}

// Pool keeps valid transactions ordered by an Ordering. Transactions of the same sender are only
// handed out in nonce order.
type Pool struct {
	validator Validator
	ordering  Ordering
	log       utils.SimpleLogger
	listener  EventListener
	maxTxs    int

	mu       sync.RWMutex
	txs      []*PendingTx // sorted by before
	byHash   map[felt.Felt]*PendingTx
	nextID   uint64
	rejected *lru.Cache[felt.Felt, error]

	txPushed chan struct{}
	feed     *feed.Feed[*PendingTx]
}

func New(validator Validator, ordering Ordering, log utils.SimpleLogger) *Pool {
	rejected, err := lru.New[felt.Felt, error](rejectedCacheSize)
	if err != nil {
		panic(err)
	}
	return &Pool{
		validator: validator,
		ordering:  ordering,
		log:       log,
		listener:  &SelectiveListener{},
		byHash:    make(map[felt.Felt]*PendingTx),
		rejected:  rejected,
		txPushed:  make(chan struct{}, 1),
		feed:      feed.New[*PendingTx](),
	}
}

func (p *Pool) WithListener(listener EventListener) *Pool {
	p.listener = listener
	return p
}

// WithMaxTxs bounds the number of transactions the pool holds. Zero means unbounded.
func (p *Pool) WithMaxTxs(n int) *Pool {
	p.maxTxs = n
	return p
}

// Add validates tx and queues it. Refused transactions come back as *InvalidTransactionError;
// any other error means the transaction could not be validated at all.
func (p *Pool) Add(tx core.BroadcastedTransaction) (*felt.Felt, error) {
	hash := tx.Transaction.Hash()
	p.log.Debugw("Transaction received", "hash", hash)

	if p.Contains(hash) {
		return nil, invalid(ErrDuplicateTx)
	}
	if err := p.validator.Validate(tx); err != nil {
		var invalidErr *InvalidTransactionError
		if errors.As(err, &invalidErr) {
			p.log.Debugw("Invalid transaction", "hash", hash, "reason", invalidErr.Reason)
			p.Reject(hash, invalidErr.Reason)
			return nil, err
		}
		p.log.Errorw("Failed to validate transaction", "hash", hash, "err", err)
		return nil, fmt.Errorf("validate transaction %s: %w", hash, err)
	}

	p.mu.Lock()
	if _, ok := p.byHash[*hash]; ok {
		p.mu.Unlock()
		return nil, invalid(ErrDuplicateTx)
	}
	if p.maxTxs > 0 && len(p.txs) >= p.maxTxs {
		p.mu.Unlock()
		return nil, ErrPoolFull
	}
	pending := &PendingTx{
		ID:       p.nextID,
		Tx:       tx,
		Priority: p.ordering.Priority(tx.Transaction),
		Added:    time.Now(),
	}
	p.nextID++
	p.insert(pending)
	size := len(p.txs)
	p.mu.Unlock()

	p.listener.OnAdded(size)
	p.notify(pending)
	return hash, nil
}

func (p *Pool) notify(tx *PendingTx) {
	select {
	case p.txPushed <- struct{}{}:
	default:
	}
	p.feed.Send(tx)
}

// insert must be called with mu held.
func (p *Pool) insert(tx *PendingTx) {
	i := sort.Search(len(p.txs), func(i int) bool { return tx.before(p.txs[i]) })
	p.txs = append(p.txs, nil)
	copy(p.txs[i+1:], p.txs[i:])
	p.txs[i] = tx
	p.byHash[*tx.Hash()] = tx
}

// Take removes and returns up to max ready transactions in order, all of them when max is not
// positive. A transaction is ready when its nonce is the next one of its sender, counting the
// transactions taken before it. Transactions with a nonce below the sender's are dropped.
func (p *Pool) Take(nonces NonceReader, max int) ([]*PendingTx, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	expected := make(map[felt.Felt]*felt.Felt)
	nextNonce := func(sender *felt.Felt) (*felt.Felt, error) {
		if n, ok := expected[*sender]; ok {
			return n, nil
		}
		n, err := nonces.ContractNonce(sender)
		if err != nil {
			return nil, err
		}
		expected[*sender] = n
		return n, nil
	}

	snapshot := p.txs
	restore := func() {
		p.txs = snapshot
		for _, tx := range snapshot {
			p.byHash[*tx.Hash()] = tx
		}
	}

	var taken []*PendingTx
	for progress := true; progress && (max <= 0 || len(taken) < max); {
		progress = false
		kept := make([]*PendingTx, 0, len(p.txs))
		for _, tx := range p.txs {
			if max > 0 && len(taken) >= max {
				kept = append(kept, tx)
				continue
			}

			sender, nonce := core.SenderAddress(tx.Tx.Transaction), core.TransactionNonce(tx.Tx.Transaction)
			if _, isL1 := tx.Tx.Transaction.(*core.L1HandlerTransaction); isL1 || sender == nil || nonce == nil {
				taken = append(taken, tx)
				progress = true
				continue
			}

			want, err := nextNonce(sender)
			if err != nil {
				restore()
				return nil, err
			}
			switch nonce.Cmp(want) {
			case 0:
				taken = append(taken, tx)
				expected[*sender] = new(felt.Felt).Add(want, new(felt.Felt).SetUint64(1))
				progress = true
			case -1:
				p.log.Debugw("Dropping transaction with stale nonce", "hash", tx.Hash(), "nonce", nonce, "expected", want)
				p.Reject(tx.Hash(), invalid(fmt.Errorf("nonce %s is below the account nonce %s", nonce, want)))
				delete(p.byHash, *tx.Hash())
			default:
				kept = append(kept, tx)
			}
		}
		p.txs = kept
	}

	for _, tx := range taken {
		delete(p.byHash, *tx.Hash())
	}
	p.listener.OnTaken(len(taken), len(p.txs))
	return taken, nil
}

// Return puts transactions that were taken but not mined back in their original place.
func (p *Pool) Return(txs []*PendingTx) {
	if len(txs) == 0 {
		return
	}
	p.mu.Lock()
	for _, tx := range txs {
		if _, ok := p.byHash[*tx.Hash()]; !ok {
			p.insert(tx)
		}
	}
	p.mu.Unlock()

	select {
	case p.txPushed <- struct{}{}:
	default:
	}
}

// Revalidate drops the transactions whose nonce is already used in the given state and returns
// their hashes.
func (p *Pool) Revalidate(nonces NonceReader) ([]*felt.Felt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var evicted []*felt.Felt
	kept := make([]*PendingTx, 0, len(p.txs))
	for i, tx := range p.txs {
		sender, nonce := core.SenderAddress(tx.Tx.Transaction), core.TransactionNonce(tx.Tx.Transaction)
		if sender == nil || nonce == nil {
			kept = append(kept, tx)
			continue
		}
		if _, isL1 := tx.Tx.Transaction.(*core.L1HandlerTransaction); isL1 {
			kept = append(kept, tx)
			continue
		}

		current, err := nonces.ContractNonce(sender)
		if err != nil {
			p.txs = append(kept, p.txs[i:]...)
			return evicted, err
		}
		if nonce.Cmp(current) < 0 {
			evicted = append(evicted, tx.Hash())
			delete(p.byHash, *tx.Hash())
			p.rejected.Add(*tx.Hash(), invalid(fmt.Errorf("nonce %s is below the account nonce %s", nonce, current)))
			continue
		}
		kept = append(kept, tx)
	}
	p.txs = kept
	if len(evicted) > 0 {
		p.log.Debugw("Evicted stale transactions", "count", len(evicted))
	}
	return evicted, nil
}

// Reject records why a transaction was refused so its status can be reported.
func (p *Pool) Reject(hash *felt.Felt, reason error) {
	p.rejected.Add(*hash, reason)
	p.listener.OnRejected(reason)
}

// Rejected returns the reason hash was refused, nil if it was not.
func (p *Pool) Rejected(hash *felt.Felt) error {
	reason, _ := p.rejected.Get(*hash)
	return reason
}

func (p *Pool) Contains(hash *felt.Felt) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.byHash[*hash]
	return ok
}

func (p *Pool) Get(hash *felt.Felt) (*PendingTx, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	tx, ok := p.byHash[*hash]
	return tx, ok
}

func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.txs)
}

// Pending returns the queued transactions in the order they would be taken, ignoring nonces.
func (p *Pool) Pending() []*PendingTx {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*PendingTx(nil), p.txs...)
}

// Wait returns a channel that receives a value after a transaction is added.
func (p *Pool) Wait() <-chan struct{} {
	return p.txPushed
}

// Subscribe streams the transactions added to the pool.
func (p *Pool) Subscribe() *feed.Subscription[*PendingTx] {
	return p.feed.Subscribe()
}
