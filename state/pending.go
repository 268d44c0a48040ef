package state

import (
	"maps"
	"slices"
	"sync"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
)

var _ Reader = (*Pending)(nil)

// Pending is a write-through overlay over a Reader. Writes land in an in-memory state diff and
// reads fall back to the underlying reader for anything the overlay has not touched.
//
// Overlays nest: executing a transaction against an overlay of the block's overlay and merging
// it back on success gives all-or-nothing transaction semantics.
type Pending struct {
	base        Reader
	blockNumber uint64

	mu      sync.RWMutex
	diff    *core.StateDiff
	classes map[felt.Felt]core.Class
}

// NewPending creates an empty overlay over base. Classes declared through it are reported as
// declared at blockNumber.
func NewPending(base Reader, blockNumber uint64) *Pending {
	return &Pending{
		base:        base,
		blockNumber: blockNumber,
		diff:        core.EmptyStateDiff(),
		classes:     make(map[felt.Felt]core.Class),
	}
}

func (p *Pending) ContractClassHash(addr *felt.Felt) (*felt.Felt, error) {
	p.mu.RLock()
	if classHash, ok := p.diff.ReplacedClasses[*addr]; ok {
		p.mu.RUnlock()
		return classHash, nil
	}
	if classHash, ok := p.diff.DeployedContracts[*addr]; ok {
		p.mu.RUnlock()
		return classHash, nil
	}
	p.mu.RUnlock()
	return p.base.ContractClassHash(addr)
}

func (p *Pending) ContractNonce(addr *felt.Felt) (*felt.Felt, error) {
	p.mu.RLock()
	if nonce, ok := p.diff.Nonces[*addr]; ok {
		p.mu.RUnlock()
		return nonce, nil
	}
	p.mu.RUnlock()
	return p.base.ContractNonce(addr)
}

func (p *Pending) ContractStorage(addr, key *felt.Felt) (*felt.Felt, error) {
	p.mu.RLock()
	if value, ok := p.diff.StorageDiffs[*addr][*key]; ok {
		p.mu.RUnlock()
		return value, nil
	}
	p.mu.RUnlock()
	return p.base.ContractStorage(addr, key)
}

func (p *Pending) Class(classHash *felt.Felt) (*DeclaredClass, error) {
	p.mu.RLock()
	if class, ok := p.classes[*classHash]; ok {
		p.mu.RUnlock()
		return &DeclaredClass{At: p.blockNumber, Class: class}, nil
	}
	p.mu.RUnlock()
	return p.base.Class(classHash)
}

func (p *Pending) CompiledClassHash(classHash *felt.Felt) (*felt.Felt, error) {
	p.mu.RLock()
	if compiled, ok := p.diff.DeclaredV1Classes[*classHash]; ok {
		p.mu.RUnlock()
		return compiled, nil
	}
	p.mu.RUnlock()
	return p.base.CompiledClassHash(classHash)
}

func (p *Pending) SetStorage(addr, key, value *felt.Felt) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.diff.StorageDiffs[*addr] == nil {
		p.diff.StorageDiffs[*addr] = make(map[felt.Felt]*felt.Felt)
	}
	v := *value
	p.diff.StorageDiffs[*addr][*key] = &v
}

func (p *Pending) SetNonce(addr, nonce *felt.Felt) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := *nonce
	p.diff.Nonces[*addr] = &n
}

// SetClassHash deploys a contract at addr, or replaces its class if one is already there.
func (p *Pending) SetClassHash(addr, classHash *felt.Felt) error {
	current, err := p.ContractClassHash(addr)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	c := *classHash
	if current.IsZero() {
		p.diff.DeployedContracts[*addr] = &c
	} else {
		p.diff.ReplacedClasses[*addr] = &c
	}
	return nil
}

// DeclareClass registers class under classHash. compiledClassHash is ignored for Cairo 0 classes.
func (p *Pending) DeclareClass(classHash, compiledClassHash *felt.Felt, class core.Class) {
	p.mu.Lock()
	defer p.mu.Unlock()

	h := *classHash
	if class.Version() == 0 {
		if !slices.ContainsFunc(p.diff.DeclaredV0Classes, h.Equal) {
			p.diff.DeclaredV0Classes = append(p.diff.DeclaredV0Classes, &h)
		}
	} else {
		compiled := *compiledClassHash
		p.diff.DeclaredV1Classes[h] = &compiled
	}
	p.classes[h] = class
}

// StateDiff returns a copy of the writes gathered so far.
func (p *Pending) StateDiff() *core.StateDiff {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.diff.Clone()
}

// Classes returns the classes declared through the overlay.
func (p *Pending) Classes() map[felt.Felt]core.Class {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return maps.Clone(p.classes)
}

// Merge folds the writes of another overlay, usually a child of p, into p.
func (p *Pending) Merge(diff *core.StateDiff, classes map[felt.Felt]core.Class) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.diff.Merge(diff)
	maps.Copy(p.classes, classes)
}

// Clone returns an independent overlay with the same writes over the same base.
func (p *Pending) Clone() *Pending {
	c := NewPending(p.base, p.blockNumber)
	c.Merge(p.StateDiff(), p.Classes())
	return c
}

// Child returns an empty overlay on top of p.
func (p *Pending) Child() *Pending {
	return NewPending(p, p.blockNumber)
}

// BlockNumber is the number of the block the overlay is collecting writes for.
func (p *Pending) BlockNumber() uint64 {
	return p.blockNumber
}
