// Package native executes transactions against contract classes implemented in Go. It knows the
// account, fee token and deployer classes every Katana chain starts with; any other class can be
// declared and deployed but not run.
package native

import (
	"encoding/base64"
	"encoding/json"
	"slices"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/utils"
)

type EntryPointKind uint8

const (
	External EntryPointKind = iota
	Constructor
	L1Handler
)

func (k EntryPointKind) String() string {
	switch k {
	case Constructor:
		return "CONSTRUCTOR"
	case L1Handler:
		return "L1_HANDLER"
	default:
		return "EXTERNAL"
	}
}

var constructorSelector = crypto.Selector("constructor")

type handler func(f *frame, calldata []*felt.Felt) ([]*felt.Felt, error)

// Program is the Go implementation of a contract class.
type Program struct {
	name        string
	entryPoints [3]map[felt.Felt]handler
}

func newProgram(name string) *Program {
	p := &Program{name: name}
	for i := range p.entryPoints {
		p.entryPoints[i] = make(map[felt.Felt]handler)
	}
	return p
}

func (p *Program) Name() string {
	return p.name
}

func (p *Program) add(kind EntryPointKind, selector *felt.Felt, h handler) *Program {
	p.entryPoints[kind][*selector] = h
	return p
}

func (p *Program) external(h handler, names ...string) *Program {
	for _, name := range names {
		p.add(External, crypto.Selector(name), h)
	}
	return p
}

func (p *Program) entryPoint(kind EntryPointKind, selector *felt.Felt) (handler, bool) {
	h, ok := p.entryPoints[kind][*selector]
	return h, ok
}

func (p *Program) selectors(kind EntryPointKind) []*felt.Felt {
	selectors := make([]*felt.Felt, 0, len(p.entryPoints[kind]))
	for selector := range p.entryPoints[kind] {
		s := selector
		selectors = append(selectors, &s)
	}
	slices.SortFunc(selectors, func(a, b *felt.Felt) int { return a.Cmp(b) })
	return selectors
}

// DeprecatedClass describes the program as a Cairo 0 class. Entry point offsets are positions in
// the sorted selector list.
func (p *Program) DeprecatedClass() *core.Cairo0Class {
	entryPoints := func(kind EntryPointKind) []core.EntryPoint {
		eps := []core.EntryPoint{}
		for i, selector := range p.selectors(kind) {
			eps = append(eps, core.EntryPoint{Selector: selector, Offset: new(felt.Felt).SetUint64(uint64(i))})
		}
		return eps
	}
	abi, _ := json.Marshal([]map[string]string{{"type": "native", "name": p.name}})
	return &core.Cairo0Class{
		Abi:          abi,
		Externals:    entryPoints(External),
		L1Handlers:   entryPoints(L1Handler),
		Constructors: entryPoints(Constructor),
		Program:      base64.StdEncoding.EncodeToString([]byte(p.name)),
	}
}

// SierraClass describes the program as a Cairo 1 class.
func (p *Program) SierraClass() *core.Cairo1Class {
	entryPoints := func(kind EntryPointKind) []core.SierraEntryPoint {
		eps := []core.SierraEntryPoint{}
		for i, selector := range p.selectors(kind) {
			eps = append(eps, core.SierraEntryPoint{Index: uint64(i), Selector: selector})
		}
		return eps
	}
	name, err := utils.EncodeShortString(p.name)
	if err != nil {
		panic(err)
	}

	class := &core.Cairo1Class{
		Abi:             `[{"type":"native","name":"` + p.name + `"}]`,
		Program:         []*felt.Felt{name},
		SemanticVersion: "0.1.0",
	}
	class.EntryPoints.External = entryPoints(External)
	class.EntryPoints.L1Handler = entryPoints(L1Handler)
	class.EntryPoints.Constructor = entryPoints(Constructor)
	return class
}

// Class hashes the built-in programs are bound to on every Katana chain.
var (
	AccountClassHash         = utils.MustHexToFelt("0x05400e90f7e0ae78bd02c77cd75527280470e2fe19c54970dd79dc37a9d3645c")
	AccountCompiledClassHash = utils.MustHexToFelt("0x016c6081eb34ad1e0c5513234ed0c025b3c7f305902d291bad534cd6474c85bc")
	ERC20ClassHash           = utils.MustHexToFelt("0x02a8846878b6ad1f54f6ba46f5f40e11cee755c677f130b2c4b60566c9003f1f")
	UDCClassHash             = utils.MustHexToFelt("0x07b3e05f48f0c69e4a65ce5e076a66271a527aff2c34ce1083ec6e1526997a69")
)

// Registry binds class hashes to programs.
type Registry struct {
	programs map[felt.Felt]*Program
}

func NewRegistry() *Registry {
	return &Registry{programs: make(map[felt.Felt]*Program)}
}

// DefaultRegistry knows the account, ERC20 and UDC programs under their Katana class hashes.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(AccountClassHash, AccountProgram())
	r.Register(ERC20ClassHash, ERC20Program())
	r.Register(UDCClassHash, UDCProgram())
	return r
}

func (r *Registry) Register(classHash *felt.Felt, program *Program) {
	r.programs[*classHash] = program
}

func (r *Registry) Program(classHash *felt.Felt) (*Program, bool) {
	p, ok := r.programs[*classHash]
	return p, ok
}
