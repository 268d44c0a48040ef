// Package registry registers the interface-backed types stored on disk. Import it for its side
// effect wherever values are encoded or decoded.
package registry

import (
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/encoder"
)

// Append only: a stored value carries its tag.
var tagged = []struct {
	tag   uint64
	value any
}{
	{encoder.FirstFreeTag, core.DeclareTransaction{}},
	{encoder.FirstFreeTag + 1, core.DeployTransaction{}},
	{encoder.FirstFreeTag + 2, core.InvokeTransaction{}},
	{encoder.FirstFreeTag + 3, core.L1HandlerTransaction{}},
	{encoder.FirstFreeTag + 4, core.DeployAccountTransaction{}},
	{encoder.FirstFreeTag + 5, core.Cairo0Class{}},
	{encoder.FirstFreeTag + 6, core.Cairo1Class{}},
}

//nolint:gochecknoinits
func init() {
	for _, t := range tagged {
		if err := encoder.Register(t.tag, t.value); err != nil {
			panic(err)
		}
	}
}
