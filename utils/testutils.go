package utils

import (
	"testing"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/stretchr/testify/require"
)

// HexToFelt parses hex or fails the test.
func HexToFelt(t testing.TB, hex string) *felt.Felt {
	t.Helper()
	f, err := new(felt.Felt).SetString(hex)
	require.NoError(t, err, "invalid felt %q", hex)
	return f
}

func HexToFelts(t testing.TB, hexes ...string) []*felt.Felt {
	t.Helper()
	out := make([]*felt.Felt, len(hexes))
	for i, h := range hexes {
		out[i] = HexToFelt(t, h)
	}
	return out
}
