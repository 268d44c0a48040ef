package utils

import (
	"github.com/NethermindEth/juno/core/felt"
)

// Map keeps nil slices nil, so optional lists stay absent once converted.
func Map[T1, T2 any](slice []T1, f func(T1) T2) []T2 {
	if slice == nil {
		return nil
	}
	result := make([]T2, 0, len(slice))
	for _, e := range slice {
		result = append(result, f(e))
	}
	return result
}

// CloneFelts deep copies a slice of felts.
func CloneFelts(s []*felt.Felt) []*felt.Felt {
	return Map(s, func(f *felt.Felt) *felt.Felt {
		if f == nil {
			return nil
		}
		c := *f
		return &c
	})
}
