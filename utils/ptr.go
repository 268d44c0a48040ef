package utils

// HeapPtr returns a pointer to a copy of v.
func HeapPtr[T any](v T) *T {
	return &v
}
