// Package batcher splits record sequences into bounded units of work.
package batcher

import (
	"fmt"
	"iter"

	"watchrag/internal/domain"
)

// DefaultSize bounds one ingestion unit of work.
const DefaultSize = 500

// Split returns a lazy, re-enumerable sequence of consecutive batches of at
// most size items. Every batch but the last has exactly size items.
func Split[T any](items []T, size int) (iter.Seq[[]T], error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", domain.ErrInvalidConfig, size)
	}
	return func(yield func([]T) bool) {
		for start := 0; start < len(items); start += size {
			end := min(start+size, len(items))
			if !yield(items[start:end:end]) {
				return
			}
		}
	}, nil
}

// Count returns how many batches Split yields for n items.
func Count(n, size int) int {
	if size <= 0 || n <= 0 {
		return 0
	}
	return (n + size - 1) / size
}
