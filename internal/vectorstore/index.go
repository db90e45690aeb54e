// Package vectorstore implements the vector index on top of pluggable
// storage backends.
package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"watchrag/internal/domain"
	"watchrag/internal/retry"
)

var _ domain.VectorIndex = (*Index)(nil)

// Index embeds texts and keeps them in a Storage backend. It is shared by
// every request for the lifetime of the process.
type Index struct {
	embedder   domain.Embedder
	storage    Storage
	maxRetries uint64

	initMu    sync.Mutex
	dimension int
}

// NewIndex wires an embedder to a storage backend. Backend calls are
// retried up to maxRetries times.
func NewIndex(embedder domain.Embedder, storage Storage, maxRetries uint64) *Index {
	return &Index{embedder: embedder, storage: storage, maxRetries: maxRetries}
}

// Add embeds texts and stores them. Callers bound len(texts) by batching.
func (x *Index) Add(ctx context.Context, texts []string) error {
	if len(texts) == 0 {
		return nil
	}
	vecs, err := x.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("%w: embed: %w", domain.ErrIndexWrite, err)
	}
	if len(vecs) != len(texts) {
		return fmt.Errorf("%w: embedder returned %d vectors for %d texts", domain.ErrIndexWrite, len(vecs), len(texts))
	}
	if err := x.ensureInit(ctx, len(vecs[0])); err != nil {
		return fmt.Errorf("%w: init: %w", domain.ErrIndexWrite, err)
	}

	points := make([]Point, len(texts))
	for i, text := range texts {
		points[i] = Point{ID: uuid.NewString(), Text: text, Vector: vecs[i]}
	}
	err = retry.Do(ctx, x.maxRetries, func() error {
		return x.storage.Upsert(ctx, points)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrIndexWrite, err)
	}
	return nil
}

// SearchWithDistance returns up to k stored texts closest to query,
// ascending by distance. An empty index yields an empty result.
func (x *Index) SearchWithDistance(ctx context.Context, query string, k int) ([]domain.SearchHit, error) {
	if k <= 0 {
		return nil, nil
	}
	vecs, err := x.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: embed: %w", domain.ErrIndexSearch, err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for the query", domain.ErrIndexSearch, len(vecs))
	}

	var hits []domain.SearchHit
	err = retry.Do(ctx, x.maxRetries, func() error {
		var serr error
		hits, serr = x.storage.Search(ctx, vecs[0], k)
		return serr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrIndexSearch, err)
	}
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Close releases the storage backend.
func (x *Index) Close() error {
	return x.storage.Close()
}

func (x *Index) ensureInit(ctx context.Context, dimension int) error {
	x.initMu.Lock()
	defer x.initMu.Unlock()
	if x.dimension == dimension {
		return nil
	}
	if x.dimension != 0 {
		return fmt.Errorf("embedding dimension changed from %d to %d", x.dimension, dimension)
	}
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	if err := x.storage.Init(ctx, dimension); err != nil {
		return err
	}
	x.dimension = dimension
	return nil
}
