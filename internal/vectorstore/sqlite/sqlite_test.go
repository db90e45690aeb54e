package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchrag/internal/vectorstore"
)

func openTemp(t *testing.T) *Storage {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "vectors", "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStorageSearch(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	hits, err := s.Search(ctx, []float32{0, 0, 1}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits, "empty store")

	require.NoError(t, s.Init(ctx, 3))
	require.NoError(t, s.Upsert(ctx, []vectorstore.Point{
		{ID: "a", Text: "alpha", Vector: []float32{1, 0, 0}},
		{ID: "b", Text: "beta", Vector: []float32{0, 1, 0}},
		{ID: "c", Text: "gamma", Vector: []float32{0, 0, 1}},
	}))

	hits, err = s.Search(ctx, []float32{0, 0.1, 1}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "gamma", hits[0].Text)
	assert.InDelta(t, 0.1, hits[0].Distance, 1e-6)
	assert.Less(t, hits[0].Distance, hits[1].Distance)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStorageDimension(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	assert.Error(t, s.Init(ctx, 0))
	require.NoError(t, s.Upsert(ctx, []vectorstore.Point{{ID: "a", Text: "alpha", Vector: []float32{1, 2}}}))
	assert.NoError(t, s.Init(ctx, 2))
	assert.Error(t, s.Init(ctx, 4))

	_, err := s.Search(ctx, []float32{1, 2, 3}, 1)
	assert.Error(t, err)
}

func TestStoragePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, []vectorstore.Point{{ID: "a", Text: "kept", Vector: []float32{0.5, -0.25}}}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	hits, err := s.Search(ctx, []float32{0.5, -0.25}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "kept", hits[0].Text)
	assert.Zero(t, hits[0].Distance)
}

func TestBlobRoundTrip(t *testing.T) {
	v := []float32{1.5, -2, 0, 3.25}
	got, err := blobToVector(vectorToBlob(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = blobToVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
