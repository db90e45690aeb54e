package vectorstore

import (
	"context"

	"watchrag/internal/domain"
)

// Point is one embedded text ready to be stored.
type Point struct {
	ID     string
	Text   string
	Vector []float32
}

// Storage persists vectors and supports L2 nearest-neighbour search.
// Implementations must be safe for concurrent use and must return an empty
// result, not an error, when nothing has been stored yet.
type Storage interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, points []Point) error
	Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchHit, error)
	Close() error
}
