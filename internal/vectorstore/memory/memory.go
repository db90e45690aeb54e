package memory

import (
	"context"
	"errors"
	"sync"

	"watchrag/internal/domain"
	"watchrag/internal/vectorstore"
)

var _ vectorstore.Storage = (*Storage)(nil)

// Storage is a simple in-memory vector store using brute-force L2 distance.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	points    []vectorstore.Point
}

func NewStorage() *Storage { return &Storage{} }

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != 0 && s.dimension != dimension {
		return errors.New("vector dimension mismatch")
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Upsert(_ context.Context, points []vectorstore.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		if len(p.Vector) != s.dimension {
			return errors.New("vector dimension mismatch")
		}
	}
	s.points = append(s.points, points...)
	return nil
}

func (s *Storage) Search(_ context.Context, vector []float32, topK int) ([]domain.SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nearest := vectorstore.NewNearest(topK)
	for _, p := range s.points {
		nearest.Offer(p.Text, vectorstore.L2(p.Vector, vector))
	}
	return nearest.Hits(), nil
}

// Len returns the number of stored points.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

func (s *Storage) Close() error { return nil }
