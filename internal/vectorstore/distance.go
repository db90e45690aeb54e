package vectorstore

import (
	"math"
	"sort"

	"watchrag/internal/domain"
)

// L2 returns the Euclidean distance between a and b. Vectors of different
// length are compared over the shorter prefix.
func L2(a, b []float32) float64 {
	n := min(len(a), len(b))
	sum := 0.0
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Nearest keeps the k closest hits seen so far. Ties keep insertion order.
type Nearest struct {
	k    int
	hits []domain.SearchHit
}

// NewNearest returns an empty collector for k hits.
func NewNearest(k int) *Nearest {
	return &Nearest{k: k, hits: make([]domain.SearchHit, 0, k+1)}
}

// Offer considers one candidate.
func (n *Nearest) Offer(text string, distance float64) {
	if n.k <= 0 {
		return
	}
	if len(n.hits) == n.k && distance >= n.hits[len(n.hits)-1].Distance {
		return
	}
	i := sort.Search(len(n.hits), func(i int) bool { return n.hits[i].Distance > distance })
	n.hits = append(n.hits, domain.SearchHit{})
	copy(n.hits[i+1:], n.hits[i:])
	n.hits[i] = domain.SearchHit{Text: text, Distance: distance}
	if len(n.hits) > n.k {
		n.hits = n.hits[:n.k]
	}
}

// Hits returns the collected hits ascending by distance.
func (n *Nearest) Hits() []domain.SearchHit {
	return n.hits
}
