// Package calibration maps raw vector distances to a bounded confidence score.
//
// Related texts in the MiniLM space sit at L2 distance 0.8-1.2; DefaultScale
// is tuned for that band and must be revisited for other embedding models.
package calibration

import (
	"math"

	"watchrag/internal/domain"
)

// DefaultScale is the empirical stretch applied to the base similarity.
const DefaultScale = 2.0

// SimilarityFunc maps a non-negative distance to a similarity in (0, 1].
type SimilarityFunc func(distance float64) float64

// InverseDistance is 1/(1+d).
func InverseDistance(distance float64) float64 {
	return 1 / (1 + distance)
}

// Calibrator turns distances into confidence values in [0, 1].
type Calibrator struct {
	Scale      float64
	Similarity SimilarityFunc
}

// New returns a calibrator using InverseDistance. A non-positive scale
// falls back to DefaultScale.
func New(scale float64) *Calibrator {
	if scale <= 0 {
		scale = DefaultScale
	}
	return &Calibrator{Scale: scale, Similarity: InverseDistance}
}

// Calibrate maps one distance to a confidence value.
func (c *Calibrator) Calibrate(distance float64) float64 {
	sim := c.Similarity
	if sim == nil {
		sim = InverseDistance
	}
	if distance < 0 || math.IsNaN(distance) {
		distance = 0
	}
	return clamp(sim(distance) * c.Scale)
}

// Confidence calibrates every hit and averages the result.
func (c *Calibrator) Confidence(hits []domain.SearchHit) float64 {
	scores := make([]float64, len(hits))
	for i, h := range hits {
		scores[i] = c.Calibrate(h.Distance)
	}
	return Aggregate(scores)
}

// Aggregate is the arithmetic mean of scores, or 0 for none.
func Aggregate(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
