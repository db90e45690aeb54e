package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func norm(v []float32) float64 {
	s := 0.0
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func l2(a, b []float32) float64 {
	s := 0.0
	for i := range a {
		d := float64(a[i] - b[i])
		s += d * d
	}
	return math.Sqrt(s)
}

func TestEmbed(t *testing.T) {
	e := NewEmbedder(64)
	ctx := context.Background()

	t.Run("Deterministic and normalized", func(t *testing.T) {
		vecs, err := e.Embed(ctx, []string{"Diver watch, 200m", "Diver watch, 200m"})
		require.NoError(t, err)
		require.Len(t, vecs, 2)
		assert.Len(t, vecs[0], 64)
		assert.Equal(t, vecs[0], vecs[1])
		assert.InDelta(t, 1.0, norm(vecs[0]), 1e-6)
	})

	t.Run("Stopwords and case are ignored", func(t *testing.T) {
		vecs, err := e.Embed(ctx, []string{"The DIVER watch", "diver watch"})
		require.NoError(t, err)
		assert.InDelta(t, 0, l2(vecs[0], vecs[1]), 1e-6)
	})

	t.Run("Related text is closer than unrelated text", func(t *testing.T) {
		vecs, err := NewEmbedder(2048).Embed(ctx, []string{
			"relojes de buceo sumergibles",
			"reloj de buceo sumergible 200 metros relojes",
			"correa de cuero marrón",
		})
		require.NoError(t, err)
		assert.Less(t, l2(vecs[0], vecs[1]), l2(vecs[0], vecs[2]))
	})

	t.Run("Empty text embeds to zero vector", func(t *testing.T) {
		vecs, err := e.Embed(ctx, []string{""})
		require.NoError(t, err)
		assert.Equal(t, 0.0, norm(vecs[0]))
	})

	t.Run("Cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := e.Embed(cctx, []string{"x"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestNewEmbedderDefaults(t *testing.T) {
	e := NewEmbedder(0)
	assert.Equal(t, DefaultDimension, e.Dimension())
	assert.Equal(t, "hashing", e.Name())
}
