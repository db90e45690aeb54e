package qdrant

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchrag/internal/vectorstore"
)

// fakeQdrant keeps a single collection in memory and answers the REST calls
// used by Storage.
type fakeQdrant struct {
	mu       sync.Mutex
	size     int
	distance string
	points   map[string]point
	apiKeys  []string
}

type point struct {
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))

	path := strings.TrimPrefix(r.URL.Path, "/collections/shop")
	switch {
	case path == "" && r.Method == http.MethodGet:
		if f.size == 0 {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, map[string]any{"result": map[string]any{"config": map[string]any{"params": map[string]any{
			"vectors": map[string]any{"size": f.size, "distance": f.distance},
		}}}})
	case path == "" && r.Method == http.MethodPut:
		var req struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.size, f.distance = req.Vectors.Size, req.Vectors.Distance
		f.points = map[string]point{}
		writeJSON(w, map[string]any{"result": true})
	case path == "/points" && r.Method == http.MethodPut:
		if f.size == 0 {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Points []struct {
				ID string `json:"id"`
				point
			} `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, p := range req.Points {
			f.points[p.ID] = p.point
		}
		writeJSON(w, map[string]any{"result": map[string]any{"status": "completed"}})
	case path == "/points/search" && r.Method == http.MethodPost:
		if f.size == 0 {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Vector []float32 `json:"vector"`
			Limit  int       `json:"limit"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		type scored struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		}
		res := []scored{}
		for _, p := range f.points {
			res = append(res, scored{Score: euclid(p.Vector, req.Vector), Payload: p.Payload})
		}
		sort.Slice(res, func(i, j int) bool { return res[i].Score < res[j].Score })
		if len(res) > req.Limit {
			res = res[:req.Limit]
		}
		writeJSON(w, map[string]any{"result": res})
	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusBadRequest)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func euclid(a, b []float32) float64 {
	sum := 0.0
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func TestStorage(t *testing.T) {
	ctx := context.Background()
	fake := &fakeQdrant{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL + "/", APIKey: "secret", Collection: "shop"})

	hits, err := s.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits, "missing collection reads as empty")

	require.NoError(t, s.Init(ctx, 2))
	assert.Equal(t, "Euclid", fake.distance)
	require.NoError(t, s.Init(ctx, 2), "existing collection is reused")
	assert.Error(t, s.Init(ctx, 5))

	require.NoError(t, s.Upsert(ctx, []vectorstore.Point{
		{ID: "7c9e6679-7425-40de-944b-e07fc1f90ae7", Text: "near", Vector: []float32{1, 0}},
		{ID: "9b2f1a2e-6f1e-4a57-9a44-1c0f3a0e5b11", Text: "far", Vector: []float32{-1, 0}},
	}))

	hits, err = s.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "near", hits[0].Text)
	assert.Zero(t, hits[0].Distance)
	assert.InDelta(t, 2.0, hits[1].Distance, 1e-9)

	for _, k := range fake.apiKeys {
		assert.Equal(t, "secret", k)
	}
}

func TestStorageServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, Collection: "shop"})
	_, err := s.Search(context.Background(), []float32{1}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
