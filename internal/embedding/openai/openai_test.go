package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// fakeEmbeddingsServer returns [len(text), index-in-request] for every input.
func fakeEmbeddingsServer(t *testing.T, calls *atomic.Int32, failFirst int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		if n <= failFirst {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		type item struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		}
		data := make([]item, len(req.Input))
		// Reverse order to check that Index is honoured.
		for i := range req.Input {
			j := len(req.Input) - 1 - i
			data[i] = item{Object: "embedding", Index: j, Embedding: []float64{float64(len(req.Input[j])), float64(j)}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data":   data,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Setenv("WATCHRAG_TEST_EMPTY_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "WATCHRAG_TEST_EMPTY_KEY"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "missing API key")
}

func TestEmbed(t *testing.T) {
	t.Setenv("WATCHRAG_TEST_KEY", "sk-test")

	t.Run("Sub-batches keep input order", func(t *testing.T) {
		var calls atomic.Int32
		srv := fakeEmbeddingsServer(t, &calls, 0)
		defer srv.Close()

		c, err := NewClient(Config{BaseURL: srv.URL, APIKeyEnv: "WATCHRAG_TEST_KEY", BatchSize: 2})
		require.NoError(t, err)
		assert.Zero(t, c.Dimension())

		texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
		vecs, err := c.Embed(context.Background(), texts)
		require.NoError(t, err)
		require.Len(t, vecs, len(texts))
		for i, text := range texts {
			assert.Equal(t, float32(len(text)), vecs[i][0], "text %d", i)
		}
		assert.Equal(t, int32(3), calls.Load())
		assert.Equal(t, 2, c.Dimension())
	})

	t.Run("Retries server errors", func(t *testing.T) {
		var calls atomic.Int32
		srv := fakeEmbeddingsServer(t, &calls, 1)
		defer srv.Close()

		c, err := NewClient(Config{BaseURL: srv.URL, APIKeyEnv: "WATCHRAG_TEST_KEY", MaxRetries: 2})
		require.NoError(t, err)

		vecs, err := c.Embed(context.Background(), []string{"relay"})
		require.NoError(t, err)
		assert.Equal(t, float32(5), vecs[0][0])
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("Fails without retries", func(t *testing.T) {
		var calls atomic.Int32
		srv := fakeEmbeddingsServer(t, &calls, 10)
		defer srv.Close()

		c, err := NewClient(Config{BaseURL: srv.URL, APIKeyEnv: "WATCHRAG_TEST_KEY"})
		require.NoError(t, err)

		_, err = c.Embed(context.Background(), []string{"relay"})
		assert.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})
}
