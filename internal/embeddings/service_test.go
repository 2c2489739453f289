package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTEIStub(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embed", r.URL.Path)

		var req struct {
			Inputs any `json:"inputs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		n := 1
		if list, ok := req.Inputs.([]any); ok {
			n = len(list)
		}
		vectors := make([][]float32, n)
		for i := range vectors {
			vec := make([]float32, dim)
			vec[0] = 1.0
			vectors[i] = vec
		}
		require.NoError(t, json.NewEncoder(w).Encode(vectors))
	}))
}

func TestNewServiceValidation(t *testing.T) {
	_, err := NewService(Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEmbedDocuments(t *testing.T) {
	srv := newTEIStub(t, 4)
	defer srv.Close()

	s, err := NewService(Config{BaseURL: srv.URL, Model: "test-model"})
	require.NoError(t, err)

	vectors, err := s.EmbedDocuments(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)

	require.Len(t, vectors, 2)
	assert.Len(t, vectors[0], 4)
}

func TestEmbedDocumentsEmptyInput(t *testing.T) {
	s, err := NewService(Config{BaseURL: "http://localhost:1"})
	require.NoError(t, err)

	_, err = s.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestEmbedQuery(t *testing.T) {
	srv := newTEIStub(t, 4)
	defer srv.Close()

	s, err := NewService(Config{BaseURL: srv.URL, Model: "test-model"})
	require.NoError(t, err)

	vec, err := s.EmbedQuery(context.Background(), "what tasks are like this one")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
}

func TestEmbedQueryEmptyText(t *testing.T) {
	s, err := NewService(Config{BaseURL: "http://localhost:1"})
	require.NoError(t, err)

	_, err = s.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestEmbedUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s, err := NewService(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = s.EmbedQuery(context.Background(), "query")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestEmbedTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte("[[1.0]]"))
	}))
	defer srv.Close()

	s, err := NewService(Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	require.NoError(t, err)

	_, err = s.EmbedQuery(context.Background(), "query")
	assert.Error(t, err)
}
