package extraction

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPExtractorRoundTrip(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/extract", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		var req extractRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Prompt, "the task")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tactical_learning":"x","should_save":true}`))
	}))
	defer srv.Close()

	ex, err := NewHTTPExtractor(HTTPConfig{BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	raw, err := ex.ExtractStructured(context.Background(), "analyze the task")
	require.NoError(t, err)
	assert.JSONEq(t, `{"tactical_learning":"x","should_save":true}`, string(raw))
	assert.Equal(t, "Bearer k", gotAuth)
}

func TestHTTPExtractorUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ex, err := NewHTTPExtractor(HTTPConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = ex.ExtractStructured(context.Background(), "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestNewHTTPExtractorRequiresBaseURL(t *testing.T) {
	_, err := NewHTTPExtractor(HTTPConfig{})
	assert.Error(t, err)
}
