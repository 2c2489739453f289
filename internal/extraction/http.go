package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPConfig holds the structured-extraction endpoint settings.
type HTTPConfig struct {
	// BaseURL is the base URL of the extraction service.
	BaseURL string

	// APIKey, when set, is sent as a bearer token.
	APIKey string

	// Timeout bounds each extraction request.
	Timeout time.Duration
}

// HTTPExtractor calls a structured-extraction service over HTTP. The
// service receives the prompt and replies with a JSON object matching the
// extraction schema.
type HTTPExtractor struct {
	config HTTPConfig
	client *http.Client
}

// NewHTTPExtractor creates an extractor against the configured endpoint.
func NewHTTPExtractor(config HTTPConfig) (*HTTPExtractor, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &HTTPExtractor{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}, nil
}

// extractRequest is the request body for the extract endpoint.
type extractRequest struct {
	Prompt string `json:"prompt"`
}

// ExtractStructured posts the prompt and returns the raw JSON response.
// Schema validation happens in the caller, which already handles
// malformed output.
func (e *HTTPExtractor) ExtractStructured(ctx context.Context, prompt string) (json.RawMessage, error) {
	body, err := json.Marshal(extractRequest{Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.config.BaseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.config.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling extraction service: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extraction service status %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
