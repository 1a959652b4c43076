package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/meridianhq/deepsearch/internal/tracing"
)

// Embedder turns query text into a vector for semantic search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingClient calls an HTTP embedding service.
type EmbeddingClient struct {
	baseURL string
	model   string
	http    *http.Client
}

// NewEmbeddingClient builds a client for the embedding service at baseURL.
func NewEmbeddingClient(baseURL, model string, timeout time.Duration) *EmbeddingClient {
	if model == "" {
		model = "text-embedding-3-small"
	}
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &EmbeddingClient{
		baseURL: baseURL,
		model:   model,
		http:    &http.Client{Timeout: timeout},
	}
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Dimensions int         `json:"dimensions"`
	ModelUsed  string      `json:"model_used"`
}

// Embed returns the vector for a single text.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	url := c.baseURL + "/embeddings"
	ctx, span := tracing.StartHTTPSpan(ctx, "POST", url)
	defer span.End()

	body, _ := json.Marshal(embedRequest{Texts: []string{text}, Model: c.model})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service status %d", resp.StatusCode)
	}

	var r embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, err
	}
	if len(r.Embeddings) == 0 {
		return nil, fmt.Errorf("embedding service returned no vectors")
	}
	vec := make([]float32, len(r.Embeddings[0]))
	for i, f := range r.Embeddings[0] {
		vec[i] = float32(f)
	}
	return vec, nil
}
