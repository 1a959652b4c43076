package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/meridianhq/deepsearch/internal/metrics"
	"github.com/meridianhq/deepsearch/internal/tracing"
)

// VectorConfig controls the Qdrant-compatible vector client.
type VectorConfig struct {
	Enabled    bool
	Host       string
	Port       int
	Collection string
	TopK       int
	Threshold  float64
	Timeout    time.Duration
	// Outbound rate limit; zero RPS disables limiting
	RPS   float64
	Burst int
}

// VectorClient is a minimal HTTP client for a Qdrant-compatible points API.
type VectorClient struct {
	cfg     VectorConfig
	base    string
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewVectorClient builds a vector search client with config defaults applied.
func NewVectorClient(cfg VectorConfig, logger *zap.Logger) *VectorClient {
	if cfg.Port == 0 {
		cfg.Port = 6333
	}
	if cfg.TopK == 0 {
		cfg.TopK = 10
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Collection == "" {
		cfg.Collection = "sources"
	}
	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	return &VectorClient{
		cfg:     cfg,
		base:    fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		log:     logger,
	}
}

type vectorQueryRequest struct {
	Query          []float32              `json:"query"`
	Limit          int                    `json:"limit"`
	ScoreThreshold *float64               `json:"score_threshold,omitempty"`
	WithPayload    bool                   `json:"with_payload"`
	Filter         map[string]interface{} `json:"filter,omitempty"`
}

type vectorPoint struct {
	ID      interface{}            `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

type vectorQueryResponse struct {
	Result struct {
		Points []vectorPoint `json:"points"`
	} `json:"result"`
	Status string `json:"status"`
}

// Query runs a similarity search against the configured collection.
// verifiedOnly adds a payload filter on the verified flag.
func (c *VectorClient) Query(ctx context.Context, vec []float32, limit int, verifiedOnly bool) ([]Record, error) {
	if c == nil || !c.cfg.Enabled {
		return nil, fmt.Errorf("vector search disabled")
	}
	if limit <= 0 {
		limit = c.cfg.TopK
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	start := time.Now()

	url := fmt.Sprintf("%s/collections/%s/points/query", c.base, c.cfg.Collection)
	ctx, span := tracing.StartHTTPSpan(ctx, "POST", url)
	defer span.End()

	var thr *float64
	if c.cfg.Threshold > 0 {
		t := c.cfg.Threshold
		thr = &t
	}
	var filter map[string]interface{}
	if verifiedOnly {
		filter = map[string]interface{}{
			"must": []map[string]interface{}{
				{"key": "verified", "match": map[string]interface{}{"value": true}},
			},
		}
	}
	body, _ := json.Marshal(vectorQueryRequest{
		Query:          vec,
		Limit:          limit,
		ScoreThreshold: thr,
		WithPayload:    true,
		Filter:         filter,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordVectorSearch("error", time.Since(start).Seconds())
		return nil, fmt.Errorf("vector query: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.RecordVectorSearch("error", time.Since(start).Seconds())
		return nil, fmt.Errorf("vector backend status %d", resp.StatusCode)
	}

	var qr vectorQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		metrics.RecordVectorSearch("error", time.Since(start).Seconds())
		return nil, err
	}
	metrics.RecordVectorSearch("ok", time.Since(start).Seconds())

	out := make([]Record, 0, len(qr.Result.Points))
	for _, p := range qr.Result.Points {
		out = append(out, pointToRecord(p))
	}
	return out, nil
}

func pointToRecord(p vectorPoint) Record {
	r := Record{Score: p.Score}
	if p.ID != nil {
		r.ID = fmt.Sprintf("%v", p.ID)
	}
	if v, ok := p.Payload["title"].(string); ok {
		r.Title = v
	}
	if v, ok := p.Payload["content"].(string); ok {
		r.Content = v
	}
	if v, ok := p.Payload["summary"].(string); ok {
		r.Summary = v
	}
	if v, ok := p.Payload["verified"].(bool); ok {
		r.Verified = v
	}
	if raw, ok := p.Payload["tags"].([]interface{}); ok {
		for _, t := range raw {
			if s, ok := t.(string); ok {
				r.Tags = append(r.Tags, s)
			}
		}
	}
	if ts, ok := p.Payload["created_at"].(float64); ok {
		r.CreatedAt = time.Unix(int64(ts), 0)
	}
	if ts, ok := p.Payload["updated_at"].(float64); ok {
		r.UpdatedAt = time.Unix(int64(ts), 0)
	}
	return r
}
