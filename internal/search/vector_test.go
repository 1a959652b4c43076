package search

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// vectorClientFor points a client at the test server.
func vectorClientFor(t *testing.T, srv *httptest.Server, cfg VectorConfig) *VectorClient {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cfg.Enabled = true
	cfg.Host = host
	cfg.Port = port
	return NewVectorClient(cfg, zap.NewNop())
}

func TestVectorQueryMapsPoints(t *testing.T) {
	var gotPath string
	var gotReq vectorQueryRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		resp := map[string]interface{}{
			"status": "ok",
			"result": map[string]interface{}{
				"points": []map[string]interface{}{
					{
						"id":    "p-1",
						"score": 0.92,
						"payload": map[string]interface{}{
							"title":      "Vector hit",
							"content":    "payload content",
							"summary":    "short",
							"verified":   true,
							"tags":       []string{"golang", "search"},
							"created_at": float64(1700000000),
							"updated_at": float64(1710000000),
						},
					},
					{"id": 42, "score": 0.5, "payload": map[string]interface{}{"title": "Numeric id"}},
				},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := vectorClientFor(t, srv, VectorConfig{Collection: "sources", Threshold: 0.4})
	records, err := client.Query(context.Background(), []float32{0.1, 0.2}, 7, true)
	require.NoError(t, err)

	assert.Equal(t, "/collections/sources/points/query", gotPath)
	assert.Equal(t, 7, gotReq.Limit)
	assert.True(t, gotReq.WithPayload)
	require.NotNil(t, gotReq.ScoreThreshold)
	assert.Equal(t, 0.4, *gotReq.ScoreThreshold)
	assert.NotNil(t, gotReq.Filter, "verifiedOnly should add a payload filter")

	require.Len(t, records, 2)
	assert.Equal(t, "p-1", records[0].ID)
	assert.Equal(t, "Vector hit", records[0].Title)
	assert.Equal(t, "payload content", records[0].Content)
	assert.Equal(t, "short", records[0].Summary)
	assert.True(t, records[0].Verified)
	assert.Equal(t, []string{"golang", "search"}, records[0].Tags)
	assert.Equal(t, 0.92, records[0].Score)
	assert.Equal(t, time.Unix(1700000000, 0), records[0].CreatedAt)
	assert.Equal(t, time.Unix(1710000000, 0), records[0].UpdatedAt)

	assert.Equal(t, "42", records[1].ID)
}

func TestVectorQueryNoFilterWithoutVerifiedOnly(t *testing.T) {
	var gotReq vectorQueryRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(vectorQueryResponse{})
	}))
	defer srv.Close()

	client := vectorClientFor(t, srv, VectorConfig{})
	records, err := client.Query(context.Background(), []float32{0.3}, 0, false)
	require.NoError(t, err)
	assert.Empty(t, records)

	assert.Nil(t, gotReq.Filter)
	// zero limit falls back to the configured TopK default
	assert.Equal(t, 10, gotReq.Limit)
}

func TestVectorQueryDisabled(t *testing.T) {
	client := NewVectorClient(VectorConfig{Enabled: false}, zap.NewNop())
	_, err := client.Query(context.Background(), []float32{0.1}, 5, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")

	var nilClient *VectorClient
	_, err = nilClient.Query(context.Background(), []float32{0.1}, 5, false)
	assert.Error(t, err)
}

func TestVectorQueryBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := vectorClientFor(t, srv, VectorConfig{})
	_, err := client.Query(context.Background(), []float32{0.1}, 5, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}
