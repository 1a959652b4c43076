package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// CompositeEngine implements Engine on top of a vector backend for semantic
// search and a Postgres fulltext store for keyword search, with an optional
// Redis result cache in front of both.
type CompositeEngine struct {
	embedder Embedder
	vector   *VectorClient
	fulltext *FulltextStore
	cache    *Cache
	log      *zap.Logger
}

// NewCompositeEngine wires the retrieval backends together. cache may be nil.
func NewCompositeEngine(embedder Embedder, vector *VectorClient, fulltext *FulltextStore, cache *Cache, logger *zap.Logger) *CompositeEngine {
	return &CompositeEngine{
		embedder: embedder,
		vector:   vector,
		fulltext: fulltext,
		cache:    cache,
		log:      logger,
	}
}

// Search embeds the query and runs a similarity search.
func (e *CompositeEngine) Search(ctx context.Context, query string, limit int, verifiedOnly bool) ([]Record, error) {
	if e.embedder == nil || e.vector == nil {
		return nil, fmt.Errorf("semantic search not configured")
	}
	if hit, ok := e.cache.Get(ctx, "semantic", query, limit, verifiedOnly); ok {
		return hit, nil
	}
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	records, err := e.vector.Query(ctx, vec, limit, verifiedOnly)
	if err != nil {
		return nil, err
	}
	e.cache.Set(ctx, "semantic", query, limit, verifiedOnly, records)
	return records, nil
}

// SearchFulltext runs a keyword search against Postgres.
func (e *CompositeEngine) SearchFulltext(ctx context.Context, query string, limit int) ([]Record, error) {
	if e.fulltext == nil {
		return nil, fmt.Errorf("fulltext search not configured")
	}
	if hit, ok := e.cache.Get(ctx, "fulltext", query, limit, false); ok {
		return hit, nil
	}
	records, err := e.fulltext.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	e.cache.Set(ctx, "fulltext", query, limit, false, records)
	return records, nil
}
