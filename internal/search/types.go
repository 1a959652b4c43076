package search

import (
	"context"
	"time"
)

// Record is a source-like row returned by a retrieval backend. Semantic
// search fills Score with a similarity metric; fulltext search leaves it zero.
type Record struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Summary   string    `json:"summary,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Verified  bool      `json:"verified"`
	Score     float64   `json:"score,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Engine is the retrieval capability consumed by the research engine.
type Engine interface {
	// Search performs semantic retrieval and returns records ordered by
	// descending similarity score.
	Search(ctx context.Context, query string, limit int, verifiedOnly bool) ([]Record, error)
	// SearchFulltext performs keyword retrieval. Returned records carry no
	// similarity score.
	SearchFulltext(ctx context.Context, query string, limit int) ([]Record, error)
}
