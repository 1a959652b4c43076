package search

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// FulltextStore runs keyword searches against the sources table in Postgres.
type FulltextStore struct {
	db  *sqlx.DB
	log *zap.Logger
}

// NewFulltextStore connects to Postgres using the given DSN.
func NewFulltextStore(dsn string, logger *zap.Logger) (*FulltextStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return &FulltextStore{db: db, log: logger}, nil
}

// NewFulltextStoreFromDB wraps an existing connection (used by tests).
func NewFulltextStoreFromDB(db *sql.DB, logger *zap.Logger) *FulltextStore {
	return &FulltextStore{db: sqlx.NewDb(db, "postgres"), log: logger}
}

type sourceRow struct {
	ID        string         `db:"id"`
	Title     string         `db:"title"`
	Content   string         `db:"content"`
	Summary   sql.NullString `db:"summary"`
	Tags      pq.StringArray `db:"tags"`
	Verified  bool           `db:"verified"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

const fulltextQuery = `SELECT id, title, content, summary, tags, verified, created_at, updated_at
FROM sources
WHERE to_tsvector('english', title || ' ' || content) @@ plainto_tsquery('english', $1)
ORDER BY ts_rank(to_tsvector('english', title || ' ' || content), plainto_tsquery('english', $1)) DESC
LIMIT $2`

// Search returns sources matching the query terms, best rank first. Records
// carry no similarity score; the caller assigns one.
func (s *FulltextStore) Search(ctx context.Context, query string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []sourceRow
	if err := s.db.SelectContext(ctx, &rows, fulltextQuery, query, limit); err != nil {
		return nil, fmt.Errorf("fulltext search: %w", err)
	}
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, Record{
			ID:        r.ID,
			Title:     r.Title,
			Content:   r.Content,
			Summary:   r.Summary.String,
			Tags:      []string(r.Tags),
			Verified:  r.Verified,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		})
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (s *FulltextStore) Close() error {
	return s.db.Close()
}
