package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/meridianhq/deepsearch/internal/metrics"
	"github.com/meridianhq/deepsearch/internal/search"
)

const (
	// Per-source credit rate for retrieval
	searcherCreditRate = 0.2

	fulltextRelevance = 0.5
	relatedRelevance  = 0.3

	// Fulltext fallback kicks in below this many semantic results
	semanticFloor = 3

	verifiedBoost  = 0.2
	maxRecencyDays = 365
	recencyBonus   = 0.1

	relatedTagLimit    = 5
	relatedSourceLimit = 3

	defaultMaxSources = 10
)

// SearcherAgent retrieves candidate sources through semantic, fulltext and
// related-search strategies and produces a deduplicated, ranked list.
type SearcherAgent struct {
	baseAgent
	now func() time.Time
}

// NewSearcherAgent builds a searcher. The search capability itself arrives
// through the research context on every invocation.
func NewSearcherAgent(logger *zap.Logger) *SearcherAgent {
	return &SearcherAgent{
		baseAgent: newBaseAgent("searcher", logger),
		now:       time.Now,
	}
}

func (s *SearcherAgent) Execute(ctx context.Context, input string, rc map[string]interface{}) *Result {
	return s.execute(ctx, input, rc, s.run)
}

func (s *SearcherAgent) run(ctx context.Context, input string, rc map[string]interface{}) (*runOutput, error) {
	engine, _ := rc[CtxSearchEngine].(search.Engine)
	db := rc[CtxDB]
	if engine == nil || db == nil {
		return nil, fmt.Errorf("Database connection not available: search engine and storage handle are required")
	}

	maxSources := defaultMaxSources
	if v, ok := rc[CtxMaxSources].(int); ok && v > 0 {
		maxSources = v
	}
	queries := []string{input}
	if qs, ok := rc[CtxSearchQueries].([]string); ok && len(qs) > 0 {
		queries = qs
	}

	var (
		collected []Source
		semantic  int
		failures  int
		attempts  int
	)

	// Strategy 1: semantic search over the expanded queries. Per-query
	// failures degrade to zero results, they never abort the run.
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		attempts++
		records, err := engine.Search(ctx, q, maxSources, false)
		if err != nil {
			failures++
			s.log.Warn("semantic search failed",
				zap.String("query", q),
				zap.Error(err),
			)
			continue
		}
		for _, r := range records {
			collected = append(collected, recordToSource(r, SearchMethodSemantic, r.Score))
			semantic++
		}
	}
	metrics.SearchResults.WithLabelValues(SearchMethodSemantic).Add(float64(semantic))

	// Strategy 2: fulltext fallback when semantic retrieval came up short.
	// Fulltext has no similarity metric, so it gets a fixed lower score.
	if semantic < semanticFloor {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		attempts++
		records, err := engine.SearchFulltext(ctx, input, maxSources)
		if err != nil {
			failures++
			s.log.Warn("fulltext search failed", zap.Error(err))
		} else {
			for _, r := range records {
				collected = append(collected, recordToSource(r, SearchMethodFulltext, fulltextRelevance))
			}
			metrics.SearchResults.WithLabelValues(SearchMethodFulltext).Add(float64(len(records)))
		}
	}

	if failures == attempts && attempts > 0 {
		return nil, fmt.Errorf("all search strategies failed for query %q", input)
	}

	// Strategy 3: one related search derived from the tags of the top
	// already-found sources; previously unseen hits join at low relevance.
	if tags := topTags(collected, relatedSourceLimit, relatedTagLimit); len(tags) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		related, err := engine.Search(ctx, strings.Join(tags, " "), maxSources, false)
		if err != nil {
			s.log.Warn("related search failed", zap.Error(err))
		} else {
			seen := make(map[string]struct{}, len(collected))
			for _, src := range collected {
				seen[src.ID] = struct{}{}
			}
			added := 0
			for _, r := range related {
				if _, dup := seen[r.ID]; dup {
					continue
				}
				collected = append(collected, recordToSource(r, SearchMethodRelated, relatedRelevance))
				added++
			}
			metrics.SearchResults.WithLabelValues(SearchMethodRelated).Add(float64(added))
		}
	}

	ranked := s.dedupeAndRank(collected, maxSources)

	// Retrieval confidence is the mean relevance of the ranked set; the
	// state machine uses it to decide whether to search again.
	searchConfidence := 0.0
	for _, src := range ranked {
		searchConfidence += src.Relevance
	}
	if len(ranked) > 0 {
		searchConfidence /= float64(len(ranked))
	}

	return &runOutput{
		payload: map[string]interface{}{
			"sources":           ranked,
			"source_count":      len(ranked),
			"search_confidence": searchConfidence,
		},
		metadata: map[string]interface{}{
			"semantic_results": semantic,
			"strategy_errors":  failures,
			"queries_issued":   attempts,
		},
		credits: searcherCreditRate * float64(len(ranked)),
	}, nil
}

// dedupeAndRank removes repeated ids (first occurrence wins), sorts by the
// composite score and truncates to the caller's limit.
func (s *SearcherAgent) dedupeAndRank(sources []Source, limit int) []Source {
	seen := make(map[string]struct{}, len(sources))
	unique := make([]Source, 0, len(sources))
	for _, src := range sources {
		if _, dup := seen[src.ID]; dup {
			continue
		}
		seen[src.ID] = struct{}{}
		unique = append(unique, src)
	}

	now := s.now()
	sort.SliceStable(unique, func(i, j int) bool {
		return s.compositeScore(unique[i], now) > s.compositeScore(unique[j], now)
	})

	if len(unique) > limit {
		unique = unique[:limit]
	}
	return unique
}

// compositeScore ranks a source by relevance, verification and recency. The
// recency bonus decays linearly from 0.1 at age zero to nothing at one year.
func (s *SearcherAgent) compositeScore(src Source, now time.Time) float64 {
	score := src.Relevance
	if src.Verified {
		score += verifiedBoost
	}
	if !src.UpdatedAt.IsZero() {
		ageDays := now.Sub(src.UpdatedAt).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		if ageDays < maxRecencyDays {
			score += recencyBonus * (1 - ageDays/maxRecencyDays)
		}
	}
	return score
}

// topTags gathers up to tagLimit distinct tags from the first srcLimit sources.
func topTags(sources []Source, srcLimit, tagLimit int) []string {
	var tags []string
	seen := make(map[string]struct{})
	for i, src := range sources {
		if i >= srcLimit {
			break
		}
		for _, t := range src.Tags {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			tags = append(tags, t)
			if len(tags) >= tagLimit {
				return tags
			}
		}
	}
	return tags
}

func recordToSource(r search.Record, method string, relevance float64) Source {
	return Source{
		ID:           r.ID,
		Title:        r.Title,
		Content:      r.Content,
		Summary:      r.Summary,
		Tags:         r.Tags,
		Verified:     r.Verified,
		Relevance:    relevance,
		SearchMethod: method,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}
