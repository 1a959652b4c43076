package agents

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridianhq/deepsearch/internal/search"
)

// fakeEngine scripts the retrieval capability for searcher tests.
type fakeEngine struct {
	semantic    map[string][]search.Record
	semanticErr error
	fulltext    []search.Record
	fulltextErr error
	calls       []string
}

func (f *fakeEngine) Search(_ context.Context, query string, _ int, _ bool) ([]search.Record, error) {
	f.calls = append(f.calls, "semantic:"+query)
	if f.semanticErr != nil {
		return nil, f.semanticErr
	}
	return f.semantic[query], nil
}

func (f *fakeEngine) SearchFulltext(_ context.Context, query string, _ int) ([]search.Record, error) {
	f.calls = append(f.calls, "fulltext:"+query)
	if f.fulltextErr != nil {
		return nil, f.fulltextErr
	}
	return f.fulltext, nil
}

func searchContext(engine search.Engine) map[string]interface{} {
	return map[string]interface{}{
		CtxSearchEngine: engine,
		CtxDB:           struct{}{},
	}
}

func TestSearcherMissingContextFails(t *testing.T) {
	s := NewSearcherAgent(zap.NewNop())
	res := s.Execute(context.Background(), "anything", map[string]interface{}{})

	require.False(t, res.Success)
	assert.Equal(t, StateFailed, res.State)
	assert.Contains(t, res.Error, "Database connection")
	assert.Zero(t, res.CreditsUsed)
}

func TestSearcherSingleVerifiedSemanticSource(t *testing.T) {
	engine := &fakeEngine{
		semantic: map[string][]search.Record{
			"What is machine learning?": {
				{ID: "src-1", Title: "ML Basics", Content: "Machine learning builds models from data.", Verified: true, Score: 0.9},
			},
		},
	}
	s := NewSearcherAgent(zap.NewNop())
	res := s.Execute(context.Background(), "What is machine learning?", searchContext(engine))

	require.True(t, res.Success)
	sources := res.Payload["sources"].([]Source)
	require.Len(t, sources, 1)
	assert.Equal(t, SearchMethodSemantic, sources[0].SearchMethod)
	assert.Equal(t, 0.9, sources[0].Relevance)
	assert.True(t, sources[0].Verified)
	assert.Equal(t, searcherCreditRate, res.CreditsUsed)
}

func TestSearcherFulltextFallbackScore(t *testing.T) {
	engine := &fakeEngine{
		semantic: map[string][]search.Record{},
		fulltext: []search.Record{
			{ID: "ft-1", Title: "Keyword hit", Content: "matched by keywords"},
		},
	}
	s := NewSearcherAgent(zap.NewNop())
	res := s.Execute(context.Background(), "obscure topic", searchContext(engine))

	require.True(t, res.Success)
	sources := res.Payload["sources"].([]Source)
	require.Len(t, sources, 1)
	assert.Equal(t, SearchMethodFulltext, sources[0].SearchMethod)
	assert.Equal(t, fulltextRelevance, sources[0].Relevance)
}

func TestSearcherSemanticErrorDegradesToFulltext(t *testing.T) {
	engine := &fakeEngine{
		semanticErr: fmt.Errorf("vector backend down"),
		fulltext: []search.Record{
			{ID: "ft-1", Title: "Fallback", Content: "still found"},
		},
	}
	s := NewSearcherAgent(zap.NewNop())
	res := s.Execute(context.Background(), "resilience", searchContext(engine))

	require.True(t, res.Success)
	assert.Equal(t, 1, res.Payload["source_count"])
}

func TestSearcherAllStrategiesFailing(t *testing.T) {
	engine := &fakeEngine{
		semanticErr: fmt.Errorf("vector backend down"),
		fulltextErr: fmt.Errorf("postgres down"),
	}
	s := NewSearcherAgent(zap.NewNop())
	res := s.Execute(context.Background(), "nothing works", searchContext(engine))

	require.False(t, res.Success)
	assert.Contains(t, res.Error, "all search strategies failed")
}

func TestSearcherDeduplicatesAndSorts(t *testing.T) {
	now := time.Now()
	engine := &fakeEngine{
		semantic: map[string][]search.Record{
			"ranked": {
				{ID: "a", Title: "A", Content: "a", Score: 0.4, UpdatedAt: now},
				{ID: "b", Title: "B", Content: "b", Score: 0.9, UpdatedAt: now},
				{ID: "a", Title: "A dup", Content: "a", Score: 0.4, UpdatedAt: now},
				{ID: "c", Title: "C", Content: "c", Score: 0.6, Verified: true, UpdatedAt: now},
			},
		},
	}
	s := NewSearcherAgent(zap.NewNop())
	res := s.Execute(context.Background(), "ranked", searchContext(engine))
	require.True(t, res.Success)

	sources := res.Payload["sources"].([]Source)
	require.Len(t, sources, 3)

	seen := map[string]bool{}
	for _, src := range sources {
		assert.False(t, seen[src.ID], "duplicate id %s", src.ID)
		seen[src.ID] = true
	}
	for i := 1; i < len(sources); i++ {
		prev := s.compositeScore(sources[i-1], now)
		cur := s.compositeScore(sources[i], now)
		assert.GreaterOrEqual(t, prev, cur)
	}
	assert.Equal(t, "b", sources[0].ID)
}

func TestSearcherRecencyBonus(t *testing.T) {
	s := NewSearcherAgent(zap.NewNop())
	now := time.Now()

	fresh := Source{Relevance: 0.5, UpdatedAt: now}
	stale := Source{Relevance: 0.5, UpdatedAt: now.AddDate(-2, 0, 0)}
	undated := Source{Relevance: 0.5}

	assert.InDelta(t, 0.6, s.compositeScore(fresh, now), 0.001)
	assert.InDelta(t, 0.5, s.compositeScore(stale, now), 0.001)
	assert.InDelta(t, 0.5, s.compositeScore(undated, now), 0.001)
}

func TestSearcherRelatedSearchAppendsUnseen(t *testing.T) {
	engine := &fakeEngine{
		semantic: map[string][]search.Record{
			"tagged": {
				{ID: "t-1", Title: "Tagged", Content: "has tags", Score: 0.8, Tags: []string{"golang", "concurrency"}},
				{ID: "t-2", Title: "Also tagged", Content: "more tags", Score: 0.7, Tags: []string{"golang"}},
				{ID: "t-3", Title: "Third", Content: "third", Score: 0.6},
			},
			"golang concurrency": {
				{ID: "rel-1", Title: "Related", Content: "found via tags", Score: 0.95},
				{ID: "t-1", Title: "Tagged", Content: "duplicate", Score: 0.95},
			},
		},
	}
	s := NewSearcherAgent(zap.NewNop())
	res := s.Execute(context.Background(), "tagged", searchContext(engine))
	require.True(t, res.Success)

	sources := res.Payload["sources"].([]Source)
	byID := map[string]Source{}
	for _, src := range sources {
		byID[src.ID] = src
	}
	require.Contains(t, byID, "rel-1")
	assert.Equal(t, SearchMethodRelated, byID["rel-1"].SearchMethod)
	assert.Equal(t, relatedRelevance, byID["rel-1"].Relevance)
	// The duplicate keeps its original semantic entry
	assert.Equal(t, SearchMethodSemantic, byID["t-1"].SearchMethod)
}

func TestSearcherHonorsMaxSources(t *testing.T) {
	var records []search.Record
	for i := 0; i < 20; i++ {
		records = append(records, search.Record{
			ID:      fmt.Sprintf("s-%d", i),
			Title:   fmt.Sprintf("S %d", i),
			Content: "content",
			Score:   float64(i) / 20,
		})
	}
	engine := &fakeEngine{semantic: map[string][]search.Record{"many": records}}
	s := NewSearcherAgent(zap.NewNop())

	rc := searchContext(engine)
	rc[CtxMaxSources] = 5
	res := s.Execute(context.Background(), "many", rc)
	require.True(t, res.Success)
	assert.Equal(t, 5, res.Payload["source_count"])
}
