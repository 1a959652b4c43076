package agents

import (
	"time"

	"github.com/meridianhq/deepsearch/internal/personas"
)

// Recognized research-context keys.
const (
	CtxPersona       = "persona"
	CtxDepth         = "depth"
	CtxMaxSources    = "max_sources"
	CtxSearchEngine  = "search_engine"
	CtxDB            = "db"
	CtxSearchQueries = "search_queries"
	CtxMinConfidence = "min_confidence"
	CtxMinSources    = "min_sources"
	CtxMaxIterations = "max_iterations"
)

// Depth is the coarse research-effort tier.
type Depth string

const (
	DepthQuick         Depth = "quick"
	DepthComprehensive Depth = "comprehensive"
	DepthExhaustive    Depth = "exhaustive"
)

// QueryType classifies what kind of answer the query is after.
type QueryType string

const (
	QueryExplanatory   QueryType = "explanatory"
	QueryComparative   QueryType = "comparative"
	QueryAnalytical    QueryType = "analytical"
	QueryEnumerative   QueryType = "enumerative"
	QueryQuestion      QueryType = "question"
	QueryInformational QueryType = "informational"
)

// Search methods recorded on sources.
const (
	SearchMethodSemantic = "semantic"
	SearchMethodFulltext = "fulltext"
	SearchMethodRelated  = "related"
)

// Source is one candidate piece of evidence.
type Source struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Summary      string    `json:"summary,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	Verified     bool      `json:"verified"`
	Relevance    float64   `json:"relevance_score"`
	SearchMethod string    `json:"search_method"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// QueryAnalysis is the planner's reading of the raw query.
type QueryAnalysis struct {
	Query            string             `json:"query"`
	WordCount        int                `json:"word_count"`
	Complexity       float64            `json:"complexity"`
	Factors          map[string]float64 `json:"factors"`
	QueryType        QueryType          `json:"query_type"`
	RecommendedDepth Depth              `json:"recommended_depth"`
}

// ResearchApproach is the resource budget chosen for a run.
type ResearchApproach struct {
	MaxSearches     int    `json:"max_searches"`
	MaxSources      int    `json:"max_sources"`
	ValidationLevel string `json:"validation_level"`
	SynthesisDepth  string `json:"synthesis_depth"`
}

// ResearchPlan is created once per run by the planner and read-only after.
type ResearchPlan struct {
	Query         string            `json:"query"`
	Analysis      QueryAnalysis     `json:"analysis"`
	Approach      ResearchApproach  `json:"approach"`
	SearchQueries []string          `json:"search_queries"`
	Phases        []string          `json:"phases"`
	Guidance      personas.Guidance `json:"persona_guidance"`
	Depth         Depth             `json:"depth"`
}
