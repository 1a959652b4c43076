package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/meridianhq/deepsearch/internal/personas"
)

// Planning is cheap next to search and analysis.
const plannerCredits = 0.5

const (
	maxSearchQueries = 8
	maxSearchesCap   = 8
	maxSourcesCap    = 30
)

var interrogativeWords = []string{"what", "how", "why", "when", "where", "which", "who"}

var technicalVocabulary = map[string]struct{}{
	"algorithm": {}, "api": {}, "architecture": {}, "async": {}, "cache": {},
	"compiler": {}, "concurrency": {}, "container": {}, "database": {},
	"deployment": {}, "encryption": {}, "framework": {}, "frontend": {},
	"backend": {}, "kernel": {}, "kubernetes": {}, "latency": {}, "learning": {},
	"machine": {}, "microservice": {}, "network": {}, "neural": {},
	"optimization": {}, "protocol": {}, "query": {}, "runtime": {},
	"scalability": {}, "schema": {}, "server": {}, "thread": {},
	"throughput": {}, "transaction": {},
}

var comparisonWords = []string{"vs", "versus", "compare", "comparison", "difference", "better", "worse"}

var analyticalWords = []string{"why", "analyze", "analysis", "impact", "effect", "implications", "evaluate"}

var explanatoryMarkers = []string{"how to", "how do", "how does", "explain", "tutorial", "guide", "steps"}

var enumerativeMarkers = []string{"list", "top ", "examples", "types of", "ways to"}

// PlannerAgent turns a raw query into a structured research plan.
type PlannerAgent struct {
	baseAgent
	personas *personas.Registry
}

// NewPlannerAgent builds a planner backed by the given persona registry.
func NewPlannerAgent(registry *personas.Registry, logger *zap.Logger) *PlannerAgent {
	return &PlannerAgent{
		baseAgent: newBaseAgent("planner", logger),
		personas:  registry,
	}
}

func (p *PlannerAgent) Execute(ctx context.Context, input string, rc map[string]interface{}) *Result {
	return p.execute(ctx, input, rc, p.run)
}

func (p *PlannerAgent) run(_ context.Context, input string, rc map[string]interface{}) (*runOutput, error) {
	query := strings.TrimSpace(input)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}

	analysis := analyzeQuery(query)

	depth := analysis.RecommendedDepth
	if d, ok := rc[CtxDepth].(string); ok && d != "" {
		depth = Depth(d)
	}
	approach := selectApproach(depth, analysis.Complexity)

	queries := expandQueries(query, analysis)

	persona := personas.DefaultPersona
	if pn, ok := rc[CtxPersona].(string); ok && pn != "" {
		persona = pn
	}
	guidance := p.personas.Guidance(persona)

	plan := &ResearchPlan{
		Query:         query,
		Analysis:      analysis,
		Approach:      approach,
		SearchQueries: queries,
		Phases:        []string{"search", "analyze", "validate", "synthesize"},
		Guidance:      guidance,
		Depth:         depth,
	}

	return &runOutput{
		payload: map[string]interface{}{
			"research_plan":  plan,
			"search_queries": queries,
			"max_sources":    approach.MaxSources,
			"depth":          string(depth),
			"persona":        guidance.Persona,
		},
		metadata: map[string]interface{}{
			"complexity": analysis.Complexity,
			"query_type": string(analysis.QueryType),
		},
		credits: plannerCredits,
	}, nil
}

// analyzeQuery scores complexity as the mean of five factors in [0,1] and
// classifies the query type by keyword precedence.
func analyzeQuery(query string) QueryAnalysis {
	lower := strings.ToLower(query)
	words := strings.Fields(lower)

	factors := map[string]float64{
		"length":        clamp01(float64(len(words)) / 25.0),
		"interrogative": boolFactor(containsAnyWord(words, interrogativeWords)),
		"technical":     technicalDensity(words),
		"comparison":    boolFactor(containsAnyMarker(lower, comparisonWords)),
		"analytical":    boolFactor(containsAnyMarker(lower, analyticalWords)),
	}
	complexity := 0.0
	for _, f := range factors {
		complexity += f
	}
	complexity = clamp01(complexity / float64(len(factors)))

	return QueryAnalysis{
		Query:            query,
		WordCount:        len(words),
		Complexity:       complexity,
		Factors:          factors,
		QueryType:        classifyQuery(lower),
		RecommendedDepth: recommendDepth(complexity),
	}
}

// classifyQuery applies a fixed precedence: explanatory, comparative,
// analytical, enumerative, question, informational.
func classifyQuery(lower string) QueryType {
	switch {
	case containsAnyMarker(lower, explanatoryMarkers):
		return QueryExplanatory
	case containsAnyMarker(lower, comparisonWords):
		return QueryComparative
	case containsAnyMarker(lower, analyticalWords):
		return QueryAnalytical
	case containsAnyMarker(lower, enumerativeMarkers):
		return QueryEnumerative
	case strings.Contains(lower, "?"):
		return QueryQuestion
	default:
		return QueryInformational
	}
}

func recommendDepth(complexity float64) Depth {
	switch {
	case complexity < 0.4:
		return DepthQuick
	case complexity < 0.7:
		return DepthComprehensive
	default:
		return DepthExhaustive
	}
}

// selectApproach maps the depth tier to fixed budgets; very complex queries
// get a bump, capped at the fixed ceilings.
func selectApproach(depth Depth, complexity float64) ResearchApproach {
	var a ResearchApproach
	switch depth {
	case DepthQuick:
		a = ResearchApproach{MaxSearches: 2, MaxSources: 5, ValidationLevel: "basic", SynthesisDepth: "concise"}
	case DepthExhaustive:
		a = ResearchApproach{MaxSearches: 6, MaxSources: 25, ValidationLevel: "exhaustive", SynthesisDepth: "extensive"}
	default:
		a = ResearchApproach{MaxSearches: 4, MaxSources: 15, ValidationLevel: "comprehensive", SynthesisDepth: "detailed"}
	}
	if complexity > 0.8 {
		a.MaxSearches = min(a.MaxSearches+2, maxSearchesCap)
		a.MaxSources = min(a.MaxSources+5, maxSourcesCap)
	}
	return a
}

// expandQueries always includes the original query, then appends
// type-specific and technical variants, capped at maxSearchQueries.
func expandQueries(query string, analysis QueryAnalysis) []string {
	queries := []string{query}
	base := strings.TrimRight(strings.TrimSpace(query), "?")

	switch analysis.QueryType {
	case QueryExplanatory:
		queries = append(queries, "how to "+base, base+" tutorial", base+" step by step")
	case QueryComparative:
		for _, part := range splitComparison(base) {
			queries = append(queries, part+" overview")
		}
	case QueryAnalytical:
		queries = append(queries, base+" analysis", base+" case study")
	}

	if analysis.Factors["technical"] > 0.5 {
		queries = append(queries, base+" implementation", base+" best practices")
	}

	queries = lo.Uniq(queries)
	if len(queries) > maxSearchQueries {
		queries = queries[:maxSearchQueries]
	}
	return queries
}

// splitComparison pulls the compared components out of "X vs Y" style queries.
func splitComparison(query string) []string {
	lower := strings.ToLower(query)
	for _, sep := range []string{" versus ", " vs ", " vs. ", " compared to ", " or "} {
		if idx := strings.Index(lower, sep); idx > 0 {
			left := strings.TrimSpace(query[:idx])
			right := strings.TrimSpace(query[idx+len(sep):])
			parts := make([]string, 0, 2)
			if left != "" {
				parts = append(parts, left)
			}
			if right != "" {
				parts = append(parts, right)
			}
			return parts
		}
	}
	return nil
}

func technicalDensity(words []string) float64 {
	count := 0
	for _, w := range words {
		w = strings.Trim(w, "?.,!:;\"'")
		if _, ok := technicalVocabulary[w]; ok {
			count++
		}
	}
	return clamp01(float64(count) / 4.0)
}

func containsAnyWord(words []string, set []string) bool {
	for _, w := range words {
		w = strings.Trim(w, "?.,!:;\"'")
		if lo.Contains(set, w) {
			return true
		}
	}
	return false
}

func containsAnyMarker(text string, markers []string) bool {
	for _, m := range markers {
		if len(strings.Fields(m)) > 1 || strings.HasSuffix(m, " ") {
			if strings.Contains(text, m) {
				return true
			}
			continue
		}
		if containsAnyWord(strings.Fields(text), []string{m}) {
			return true
		}
	}
	return false
}

func boolFactor(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
