package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/meridianhq/deepsearch/internal/personas"
)

const (
	// Per-source credit rate for analysis, distinct from retrieval
	analyzerCreditRate = 0.4

	minSourceContentLen = 50
	minSentenceLen      = 20
	maxSentenceLen      = 200
	maxMainPoints       = 10
	maxSupportingFacts  = 10

	// Consensus saturates at this many main points
	consensusPointCap = 5
	reliabilityWeight = 0.8
)

var sentenceSplitter = regexp.MustCompile(`[.!?]+`)

// AnalyzerAgent validates sources, extracts key information, cross-validates
// for consensus and synthesizes a persona-styled answer.
type AnalyzerAgent struct {
	baseAgent
	personas *personas.Registry
}

// NewAnalyzerAgent builds an analyzer backed by the given persona registry.
func NewAnalyzerAgent(registry *personas.Registry, logger *zap.Logger) *AnalyzerAgent {
	return &AnalyzerAgent{
		baseAgent: newBaseAgent("analyzer", logger),
		personas:  registry,
	}
}

func (a *AnalyzerAgent) Execute(ctx context.Context, input string, rc map[string]interface{}) *Result {
	return a.execute(ctx, input, rc, a.run)
}

func (a *AnalyzerAgent) run(_ context.Context, input string, rc map[string]interface{}) (*runOutput, error) {
	sources, _ := rc["sources"].([]Source)
	if len(sources) == 0 {
		return nil, fmt.Errorf("No sources provided for analysis")
	}

	persona := personas.DefaultPersona
	if pn, ok := rc[CtxPersona].(string); ok && pn != "" {
		persona = pn
	}

	validated := validateSources(sources)
	mainPoints, supportingFacts := extractKeyInformation(validated)

	// Cheap consensus proxy: agreement grows with the number of extracted
	// main points, saturating at consensusPointCap.
	consensus := clamp01(float64(len(mainPoints)) / consensusPointCap)
	reliability := consensus * reliabilityWeight

	profile := a.personas.Get(persona)
	answer := synthesize(profile.Style, input, mainPoints, supportingFacts, validated)
	if strings.TrimSpace(answer) == "" {
		answer = fallbackSynthesis(input, validated)
	}

	answerWords := len(strings.Fields(answer))
	confidence := confidenceScore(len(validated), consensus, answerWords)

	quality := qualityMetrics(validated, consensus, reliability, answerWords)

	facts := append(append([]string{}, mainPoints...), supportingFacts...)

	return &runOutput{
		payload: map[string]interface{}{
			"synthesized_answer": answer,
			"confidence_score":   confidence,
			"consensus_level":    consensus,
			"reliability_score":  reliability,
			"main_points":        mainPoints,
			"supporting_facts":   supportingFacts,
			"extracted_facts":    facts,
			"quality_metrics":    quality,
			"persona_used":       profile.ID,
		},
		metadata: map[string]interface{}{
			"validated_sources": len(validated),
			"dropped_sources":   len(sources) - len(validated),
		},
		credits: analyzerCreditRate * float64(len(validated)),
	}, nil
}

// validateSources drops sources with empty or too-short content. Relevance
// filtering stays lenient here; ranking already happened upstream.
func validateSources(sources []Source) []Source {
	out := make([]Source, 0, len(sources))
	for _, s := range sources {
		if len(strings.TrimSpace(s.Content)) < minSourceContentLen {
			continue
		}
		out = append(out, s)
	}
	return out
}

// extractKeyInformation splits the combined source text into sentences and
// keeps those within a sane length band: the first ten become main points,
// the next ten supporting facts.
func extractKeyInformation(sources []Source) (mainPoints, supportingFacts []string) {
	var b strings.Builder
	for _, s := range sources {
		b.WriteString(s.Title)
		b.WriteString(". ")
		b.WriteString(s.Content)
		b.WriteString(" ")
	}

	for _, raw := range sentenceSplitter.Split(b.String(), -1) {
		sentence := strings.TrimSpace(raw)
		if len(sentence) < minSentenceLen || len(sentence) > maxSentenceLen {
			continue
		}
		if len(mainPoints) < maxMainPoints {
			mainPoints = append(mainPoints, sentence)
		} else if len(supportingFacts) < maxSupportingFacts {
			supportingFacts = append(supportingFacts, sentence)
		} else {
			break
		}
	}
	return mainPoints, supportingFacts
}

// confidenceScore combines a base with source-count, consensus and
// answer-length factors, clamped to [0,1].
func confidenceScore(sourceCount int, consensus float64, answerWords int) float64 {
	score := 0.5
	score += clamp01(float64(sourceCount)/5.0) * 0.3
	score += consensus * 0.4
	score += clamp01(float64(answerWords)/100.0) * 0.3
	return clamp01(score)
}

func qualityMetrics(sources []Source, consensus, reliability float64, answerWords int) map[string]float64 {
	totalLen := 0
	verified := 0
	for _, s := range sources {
		totalLen += len(s.Content)
		if s.Verified {
			verified++
		}
	}
	avgLen := 0.0
	density := 0.0
	if len(sources) > 0 {
		avgLen = float64(totalLen) / float64(len(sources))
		density = float64(answerWords) / float64(len(sources))
	}
	return map[string]float64{
		"source_count":        float64(len(sources)),
		"avg_source_length":   avgLen,
		"verified_sources":    float64(verified),
		"answer_length":       float64(answerWords),
		"consensus_level":     consensus,
		"reliability_score":   reliability,
		"information_density": density,
	}
}

// synthesize renders the extracted points in the persona's style. All styles
// draw on the same underlying points; only framing differs.
func synthesize(style personas.Style, query string, mainPoints, supportingFacts []string, sources []Source) string {
	if len(mainPoints) == 0 {
		return ""
	}
	switch style {
	case personas.StyleNarrative:
		return synthesizeNarrative(query, mainPoints, supportingFacts)
	case personas.StyleTechnical:
		return synthesizeTechnical(query, mainPoints, supportingFacts, sources)
	case personas.StyleCreative:
		return synthesizeCreative(query, mainPoints, supportingFacts)
	default:
		return synthesizeDefault(query, mainPoints, supportingFacts, sources)
	}
}

func synthesizeDefault(query string, mainPoints, supportingFacts []string, sources []Source) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research on %q drew on %d sources.\n\n", query, len(sources))
	for _, p := range mainPoints {
		fmt.Fprintf(&b, "%s. ", p)
	}
	if len(supportingFacts) > 0 {
		b.WriteString("\n\nAdditional context: ")
		for _, f := range supportingFacts {
			fmt.Fprintf(&b, "%s. ", f)
		}
	}
	return strings.TrimSpace(b.String())
}

func synthesizeNarrative(query string, mainPoints, supportingFacts []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Let's work through %q one step at a time.\n\n", query)
	for i, p := range mainPoints {
		fmt.Fprintf(&b, "%d. %s.\n", i+1, p)
	}
	if len(supportingFacts) > 0 {
		b.WriteString("\nA few supporting details help round this out: ")
		for _, f := range supportingFacts {
			fmt.Fprintf(&b, "%s. ", f)
		}
	}
	return strings.TrimSpace(b.String())
}

func synthesizeTechnical(query string, mainPoints, supportingFacts []string, sources []Source) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n### Findings\n", query)
	for _, p := range mainPoints {
		fmt.Fprintf(&b, "- %s.\n", p)
	}
	if len(supportingFacts) > 0 {
		b.WriteString("\n### Supporting evidence\n")
		for _, f := range supportingFacts {
			fmt.Fprintf(&b, "- %s.\n", f)
		}
	}
	fmt.Fprintf(&b, "\nBased on %d validated sources.", len(sources))
	return strings.TrimSpace(b.String())
}

func synthesizeCreative(query string, mainPoints, supportingFacts []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The question %q opens a story with several threads. ", query)
	for _, p := range mainPoints {
		fmt.Fprintf(&b, "%s. ", p)
	}
	if len(supportingFacts) > 0 {
		b.WriteString("Woven between those threads: ")
		for _, f := range supportingFacts {
			fmt.Fprintf(&b, "%s. ", f)
		}
	}
	return strings.TrimSpace(b.String())
}

// fallbackSynthesis is the always-available plain concatenation used when
// persona-styled synthesis produced nothing.
func fallbackSynthesis(query string, sources []Source) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research on %q gathered %d sources", query, len(sources))
	if len(sources) == 0 {
		b.WriteString(", but none contained enough usable content for a synthesis.")
		return b.String()
	}
	b.WriteString(": ")
	titles := make([]string, 0, len(sources))
	for _, s := range sources {
		titles = append(titles, s.Title)
	}
	b.WriteString(strings.Join(titles, "; "))
	b.WriteString(".")
	return b.String()
}
