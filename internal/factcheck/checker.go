package factcheck

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/meridianhq/deepsearch/internal/agents"
	"github.com/meridianhq/deepsearch/internal/metrics"
)

// Level selects which checks run.
type Level string

const (
	LevelBasic         Level = "basic"
	LevelComprehensive Level = "comprehensive"
	LevelExhaustive    Level = "exhaustive"
)

// ValidationLevel grades a single fact.
type ValidationLevel string

const (
	ValidationHigh         ValidationLevel = "high"
	ValidationMedium       ValidationLevel = "medium"
	ValidationLow          ValidationLevel = "low"
	ValidationUncertain    ValidationLevel = "uncertain"
	ValidationContradicted ValidationLevel = "contradicted"
)

// Flags attached to validation results.
const (
	FlagNoRelevantSources     = "no_relevant_sources"
	FlagLowCredibilitySource  = "low_credibility_source"
	FlagTemporalInconsistency = "temporal_inconsistency"
	FlagContradictions        = "contradictions_detected"
	FlagLogicalError          = "logical_error"
	FlagScientificError       = "scientific_error"
	FlagGeographicalError     = "geographical_error"
)

// criticalFlags force a contradicted grade regardless of score.
var criticalFlags = []string{FlagLogicalError, FlagScientificError, FlagGeographicalError}

// Result is one fact's assessment.
type Result struct {
	Fact            string            `json:"fact"`
	Confidence      float64           `json:"confidence"`
	Supporting      int               `json:"supporting_sources"`
	Contradicting   int               `json:"contradicting_sources"`
	Level           ValidationLevel   `json:"validation_level"`
	CrossReferences map[string]int    `json:"cross_references,omitempty"`
	Flags           []string          `json:"flags,omitempty"`
	Details         map[string]string `json:"details,omitempty"`
}

// Report aggregates per-fact results.
type Report struct {
	Results            []Result                `json:"results"`
	OverallConfidence  float64                 `json:"overall_confidence"`
	LevelCounts        map[ValidationLevel]int `json:"level_counts"`
	ContradictionLevel float64                 `json:"contradiction_level"`
	Recommendations    []string                `json:"recommendations"`
	CreatedAt          time.Time               `json:"created_at"`
}

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "is": {},
	"are": {}, "was": {}, "were": {}, "be": {}, "been": {}, "of": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "with": {}, "by": {}, "from": {},
	"that": {}, "this": {}, "these": {}, "those": {}, "it": {}, "its": {},
	"as": {}, "has": {}, "have": {}, "had": {}, "not": {}, "can": {},
}

var negationWords = []string{"not", "no", "never", "false", "incorrect", "cannot", "wrong", "disproven"}

var impossibilityPhrases = []string{
	"faster than light",
	"perpetual motion",
	"infinite energy",
	"100% certain",
	"older than the universe",
}

// knownFactualErrors is a small hard-coded table of widely repeated false
// claims. Intentionally simplistic; matching is substring over a normalized
// fact.
var knownFactualErrors = []struct {
	pattern string
	flag    string
}{
	{"great wall of china is visible from space", FlagGeographicalError},
	{"sydney is the capital of australia", FlagGeographicalError},
	{"humans use only 10% of their brain", FlagScientificError},
	{"lightning never strikes the same place twice", FlagScientificError},
	{"goldfish have a three second memory", FlagScientificError},
}

var (
	wordPattern = regexp.MustCompile(`[a-z0-9]+`)
	yearPattern = regexp.MustCompile(`\b(1[5-9]\d{2}|20\d{2})\b`)
	numPattern  = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
)

// Checker cross-references extracted facts against sources.
type Checker struct {
	level Level
	log   *zap.Logger
}

// NewChecker builds a checker for the given validation level; unknown levels
// fall back to comprehensive.
func NewChecker(level string, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := Level(level)
	switch l {
	case LevelBasic, LevelComprehensive, LevelExhaustive:
	default:
		l = LevelComprehensive
	}
	return &Checker{level: l, log: logger}
}

// Level returns the configured validation level.
func (c *Checker) Level() Level { return c.level }

// Validate checks every fact against the source list and builds the report.
func (c *Checker) Validate(facts []string, sources []agents.Source) *Report {
	report := &Report{
		LevelCounts: make(map[ValidationLevel]int),
		CreatedAt:   time.Now(),
	}

	total := 0.0
	contradicted := 0
	for _, fact := range facts {
		res := c.checkFact(fact, sources)
		report.Results = append(report.Results, res)
		report.LevelCounts[res.Level]++
		total += res.Confidence
		if res.Level == ValidationContradicted || lo.Contains(res.Flags, FlagContradictions) {
			contradicted++
		}
		metrics.FactChecks.WithLabelValues(string(res.Level)).Inc()
	}

	if len(report.Results) > 0 {
		report.OverallConfidence = total / float64(len(report.Results))
		report.ContradictionLevel = float64(contradicted) / float64(len(report.Results))
	}
	report.Recommendations = c.recommend(report)
	return report
}

func (c *Checker) checkFact(fact string, sources []agents.Source) Result {
	res := Result{
		Fact:            fact,
		Level:           ValidationUncertain,
		CrossReferences: make(map[string]int),
	}

	terms := extractKeyTerms(fact)
	relevant := relevantSources(terms, sources)
	res.CrossReferences["relevant_sources"] = len(relevant)

	// The hard-coded error table applies regardless of source coverage.
	normalized := normalize(fact)
	for _, known := range knownFactualErrors {
		if strings.Contains(normalized, known.pattern) {
			res.Flags = append(res.Flags, known.flag)
			res.Contradicting++
		}
	}

	if len(relevant) == 0 {
		res.Flags = append(res.Flags, FlagNoRelevantSources)
		res.Confidence = 0.0
		res.Level = gradeFact(res.Confidence, res.Flags)
		return res
	}

	c.checkCredibility(relevant, &res)
	if c.level == LevelComprehensive || c.level == LevelExhaustive {
		c.checkCrossReferences(terms, relevant, &res)
		c.checkTemporalConsistency(fact, relevant, &res)
	}
	if c.level == LevelExhaustive {
		c.checkContradictions(terms, relevant, &res)
		c.checkFactualAccuracy(fact, relevant, &res)
	}

	total := res.Supporting + res.Contradicting
	if total > 0 {
		res.Confidence = clamp01(float64(res.Supporting)/float64(total) - 0.5*float64(res.Contradicting)/float64(total))
	}
	res.Level = gradeFact(res.Confidence, res.Flags)
	return res
}

// checkCredibility counts verified or substantial sources as supporting;
// thin unverified content gets flagged.
func (c *Checker) checkCredibility(relevant []agents.Source, res *Result) {
	flagged := false
	for _, s := range relevant {
		if s.Verified || len(s.Content) >= 200 {
			res.Supporting++
			continue
		}
		if !flagged {
			res.Flags = append(res.Flags, FlagLowCredibilitySource)
			flagged = true
		}
	}
}

// checkCrossReferences counts sources that agree strongly (three quarters of
// the key terms present) as additional support.
func (c *Checker) checkCrossReferences(terms []string, relevant []agents.Source, res *Result) {
	agreed := 0
	for _, s := range relevant {
		if termMatchRatio(terms, sourceText(s)) >= 0.75 {
			agreed++
		}
	}
	res.CrossReferences["agreeing_sources"] = agreed
	res.Supporting += agreed
}

// checkTemporalConsistency compares years mentioned in the fact with years
// mentioned in each relevant source.
func (c *Checker) checkTemporalConsistency(fact string, relevant []agents.Source, res *Result) {
	factYears := yearPattern.FindAllString(fact, -1)
	if len(factYears) == 0 {
		return
	}
	for _, s := range relevant {
		srcYears := yearPattern.FindAllString(sourceText(s), -1)
		if len(srcYears) == 0 {
			continue
		}
		if len(lo.Intersect(factYears, srcYears)) == 0 {
			res.Contradicting++
			if !lo.Contains(res.Flags, FlagTemporalInconsistency) {
				res.Flags = append(res.Flags, FlagTemporalInconsistency)
			}
		}
	}
}

// checkContradictions looks for negation words near shared key terms in the
// source text.
func (c *Checker) checkContradictions(terms []string, relevant []agents.Source, res *Result) {
	const proximity = 5
	for _, s := range relevant {
		words := wordPattern.FindAllString(normalize(sourceText(s)), -1)
		if containsNegatedTerm(words, terms, proximity) {
			res.Contradicting++
			if !lo.Contains(res.Flags, FlagContradictions) {
				res.Flags = append(res.Flags, FlagContradictions)
			}
		}
	}
}

func containsNegatedTerm(words, terms []string, proximity int) bool {
	for i, w := range words {
		if !lo.Contains(negationWords, w) {
			continue
		}
		start := max(0, i-proximity)
		end := min(len(words), i+proximity+1)
		for _, nearby := range words[start:end] {
			if lo.Contains(terms, nearby) {
				return true
			}
		}
	}
	return false
}

// checkFactualAccuracy applies numeric matching and the logical-impossibility
// phrase list.
func (c *Checker) checkFactualAccuracy(fact string, relevant []agents.Source, res *Result) {
	normalized := normalize(fact)
	for _, phrase := range impossibilityPhrases {
		if strings.Contains(normalized, phrase) {
			res.Flags = append(res.Flags, FlagLogicalError)
			res.Contradicting++
			break
		}
	}

	factNums := numPattern.FindAllString(fact, -1)
	if len(factNums) == 0 {
		return
	}
	for _, s := range relevant {
		srcNums := numPattern.FindAllString(sourceText(s), -1)
		if len(srcNums) == 0 {
			continue
		}
		if len(lo.Intersect(factNums, srcNums)) > 0 {
			res.Supporting++
		} else {
			res.Contradicting++
		}
	}
}

// gradeFact applies the confidence thresholds; any critical flag forces
// contradicted regardless of score.
func gradeFact(confidence float64, flags []string) ValidationLevel {
	for _, f := range flags {
		if lo.Contains(criticalFlags, f) {
			return ValidationContradicted
		}
	}
	switch {
	case confidence >= 0.8:
		return ValidationHigh
	case confidence >= 0.6:
		return ValidationMedium
	case confidence >= 0.3:
		return ValidationLow
	default:
		return ValidationUncertain
	}
}

func (c *Checker) recommend(report *Report) []string {
	var recs []string
	n := len(report.Results)
	if n == 0 {
		return recs
	}
	if report.OverallConfidence < 0.5 {
		recs = append(recs, fmt.Sprintf(
			"Overall validation confidence is low (%.2f); gather additional verified sources before relying on these findings.",
			report.OverallConfidence))
	}
	if ratio := float64(report.LevelCounts[ValidationUncertain]) / float64(n); ratio > 0.3 {
		recs = append(recs, fmt.Sprintf(
			"%.0f%% of facts lack relevant source coverage; broaden the search scope or relax filters.",
			ratio*100))
	}
	if report.LevelCounts[ValidationContradicted] > 0 {
		recs = append(recs, "Contradicted facts were detected; review the flagged items and their sources before publishing.")
	}
	return recs
}

func extractKeyTerms(fact string) []string {
	words := wordPattern.FindAllString(normalize(fact), -1)
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if _, stop := stopWords[w]; stop {
			continue
		}
		if len(w) <= 2 {
			continue
		}
		terms = append(terms, w)
	}
	return lo.Uniq(terms)
}

// relevantSources keeps sources containing at least half of the fact's key
// terms.
func relevantSources(terms []string, sources []agents.Source) []agents.Source {
	if len(terms) == 0 {
		return nil
	}
	out := make([]agents.Source, 0, len(sources))
	for _, s := range sources {
		if termMatchRatio(terms, sourceText(s)) >= 0.5 {
			out = append(out, s)
		}
	}
	return out
}

func termMatchRatio(terms []string, text string) float64 {
	if len(terms) == 0 {
		return 0
	}
	normalized := normalize(text)
	matched := 0
	for _, t := range terms {
		if strings.Contains(normalized, t) {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}

func sourceText(s agents.Source) string {
	return s.Title + " " + s.Content
}

func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
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
