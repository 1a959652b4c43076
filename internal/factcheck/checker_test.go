package factcheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridianhq/deepsearch/internal/agents"
)

func TestNewCheckerUnknownLevelFallsBack(t *testing.T) {
	c := NewChecker("paranoid", zap.NewNop())
	assert.Equal(t, LevelComprehensive, c.Level())
}

func TestValidateNoRelevantSources(t *testing.T) {
	c := NewChecker("basic", zap.NewNop())
	sources := []agents.Source{
		{ID: "s-1", Title: "Cooking", Content: "A long discussion about sourdough starters and hydration ratios in baking."},
	}

	report := c.Validate([]string{"quantum entanglement enables secure key distribution"}, sources)
	require.Len(t, report.Results, 1)

	res := report.Results[0]
	assert.Equal(t, ValidationUncertain, res.Level)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Contains(t, res.Flags, FlagNoRelevantSources)
	assert.Equal(t, 0, res.CrossReferences["relevant_sources"])
}

func TestValidateKnownErrorContradictedDespiteSupport(t *testing.T) {
	c := NewChecker("basic", zap.NewNop())
	fact := "The Great Wall of China is visible from space with the naked eye"
	sources := []agents.Source{
		{
			ID:       "s-1",
			Title:    "Great Wall visibility",
			Content:  "Many believe the Great Wall of China is visible from space, and the claim appears in countless textbooks despite astronaut testimony. The wall, China's most famous structure, has been photographed from orbit only with long lenses. The naked eye cannot resolve it from space.",
			Verified: true,
		},
	}

	report := c.Validate([]string{fact}, sources)
	require.Len(t, report.Results, 1)

	res := report.Results[0]
	assert.Equal(t, ValidationContradicted, res.Level)
	assert.Contains(t, res.Flags, FlagGeographicalError)
	assert.GreaterOrEqual(t, res.Contradicting, 1)
	assert.Greater(t, report.ContradictionLevel, 0.0)
	assert.NotEmpty(t, report.Recommendations)
}

func TestValidateVerifiedSupportGradesHigh(t *testing.T) {
	c := NewChecker("basic", zap.NewNop())
	fact := "Raft elects a single leader for log replication"
	sources := []agents.Source{
		{ID: "s-1", Title: "Raft paper summary", Content: "Raft elects a single leader which handles all log replication for the cluster.", Verified: true},
		{ID: "s-2", Title: "Raft notes", Content: "In Raft the leader manages replication of the log; followers only vote and replicate.", Verified: true},
	}

	report := c.Validate([]string{fact}, sources)
	require.Len(t, report.Results, 1)

	res := report.Results[0]
	assert.Equal(t, ValidationHigh, res.Level)
	assert.Equal(t, 1.0, res.Confidence)
	assert.Equal(t, 2, res.Supporting)
	assert.Zero(t, res.Contradicting)
}

func TestExhaustiveDetectsImpossibilityPhrase(t *testing.T) {
	c := NewChecker("exhaustive", zap.NewNop())
	fact := "The new engine travels faster than light using resonance"
	sources := []agents.Source{
		{ID: "s-1", Title: "Engine claims", Content: "The prototype engine allegedly travels faster than light according to resonance theorists, a claim physicists reject.", Verified: true},
	}

	report := c.Validate([]string{fact}, sources)
	res := report.Results[0]
	assert.Contains(t, res.Flags, FlagLogicalError)
	assert.Equal(t, ValidationContradicted, res.Level)
}

func TestExhaustiveDetectsNegationNearTerms(t *testing.T) {
	c := NewChecker("exhaustive", zap.NewNop())
	fact := "goldfish remember training cues"
	sources := []agents.Source{
		{ID: "s-1", Title: "Goldfish memory", Content: "Studies show goldfish do not remember training cues beyond a day, contradicting popular claims about goldfish cognition and training."},
	}

	report := c.Validate([]string{fact}, sources)
	res := report.Results[0]
	assert.Contains(t, res.Flags, FlagContradictions)
	assert.GreaterOrEqual(t, res.Contradicting, 1)
}

func TestComprehensiveTemporalInconsistency(t *testing.T) {
	c := NewChecker("comprehensive", zap.NewNop())
	fact := "The treaty was signed in 1955 between the two nations"
	sources := []agents.Source{
		{ID: "s-1", Title: "Treaty history", Content: "The treaty between the two nations was signed in 1962 after years of negotiation, not earlier as sometimes reported.", Verified: true},
	}

	report := c.Validate([]string{fact}, sources)
	res := report.Results[0]
	assert.Contains(t, res.Flags, FlagTemporalInconsistency)
}

func TestGradeFactThresholds(t *testing.T) {
	assert.Equal(t, ValidationHigh, gradeFact(0.85, nil))
	assert.Equal(t, ValidationHigh, gradeFact(0.8, nil))
	assert.Equal(t, ValidationMedium, gradeFact(0.7, nil))
	assert.Equal(t, ValidationLow, gradeFact(0.4, nil))
	assert.Equal(t, ValidationUncertain, gradeFact(0.1, nil))
	assert.Equal(t, ValidationContradicted, gradeFact(0.95, []string{FlagScientificError}))
}

func TestExtractKeyTermsDropsStopwordsAndShortWords(t *testing.T) {
	terms := extractKeyTerms("The cat is on a mat by the door")
	assert.NotContains(t, terms, "the")
	assert.NotContains(t, terms, "is")
	assert.NotContains(t, terms, "on")
	assert.Contains(t, terms, "cat")
	assert.Contains(t, terms, "mat")
	assert.Contains(t, terms, "door")
}

func TestRecommendationsForUncertainMajority(t *testing.T) {
	c := NewChecker("basic", zap.NewNop())
	sources := []agents.Source{
		{ID: "s-1", Title: "Irrelevant", Content: "Entirely unrelated material about medieval falconry techniques and equipment."},
	}
	facts := []string{
		"superconductors operate at room temperature in production",
		"fusion reactors deliver commercial electricity today",
	}

	report := c.Validate(facts, sources)
	assert.Equal(t, 2, report.LevelCounts[ValidationUncertain])
	require.NotEmpty(t, report.Recommendations)
	assert.Contains(t, report.Recommendations[0], "confidence is low")
}
