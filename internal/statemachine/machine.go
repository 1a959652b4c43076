package statemachine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/meridianhq/deepsearch/internal/metrics"
)

// Transition reasons recorded in the adaptation log.
const (
	ReasonInitialized        = "initialized"
	ReasonPlanReady          = "plan_ready"
	ReasonInsufficientSrc    = "insufficient_sources"
	ReasonLowConfidence      = "low_confidence"
	ReasonSourcesSufficient  = "sources_sufficient"
	ReasonAnalysisWeak       = "analysis_quality_insufficient"
	ReasonAnalysisAccepted   = "analysis_accepted"
	ReasonHighContradictions = "high_contradictions"
	ReasonValidationLow      = "validation_confidence_low"
	ReasonValidated          = "validated"
	ReasonSynthesisComplete  = "synthesis_complete"
	ReasonCompletionMet      = "completion_criteria_met"
	ReasonHandlerError       = "handler_error"
	ReasonIterationLimit     = "iteration_limit_reached"
	ReasonCancelled          = "cancelled"
)

// Machine drives one research run through the adaptive workflow: execute the
// current state's handler, assess quality, pick the next state, merge output,
// repeat until a terminal state. Cycles are bounded by MaxIterations.
type Machine struct {
	cfg Config
	log *zap.Logger
}

// New builds a state machine with the given thresholds.
func New(cfg Config, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{cfg: cfg.withDefaults(), log: logger}
}

// Config returns the effective thresholds.
func (m *Machine) Config() Config { return m.cfg }

// Run executes the workflow over the given data map. The map is owned by this
// run; the machine mutates it in place and returns it in the result.
func (m *Machine) Run(ctx context.Context, data map[string]interface{}, provider HandlerProvider) *WorkflowResult {
	start := time.Now()
	if data == nil {
		data = make(map[string]interface{})
	}
	result := &WorkflowResult{
		Data:     data,
		Metadata: make(map[string]interface{}),
	}

	state := StateInitializing
	iterations := 0
	var quality Quality

	for !state.Terminal() {
		if err := ctx.Err(); err != nil {
			data["error"] = fmt.Sprintf("research cancelled: %v", err)
			m.transition(result, state, StateFailed, ReasonCancelled, quality)
			state = StateFailed
			break
		}

		// Initializing is not charged against the budget. The working
		// states are, so the straight-line pipeline fits in MaxIterations
		// while any cycling still trips the limit.
		if state != StateInitializing {
			iterations++
			if iterations > m.cfg.MaxIterations {
				m.transition(result, state, StateStuck, ReasonIterationLimit, quality)
				state = StateStuck
				break
			}
		}

		handler := provider.Handler(state)
		if handler == nil {
			data["error"] = fmt.Sprintf("no handler registered for state %s", state)
			m.transition(result, state, StateFailed, ReasonHandlerError, quality)
			state = StateFailed
			break
		}

		result.Path = append(result.Path, state)
		output, err := handler(ctx, data)
		if err != nil {
			data["error"] = err.Error()
			m.transition(result, state, StateFailed, ReasonHandlerError, quality)
			state = StateFailed
			break
		}
		for k, v := range output {
			data[k] = v
		}

		quality = m.assessQuality(state, data)
		next, reason := m.nextState(state, quality)

		// Global completion predicate: a substantial answer at acceptable
		// confidence completes the run even before the nominal synthesis
		// state.
		if next != StateCompleted && m.completionMet(data) {
			next, reason = StateCompleted, ReasonCompletionMet
		}

		m.transition(result, state, next, reason, quality)
		state = next
	}

	result.Path = append(result.Path, state)
	result.FinalState = state
	result.Success = state == StateCompleted
	result.Quality = quality
	result.TotalTime = time.Since(start)
	result.Metadata["iterations"] = iterations
	result.Metadata["states_visited"] = len(result.Path)

	metrics.WorkflowIterations.Observe(float64(iterations))
	m.log.Info("workflow finished",
		zap.String("final_state", string(state)),
		zap.Int("iterations", iterations),
		zap.Duration("total_time", result.TotalTime),
	)
	return result
}

func (m *Machine) transition(result *WorkflowResult, from, to State, reason string, q Quality) {
	result.Decisions = append(result.Decisions, Decision{
		From:    from,
		To:      to,
		Reason:  reason,
		Quality: q,
		At:      time.Now(),
	})
	metrics.StateTransitions.WithLabelValues(string(from), string(to), reason).Inc()
	m.log.Debug("state transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("reason", reason),
		zap.Float64("confidence", q.Confidence),
		zap.Int("source_count", q.SourceCount),
	)
}

// nextState applies the adaptive transition rules.
func (m *Machine) nextState(state State, q Quality) (State, string) {
	switch state {
	case StateInitializing:
		return StatePlanning, ReasonInitialized
	case StatePlanning:
		return StateSearching, ReasonPlanReady
	case StateSearching:
		if q.SourceCount < m.cfg.MinSources {
			return StateSearching, ReasonInsufficientSrc
		}
		if q.Confidence < m.cfg.MinConfidence {
			return StateSearching, ReasonLowConfidence
		}
		return StateAnalyzing, ReasonSourcesSufficient
	case StateAnalyzing:
		if q.Confidence < m.cfg.MinConfidence {
			return StateSearching, ReasonAnalysisWeak
		}
		return StateValidating, ReasonAnalysisAccepted
	case StateValidating:
		if q.ContradictionLevel > m.cfg.ContradictionThreshold {
			return StateAnalyzing, ReasonHighContradictions
		}
		if q.Confidence < m.cfg.MinConfidence {
			return StateSearching, ReasonValidationLow
		}
		return StateSynthesizing, ReasonValidated
	case StateSynthesizing:
		return StateCompleted, ReasonSynthesisComplete
	default:
		return StateFailed, ReasonHandlerError
	}
}

// assessQuality computes the snapshot for the state just executed from the
// merged workflow data.
func (m *Machine) assessQuality(state State, data map[string]interface{}) Quality {
	q := Quality{
		SourceCount:        getInt(data, "source_count"),
		ContradictionLevel: getFloat(data, "contradiction_level"),
	}
	switch state {
	case StateSearching:
		q.Confidence = getFloat(data, "search_confidence")
	case StateValidating:
		// A present-but-zero validation confidence is a real result and
		// must not fall back to the analyzer's score.
		if v, ok := lookupFloat(data, "validation_confidence"); ok {
			q.Confidence = v
		} else {
			q.Confidence = getFloat(data, "confidence_score")
		}
	default:
		q.Confidence = getFloat(data, "confidence_score")
	}
	if qm, ok := data["quality_metrics"].(map[string]float64); ok {
		q.InformationDensity = qm["information_density"]
	}
	return q
}

func (m *Machine) completionMet(data map[string]interface{}) bool {
	answer, _ := data["synthesized_answer"].(string)
	return len(answer) > m.cfg.CompletionAnswerLen && getFloat(data, "confidence_score") >= m.cfg.MinConfidence
}

func lookupFloat(data map[string]interface{}, key string) (float64, bool) {
	switch v := data[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

func getFloat(data map[string]interface{}, key string) float64 {
	v, _ := lookupFloat(data, key)
	return v
}

func getInt(data map[string]interface{}, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
