package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridianhq/deepsearch/internal/agents"
	"github.com/meridianhq/deepsearch/internal/factcheck"
	"github.com/meridianhq/deepsearch/internal/metrics"
	"github.com/meridianhq/deepsearch/internal/personas"
	"github.com/meridianhq/deepsearch/internal/statemachine"
)

// Agent role names.
const (
	RolePlanner  = "planner"
	RoleSearcher = "searcher"
	RoleAnalyzer = "analyzer"
)

// Credit model: fixed base per depth tier plus time and source components.
var baseCredits = map[agents.Depth]float64{
	agents.DepthQuick:         5,
	agents.DepthComprehensive: 15,
	agents.DepthExhaustive:    25,
}

const (
	timeCreditRate   = 2.0 // credits per minute of processing
	timeCreditCap    = 10
	sourceCreditRate = 5.0 // divisor: one credit per 5 sources
	sourceCreditCap  = 5

	maxCitations        = 5
	disclaimerThreshold = 0.7
)

// Config holds orchestrator-level settings.
type Config struct {
	Machine         statemachine.Config
	ValidationLevel string
}

// Response is the stable envelope returned for every research run, success or
// failure.
type Response struct {
	Query             string                 `json:"query"`
	SynthesizedAnswer string                 `json:"synthesized_answer"`
	SourcesUsed       []agents.Source        `json:"sources_used"`
	ConfidenceScore   float64                `json:"confidence_score"`
	ProcessingTime    float64                `json:"processing_time"`
	PersonaUsed       string                 `json:"persona_used,omitempty"`
	DepthUsed         string                 `json:"depth_used,omitempty"`
	Metadata          map[string]interface{} `json:"metadata"`
	QualityMetrics    map[string]float64     `json:"quality_metrics,omitempty"`
	CreditsUsed       float64                `json:"credits_used"`
}

// Orchestrator owns the agent set and the state machine and drives research
// runs end to end. Agents are reused across runs; each run gets its own
// workflow data map, so concurrent runs never observe each other's state.
type Orchestrator struct {
	cfg      Config
	agents   map[string]agents.Agent
	machine  *statemachine.Machine
	registry *personas.Registry
	log      *zap.Logger
}

// New builds an orchestrator with one agent per role.
func New(cfg Config, registry *personas.Registry, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = personas.NewRegistry(logger)
	}
	return &Orchestrator{
		cfg: cfg,
		agents: map[string]agents.Agent{
			RolePlanner:  agents.NewPlannerAgent(registry, logger),
			RoleSearcher: agents.NewSearcherAgent(logger),
			RoleAnalyzer: agents.NewAnalyzerAgent(registry, logger),
		},
		machine:  statemachine.New(cfg.Machine, logger),
		registry: registry,
		log:      logger,
	}
}

// ExecuteResearch runs one research query through the adaptive workflow. It
// never returns an error: failures come back as a degraded envelope with a
// user-safe message and the raw error under metadata.
func (o *Orchestrator) ExecuteResearch(ctx context.Context, query string, rc map[string]interface{}) *Response {
	start := time.Now()
	runID := uuid.New().String()

	persona := personas.DefaultPersona
	if v, ok := rc[agents.CtxPersona].(string); ok && v != "" {
		persona = v
	}
	depth := agents.DepthComprehensive
	if v, ok := rc[agents.CtxDepth].(string); ok && v != "" {
		depth = agents.Depth(v)
	}

	metrics.ResearchRunsStarted.WithLabelValues(string(depth)).Inc()
	o.log.Info("research run started",
		zap.String("run_id", runID),
		zap.String("depth", string(depth)),
		zap.String("persona", persona),
	)

	// Each run owns an independent data map; rc is copied, never aliased.
	data := make(map[string]interface{}, len(rc)+4)
	for k, v := range rc {
		data[k] = v
	}
	data["query"] = query
	data["run_id"] = runID
	data[agents.CtxPersona] = persona
	data[agents.CtxDepth] = string(depth)

	machine := o.machineForRun(rc, depth)
	session := &runSession{o: o, query: query}
	wf := machine.Run(ctx, data, session)

	elapsed := time.Since(start)
	metrics.ResearchRunDuration.WithLabelValues(string(depth)).Observe(elapsed.Seconds())
	metrics.ResearchRunsCompleted.WithLabelValues(string(depth), string(wf.FinalState)).Inc()

	if !wf.Success {
		return o.failureResponse(query, wf, elapsed)
	}

	sources, _ := wf.Data["sources"].([]agents.Source)
	answer, _ := wf.Data["synthesized_answer"].(string)
	confidence := floatFrom(wf.Data, "confidence_score")

	// Completion can short-circuit past the synthesizing state; make sure
	// the final answer still carries citations and, when confidence is
	// modest, the disclaimer.
	if done, _ := wf.Data["citations_appended"].(bool); !done {
		answer = finalizeAnswer(answer, sources, confidence)
	}

	quality, _ := wf.Data["quality_metrics"].(map[string]float64)
	credits := calculateCredits(depth, elapsed, len(sources))
	metrics.CreditsCharged.Observe(credits)

	o.log.Info("research run completed",
		zap.String("run_id", runID),
		zap.Float64("confidence", confidence),
		zap.Float64("credits", credits),
		zap.Duration("elapsed", elapsed),
	)

	return &Response{
		Query:             query,
		SynthesizedAnswer: answer,
		SourcesUsed:       sources,
		ConfidenceScore:   confidence,
		ProcessingTime:    elapsed.Seconds(),
		PersonaUsed:       stringFrom(wf.Data, "persona_used", persona),
		DepthUsed:         string(depth),
		Metadata: map[string]interface{}{
			"run_id":               runID,
			"workflow_path":        wf.Path,
			"adaptation_decisions": wf.Decisions,
			"iterations":           wf.Metadata["iterations"],
		},
		QualityMetrics: quality,
		CreditsUsed:    credits,
	}
}

// machineForRun applies per-run threshold overrides from the research
// context. The quick tier lowers the source floor: it trades coverage for
// speed.
func (o *Orchestrator) machineForRun(rc map[string]interface{}, depth agents.Depth) *statemachine.Machine {
	cfg := o.machine.Config()
	overridden := false
	if v, ok := rc[agents.CtxMinConfidence].(float64); ok && v > 0 {
		cfg.MinConfidence = v
		overridden = true
	}
	if v, ok := rc[agents.CtxMinSources].(int); ok && v > 0 {
		cfg.MinSources = v
		overridden = true
	} else if depth == agents.DepthQuick && cfg.MinSources > 1 {
		cfg.MinSources = 1
		overridden = true
	}
	if v, ok := rc[agents.CtxMaxIterations].(int); ok && v > 0 {
		cfg.MaxIterations = v
		overridden = true
	}
	if !overridden {
		return o.machine
	}
	return statemachine.New(cfg, o.log)
}

func (o *Orchestrator) failureResponse(query string, wf *statemachine.WorkflowResult, elapsed time.Duration) *Response {
	rawErr, _ := wf.Data["error"].(string)

	var message string
	switch {
	case wf.FinalState == statemachine.StateStuck:
		message = "Research could not converge on a confident answer within the allotted attempts. Try a narrower or more specific query."
	case strings.Contains(rawErr, "cancelled"):
		message = "The research run was cancelled before it could finish."
	default:
		message = "Research could not be completed due to an internal problem. Please try again."
	}

	md := map[string]interface{}{
		"workflow_path":        wf.Path,
		"adaptation_decisions": wf.Decisions,
		"iterations":           wf.Metadata["iterations"],
		"final_state":          string(wf.FinalState),
	}
	if rawErr != "" {
		md["error"] = rawErr
	}

	return &Response{
		Query:             query,
		SynthesizedAnswer: message,
		SourcesUsed:       []agents.Source{},
		ConfidenceScore:   0.0,
		ProcessingTime:    elapsed.Seconds(),
		Metadata:          md,
	}
}

// AgentStatus exposes per-role operational snapshots.
func (o *Orchestrator) AgentStatus() map[string]agents.Status {
	out := make(map[string]agents.Status, len(o.agents))
	for role, a := range o.agents {
		out[role] = a.Status()
	}
	return out
}

// Reset returns every agent to Idle.
func (o *Orchestrator) Reset() {
	for _, a := range o.agents {
		a.Reset()
	}
}

// calculateCredits implements the published credit model:
// base(depth) + min(minutes*2, 10) + min(sources/5, 5).
func calculateCredits(depth agents.Depth, elapsed time.Duration, sourceCount int) float64 {
	base, ok := baseCredits[depth]
	if !ok {
		base = baseCredits[agents.DepthComprehensive]
	}
	timeComponent := elapsed.Minutes() * timeCreditRate
	if timeComponent > timeCreditCap {
		timeComponent = timeCreditCap
	}
	sourceComponent := float64(sourceCount) / sourceCreditRate
	if sourceComponent > sourceCreditCap {
		sourceComponent = sourceCreditCap
	}
	return base + timeComponent + sourceComponent
}

// finalizeAnswer appends up to five source citations and a disclaimer when
// confidence is below the threshold.
func finalizeAnswer(answer string, sources []agents.Source, confidence float64) string {
	var b strings.Builder
	b.WriteString(answer)
	if len(sources) > 0 {
		b.WriteString("\n\nSources:\n")
		for i, s := range sources {
			if i >= maxCitations {
				break
			}
			fmt.Fprintf(&b, "%d. %s\n", i+1, s.Title)
		}
	}
	if confidence < disclaimerThreshold {
		fmt.Fprintf(&b, "\nNote: confidence in this answer is moderate (%.2f); verify critical details against the cited sources.", confidence)
	}
	return b.String()
}

func floatFrom(data map[string]interface{}, key string) float64 {
	if v, ok := data[key].(float64); ok {
		return v
	}
	return 0
}

func stringFrom(data map[string]interface{}, key, fallback string) string {
	if v, ok := data[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// runSession provides the per-state handlers for one run.
type runSession struct {
	o     *Orchestrator
	query string
}

// Handler returns the handler for each workflow state.
func (s *runSession) Handler(state statemachine.State) statemachine.Handler {
	switch state {
	case statemachine.StateInitializing:
		return s.handleInitializing
	case statemachine.StatePlanning:
		return s.agentHandler(RolePlanner)
	case statemachine.StateSearching:
		return s.agentHandler(RoleSearcher)
	case statemachine.StateAnalyzing:
		return s.agentHandler(RoleAnalyzer)
	case statemachine.StateValidating:
		return s.handleValidating
	case statemachine.StateSynthesizing:
		return s.handleSynthesizing
	default:
		return nil
	}
}

func (s *runSession) handleInitializing(_ context.Context, data map[string]interface{}) (map[string]interface{}, error) {
	if strings.TrimSpace(s.query) == "" {
		return nil, fmt.Errorf("empty research query")
	}
	return map[string]interface{}{"initialized_at": time.Now()}, nil
}

// agentHandler adapts an agent invocation to the state machine contract.
// Agent failures surface as handler errors; the agent result itself never
// escapes as a panic or thrown error.
func (s *runSession) agentHandler(role string) statemachine.Handler {
	return func(ctx context.Context, data map[string]interface{}) (map[string]interface{}, error) {
		agent := s.o.agents[role]
		res := agent.Execute(ctx, s.query, data)
		if !res.Success {
			return nil, fmt.Errorf("%s: %s", role, res.Error)
		}
		output := make(map[string]interface{}, len(res.Payload)+1)
		for k, v := range res.Payload {
			output[k] = v
		}
		output["credits_"+role] = res.CreditsUsed
		return output, nil
	}
}

func (s *runSession) handleValidating(_ context.Context, data map[string]interface{}) (map[string]interface{}, error) {
	facts, _ := data["extracted_facts"].([]string)
	sources, _ := data["sources"].([]agents.Source)

	level := s.o.cfg.ValidationLevel
	if plan, ok := data["research_plan"].(*agents.ResearchPlan); ok && plan.Approach.ValidationLevel != "" {
		level = plan.Approach.ValidationLevel
	}
	checker := factcheck.NewChecker(level, s.o.log)
	report := checker.Validate(facts, sources)

	return map[string]interface{}{
		"validation_report":     report,
		"validation_confidence": report.OverallConfidence,
		"contradiction_level":   report.ContradictionLevel,
		"recommendations":       report.Recommendations,
	}, nil
}

func (s *runSession) handleSynthesizing(_ context.Context, data map[string]interface{}) (map[string]interface{}, error) {
	answer, _ := data["synthesized_answer"].(string)
	if strings.TrimSpace(answer) == "" {
		return nil, fmt.Errorf("no synthesized answer available")
	}
	sources, _ := data["sources"].([]agents.Source)
	confidence := floatFrom(data, "confidence_score")

	return map[string]interface{}{
		"synthesized_answer": finalizeAnswer(answer, sources, confidence),
		"citations_appended": true,
	}, nil
}
