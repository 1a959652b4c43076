package statemachine

import (
	"context"
	"time"
)

// State is a phase of the research workflow.
type State string

const (
	StateInitializing State = "initializing"
	StatePlanning     State = "planning"
	StateSearching    State = "searching"
	StateAnalyzing    State = "analyzing"
	StateValidating   State = "validating"
	StateSynthesizing State = "synthesizing"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
	StateStuck        State = "stuck"
)

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateStuck
}

// Quality is the assessment snapshot computed after each state execution.
type Quality struct {
	Confidence         float64 `json:"confidence"`
	SourceCount        int     `json:"source_count"`
	InformationDensity float64 `json:"information_density"`
	ContradictionLevel float64 `json:"contradiction_level"`
}

// Decision records one transition: where the run was, where it went, why,
// and the quality snapshot that triggered the choice.
type Decision struct {
	From    State     `json:"from"`
	To      State     `json:"to"`
	Reason  string    `json:"reason"`
	Quality Quality   `json:"quality"`
	At      time.Time `json:"at"`
}

// WorkflowResult is the machine's terminal output.
type WorkflowResult struct {
	FinalState State                  `json:"final_state"`
	Data       map[string]interface{} `json:"data"`
	Metadata   map[string]interface{} `json:"metadata"`
	Path       []State                `json:"execution_path"`
	Quality    Quality                `json:"quality"`
	Decisions  []Decision             `json:"adaptation_decisions"`
	TotalTime  time.Duration          `json:"total_time"`
	Success    bool                   `json:"success"`
}

// Handler executes one state against the shared workflow data and returns the
// output to merge back in.
type Handler func(ctx context.Context, data map[string]interface{}) (map[string]interface{}, error)

// HandlerProvider supplies the handler for each non-terminal state.
type HandlerProvider interface {
	Handler(state State) Handler
}

// Config holds the adaptive thresholds. Zero values take the defaults.
type Config struct {
	MaxIterations          int
	MinConfidence          float64
	MinSources             int
	ContradictionThreshold float64
	// Completion predicate: answer longer than this many characters
	CompletionAnswerLen int
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		MaxIterations:          5,
		MinConfidence:          0.6,
		MinSources:             3,
		ContradictionThreshold: 0.3,
		CompletionAnswerLen:    100,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = d.MinConfidence
	}
	if c.MinSources <= 0 {
		c.MinSources = d.MinSources
	}
	if c.ContradictionThreshold <= 0 {
		c.ContradictionThreshold = d.ContradictionThreshold
	}
	if c.CompletionAnswerLen <= 0 {
		c.CompletionAnswerLen = d.CompletionAnswerLen
	}
	return c
}
