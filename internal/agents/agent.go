package agents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meridianhq/deepsearch/internal/metrics"
)

// State is the lifecycle state of an agent invocation.
type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateRunning      State = "running"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
	StateTimeout      State = "timeout"
)

// Result is produced by every agent invocation. Invariants: Success is true
// iff State is StateCompleted; Error is set iff Success is false.
type Result struct {
	AgentID       string                 `json:"agent_id"`
	State         State                  `json:"state"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	ExecutionTime time.Duration          `json:"execution_time"`
	CreditsUsed   float64                `json:"credits_used"`
	Success       bool                   `json:"success"`
	Error         string                 `json:"error,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// Status is the operational snapshot exposed for dashboards.
type Status struct {
	State         State         `json:"state"`
	ExecutionTime time.Duration `json:"execution_time"`
	CreditsUsed   float64       `json:"credits_used"`
}

// Agent is a unit of research work with a uniform lifecycle and result
// contract. Execute never returns an error: failures are carried inside the
// Result.
type Agent interface {
	Name() string
	Execute(ctx context.Context, input string, rc map[string]interface{}) *Result
	Status() Status
	Reset()
}

// runOutput is what concrete agent logic hands back to the monitored wrapper.
type runOutput struct {
	payload  map[string]interface{}
	metadata map[string]interface{}
	credits  float64
}

type runFunc func(ctx context.Context, input string, rc map[string]interface{}) (*runOutput, error)

// baseAgent carries the lifecycle, timing and credit accounting shared by all
// agents. The concrete logic runs inside execute, which owns all state
// transitions. A single instance may serve concurrent runs; the lifecycle
// fields reflect the most recent invocation.
type baseAgent struct {
	name string
	log  *zap.Logger

	mu           sync.Mutex
	state        State
	lastDuration time.Duration
	lastCredits  float64
}

func newBaseAgent(name string, logger *zap.Logger) baseAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return baseAgent{name: name, log: logger, state: StateIdle}
}

func (b *baseAgent) Name() string { return b.name }

func (b *baseAgent) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{State: b.state, ExecutionTime: b.lastDuration, CreditsUsed: b.lastCredits}
}

// Reset returns the agent to Idle for reuse.
func (b *baseAgent) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateIdle
	b.lastDuration = 0
	b.lastCredits = 0
}

func (b *baseAgent) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// execute wraps concrete agent logic with the monitored lifecycle:
// Idle→Initializing→Running, measured timing, and conversion of errors,
// panics and context expiry into Failed/Timeout results. Execution time and
// credits on a successful result always come from the wrapper's measurement
// of the run, never from agent-reported values.
func (b *baseAgent) execute(ctx context.Context, input string, rc map[string]interface{}, fn runFunc) *Result {
	b.setState(StateInitializing)
	start := time.Now()
	b.setState(StateRunning)

	// The run gets its own copy of the research context. An abandoned run
	// keeps reading its map after the wrapper returns, while the caller is
	// free to mutate the original.
	snapshot := make(map[string]interface{}, len(rc))
	for k, v := range rc {
		snapshot[k] = v
	}

	type outcome struct {
		out *runOutput
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("agent panicked: %v", r)}
			}
		}()
		out, err := fn(ctx, input, snapshot)
		done <- outcome{out: out, err: err}
	}()

	var res *Result
	select {
	case <-ctx.Done():
		// The in-flight call is abandoned, not killed; it cannot touch the
		// result we return.
		if ctx.Err() == context.DeadlineExceeded {
			res = b.finish(StateTimeout, start, nil, fmt.Sprintf("agent %s timed out: %v", b.name, ctx.Err()))
		} else {
			res = b.finish(StateFailed, start, nil, fmt.Sprintf("agent %s cancelled: %v", b.name, ctx.Err()))
		}
	case o := <-done:
		if o.err != nil {
			res = b.finish(StateFailed, start, nil, o.err.Error())
		} else {
			res = b.finish(StateCompleted, start, o.out, "")
		}
	}

	metrics.AgentExecutions.WithLabelValues(b.name, string(res.State)).Inc()
	metrics.AgentExecutionDuration.WithLabelValues(b.name).Observe(float64(res.ExecutionTime.Milliseconds()))
	if !res.Success {
		b.log.Warn("agent execution failed",
			zap.String("agent", b.name),
			zap.String("state", string(res.State)),
			zap.String("error", res.Error),
		)
	}
	return res
}

func (b *baseAgent) finish(state State, start time.Time, out *runOutput, errMsg string) *Result {
	elapsed := time.Since(start)
	res := &Result{
		AgentID:       b.name,
		State:         state,
		ExecutionTime: elapsed,
		Success:       state == StateCompleted,
		Error:         errMsg,
		CreatedAt:     time.Now(),
	}
	if out != nil {
		res.Payload = out.payload
		res.Metadata = out.metadata
		if res.Success {
			res.CreditsUsed = out.credits
		}
	}

	b.mu.Lock()
	b.state = state
	b.lastDuration = elapsed
	b.lastCredits = res.CreditsUsed
	b.mu.Unlock()
	return res
}
