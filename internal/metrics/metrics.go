package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Research run metrics
	ResearchRunsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepsearch_research_runs_started_total",
			Help: "Total number of research runs started",
		},
		[]string{"depth"},
	)

	ResearchRunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepsearch_research_runs_completed_total",
			Help: "Total number of research runs completed",
		},
		[]string{"depth", "status"},
	)

	ResearchRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deepsearch_research_run_duration_seconds",
			Help:    "Research run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"depth"},
	)

	CreditsCharged = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deepsearch_credits_charged",
			Help:    "Credits charged per research run",
			Buckets: []float64{1, 5, 10, 15, 25, 40, 60},
		},
	)

	// Agent metrics
	AgentExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepsearch_agent_executions_total",
			Help: "Total number of agent executions",
		},
		[]string{"agent", "status"},
	)

	AgentExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deepsearch_agent_execution_duration_ms",
			Help:    "Agent execution duration in milliseconds",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000, 30000},
		},
		[]string{"agent"},
	)

	// State machine metrics
	StateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepsearch_state_transitions_total",
			Help: "Total number of workflow state transitions",
		},
		[]string{"from", "to", "reason"},
	)

	WorkflowIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deepsearch_workflow_iterations",
			Help:    "Number of state machine iterations per run",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
		},
	)

	// Search metrics
	SearchResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepsearch_search_results_total",
			Help: "Total number of sources returned by search strategy",
		},
		[]string{"method"},
	)

	VectorSearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deepsearch_vector_search_duration_seconds",
			Help:    "Vector search round-trip duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deepsearch_search_cache_hits_total",
			Help: "Total number of search cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deepsearch_search_cache_misses_total",
			Help: "Total number of search cache misses",
		},
	)

	// Fact checking metrics
	FactChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepsearch_fact_checks_total",
			Help: "Total number of facts checked, by resulting validation level",
		},
		[]string{"level"},
	)
)

// RecordVectorSearch records the outcome and latency of one vector search call
func RecordVectorSearch(status string, seconds float64) {
	VectorSearchDuration.WithLabelValues(status).Observe(seconds)
}
