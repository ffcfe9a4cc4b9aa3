// Package metrics declares the Prometheus collectors for agent runs, tool
// calls, SQL attempts and model calls.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector in this package plus the Go and process
// collectors.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		AgentRuns, AgentIterations, AgentDuration,
		ToolCalls, ToolDuration,
		SQLAttempts, SQLOutcomes,
		LLMRequests, LLMDuration, RateLimitWait,
	)
}

// AgentRuns counts finished agent runs by stop reason.
var AgentRuns = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sqlagent_agent_runs_total",
		Help: "Finished agent runs by stop reason.",
	},
	[]string{"reason"}, // final_answer | max_iterations | max_execution_time | parse_errors | error
)

var AgentIterations = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "sqlagent_agent_iterations",
		Help:    "Planner iterations per agent run.",
		Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10, 15, 20},
	},
)

var AgentDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "sqlagent_agent_duration_seconds",
		Help:    "Wall time per agent run.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	},
)

// ToolCalls counts tool invocations by tool and outcome.
var ToolCalls = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sqlagent_tool_calls_total",
		Help: "Tool invocations by tool and outcome.",
	},
	[]string{"tool", "outcome"}, // ok | error | unknown | invalid_format
)

var ToolDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "sqlagent_tool_duration_seconds",
		Help:    "Tool invocation latency.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"tool"},
)

// SQLAttempts counts generate-and-execute attempts by result.
var SQLAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sqlagent_sql_attempts_total",
		Help: "SQL generation attempts by result.",
	},
	[]string{"result"}, // ok | db_error | model_error
)

// SQLOutcomes counts finished SQL generation loops.
var SQLOutcomes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sqlagent_sql_outcomes_total",
		Help: "Finished SQL generation loops by outcome.",
	},
	[]string{"outcome"}, // success | exhausted
)

var LLMRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sqlagent_llm_requests_total",
		Help: "Model requests by provider and status.",
	},
	[]string{"provider", "status"},
)

var LLMDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "sqlagent_llm_duration_seconds",
		Help:    "Model request latency.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	},
	[]string{"provider"},
)

// RateLimitWait observes time spent waiting on the model rate limiter.
var RateLimitWait = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "sqlagent_rate_limit_wait_seconds",
		Help:    "Time spent waiting for a model rate limit token.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	},
	[]string{"provider"},
)

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
