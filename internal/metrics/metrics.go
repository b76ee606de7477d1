// Package metrics defines Prometheus metrics for the simulation engine.
//
// Metric naming follows Prometheus conventions: emergence_ prefix for all
// custom metrics, _total suffix for counters, _seconds suffix for duration
// histograms.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// DispatchCallsTotal counts model dispatch attempts by provider and outcome.
	DispatchCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emergence_dispatch_calls_total",
			Help: "Total model dispatch attempts by provider and outcome.",
		},
		[]string{"provider", "outcome"}, // outcome: success, fallback, error
	)

	// DispatchLatencySeconds is a histogram of model dispatch latency by provider.
	DispatchLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "emergence_dispatch_latency_seconds",
			Help:    "Latency of model dispatch calls in seconds.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"provider"},
	)

	// LLMDailyCostUSD reports the current day's estimated LLM spend.
	LLMDailyCostUSD = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "emergence_llm_daily_cost_usd",
		Help: "Estimated LLM spend for the current UTC day.",
	})

	// ActionsTotal counts validated actions by kind and validity.
	ActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emergence_actions_total",
			Help: "Total actions processed by kind and validity.",
		},
		[]string{"action", "valid"},
	)

	// AgentTurnsTotal counts completed per-agent processor turns.
	AgentTurnsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "emergence_agent_turns_total",
		Help: "Total per-agent processor turns completed.",
	})

	// BackoffActiveGauge tracks agents currently under rate-limit backoff.
	BackoffActiveGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "emergence_agents_backoff_active",
		Help: "Number of agents currently under rate-limit backoff.",
	})

	// GuardrailStopsTotal counts guardrail stop decisions by reason.
	GuardrailStopsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emergence_guardrail_stops_total",
			Help: "Total guardrail stop decisions by reason.",
		},
		[]string{"reason"},
	)

	// SchedulerTickDuration is a histogram of scheduler tick durations by job.
	SchedulerTickDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "emergence_scheduler_tick_seconds",
			Help:    "Duration of scheduler job ticks in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30},
		},
		[]string{"job"},
	)

	// DeathsTotal counts agent deaths by cause.
	DeathsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emergence_deaths_total",
			Help: "Total agent deaths by cause.",
		},
		[]string{"cause"},
	)
)

// collectors bundles every metric above for registration with a Prometheus
// registerer (cmd/emergenced registers them with its own
// prometheus.NewRegistry once at process start).
var collectors = []prometheus.Collector{
	DispatchCallsTotal, DispatchLatencySeconds, LLMDailyCostUSD, ActionsTotal,
	AgentTurnsTotal, BackoffActiveGauge, GuardrailStopsTotal, SchedulerTickDuration,
	DeathsTotal,
}

// MustRegister registers every metric with reg. Call once at process start.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(collectors...)
}

// ObserveDispatch records a dispatch latency sample for provider.
func ObserveDispatch(provider string, d time.Duration) {
	DispatchLatencySeconds.WithLabelValues(provider).Observe(d.Seconds())
}
