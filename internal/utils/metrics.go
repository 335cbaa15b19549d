// internal/utils/metrics.go
package utils

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	llmAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthscript_llm_attempts_total",
			Help: "Chat completion attempts by provider and outcome kind.",
		},
		[]string{"provider", "outcome"},
	)
	llmCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthscript_llm_calls_total",
			Help: "Completed client calls (after retries) by provider and status.",
		},
		[]string{"provider", "status"},
	)
	llmAttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "healthscript_llm_attempt_duration_seconds",
			Help:    "Duration of single chat completion attempts.",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"provider"},
	)
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthscript_transitions_total",
			Help: "Generation state machine transitions by action and status.",
		},
		[]string{"action", "status"},
	)
	parserTierTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthscript_parser_tier_total",
			Help: "Which parsing tier produced the result, per parser.",
		},
		[]string{"parser", "tier"},
	)
	analysisFallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthscript_analysis_fallback_total",
			Help: "Analysis sub-tasks that fell back to the default generator.",
		},
		[]string{"task"},
	)
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthscript_http_requests_total",
			Help: "HTTP requests by route and status code.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "healthscript_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "healthscript_active_sessions",
			Help: "Sessions currently held in memory.",
		},
	)
)

// RecordLLMAttempt records one provider exchange
func RecordLLMAttempt(provider, outcome string, d time.Duration) {
	llmAttemptsTotal.WithLabelValues(provider, outcome).Inc()
	llmAttemptDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordLLMCall records the final result of a retried call
func RecordLLMCall(provider, status string) {
	llmCallsTotal.WithLabelValues(provider, status).Inc()
}

// RecordTransition records a state machine transition attempt
func RecordTransition(action, status string) {
	transitionsTotal.WithLabelValues(action, status).Inc()
}

// RecordParserTier records the tier that produced a parse result
func RecordParserTier(parser, tier string) {
	parserTierTotal.WithLabelValues(parser, tier).Inc()
}

// RecordAnalysisFallback counts a fallback in an analysis sub-task
func RecordAnalysisFallback(task string) {
	analysisFallbackTotal.WithLabelValues(task).Inc()
}

// RecordHTTPRequest records a served HTTP request
func RecordHTTPRequest(method, route, status string, d time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// SetActiveSessions updates the in-memory session gauge
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}
