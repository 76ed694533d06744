package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// llmBuckets covers LLM latencies from 100ms to 2 minutes.
//
//nolint:gochecknoglobals // histogram buckets
var llmBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

//nolint:gochecknoglobals // package-level collectors registered once in init
var (
	providerAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studygate_provider_attempts_total",
			Help: "Provider attempts by operation and outcome",
		},
		[]string{"provider", "operation", "outcome"},
	)

	providerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "studygate_provider_latency_seconds",
			Help:    "Provider attempt latency",
			Buckets: llmBuckets,
		},
		[]string{"provider", "operation"},
	)

	providerFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studygate_provider_fallbacks_total",
			Help: "Fallbacks away from a failed provider",
		},
		[]string{"provider", "operation"},
	)

	streamEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studygate_stream_events_total",
			Help: "Stream events written to callers",
		},
		[]string{"type"},
	)

	activeStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "studygate_streams_active",
			Help: "Active streaming connections",
		},
	)

	quotaRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "studygate_quota_rejections_total",
			Help: "Requests rejected by the daily quota",
		},
	)

	completionCost = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studygate_completion_cost_usd_total",
			Help: "Estimated completion cost in USD",
		},
		[]string{"provider", "model"},
	)

	completionTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studygate_completion_tokens_total",
			Help: "Tokens by direction",
		},
		[]string{"provider", "direction"},
	)
)

func init() {
	prometheus.MustRegister(
		providerAttempts,
		providerLatency,
		providerFallbacks,
		streamEvents,
		activeStreams,
		quotaRejections,
		completionCost,
		completionTokens,
	)
}

// ObserveProviderAttempt records one adapter call.
func ObserveProviderAttempt(provider, operation, outcome string, elapsed time.Duration) {
	providerAttempts.WithLabelValues(provider, operation, outcome).Inc()
	providerLatency.WithLabelValues(provider, operation).Observe(elapsed.Seconds())
}

// CountFallback records a fallback away from provider.
func CountFallback(provider, operation string) {
	providerFallbacks.WithLabelValues(provider, operation).Inc()
}

// CountStreamEvent records one event written to a caller.
func CountStreamEvent(eventType string) {
	streamEvents.WithLabelValues(eventType).Inc()
}

// StreamStarted increments the active stream gauge and returns its decrement.
func StreamStarted() func() {
	activeStreams.Inc()
	return activeStreams.Dec
}

// CountQuotaRejection records a request refused by the daily quota.
func CountQuotaRejection() {
	quotaRejections.Inc()
}

// ObserveCompletion records usage and cost of one answer.
func ObserveCompletion(provider, model string, promptTokens, outputTokens int, cost float64) {
	completionTokens.WithLabelValues(provider, "input").Add(float64(promptTokens))
	completionTokens.WithLabelValues(provider, "output").Add(float64(outputTokens))
	if cost > 0 {
		completionCost.WithLabelValues(provider, model).Add(cost)
	}
}
