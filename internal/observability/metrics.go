package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	conversationsTotal    *prometheus.CounterVec
	conversationDuration  prometheus.Histogram
	conversationRounds    prometheus.Histogram
	turnsTotal            *prometheus.CounterVec
	speakerFallbacksTotal prometheus.Counter

	toolCallsTotal    *prometheus.CounterVec
	toolCallDuration  *prometheus.HistogramVec
	toolFallbackTotal *prometheus.CounterVec

	completionsTotal   *prometheus.CounterVec
	completionDuration *prometheus.HistogramVec

	endpointUp prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			conversationsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "conversations_total",
					Help: "Total conversations by termination reason.",
				},
				[]string{"reason"},
			),
			conversationDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "conversation_duration_seconds",
					Help:    "Conversation duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			conversationRounds: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "conversation_rounds",
					Help:    "Agent turns per conversation.",
					Buckets: []float64{1, 2, 3, 5, 8, 12, 20},
				},
			),
			turnsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "turns_total",
					Help: "Total agent turns by agent.",
				},
				[]string{"agent"},
			),
			speakerFallbacksTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "speaker_fallbacks_total",
					Help: "Speaker selections resolved by round-robin fallback.",
				},
			),
			toolCallsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_calls_total",
					Help: "Total tool calls by tool, origin, and outcome.",
				},
				[]string{"tool", "origin", "outcome"},
			),
			toolCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_call_duration_seconds",
					Help:    "Tool call duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			toolFallbackTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_fallback_total",
					Help: "Tool calls served by the local fallback, by tool and failure class.",
				},
				[]string{"tool", "kind"},
			),
			completionsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "completions_total",
					Help: "Total model completions by provider and status.",
				},
				[]string{"provider", "status"},
			),
			completionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "completion_duration_seconds",
					Help:    "Model completion duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			endpointUp: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "tool_endpoint_up",
					Help: "Tool endpoint health probe state (1 reachable, 0 unreachable).",
				},
			),
		}

		prometheus.MustRegister(
			m.conversationsTotal,
			m.conversationDuration,
			m.conversationRounds,
			m.turnsTotal,
			m.speakerFallbacksTotal,
			m.toolCallsTotal,
			m.toolCallDuration,
			m.toolFallbackTotal,
			m.completionsTotal,
			m.completionDuration,
			m.endpointUp,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// MetricsHandler returns the Prometheus scrape handler.
func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

// RecordConversation records one finished conversation.
func RecordConversation(reason string, rounds int, duration time.Duration) {
	m := getMetrics()
	m.conversationsTotal.WithLabelValues(reason).Inc()
	m.conversationDuration.Observe(duration.Seconds())
	m.conversationRounds.Observe(float64(rounds))
}

// RecordTurn records one completed agent turn.
func RecordTurn(agent string) {
	getMetrics().turnsTotal.WithLabelValues(agent).Inc()
}

// RecordSpeakerFallback records a selection resolved by round-robin.
func RecordSpeakerFallback() {
	getMetrics().speakerFallbacksTotal.Inc()
}

// RecordToolCall records one tool call. Origin is remote, fallback, or
// local; outcome is ok or the failure class.
func RecordToolCall(tool, origin, outcome string, duration time.Duration) {
	m := getMetrics()
	m.toolCallsTotal.WithLabelValues(tool, origin, outcome).Inc()
	m.toolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordToolFallback records a call that was retried locally after a
// remote failure of the given class.
func RecordToolFallback(tool, kind string) {
	getMetrics().toolFallbackTotal.WithLabelValues(tool, kind).Inc()
}

// RecordCompletion records one model completion.
func RecordCompletion(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.completionsTotal.WithLabelValues(provider, status).Inc()
	m.completionDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// SetEndpointUp publishes the advisory tool endpoint probe state.
func SetEndpointUp(up bool) {
	v := 0.0
	if up {
		v = 1.0
	}
	getMetrics().endpointUp.Set(v)
}
