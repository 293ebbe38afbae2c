package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tool server metrics
	toolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cosmoshop_tool_calls_total",
		Help: "Tool invocations by tool and outcome",
	}, []string{"tool", "outcome"}) // outcome=success|error

	toolCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cosmoshop_tool_call_duration_seconds",
		Help:    "Tool invocation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"tool"})

	// Transport bridge metrics
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cosmoshop_sse_sessions_active",
		Help: "Currently open SSE sessions",
	})

	sessionsOpenedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cosmoshop_sse_sessions_opened_total",
		Help: "Total SSE sessions opened",
	})

	submissionsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cosmoshop_sse_submissions_rejected_total",
		Help: "Message submissions rejected for an unknown or closed session",
	})

	// Chat orchestrator metrics
	assistantTurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cosmoshop_assistant_turns_total",
		Help: "Assistant responses by kind",
	}, []string{"kind"}) // kind=message|tool_calls|fallback

	unknownToolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cosmoshop_assistant_unknown_tool_calls_total",
		Help: "Tool calls requested by the model for tools without a formatter",
	}, []string{"tool"})
)

// RecordToolCall records one tool invocation.
func RecordToolCall(tool string, err error, d time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	toolCallsTotal.WithLabelValues(tool, outcome).Inc()
	toolCallDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// SessionOpened records a new SSE session.
func SessionOpened() {
	sessionsOpenedTotal.Inc()
	sessionsActive.Inc()
}

// SessionClosed records the end of an SSE session.
func SessionClosed() {
	sessionsActive.Dec()
}

// SubmissionRejected records a POST for an unknown or closed session.
func SubmissionRejected() {
	submissionsRejectedTotal.Inc()
}

// RecordAssistantTurn records how the assistant answered a message.
func RecordAssistantTurn(kind string) {
	assistantTurnsTotal.WithLabelValues(kind).Inc()
}

// RecordUnknownToolCall records a model request for an unhandled tool.
func RecordUnknownToolCall(tool string) {
	unknownToolCallsTotal.WithLabelValues(tool).Inc()
}
