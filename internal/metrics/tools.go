package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for tool call metrics.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// ToolMetrics collects per-tool invocation metrics.
type ToolMetrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewToolMetrics creates tool invocation metrics registered on reg.
func NewToolMetrics(reg prometheus.Registerer) *ToolMetrics {
	return &ToolMetrics{
		calls: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcp_tool_calls_total",
				Help: "Tracks the number of MCP tool invocations.",
			}, []string{"tool", "outcome"},
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "mcp_tool_duration_seconds",
				Help: "Tracks the latencies of MCP tool invocations.",
				// Tool calls include upstream generation time, which runs into minutes.
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
			}, []string{"tool"},
		),
	}
}

// Observe records one tool invocation.
func (m *ToolMetrics) Observe(tool, outcome string, elapsed time.Duration) {
	m.calls.WithLabelValues(tool, outcome).Inc()
	m.duration.WithLabelValues(tool).Observe(elapsed.Seconds())
}
