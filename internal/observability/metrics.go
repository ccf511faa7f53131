package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds all Prometheus metrics for the bot.
// Uses a custom registry, so no global state leaks between tests.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// LLM metrics.
	LLMRequestsTotal   *prometheus.CounterVec
	LLMRequestDuration *prometheus.HistogramVec
	LLMTokensUsed      *prometheus.CounterVec

	// Tool execution metrics.
	ToolExecutionsTotal   *prometheus.CounterVec
	ToolExecutionDuration *prometheus.HistogramVec

	// Entitlement metrics.
	EntitlementChecksTotal *prometheus.CounterVec

	// Remote chatops-service metrics.
	RemoteCallsTotal   *prometheus.CounterVec
	RemoteCallDuration *prometheus.HistogramVec
	TokenFetchesTotal  *prometheus.CounterVec

	// HTTP gateway metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Conversation metrics.
	ChatTurnsTotal *prometheus.CounterVec

	// System metrics.
	ActiveRequests prometheus.Gauge
}

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		LLMRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatops",
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Total LLM API requests.",
		}, []string{"provider", "model", "status"}),

		LLMRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chatops",
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "LLM API request duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model"}),

		LLMTokensUsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatops",
			Subsystem: "llm",
			Name:      "tokens_used_total",
			Help:      "Total LLM tokens consumed.",
		}, []string{"provider", "model", "direction"}),

		ToolExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatops",
			Subsystem: "tool",
			Name:      "executions_total",
			Help:      "Total tool executions.",
		}, []string{"tool", "status"}),

		ToolExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chatops",
			Subsystem: "tool",
			Name:      "execution_duration_seconds",
			Help:      "Tool execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),

		EntitlementChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatops",
			Subsystem: "entitlement",
			Name:      "checks_total",
			Help:      "Total entitlement checks performed.",
		}, []string{"result"}), // "granted", "denied", "error"

		RemoteCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatops",
			Subsystem: "remote",
			Name:      "calls_total",
			Help:      "Total chatops-service calls.",
		}, []string{"action", "outcome"}),

		RemoteCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chatops",
			Subsystem: "remote",
			Name:      "call_duration_seconds",
			Help:      "chatops-service call duration in seconds.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"action"}),

		TokenFetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatops",
			Subsystem: "remote",
			Name:      "token_fetches_total",
			Help:      "Total OAuth2 token acquisitions.",
		}, []string{"status"}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatops",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP gateway requests.",
		}, []string{"method", "path", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chatops",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP gateway request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		ChatTurnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatops",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Total conversational turns processed.",
		}, []string{"context", "status"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatops",
			Subsystem: "http",
			Name:      "active_requests",
			Help:      "In-flight HTTP gateway requests.",
		}),
	}

	reg.MustRegister(
		m.LLMRequestsTotal,
		m.LLMRequestDuration,
		m.LLMTokensUsed,
		m.ToolExecutionsTotal,
		m.ToolExecutionDuration,
		m.EntitlementChecksTotal,
		m.RemoteCallsTotal,
		m.RemoteCallDuration,
		m.TokenFetchesTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ChatTurnsTotal,
		m.ActiveRequests,
	)

	return m
}

// RecordEntitlementCheck records one entitlement check outcome.
// Nil-safe: a nil collector records nothing.
func (m *MetricsCollector) RecordEntitlementCheck(result string) {
	if m == nil {
		return
	}
	m.EntitlementChecksTotal.WithLabelValues(result).Inc()
}

// RecordToolExecution records one tool execution outcome.
func (m *MetricsCollector) RecordToolExecution(tool, status string, seconds float64) {
	if m == nil {
		return
	}
	m.ToolExecutionsTotal.WithLabelValues(tool, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(tool).Observe(seconds)
}

// RecordRemoteCall records one chatops-service call outcome.
func (m *MetricsCollector) RecordRemoteCall(action, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.RemoteCallsTotal.WithLabelValues(action, outcome).Inc()
	m.RemoteCallDuration.WithLabelValues(action).Observe(seconds)
}

// RecordLLMRequest records one provider round trip.
func (m *MetricsCollector) RecordLLMRequest(provider, model, status string, seconds float64, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.LLMRequestsTotal.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(seconds)
	m.LLMTokensUsed.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	m.LLMTokensUsed.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
}

// RecordChatTurn records one conversational turn.
func (m *MetricsCollector) RecordChatTurn(chatContext, status string) {
	if m == nil {
		return
	}
	m.ChatTurnsTotal.WithLabelValues(chatContext, status).Inc()
}
