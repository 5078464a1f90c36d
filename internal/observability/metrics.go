package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for the orchestration core.
//
// Tracked areas:
//   - Gateway calls per provider/model, their latency and token usage
//   - Semaphore wait time (back-pressure visibility)
//   - Tool executions by name and outcome
//   - Plan lifecycle counts
//   - Ingestion poller runs and item state transitions
type Metrics struct {
	// GatewayRequests counts model calls.
	// Labels: provider, model, status (success|error)
	GatewayRequests *prometheus.CounterVec

	// GatewayDuration measures model call latency in seconds.
	// Labels: provider, model
	GatewayDuration *prometheus.HistogramVec

	// GatewayTokens tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	GatewayTokens *prometheus.CounterVec

	// SemaphoreWait measures time spent waiting for a provider permit.
	// Labels: provider
	SemaphoreWait *prometheus.HistogramVec

	// ToolExecutions counts tool invocations.
	// Labels: tool, result (ok|error|ask|stop|exception)
	ToolExecutions *prometheus.CounterVec

	// PlansTotal counts plans reaching a terminal status.
	// Labels: status (COMPLETED|FAILED)
	PlansTotal *prometheus.CounterVec

	// PollerRuns counts poll cycles.
	// Labels: kind (email|wiki|tracker), status (success|error|auth_error)
	PollerRuns *prometheus.CounterVec

	// ItemTransitions counts ingest item state transitions.
	// Labels: from, to
	ItemTransitions *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with reg. Pass a fresh
// registry in tests to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		GatewayRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jervis_gateway_requests_total",
			Help: "Model gateway calls by provider, model, and status.",
		}, []string{"provider", "model", "status"}),
		GatewayDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jervis_gateway_duration_seconds",
			Help:    "Model gateway call latency.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"provider", "model"}),
		GatewayTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jervis_gateway_tokens_total",
			Help: "Token usage by provider, model, and type.",
		}, []string{"provider", "model", "type"}),
		SemaphoreWait: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jervis_provider_semaphore_wait_seconds",
			Help:    "Time spent waiting for a provider concurrency permit.",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"provider"}),
		ToolExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jervis_tool_executions_total",
			Help: "Tool invocations by tool name and result kind.",
		}, []string{"tool", "result"}),
		PlansTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jervis_plans_total",
			Help: "Plans reaching a terminal status.",
		}, []string{"status"}),
		PollerRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jervis_poller_runs_total",
			Help: "Ingestion poll cycles by source kind and status.",
		}, []string{"kind", "status"}),
		ItemTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jervis_item_transitions_total",
			Help: "Ingest item state transitions.",
		}, []string{"from", "to"}),
	}
}
