// Package telemetry exposes the process-wide Prometheus metrics for the
// ordermesh pipeline.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ordermesh"

// Metrics is the package-level registry of pipeline instruments. Counters
// and histograms are safe for concurrent use.
var Metrics = struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	TasksTotal      *prometheus.CounterVec
	TurnDuration    *prometheus.HistogramVec
	ToolCallsTotal  *prometheus.CounterVec
	OrdersTotal     *prometheus.CounterVec
}{
	RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests served, by route and status code.",
	}, []string{"route", "code"}),

	RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency, by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"}),

	TasksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_total",
		Help:      "Tasks finished, by agent and terminal state.",
	}, []string{"agent", "state"}),

	TurnDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "agent_turn_duration_seconds",
		Help:      "Duration of a single agent turn, by agent.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"agent"}),

	ToolCallsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tool_calls_total",
		Help:      "Tool invocations, by tool name and outcome.",
	}, []string{"tool", "outcome"}),

	OrdersTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "purchase_orders_total",
		Help:      "Purchase orders processed, by decision.",
	}, []string{"decision"}),
}
