package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency for the gateway edge (C7).
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "gateway",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// ToolCallDuration tracks adapter (C4) wall-clock time per tool invocation.
var ToolCallDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "gateway",
		Subsystem: "tool",
		Name:      "call_duration_seconds",
		Help:      "tools/call adapter invocation duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	},
	[]string{"service", "tool", "status"},
)

// ToolCallsTotal counts tools/call invocations by outcome.
var ToolCallsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "tool",
		Name:      "calls_total",
		Help:      "Total number of tools/call invocations.",
	},
	[]string{"service", "tool", "status"},
)

// QuotaDeniedTotal counts admission denials by gate (C5).
var QuotaDeniedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "quota",
		Name:      "denied_total",
		Help:      "Total number of requests denied by quota admission.",
	},
	[]string{"gate"}, // "daily_cap" or "trial_cap"
)

// RPCErrorsTotal counts JSON-RPC envelope-level errors by code (C6).
var RPCErrorsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "rpc",
		Name:      "errors_total",
		Help:      "Total number of JSON-RPC error replies by code.",
	},
	[]string{"code"},
)

// UsageLogDroppedTotal counts fire-and-forget usage log entries dropped
// because the bounded submission queue was full (§5, §9).
var UsageLogDroppedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "usagelog",
		Name:      "dropped_total",
		Help:      "Total number of usage log entries dropped due to a full submission queue.",
	},
)

// All returns the gateway-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		ToolCallDuration,
		ToolCallsTotal,
		QuotaDeniedTotal,
		RPCErrorsTotal,
		UsageLogDroppedTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors,
// HTTPRequestDuration, and any additional service-specific collectors.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
