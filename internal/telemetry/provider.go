package telemetry

import (
	"net/http"
	"strings"

	"tpf/pkg/logging"
)

// Opts names a metric. Labels lists the label names instrument calls pass
// values for, in the same order.
type Opts struct {
	Name   string
	Help   string
	Labels []string
}

// HistogramOpts adds the bucket layout to Opts. Empty buckets fall back to
// the backend's defaults.
type HistogramOpts struct {
	Opts
	Buckets []float64
}

// Counter is a monotonically increasing metric.
type Counter interface {
	Inc(labels ...string)
	Add(v float64, labels ...string)
}

// Gauge is a metric that can move in both directions.
type Gauge interface {
	Set(v float64, labels ...string)
	Add(v float64, labels ...string)
}

// Histogram records a distribution of observed values.
type Histogram interface {
	Observe(v float64, labels ...string)
}

// Provider creates instruments for one metrics backend. Implementations
// must be safe for concurrent use; instrument creation happens once at
// startup, recording happens on the hot path.
type Provider interface {
	Counter(opts Opts) Counter
	Gauge(opts Opts) Gauge
	Histogram(opts HistogramOpts) Histogram
}

// HandlerProvider is implemented by providers that expose their metrics
// over HTTP (the prometheus backend). The dev host mounts the handler at
// /metrics when available.
type HandlerProvider interface {
	MetricsHandler() http.Handler
}

// SelectProvider returns the metrics provider for the configured backend.
// Disabled telemetry and unknown backends degrade to the noop provider so
// callers never need nil checks.
func SelectProvider(enabled bool, backend string) Provider {
	if !enabled {
		return NewNoopProvider()
	}
	switch strings.ToLower(backend) {
	case "", "prom", "prometheus":
		return NewPrometheusProvider()
	case "noop", "none":
		return NewNoopProvider()
	default:
		logging.Warn("Telemetry", "Unknown metrics backend %q, falling back to noop", backend)
		return NewNoopProvider()
	}
}
