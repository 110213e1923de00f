package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusProvider backs instruments with a dedicated prometheus
// registry. Each provider owns its registry so tests and embedded hosts
// never collide on the global default.
type PrometheusProvider struct {
	registry *prometheus.Registry
}

// NewPrometheusProvider returns a provider with a fresh registry.
func NewPrometheusProvider() *PrometheusProvider {
	return &PrometheusProvider{registry: prometheus.NewRegistry()}
}

// MetricsHandler exposes the registry for the /metrics endpoint.
func (p *PrometheusProvider) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *PrometheusProvider) Counter(opts Opts) Counter {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: opts.Name,
		Help: opts.Help,
	}, opts.Labels)
	p.registry.MustRegister(vec)
	return &promCounter{vec: vec}
}

func (p *PrometheusProvider) Gauge(opts Opts) Gauge {
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: opts.Name,
		Help: opts.Help,
	}, opts.Labels)
	p.registry.MustRegister(vec)
	return &promGauge{vec: vec}
}

func (p *PrometheusProvider) Histogram(opts HistogramOpts) Histogram {
	promOpts := prometheus.HistogramOpts{
		Name: opts.Name,
		Help: opts.Help,
	}
	if len(opts.Buckets) > 0 {
		promOpts.Buckets = opts.Buckets
	}
	vec := prometheus.NewHistogramVec(promOpts, opts.Labels)
	p.registry.MustRegister(vec)
	return &promHistogram{vec: vec}
}

type promCounter struct {
	vec *prometheus.CounterVec
}

func (c *promCounter) Inc(labels ...string) { c.vec.WithLabelValues(labels...).Inc() }

func (c *promCounter) Add(v float64, labels ...string) { c.vec.WithLabelValues(labels...).Add(v) }

type promGauge struct {
	vec *prometheus.GaugeVec
}

func (g *promGauge) Set(v float64, labels ...string) { g.vec.WithLabelValues(labels...).Set(v) }

func (g *promGauge) Add(v float64, labels ...string) { g.vec.WithLabelValues(labels...).Add(v) }

type promHistogram struct {
	vec *prometheus.HistogramVec
}

func (h *promHistogram) Observe(v float64, labels ...string) {
	h.vec.WithLabelValues(labels...).Observe(v)
}
