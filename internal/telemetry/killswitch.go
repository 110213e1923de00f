package telemetry

import (
	"sync"
	"time"

	"tpf/pkg/logging"
)

// GuardMode selects what happens when the retry-amplification guard
// fires.
type GuardMode string

const (
	// ModeFailFast aborts the run that tripped the guard.
	ModeFailFast GuardMode = "fail-fast"
	// ModeLogOnly emits a warning and lets the run continue.
	ModeLogOnly GuardMode = "log-only"
)

// GuardConfig tunes the retry-amplification guard.
type GuardConfig struct {
	Enabled bool
	// Window is the rolling window the slope and rate are computed over.
	Window time.Duration
	// InflightSlopeThreshold is the in-flight growth, in items per second,
	// above which the guard considers the step amplifying.
	InflightSlopeThreshold float64
	// RetryRateThreshold is the retry rate, in retries per second, above
	// which the guard considers the step amplifying.
	RetryRateThreshold float64
	Mode               GuardMode
}

// DefaultGuardConfig returns the guard defaults: a 30 second window,
// fail-fast, disabled until configuration enables it.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Enabled:                false,
		Window:                 30 * time.Second,
		InflightSlopeThreshold: 1.0,
		RetryRateThreshold:     1.0,
		Mode:                   ModeFailFast,
	}
}

// Trip describes a fired guard: the offending step and the observations
// that crossed both thresholds.
type Trip struct {
	Step      string
	Slope     float64
	RetryRate float64
	Window    time.Duration
}

type guardSample struct {
	at       time.Time
	inflight int64
	retries  int64
}

type guardSeries struct {
	inflight int64
	retries  int64
	samples  []guardSample
	warned   bool
}

// AmplificationGuard watches per-step in-flight counts and retry rates
// over a rolling window. One guard instance belongs to one run; the
// runner feeds it events and polls Tripped between item applications.
type AmplificationGuard struct {
	cfg GuardConfig
	now func() time.Time

	mu      sync.Mutex
	series  map[string]*guardSeries
	tripped *Trip
}

// NewGuard returns a guard for a single run. A zero or negative window
// falls back to the default.
func NewGuard(cfg GuardConfig) *AmplificationGuard {
	if cfg.Window <= 0 {
		cfg.Window = DefaultGuardConfig().Window
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeFailFast
	}
	return &AmplificationGuard{
		cfg:    cfg,
		now:    time.Now,
		series: make(map[string]*guardSeries),
	}
}

// StepStarted records one item entering the step.
func (g *AmplificationGuard) StepStarted(step string) { g.record(step, +1, 0) }

// StepFinished records one item leaving the step.
func (g *AmplificationGuard) StepFinished(step string) { g.record(step, -1, 0) }

// RetryScheduled records one retry of the step.
func (g *AmplificationGuard) RetryScheduled(step string) { g.record(step, 0, 1) }

// Tripped reports whether the guard has fired in fail-fast mode. Once
// tripped it stays tripped for the rest of the run.
func (g *AmplificationGuard) Tripped() (Trip, bool) {
	if g == nil {
		return Trip{}, false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.tripped == nil {
		return Trip{}, false
	}
	return *g.tripped, true
}

func (g *AmplificationGuard) record(step string, inflightDelta, retryDelta int64) {
	if g == nil || !g.cfg.Enabled {
		return
	}
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	series, ok := g.series[step]
	if !ok {
		series = &guardSeries{}
		g.series[step] = series
	}
	series.inflight += inflightDelta
	series.retries += retryDelta
	series.samples = append(series.samples, guardSample{
		at:       now,
		inflight: series.inflight,
		retries:  series.retries,
	})

	// Evict samples that fell out of the window, keeping one sample at or
	// beyond the window edge so the slope always spans the full window
	// once enough history exists.
	cutoff := now.Add(-g.cfg.Window)
	evict := 0
	for evict < len(series.samples)-1 && series.samples[evict+1].at.Before(cutoff) {
		evict++
	}
	if evict > 0 {
		series.samples = series.samples[evict:]
	}

	g.evaluate(step, series)
}

func (g *AmplificationGuard) evaluate(step string, series *guardSeries) {
	if g.tripped != nil || len(series.samples) < 2 {
		return
	}
	first := series.samples[0]
	last := series.samples[len(series.samples)-1]
	span := last.at.Sub(first.at).Seconds()
	if span <= 0 {
		return
	}

	slope := float64(last.inflight-first.inflight) / span
	rate := float64(last.retries-first.retries) / span
	if slope <= g.cfg.InflightSlopeThreshold || rate <= g.cfg.RetryRateThreshold {
		return
	}

	trip := Trip{Step: step, Slope: slope, RetryRate: rate, Window: g.cfg.Window}
	if g.cfg.Mode == ModeLogOnly {
		if !series.warned {
			series.warned = true
			logging.Warn("KillSwitch",
				"Retry amplification on step %s: inflight slope %.2f/s, retry rate %.2f/s over %s (log-only)",
				step, slope, rate, g.cfg.Window)
		}
		return
	}
	g.tripped = &trip
	logging.Warn("KillSwitch",
		"Retry amplification on step %s: inflight slope %.2f/s, retry rate %.2f/s over %s, aborting run",
		step, slope, rate, g.cfg.Window)
}
