package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock hands out monotonically increasing timestamps under test
// control.
type fakeClock struct {
	at time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{at: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time { return c.at }

func (c *fakeClock) advance(d time.Duration) { c.at = c.at.Add(d) }

func newTestGuard(cfg GuardConfig) (*AmplificationGuard, *fakeClock) {
	g := NewGuard(cfg)
	clock := newFakeClock()
	g.now = clock.now
	return g, clock
}

func TestGuard_TripsWhenBothThresholdsExceeded(t *testing.T) {
	g, clock := newTestGuard(GuardConfig{
		Enabled:                true,
		Window:                 10 * time.Second,
		InflightSlopeThreshold: 0.5,
		RetryRateThreshold:     0.5,
		Mode:                   ModeFailFast,
	})

	// Inflight grows by 1 per second and every started item schedules a
	// retry: both slope and rate settle at 1/s, above both thresholds.
	for i := 0; i < 5; i++ {
		g.StepStarted("steps.Flaky")
		g.RetryScheduled("steps.Flaky")
		clock.advance(time.Second)
	}

	trip, tripped := g.Tripped()
	require.True(t, tripped)
	assert.Equal(t, "steps.Flaky", trip.Step)
	assert.Greater(t, trip.Slope, 0.5)
	assert.Greater(t, trip.RetryRate, 0.5)
	assert.Equal(t, 10*time.Second, trip.Window)
}

func TestGuard_StaysQuietWhenOnlyOneThresholdExceeded(t *testing.T) {
	g, clock := newTestGuard(GuardConfig{
		Enabled:                true,
		Window:                 10 * time.Second,
		InflightSlopeThreshold: 0.5,
		RetryRateThreshold:     0.5,
		Mode:                   ModeFailFast,
	})

	// Retries fire but inflight stays flat: every started item finishes
	// before the next sample, so the slope never rises.
	for i := 0; i < 8; i++ {
		g.StepStarted("steps.Flaky")
		g.RetryScheduled("steps.Flaky")
		g.StepFinished("steps.Flaky")
		clock.advance(time.Second)
	}

	_, tripped := g.Tripped()
	assert.False(t, tripped)
}

func TestGuard_LogOnlyModeNeverTrips(t *testing.T) {
	g, clock := newTestGuard(GuardConfig{
		Enabled:                true,
		Window:                 10 * time.Second,
		InflightSlopeThreshold: 0.5,
		RetryRateThreshold:     0.5,
		Mode:                   ModeLogOnly,
	})

	for i := 0; i < 5; i++ {
		g.StepStarted("steps.Flaky")
		g.RetryScheduled("steps.Flaky")
		clock.advance(time.Second)
	}

	_, tripped := g.Tripped()
	assert.False(t, tripped)
}

func TestGuard_DisabledRecordsNothing(t *testing.T) {
	g, clock := newTestGuard(GuardConfig{Enabled: false, Window: time.Second})

	for i := 0; i < 5; i++ {
		g.StepStarted("steps.Flaky")
		g.RetryScheduled("steps.Flaky")
		clock.advance(time.Second)
	}

	_, tripped := g.Tripped()
	assert.False(t, tripped)
	assert.Empty(t, g.series)
}

func TestGuard_WindowEvictsOldSamples(t *testing.T) {
	g, clock := newTestGuard(GuardConfig{
		Enabled:                true,
		Window:                 5 * time.Second,
		InflightSlopeThreshold: 100,
		RetryRateThreshold:     100,
		Mode:                   ModeFailFast,
	})

	for i := 0; i < 30; i++ {
		g.StepStarted("steps.Busy")
		clock.advance(time.Second)
	}

	series := g.series["steps.Busy"]
	require.NotNil(t, series)
	// One sample may sit at the window edge, the rest must be inside.
	span := series.samples[len(series.samples)-1].at.Sub(series.samples[0].at)
	assert.LessOrEqual(t, span, 6*time.Second)
}

func TestGuard_TrippedIsSticky(t *testing.T) {
	g, clock := newTestGuard(GuardConfig{
		Enabled:                true,
		Window:                 10 * time.Second,
		InflightSlopeThreshold: 0.1,
		RetryRateThreshold:     0.1,
		Mode:                   ModeFailFast,
	})

	for i := 0; i < 4; i++ {
		g.StepStarted("steps.Flaky")
		g.RetryScheduled("steps.Flaky")
		clock.advance(time.Second)
	}
	_, tripped := g.Tripped()
	require.True(t, tripped)

	// Cooling down does not reset the guard within the same run.
	for i := 0; i < 10; i++ {
		g.StepFinished("steps.Flaky")
		clock.advance(time.Second)
	}
	trip, stillTripped := g.Tripped()
	assert.True(t, stillTripped)
	assert.Equal(t, "steps.Flaky", trip.Step)
}

func TestNewGuard_DefaultsWindowAndMode(t *testing.T) {
	g := NewGuard(GuardConfig{Enabled: true})
	assert.Equal(t, 30*time.Second, g.cfg.Window)
	assert.Equal(t, ModeFailFast, g.cfg.Mode)
}

func TestGuard_NilGuardIsSafe(t *testing.T) {
	var g *AmplificationGuard
	g.StepStarted("steps.Any")
	g.StepFinished("steps.Any")
	g.RetryScheduled("steps.Any")
	_, tripped := g.Tripped()
	assert.False(t, tripped)
}
