package execution

import (
	"context"
	"errors"

	"tpf/internal/cachepolicy"
	"tpf/internal/health"
	"tpf/internal/runner"
)

// The pipeline failure taxonomy, aliased here so callers match every
// class through a single import. Each kind is raised by the layer that
// detects it and travels unwrapped through the service.
type (
	// ConfigurationError rejects a pipeline before any item is
	// processed: an invalid tunable, a duplicate step, or a thread
	// safety rating that forbids the requested parallelism.
	ConfigurationError = runner.ConfigurationError

	// ShapeError reports a step or a call that does not fit the
	// pipeline's streaming shape.
	ShapeError = runner.ShapeError

	// HealthError rejects a call while the startup gate is not
	// HEALTHY.
	HealthError = health.HealthError

	// StepFailure is one step that exhausted its retry budget without
	// recovery. It aborts the run.
	StepFailure = runner.StepFailure

	// CacheMissError fails a single item under REQUIRE_CACHE. The run
	// continues.
	CacheMissError = cachepolicy.MissError

	// KillSwitchError aborts a run when retry amplification trips the
	// guard in fail-fast mode.
	KillSwitchError = runner.KillSwitchError
)

// ErrNoResult reports a unary call whose pipeline completed without
// emitting a value, for example after a CACHE_ONLY drop or a recovered
// failure that declined substitution.
var ErrNoResult = errors.New("pipeline completed without a result")

// Classification helpers shared with the runner.
var (
	IsConfigurationError = runner.IsConfigurationError
	IsShapeError         = runner.IsShapeError
	IsStepFailure        = runner.IsStepFailure
	IsKillSwitchError    = runner.IsKillSwitchError
)

// IsHealthError reports whether err wraps a HealthError.
func IsHealthError(err error) bool {
	var he *HealthError
	return errors.As(err, &he)
}

// IsCacheMiss reports whether err wraps a CacheMissError.
func IsCacheMiss(err error) bool {
	var me *CacheMissError
	return errors.As(err, &me)
}

// IsCancellation reports whether err is the clean termination of a
// cancelled call rather than a pipeline failure.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
