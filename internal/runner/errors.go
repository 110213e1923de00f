package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tpf/internal/step"
)

// ErrNilResult marks a unary-output step that returned a nil value
// without an error. The contract violation is not retried.
var ErrNilResult = errors.New("step returned a nil result without an error")

// ConfigurationError reports an invalid policy or tunable combination.
// It is raised during planning, before any item is processed.
type ConfigurationError struct {
	Step   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Step == "" {
		return fmt.Sprintf("pipeline configuration: %s", e.Reason)
	}
	return fmt.Sprintf("step %s: invalid configuration: %s", e.Step, e.Reason)
}

// IsConfigurationError reports whether err wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// ShapeError reports a step whose declared shape does not match the
// interface it implements.
type ShapeError struct {
	Step   string
	Shape  string
	Detail string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("step %s declares shape %s but %s", e.Step, e.Shape, e.Detail)
}

// IsShapeError reports whether err wraps a ShapeError.
func IsShapeError(err error) bool {
	var se *ShapeError
	return errors.As(err, &se)
}

// StepFailure is the run-scoped failure of one step after its retry
// budget is exhausted and recovery declined or was disabled.
type StepFailure struct {
	Step     string
	Attempts int
	Cause    error
}

func (e *StepFailure) Error() string {
	return fmt.Sprintf("step %s failed after %d attempt(s): %v", e.Step, e.Attempts, e.Cause)
}

func (e *StepFailure) Unwrap() error { return e.Cause }

// IsStepFailure reports whether err wraps a StepFailure.
func IsStepFailure(err error) bool {
	var sf *StepFailure
	return errors.As(err, &sf)
}

// KillSwitchError aborts a run when the retry-amplification guard trips
// in fail-fast mode.
type KillSwitchError struct {
	Step      string
	Slope     float64
	RetryRate float64
	Window    time.Duration
}

func (e *KillSwitchError) Error() string {
	return fmt.Sprintf("kill switch: retry amplification on step %s (inflight slope %.2f/s, retry rate %.2f/s over %s)",
		e.Step, e.Slope, e.RetryRate, e.Window)
}

// IsKillSwitchError reports whether err wraps a KillSwitchError.
func IsKillSwitchError(err error) bool {
	var ke *KillSwitchError
	return errors.As(err, &ke)
}

// permanentError marks a failure that must not be retried: contract
// violations and nil dereferences inside a step.
type permanentError struct {
	cause error
}

func (e *permanentError) Error() string { return e.cause.Error() }
func (e *permanentError) Unwrap() error { return e.cause }

// Permanent wraps err so the retry loop fails immediately instead of
// consuming the remaining attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{cause: err}
}

// retryable reports whether the retry loop may attempt err again.
// Cancellation, type mismatches, and permanent failures are final.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *permanentError
	if errors.As(err, &pe) {
		return false
	}
	var tm *step.TypeMismatchError
	if errors.As(err, &tm) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
