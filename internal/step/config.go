package step

import (
	"fmt"
	"time"
)

// BackpressureStrategy selects how a step's input buffer behaves when
// full.
type BackpressureStrategy string

const (
	// Buffer bounds the in-flight queue; producers suspend on full.
	Buffer BackpressureStrategy = "BUFFER"
	// Drop discards items produced while the buffer is full.
	Drop BackpressureStrategy = "DROP"
)

// Parallelism is the scheduling policy, globally or per step.
type Parallelism string

const (
	ParallelismAuto       Parallelism = "AUTO"
	ParallelismSequential Parallelism = "SEQUENTIAL"
	ParallelismParallel   Parallelism = "PARALLEL"
)

// Default tunable values applied when neither the profile nor the step
// overrides them.
const (
	DefaultRetryLimit     = 3
	DefaultRetryWait      = 2 * time.Second
	DefaultMaxBackoff     = 30 * time.Second
	DefaultBufferCapacity = 128
	DefaultMaxConcurrency = 128
)

// Config carries the effective per-step tunables, built from profile
// defaults plus per-step overrides. Immutable once handed to the runner.
type Config struct {
	RetryLimit       int                  `json:"retryLimit" yaml:"retryLimit" validate:"min=1"`
	RetryWait        time.Duration        `json:"retryWait" yaml:"retryWait" validate:"min=0"`
	MaxBackoff       time.Duration        `json:"maxBackoff" yaml:"maxBackoff" validate:"min=0"`
	Jitter           bool                 `json:"jitter" yaml:"jitter"`
	BufferCapacity   int                  `json:"backpressureBufferCapacity" yaml:"backpressureBufferCapacity" validate:"min=1"`
	Strategy         BackpressureStrategy `json:"backpressureStrategy" yaml:"backpressureStrategy" validate:"oneof=BUFFER DROP"`
	RecoverOnFailure bool                 `json:"recoverOnFailure" yaml:"recoverOnFailure"`

	// Parallel, when non-nil, overrides the profile parallelism for this
	// step. The most specific setting wins.
	Parallel *Parallelism `json:"parallel,omitempty" yaml:"parallel,omitempty"`
}

// DefaultConfig returns the built-in tunable defaults.
func DefaultConfig() Config {
	return Config{
		RetryLimit:       DefaultRetryLimit,
		RetryWait:        DefaultRetryWait,
		MaxBackoff:       DefaultMaxBackoff,
		Jitter:           false,
		BufferCapacity:   DefaultBufferCapacity,
		Strategy:         Buffer,
		RecoverOnFailure: false,
	}
}

// Validate rejects contradictory or unusable tunables.
func (c Config) Validate() error {
	if c.RetryLimit < 1 {
		return fmt.Errorf("retry limit must be at least 1 attempt, got %d", c.RetryLimit)
	}
	if c.RetryWait < 0 {
		return fmt.Errorf("retry wait must not be negative, got %s", c.RetryWait)
	}
	if c.MaxBackoff > 0 && c.MaxBackoff < c.RetryWait {
		return fmt.Errorf("max backoff %s is below the initial retry wait %s", c.MaxBackoff, c.RetryWait)
	}
	if c.BufferCapacity < 1 {
		return fmt.Errorf("backpressure buffer capacity must be positive, got %d", c.BufferCapacity)
	}
	switch c.Strategy {
	case Buffer, Drop:
	default:
		return fmt.Errorf("unknown backpressure strategy %q", string(c.Strategy))
	}
	if c.Parallel != nil {
		switch *c.Parallel {
		case ParallelismAuto, ParallelismSequential, ParallelismParallel:
		default:
			return fmt.Errorf("unknown parallelism %q", string(*c.Parallel))
		}
	}
	return nil
}

// ClampConcurrency normalizes a configured max-concurrency value; invalid
// values clamp to 1.
func ClampConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
