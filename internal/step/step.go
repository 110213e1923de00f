package step

import (
	"context"
	"fmt"

	"tpf/internal/model"
)

// Stream is a lazily produced sequence of items. The producer closes the
// channel when the sequence ends; consumers stop reading on context
// cancellation.
type Stream <-chan any

// Emit delivers one item downstream. It blocks while the downstream
// backpressure buffer is full (BUFFER strategy) and returns an error only
// when the run has been cancelled; producers must stop on error.
type Emit func(item any) error

// Step is the common surface of every step kind. The runtime resolves the
// apply operation by inspecting Shape and asserting the matching
// shape-specific interface.
type Step interface {
	// Name returns the fully-qualified step name used for order matching
	// and per-step configuration.
	Name() string
	// Shape returns the streaming shape of the apply operation.
	Shape() model.StreamingShape
}

// OneToOneStep transforms one item into one item.
type OneToOneStep interface {
	Step
	Apply(ctx context.Context, in any) (any, error)
}

// OneToMany expands one item into a lazy sequence.
type OneToMany interface {
	Step
	Expand(ctx context.Context, in any, emit Emit) error
}

// ManyToOne reduces a lazy sequence into one item. Items arrive in source
// order.
type ManyToOne interface {
	Step
	Reduce(ctx context.Context, in Stream) (any, error)
}

// ManyToMany transforms a lazy sequence into another lazy sequence.
type ManyToMany interface {
	Step
	Transform(ctx context.Context, in Stream, emit Emit) error
}

// SideEffectStep observes one item without changing it. The runtime
// re-emits the original input after Effect returns.
type SideEffectStep interface {
	Step
	Effect(ctx context.Context, in any) error
}

// BlockingOneToMany is the blocking variant of OneToMany: the full
// expansion is materialized as a slice. The runtime streams the slice to
// the next step.
type BlockingOneToMany interface {
	Step
	ExpandAll(ctx context.Context, in any) ([]any, error)
}

// BlockingManyToOne is the blocking variant of ManyToOne: the runtime
// collects the input stream into a slice before invoking it.
type BlockingManyToOne interface {
	Step
	ReduceAll(ctx context.Context, in []any) (any, error)
}

// BlockingManyToMany is the blocking variant of ManyToMany.
type BlockingManyToMany interface {
	Step
	TransformAll(ctx context.Context, in []any) ([]any, error)
}

// BlockingHint is implemented by adapters that carry both the lazy and
// the blocking entry points; the runtime prefers the blocking one when
// Blocking reports true. Plain step types that implement exactly one
// shape interface never need it.
type BlockingHint interface {
	Blocking() bool
}

// HintProvider is implemented by steps that declare scheduling hints.
// Steps without it run with model.DefaultHints.
type HintProvider interface {
	Hints() model.ParallelismHints
}

// HintsOf returns the step's declared hints or the defaults.
func HintsOf(s Step) model.ParallelismHints {
	if hp, ok := s.(HintProvider); ok {
		return hp.Hints()
	}
	return model.DefaultHints()
}

// DeadLetterHandler is the optional recovery capability. After a step's
// retries are exhausted and recover-on-failure is enabled, Recover is
// consulted: (substitute, true, nil) emits the substitute downstream,
// (_, false, nil) drops the failed item, and a non-nil error re-surfaces
// the failure.
type DeadLetterHandler interface {
	Recover(ctx context.Context, in any, cause error) (any, bool, error)
}

// DeadLetterProvider lets adapter types expose an optional handler without
// always satisfying DeadLetterHandler themselves.
type DeadLetterProvider interface {
	DeadLetter() DeadLetterHandler
}

// RecoveryOf returns the step's dead-letter handler, or nil when the step
// has none.
func RecoveryOf(s Step) DeadLetterHandler {
	if p, ok := s.(DeadLetterProvider); ok {
		return p.DeadLetter()
	}
	if h, ok := s.(DeadLetterHandler); ok {
		return h
	}
	return nil
}

// TypeMismatchError reports an item that does not match the step's
// declared input type. It is a per-item step failure, retried like any
// other unless wrapped as non-retryable by the caller.
type TypeMismatchError struct {
	StepName string
	Want     string
	Got      any
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("step %s expected input of type %s, got %T", e.StepName, e.Want, e.Got)
}
