package step

import (
	"context"
	"fmt"

	"tpf/internal/model"
)

// RecoverFunc is the typed form of DeadLetterHandler.Recover used by the
// adapter builders.
type RecoverFunc func(ctx context.Context, in any, cause error) (any, bool, error)

// Func adapts plain functions into a Step. Exactly one apply closure is
// set, matching the shape tag; the runtime dispatches on Shape before
// asserting the shape-specific interface, so the unused methods are never
// reached.
type Func struct {
	name  string
	shape model.StreamingShape
	hints model.ParallelismHints

	apply        func(ctx context.Context, in any) (any, error)
	expand       func(ctx context.Context, in any, emit Emit) error
	expandAll    func(ctx context.Context, in any) ([]any, error)
	reduce       func(ctx context.Context, in Stream) (any, error)
	reduceAll    func(ctx context.Context, in []any) (any, error)
	transform    func(ctx context.Context, in Stream, emit Emit) error
	transformAll func(ctx context.Context, in []any) ([]any, error)
	effect       func(ctx context.Context, in any) error

	recoverFn RecoverFunc
}

func newFunc(name string, shape model.StreamingShape) *Func {
	return &Func{name: name, shape: shape, hints: model.DefaultHints()}
}

func (f *Func) Name() string                  { return f.name }
func (f *Func) Shape() model.StreamingShape   { return f.shape }
func (f *Func) Hints() model.ParallelismHints { return f.hints }

// Blocking implements BlockingHint: true when the Func was built from a
// slice-based closure rather than a lazy one.
func (f *Func) Blocking() bool {
	return f.expandAll != nil || f.reduceAll != nil || f.transformAll != nil
}

// WithHints overrides the default (RELAXED, SAFE) scheduling hints.
func (f *Func) WithHints(ordering model.Ordering, safety model.ThreadSafety) *Func {
	f.hints = model.ParallelismHints{Ordering: ordering, Safety: safety}
	return f
}

// WithRecovery attaches a dead-letter handler consulted when
// recover-on-failure is enabled for this step.
func (f *Func) WithRecovery(fn RecoverFunc) *Func {
	f.recoverFn = fn
	return f
}

// DeadLetter implements DeadLetterProvider.
func (f *Func) DeadLetter() DeadLetterHandler {
	if f.recoverFn == nil {
		return nil
	}
	return recoverAdapter(f.recoverFn)
}

type recoverAdapter RecoverFunc

func (r recoverAdapter) Recover(ctx context.Context, in any, cause error) (any, bool, error) {
	return r(ctx, in, cause)
}

func (f *Func) Apply(ctx context.Context, in any) (any, error) {
	if f.apply == nil {
		return nil, fmt.Errorf("step %s does not implement a one-to-one apply", f.name)
	}
	return f.apply(ctx, in)
}

func (f *Func) Expand(ctx context.Context, in any, emit Emit) error {
	if f.expand == nil {
		return fmt.Errorf("step %s does not implement an expansion", f.name)
	}
	return f.expand(ctx, in, emit)
}

func (f *Func) ExpandAll(ctx context.Context, in any) ([]any, error) {
	if f.expandAll == nil {
		return nil, fmt.Errorf("step %s does not implement a blocking expansion", f.name)
	}
	return f.expandAll(ctx, in)
}

func (f *Func) Reduce(ctx context.Context, in Stream) (any, error) {
	if f.reduce == nil {
		return nil, fmt.Errorf("step %s does not implement a reduction", f.name)
	}
	return f.reduce(ctx, in)
}

func (f *Func) ReduceAll(ctx context.Context, in []any) (any, error) {
	if f.reduceAll == nil {
		return nil, fmt.Errorf("step %s does not implement a blocking reduction", f.name)
	}
	return f.reduceAll(ctx, in)
}

func (f *Func) Transform(ctx context.Context, in Stream, emit Emit) error {
	if f.transform == nil {
		return fmt.Errorf("step %s does not implement a stream transform", f.name)
	}
	return f.transform(ctx, in, emit)
}

func (f *Func) TransformAll(ctx context.Context, in []any) ([]any, error) {
	if f.transformAll == nil {
		return nil, fmt.Errorf("step %s does not implement a blocking stream transform", f.name)
	}
	return f.transformAll(ctx, in)
}

func (f *Func) Effect(ctx context.Context, in any) error {
	if f.effect == nil {
		return fmt.Errorf("step %s does not implement a side effect", f.name)
	}
	return f.effect(ctx, in)
}

func assertItem[I any](name string, in any) (I, error) {
	v, ok := in.(I)
	if !ok {
		var zero I
		return zero, &TypeMismatchError{StepName: name, Want: fmt.Sprintf("%T", zero), Got: in}
	}
	return v, nil
}

// OneToOne builds a unary-to-unary step from a typed function.
func OneToOne[I, O any](name string, fn func(context.Context, I) (O, error)) *Func {
	s := newFunc(name, model.ShapeUnaryToUnary)
	s.apply = func(ctx context.Context, in any) (any, error) {
		v, err := assertItem[I](name, in)
		if err != nil {
			return nil, err
		}
		return fn(ctx, v)
	}
	return s
}

// Expand builds a unary-to-stream step from a typed function that emits
// its expansion lazily.
func Expand[I, O any](name string, fn func(ctx context.Context, in I, emit func(O) error) error) *Func {
	s := newFunc(name, model.ShapeUnaryToStream)
	s.expand = func(ctx context.Context, in any, emit Emit) error {
		v, err := assertItem[I](name, in)
		if err != nil {
			return err
		}
		return fn(ctx, v, func(out O) error { return emit(out) })
	}
	return s
}

// ExpandSlice builds the blocking unary-to-stream variant: the expansion
// is materialized and streamed by the runtime.
func ExpandSlice[I, O any](name string, fn func(context.Context, I) ([]O, error)) *Func {
	s := newFunc(name, model.ShapeUnaryToStream)
	s.expandAll = func(ctx context.Context, in any) ([]any, error) {
		v, err := assertItem[I](name, in)
		if err != nil {
			return nil, err
		}
		outs, err := fn(ctx, v)
		if err != nil {
			return nil, err
		}
		items := make([]any, len(outs))
		for i, o := range outs {
			items[i] = o
		}
		return items, nil
	}
	return s
}

// Fold builds a stream-to-unary step from a typed accumulator function.
// Items are folded in source order.
func Fold[I, O any](name string, seed O, fn func(context.Context, O, I) (O, error)) *Func {
	s := newFunc(name, model.ShapeStreamToUnary)
	s.reduce = func(ctx context.Context, in Stream) (any, error) {
		acc := seed
		for item := range in {
			v, err := assertItem[I](name, item)
			if err != nil {
				return nil, err
			}
			acc, err = fn(ctx, acc, v)
			if err != nil {
				return nil, err
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}
		return acc, nil
	}
	return s
}

// ReduceSlice builds the blocking stream-to-unary variant: the runtime
// collects the input stream before invoking fn.
func ReduceSlice[I, O any](name string, fn func(context.Context, []I) (O, error)) *Func {
	s := newFunc(name, model.ShapeStreamToUnary)
	s.reduceAll = func(ctx context.Context, in []any) (any, error) {
		items := make([]I, 0, len(in))
		for _, raw := range in {
			v, err := assertItem[I](name, raw)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return fn(ctx, items)
	}
	return s
}

// Transform builds a stream-to-stream step from a typed function reading
// the input stream and emitting results lazily.
func Transform[I, O any](name string, fn func(ctx context.Context, in <-chan I, emit func(O) error) error) *Func {
	s := newFunc(name, model.ShapeStreamToStream)
	s.transform = func(ctx context.Context, in Stream, emit Emit) error {
		typed := make(chan I)
		errCh := make(chan error, 1)
		go func() {
			defer close(typed)
			for item := range in {
				v, err := assertItem[I](name, item)
				if err != nil {
					errCh <- err
					return
				}
				select {
				case typed <- v:
				case <-ctx.Done():
					return
				}
			}
		}()
		err := fn(ctx, typed, func(out O) error { return emit(out) })
		select {
		case convErr := <-errCh:
			// Drain remaining input so the converter goroutine exits.
			for range in {
			}
			if err == nil {
				err = convErr
			}
		default:
		}
		return err
	}
	return s
}

// TransformSlice builds the blocking stream-to-stream variant: the
// runtime collects the input before invoking fn and streams the result.
func TransformSlice[I, O any](name string, fn func(context.Context, []I) ([]O, error)) *Func {
	s := newFunc(name, model.ShapeStreamToStream)
	s.transformAll = func(ctx context.Context, in []any) ([]any, error) {
		items := make([]I, 0, len(in))
		for _, raw := range in {
			v, err := assertItem[I](name, raw)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		outs, err := fn(ctx, items)
		if err != nil {
			return nil, err
		}
		results := make([]any, len(outs))
		for i, o := range outs {
			results[i] = o
		}
		return results, nil
	}
	return s
}

// SideEffect builds a side-effect step; the runtime re-emits the input
// unchanged after fn returns.
func SideEffect[T any](name string, fn func(context.Context, T) error) *Func {
	s := newFunc(name, model.ShapeSideEffect)
	s.effect = func(ctx context.Context, in any) error {
		v, err := assertItem[T](name, in)
		if err != nil {
			return err
		}
		return fn(ctx, v)
	}
	return s
}
