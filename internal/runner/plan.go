package runner

import (
	"context"
	"fmt"
	"sort"

	"tpf/internal/model"
	"tpf/internal/step"
	"tpf/pkg/logging"
)

// stagePlan is one step bound to its effective tunables and its resolved
// apply entry point. Planning fails fast, so by the time a run starts
// every stage has exactly one non-nil entry point matching its shape.
type stagePlan struct {
	s        step.Step
	name     string
	shape    model.StreamingShape
	cfg      step.Config
	hints    model.ParallelismHints
	parallel bool
	recovery step.DeadLetterHandler

	// Unary-output shapes get per-item cache policy enforcement.
	unaryOutput bool

	// Entry points, one set per shape. Blocking variants materialize.
	applyOne     func(ctx context.Context, in any) (any, error)
	expand       func(ctx context.Context, in any, emit step.Emit) error
	expandAll    func(ctx context.Context, in any) ([]any, error)
	reduce       func(ctx context.Context, in step.Stream) (any, error)
	reduceAll    func(ctx context.Context, in []any) (any, error)
	transform    func(ctx context.Context, in step.Stream, emit step.Emit) error
	transformAll func(ctx context.Context, in []any) ([]any, error)
	effect       func(ctx context.Context, in any) error
}

func (sp *stagePlan) streamInput() bool { return sp.shape.StreamInput() }

// resolveOrder arranges the provided steps by the canonical ordered list.
// Names in the list without a matching step are skipped with a warning.
// When any provided step is missing from the list, the caller's order is
// preserved for the whole list so relative positions stay intact, and
// each unknown step is named in a warning.
func resolveOrder(steps []step.Step, order model.OrderedStepList) []step.Step {
	if len(order) == 0 {
		return steps
	}
	var unknown []string
	for _, s := range steps {
		if !order.Contains(s.Name()) {
			unknown = append(unknown, s.Name())
		}
	}
	if len(unknown) > 0 {
		for _, name := range unknown {
			logging.Warn("Runner", "Step %s is not in the canonical order, keeping caller order for the whole pipeline", name)
		}
		return steps
	}
	provided := make(map[string]bool, len(steps))
	for _, s := range steps {
		provided[s.Name()] = true
	}
	for _, fqn := range order {
		if !provided[fqn] {
			logging.Warn("Runner", "Ordered step %s is not registered at runtime, skipping", fqn)
		}
	}
	sorted := make([]step.Step, len(steps))
	copy(sorted, steps)
	sort.SliceStable(sorted, func(i, j int) bool {
		return order.Index(sorted[i].Name()) < order.Index(sorted[j].Name())
	})
	return sorted
}

// resolveParallel decides sequential or parallel execution for one step.
// Unsafe steps and strict-required ordering demand an explicit
// SEQUENTIAL policy; advisory ordering yields under AUTO and logs when
// overridden; AUTO otherwise parallelizes only expansions.
func resolveParallel(name string, hints model.ParallelismHints, policy step.Parallelism, shape model.StreamingShape) (bool, error) {
	if policy == "" {
		policy = step.ParallelismAuto
	}
	if hints.Safety == model.ThreadUnsafe && policy != step.ParallelismSequential {
		return false, &ConfigurationError{
			Step:   name,
			Reason: fmt.Sprintf("thread-unsafe step requires SEQUENTIAL parallelism, policy is %s", policy),
		}
	}
	if hints.Ordering == model.OrderingStrictRequired && policy != step.ParallelismSequential {
		return false, &ConfigurationError{
			Step:   name,
			Reason: fmt.Sprintf("strict-required ordering cannot run under %s parallelism", policy),
		}
	}
	if policy == step.ParallelismSequential {
		return false, nil
	}
	if hints.Ordering == model.OrderingStrictAdvised {
		if policy == step.ParallelismAuto {
			logging.Debug("Runner", "Step %s advises strict ordering, running sequentially under AUTO", name)
			return false, nil
		}
		logging.Info("Runner", "Step %s advises strict ordering but policy is PARALLEL, order is not preserved", name)
		return true, nil
	}
	if policy == step.ParallelismParallel {
		return true, nil
	}
	// AUTO: expansions are the only candidates worth fanning out.
	return shape == model.ShapeUnaryToStream, nil
}

// preferBlocking reports whether the step asks for its blocking entry
// point. Adapters carrying both variants expose the hint.
func preferBlocking(s step.Step) bool {
	if bh, ok := s.(step.BlockingHint); ok {
		return bh.Blocking()
	}
	return false
}

// bindEntryPoint resolves the step's apply operation from its declared
// shape. A declared shape without a matching implementation is a
// ShapeError; both failures surface at plan time.
func bindEntryPoint(sp *stagePlan) error {
	s := sp.s
	blocking := preferBlocking(s)
	switch sp.shape {
	case model.ShapeUnaryToUnary:
		impl, ok := s.(step.OneToOneStep)
		if !ok {
			return &ShapeError{Step: sp.name, Shape: string(sp.shape), Detail: "implements no one-to-one apply"}
		}
		sp.applyOne = impl.Apply
	case model.ShapeUnaryToStream:
		lazy, hasLazy := s.(step.OneToMany)
		bulk, hasBulk := s.(step.BlockingOneToMany)
		switch {
		case hasBulk && (blocking || !hasLazy):
			sp.expandAll = bulk.ExpandAll
		case hasLazy:
			sp.expand = lazy.Expand
		default:
			return &ShapeError{Step: sp.name, Shape: string(sp.shape), Detail: "implements no expansion"}
		}
	case model.ShapeStreamToUnary:
		lazy, hasLazy := s.(step.ManyToOne)
		bulk, hasBulk := s.(step.BlockingManyToOne)
		switch {
		case hasBulk && (blocking || !hasLazy):
			sp.reduceAll = bulk.ReduceAll
		case hasLazy:
			sp.reduce = lazy.Reduce
		default:
			return &ShapeError{Step: sp.name, Shape: string(sp.shape), Detail: "implements no reduction"}
		}
	case model.ShapeStreamToStream:
		lazy, hasLazy := s.(step.ManyToMany)
		bulk, hasBulk := s.(step.BlockingManyToMany)
		switch {
		case hasBulk && (blocking || !hasLazy):
			sp.transformAll = bulk.TransformAll
		case hasLazy:
			sp.transform = lazy.Transform
		default:
			return &ShapeError{Step: sp.name, Shape: string(sp.shape), Detail: "implements no stream transform"}
		}
	case model.ShapeSideEffect:
		impl, ok := s.(step.SideEffect)
		if !ok {
			return &ShapeError{Step: sp.name, Shape: string(sp.shape), Detail: "implements no side effect"}
		}
		sp.effect = impl.Effect
	default:
		return &ShapeError{Step: sp.name, Shape: string(sp.shape), Detail: "is not a known streaming shape"}
	}
	return nil
}

// buildPlan validates every step and freezes its tunables. Policy errors
// abort here, before any item is processed.
func buildPlan(steps []step.Step, opts Options) ([]*stagePlan, error) {
	if len(steps) == 0 {
		return nil, &ConfigurationError{Reason: "a pipeline needs at least one step"}
	}
	ordered := resolveOrder(steps, opts.Order)
	plan := make([]*stagePlan, 0, len(ordered))
	seen := make(map[string]bool, len(ordered))
	for _, s := range ordered {
		name := s.Name()
		if name == "" {
			return nil, &ConfigurationError{Reason: "a step has an empty name"}
		}
		if seen[name] {
			return nil, &ConfigurationError{Step: name, Reason: "registered twice in one pipeline"}
		}
		seen[name] = true

		cfg := step.DefaultConfig()
		if opts.Configs != nil {
			cfg = opts.Configs(name)
		}
		if err := cfg.Validate(); err != nil {
			return nil, &ConfigurationError{Step: name, Reason: err.Error()}
		}

		policy := opts.Parallelism
		if cfg.Parallel != nil {
			policy = *cfg.Parallel
		}

		sp := &stagePlan{
			s:        s,
			name:     name,
			shape:    s.Shape(),
			cfg:      cfg,
			hints:    step.HintsOf(s),
			recovery: step.RecoveryOf(s),
		}
		sp.unaryOutput = !sp.shape.StreamOutput()

		parallel, err := resolveParallel(name, sp.hints, policy, sp.shape)
		if err != nil {
			return nil, err
		}
		sp.parallel = parallel

		if err := bindEntryPoint(sp); err != nil {
			return nil, err
		}
		plan = append(plan, sp)
	}
	return plan, nil
}

// outputIsStream applies the shape algebra for one hop: expansions and
// transforms always stream, reductions always collapse, per-item shapes
// keep the current cardinality.
func outputIsStream(current bool, shape model.StreamingShape) bool {
	switch shape {
	case model.ShapeUnaryToStream, model.ShapeStreamToStream:
		return true
	case model.ShapeStreamToUnary:
		return false
	default:
		return current
	}
}
