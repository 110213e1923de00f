package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"tpf/internal/cachepolicy"
	"tpf/internal/model"
	"tpf/internal/pipectx"
	"tpf/internal/step"
	"tpf/internal/telemetry"
	"tpf/pkg/logging"
)

// Options tunes one planned pipeline.
type Options struct {
	// Parallelism is the global scheduling policy. Per-step overrides in
	// the resolved config win. Empty means AUTO.
	Parallelism step.Parallelism
	// MaxConcurrency bounds concurrent applications within one parallel
	// stage. Zero applies the built-in default.
	MaxConcurrency int
	// Order is the canonical step order emitted at build time. Empty
	// keeps the caller's order.
	Order model.OrderedStepList
	// Configs resolves the effective tunables per step FQN. Nil applies
	// the built-in defaults everywhere.
	Configs func(fqn string) step.Config
	// Instruments receives run and step metrics. Nil records nothing.
	Instruments *telemetry.Instruments
	// KillSwitch configures the retry-amplification watchdog. One guard
	// is created per run; the zero value leaves it disabled.
	KillSwitch telemetry.GuardConfig
	// Enforcer applies per-request cache policies to unary-output items.
	// Nil uses a PREFER_CACHE enforcer.
	Enforcer *cachepolicy.Enforcer
	// Tracing emits run and per-item spans. Nil disables tracing.
	Tracing *telemetry.Tracing
}

// Runner is one composed pipeline: an ordered list of planned stages.
// Planning validates every policy, tunable, and shape up front; Run
// wires the stages with bounded channels and streams a source through
// them. A Runner is safe for concurrent runs.
type Runner struct {
	plan     []*stagePlan
	maxConc  int64
	inst     *telemetry.Instruments
	guardCfg telemetry.GuardConfig
	enforcer *cachepolicy.Enforcer
	tracing  *telemetry.Tracing
}

// New plans a pipeline over the given steps. Configuration and shape
// errors surface here, before any item is processed.
func New(steps []step.Step, opts Options) (*Runner, error) {
	plan, err := buildPlan(steps, opts)
	if err != nil {
		return nil, err
	}
	maxConc := opts.MaxConcurrency
	if maxConc == 0 {
		maxConc = step.DefaultMaxConcurrency
	}
	inst := opts.Instruments
	if inst == nil {
		inst = telemetry.NewInstruments(telemetry.NewNoopProvider())
	}
	enforcer := opts.Enforcer
	if enforcer == nil {
		enforcer = cachepolicy.New(pipectx.PolicyPreferCache)
	}
	tracing := opts.Tracing
	if tracing == nil {
		tracing = telemetry.NewTracing(false, false)
	}
	return &Runner{
		plan:     plan,
		maxConc:  int64(step.ClampConcurrency(maxConc)),
		inst:     inst,
		guardCfg: opts.KillSwitch,
		enforcer: enforcer,
		tracing:  tracing,
	}, nil
}

// StageInfo describes one planned stage.
type StageInfo struct {
	Name     string
	Shape    model.StreamingShape
	Parallel bool
	Config   step.Config
}

// Stages lists the planned stages in execution order.
func (r *Runner) Stages() []StageInfo {
	infos := make([]StageInfo, len(r.plan))
	for i, sp := range r.plan {
		infos[i] = StageInfo{Name: sp.name, Shape: sp.shape, Parallel: sp.parallel, Config: sp.cfg}
	}
	return infos
}

// OutputIsStream applies the shape algebra across all stages for the
// given source shape: true means the composed flow yields a stream,
// false means at most one emission.
func (r *Runner) OutputIsStream(sourceIsStream bool) bool {
	cur := sourceIsStream
	for _, sp := range r.plan {
		cur = outputIsStream(cur, sp.shape)
	}
	return cur
}

// Flow is one live run. Emissions carries every item leaving the final
// stage and closes when the run completes; callers must drain it or
// Cancel the run. Err and Wait report the run-scoped failure.
type Flow struct {
	id        string
	emissions <-chan Emission
	stream    bool
	done      chan struct{}
	cancel    context.CancelFunc
	err       error
}

// ID identifies this run in logs, traces, and response headers.
func (f *Flow) ID() string { return f.id }

// Emissions is the output of the composed flow.
func (f *Flow) Emissions() <-chan Emission { return f.emissions }

// StreamOutput reports whether this run yields a stream.
func (f *Flow) StreamOutput() bool { return f.stream }

// Cancel aborts the run. Safe to call at any time, more than once.
func (f *Flow) Cancel() { f.cancel() }

// Done closes when every stage has wound down.
func (f *Flow) Done() <-chan struct{} { return f.done }

// Err returns the run failure, the context error on cancellation, or
// nil. Valid once Done is closed.
func (f *Flow) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait blocks until the run completes and returns its error. The caller
// must keep draining Emissions, or the final stage never finishes.
func (f *Flow) Wait() error {
	<-f.done
	return f.err
}

// Run streams the source through the planned stages. Each stage runs in
// its own goroutine; neighbours are joined by a bounded channel sized to
// the consuming step's backpressure capacity.
func (r *Runner) Run(ctx context.Context, src Source) *Flow {
	runCtx, cancel := context.WithCancel(ctx)
	state := &runState{cancel: cancel, guard: telemetry.NewGuard(r.guardCfg)}

	runID := uuid.NewString()
	traceCtx, endSpan := r.tracing.StartRun(runCtx, runID)

	first := r.inletFor(r.plan[0])
	input := first.ch

	var wg sync.WaitGroup
	for i, sp := range r.plan {
		var out *sink
		if i+1 < len(r.plan) {
			out = r.inletFor(r.plan[i+1])
		} else {
			out = &sink{ch: make(chan Emission), inst: r.inst}
		}
		wg.Add(1)
		go func(sp *stagePlan, in <-chan Emission, out *sink) {
			defer wg.Done()
			r.runStage(traceCtx, sp, in, out, state)
		}(sp, input, out)
		input = out.ch
	}

	go feedSource(traceCtx, src, first)

	f := &Flow{
		id:        runID,
		emissions: input,
		stream:    r.OutputIsStream(src.Stream()),
		done:      make(chan struct{}),
		cancel:    cancel,
	}

	start := time.Now()
	logging.Debug("Runner", "Run %s started with %d stage(s)", runID, len(r.plan))
	go func() {
		wg.Wait()
		err := state.failure()
		if err == nil {
			err = runCtx.Err()
		}
		f.err = err
		r.inst.ObserveRun(runOutcome(err), time.Since(start))
		endSpan(err)
		if err != nil {
			logging.Warn("Runner", "Run %s finished after %s with error: %v", runID, time.Since(start), err)
		} else {
			logging.Debug("Runner", "Run %s finished in %s", runID, time.Since(start))
		}
		close(f.done)
		cancel()
	}()
	return f
}

// inletFor builds the bounded input buffer of one stage.
func (r *Runner) inletFor(sp *stagePlan) *sink {
	return &sink{
		ch:   make(chan Emission, sp.cfg.BufferCapacity),
		drop: sp.cfg.Strategy == step.Drop,
		step: sp.name,
		inst: r.inst,
	}
}

// feedSource pushes the run input into the first stage's buffer and
// closes it when the source drains.
func feedSource(ctx context.Context, src Source, out *sink) {
	defer out.close()
	if !src.stream {
		out.send(ctx, Emission{Value: src.value})
		return
	}
	for {
		select {
		case v, ok := <-src.items:
			if !ok {
				return
			}
			if !out.send(ctx, Emission{Value: v}) {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func runOutcome(err error) string {
	switch {
	case err == nil:
		return telemetry.OutcomeSuccess
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return telemetry.OutcomeCancelled
	default:
		return telemetry.OutcomeFailure
	}
}
