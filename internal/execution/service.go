package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tpf/internal/health"
	"tpf/internal/runner"
	"tpf/internal/step"
	"tpf/pkg/logging"
)

// Loader supplies the pipeline's step instances. It runs lazily on the
// first call so a broken deployment fails that call instead of taking
// the whole process down at start.
type Loader func(ctx context.Context) ([]step.Step, error)

// StaticSteps adapts a fixed step list into a Loader.
func StaticSteps(steps ...step.Step) Loader {
	return func(context.Context) ([]step.Step, error) { return steps, nil }
}

// Options assembles one execution service.
type Options struct {
	// Steps loads the pipeline's step instances. Required.
	Steps Loader

	// Gate guards calls until startup probing resolves. Calls wait
	// while the gate is PENDING and only a HEALTHY gate admits them.
	// A nil gate admits every call.
	Gate *health.Gate

	// Runner is forwarded unchanged to the composed runner.
	Runner runner.Options
}

// Service is the public entry point of a deployed pipeline. It owns
// the lifecycle of a call: loading the ordered steps, holding the call
// until the health gate resolves, validating the call shape against
// the composed flow, and recording begin and completion of every run.
type Service struct {
	loader Loader
	gate   *health.Gate
	ropts  runner.Options

	mu     sync.Mutex
	runner *runner.Runner
}

// New builds an execution service. The step loader does not run here;
// the first call triggers it.
func New(opts Options) (*Service, error) {
	if opts.Steps == nil {
		return nil, errors.New("execution: step loader is required")
	}
	return &Service{
		loader: opts.Steps,
		gate:   opts.Gate,
		ropts:  opts.Runner,
	}, nil
}

// prepare builds the runner on first use. Failures are not cached, so
// a transient loading problem clears on a later call.
func (s *Service) prepare(ctx context.Context) (*runner.Runner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runner != nil {
		return s.runner, nil
	}
	steps, err := s.loader(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading pipeline steps: %w", err)
	}
	r, err := runner.New(steps, s.ropts)
	if err != nil {
		return nil, err
	}
	logging.Info("Execution", "Pipeline prepared with %d step(s)", len(steps))
	s.runner = r
	return r, nil
}

// ready blocks while the gate is PENDING and admits the call only once
// it resolves HEALTHY.
func (s *Service) ready(ctx context.Context) error {
	if s.gate == nil {
		return nil
	}
	return s.gate.Require(ctx)
}

// Stages describes the planned pipeline, loading it first if needed.
func (s *Service) Stages(ctx context.Context) ([]runner.StageInfo, error) {
	r, err := s.prepare(ctx)
	if err != nil {
		return nil, err
	}
	return r.Stages(), nil
}

// ExecuteStreaming runs the pipeline over src and returns a handle
// whose emissions channel carries every item leaving the final stage.
// Setup failures, a loader error, a non-HEALTHY gate, or an invalid
// plan, fail the returned handle rather than the call. A streaming
// call fits every composed shape: a unary pipeline simply emits at
// most one item.
func (s *Service) ExecuteStreaming(ctx context.Context, src runner.Source) *Handle {
	r, err := s.prepare(ctx)
	if err != nil {
		logging.Error("Execution", err, "Streaming call rejected while preparing the pipeline")
		return failedHandle(err)
	}
	if err := s.ready(ctx); err != nil {
		logging.Error("Execution", err, "Streaming call rejected by the startup gate")
		return failedHandle(err)
	}
	return s.start(ctx, r, src)
}

// ExecuteUnary runs the pipeline over one input and returns its single
// result. The composed shape must be unary; pipelines that expand or
// transform into a stream reject the call with a ShapeError. A run
// that completes without emitting, for example after a CACHE_ONLY drop
// or a declined recovery, returns ErrNoResult.
func (s *Service) ExecuteUnary(ctx context.Context, input any) (any, error) {
	r, err := s.prepare(ctx)
	if err != nil {
		logging.Error("Execution", err, "Unary call rejected while preparing the pipeline")
		return nil, err
	}
	if err := s.ready(ctx); err != nil {
		logging.Error("Execution", err, "Unary call rejected by the startup gate")
		return nil, err
	}
	if r.OutputIsStream(false) {
		serr := streamingShapeError(r)
		logging.Error("Execution", serr, "Unary call rejected")
		return nil, serr
	}

	h := s.start(ctx, r, runner.UnarySource(input))
	var out runner.Emission
	var got bool
	for em := range h.Emissions() {
		if !got {
			out, got = em, true
		}
	}
	if err := h.Wait(); err != nil {
		return nil, err
	}
	if !got {
		return nil, ErrNoResult
	}
	if out.Failed() {
		return nil, out.Err
	}
	return out.Value, nil
}

// start launches the run and attaches the lifecycle hooks.
func (s *Service) start(ctx context.Context, r *runner.Runner, src Source) *Handle {
	begin := time.Now()
	f := r.Run(ctx, src)
	logging.Info("Execution", "Run %s started", f.ID())
	go func() {
		<-f.Done()
		elapsed := time.Since(begin)
		if err := f.Err(); err != nil {
			logging.Error("Execution", err, "Run %s failed after %s", f.ID(), elapsed)
		} else {
			logging.Info("Execution", "Run %s completed in %s", f.ID(), elapsed)
		}
	}()
	return liveHandle(f)
}

// streamingShapeError blames the last stage whose shape turns the
// composed flow into a stream.
func streamingShapeError(r *runner.Runner) error {
	var culprit runner.StageInfo
	for _, st := range r.Stages() {
		if st.Shape.StreamOutput() {
			culprit = st
		}
	}
	return &ShapeError{
		Step:   culprit.Name,
		Shape:  string(culprit.Shape),
		Detail: "the unary call cannot consume a streaming pipeline; use ExecuteStreaming",
	}
}
