package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"tpf/internal/cachepolicy"
	"tpf/internal/step"
	"tpf/internal/telemetry"
	"tpf/pkg/logging"
)

// runState carries the run-scoped failure and the run's amplification
// guard. The first error wins and cancels the run context so every
// stage winds down.
type runState struct {
	cancel context.CancelFunc
	guard  *telemetry.AmplificationGuard
	mu     sync.Mutex
	err    error
}

// fail records err if no failure was recorded yet and cancels the run.
// Reports whether this call was the one that failed the run.
func (s *runState) fail(err error) bool {
	s.mu.Lock()
	first := s.err == nil
	if first {
		s.err = err
	}
	s.mu.Unlock()
	s.cancel()
	return first
}

func (s *runState) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// sink delivers emissions into the consuming stage's bounded buffer. The
// consumer's backpressure strategy decides whether a full buffer blocks
// the producer or discards the item.
type sink struct {
	ch   chan Emission
	drop bool
	step string
	inst *telemetry.Instruments
}

// send delivers one emission. Under DROP a full buffer discards the item
// and send still reports true; under BUFFER it blocks until there is
// room or the run is cancelled, reporting false on cancellation.
func (s *sink) send(ctx context.Context, em Emission) bool {
	if s.drop {
		select {
		case s.ch <- em:
		default:
			s.inst.ItemsDropped.Inc(s.step)
			logging.Debug("Runner", "Backpressure buffer of step %s is full, dropping item", s.step)
		}
		return true
	}
	select {
	case s.ch <- em:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *sink) close() { close(s.ch) }

// runStage consumes the stage input, applies the step, and closes the
// sink when the stage is done.
func (r *Runner) runStage(ctx context.Context, sp *stagePlan, in <-chan Emission, out *sink, state *runState) {
	defer out.close()
	switch {
	case sp.streamInput():
		if sp.transform != nil && sp.cfg.RetryLimit <= 1 {
			r.runTransformLive(ctx, sp, in, out, state)
			return
		}
		r.runStreamStage(ctx, sp, in, out, state)
	case sp.parallel:
		r.runParallelStage(ctx, sp, in, out, state)
	default:
		r.runSequentialStage(ctx, sp, in, out, state)
	}
}

// runSequentialStage applies a unary-input step to one item at a time,
// concatenating per-item outputs in arrival order.
func (r *Runner) runSequentialStage(ctx context.Context, sp *stagePlan, in <-chan Emission, out *sink, state *runState) {
	for em := range in {
		r.inst.BackpressureDepth.Set(float64(len(in)), sp.name)
		if ctx.Err() != nil {
			return
		}
		if em.Failed() {
			if !out.send(ctx, em) {
				return
			}
			continue
		}
		if !r.applyItem(ctx, sp, em.Value, out, state) {
			return
		}
		if r.checkKillSwitch(state) {
			return
		}
	}
}

// runParallelStage fans unary-input applications out to a bounded pool.
// Per-item outputs interleave in completion order.
func (r *Runner) runParallelStage(ctx context.Context, sp *stagePlan, in <-chan Emission, out *sink, state *runState) {
	sem := semaphore.NewWeighted(r.maxConc)
	var wg sync.WaitGroup
	for em := range in {
		r.inst.BackpressureDepth.Set(float64(len(in)), sp.name)
		if ctx.Err() != nil {
			break
		}
		if em.Failed() {
			if !out.send(ctx, em) {
				break
			}
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(item any) {
			defer wg.Done()
			defer sem.Release(1)
			if r.applyItem(ctx, sp, item, out, state) {
				r.checkKillSwitch(state)
			}
		}(em.Value)
	}
	wg.Wait()
}

// runStreamStage runs a stream-input step. The input is collected first
// so retry attempts can replay it; per-item failures in the input bypass
// the step and flow straight downstream.
func (r *Runner) runStreamStage(ctx context.Context, sp *stagePlan, in <-chan Emission, out *sink, state *runState) {
	var items []any
	for em := range in {
		r.inst.BackpressureDepth.Set(float64(len(in)), sp.name)
		if ctx.Err() != nil {
			return
		}
		if em.Failed() {
			if !out.send(ctx, em) {
				return
			}
			continue
		}
		r.inst.ItemsConsumed.Inc(sp.name)
		items = append(items, em.Value)
	}
	if ctx.Err() != nil {
		return
	}

	state.guard.StepStarted(sp.name)
	r.inst.StepInflight.Add(1, sp.name)
	start := time.Now()

	itemCtx, endSpan := r.tracing.StartItem(ctx, sp.name)
	outs, attempts, err := r.applyStreamWithRetry(itemCtx, sp, items, state)
	endSpan(err)

	r.inst.StepInflight.Add(-1, sp.name)
	r.inst.ObserveStep(sp.name, time.Since(start))
	state.guard.StepFinished(sp.name)

	if err != nil {
		r.handleItemFailure(ctx, sp, items, attempts, err, out, state)
		return
	}
	r.inst.ItemOutcomes.Inc(sp.name, telemetry.OutcomeSuccess)
	if !r.emitOutputs(ctx, sp, outs, out) {
		return
	}
	r.checkKillSwitch(state)
}

// runTransformLive streams a no-retry transform end to end without
// materializing either side. A failed attempt cannot be replayed, which
// is why retries force the collected path instead.
func (r *Runner) runTransformLive(ctx context.Context, sp *stagePlan, in <-chan Emission, out *sink, state *runState) {
	bridge := make(chan any)
	feederDone := make(chan struct{})
	go func() {
		defer close(feederDone)
		defer close(bridge)
		for em := range in {
			r.inst.BackpressureDepth.Set(float64(len(in)), sp.name)
			if em.Failed() {
				if !out.send(ctx, em) {
					return
				}
				continue
			}
			r.inst.ItemsConsumed.Inc(sp.name)
			select {
			case bridge <- em.Value:
			case <-ctx.Done():
				return
			}
		}
	}()

	state.guard.StepStarted(sp.name)
	r.inst.StepInflight.Add(1, sp.name)
	start := time.Now()

	itemCtx, endSpan := r.tracing.StartItem(ctx, sp.name)
	err := invokeGuarded(itemCtx, func(ctx context.Context) error {
		return sp.transform(ctx, bridge, func(v any) error {
			r.inst.ItemsProduced.Inc(sp.name)
			if !out.send(ctx, Emission{Value: v}) {
				return ctx.Err()
			}
			return nil
		})
	})
	endSpan(err)

	r.inst.StepInflight.Add(-1, sp.name)
	r.inst.ObserveStep(sp.name, time.Since(start))
	state.guard.StepFinished(sp.name)

	// The transform may return without draining its input.
	go func() {
		for range bridge {
		}
	}()
	<-feederDone

	if err != nil {
		r.handleItemFailure(ctx, sp, nil, 1, err, out, state)
		return
	}
	r.inst.ItemOutcomes.Inc(sp.name, telemetry.OutcomeSuccess)
	r.checkKillSwitch(state)
}

// applyItem runs one unary-input application end to end: retries,
// recovery, cache policy enforcement, and emission. Reports false when
// the stage must stop.
func (r *Runner) applyItem(ctx context.Context, sp *stagePlan, item any, out *sink, state *runState) bool {
	if sp.expand != nil && sp.cfg.RetryLimit <= 1 {
		return r.applyExpandLive(ctx, sp, item, out, state)
	}

	r.inst.ItemsConsumed.Inc(sp.name)
	state.guard.StepStarted(sp.name)
	r.inst.StepInflight.Add(1, sp.name)
	start := time.Now()

	itemCtx, endSpan := r.tracing.StartItem(ctx, sp.name)
	outs, attempts, err := r.applyWithRetry(itemCtx, sp, item, state)
	endSpan(err)

	r.inst.StepInflight.Add(-1, sp.name)
	r.inst.ObserveStep(sp.name, time.Since(start))
	state.guard.StepFinished(sp.name)

	if err != nil {
		return r.handleItemFailure(ctx, sp, item, attempts, err, out, state)
	}
	r.inst.ItemOutcomes.Inc(sp.name, telemetry.OutcomeSuccess)
	return r.emitOutputs(ctx, sp, outs, out)
}

// applyExpandLive streams an expansion straight downstream. Only taken
// when retries are disabled, so a failed attempt cannot have emitted
// duplicates.
func (r *Runner) applyExpandLive(ctx context.Context, sp *stagePlan, item any, out *sink, state *runState) bool {
	r.inst.ItemsConsumed.Inc(sp.name)
	state.guard.StepStarted(sp.name)
	r.inst.StepInflight.Add(1, sp.name)
	start := time.Now()

	itemCtx, endSpan := r.tracing.StartItem(ctx, sp.name)
	err := invokeGuarded(itemCtx, func(ctx context.Context) error {
		return sp.expand(ctx, item, func(v any) error {
			r.inst.ItemsProduced.Inc(sp.name)
			if !out.send(ctx, Emission{Value: v}) {
				return ctx.Err()
			}
			return nil
		})
	})
	endSpan(err)

	r.inst.StepInflight.Add(-1, sp.name)
	r.inst.ObserveStep(sp.name, time.Since(start))
	state.guard.StepFinished(sp.name)

	if err != nil {
		return r.handleItemFailure(ctx, sp, item, 1, err, out, state)
	}
	r.inst.ItemOutcomes.Inc(sp.name, telemetry.OutcomeSuccess)
	return true
}

// applyWithRetry runs the unary-input entry point for one item under the
// retry budget. Expansion outputs are buffered per attempt so a retried
// failure never duplicates emissions.
func (r *Runner) applyWithRetry(ctx context.Context, sp *stagePlan, item any, state *runState) ([]any, int, error) {
	var outs []any
	op := func(ctx context.Context) error {
		outs = outs[:0]
		switch {
		case sp.applyOne != nil:
			v, err := sp.applyOne(ctx, item)
			if err != nil {
				return err
			}
			if v == nil {
				return Permanent(fmt.Errorf("step %s: %w", sp.name, ErrNilResult))
			}
			outs = append(outs, v)
		case sp.expand != nil:
			return sp.expand(ctx, item, func(v any) error {
				outs = append(outs, v)
				return ctx.Err()
			})
		case sp.expandAll != nil:
			vs, err := sp.expandAll(ctx, item)
			if err != nil {
				return err
			}
			outs = append(outs, vs...)
		case sp.effect != nil:
			if err := sp.effect(ctx, item); err != nil {
				return err
			}
			outs = append(outs, item)
		}
		return nil
	}
	attempts, err := r.withRetry(ctx, sp, state, op)
	if err != nil {
		return nil, attempts, err
	}
	return outs, attempts, nil
}

// applyStreamWithRetry invokes a stream-input entry point over a replay
// of the collected items, once per attempt.
func (r *Runner) applyStreamWithRetry(ctx context.Context, sp *stagePlan, items []any, state *runState) ([]any, int, error) {
	var outs []any
	op := func(ctx context.Context) error {
		outs = outs[:0]
		switch {
		case sp.reduce != nil:
			v, err := sp.reduce(ctx, replayStream(items))
			if err != nil {
				return err
			}
			if v == nil {
				return Permanent(fmt.Errorf("step %s: %w", sp.name, ErrNilResult))
			}
			outs = append(outs, v)
		case sp.reduceAll != nil:
			v, err := sp.reduceAll(ctx, items)
			if err != nil {
				return err
			}
			if v == nil {
				return Permanent(fmt.Errorf("step %s: %w", sp.name, ErrNilResult))
			}
			outs = append(outs, v)
		case sp.transform != nil:
			return sp.transform(ctx, replayStream(items), func(v any) error {
				outs = append(outs, v)
				return ctx.Err()
			})
		case sp.transformAll != nil:
			vs, err := sp.transformAll(ctx, items)
			if err != nil {
				return err
			}
			outs = append(outs, vs...)
		}
		return nil
	}
	attempts, err := r.withRetry(ctx, sp, state, op)
	if err != nil {
		return nil, attempts, err
	}
	return outs, attempts, nil
}

// replayStream feeds the collected items as a fresh stream for one
// attempt. The channel is pre-filled and closed, so no goroutine is
// needed and an abandoned stream leaks nothing.
func replayStream(items []any) step.Stream {
	ch := make(chan any, len(items))
	for _, it := range items {
		ch <- it
	}
	close(ch)
	return ch
}

// handleItemFailure routes an exhausted per-item failure. Recovery gets
// a chance when enabled for the step; otherwise the failure aborts the
// whole run. Reports false when the stage must stop.
func (r *Runner) handleItemFailure(ctx context.Context, sp *stagePlan, item any, attempts int, err error, out *sink, state *runState) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		r.inst.ItemOutcomes.Inc(sp.name, telemetry.OutcomeCancelled)
		return false
	}
	if !sp.cfg.RecoverOnFailure {
		r.inst.ItemOutcomes.Inc(sp.name, telemetry.OutcomeFailure)
		state.fail(&StepFailure{Step: sp.name, Attempts: attempts, Cause: err})
		return false
	}
	if sp.recovery == nil {
		r.inst.ItemOutcomes.Inc(sp.name, telemetry.OutcomeFailure)
		logging.Warn("Runner", "Step %s failed after %d attempt(s) and has no dead-letter handler, dropping item: %v", sp.name, attempts, err)
		return true
	}
	substitute, ok, rerr := sp.recovery.Recover(ctx, item, err)
	if rerr != nil {
		r.inst.ItemOutcomes.Inc(sp.name, telemetry.OutcomeFailure)
		state.fail(&StepFailure{Step: sp.name, Attempts: attempts, Cause: fmt.Errorf("dead-letter handler failed: %w (original failure: %v)", rerr, err)})
		return false
	}
	if !ok {
		r.inst.ItemOutcomes.Inc(sp.name, telemetry.OutcomeFailure)
		logging.Info("Runner", "Step %s dead-letter handler dropped the failed item: %v", sp.name, err)
		return true
	}
	r.inst.ItemOutcomes.Inc(sp.name, telemetry.OutcomeSuccess)
	logging.Debug("Runner", "Step %s recovered a failed item with a substitute", sp.name)
	return r.emitOutputs(ctx, sp, []any{substitute}, out)
}

// emitOutputs delivers the step's outputs downstream. Unary-output
// shapes pass each item through the cache policy enforcer first.
func (r *Runner) emitOutputs(ctx context.Context, sp *stagePlan, outs []any, out *sink) bool {
	for _, v := range outs {
		r.inst.ItemsProduced.Inc(sp.name)
		em := Emission{Value: v}
		if sp.unaryOutput {
			switch d := r.enforcer.Enforce(ctx, sp.name, v); d.Outcome {
			case cachepolicy.Drop:
				continue
			case cachepolicy.Fail:
				em = Emission{Err: d.Err}
			case cachepolicy.Substitute:
				em = Emission{Value: d.Value}
			}
		}
		if !out.send(ctx, em) {
			return false
		}
	}
	return true
}

// checkKillSwitch fails the run when the amplification guard tripped in
// fail-fast mode. Reports true when the run is over.
func (r *Runner) checkKillSwitch(state *runState) bool {
	trip, tripped := state.guard.Tripped()
	if !tripped {
		return false
	}
	kerr := &KillSwitchError{
		Step:      trip.Step,
		Slope:     trip.Slope,
		RetryRate: trip.RetryRate,
		Window:    trip.Window,
	}
	if state.fail(kerr) {
		r.inst.KillSwitchTripped.Inc(trip.Step)
		logging.Error("Runner", kerr, "Kill switch tripped on step %s, aborting run", trip.Step)
	}
	return true
}
