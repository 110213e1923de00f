package runner

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"strings"
	"time"

	"tpf/internal/step"
	"tpf/pkg/logging"
)

// backoffDelay returns the wait before the next attempt after `attempt`
// failed ones: the base wait doubled per completed attempt, capped at
// the max backoff, widened by up to ±50% jitter when enabled.
func backoffDelay(cfg step.Config, attempt int) time.Duration {
	delay := cfg.RetryWait
	if delay <= 0 {
		return 0
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if cfg.MaxBackoff > 0 && delay >= cfg.MaxBackoff {
			delay = cfg.MaxBackoff
			break
		}
	}
	if cfg.MaxBackoff > 0 && delay > cfg.MaxBackoff {
		delay = cfg.MaxBackoff
	}
	if cfg.Jitter {
		delay = time.Duration(float64(delay) * (0.5 + rand.Float64()))
	}
	return delay
}

// invokeGuarded runs op and converts panics into errors so a misbehaving
// step cannot take the whole process down. Nil dereferences are
// permanent; any other panic stays retryable like an ordinary failure.
func invokeGuarded(ctx context.Context, op func(context.Context) error) (err error) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		perr := fmt.Errorf("step panicked: %v", rec)
		if isNilDereference(rec) {
			err = Permanent(perr)
			return
		}
		err = perr
	}()
	return op(ctx)
}

func isNilDereference(rec any) bool {
	rerr, ok := rec.(runtime.Error)
	return ok && strings.Contains(rerr.Error(), "nil pointer dereference")
}

// withRetry runs op under the step's retry budget. RetryLimit counts
// total attempts, so a limit of 1 disables retries. Every wait watches
// the run context; cancellation and permanent failures stop the loop.
// Returns the number of attempts consumed.
func (r *Runner) withRetry(ctx context.Context, sp *stagePlan, state *runState, op func(context.Context) error) (int, error) {
	limit := sp.cfg.RetryLimit
	if limit < 1 {
		limit = 1
	}
	for attempt := 1; ; attempt++ {
		err := invokeGuarded(ctx, op)
		if err == nil {
			return attempt, nil
		}
		if !retryable(err) || attempt >= limit {
			return attempt, err
		}
		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}
		r.inst.StepRetries.Inc(sp.name)
		state.guard.RetryScheduled(sp.name)
		wait := backoffDelay(sp.cfg, attempt)
		logging.Debug("Runner", "Step %s attempt %d/%d failed: %v, retrying in %s", sp.name, attempt, limit, err, wait)
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return attempt, ctx.Err()
			}
		}
	}
}
