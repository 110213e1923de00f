package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tpf/pkg/logging"
)

// State of the startup gate. Terminal states are sticky for the life of
// the process.
type State string

const (
	StatePending   State = "PENDING"
	StateHealthy   State = "HEALTHY"
	StateUnhealthy State = "UNHEALTHY"
	StateError     State = "ERROR"
)

// Terminal reports whether the state can no longer change.
func (s State) Terminal() bool { return s != StatePending }

// Default gate tunables.
const (
	DefaultStartupTimeout = 5 * time.Minute
	DefaultProbeInterval  = 2 * time.Second
)

// HealthError reports a gate that resolved to a non-HEALTHY state.
// Raised at run start, before any step executes.
type HealthError struct {
	State State
	Cause error
}

func (e *HealthError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("health gate resolved to %s", e.State)
	}
	return fmt.Sprintf("health gate resolved to %s: %v", e.State, e.Cause)
}

func (e *HealthError) Unwrap() error { return e.Cause }

// GateConfig tunes the startup gate.
type GateConfig struct {
	// StartupTimeout bounds the whole probing window. Zero applies the
	// 5 minute default.
	StartupTimeout time.Duration
	// ProbeInterval is the wait between failed probe rounds. Zero
	// applies the 2 second default.
	ProbeInterval time.Duration
}

// Gate is the startup readiness gate. It starts PENDING, probes every
// dependent service, and resolves exactly once; execution waits on it
// and only a HEALTHY resolution permits a run.
type Gate struct {
	cfg GateConfig

	mu       sync.RWMutex
	state    State
	cause    error
	resolved chan struct{}
}

// NewGate returns a gate in PENDING state.
func NewGate(cfg GateConfig) *Gate {
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = DefaultStartupTimeout
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultProbeInterval
	}
	return &Gate{
		cfg:      cfg,
		state:    StatePending,
		resolved: make(chan struct{}),
	}
}

// State returns the current gate state.
func (g *Gate) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Resolved closes when the gate leaves PENDING.
func (g *Gate) Resolved() <-chan struct{} { return g.resolved }

// resolve moves the gate to a terminal state once; later calls are
// ignored because terminal states are sticky.
func (g *Gate) resolve(state State, cause error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StatePending {
		return
	}
	g.state = state
	g.cause = cause
	close(g.resolved)
	if state == StateHealthy {
		logging.Info("HealthGate", "Startup gate resolved HEALTHY")
	} else {
		logging.Warn("HealthGate", "Startup gate resolved %s: %v", state, cause)
	}
}

// Start launches the probe loop in the calling goroutine. An empty
// prober list skips probing and resolves HEALTHY immediately. Probes
// run concurrently per round; a failed round is retried on the probe
// interval until the startup window closes, which resolves UNHEALTHY. A
// cancelled context before resolution resolves ERROR.
func (g *Gate) Start(ctx context.Context, probers []Prober) {
	if len(probers) == 0 {
		logging.Debug("HealthGate", "No dependent services to probe")
		g.resolve(StateHealthy, nil)
		return
	}

	deadline := time.Now().Add(g.cfg.StartupTimeout)
	probeCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	var lastErr error
	for round := 1; ; round++ {
		err := g.probeRound(probeCtx, probers)
		if err == nil {
			g.resolve(StateHealthy, nil)
			return
		}
		lastErr = err
		logging.Debug("HealthGate", "Probe round %d failed: %v", round, err)

		if ctx.Err() != nil {
			g.resolve(StateError, fmt.Errorf("probing cancelled: %w", ctx.Err()))
			return
		}
		if time.Now().After(deadline) {
			break
		}
		timer := time.NewTimer(g.cfg.ProbeInterval)
		select {
		case <-timer.C:
		case <-probeCtx.Done():
			timer.Stop()
			if ctx.Err() != nil {
				g.resolve(StateError, fmt.Errorf("probing cancelled: %w", ctx.Err()))
				return
			}
		}
		if time.Now().After(deadline) {
			break
		}
	}
	g.resolve(StateUnhealthy, fmt.Errorf("startup window of %s expired: %w", g.cfg.StartupTimeout, lastErr))
}

// probeRound runs every prober concurrently and returns the first
// failure, naming the prober. A panicking prober resolves the gate to
// ERROR since the probe machinery itself is broken.
func (g *Gate) probeRound(ctx context.Context, probers []Prober) error {
	eg, probeCtx := errgroup.WithContext(ctx)
	for _, p := range probers {
		eg.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					g.resolve(StateError, fmt.Errorf("prober %s panicked: %v", p.Name(), rec))
					err = fmt.Errorf("prober %s panicked: %v", p.Name(), rec)
				}
			}()
			if err := p.Probe(probeCtx); err != nil {
				return fmt.Errorf("service %s: %w", p.Name(), err)
			}
			return nil
		})
	}
	return eg.Wait()
}

// Wait blocks until the gate resolves or ctx is done, and returns the
// terminal state. Callers may bound the wait with a context timeout.
func (g *Gate) Wait(ctx context.Context) (State, error) {
	select {
	case <-g.resolved:
	case <-ctx.Done():
		return g.State(), ctx.Err()
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state, nil
}

// Require blocks like Wait and permits execution only under HEALTHY.
// Every other resolution, and a cancelled wait, returns a HealthError.
func (g *Gate) Require(ctx context.Context) error {
	state, err := g.Wait(ctx)
	if err != nil {
		return &HealthError{State: state, Cause: err}
	}
	if state != StateHealthy {
		g.mu.RLock()
		cause := g.cause
		g.mu.RUnlock()
		return &HealthError{State: state, Cause: cause}
	}
	return nil
}
