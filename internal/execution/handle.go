package execution

import (
	"tpf/internal/runner"
)

// Source and Emission travel between the service and its callers
// unchanged; the aliases keep transport code to a single import.
type (
	Source   = runner.Source
	Emission = runner.Emission
)

// Source constructors, re-exported for callers of ExecuteStreaming.
var (
	UnarySource  = runner.UnarySource
	StreamSource = runner.StreamSource
	SliceSource  = runner.SliceSource
)

// Handle is one streaming call: either a live run or a call rejected
// during setup. A rejected handle has a closed emissions channel and
// reports the rejection through Err and Wait.
type Handle struct {
	flow *runner.Flow
	err  error

	emissions <-chan Emission
	done      <-chan struct{}
	stream    bool
}

func liveHandle(f *runner.Flow) *Handle {
	return &Handle{
		flow:      f,
		emissions: f.Emissions(),
		done:      f.Done(),
		stream:    f.StreamOutput(),
	}
}

func failedHandle(err error) *Handle {
	emissions := make(chan Emission)
	close(emissions)
	done := make(chan struct{})
	close(done)
	return &Handle{err: err, emissions: emissions, done: done}
}

// RunID identifies the underlying run, or is empty for a handle that
// was rejected before a run started.
func (h *Handle) RunID() string {
	if h.flow == nil {
		return ""
	}
	return h.flow.ID()
}

// Emissions carries every item leaving the final stage and closes when
// the call completes. Callers must drain it or Cancel the call.
func (h *Handle) Emissions() <-chan Emission { return h.emissions }

// StreamOutput reports whether this call yields a stream.
func (h *Handle) StreamOutput() bool { return h.stream }

// Cancel aborts the call and every in-flight per-item task. Nothing is
// emitted after cancellation. Safe to call at any time, more than once.
func (h *Handle) Cancel() {
	if h.flow != nil {
		h.flow.Cancel()
	}
}

// Done closes when the call has fully wound down.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the call failure, or nil while the call is still
// running and after a clean completion.
func (h *Handle) Err() error {
	if h.flow == nil {
		return h.err
	}
	return h.flow.Err()
}

// Wait blocks until the call completes and returns its error. The
// caller must keep draining Emissions for the call to finish.
func (h *Handle) Wait() error {
	<-h.done
	return h.Err()
}
