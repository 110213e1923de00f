// Package execution exposes a deployed pipeline to callers. The
// service wraps the runner with the concerns a call site should never
// re-implement: lazy loading of the ordered steps, the startup health
// gate, call shape validation, and lifecycle logging per run.
//
// Two call shapes exist. ExecuteUnary submits one input and blocks for
// the single result of a unary-shaped pipeline. ExecuteStreaming
// accepts any source and returns a Handle whose emissions channel is
// consumed lazily; cancellation of the handle propagates to every
// in-flight per-item task.
//
// The package also aliases the full pipeline failure taxonomy so
// transports can map every class without importing the layers that
// raise them.
package execution
