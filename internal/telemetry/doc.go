// Package telemetry provides the metrics provider abstraction, the
// pipeline instrument set, optional tracing, and the retry-amplification
// kill-switch.
//
// Metric names are transport-independent and stable; the backend is
// selected at startup (prometheus or noop) and never leaks into callers.
// Instruments are created once and shared; per-run state lives in the
// AmplificationGuard, which is created per run and inspected by the
// runner between item applications.
package telemetry
