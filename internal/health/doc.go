// Package health implements the startup readiness gate that guards
// pipeline execution.
//
// The gate starts PENDING and resolves exactly once: HEALTHY when every
// dependent-service probe succeeds within the startup window, UNHEALTHY
// when the window closes on a failing round, ERROR when the probing
// machinery itself breaks or is cancelled. Terminal states are sticky
// for the life of the process.
//
// Execution entry points call Require, which blocks while the gate is
// PENDING (optionally bounded by the caller's context) and permits a run
// only under HEALTHY. A pipeline with no dependent services skips
// probing and resolves HEALTHY immediately.
package health
