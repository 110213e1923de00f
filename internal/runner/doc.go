// Package runner schedules one composed pipeline: an ordered list of
// steps joined by bounded channels, streamed end to end in a single run.
//
// Planning happens in New and fails fast: step order is resolved against
// the canonical ordered list, tunables are validated, the parallel or
// sequential decision is made per step from its hints and the policy,
// and each step's declared shape is bound to its entry point. A pipeline
// that plans cleanly can only fail per item or per run, never per shape.
//
// Run wires one goroutine per stage. Neighbouring stages share a channel
// sized to the consuming step's backpressure capacity; under BUFFER a
// full channel blocks the producer, under DROP it discards the item and
// counts it. Items flow as Emissions, either values or per-item
// failures. A per-item failure (a REQUIRE_CACHE miss, a recovery error)
// bypasses the remaining steps so its siblings still complete; a
// run-scoped failure (retries exhausted without recovery, a tripped kill
// switch) cancels the run context and tears every stage down.
//
// Retries count total attempts per item with doubling backoff, capped
// and optionally jittered. Panics inside a step become errors; nil
// dereferences and item type mismatches are permanent, everything else
// retries. Stream-input steps collect their input so attempts can replay
// it; a stream transform with retries disabled streams both sides live
// instead.
package runner
