// Package step defines the contracts user steps implement and the per-step
// tunables the runtime applies to them.
//
// A step exposes exactly one apply operation matching its streaming shape:
//
//   - OneToOne: a deferred single input to a deferred single output.
//   - OneToMany: a deferred single input to a lazy sequence (via emit).
//   - ManyToOne: a lazy sequence to a deferred single output (reduction).
//   - ManyToMany: a lazy sequence to a lazy sequence.
//   - SideEffect: observes the input; the runtime re-emits it unchanged.
//
// Blocking variants accept or return materialized slices instead of lazy
// sequences; the runtime adapts between slice and stream at the boundary.
//
// Steps are registered once at startup in a Registry keyed by their
// fully-qualified name and shared across runs. Implementations declare
// their concurrency tolerance through ParallelismHints; the runtime never
// invokes an UNSAFE step concurrently.
//
// The typed constructors (OneToOne, Expand, Reduce, ...) wrap plain
// functions into steps, handling the item type assertions so user code
// stays fully typed.
package step
