// Package cachepolicy enforces the per-request cache policy on each
// unary-output item between steps.
//
// The transport layer records the hop's cache status (and on a hit, the
// cached value) into the request-local slot; the runner calls Enforce on
// every unary-output item before the next step sees it. The five policies
// resolve as:
//
//	BYPASS_CACHE     pass through, clear the recorded status
//	REQUIRE_CACHE    fail the item with MissError when no hit is recorded
//	CACHE_ONLY       drop the item when no hit is recorded
//	SKIP_IF_PRESENT  substitute the cached value on a recorded hit
//	PREFER_CACHE     pass through, preserving the recorded status
//
// A MissError fails the item, never the run; the remaining items continue
// to flow.
package cachepolicy
