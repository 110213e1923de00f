package cachepolicy

import (
	"context"
	"fmt"

	"tpf/internal/pipectx"
	"tpf/pkg/logging"
)

// Outcome is the enforcer's verdict for one per-item output.
type Outcome int

const (
	// Pass emits the item unchanged.
	Pass Outcome = iota
	// Substitute emits the cached value instead of the item.
	Substitute
	// Drop suppresses the item without failing it (CACHE_ONLY miss).
	Drop
	// Fail fails the item with a cache-miss error (REQUIRE_CACHE miss).
	Fail
)

// Decision carries the verdict plus the substitute value or the failure.
type Decision struct {
	Outcome Outcome
	Value   any
	Err     error
}

// MissError is the per-item failure raised when REQUIRE_CACHE finds no
// recorded hit for the hop. It fails the item, not the run.
type MissError struct {
	Step   string
	Policy pipectx.CachePolicy
}

func (e *MissError) Error() string {
	return fmt.Sprintf("step %s: policy %s requires a cache hit but none was recorded", e.Step, e.Policy)
}

// Enforcer applies the per-request cache policy to each unary-output item
// before the next step receives it. Statuses are recorded per hop by the
// transport filters; the enforcer only reads the request-local slot.
type Enforcer struct {
	// Default applies when the request carries no policy. Empty means
	// PREFER_CACHE.
	Default pipectx.CachePolicy
}

// New returns an enforcer with the given default policy.
func New(defaultPolicy pipectx.CachePolicy) *Enforcer {
	return &Enforcer{Default: defaultPolicy}
}

// policyFor resolves the effective policy: the request policy when bound,
// else the configured default, else PREFER_CACHE.
func (e *Enforcer) policyFor(ctx context.Context) pipectx.CachePolicy {
	if pc, ok := pipectx.From(ctx); ok && pc.Policy != "" {
		return pc.Policy
	}
	if e != nil && e.Default != "" {
		return e.Default
	}
	return pipectx.PolicyPreferCache
}

// Enforce applies the effective policy to one item yielded by stepName.
func (e *Enforcer) Enforce(ctx context.Context, stepName string, item any) Decision {
	policy := e.policyFor(ctx)
	status, hasStatus := pipectx.CacheStatusOf(ctx)
	hit := hasStatus && status == pipectx.StatusHit

	switch policy {
	case pipectx.PolicyBypassCache:
		pipectx.ClearCacheStatus(ctx)
		return Decision{Outcome: Pass, Value: item}

	case pipectx.PolicyRequireCache:
		if !hit {
			return Decision{Outcome: Fail, Err: &MissError{Step: stepName, Policy: policy}}
		}
		return Decision{Outcome: Pass, Value: item}

	case pipectx.PolicyCacheOnly:
		if !hit {
			logging.Debug("CachePolicy", "Dropping item from %s: CACHE_ONLY without a recorded hit", stepName)
			return Decision{Outcome: Drop}
		}
		return Decision{Outcome: Pass, Value: item}

	case pipectx.PolicySkipIfPresent:
		if hit {
			if cached, ok := pipectx.CachedValue(ctx); ok {
				return Decision{Outcome: Substitute, Value: cached}
			}
			// A hit without a recoverable value cannot be substituted;
			// the item flows through instead.
			logging.Debug("CachePolicy", "Hit recorded for %s but no cached value available, passing item through", stepName)
		}
		return Decision{Outcome: Pass, Value: item}

	default: // PREFER_CACHE, the pass-through default, keeps the status.
		return Decision{Outcome: Pass, Value: item}
	}
}
