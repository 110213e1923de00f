package pipectx

import (
	"context"
	"sync"
)

// CachePolicy is the per-request cache behavior requested by the caller.
type CachePolicy string

const (
	PolicyPreferCache   CachePolicy = "PREFER_CACHE"
	PolicyCacheOnly     CachePolicy = "CACHE_ONLY"
	PolicySkipIfPresent CachePolicy = "SKIP_IF_PRESENT"
	PolicyRequireCache  CachePolicy = "REQUIRE_CACHE"
	PolicyBypassCache   CachePolicy = "BYPASS_CACHE"
)

// Valid reports whether the policy is one of the known values.
func (p CachePolicy) Valid() bool {
	switch p {
	case PolicyPreferCache, PolicyCacheOnly, PolicySkipIfPresent, PolicyRequireCache, PolicyBypassCache:
		return true
	}
	return false
}

// CacheStatus is the per-hop cache outcome reported by the transport.
type CacheStatus string

const (
	StatusHit    CacheStatus = "HIT"
	StatusMiss   CacheStatus = "MISS"
	StatusBypass CacheStatus = "BYPASS"
	StatusStored CacheStatus = "STORED"
)

// Valid reports whether the status is one of the known values.
func (s CacheStatus) Valid() bool {
	switch s {
	case StatusHit, StatusMiss, StatusBypass, StatusStored:
		return true
	}
	return false
}

// Context is the propagated tuple. The zero value means "nothing set":
// no version, no replay, default cache policy.
type Context struct {
	Version string
	Replay  bool
	Policy  CachePolicy
}

// EffectivePolicy returns the policy, defaulting to PREFER_CACHE when the
// tuple carries none.
func (c Context) EffectivePolicy() CachePolicy {
	if c.Policy == "" {
		return PolicyPreferCache
	}
	return c.Policy
}

// slot is the request-local cell. One writer per in-flight call (the
// interceptor or response filter); readers observe after write under the
// mutex.
type slot struct {
	mu      sync.RWMutex
	pc      Context
	status  CacheStatus
	cached  any
	hasHit  bool
	cleared bool
}

type slotKey struct{}

// Bind installs pc as the request-local pipeline context and returns the
// derived context plus a release function. The release function clears
// the slot; it must run on every exit path of the call.
func Bind(ctx context.Context, pc Context) (context.Context, func()) {
	s := &slot{pc: pc}
	release := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.pc = Context{}
		s.status = ""
		s.cached = nil
		s.hasHit = false
		s.cleared = true
	}
	return context.WithValue(ctx, slotKey{}, s), release
}

func slotFrom(ctx context.Context) *slot {
	s, _ := ctx.Value(slotKey{}).(*slot)
	return s
}

// From returns the bound pipeline context. ok is false when no slot is
// installed or the call already completed.
func From(ctx context.Context) (Context, bool) {
	s := slotFrom(ctx)
	if s == nil {
		return Context{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cleared {
		return Context{}, false
	}
	return s.pc, true
}

// RecordCacheStatus stores the per-hop cache status reported by the
// transport filter.
func RecordCacheStatus(ctx context.Context, status CacheStatus) {
	s := slotFrom(ctx)
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cleared {
		return
	}
	s.status = status
	if status != StatusHit {
		s.cached = nil
		s.hasHit = false
	}
}

// RecordCacheHit stores a HIT status together with the cached value the
// transport recovered, enabling SKIP_IF_PRESENT substitution.
func RecordCacheHit(ctx context.Context, value any) {
	s := slotFrom(ctx)
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cleared {
		return
	}
	s.status = StatusHit
	s.cached = value
	s.hasHit = true
}

// CacheStatusOf returns the recorded status for the current hop; ok is
// false when nothing was recorded.
func CacheStatusOf(ctx context.Context) (CacheStatus, bool) {
	s := slotFrom(ctx)
	if s == nil {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cleared || s.status == "" {
		return "", false
	}
	return s.status, true
}

// CachedValue returns the value recorded with the last HIT.
func CachedValue(ctx context.Context) (any, bool) {
	s := slotFrom(ctx)
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cleared || !s.hasHit {
		return nil, false
	}
	return s.cached, true
}

// ClearCacheStatus drops the recorded status and cached value, leaving the
// pipeline context itself bound. Used by the BYPASS_CACHE policy and
// between hops.
func ClearCacheStatus(ctx context.Context) {
	s := slotFrom(ctx)
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = ""
	s.cached = nil
	s.hasHit = false
}
