package server

import (
	"context"
	"encoding/json"

	"tpf/internal/cachepolicy"
	"tpf/internal/execution"
	"tpf/internal/pipectx"
	"tpf/pkg/logging"
)

// executeCached is the read-through cache in front of the unary path. The
// key is derived from the entry step and the raw input, so a repeated call
// with the same payload answers from the provider without running the
// pipeline. Cache trouble never fails a call; the run proceeds uncached.
func (s *Server) executeCached(ctx context.Context, input any) (any, error) {
	policy := s.effectivePolicy(ctx)

	if policy == pipectx.PolicyBypassCache {
		pipectx.RecordCacheStatus(ctx, pipectx.StatusBypass)
		return s.exec.ExecuteUnary(ctx, input)
	}
	if s.cache == nil {
		return s.exec.ExecuteUnary(ctx, input)
	}

	key, err := s.keyFn(s.entryStep(), input)
	if err != nil {
		logging.Warn("Server", "Cache key derivation failed, executing uncached: %v", err)
		return s.exec.ExecuteUnary(ctx, input)
	}

	if payload, ok, err := s.cache.Get(ctx, key); err != nil {
		logging.Warn("Server", "Cache lookup failed for %s: %v", key, err)
	} else if ok {
		var cached any
		if err := json.Unmarshal(payload, &cached); err != nil {
			logging.Warn("Server", "Dropping undecodable cache entry %s: %v", key, err)
			_ = s.cache.Delete(ctx, key)
		} else {
			pipectx.RecordCacheHit(ctx, cached)
			return cached, nil
		}
	}

	pipectx.RecordCacheStatus(ctx, pipectx.StatusMiss)
	switch policy {
	case pipectx.PolicyRequireCache:
		return nil, &cachepolicy.MissError{Step: s.entryStep(), Policy: policy}
	case pipectx.PolicyCacheOnly:
		return nil, execution.ErrNoResult
	}

	out, err := s.exec.ExecuteUnary(ctx, input)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(out); err != nil {
		logging.Warn("Server", "Result for %s is not cacheable: %v", key, err)
	} else if err := s.cache.Set(ctx, key, payload, s.cfg.CacheTTL()); err != nil {
		logging.Warn("Server", "Cache store failed for %s: %v", key, err)
	} else {
		pipectx.RecordCacheStatus(ctx, pipectx.StatusStored)
	}
	return out, nil
}

// effectivePolicy resolves the cache policy for the call: the bound
// request policy wins, then the configured default, then PREFER_CACHE.
func (s *Server) effectivePolicy(ctx context.Context) pipectx.CachePolicy {
	if pc, ok := pipectx.From(ctx); ok && pc.Policy != "" {
		return pc.Policy
	}
	if p := s.cfg.CachePolicy(); p != "" {
		return p
	}
	return pipectx.PolicyPreferCache
}

// entryStep names the first planned step; the host cache scopes its keys
// to it. New rejects empty orders, so the index is safe.
func (s *Server) entryStep() string {
	return s.order[0]
}
