package pipectx

import (
	"context"
	"strconv"
)

// Wire header names. Request headers carry the pipeline context forward;
// the response header reports the hop's cache outcome back.
const (
	HeaderVersion     = "x-tpf-version"
	HeaderReplay      = "x-tpf-replay"
	HeaderCachePolicy = "x-tpf-cache-policy"
	HeaderCacheStatus = "x-tpf-cache-status"
)

// HeaderCarrier abstracts a transport's header map so non-HTTP hops can
// reuse Inject and Extract.
type HeaderCarrier interface {
	Get(key string) string
	Set(key, value string)
}

// MapCarrier adapts a plain map to HeaderCarrier.
type MapCarrier map[string]string

func (m MapCarrier) Get(key string) string { return m[key] }

func (m MapCarrier) Set(key, value string) { m[key] = value }

// Inject writes the bound pipeline context into the carrier. Headers for
// unset fields are omitted so downstream defaults apply.
func Inject(ctx context.Context, carrier HeaderCarrier) {
	pc, ok := From(ctx)
	if !ok {
		return
	}
	if pc.Version != "" {
		carrier.Set(HeaderVersion, pc.Version)
	}
	if pc.Replay {
		carrier.Set(HeaderReplay, "true")
	}
	if pc.Policy != "" {
		carrier.Set(HeaderCachePolicy, string(pc.Policy))
	}
}

// Extract reads the pipeline context from the carrier. Unknown policy
// values are dropped rather than propagated.
func Extract(carrier HeaderCarrier) Context {
	pc := Context{Version: carrier.Get(HeaderVersion)}
	if replay, err := strconv.ParseBool(carrier.Get(HeaderReplay)); err == nil {
		pc.Replay = replay
	}
	if policy := CachePolicy(carrier.Get(HeaderCachePolicy)); policy.Valid() {
		pc.Policy = policy
	}
	return pc
}
