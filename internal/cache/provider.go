package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Provider is the storage contract the cache aspects and the dev host
// rely on. Values are opaque byte slices; callers own serialization.
type Provider interface {
	// Get returns the value stored under key. The bool reports presence;
	// a missing key is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key for ttl. A non-positive ttl stores
	// without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	Close() error
}

// KeyFunc derives the cache key for one item flowing through a step.
type KeyFunc func(stepFQN string, item any) (string, error)

// DefaultKeyGenerator returns the built-in key generator:
// <appName>:<step FQN>:<sha256 of the item's JSON form>. Per-step key
// generators resolved at binding construction replace it.
func DefaultKeyGenerator(appName string) KeyFunc {
	return func(stepFQN string, item any) (string, error) {
		payload, err := json.Marshal(item)
		if err != nil {
			return "", fmt.Errorf("hashing cache key for %s: %w", stepFQN, err)
		}
		sum := sha256.Sum256(payload)
		return strings.Join([]string{appName, stepFQN, hex.EncodeToString(sum[:])}, ":"), nil
	}
}

// Select returns the provider named by the configuration. Supported
// names: "none" (nil provider, caching off), "memory", "redis".
func Select(ctx context.Context, providerName string, redisOpts RedisOptions) (Provider, error) {
	switch strings.ToLower(providerName) {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemory(), nil
	case "redis":
		return NewRedis(ctx, redisOpts)
	default:
		return nil, fmt.Errorf("unknown cache provider %q", providerName)
	}
}
