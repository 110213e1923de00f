package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tpf/internal/pipectx"
	"tpf/internal/step"
	"tpf/pkg/logging"
)

// WriteThrough builds the side-effect step a cache aspect expands into:
// it stores each passing item under the generated key and records a
// STORED status for the hop. The item itself flows on unchanged.
func WriteThrough(name string, provider Provider, keyFn KeyFunc, ttl time.Duration) *step.Func {
	return step.SideEffect(name, func(ctx context.Context, item any) error {
		if provider == nil {
			return nil
		}
		key, err := keyFn(name, item)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("serializing item for cache step %s: %w", name, err)
		}
		if err := provider.Set(ctx, key, payload, ttl); err != nil {
			return err
		}
		pipectx.RecordCacheStatus(ctx, pipectx.StatusStored)
		logging.Debug("Cache", "Step %s stored item under %s", name, key)
		return nil
	})
}
