package cache

import (
	"context"
	"time"

	"github.com/Tim-sandbox/barista/pkg/observability"
)

// Instrumented reports hits, misses and writes of c to the registered
// observability cache hooks under the given kind label.
func Instrumented(c Cache, kind string) Cache {
	return &instrumented{Cache: c, kind: kind}
}

type instrumented struct {
	Cache
	kind string
}

func (i *instrumented) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, ok, err := i.Cache.Get(ctx, key)
	if err == nil {
		if ok {
			observability.Cache().OnCacheHit(ctx, i.kind)
		} else {
			observability.Cache().OnCacheMiss(ctx, i.kind)
		}
	}
	return data, ok, err
}

func (i *instrumented) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	err := i.Cache.Set(ctx, key, data, ttl)
	if err == nil {
		observability.Cache().OnCacheSet(ctx, i.kind, len(data))
	}
	return err
}
