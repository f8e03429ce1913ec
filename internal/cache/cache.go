package cache

import (
	"context"
	"time"
)

// Cache is a short-lived in-process cache. The webhook pipeline uses it to
// short-circuit duplicate event lookups; it is an optimization only and the
// persistent store check is always the fallback.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
	Get(ctx context.Context, key string) (interface{}, bool)
	Delete(ctx context.Context, key string)
}
