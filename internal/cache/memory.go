package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	// DefaultExpiration is the fallback TTL for entries set with ttl <= 0.
	DefaultExpiration = 24 * time.Hour

	// CleanupInterval determines how often expired entries are purged.
	CleanupInterval = 10 * time.Minute
)

// InMemoryCache implements the Cache interface using go-cache
type InMemoryCache struct {
	store *gocache.Cache
}

// NewInMemoryCache creates a new in-memory cache
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		store: gocache.New(DefaultExpiration, CleanupInterval),
	}
}

func (c *InMemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultExpiration
	}
	c.store.Set(key, value, ttl)
}

func (c *InMemoryCache) Get(ctx context.Context, key string) (interface{}, bool) {
	return c.store.Get(key)
}

func (c *InMemoryCache) Delete(ctx context.Context, key string) {
	c.store.Delete(key)
}
