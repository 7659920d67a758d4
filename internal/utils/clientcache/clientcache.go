// Package clientcache caches expensive SDK clients keyed by configuration.
package clientcache

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache is a type-safe client cache. The factory for a given key runs at most
// once even under concurrent load.
type Cache[T any] struct {
	cache   sync.Map
	sfGroup singleflight.Group
}

func NewCache[T any]() *Cache[T] {
	return &Cache[T]{}
}

// GetOrCreate retrieves a cached client or builds one with factory.
func (c *Cache[T]) GetOrCreate(key string, factory func() (T, error)) (T, error) {
	if cached, ok := c.cache.Load(key); ok {
		return cached.(T), nil
	}

	v, err, _ := c.sfGroup.Do(key, func() (any, error) {
		// Re-check after winning the singleflight slot.
		if cached, ok := c.cache.Load(key); ok {
			return cached.(T), nil
		}

		client, err := factory()
		if err != nil {
			var zero T
			return zero, err
		}

		c.cache.Store(key, client)
		return client, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	return v.(T), nil
}

// Delete evicts a client, forcing the next GetOrCreate to rebuild it.
func (c *Cache[T]) Delete(key string) {
	c.cache.Delete(key)
}
