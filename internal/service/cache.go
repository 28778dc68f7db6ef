package service

import (
	"errors"
	"sync"
)

var errBuildPanicked = errors.New("cache: build panicked")

// Cache holds one value per key, built on first request. Concurrent first
// requests for the same key share a single build. A failed or panicking
// build is not cached, so the next request retries it.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*cacheEntry[V]
}

type cacheEntry[V any] struct {
	ready chan struct{}
	val   V
	err   error
}

func NewCache[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{entries: make(map[K]*cacheEntry[V])}
}

// GetOrCreate returns the value for key, calling build if there is none.
func (c *Cache[K, V]) GetOrCreate(key K, build func() (V, error)) (V, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.mu.Unlock()
		<-e.ready
		return e.val, e.err
	}
	e := &cacheEntry[V]{ready: make(chan struct{})}
	c.entries[key] = e
	c.mu.Unlock()

	ok := false
	defer func() {
		if !ok || e.err != nil {
			if !ok {
				e.err = errBuildPanicked
			}
			c.mu.Lock()
			delete(c.entries, key)
			c.mu.Unlock()
		}
		close(e.ready)
	}()
	e.val, e.err = build()
	ok = true
	return e.val, e.err
}

// Len is the number of cached or in-flight keys.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
