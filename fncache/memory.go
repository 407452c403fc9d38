package fncache

import (
	"context"
	"sync"

	"github.com/roach88/loom/cas"
)

// InMemoryCache is the reference in-memory function cache.
type InMemoryCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]cas.DataID
}

type cacheKey struct {
	version     string
	fingerprint string
}

// NewInMemoryCache creates an empty in-memory cache.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		entries: make(map[cacheKey]cas.DataID),
	}
}

// Get returns the recorded DataID, or ok=false on a miss.
func (c *InMemoryCache) Get(_ context.Context, fingerprint string, props Props) (cas.DataID, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.entries[cacheKey{version: props.Version, fingerprint: fingerprint}]
	return id, ok, nil
}

// Update records id for fingerprint, overwriting any previous entry.
func (c *InMemoryCache) Update(_ context.Context, fingerprint string, props Props, id cas.DataID) error {
	c.mu.Lock()
	c.entries[cacheKey{version: props.Version, fingerprint: fingerprint}] = id
	c.mu.Unlock()
	return nil
}

// Close is a no-op.
func (c *InMemoryCache) Close() error {
	return nil
}

// Len returns the number of entries.
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
