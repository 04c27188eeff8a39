// Package cache provides an in-memory qengine.Cache and a connector
// decorator caching the read primitives of a datasource.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/syssam/qengine"
)

// DefaultSize is the number of entries kept by an LRU created with a
// non-positive size.
const DefaultSize = 4096

type entry struct {
	value   []byte
	expires time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// LRU is a size-bounded in-memory cache. Expired entries are dropped
// lazily on access.
type LRU struct {
	mu    sync.Mutex // serializes DeletePrefix with writers.
	cache *lru.Cache[string, entry]
	now   func() time.Time
}

// NewLRU returns an LRU holding at most size entries.
func NewLRU(size int) (*LRU, error) {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.New[string, entry](size)
	if err != nil {
		return nil, fmt.Errorf("cache: create lru: %w", err)
	}
	return &LRU{cache: c, now: time.Now}, nil
}

// Get implements qengine.Cache.
func (c *LRU) Get(_ context.Context, key string) ([]byte, error) {
	e, ok := c.cache.Get(key)
	if !ok {
		return nil, nil
	}
	if e.expired(c.now()) {
		c.cache.Remove(key)
		return nil, nil
	}
	return e.value, nil
}

// Set implements qengine.Cache.
func (c *LRU) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: value}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.cache.Add(key, e)
	c.mu.Unlock()
	return nil
}

// Delete implements qengine.Cache.
func (c *LRU) Delete(_ context.Context, key string) error {
	c.cache.Remove(key)
	return nil
}

// DeletePrefix implements qengine.Cache.
func (c *LRU) DeletePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range c.cache.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.cache.Remove(k)
		}
	}
	return nil
}

// Clear implements qengine.Cache.
func (c *LRU) Clear(context.Context) error {
	c.cache.Purge()
	return nil
}

// Len returns the number of entries, expired ones included.
func (c *LRU) Len() int { return c.cache.Len() }

var _ qengine.Cache = (*LRU)(nil)
