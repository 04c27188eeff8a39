package qengine

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Cache is the interface for caching read results of a connector.
// Implementations must be safe for concurrent use; see the cache package
// for an in-memory LRU implementation.
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with an optional TTL.
	// If ttl is 0, the value should not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes all values with the given prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Clear removes all values from the cache.
	Clear(ctx context.Context) error
}

// CacheKey identifies a cached read. Keys of one model share the Model prefix,
// so a write to the model invalidates them with a single DeletePrefix.
type CacheKey struct {
	Model     string
	Operation string
	Filter    string
	Selection []string
	OrderBy   string
	Distinct  []string
	Take      *int
	Skip      int
}

// Prefix returns the invalidation prefix of the model.
func (k CacheKey) Prefix() string {
	return CachePrefix(k.Model)
}

// CachePrefix returns the invalidation prefix of the model.
func CachePrefix(model string) string {
	return model + ":"
}

// String returns the string representation of the cache key.
func (k CacheKey) String() string {
	var sb strings.Builder
	sb.WriteString(k.Prefix())
	sb.WriteString(k.Operation)
	sb.WriteByte(':')
	sb.WriteString(k.Filter)
	sb.WriteByte(':')
	sb.WriteString(strings.Join(k.Selection, ","))
	sb.WriteByte(':')
	sb.WriteString(k.OrderBy)
	if len(k.Distinct) > 0 {
		sb.WriteString(":d=")
		sb.WriteString(strings.Join(k.Distinct, ","))
	}
	if k.Take != nil {
		sb.WriteString(":t=")
		sb.WriteString(strconv.Itoa(*k.Take))
	}
	if k.Skip != 0 {
		sb.WriteString(":s=")
		sb.WriteString(strconv.Itoa(k.Skip))
	}
	return sb.String()
}
