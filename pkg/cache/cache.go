// Package cache provides pluggable storage for HTTP responses fetched from
// the npm registry. Metadata documents and tarballs are both immutable once
// published under a given version, so a cache hit never needs revalidation -
// only expiration.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache stores and retrieves byte blobs keyed by string. Implementations must
// be safe for concurrent use: the resolver's workers hit the cache from many
// goroutines at once.
type Cache interface {
	// Get returns the cached value for key. hit is false on a miss; err is
	// only set for a genuine storage failure, never for a miss.
	Get(ctx context.Context, key string) (data []byte, hit bool, err error)

	// Set stores data under key with the given time-to-live. A zero ttl
	// means the entry never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the cache (file handles, pooled
	// connections). Safe to call on a cache that was never used.
	Close() error
}

// Keyer builds cache keys for the one kind of request the installer core
// caches: HTTP responses from the registry. Only package metadata documents
// are cached; tarball downloads are streamed without touching the cache.
type Keyer interface {
	// HTTPKey builds a key for an HTTP GET against namespace (typically the
	// registry base URL) for the given resource path.
	HTTPKey(namespace, key string) string
}

// DefaultKeyer is the stock Keyer used when none is supplied.
type DefaultKeyer struct{}

// NewDefaultKeyer creates a DefaultKeyer.
func NewDefaultKeyer() Keyer {
	return &DefaultKeyer{}
}

// HTTPKey returns "http:<namespace>:<key>" unhashed, since registry paths
// are already short and legible - useful when inspecting a FileCache
// directory or Redis keyspace by hand.
func (k *DefaultKeyer) HTTPKey(namespace, key string) string {
	return fmt.Sprintf("http:%s:%s", namespace, key)
}
