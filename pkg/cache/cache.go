// Package cache provides pluggable byte caches for computed blocks and
// derived artifacts.
//
// Block computation is pure, so a block result can be reused across runs
// whenever its node fingerprint matches. Schedulers consult a Cache with
// fingerprint-derived keys; the CLI uses the same backends for rendered
// artifacts and run summaries.
//
// Backends:
//   - [FileCache]: directory-backed, for CLI usage
//   - [MemoryCache]: in-process, for tests
//   - [RedisCache]: shared TTL cache for distributed runs
//   - [MongoCache]: durable document-backed cache
//   - [NullCache]: disables caching
package cache

import (
	"context"
	"time"
)

// Cache stores opaque byte values under string keys.
// All implementations are safe for concurrent use.
type Cache interface {
	// Get retrieves a value. The second return reports a hit.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with an optional TTL (0 means no expiry).
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Keyer derives cache keys from computation identities.
type Keyer interface {
	// BlockKey returns the key for a computed block with the given
	// node fingerprint.
	BlockKey(fingerprint string) string

	// ArtifactKey returns the key for a derived artifact (e.g. a rendered
	// task graph) identified by a content hash and format.
	ArtifactKey(contentHash, format string) string
}

// DefaultKeyer is the standard key scheme.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the standard keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// BlockKey returns "block:<fingerprint>".
func (DefaultKeyer) BlockKey(fingerprint string) string { return "block:" + fingerprint }

// ArtifactKey returns "artifact:<hash>:<format>".
func (DefaultKeyer) ArtifactKey(contentHash, format string) string {
	return "artifact:" + contentHash + ":" + format
}

// ScopedKeyer wraps a Keyer with a prefix for namespace isolation, e.g.
// separating products or processing campaigns sharing one redis instance.
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{inner: inner, prefix: prefix}
}

// BlockKey generates a prefixed block key.
func (k *ScopedKeyer) BlockKey(fingerprint string) string {
	return k.prefix + k.inner.BlockKey(fingerprint)
}

// ArtifactKey generates a prefixed artifact key.
func (k *ScopedKeyer) ArtifactKey(contentHash, format string) string {
	return k.prefix + k.inner.ArtifactKey(contentHash, format)
}
