package cache

import (
	"context"
	"time"
)

// NullCache discards everything: every Get is a miss, every Set a no-op.
// It backs runs with block reuse turned off, so callers can hold a Cache
// unconditionally instead of branching on nil.
type NullCache struct{}

// NewNullCache returns the disabled cache.
func NewNullCache() Cache { return NullCache{} }

// Get always misses.
func (NullCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

// Set discards the value.
func (NullCache) Set(context.Context, string, []byte, time.Duration) error { return nil }

// Delete does nothing.
func (NullCache) Delete(context.Context, string) error { return nil }

// Close does nothing.
func (NullCache) Close() error { return nil }

// Ensure NullCache implements Cache.
var _ Cache = NullCache{}
