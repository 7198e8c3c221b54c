// Package cache provides a shared in-memory response cache with per-request
// TTL validation, manual and prefix invalidation, and per-consumer query
// handles that tolerate teardown while a fetch is in flight.
package cache

import (
	"context"
	"time"
)

// Entry represents a cached value with the time it was stored
type Entry struct {
	Value    any
	StoredAt time.Time
}

// Valid reports whether the entry is still fresh at now for the given ttl.
// An entry is valid iff now - StoredAt <= ttl.
func (e Entry) Valid(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.StoredAt) <= ttl
}

// Fetcher loads a fresh value from a remote service
type Fetcher[T any] func(ctx context.Context) (T, error)

// EvictReason labels why entries left the store
type EvictReason string

const (
	EvictExpired EvictReason = "expired"
	EvictManual  EvictReason = "manual"
	EvictPrefix  EvictReason = "prefix"
	EvictClear   EvictReason = "clear"
)

// Recorder receives cache events, typically for metrics
type Recorder interface {
	// Hit is called when a valid entry satisfied a read
	Hit(key string)
	// Miss is called when a read had to invoke the fetcher
	Miss(key string)
	// Evict is called when n entries were removed
	Evict(reason EvictReason, n int)
	// FetchError is called when a fetcher failed
	FetchError(key string)
}

type nopRecorder struct{}

func (nopRecorder) Hit(string)             {}
func (nopRecorder) Miss(string)            {}
func (nopRecorder) Evict(EvictReason, int) {}
func (nopRecorder) FetchError(string)      {}
