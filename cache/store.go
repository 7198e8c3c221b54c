package cache

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Store is the shared key/value cache used by every consumer in a process.
// It holds at most one entry per key; writes overwrite unconditionally.
// Expired entries are only removed when a read observes them.
type Store struct {
	mu      sync.Mutex
	entries map[string]Entry

	now   func() time.Time
	log   zerolog.Logger
	rec   Recorder
	group *singleflight.Group // nil unless WithSingleFlight is set
}

// Option configures a Store
type Option func(*Store)

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used for hit/miss/eviction debug output
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(s *Store) {
		if r != nil {
			s.rec = r
		}
	}
}

// WithSingleFlight coalesces concurrent misses for the same key into one
// fetcher call. Without it every miss invokes its own fetcher.
func WithSingleFlight() Option {
	return func(s *Store) { s.group = &singleflight.Group{} }
}

// NewStore creates an empty store
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]Entry),
		now:     time.Now,
		log:     zerolog.Nop(),
		rec:     nopRecorder{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get returns the value stored under key if it is still valid for ttl.
// An expired entry is deleted by this call.
func (s *Store) Get(key string, ttl time.Duration) (any, bool) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	if !e.Valid(s.now(), ttl) {
		delete(s.entries, key)
		s.mu.Unlock()
		s.log.Debug().Str("key", key).Msg("cache entry expired")
		s.rec.Evict(EvictExpired, 1)
		return nil, false
	}
	s.mu.Unlock()
	return e.Value, true
}

// Peek returns the raw entry without any freshness check
func (s *Store) Peek(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e, ok
}

// Set stores value under key with the current time
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	s.entries[key] = Entry{Value: value, StoredAt: s.now()}
	s.mu.Unlock()
}

// Delete removes the entry for key regardless of validity
func (s *Store) Delete(key string) {
	s.mu.Lock()
	_, ok := s.entries[key]
	delete(s.entries, key)
	s.mu.Unlock()
	if ok {
		s.rec.Evict(EvictManual, 1)
	}
}

// DeleteByPrefix removes every entry whose key starts with prefix and
// returns how many were removed
func (s *Store) DeleteByPrefix(prefix string) int {
	s.mu.Lock()
	n := 0
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			delete(s.entries, k)
			n++
		}
	}
	s.mu.Unlock()
	if n > 0 {
		s.log.Debug().Str("prefix", prefix).Int("removed", n).Msg("cache prefix cleared")
		s.rec.Evict(EvictPrefix, n)
	}
	return n
}

// Clear empties the store
func (s *Store) Clear() {
	s.mu.Lock()
	n := len(s.entries)
	s.entries = make(map[string]Entry)
	s.mu.Unlock()
	if n > 0 {
		s.rec.Evict(EvictClear, n)
	}
}

// Len returns the number of entries, expired ones included
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Keys returns all keys in sorted order
func (s *Store) Keys() []string {
	s.mu.Lock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	sort.Strings(keys)
	return keys
}
