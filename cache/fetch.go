package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrFetchPanic wraps a panic raised by a fetcher
var ErrFetchPanic = errors.New("cache: fetcher panicked")

// Fetch returns the value cached under key when it is still valid for ttl.
// Otherwise it calls fetch, stores the result on success and returns it.
// A failed fetch leaves the store untouched and returns the error.
func Fetch[T any](ctx context.Context, s *Store, key string, ttl time.Duration, fetch Fetcher[T]) (T, error) {
	if v, ok := lookup[T](s, key, ttl); ok {
		return v, nil
	}
	return load(ctx, s, key, fetch)
}

// Refresh always calls fetch and overwrites the entry on success. It never
// joins an in-flight single-flight call, so the result is always fresh.
func Refresh[T any](ctx context.Context, s *Store, key string, fetch Fetcher[T]) (T, error) {
	return call(ctx, s, key, fetch)
}

// lookup reads a valid typed entry and records the hit or miss
func lookup[T any](s *Store, key string, ttl time.Duration) (T, bool) {
	if v, ok := s.Get(key, ttl); ok {
		if typed, ok := v.(T); ok {
			s.rec.Hit(key)
			s.log.Debug().Str("key", key).Msg("cache hit")
			return typed, true
		}
		s.log.Warn().Str("key", key).Str("type", fmt.Sprintf("%T", v)).Msg("cached value has unexpected type, refetching")
	}
	s.rec.Miss(key)
	s.log.Debug().Str("key", key).Msg("cache miss")
	var zero T
	return zero, false
}

func load[T any](ctx context.Context, s *Store, key string, fetch Fetcher[T]) (T, error) {
	if s.group == nil {
		return call(ctx, s, key, fetch)
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		return call(ctx, s, key, fetch)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		// another caller shared the flight with a different result type
		return call(ctx, s, key, fetch)
	}
	return typed, nil
}

// call runs fetch once and writes the store on success
func call[T any](ctx context.Context, s *Store, key string, fetch Fetcher[T]) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v, err = zero, fmt.Errorf("%w: %v", ErrFetchPanic, r)
		}
		if err != nil {
			s.rec.FetchError(key)
			s.log.Debug().Err(err).Str("key", key).Msg("fetch failed")
		}
	}()

	v, err = fetch(ctx)
	if err != nil {
		return v, err
	}
	s.Set(key, v)
	return v, nil
}
