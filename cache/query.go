package cache

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is used when QueryOptions.TTL is zero
const DefaultTTL = 5 * time.Minute

// QueryOptions describes one consumer's view of a cached request
type QueryOptions[T any] struct {
	Key     string
	Fetcher Fetcher[T]
	TTL     time.Duration
	// Disabled turns Execute and Refresh into no-ops
	Disabled  bool
	OnSuccess func(T)
	OnError   func(error)
}

// Query is a per-consumer handle over a shared Store. It keeps the last
// result locally (data, loading, error) and stops touching that local state,
// and stops calling OnSuccess/OnError, once Close has been called. Fetches
// that complete after Close still update the shared store.
//
// OnSuccess and OnError must not call Close on their own handle.
type Query[T any] struct {
	store *Store
	opts  QueryOptions[T]

	// cb is held while a callback runs so Close waits for it
	cb sync.Mutex

	mu      sync.Mutex
	closed  bool
	data    T
	hasData bool
	loading bool
	err     error
}

// NewQuery creates a handle. Nothing is fetched until Execute is called.
func NewQuery[T any](store *Store, opts QueryOptions[T]) *Query[T] {
	if opts.TTL == 0 {
		opts.TTL = DefaultTTL
	}
	return &Query[T]{store: store, opts: opts}
}

// Key returns the cache key
func (q *Query[T]) Key() string { return q.opts.Key }

// Execute returns the cached value when valid, otherwise fetches it
func (q *Query[T]) Execute(ctx context.Context) (T, error) {
	return q.execute(ctx, false)
}

// Refresh fetches regardless of cache freshness
func (q *Query[T]) Refresh(ctx context.Context) (T, error) {
	return q.execute(ctx, true)
}

// ClearCache removes this query's entry from the shared store
func (q *Query[T]) ClearCache() {
	q.store.Delete(q.opts.Key)
}

// Close marks the consumer as gone and clears Loading. It waits for a
// running callback; no callback starts after Close returns.
func (q *Query[T]) Close() {
	q.cb.Lock()
	defer q.cb.Unlock()
	q.mu.Lock()
	q.closed = true
	q.loading = false
	q.mu.Unlock()
}

// Data returns the locally held value
func (q *Query[T]) Data() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.data, q.hasData
}

// Loading reports whether a fetch started by this handle is in flight
func (q *Query[T]) Loading() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loading
}

// Err returns the error from the last fetch, nil after a success or hit
func (q *Query[T]) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

func (q *Query[T]) execute(ctx context.Context, force bool) (T, error) {
	if q.opts.Disabled {
		data, _ := q.Data()
		return data, nil
	}

	if !force {
		if v, ok := lookup[T](q.store, q.opts.Key, q.opts.TTL); ok {
			q.mu.Lock()
			if !q.closed {
				q.data, q.hasData, q.err = v, true, nil
			}
			q.mu.Unlock()
			return v, nil
		}
	}

	if !q.update(func() { q.loading, q.err = true, nil }) {
		// already torn down; still serve the shared store
		if force {
			return Refresh(ctx, q.store, q.opts.Key, q.opts.Fetcher)
		}
		return load(ctx, q.store, q.opts.Key, q.opts.Fetcher)
	}

	var (
		v   T
		err error
	)
	if force {
		v, err = Refresh(ctx, q.store, q.opts.Key, q.opts.Fetcher)
	} else {
		v, err = load(ctx, q.store, q.opts.Key, q.opts.Fetcher)
	}

	q.cb.Lock()
	defer q.cb.Unlock()
	live := q.update(func() {
		q.loading = false
		if err != nil {
			q.err = err
			return
		}
		q.data, q.hasData = v, true
	})
	if !live {
		return v, err
	}

	if err != nil {
		if q.opts.OnError != nil {
			q.opts.OnError(err)
		}
		return v, err
	}
	if q.opts.OnSuccess != nil {
		q.opts.OnSuccess(v)
	}
	return v, nil
}

// update applies fn to local state unless the handle is closed
func (q *Query[T]) update(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	fn()
	return true
}
