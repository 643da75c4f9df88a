// Package session provides a keyed cache for expensive-to-build values,
// typically compiled flow graphs, with content fingerprinting and
// single-flight construction. Concurrent lookups for the same session block
// on one build instead of each building their own copy, and a changed
// fingerprint transparently invalidates the cached value.
package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCacheClosed is returned by operations on a closed Cache.
var ErrCacheClosed = errors.New("session: cache closed")

// BuildFunc constructs the value for a session. It is called at most once
// per (session, fingerprint) pair no matter how many goroutines ask
// concurrently.
type BuildFunc[T any] func(ctx context.Context) (T, error)

// entry is one cached slot. done is closed when the build finishes, so
// latecomers can wait without holding the cache lock.
type entry[T any] struct {
	fingerprint string
	done        chan struct{}
	value       T
	err         error
	lastAccess  time.Time
}

// Cache maps session IDs to built values. A zero Cache is not usable; use
// NewCache.
type Cache[T any] struct {
	mu      sync.Mutex
	entries map[string]*entry[T]
	ttl     time.Duration
	closed  bool
	stop    chan struct{}
	janitor sync.WaitGroup
}

// CacheOption configures a Cache.
type CacheOption[T any] func(*Cache[T])

// WithTTL evicts entries that have not been accessed for d. A background
// janitor sweeps at half the TTL interval. Zero (the default) disables
// expiry.
func WithTTL[T any](d time.Duration) CacheOption[T] {
	return func(c *Cache[T]) { c.ttl = d }
}

// NewCache creates an empty cache.
func NewCache[T any](opts ...CacheOption[T]) *Cache[T] {
	c := &Cache[T]{
		entries: make(map[string]*entry[T]),
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.ttl > 0 {
		c.janitor.Add(1)
		go c.sweep()
	}
	return c
}

// GetOrBuild returns the cached value for sessionID if its fingerprint
// matches, otherwise builds a fresh one via build and caches it. When
// several goroutines race on the same cold session, exactly one runs build
// and the rest wait for its result. A failed build is not cached; the next
// caller retries.
func (c *Cache[T]) GetOrBuild(ctx context.Context, sessionID, fingerprint string, build BuildFunc[T]) (T, error) {
	var zero T

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return zero, ErrCacheClosed
	}
	if e, ok := c.entries[sessionID]; ok && e.fingerprint == fingerprint {
		e.lastAccess = time.Now()
		c.mu.Unlock()

		select {
		case <-e.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
		if e.err != nil {
			// The in-flight build failed; fall through and try again.
			return c.GetOrBuild(ctx, sessionID, fingerprint, build)
		}
		return e.value, nil
	}

	// Cold or stale slot. Claim it before releasing the lock so concurrent
	// callers latch onto this build.
	e := &entry[T]{
		fingerprint: fingerprint,
		done:        make(chan struct{}),
		lastAccess:  time.Now(),
	}
	c.entries[sessionID] = e
	c.mu.Unlock()

	e.value, e.err = build(ctx)
	close(e.done)

	if e.err != nil {
		c.mu.Lock()
		if cur, ok := c.entries[sessionID]; ok && cur == e {
			delete(c.entries, sessionID)
		}
		c.mu.Unlock()
		return zero, e.err
	}
	return e.value, nil
}

// Peek returns the cached value without building. ok is false when the
// session is absent, still building, or finished with an error.
func (c *Cache[T]) Peek(sessionID string) (T, bool) {
	var zero T
	c.mu.Lock()
	e, ok := c.entries[sessionID]
	c.mu.Unlock()
	if !ok {
		return zero, false
	}
	select {
	case <-e.done:
	default:
		return zero, false
	}
	if e.err != nil {
		return zero, false
	}
	return e.value, true
}

// Invalidate drops the cached value for sessionID, if any.
func (c *Cache[T]) Invalidate(sessionID string) {
	c.mu.Lock()
	delete(c.entries, sessionID)
	c.mu.Unlock()
}

// Len reports the number of cached sessions, including in-flight builds.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the janitor and empties the cache. In-flight builds finish
// but their results are discarded.
func (c *Cache[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.entries = make(map[string]*entry[T])
	c.mu.Unlock()

	close(c.stop)
	c.janitor.Wait()
}

func (c *Cache[T]) sweep() {
	defer c.janitor.Done()
	ticker := time.NewTicker(c.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for id, e := range c.entries {
				select {
				case <-e.done:
				default:
					continue // never expire an in-flight build
				}
				if now.Sub(e.lastAccess) > c.ttl {
					delete(c.entries, id)
				}
			}
			c.mu.Unlock()
		}
	}
}
