// Package querycache is a keyed, in-memory cache for remote reads. It
// deduplicates concurrent fetches of the same key, serves stale entries while
// refreshing them in the background, and never stores a failure as data.
package querycache

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/shinkrolist/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// Status is the freshness state of an entry.
type Status int

const (
	Pending Status = iota
	Fresh
	Stale
	Error
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	case Error:
		return "error"
	}
	return "unknown"
}

// Entry is a snapshot of one cache slot.
type Entry[V any] struct {
	Key        string
	Status     Status
	Payload    V
	HasPayload bool
	FetchedAt  time.Time
	Err        error
}

// Fetcher loads the value for a key.
type Fetcher[V any] func(ctx context.Context) (V, error)

type Options struct {
	// FreshFor is how long a fetched value is served without refetching.
	// Zero keeps values fresh until invalidated.
	FreshFor time.Duration
	// FetchTimeout bounds a single fetch. Zero means no bound.
	FetchTimeout time.Duration
	// Now is the clock, time.Now when nil.
	Now func() time.Time
}

// record is replaced, never mutated, once it holds a result. A flight only
// stores its result while its record is still the one in the map.
type record[V any] struct {
	entry      Entry[V]
	flight     string
	refreshing bool
}

// Cache is safe for concurrent use. Construct one per resource class and
// share it between every reader of that class.
type Cache[V any] struct {
	name    string
	opts    Options
	log     zerolog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	entries map[string]*record[V]
	group   singleflight.Group
	seq     uint64
}

func New[V any](name string, opts Options, log zerolog.Logger, m *metrics.Metrics) *Cache[V] {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache[V]{
		name:    name,
		opts:    opts,
		log:     log.With().Str("module", "querycache").Str("cache", name).Logger(),
		metrics: m,
		entries: make(map[string]*record[V]),
	}
}

type result[V any] struct {
	val V
	err error
}

// Get returns the value for key, fetching it with fetch when there is no
// usable entry. A stale value is returned at once and refreshed in the
// background. Concurrent callers for the same key share one fetch; a caller
// whose ctx ends stops waiting without cancelling the shared fetch.
func (c *Cache[V]) Get(ctx context.Context, key string, fetch Fetcher[V]) (V, error) {
	c.mu.Lock()
	rec, ok := c.entries[key]
	if ok {
		switch c.statusOf(rec) {
		case Fresh:
			c.mu.Unlock()
			c.metrics.CacheRequest(c.name, "hit")
			return rec.entry.Payload, nil

		case Stale:
			if !rec.refreshing {
				rec.refreshing = true
				rec.flight = c.nextFlight(key)
				c.group.DoChan(rec.flight, c.flight(ctx, key, rec, fetch))
			}
			c.mu.Unlock()
			c.metrics.CacheRequest(c.name, "stale")
			return rec.entry.Payload, nil

		case Pending:
			ch := c.group.DoChan(rec.flight, c.flight(ctx, key, rec, fetch))
			c.mu.Unlock()
			c.metrics.CacheRequest(c.name, "join")
			return c.wait(ctx, ch)
		}
	}

	rec = &record[V]{entry: Entry[V]{Key: key, Status: Pending}, flight: c.nextFlight(key)}
	c.entries[key] = rec
	ch := c.group.DoChan(rec.flight, c.flight(ctx, key, rec, fetch))
	c.mu.Unlock()
	c.metrics.CacheRequest(c.name, "miss")

	return c.wait(ctx, ch)
}

// nextFlight must be called with mu held. Each fetch gets its own flight so
// a caller never joins a fetch whose result was already stored.
func (c *Cache[V]) nextFlight(key string) string {
	c.seq++
	return key + "#" + strconv.FormatUint(c.seq, 10)
}

func (c *Cache[V]) wait(ctx context.Context, ch <-chan singleflight.Result) (V, error) {
	select {
	case r := <-ch:
		res := r.Val.(result[V])
		return res.val, res.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// flight wraps fetch for singleflight. The fetch is detached from the
// initiating caller so one caller leaving does not fail the others.
func (c *Cache[V]) flight(ctx context.Context, key string, rec *record[V], fetch Fetcher[V]) func() (any, error) {
	return func() (any, error) {
		fctx := context.WithoutCancel(ctx)
		if c.opts.FetchTimeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(fctx, c.opts.FetchTimeout)
			defer cancel()
		}

		start := c.opts.Now()
		val, err := fetch(fctx)
		c.metrics.CacheFetch(c.name, err, c.opts.Now().Sub(start))

		c.store(key, rec, val, err)
		return result[V]{val: val, err: err}, nil
	}
}

func (c *Cache[V]) store(key string, rec *record[V], val V, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries[key] != rec {
		c.log.Debug().Str("key", key).Msg("discarding result for invalidated entry")
		return
	}

	if err != nil {
		if rec.entry.HasPayload {
			// failed background refresh keeps serving the stale value
			c.log.Warn().Err(err).Str("key", key).Msg("background refresh failed")
			c.entries[key] = &record[V]{entry: rec.entry}
			return
		}
		c.log.Debug().Err(err).Str("key", key).Msg("fetch failed")
		c.entries[key] = &record[V]{entry: Entry[V]{
			Key:    key,
			Status: Error,
			Err:    err,
		}}
		return
	}

	c.entries[key] = &record[V]{entry: Entry[V]{
		Key:        key,
		Status:     Fresh,
		Payload:    val,
		HasPayload: true,
		FetchedAt:  c.opts.Now(),
	}}
}

// statusOf must be called with mu held.
func (c *Cache[V]) statusOf(rec *record[V]) Status {
	e := rec.entry
	if e.Status == Fresh && c.opts.FreshFor > 0 && c.opts.Now().Sub(e.FetchedAt) >= c.opts.FreshFor {
		return Stale
	}
	return e.Status
}

// Peek returns the current entry for key without fetching.
func (c *Cache[V]) Peek(key string) (Entry[V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.entries[key]
	if !ok {
		return Entry[V]{}, false
	}
	e := rec.entry
	e.Status = c.statusOf(rec)
	return e, true
}

// Set stores val for key as a freshly fetched value. An in-flight fetch for
// the key will not overwrite it.
func (c *Cache[V]) Set(key string, val V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rec, ok := c.entries[key]; ok && rec.flight != "" {
		c.group.Forget(rec.flight)
	}
	c.entries[key] = &record[V]{entry: Entry[V]{
		Key:        key,
		Status:     Fresh,
		Payload:    val,
		HasPayload: true,
		FetchedAt:  c.opts.Now(),
	}}
}

// KeySegment escapes s for use as one ':'-separated part of a key, so a
// prefix ending in a segment never matches a longer segment.
func KeySegment(s string) string {
	return url.QueryEscape(s)
}

// Invalidate drops key. The next Get fetches again.
func (c *Cache[V]) Invalidate(key string) {
	c.InvalidateFunc(func(k string) bool { return k == key })
}

// InvalidatePrefix drops every key starting with prefix.
func (c *Cache[V]) InvalidatePrefix(prefix string) int {
	return c.InvalidateFunc(func(k string) bool { return strings.HasPrefix(k, prefix) })
}

// InvalidateFunc drops every key for which match returns true and returns
// how many were dropped.
func (c *Cache[V]) InvalidateFunc(match func(key string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, rec := range c.entries {
		if !match(k) {
			continue
		}
		delete(c.entries, k)
		if rec.flight != "" {
			c.group.Forget(rec.flight)
		}
		n++
	}

	if n > 0 {
		c.log.Trace().Int("count", n).Msg("invalidated entries")
	}
	c.metrics.CacheInvalidated(c.name, n)
	return n
}

// Sweep evicts settled entries last fetched more than olderThan ago, and
// failed entries, and returns how many were removed.
func (c *Cache[V]) Sweep(olderThan time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.opts.Now().Add(-olderThan)
	n := 0
	for k, rec := range c.entries {
		switch {
		case rec.entry.Status == Pending, rec.refreshing:
			continue
		case rec.entry.Status == Error, rec.entry.FetchedAt.Before(cutoff):
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of entries, including pending ones.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Name returns the cache name used in logs and metrics.
func (c *Cache[V]) Name() string {
	return c.name
}

// ErrNoEntry is returned by Lookup for a key that was never fetched.
var ErrNoEntry = errors.New("no cache entry")

// Lookup returns the cached payload for key, or the stored fetch error.
func (c *Cache[V]) Lookup(key string) (V, error) {
	e, ok := c.Peek(key)
	var zero V
	switch {
	case !ok:
		return zero, ErrNoEntry
	case e.HasPayload:
		return e.Payload, nil
	case e.Err != nil:
		return zero, e.Err
	}
	return zero, ErrNoEntry
}
