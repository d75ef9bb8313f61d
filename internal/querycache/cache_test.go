package querycache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/varoOP/shinkrolist/internal/metrics"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newCache(t *testing.T, freshFor time.Duration) (*Cache[string], *clock) {
	t.Helper()
	clk := newClock()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	c := New[string]("test", Options{FreshFor: freshFor, FetchTimeout: time.Second, Now: clk.Now}, zerolog.Nop(), m)
	return c, clk
}

func counting(calls *atomic.Int32, val string) Fetcher[string] {
	return func(ctx context.Context) (string, error) {
		calls.Add(1)
		return val, nil
	}
}

func TestGet_ConcurrentCallsShareOneFetch(t *testing.T) {
	c, _ := newCache(t, time.Minute)

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "page", nil
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Get(context.Background(), "k", fetch)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	e, ok := c.Peek("k")
	require.True(t, ok)
	assert.Equal(t, Pending, e.Status)

	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, "page", r)
	}
}

func TestGet_FreshEntryDoesNotFetch(t *testing.T) {
	c, clk := newCache(t, 5*time.Minute)

	var calls atomic.Int32
	_, err := c.Get(context.Background(), "k", counting(&calls, "a"))
	require.NoError(t, err)

	clk.Advance(4 * time.Minute)
	v, err := c.Get(context.Background(), "k", counting(&calls, "b"))
	require.NoError(t, err)

	assert.Equal(t, "a", v)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGet_StaleReturnsOldValueAndRefreshes(t *testing.T) {
	c, clk := newCache(t, 5*time.Minute)

	var calls atomic.Int32
	_, err := c.Get(context.Background(), "k", counting(&calls, "old"))
	require.NoError(t, err)

	clk.Advance(6 * time.Minute)
	e, _ := c.Peek("k")
	assert.Equal(t, Stale, e.Status)

	v, err := c.Get(context.Background(), "k", counting(&calls, "new"))
	require.NoError(t, err)
	assert.Equal(t, "old", v)

	require.Eventually(t, func() bool {
		e, _ := c.Peek("k")
		return e.Status == Fresh && e.Payload == "new"
	}, time.Second, time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGet_StaleTriggersSingleRefresh(t *testing.T) {
	c, clk := newCache(t, time.Minute)

	var calls atomic.Int32
	_, err := c.Get(context.Background(), "k", counting(&calls, "old"))
	require.NoError(t, err)
	clk.Advance(2 * time.Minute)

	release := make(chan struct{})
	slow := func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "new", nil
	}
	for i := 0; i < 5; i++ {
		v, err := c.Get(context.Background(), "k", slow)
		require.NoError(t, err)
		assert.Equal(t, "old", v)
	}
	close(release)

	require.Eventually(t, func() bool {
		e, _ := c.Peek("k")
		return e.Payload == "new"
	}, time.Second, time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGet_FailedRefreshKeepsStaleValue(t *testing.T) {
	c, clk := newCache(t, time.Minute)

	var calls atomic.Int32
	_, err := c.Get(context.Background(), "k", counting(&calls, "old"))
	require.NoError(t, err)
	clk.Advance(2 * time.Minute)

	failed := make(chan struct{})
	v, err := c.Get(context.Background(), "k", func(ctx context.Context) (string, error) {
		defer close(failed)
		return "", errors.New("boom")
	})
	require.NoError(t, err)
	assert.Equal(t, "old", v)
	<-failed

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return !c.entries["k"].refreshing
	}, time.Second, time.Millisecond)

	e, ok := c.Peek("k")
	require.True(t, ok)
	assert.Equal(t, "old", e.Payload)
	assert.Equal(t, Stale, e.Status)
}

func TestGet_ErrorIsNotCached(t *testing.T) {
	c, _ := newCache(t, time.Minute)

	boom := errors.New("boom")
	_, err := c.Get(context.Background(), "k", func(ctx context.Context) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)

	e, ok := c.Peek("k")
	require.True(t, ok)
	assert.Equal(t, Error, e.Status)
	assert.False(t, e.HasPayload)

	var calls atomic.Int32
	v, err := c.Get(context.Background(), "k", counting(&calls, "ok"))
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGet_ErrorIsolatedPerKey(t *testing.T) {
	c, _ := newCache(t, time.Minute)

	var calls atomic.Int32
	_, err := c.Get(context.Background(), "good", counting(&calls, "g"))
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "bad", func(ctx context.Context) (string, error) {
		return "", errors.New("boom")
	})
	require.Error(t, err)

	e, _ := c.Peek("good")
	assert.Equal(t, Fresh, e.Status)
	assert.Equal(t, "g", e.Payload)
}

func TestGet_CallerCancelDoesNotCancelFetch(t *testing.T) {
	c, _ := newCache(t, time.Minute)

	release := make(chan struct{})
	var fetchErr error
	done := make(chan struct{})
	fetch := func(ctx context.Context) (string, error) {
		<-release
		fetchErr = ctx.Err()
		close(done)
		return "v", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, "k", fetch)
		errc <- err
	}()

	require.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	close(release)
	<-done
	assert.NoError(t, fetchErr)

	require.Eventually(t, func() bool {
		e, _ := c.Peek("k")
		return e.Status == Fresh
	}, time.Second, time.Millisecond)
}

func TestInvalidate_Refetches(t *testing.T) {
	c, _ := newCache(t, 0)

	var calls atomic.Int32
	_, err := c.Get(context.Background(), "k", counting(&calls, "a"))
	require.NoError(t, err)

	c.Invalidate("k")
	_, ok := c.Peek("k")
	assert.False(t, ok)

	v, err := c.Get(context.Background(), "k", counting(&calls, "b"))
	require.NoError(t, err)
	assert.Equal(t, "b", v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestInvalidatePrefix(t *testing.T) {
	c, _ := newCache(t, 0)
	c.Set("list:u1:all:1", "a")
	c.Set("list:u1:watching:1", "b")
	c.Set("list:u2:all:1", "c")

	n := c.InvalidatePrefix("list:u1:")
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, c.Len())
	_, ok := c.Peek("list:u2:all:1")
	assert.True(t, ok)
}

func TestInvalidate_InFlightResultDiscarded(t *testing.T) {
	c, _ := newCache(t, 0)

	release := make(chan struct{})
	errc := make(chan error, 1)
	go func() {
		_, err := c.Get(context.Background(), "k", func(ctx context.Context) (string, error) {
			<-release
			return "before", nil
		})
		errc <- err
	}()
	require.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, time.Millisecond)

	c.Invalidate("k")
	close(release)
	require.NoError(t, <-errc)

	_, ok := c.Peek("k")
	assert.False(t, ok, "invalidated fetch must not repopulate the entry")

	var calls atomic.Int32
	v, err := c.Get(context.Background(), "k", counting(&calls, "after"))
	require.NoError(t, err)
	assert.Equal(t, "after", v)
}

func TestZeroFreshForNeverStale(t *testing.T) {
	c, clk := newCache(t, 0)
	c.Set("genres", "all")
	clk.Advance(1000 * time.Hour)

	e, ok := c.Peek("genres")
	require.True(t, ok)
	assert.Equal(t, Fresh, e.Status)
}

func TestSweep(t *testing.T) {
	c, clk := newCache(t, time.Minute)
	c.Set("old", "a")
	clk.Advance(20 * time.Minute)
	c.Set("new", "b")

	_, err := c.Get(context.Background(), "bad", func(ctx context.Context) (string, error) {
		return "", errors.New("boom")
	})
	require.Error(t, err)

	assert.Equal(t, 2, c.Sweep(10*time.Minute))
	_, ok := c.Peek("new")
	assert.True(t, ok)
}

func TestLookup(t *testing.T) {
	c, _ := newCache(t, 0)
	_, err := c.Lookup("missing")
	assert.ErrorIs(t, err, ErrNoEntry)

	c.Set("k", "v")
	v, err := c.Lookup("k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}
