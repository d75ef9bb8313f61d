package status

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/varoOP/shinkrolist/internal/auth"
	"github.com/varoOP/shinkrolist/internal/database"
	"github.com/varoOP/shinkrolist/internal/domain"
	"github.com/varoOP/shinkrolist/internal/querycache"
)

// gatedRepo wraps the memory repo. When gate is set every write reports on
// started and blocks until gate is signalled.
type gatedRepo struct {
	*database.MemoryRepo

	gate    chan struct{}
	started chan domain.UserStatus
	fail    func(rec domain.UserStatus) error

	writes atomic.Int32
	reads  atomic.Int32
}

func newGatedRepo() *gatedRepo {
	return &gatedRepo{MemoryRepo: database.NewMemoryRepo()}
}

func (r *gatedRepo) hold() {
	r.gate = make(chan struct{})
	r.started = make(chan domain.UserStatus, 8)
}

func (r *gatedRepo) Upsert(ctx context.Context, rec domain.UserStatus) (*domain.UserStatus, error) {
	r.writes.Add(1)
	if r.gate != nil {
		r.started <- rec
		<-r.gate
	}
	if r.fail != nil {
		if err := r.fail(rec); err != nil {
			return nil, err
		}
	}
	return r.MemoryRepo.Upsert(ctx, rec)
}

func (r *gatedRepo) Get(ctx context.Context, userID string, itemID int) (*domain.UserStatus, error) {
	r.reads.Add(1)
	return r.MemoryRepo.Get(ctx, userID, itemID)
}

func (r *gatedRepo) Delete(ctx context.Context, userID string, itemID int) error {
	r.writes.Add(1)
	return r.MemoryRepo.Delete(ctx, userID, itemID)
}

func newTestCoordinator(repo domain.StatusRepo) *Coordinator {
	lookup := querycache.New[*domain.UserStatus]("status", querycache.Options{}, zerolog.Nop(), nil)
	return NewCoordinator(zerolog.Nop(), repo, lookup, nil)
}

func userCtx() context.Context {
	return auth.WithSession(context.Background(), auth.Session{UserID: "u1", Username: "alice"})
}

var frieren = domain.ItemRef{ID: 52991, Title: "Sousou no Frieren", Type: "TV", Episodes: 28}

type result struct {
	out Outcome
	err error
}

func setAsync(c *Coordinator, ctx context.Context, s domain.WatchStatus) <-chan result {
	ch := make(chan result, 1)
	go func() {
		out, err := c.SetStatus(ctx, frieren, s)
		ch <- result{out, err}
	}()
	return ch
}

func visibleStatus(c *Coordinator, ctx context.Context, want domain.WatchStatus) func() bool {
	return func() bool {
		rec, _, ok := c.Snapshot(ctx, frieren.ID)
		return ok && rec != nil && rec.Status == want
	}
}

func TestSetStatus_Anonymous(t *testing.T) {
	repo := newGatedRepo()
	c := newTestCoordinator(repo)

	_, err := c.SetStatus(context.Background(), frieren, domain.Watching)
	assert.True(t, errors.Is(err, domain.ErrNotAuthenticated))

	_, err = c.Update(context.Background(), frieren.ID, domain.Edit{Status: ptr(domain.Dropped)})
	assert.True(t, errors.Is(err, domain.ErrNotAuthenticated))

	_, err = c.Remove(context.Background(), frieren.ID)
	assert.True(t, errors.Is(err, domain.ErrNotAuthenticated))

	assert.Zero(t, repo.writes.Load())
	assert.Zero(t, repo.reads.Load())
	assert.Empty(t, c.entries)

	rec, err := c.Status(context.Background(), frieren.ID)
	assert.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSetStatus_CreatesRecord(t *testing.T) {
	repo := newGatedRepo()
	c := newTestCoordinator(repo)
	ctx := userCtx()

	out, err := c.SetStatus(ctx, frieren, domain.Watching)
	require.NoError(t, err)
	assert.NotEmpty(t, out.WriteID)
	assert.False(t, out.Superseded)
	require.NotNil(t, out.Record)
	assert.Equal(t, domain.Watching, out.Record.Status)
	assert.Equal(t, "u1", out.Record.UserID)
	assert.Equal(t, 28, out.Record.EpisodesTotal)

	stored, err := repo.MemoryRepo.Get(ctx, "u1", frieren.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Watching, stored.Status)

	_, state, ok := c.Snapshot(ctx, frieren.ID)
	assert.True(t, ok)
	assert.Equal(t, Fresh, state)
}

func TestSetStatus_Validation(t *testing.T) {
	c := newTestCoordinator(newGatedRepo())

	_, err := c.SetStatus(userCtx(), domain.ItemRef{ID: 0}, domain.Watching)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = c.SetStatus(userCtx(), frieren, domain.WatchStatus(42))
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestSetStatus_CompletedFillsEpisodes(t *testing.T) {
	c := newTestCoordinator(newGatedRepo())
	ctx := userCtx()

	_, err := c.SetStatus(ctx, frieren, domain.Watching)
	require.NoError(t, err)

	out, err := c.SetStatus(ctx, frieren, domain.Completed)
	require.NoError(t, err)
	assert.Equal(t, domain.Completed, out.Record.Status)
	assert.Equal(t, 28, out.Record.EpisodesWatched)

	unknown := domain.ItemRef{ID: 21, Title: "One Piece"}
	out, err = c.SetStatus(ctx, unknown, domain.Completed)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Record.EpisodesWatched)
}

func TestSetStatus_KeepsOtherFields(t *testing.T) {
	c := newTestCoordinator(newGatedRepo())
	ctx := userCtx()

	_, err := c.SetStatus(ctx, frieren, domain.Watching)
	require.NoError(t, err)
	_, err = c.Update(ctx, frieren.ID, domain.Edit{Score: ptr(9), EpisodesWatched: ptr(4)})
	require.NoError(t, err)

	out, err := c.SetStatus(ctx, frieren, domain.OnHold)
	require.NoError(t, err)
	assert.Equal(t, domain.OnHold, out.Record.Status)
	assert.Equal(t, 9, out.Record.Score)
	assert.Equal(t, 4, out.Record.EpisodesWatched)
}

func TestUpdate_Clamps(t *testing.T) {
	c := newTestCoordinator(newGatedRepo())
	ctx := userCtx()

	_, err := c.SetStatus(ctx, frieren, domain.Watching)
	require.NoError(t, err)

	out, err := c.Update(ctx, frieren.ID, domain.Edit{Score: ptr(15), EpisodesWatched: ptr(99)})
	require.NoError(t, err)
	assert.Equal(t, 10, out.Record.Score)
	assert.Equal(t, 28, out.Record.EpisodesWatched)

	out, err = c.Update(ctx, frieren.ID, domain.Edit{Score: ptr(-3), EpisodesWatched: ptr(-1)})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Record.Score)
	assert.Equal(t, 0, out.Record.EpisodesWatched)
}

func TestUpdate_Errors(t *testing.T) {
	c := newTestCoordinator(newGatedRepo())
	ctx := userCtx()

	_, err := c.Update(ctx, frieren.ID, domain.Edit{})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = c.Update(ctx, frieren.ID, domain.Edit{Score: ptr(5)})
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = c.Update(ctx, frieren.ID, domain.Edit{Status: ptr(domain.WatchStatus(9))})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestRemove(t *testing.T) {
	repo := newGatedRepo()
	c := newTestCoordinator(repo)
	ctx := userCtx()

	_, err := c.Remove(ctx, frieren.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = c.SetStatus(ctx, frieren, domain.Dropped)
	require.NoError(t, err)

	out, err := c.Remove(ctx, frieren.ID)
	require.NoError(t, err)
	assert.Nil(t, out.Record)

	rec, err := c.Status(ctx, frieren.ID)
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = repo.MemoryRepo.Get(ctx, "u1", frieren.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestStatus_ReadsThroughInvalidatedLookup(t *testing.T) {
	repo := newGatedRepo()
	c := newTestCoordinator(repo)
	ctx := userCtx()

	rec, err := c.Status(ctx, frieren.ID)
	require.NoError(t, err)
	assert.Nil(t, rec)

	// second read is served from the lookup cache
	_, err = c.Status(ctx, frieren.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(1), repo.reads.Load())

	_, err = c.SetStatus(ctx, frieren, domain.PlanToWatch)
	require.NoError(t, err)

	rec, err = c.Status(ctx, frieren.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.PlanToWatch, rec.Status)
}

func TestSetStatus_OptimisticWhilePending(t *testing.T) {
	repo := newGatedRepo()
	repo.hold()
	c := newTestCoordinator(repo)
	ctx := userCtx()

	res := setAsync(c, ctx, domain.Watching)
	<-repo.started

	rec, err := c.Status(ctx, frieren.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.Watching, rec.Status)

	_, state, _ := c.Snapshot(ctx, frieren.ID)
	assert.Equal(t, PendingWrite, state)

	repo.gate <- struct{}{}
	r := <-res
	require.NoError(t, r.err)
	assert.Equal(t, domain.Watching, r.out.Record.Status)
}

func TestSetStatus_LatestIntentWins(t *testing.T) {
	repo := newGatedRepo()
	repo.hold()
	c := newTestCoordinator(repo)
	ctx := userCtx()

	first := setAsync(c, ctx, domain.Watching)
	<-repo.started

	second := setAsync(c, ctx, domain.Completed)
	require.Eventually(t, visibleStatus(c, ctx, domain.Completed), time.Second, time.Millisecond)

	third := setAsync(c, ctx, domain.Dropped)
	require.Eventually(t, visibleStatus(c, ctx, domain.Dropped), time.Second, time.Millisecond)

	// the queued second intent is replaced before it is ever written
	r2 := <-second
	require.NoError(t, r2.err)
	assert.True(t, r2.out.Superseded)

	repo.gate <- struct{}{}
	r1 := <-first
	require.NoError(t, r1.err)
	assert.True(t, r1.out.Superseded)

	written := <-repo.started
	assert.Equal(t, domain.Dropped, written.Status)
	repo.gate <- struct{}{}

	r3 := <-third
	require.NoError(t, r3.err)
	assert.False(t, r3.out.Superseded)
	assert.Equal(t, domain.Dropped, r3.out.Record.Status)

	stored, err := repo.MemoryRepo.Get(ctx, "u1", frieren.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Dropped, stored.Status)
	assert.Equal(t, int32(2), repo.writes.Load())

	rec, state, _ := c.Snapshot(ctx, frieren.ID)
	assert.Equal(t, Fresh, state)
	assert.Equal(t, domain.Dropped, rec.Status)
}

func TestSetStatus_FailedWriteRollsBack(t *testing.T) {
	repo := newGatedRepo()
	repo.fail = func(rec domain.UserStatus) error {
		if rec.Status == domain.Dropped {
			return errors.Wrap(domain.ErrNetwork, "connection reset")
		}
		return nil
	}
	c := newTestCoordinator(repo)
	ctx := userCtx()

	before, err := c.SetStatus(ctx, frieren, domain.Watching)
	require.NoError(t, err)

	_, err = c.SetStatus(ctx, frieren, domain.Dropped)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNetwork))

	rec, state, ok := c.Snapshot(ctx, frieren.ID)
	require.True(t, ok)
	assert.Equal(t, Error, state)
	assert.Equal(t, before.Record, rec)

	// a second rollback leaves the entry as it is
	c.mu.Lock()
	e := c.entries[entryKey{"u1", frieren.ID}]
	c.rollback(e, err)
	c.mu.Unlock()

	again, state, _ := c.Snapshot(ctx, frieren.ID)
	assert.Equal(t, Error, state)
	assert.Equal(t, rec, again)

	current, err := c.Status(ctx, frieren.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Watching, current.Status)
}

func TestSetStatus_FailedFirstWriteRollsBackToNothing(t *testing.T) {
	repo := newGatedRepo()
	repo.fail = func(domain.UserStatus) error { return domain.ErrNetwork }
	c := newTestCoordinator(repo)
	ctx := userCtx()

	_, err := c.SetStatus(ctx, frieren, domain.Watching)
	require.Error(t, err)

	rec, state, _ := c.Snapshot(ctx, frieren.ID)
	assert.Nil(t, rec)
	assert.Equal(t, Error, state)
}

func TestSetStatus_SupersededFailureIsIgnored(t *testing.T) {
	repo := newGatedRepo()
	repo.hold()
	repo.fail = func(rec domain.UserStatus) error {
		if rec.Status == domain.Watching {
			return domain.ErrNetwork
		}
		return nil
	}
	c := newTestCoordinator(repo)
	ctx := userCtx()

	first := setAsync(c, ctx, domain.Watching)
	<-repo.started

	second := setAsync(c, ctx, domain.OnHold)
	require.Eventually(t, visibleStatus(c, ctx, domain.OnHold), time.Second, time.Millisecond)

	repo.gate <- struct{}{}
	r1 := <-first
	require.NoError(t, r1.err)
	assert.True(t, r1.out.Superseded)

	// no rollback happened while the newer intent was pending
	rec, state, _ := c.Snapshot(ctx, frieren.ID)
	assert.Equal(t, PendingWrite, state)
	assert.Equal(t, domain.OnHold, rec.Status)

	<-repo.started
	repo.gate <- struct{}{}

	r2 := <-second
	require.NoError(t, r2.err)
	assert.Equal(t, domain.OnHold, r2.out.Record.Status)
}

func TestSetStatus_NewerFailureRollsBackToLastConfirmed(t *testing.T) {
	repo := newGatedRepo()
	repo.hold()
	repo.fail = func(rec domain.UserStatus) error {
		if rec.Status == domain.Dropped {
			return domain.ErrNetwork
		}
		return nil
	}
	c := newTestCoordinator(repo)
	ctx := userCtx()

	first := setAsync(c, ctx, domain.Watching)
	<-repo.started

	second := setAsync(c, ctx, domain.Dropped)
	require.Eventually(t, visibleStatus(c, ctx, domain.Dropped), time.Second, time.Millisecond)

	repo.gate <- struct{}{}
	r1 := <-first
	require.NoError(t, r1.err)
	assert.True(t, r1.out.Superseded)

	<-repo.started
	repo.gate <- struct{}{}
	r2 := <-second
	require.Error(t, r2.err)

	rec, state, _ := c.Snapshot(ctx, frieren.ID)
	assert.Equal(t, Error, state)
	require.NotNil(t, rec)
	assert.Equal(t, domain.Watching, rec.Status)
}

func TestSetStatus_CallerCancelDoesNotAbortWrite(t *testing.T) {
	repo := newGatedRepo()
	repo.hold()
	c := newTestCoordinator(repo)

	ctx, cancel := context.WithCancel(userCtx())
	res := setAsync(c, ctx, domain.Watching)
	<-repo.started

	cancel()
	r := <-res
	assert.True(t, errors.Is(r.err, context.Canceled))
	assert.NotEmpty(t, r.out.WriteID)

	repo.gate <- struct{}{}
	assert.Eventually(t, func() bool {
		rec, err := repo.MemoryRepo.Get(context.Background(), "u1", frieren.ID)
		return err == nil && rec.Status == domain.Watching
	}, time.Second, time.Millisecond)
}

func TestOnSettle(t *testing.T) {
	c := newTestCoordinator(newGatedRepo())
	ctx := userCtx()

	var (
		mu      sync.Mutex
		settled []Settled
	)
	c.OnSettle(func(_ context.Context, s Settled) {
		mu.Lock()
		defer mu.Unlock()
		settled = append(settled, s)
	})

	_, err := c.SetStatus(ctx, frieren, domain.Watching)
	require.NoError(t, err)
	_, err = c.SetStatus(ctx, frieren, domain.Completed)
	require.NoError(t, err)
	_, err = c.Remove(ctx, frieren.ID)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, settled, 3)

	assert.Equal(t, opSet, settled[0].Op)
	assert.Nil(t, settled[0].Previous)
	assert.Equal(t, domain.Watching, settled[0].Record.Status)

	assert.Equal(t, domain.Watching, settled[1].Previous.Status)
	assert.Equal(t, domain.Completed, settled[1].Record.Status)

	assert.Equal(t, opRemove, settled[2].Op)
	assert.Equal(t, domain.Completed, settled[2].Previous.Status)
	assert.Nil(t, settled[2].Record)
	assert.Equal(t, "u1", settled[2].UserID)
}

func TestUsersAreIsolated(t *testing.T) {
	c := newTestCoordinator(newGatedRepo())
	alice := userCtx()
	bob := auth.WithSession(context.Background(), auth.Session{UserID: "u2", Username: "bob"})

	_, err := c.SetStatus(alice, frieren, domain.Completed)
	require.NoError(t, err)

	rec, err := c.Status(bob, frieren.ID)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSweep_DropsSettledEntries(t *testing.T) {
	repo := newGatedRepo()
	c := newTestCoordinator(repo)
	ctx := userCtx()

	_, err := c.SetStatus(ctx, frieren, domain.Completed)
	require.NoError(t, err)
	assert.Zero(t, c.Sweep(time.Hour), "settled too recently")

	bebop := domain.ItemRef{ID: 1, Title: "Cowboy Bebop", Episodes: 26}
	repo.hold()
	pending := make(chan error, 1)
	go func() {
		_, err := c.SetStatus(ctx, bebop, domain.Watching)
		pending <- err
	}()
	<-repo.started

	assert.Equal(t, 1, c.Sweep(0))

	_, _, ok := c.Snapshot(ctx, frieren.ID)
	assert.False(t, ok)
	_, state, ok := c.Snapshot(ctx, bebop.ID)
	require.True(t, ok, "entries with a write in flight are kept")
	assert.Equal(t, PendingWrite, state)

	repo.gate <- struct{}{}
	require.NoError(t, <-pending)

	rec, err := c.Status(ctx, frieren.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.Completed, rec.Status)
	assert.Equal(t, 1, c.Sweep(0))
	assert.Empty(t, c.entries)
}

func TestUserPrefix_Exact(t *testing.T) {
	assert.True(t, strings.HasPrefix(LookupKey("a", 1), UserPrefix("a")))
	assert.False(t, strings.HasPrefix(LookupKey("a:b", 1), UserPrefix("a")))
	assert.False(t, strings.HasPrefix(LookupKey("a", 1), UserPrefix("a:b")))
}

func ptr[T any](v T) *T { return &v }
