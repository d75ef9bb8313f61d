// Package status applies a user's status changes optimistically: the new
// value is visible at once, written to the store in the background, and
// rolled back to the last confirmed value if the write fails. For any one
// item at most one write is in flight and the most recent request wins.
package status

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/shinkrolist/internal/auth"
	"github.com/varoOP/shinkrolist/internal/domain"
	"github.com/varoOP/shinkrolist/internal/metrics"
	"github.com/varoOP/shinkrolist/internal/querycache"
)

// EntryState is the sync state of one (user, item) overlay entry.
type EntryState int

const (
	Idle EntryState = iota
	PendingWrite
	Fresh
	Error
)

func (s EntryState) String() string {
	switch s {
	case PendingWrite:
		return "pending-write"
	case Fresh:
		return "fresh"
	case Error:
		return "error"
	}
	return "idle"
}

const (
	opSet    = "set"
	opUpdate = "update"
	opRemove = "remove"
)

// Outcome is the result of one status request.
type Outcome struct {
	WriteID string `json:"write_id"`
	// Record is the stored record, nil after a removal.
	Record *domain.UserStatus `json:"record"`
	// Superseded is set when a later request for the same item replaced
	// this one before it was written.
	Superseded bool `json:"superseded"`
}

// Settled describes a confirmed write.
type Settled struct {
	UserID   string
	ItemID   int
	Op       string
	Previous *domain.UserStatus
	Record   *domain.UserStatus
}

// LookupKey is the status lookup cache key for (userID, itemID).
func LookupKey(userID string, itemID int) string {
	return fmt.Sprintf("%s%d", UserPrefix(userID), itemID)
}

// UserPrefix is the lookup cache key prefix shared by every record of userID.
func UserPrefix(userID string) string {
	return "status:" + querycache.KeySegment(userID) + ":"
}

type entryKey struct {
	userID string
	itemID int
}

type reply struct {
	out Outcome
	err error
}

type intent struct {
	id   string
	op   string
	rec  *domain.UserStatus // nil removes the record
	done chan reply
}

type entry struct {
	confirmed *domain.UserStatus
	visible   *domain.UserStatus
	state     EntryState
	err       error
	inflight  bool
	next      *intent
	settledAt time.Time
}

type Coordinator struct {
	log     zerolog.Logger
	repo    domain.StatusRepo
	lookup  *querycache.Cache[*domain.UserStatus]
	metrics *metrics.Metrics

	mu        sync.Mutex
	entries   map[entryKey]*entry
	listeners []func(context.Context, Settled)
}

// NewCoordinator returns a coordinator writing to repo. lookup is the
// shared status lookup cache; every reader of a status should go through it
// or through Status.
func NewCoordinator(log zerolog.Logger, repo domain.StatusRepo, lookup *querycache.Cache[*domain.UserStatus], m *metrics.Metrics) *Coordinator {
	return &Coordinator{
		log:     log.With().Str("module", "status").Logger(),
		repo:    repo,
		lookup:  lookup,
		metrics: m,
		entries: make(map[entryKey]*entry),
	}
}

// OnSettle registers fn to run after every confirmed write.
func (c *Coordinator) OnSettle(fn func(context.Context, Settled)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Status returns the caller's record for itemID, or nil when there is none
// or the caller is anonymous. While a write is pending the optimistic value
// is returned.
func (c *Coordinator) Status(ctx context.Context, itemID int) (*domain.UserStatus, error) {
	sess, ok := auth.SessionFromContext(ctx)
	if !ok {
		return nil, nil
	}

	c.mu.Lock()
	if e, ok := c.entries[entryKey{sess.UserID, itemID}]; ok && e.state == PendingWrite {
		rec := e.visible.Clone()
		c.mu.Unlock()
		return rec, nil
	}
	c.mu.Unlock()

	return c.load(ctx, sess.UserID, itemID)
}

// Snapshot returns the overlay entry for itemID without touching the store.
// ok is false when the item has not been written through this coordinator.
func (c *Coordinator) Snapshot(ctx context.Context, itemID int) (rec *domain.UserStatus, state EntryState, ok bool) {
	sess, authed := auth.SessionFromContext(ctx)
	if !authed {
		return nil, Idle, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[entryKey{sess.UserID, itemID}]
	if !ok {
		return nil, Idle, false
	}
	return e.visible.Clone(), e.state, true
}

// SetStatus sets the status of item, creating the record if needed.
// Entering Completed fills the watched count when the total is known.
func (c *Coordinator) SetStatus(ctx context.Context, item domain.ItemRef, s domain.WatchStatus) (Outcome, error) {
	sess, err := auth.RequireSession(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if item.ID <= 0 {
		return Outcome{}, errors.Wrapf(domain.ErrValidation, "invalid anime id %d", item.ID)
	}
	if !s.Valid() {
		return Outcome{}, errors.Wrapf(domain.ErrValidation, "invalid status %d", int(s))
	}

	return c.mutate(ctx, sess.UserID, item.ID, opSet, func(base *domain.UserStatus) (*domain.UserStatus, error) {
		if base == nil {
			rec := domain.NewUserStatus(sess.UserID, item, s)
			return &rec, nil
		}
		rec := *base
		if item.Title != "" {
			rec.Title = item.Title
		}
		if item.ImageURL != "" {
			rec.ImageURL = item.ImageURL
		}
		if item.Type != "" {
			rec.Type = item.Type
		}
		if item.Episodes > 0 {
			rec.EpisodesTotal = item.Episodes
		}
		rec = domain.ApplyStatus(rec, s)
		return &rec, nil
	})
}

// Update applies edit to an existing record. Out-of-range values are clamped.
func (c *Coordinator) Update(ctx context.Context, itemID int, edit domain.Edit) (Outcome, error) {
	sess, err := auth.RequireSession(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if edit.Empty() {
		return Outcome{}, errors.Wrap(domain.ErrValidation, "nothing to update")
	}
	if edit.Status != nil && !edit.Status.Valid() {
		return Outcome{}, errors.Wrapf(domain.ErrValidation, "invalid status %d", int(*edit.Status))
	}

	return c.mutate(ctx, sess.UserID, itemID, opUpdate, func(base *domain.UserStatus) (*domain.UserStatus, error) {
		if base == nil {
			return nil, errors.Wrapf(domain.ErrNotFound, "anime %d is not on the list", itemID)
		}
		rec := edit.Apply(*base)
		return &rec, nil
	})
}

// Remove deletes the record for itemID.
func (c *Coordinator) Remove(ctx context.Context, itemID int) (Outcome, error) {
	sess, err := auth.RequireSession(ctx)
	if err != nil {
		return Outcome{}, err
	}

	return c.mutate(ctx, sess.UserID, itemID, opRemove, func(base *domain.UserStatus) (*domain.UserStatus, error) {
		if base == nil {
			return nil, errors.Wrapf(domain.ErrNotFound, "anime %d is not on the list", itemID)
		}
		return nil, nil
	})
}

// mutate applies build to the visible record and queues the result as the
// item's latest intent. It waits for that intent to settle or be superseded.
func (c *Coordinator) mutate(ctx context.Context, userID string, itemID int, op string, build func(base *domain.UserStatus) (*domain.UserStatus, error)) (Outcome, error) {
	key := entryKey{userID, itemID}

	c.mu.Lock()
	e, ok := c.entries[key]
	busy := ok && e.inflight
	c.mu.Unlock()

	// Without a write in flight the base is the stored record.
	var stored *domain.UserStatus
	if !busy {
		var err error
		if stored, err = c.load(ctx, userID, itemID); err != nil {
			return Outcome{}, err
		}
	}

	c.mu.Lock()
	e, ok = c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	if !e.inflight && !busy {
		e.confirmed = stored
		e.visible = stored.Clone()
	} else if !e.inflight {
		// the write we saw finished before we got here
		stored = e.confirmed.Clone()
		e.visible = stored.Clone()
	}

	desired, err := build(e.visible.Clone())
	if err != nil {
		c.mu.Unlock()
		return Outcome{}, err
	}

	in := &intent{
		id:   ulid.Make().String(),
		op:   op,
		rec:  desired,
		done: make(chan reply, 1),
	}

	e.visible = desired.Clone()
	e.state = PendingWrite
	e.err = nil

	if e.inflight {
		if e.next != nil {
			c.supersede(e.next)
		}
		e.next = in
		c.mu.Unlock()
		c.log.Debug().Str("write_id", in.id).Str("user", userID).Int("anime", itemID).Msg("Queued behind in-flight write")
	} else {
		e.inflight = true
		c.mu.Unlock()
		go c.drive(context.WithoutCancel(ctx), key, e, in)
	}

	select {
	case r := <-in.done:
		return r.out, r.err
	case <-ctx.Done():
		return Outcome{WriteID: in.id}, ctx.Err()
	}
}

// drive writes intents for one entry until no newer intent is queued.
func (c *Coordinator) drive(ctx context.Context, key entryKey, e *entry, in *intent) {
	for in != nil {
		c.mu.Lock()
		previous := e.confirmed.Clone()
		c.mu.Unlock()

		start := time.Now()
		rec, err := c.write(ctx, key, in)

		c.mu.Lock()
		if err == nil {
			e.confirmed = rec.Clone()
		}

		if next := e.next; next != nil {
			e.next = nil
			c.mu.Unlock()

			c.log.Debug().Str("write_id", in.id).Err(err).Msg("Write superseded by newer intent")
			c.metrics.StatusWrite(in.op, "superseded", time.Since(start))
			c.supersede(in)
			in = next
			continue
		}

		e.inflight = false
		e.settledAt = time.Now()
		if err != nil {
			c.rollback(e, err)
			c.mu.Unlock()

			c.log.Error().Err(err).Str("write_id", in.id).Str("user", key.userID).Int("anime", key.itemID).Msg("Status write failed, rolled back")
			c.metrics.StatusWrite(in.op, "error", time.Since(start))
			in.done <- reply{out: Outcome{WriteID: in.id}, err: err}
			return
		}

		e.visible = rec.Clone()
		e.state = Fresh
		listeners := append([]func(context.Context, Settled){}, c.listeners...)
		c.mu.Unlock()

		c.lookup.Invalidate(LookupKey(key.userID, key.itemID))
		c.metrics.StatusWrite(in.op, "ok", time.Since(start))
		c.log.Info().Str("write_id", in.id).Str("user", key.userID).Int("anime", key.itemID).Str("op", in.op).Msg("Status saved")

		settled := Settled{UserID: key.userID, ItemID: key.itemID, Op: in.op, Previous: previous, Record: rec.Clone()}
		for _, fn := range listeners {
			fn(ctx, settled)
		}

		in.done <- reply{out: Outcome{WriteID: in.id, Record: rec}}
		return
	}
}

func (c *Coordinator) write(ctx context.Context, key entryKey, in *intent) (*domain.UserStatus, error) {
	if in.rec == nil {
		err := c.repo.Delete(ctx, key.userID, key.itemID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, errors.Wrap(err, "failed to remove status")
		}
		return nil, nil
	}

	rec, err := c.repo.Upsert(ctx, *in.rec)
	if err != nil {
		return nil, errors.Wrap(err, "failed to save status")
	}
	return rec, nil
}

// rollback restores the last confirmed value. It must be called with mu
// held and may be repeated.
func (c *Coordinator) rollback(e *entry, err error) {
	e.visible = e.confirmed.Clone()
	e.state = Error
	e.err = err
}

// Name identifies the coordinator next to the caches it is swept with.
func (c *Coordinator) Name() string {
	return "status-overlay"
}

// Sweep drops overlay entries that have no write in flight and settled at
// least olderThan ago. Later reads fall through to the lookup cache.
func (c *Coordinator) Sweep(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)

	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, e := range c.entries {
		if e.inflight || e.next != nil || e.settledAt.After(cutoff) {
			continue
		}
		delete(c.entries, k)
		n++
	}
	return n
}

func (c *Coordinator) supersede(in *intent) {
	in.done <- reply{out: Outcome{WriteID: in.id, Superseded: true}}
}

// load reads the stored record through the lookup cache. No record is nil.
func (c *Coordinator) load(ctx context.Context, userID string, itemID int) (*domain.UserStatus, error) {
	rec, err := c.lookup.Get(ctx, LookupKey(userID, itemID), func(ctx context.Context) (*domain.UserStatus, error) {
		rec, err := c.repo.Get(ctx, userID, itemID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return rec, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to load status")
	}
	return rec.Clone(), nil
}
