package catalog

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/varoOP/shinkrolist/internal/domain"
	"github.com/varoOP/shinkrolist/internal/filter"
)

// Browser is one user's browsing session. It keeps showing the last
// resolved page while a new selection loads, and drops responses for
// selections that are no longer active.
type Browser struct {
	svc Service

	mu      sync.Mutex
	state   filter.FilterState
	active  filter.QueryKey
	started bool
	shown   *Result
	loading bool
	err     error
}

// View is what the session currently displays.
type View struct {
	State   filter.FilterState
	Result  *Result
	Loading bool
	Err     error
}

func NewBrowser(svc Service, state filter.FilterState) *Browser {
	return &Browser{svc: svc, state: state}
}

// Update changes the selection through fn and returns the new state.
func (b *Browser) Update(fn func(*filter.FilterState)) filter.FilterState {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.state)
	return b.state
}

// View returns the current display without loading anything.
func (b *Browser) View() View {
	b.mu.Lock()
	defer b.mu.Unlock()
	return View{State: b.state, Result: b.shown, Loading: b.loading, Err: b.err}
}

// Load fetches the page for the current selection. It returns
// domain.ErrSuperseded when the selection changed while loading; the page
// is still cached for later.
func (b *Browser) Load(ctx context.Context) (*Result, error) {
	b.mu.Lock()
	state := b.state
	b.mu.Unlock()

	key, err := b.svc.Key(ctx, state)
	if err != nil {
		return nil, b.fail(nil, err)
	}

	b.mu.Lock()
	if b.started {
		if fixed := filter.Reconcile(b.active, key); fixed != key {
			key = fixed
			b.state.Page = 1
		}
	}
	b.active = key
	b.started = true
	b.loading = true
	b.err = nil
	b.mu.Unlock()

	page, err := b.svc.Page(ctx, key)
	if err != nil {
		return nil, b.fail(&key, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active != key {
		return nil, errors.Wrapf(domain.ErrSuperseded, "response for %s", key)
	}
	b.shown = NewResult(key, page)
	b.loading = false
	return b.shown, nil
}

func (b *Browser) fail(key *filter.QueryKey, err error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if key != nil && b.active != *key {
		return errors.Wrapf(domain.ErrSuperseded, "response for %s", *key)
	}
	b.loading = false
	b.err = err
	return err
}
