package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/varoOP/shinkrolist/internal/domain"
)

type memoryKey struct {
	userID string
	itemID int
}

// MemoryRepo implements domain.StatusRepo in memory. Records are lost on
// exit; it backs the "memory" driver and tests.
type MemoryRepo struct {
	mu      sync.RWMutex
	records map[memoryKey]domain.UserStatus
	now     func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		records: make(map[memoryKey]domain.UserStatus),
		now:     time.Now,
	}
}

var _ domain.StatusRepo = (*MemoryRepo)(nil)

func (m *MemoryRepo) Upsert(ctx context.Context, rec domain.UserStatus) (*domain.UserStatus, error) {
	if rec.UserID == "" || rec.ItemID <= 0 {
		return nil, errors.Wrap(domain.ErrValidation, "user id and item id are required")
	}
	if !rec.Status.Valid() {
		return nil, errors.Wrapf(domain.ErrValidation, "invalid status %d", int(rec.Status))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := memoryKey{rec.UserID, rec.ItemID}
	now := m.now().UTC()
	if existing, ok := m.records[key]; ok {
		rec.CreatedAt = existing.CreatedAt
	} else if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.Score = domain.ClampScore(rec.Score)
	rec.EpisodesTotal = max(rec.EpisodesTotal, 0)
	rec.EpisodesWatched = domain.ClampEpisodes(rec.EpisodesWatched, rec.EpisodesTotal)

	m.records[key] = rec
	return &rec, nil
}

func (m *MemoryRepo) Get(ctx context.Context, userID string, itemID int) (*domain.UserStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[memoryKey{userID, itemID}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

func (m *MemoryRepo) List(ctx context.Context, q domain.ListQuery) (*domain.ListResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := []domain.UserStatus{}
	for k, rec := range m.records {
		if k.userID != q.UserID {
			continue
		}
		if q.Status != nil && rec.Status != *q.Status {
			continue
		}
		matched = append(matched, rec)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ItemID > matched[j].ItemID
	})

	res := &domain.ListResult{Records: []domain.UserStatus{}, Total: len(matched)}
	if q.PageSize <= 0 {
		res.Records = matched
		return res, nil
	}

	start := min(q.Offset(), len(matched))
	end := min(start+q.PageSize, len(matched))
	res.Records = append(res.Records, matched[start:end]...)
	return res, nil
}

func (m *MemoryRepo) Counts(ctx context.Context, userID string) (domain.StatusCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := domain.StatusCounts{ByStatus: make(map[domain.WatchStatus]int)}
	for k, rec := range m.records {
		if k.userID != userID {
			continue
		}
		counts.ByStatus[rec.Status]++
		counts.All++
	}
	return counts, nil
}

func (m *MemoryRepo) Delete(ctx context.Context, userID string, itemID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memoryKey{userID, itemID}
	if _, ok := m.records[key]; !ok {
		return domain.ErrNotFound
	}
	delete(m.records, key)
	return nil
}
