package database

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/varoOP/shinkrolist/internal/domain"
)

func newTestRepo(t *testing.T) (*StatusRepo, *time.Time) {
	t.Helper()
	db, err := NewDB(domain.StoreDriverSQLite, t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	repo := NewStatusRepo(zerolog.Nop(), db)
	repo.now = func() time.Time { return now }
	return repo, &now
}

func TestMigrate_Idempotent(t *testing.T) {
	dir := t.TempDir()
	db, err := NewDB(domain.StoreDriverSQLite, dir, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	require.NoError(t, db.Close())

	db, err = NewDB(domain.StoreDriverSQLite, dir, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, db.Ping(context.Background()))
	require.NoError(t, db.Close())
}

func TestNewDB_UnknownDriver(t *testing.T) {
	_, err := NewDB("mysql", "", zerolog.Nop())
	assert.Error(t, err)
}

func TestUpsert_InsertThenUpdate(t *testing.T) {
	repo, now := newTestRepo(t)
	ctx := context.Background()

	rec := domain.NewUserStatus("u1", domain.ItemRef{ID: 21, Title: "One Piece", Type: "TV"}, domain.Watching)
	created, err := repo.Upsert(ctx, rec)
	require.NoError(t, err)
	assert.True(t, now.Equal(created.CreatedAt))

	*now = now.Add(time.Hour)
	rec.Status = domain.OnHold
	rec.Score = 12
	updated, err := repo.Upsert(ctx, rec)
	require.NoError(t, err)
	assert.True(t, created.CreatedAt.Equal(updated.CreatedAt), "created_at survives updates")
	assert.Equal(t, 10, updated.Score)

	got, err := repo.Get(ctx, "u1", 21)
	require.NoError(t, err)
	assert.Equal(t, domain.OnHold, got.Status)
	assert.Equal(t, 10, got.Score)
	assert.Equal(t, "One Piece", got.Title)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, now.Equal(got.UpdatedAt))
}

func TestUpsert_Validation(t *testing.T) {
	repo, _ := newTestRepo(t)

	_, err := repo.Upsert(context.Background(), domain.UserStatus{ItemID: 1, Status: domain.Watching})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = repo.Upsert(context.Background(), domain.UserStatus{UserID: "u1", ItemID: 1})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestGet_NotFound(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.Get(context.Background(), "u1", 99)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestListAndCounts(t *testing.T) {
	repo, now := newTestRepo(t)
	ctx := context.Background()

	statuses := []domain.WatchStatus{
		domain.Watching, domain.Completed, domain.Watching, domain.PlanToWatch,
		domain.Dropped, domain.Watching, domain.OnHold,
	}
	for i, s := range statuses {
		*now = now.Add(time.Minute)
		_, err := repo.Upsert(ctx, domain.NewUserStatus("u1", domain.ItemRef{ID: i + 1, Title: "t"}, s))
		require.NoError(t, err)
	}
	_, err := repo.Upsert(ctx, domain.NewUserStatus("u2", domain.ItemRef{ID: 1}, domain.Watching))
	require.NoError(t, err)

	all, err := repo.List(ctx, domain.ListQuery{UserID: "u1", Page: 1, PageSize: 3})
	require.NoError(t, err)
	assert.Equal(t, 7, all.Total)
	require.Len(t, all.Records, 3)
	assert.Equal(t, []int{7, 6, 5}, []int{all.Records[0].ItemID, all.Records[1].ItemID, all.Records[2].ItemID})

	last, err := repo.List(ctx, domain.ListQuery{UserID: "u1", Page: 3, PageSize: 3})
	require.NoError(t, err)
	require.Len(t, last.Records, 1)
	assert.Equal(t, 1, last.Records[0].ItemID)

	watching := domain.Watching
	w, err := repo.List(ctx, domain.ListQuery{UserID: "u1", Status: &watching, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, w.Total)
	for _, r := range w.Records {
		assert.Equal(t, domain.Watching, r.Status)
	}

	counts, err := repo.Counts(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 7, counts.All)
	assert.Equal(t, 3, counts.Get(domain.Watching))
	assert.Equal(t, 1, counts.Get(domain.Completed))
	assert.Equal(t, 1, counts.Get(domain.OnHold))

	empty, err := repo.List(ctx, domain.ListQuery{UserID: "nobody", Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Total)
	assert.NotNil(t, empty.Records)
}

func TestDelete(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.Upsert(ctx, domain.NewUserStatus("u1", domain.ItemRef{ID: 5}, domain.Dropped))
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, "u1", 5))
	_, err = repo.Get(ctx, "u1", 5)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	err = repo.Delete(ctx, "u1", 5)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestStatusRepo_CanceledContext(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.Upsert(ctx, domain.NewUserStatus("u1", domain.ItemRef{ID: 1, Title: "Cowboy Bebop"}, domain.Watching))
	assert.True(t, errors.Is(err, domain.ErrNetwork))
	assert.True(t, errors.Is(err, context.Canceled))

	_, err = repo.Counts(ctx, "u1")
	assert.True(t, errors.Is(err, domain.ErrNetwork))
	assert.True(t, errors.Is(err, context.Canceled))
}
