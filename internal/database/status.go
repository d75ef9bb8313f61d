package database

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/shinkrolist/internal/domain"
)

const statusTable = "user_anime_list"

var statusColumns = []string{
	"user_id", "mal_id", "title", "image_url", "type", "status",
	"score", "episodes_total", "episodes_watched", "created_at", "updated_at",
}

// StatusRepo implements domain.StatusRepo
type StatusRepo struct {
	log zerolog.Logger
	db  *DB
	now func() time.Time
}

// NewStatusRepo creates a new status repository
func NewStatusRepo(log zerolog.Logger, db *DB) *StatusRepo {
	return &StatusRepo{
		log: log.With().Str("repo", "status").Logger(),
		db:  db,
		now: time.Now,
	}
}

var _ domain.StatusRepo = (*StatusRepo)(nil)

// Upsert inserts a record or updates the existing one for (user_id, mal_id).
// created_at is kept from the first insert.
func (r *StatusRepo) Upsert(ctx context.Context, rec domain.UserStatus) (*domain.UserStatus, error) {
	if rec.UserID == "" || rec.ItemID <= 0 {
		return nil, errors.Wrap(domain.ErrValidation, "user id and item id are required")
	}
	if !rec.Status.Valid() {
		return nil, errors.Wrapf(domain.ErrValidation, "invalid status %d", int(rec.Status))
	}

	now := r.now().UTC().Truncate(time.Microsecond)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.Score = domain.ClampScore(rec.Score)
	rec.EpisodesTotal = max(rec.EpisodesTotal, 0)
	rec.EpisodesWatched = domain.ClampEpisodes(rec.EpisodesWatched, rec.EpisodesTotal)

	queryBuilder := r.db.squirrel.
		Insert(statusTable).
		Columns(statusColumns...).
		Values(rec.UserID, rec.ItemID, rec.Title, rec.ImageURL, rec.Type, rec.Status.String(),
			rec.Score, rec.EpisodesTotal, rec.EpisodesWatched, rec.CreatedAt, rec.UpdatedAt).
		Suffix(`ON CONFLICT (user_id, mal_id) DO UPDATE SET
			title = excluded.title,
			image_url = excluded.image_url,
			type = excluded.type,
			status = excluded.status,
			score = excluded.score,
			episodes_total = excluded.episodes_total,
			episodes_watched = excluded.episodes_watched,
			updated_at = excluded.updated_at`)

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	r.log.Trace().Str("query", query).Interface("args", args).Msg("Upsert")

	if _, err := r.db.handler.ExecContext(ctx, query, args...); err != nil {
		return nil, domain.NetworkError(err, "error executing query")
	}

	return r.Get(ctx, rec.UserID, rec.ItemID)
}

// Get returns the record for (userID, itemID).
func (r *StatusRepo) Get(ctx context.Context, userID string, itemID int) (*domain.UserStatus, error) {
	queryBuilder := r.db.squirrel.
		Select(statusColumns...).
		From(statusTable).
		Where(sq.Eq{"user_id": userID, "mal_id": itemID})

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	r.log.Trace().Str("query", query).Interface("args", args).Msg("Get")

	rec, err := scanStatus(r.db.handler.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// List returns a page of records, newest first, and the total matching.
func (r *StatusRepo) List(ctx context.Context, q domain.ListQuery) (*domain.ListResult, error) {
	where := sq.Eq{"user_id": q.UserID}
	if q.Status != nil {
		where["status"] = q.Status.String()
	}

	countQuery, countArgs, err := r.db.squirrel.
		Select("COUNT(*)").
		From(statusTable).
		Where(where).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	r.log.Trace().Str("query", countQuery).Interface("args", countArgs).Msg("List count")

	res := &domain.ListResult{Records: []domain.UserStatus{}}
	if err := r.db.handler.QueryRowContext(ctx, countQuery, countArgs...).Scan(&res.Total); err != nil {
		return nil, domain.NetworkError(err, "error executing query")
	}

	queryBuilder := r.db.squirrel.
		Select(statusColumns...).
		From(statusTable).
		Where(where).
		OrderBy("created_at DESC", "mal_id DESC")
	if q.PageSize > 0 {
		queryBuilder = queryBuilder.Limit(uint64(q.PageSize)).Offset(uint64(q.Offset()))
	}

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	r.log.Trace().Str("query", query).Interface("args", args).Msg("List")

	rows, err := r.db.handler.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.NetworkError(err, "error executing query")
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		res.Records = append(res.Records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating rows")
	}

	return res, nil
}

// Counts returns the number of records per status.
func (r *StatusRepo) Counts(ctx context.Context, userID string) (domain.StatusCounts, error) {
	counts := domain.StatusCounts{ByStatus: make(map[domain.WatchStatus]int)}

	queryBuilder := r.db.squirrel.
		Select("status", "COUNT(*)").
		From(statusTable).
		Where(sq.Eq{"user_id": userID}).
		GroupBy("status")

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return counts, errors.Wrap(err, "error building query")
	}

	r.log.Trace().Str("query", query).Interface("args", args).Msg("Counts")

	rows, err := r.db.handler.QueryContext(ctx, query, args...)
	if err != nil {
		return counts, domain.NetworkError(err, "error executing query")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			raw string
			n   int
		)
		if err := rows.Scan(&raw, &n); err != nil {
			return counts, errors.Wrap(err, "error scanning row")
		}
		s, err := domain.ParseWatchStatus(raw)
		if err != nil {
			r.log.Warn().Str("status", raw).Msg("Skipping unknown status")
			continue
		}
		counts.ByStatus[s] = n
		counts.All += n
	}

	if err := rows.Err(); err != nil {
		return counts, errors.Wrap(err, "error iterating rows")
	}

	return counts, nil
}

// Delete removes the record for (userID, itemID).
func (r *StatusRepo) Delete(ctx context.Context, userID string, itemID int) error {
	queryBuilder := r.db.squirrel.
		Delete(statusTable).
		Where(sq.Eq{"user_id": userID, "mal_id": itemID})

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	r.log.Trace().Str("query", query).Interface("args", args).Msg("Delete")

	res, err := r.db.handler.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.NetworkError(err, "error executing query")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "error reading affected rows")
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStatus(row scanner) (*domain.UserStatus, error) {
	var (
		rec    domain.UserStatus
		status string
	)
	err := row.Scan(&rec.UserID, &rec.ItemID, &rec.Title, &rec.ImageURL, &rec.Type, &status,
		&rec.Score, &rec.EpisodesTotal, &rec.EpisodesWatched, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "error scanning row")
	}

	s, err := domain.ParseWatchStatus(status)
	if err != nil {
		return nil, err
	}
	rec.Status = s
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}
