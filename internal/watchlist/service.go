// Package watchlist serves a user's personal list: newest first, optionally
// filtered to one status, one page at a time.
package watchlist

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/shinkrolist/internal/auth"
	"github.com/varoOP/shinkrolist/internal/domain"
	"github.com/varoOP/shinkrolist/internal/querycache"
	"github.com/varoOP/shinkrolist/pkg/pagerange"
)

// DefaultPageSize is used when the configured page size is not positive.
const DefaultPageSize = 10

// Siblings is the number of pages shown on each side of the current page.
const Siblings = 1

// Query selects one page of the list. A nil Status lists every status.
type Query struct {
	Status *domain.WatchStatus
	Page   int
}

// Page is one rendered page of the list.
type Page struct {
	Records    []domain.UserStatus `json:"records"`
	Total      int                 `json:"total"`
	Page       int                 `json:"page"`
	PageSize   int                 `json:"page_size"`
	TotalPages int                 `json:"total_pages"`
	Pager      []pagerange.Token   `json:"pager,omitempty"`
}

type Service interface {
	List(ctx context.Context, q Query) (*Page, error)
	Counts(ctx context.Context) (domain.StatusCounts, error)
	All(ctx context.Context) ([]domain.UserStatus, error)
	Invalidate(userID string)
}

type service struct {
	log      zerolog.Logger
	repo     domain.StatusRepo
	pageSize int
	lists    *querycache.Cache[*domain.ListResult]
	counts   *querycache.Cache[domain.StatusCounts]
}

func NewService(log zerolog.Logger, repo domain.StatusRepo, pageSize int, lists *querycache.Cache[*domain.ListResult], counts *querycache.Cache[domain.StatusCounts]) Service {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &service{
		log:      log.With().Str("module", "watchlist").Logger(),
		repo:     repo,
		pageSize: pageSize,
		lists:    lists,
		counts:   counts,
	}
}

func userPrefix(userID string) string {
	return "list:" + querycache.KeySegment(userID) + ":"
}

func listKey(userID string, q Query) string {
	status := "all"
	if q.Status != nil {
		status = q.Status.String()
	}
	return fmt.Sprintf("%s%s:%d", userPrefix(userID), status, q.Page)
}

func countsKey(userID string) string {
	return userPrefix(userID) + "counts"
}

func (s *service) List(ctx context.Context, q Query) (*Page, error) {
	sess, err := auth.RequireSession(ctx)
	if err != nil {
		return nil, err
	}
	if q.Status != nil && !q.Status.Valid() {
		return nil, errors.Wrapf(domain.ErrValidation, "invalid status %d", int(*q.Status))
	}
	q.Page = max(q.Page, 1)

	res, err := s.lists.Get(ctx, listKey(sess.UserID, q), func(ctx context.Context) (*domain.ListResult, error) {
		return s.repo.List(ctx, domain.ListQuery{
			UserID:   sess.UserID,
			Status:   q.Status,
			Page:     q.Page,
			PageSize: s.pageSize,
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to load list")
	}

	page := &Page{
		Records:    append([]domain.UserStatus{}, res.Records...),
		Total:      res.Total,
		Page:       q.Page,
		PageSize:   s.pageSize,
		TotalPages: pagerange.TotalPages(res.Total, s.pageSize),
	}
	if pagerange.Visible(page.TotalPages, page.Page) {
		page.Pager = pagerange.Compute(page.TotalPages, page.Page, Siblings)
	}
	return page, nil
}

// Counts returns the number of records per status, plus the overall total.
func (s *service) Counts(ctx context.Context) (domain.StatusCounts, error) {
	sess, err := auth.RequireSession(ctx)
	if err != nil {
		return domain.StatusCounts{}, err
	}

	counts, err := s.counts.Get(ctx, countsKey(sess.UserID), func(ctx context.Context) (domain.StatusCounts, error) {
		return s.repo.Counts(ctx, sess.UserID)
	})
	if err != nil {
		return domain.StatusCounts{}, errors.Wrap(err, "failed to load counts")
	}
	return counts, nil
}

// All returns every record of the caller, newest first. It bypasses the cache.
func (s *service) All(ctx context.Context) ([]domain.UserStatus, error) {
	sess, err := auth.RequireSession(ctx)
	if err != nil {
		return nil, err
	}

	res, err := s.repo.List(ctx, domain.ListQuery{UserID: sess.UserID})
	if err != nil {
		return nil, errors.Wrap(err, "failed to load list")
	}
	return res.Records, nil
}

// Invalidate drops every cached page and count of userID.
func (s *service) Invalidate(userID string) {
	prefix := userPrefix(userID)
	n := s.lists.InvalidatePrefix(prefix)
	n += s.counts.InvalidatePrefix(prefix)
	s.log.Trace().Str("user", userID).Int("evicted", n).Msg("List cache invalidated")
}
