package domain

import (
	"context"
)

// StatusRepo defines the interface for personal status storage, keyed by
// (user, item).
type StatusRepo interface {
	// Upsert inserts rec or replaces the existing record for the same key.
	Upsert(ctx context.Context, rec UserStatus) (*UserStatus, error)
	// Get returns ErrNotFound when the user has no record for the item.
	Get(ctx context.Context, userID string, itemID int) (*UserStatus, error)
	List(ctx context.Context, q ListQuery) (*ListResult, error)
	Counts(ctx context.Context, userID string) (StatusCounts, error)
	// Delete returns ErrNotFound when nothing was removed.
	Delete(ctx context.Context, userID string, itemID int) error
}

// ListQuery selects a page of a user's records, newest first.
type ListQuery struct {
	UserID   string
	Status   *WatchStatus
	Page     int
	PageSize int
}

// Offset returns the row offset of the page.
func (q ListQuery) Offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * q.PageSize
}

// ListResult is a page of records plus the total matching the filter.
type ListResult struct {
	Records []UserStatus `json:"records"`
	Total   int          `json:"total"`
}

// CatalogClient is the read-only remote catalog.
type CatalogClient interface {
	Search(ctx context.Context, params map[string][]string) (*CatalogPage, error)
	Anime(ctx context.Context, id int) (*CatalogItem, error)
	Genres(ctx context.Context) ([]Genre, error)
}
