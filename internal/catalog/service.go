package catalog

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/shinkrolist/internal/domain"
	"github.com/varoOP/shinkrolist/internal/filter"
	"github.com/varoOP/shinkrolist/internal/genre"
	"github.com/varoOP/shinkrolist/internal/querycache"
	"github.com/varoOP/shinkrolist/pkg/pagerange"
)

// Siblings is the number of pages shown on each side of the current page.
const Siblings = 1

type Service interface {
	Key(ctx context.Context, state filter.FilterState) (filter.QueryKey, error)
	Page(ctx context.Context, key filter.QueryKey) (*domain.CatalogPage, error)
	Browse(ctx context.Context, state filter.FilterState) (*Result, error)
	Detail(ctx context.Context, id int) (*domain.CatalogItem, error)
	Genres(ctx context.Context) ([]domain.Genre, error)
}

// Result is a rendered catalog page.
type Result struct {
	Key   filter.QueryKey     `json:"-"`
	Page  *domain.CatalogPage `json:"page"`
	Pager []pagerange.Token   `json:"pager,omitempty"`
}

type service struct {
	log     zerolog.Logger
	client  domain.CatalogClient
	genres  genre.Service
	pages   *querycache.Cache[*domain.CatalogPage]
	details *querycache.Cache[*domain.CatalogItem]
}

func NewService(log zerolog.Logger, client domain.CatalogClient, genres genre.Service, pages *querycache.Cache[*domain.CatalogPage], details *querycache.Cache[*domain.CatalogItem]) Service {
	return &service{
		log:     log.With().Str("module", "catalog").Logger(),
		client:  client,
		genres:  genres,
		pages:   pages,
		details: details,
	}
}

// Key translates state. The genre vocabulary is only loaded when genres
// are selected.
func (s *service) Key(ctx context.Context, state filter.FilterState) (filter.QueryKey, error) {
	var lookup filter.GenreLookup
	if len(state.Genres) > 0 {
		v, err := s.genres.Vocabulary(ctx)
		if err != nil {
			return filter.QueryKey{}, err
		}
		lookup = v
	}
	return filter.Translate(state, lookup), nil
}

func (s *service) Page(ctx context.Context, key filter.QueryKey) (*domain.CatalogPage, error) {
	return s.pages.Get(ctx, key.String(), func(ctx context.Context) (*domain.CatalogPage, error) {
		s.log.Debug().Str("key", key.String()).Msg("Fetching catalog page")
		return s.client.Search(ctx, key.Values())
	})
}

func (s *service) Browse(ctx context.Context, state filter.FilterState) (*Result, error) {
	key, err := s.Key(ctx, state)
	if err != nil {
		return nil, err
	}

	page, err := s.Page(ctx, key)
	if err != nil {
		return nil, err
	}

	return NewResult(key, page), nil
}

func (s *service) Detail(ctx context.Context, id int) (*domain.CatalogItem, error) {
	if id <= 0 {
		return nil, errors.Wrapf(domain.ErrValidation, "invalid anime id %d", id)
	}
	return s.details.Get(ctx, "anime/"+strconv.Itoa(id), func(ctx context.Context) (*domain.CatalogItem, error) {
		return s.client.Anime(ctx, id)
	})
}

func (s *service) Genres(ctx context.Context) ([]domain.Genre, error) {
	return s.genres.Genres(ctx)
}

// NewResult pairs a page with its pager. The pager is empty when there is
// only one page.
func NewResult(key filter.QueryKey, page *domain.CatalogPage) *Result {
	r := &Result{Key: key, Page: page}
	if page != nil && pagerange.Visible(page.LastPage, page.CurrentPage) {
		r.Pager = pagerange.Compute(page.LastPage, page.CurrentPage, Siblings)
	}
	return r
}
