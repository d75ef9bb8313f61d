package genre

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/shinkrolist/internal/domain"
	"github.com/varoOP/shinkrolist/internal/filter"
	"github.com/varoOP/shinkrolist/internal/querycache"
)

const cacheKey = "genres/anime"

type Service interface {
	Genres(ctx context.Context) ([]domain.Genre, error)
	Vocabulary(ctx context.Context) (*Vocabulary, error)
}

type service struct {
	log    zerolog.Logger
	client domain.CatalogClient
	cache  *querycache.Cache[*Vocabulary]
}

// NewService returns a genre service. cache should never expire: the
// vocabulary is fetched once per process.
func NewService(log zerolog.Logger, client domain.CatalogClient, cache *querycache.Cache[*Vocabulary]) Service {
	return &service{
		log:    log.With().Str("module", "genre").Logger(),
		client: client,
		cache:  cache,
	}
}

func (s *service) Genres(ctx context.Context) ([]domain.Genre, error) {
	v, err := s.Vocabulary(ctx)
	if err != nil {
		return nil, err
	}
	return v.Genres(), nil
}

func (s *service) Vocabulary(ctx context.Context) (*Vocabulary, error) {
	return s.cache.Get(ctx, cacheKey, func(ctx context.Context) (*Vocabulary, error) {
		genres, err := s.client.Genres(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load genre vocabulary")
		}
		s.log.Debug().Int("genres", len(genres)).Msg("Loaded genre vocabulary")
		return NewVocabulary(genres), nil
	})
}

// Vocabulary resolves genre names to ids. It is immutable.
type Vocabulary struct {
	genres []domain.Genre
	byName map[string]int
	names  []string
}

var _ filter.GenreLookup = (*Vocabulary)(nil)

func NewVocabulary(genres []domain.Genre) *Vocabulary {
	v := &Vocabulary{
		genres: append([]domain.Genre(nil), genres...),
		byName: make(map[string]int, len(genres)),
	}
	sort.SliceStable(v.genres, func(i, j int) bool {
		return v.genres[i].Name < v.genres[j].Name
	})
	for _, g := range v.genres {
		key := normalize(g.Name)
		if _, dup := v.byName[key]; dup {
			continue
		}
		v.byName[key] = g.ID
		v.names = append(v.names, key)
	}
	return v
}

// Genres returns the vocabulary sorted by name.
func (v *Vocabulary) Genres() []domain.Genre {
	return append([]domain.Genre(nil), v.genres...)
}

// GenreID matches name ignoring case and punctuation, then falls back to a
// fuzzy match when exactly one genre matches.
func (v *Vocabulary) GenreID(name string) (int, bool) {
	key := normalize(name)
	if key == "" {
		return 0, false
	}
	if id, ok := v.byName[key]; ok {
		return id, true
	}

	ranks := fuzzy.RankFindFold(key, v.names)
	if len(ranks) != 1 {
		return 0, false
	}
	return v.byName[ranks[0].Target], true
}

func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
