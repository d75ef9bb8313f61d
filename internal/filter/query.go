package filter

import (
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// PageSize is the fixed number of catalog items requested per page.
const PageSize = 25

// GenreLookup resolves a genre name to the catalog's numeric id.
type GenreLookup interface {
	GenreID(name string) (int, bool)
}

// GenreLookupFunc adapts a function to GenreLookup.
type GenreLookupFunc func(name string) (int, bool)

func (f GenreLookupFunc) GenreID(name string) (int, bool) { return f(name) }

// QueryKey is the canonical form of a selection. Two selections that produce
// equal keys are the same cache entry. Unset fields are empty and left out
// of the encoded form.
type QueryKey struct {
	Status  string
	Type    string
	Rating  string
	OrderBy string
	Genres  string
	Query   string
	Page    int
}

// Translate maps the selection labels onto the catalog vocabulary. Unknown
// labels and unresolved genre names are dropped, never sent.
func Translate(state FilterState, lookup GenreLookup) QueryKey {
	return QueryKey{
		Status:  statusValues[state.Status],
		Type:    typeValue(state.Type),
		Rating:  ratingValues[state.Rating],
		OrderBy: sortValues[state.Sort],
		Genres:  genreIDs(state.Genres, lookup),
		Query:   strings.TrimSpace(state.Search),
		Page:    max(state.Page, 1),
	}
}

func typeValue(label string) string {
	if !slices.Contains(typeOptions, label) {
		return ""
	}
	return strings.ToLower(label)
}

func genreIDs(names []string, lookup GenreLookup) string {
	if lookup == nil || len(names) == 0 {
		return ""
	}

	ids := make([]int, 0, len(names))
	for _, name := range names {
		if id, ok := lookup.GenreID(name); ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

// WithPage returns the key for page n of the same selection.
func (k QueryKey) WithPage(n int) QueryKey {
	k.Page = max(n, 1)
	return k
}

// SameSelection reports whether k and o differ at most in their page.
func (k QueryKey) SameSelection(o QueryKey) bool {
	return k.WithPage(1) == o.WithPage(1)
}

// Reconcile returns next, forced back to page 1 when its selection differs
// from prev.
func Reconcile(prev, next QueryKey) QueryKey {
	if prev.SameSelection(next) {
		return next
	}
	return next.WithPage(1)
}

// Values returns the search request parameters, including the fixed page
// size and descending order that are not part of the key.
func (k QueryKey) Values() url.Values {
	v := k.values()
	v.Set("limit", strconv.Itoa(PageSize))
	if k.OrderBy != "" {
		v.Set("sort", "desc")
	}
	return v
}

func (k QueryKey) values() url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(max(k.Page, 1)))
	set := func(name, val string) {
		if val != "" {
			v.Set(name, val)
		}
	}
	set("q", k.Query)
	set("status", k.Status)
	set("type", k.Type)
	set("rating", k.Rating)
	set("genres", k.Genres)
	set("order_by", k.OrderBy)
	return v
}

// String is the cache address of the key.
func (k QueryKey) String() string {
	return "anime?" + k.values().Encode()
}
