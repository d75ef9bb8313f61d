// Package filter turns the catalog filter selections into the canonical
// query key used both as a cache address and as the search request.
package filter

import (
	"slices"
	"strings"
)

// FilterState is the user's current catalog selection. Empty strings mean
// the filter is unset. Setters that change a filter reset the page to 1.
type FilterState struct {
	Status string   `json:"status,omitempty"`
	Type   string   `json:"type,omitempty"`
	Rating string   `json:"rating,omitempty"`
	Sort   string   `json:"sort,omitempty"`
	Genres []string `json:"genres,omitempty"`
	Search string   `json:"search,omitempty"`
	Page   int      `json:"page"`
}

// DefaultSort is the sort label selected when browsing starts.
const DefaultSort = "Score"

// NewFilterState returns the initial selection: sorted by score, page 1.
func NewFilterState() FilterState {
	return FilterState{Sort: DefaultSort, Page: 1}
}

func (f *FilterState) SetStatus(v string) { f.set(&f.Status, v) }
func (f *FilterState) SetType(v string)   { f.set(&f.Type, v) }
func (f *FilterState) SetRating(v string) { f.set(&f.Rating, v) }
func (f *FilterState) SetSort(v string)   { f.set(&f.Sort, v) }

// SetSearch sets the free-text query.
func (f *FilterState) SetSearch(v string) { f.set(&f.Search, strings.TrimSpace(v)) }

// SetGenres replaces the selected genres.
func (f *FilterState) SetGenres(names []string) {
	if slices.Equal(f.Genres, names) {
		return
	}
	f.Genres = slices.Clone(names)
	f.Page = 1
}

// ToggleGenre adds name to the selection, or removes it if already selected.
func (f *FilterState) ToggleGenre(name string) {
	if i := slices.Index(f.Genres, name); i >= 0 {
		f.Genres = slices.Delete(slices.Clone(f.Genres), i, i+1)
	} else {
		f.Genres = append(slices.Clone(f.Genres), name)
	}
	f.Page = 1
}

// SetPage moves to page n. Pages below 1 become 1.
func (f *FilterState) SetPage(n int) {
	f.Page = max(n, 1)
}

// Clear unsets every filter, including the sort, and returns to page 1.
func (f *FilterState) Clear() {
	*f = FilterState{Page: 1}
}

func (f *FilterState) set(field *string, v string) {
	if *field == v {
		return
	}
	*field = v
	f.Page = 1
}

var statusValues = map[string]string{
	"Ongoing":   "airing",
	"Finished":  "complete",
	"Announced": "upcoming",
}

var ratingValues = map[string]string{
	"All Ages":                 "g",
	"Children":                 "pg",
	"Teens 13+":                "pg13",
	"17+ (Violence/Profanity)": "r17",
	"Mild Nudity":              "r",
	"Hentai":                   "rx",
}

var sortValues = map[string]string{
	"Score":     "score",
	"Favorites": "favorites",
}

var typeOptions = []string{"TV", "Movie", "OVA", "ONA", "Special", "Music"}

// StatusOptions returns the status labels in display order.
func StatusOptions() []string { return []string{"Ongoing", "Finished", "Announced"} }

// TypeOptions returns the media type labels in display order.
func TypeOptions() []string { return slices.Clone(typeOptions) }

// RatingOptions returns the audience rating labels in display order.
func RatingOptions() []string {
	return []string{"All Ages", "Children", "Teens 13+", "17+ (Violence/Profanity)", "Mild Nudity", "Hentai"}
}

// SortOptions returns the sort labels in display order.
func SortOptions() []string { return []string{"Score", "Favorites"} }
