package domain

// Genre is an entry of the catalog's genre vocabulary.
type Genre struct {
	ID    int    `json:"mal_id"`
	Name  string `json:"name"`
	Count int    `json:"count,omitempty"`
}

// CatalogItem is a read-only catalog entry. It never carries per-user data.
type CatalogItem struct {
	ID           int      `json:"mal_id"`
	Title        string   `json:"title"`
	TitleEnglish string   `json:"title_english,omitempty"`
	ImageURL     string   `json:"image_url,omitempty"`
	Type         string   `json:"type,omitempty"`
	Status       string   `json:"status,omitempty"`
	Rating       string   `json:"rating,omitempty"`
	Score        float64  `json:"score,omitempty"`
	Episodes     int      `json:"episodes,omitempty"`
	Year         int      `json:"year,omitempty"`
	Season       string   `json:"season,omitempty"`
	Synopsis     string   `json:"synopsis,omitempty"`
	Genres       []Genre  `json:"genres,omitempty"`
	Studios      []string `json:"studios,omitempty"`
}

// Ref returns the fields copied into a status record.
func (c CatalogItem) Ref() ItemRef {
	return ItemRef{
		ID:       c.ID,
		Title:    c.Title,
		ImageURL: c.ImageURL,
		Type:     c.Type,
		Episodes: c.Episodes,
	}
}

// CatalogPage is one page of catalog search results. A stored page is never
// modified; a refetch replaces it.
type CatalogPage struct {
	Items       []CatalogItem `json:"items"`
	CurrentPage int           `json:"current_page"`
	LastPage    int           `json:"last_visible_page"`
	HasNextPage bool          `json:"has_next_page"`
}
