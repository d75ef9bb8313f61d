package jikan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/shinkrolist/internal/domain"
)

const DefaultBaseURL = "https://api.jikan.moe/v4"

type Client struct {
	log     zerolog.Logger
	baseURL string
	http    *http.Client
}

var _ domain.CatalogClient = (*Client)(nil)

type userAgentTransport struct {
	Transport http.RoundTripper
	UserAgent string
}

// RoundTrip is safe for concurrent use and leaves req untouched.
func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.UserAgent)
	req.Header.Set("Accept", "application/json")
	return next.RoundTrip(req)
}

func NewClient(log zerolog.Logger, baseURL string, timeout time.Duration, version string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		log:     log.With().Str("module", "jikan").Logger(),
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: &userAgentTransport{Transport: http.DefaultTransport, UserAgent: "shinkrolist/" + version},
		},
	}
}

type imageSet struct {
	JPG struct {
		ImageURL      string `json:"image_url"`
		LargeImageURL string `json:"large_image_url"`
	} `json:"jpg"`
}

type named struct {
	MalID int    `json:"mal_id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type anime struct {
	MalID        int      `json:"mal_id"`
	Title        string   `json:"title"`
	TitleEnglish string   `json:"title_english"`
	Images       imageSet `json:"images"`
	Type         string   `json:"type"`
	Status       string   `json:"status"`
	Rating       string   `json:"rating"`
	Score        float64  `json:"score"`
	Episodes     int      `json:"episodes"`
	Year         int      `json:"year"`
	Season       string   `json:"season"`
	Synopsis     string   `json:"synopsis"`
	Genres       []named  `json:"genres"`
	Studios      []named  `json:"studios"`
}

type searchResponse struct {
	Data       []anime `json:"data"`
	Pagination struct {
		CurrentPage     int  `json:"current_page"`
		LastVisiblePage int  `json:"last_visible_page"`
		HasNextPage     bool `json:"has_next_page"`
	} `json:"pagination"`
}

type animeResponse struct {
	Data anime `json:"data"`
}

type genresResponse struct {
	Data []named `json:"data"`
}

func (a anime) toDomain() domain.CatalogItem {
	item := domain.CatalogItem{
		ID:           a.MalID,
		Title:        a.Title,
		TitleEnglish: a.TitleEnglish,
		ImageURL:     a.Images.JPG.LargeImageURL,
		Type:         a.Type,
		Status:       a.Status,
		Rating:       a.Rating,
		Score:        a.Score,
		Episodes:     a.Episodes,
		Year:         a.Year,
		Season:       a.Season,
		Synopsis:     a.Synopsis,
	}
	if item.ImageURL == "" {
		item.ImageURL = a.Images.JPG.ImageURL
	}
	for _, g := range a.Genres {
		item.Genres = append(item.Genres, domain.Genre{ID: g.MalID, Name: g.Name})
	}
	for _, s := range a.Studios {
		item.Studios = append(item.Studios, s.Name)
	}
	return item
}

// Search runs a catalog search with the given query parameters.
func (c *Client) Search(ctx context.Context, params map[string][]string) (*domain.CatalogPage, error) {
	var resp searchResponse
	if err := c.get(ctx, "/anime", url.Values(params), &resp); err != nil {
		return nil, errors.Wrap(err, "failed to search catalog")
	}

	page := &domain.CatalogPage{
		Items:       make([]domain.CatalogItem, 0, len(resp.Data)),
		CurrentPage: resp.Pagination.CurrentPage,
		LastPage:    resp.Pagination.LastVisiblePage,
		HasNextPage: resp.Pagination.HasNextPage,
	}
	for _, a := range resp.Data {
		page.Items = append(page.Items, a.toDomain())
	}

	c.log.Debug().Int("items", len(page.Items)).Int("page", page.CurrentPage).Int("last_page", page.LastPage).Msg("catalog search")
	return page, nil
}

// Anime fetches a single item with its full details.
func (c *Client) Anime(ctx context.Context, id int) (*domain.CatalogItem, error) {
	var resp animeResponse
	if err := c.get(ctx, "/anime/"+strconv.Itoa(id), nil, &resp); err != nil {
		return nil, errors.Wrapf(err, "failed to fetch anime %d", id)
	}
	item := resp.Data.toDomain()
	return &item, nil
}

// Genres fetches the genre vocabulary.
func (c *Client) Genres(ctx context.Context) ([]domain.Genre, error) {
	var resp genresResponse
	if err := c.get(ctx, "/genres/anime", nil, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to fetch genres")
	}

	genres := make([]domain.Genre, 0, len(resp.Data))
	for _, g := range resp.Data {
		genres = append(genres, domain.Genre{ID: g.MalID, Name: g.Name, Count: g.Count})
	}
	return genres, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, v any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}

	c.log.Trace().Str("url", u).Msg("GET")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.NetworkError(err, "catalog request failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Wrap(domain.ErrNetwork, fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return domain.NetworkError(err, "failed to decode response")
	}
	return nil
}
