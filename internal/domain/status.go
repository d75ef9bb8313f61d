package domain

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// WatchStatus is the user's relation to a catalog item. An item with no
// record has no status; there is no "none" value.
type WatchStatus int

const (
	PlanToWatch WatchStatus = iota + 1
	Watching
	Completed
	Dropped
	OnHold
)

var watchStatusValues = map[WatchStatus]string{
	PlanToWatch: "plan_to_watch",
	Watching:    "watching",
	Completed:   "completed",
	Dropped:     "dropped",
	OnHold:      "on_hold",
}

var watchStatusLabels = map[WatchStatus]string{
	PlanToWatch: "Plan to Watch",
	Watching:    "Watching",
	Completed:   "Completed",
	Dropped:     "Dropped",
	OnHold:      "On Hold",
}

// AllWatchStatuses returns every status in display order.
func AllWatchStatuses() []WatchStatus {
	return []WatchStatus{Watching, Completed, PlanToWatch, Dropped, OnHold}
}

// ParseWatchStatus accepts the stored value ("plan_to_watch") or the display
// label ("Plan to Watch"), ignoring case and surrounding space.
func ParseWatchStatus(s string) (WatchStatus, error) {
	norm := strings.Join(strings.Fields(strings.ToLower(s)), "_")
	norm = strings.ReplaceAll(norm, "-", "_")
	for st, v := range watchStatusValues {
		if v == norm {
			return st, nil
		}
	}
	return 0, errors.Wrapf(ErrValidation, "unknown watch status %q", s)
}

// Valid reports whether s is one of the five statuses.
func (s WatchStatus) Valid() bool {
	_, ok := watchStatusValues[s]
	return ok
}

// String returns the stored value.
func (s WatchStatus) String() string {
	if v, ok := watchStatusValues[s]; ok {
		return v
	}
	return "unknown"
}

// Label returns the human readable name.
func (s WatchStatus) Label() string {
	if v, ok := watchStatusLabels[s]; ok {
		return v
	}
	return "Unknown"
}

func (s WatchStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, errors.Wrapf(ErrValidation, "invalid watch status %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *WatchStatus) UnmarshalText(b []byte) error {
	v, err := ParseWatchStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// MaxScore is the highest score a user can give.
const MaxScore = 10

// UserStatus is the per-user record attached to a catalog item.
type UserStatus struct {
	UserID          string      `json:"user_id" yaml:"-"`
	ItemID          int         `json:"mal_id" yaml:"mal_id"`
	Title           string      `json:"title" yaml:"title"`
	ImageURL        string      `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	Type            string      `json:"type,omitempty" yaml:"type,omitempty"`
	Status          WatchStatus `json:"status" yaml:"status"`
	Score           int         `json:"score" yaml:"score"`
	EpisodesWatched int         `json:"episodes_watched" yaml:"episodes_watched"`
	EpisodesTotal   int         `json:"episodes_total" yaml:"episodes_total"`
	CreatedAt       time.Time   `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" yaml:"updated_at"`
}

// Clone returns a copy of r, or nil for a nil record.
func (r *UserStatus) Clone() *UserStatus {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// ApplyStatus moves rec into status s. Entering Completed sets the watched
// count to the item's total when the total is known.
func ApplyStatus(rec UserStatus, s WatchStatus) UserStatus {
	rec.Status = s
	if s == Completed && rec.EpisodesTotal > 0 {
		rec.EpisodesWatched = rec.EpisodesTotal
	}
	return rec
}

// NewUserStatus builds the first record for item with status s.
func NewUserStatus(userID string, item ItemRef, s WatchStatus) UserStatus {
	rec := UserStatus{
		UserID:        userID,
		ItemID:        item.ID,
		Title:         item.Title,
		ImageURL:      item.ImageURL,
		Type:          item.Type,
		EpisodesTotal: max(item.Episodes, 0),
	}
	return ApplyStatus(rec, s)
}

// ClampScore limits a score to 0..MaxScore.
func ClampScore(v int) int {
	return min(max(v, 0), MaxScore)
}

// ClampEpisodes limits watched to 0..total, or to >=0 when the total is unknown.
func ClampEpisodes(watched, total int) int {
	watched = max(watched, 0)
	if total > 0 {
		watched = min(watched, total)
	}
	return watched
}

// Edit is a partial change to an existing record. Nil fields are left alone.
type Edit struct {
	Status          *WatchStatus `json:"status,omitempty"`
	Score           *int         `json:"score,omitempty"`
	EpisodesWatched *int         `json:"episodes_watched,omitempty"`
}

// Empty reports whether the edit changes nothing.
func (e Edit) Empty() bool {
	return e.Status == nil && e.Score == nil && e.EpisodesWatched == nil
}

// Apply returns rec with the edit applied. Values are clamped, never
// rejected. An explicit episode count wins over the Completed side effect.
func (e Edit) Apply(rec UserStatus) UserStatus {
	if e.Status != nil {
		rec = ApplyStatus(rec, *e.Status)
	}
	if e.Score != nil {
		rec.Score = ClampScore(*e.Score)
	}
	if e.EpisodesWatched != nil {
		rec.EpisodesWatched = ClampEpisodes(*e.EpisodesWatched, rec.EpisodesTotal)
	}
	return rec
}

// ItemRef is the part of a catalog item copied into a new status record.
type ItemRef struct {
	ID       int    `json:"mal_id"`
	Title    string `json:"title"`
	ImageURL string `json:"image_url,omitempty"`
	Type     string `json:"type,omitempty"`
	Episodes int    `json:"episodes,omitempty"`
}

// StatusCounts holds the number of records per status plus the overall total.
type StatusCounts struct {
	All      int                 `json:"all"`
	ByStatus map[WatchStatus]int `json:"by_status"`
}

// Get returns the count for s.
func (c StatusCounts) Get(s WatchStatus) int {
	return c.ByStatus[s]
}
