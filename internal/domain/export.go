package domain

import "time"

// ListExport is a portable snapshot of one user's list.
type ListExport struct {
	User       string       `yaml:"user"`
	ExportedAt time.Time    `yaml:"exported_at"`
	Anime      []UserStatus `yaml:"anime"`
}

// ListFileRepository reads and writes list exports.
type ListFileRepository interface {
	Get(path string) (*ListExport, error)
	Store(path string, export *ListExport) error
}
