package repository

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/varoOP/shinkrolist/internal/domain"
	"gopkg.in/yaml.v3"
)

// FileRepository implements domain.ListFileRepository using YAML files
type FileRepository struct {
	log zerolog.Logger
}

// NewFileRepository creates a new file-based repository
func NewFileRepository(log zerolog.Logger) *FileRepository {
	return &FileRepository{
		log: log.With().Str("module", "repository").Logger(),
	}
}

var _ domain.ListFileRepository = (*FileRepository)(nil)

// Get reads a list export from a file
func (r *FileRepository) Get(path string) (*domain.ListExport, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file does not exist: %s: %w", path, err)
		}
		return nil, fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	export := &domain.ListExport{}
	if err := yaml.Unmarshal(b, export); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml from %s: %w", path, err)
	}

	for i, rec := range export.Anime {
		if rec.ItemID <= 0 || !rec.Status.Valid() {
			return nil, fmt.Errorf("invalid entry %d in %s: %w", i, path, domain.ErrValidation)
		}
	}

	return export, nil
}

// Store writes a list export to a file, one blank line between entries
func (r *FileRepository) Store(path string, export *domain.ListExport) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(export); err != nil {
		return fmt.Errorf("failed to marshal yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to marshal yaml: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", path, err)
	}
	defer f.Close()

	lines := strings.Split(buf.String(), "\n")
	first := true
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "- mal_id:") {
			if !first {
				lines[i] = "\n" + line
			}
			first = false
		}
	}

	if _, err := f.Write([]byte(strings.Join(lines, "\n"))); err != nil {
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}

	r.log.Debug().Str("path", path).Int("count", len(export.Anime)).Msg("stored list export")
	return nil
}
