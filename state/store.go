// Package state persists crawl progress: the resume marker and the raw results flushed
// on every interruption. Files are read-modify-written without locking, so at most one
// crawl per category may run at a time.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-parts/models"
)

// ErrNoMarker is returned by LoadMarker when no crawl is in progress.
var ErrNoMarker = errors.New("state: no resume marker")

const (
	resultsExt         = ".json"
	intermediateSuffix = "_intermediate"
	markerSuffix       = ".resume"
)

// Store keeps the files of one category under a data directory.
type Store struct {
	dir      string
	category string
	base     string
	now      func() time.Time
}

// NewStore creates dir if needed and returns a store for category.
func NewStore(dir, category string) (*Store, error) {
	if strings.TrimSpace(category) == "" {
		return nil, fmt.Errorf("category cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %q: %w", dir, err)
	}
	return &Store{
		dir:      dir,
		category: category,
		base:     fileBase(category),
		now:      time.Now,
	}, nil
}

// FinalPath is where the complete crawl output is written.
func (s *Store) FinalPath() string {
	return filepath.Join(s.dir, s.base+resultsExt)
}

// IntermediatePath accumulates results flushed across interruptions.
func (s *Store) IntermediatePath() string {
	return filepath.Join(s.dir, s.base+intermediateSuffix+resultsExt)
}

// MarkerPath holds the resume marker while a crawl is in progress.
func (s *Store) MarkerPath() string {
	return filepath.Join(s.dir, s.base+markerSuffix+resultsExt)
}

// HasMarker reports whether a crawl for this category is in progress.
func (s *Store) HasMarker() bool {
	_, err := os.Stat(s.MarkerPath())
	return err == nil
}

// LoadMarker reads the resume marker.
func (s *Store) LoadMarker() (*models.ResumeMarker, error) {
	data, err := os.ReadFile(s.MarkerPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoMarker
		}
		return nil, fmt.Errorf("read resume marker: %w", err)
	}
	var m models.ResumeMarker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode resume marker %s: %w", s.MarkerPath(), err)
	}
	return &m, nil
}

// SaveMarker overwrites the resume marker.
func (s *Store) SaveMarker(m *models.ResumeMarker) error {
	if m == nil {
		return fmt.Errorf("resume marker is nil")
	}
	out := *m
	if out.Version == 0 {
		out.Version = models.MarkerVersion
	}
	if out.Category == "" {
		out.Category = s.category
	}
	if out.UpdatedAt.IsZero() {
		out.UpdatedAt = s.now().UTC()
	}
	if err := writeJSONAtomic(s.MarkerPath(), &out); err != nil {
		return fmt.Errorf("save resume marker: %w", err)
	}
	return nil
}

// DeleteMarker removes the resume marker. A missing marker is not an error.
func (s *Store) DeleteMarker() error {
	if err := os.Remove(s.MarkerPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete resume marker: %w", err)
	}
	return nil
}

// AppendIntermediate merges records into the intermediate file; earlier flushes are kept
// and the new records follow them.
func (s *Store) AppendIntermediate(records []json.RawMessage) (string, error) {
	path := s.IntermediatePath()
	existing, err := readResultsIfExists(path)
	if err != nil {
		return "", err
	}
	merged := append(existing, records...)
	if err := writeJSONAtomic(path, models.NewSearchResponse(merged)); err != nil {
		return "", fmt.Errorf("write intermediate results: %w", err)
	}
	return path, nil
}

// IntermediateCount returns how many records have been flushed so far.
func (s *Store) IntermediateCount() (int, error) {
	records, err := readResultsIfExists(s.IntermediatePath())
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Finalize writes the intermediate results followed by records to the final file and
// removes the intermediate file.
func (s *Store) Finalize(records []json.RawMessage) (string, error) {
	intermediate := s.IntermediatePath()
	existing, err := readResultsIfExists(intermediate)
	if err != nil {
		return "", err
	}
	merged := append(existing, records...)

	path := s.FinalPath()
	if err := writeJSONAtomic(path, models.NewSearchResponse(merged)); err != nil {
		return "", fmt.Errorf("write final results: %w", err)
	}
	if err := os.Remove(intermediate); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return path, fmt.Errorf("remove intermediate results: %w", err)
	}
	return path, nil
}

// ReadResults loads the records of a raw output file.
func ReadResults(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	var resp models.SearchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode results %s: %w", path, err)
	}
	return resp.Data.Search.Results, nil
}

func readResultsIfExists(path string) ([]json.RawMessage, error) {
	records, err := ReadResults(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return records, nil
}

func writeJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := json.NewEncoder(tmp).Encode(v); err != nil {
		tmp.Close()
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmpName, path)
}

// fileBase turns a category name into a file name, keeping it readable.
func fileBase(category string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, strings.TrimSpace(category))
}
