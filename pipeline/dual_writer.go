package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-scrape-parts/models"
)

// MultiWriter fans rows out to several writers in order.
type MultiWriter struct {
	names   []string
	writers []OutputWriter
	mu      sync.Mutex
}

// NewMultiWriter pairs each writer with the name used in its error messages.
func NewMultiWriter(names []string, writers ...OutputWriter) *MultiWriter {
	return &MultiWriter{names: names, writers: writers}
}

// NewDualWriter writes CSV and JSONL side by side.
func NewDualWriter(csvFilename, jsonFilename string) (*MultiWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, err
	}
	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		csvWriter.Close()
		return nil, err
	}
	return NewMultiWriter([]string{"csv", "json"}, csvWriter, jsonWriter), nil
}

// Write stops at the first writer that fails.
func (mw *MultiWriter) Write(rows []*models.Row) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	for i, w := range mw.writers {
		if err := w.Write(rows); err != nil {
			return fmt.Errorf("%s write: %w", mw.name(i), err)
		}
	}
	return nil
}

// Close closes every writer, even after a failure.
func (mw *MultiWriter) Close() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	var errs []error
	for i, w := range mw.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s close: %w", mw.name(i), err))
		}
	}
	return errors.Join(errs...)
}

// Validate validates every output.
func (mw *MultiWriter) Validate() error {
	var errs []error
	for i, w := range mw.writers {
		if err := w.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", mw.name(i), err))
		}
	}
	return errors.Join(errs...)
}

func (mw *MultiWriter) name(i int) string {
	if i < len(mw.names) {
		return mw.names[i]
	}
	return fmt.Sprintf("writer %d", i)
}
