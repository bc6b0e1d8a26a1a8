package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/go-scrape-parts/models"
)

// output is the file handle and row count shared by the file writers.
type output struct {
	kind string
	path string
	file *os.File
	rows int
	mu   sync.Mutex
}

func createOutput(kind, filename string) (*output, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create %s file: %w", kind, err)
	}
	return &output{kind: kind, path: filename, file: f}, nil
}

// Count returns the number of rows written.
func (o *output) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rows
}

// Validate reports an output without any rows.
func (o *output) Validate() error {
	if o.Count() == 0 {
		return fmt.Errorf("%s file %s has no rows", o.kind, o.path)
	}
	return nil
}

// CSVWriter writes rows to CSV with a models.Columns header.
type CSVWriter struct {
	*output
	writer *csv.Writer
}

// NewCSVWriter creates filename and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	out, err := createOutput("csv", filename)
	if err != nil {
		return nil, err
	}

	writer := csv.NewWriter(out.file)
	if err := writer.Write(models.Columns); err != nil {
		out.file.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		out.file.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}
	return &CSVWriter{output: out, writer: writer}, nil
}

// Write appends rows to the CSV output. Missing values are empty cells.
func (cw *CSVWriter) Write(rows []*models.Row) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, row := range rows {
		if err := cw.writer.Write(row.Values()); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
		cw.rows++
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		cw.file.Close()
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// JSONWriter writes newline-delimited JSON rows.
type JSONWriter struct {
	*output
	buf     *bufio.Writer
	encoder *json.Encoder
}

// NewJSONWriter creates filename.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	out, err := createOutput("json", filename)
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriter(out.file)
	return &JSONWriter{output: out, buf: buf, encoder: json.NewEncoder(buf)}, nil
}

// Write appends rows in JSONL format. Missing values are omitted.
func (jw *JSONWriter) Write(rows []*models.Row) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, row := range rows {
		if err := jw.encoder.Encode(row); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
		jw.rows++
	}
	if err := jw.buf.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.buf.Flush(); err != nil {
		jw.file.Close()
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
