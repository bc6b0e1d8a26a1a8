package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/aluiziolira/go-scrape-parts/config"
	"github.com/aluiziolira/go-scrape-parts/models"
	"github.com/google/go-cmp/cmp"
)

type mockWriter struct {
	mu          sync.Mutex
	batches     [][]*models.Row
	closed      bool
	validateErr error
}

func (mw *mockWriter) Write(rows []*models.Row) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	copyBatch := make([]*models.Row, len(rows))
	copy(copyBatch, rows)
	mw.batches = append(mw.batches, copyBatch)
	return nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	mw.closed = true
	mw.mu.Unlock()
	return nil
}

func (mw *mockWriter) Validate() error {
	return mw.validateErr
}

func (mw *mockWriter) rows() []*models.Row {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	var all []*models.Row
	for _, batch := range mw.batches {
		all = append(all, batch...)
	}
	return all
}

func (mw *mockWriter) batchSizes() []int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	sizes := make([]int, 0, len(mw.batches))
	for _, batch := range mw.batches {
		sizes = append(sizes, len(batch))
	}
	return sizes
}

var errDiskFull = errors.New("disk full")

type failingWriter struct{}

func (failingWriter) Write([]*models.Row) error { return errDiskFull }
func (failingWriter) Close() error              { return nil }
func (failingWriter) Validate() error           { return nil }

func partRecord(manufacturer, mpn string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
  "part": {
    "mpn": %q,
    "manufacturer": {"name": %q},
    "category": {"id": "6332"},
    "median_price_1000": {"converted_price": 0.5},
    "specs": [
      {"attribute": {"shortname": "capacitance"}, "display_value": "10 µF"},
      {"attribute": {"shortname": "voltagerating"}, "display_value": "16 V"},
      {"attribute": {"shortname": "dielectric"}, "display_value": "C0G"}
    ]
  }
}`, mpn, manufacturer))
}

func testNormalizeConfig() *config.NormalizeConfig {
	cfg := config.DefaultNormalizeConfig()
	cfg.Year = 2024
	return cfg
}

func testCatalog(t *testing.T) *config.Catalog {
	t.Helper()
	catalog, err := config.DefaultCatalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return catalog
}

func TestPipelineProcessValidationAndDedup(t *testing.T) {
	writer := &mockWriter{}
	p, err := NewPipeline(writer, testCatalog(t), testNormalizeConfig())
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	p.Start(1)

	records := []json.RawMessage{
		partRecord("Murata", "GRM1"),
		json.RawMessage(`{"part":{"mpn":""}}`),
		partRecord("Murata", "GRM1"),
		partRecord("TDK", "GRM1"),
	}
	if err := p.Process("Unknown", records); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rows := writer.rows()
	if len(rows) != 2 {
		t.Fatalf("written rows = %d, want 2", len(rows))
	}
	row := rows[0]
	if row.Category != "Ceramic Capacitors" {
		t.Fatalf("category = %q, want the catalog name for id 6332", row.Category)
	}
	if row.CeramicClass != "C1" {
		t.Fatalf("ceramic class = %q, want C1", row.CeramicClass)
	}
	if row.Year != 2024 {
		t.Fatalf("year = %d", row.Year)
	}

	want := Stats{Rows: 2, Rejected: map[string]int{RejectInvalid: 1, RejectDuplicate: 1}}
	if diff := cmp.Diff(want, p.Stats()); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestPipelineBatchFlushThreshold(t *testing.T) {
	cfg := testNormalizeConfig()
	cfg.BatchSize = 64
	writer := &mockWriter{}
	p, err := NewPipeline(writer, nil, cfg)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	p.Start(1)

	records := make([]json.RawMessage, 0, 65)
	for i := 0; i < 65; i++ {
		records = append(records, partRecord("Murata", "GRM"+strconv.Itoa(i)))
	}
	if err := p.Process("Ceramic Capacitors", records); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if diff := cmp.Diff([]int{64, 1}, writer.batchSizes()); diff != "" {
		t.Fatalf("batch sizes mismatch (-want +got):\n%s", diff)
	}
}

func TestPipelineSingleWorkerKeepsOrder(t *testing.T) {
	writer := &mockWriter{}
	p, err := NewPipeline(writer, nil, testNormalizeConfig())
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	p.Start(1)

	var want []string
	for i := 0; i < 10; i++ {
		mpn := "CAP" + strconv.Itoa(9-i)
		want = append(want, mpn)
		if err := p.Process("Ceramic Capacitors", []json.RawMessage{partRecord("Kemet", mpn)}); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var got []string
	for _, row := range writer.rows() {
		got = append(got, row.MPN)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("row order mismatch (-want +got):\n%s", diff)
	}
}

func TestPipelineCloseDrainsPendingItems(t *testing.T) {
	writer := &mockWriter{}
	p, err := NewPipeline(writer, nil, testNormalizeConfig())
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	p.Start(2)

	for i := 0; i < 100; i++ {
		if err := p.Process("Fixed Inductors", []json.RawMessage{partRecord("Coilcraft", "XAL"+strconv.Itoa(i))}); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := len(writer.rows()); got != 100 {
		t.Fatalf("written rows = %d, want 100", got)
	}
}

func TestPipelineWriteErrorStopsProcessing(t *testing.T) {
	cfg := testNormalizeConfig()
	cfg.BatchSize = 1
	p, err := NewPipeline(failingWriter{}, nil, cfg)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	p.Start(1)

	_ = p.Process("Ceramic Capacitors", []json.RawMessage{partRecord("Murata", "GRM1")})

	if err := p.Close(); !errors.Is(err, errDiskFull) {
		t.Fatalf("close error = %v, want %v", err, errDiskFull)
	}
	if err := p.Process("Ceramic Capacitors", []json.RawMessage{partRecord("Murata", "GRM2")}); err == nil {
		t.Fatalf("process after failure should error")
	}
}

func TestPipelineProcessAfterClose(t *testing.T) {
	p, err := NewPipeline(&mockWriter{}, nil, testNormalizeConfig())
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	p.Start(1)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Process("Ceramic Capacitors", []json.RawMessage{partRecord("Murata", "GRM1")}); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("expected ErrPipelineClosed, got %v", err)
	}
}

func writeRawResults(t *testing.T, path string, records ...json.RawMessage) {
	t.Helper()
	data, err := json.Marshal(models.NewSearchResponse(records))
	if err != nil {
		t.Fatalf("marshal results: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write results: %v", err)
	}
}

func TestNormalize(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "Film Capacitors.json")
	second := filepath.Join(dir, "Film Capacitors_intermediate.json")
	writeRawResults(t, first,
		partRecord("Vishay", "MKP1"),
		partRecord("Vishay", "MKP2"),
		json.RawMessage(`"garbage"`),
	)
	writeRawResults(t, second,
		partRecord("Vishay", "MKP2"),
		partRecord("Wima", "MKS4"),
	)

	cfg := testNormalizeConfig()
	cfg.Inputs = []string{first, second}
	cfg.OutputFile = filepath.Join(dir, "out", "parts.csv")

	result, err := Normalize(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	want := &models.NormalizeResult{
		Inputs:     cfg.Inputs,
		OutputPath: cfg.OutputFile,
		Records:    5,
		Rows:       3,
		Duplicates: 1,
		Invalid:    1,
	}
	if diff := cmp.Diff(want, result); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}

	records := readCSV(t, cfg.OutputFile)
	if len(records) != 4 {
		t.Fatalf("csv lines = %d, want header plus 3 rows", len(records))
	}
	if records[1][0] != "Film Capacitors" {
		t.Fatalf("category taken from file name = %q", records[1][0])
	}
}

func TestNormalizeRejectsInvalidConfig(t *testing.T) {
	cfg := testNormalizeConfig()
	if _, err := Normalize(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected an error without inputs")
	}
}

func TestNormalizeMissingInput(t *testing.T) {
	dir := t.TempDir()
	cfg := testNormalizeConfig()
	cfg.Inputs = []string{filepath.Join(dir, "missing.json")}
	cfg.OutputFile = filepath.Join(dir, "parts.csv")

	if _, err := Normalize(context.Background(), cfg, nil); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected a not-exist error, got %v", err)
	}
}

func TestCategoryFromPath(t *testing.T) {
	tests := map[string]string{
		"data/Ceramic Capacitors.json":              "Ceramic Capacitors",
		"data/Ceramic Capacitors_intermediate.json": "Ceramic Capacitors",
		"Fixed Inductors":                           "Fixed Inductors",
	}
	for in, want := range tests {
		if got := categoryFromPath(in); got != want {
			t.Fatalf("categoryFromPath(%q) = %q, want %q", in, got, want)
		}
	}
}
