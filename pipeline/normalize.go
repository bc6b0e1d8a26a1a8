package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/aluiziolira/go-scrape-parts/config"
	"github.com/aluiziolira/go-scrape-parts/models"
	"github.com/aluiziolira/go-scrape-parts/state"
)

// NewWriter creates the OutputWriter for format. The dual format writes filename as CSV
// and a JSONL file next to it.
func NewWriter(format, filename string) (OutputWriter, error) {
	switch format {
	case "json":
		return NewJSONWriter(filename)
	case "csv":
		return NewCSVWriter(filename)
	case "xlsx":
		return NewExcelWriter(filename)
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, filepath.Ext(filename)) + ".json"
		return NewDualWriter(filename, jsonFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// Normalize reads raw crawl output files and writes the derived table to
// cfg.OutputFile. Records are processed in file order.
func Normalize(ctx context.Context, cfg *config.NormalizeConfig, catalog *config.Catalog) (*models.NormalizeResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid normalize config: %w", err)
	}

	writer, err := NewWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		return nil, err
	}
	p, err := NewPipeline(writer, catalog, cfg)
	if err != nil {
		writer.Close()
		return nil, err
	}
	p.Start(cfg.Workers)
	p.StartMetricsReporting(cfg.ReportInterval)

	result := &models.NormalizeResult{Inputs: cfg.Inputs, OutputPath: cfg.OutputFile}
	runErr := func() error {
		for _, path := range cfg.Inputs {
			if err := ctx.Err(); err != nil {
				return err
			}
			records, err := state.ReadResults(path)
			if err != nil {
				return err
			}
			category := cfg.Category
			if category == "" {
				category = categoryFromPath(path)
			}
			slog.Info("normalizing results",
				slog.String("path", path),
				slog.String("category", category),
				slog.Int("records", len(records)),
			)
			result.Records += len(records)
			if err := p.Process(category, records); err != nil {
				return err
			}
		}
		return nil
	}()

	closeErr := p.Close()
	if closeErr == nil && runErr == nil {
		if err := writer.Validate(); err != nil {
			slog.Warn("output validation failed", slog.String("path", cfg.OutputFile), slog.Any("error", err))
		}
	}
	if err := writer.Close(); err != nil && closeErr == nil {
		closeErr = err
	}
	if runErr != nil {
		return nil, runErr
	}
	if closeErr != nil {
		return nil, closeErr
	}

	stats := p.Stats()
	result.Rows = int(stats.Rows)
	result.Duplicates = stats.Rejected[RejectDuplicate]
	result.Invalid = stats.Rejected[RejectInvalid]
	return result, nil
}

// categoryFromPath recovers the category from a raw output file name such as
// "Ceramic Capacitors.json" or "Ceramic Capacitors_intermediate.json".
func categoryFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.TrimSuffix(base, "_intermediate")
}
