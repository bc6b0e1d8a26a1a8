package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aluiziolira/go-scrape-parts/models"
	"github.com/xuri/excelize/v2"
)

// ExcelSheet is the worksheet holding the normalized table.
const ExcelSheet = "Parts"

// ExcelWriter keeps rows in a workbook and saves it on Close. Numeric columns are
// written as numbers so the sheet can be sorted and charted directly.
type ExcelWriter struct {
	path string
	file *excelize.File
	next int
	mu   sync.Mutex
}

// NewExcelWriter prepares a workbook with a bold, frozen header row.
func NewExcelWriter(filename string) (*ExcelWriter, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".xlsx") {
		return nil, fmt.Errorf("xlsx output %q must have an .xlsx extension", filename)
	}
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), ExcelSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]any, len(models.Columns))
	for i, c := range models.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(ExcelSheet, "A1", &header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write xlsx header: %w", err)
	}

	last, err := excelize.CoordinatesToCellName(len(models.Columns), 1)
	if err != nil {
		f.Close()
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetCellStyle(ExcelSheet, "A1", last, bold); err != nil {
		f.Close()
		return nil, fmt.Errorf("style xlsx header: %w", err)
	}
	if err := f.SetPanes(ExcelSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("freeze xlsx header: %w", err)
	}

	return &ExcelWriter{path: filename, file: f, next: 2}, nil
}

// Write appends rows below the previous ones.
func (ew *ExcelWriter) Write(rows []*models.Row) error {
	ew.mu.Lock()
	defer ew.mu.Unlock()

	for _, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, ew.next)
		if err != nil {
			return err
		}
		cells := row.Cells()
		if err := ew.file.SetSheetRow(ExcelSheet, cell, &cells); err != nil {
			return fmt.Errorf("write xlsx row %d: %w", ew.next, err)
		}
		ew.next++
	}
	return nil
}

// Count returns the number of data rows written.
func (ew *ExcelWriter) Count() int {
	ew.mu.Lock()
	defer ew.mu.Unlock()
	return ew.next - 2
}

// Close saves the workbook to disk.
func (ew *ExcelWriter) Close() error {
	ew.mu.Lock()
	defer ew.mu.Unlock()

	if err := ew.file.SaveAs(ew.path); err != nil {
		ew.file.Close()
		return fmt.Errorf("save xlsx: %w", err)
	}
	return ew.file.Close()
}

// Validate reports a workbook without data rows.
func (ew *ExcelWriter) Validate() error {
	if ew.Count() == 0 {
		return fmt.Errorf("xlsx file %s has no rows", ew.path)
	}
	return nil
}
