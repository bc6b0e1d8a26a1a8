// Package loader bulk-loads the normalized parts table into a relational database.
package loader

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-parts/config"
	"github.com/aluiziolira/go-scrape-parts/models"
	_ "github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// ColumnKind is the SQL type family of a column.
type ColumnKind int

// Column kinds.
const (
	KindText ColumnKind = iota
	KindFloat
	KindInt
)

var textColumns = map[string]bool{
	"category":      true,
	"manufacturer":  true,
	"mpn":           true,
	"ceramic_class": true,
	"dielectric":    true,
}

// KindOf classifies a column of the normalized table. Unknown columns are text.
func KindOf(column string) ColumnKind {
	switch {
	case column == "year":
		return KindInt
	case textColumns[column]:
		return KindText
	}
	for _, c := range models.Columns {
		if c == column {
			return KindFloat
		}
	}
	return KindText
}

// Loader writes CSV files into database tables.
type Loader struct {
	db      *sql.DB
	dialect Dialect
	cfg     *config.LoaderConfig
}

// Open connects to the database named by cfg.
func Open(ctx context.Context, cfg *config.LoaderConfig) (*Loader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid loader config: %w", err)
	}
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(dialect.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to %s: %w", cfg.Driver, err)
	}
	return &Loader{db: db, dialect: dialect, cfg: cfg}, nil
}

// New wraps an open database. Close closes db.
func New(db *sql.DB, cfg *config.LoaderConfig) (*Loader, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive")
	}
	return &Loader{dialect: dialect, cfg: cfg, db: db}, nil
}

// Close closes the connection pool.
func (l *Loader) Close() error {
	return l.db.Close()
}

// LoadCSV copies the rows of the CSV at path into table inside one transaction. The
// header names the columns. Empty cells load as NULL.
func (l *Loader) LoadCSV(ctx context.Context, path, table string) (*models.LoadResult, error) {
	start := time.Now()
	if strings.TrimSpace(table) == "" {
		return nil, fmt.Errorf("table cannot be empty")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("csv %s has no header", path)
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	columns, err := columnsOf(header)
	if err != nil {
		return nil, err
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if l.cfg.CreateTable {
		if _, err := tx.ExecContext(ctx, l.createTable(table, columns)); err != nil {
			return nil, fmt.Errorf("create table %s: %w", table, err)
		}
	}
	if l.cfg.Truncate {
		if _, err := tx.ExecContext(ctx, l.dialect.Truncate(table)); err != nil {
			return nil, fmt.Errorf("truncate table %s: %w", table, err)
		}
	}

	var rows int
	if l.dialect.MaxParams() == 0 {
		rows, err = l.copyRows(ctx, tx, reader, table, columns)
	} else {
		rows, err = l.insertRows(ctx, tx, reader, table, columns)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	result := &models.LoadResult{
		Path:     path,
		Driver:   l.dialect.Name(),
		Table:    table,
		Columns:  len(columns),
		Rows:     rows,
		Duration: time.Since(start),
	}
	slog.Info("table loaded",
		slog.String("table", table),
		slog.String("driver", result.Driver),
		slog.Int("rows", rows),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}

func (l *Loader) createTable(table string, columns []string) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = l.dialect.Quote(c) + " " + l.dialect.ColumnType(KindOf(c))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", l.dialect.Quote(table), strings.Join(defs, ", "))
}

// copyRows streams rows through a Postgres COPY.
func (l *Loader) copyRows(ctx context.Context, tx *sql.Tx, reader *csv.Reader, table string, columns []string) (int, error) {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, columns...))
	if err != nil {
		return 0, fmt.Errorf("prepare copy: %w", err)
	}
	defer stmt.Close()

	rows := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rows, fmt.Errorf("read csv: %w", err)
		}
		args, err := convertRecord(columns, record)
		if err != nil {
			return rows, lineError(reader, err)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return rows, fmt.Errorf("copy row: %w", err)
		}
		rows++
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return rows, fmt.Errorf("flush copy: %w", err)
	}
	return rows, nil
}

// insertRows sends batched multi-row INSERT statements.
func (l *Loader) insertRows(ctx context.Context, tx *sql.Tx, reader *csv.Reader, table string, columns []string) (int, error) {
	batchSize := l.cfg.BatchSize
	if limit := l.dialect.MaxParams() / len(columns); batchSize > limit {
		batchSize = limit
	}

	rows := 0
	args := make([]any, 0, batchSize*len(columns))
	pending := 0
	flush := func() error {
		if pending == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, l.insertStatement(table, columns, pending), args...); err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}
		rows += pending
		pending = 0
		args = args[:0]
		return nil
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rows, fmt.Errorf("read csv: %w", err)
		}
		values, err := convertRecord(columns, record)
		if err != nil {
			return rows, lineError(reader, err)
		}
		args = append(args, values...)
		pending++
		if pending >= batchSize {
			if err := flush(); err != nil {
				return rows, err
			}
		}
	}
	if err := flush(); err != nil {
		return rows, err
	}
	return rows, nil
}

func (l *Loader) insertStatement(table string, columns []string, count int) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = l.dialect.Quote(c)
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(l.dialect.Quote(table))
	b.WriteString(" (")
	b.WriteString(strings.Join(quoted, ", "))
	b.WriteString(") VALUES ")

	n := 1
	for r := 0; r < count; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range columns {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(l.dialect.Placeholder(n))
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}

func columnsOf(header []string) ([]string, error) {
	columns := make([]string, len(header))
	seen := make(map[string]struct{}, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if name == "" {
			return nil, fmt.Errorf("csv header column %d is empty", i+1)
		}
		if _, ok := seen[name]; ok {
			return nil, fmt.Errorf("csv header repeats column %q", name)
		}
		seen[name] = struct{}{}
		columns[i] = name
	}
	return columns, nil
}

func convertRecord(columns, record []string) ([]any, error) {
	values := make([]any, len(columns))
	for i, c := range columns {
		cell := strings.TrimSpace(record[i])
		if cell == "" {
			continue
		}
		switch KindOf(c) {
		case KindFloat:
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", c, err)
			}
			values[i] = v
		case KindInt:
			v, err := strconv.ParseInt(cell, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", c, err)
			}
			values[i] = v
		default:
			values[i] = cell
		}
	}
	return values, nil
}

func lineError(reader *csv.Reader, err error) error {
	line, _ := reader.FieldPos(0)
	return fmt.Errorf("csv line %d: %w", line, err)
}
