// Package pipeline normalizes raw part records into output rows.
package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-parts/config"
	"github.com/aluiziolira/go-scrape-parts/models"
	"github.com/aluiziolira/go-scrape-parts/parser"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(rows []*models.Row) error
	Close() error
	Validate() error
}

type item struct {
	raw      json.RawMessage
	category string
}

// Pipeline flattens, derives, de-duplicates and batches rows to an OutputWriter.
type Pipeline struct {
	writer    OutputWriter
	catalog   *config.Catalog
	year      int
	itemCh    chan item
	batchSize int

	wg sync.WaitGroup

	// seen is bounded; a duplicate arriving after its key was evicted is written again.
	seen *lru.Cache[string, struct{}]

	metrics metrics

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline sized by cfg. catalog may be nil, in which case ceramic
// classes and category names are not resolved.
func NewPipeline(writer OutputWriter, catalog *config.Catalog, cfg *config.NormalizeConfig) (*Pipeline, error) {
	seen, err := lru.New[string, struct{}](cfg.DedupeSize)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}
	return &Pipeline{
		writer:    writer,
		catalog:   catalog,
		year:      cfg.Year,
		itemCh:    make(chan item, cfg.BufferSize),
		batchSize: cfg.BatchSize,
		seen:      seen,
		metrics:   newMetrics(),
		shutdown:  make(chan struct{}),
	}, nil
}

// Start launches worker goroutines. Row order matches input order only with one worker.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Process enqueues raw records. category is used for records whose category id is not
// in the catalog.
func (p *Pipeline) Process(category string, records []json.RawMessage) error {
	if len(records) == 0 {
		return nil
	}

	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	for _, raw := range records {
		if len(raw) == 0 {
			continue
		}
		if err := p.enqueue(item{raw: raw, category: category}); err != nil {
			return err
		}
	}
	return nil
}

// Close waits for workers to finish and prevents more submissions.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
	}
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.itemCh)
	})

	p.wg.Wait()
	return p.Err()
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Stats returns a snapshot of the row and rejection counters.
func (p *Pipeline) Stats() Stats {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				stats := p.Stats()
				slog.Info("pipeline progress",
					slog.Int64("rows", stats.Rows),
					slog.Any("rejected", stats.Rejected),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	batch := make([]*models.Row, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writer.Write(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for it := range p.itemCh {
		row := p.prepare(it)
		if row == nil {
			continue
		}
		batch = append(batch, row)
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				p.setErr(fmt.Errorf("write batch: %w", err))
				return
			}
		}
	}

	if err := flush(); err != nil {
		p.setErr(fmt.Errorf("write batch: %w", err))
	}
}

func (p *Pipeline) prepare(it item) *models.Row {
	part, err := parser.Flatten(it.raw, it.category)
	if err != nil {
		p.metrics.reject(RejectInvalid)
		slog.Debug("skipping record", slog.Any("error", err))
		return nil
	}
	if p.catalog != nil {
		if name, ok := p.catalog.CategoryName(part.CategoryID); ok {
			part.Category = name
		}
	}

	row := parser.Derive(part, p.catalog, p.year)
	if found, _ := p.seen.ContainsOrAdd(row.Key(), struct{}{}); found {
		p.metrics.reject(RejectDuplicate)
		return nil
	}

	p.metrics.accept()
	return row
}

func (p *Pipeline) enqueue(it item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case p.itemCh <- it:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.itemCh)
	})
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

// Rejection reasons counted in Stats.Rejected.
const (
	RejectInvalid   = "invalid_record"
	RejectDuplicate = "duplicate_part"
)

// Stats counts rows handed to the writer and records dropped before it.
type Stats struct {
	Rows     int64
	Rejected map[string]int
}

type metrics struct {
	mu       sync.Mutex
	rows     int64
	rejected map[string]int
}

func newMetrics() metrics {
	return metrics{rejected: make(map[string]int)}
}

func (m *metrics) accept() {
	m.mu.Lock()
	m.rows++
	m.mu.Unlock()
}

func (m *metrics) reject(reason string) {
	m.mu.Lock()
	m.rejected[reason]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	rejected := make(map[string]int, len(m.rejected))
	for k, v := range m.rejected {
		rejected[k] = v
	}
	return Stats{Rows: m.rows, Rejected: rejected}
}
