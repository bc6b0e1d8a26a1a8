package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-scrape-parts/config"
	"github.com/aluiziolira/go-scrape-parts/models"
	"github.com/aluiziolira/go-scrape-parts/state"
)

// CrawlState is a state of the crawl controller.
type CrawlState int

const (
	StateResolvingBuckets CrawlState = iota
	StateWalking
	StateBlocked
	StateDone
)

func (s CrawlState) String() string {
	switch s {
	case StateResolvingBuckets:
		return "resolving_buckets"
	case StateWalking:
		return "walking"
	case StateBlocked:
		return "blocked"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// ResultStore persists crawl progress. *state.Store implements it.
type ResultStore interface {
	LoadMarker() (*models.ResumeMarker, error)
	SaveMarker(*models.ResumeMarker) error
	DeleteMarker() error
	AppendIntermediate(records []json.RawMessage) (string, error)
	Finalize(records []json.RawMessage) (string, error)
}

// ControllerConfig is the immutable description of one crawl. Credentials are the ones
// the session starts with; they are reported as current on the first block.
type ControllerConfig struct {
	Category    string
	CategoryID  string
	Attributes  []config.Attribute
	Credentials Credentials
}

// Deps are the collaborators of a Controller. Session and Metrics may be nil.
type Deps struct {
	Buckets     BucketSource
	Pages       PageSource
	Store       ResultStore
	Credentials CredentialProvider
	Session     CredentialSetter
	Metrics     *Metrics
}

// Controller drives bucket resolution and pagination over the cross product of
// attribute buckets, flushing progress and asking for new credentials whenever the API
// challenges the crawler. It is single-threaded; Run must not be called concurrently.
type Controller struct {
	cfg  ControllerConfig
	deps Deps
	now  func() time.Time

	state   CrawlState
	buckets []models.AttributeBuckets
	results []json.RawMessage

	// marker is the position to resume from while restarting is set.
	marker     *models.ResumeMarker
	restarting bool

	// current and offset track the combination being walked and the next page offset.
	current models.Position
	offset  int

	lastErr error
	creds   Credentials
	result  models.CrawlResult
}

// NewController validates cfg and deps and returns a controller in the resolving state.
func NewController(cfg ControllerConfig, deps Deps) (*Controller, error) {
	if cfg.CategoryID == "" {
		return nil, fmt.Errorf("category id cannot be empty")
	}
	if len(cfg.Attributes) == 0 {
		return nil, fmt.Errorf("at least one attribute is required")
	}
	if deps.Buckets == nil || deps.Pages == nil || deps.Store == nil {
		return nil, fmt.Errorf("bucket source, page source and store are required")
	}
	if deps.Credentials == nil {
		deps.Credentials = NoRenewal{}
	}
	attrs := make([]config.Attribute, len(cfg.Attributes))
	copy(attrs, cfg.Attributes)
	cfg.Attributes = attrs

	return &Controller{
		cfg:   cfg,
		deps:  deps,
		now:   time.Now,
		state: StateResolvingBuckets,
		creds: cfg.Credentials,
	}, nil
}

// State returns the current state.
func (c *Controller) State() CrawlState {
	return c.state
}

// Buckets returns the bucket lists resolved so far.
func (c *Controller) Buckets() []models.AttributeBuckets {
	out := make([]models.AttributeBuckets, len(c.buckets))
	copy(out, c.buckets)
	return out
}

// Run crawls until every bucket combination is exhausted, the operator declines to
// supply credentials, a non-recoverable error occurs, or ctx is cancelled. Fetched
// records are flushed and the position saved on every exit path.
func (c *Controller) Run(ctx context.Context) (*models.CrawlResult, error) {
	c.result = models.CrawlResult{Category: c.cfg.Category, StartTime: c.now()}
	if err := c.loadMarker(); err != nil {
		return nil, err
	}

	for {
		switch c.state {
		case StateResolvingBuckets:
			if err := c.guard(func() error { return c.resolveBuckets(ctx) }); err != nil {
				c.block(err)
				continue
			}
			c.state = StateWalking

		case StateWalking:
			if err := c.guard(func() error { return c.walk(ctx) }); err != nil {
				c.block(err)
				continue
			}
			c.state = StateDone

		case StateBlocked:
			if err := c.handleBlock(ctx); err != nil {
				return c.finishResult(), err
			}

		case StateDone:
			path, err := c.complete()
			if err != nil {
				return c.finishResult(), err
			}
			c.result.OutputPath = path
			slog.Info("all done fetching components",
				slog.String("category", c.cfg.Category),
				slog.String("path", path),
				slog.Int("records", c.result.Records),
			)
			return c.finishResult(), nil
		}
	}
}

func (c *Controller) loadMarker() error {
	marker, err := c.deps.Store.LoadMarker()
	if errors.Is(err, state.ErrNoMarker) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load resume marker: %w", err)
	}
	if err := marker.Validate(c.cfg.Category, c.attributeNames()); err != nil {
		return fmt.Errorf("resume marker does not match this crawl: %w", err)
	}
	c.marker = marker
	c.restarting = true
	c.result.Resumed = true
	slog.Info("resuming interrupted crawl",
		slog.String("category", c.cfg.Category),
		slog.String("position", marker.Position.String()),
		slog.Int("page_offset", marker.PageOffset),
	)
	return nil
}

// resolveBuckets fetches buckets for the attributes not resolved yet, in declared order.
func (c *Controller) resolveBuckets(ctx context.Context) error {
	for i := len(c.buckets); i < len(c.cfg.Attributes); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		attr := c.cfg.Attributes[i]
		ab, err := c.deps.Buckets.FetchBuckets(ctx, c.cfg.CategoryID, attr)
		if err != nil {
			return fmt.Errorf("fetch buckets for %s: %w", attr.Name, err)
		}
		c.buckets = append(c.buckets, ab)
		slog.Info("fetched attribute",
			slog.String("attribute", attr.Name),
			slog.Int("buckets", len(ab.Buckets)),
		)
	}
	return nil
}

func (c *Controller) walk(ctx context.Context) error {
	dims := make([]int, len(c.buckets))
	total := 1
	for i, ab := range c.buckets {
		dims[i] = len(ab.Buckets)
		total *= dims[i]
	}
	target, startOffset := c.resumeTarget()
	slog.Info("fetching parts",
		slog.String("category", c.cfg.Category),
		slog.Int("combinations", total),
	)

	return forEachPosition(dims, func(pos models.Position) error {
		start := 0
		if c.restarting {
			if pos.Less(target) {
				c.result.Skipped++
				c.deps.Metrics.IncCombination("skipped")
				return nil
			}
			c.restarting = false
			c.marker = nil
			start = startOffset
		}

		c.current = pos.Clone()
		c.offset = start
		if err := ctx.Err(); err != nil {
			return err
		}
		filters := c.filtersAt(pos)
		slog.Debug("walking combination",
			slog.String("position", pos.String()),
			slog.Any("filters", filterKeys(filters)),
			slog.Int("start", start),
		)

		outcome, err := c.deps.Pages.Walk(ctx, c.cfg.CategoryID, filters, start, c.appendPage)
		if err != nil {
			return fmt.Errorf("walk %s: %w", pos, err)
		}
		c.result.Combinations++
		switch outcome {
		case Capped:
			c.result.Capped++
		case Rejected:
			c.result.Rejected++
		}
		c.deps.Metrics.IncCombination(outcome.String())
		return nil
	})
}

func (c *Controller) appendPage(records []json.RawMessage, nextOffset int) error {
	c.results = append(c.results, records...)
	c.offset = nextOffset
	c.result.Records += len(records)
	c.result.Pages++
	c.deps.Metrics.AddRecords(len(records))
	return nil
}

// resumeTarget returns the position and page offset to resume from. Buckets are matched
// by value first so that a reordered bucket list still resumes at the right combination.
func (c *Controller) resumeTarget() (models.Position, int) {
	if !c.restarting || c.marker == nil {
		c.restarting = false
		return nil, 0
	}
	m := c.marker

	byIndex := c.inRange(m.Position)
	if len(m.Values) == len(m.Position) {
		if byIndex && equalStrings(c.valuesAt(m.Position), m.Values) {
			return m.Position, m.PageOffset
		}
		if pos, ok := c.positionOf(m.Values); ok {
			slog.Warn("bucket order changed since the crawl was interrupted, resuming by value",
				slog.String("marker", m.Position.String()),
				slog.String("resolved", pos.String()),
			)
			return pos, m.PageOffset
		}
	}
	if byIndex {
		if len(m.Values) > 0 {
			slog.Warn("marker bucket values no longer match, resuming by index",
				slog.String("position", m.Position.String()),
			)
		}
		return m.Position, m.PageOffset
	}

	slog.Warn("resume marker points outside the bucket space, starting over",
		slog.String("position", m.Position.String()),
	)
	c.restarting = false
	c.marker = nil
	return nil, 0
}

// block records err and moves to the blocked state.
func (c *Controller) block(err error) {
	c.lastErr = err
	c.state = StateBlocked
	c.deps.Metrics.IncError(errorKindLabel(err))
}

// handleBlock flushes progress, then either asks for new credentials and resumes (anti-bot
// challenges) or returns the error that caused the block.
func (c *Controller) handleBlock(ctx context.Context) error {
	err := c.lastErr
	c.lastErr = nil
	position := c.current.Clone()

	if ferr := c.persist(); ferr != nil {
		return errors.Join(err, ferr)
	}
	if !IsAntiBotBlock(err) {
		slog.Error("crawl stopped, progress saved",
			slog.String("category", c.cfg.Category),
			slog.String("error_type", errorKindLabel(err)),
			slog.Any("error", err),
		)
		return err
	}

	c.result.Blocks++
	c.deps.Metrics.IncBlocks()
	slog.Warn("anti-bot challenge detected",
		slog.String("category", c.cfg.Category),
		slog.Int("blocks", c.result.Blocks),
		slog.Any("error", err),
	)

	event := BlockEvent{
		Category: c.cfg.Category,
		Position: position,
		Blocks:   c.result.Blocks,
		Err:      err,
		Current:  c.creds,
	}
	creds, rerr := c.deps.Credentials.Renew(ctx, event)
	if rerr != nil {
		return fmt.Errorf("renew credentials: %w", errors.Join(err, rerr))
	}
	if c.deps.Session != nil {
		if serr := c.deps.Session.SetCredentials(creds); serr != nil {
			return fmt.Errorf("apply credentials: %w", serr)
		}
	}
	c.creds = creds

	if c.marker != nil {
		c.restarting = true
	}
	if len(c.buckets) < len(c.cfg.Attributes) {
		c.state = StateResolvingBuckets
	} else {
		c.state = StateWalking
	}
	return nil
}

// persist appends the accumulated records to the intermediate file and saves the
// current position as the resume marker. With no position yet (blocked while resolving
// buckets) an existing marker is left as it is. The two writes are not atomic together:
// a kill between them keeps the older marker, and the flushed pages are fetched again.
func (c *Controller) persist() error {
	if len(c.results) > 0 {
		path, err := c.deps.Store.AppendIntermediate(c.results)
		if err != nil {
			return fmt.Errorf("flush intermediate results: %w", err)
		}
		slog.Info("saved intermediate data",
			slog.String("path", path),
			slog.Int("records", len(c.results)),
		)
		c.results = nil
	}

	if c.current == nil {
		return nil
	}
	marker := &models.ResumeMarker{
		Version:    models.MarkerVersion,
		Category:   c.cfg.Category,
		Attributes: c.attributeNames(),
		Position:   c.current.Clone(),
		Values:     c.valuesAt(c.current),
		PageOffset: c.offset,
		Restarting: true,
		UpdatedAt:  c.now().UTC(),
	}
	if err := c.deps.Store.SaveMarker(marker); err != nil {
		return fmt.Errorf("save resume marker: %w", err)
	}
	c.marker = marker
	c.current = nil
	return nil
}

// complete merges everything into the final file and clears the marker.
func (c *Controller) complete() (string, error) {
	path, err := c.deps.Store.Finalize(c.results)
	if err != nil {
		if len(c.results) > 0 {
			if _, aerr := c.deps.Store.AppendIntermediate(c.results); aerr != nil {
				err = errors.Join(err, aerr)
			} else {
				c.results = nil
			}
		}
		return "", fmt.Errorf("finalize results: %w", err)
	}
	c.results = nil
	if err := c.deps.Store.DeleteMarker(); err != nil {
		return path, err
	}
	return path, nil
}

// guard runs fn and converts a panic into an error so progress is still flushed.
func (c *Controller) guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected panic during crawl: %v", r)
		}
	}()
	return fn()
}

func (c *Controller) finishResult() *models.CrawlResult {
	res := c.result
	res.EndTime = c.now()
	return &res
}

func (c *Controller) attributeNames() []string {
	names := make([]string, len(c.cfg.Attributes))
	for i, a := range c.cfg.Attributes {
		names[i] = a.Name
	}
	return names
}

func (c *Controller) filtersAt(pos models.Position) []Filter {
	filters := make([]Filter, len(pos))
	for i, idx := range pos {
		filters[i] = Filter{Key: c.buckets[i].Key, Value: c.buckets[i].Buckets[idx].FilterValue()}
	}
	return filters
}

func (c *Controller) inRange(pos models.Position) bool {
	if len(pos) != len(c.buckets) {
		return false
	}
	for i, idx := range pos {
		if idx < 0 || idx >= len(c.buckets[i].Buckets) {
			return false
		}
	}
	return true
}

func (c *Controller) valuesAt(pos models.Position) []string {
	if !c.inRange(pos) {
		return nil
	}
	values := make([]string, len(pos))
	for i, idx := range pos {
		values[i] = c.buckets[i].Buckets[idx].FilterValue()
	}
	return values
}

func (c *Controller) positionOf(values []string) (models.Position, bool) {
	if len(values) != len(c.buckets) {
		return nil, false
	}
	pos := make(models.Position, len(values))
	for i, v := range values {
		found := false
		for j, b := range c.buckets[i].Buckets {
			if b.FilterValue() == v {
				pos[i] = j
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
	}
	return pos, true
}

// forEachPosition visits every index tuple of the given dimensions in row-major order.
// Any zero dimension makes the space empty.
func forEachPosition(dims []int, fn func(models.Position) error) error {
	if len(dims) == 0 {
		return nil
	}
	for _, d := range dims {
		if d <= 0 {
			return nil
		}
	}
	pos := make(models.Position, len(dims))
	for {
		if err := fn(pos); err != nil {
			return err
		}
		i := len(dims) - 1
		for ; i >= 0; i-- {
			pos[i]++
			if pos[i] < dims[i] {
				break
			}
			pos[i] = 0
		}
		if i < 0 {
			return nil
		}
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
