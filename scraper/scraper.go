package scraper

import (
	"context"
	"fmt"

	"github.com/aluiziolira/go-scrape-parts/config"
	"github.com/aluiziolira/go-scrape-parts/models"
)

// Scraper crawls one category of the search API, resuming where a previous run stopped.
type Scraper struct {
	cfg        *config.Config
	client     *Client
	controller *Controller
	Metrics    *Metrics
}

// NewScraper resolves the configured category and attributes against catalog and wires
// the HTTP client, bucket enumerator, page walker and crawl controller together. Progress
// is persisted in store; provider is consulted whenever the API challenges the crawler.
func NewScraper(cfg *config.Config, catalog *config.Catalog, store ResultStore, provider CredentialProvider) (*Scraper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	categoryID, attrs, err := catalog.Resolve(cfg.Category, cfg.Attributes)
	if err != nil {
		return nil, err
	}

	metrics := NewMetrics()
	client, err := NewClient(cfg, metrics)
	if err != nil {
		return nil, err
	}

	controller, err := NewController(ControllerConfig{
		Category:    cfg.Category,
		CategoryID:  categoryID,
		Attributes:  attrs,
		Credentials: client.Credentials(),
	}, Deps{
		Buckets:     NewEnumerator(client),
		Pages:       NewWalker(client, cfg.PageSize, cfg.MaxPageOffset, metrics),
		Store:       store,
		Credentials: provider,
		Session:     client,
		Metrics:     metrics,
	})
	if err != nil {
		return nil, err
	}

	return &Scraper{
		cfg:        cfg,
		client:     client,
		controller: controller,
		Metrics:    metrics,
	}, nil
}

// Run crawls until done, blocked without renewal, failed or cancelled. The returned
// result is non-nil whenever the crawl started, even on error.
func (s *Scraper) Run(ctx context.Context) (*models.CrawlResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	result, err := s.controller.Run(ctx)
	if result != nil {
		result.Requests = s.client.RequestCount()
	}
	return result, err
}

// Client exposes the underlying HTTP client.
func (s *Scraper) Client() *Client {
	return s.client
}
