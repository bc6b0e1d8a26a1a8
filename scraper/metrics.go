package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the crawler.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	RecordsFetched    prometheus.Counter
	PagesTotal        *prometheus.CounterVec
	CombinationsTotal *prometheus.CounterVec
	BlocksTotal       prometheus.Counter
	RetriesTotal      prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total API requests issued by the crawler.",
		},
		[]string{"operation"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "API request latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	records := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_records_fetched_total",
			Help: "Total part records appended to the result set.",
		},
	)
	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_pages_total",
			Help: "Result pages fetched, by outcome.",
		},
		[]string{"outcome"},
	)
	combinations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_combinations_total",
			Help: "Bucket combinations visited, by outcome.",
		},
		[]string{"outcome"},
	)
	blocks := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_blocks_total",
			Help: "Anti-bot challenges encountered.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_retries_total",
			Help: "Total number of request retries.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of crawler errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, records, pages, combinations, blocks, retries, errorsTotal)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		RequestDuration:   requestDuration,
		RecordsFetched:    records,
		PagesTotal:        pages,
		CombinationsTotal: combinations,
		BlocksTotal:       blocks,
		RetriesTotal:      retries,
		ErrorsTotal:       errorsTotal,
	}
}

// IncRequest increments the requests counter for an operation.
func (m *Metrics) IncRequest(operation string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(operation).Inc()
}

// ObserveDuration records a request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// AddRecords increments the fetched records counter.
func (m *Metrics) AddRecords(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsFetched.Add(float64(n))
}

// IncPage increments the pages counter.
func (m *Metrics) IncPage(outcome string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(outcome).Inc()
}

// IncCombination increments the combinations counter.
func (m *Metrics) IncCombination(outcome string) {
	if m == nil {
		return
	}
	m.CombinationsTotal.WithLabelValues(outcome).Inc()
}

// IncBlocks increments the anti-bot counter.
func (m *Metrics) IncBlocks() {
	if m == nil {
		return
	}
	m.BlocksTotal.Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
