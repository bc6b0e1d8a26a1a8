package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DefaultUserAgent is sent until the operator supplies another one.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/104.0.0.0 Safari/537.36"

// MaxPageSize is the largest page the search API serves.
const MaxPageSize = 100

// Config holds crawl configuration.
type Config struct {
	Endpoint          string
	Category          string
	Attributes        []string
	PerimeterXKey     string
	UserAgent         string
	PageSize          int
	MaxPageOffset     int
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
	RetryBackoff      time.Duration
	RetryBackoffMax   time.Duration
	DataDir           string
	MetricsAddr       string
	NonInteractive    bool
	Verbose           bool
}

// DefaultConfig returns conservative defaults for the Octopart internal API.
func DefaultConfig() *Config {
	return &Config{
		Endpoint:          "https://octopart.com/api/v4/internal",
		Category:          "Ceramic Capacitors",
		Attributes:        []string{"Capacitance", "Voltage Rating"},
		UserAgent:         DefaultUserAgent,
		PageSize:          MaxPageSize,
		MaxPageOffset:     1000,
		Timeout:           30 * time.Second,
		RequestsPerSecond: 1,
		Burst:             1,
		MaxRetries:        2,
		RetryBackoff:      500 * time.Millisecond,
		RetryBackoffMax:   10 * time.Second,
		DataDir:           "data",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}
	parsed, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("endpoint must include a host")
	}

	if strings.TrimSpace(c.Category) == "" {
		return fmt.Errorf("category cannot be empty")
	}
	if len(c.Attributes) == 0 {
		return fmt.Errorf("at least one attribute is required")
	}
	seen := make(map[string]struct{}, len(c.Attributes))
	for _, a := range c.Attributes {
		if strings.TrimSpace(a) == "" {
			return fmt.Errorf("attribute names cannot be empty")
		}
		if _, ok := seen[a]; ok {
			return fmt.Errorf("attribute %q listed twice", a)
		}
		seen[a] = struct{}{}
	}

	if c.PageSize <= 0 || c.PageSize > MaxPageSize {
		return fmt.Errorf("page size must be between 1 and %d", MaxPageSize)
	}
	if c.MaxPageOffset < c.PageSize {
		return fmt.Errorf("max page offset (%d) cannot be below page size (%d)", c.MaxPageOffset, c.PageSize)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second cannot be negative")
	}
	if c.RequestsPerSecond > 0 && c.Burst <= 0 {
		return fmt.Errorf("burst must be positive when rate limiting")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.PerimeterXKey == "" {
		return fmt.Errorf("perimeterx key cannot be empty")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data dir cannot be empty")
	}

	return nil
}

// LoaderConfig configures the CSV-to-table loader.
type LoaderConfig struct {
	Driver      string
	DSN         string
	Table       string
	BatchSize   int
	CreateTable bool
	Truncate    bool
}

// DefaultLoaderConfig returns defaults for loading the normalized table.
func DefaultLoaderConfig() *LoaderConfig {
	return &LoaderConfig{
		Driver:      "postgres",
		Table:       "parts",
		BatchSize:   500,
		CreateTable: true,
	}
}

// Validate ensures the loader configuration is usable.
func (c *LoaderConfig) Validate() error {
	switch c.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("driver must be postgres, mysql, or sqlite")
	}
	if c.DSN == "" {
		return fmt.Errorf("dsn cannot be empty")
	}
	if strings.TrimSpace(c.Table) == "" {
		return fmt.Errorf("table cannot be empty")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	return nil
}

// NormalizeConfig configures the raw-results-to-table transform.
type NormalizeConfig struct {
	Inputs       []string
	OutputFile   string
	OutputFormat string
	Category     string
	Workers      int
	BufferSize   int
	BatchSize    int
	DedupeSize   int
	Year         int

	// ReportInterval enables periodic progress logs when positive.
	ReportInterval time.Duration
}

// DefaultNormalizeConfig returns defaults stamped with the current year.
func DefaultNormalizeConfig() *NormalizeConfig {
	return &NormalizeConfig{
		OutputFile:   "data/parts.csv",
		OutputFormat: "csv",
		Workers:      1,
		BufferSize:   512,
		BatchSize:    64,
		DedupeSize:   100_000,
		Year:         time.Now().Year(),
	}
}

// Validate ensures the normalize configuration is usable.
func (c *NormalizeConfig) Validate() error {
	if len(c.Inputs) == 0 {
		return fmt.Errorf("at least one input file is required")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	switch c.OutputFormat {
	case "csv", "json", "dual", "xlsx":
	default:
		return fmt.Errorf("output format must be csv, json, dual, or xlsx")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeSize <= 0 {
		return fmt.Errorf("dedupe size must be positive")
	}
	if c.Year <= 0 {
		return fmt.Errorf("year must be positive")
	}
	return nil
}
