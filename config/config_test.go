package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.PerimeterXKey = "px-test"
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "empty endpoint",
			mutate: func(cfg *Config) {
				cfg.Endpoint = ""
			},
			wantErr: "endpoint",
		},
		{
			name: "endpoint without host",
			mutate: func(cfg *Config) {
				cfg.Endpoint = "http://"
			},
			wantErr: "endpoint",
		},
		{
			name: "no attributes",
			mutate: func(cfg *Config) {
				cfg.Attributes = nil
			},
			wantErr: "attribute",
		},
		{
			name: "duplicate attribute",
			mutate: func(cfg *Config) {
				cfg.Attributes = []string{"Capacitance", "Capacitance"}
			},
			wantErr: "twice",
		},
		{
			name: "page size above api limit",
			mutate: func(cfg *Config) {
				cfg.PageSize = 101
			},
			wantErr: "page size",
		},
		{
			name: "offset below page size",
			mutate: func(cfg *Config) {
				cfg.MaxPageOffset = 10
			},
			wantErr: "max page offset",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "backoff above max",
			mutate: func(cfg *Config) {
				cfg.RetryBackoff = time.Minute
				cfg.RetryBackoffMax = time.Second
			},
			wantErr: "retry backoff",
		},
		{
			name: "missing px key",
			mutate: func(cfg *Config) {
				cfg.PerimeterXKey = ""
			},
			wantErr: "perimeterx",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestLoaderConfigValidate(t *testing.T) {
	cfg := DefaultLoaderConfig()
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "dsn") {
		t.Fatalf("expected dsn error, got %v", err)
	}
	cfg.DSN = "postgres://localhost/parts"
	cfg.Driver = "oracle"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "driver") {
		t.Fatalf("expected driver error, got %v", err)
	}
	cfg.Driver = "sqlite"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SCRAPER_PX", "px-from-env")
	t.Setenv("SCRAPER_RPS", "0.5")
	t.Setenv("SCRAPER_TIMEOUT", "5s")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.PerimeterXKey != "px-from-env" {
		t.Fatalf("px = %q", cfg.PerimeterXKey)
	}
	if cfg.RequestsPerSecond != 0.5 {
		t.Fatalf("rps = %v", cfg.RequestsPerSecond)
	}
	if cfg.Timeout != 5*time.Second {
		t.Fatalf("timeout = %v", cfg.Timeout)
	}

	t.Setenv("SCRAPER_MAX_RETRIES", "many")
	if err := cfg.ApplyEnv(); err == nil {
		t.Fatalf("expected parse error for SCRAPER_MAX_RETRIES")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("PARTSCRAPE_DOTENV_TEST=loaded\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("PARTSCRAPE_DOTENV_TEST") })

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if v, ok := EnvString("PARTSCRAPE_DOTENV_TEST"); !ok || v != "loaded" {
		t.Fatalf("PARTSCRAPE_DOTENV_TEST = %q, %v", v, ok)
	}
}

func TestCatalogResolve(t *testing.T) {
	cat, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("default catalog: %v", err)
	}

	id, attrs, err := cat.Resolve("Ceramic Capacitors", []string{"Capacitance", "Voltage Rating"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != "6332" {
		t.Fatalf("category id = %q, want 6332", id)
	}
	if len(attrs) != 2 || attrs[0].Key != "capacitance" || attrs[1].Key != "voltagerating" {
		t.Fatalf("attributes = %+v", attrs)
	}

	if _, _, err := cat.Resolve("Resistors", nil); !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
	if _, _, err := cat.Resolve("Ceramic Capacitors", []string{"Colour"}); !errors.Is(err, ErrUnknownAttribute) {
		t.Fatalf("expected ErrUnknownAttribute, got %v", err)
	}

	if class, ok := cat.CeramicClass("X7R"); !ok || class != "C2" {
		t.Fatalf("X7R class = %q, %v", class, ok)
	}
}

func TestParseCatalogRejectsEmpty(t *testing.T) {
	if _, err := ParseCatalog([]byte("categories: {}\n")); err == nil {
		t.Fatalf("expected error for empty catalog")
	}
}

func TestNormalizeConfigValidate(t *testing.T) {
	cfg := DefaultNormalizeConfig()
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "input") {
		t.Fatalf("expected input error, got %v", err)
	}
	cfg.Inputs = []string{"data/Ceramic Capacitors.json"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.OutputFormat = "parquet"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "format") {
		t.Fatalf("expected format error, got %v", err)
	}
}

func TestCatalogCategoryName(t *testing.T) {
	cat := NewCatalog(map[string]string{"Ceramic Capacitors": "6332"}, map[string]string{"Capacitance": "capacitance"}, nil)
	if name, ok := cat.CategoryName("6332"); !ok || name != "Ceramic Capacitors" {
		t.Fatalf("CategoryName = %q, %v", name, ok)
	}
	if _, ok := cat.CategoryName("1"); ok {
		t.Fatalf("unknown id should not resolve")
	}
}
