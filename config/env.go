package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads variables from the given files (".env" when none are given) without
// overriding variables already set in the environment. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// EnvString returns the trimmed value of key and whether it was set to something non-empty.
func EnvString(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// EnvInt parses key as an integer.
func EnvInt(key string) (int, bool, error) {
	v, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}

// EnvFloat parses key as a float.
func EnvFloat(key string) (float64, bool, error) {
	v, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return f, true, nil
}

// EnvDuration parses key with time.ParseDuration.
func EnvDuration(key string) (time.Duration, bool, error) {
	v, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return d, true, nil
}

// ApplyEnv overlays SCRAPER_* variables on c.
func (c *Config) ApplyEnv() error {
	if v, ok := EnvString("SCRAPER_ENDPOINT"); ok {
		c.Endpoint = v
	}
	if v, ok := EnvString("SCRAPER_PX"); ok {
		c.PerimeterXKey = v
	}
	if v, ok := EnvString("SCRAPER_USER_AGENT"); ok {
		c.UserAgent = v
	}
	if v, ok := EnvString("SCRAPER_DATA_DIR"); ok {
		c.DataDir = v
	}
	if v, ok := EnvString("SCRAPER_METRICS_ADDR"); ok {
		c.MetricsAddr = v
	}
	if v, ok, err := EnvFloat("SCRAPER_RPS"); err != nil {
		return err
	} else if ok {
		c.RequestsPerSecond = v
	}
	if v, ok, err := EnvInt("SCRAPER_MAX_RETRIES"); err != nil {
		return err
	} else if ok {
		c.MaxRetries = v
	}
	if v, ok, err := EnvDuration("SCRAPER_TIMEOUT"); err != nil {
		return err
	} else if ok {
		c.Timeout = v
	}
	return nil
}

// ApplyEnv overlays DATABASE_* variables on c.
func (c *LoaderConfig) ApplyEnv() error {
	if v, ok := EnvString("DATABASE_URL"); ok {
		c.DSN = v
	}
	if v, ok := EnvString("DATABASE_DRIVER"); ok {
		c.Driver = strings.ToLower(v)
	}
	if v, ok, err := EnvInt("DATABASE_BATCH_SIZE"); err != nil {
		return err
	} else if ok {
		c.BatchSize = v
	}
	return nil
}
