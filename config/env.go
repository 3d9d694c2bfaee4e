package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}

// EnvDuration parses key as a Go duration ("750ms", "2s").
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}

// ApplyEnv overlays SCRAPER_* environment variables onto c.
func (c *Config) ApplyEnv() error {
	ints := []struct {
		key    string
		target *int
	}{
		{"SCRAPER_CONCURRENCY", &c.Concurrency},
		{"SCRAPER_MAX_RETRIES", &c.MaxRetries},
		{"SCRAPER_LIMIT", &c.Limit},
	}
	for _, item := range ints {
		value, ok, err := EnvInt(item.key)
		if err != nil {
			return err
		}
		if ok {
			*item.target = value
		}
	}

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"SCRAPER_DELAY_MIN", &c.DelayMin},
		{"SCRAPER_DELAY_MAX", &c.DelayMax},
		{"SCRAPER_TIMEOUT", &c.Timeout},
		{"SCRAPER_BATCH_DELAY", &c.BatchDelay},
		{"SCRAPER_BATCH_JITTER", &c.BatchJitter},
		{"SCRAPER_RETRY_BACKOFF", &c.RetryBackoff},
		{"SCRAPER_RETRY_BACKOFF_MAX", &c.RetryBackoffMax},
		{"SCRAPER_RETRY_JITTER", &c.RetryJitter},
	}
	for _, item := range durations {
		value, ok, err := EnvDuration(item.key)
		if err != nil {
			return err
		}
		if ok {
			*item.target = value
		}
	}

	if value, ok := EnvString("SCRAPER_OUTPUT_DIR"); ok {
		c.OutputDir = value
	}
	if value, ok := EnvString("SCRAPER_SQLITE_PATH"); ok {
		c.SQLitePath = value
	}
	if value, ok := EnvString("SCRAPER_METRICS_ADDR"); ok {
		c.MetricsAddr = value
	}
	return nil
}
