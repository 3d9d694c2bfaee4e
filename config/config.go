package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Source is one listing page and the tag its plants are filed under.
type Source struct {
	Tag string `yaml:"tag"`
	URL string `yaml:"url"`
}

// Config holds scraper configuration.
type Config struct {
	Sources []Source `yaml:"sources"`

	// DelayMin and DelayMax bound the politeness wait issued before every request.
	DelayMin time.Duration `yaml:"delay_min"`
	DelayMax time.Duration `yaml:"delay_max"`

	// MaxRetries is the total number of attempts per URL, including the first.
	MaxRetries      int           `yaml:"max_retries"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
	RetryBackoffMax time.Duration `yaml:"retry_backoff_max"`
	RetryJitter     time.Duration `yaml:"retry_jitter"`

	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
	BatchDelay  time.Duration `yaml:"batch_delay"`
	BatchJitter time.Duration `yaml:"batch_jitter"`

	// Limit caps the number of deduplicated references sent to the detail phase. Zero means all.
	Limit int `yaml:"limit"`

	OutputDir       string `yaml:"output_dir"`
	OutputPrefix    string `yaml:"output_prefix"`
	StableFilenames bool   `yaml:"stable_filenames"`
	JSONLines       bool   `yaml:"json_lines"`
	SQLitePath      string `yaml:"sqlite_path"`
	DedupeMaxSize   int    `yaml:"dedupe_max_size"`

	UserAgent        string `yaml:"user_agent"`
	RespectRobotsTxt bool   `yaml:"respect_robots_txt"`
	Verbose          bool   `yaml:"verbose"`
	MetricsAddr      string `yaml:"metrics_addr"`
}

// DefaultConfig returns conservative defaults for the ASPCA plant lists.
func DefaultConfig() *Config {
	return &Config{
		Sources: []Source{
			{Tag: "Dogs", URL: "https://www.aspca.org/pet-care/animal-poison-control/dogs-plant-list"},
			{Tag: "Cats", URL: "https://www.aspca.org/pet-care/animal-poison-control/cats-plant-list"},
		},
		DelayMin:         3 * time.Second,
		DelayMax:         7 * time.Second,
		MaxRetries:       5,
		RetryBackoff:     2 * time.Second,
		RetryBackoffMax:  0,
		RetryJitter:      time.Second,
		Concurrency:      2,
		Timeout:          10 * time.Second,
		BatchDelay:       2 * time.Second,
		BatchJitter:      2 * time.Second,
		OutputDir:        "output",
		OutputPrefix:     "aspca_plants",
		DedupeMaxSize:    10000,
		UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		RespectRobotsTxt: false,
	}
}

// Load reads a YAML file on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

// AllowedHosts lists the hosts of every configured source.
func (c *Config) AllowedHosts() []string {
	seen := make(map[string]struct{}, len(c.Sources))
	hosts := make([]string, 0, len(c.Sources))
	for _, src := range c.Sources {
		parsed, err := url.Parse(src.URL)
		if err != nil || parsed.Hostname() == "" {
			continue
		}
		if _, ok := seen[parsed.Hostname()]; ok {
			continue
		}
		seen[parsed.Hostname()] = struct{}{}
		hosts = append(hosts, parsed.Hostname())
	}
	return hosts
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	tags := make(map[string]struct{}, len(c.Sources))
	for i, src := range c.Sources {
		if src.Tag == "" {
			return fmt.Errorf("source %d: tag cannot be empty", i)
		}
		if _, ok := tags[src.Tag]; ok {
			return fmt.Errorf("source %d: duplicate tag %q", i, src.Tag)
		}
		tags[src.Tag] = struct{}{}

		parsedURL, err := url.Parse(src.URL)
		if err != nil {
			return fmt.Errorf("source %q: invalid source URL: %w", src.Tag, err)
		}
		if parsedURL.Host == "" {
			return fmt.Errorf("source %q: source URL must include a host", src.Tag)
		}
	}

	if c.DelayMin < 0 {
		return fmt.Errorf("delay min cannot be negative")
	}
	if c.DelayMax < c.DelayMin {
		return fmt.Errorf("delay max (%s) cannot be below delay min (%s)", c.DelayMax, c.DelayMin)
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("max retries must be positive")
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
	if c.RetryJitter < 0 {
		return fmt.Errorf("retry jitter cannot be negative")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.BatchDelay < 0 {
		return fmt.Errorf("batch delay cannot be negative")
	}
	if c.BatchJitter < 0 {
		return fmt.Errorf("batch jitter cannot be negative")
	}
	if c.Limit < 0 {
		return fmt.Errorf("limit cannot be negative")
	}
	if c.OutputPrefix == "" {
		return fmt.Errorf("output prefix cannot be empty")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}
