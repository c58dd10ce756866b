package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration loaded from config.yaml.
type Config struct {
	RootPath          string           `yaml:"root_path"          json:"root_path"`
	AdditionalFolders []string         `yaml:"additional_folders" json:"additional_folders"`
	Schedule          string           `yaml:"schedule"           json:"schedule"`
	DBPath            string           `yaml:"db_path"            json:"-"`
	HTTPAddr          string           `yaml:"http_addr"          json:"-"`
	LogLevel          string           `yaml:"log_level"          json:"-"`
	Eviction          Eviction         `yaml:"eviction"           json:"eviction"`
	Window            Window           `yaml:"window"             json:"window"`
	FingerprintCache  FingerprintCache `yaml:"fingerprint_cache"  json:"-"`
	Scanner           Scanner          `yaml:"scanner"            json:"-"`
}

// Eviction bounds how many configuration identities the catalog retains.
type Eviction struct {
	MaxGenerations int `yaml:"max_generations" json:"max_generations"`
	TTLDays        int `yaml:"ttl_days"        json:"ttl_days"`
}

// Window sizes the per-session result buffers.
type Window struct {
	MaxRows     int `yaml:"max_rows"     json:"max_rows"`
	PageSize    int `yaml:"page_size"    json:"page_size"`
	MaxSessions int `yaml:"max_sessions" json:"max_sessions"`
}

// Fingerprint cache backends.
const (
	BackendDB   = "db"
	BackendFile = "file"
)

// FingerprintCache selects where scan fingerprints are kept.
type FingerprintCache struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// Scanner configures the external scanner process.
type Scanner struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Timeout string   `yaml:"timeout"`
}

// TimeoutDuration parses Timeout. Call Validate first.
func (s Scanner) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(s.Timeout)
	return d
}

// applyDefaults fills zero/empty fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "/data/ghostcat.db"
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = "127.0.0.1:8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Eviction.MaxGenerations == 0 {
		c.Eviction.MaxGenerations = 5
	}
	if c.Eviction.TTLDays == 0 {
		c.Eviction.TTLDays = 30
	}
	if c.Window.MaxRows == 0 {
		c.Window.MaxRows = 1000
	}
	if c.Window.PageSize == 0 {
		c.Window.PageSize = 100
	}
	if c.Window.MaxSessions == 0 {
		c.Window.MaxSessions = 64
	}
	if c.FingerprintCache.Backend == "" {
		c.FingerprintCache.Backend = BackendDB
	}
	if c.FingerprintCache.Path == "" {
		c.FingerprintCache.Path = filepath.Join(filepath.Dir(c.DBPath), "fingerprints.json")
	}
	if c.Scanner.Timeout == "" {
		c.Scanner.Timeout = "2m"
	}
}

// Default returns a Config with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Eviction.MaxGenerations < 0 {
		errs = append(errs, fmt.Errorf("eviction.max_generations must be positive, got %d", c.Eviction.MaxGenerations))
	}
	if c.Eviction.TTLDays < 0 {
		errs = append(errs, fmt.Errorf("eviction.ttl_days must be positive, got %d", c.Eviction.TTLDays))
	}
	if c.Window.MaxRows < 0 || c.Window.PageSize < 0 || c.Window.MaxSessions < 0 {
		errs = append(errs, errors.New("window sizes must be positive"))
	}
	if c.Window.PageSize > c.Window.MaxRows {
		errs = append(errs, fmt.Errorf("window.page_size %d exceeds window.max_rows %d", c.Window.PageSize, c.Window.MaxRows))
	}
	if !slices.Contains([]string{BackendDB, BackendFile}, c.FingerprintCache.Backend) {
		errs = append(errs, fmt.Errorf("fingerprint_cache.backend must be %q or %q, got %q", BackendDB, BackendFile, c.FingerprintCache.Backend))
	}
	if d, err := time.ParseDuration(c.Scanner.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("scanner.timeout: %w", err))
	} else if d < 0 {
		errs = append(errs, fmt.Errorf("scanner.timeout must not be negative, got %s", d))
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("schedule %q: %w", c.Schedule, err))
		}
	}
	return errors.Join(errs...)
}

// Load reads and parses the YAML config file at path.
// If the file does not exist, Load returns a default Config so the server
// can start without a config file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return &cfg, nil
}
