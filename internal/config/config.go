// Sessionlens - Agent Session Log Analytics
// Copyright 2026 The Sessionlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sessionlens/sessionlens

// Package config loads and validates Sessionlens configuration.
//
// Configuration is layered with koanf: struct defaults, then an optional
// YAML file, then environment variables. Precedence: ENV > file > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the root configuration for the Sessionlens server.
type Config struct {
	Logs     LogsConfig     `koanf:"logs"`
	Database DatabaseConfig `koanf:"database"`
	Cache    CacheConfig    `koanf:"cache"`
	Index    IndexConfig    `koanf:"index"`
	Server   ServerConfig   `koanf:"server"`
	API      APIConfig      `koanf:"api"`
	Pricing  PricingConfig  `koanf:"pricing"`
	Watch    WatchConfig    `koanf:"watch"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// LogsConfig locates the session logs on disk.
type LogsConfig struct {
	// Root is the directory containing per-project session log
	// directories. Defaults to ~/.claude/projects.
	Root string `koanf:"root"`

	// MaxObjectSize is the maximum single JSON record size the engine
	// will accept when reading a log file, in bytes.
	MaxObjectSize int64 `koanf:"max_object_size"`
}

// DatabaseConfig tunes the embedded analytical engine.
type DatabaseConfig struct {
	// MaxMemory caps engine memory usage (e.g. "2GB").
	MaxMemory string `koanf:"max_memory"`

	// Threads is the engine thread count. 0 means runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// CacheConfig tunes the result cache and the session view registry.
type CacheConfig struct {
	// MaxEntries caps the result cache; when exceeded, the oldest
	// EvictBatch entries are dropped.
	MaxEntries int `koanf:"max_entries"`
	EvictBatch int `koanf:"evict_batch"`

	// ViewTTL is how long an idle session view survives before the
	// sweeper drops it.
	ViewTTL time.Duration `koanf:"view_ttl"`

	// SweepInterval is how often the view sweeper runs.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// IndexConfig tunes the background project scanner.
type IndexConfig struct {
	// ScanInterval is the delay between full rescans of the logs root.
	ScanInterval time.Duration `koanf:"scan_interval"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"`
}

// APIConfig holds pagination bounds and request policies for the API.
type APIConfig struct {
	DefaultPageSize int `koanf:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size"`

	// CORSAllowedOrigins lists origins allowed to call the API. The
	// dashboard dev server runs on its own port, so cross-origin reads
	// are the normal case.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// RateLimitRequests caps requests per client IP per
	// RateLimitWindow. 0 disables rate limiting.
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

// PricingConfig controls the optional model-price table refresh. When
// disabled (default) the built-in price table is used as-is.
type PricingConfig struct {
	Enabled bool          `koanf:"enabled"`
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

// WatchConfig controls the filesystem watcher that invalidates views and
// cached results when log files change.
type WatchConfig struct {
	Enabled bool `koanf:"enabled"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLogs(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateLogs() error {
	if c.Logs.Root == "" {
		return fmt.Errorf("LOGS_ROOT must not be empty")
	}
	if c.Logs.MaxObjectSize <= 0 {
		return fmt.Errorf("logs.max_object_size must be positive, got %d", c.Logs.MaxObjectSize)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", c.Server.Timeout)
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.MaxEntries < 1 {
		return fmt.Errorf("cache.max_entries must be at least 1, got %d", c.Cache.MaxEntries)
	}
	if c.Cache.EvictBatch < 1 || c.Cache.EvictBatch > c.Cache.MaxEntries {
		return fmt.Errorf("cache.evict_batch must be between 1 and cache.max_entries, got %d", c.Cache.EvictBatch)
	}
	if c.Cache.ViewTTL <= 0 {
		return fmt.Errorf("cache.view_ttl must be positive, got %s", c.Cache.ViewTTL)
	}
	if c.Cache.SweepInterval <= 0 {
		return fmt.Errorf("cache.sweep_interval must be positive, got %s", c.Cache.SweepInterval)
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.API.DefaultPageSize < 1 {
		return fmt.Errorf("api.default_page_size must be at least 1, got %d", c.API.DefaultPageSize)
	}
	if c.API.MaxPageSize < c.API.DefaultPageSize {
		return fmt.Errorf("api.max_page_size (%d) must not be below api.default_page_size (%d)",
			c.API.MaxPageSize, c.API.DefaultPageSize)
	}
	if c.API.RateLimitRequests < 0 {
		return fmt.Errorf("api.rate_limit_requests must not be negative, got %d", c.API.RateLimitRequests)
	}
	if c.API.RateLimitRequests > 0 && c.API.RateLimitWindow <= 0 {
		return fmt.Errorf("api.rate_limit_window must be positive when rate limiting is enabled, got %s",
			c.API.RateLimitWindow)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT %q must be json or console", c.Logging.Format)
	}
	return nil
}

// defaultLogsRoot resolves ~/.claude/projects, falling back to a relative
// path when the home directory cannot be determined.
func defaultLogsRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".claude", "projects")
	}
	return filepath.Join(home, ".claude", "projects")
}
