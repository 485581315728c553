// Sessionlens - Agent Session Log Analytics
// Copyright 2026 The Sessionlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sessionlens/sessionlens

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/sessionlens/config.yaml",
	"/etc/sessionlens/config.yml",
}

// ConfigPathEnvVar overrides the config file search entirely.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns built-in defaults, applied before file and env
// layers.
func defaultConfig() *Config {
	return &Config{
		Logs: LogsConfig{
			Root:          defaultLogsRoot(),
			MaxObjectSize: 100 * 1024 * 1024,
		},
		Database: DatabaseConfig{
			MaxMemory: "2GB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		Cache: CacheConfig{
			MaxEntries:    200,
			EvictBatch:    50,
			ViewTTL:       5 * time.Minute,
			SweepInterval: time.Minute,
		},
		Index: IndexConfig{
			ScanInterval: 30 * time.Second,
		},
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        3859,
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		API: APIConfig{
			DefaultPageSize:    50,
			MaxPageSize:        200,
			CORSAllowedOrigins: []string{"*"},
			RateLimitRequests:  300,
			RateLimitWindow:    time.Minute,
		},
		Pricing: PricingConfig{
			Enabled: false,
			URL:     "https://raw.githubusercontent.com/BerriAI/litellm/main/model_prices_and_context_window.json",
			Timeout: 10 * time.Second,
		},
		Watch: WatchConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from layered sources:
//  1. built-in defaults
//  2. optional YAML config file
//  3. environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// LOGS_ROOT -> logs.root, HTTP_PORT -> server.port, and so on.
	// Unmapped variables are dropped so stray environment noise cannot
	// leak into the config.
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped keys map to "" and are skipped.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"logs_root":            "logs.root",
		"logs_max_object_size": "logs.max_object_size",

		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		"cache_max_entries":    "cache.max_entries",
		"cache_evict_batch":    "cache.evict_batch",
		"cache_view_ttl":       "cache.view_ttl",
		"cache_sweep_interval": "cache.sweep_interval",

		"index_scan_interval": "index.scan_interval",

		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",
		"environment":  "server.environment",

		"api_default_page_size":    "api.default_page_size",
		"api_max_page_size":        "api.max_page_size",
		"api_cors_allowed_origins": "api.cors_allowed_origins",
		"api_rate_limit_requests":  "api.rate_limit_requests",
		"api_rate_limit_window":    "api.rate_limit_window",

		"pricing_enabled": "pricing.enabled",
		"pricing_url":     "pricing.url",
		"pricing_timeout": "pricing.timeout",

		"watch_enabled": "watch.enabled",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
