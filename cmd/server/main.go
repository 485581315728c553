// Sessionlens - Agent Session Log Analytics
// Copyright 2026 The Sessionlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sessionlens/sessionlens

// Package main is the entry point for the Sessionlens server.
//
// Sessionlens serves analytics over agent CLI session logs: JSONL files
// appended live under a projects directory, one file per session. The
// server resolves those files on demand into an in-memory DuckDB engine
// and exposes a dashboard API for browsing messages, token usage, costs,
// and tool activity.
//
// Startup order:
//
//  1. Configuration: Koanf v2 layered load (defaults, config.yaml, env)
//  2. Logging: zerolog initialized from config
//  3. Pricing: built-in table, optionally refreshed from LiteLLM
//  4. Engine: in-memory DuckDB with on-demand session views
//  5. Project index: synchronous bootstrap scan of the logs root
//  6. Supervisor tree: index rescans, log watcher, view sweeper, HTTP
//
// The server shuts down gracefully on SIGINT and SIGTERM: the supervisor
// tree stops its services, in-flight requests get the configured
// timeout, and the engine is closed last.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sessionlens/sessionlens/internal/api"
	"github.com/sessionlens/sessionlens/internal/cache"
	"github.com/sessionlens/sessionlens/internal/config"
	"github.com/sessionlens/sessionlens/internal/database"
	"github.com/sessionlens/sessionlens/internal/index"
	"github.com/sessionlens/sessionlens/internal/logging"
	"github.com/sessionlens/sessionlens/internal/logsource"
	"github.com/sessionlens/sessionlens/internal/pricing"
	"github.com/sessionlens/sessionlens/internal/supervisor"
	"github.com/sessionlens/sessionlens/internal/supervisor/services"
	"github.com/sessionlens/sessionlens/internal/watch"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("logs_root", cfg.Logs.Root).
		Str("max_memory", cfg.Database.MaxMemory).
		Msg("Starting Sessionlens")

	prices := pricing.Fallback()
	if cfg.Pricing.Enabled {
		refreshCtx, cancelRefresh := context.WithTimeout(context.Background(), cfg.Pricing.Timeout)
		if err := prices.Refresh(refreshCtx, cfg.Pricing.URL, cfg.Pricing.Timeout); err != nil {
			logging.Warn().Err(err).Msg("Pricing refresh failed, using built-in table")
		}
		cancelRefresh()
	}

	resolver := logsource.NewResolver(cfg.Logs.Root)
	subagents := logsource.NewSubagentIndex(resolver)

	db, err := database.New(cfg, resolver, subagents, prices)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize engine")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing engine")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The catalog must answer from the first request, so the initial scan
	// runs before the server binds.
	idx := index.New(resolver, cfg.Index.ScanInterval)
	if err := idx.Bootstrap(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Initial project scan failed")
	}
	logging.Info().Int("projects", len(idx.Projects())).Msg("Project index bootstrapped")

	handler := api.NewHandler(db, idx, cfg)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	tree.AddBackgroundService(idx)
	tree.AddBackgroundService(services.NewSweeperService(db, cfg.Cache.ViewTTL, cfg.Cache.SweepInterval))

	if cfg.Watch.Enabled {
		watcher, err := watch.New(cfg.Logs.Root, time.Second,
			invalidateOnChange(cfg.Logs.Root, db, subagents, handler.Caches()))
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create log watcher")
		}
		tree.AddBackgroundService(watcher)
	} else {
		logging.Info().Msg("Log watcher disabled; relying on mtime validation alone")
	}

	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Server stopped gracefully")
}

// invalidateOnChange drops every piece of derived state computed from a
// changed file: its session view, any cached analytics, and, for
// subagent directories, the per-project subagent mapping. The mtime
// checks would catch all of this lazily; the watcher just makes it
// immediate.
func invalidateOnChange(root string, db *database.DB, subagents *logsource.SubagentIndex, caches []*cache.Cache) func(paths []string) {
	return func(paths []string) {
		for _, path := range paths {
			db.InvalidateView(path)
			for _, c := range caches {
				c.InvalidatePath(path)
			}
			if project := projectFor(root, path); project != "" {
				subagents.Invalidate(project)
			}
		}
	}
}

// projectFor extracts the project directory name from a path under root.
func projectFor(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) < 2 {
		return ""
	}
	return parts[0]
}
