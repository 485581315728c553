// Sessionlens - Agent Session Log Analytics
// Copyright 2026 The Sessionlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sessionlens/sessionlens

// Package api serves the dashboard HTTP API: the project/session catalog,
// keyset-paginated message lists, and per-session analytics, all wrapped
// in the standard response envelope.
package api

import (
	"net/http"
	"time"

	"github.com/sessionlens/sessionlens/internal/cache"
	"github.com/sessionlens/sessionlens/internal/config"
	"github.com/sessionlens/sessionlens/internal/database"
	"github.com/sessionlens/sessionlens/internal/index"
	"github.com/sessionlens/sessionlens/internal/models"
)

// Handler processes HTTP requests against the engine and the project
// index. Analytics responses are memoized in per-resource result caches
// keyed by source file mtime, so a page reload after the CLI appends a
// line recomputes while an unchanged log answers from memory.
type Handler struct {
	db        *database.DB
	index     *index.Index
	config    *config.Config
	startTime time.Time

	metricsCache *cache.Cache
	toolsCache   *cache.Cache
	filtersCache *cache.Cache
	errorsCache  *cache.Cache
}

// NewHandler creates the API handler with its result caches.
func NewHandler(db *database.DB, idx *index.Index, cfg *config.Config) *Handler {
	return &Handler{
		db:        db,
		index:     idx,
		config:    cfg,
		startTime: time.Now(),

		metricsCache: cache.New("metrics", cfg.Cache.MaxEntries, cfg.Cache.EvictBatch),
		toolsCache:   cache.New("tools", cfg.Cache.MaxEntries, cfg.Cache.EvictBatch),
		filtersCache: cache.New("filters", cfg.Cache.MaxEntries, cfg.Cache.EvictBatch),
		errorsCache:  cache.New("errors", cfg.Cache.MaxEntries, cfg.Cache.EvictBatch),
	}
}

// Caches returns every result cache, for change-driven invalidation.
func (h *Handler) Caches() []*cache.Cache {
	return []*cache.Cache{h.metricsCache, h.toolsCache, h.filtersCache, h.errorsCache}
}

// healthStatus is the health endpoint payload.
type healthStatus struct {
	Status          string    `json:"status"`
	Version         string    `json:"version"`
	EngineConnected bool      `json:"engine_connected"`
	ActiveViews     int       `json:"active_views"`
	IndexScannedAt  time.Time `json:"index_scanned_at"`
	UptimeSeconds   float64   `json:"uptime_seconds"`
}

// Health reports engine reachability and index freshness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	engineConnected := h.db != nil && h.db.Ping(r.Context()) == nil

	status := "healthy"
	if !engineConnected {
		status = "degraded"
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data: healthStatus{
			Status:          status,
			Version:         "1.0.0",
			EngineConnected: engineConnected,
			ActiveViews:     h.db.ViewCount(),
			IndexScannedAt:  h.index.ScannedAt(),
			UptimeSeconds:   time.Since(h.startTime).Seconds(),
		},
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}
