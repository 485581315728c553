// Sessionlens - Agent Session Log Analytics
// Copyright 2026 The Sessionlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sessionlens/sessionlens

// router.go - Chi route table
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the full route table around a handler.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger())
	r.Use(CORS(h.config.API.CORSAllowedOrigins))
	r.Use(Recoverer)

	r.Get("/api/v1/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(PrometheusMetrics())
		r.Use(RateLimit(h.config.API.RateLimitRequests, h.config.API.RateLimitWindow))

		r.Get("/projects", h.Projects)
		r.Route("/projects/{project}", func(r chi.Router) {
			r.Get("/sessions", h.Sessions)
			r.Route("/sessions/{session}", func(r chi.Router) {
				r.Get("/messages", h.Messages)
				r.Get("/metrics", h.Metrics)
				r.Get("/tools", h.Tools)
				r.Get("/filters", h.Filters)
				r.Get("/errors", h.Errors)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})

	return r
}
