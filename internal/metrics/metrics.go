// Sessionlens - Agent Session Log Analytics
// Copyright 2026 The Sessionlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sessionlens/sessionlens

// Package metrics exposes Prometheus instrumentation for the query layer:
// engine query latency, result cache efficiency, view materializations,
// index scans, and HTTP endpoint latency. Served at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Engine metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation"},
	)

	// Session view metrics
	ViewMaterializations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_view_materializations_total",
			Help: "Total number of log file parses into session views",
		},
	)

	ViewReuses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_view_reuses_total",
			Help: "Total number of session view acquisitions served without re-parsing",
		},
	)

	ViewsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_views_swept_total",
			Help: "Total number of idle session views dropped by the sweeper",
		},
	)

	ViewsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "session_views_active",
			Help: "Current number of materialized session views",
		},
	)

	// Result cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "result_cache_hits_total",
			Help: "Total number of result cache hits",
		},
		[]string{"resource"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "result_cache_misses_total",
			Help: "Total number of result cache misses (absent or stale)",
		},
		[]string{"resource"},
	)

	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "result_cache_evictions_total",
			Help: "Total number of result cache evictions",
		},
	)

	// Project index metrics
	IndexScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "project_index_scan_duration_seconds",
			Help:    "Duration of full project index scans in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
	)

	IndexScanErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "project_index_scan_errors_total",
			Help: "Total number of failed project index scans",
		},
	)

	IndexProjects = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "project_index_projects",
			Help: "Number of projects in the current index snapshot",
		},
	)

	// HTTP metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordDBQuery records one engine query's outcome.
func RecordDBQuery(operation string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordAPIRequest records one HTTP request's outcome.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
