// Sessionlens - Agent Session Log Analytics
// Copyright 2026 The Sessionlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sessionlens/sessionlens

package database

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/sessionlens/sessionlens/internal/config"
	"github.com/sessionlens/sessionlens/internal/logging"
	"github.com/sessionlens/sessionlens/internal/logsource"
	"github.com/sessionlens/sessionlens/internal/metrics"
	"github.com/sessionlens/sessionlens/internal/pricing"
)

// DB wraps an in-memory DuckDB instance that serves ad-hoc analytical
// queries over session log files. Log files are materialized into named
// session views on demand (see views.go); the database file itself holds
// no durable state.
type DB struct {
	conn *sql.DB
	cfg  *config.Config

	resolver  *logsource.Resolver
	subagents *logsource.SubagentIndex
	prices    *pricing.Table

	// View registry. Creation and drop are serialized behind viewMu;
	// queries against existing views run concurrently on the pool.
	viewMu sync.Mutex
	views  map[string]*sessionView

	// parseCounts tracks materializations per path, for tests and the
	// single-parse guarantee.
	parseMu     sync.Mutex
	parseCounts map[string]int
}

// New opens an in-memory engine tuned from cfg. prices may be nil, in
// which case cost fields are reported as zero.
func New(cfg *config.Config, resolver *logsource.Resolver, subagents *logsource.SubagentIndex, prices *pricing.Table) (*DB, error) {
	numThreads := cfg.Database.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	// preserve_insertion_order=false: every query orders explicitly, and
	// dropping insertion order lowers memory while parsing large logs.
	connStr := fmt.Sprintf(":memory:?threads=%d&max_memory=%s&preserve_insertion_order=false&autoinstall_known_extensions=false&autoload_known_extensions=false",
		numThreads, cfg.Database.MaxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}

	db := &DB{
		conn:        conn,
		cfg:         cfg,
		resolver:    resolver,
		subagents:   subagents,
		prices:      prices,
		views:       make(map[string]*sessionView),
		parseCounts: make(map[string]int),
	}

	db.configureConnectionPool()

	if err := db.conn.Ping(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to reach engine: %w", err)
	}

	logging.Info().
		Int("threads", numThreads).
		Str("max_memory", cfg.Database.MaxMemory).
		Msg("Engine initialized")

	return db, nil
}

// configureConnectionPool sizes the database/sql pool. DuckDB is embedded,
// so connections are cheap cursors into the same process-local instance.
func (db *DB) configureConnectionPool() {
	maxConns := runtime.NumCPU()
	if maxConns < 2 {
		maxConns = 2
	}
	db.conn.SetMaxOpenConns(maxConns)
	db.conn.SetMaxIdleConns(maxConns / 2)
	db.conn.SetConnMaxLifetime(time.Hour)
	db.conn.SetConnMaxIdleTime(5 * time.Minute)
}

// Conn exposes the underlying sql.DB for tests.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Resolver returns the log source resolver the engine was built with.
func (db *DB) Resolver() *logsource.Resolver {
	return db.resolver
}

// Subagents returns the subagent index the engine was built with.
func (db *DB) Subagents() *logsource.SubagentIndex {
	return db.subagents
}

// Ping verifies the engine is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close drops all views and closes the engine.
func (db *DB) Close() error {
	db.viewMu.Lock()
	db.views = make(map[string]*sessionView)
	db.viewMu.Unlock()
	return db.conn.Close()
}

// query runs a read query with latency metrics attached.
func (db *DB) query(ctx context.Context, op, sqlText string, args ...interface{}) (*sql.Rows, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, sqlText, args...)
	metrics.RecordDBQuery(op, time.Since(start), err)
	if err != nil {
		return nil, engineErr(op, err)
	}
	return rows, nil
}

// queryRow runs a single-row read query with latency metrics attached.
func (db *DB) queryRow(ctx context.Context, op, sqlText string, args ...interface{}) *sql.Row {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx, sqlText, args...)
	metrics.RecordDBQuery(op, time.Since(start), nil)
	return row
}

func closeQuietly(conn *sql.DB) {
	if err := conn.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close engine connection")
	}
}
