// Sessionlens - Agent Session Log Analytics
// Copyright 2026 The Sessionlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sessionlens/sessionlens

// views.go - session view lifecycle
//
// A session view is a named, ephemeral materialization of one log file
// with a fixed canonical schema. Materializing once per (path, mtime)
// means a page of queries against the same session parses the file a
// single time; a changed mtime re-materializes on next acquire.
package database

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sessionlens/sessionlens/internal/logging"
	"github.com/sessionlens/sessionlens/internal/logsource"
	"github.com/sessionlens/sessionlens/internal/metrics"
)

type sessionView struct {
	name       string
	path       string
	modTime    time.Time
	lastAccess time.Time
}

// viewColumns is the canonical session view schema. Every reader path
// projects into exactly these columns so the query builder never depends
// on what a particular log file happens to contain.
const viewColumns = "uuid VARCHAR, ts TIMESTAMP, kind VARCHAR, session_id VARCHAR, " +
	"message_id VARCHAR, model VARCHAR, content VARCHAR, " +
	"input_tokens BIGINT, output_tokens BIGINT, cache_creation_tokens BIGINT, cache_read_tokens BIGINT"

// AcquireView returns the view name for a source, materializing it when
// absent or stale. The file is stat'd here so the decision is made
// against the current mtime, not the one captured at resolve time.
func (db *DB) AcquireView(ctx context.Context, src logsource.Source) (string, error) {
	info, err := os.Stat(src.Path)
	if err != nil {
		return "", fmt.Errorf("%s: %w", src.Path, logsource.ErrNotFound)
	}

	name := ViewNameFor(src.Path)

	db.viewMu.Lock()
	defer db.viewMu.Unlock()

	if v, ok := db.views[name]; ok && v.modTime.Equal(info.ModTime()) {
		v.lastAccess = time.Now()
		metrics.ViewReuses.Inc()
		return name, nil
	}

	if err := db.materializeLocked(ctx, name, src, info); err != nil {
		return "", err
	}
	return name, nil
}

// materializeLocked (re)creates the view table. Caller holds viewMu.
func (db *DB) materializeLocked(ctx context.Context, name string, src logsource.Source, info os.FileInfo) error {
	var create string
	if info.Size() == 0 {
		// read_json refuses empty files; an empty log is an empty view.
		create = fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s)", name, viewColumns)
	} else {
		create = fmt.Sprintf("CREATE OR REPLACE TABLE %s AS %s", name, db.readerSQL(src))
	}

	start := time.Now()
	_, err := db.conn.ExecContext(ctx, create)
	metrics.RecordDBQuery("materialize_view", time.Since(start), err)
	if err != nil {
		return &ParseError{Path: src.Path, Err: err}
	}

	db.views[name] = &sessionView{
		name:       name,
		path:       src.Path,
		modTime:    info.ModTime(),
		lastAccess: time.Now(),
	}

	db.parseMu.Lock()
	db.parseCounts[src.Path]++
	db.parseMu.Unlock()

	metrics.ViewMaterializations.Inc()
	metrics.ViewsActive.Set(float64(len(db.views)))

	logging.Debug().
		Str("view", name).
		Str("file", src.Path).
		Int64("size_bytes", info.Size()).
		Msg("Materialized session view")
	return nil
}

// readerSQL builds the canonical projection over the source file.
//
// JSONL files are read with an explicit column specification so the view
// schema is stable no matter which record shapes the file contains;
// message.content stays JSON text so tool items remain queryable with
// from_json. Parquet snapshots are produced by the exporter with the
// canonical columns already in place.
func (db *DB) readerSQL(src logsource.Source) string {
	path := strings.ReplaceAll(src.Path, "'", "''")

	if src.Format == logsource.FormatParquet {
		return fmt.Sprintf(`SELECT uuid, ts, kind, session_id, message_id, model, content,
			input_tokens, output_tokens, cache_creation_tokens, cache_read_tokens
		FROM read_parquet('%s')`, path)
	}

	return fmt.Sprintf(`SELECT
		uuid,
		"timestamp" AS ts,
		"type" AS kind,
		sessionId AS session_id,
		message.id AS message_id,
		message.model AS model,
		CAST(message.content AS VARCHAR) AS content,
		message.usage.input_tokens AS input_tokens,
		message.usage.output_tokens AS output_tokens,
		message.usage.cache_creation_input_tokens AS cache_creation_tokens,
		message.usage.cache_read_input_tokens AS cache_read_tokens
	FROM read_json('%s',
		format='newline_delimited',
		maximum_object_size=%d,
		columns={
			uuid: 'VARCHAR',
			"timestamp": 'TIMESTAMP',
			"type": 'VARCHAR',
			sessionId: 'VARCHAR',
			message: 'STRUCT(id VARCHAR, model VARCHAR, content JSON, usage STRUCT(input_tokens BIGINT, output_tokens BIGINT, cache_creation_input_tokens BIGINT, cache_read_input_tokens BIGINT))'
		})`, path, db.cfg.Logs.MaxObjectSize)
}

// InvalidateView drops the view backing path, if any. Called by the fs
// watcher when a log file changes or disappears.
func (db *DB) InvalidateView(path string) {
	name := ViewNameFor(path)

	db.viewMu.Lock()
	defer db.viewMu.Unlock()

	if _, ok := db.views[name]; !ok {
		return
	}
	db.dropLocked(name)
	logging.Debug().Str("file", path).Msg("Invalidated session view")
}

// SweepIdleViews drops views idle longer than ttl and returns how many
// were dropped.
func (db *DB) SweepIdleViews(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	db.viewMu.Lock()
	defer db.viewMu.Unlock()

	swept := 0
	for name, v := range db.views {
		if v.lastAccess.Before(cutoff) {
			db.dropLocked(name)
			swept++
		}
	}
	if swept > 0 {
		metrics.ViewsSwept.Add(float64(swept))
		logging.Debug().Int("count", swept).Msg("Swept idle session views")
	}
	return swept
}

// ViewCount returns the number of materialized views.
func (db *DB) ViewCount() int {
	db.viewMu.Lock()
	defer db.viewMu.Unlock()
	return len(db.views)
}

// ParseCount returns how many times path has been materialized.
func (db *DB) ParseCount(path string) int {
	db.parseMu.Lock()
	defer db.parseMu.Unlock()
	return db.parseCounts[path]
}

// dropLocked removes a view from the registry and the engine. Caller
// holds viewMu. A failed DROP leaves nothing dangling: the registry entry
// is gone and CREATE OR REPLACE recovers the name on next acquire.
func (db *DB) dropLocked(name string) {
	delete(db.views, name)
	if _, err := db.conn.Exec("DROP TABLE IF EXISTS " + name); err != nil {
		logging.Warn().Err(err).Str("view", name).Msg("Failed to drop session view")
	}
	metrics.ViewsActive.Set(float64(len(db.views)))
}

// ViewNameFor derives the stable view name for a path. Names are prefixed
// and hex-encoded so any path yields a valid SQL identifier.
func ViewNameFor(path string) string {
	sum := sha256.Sum256([]byte(path))
	return fmt.Sprintf("session_%x", sum[:8])
}

// isMissingViewErr detects queries that raced the sweeper: the view was
// dropped between acquire and query execution.
func isMissingViewErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "does not exist") && strings.Contains(msg, "session_")
}
