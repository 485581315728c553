// Sessionlens - Agent Session Log Analytics
// Copyright 2026 The Sessionlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sessionlens/sessionlens

// analytics.go - per-session aggregate queries
//
// Token sums deduplicate on message_id first: the API layer re-emits the
// same assistant message across streaming updates, and counting each copy
// would inflate usage.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"unicode/utf8"

	"github.com/sessionlens/sessionlens/internal/database/query"
	"github.com/sessionlens/sessionlens/internal/models"
	"github.com/sessionlens/sessionlens/internal/pricing"
	"github.com/sessionlens/sessionlens/internal/timeutil"
)

// GetSessionMetrics computes the full analytics payload for a session.
func (db *DB) GetSessionMetrics(ctx context.Context, project, session string) (*models.SessionMetrics, error) {
	var out *models.SessionMetrics
	err := db.withSessionView(ctx, project, session, func(view string) error {
		m, err := db.sessionMetricsFromView(ctx, view, session)
		if err != nil {
			return err
		}
		out = m
		return nil
	})
	return out, err
}

func (db *DB) sessionMetricsFromView(ctx context.Context, view, session string) (*models.SessionMetrics, error) {
	m := &models.SessionMetrics{SessionID: session}

	// Deduplicated token totals.
	tokenSQL := fmt.Sprintf(`SELECT
		COALESCE(SUM(input_tokens), 0),
		COALESCE(SUM(output_tokens), 0),
		COALESCE(SUM(cache_creation_tokens), 0),
		COALESCE(SUM(cache_read_tokens), 0)
	FROM (
		SELECT DISTINCT ON (message_id)
			input_tokens, output_tokens, cache_creation_tokens, cache_read_tokens
		FROM %s
		WHERE kind = 'assistant' AND message_id IS NOT NULL
	)`, view)
	row := db.queryRow(ctx, "session_tokens", tokenSQL)
	if err := row.Scan(&m.Tokens.InputTokens, &m.Tokens.OutputTokens,
		&m.Tokens.CacheCreationTokens, &m.Tokens.CacheReadTokens); err != nil {
		return nil, engineErr("session_tokens", err)
	}
	m.Tokens.CacheHitRate = pricing.CacheHitRate(m.Tokens)

	// Message counts and time range.
	countSQL := fmt.Sprintf(`SELECT
		COUNT(*),
		COUNT(*) FILTER (WHERE kind = 'user'),
		MIN(ts),
		MAX(ts)
	FROM %s`, view)
	var rawFirst, rawLast interface{}
	row = db.queryRow(ctx, "session_counts", countSQL)
	if err := row.Scan(&m.MessageCount, &m.UserMessages, &rawFirst, &rawLast); err != nil {
		return nil, engineErr("session_counts", err)
	}
	if rawFirst != nil {
		if t, err := timeutil.Coerce(rawFirst); err == nil {
			m.FirstMessage = &t
		}
	}
	if rawLast != nil {
		if t, err := timeutil.Coerce(rawLast); err == nil {
			m.LastMessage = &t
		}
	}

	// Failed tool results.
	errSQL := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE kind = 'user' AND %s`,
		view, query.ErrorPredicate())
	row = db.queryRow(ctx, "session_errors", errSQL)
	if err := row.Scan(&m.ErrorCount); err != nil {
		return nil, engineErr("session_errors", err)
	}

	// Subagent dispatches (Task tool invocations).
	taskSQL := fmt.Sprintf(`SELECT COUNT(*) FROM (%s) WHERE item.type = 'tool_use' AND item.name = 'Task'`,
		unnestToolItems(view))
	row = db.queryRow(ctx, "session_subagents", taskSQL)
	if err := row.Scan(&m.SubagentCount); err != nil {
		return nil, engineErr("session_subagents", err)
	}

	// Per-model usage and cost.
	byModel, err := db.modelUsageFromView(ctx, view)
	if err != nil {
		return nil, err
	}
	m.ByModel = byModel
	m.Cost = db.sumCosts(byModel)

	return m, nil
}

func (db *DB) modelUsageFromView(ctx context.Context, view string) ([]models.ModelUsage, error) {
	modelSQL := fmt.Sprintf(`SELECT
		model,
		COALESCE(SUM(input_tokens), 0),
		COALESCE(SUM(output_tokens), 0),
		COALESCE(SUM(cache_creation_tokens), 0),
		COALESCE(SUM(cache_read_tokens), 0),
		COUNT(*)
	FROM (
		SELECT DISTINCT ON (message_id)
			model, input_tokens, output_tokens, cache_creation_tokens, cache_read_tokens
		FROM %s
		WHERE kind = 'assistant' AND message_id IS NOT NULL
	)
	WHERE model IS NOT NULL
	GROUP BY model
	ORDER BY 2 DESC, model`, view)

	rows, err := db.query(ctx, "session_model_usage", modelSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ModelUsage
	for rows.Next() {
		var mu models.ModelUsage
		if err := rows.Scan(&mu.Model, &mu.Usage.InputTokens, &mu.Usage.OutputTokens,
			&mu.Usage.CacheCreationTokens, &mu.Usage.CacheReadTokens, &mu.Messages); err != nil {
			return nil, engineErr("session_model_usage", err)
		}
		mu.Usage.CacheHitRate = pricing.CacheHitRate(mu.Usage)
		if db.prices != nil {
			mu.CostUSD = db.prices.Cost(mu.Model, mu.Usage).TotalUSD
		}
		out = append(out, mu)
	}
	return out, rows.Err()
}

// GetToolStats counts tool invocations from assistant tool_use items.
func (db *DB) GetToolStats(ctx context.Context, project, session string) (*models.ToolStats, error) {
	var out *models.ToolStats
	err := db.withSessionView(ctx, project, session, func(view string) error {
		toolSQL := fmt.Sprintf(`SELECT item.name AS name, COUNT(*) AS cnt
		FROM (%s)
		WHERE item.type = 'tool_use' AND item.name IS NOT NULL
		GROUP BY item.name
		ORDER BY cnt DESC, name`, unnestToolItems(view))

		rows, err := db.query(ctx, "tool_stats", toolSQL)
		if err != nil {
			return err
		}
		defer rows.Close()

		stats := &models.ToolStats{SessionID: session}
		for rows.Next() {
			var tu models.ToolUsage
			if err := rows.Scan(&tu.Name, &tu.Count); err != nil {
				return engineErr("tool_stats", err)
			}
			stats.Tools = append(stats.Tools, tu)
			stats.Total += tu.Count
		}
		if err := rows.Err(); err != nil {
			return engineErr("tool_stats", err)
		}
		out = stats
		return nil
	})
	return out, err
}

// GetFilterOptions enumerates filterable values present in a session.
func (db *DB) GetFilterOptions(ctx context.Context, project, session string) (*models.FilterOptions, error) {
	var out *models.FilterOptions
	err := db.withSessionView(ctx, project, session, func(view string) error {
		opts := &models.FilterOptions{}

		kinds, err := db.stringColumn(ctx, "filter_kinds",
			fmt.Sprintf(`SELECT DISTINCT kind FROM %s WHERE kind IS NOT NULL ORDER BY kind`, view))
		if err != nil {
			return err
		}
		opts.Kinds = kinds

		tools, err := db.stringColumn(ctx, "filter_tools",
			fmt.Sprintf(`SELECT DISTINCT item.name FROM (%s) WHERE item.type = 'tool_use' AND item.name IS NOT NULL ORDER BY item.name`,
				unnestToolItems(view)))
		if err != nil {
			return err
		}
		opts.Tools = tools

		modelsList, err := db.stringColumn(ctx, "filter_models",
			fmt.Sprintf(`SELECT DISTINCT model FROM %s WHERE model IS NOT NULL ORDER BY model`, view))
		if err != nil {
			return err
		}
		opts.Models = modelsList

		row := db.queryRow(ctx, "filter_has_errors",
			fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE kind = 'user' AND %s)`, view, query.ErrorPredicate()))
		if err := row.Scan(&opts.HasErrors); err != nil {
			return engineErr("filter_has_errors", err)
		}

		out = opts
		return nil
	})
	return out, err
}

// GetErrorExcerpts returns failed tool results, truncated for display.
func (db *DB) GetErrorExcerpts(ctx context.Context, project, session string, limit int) ([]models.ErrorExcerpt, error) {
	if limit < 1 {
		limit = 100
	}
	var out []models.ErrorExcerpt
	err := db.withSessionView(ctx, project, session, func(view string) error {
		errSQL := fmt.Sprintf(`SELECT uuid, ts, content FROM %s
		WHERE kind = 'user' AND %s
		ORDER BY ts ASC, uuid ASC
		LIMIT ?`, view, query.ErrorPredicate())

		rows, err := db.query(ctx, "error_excerpts", errSQL, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		var excerpts []models.ErrorExcerpt
		for rows.Next() {
			var (
				rawUUID interface{}
				rawTS   interface{}
				content sql.NullString
			)
			if err := rows.Scan(&rawUUID, &rawTS, &content); err != nil {
				return engineErr("error_excerpts", err)
			}
			ts, err := timeutil.Coerce(rawTS)
			if err != nil {
				return engineErr("error_excerpts", err)
			}
			excerpts = append(excerpts, models.ErrorExcerpt{
				UUID:      timeutil.CoerceString(rawUUID),
				Timestamp: ts,
				Text:      truncate(content.String, 500),
			})
		}
		if err := rows.Err(); err != nil {
			return engineErr("error_excerpts", err)
		}
		out = excerpts
		return nil
	})
	return out, err
}

// withSessionView resolves and acquires the session's view and runs fn
// against it, retrying once if the view was swept mid-flight.
func (db *DB) withSessionView(ctx context.Context, project, session string, fn func(view string) error) error {
	run := func() error {
		src, err := db.resolver.Resolve(project, session)
		if err != nil {
			return err
		}
		view, err := db.AcquireView(ctx, src)
		if err != nil {
			return err
		}
		return fn(view)
	}

	err := run()
	if isMissingViewErr(err) {
		err = run()
	}
	return err
}

func (db *DB) stringColumn(ctx context.Context, op, sqlText string) ([]string, error) {
	rows, err := db.query(ctx, op, sqlText)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, engineErr(op, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// unnestToolItems explodes assistant content into one row per content
// item, typed for tool inspection.
func unnestToolItems(view string) string {
	return fmt.Sprintf(`SELECT unnest(from_json(content, '[{"type":"VARCHAR","name":"VARCHAR"}]')) AS item
	FROM %s WHERE kind = 'assistant' AND content IS NOT NULL`, view)
}

// sumCosts folds per-model usage into one itemized session cost.
func (db *DB) sumCosts(byModel []models.ModelUsage) models.CostBreakdown {
	var total models.CostBreakdown
	if db.prices == nil {
		return total
	}
	for _, mu := range byModel {
		c := db.prices.Cost(mu.Model, mu.Usage)
		total.InputUSD += c.InputUSD
		total.OutputUSD += c.OutputUSD
		total.CacheCreationUSD += c.CacheCreationUSD
		total.CacheReadUSD += c.CacheReadUSD
		total.TotalUSD += c.TotalUSD
	}
	return total
}

// truncate cuts s to at most n bytes, backing off to the nearest rune
// boundary so the result stays valid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
