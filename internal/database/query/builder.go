// Sessionlens - Agent Session Log Analytics
// Copyright 2026 The Sessionlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sessionlens/sessionlens

// builder.go - branch/union builder for message list queries
//
// A message query is assembled as one SELECT branch per (source view,
// message kind) pair, glued with UNION ALL and ordered by (ts, uuid).
// Every predicate, including the keyset cursor, is applied inside each
// branch so the engine filters before the union; kind filters drop whole
// branches instead of filtering rows after the fact.
package query

import (
	"fmt"
	"strings"
	"time"
)

// Message kinds understood by the builder, matching the logs' type field.
const (
	KindUser      = "user"
	KindAssistant = "assistant"
	KindSystem    = "system"
	KindSummary   = "summary"
)

// defaultKinds is the branch set when no kind filter is given.
var defaultKinds = []string{KindUser, KindAssistant, KindSystem, KindSummary}

// errorPredicate matches tool results flagged as failed. Content is JSON
// text; both compact and spaced encodings appear in the wild.
const errorPredicate = `COALESCE(contains(content, '"is_error":true') OR contains(content, '"is_error": true'), FALSE)`

// toolPredicate matches assistant messages that invoke the named tool.
const toolPredicate = `COALESCE(len(list_filter(from_json(content, '[{"type":"VARCHAR","name":"VARCHAR"}]'), x -> x.type = 'tool_use' AND x.name = ?)) > 0, FALSE)`

// ErrorPredicate exposes the failed-tool-result condition for analytics
// queries that count or list errors outside the branch builder.
func ErrorPredicate() string {
	return errorPredicate
}

// SourceView names one materialized view feeding the query.
type SourceView struct {
	Name     string
	Subagent bool
}

// Filters are the user-selectable message filters.
type Filters struct {
	Kinds      []string
	Tool       string
	ErrorsOnly bool
	Search     string
	Since      *time.Time
	Until      *time.Time
}

// Cursor is the keyset position after which rows are returned.
type Cursor struct {
	Timestamp time.Time
	ID        string
}

// MessagesSpec describes one message list query.
type MessagesSpec struct {
	Views   []SourceView
	Filters Filters
	Cursor  *Cursor

	// Limit is the page size. The built query fetches Limit+1 rows so
	// the caller can detect a further page without a count query.
	Limit int
}

// BuildMessages returns the SQL and bind arguments for a message page.
func BuildMessages(spec MessagesSpec) (string, []interface{}, error) {
	if len(spec.Views) == 0 {
		return "", nil, fmt.Errorf("no source views")
	}
	if spec.Limit < 1 {
		return "", nil, fmt.Errorf("limit must be at least 1, got %d", spec.Limit)
	}

	kinds, err := selectKinds(spec.Filters)
	if err != nil {
		return "", nil, err
	}

	var branches []string
	var args []interface{}
	for _, view := range spec.Views {
		for _, kind := range kinds {
			branch, branchArgs := buildBranch(view, kind, spec.Filters, spec.Cursor)
			branches = append(branches, branch)
			args = append(args, branchArgs...)
		}
	}

	sqlText := fmt.Sprintf(`SELECT uuid, ts, kind, session_id, model, content,
	input_tokens, output_tokens, cache_creation_tokens, cache_read_tokens, is_error, subagent
FROM (%s)
ORDER BY ts ASC, uuid ASC
LIMIT ?`, strings.Join(branches, "\nUNION ALL\n"))
	args = append(args, spec.Limit+1)

	return sqlText, args, nil
}

// selectKinds resolves the branch set: an explicit kind filter narrows
// it, a tool filter restricts to assistant branches (tool invocations
// only exist there), and errors-only restricts to user branches (failed
// tool results are recorded on user messages).
func selectKinds(f Filters) ([]string, error) {
	kinds := f.Kinds
	if len(kinds) == 0 {
		kinds = defaultKinds
	}
	for _, k := range kinds {
		if !isKnownKind(k) {
			return nil, fmt.Errorf("unknown message kind %q", k)
		}
	}
	if f.Tool != "" {
		kinds = intersect(kinds, KindAssistant)
		if len(kinds) == 0 {
			return nil, fmt.Errorf("tool filter requires assistant messages")
		}
	}
	if f.ErrorsOnly {
		kinds = intersect(kinds, KindUser)
		if len(kinds) == 0 {
			return nil, fmt.Errorf("errors filter requires user messages")
		}
	}
	return kinds, nil
}

// buildBranch produces one per-kind SELECT with all predicates pushed in.
func buildBranch(view SourceView, kind string, f Filters, cursor *Cursor) (string, []interface{}) {
	wb := NewWhereBuilder()
	wb.AddClause("kind = ?", kind)
	if f.Tool != "" && kind == KindAssistant {
		wb.AddClause(toolPredicate, f.Tool)
	}
	if f.ErrorsOnly && kind == KindUser {
		wb.AddClause(errorPredicate)
	}
	wb.AddSearch(f.Search)
	wb.AddTimeRange(f.Since, f.Until)
	if cursor != nil {
		wb.AddCursor(cursor.Timestamp, cursor.ID)
	}

	where, args := wb.Build()
	branch := fmt.Sprintf(`SELECT uuid, ts, kind, session_id, %s, content, %s, %s AS is_error, %t AS subagent
FROM %s WHERE %s`,
		modelColumn(kind), usageColumns(kind), errorColumn(kind), view.Subagent, view.Name, where)
	return branch, args
}

func modelColumn(kind string) string {
	if kind == KindAssistant {
		return "model"
	}
	return "CAST(NULL AS VARCHAR) AS model"
}

func usageColumns(kind string) string {
	if kind == KindAssistant {
		return "input_tokens, output_tokens, cache_creation_tokens, cache_read_tokens"
	}
	return "CAST(NULL AS BIGINT) AS input_tokens, CAST(NULL AS BIGINT) AS output_tokens, " +
		"CAST(NULL AS BIGINT) AS cache_creation_tokens, CAST(NULL AS BIGINT) AS cache_read_tokens"
}

func errorColumn(kind string) string {
	if kind == KindUser {
		return errorPredicate
	}
	return "FALSE"
}

func isKnownKind(k string) bool {
	switch k {
	case KindUser, KindAssistant, KindSystem, KindSummary:
		return true
	}
	return false
}

func intersect(kinds []string, keep string) []string {
	for _, k := range kinds {
		if k == keep {
			return []string{keep}
		}
	}
	return nil
}
