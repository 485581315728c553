// Sessionlens - Agent Session Log Analytics
// Copyright 2026 The Sessionlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sessionlens/sessionlens

// Package query builds the SQL executed against session views. It keeps
// all filter predicates parameterized and pushes them into per-kind
// branches before any UNION (see builder.go).
package query

import (
	"strings"
	"time"
)

// WhereBuilder constructs SQL WHERE clauses with parameterized arguments.
//
//	wb := query.NewWhereBuilder()
//	wb.AddTimeRange(since, until)
//	wb.AddSearch(term)
//	whereClause, args := wb.Build()
type WhereBuilder struct {
	clauses []string
	args    []interface{}
}

// NewWhereBuilder creates an empty WhereBuilder.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{}
}

// AddClause adds a raw condition with its arguments.
func (wb *WhereBuilder) AddClause(clause string, args ...interface{}) *WhereBuilder {
	wb.clauses = append(wb.clauses, clause)
	wb.args = append(wb.args, args...)
	return wb
}

// AddTimeRange bounds ts by optional since/until (inclusive).
func (wb *WhereBuilder) AddTimeRange(since, until *time.Time) *WhereBuilder {
	if since != nil {
		wb.AddClause("ts >= ?", since.UTC())
	}
	if until != nil {
		wb.AddClause("ts <= ?", until.UTC())
	}
	return wb
}

// AddSearch adds a case-insensitive substring match on content.
func (wb *WhereBuilder) AddSearch(term string) *WhereBuilder {
	if term != "" {
		wb.AddClause("contains(lower(content), lower(?))", term)
	}
	return wb
}

// AddCursor adds the keyset predicate: strictly after the (ts, uuid)
// position of the last row already delivered.
func (wb *WhereBuilder) AddCursor(ts time.Time, id string) *WhereBuilder {
	return wb.AddClause("(ts, uuid) > (?, ?)", ts.UTC(), id)
}

// Build joins the clauses with AND. Returns ("1=1", nil args) when empty
// so callers can splice it unconditionally.
func (wb *WhereBuilder) Build() (string, []interface{}) {
	if len(wb.clauses) == 0 {
		return "1=1", []interface{}{}
	}
	return strings.Join(wb.clauses, " AND "), wb.args
}

// IsEmpty reports whether any clauses were added.
func (wb *WhereBuilder) IsEmpty() bool {
	return len(wb.clauses) == 0
}
