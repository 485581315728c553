// Sessionlens - Agent Session Log Analytics
// Copyright 2026 The Sessionlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sessionlens/sessionlens

// Package models defines the wire and domain types shared between the
// database layer and the HTTP API.
package models

import (
	"time"
)

// Message kinds as they appear in the session logs' "type" field.
const (
	KindUser      = "user"
	KindAssistant = "assistant"
	KindSystem    = "system"
	KindSummary   = "summary"
)

// Session lifecycle states derived from the log file's age.
const (
	StatusCompleted = "completed"
	StatusRunning   = "running"
	StatusIdle      = "idle"
)

// Message is one normalized row from a session log, shaped for the
// dashboard message list.
type Message struct {
	UUID      string    `json:"uuid"`
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"type"`
	Model     string    `json:"model,omitempty"`
	Content   string    `json:"content"`
	SessionID string    `json:"session_id"`
	IsError   bool      `json:"is_error,omitempty"`
	Usage     *Usage    `json:"usage,omitempty"`
	Subagent  bool      `json:"subagent,omitempty"`
}

// Usage is per-message token accounting from the assistant API payload.
type Usage struct {
	InputTokens         int64 `json:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens"`
	CacheCreationTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadTokens     int64 `json:"cache_read_input_tokens"`
}

// MessagesPage is one page of the message list.
type MessagesPage struct {
	Messages   []Message      `json:"messages"`
	Pagination PaginationInfo `json:"pagination"`
}

// TokenUsage aggregates token counts over a session (or project), with
// duplicate API messages collapsed by message id.
type TokenUsage struct {
	InputTokens         int64   `json:"input_tokens"`
	OutputTokens        int64   `json:"output_tokens"`
	CacheCreationTokens int64   `json:"cache_creation_tokens"`
	CacheReadTokens     int64   `json:"cache_read_tokens"`
	CacheHitRate        float64 `json:"cache_hit_rate"`
}

// ModelUsage is TokenUsage broken out per model, with its cost.
type ModelUsage struct {
	Model      string     `json:"model"`
	Usage      TokenUsage `json:"usage"`
	CostUSD    float64    `json:"cost_usd"`
	Messages   int64      `json:"messages"`
}

// CostBreakdown itemizes estimated cost in USD.
type CostBreakdown struct {
	InputUSD         float64 `json:"input_usd"`
	OutputUSD        float64 `json:"output_usd"`
	CacheCreationUSD float64 `json:"cache_creation_usd"`
	CacheReadUSD     float64 `json:"cache_read_usd"`
	TotalUSD         float64 `json:"total_usd"`
}

// SessionMetrics is the full analytics payload for one session.
type SessionMetrics struct {
	SessionID     string        `json:"session_id"`
	MessageCount  int64         `json:"message_count"`
	UserMessages  int64         `json:"user_messages"`
	ErrorCount    int64         `json:"error_count"`
	Tokens        TokenUsage    `json:"tokens"`
	ByModel       []ModelUsage  `json:"by_model,omitempty"`
	Cost          CostBreakdown `json:"cost"`
	FirstMessage  *time.Time    `json:"first_message,omitempty"`
	LastMessage   *time.Time    `json:"last_message,omitempty"`
	SubagentCount int64         `json:"subagent_count"`
}

// ToolUsage is one tool's invocation count within a session.
type ToolUsage struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// ToolStats is the per-session tool report.
type ToolStats struct {
	SessionID string      `json:"session_id"`
	Tools     []ToolUsage `json:"tools"`
	Total     int64       `json:"total"`
}

// FilterOptions enumerates the filter values present in a session, so the
// dashboard can populate its dropdowns without guessing.
type FilterOptions struct {
	Kinds     []string `json:"types"`
	Tools     []string `json:"tools"`
	Models    []string `json:"models"`
	HasErrors bool     `json:"has_errors"`
}

// Project is one project directory under the logs root.
type Project struct {
	ID           string    `json:"id"`
	Path         string    `json:"path,omitempty"`
	SessionCount int       `json:"session_count"`
	LastActivity time.Time `json:"last_activity"`
}

// Session is one session's index entry.
type Session struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Slug      string    `json:"slug,omitempty"`
	Status    string    `json:"status"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
}

// ErrorExcerpt is one failed tool result surfaced from user messages.
type ErrorExcerpt struct {
	UUID      string    `json:"uuid"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}
