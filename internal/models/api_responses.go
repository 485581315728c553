// Sessionlens - Agent Session Log Analytics
// Copyright 2026 The Sessionlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sessionlens/sessionlens

package models

import (
	"time"
)

// APIResponse is the standard response wrapper used by all HTTP endpoints.
//
// Status field values:
//   - "success": request completed, see Data
//   - "error": request failed, see Error
//
// Example successful response:
//
//	{
//	  "status": "success",
//	  "data": {"messages": [...], "pagination": {...}},
//	  "metadata": {"timestamp": "2026-08-27T12:00:00Z", "query_time_ms": 4}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries per-response observability fields. QueryTimeMS is 0 and
// Cached is true when the response was served from the result cache.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
	Cached      bool      `json:"cached,omitempty"`
}

// Error codes carried in APIError.Code.
const (
	ErrCodeInvalidCursor = "INVALID_CURSOR"
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeParseError    = "PARSE_ERROR"
	ErrCodeEngineError   = "ENGINE_ERROR"
)

// APIError is the structured error payload.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// PaginationInfo is cursor-based pagination metadata. NextCursor is nil on
// the final page. There is no total count: computing it would force a full
// scan of the log on every page.
type PaginationInfo struct {
	Limit      int     `json:"limit"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor,omitempty"`
}

// MessageCursor is the decoded form of the opaque pagination token: the
// (timestamp, uuid) position of the last row on the previous page, plus a
// hash of the filter set the cursor was minted under. A cursor presented
// with different filters is rejected rather than silently re-anchored.
//
// Tokens on the wire are URL-safe base64 of this struct's JSON encoding.
type MessageCursor struct {
	Timestamp  time.Time `json:"ts"`
	ID         string    `json:"id"`
	FilterHash string    `json:"fh,omitempty"`
}
