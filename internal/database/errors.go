// Sessionlens - Agent Session Log Analytics
// Copyright 2026 The Sessionlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sessionlens/sessionlens

// Package database wraps the embedded DuckDB engine: session view
// management, message queries, and per-session analytics.
//
// errors.go - error taxonomy for the query layer
package database

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCursor indicates a pagination token that is malformed or
	// was minted under a different filter set.
	ErrInvalidCursor = errors.New("invalid pagination cursor")

	// ErrStaleView indicates a view was dropped or re-materialized
	// between acquisition and query. Internal: operations retry once on
	// this and never surface it.
	ErrStaleView = errors.New("session view is stale")
)

// ParseError indicates the engine could not parse a log file. It wraps the
// engine error and records which file failed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse log file %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// EngineError wraps an unexpected engine failure with the operation that
// triggered it.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error in %s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func engineErr(op string, err error) error {
	return &EngineError{Op: op, Err: err}
}
