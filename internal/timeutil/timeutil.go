// Sessionlens - Agent Session Log Analytics
// Copyright 2026 The Sessionlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sessionlens/sessionlens

// Package timeutil normalizes the timestamp shapes found in agent session
// logs and in engine result sets. Log records carry RFC 3339 strings,
// sometimes with a trailing "Z", sometimes naive; the engine returns either
// time.Time or string depending on column inference. Everything funnels
// through here and comes out as UTC.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// Layouts accepted by ParseTimestamp, tried in order.
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses a log timestamp string into UTC. Naive timestamps
// (no offset) are interpreted as UTC, matching how the logs are written.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Coerce converts an engine-returned value into a UTC time.Time.
// DuckDB returns time.Time for TIMESTAMP columns and string for VARCHAR,
// and either may appear depending on schema inference of the source file.
func Coerce(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return ParseTimestamp(t)
	case []byte:
		return ParseTimestamp(string(t))
	case nil:
		return time.Time{}, fmt.Errorf("nil timestamp")
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

// CoerceString converts an engine-returned value to a plain string.
// UUID columns come back as string, []byte, or a Stringer depending on
// the driver path.
func CoerceString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case fmt.Stringer:
		return s.String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}

// NowUTC returns the current time in UTC truncated to microseconds,
// the precision the engine stores.
func NowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
