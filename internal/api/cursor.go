// Sessionlens - Agent Session Log Analytics
// Copyright 2026 The Sessionlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sessionlens/sessionlens

// cursor.go - opaque pagination token codec
//
// A token is URL-safe base64 over the JSON encoding of
// models.MessageCursor. The filter hash baked into each token pins it to
// the filter set it was minted under; replaying a token with different
// filters fails with INVALID_CURSOR instead of silently skipping or
// repeating rows.
package api

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/sessionlens/sessionlens/internal/database"
	"github.com/sessionlens/sessionlens/internal/database/query"
	"github.com/sessionlens/sessionlens/internal/models"
)

// EncodeCursor serializes a cursor into an opaque wire token.
func EncodeCursor(c models.MessageCursor) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to encode cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// DecodeCursor parses a wire token back into a cursor. Any malformed
// token, at either the base64 or JSON layer, maps to ErrInvalidCursor so
// handlers need a single check.
func DecodeCursor(token string) (*models.MessageCursor, error) {
	data, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("cursor is not valid base64url: %w", database.ErrInvalidCursor)
	}

	var c models.MessageCursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("cursor payload is not valid JSON: %w", database.ErrInvalidCursor)
	}
	if c.ID == "" || c.Timestamp.IsZero() {
		return nil, fmt.Errorf("cursor is missing position fields: %w", database.ErrInvalidCursor)
	}
	return &c, nil
}

// FilterHash derives a short stable digest of a filter set. Field order
// is fixed, kinds are sorted, and times are rendered in UTC so logically
// equal filters always hash alike.
func FilterHash(f query.Filters) string {
	kinds := append([]string(nil), f.Kinds...)
	sort.Strings(kinds)

	var sb strings.Builder
	sb.WriteString("kinds=")
	sb.WriteString(strings.Join(kinds, ","))
	sb.WriteString(";tool=")
	sb.WriteString(f.Tool)
	sb.WriteString(";errors=")
	if f.ErrorsOnly {
		sb.WriteString("1")
	}
	sb.WriteString(";search=")
	sb.WriteString(f.Search)
	sb.WriteString(";since=")
	sb.WriteString(formatFilterTime(f.Since))
	sb.WriteString(";until=")
	sb.WriteString(formatFilterTime(f.Until))

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:8])
}

func formatFilterTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
