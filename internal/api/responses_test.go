// Sessionlens - Agent Session Log Analytics
// Copyright 2026 The Sessionlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sessionlens/sessionlens

package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/sessionlens/sessionlens/internal/database"
	"github.com/sessionlens/sessionlens/internal/logsource"
	"github.com/sessionlens/sessionlens/internal/models"
)

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) *models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, rec.Body.String())
	}
	return &resp
}

func TestRespondSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	respondSuccess(rec, map[string]string{"hello": "world"}, 42*time.Millisecond, true)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if rec.Header().Get("ETag") == "" {
		t.Error("ETag missing")
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q", cc)
	}

	resp := decodeResponse(t, rec)
	if resp.Status != "success" {
		t.Errorf("Status = %q", resp.Status)
	}
	if resp.Metadata.QueryTimeMS != 42 || !resp.Metadata.Cached {
		t.Errorf("metadata = %+v", resp.Metadata)
	}
	if resp.Error != nil {
		t.Errorf("unexpected error payload: %+v", resp.Error)
	}
}

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	respondError(rec, http.StatusNotFound, models.ErrCodeNotFound, "Project or session not found", nil)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Status != "error" {
		t.Errorf("Status = %q", resp.Status)
	}
	if resp.Error == nil || resp.Error.Code != models.ErrCodeNotFound {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestRespondMapped(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", fmt.Errorf("proj/sess: %w", logsource.ErrNotFound),
			http.StatusNotFound, models.ErrCodeNotFound},
		{"invalid cursor", fmt.Errorf("bad token: %w", database.ErrInvalidCursor),
			http.StatusBadRequest, models.ErrCodeInvalidCursor},
		{"parse error", &database.ParseError{Path: "/logs/x.jsonl", Err: errors.New("bad json")},
			http.StatusBadGateway, models.ErrCodeParseError},
		{"engine error", &database.EngineError{Op: "list_messages", Err: errors.New("boom")},
			http.StatusInternalServerError, models.ErrCodeEngineError},
		{"unknown error", errors.New("something else"),
			http.StatusInternalServerError, models.ErrCodeEngineError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			respondMapped(rec, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			resp := decodeResponse(t, rec)
			if resp.Error == nil || resp.Error.Code != tt.wantCode {
				t.Errorf("error = %+v, want code %q", resp.Error, tt.wantCode)
			}
		})
	}
}

func TestSanitizeLogValue(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"line\nbreak", `line\x0abreak`},
		{"tab\there", `tab\x09here`},
		{"del\x7f", `del\x7f`},
		{"unicode ok: héllo", "unicode ok: héllo"},
	}
	for _, tt := range tests {
		if got := sanitizeLogValue(tt.in); got != tt.want {
			t.Errorf("sanitizeLogValue(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGenerateETagVariesWithBody(t *testing.T) {
	a := generateETag([]byte("payload-a"))
	b := generateETag([]byte("payload-b"))
	if a == b {
		t.Error("distinct payloads share an ETag")
	}
	if a != generateETag([]byte("payload-a")) {
		t.Error("ETag not stable")
	}
}

func TestGetIntParam(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=25&bad=abc", nil)

	if got := getIntParam(r, "limit", 50); got != 25 {
		t.Errorf("limit = %d", got)
	}
	if got := getIntParam(r, "missing", 50); got != 50 {
		t.Errorf("missing = %d", got)
	}
	if got := getIntParam(r, "bad", 50); got != 50 {
		t.Errorf("bad = %d", got)
	}
}

func TestGetBoolParam(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?on=true&off=false&junk=perhaps", nil)

	if !getBoolParam(r, "on", false) {
		t.Error("on should be true")
	}
	if getBoolParam(r, "off", true) {
		t.Error("off should be false")
	}
	if !getBoolParam(r, "junk", true) {
		t.Error("junk should fall back to default")
	}
	if !getBoolParam(r, "missing", true) {
		t.Error("missing should fall back to default")
	}
}

func TestGetTimeParam(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?since=2026-01-02T10:00:00Z&bad=yesterday", nil)

	ts, err := getTimeParam(r, "since")
	if err != nil || ts == nil {
		t.Fatalf("since: %v, %v", ts, err)
	}
	if !ts.Equal(time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("since = %v", ts)
	}

	if _, err := getTimeParam(r, "bad"); err == nil {
		t.Error("bad timestamp must error")
	}

	ts, err = getTimeParam(r, "missing")
	if err != nil || ts != nil {
		t.Errorf("missing = %v, %v", ts, err)
	}
}
