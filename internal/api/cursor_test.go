// Sessionlens - Agent Session Log Analytics
// Copyright 2026 The Sessionlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sessionlens/sessionlens

package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sessionlens/sessionlens/internal/database"
	"github.com/sessionlens/sessionlens/internal/database/query"
	"github.com/sessionlens/sessionlens/internal/models"
)

func TestCursorRoundTrip(t *testing.T) {
	base := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 10000; i++ {
		in := models.MessageCursor{
			Timestamp:  base.Add(time.Duration(i) * time.Millisecond),
			ID:         fmt.Sprintf("00000000-0000-0000-0000-%012d", i),
			FilterHash: "abcdef0123456789",
		}

		token, err := EncodeCursor(in)
		if err != nil {
			t.Fatalf("EncodeCursor failed at %d: %v", i, err)
		}

		out, err := DecodeCursor(token)
		if err != nil {
			t.Fatalf("DecodeCursor failed at %d: %v", i, err)
		}
		if !out.Timestamp.Equal(in.Timestamp) || out.ID != in.ID || out.FilterHash != in.FilterHash {
			t.Fatalf("round trip %d: got %+v, want %+v", i, out, in)
		}
	}
}

func TestDecodeCursorMalformed(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"not base64", "!!!not-base64!!!"},
		{"base64 of garbage", base64.URLEncoding.EncodeToString([]byte("not json"))},
		{"json missing fields", base64.URLEncoding.EncodeToString([]byte(`{}`))},
		{"missing id", base64.URLEncoding.EncodeToString([]byte(`{"ts":"2026-08-27T10:00:00Z"}`))},
		{"missing timestamp", base64.URLEncoding.EncodeToString([]byte(`{"id":"00000000-0000-0000-0000-000000000001"}`))},
		{"empty token decodes to empty json", base64.URLEncoding.EncodeToString([]byte(``))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCursor(tt.token)
			if !errors.Is(err, database.ErrInvalidCursor) {
				t.Errorf("DecodeCursor(%q) = %v, want ErrInvalidCursor", tt.token, err)
			}
		})
	}
}

func TestFilterHashStability(t *testing.T) {
	since := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	a := query.Filters{Kinds: []string{"user"}, Search: "x", Since: &since}
	b := query.Filters{Kinds: []string{"user"}, Search: "x", Since: &since}
	if FilterHash(a) != FilterHash(b) {
		t.Error("equal filters must hash alike")
	}

	// Same instant in a different zone is the same filter.
	loc := time.FixedZone("plus2", 2*3600)
	shifted := since.In(loc)
	c := query.Filters{Kinds: []string{"user"}, Search: "x", Since: &shifted}
	if FilterHash(a) != FilterHash(c) {
		t.Error("zone-shifted equal instants must hash alike")
	}
}

func TestFilterHashIgnoresKindOrder(t *testing.T) {
	a := query.Filters{Kinds: []string{"assistant", "user"}}
	b := query.Filters{Kinds: []string{"user", "assistant"}}
	if FilterHash(a) != FilterHash(b) {
		t.Error("kind order must not change the hash")
	}

	c := query.Filters{Kinds: []string{"user"}}
	if FilterHash(a) == FilterHash(c) {
		t.Error("different kind sets must hash apart")
	}
}

func TestFilterHashDistinguishesFilters(t *testing.T) {
	base := query.Filters{}

	variants := []query.Filters{
		{Kinds: []string{"user"}},
		{Tool: "Bash"},
		{ErrorsOnly: true},
		{Search: "timeout"},
	}
	seen := map[string]bool{FilterHash(base): true}
	for i, f := range variants {
		h := FilterHash(f)
		if seen[h] {
			t.Errorf("variant %d collides with a previous filter set", i)
		}
		seen[h] = true
	}
}
