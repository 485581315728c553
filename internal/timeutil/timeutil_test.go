// Sessionlens - Agent Session Log Analytics
// Copyright 2026 The Sessionlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sessionlens/sessionlens

package timeutil

import (
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{
			name:  "rfc3339 with zulu",
			input: "2026-08-27T10:30:00Z",
			want:  time.Date(2026, 8, 27, 10, 30, 0, 0, time.UTC),
		},
		{
			name:  "rfc3339 with millis",
			input: "2026-08-27T10:30:00.123Z",
			want:  time.Date(2026, 8, 27, 10, 30, 0, 123000000, time.UTC),
		},
		{
			name:  "rfc3339 with offset",
			input: "2026-08-27T12:30:00+02:00",
			want:  time.Date(2026, 8, 27, 10, 30, 0, 0, time.UTC),
		},
		{
			name:  "naive timestamp treated as utc",
			input: "2026-08-27T10:30:00",
			want:  time.Date(2026, 8, 27, 10, 30, 0, 0, time.UTC),
		},
		{
			name:  "space separated",
			input: "2026-08-27 10:30:00.5",
			want:  time.Date(2026, 8, 27, 10, 30, 0, 500000000, time.UTC),
		},
		{
			name:  "surrounding whitespace",
			input: "  2026-08-27T10:30:00Z  ",
			want:  time.Date(2026, 8, 27, 10, 30, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			if err != nil {
				t.Fatalf("ParseTimestamp(%q) failed: %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if got.Location() != time.UTC {
				t.Errorf("ParseTimestamp(%q) not in UTC", tt.input)
			}
		})
	}
}

func TestParseTimestampErrors(t *testing.T) {
	for _, input := range []string{"", "   ", "not-a-time", "2026-13-45T99:99:99Z"} {
		if _, err := ParseTimestamp(input); err == nil {
			t.Errorf("ParseTimestamp(%q) expected error", input)
		}
	}
}

func TestCoerce(t *testing.T) {
	want := time.Date(2026, 8, 27, 10, 30, 0, 0, time.UTC)

	got, err := Coerce(want)
	if err != nil || !got.Equal(want) {
		t.Errorf("Coerce(time.Time) = %v, %v", got, err)
	}

	got, err = Coerce("2026-08-27T10:30:00Z")
	if err != nil || !got.Equal(want) {
		t.Errorf("Coerce(string) = %v, %v", got, err)
	}

	got, err = Coerce([]byte("2026-08-27T10:30:00Z"))
	if err != nil || !got.Equal(want) {
		t.Errorf("Coerce([]byte) = %v, %v", got, err)
	}

	if _, err := Coerce(nil); err == nil {
		t.Error("Coerce(nil) expected error")
	}
	if _, err := Coerce(42); err == nil {
		t.Error("Coerce(int) expected error")
	}
}

func TestCoerceNonUTCInput(t *testing.T) {
	loc := time.FixedZone("plus2", 2*3600)
	in := time.Date(2026, 8, 27, 12, 30, 0, 0, loc)

	got, err := Coerce(in)
	if err != nil {
		t.Fatalf("Coerce failed: %v", err)
	}
	if got.Location() != time.UTC {
		t.Error("expected UTC result")
	}
	if !got.Equal(in) {
		t.Errorf("Coerce changed the instant: %v vs %v", got, in)
	}
}

func TestCoerceString(t *testing.T) {
	if got := CoerceString("abc"); got != "abc" {
		t.Errorf("CoerceString(string) = %q", got)
	}
	if got := CoerceString([]byte("abc")); got != "abc" {
		t.Errorf("CoerceString([]byte) = %q", got)
	}
	if got := CoerceString(nil); got != "" {
		t.Errorf("CoerceString(nil) = %q", got)
	}
}

func TestNowUTC(t *testing.T) {
	now := NowUTC()
	if now.Location() != time.UTC {
		t.Error("NowUTC not in UTC")
	}
	if now.Nanosecond()%1000 != 0 {
		t.Error("NowUTC not truncated to microseconds")
	}
}
