// Sessionlens - Agent Session Log Analytics
// Copyright 2026 The Sessionlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sessionlens/sessionlens

package validation

import (
	"strings"
	"testing"
)

type messagesQuery struct {
	Session string `validate:"required,uuid"`
	Limit   int    `validate:"min=1,max=200"`
	Since   string `validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Cursor  string `validate:"omitempty,base64url"`
}

func validQuery() messagesQuery {
	return messagesQuery{
		Session: "11111111-1111-1111-1111-111111111111",
		Limit:   50,
	}
}

func TestValidateStructPasses(t *testing.T) {
	q := validQuery()
	q.Since = "2026-01-02T15:04:05Z"
	q.Cursor = "eyJ0cyI6MX0="

	if err := ValidateStruct(q); err != nil {
		t.Fatalf("valid struct rejected: %v", err)
	}
}

func TestValidateStructSingleFailure(t *testing.T) {
	q := validQuery()
	q.Session = "not-a-uuid"

	err := ValidateStruct(q)
	if err == nil {
		t.Fatal("expected validation error")
	}

	fields := err.Errors()
	if len(fields) != 1 {
		t.Fatalf("got %d field errors, want 1", len(fields))
	}
	fe := fields[0]
	if fe.Field() != "Session" || fe.Tag() != "uuid" {
		t.Errorf("field = %s, tag = %s", fe.Field(), fe.Tag())
	}
	if fe.Error() != "Session must be a valid UUID" {
		t.Errorf("message = %q", fe.Error())
	}

	api := err.ToAPIError()
	if api.Code != "VALIDATION_ERROR" {
		t.Errorf("code = %q", api.Code)
	}
	if api.Details["field"] != "Session" {
		t.Errorf("details = %v", api.Details)
	}
}

func TestValidateStructMultipleFailures(t *testing.T) {
	q := messagesQuery{Limit: 900}

	err := ValidateStruct(q)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if len(err.Errors()) != 2 {
		t.Fatalf("got %d field errors, want 2: %v", len(err.Errors()), err)
	}

	api := err.ToAPIError()
	fields, ok := api.Details["fields"].([]map[string]interface{})
	if !ok || len(fields) != 2 {
		t.Fatalf("details = %v", api.Details)
	}
	if !strings.Contains(api.Message, "Session") || !strings.Contains(api.Message, "Limit") {
		t.Errorf("message = %q", api.Message)
	}
}

func TestTranslatedMessages(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*messagesQuery)
		want   string
	}{
		{"required", func(q *messagesQuery) { q.Session = "" }, "Session is required"},
		{"min", func(q *messagesQuery) { q.Limit = 0 }, "Limit must be at least 1"},
		{"max", func(q *messagesQuery) { q.Limit = 500 }, "Limit must be at most 200"},
		{"datetime", func(q *messagesQuery) { q.Since = "yesterday" },
			"Since must be a valid date/time in RFC3339 format"},
		{"base64url", func(q *messagesQuery) { q.Cursor = "%%%" },
			"Cursor must be valid base64url encoded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := validQuery()
			tt.mutate(&q)

			err := ValidateStruct(q)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if got := err.Errors()[0].Error(); got != tt.want {
				t.Errorf("message = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetValidatorIsSingleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("GetValidator must return the same instance")
	}
}
