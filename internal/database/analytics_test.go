// Sessionlens - Agent Session Log Analytics
// Copyright 2026 The Sessionlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sessionlens/sessionlens

package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionlens/sessionlens/internal/logsource"
)

const (
	modelSonnet = "claude-sonnet-4-20250514"
	modelHaiku  = "claude-3-5-haiku-20241022"
)

// seedAnalyticsSession writes a session with known aggregates:
//
//	15 user rows (5 of them failed tool results)
//	28 assistant rows over 20 distinct message ids (8 streaming
//	duplicates), 12 ids on sonnet and 8 on haiku, fixed 10/5/2/3 usage
//	20 tool_use items: 3 Task, 8 Bash, 5 Read, 4 Edit
func seedAnalyticsSession(t *testing.T, root string) string {
	t.Helper()

	var lines []string
	for i := 0; i < 10; i++ {
		lines = append(lines, recUser(i, fmt.Sprintf("turn %d", i)))
	}
	for i := 10; i < 15; i++ {
		lines = append(lines, recToolError(i, fmt.Sprintf("failure %d", i)))
	}

	for n := 0; n < 20; n++ {
		model := modelSonnet
		if n >= 12 {
			model = modelHaiku
		}
		var tool string
		switch {
		case n < 3:
			tool = "Task"
		case n < 11:
			tool = "Bash"
		case n < 16:
			tool = "Read"
		default:
			tool = "Edit"
		}
		lines = append(lines, recAssistant(100+n, fmt.Sprintf("msg_%03d", n), model, tool))
	}
	// Streaming re-emits of the first eight sonnet messages: same id,
	// model and usage, so they must not inflate token totals.
	for n := 0; n < 8; n++ {
		lines = append(lines, recAssistant(120+n, fmt.Sprintf("msg_%03d", n), modelSonnet))
	}

	return writeSession(t, root, "proj", sessionA, lines)
}

func TestGetSessionMetrics(t *testing.T) {
	db, root := newTestDB(t)
	seedAnalyticsSession(t, root)

	m, err := db.GetSessionMetrics(context.Background(), "proj", sessionA)
	require.NoError(t, err)

	assert.Equal(t, sessionA, m.SessionID)
	assert.Equal(t, int64(43), m.MessageCount)
	assert.Equal(t, int64(15), m.UserMessages)
	assert.Equal(t, int64(5), m.ErrorCount)
	assert.Equal(t, int64(3), m.SubagentCount)

	// Duplicated message ids collapse: 20 distinct ids at 10/5/2/3 each.
	assert.Equal(t, int64(200), m.Tokens.InputTokens)
	assert.Equal(t, int64(100), m.Tokens.OutputTokens)
	assert.Equal(t, int64(40), m.Tokens.CacheCreationTokens)
	assert.Equal(t, int64(60), m.Tokens.CacheReadTokens)
	assert.InDelta(t, 20.0, m.Tokens.CacheHitRate, 1e-9)

	require.NotNil(t, m.FirstMessage)
	require.NotNil(t, m.LastMessage)
	assert.True(t, m.FirstMessage.Equal(fixtureBase))
	assert.True(t, m.LastMessage.Equal(fixtureBase.Add(127*time.Second)))

	require.Len(t, m.ByModel, 2)
	sonnet, haiku := m.ByModel[0], m.ByModel[1]
	assert.Equal(t, modelSonnet, sonnet.Model)
	assert.Equal(t, int64(120), sonnet.Usage.InputTokens)
	assert.Equal(t, int64(12), sonnet.Messages)
	assert.Equal(t, modelHaiku, haiku.Model)
	assert.Equal(t, int64(80), haiku.Usage.InputTokens)
	assert.Equal(t, int64(8), haiku.Messages)

	assert.Greater(t, m.Cost.TotalUSD, 0.0)
	assert.InDelta(t, sonnet.CostUSD+haiku.CostUSD, m.Cost.TotalUSD, 1e-12)
	assert.InDelta(t,
		m.Cost.InputUSD+m.Cost.OutputUSD+m.Cost.CacheCreationUSD+m.Cost.CacheReadUSD,
		m.Cost.TotalUSD, 1e-12)
}

func TestGetSessionMetricsPicksUpAppendedRows(t *testing.T) {
	db, root := newTestDB(t)
	path := seedAnalyticsSession(t, root)
	ctx := context.Background()

	m, err := db.GetSessionMetrics(ctx, "proj", sessionA)
	require.NoError(t, err)
	require.Equal(t, int64(15), m.UserMessages)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(recToolError(200, "late failure") + "\n" +
		recAssistant(201, "msg_100", modelSonnet) + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	touch(t, path, 2*time.Second)

	m, err = db.GetSessionMetrics(ctx, "proj", sessionA)
	require.NoError(t, err)
	assert.Equal(t, int64(45), m.MessageCount)
	assert.Equal(t, int64(16), m.UserMessages)
	assert.Equal(t, int64(6), m.ErrorCount)
	assert.Equal(t, int64(210), m.Tokens.InputTokens)
}

func TestGetSessionMetricsEmptySession(t *testing.T) {
	db, root := newTestDB(t)
	writeSession(t, root, "proj", sessionA, nil)

	m, err := db.GetSessionMetrics(context.Background(), "proj", sessionA)
	require.NoError(t, err)
	assert.Equal(t, int64(0), m.MessageCount)
	assert.Equal(t, int64(0), m.ErrorCount)
	assert.Nil(t, m.FirstMessage)
	assert.Nil(t, m.LastMessage)
	assert.Empty(t, m.ByModel)
	assert.Equal(t, 0.0, m.Cost.TotalUSD)
}

func TestGetSessionMetricsUnknownSession(t *testing.T) {
	db, _ := newTestDB(t)
	_, err := db.GetSessionMetrics(context.Background(), "proj", sessionA)
	assert.True(t, errors.Is(err, logsource.ErrNotFound))
}

func TestGetToolStats(t *testing.T) {
	db, root := newTestDB(t)
	seedAnalyticsSession(t, root)

	stats, err := db.GetToolStats(context.Background(), "proj", sessionA)
	require.NoError(t, err)

	assert.Equal(t, sessionA, stats.SessionID)
	assert.Equal(t, int64(20), stats.Total)
	require.Len(t, stats.Tools, 4)

	assert.Equal(t, "Bash", stats.Tools[0].Name)
	assert.Equal(t, int64(8), stats.Tools[0].Count)
	assert.Equal(t, "Read", stats.Tools[1].Name)
	assert.Equal(t, int64(5), stats.Tools[1].Count)
	assert.Equal(t, "Edit", stats.Tools[2].Name)
	assert.Equal(t, int64(4), stats.Tools[2].Count)
	assert.Equal(t, "Task", stats.Tools[3].Name)
	assert.Equal(t, int64(3), stats.Tools[3].Count)
}

func TestGetFilterOptions(t *testing.T) {
	db, root := newTestDB(t)
	seedAnalyticsSession(t, root)

	opts, err := db.GetFilterOptions(context.Background(), "proj", sessionA)
	require.NoError(t, err)

	assert.Equal(t, []string{"assistant", "user"}, opts.Kinds)
	assert.Equal(t, []string{"Bash", "Edit", "Read", "Task"}, opts.Tools)
	assert.Equal(t, []string{modelHaiku, modelSonnet}, opts.Models)
	assert.True(t, opts.HasErrors)
}

func TestGetFilterOptionsWithoutErrors(t *testing.T) {
	db, root := newTestDB(t)
	writeSession(t, root, "proj", sessionA, []string{
		recUser(0, "hello"),
		recUser(1, "still fine"),
	})

	opts, err := db.GetFilterOptions(context.Background(), "proj", sessionA)
	require.NoError(t, err)
	assert.Equal(t, []string{"user"}, opts.Kinds)
	assert.Empty(t, opts.Tools)
	assert.Empty(t, opts.Models)
	assert.False(t, opts.HasErrors)
}

func TestGetErrorExcerpts(t *testing.T) {
	db, root := newTestDB(t)
	seedAnalyticsSession(t, root)
	ctx := context.Background()

	excerpts, err := db.GetErrorExcerpts(ctx, "proj", sessionA, 0)
	require.NoError(t, err)
	require.Len(t, excerpts, 5)
	assert.Equal(t, testUUID(10), excerpts[0].UUID)
	assert.Contains(t, excerpts[0].Text, "failure 10")
	assert.True(t, excerpts[0].Timestamp.Equal(fixtureBase.Add(10*time.Second)))

	limited, err := db.GetErrorExcerpts(ctx, "proj", sessionA, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, testUUID(10), limited[0].UUID)
	assert.Equal(t, testUUID(11), limited[1].UUID)
}

func TestGetErrorExcerptsTruncation(t *testing.T) {
	db, root := newTestDB(t)
	long := strings.Repeat("x", 600)
	writeSession(t, root, "proj", sessionA, []string{recToolError(0, long)})

	excerpts, err := db.GetErrorExcerpts(context.Background(), "proj", sessionA, 10)
	require.NoError(t, err)
	require.Len(t, excerpts, 1)
	assert.Len(t, excerpts[0].Text, 500)
}

func TestGetErrorExcerptsTruncationRuneSafe(t *testing.T) {
	db, root := newTestDB(t)
	long := strings.Repeat("世", 400)
	writeSession(t, root, "proj", sessionA, []string{recToolError(0, long)})

	excerpts, err := db.GetErrorExcerpts(context.Background(), "proj", sessionA, 10)
	require.NoError(t, err)
	require.Len(t, excerpts, 1)
	assert.LessOrEqual(t, len(excerpts[0].Text), 500)
	assert.True(t, utf8.ValidString(excerpts[0].Text), "excerpt must stay valid UTF-8")
}

func TestTruncateBacksOffToRuneBoundary(t *testing.T) {
	s := strings.Repeat("世", 10)
	for n := 0; n <= len(s); n++ {
		got := truncate(s, n)
		assert.LessOrEqual(t, len(got), n)
		assert.True(t, utf8.ValidString(got), "truncate(%d) produced invalid UTF-8", n)
	}
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "abc", truncate("abc", 10))
}
