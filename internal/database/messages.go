// Sessionlens - Agent Session Log Analytics
// Copyright 2026 The Sessionlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sessionlens/sessionlens

// messages.go - keyset-paginated message listing
package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/sessionlens/sessionlens/internal/database/query"
	"github.com/sessionlens/sessionlens/internal/logsource"
	"github.com/sessionlens/sessionlens/internal/models"
	"github.com/sessionlens/sessionlens/internal/timeutil"
)

// MessagesRequest describes one page of the message list.
type MessagesRequest struct {
	Project string
	Session string

	Filters query.Filters

	// Cursor, when set, resumes strictly after the (timestamp, uuid)
	// position it encodes. Filter-hash agreement is checked at the API
	// boundary; here only the shape is validated.
	Cursor *models.MessageCursor

	// Limit is the page size; the query probes Limit+1 rows to decide
	// has_more without a count.
	Limit int

	// IncludeSubagents merges the session's subagent logs into the
	// result as additional unioned sources.
	IncludeSubagents bool
}

// ListMessages returns one page of messages and, when another page
// exists, the cursor positioned at the last returned row.
func (db *DB) ListMessages(ctx context.Context, req MessagesRequest) (*models.MessagesPage, *models.MessageCursor, error) {
	if req.Limit < 1 {
		req.Limit = db.cfg.API.DefaultPageSize
	}
	if req.Cursor != nil {
		if _, err := uuid.Parse(req.Cursor.ID); err != nil {
			return nil, nil, fmt.Errorf("cursor id %q: %w", req.Cursor.ID, ErrInvalidCursor)
		}
		if req.Cursor.Timestamp.IsZero() {
			return nil, nil, fmt.Errorf("cursor timestamp is zero: %w", ErrInvalidCursor)
		}
	}

	// One retry: a view can be swept between acquire and query.
	page, next, err := db.listMessagesOnce(ctx, req)
	if isMissingViewErr(err) {
		page, next, err = db.listMessagesOnce(ctx, req)
	}
	return page, next, err
}

func (db *DB) listMessagesOnce(ctx context.Context, req MessagesRequest) (*models.MessagesPage, *models.MessageCursor, error) {
	views, err := db.sessionViews(ctx, req.Project, req.Session, req.IncludeSubagents)
	if err != nil {
		return nil, nil, err
	}

	spec := query.MessagesSpec{
		Views:   views,
		Filters: req.Filters,
		Limit:   req.Limit,
	}
	if req.Cursor != nil {
		spec.Cursor = &query.Cursor{
			Timestamp: req.Cursor.Timestamp,
			ID:        req.Cursor.ID,
		}
	}

	sqlText, args, err := query.BuildMessages(spec)
	if err != nil {
		return nil, nil, engineErr("list_messages", err)
	}

	rows, err := db.query(ctx, "list_messages", sqlText, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	messages, err := scanMessages(rows, req.Limit+1)
	if err != nil {
		return nil, nil, engineErr("list_messages", err)
	}

	hasMore := len(messages) > req.Limit
	if hasMore {
		messages = messages[:req.Limit]
	}

	var next *models.MessageCursor
	if hasMore && len(messages) > 0 {
		last := messages[len(messages)-1]
		next = &models.MessageCursor{
			Timestamp: last.Timestamp,
			ID:        last.UUID,
		}
	}

	page := &models.MessagesPage{
		Messages: messages,
		Pagination: models.PaginationInfo{
			Limit:   req.Limit,
			HasMore: hasMore,
		},
	}
	return page, next, nil
}

// sessionViews acquires the main session view plus, when requested, one
// view per subagent log.
func (db *DB) sessionViews(ctx context.Context, project, session string, includeSubagents bool) ([]query.SourceView, error) {
	src, err := db.resolver.Resolve(project, session)
	if err != nil {
		return nil, err
	}
	name, err := db.AcquireView(ctx, src)
	if err != nil {
		return nil, err
	}
	views := []query.SourceView{{Name: name}}

	if !includeSubagents {
		return views, nil
	}

	files, err := db.subagents.FilesFor(project, session)
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		subSrc, err := logsource.FileSource(file)
		if err != nil {
			// Subagent file vanished between index and acquire; the
			// session itself still answers.
			continue
		}
		subName, err := db.AcquireView(ctx, subSrc)
		if err != nil {
			return nil, err
		}
		views = append(views, query.SourceView{Name: subName, Subagent: true})
	}
	return views, nil
}

func scanMessages(rows *sql.Rows, capacity int) ([]models.Message, error) {
	messages := make([]models.Message, 0, capacity)
	for rows.Next() {
		var (
			rawUUID    interface{}
			rawTS      interface{}
			kind       string
			sessionID  sql.NullString
			model      sql.NullString
			content    sql.NullString
			inputTok   sql.NullInt64
			outputTok  sql.NullInt64
			cacheCTok  sql.NullInt64
			cacheRTok  sql.NullInt64
			isError    bool
			isSubagent bool
		)
		if err := rows.Scan(&rawUUID, &rawTS, &kind, &sessionID, &model, &content,
			&inputTok, &outputTok, &cacheCTok, &cacheRTok, &isError, &isSubagent); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}

		ts, err := timeutil.Coerce(rawTS)
		if err != nil {
			return nil, fmt.Errorf("failed to coerce timestamp: %w", err)
		}

		msg := models.Message{
			UUID:      timeutil.CoerceString(rawUUID),
			Timestamp: ts,
			Kind:      kind,
			Model:     model.String,
			Content:   content.String,
			SessionID: sessionID.String,
			IsError:   isError,
			Subagent:  isSubagent,
		}
		if inputTok.Valid || outputTok.Valid || cacheCTok.Valid || cacheRTok.Valid {
			msg.Usage = &models.Usage{
				InputTokens:         inputTok.Int64,
				OutputTokens:        outputTok.Int64,
				CacheCreationTokens: cacheCTok.Int64,
				CacheReadTokens:     cacheRTok.Int64,
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
