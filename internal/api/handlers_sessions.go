// Sessionlens - Agent Session Log Analytics
// Copyright 2026 The Sessionlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sessionlens/sessionlens

// handlers_sessions.go - catalog, message list, and analytics endpoints
package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sessionlens/sessionlens/internal/cache"
	"github.com/sessionlens/sessionlens/internal/database"
	"github.com/sessionlens/sessionlens/internal/database/query"
	"github.com/sessionlens/sessionlens/internal/models"
)

// Projects lists every project in the current index snapshot, most
// recently active first.
func (h *Handler) Projects(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	projects := h.index.Projects()
	respondSuccess(w, map[string]interface{}{
		"projects":   projects,
		"scanned_at": h.index.ScannedAt(),
	}, time.Since(start), false)
}

// Sessions lists one project's sessions, newest first.
func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	project := chi.URLParam(r, "project")

	sessions, err := h.index.Sessions(project)
	if err != nil {
		respondMapped(w, err)
		return
	}
	respondSuccess(w, map[string]interface{}{
		"sessions": sessions,
	}, time.Since(start), false)
}

// messagesParams is the validated query-string shape for Messages.
type messagesParams struct {
	Session string `validate:"required,uuid"`
	Limit   int    `validate:"min=1"`
}

// Messages serves one keyset page of a session's merged message list.
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	project := chi.URLParam(r, "project")
	session := chi.URLParam(r, "session")

	limit := getIntParam(r, "limit", h.config.API.DefaultPageSize)
	if limit > h.config.API.MaxPageSize {
		limit = h.config.API.MaxPageSize
	}
	if apiErr := validateRequest(&messagesParams{Session: session, Limit: limit}); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	filters, err := parseFilters(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, models.ErrCodeValidation, err.Error(), nil)
		return
	}
	filterHash := FilterHash(filters)

	var cursor *models.MessageCursor
	if token := r.URL.Query().Get("cursor"); token != "" {
		cursor, err = DecodeCursor(token)
		if err != nil {
			respondMapped(w, err)
			return
		}
		// A token minted under different filters points into a different
		// row ordering; honoring it would skip or repeat messages.
		if cursor.FilterHash != filterHash {
			respondError(w, http.StatusBadRequest, models.ErrCodeInvalidCursor,
				"Cursor was issued for a different filter set", database.ErrInvalidCursor)
			return
		}
	}

	page, next, err := h.db.ListMessages(r.Context(), database.MessagesRequest{
		Project:          project,
		Session:          session,
		Filters:          filters,
		Cursor:           cursor,
		Limit:            limit,
		IncludeSubagents: getBoolParam(r, "include_subagents", true),
	})
	if err != nil {
		respondMapped(w, err)
		return
	}

	if next != nil {
		next.FilterHash = filterHash
		token, err := EncodeCursor(*next)
		if err != nil {
			respondMapped(w, err)
			return
		}
		page.Pagination.NextCursor = &token
	}

	respondSuccess(w, page, time.Since(start), false)
}

// Metrics serves aggregated token, cost, and message counts for one
// session, memoized against the log file's mtime.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	h.cachedAnalytics(w, r, "get_metrics", h.metricsCache,
		func(ctx *http.Request, project, session string) (interface{}, error) {
			return h.db.GetSessionMetrics(ctx.Context(), project, session)
		})
}

// Tools serves per-tool invocation counts for one session.
func (h *Handler) Tools(w http.ResponseWriter, r *http.Request) {
	h.cachedAnalytics(w, r, "get_tool_stats", h.toolsCache,
		func(ctx *http.Request, project, session string) (interface{}, error) {
			return h.db.GetToolStats(ctx.Context(), project, session)
		})
}

// Filters serves the distinct kinds, tools, and models present in one
// session, for populating dashboard filter dropdowns.
func (h *Handler) Filters(w http.ResponseWriter, r *http.Request) {
	h.cachedAnalytics(w, r, "get_filter_options", h.filtersCache,
		func(ctx *http.Request, project, session string) (interface{}, error) {
			return h.db.GetFilterOptions(ctx.Context(), project, session)
		})
}

// Errors serves excerpts of failed tool results for one session.
func (h *Handler) Errors(w http.ResponseWriter, r *http.Request) {
	limit := getIntParam(r, "limit", 100)
	h.cachedAnalytics(w, r, "get_errors", h.errorsCache,
		func(ctx *http.Request, project, session string) (interface{}, error) {
			excerpts, err := h.db.GetErrorExcerpts(ctx.Context(), project, session, limit)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"errors": excerpts}, nil
		})
}

// cachedAnalytics runs one per-session analytics computation through its
// result cache. The cache key binds to the resolved source path and its
// mtime at compute time, so an appended log recomputes on the next hit.
func (h *Handler) cachedAnalytics(w http.ResponseWriter, r *http.Request, method string, c *cache.Cache,
	compute func(r *http.Request, project, session string) (interface{}, error)) {
	start := time.Now()
	project := chi.URLParam(r, "project")
	session := chi.URLParam(r, "session")

	src, err := h.db.Resolver().Resolve(project, session)
	if err != nil {
		respondMapped(w, err)
		return
	}

	key := cache.GenerateKey(method, map[string]string{
		"project": project,
		"session": session,
		"query":   r.URL.RawQuery,
	})
	value, cached, err := c.GetOrCompute(key, src.Path, func() (interface{}, time.Time, error) {
		v, err := compute(r, project, session)
		if err != nil {
			return nil, time.Time{}, err
		}
		return v, src.ModTime, nil
	})
	if err != nil {
		respondMapped(w, err)
		return
	}

	respondSuccess(w, value, time.Since(start), cached)
}

// parseFilters reads the filter query parameters shared by the message
// list endpoint.
func parseFilters(r *http.Request) (query.Filters, error) {
	f := query.Filters{
		Tool:       r.URL.Query().Get("tool"),
		ErrorsOnly: getBoolParam(r, "errors_only", false),
		Search:     r.URL.Query().Get("search"),
	}

	if kinds := r.URL.Query().Get("kinds"); kinds != "" {
		for _, k := range strings.Split(kinds, ",") {
			if k = strings.TrimSpace(k); k == "" {
				continue
			}
			switch k {
			case query.KindUser, query.KindAssistant, query.KindSystem, query.KindSummary:
				f.Kinds = append(f.Kinds, k)
			default:
				return f, fmt.Errorf("unknown message kind %q", k)
			}
		}
	}

	var err error
	if f.Since, err = getTimeParam(r, "since"); err != nil {
		return f, err
	}
	if f.Until, err = getTimeParam(r, "until"); err != nil {
		return f, err
	}
	if err := checkFilterConflicts(f); err != nil {
		return f, err
	}
	return f, nil
}

// checkFilterConflicts rejects filter combinations that can never match
// a row: tool invocations appear only on assistant messages and failed
// tool results only on user messages, so these are caught here as bad
// input rather than surfacing as engine failures.
func checkFilterConflicts(f query.Filters) error {
	if f.Tool != "" && f.ErrorsOnly {
		return fmt.Errorf("tool and errors_only cannot be combined")
	}
	if f.Tool != "" && len(f.Kinds) > 0 && !hasKind(f.Kinds, query.KindAssistant) {
		return fmt.Errorf("tool filter requires the assistant kind")
	}
	if f.ErrorsOnly && len(f.Kinds) > 0 && !hasKind(f.Kinds, query.KindUser) {
		return fmt.Errorf("errors_only filter requires the user kind")
	}
	return nil
}

func hasKind(kinds []string, want string) bool {
	for _, k := range kinds {
		if k == want {
			return true
		}
	}
	return false
}
