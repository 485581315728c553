// Sessionlens - Agent Session Log Analytics
// Copyright 2026 The Sessionlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sessionlens/sessionlens

// Package index maintains the project/session catalog for the dashboard.
//
// A full scan of the logs root builds an immutable snapshot which is then
// swapped in atomically; readers always see a complete, consistent
// catalog and never block the scanner. The first scan runs synchronously
// before the server accepts traffic, then a background service rescans on
// an interval.
package index

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sessionlens/sessionlens/internal/logging"
	"github.com/sessionlens/sessionlens/internal/logsource"
	"github.com/sessionlens/sessionlens/internal/metrics"
	"github.com/sessionlens/sessionlens/internal/models"
)

// Session status thresholds. A log written moments ago belongs to a live
// session; one idle for a while is presumed finished.
const (
	runningWindow = 2 * time.Minute
	idleWindow    = 30 * time.Minute
)

// Snapshot is one immutable scan result.
type Snapshot struct {
	Projects  map[string]ProjectEntry
	ScannedAt time.Time
}

// ProjectEntry is one project with its sessions.
type ProjectEntry struct {
	Project  models.Project
	Sessions map[string]models.Session
}

// Index owns the snapshot and the scan loop.
type Index struct {
	resolver *logsource.Resolver
	interval time.Duration

	snapshot atomic.Pointer[Snapshot]
}

// New creates an index over the resolver's root, rescanning every
// interval once Serve runs.
func New(resolver *logsource.Resolver, interval time.Duration) *Index {
	idx := &Index{
		resolver: resolver,
		interval: interval,
	}
	idx.snapshot.Store(&Snapshot{Projects: map[string]ProjectEntry{}})
	return idx
}

// Bootstrap runs the initial synchronous scan. The server does not start
// answering catalog queries until this returns.
func (idx *Index) Bootstrap(ctx context.Context) error {
	return idx.scan(ctx)
}

// Serve runs the periodic rescan loop until ctx is canceled. It
// implements suture.Service.
func (idx *Index) Serve(ctx context.Context) error {
	ticker := time.NewTicker(idx.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := idx.scan(ctx); err != nil {
				metrics.IndexScanErrors.Inc()
				logging.Warn().Err(err).Msg("Project index scan failed")
			}
		}
	}
}

func (idx *Index) String() string {
	return "project-index"
}

// Projects returns the catalog sorted by most recent activity.
func (idx *Index) Projects() []models.Project {
	snap := idx.snapshot.Load()
	out := make([]models.Project, 0, len(snap.Projects))
	for _, entry := range snap.Projects {
		out = append(out, entry.Project)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].LastActivity.After(out[j].LastActivity)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Sessions returns a project's sessions, newest first.
func (idx *Index) Sessions(projectID string) ([]models.Session, error) {
	snap := idx.snapshot.Load()
	entry, ok := snap.Projects[projectID]
	if !ok {
		return nil, logsource.ErrNotFound
	}
	out := make([]models.Session, 0, len(entry.Sessions))
	for _, s := range entry.Sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].ModTime.After(out[j].ModTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ScannedAt reports when the current snapshot was built.
func (idx *Index) ScannedAt() time.Time {
	return idx.snapshot.Load().ScannedAt
}

// scan walks the logs root and swaps in a fresh snapshot.
func (idx *Index) scan(ctx context.Context) error {
	start := time.Now()
	root := idx.resolver.Root()

	dirs, err := os.ReadDir(root)
	if err != nil {
		return err
	}

	projects := make(map[string]ProjectEntry)
	for _, dir := range dirs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !dir.IsDir() || strings.HasPrefix(dir.Name(), ".") {
			continue
		}
		entry, ok := idx.scanProject(dir.Name())
		if ok {
			projects[dir.Name()] = entry
		}
	}

	idx.snapshot.Store(&Snapshot{
		Projects:  projects,
		ScannedAt: time.Now(),
	})

	metrics.IndexScanDuration.Observe(time.Since(start).Seconds())
	metrics.IndexProjects.Set(float64(len(projects)))
	logging.Debug().
		Int("projects", len(projects)).
		Dur("elapsed", time.Since(start)).
		Msg("Project index scan complete")
	return nil
}

// scanProject merges a project's sessions-index sidecar with the session
// files actually on disk. The filesystem is the source of truth for
// existence and mtime; the sidecar contributes slugs and the real
// project path. Sessions present only in the sidecar are dropped (their
// files are gone), sessions present only on disk get zero-value metadata.
func (idx *Index) scanProject(projectID string) (ProjectEntry, bool) {
	dir := filepath.Join(idx.resolver.Root(), projectID)

	files, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil || len(files) == 0 {
		return ProjectEntry{}, false
	}

	sidecar := make(map[string]indexEntry)
	projectPath := ""
	indexPath := filepath.Join(dir, "sessions-index.json")
	if _, err := os.Stat(indexPath); err == nil {
		entries, err := parseSessionsIndex(indexPath)
		if err != nil {
			logging.Warn().Err(err).Str("project", projectID).
				Msg("Malformed sessions-index, falling back to directory glob")
		}
		for _, e := range entries {
			if id := e.sessionID(); id != "" {
				sidecar[id] = e
			}
			if projectPath == "" {
				projectPath = e.projectPath()
			}
		}
	}

	sessions := make(map[string]models.Session)
	var lastActivity time.Time
	for _, file := range files {
		id := strings.TrimSuffix(filepath.Base(file), ".jsonl")
		if !logsource.IsValidSessionID(id) {
			continue
		}
		info, err := os.Stat(file)
		if err != nil {
			continue
		}

		s := models.Session{
			ID:        id,
			ProjectID: projectID,
			Status:    statusFor(info.ModTime(), time.Now()),
			SizeBytes: info.Size(),
			ModTime:   info.ModTime(),
		}
		if e, ok := sidecar[id]; ok {
			s.Slug = e.Slug
		}
		sessions[id] = s

		if info.ModTime().After(lastActivity) {
			lastActivity = info.ModTime()
		}
	}
	if len(sessions) == 0 {
		return ProjectEntry{}, false
	}

	if projectPath == "" {
		// No sidecar path; peek the newest log's cwd field instead.
		projectPath = logsource.PeekProjectPath(newestFile(files))
	}

	return ProjectEntry{
		Project: models.Project{
			ID:           projectID,
			Path:         projectPath,
			SessionCount: len(sessions),
			LastActivity: lastActivity,
		},
		Sessions: sessions,
	}, true
}

// statusFor derives a session status from file age alone. Reading log
// contents per session per scan would defeat the point of a cheap
// periodic scan, so recency stands in for liveness.
func statusFor(modTime, now time.Time) string {
	age := now.Sub(modTime)
	switch {
	case age < runningWindow:
		return models.StatusRunning
	case age < idleWindow:
		return models.StatusIdle
	default:
		return models.StatusCompleted
	}
}

func newestFile(files []string) string {
	var newest string
	var newestMod time.Time
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		if info.ModTime().After(newestMod) {
			newest = f
			newestMod = info.ModTime()
		}
	}
	return newest
}
