// Sessionlens - Agent Session Log Analytics
// Copyright 2026 The Sessionlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sessionlens/sessionlens

package logsource

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/sessionlens/sessionlens/internal/logging"
)

// maxPeekLine bounds how much of a file's first line we read when peeking
// for ownership metadata.
const maxPeekLine = 1 << 20

// SubagentIndex maps sessions to their subagent log files.
//
// The current layout nests subagent logs under the session
// (<session>/subagents/agent-*.jsonl) and needs only a glob. The legacy
// layout drops them all into one project-level subagents/ directory, where
// ownership is only recorded in each file's first record; those are peeked
// once per directory state and the mapping cached against the directory
// mtime.
type SubagentIndex struct {
	resolver *Resolver

	mu     sync.RWMutex
	legacy map[string]*legacyEntry // projectID -> cached legacy mapping
}

type legacyEntry struct {
	dirModTime time.Time
	bySession  map[string][]string
}

// NewSubagentIndex creates a subagent index over the resolver's root.
func NewSubagentIndex(resolver *Resolver) *SubagentIndex {
	return &SubagentIndex{
		resolver: resolver,
		legacy:   make(map[string]*legacyEntry),
	}
}

// FilesFor returns the subagent log paths belonging to a session, sorted
// for deterministic query plans. A session with no subagents returns an
// empty slice, not an error.
func (x *SubagentIndex) FilesFor(projectID, sessionID string) ([]string, error) {
	dir, err := x.resolver.ProjectDir(projectID)
	if err != nil {
		return nil, err
	}
	if !IsValidSessionID(sessionID) {
		return nil, ErrNotFound
	}

	var files []string

	nested, err := filepath.Glob(filepath.Join(dir, sessionID, "subagents", "agent-*.jsonl"))
	if err == nil {
		files = append(files, nested...)
	}

	legacy, err := x.legacyFiles(projectID, dir)
	if err != nil {
		return nil, err
	}
	files = append(files, legacy[sessionID]...)

	sort.Strings(files)
	return files, nil
}

// Invalidate drops the cached legacy mapping for a project, forcing a
// rebuild on next access.
func (x *SubagentIndex) Invalidate(projectID string) {
	x.mu.Lock()
	delete(x.legacy, projectID)
	x.mu.Unlock()
}

// legacyFiles returns the sessionID -> files mapping for the project-level
// subagents directory, rebuilding it when the directory mtime moves.
func (x *SubagentIndex) legacyFiles(projectID, projectDir string) (map[string][]string, error) {
	subDir := filepath.Join(projectDir, "subagents")
	info, err := os.Stat(subDir)
	if err != nil {
		// No legacy directory at all.
		return nil, nil
	}

	x.mu.RLock()
	cached, ok := x.legacy[projectID]
	x.mu.RUnlock()
	if ok && cached.dirModTime.Equal(info.ModTime()) {
		return cached.bySession, nil
	}

	bySession := make(map[string][]string)
	matches, err := filepath.Glob(filepath.Join(subDir, "agent-*.jsonl"))
	if err != nil {
		return nil, err
	}
	for _, path := range matches {
		owner := peekSessionID(path)
		if owner == "" {
			logging.Debug().Str("file", path).Msg("subagent log has no sessionId in first record")
			continue
		}
		bySession[owner] = append(bySession[owner], path)
	}

	x.mu.Lock()
	x.legacy[projectID] = &legacyEntry{
		dirModTime: info.ModTime(),
		bySession:  bySession,
	}
	x.mu.Unlock()

	return bySession, nil
}

// peekSessionID reads only the first record of a subagent log and extracts
// its sessionId field. Returns "" when the file is empty or the first line
// is not valid JSON.
func peekSessionID(path string) string {
	line, err := readFirstLine(path)
	if err != nil {
		return ""
	}
	return gjson.GetBytes(line, "sessionId").String()
}

// PeekProjectPath extracts the working directory recorded in the first few
// records of a session log. The cwd field is present on user and assistant
// records but not on summaries, so a handful of lines are scanned.
func PeekProjectPath(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxPeekLine)
	for i := 0; i < 20 && scanner.Scan(); i++ {
		if cwd := gjson.GetBytes(scanner.Bytes(), "cwd").String(); cwd != "" {
			return cwd
		}
	}
	return ""
}

func readFirstLine(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReaderSize(io.LimitReader(f, maxPeekLine), 64*1024)
	line, err := r.ReadBytes('\n')
	if len(line) == 0 && err != nil {
		return nil, err
	}
	return line, nil
}
