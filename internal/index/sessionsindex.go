// Sessionlens - Agent Session Log Analytics
// Copyright 2026 The Sessionlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sessionlens/sessionlens

// sessionsindex.go - sessions-index.json sidecar parsing
//
// Two formats exist in the wild: the current object form
// {"entries": [...]} and a legacy bare array. Entry field names also
// drifted (sessionId vs id, projectPath vs directory); both spellings are
// accepted.
package index

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
)

type indexEntry struct {
	SessionID   string `json:"sessionId"`
	LegacyID    string `json:"id"`
	ProjectPath string `json:"projectPath"`
	Directory   string `json:"directory"`
	Slug        string `json:"slug"`
}

// sessionID returns the entry's session identifier under either spelling.
func (e indexEntry) sessionID() string {
	if e.SessionID != "" {
		return e.SessionID
	}
	return e.LegacyID
}

// projectPath returns the entry's project directory under either spelling.
func (e indexEntry) projectPath() string {
	if e.ProjectPath != "" {
		return e.ProjectPath
	}
	return e.Directory
}

// parseSessionsIndex reads a sessions-index.json file in either format.
func parseSessionsIndex(path string) ([]indexEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var wrapped struct {
		Entries []indexEntry `json:"entries"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Entries != nil {
		return wrapped.Entries, nil
	}

	var legacy []indexEntry
	if err := json.Unmarshal(data, &legacy); err == nil {
		return legacy, nil
	}

	return nil, fmt.Errorf("unrecognized sessions-index format in %s", path)
}
