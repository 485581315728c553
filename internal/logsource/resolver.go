// Sessionlens - Agent Session Log Analytics
// Copyright 2026 The Sessionlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sessionlens/sessionlens

// Package logsource maps (project, session) identifiers onto concrete log
// files under the logs root and discovers the subagent logs that belong to
// a session.
//
// The on-disk layout mirrors what the agent CLI writes:
//
//	<root>/<project>/<session>.jsonl            main session log
//	<root>/<project>/<session>.parquet          optional columnar snapshot
//	<root>/<project>/<session>/subagents/       subagent logs (current layout)
//	<root>/<project>/subagents/                 subagent logs (legacy layout)
//	<root>/<project>/sessions-index.json        session index sidecar
package logsource

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates the requested project or session has no log file
// on disk.
var ErrNotFound = errors.New("log source not found")

// Format identifies the physical encoding of a source file.
type Format string

const (
	FormatJSONL   Format = "jsonl"
	FormatParquet Format = "parquet"
)

// Source describes one resolved log file.
type Source struct {
	Path    string
	Format  Format
	Size    int64
	ModTime time.Time
}

// Resolver resolves identifiers to files under a fixed logs root. It never
// returns a path outside the root.
type Resolver struct {
	root string
}

// NewResolver creates a resolver rooted at dir.
func NewResolver(dir string) *Resolver {
	return &Resolver{root: dir}
}

// Root returns the logs root directory.
func (r *Resolver) Root() string {
	return r.root
}

// ProjectDir returns the directory for a project ID after validating it.
func (r *Resolver) ProjectDir(projectID string) (string, error) {
	if err := validateProjectID(projectID); err != nil {
		return "", err
	}
	dir := filepath.Join(r.root, projectID)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	return dir, nil
}

// Resolve locates the log file for a session. When a parquet snapshot
// exists alongside the JSONL and is at least as new, the snapshot wins:
// it parses faster and holds identical rows.
func (r *Resolver) Resolve(projectID, sessionID string) (Source, error) {
	dir, err := r.ProjectDir(projectID)
	if err != nil {
		return Source{}, err
	}
	if !IsValidSessionID(sessionID) {
		return Source{}, fmt.Errorf("session id %q: %w", sessionID, ErrNotFound)
	}

	jsonlPath := filepath.Join(dir, sessionID+".jsonl")
	jsonlInfo, jsonlErr := os.Stat(jsonlPath)

	parquetPath := filepath.Join(dir, sessionID+".parquet")
	parquetInfo, parquetErr := os.Stat(parquetPath)

	switch {
	case parquetErr == nil && (jsonlErr != nil || !parquetInfo.ModTime().Before(jsonlInfo.ModTime())):
		return Source{
			Path:    parquetPath,
			Format:  FormatParquet,
			Size:    parquetInfo.Size(),
			ModTime: parquetInfo.ModTime(),
		}, nil
	case jsonlErr == nil:
		return Source{
			Path:    jsonlPath,
			Format:  FormatJSONL,
			Size:    jsonlInfo.Size(),
			ModTime: jsonlInfo.ModTime(),
		}, nil
	default:
		return Source{}, fmt.Errorf("session %s/%s: %w", projectID, sessionID, ErrNotFound)
	}
}

// SessionsIndexPath returns the sessions-index.json path for a project.
// The file is optional; callers stat it themselves.
func (r *Resolver) SessionsIndexPath(projectID string) (string, error) {
	dir, err := r.ProjectDir(projectID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sessions-index.json"), nil
}

// FileSource builds a Source for a known JSONL file path, such as a
// subagent log returned by the subagent index.
func FileSource(path string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Source{}, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return Source{
		Path:    path,
		Format:  FormatJSONL,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// IsValidSessionID reports whether s is a canonical UUID, the only session
// file naming the CLI produces. Everything else is rejected before it can
// reach the filesystem.
func IsValidSessionID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

func validateProjectID(projectID string) error {
	if projectID == "" ||
		strings.ContainsAny(projectID, `/\`) ||
		projectID == "." || projectID == ".." ||
		strings.Contains(projectID, "..") {
		return fmt.Errorf("project id %q: %w", projectID, ErrNotFound)
	}
	return nil
}
