// Sessionlens - Agent Session Log Analytics
// Copyright 2026 The Sessionlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sessionlens/sessionlens

// Package watch invalidates derived state when log files change on disk.
//
// The mtime checks in the view manager and result cache already guarantee
// correctness; the watcher only makes invalidation prompt, dropping stale
// views and cached results as soon as the CLI appends to a log instead of
// waiting for the next acquire.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sessionlens/sessionlens/internal/logging"
)

// Watcher watches the logs root recursively and reports changed paths
// after a debounce window, collapsing the burst of writes a streaming
// append produces into one notification.
type Watcher struct {
	root     string
	debounce time.Duration
	onChange func(paths []string)

	mu      sync.Mutex
	pending map[string]time.Time
	now     func() time.Time
}

// New creates a watcher over root. onChange receives batches of changed
// file paths.
func New(root string, debounce time.Duration, onChange func(paths []string)) (*Watcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("onChange callback is nil: %w", os.ErrInvalid)
	}
	return &Watcher{
		root:     root,
		debounce: debounce,
		onChange: onChange,
		pending:  make(map[string]time.Time),
		now:      time.Now,
	}, nil
}

// Serve watches until ctx is canceled. It implements suture.Service; a
// watcher error returns and lets the supervisor restart it.
func (w *Watcher) Serve(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	watched, unwatched := w.watchRecursive(fsw, w.root)
	logging.Info().
		Int("watched", watched).
		Int("unwatched", unwatched).
		Str("root", w.root).
		Msg("Log watcher started")

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return fmt.Errorf("watcher event channel closed")
			}
			w.handleEvent(fsw, event)

		case err, ok := <-fsw.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			logging.Warn().Err(err).Msg("Log watcher error")

		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) String() string {
	return "log-watcher"
}

// watchRecursive adds root and every subdirectory to the watch list.
func (w *Watcher) watchRecursive(fsw *fsnotify.Watcher, root string) (watched, unwatched int) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible dirs
		}
		if d.IsDir() {
			if addErr := fsw.Add(path); addErr != nil {
				unwatched++
			} else {
				watched++
			}
		}
		return nil
	})
	return watched, unwatched
}

func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	// New project or subagent directories appear after startup; watch
	// them as they arrive.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = fsw.Add(event.Name)
			return
		}
	}

	if !strings.HasSuffix(event.Name, ".jsonl") &&
		!strings.HasSuffix(event.Name, ".parquet") &&
		!strings.HasSuffix(event.Name, "sessions-index.json") {
		return
	}

	w.mu.Lock()
	w.pending[event.Name] = w.now()
	w.mu.Unlock()
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}

	now := w.now()
	var ready []string
	for path, t := range w.pending {
		if now.Sub(t) >= w.debounce {
			ready = append(ready, path)
		}
	}
	for _, path := range ready {
		delete(w.pending, path)
	}
	w.mu.Unlock()

	if len(ready) > 0 {
		logging.Debug().Int("files", len(ready)).Msg("Log files changed")
		w.onChange(ready)
	}
}
