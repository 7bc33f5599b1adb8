// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package decision

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates cache entries when their files change on disk.
//
// Description:
//
//	External edits (a human, an editor, another tool) make cached
//	decisions about a file stale in exactly the same way an applied
//	fix does. The watcher observes write and remove events for files
//	the cache holds decisions about and invalidates those entries.
//
// Thread Safety: safe for concurrent use; Close must be called once.
type Watcher struct {
	cache   *Cache
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	done    chan struct{}
}

// NewWatcher starts watching the given directories for file changes.
//
// Inputs:
//
//	cache - The cache to invalidate on changes. Must not be nil.
//	dirs - Directories to watch (non-recursive, per fsnotify).
//	logger - Logger for watch events. If nil, uses slog.Default().
//
// Outputs:
//
//	*Watcher - Running watcher. Call Close when done.
//	error - Non-nil if the OS watcher cannot be created.
func NewWatcher(cache *Cache, dirs []string, logger *slog.Logger) (*Watcher, error) {
	if cache == nil {
		return nil, fmt.Errorf("cache must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	for _, dir := range dirs {
		if err := fw.Add(dir); err != nil {
			logger.Warn("cannot watch directory",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
		}
	}

	w := &Watcher{
		cache:   cache,
		watcher: fw,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// loop consumes fsnotify events until Close.
func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			path := filepath.Clean(event.Name)
			if dropped := w.cache.Invalidate(path); dropped > 0 {
				w.logger.Debug("invalidated decisions for externally changed file",
					slog.String("path", path),
					slog.Int("dropped", dropped),
				)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", slog.String("error", err.Error()))
		}
	}
}

// Close stops the watcher and releases OS resources.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
