// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package filelock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrNilContext indicates a nil context was passed.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrInvalidInput indicates invalid input parameters.
	ErrInvalidInput = errors.New("invalid input")

	// ErrFileLocked indicates another process holds the sidecar lock.
	ErrFileLocked = errors.New("file is locked by another process")

	// ErrAcquireTimeout indicates the lease could not be acquired in time.
	ErrAcquireTimeout = errors.New("timed out acquiring file lock")
)

// =============================================================================
// Manager
// =============================================================================

const (
	// sidecarSuffix names the lock sidecar next to the target file.
	sidecarSuffix = ".mend-lock"

	// acquireRetryInterval is the poll interval while another process
	// holds the sidecar.
	acquireRetryInterval = 50 * time.Millisecond
)

// entry is the in-process state for one path.
type entry struct {
	mu   sync.Mutex
	refs int
}

// Manager hands out exclusive per-file leases.
//
// # Thread Safety
//
// Safe for concurrent use. Distinct paths lock independently; the
// same path serializes.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	locker  FileLocker
	logger  *slog.Logger
}

// NewManager creates a lease manager.
//
// # Inputs
//
//   - logger: Logger for stale-lock cleanup events. If nil, uses
//     slog.Default().
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		entries: make(map[string]*entry),
		locker:  newFileLocker(),
		logger:  logger,
	}
}

// Lease is an acquired exclusive lock on one file.
type Lease struct {
	manager *Manager
	path    string
	sidecar *os.File
	once    sync.Once
}

// Path returns the locked file's path.
func (l *Lease) Path() string { return l.path }

// Acquire takes an exclusive lease on path.
//
// # Description
//
// Blocks until both the in-process mutex for the path and the
// advisory OS lock on its sidecar are held, or ctx expires. A sidecar
// left by a dead process is removed before locking.
//
// # Inputs
//
//   - ctx: Bounds the wait. A deadline is strongly recommended.
//   - path: The file to lock. Cleaned before use so equivalent
//     spellings of a path contend on the same lease.
//
// # Outputs
//
//   - *Lease: Release must be called exactly once; extra calls are no-ops.
//   - error: ErrNilContext, ErrInvalidInput, or ErrAcquireTimeout
//     wrapping the context error.
func (m *Manager) Acquire(ctx context.Context, path string) (*Lease, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidInput)
	}
	path = filepath.Clean(path)

	e := m.entry(path)
	if err := lockWithContext(ctx, &e.mu); err != nil {
		m.release(path)
		return nil, fmt.Errorf("%w: %v", ErrAcquireTimeout, err)
	}

	sidecar, err := m.lockSidecar(ctx, path)
	if err != nil {
		e.mu.Unlock()
		m.release(path)
		return nil, err
	}

	return &Lease{manager: m, path: path, sidecar: sidecar}, nil
}

// Release frees the lease. Idempotent.
func (l *Lease) Release() {
	l.once.Do(func() {
		m := l.manager
		if l.sidecar != nil {
			if err := m.locker.Unlock(l.sidecar); err != nil {
				m.logger.Warn("failed to unlock sidecar",
					slog.String("path", l.path),
					slog.String("error", err.Error()),
				)
			}
			name := l.sidecar.Name()
			_ = l.sidecar.Close()
			_ = os.Remove(name)
		}

		m.mu.Lock()
		e := m.entries[l.path]
		m.mu.Unlock()
		if e != nil {
			e.mu.Unlock()
		}
		m.release(l.path)
	})
}

// entry returns the path's entry, creating it with a reference.
func (m *Manager) entry(path string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[path]
	if !ok {
		e = &entry{}
		m.entries[path] = e
	}
	e.refs++
	return e
}

// release drops one reference and evicts unreferenced entries.
func (m *Manager) release(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[path]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(m.entries, path)
	}
}

// lockSidecar creates and flocks the sidecar, retrying while another
// live process holds it.
func (m *Manager) lockSidecar(ctx context.Context, path string) (*os.File, error) {
	sidecarPath := path + sidecarSuffix

	for {
		m.reapStale(sidecarPath)

		f, err := os.OpenFile(sidecarPath, os.O_CREATE|os.O_RDWR, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening sidecar for %s: %w", path, err)
		}

		lockErr := m.locker.Lock(f)
		if lockErr == nil {
			// Record the holder so a later run can reap us if we die.
			_ = f.Truncate(0)
			_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0)
			return f, nil
		}
		_ = f.Close()

		if !errors.Is(lockErr, ErrFileLocked) {
			return nil, fmt.Errorf("locking sidecar for %s: %w", path, lockErr)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrAcquireTimeout, ctx.Err())
		case <-time.After(acquireRetryInterval):
		}
	}
}

// reapStale removes a sidecar whose recorded holder is dead.
func (m *Manager) reapStale(sidecarPath string) {
	data, err := os.ReadFile(sidecarPath)
	if err != nil {
		return
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return
	}
	if pid == os.Getpid() || IsProcessAlive(pid) {
		return
	}
	if err := os.Remove(sidecarPath); err == nil {
		m.logger.Info("removed stale lock sidecar",
			slog.String("sidecar", sidecarPath),
			slog.Int("dead_pid", pid),
		)
	}
}

// lockWithContext acquires mu or gives up when ctx expires.
func lockWithContext(ctx context.Context, mu *sync.Mutex) error {
	locked := make(chan struct{})
	go func() {
		mu.Lock()
		close(locked)
	}()

	select {
	case <-locked:
		return nil
	case <-ctx.Done():
		// The goroutine may still win the mutex later; hand it back
		// immediately so the path is not wedged.
		go func() {
			<-locked
			mu.Unlock()
		}()
		return ctx.Err()
	}
}
