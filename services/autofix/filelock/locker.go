// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package filelock serializes file modifications during fix
// application. Each target file gets an exclusive lease combining an
// in-process mutex (against concurrent fix goroutines) with an
// advisory OS lock on a sidecar file (against concurrent runs of the
// tool on the same tree).
package filelock

import (
	"os"
)

// FileLocker abstracts platform-specific file locking.
//
// # Description
//
// Unix uses syscall.Flock; Windows currently degrades to the
// in-process mutex only.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use on different files.
type FileLocker interface {
	// Lock acquires an exclusive lock on the file. Non-blocking:
	// returns ErrFileLocked immediately if another process holds it.
	Lock(f *os.File) error

	// Unlock releases the lock. Safe to call even if not locked.
	Unlock(f *os.File) error
}

// IsProcessAlive reports whether a process with the given PID exists.
// Used for stale sidecar detection.
func IsProcessAlive(pid int) bool {
	return isProcessAlive(pid)
}

// newFileLocker creates a platform-appropriate FileLocker.
func newFileLocker() FileLocker {
	return newPlatformLocker()
}
