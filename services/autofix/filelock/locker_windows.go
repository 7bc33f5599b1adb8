// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build windows

package filelock

import (
	"os"
)

// windowsFileLocker is a no-op FileLocker.
//
// # Description
//
// Cross-process exclusion is not implemented on Windows; the
// in-process mutex in Manager still serializes fix goroutines.
// TODO: implement via golang.org/x/sys/windows.LockFileEx.
type windowsFileLocker struct{}

func (l *windowsFileLocker) Lock(f *os.File) error   { return nil }
func (l *windowsFileLocker) Unlock(f *os.File) error { return nil }

// isProcessAlive always reports false on Windows, treating every
// sidecar as stale.
func isProcessAlive(pid int) bool {
	return false
}

func newPlatformLocker() FileLocker {
	return &windowsFileLocker{}
}
