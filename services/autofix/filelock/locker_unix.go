// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build unix

package filelock

import (
	"os"
	"syscall"
)

// unixFileLocker implements FileLocker using flock(2).
//
// # Description
//
// Advisory locks: process-scoped, released on close or process exit,
// non-blocking via LOCK_NB.
type unixFileLocker struct{}

// Lock acquires an exclusive lock using LOCK_EX|LOCK_NB.
func (l *unixFileLocker) Lock(f *os.File) error {
	err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		if err == syscall.EWOULDBLOCK {
			return ErrFileLocked
		}
		return err
	}
	return nil
}

// Unlock releases the lock using LOCK_UN.
func (l *unixFileLocker) Unlock(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}

// isProcessAlive checks process existence with signal 0.
func isProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

func newPlatformLocker() FileLocker {
	return &unixFileLocker{}
}
