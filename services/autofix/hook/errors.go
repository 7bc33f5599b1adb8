// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hook

import (
	"errors"
	"fmt"
)

// Sentinel errors for the hook package.
var (
	// ErrNilContext is returned when a nil context is passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateHook is returned when two definitions share a name.
	ErrDuplicateHook = errors.New("hook with this name already exists")

	// ErrUnknownDependency is returned when depends_on names a hook
	// that is not part of the batch request.
	ErrUnknownDependency = errors.New("dependency not found")

	// ErrCycleDetected is returned when the dependency graph has a cycle.
	ErrCycleDetected = errors.New("cycle detected in hook dependencies")

	// ErrHookTimeout marks a hook that exceeded its timeout.
	ErrHookTimeout = errors.New("hook execution timed out")

	// ErrHookSpawn marks a hook whose process could not be started.
	ErrHookSpawn = errors.New("hook process failed to start")
)

// HookError wraps an error with the hook that caused it.
type HookError struct {
	HookName string
	Err      error
}

// Error returns the error message.
func (e *HookError) Error() string {
	return fmt.Sprintf("hook %q: %v", e.HookName, e.Err)
}

// Unwrap returns the underlying error.
func (e *HookError) Unwrap() error {
	return e.Err
}

// NewHookError creates a HookError.
func NewHookError(name string, err error) *HookError {
	return &HookError{HookName: name, Err: err}
}

// CycleError reports the path of a detected dependency cycle.
type CycleError struct {
	Path []string
}

// Error returns the cycle description.
func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: %v", ErrCycleDetected, e.Path)
}

// Unwrap returns ErrCycleDetected so callers can errors.Is against it.
func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}
