// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package converge drives the fix loop: collect issues, dispatch them
// to agents, apply the proposed changes under per-file locks, and
// decide each iteration whether the run is converging. The controller
// is the outermost component and deliberately never returns an error:
// every failure mode degrades into a terminal report so callers always
// get a structured outcome.
package converge

import (
	"errors"
	"time"

	"github.com/AleutianAI/mend/services/autofix/issue"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrInvalidInput indicates invalid constructor parameters.
	ErrInvalidInput = errors.New("invalid input")
)

// =============================================================================
// Status
// =============================================================================

// Status is the controller's lifecycle state.
type Status string

const (
	// StatusInit is the state before the first iteration.
	StatusInit Status = "init"

	// StatusIterating is the state while the loop runs.
	StatusIterating Status = "iterating"

	// StatusSuccess means the issue count reached zero.
	StatusSuccess Status = "success"

	// StatusNoProgress means too many consecutive iterations failed
	// to strictly reduce the issue count.
	StatusNoProgress Status = "no_progress"

	// StatusMaxIterations means the iteration budget ran out first.
	StatusMaxIterations Status = "max_iterations"
)

// Terminal reports whether the status ends the loop.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusNoProgress, StatusMaxIterations:
		return true
	}
	return false
}

// =============================================================================
// Configuration
// =============================================================================

const (
	// DefaultMaxIterations bounds the fix loop.
	DefaultMaxIterations = 10

	// DefaultNoProgressLimit is how many consecutive non-improving
	// iterations are tolerated before giving up.
	DefaultNoProgressLimit = 3
)

// Config configures the convergence loop.
type Config struct {
	// MaxIterations bounds the loop. Zero means DefaultMaxIterations.
	MaxIterations int

	// NoProgressLimit is the consecutive non-improving iteration
	// budget. Zero means DefaultNoProgressLimit.
	NoProgressLimit int

	// IterationTimeout bounds one collect+fix+apply pass. Zero
	// disables the per-iteration deadline; the caller's context still
	// applies.
	IterationTimeout time.Duration

	// Root is the project root that relative proposed-change paths
	// resolve against. Empty means paths are used as given.
	Root string
}

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.NoProgressLimit <= 0 {
		c.NoProgressLimit = DefaultNoProgressLimit
	}
	return c
}

// =============================================================================
// Report
// =============================================================================

// Report is the terminal outcome of a convergence run.
type Report struct {
	// Success is true only when the final issue count is zero.
	Success bool `json:"success"`

	// Status is the terminal status the loop reached.
	Status Status `json:"status"`

	// Iterations is how many iterations ran.
	Iterations int `json:"iterations"`

	// FinalIssueCount is the last observed issue count.
	FinalIssueCount int `json:"final_issue_count"`

	// History is the issue count observed at each iteration, in
	// order. Append-only during the run.
	History []int `json:"history"`

	// Unresolved holds the issues still present when the loop ended.
	Unresolved []issue.Issue `json:"unresolved"`
}
