// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package hook executes external check commands as a
// dependency-ordered, bounded-parallelism batch job.
//
// Definitions are grouped into batches where every hook's declared
// dependencies are satisfied by earlier batches. Hooks in a batch run
// concurrently under a worker semaphore; a batch completes only when
// all of its members finish. A hook failure never cancels siblings
// and never aborts scheduling: the scheduler always returns exactly
// one Result per requested Definition.
package hook

import (
	"strings"
	"time"
)

// DefaultTimeout applies to definitions without an explicit timeout.
const DefaultTimeout = 60 * time.Second

// Stage names a check phase grouping a subset of hooks.
type Stage string

const (
	// StageFast groups quick checks (formatters, import order).
	StageFast Stage = "fast"

	// StageComprehensive groups the full battery (types, security, tests).
	StageComprehensive Stage = "comprehensive"
)

// RetryPolicy controls whether a failed hook is re-run within its batch.
type RetryPolicy string

const (
	// RetryNone never re-runs a failed hook.
	RetryNone RetryPolicy = "none"

	// RetryFormattingOnly re-runs a failed formatting hook once.
	// Formatters commonly exit non-zero after rewriting files; a
	// second run against the rewritten tree reports the real state.
	RetryFormattingOnly RetryPolicy = "formatting-only"
)

// Definition describes one external check command.
//
// Definitions are supplied by an external strategy loader and are
// read-only to the scheduler.
type Definition struct {
	// Name uniquely identifies the hook within a batch request.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Command is the executable to spawn.
	Command string `json:"command" yaml:"command" validate:"required"`

	// Args are passed to the command verbatim.
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`

	// Stage assigns the hook to a check phase.
	Stage Stage `json:"stage" yaml:"stage" validate:"required,oneof=fast comprehensive"`

	// Timeout bounds one execution attempt. Zero means DefaultTimeout.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// DependsOn lists hooks that must complete in earlier batches.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`

	// RetryPolicy selects the retry strategy for this hook.
	RetryPolicy RetryPolicy `json:"retry_policy,omitempty" yaml:"retry_policy,omitempty" validate:"omitempty,oneof=none formatting-only"`

	// Formatting marks hooks whose command rewrites files, making
	// them eligible for RetryFormattingOnly.
	Formatting bool `json:"formatting,omitempty" yaml:"formatting,omitempty"`
}

// EffectiveTimeout returns the per-attempt timeout for the hook.
func (d Definition) EffectiveTimeout() time.Duration {
	if d.Timeout <= 0 {
		return DefaultTimeout
	}
	return d.Timeout
}

// Status is the terminal state of one hook execution.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// Is compares statuses case-insensitively.
//
// Tool configurations and persisted results are not consistent about
// casing, so all status comparison goes through here.
func (s Status) Is(other Status) bool {
	return strings.EqualFold(string(s), string(other))
}

// Terminal reports whether the status represents a completed attempt
// (as opposed to skipped).
func (s Status) Terminal() bool {
	return !s.Is(StatusSkipped)
}

// Result records the outcome of one hook execution per iteration.
// Results are created once and never mutated.
type Result struct {
	// Name is the Definition.Name this result belongs to.
	Name string `json:"name"`

	// Status is the terminal state of the execution.
	Status Status `json:"status"`

	// RawOutput is combined stdout and stderr of the command.
	RawOutput string `json:"raw_output"`

	// Duration is wall-clock time of the final attempt.
	Duration time.Duration `json:"duration"`

	// Attempts counts executions including retries.
	Attempts int `json:"attempts"`

	// Err describes the failure for error/timeout statuses.
	Err string `json:"error,omitempty"`
}

// Passed reports whether the hook completed cleanly.
func (r Result) Passed() bool {
	return r.Status.Is(StatusPassed)
}
