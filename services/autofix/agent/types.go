// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent routes issues to automated fixers and merges results.
//
// Agents are supplied as an explicit, ordered registry at construction
// time; there is no ambient registration. For each issue-type group
// the coordinator asks every agent for a confidence, selects the
// highest one at or above the threshold (registry order breaks ties),
// and runs independent groups in parallel. Agent failures, including
// panics, degrade to failed fragments and never abort other groups.
package agent

import (
	"context"

	"github.com/AleutianAI/mend/services/autofix/issue"
)

// DefaultMinConfidence is the selection threshold when the config
// does not set one.
const DefaultMinConfidence = 0.7

// Agent is one automated fixer.
//
// Implementations are registered by stable name and must be safe for
// concurrent use: the coordinator may run one agent on several issue
// groups at once across iterations.
type Agent interface {
	// Name returns the agent's stable identifier.
	Name() string

	// CanHandle reports the agent's confidence in [0, 1] that it can
	// correctly fix the issue. Zero means "cannot handle".
	CanHandle(ctx context.Context, is issue.Issue) float64

	// Fix attempts to repair the given issues, which all share one
	// issue type. The returned FixResult proposes file contents; the
	// agent itself never writes to the project tree.
	Fix(ctx context.Context, issues []issue.Issue) (*FixResult, error)
}

// FixResult is the outcome of one agent invocation, or the merge of
// several (see Coordinator.Handle).
type FixResult struct {
	// Success is true when every participating group either succeeded
	// or had no eligible agent.
	Success bool `json:"success"`

	// Confidence is the issue-count-weighted average confidence of
	// the participating fragments.
	Confidence float64 `json:"confidence"`

	// FixesApplied describes the repairs the agents performed.
	FixesApplied []string `json:"fixes_applied"`

	// RemainingIssues describes issues left unresolved.
	RemainingIssues []string `json:"remaining_issues"`

	// FilesModified lists files with proposed modifications.
	FilesModified []string `json:"files_modified"`

	// Changes carries the proposed new content per modified file.
	// The controller validates and writes these; agents never touch
	// the tree directly.
	Changes map[string][]byte `json:"-"`
}

// NewFixResult returns an empty result with allocated slices, so JSON
// encodes arrays rather than nulls.
func NewFixResult() *FixResult {
	return &FixResult{
		FixesApplied:    make([]string, 0),
		RemainingIssues: make([]string, 0),
		FilesModified:   make([]string, 0),
		Changes:         make(map[string][]byte),
	}
}
