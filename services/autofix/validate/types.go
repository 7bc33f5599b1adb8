// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validate checks proposed file content before and after it is
// written to the tree. The pre-apply check rejects content that does
// not parse; the post-apply check additionally looks for structural
// corruption such as duplicated top-level definitions, which a bad
// merge of two fixes typically produces.
package validate

import "errors"

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrNilContext indicates a nil context was passed.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrInvalidInput indicates invalid input parameters.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPatchApply indicates a unified diff could not be applied.
	ErrPatchApply = errors.New("patch could not be applied")
)

// =============================================================================
// Findings
// =============================================================================

// FindingKind classifies a validation finding.
type FindingKind string

const (
	// FindingSyntax is a parse error in the proposed content.
	FindingSyntax FindingKind = "syntax"

	// FindingDuplicateDefinition is a top-level name defined twice.
	FindingDuplicateDefinition FindingKind = "duplicate_definition"

	// FindingTooLarge is content exceeding the configured size limit.
	FindingTooLarge FindingKind = "too_large"
)

// Finding is one problem detected in proposed content.
type Finding struct {
	Kind    FindingKind `json:"kind"`
	File    string      `json:"file"`
	Line    int         `json:"line,omitempty"`
	Message string      `json:"message"`
}

// Report is the outcome of validating one file's proposed content.
type Report struct {
	Valid    bool      `json:"valid"`
	Findings []Finding `json:"findings"`
}

// add records a finding and marks the report invalid.
func (r *Report) add(f Finding) {
	r.Valid = false
	r.Findings = append(r.Findings, f)
}
