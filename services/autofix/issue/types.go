// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package issue defines the canonical issue model shared by the
// autofix pipeline.
//
// Every check command's output, whatever its native format, is
// normalized into []Issue. Issues are immutable within an iteration:
// once created by the normalizer they are only read, grouped, and
// fingerprinted. Identity for deduplication and caching purposes is
// the (file, line, normalized message) triple, see Fingerprint.
package issue

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// Type classifies an issue by the kind of fixer it needs.
type Type string

// Known issue types. Agents advertise which types they can handle;
// the coordinator groups issues by this value.
const (
	TypeFormatting    Type = "formatting"
	TypeLint          Type = "lint"
	TypeTypeCheck     Type = "type_check"
	TypeSecurity      Type = "security"
	TypeTestFailure   Type = "test_failure"
	TypeImport        Type = "import"
	TypeComplexity    Type = "complexity"
	TypeDocumentation Type = "documentation"
	TypeUnknown       Type = "unknown"
)

// Severity ranks how urgent an issue is.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Issue is one normalized problem reported by a check command.
//
// Description:
//
//	Issue is the canonical record produced by the normalizer and
//	consumed by the coordinator and controller. FilePath is relative
//	to the project root when the tool reported a relative path.
//	Metadata carries tool-specific extras (rule IDs, suggested
//	replacements, columns) that richer parsers provide.
//
// Thread Safety: treat as immutable after creation.
type Issue struct {
	// Type classifies the issue for agent routing.
	Type Type `json:"type"`

	// Message is the human-readable problem description.
	Message string `json:"message"`

	// FilePath is the affected file, empty if the tool reported none.
	FilePath string `json:"file_path,omitempty"`

	// LineNumber is 1-based, 0 if unknown.
	LineNumber int `json:"line_number,omitempty"`

	// Stage names the check stage that produced the issue
	// (e.g. "fast", "comprehensive").
	Stage string `json:"stage"`

	// Severity ranks the issue.
	Severity Severity `json:"severity"`

	// Tool is the check command that reported the issue.
	Tool string `json:"tool,omitempty"`

	// Metadata holds tool-specific extras (rule, column, replacement).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// whitespaceRun collapses runs of whitespace during normalization.
var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeMessage canonicalizes a message for identity comparison.
//
// Description:
//
//	Lowercases, trims, and collapses internal whitespace so that
//	cosmetic differences between tools reporting the same problem do
//	not defeat deduplication.
func NormalizeMessage(msg string) string {
	msg = strings.TrimSpace(strings.ToLower(msg))
	return whitespaceRun.ReplaceAllString(msg, " ")
}

// Key is the dedup identity key (file, line, normalized message).
func (i Issue) Key() string {
	return fmt.Sprintf("%s:%d:%s", i.FilePath, i.LineNumber, NormalizeMessage(i.Message))
}

// Fingerprint returns a stable hex digest of the identity key.
//
// Description:
//
//	Used by the decision cache to recognize "the same issue" across
//	iterations and runs. The digest is over the identity key only, so
//	metadata differences do not change the fingerprint.
func (i Issue) Fingerprint() string {
	sum := sha256.Sum256([]byte(i.Key()))
	return hex.EncodeToString(sum[:])
}

// String implements fmt.Stringer for logs and reports.
func (i Issue) String() string {
	if i.FilePath == "" {
		return fmt.Sprintf("[%s/%s] %s", i.Type, i.Severity, i.Message)
	}
	return fmt.Sprintf("[%s/%s] %s:%d: %s", i.Type, i.Severity, i.FilePath, i.LineNumber, i.Message)
}
