// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package normalize turns heterogeneous check-command output into
// canonical issues.
//
// Each tool has a profile: an extractor for its output format and,
// where the tool reports one, an extractor for its self-reported
// issue count. A parsed set that disagrees with the self-reported
// count is treated as untrustworthy and discarded for the iteration
// with a warning. Aborting on mismatch was tried and stalled the
// repair loop completely, so the normalizer never raises: a tool's
// unparseable output degrades to zero issues from that tool.
package normalize

import (
	"log/slog"
	"strings"

	"github.com/AleutianAI/mend/services/autofix/hook"
	"github.com/AleutianAI/mend/services/autofix/issue"
)

// ToolProfile describes how to interpret one tool's output.
type ToolProfile struct {
	// Parse extracts candidate issues from raw output.
	Parse ParserFunc

	// Count extracts the tool's self-reported issue count, when the
	// output carries one. Nil when the tool reports no count.
	Count CountFunc

	// CountErrorsOnly restricts count validation to error-severity
	// issues, for tools whose summary line counts only errors.
	CountErrorsOnly bool

	// Structured indicates the tool emits machine-readable output.
	// Unstructured profiles skip the JSON sniff.
	Structured bool
}

// Normalizer parses raw hook output into canonical issues.
//
// Thread Safety: safe for concurrent use after construction.
// RegisterTool must not be called concurrently with Parse.
type Normalizer struct {
	profiles map[string]ToolProfile
	logger   *slog.Logger
}

// NewNormalizer creates a normalizer with the built-in tool profiles.
//
// Inputs:
//
//	logger - Logger for parse warnings. If nil, uses slog.Default().
//
// Outputs:
//
//	*Normalizer - Ready to parse golangci-lint, ruff, eslint, bandit,
//	mypy, and pytest output, plus a generic text fallback.
func NewNormalizer(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Normalizer{
		logger: logger,
		profiles: map[string]ToolProfile{
			"golangci-lint": {Parse: parseGolangCI, Structured: true},
			"ruff":          {Parse: parseRuff, Structured: true},
			"eslint":        {Parse: parseESLint, Count: countESLint, Structured: true},
			"bandit":        {Parse: parseBandit, Count: countBandit, Structured: true},
			"mypy":          {Parse: parseMypy, Count: countMypy, CountErrorsOnly: true},
			"pytest":        {Parse: parsePytest, Count: countPytest},
		},
	}
}

// RegisterTool adds or replaces a tool profile.
func (n *Normalizer) RegisterTool(name string, profile ToolProfile) {
	n.profiles[name] = profile
}

// Parse extracts issues from one tool's raw output.
//
// Description:
//
//	Dispatches to the tool's registered extractor, falling back to a
//	structure sniff and the generic text extractor for unknown tools.
//	Parse is deterministic and idempotent: identical input yields
//	identical issues. It never returns an error; output that cannot
//	be understood degrades to zero issues with a warning log.
//
// Inputs:
//
//	toolName - The tool that produced the output.
//	raw - The tool's combined stdout/stderr.
//
// Outputs:
//
//	[]issue.Issue - Candidate issues, tagged with the tool name.
func (n *Normalizer) Parse(toolName, raw string) []issue.Issue {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	profile, known := n.profiles[toolName]
	parse := profile.Parse
	if !known {
		if looksStructured(raw) {
			// Unknown structured output has no extractor we trust.
			n.logger.Warn("no parser registered for structured output",
				slog.String("tool", toolName))
			return nil
		}
		parse = parseGenericText
	}

	issues, err := parse(raw)
	if err != nil {
		n.logger.Warn("tool output unparseable, contributing zero issues",
			slog.String("tool", toolName),
			slog.String("error", err.Error()),
		)
		return nil
	}

	for i := range issues {
		issues[i].Tool = toolName
	}
	return issues
}

// IssueCount extracts a tool's self-reported issue count.
//
// Outputs:
//
//	int - The self-reported count.
//	bool - False when the tool reports no count or it is unreadable.
func (n *Normalizer) IssueCount(toolName, raw string) (int, bool) {
	profile, known := n.profiles[toolName]
	if !known || profile.Count == nil {
		return 0, false
	}
	return profile.Count(raw)
}

// Normalize converts a full scheduler run into a deduplicated issue set.
//
// Description:
//
//	Parses every non-passed hook result, validates each tool's parse
//	against its self-reported count, and merges across tools using
//	the (file, line, normalized message) identity. A tool whose parse
//	fails count validation is untrustworthy for this iteration: its
//	issues are discarded with a warning rather than aborting the
//	pipeline. Passed and skipped hooks contribute nothing.
//
// Inputs:
//
//	results - One entry per executed hook.
//	stage - Stage label stamped onto every issue.
//
// Outputs:
//
//	[]issue.Issue - Deduplicated issues ordered by file then line.
func (n *Normalizer) Normalize(results []hook.Result, stage string) []issue.Issue {
	var all []issue.Issue

	for _, r := range results {
		if r.Passed() || !r.Status.Terminal() {
			continue
		}

		parsed := n.Parse(r.Name, r.RawOutput)
		if len(parsed) == 0 {
			continue
		}

		if expected, ok := n.IssueCount(r.Name, r.RawOutput); ok {
			if expected != n.comparableCount(r.Name, parsed) {
				n.logger.Warn("discarding tool issues for this iteration",
					slog.String("tool", r.Name),
					slog.Int("parsed", len(parsed)),
					slog.Int("self_reported", expected),
					slog.String("reason", ErrCountMismatch.Error()),
				)
				continue
			}
		}

		for i := range parsed {
			parsed[i].Stage = stage
		}
		all = append(all, parsed...)
	}

	return issue.Dedup(all)
}

// comparableCount returns the number of parsed issues that the tool's
// self-reported count is expected to cover.
func (n *Normalizer) comparableCount(toolName string, parsed []issue.Issue) int {
	profile := n.profiles[toolName]
	if !profile.CountErrorsOnly {
		return len(parsed)
	}
	count := 0
	for _, is := range parsed {
		if is.Severity == issue.SeverityError {
			count++
		}
	}
	return count
}

// looksStructured sniffs whether output is machine-readable JSON.
func looksStructured(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}
