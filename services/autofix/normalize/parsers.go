// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package normalize

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/AleutianAI/mend/services/autofix/issue"
)

// ParserFunc extracts candidate issues from one tool's raw output.
type ParserFunc func(raw string) ([]issue.Issue, error)

// CountFunc extracts a tool's self-reported issue count, when the
// output carries one. The bool is false when no count is available.
type CountFunc func(raw string) (int, bool)

// =============================================================================
// GOLANGCI-LINT PARSER
// =============================================================================

type golangciOutput struct {
	Issues []golangciIssue `json:"Issues"`
}

type golangciIssue struct {
	FromLinter string           `json:"FromLinter"`
	Text       string           `json:"Text"`
	Severity   string           `json:"Severity"`
	Pos        golangciPosition `json:"Pos"`
}

type golangciPosition struct {
	Filename string `json:"Filename"`
	Line     int    `json:"Line"`
	Column   int    `json:"Column"`
}

// parseGolangCI parses golangci-lint --out-format=json output.
func parseGolangCI(raw string) ([]issue.Issue, error) {
	var output golangciOutput
	if err := json.Unmarshal([]byte(raw), &output); err != nil {
		return nil, ErrUnparseable
	}

	issues := make([]issue.Issue, 0, len(output.Issues))
	for _, gi := range output.Issues {
		severity := issue.SeverityWarning
		if strings.EqualFold(gi.Severity, "error") {
			severity = issue.SeverityError
		}
		issues = append(issues, issue.Issue{
			Type:       issue.TypeLint,
			Message:    gi.Text,
			FilePath:   gi.Pos.Filename,
			LineNumber: gi.Pos.Line,
			Severity:   severity,
			Metadata: map[string]any{
				"rule":   gi.FromLinter,
				"column": gi.Pos.Column,
			},
		})
	}

	return issues, nil
}

// =============================================================================
// RUFF PARSER
// =============================================================================

type ruffIssue struct {
	Code     string       `json:"code"`
	Filename string       `json:"filename"`
	Location ruffLocation `json:"location"`
	Message  string       `json:"message"`
	URL      string       `json:"url"`
}

type ruffLocation struct {
	Column int `json:"column"`
	Row    int `json:"row"`
}

// parseRuff parses ruff check --output-format=json output.
func parseRuff(raw string) ([]issue.Issue, error) {
	var ruffIssues []ruffIssue
	if err := json.Unmarshal([]byte(raw), &ruffIssues); err != nil {
		return nil, ErrUnparseable
	}

	issues := make([]issue.Issue, 0, len(ruffIssues))
	for _, ri := range ruffIssues {
		issues = append(issues, issue.Issue{
			Type:       ruffIssueType(ri.Code),
			Message:    ri.Message,
			FilePath:   ri.Filename,
			LineNumber: ri.Location.Row,
			Severity:   ruffSeverity(ri.Code),
			Metadata: map[string]any{
				"rule":   ri.Code,
				"column": ri.Location.Column,
				"url":    ri.URL,
			},
		})
	}

	return issues, nil
}

// ruffIssueType routes ruff rule categories to issue types.
func ruffIssueType(code string) issue.Type {
	switch {
	case strings.HasPrefix(code, "I"):
		return issue.TypeImport
	case strings.HasPrefix(code, "S"):
		return issue.TypeSecurity
	case strings.HasPrefix(code, "C9"):
		return issue.TypeComplexity
	case strings.HasPrefix(code, "D"):
		return issue.TypeDocumentation
	default:
		return issue.TypeLint
	}
}

// ruffSeverity maps ruff rule codes to severities.
func ruffSeverity(code string) issue.Severity {
	if code == "" {
		return issue.SeverityWarning
	}
	switch strings.ToUpper(code[:1]) {
	case "E", "F", "S":
		return issue.SeverityError
	case "I", "D":
		return issue.SeverityInfo
	default:
		return issue.SeverityWarning
	}
}

// =============================================================================
// ESLINT PARSER
// =============================================================================

type eslintFile struct {
	FilePath     string          `json:"filePath"`
	Messages     []eslintMessage `json:"messages"`
	ErrorCount   int             `json:"errorCount"`
	WarningCount int             `json:"warningCount"`
}

type eslintMessage struct {
	RuleID   string `json:"ruleId"`
	Severity int    `json:"severity"` // 1 = warning, 2 = error
	Message  string `json:"message"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
}

// parseESLint parses eslint --format=json output.
func parseESLint(raw string) ([]issue.Issue, error) {
	var output []eslintFile
	if err := json.Unmarshal([]byte(raw), &output); err != nil {
		return nil, ErrUnparseable
	}

	var issues []issue.Issue
	for _, file := range output {
		for _, msg := range file.Messages {
			severity := issue.SeverityWarning
			if msg.Severity == 2 {
				severity = issue.SeverityError
			}
			issues = append(issues, issue.Issue{
				Type:       issue.TypeLint,
				Message:    msg.Message,
				FilePath:   file.FilePath,
				LineNumber: msg.Line,
				Severity:   severity,
				Metadata: map[string]any{
					"rule":   msg.RuleID,
					"column": msg.Column,
				},
			})
		}
	}

	return issues, nil
}

// countESLint sums the per-file counts ESLint reports alongside its
// message arrays. This is the tool's own tally, independent of the
// messages we parsed, which makes it a genuine integrity check.
func countESLint(raw string) (int, bool) {
	var output []eslintFile
	if err := json.Unmarshal([]byte(raw), &output); err != nil {
		return 0, false
	}
	total := 0
	for _, file := range output {
		total += file.ErrorCount + file.WarningCount
	}
	return total, true
}

// =============================================================================
// BANDIT PARSER
// =============================================================================

type banditOutput struct {
	Results []banditResult           `json:"results"`
	Metrics map[string]banditMetrics `json:"metrics"`
}

type banditResult struct {
	Filename   string `json:"filename"`
	IssueText  string `json:"issue_text"`
	LineNumber int    `json:"line_number"`
	Severity   string `json:"issue_severity"`
	Confidence string `json:"issue_confidence"`
	TestID     string `json:"test_id"`
}

type banditMetrics struct {
	SeverityHigh   float64 `json:"SEVERITY.HIGH"`
	SeverityMedium float64 `json:"SEVERITY.MEDIUM"`
	SeverityLow    float64 `json:"SEVERITY.LOW"`
}

// parseBandit parses bandit -f json output.
func parseBandit(raw string) ([]issue.Issue, error) {
	var output banditOutput
	if err := json.Unmarshal([]byte(raw), &output); err != nil {
		return nil, ErrUnparseable
	}

	issues := make([]issue.Issue, 0, len(output.Results))
	for _, r := range output.Results {
		severity := issue.SeverityWarning
		if strings.EqualFold(r.Severity, "high") {
			severity = issue.SeverityError
		}
		issues = append(issues, issue.Issue{
			Type:       issue.TypeSecurity,
			Message:    r.IssueText,
			FilePath:   r.Filename,
			LineNumber: r.LineNumber,
			Severity:   severity,
			Metadata: map[string]any{
				"rule":       r.TestID,
				"confidence": r.Confidence,
			},
		})
	}

	return issues, nil
}

// countBandit totals the severity buckets in bandit's _totals metrics.
func countBandit(raw string) (int, bool) {
	var output banditOutput
	if err := json.Unmarshal([]byte(raw), &output); err != nil {
		return 0, false
	}
	totals, ok := output.Metrics["_totals"]
	if !ok {
		return 0, false
	}
	return int(totals.SeverityHigh + totals.SeverityMedium + totals.SeverityLow), true
}

// =============================================================================
// MYPY PARSER (text)
// =============================================================================

// mypyLine matches "path.py:12: error: message  [code]".
var mypyLine = regexp.MustCompile(`^(.+?):(\d+):(?:(\d+):)?\s*(error|warning|note):\s*(.+?)(?:\s+\[([\w-]+)\])?$`)

// mypySummary matches "Found 3 errors in 2 files (checked 10 source files)".
var mypySummary = regexp.MustCompile(`Found (\d+) errors? in \d+ files?`)

// parseMypy parses mypy's line-oriented text output.
func parseMypy(raw string) ([]issue.Issue, error) {
	var issues []issue.Issue
	for _, line := range strings.Split(raw, "\n") {
		m := mypyLine.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil || m[4] == "note" {
			continue
		}
		lineNum, _ := strconv.Atoi(m[2])
		severity := issue.SeverityError
		if m[4] == "warning" {
			severity = issue.SeverityWarning
		}
		meta := map[string]any{}
		if m[6] != "" {
			meta["rule"] = m[6]
		}
		issues = append(issues, issue.Issue{
			Type:       issue.TypeTypeCheck,
			Message:    m[5],
			FilePath:   m[1],
			LineNumber: lineNum,
			Severity:   severity,
			Metadata:   meta,
		})
	}
	return issues, nil
}

// countMypy extracts mypy's trailing summary count. The summary counts
// errors only, so it is compared against parsed errors, not warnings.
func countMypy(raw string) (int, bool) {
	m := mypySummary.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// =============================================================================
// PYTEST PARSER (text)
// =============================================================================

// pytestFailed matches "FAILED tests/test_x.py::test_name - AssertionError: ...".
var pytestFailed = regexp.MustCompile(`^FAILED\s+(\S+?)(?:::(\S+))?(?:\s+-\s+(.*))?$`)

// pytestSummary matches "= 3 failed, 2 passed in 1.2s =" style trailers.
var pytestSummary = regexp.MustCompile(`=+.*?(\d+) failed`)

// parsePytest parses pytest's short test summary lines.
func parsePytest(raw string) ([]issue.Issue, error) {
	var issues []issue.Issue
	for _, line := range strings.Split(raw, "\n") {
		m := pytestFailed.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		msg := m[3]
		if msg == "" {
			msg = "test failed: " + m[2]
		}
		issues = append(issues, issue.Issue{
			Type:     issue.TypeTestFailure,
			Message:  msg,
			FilePath: m[1],
			Severity: issue.SeverityError,
			Metadata: map[string]any{"test": m[2]},
		})
	}
	return issues, nil
}

// countPytest extracts the failed count from pytest's summary bar.
func countPytest(raw string) (int, bool) {
	m := pytestSummary.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// =============================================================================
// GENERIC TEXT PARSER
// =============================================================================

// genericLine matches the common "path:line: message" diagnostic shape.
var genericLine = regexp.MustCompile(`^(\S+?):(\d+)(?::\d+)?:\s*(.+)$`)

// parseGenericText extracts file:line: message diagnostics from
// free-text output. Used for tools with no registered profile.
func parseGenericText(raw string) ([]issue.Issue, error) {
	var issues []issue.Issue
	for _, line := range strings.Split(raw, "\n") {
		m := genericLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		lineNum, _ := strconv.Atoi(m[2])
		issues = append(issues, issue.Issue{
			Type:       issue.TypeUnknown,
			Message:    m[3],
			FilePath:   m[1],
			LineNumber: lineNum,
			Severity:   issue.SeverityWarning,
		})
	}
	return issues, nil
}
