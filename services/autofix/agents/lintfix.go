// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agents

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/mend/services/autofix/agent"
	"github.com/AleutianAI/mend/services/autofix/issue"
)

// fixer is one language's lint auto-fix tool.
type fixer struct {
	command string
	argsFor func(path string) []string
}

// fixers maps file extensions to their lint fixer.
var fixers = map[string]fixer{
	".go": {
		command: "goimports",
		argsFor: func(path string) []string { return []string{"-w", path} },
	},
	".py": {
		command: "ruff",
		argsFor: func(path string) []string {
			return []string{"check", "--fix", "--quiet", path}
		},
	},
	".js":  eslintFix,
	".jsx": eslintFix,
	".ts":  eslintFix,
	".tsx": eslintFix,
}

var eslintFix = fixer{
	command: "eslint",
	argsFor: func(path string) []string { return []string{"--fix", path} },
}

// LintFixAgent fixes lint and import issues using each language's
// auto-fix mode.
type LintFixAgent struct {
	workDir string
	logger  *slog.Logger
}

// NewLintFixAgent creates a lint-fix agent.
func NewLintFixAgent(workDir string, logger *slog.Logger) *LintFixAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &LintFixAgent{workDir: workDir, logger: logger}
}

// Name returns the agent name.
func (a *LintFixAgent) Name() string { return "lint-fix" }

// CanHandle reports moderate confidence for lint issues and higher
// for import ordering, which fixers handle very reliably.
func (a *LintFixAgent) CanHandle(ctx context.Context, is issue.Issue) float64 {
	f, ok := fixers[strings.ToLower(filepath.Ext(is.FilePath))]
	if !ok || !toolAvailable(f.command) {
		return 0
	}
	switch is.Type {
	case issue.TypeImport:
		return 0.85
	case issue.TypeLint:
		return 0.75
	default:
		return 0
	}
}

// Fix runs the fixer over a temp copy of each affected file.
//
// The fixer handles whatever rules it can; issues in files whose
// bytes did not change are reported remaining rather than claimed.
func (a *LintFixAgent) Fix(ctx context.Context, issues []issue.Issue) (*agent.FixResult, error) {
	if ctx == nil {
		return nil, agent.ErrNilContext
	}

	result := agent.NewFixResult()
	result.Success = true
	result.Confidence = 0.75

	paths, byFile := groupByFile(issues)
	for _, path := range paths {
		fileIssues := byFile[path]

		f, ok := fixers[strings.ToLower(filepath.Ext(path))]
		if !ok || !toolAvailable(f.command) {
			result.RemainingIssues = append(result.RemainingIssues,
				describe(fileIssues, "no fixer available")...)
			continue
		}

		original, err := os.ReadFile(a.resolve(path))
		if err != nil {
			result.Success = false
			result.RemainingIssues = append(result.RemainingIssues,
				describe(fileIssues, "unreadable: "+err.Error())...)
			continue
		}

		fixed, err := fixViaTemp(ctx, original, filepath.Ext(path), f.command, f.argsFor)
		if err != nil {
			result.Success = false
			result.RemainingIssues = append(result.RemainingIssues,
				describe(fileIssues, err.Error())...)
			continue
		}

		if bytes.Equal(original, fixed) {
			result.RemainingIssues = append(result.RemainingIssues,
				describe(fileIssues, "fixer made no changes")...)
			continue
		}

		result.Changes[path] = fixed
		result.FilesModified = append(result.FilesModified, path)
		for _, is := range fileIssues {
			result.FixesApplied = append(result.FixesApplied, is.String())
		}

		a.logger.Debug("lint fix proposed",
			slog.String("path", path),
			slog.String("tool", f.command),
			slog.Int("issues", len(fileIssues)),
		)
	}

	return result, nil
}

func (a *LintFixAgent) resolve(path string) string {
	if filepath.IsAbs(path) || a.workDir == "" {
		return path
	}
	return filepath.Join(a.workDir, path)
}
