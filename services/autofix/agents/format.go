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

// formatter is one language's formatting tool.
type formatter struct {
	command string
	argsFor func(path string) []string
}

// formatters maps file extensions to their formatting tool.
var formatters = map[string]formatter{
	".go": {
		command: "gofmt",
		argsFor: func(path string) []string { return []string{"-w", path} },
	},
	".py": {
		command: "ruff",
		argsFor: func(path string) []string { return []string{"format", "--quiet", path} },
	},
	".js":  prettier,
	".jsx": prettier,
	".ts":  prettier,
	".tsx": prettier,
}

var prettier = formatter{
	command: "prettier",
	argsFor: func(path string) []string { return []string{"--log-level", "silent", "--write", path} },
}

// FormatAgent fixes formatting issues by running the language's
// formatter over a temp copy of the file.
type FormatAgent struct {
	workDir string
	logger  *slog.Logger
}

// NewFormatAgent creates a format agent.
//
// Inputs:
//
//	workDir - Root for resolving relative issue paths.
//	logger - If nil, uses slog.Default().
func NewFormatAgent(workDir string, logger *slog.Logger) *FormatAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &FormatAgent{workDir: workDir, logger: logger}
}

// Name returns the agent name.
func (a *FormatAgent) Name() string { return "format" }

// CanHandle reports high confidence for formatting issues in
// languages whose formatter is installed, zero otherwise.
func (a *FormatAgent) CanHandle(ctx context.Context, is issue.Issue) float64 {
	if is.Type != issue.TypeFormatting {
		return 0
	}
	f, ok := formatters[strings.ToLower(filepath.Ext(is.FilePath))]
	if !ok || !toolAvailable(f.command) {
		return 0
	}
	return 0.95
}

// Fix formats each affected file and proposes the result.
func (a *FormatAgent) Fix(ctx context.Context, issues []issue.Issue) (*agent.FixResult, error) {
	if ctx == nil {
		return nil, agent.ErrNilContext
	}

	result := agent.NewFixResult()
	result.Success = true
	result.Confidence = 0.95

	paths, byFile := groupByFile(issues)
	for _, path := range paths {
		fileIssues := byFile[path]

		f, ok := formatters[strings.ToLower(filepath.Ext(path))]
		if !ok || !toolAvailable(f.command) {
			result.RemainingIssues = append(result.RemainingIssues,
				describe(fileIssues, "no formatter available")...)
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
			// Formatter saw nothing to change; the issues stand.
			result.RemainingIssues = append(result.RemainingIssues,
				describe(fileIssues, "formatter made no changes")...)
			continue
		}

		result.Changes[path] = fixed
		result.FilesModified = append(result.FilesModified, path)
		for _, is := range fileIssues {
			result.FixesApplied = append(result.FixesApplied, is.String())
		}

		a.logger.Debug("formatting fix proposed",
			slog.String("path", path),
			slog.String("tool", f.command),
		)
	}

	return result, nil
}

// resolve joins a relative issue path onto the work dir.
func (a *FormatAgent) resolve(path string) string {
	if filepath.IsAbs(path) || a.workDir == "" {
		return path
	}
	return filepath.Join(a.workDir, path)
}
