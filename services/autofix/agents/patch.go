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
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/AleutianAI/mend/services/autofix/agent"
	"github.com/AleutianAI/mend/services/autofix/issue"
	"github.com/AleutianAI/mend/services/autofix/validate"
)

// PatchAgent wraps a tool that emits a unified diff on stdout instead
// of rewriting files, such as `ruff check --diff` or a security
// fixer's suggest mode. The diff is applied in memory and the
// resulting content proposed; the tool never touches the tree.
type PatchAgent struct {
	name       string
	command    string
	args       []string
	handles    map[issue.Type]float64
	workDir    string
	logger     *slog.Logger
	confidence float64
}

// NewPatchAgent creates a diff-applying agent.
//
// Inputs:
//
//	name - Agent name for the registry and the decision cache.
//	command - The tool to run. The target file path is appended to args.
//	args - Arguments placing the tool in diff-output mode.
//	handles - Confidence per issue type this agent accepts.
//	workDir - Root for resolving relative issue paths.
//	logger - If nil, uses slog.Default().
//
// Outputs:
//
//	*PatchAgent - The configured agent.
//	error - Non-nil if name, command, or handles is empty.
func NewPatchAgent(
	name, command string,
	args []string,
	handles map[issue.Type]float64,
	workDir string,
	logger *slog.Logger,
) (*PatchAgent, error) {
	if name == "" || command == "" || len(handles) == 0 {
		return nil, agent.ErrInvalidInput
	}
	if logger == nil {
		logger = slog.Default()
	}

	maxConf := 0.0
	for _, conf := range handles {
		if conf > maxConf {
			maxConf = conf
		}
	}

	return &PatchAgent{
		name:       name,
		command:    command,
		args:       args,
		handles:    handles,
		workDir:    workDir,
		logger:     logger,
		confidence: maxConf,
	}, nil
}

// Name returns the agent name.
func (a *PatchAgent) Name() string { return a.name }

// CanHandle returns the configured confidence for the issue's type,
// or zero when the tool is missing.
func (a *PatchAgent) CanHandle(ctx context.Context, is issue.Issue) float64 {
	if !toolAvailable(a.command) {
		return 0
	}
	return a.handles[is.Type]
}

// Fix asks the tool for a diff per affected file and applies it in
// memory.
func (a *PatchAgent) Fix(ctx context.Context, issues []issue.Issue) (*agent.FixResult, error) {
	if ctx == nil {
		return nil, agent.ErrNilContext
	}

	result := agent.NewFixResult()
	result.Success = true
	result.Confidence = a.confidence

	paths, byFile := groupByFile(issues)
	for _, path := range paths {
		fileIssues := byFile[path]

		absPath := path
		if !filepath.IsAbs(path) && a.workDir != "" {
			absPath = filepath.Join(a.workDir, path)
		}

		out, err := runTool(ctx, a.workDir, a.command, append(append([]string{}, a.args...), absPath)...)
		if err != nil {
			result.Success = false
			result.RemainingIssues = append(result.RemainingIssues,
				describe(fileIssues, err.Error())...)
			continue
		}
		if len(out) == 0 {
			result.RemainingIssues = append(result.RemainingIssues,
				describe(fileIssues, "tool produced no diff")...)
			continue
		}

		content, err := a.applyDiff(absPath, string(out))
		if err != nil {
			result.Success = false
			result.RemainingIssues = append(result.RemainingIssues,
				describe(fileIssues, err.Error())...)
			continue
		}

		result.Changes[path] = content
		result.FilesModified = append(result.FilesModified, path)
		for _, is := range fileIssues {
			result.FixesApplied = append(result.FixesApplied, is.String())
		}

		a.logger.Debug("diff fix proposed",
			slog.String("agent", a.name),
			slog.String("path", path),
		)
	}

	return result, nil
}

// applyDiff parses the tool's output and applies the hunk set for the
// target file to its current content.
func (a *PatchAgent) applyDiff(absPath, patch string) ([]byte, error) {
	fileDiffs, err := validate.ParsePatch(patch)
	if err != nil {
		return nil, err
	}

	// Tools name the target differently (absolute, relative, temp
	// names); with a single-file diff just take the only entry.
	var target string
	for path := range fileDiffs {
		target = path
		break
	}
	if len(fileDiffs) != 1 {
		if fd, ok := fileDiffs[absPath]; ok {
			return applyTo(absPath, fd)
		}
		return nil, validate.ErrPatchApply
	}
	return applyTo(absPath, fileDiffs[target])
}

// applyTo reads the file's current bytes and applies the diff.
func applyTo(absPath string, fd *diff.FileDiff) ([]byte, error) {
	original, err := os.ReadFile(absPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return validate.ApplyFileDiff(original, fd)
}
