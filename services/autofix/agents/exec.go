// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agents provides the builtin fix agents. Each wraps an
// external tool and proposes new file content through the agent
// interface; none of them write to the project tree directly. The
// content to fix is copied into a temp file, the tool runs against
// the copy, and the copy is read back as the proposal.
package agents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/AleutianAI/mend/services/autofix/issue"
)

var (
	// ErrToolNotInstalled indicates the agent's tool is not on PATH.
	ErrToolNotInstalled = errors.New("tool not installed")

	// ErrToolFailed indicates the tool exited with a real failure.
	ErrToolFailed = errors.New("tool failed")
)

// defaultToolTimeout bounds one tool invocation on one file.
const defaultToolTimeout = 30 * time.Second

// toolAvailable reports whether the command is on PATH.
func toolAvailable(command string) bool {
	_, err := exec.LookPath(command)
	return err == nil
}

// runTool executes a tool and returns its stdout.
//
// A non-zero exit with output on stdout is not a failure: fixers
// commonly exit non-zero when they changed something or when issues
// remain.
func runTool(ctx context.Context, dir, command string, args ...string) ([]byte, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, defaultToolTimeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, command, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if cmdCtx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%w: %s timed out", ErrToolFailed, command)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil && stdout.Len() == 0 && stderr.Len() > 0 {
		return nil, fmt.Errorf("%w: %s: %s", ErrToolFailed, command, firstLine(stderr.String()))
	}

	return stdout.Bytes(), nil
}

// fixViaTemp writes content to a temp file, runs the tool against it
// in place, and reads the result back.
func fixViaTemp(ctx context.Context, content []byte, ext, command string, argsFor func(path string) []string) ([]byte, error) {
	tmpFile, err := os.CreateTemp("", "mend-fix-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.Write(content); err != nil {
		tmpFile.Close()
		return nil, fmt.Errorf("writing temp file: %w", err)
	}
	tmpFile.Close()

	if _, err := runTool(ctx, filepath.Dir(tmpPath), command, argsFor(tmpPath)...); err != nil {
		return nil, err
	}

	fixed, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("reading fixed file: %w", err)
	}
	return fixed, nil
}

// groupByFile buckets issues by file path, with deterministic order.
func groupByFile(issues []issue.Issue) ([]string, map[string][]issue.Issue) {
	byFile := make(map[string][]issue.Issue)
	for _, is := range issues {
		byFile[is.FilePath] = append(byFile[is.FilePath], is)
	}
	paths := make([]string, 0, len(byFile))
	for path := range byFile {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, byFile
}

// describe renders issues as remaining-issue strings.
func describe(issues []issue.Issue, reason string) []string {
	out := make([]string, 0, len(issues))
	for _, is := range issues {
		out = append(out, fmt.Sprintf("%s (%s)", is.String(), reason))
	}
	return out
}

// firstLine truncates multi-line tool stderr for error messages.
func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
