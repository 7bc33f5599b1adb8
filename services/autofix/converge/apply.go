// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package converge

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/AleutianAI/mend/services/autofix/filelock"
	"github.com/AleutianAI/mend/services/autofix/validate"
)

// applyOutcome describes one file's fate during apply.
type applyOutcome struct {
	Path       string
	Applied    bool
	RolledBack bool
	Reason     string
}

// applier writes proposed content to the tree safely.
//
// Each file goes through the same sequence: acquire the lease,
// snapshot the current bytes, validate the proposed content, write,
// re-validate what landed on disk, and roll back to the snapshot if
// either validation rejects it.
type applier struct {
	locks     *filelock.Manager
	validator *validate.ContentValidator
	root      string
	logger    *slog.Logger
}

func newApplier(locks *filelock.Manager, validator *validate.ContentValidator, root string, logger *slog.Logger) *applier {
	return &applier{locks: locks, validator: validator, root: root, logger: logger}
}

// resolve joins a relative proposed-change path onto the project root.
// Agents report paths the way the tools do, relative to the tree being
// fixed, which is not necessarily the process working directory.
func (a *applier) resolve(path string) string {
	if a.root == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(a.root, path)
}

// applyAll applies every proposed change, in sorted path order for
// deterministic lock acquisition. Failures are per-file: one bad
// change never blocks the rest.
func (a *applier) applyAll(ctx context.Context, changes map[string][]byte) []applyOutcome {
	paths := make([]string, 0, len(changes))
	for path := range changes {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	outcomes := make([]applyOutcome, 0, len(paths))
	for _, path := range paths {
		outcomes = append(outcomes, a.applyOne(ctx, path, changes[path]))
	}
	return outcomes
}

// applyOne applies a single file's proposed content.
func (a *applier) applyOne(ctx context.Context, path string, content []byte) applyOutcome {
	outcome := applyOutcome{Path: path}
	target := a.resolve(path)

	lease, err := a.locks.Acquire(ctx, target)
	if err != nil {
		outcome.Reason = fmt.Sprintf("acquiring lock: %v", err)
		return outcome
	}
	defer lease.Release()

	snapshot, mode, existed, err := a.snapshot(target)
	if err != nil {
		outcome.Reason = fmt.Sprintf("reading original: %v", err)
		return outcome
	}

	if bytes.Equal(snapshot, content) {
		outcome.Reason = "content unchanged"
		return outcome
	}

	report, err := a.validator.Check(ctx, target, content)
	if err != nil {
		outcome.Reason = fmt.Sprintf("pre-apply validation: %v", err)
		return outcome
	}
	if !report.Valid {
		outcome.Reason = "pre-apply validation rejected content: " + describeFindings(report)
		return outcome
	}

	if err := os.WriteFile(target, content, mode); err != nil {
		outcome.Reason = fmt.Sprintf("writing: %v", err)
		a.rollback(target, snapshot, mode, existed, &outcome)
		return outcome
	}

	written, err := os.ReadFile(target)
	if err != nil {
		outcome.Reason = fmt.Sprintf("re-reading after write: %v", err)
		a.rollback(target, snapshot, mode, existed, &outcome)
		return outcome
	}

	postReport, err := a.validator.Check(ctx, target, written)
	if err != nil || !postReport.Valid {
		if err != nil {
			outcome.Reason = fmt.Sprintf("post-apply validation: %v", err)
		} else {
			outcome.Reason = "post-apply validation rejected content: " + describeFindings(postReport)
		}
		a.rollback(target, snapshot, mode, existed, &outcome)
		return outcome
	}

	outcome.Applied = true
	return outcome
}

// snapshot captures a file's current bytes and mode.
func (a *applier) snapshot(path string) (content []byte, mode fs.FileMode, existed bool, err error) {
	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return nil, 0644, false, nil
	case err != nil:
		return nil, 0, false, err
	}

	content, err = os.ReadFile(path)
	if err != nil {
		return nil, 0, false, err
	}
	return content, info.Mode().Perm(), true, nil
}

// rollback restores the snapshot exactly. A file that did not exist
// before the write is removed again.
func (a *applier) rollback(path string, snapshot []byte, mode fs.FileMode, existed bool, outcome *applyOutcome) {
	var err error
	if existed {
		err = os.WriteFile(path, snapshot, mode)
	} else {
		err = os.Remove(path)
	}

	if err != nil {
		a.logger.Error("rollback failed, file may be inconsistent",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return
	}
	outcome.RolledBack = true
}

// describeFindings renders a rejection reason from the first finding.
func describeFindings(report *validate.Report) string {
	if len(report.Findings) == 0 {
		return "no findings recorded"
	}
	f := report.Findings[0]
	if f.Line > 0 {
		return fmt.Sprintf("%s at line %d: %s", f.Kind, f.Line, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}
