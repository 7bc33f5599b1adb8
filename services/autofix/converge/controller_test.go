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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/AleutianAI/mend/services/autofix/agent"
	"github.com/AleutianAI/mend/services/autofix/filelock"
	"github.com/AleutianAI/mend/services/autofix/issue"
)

// scriptedCollector replays a fixed sequence of issue counts, holding
// the last count once the script runs out.
type scriptedCollector struct {
	counts []int
	calls  int
}

func (s *scriptedCollector) Collect(context.Context) ([]issue.Issue, error) {
	idx := s.calls
	s.calls++
	if idx >= len(s.counts) {
		idx = len(s.counts) - 1
	}
	return makeIssues(s.counts[idx]), nil
}

func makeIssues(n int) []issue.Issue {
	issues := make([]issue.Issue, 0, n)
	for i := 0; i < n; i++ {
		issues = append(issues, issue.Issue{
			Type:       issue.TypeLint,
			FilePath:   "src/app.py",
			LineNumber: i + 1,
			Message:    fmt.Sprintf("finding %d", i+1),
			Severity:   issue.SeverityWarning,
		})
	}
	return issues
}

// fakeFixer counts dispatches and optionally proposes file changes.
type fakeFixer struct {
	calls   int
	changes map[string][]byte
}

func (f *fakeFixer) Handle(context.Context, []issue.Issue) (*agent.FixResult, error) {
	f.calls++
	r := agent.NewFixResult()
	r.Success = true
	for path, content := range f.changes {
		r.FilesModified = append(r.FilesModified, path)
		r.Changes[path] = content
	}
	return r, nil
}

func newTestController(t *testing.T, collector Collector, fixer Fixer, cfg Config) *Controller {
	t.Helper()
	c, err := NewController(collector, fixer, filelock.NewManager(nil), nil, cfg, nil)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return c
}

func TestRunSucceedsOnCleanTree(t *testing.T) {
	fixer := &fakeFixer{}
	c := newTestController(t, &scriptedCollector{counts: []int{0}}, fixer, Config{})

	report := c.Run(context.Background())
	if !report.Success || report.Status != StatusSuccess {
		t.Fatalf("status %s, want success", report.Status)
	}
	if report.Iterations != 1 {
		t.Errorf("iterations %d, want 1", report.Iterations)
	}
	if fixer.calls != 0 {
		t.Errorf("fixer ran %d times on a clean tree", fixer.calls)
	}
	if len(report.Unresolved) != 0 {
		t.Errorf("unresolved %v, want none", report.Unresolved)
	}
}

func TestRunStopsAfterStalledIterations(t *testing.T) {
	fixer := &fakeFixer{}
	c := newTestController(t, &scriptedCollector{counts: []int{14, 14, 14}}, fixer,
		Config{MaxIterations: 10, NoProgressLimit: 3})

	report := c.Run(context.Background())
	if report.Status != StatusNoProgress {
		t.Fatalf("status %s, want no_progress", report.Status)
	}
	if report.Iterations != 3 {
		t.Errorf("iterations %d, want 3", report.Iterations)
	}
	if !reflect.DeepEqual(report.History, []int{14, 14, 14}) {
		t.Errorf("history %v, want [14 14 14]", report.History)
	}
	// The terminating iteration observes the stall and must not
	// dispatch another fix attempt.
	if fixer.calls != 2 {
		t.Errorf("fixer ran %d times, want 2", fixer.calls)
	}
	if report.FinalIssueCount != 14 {
		t.Errorf("final count %d, want 14", report.FinalIssueCount)
	}
	if len(report.Unresolved) != 14 {
		t.Errorf("unresolved %d issues, want 14", len(report.Unresolved))
	}
}

func TestRunConvergesOnMonotonicDecrease(t *testing.T) {
	counts := []int{127, 84, 52, 31, 18, 12, 0}
	c := newTestController(t, &scriptedCollector{counts: counts}, &fakeFixer{},
		Config{MaxIterations: 10, NoProgressLimit: 3})

	report := c.Run(context.Background())
	if report.Status != StatusSuccess {
		t.Fatalf("status %s, want success", report.Status)
	}
	if report.Iterations != 7 {
		t.Errorf("iterations %d, want 7", report.Iterations)
	}
	if !reflect.DeepEqual(report.History, counts) {
		t.Errorf("history %v, want %v", report.History, counts)
	}
}

func TestRunSlowProgressSurvivesEqualCounts(t *testing.T) {
	// Two stalled iterations, then a decrease: the stall counter must
	// reset and the run continue to success.
	counts := []int{10, 10, 8, 0}
	c := newTestController(t, &scriptedCollector{counts: counts}, &fakeFixer{},
		Config{MaxIterations: 10, NoProgressLimit: 3})

	report := c.Run(context.Background())
	if report.Status != StatusSuccess {
		t.Fatalf("status %s, want success", report.Status)
	}
	if report.Iterations != 4 {
		t.Errorf("iterations %d, want 4", report.Iterations)
	}
}

func TestRunHitsIterationBudget(t *testing.T) {
	counts := []int{10, 9, 8, 7, 6}
	c := newTestController(t, &scriptedCollector{counts: counts}, &fakeFixer{},
		Config{MaxIterations: 5, NoProgressLimit: 3})

	report := c.Run(context.Background())
	if report.Status != StatusMaxIterations {
		t.Fatalf("status %s, want max_iterations", report.Status)
	}
	if report.Iterations != 5 {
		t.Errorf("iterations %d, want 5", report.Iterations)
	}
	if report.Success {
		t.Error("iteration budget is not success")
	}
	if report.FinalIssueCount != 6 {
		t.Errorf("final count %d, want 6", report.FinalIssueCount)
	}
}

func TestRunNeverReturnsErrorOnCollectorFailure(t *testing.T) {
	failing := CollectorFunc(func(context.Context) ([]issue.Issue, error) {
		return nil, errors.New("hooks unavailable")
	})
	c := newTestController(t, failing, &fakeFixer{},
		Config{MaxIterations: 10, NoProgressLimit: 3})

	report := c.Run(context.Background())
	if report == nil {
		t.Fatal("Run must always return a report")
	}
	if report.Status != StatusNoProgress {
		t.Errorf("status %s, want no_progress", report.Status)
	}
	if !report.Status.Terminal() {
		t.Error("report must be terminal")
	}
}

func TestRunAppliesProposedFix(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "app.py")
	original := "def greet():\n    print('helo')\n"
	fixed := "def greet():\n    print('hello')\n"
	if err := os.WriteFile(target, []byte(original), 0644); err != nil {
		t.Fatal(err)
	}

	// Issues exist until the file carries the fixed content.
	collector := CollectorFunc(func(context.Context) ([]issue.Issue, error) {
		current, err := os.ReadFile(target)
		if err != nil {
			return nil, err
		}
		if string(current) == fixed {
			return nil, nil
		}
		return makeIssues(1), nil
	})
	fixer := &fakeFixer{changes: map[string][]byte{target: []byte(fixed)}}

	c := newTestController(t, collector, fixer,
		Config{MaxIterations: 5, NoProgressLimit: 3})

	report := c.Run(context.Background())
	if report.Status != StatusSuccess {
		t.Fatalf("status %s, want success", report.Status)
	}
	if report.Iterations != 2 {
		t.Errorf("iterations %d, want 2", report.Iterations)
	}

	current, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(current) != fixed {
		t.Errorf("file content %q, want fixed content", current)
	}
}

func TestRunResolvesChangePathsAgainstRoot(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "app.py")
	if err := os.WriteFile(target, []byte("x = 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	// The fixer reports the path the way tools do, relative to the
	// project root, which is not the process working directory here.
	collector := CollectorFunc(func(context.Context) ([]issue.Issue, error) {
		current, err := os.ReadFile(target)
		if err != nil {
			return nil, err
		}
		if string(current) == "x = 2\n" {
			return nil, nil
		}
		return makeIssues(1), nil
	})
	fixer := &fakeFixer{changes: map[string][]byte{"app.py": []byte("x = 2\n")}}

	c := newTestController(t, collector, fixer,
		Config{MaxIterations: 5, NoProgressLimit: 3, Root: root})

	report := c.Run(context.Background())
	if report.Status != StatusSuccess {
		t.Fatalf("status %s, want success", report.Status)
	}

	current, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(current) != "x = 2\n" {
		t.Errorf("project file content %q, want fixed content", current)
	}
	if _, err := os.Stat("app.py"); !os.IsNotExist(err) {
		t.Error("fix was written relative to the process working directory")
	}
}

func TestRunCollectFailureLogsWithoutCount(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	failing := CollectorFunc(func(context.Context) ([]issue.Issue, error) {
		return nil, errors.New("hooks unavailable")
	})
	c, err := NewController(failing, &fakeFixer{}, filelock.NewManager(nil), nil,
		Config{MaxIterations: 10, NoProgressLimit: 2}, logger)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	c.Run(context.Background())

	if strings.Contains(buf.String(), `"issue_count":-1`) {
		t.Error("collect failure logged a sentinel issue count")
	}
	if !strings.Contains(buf.String(), "hooks unavailable") {
		t.Error("collect failure not noted in the iteration log")
	}
}

func TestRunRejectedFixLeavesFileIdentical(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "main.go")
	original := []byte("package main\n\nfunc main() {}\n")
	if err := os.WriteFile(target, original, 0644); err != nil {
		t.Fatal(err)
	}

	// The proposed content does not parse; validation must refuse it
	// and the tree must stay untouched while the run stalls out.
	broken := []byte("package main\n\nfunc main() {\n")
	fixer := &fakeFixer{changes: map[string][]byte{target: broken}}
	c := newTestController(t, &scriptedCollector{counts: []int{1}}, fixer,
		Config{MaxIterations: 10, NoProgressLimit: 2})

	report := c.Run(context.Background())
	if report.Status != StatusNoProgress {
		t.Fatalf("status %s, want no_progress", report.Status)
	}

	current, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(current) != string(original) {
		t.Errorf("file changed despite rejected fix:\ngot  %q\nwant %q", current, original)
	}
}

func TestNewControllerValidatesDependencies(t *testing.T) {
	collector := &scriptedCollector{counts: []int{0}}
	fixer := &fakeFixer{}
	locks := filelock.NewManager(nil)

	if _, err := NewController(nil, fixer, locks, nil, Config{}, nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("nil collector: got %v", err)
	}
	if _, err := NewController(collector, nil, locks, nil, Config{}, nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("nil fixer: got %v", err)
	}
	if _, err := NewController(collector, fixer, nil, nil, Config{}, nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("nil lock manager: got %v", err)
	}
}

func TestRunTerminatesOnCanceledContext(t *testing.T) {
	c := newTestController(t, &scriptedCollector{counts: []int{5}}, &fakeFixer{},
		Config{MaxIterations: 10, NoProgressLimit: 5})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := c.Run(ctx)
	if !report.Status.Terminal() {
		t.Errorf("status %s is not terminal", report.Status)
	}
}
