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
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AleutianAI/mend/services/autofix/filelock"
	"github.com/AleutianAI/mend/services/autofix/validate"
)

func newTestApplier() *applier {
	return newApplier(filelock.NewManager(nil), validate.NewContentValidator(0), "", slog.Default())
}

func TestApplyOneWritesValidContent(t *testing.T) {
	target := filepath.Join(t.TempDir(), "x.go")
	if err := os.WriteFile(target, []byte("package old\n"), 0644); err != nil {
		t.Fatal(err)
	}

	a := newTestApplier()
	outcome := a.applyOne(context.Background(), target, []byte("package new\n"))
	if !outcome.Applied {
		t.Fatalf("not applied: %s", outcome.Reason)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "package new\n" {
		t.Errorf("content %q", got)
	}
}

func TestApplyOneSkipsUnchangedContent(t *testing.T) {
	target := filepath.Join(t.TempDir(), "x.go")
	content := []byte("package same\n")
	if err := os.WriteFile(target, content, 0644); err != nil {
		t.Fatal(err)
	}

	a := newTestApplier()
	outcome := a.applyOne(context.Background(), target, content)
	if outcome.Applied {
		t.Error("identical content should be skipped, not applied")
	}
	if !strings.Contains(outcome.Reason, "unchanged") {
		t.Errorf("reason %q", outcome.Reason)
	}
}

func TestApplyOneRejectsUnparseableContent(t *testing.T) {
	target := filepath.Join(t.TempDir(), "x.go")
	original := []byte("package main\n")
	if err := os.WriteFile(target, original, 0644); err != nil {
		t.Fatal(err)
	}

	a := newTestApplier()
	outcome := a.applyOne(context.Background(), target, []byte("package main\nfunc broken( {\n"))
	if outcome.Applied {
		t.Fatal("broken content must not be applied")
	}
	if !strings.Contains(outcome.Reason, "validation") {
		t.Errorf("reason %q", outcome.Reason)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(original) {
		t.Errorf("file changed: %q", got)
	}
}

func TestApplyOneCreatesNewFile(t *testing.T) {
	target := filepath.Join(t.TempDir(), "fresh.go")

	a := newTestApplier()
	outcome := a.applyOne(context.Background(), target, []byte("package fresh\n"))
	if !outcome.Applied {
		t.Fatalf("not applied: %s", outcome.Reason)
	}
	if _, err := os.Stat(target); err != nil {
		t.Errorf("new file missing: %v", err)
	}
}

func TestApplyOneResolvesRelativePathAgainstRoot(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "pkg", "app.py")
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(target, []byte("x = 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	a := newApplier(filelock.NewManager(nil), validate.NewContentValidator(0), root, slog.Default())
	outcome := a.applyOne(context.Background(), filepath.Join("pkg", "app.py"), []byte("x = 2\n"))
	if !outcome.Applied {
		t.Fatalf("not applied: %s", outcome.Reason)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "x = 2\n" {
		t.Errorf("file under root not updated, content %q", got)
	}
	if _, err := os.Stat(filepath.Join("pkg", "app.py")); !os.IsNotExist(err) {
		t.Error("relative path was written against the process working directory")
	}
}

func TestApplyOneRootLeavesAbsolutePathsAlone(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(t.TempDir(), "abs.go")
	if err := os.WriteFile(target, []byte("package old\n"), 0644); err != nil {
		t.Fatal(err)
	}

	a := newApplier(filelock.NewManager(nil), validate.NewContentValidator(0), root, slog.Default())
	outcome := a.applyOne(context.Background(), target, []byte("package new\n"))
	if !outcome.Applied {
		t.Fatalf("not applied: %s", outcome.Reason)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "package new\n" {
		t.Errorf("content %q", got)
	}
}

func TestApplyAllIsolatesPerFileFailures(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.go")
	bad := filepath.Join(dir, "bad.go")
	if err := os.WriteFile(good, []byte("package a\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("package b\n"), 0644); err != nil {
		t.Fatal(err)
	}

	a := newTestApplier()
	outcomes := a.applyAll(context.Background(), map[string][]byte{
		good: []byte("package a2\n"),
		bad:  []byte("package b\nfunc ( {\n"),
	})

	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(outcomes))
	}
	byPath := make(map[string]applyOutcome, len(outcomes))
	for _, o := range outcomes {
		byPath[o.Path] = o
	}
	if !byPath[good].Applied {
		t.Errorf("good file blocked by bad sibling: %s", byPath[good].Reason)
	}
	if byPath[bad].Applied {
		t.Error("bad file should have been rejected")
	}
}
