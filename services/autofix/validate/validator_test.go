// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validate

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func checkOne(t *testing.T, path string, content string) *Report {
	t.Helper()
	report, err := NewContentValidator(0).Check(context.Background(), path, []byte(content))
	if err != nil {
		t.Fatalf("Check(%s): %v", path, err)
	}
	return report
}

func TestCheckValidGoPasses(t *testing.T) {
	report := checkOne(t, "main.go", `package main

import "fmt"

func main() {
	fmt.Println("hello")
}
`)
	if !report.Valid {
		t.Errorf("valid Go flagged: %+v", report.Findings)
	}
}

func TestCheckDetectsGoSyntaxError(t *testing.T) {
	report := checkOne(t, "broken.go", `package main

func main() {
	if x {
`)
	if report.Valid {
		t.Fatal("truncated Go should be flagged")
	}
	if report.Findings[0].Kind != FindingSyntax {
		t.Errorf("kind %s, want syntax", report.Findings[0].Kind)
	}
}

func TestCheckDetectsDuplicateFunction(t *testing.T) {
	report := checkOne(t, "dup.go", `package main

func helper() int { return 1 }

func helper() int { return 2 }
`)
	if report.Valid {
		t.Fatal("duplicate top-level function should be flagged")
	}
	f := report.Findings[0]
	if f.Kind != FindingDuplicateDefinition {
		t.Errorf("kind %s, want duplicate definition", f.Kind)
	}
	if f.Line != 5 {
		t.Errorf("line %d, want 5", f.Line)
	}
}

func TestCheckAllowsSameMethodOnDifferentReceivers(t *testing.T) {
	report := checkOne(t, "methods.go", `package shapes

type Circle struct{}

type Square struct{}

func (c Circle) Area() float64 { return 0 }

func (s Square) Area() float64 { return 0 }
`)
	if !report.Valid {
		t.Errorf("methods on distinct receivers flagged: %+v", report.Findings)
	}
}

func TestCheckDetectsDuplicatePythonDef(t *testing.T) {
	report := checkOne(t, "app.py", `def handler():
    return 1

def handler():
    return 2
`)
	if report.Valid {
		t.Fatal("duplicate Python def should be flagged")
	}
	if report.Findings[0].Kind != FindingDuplicateDefinition {
		t.Errorf("kind %s, want duplicate definition", report.Findings[0].Kind)
	}
}

func TestCheckDetectsPythonSyntaxError(t *testing.T) {
	report := checkOne(t, "bad.py", "def broken(:\n    pass\n")
	if report.Valid {
		t.Fatal("malformed Python should be flagged")
	}
}

func TestCheckUnknownExtensionPassesTrivially(t *testing.T) {
	report := checkOne(t, "notes.txt", "this is { not ( code ]")
	if !report.Valid {
		t.Errorf("unknown extension flagged: %+v", report.Findings)
	}
}

func TestCheckRejectsOversizeContent(t *testing.T) {
	v := NewContentValidator(10)
	report, err := v.Check(context.Background(), "big.go", bytes.Repeat([]byte("a"), 11))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if report.Valid {
		t.Fatal("oversize content should be flagged")
	}
	if report.Findings[0].Kind != FindingTooLarge {
		t.Errorf("kind %s, want too large", report.Findings[0].Kind)
	}
}

func TestCheckNilContext(t *testing.T) {
	//lint:ignore SA1012 the nil guard is the behavior under test
	if _, err := NewContentValidator(0).Check(nil, "a.go", nil); !errors.Is(err, ErrNilContext) {
		t.Errorf("got %v, want ErrNilContext", err)
	}
}
