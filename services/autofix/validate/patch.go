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
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// ParsePatch parses a multi-file unified diff.
//
// Outputs:
//
//	map[string]*diff.FileDiff - File diffs keyed by target path with
//	any a/ or b/ git prefix stripped.
//	error - Non-nil if the diff format is invalid.
func ParsePatch(patch string) (map[string]*diff.FileDiff, error) {
	fileDiffs, err := diff.NewMultiFileDiffReader(strings.NewReader(patch)).ReadAllFiles()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPatchApply, err)
	}

	out := make(map[string]*diff.FileDiff, len(fileDiffs))
	for _, fd := range fileDiffs {
		out[PatchTarget(fd)] = fd
	}
	return out, nil
}

// PatchTarget returns the path a file diff writes to.
func PatchTarget(fd *diff.FileDiff) string {
	path := fd.NewName
	if path == "" || path == "/dev/null" {
		path = fd.OrigName
	}
	path = strings.TrimPrefix(path, "a/")
	path = strings.TrimPrefix(path, "b/")
	return path
}

// ApplyFileDiff applies one file diff to the original content.
//
// Description:
//
//	Produces the post-patch content without touching the filesystem.
//	A deletion returns nil content. A hunk whose context lines do not
//	match the original is rejected rather than applied loosely.
//
// Outputs:
//
//	[]byte - The new content; nil for a deletion.
//	error - Non-nil (wrapping ErrPatchApply) if a hunk does not fit.
func ApplyFileDiff(original []byte, fd *diff.FileDiff) ([]byte, error) {
	if fd.NewName == "/dev/null" {
		return nil, nil
	}

	if fd.OrigName == "/dev/null" || len(original) == 0 {
		var lines []string
		for _, hunk := range fd.Hunks {
			for _, line := range hunkLines(hunk) {
				if added, ok := strings.CutPrefix(line, "+"); ok {
					lines = append(lines, added)
				}
			}
		}
		return []byte(strings.Join(lines, "\n") + "\n"), nil
	}

	origLines := strings.Split(string(original), "\n")
	newLines := make([]string, 0, len(origLines))

	origIdx := 0
	for _, hunk := range fd.Hunks {
		hunkStart := int(hunk.OrigStartLine) - 1
		if hunkStart < origIdx || hunkStart > len(origLines) {
			return nil, fmt.Errorf("%w: hunk at line %d out of range", ErrPatchApply, hunk.OrigStartLine)
		}

		for origIdx < hunkStart {
			newLines = append(newLines, origLines[origIdx])
			origIdx++
		}

		for _, line := range hunkLines(hunk) {
			switch {
			case strings.HasPrefix(line, "+"):
				newLines = append(newLines, line[1:])
			case strings.HasPrefix(line, "-"):
				if origIdx >= len(origLines) || origLines[origIdx] != line[1:] {
					return nil, fmt.Errorf("%w: removed line %d does not match original", ErrPatchApply, origIdx+1)
				}
				origIdx++
			default:
				// Context line; a bare "" can appear for a trailing
				// hunk newline and is tolerated.
				want := strings.TrimPrefix(line, " ")
				if origIdx < len(origLines) {
					if line != "" && origLines[origIdx] != want {
						return nil, fmt.Errorf("%w: context mismatch at line %d", ErrPatchApply, origIdx+1)
					}
					newLines = append(newLines, origLines[origIdx])
					origIdx++
				}
			}
		}
	}

	for origIdx < len(origLines) {
		newLines = append(newLines, origLines[origIdx])
		origIdx++
	}

	return []byte(strings.Join(newLines, "\n")), nil
}

// hunkLines splits a hunk body, dropping the trailing empty element a
// newline-terminated body produces.
func hunkLines(hunk *diff.Hunk) []string {
	lines := strings.Split(string(hunk.Body), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
