// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package issue

import "sort"

// Dedup collapses issues that share the same identity key.
//
// Description:
//
//	Two issues from different tools that report the same
//	(file, line, normalized message) triple collapse to one. When
//	duplicates carry different metadata, the entry with more metadata
//	keys wins; on a tie the first-seen entry is kept so the result is
//	deterministic for a given input order.
//
// Inputs:
//
//	issues - The combined multi-tool issue set.
//
// Outputs:
//
//	[]Issue - Deduplicated issues, ordered by file then line for
//	stable reporting.
func Dedup(issues []Issue) []Issue {
	byKey := make(map[string]Issue, len(issues))
	order := make([]string, 0, len(issues))

	for _, is := range issues {
		key := is.Key()
		existing, seen := byKey[key]
		if !seen {
			byKey[key] = is
			order = append(order, key)
			continue
		}
		// Prefer the richer entry.
		if len(is.Metadata) > len(existing.Metadata) {
			byKey[key] = is
		}
	}

	result := make([]Issue, 0, len(order))
	for _, key := range order {
		result = append(result, byKey[key])
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].FilePath != result[j].FilePath {
			return result[i].FilePath < result[j].FilePath
		}
		return result[i].LineNumber < result[j].LineNumber
	})

	return result
}

// GroupByType partitions issues into per-type groups.
//
// Description:
//
//	Used by the coordinator to form independent work units. Order of
//	issues within a group follows the input order.
func GroupByType(issues []Issue) map[Type][]Issue {
	groups := make(map[Type][]Issue)
	for _, is := range issues {
		groups[is.Type] = append(groups[is.Type], is)
	}
	return groups
}

// CountByFile returns the number of issues per file path.
// Issues with no file path are counted under the empty key.
func CountByFile(issues []Issue) map[string]int {
	counts := make(map[string]int)
	for _, is := range issues {
		counts[is.FilePath]++
	}
	return counts
}
