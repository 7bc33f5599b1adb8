// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hook

import "sort"

// BuildBatches topologically groups definitions into dependency batches.
//
// Description:
//
//	Produces batches such that every hook in batch N has all of its
//	dependencies in batches 0..N-1. Hooks within a batch have no
//	defined relative order and may run concurrently. Validates that
//	names are unique, all dependencies exist, and the graph is acyclic.
//
// Inputs:
//
//	defs - The hook definitions to group.
//
// Outputs:
//
//	[][]Definition - Dependency-ordered batches; hooks within each
//	batch are sorted by name for determinism.
//	error - ErrDuplicateHook, ErrUnknownDependency, or CycleError.
func BuildBatches(defs []Definition) ([][]Definition, error) {
	byName := make(map[string]Definition, len(defs))
	for _, d := range defs {
		if _, exists := byName[d.Name]; exists {
			return nil, NewHookError(d.Name, ErrDuplicateHook)
		}
		byName[d.Name] = d
	}

	for _, d := range defs {
		for _, dep := range d.DependsOn {
			if _, exists := byName[dep]; !exists {
				return nil, NewHookError(d.Name, ErrUnknownDependency)
			}
		}
	}

	if err := detectCycles(byName); err != nil {
		return nil, err
	}

	// Kahn's algorithm, layer by layer.
	indegree := make(map[string]int, len(defs))
	dependents := make(map[string][]string, len(defs))
	for _, d := range defs {
		indegree[d.Name] = len(d.DependsOn)
		for _, dep := range d.DependsOn {
			dependents[dep] = append(dependents[dep], d.Name)
		}
	}

	var batches [][]Definition
	remaining := len(defs)

	for remaining > 0 {
		var ready []string
		for name, deg := range indegree {
			if deg == 0 {
				ready = append(ready, name)
			}
		}
		sort.Strings(ready)

		batch := make([]Definition, 0, len(ready))
		for _, name := range ready {
			batch = append(batch, byName[name])
			delete(indegree, name)
			for _, dependent := range dependents[name] {
				if _, ok := indegree[dependent]; ok {
					indegree[dependent]--
				}
			}
		}

		batches = append(batches, batch)
		remaining -= len(batch)
	}

	return batches, nil
}

// detectCycles uses DFS to detect cycles in the dependency graph.
func detectCycles(byName map[string]Definition) error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make([]string, 0)

	var dfs func(name string) error
	dfs = func(name string) error {
		visited[name] = true
		recStack[name] = true
		path = append(path, name)

		for _, dep := range byName[name].DependsOn {
			if !visited[dep] {
				if err := dfs(dep); err != nil {
					return err
				}
			} else if recStack[dep] {
				cycleStart := -1
				for i, n := range path {
					if n == dep {
						cycleStart = i
						break
					}
				}
				return &CycleError{Path: append(path[cycleStart:], dep)}
			}
		}

		path = path[:len(path)-1]
		recStack[name] = false
		return nil
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !visited[name] {
			if err := dfs(name); err != nil {
				return err
			}
		}
	}

	return nil
}

// FilterStage returns the definitions assigned to the given stage.
func FilterStage(defs []Definition, stage Stage) []Definition {
	filtered := make([]Definition, 0, len(defs))
	for _, d := range defs {
		if d.Stage == stage {
			filtered = append(filtered, d)
		}
	}
	return filtered
}
