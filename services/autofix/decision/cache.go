// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package decision memoizes (agent, issue-fingerprint) outcomes so the
// coordinator avoids re-evaluating the same issue across iterations
// and runs.
//
// The cache is an explicit object with a defined lifetime, owned by
// the convergence controller's caller and passed in by constructor.
// Persistence is an explicit Save/Load pair, never an ambient side
// effect.
package decision

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Outcome classifies a cached decision.
type Outcome string

const (
	// OutcomeFixed records a successfully applied fix.
	OutcomeFixed Outcome = "fixed"

	// OutcomeFailed records a fix attempt that did not apply.
	OutcomeFailed Outcome = "failed"

	// OutcomeDeclined records an agent reporting it cannot handle
	// the issue (confidence below threshold).
	OutcomeDeclined Outcome = "declined"
)

// AgentDecision is one cache entry.
type AgentDecision struct {
	// AgentName identifies the agent that produced the decision.
	AgentName string `json:"agent_name"`

	// Fingerprint is the issue identity digest (issue.Fingerprint).
	Fingerprint string `json:"issue_fingerprint"`

	// Confidence is the agent's self-reported confidence at decision time.
	Confidence float64 `json:"confidence"`

	// Outcome classifies what happened.
	Outcome Outcome `json:"outcome"`

	// FilePath is the file the issue belonged to; drives invalidation.
	FilePath string `json:"file_path,omitempty"`

	// Timestamp records when the decision was made.
	Timestamp time.Time `json:"timestamp"`
}

// Cache memoizes agent decisions keyed by (agent, fingerprint).
//
// Description:
//
//	Reads may be concurrent; writes are serialized, because multiple
//	issue-type groups touch the cache in parallel during a coordinator
//	pass. A singleflight group additionally collapses concurrent
//	evaluations of the same key so an expensive can-handle check runs
//	once even when two groups race to it.
//
// Thread Safety: safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]AgentDecision

	// byFile indexes cache keys by file path for invalidation.
	byFile map[string]map[string]struct{}

	flight singleflight.Group
	logger *slog.Logger
}

// NewCache creates an empty decision cache.
func NewCache(logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		entries: make(map[string]AgentDecision),
		byFile:  make(map[string]map[string]struct{}),
		logger:  logger,
	}
}

// key builds the composite map key.
func key(agentName, fingerprint string) string {
	return agentName + "\x00" + fingerprint
}

// Get returns the cached decision for (agent, fingerprint), if any.
func (c *Cache) Get(agentName, fingerprint string) (AgentDecision, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.entries[key(agentName, fingerprint)]
	return d, ok
}

// Put stores a decision, replacing any previous entry for its key.
func (c *Cache) Put(d AgentDecision) {
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	k := key(d.AgentName, d.Fingerprint)
	c.entries[k] = d

	if d.FilePath != "" {
		if c.byFile[d.FilePath] == nil {
			c.byFile[d.FilePath] = make(map[string]struct{})
		}
		c.byFile[d.FilePath][k] = struct{}{}
	}
}

// Invalidate drops every cached decision touching the given file.
//
// Description:
//
//	Called after a file changes (a fix was applied, or an external
//	edit was observed). A changed file must not retain stale entries
//	for any of its fingerprints: identical-looking issues in that
//	file must be re-evaluated rather than reusing an "already fixed"
//	decision.
//
// Outputs:
//
//	int - Number of entries dropped.
func (c *Cache) Invalidate(filePath string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, ok := c.byFile[filePath]
	if !ok {
		return 0
	}

	for k := range keys {
		delete(c.entries, k)
	}
	delete(c.byFile, filePath)
	return len(keys)
}

// InvalidateFingerprint drops all agents' decisions for one fingerprint.
// Used after a successful fix so the same-looking issue re-evaluates.
func (c *Cache) InvalidateFingerprint(fingerprint string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	suffix := "\x00" + fingerprint
	for k := range c.entries {
		if len(k) >= len(suffix) && k[len(k)-len(suffix):] == suffix {
			d := c.entries[k]
			delete(c.entries, k)
			if d.FilePath != "" && c.byFile[d.FilePath] != nil {
				delete(c.byFile[d.FilePath], k)
			}
			dropped++
		}
	}
	return dropped
}

// Evaluate returns the cached confidence for (agent, fingerprint) or
// computes it once, even under concurrent callers for the same key.
//
// Inputs:
//
//	agentName, fingerprint - The cache key.
//	compute - Produces the confidence on a miss.
//
// Outputs:
//
//	float64 - Cached or freshly computed confidence.
func (c *Cache) Evaluate(agentName, fingerprint string, compute func() float64) float64 {
	if d, ok := c.Get(agentName, fingerprint); ok {
		return d.Confidence
	}

	v, _, _ := c.flight.Do(key(agentName, fingerprint), func() (any, error) {
		if d, ok := c.Get(agentName, fingerprint); ok {
			return d.Confidence, nil
		}
		return compute(), nil
	})
	return v.(float64)
}

// Len returns the number of cached decisions.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot returns a copy of all entries, ordered deterministically
// by key, for persistence and inspection.
func (c *Cache) Snapshot() []AgentDecision {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]AgentDecision, 0, len(keys))
	for _, k := range keys {
		out = append(out, c.entries[k])
	}
	return out
}

// Replace swaps the cache contents with the given entries.
func (c *Cache) Replace(decisions []AgentDecision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]AgentDecision, len(decisions))
	c.byFile = make(map[string]map[string]struct{})

	for _, d := range decisions {
		k := key(d.AgentName, d.Fingerprint)
		c.entries[k] = d
		if d.FilePath != "" {
			if c.byFile[d.FilePath] == nil {
				c.byFile[d.FilePath] = make(map[string]struct{})
			}
			c.byFile[d.FilePath][k] = struct{}{}
		}
	}
}
