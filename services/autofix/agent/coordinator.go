// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/mend/services/autofix/decision"
	"github.com/AleutianAI/mend/services/autofix/issue"
)

var tracer = otel.Tracer("mend.agent")

// CoordinatorConfig configures agent selection.
type CoordinatorConfig struct {
	// MinConfidence is the selection threshold. An agent below it is
	// never chosen. Zero means DefaultMinConfidence.
	MinConfidence float64
}

// Coordinator routes issue groups to agents and merges their results.
//
// Thread Safety: safe for concurrent use; all mutable state is local
// to each Handle call except the decision cache, which serializes its
// own writes.
type Coordinator struct {
	registry *Registry
	cache    *decision.Cache
	logger   *slog.Logger
	minConf  float64
}

// NewCoordinator creates a coordinator.
//
// Inputs:
//
//	registry - Ordered agent registry. Must not be nil.
//	cache - Decision cache consulted before evaluating agents and
//	updated after fixes. Must not be nil.
//	config - Selection threshold.
//	logger - Logger for routing decisions. If nil, uses slog.Default().
//
// Outputs:
//
//	*Coordinator - The configured coordinator.
//	error - Non-nil if registry or cache is nil.
func NewCoordinator(
	registry *Registry,
	cache *decision.Cache,
	config CoordinatorConfig,
	logger *slog.Logger,
) (*Coordinator, error) {
	if registry == nil || cache == nil {
		return nil, ErrInvalidInput
	}
	if logger == nil {
		logger = slog.Default()
	}

	minConf := config.MinConfidence
	if minConf <= 0 {
		minConf = DefaultMinConfidence
	}

	return &Coordinator{
		registry: registry,
		cache:    cache,
		logger:   logger,
		minConf:  minConf,
	}, nil
}

// fragment is one issue-type group's outcome before merging.
type fragment struct {
	issueType  issue.Type
	issues     []issue.Issue
	agentName  string
	confidence float64
	issueCount int
	result     *FixResult
	err        error
	eligible   bool
}

// Handle routes issues to agents and returns the merged result.
//
// Description:
//
//	Groups issues by type, selects the most confident agent per group
//	(cache-first), runs independent groups concurrently, and merges
//	the fragments. A group with no eligible agent is recorded as
//	unresolved, not as a failure of the whole pass. An agent error or
//	panic is isolated to its own fragment. Handle never propagates an
//	agent's failure as an error; the only error returned is for a nil
//	context.
//
// Inputs:
//
//	ctx - Context carrying the iteration's fix budget.
//	issues - The deduplicated issue set for this iteration.
//
// Outputs:
//
//	*FixResult - The merged outcome (see FixResult field docs).
//	error - Non-nil only for a nil context.
func (c *Coordinator) Handle(ctx context.Context, issues []issue.Issue) (*FixResult, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	ctx, span := tracer.Start(ctx, "agent.Handle")
	defer span.End()

	if len(issues) == 0 {
		result := NewFixResult()
		result.Success = true
		span.SetStatus(codes.Ok, "")
		return result, nil
	}

	groups := issue.GroupByType(issues)
	types := make([]issue.Type, 0, len(groups))
	for t := range groups {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	span.SetAttributes(
		attribute.Int("agent.issue_count", len(issues)),
		attribute.Int("agent.group_count", len(groups)),
	)

	fragments := make([]fragment, len(types))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, t := range types {
		i, t := i, t
		g.Go(func() error {
			frag := c.runGroup(gctx, t, groups[t])
			mu.Lock()
			fragments[i] = frag
			mu.Unlock()
			// Group failures are data, never errors: siblings keep running.
			return nil
		})
	}
	_ = g.Wait()

	merged := c.merge(fragments)

	span.SetAttributes(
		attribute.Bool("agent.success", merged.Success),
		attribute.Float64("agent.confidence", merged.Confidence),
		attribute.Int("agent.remaining", len(merged.RemainingIssues)),
	)
	span.SetStatus(codes.Ok, "")

	return merged, nil
}

// runGroup selects and runs one issue-type group's agent.
func (c *Coordinator) runGroup(ctx context.Context, t issue.Type, group []issue.Issue) fragment {
	frag := fragment{issueType: t, issues: group, issueCount: len(group)}

	selected, confidence := c.selectAgent(ctx, group)
	if selected == nil {
		c.logger.Info("no agent available for issue type",
			slog.String("type", string(t)),
			slog.Int("issues", len(group)),
		)
		frag.err = ErrNoAgentAvailable
		return frag
	}

	frag.eligible = true
	frag.agentName = selected.Name()
	frag.confidence = confidence

	c.logger.Debug("agent selected",
		slog.String("type", string(t)),
		slog.String("agent", frag.agentName),
		slog.Float64("confidence", confidence),
	)

	result, err := c.invoke(ctx, selected, group)
	frag.result = result
	frag.err = err

	c.recordDecisions(frag, group)
	return frag
}

// selectAgent picks the highest-confidence agent at or above the
// threshold. Registry order breaks ties. Confidence per agent is the
// mean over the group's issues, consulting the cache per fingerprint.
//
// When no agent clears the threshold, every evaluation is stored as a
// declined decision so later iterations and runs skip CanHandle for a
// group nothing can fix. The entries drop out through the usual file
// invalidation when the file changes.
func (c *Coordinator) selectAgent(ctx context.Context, group []issue.Issue) (Agent, float64) {
	var best Agent
	bestConf := 0.0
	evaluated := make([]decision.AgentDecision, 0, len(c.registry.All())*len(group))

	for _, a := range c.registry.All() {
		total := 0.0
		for _, is := range group {
			is := is
			conf := c.cache.Evaluate(a.Name(), is.Fingerprint(), func() float64 {
				return clampConfidence(a.CanHandle(ctx, is))
			})
			total += conf
			evaluated = append(evaluated, decision.AgentDecision{
				AgentName:   a.Name(),
				Fingerprint: is.Fingerprint(),
				Confidence:  conf,
				Outcome:     decision.OutcomeDeclined,
				FilePath:    is.FilePath,
			})
		}
		conf := total / float64(len(group))

		// Strictly greater: earlier-registered agents win ties.
		if conf >= c.minConf && conf > bestConf {
			best = a
			bestConf = conf
		}
	}

	if best == nil {
		for _, d := range evaluated {
			c.cache.Put(d)
		}
	}

	return best, bestConf
}

// invoke runs one agent with panic isolation.
func (c *Coordinator) invoke(ctx context.Context, a Agent, group []issue.Issue) (result *FixResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("agent panicked",
				slog.String("agent", a.Name()),
				slog.Any("panic", r),
			)
			result = nil
			err = NewAgentError(a.Name(), fmt.Errorf("%w: %v", ErrAgentPanicked, r))
		}
	}()

	result, err = a.Fix(ctx, group)
	if err != nil {
		return nil, NewAgentError(a.Name(), err)
	}
	if result == nil {
		return nil, NewAgentError(a.Name(), ErrInvalidInput)
	}
	return result, nil
}

// recordDecisions writes a run group's outcome back into the cache.
// Groups with no eligible agent never reach here; selectAgent records
// those as declined evaluations itself.
//
// On success the fingerprints are invalidated rather than stored as
// "fixed": the files changed, so a future identical-looking issue
// must be re-evaluated instead of reusing a stale decision. Entries
// for other fingerprints in the modified files are dropped too.
func (c *Coordinator) recordDecisions(frag fragment, group []issue.Issue) {
	succeeded := frag.err == nil && frag.result != nil && frag.result.Success

	if succeeded {
		for _, is := range group {
			c.cache.InvalidateFingerprint(is.Fingerprint())
		}
		for _, path := range frag.result.FilesModified {
			c.cache.Invalidate(path)
		}
		return
	}

	for _, is := range group {
		c.cache.Put(decision.AgentDecision{
			AgentName:   frag.agentName,
			Fingerprint: is.Fingerprint(),
			Confidence:  frag.confidence,
			Outcome:     decision.OutcomeFailed,
			FilePath:    is.FilePath,
		})
	}
}

// merge combines fragments into one FixResult.
func (c *Coordinator) merge(fragments []fragment) *FixResult {
	merged := NewFixResult()
	merged.Success = true

	weightedConf := 0.0
	participating := 0

	filesSeen := make(map[string]struct{})

	for _, frag := range fragments {
		switch {
		case !frag.eligible:
			// No agent cleared the threshold: unresolved, not fatal.
			for _, msg := range describeIssues(frag) {
				merged.RemainingIssues = append(merged.RemainingIssues,
					fmt.Sprintf("no agent available: %s", msg))
			}

		case frag.err != nil || frag.result == nil:
			merged.Success = false
			weightedConf += frag.confidence * float64(frag.issueCount)
			participating += frag.issueCount
			reason := "agent failed"
			if frag.err != nil {
				reason = frag.err.Error()
			}
			for _, msg := range describeIssues(frag) {
				merged.RemainingIssues = append(merged.RemainingIssues,
					fmt.Sprintf("%s: %s", reason, msg))
			}

		default:
			weightedConf += frag.confidence * float64(frag.issueCount)
			participating += frag.issueCount
			if !frag.result.Success {
				merged.Success = false
			}
			merged.FixesApplied = append(merged.FixesApplied, frag.result.FixesApplied...)
			merged.RemainingIssues = append(merged.RemainingIssues, frag.result.RemainingIssues...)

			for _, path := range frag.result.FilesModified {
				content, hasContent := frag.result.Changes[path]
				if _, conflict := filesSeen[path]; conflict {
					// Two groups proposed the same file. First wins;
					// the later proposal is rejected, never interleaved.
					merged.RemainingIssues = append(merged.RemainingIssues,
						fmt.Sprintf("conflicting change to %s from %s deferred", path, frag.agentName))
					continue
				}
				filesSeen[path] = struct{}{}
				merged.FilesModified = append(merged.FilesModified, path)
				if hasContent {
					merged.Changes[path] = content
				}
			}
		}
	}

	if participating > 0 {
		merged.Confidence = weightedConf / float64(participating)
	}

	sort.Strings(merged.FilesModified)
	return merged
}

// describeIssues renders a fragment's issues for remaining-issue lists.
func describeIssues(frag fragment) []string {
	out := make([]string, 0, len(frag.issues))
	for _, is := range frag.issues {
		out = append(out, is.String())
	}
	return out
}

// clampConfidence bounds a reported confidence to [0, 1].
func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
