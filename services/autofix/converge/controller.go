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
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/mend/services/autofix/agent"
	"github.com/AleutianAI/mend/services/autofix/filelock"
	"github.com/AleutianAI/mend/services/autofix/issue"
	"github.com/AleutianAI/mend/services/autofix/validate"
)

var (
	tracer = otel.Tracer("mend.converge")
	meter  = otel.Meter("mend.converge")
)

// Collector produces the current issue set for one iteration,
// typically by running the configured hooks and normalizing their
// output.
type Collector interface {
	Collect(ctx context.Context) ([]issue.Issue, error)
}

// CollectorFunc adapts a function to the Collector interface.
type CollectorFunc func(ctx context.Context) ([]issue.Issue, error)

// Collect calls f.
func (f CollectorFunc) Collect(ctx context.Context) ([]issue.Issue, error) {
	return f(ctx)
}

// Fixer routes an issue set to agents and returns the merged result.
// *agent.Coordinator satisfies it.
type Fixer interface {
	Handle(ctx context.Context, issues []issue.Issue) (*agent.FixResult, error)
}

// Controller runs the convergence loop.
//
// Thread Safety: a Controller instance runs one loop at a time; call
// Run from a single goroutine. Constructing multiple controllers over
// the same tree is safe only because apply goes through the shared
// lock manager.
type Controller struct {
	collector Collector
	fixer     Fixer
	applier   *applier
	config    Config
	logger    *slog.Logger

	metricsOnce     sync.Once
	iterationCount  metric.Int64Counter
	issuesObserved  metric.Int64Histogram
	terminalRuns    metric.Int64Counter
	metricsDisabled bool
}

// NewController creates a convergence controller.
//
// Inputs:
//
//	collector - Issue source for each iteration. Must not be nil.
//	fixer - Agent dispatch. Must not be nil.
//	locks - Per-file lease manager used during apply. Must not be nil.
//	validator - Content validator for pre/post-apply checks. If nil,
//	a default validator is created.
//	config - Loop bounds; zero values take defaults.
//	logger - Logger for the iteration log. If nil, uses slog.Default().
//
// Outputs:
//
//	*Controller - The configured controller.
//	error - Non-nil if a required dependency is nil.
func NewController(
	collector Collector,
	fixer Fixer,
	locks *filelock.Manager,
	validator *validate.ContentValidator,
	config Config,
	logger *slog.Logger,
) (*Controller, error) {
	if collector == nil || fixer == nil || locks == nil {
		return nil, ErrInvalidInput
	}
	if validator == nil {
		validator = validate.NewContentValidator(0)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Controller{
		collector: collector,
		fixer:     fixer,
		applier:   newApplier(locks, validator, config.Root, logger),
		config:    config.withDefaults(),
		logger:    logger,
	}, nil
}

// initMetrics lazily creates instruments. Metric failures disable
// recording but never the loop itself.
func (c *Controller) initMetrics() {
	c.metricsOnce.Do(func() {
		var errs []error
		var err error

		c.iterationCount, err = meter.Int64Counter("mend.converge.iterations",
			metric.WithDescription("Convergence iterations executed"))
		if err != nil {
			errs = append(errs, err)
		}

		c.issuesObserved, err = meter.Int64Histogram("mend.converge.issue_count",
			metric.WithDescription("Issue count observed per iteration"))
		if err != nil {
			errs = append(errs, err)
		}

		c.terminalRuns, err = meter.Int64Counter("mend.converge.runs",
			metric.WithDescription("Completed runs by terminal status"))
		if err != nil {
			errs = append(errs, err)
		}

		if len(errs) > 0 {
			c.metricsDisabled = true
			c.logger.Warn("convergence metrics disabled",
				slog.Int("failed_instruments", len(errs)),
			)
		}
	})
}

// Run executes the loop until a terminal status.
//
// Description:
//
//	Each iteration collects the current issues, stops with success on
//	an empty set, otherwise dispatches to agents and applies their
//	proposed changes. The issue count history is append-only; a count
//	that fails to strictly decrease increments the no-progress
//	counter, and a strict decrease resets it. The loop ends on zero
//	issues, on the no-progress budget, or on the iteration budget.
//
//	Run never returns an error. Collector failures, agent failures,
//	and per-iteration timeouts all count as non-improving iterations
//	and steer the run toward a no-progress terminal instead of
//	aborting it.
//
// Inputs:
//
//	ctx - Cancels the whole run. A nil context is replaced with
//	context.Background().
//
// Outputs:
//
//	*Report - Always non-nil, always terminal.
func (c *Controller) Run(ctx context.Context) *Report {
	if ctx == nil {
		ctx = context.Background()
	}
	c.initMetrics()

	ctx, span := tracer.Start(ctx, "converge.Run")
	defer span.End()

	report := &Report{
		Status:     StatusInit,
		History:    make([]int, 0, c.config.MaxIterations),
		Unresolved: make([]issue.Issue, 0),
	}

	noProgress := 0
	prevCount := -1

	report.Status = StatusIterating
	for iter := 1; iter <= c.config.MaxIterations; iter++ {
		report.Iterations = iter
		c.recordIteration(ctx)

		issues, collectErr := c.collectOnce(ctx)
		if collectErr != nil {
			// An iteration that cannot even observe the tree is a
			// non-improving iteration. Keep the previous issue set as
			// the best known unresolved state. There is no issue count
			// to report for it.
			noProgress++
			c.logger.Info("iteration complete without issue count",
				slog.Int("iteration", iter),
				slog.String("status", string(report.Status)),
				slog.String("note", "collect failed: "+collectErr.Error()),
			)
			if ctx.Err() != nil || noProgress >= c.config.NoProgressLimit {
				report.Status = StatusNoProgress
				break
			}
			continue
		}

		count := len(issues)
		report.History = append(report.History, count)
		report.FinalIssueCount = count
		report.Unresolved = issues
		c.recordIssueCount(ctx, count)

		if count == 0 {
			report.Status = StatusSuccess
			c.logIteration(iter, count, report.Status, "")
			break
		}

		// Only a strict decrease counts as progress. The first
		// iteration has no prior count to have decreased from.
		if prevCount >= 0 && count < prevCount {
			noProgress = 0
		} else {
			noProgress++
		}
		prevCount = count

		if noProgress >= c.config.NoProgressLimit {
			report.Status = StatusNoProgress
			c.logIteration(iter, count, report.Status, "")
			break
		}

		c.fixOnce(ctx, iter, issues)
		c.logIteration(iter, count, report.Status, "")

		if ctx.Err() != nil {
			report.Status = StatusNoProgress
			break
		}
	}

	if !report.Status.Terminal() {
		report.Status = StatusMaxIterations
	}
	report.Success = report.Status == StatusSuccess
	if report.Success {
		report.Unresolved = report.Unresolved[:0]
	}

	c.recordTerminal(ctx, report.Status)
	span.SetAttributes(
		attribute.String("converge.status", string(report.Status)),
		attribute.Int("converge.iterations", report.Iterations),
		attribute.Int("converge.final_issue_count", report.FinalIssueCount),
	)
	span.SetStatus(codes.Ok, "")

	c.logger.Info("convergence run finished",
		slog.String("status", string(report.Status)),
		slog.Int("iterations", report.Iterations),
		slog.Int("final_issue_count", report.FinalIssueCount),
	)

	return report
}

// collectOnce runs one collection under the per-iteration deadline.
func (c *Controller) collectOnce(ctx context.Context) ([]issue.Issue, error) {
	ictx, cancel := c.iterationContext(ctx)
	defer cancel()
	return c.collector.Collect(ictx)
}

// fixOnce dispatches one iteration's issues and applies the results.
// All failures are logged and absorbed.
func (c *Controller) fixOnce(ctx context.Context, iter int, issues []issue.Issue) {
	ictx, cancel := c.iterationContext(ctx)
	defer cancel()

	result, err := c.fixer.Handle(ictx, issues)
	if err != nil || result == nil {
		c.logger.Warn("agent dispatch failed",
			slog.Int("iteration", iter),
			slog.Any("error", err),
		)
		return
	}

	if len(result.Changes) == 0 {
		return
	}

	for _, outcome := range c.applier.applyAll(ictx, result.Changes) {
		if outcome.Applied {
			c.logger.Debug("change applied",
				slog.Int("iteration", iter),
				slog.String("path", outcome.Path),
			)
			continue
		}
		c.logger.Warn("change not applied",
			slog.Int("iteration", iter),
			slog.String("path", outcome.Path),
			slog.Bool("rolled_back", outcome.RolledBack),
			slog.String("reason", outcome.Reason),
		)
	}
}

// iterationContext derives the per-iteration deadline.
func (c *Controller) iterationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.IterationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.config.IterationTimeout)
}

// logIteration emits the structured per-iteration record.
func (c *Controller) logIteration(iter, count int, status Status, note string) {
	attrs := []any{
		slog.Int("iteration", iter),
		slog.Int("issue_count", count),
		slog.String("status", string(status)),
	}
	if note != "" {
		attrs = append(attrs, slog.String("note", note))
	}
	c.logger.Info("iteration complete", attrs...)
}

func (c *Controller) recordIteration(ctx context.Context) {
	if c.metricsDisabled || c.iterationCount == nil {
		return
	}
	c.iterationCount.Add(ctx, 1)
}

func (c *Controller) recordIssueCount(ctx context.Context, count int) {
	if c.metricsDisabled || c.issuesObserved == nil {
		return
	}
	c.issuesObserved.Record(ctx, int64(count))
}

func (c *Controller) recordTerminal(ctx context.Context, status Status) {
	if c.metricsDisabled || c.terminalRuns == nil {
		return
	}
	c.terminalRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", string(status)),
	))
}
