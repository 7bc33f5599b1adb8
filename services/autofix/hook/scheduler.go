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

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

var (
	tracer = otel.Tracer("mend.hook")
	meter  = otel.Meter("mend.hook")
)

// DefaultWorkers bounds batch parallelism when the config does not.
const DefaultWorkers = 4

// maxRetryAttempts bounds re-runs per hook regardless of policy.
const maxRetryAttempts = 2

// Runner executes one hook attempt and returns its combined output.
//
// The returned error is nil for a clean exit, an *exec.ExitError for
// a non-zero exit, and any other error for a spawn or I/O failure.
// The scheduler classifies the result; runners never do.
type Runner interface {
	Run(ctx context.Context, def Definition) (output string, err error)
}

// ExecRunner spawns hook commands as OS processes.
type ExecRunner struct {
	// WorkDir is the working directory for spawned commands.
	// Empty means the current directory.
	WorkDir string
}

// Run executes the hook command, capturing stdout and stderr together.
func (r *ExecRunner) Run(ctx context.Context, def Definition) (string, error) {
	cmd := exec.CommandContext(ctx, def.Command, def.Args...)
	if r.WorkDir != "" {
		cmd.Dir = r.WorkDir
	}
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	// Workers bounds concurrent hook executions per batch.
	// Zero means DefaultWorkers.
	Workers int

	// RetryInterval throttles re-runs of failed hooks.
	// Zero disables throttling.
	RetryInterval time.Duration
}

// Scheduler executes hook definitions as dependency-ordered batches.
//
// Description:
//
//	Scheduler topologically groups definitions into batches, runs each
//	batch's hooks concurrently under a worker semaphore, and collects
//	one Result per definition. Hooks whose dependencies did not pass
//	are recorded as skipped rather than executed.
//
// Thread Safety:
//
//	Scheduler is safe for concurrent use. Multiple Execute calls can
//	run concurrently on the same Scheduler.
type Scheduler struct {
	runner  Runner
	logger  *slog.Logger
	workers int64
	retries *rate.Limiter

	// Metrics (initialized lazily)
	metricsOnce  sync.Once
	hookLatency  metric.Float64Histogram
	hookOutcomes metric.Int64Counter
	activeHooks  metric.Int64UpDownCounter
}

// NewScheduler creates a scheduler with the given runner and config.
//
// Inputs:
//
//	runner - Executes individual hook attempts. Must not be nil.
//	config - Worker and retry limits.
//	logger - Logger for execution logs. If nil, uses slog.Default().
//
// Outputs:
//
//	*Scheduler - The configured scheduler.
//	error - Non-nil if runner is nil.
func NewScheduler(runner Runner, config SchedulerConfig, logger *slog.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, ErrInvalidInput
	}
	if logger == nil {
		logger = slog.Default()
	}

	workers := int64(config.Workers)
	if workers <= 0 {
		workers = DefaultWorkers
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RetryInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(config.RetryInterval), 1)
	}

	return &Scheduler{
		runner:  runner,
		logger:  logger,
		workers: workers,
		retries: limiter,
	}, nil
}

// initMetrics lazily initializes metrics. Metric creation failures
// degrade observability but never execution.
func (s *Scheduler) initMetrics() {
	s.metricsOnce.Do(func() {
		var initErrors []string

		var err error
		s.hookLatency, err = meter.Float64Histogram("hook_duration_seconds",
			metric.WithDescription("Time spent executing each hook"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "hook_latency: "+err.Error())
		}

		s.hookOutcomes, err = meter.Int64Counter("hook_outcome_total",
			metric.WithDescription("Hook executions by terminal status"),
		)
		if err != nil {
			initErrors = append(initErrors, "hook_outcomes: "+err.Error())
		}

		s.activeHooks, err = meter.Int64UpDownCounter("hook_active",
			metric.WithDescription("Number of currently executing hooks"),
		)
		if err != nil {
			initErrors = append(initErrors, "active_hooks: "+err.Error())
		}

		if len(initErrors) > 0 {
			s.logger.Error("failed to initialize some hook metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

// Execute runs all definitions and returns one Result per definition.
//
// Description:
//
//	Builds dependency batches, then executes batch by batch. Within a
//	batch hooks run concurrently, bounded by the worker semaphore. A
//	hook failure is isolated to its own Result; scheduling always
//	completes. The only errors returned are graph errors (duplicate
//	names, unknown dependencies, cycles) and a nil context.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil. When the context
//	expires mid-run, remaining hooks are recorded as skipped.
//	defs - The hook definitions to execute.
//
// Outputs:
//
//	[]Result - Exactly one entry per definition, in batch order.
//	error - Non-nil only for invalid input or an invalid graph.
func (s *Scheduler) Execute(ctx context.Context, defs []Definition) ([]Result, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	s.initMetrics()

	batches, err := BuildBatches(defs)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.NewString()[:12]

	ctx, span := tracer.Start(ctx, "hook.Execute",
		trace.WithAttributes(
			attribute.String("hook.session_id", sessionID),
			attribute.Int("hook.count", len(defs)),
			attribute.Int("hook.batches", len(batches)),
		),
	)
	defer span.End()

	s.logger.Info("hook batch run started",
		slog.String("session_id", sessionID),
		slog.Int("hooks", len(defs)),
		slog.Int("batches", len(batches)),
	)

	start := time.Now()
	results := make([]Result, 0, len(defs))
	statuses := make(map[string]Status, len(defs))

	for batchIdx, batch := range batches {
		batchResults := s.executeBatch(ctx, batch, batchIdx, statuses)
		for _, r := range batchResults {
			statuses[r.Name] = r.Status
			results = append(results, r)
		}
	}

	failed := 0
	for _, r := range results {
		if !r.Passed() && r.Status.Terminal() {
			failed++
		}
	}

	span.SetAttributes(attribute.Int("hook.failed", failed))
	span.SetStatus(codes.Ok, "")

	s.logger.Info("hook batch run completed",
		slog.String("session_id", sessionID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("failed", failed),
	)

	return results, nil
}

// executeBatch runs one batch's hooks concurrently and joins them all.
// Hooks whose dependencies did not pass are skipped without running.
func (s *Scheduler) executeBatch(
	ctx context.Context,
	batch []Definition,
	batchIdx int,
	statuses map[string]Status,
) []Result {
	sem := semaphore.NewWeighted(s.workers)
	resultCh := make(chan Result, len(batch))
	var wg sync.WaitGroup

	for _, def := range batch {
		if blocked, dep := s.blockedByDependency(def, statuses); blocked {
			resultCh <- Result{
				Name:   def.Name,
				Status: StatusSkipped,
				Err:    "dependency " + dep + " did not pass",
			}
			continue
		}

		wg.Add(1)
		go func(d Definition) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				// Context expired while queued.
				resultCh <- Result{Name: d.Name, Status: StatusSkipped, Err: err.Error()}
				return
			}
			defer sem.Release(1)

			resultCh <- s.executeHook(ctx, d, batchIdx)
		}(def)
	}

	wg.Wait()
	close(resultCh)

	results := make([]Result, 0, len(batch))
	for r := range resultCh {
		results = append(results, r)
	}
	// Channel order is nondeterministic; sort for stable output.
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}

// blockedByDependency reports whether a dependency of def finished
// without passing, and names the first such dependency.
func (s *Scheduler) blockedByDependency(def Definition, statuses map[string]Status) (bool, string) {
	for _, dep := range def.DependsOn {
		if st, ok := statuses[dep]; ok && !st.Is(StatusPassed) {
			return true, dep
		}
	}
	return false, ""
}

// executeHook runs one hook with timeout, retry, and observability.
func (s *Scheduler) executeHook(ctx context.Context, def Definition, batchIdx int) Result {
	ctx, span := tracer.Start(ctx, "hook."+def.Name,
		trace.WithAttributes(
			attribute.String("hook.name", def.Name),
			attribute.Int("hook.batch", batchIdx),
			attribute.String("hook.stage", string(def.Stage)),
		),
	)
	defer span.End()

	if s.activeHooks != nil {
		s.activeHooks.Add(ctx, 1)
		defer s.activeHooks.Add(ctx, -1)
	}

	attempts := s.maxAttempts(def)

	var result Result
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			s.logger.Warn("retrying hook",
				slog.String("hook", def.Name),
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", attempts),
			)
			if err := s.retries.Wait(ctx); err != nil {
				break
			}
		}

		result = s.runOnce(ctx, def)
		result.Attempts = attempt
		if result.Passed() || result.Status.Is(StatusError) {
			break
		}
	}

	if s.hookLatency != nil {
		s.hookLatency.Record(ctx, result.Duration.Seconds(),
			metric.WithAttributes(attribute.String("hook", def.Name)),
		)
	}
	if s.hookOutcomes != nil {
		s.hookOutcomes.Add(ctx, 1, metric.WithAttributes(
			attribute.String("hook", def.Name),
			attribute.String("status", string(result.Status)),
		))
	}

	if result.Passed() {
		span.SetStatus(codes.Ok, "")
		s.logger.Debug("hook passed",
			slog.String("hook", def.Name),
			slog.Duration("duration", result.Duration),
		)
	} else {
		span.SetStatus(codes.Error, string(result.Status))
		s.logger.Warn("hook did not pass",
			slog.String("hook", def.Name),
			slog.String("status", string(result.Status)),
			slog.Duration("duration", result.Duration),
			slog.Int("attempts", result.Attempts),
		)
	}

	return result
}

// maxAttempts returns how many times the hook may run under its policy.
func (s *Scheduler) maxAttempts(def Definition) int {
	if def.RetryPolicy == RetryFormattingOnly && def.Formatting {
		return maxRetryAttempts
	}
	return 1
}

// runOnce performs a single attempt and classifies the outcome.
func (s *Scheduler) runOnce(ctx context.Context, def Definition) Result {
	attemptCtx, cancel := context.WithTimeout(ctx, def.EffectiveTimeout())
	defer cancel()

	start := time.Now()
	output, err := s.runner.Run(attemptCtx, def)
	duration := time.Since(start)

	result := Result{
		Name:      def.Name,
		RawOutput: output,
		Duration:  duration,
	}

	switch {
	case err == nil:
		result.Status = StatusPassed
	case attemptCtx.Err() == context.DeadlineExceeded:
		result.Status = StatusTimeout
		result.Err = NewHookError(def.Name, ErrHookTimeout).Error()
	case isExitError(err):
		// The command ran and reported problems; its output carries them.
		result.Status = StatusFailed
		result.Err = err.Error()
	default:
		result.Status = StatusError
		result.Err = NewHookError(def.Name, err).Error()
	}

	return result
}

// isExitError reports whether err represents a non-zero process exit.
func isExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}
