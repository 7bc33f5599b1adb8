// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/mend/pkg/logging"
	"github.com/AleutianAI/mend/services/autofix/agent"
	"github.com/AleutianAI/mend/services/autofix/agents"
	"github.com/AleutianAI/mend/services/autofix/config"
	"github.com/AleutianAI/mend/services/autofix/converge"
	"github.com/AleutianAI/mend/services/autofix/decision"
	"github.com/AleutianAI/mend/services/autofix/filelock"
	"github.com/AleutianAI/mend/services/autofix/issue"
	"github.com/AleutianAI/mend/services/autofix/telemetry"
	"github.com/AleutianAI/mend/services/autofix/validate"
)

var runStage string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run hooks and iterate agent fixes until the tree converges",
	RunE:  runRunCommand,
}

func init() {
	runCmd.Flags().StringVar(&runStage, "stage", "fast", "hook stage to run: fast or comprehensive")
}

func runRunCommand(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer logger.Close()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	stage, err := parseStage(runStage)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	shutdown, err := telemetry.Init(ctx, telemetry.DefaultConfig())
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(shutdownCtx)
	}()

	collector, err := newCollector(cfg, stage, logger.Slog())
	if err != nil {
		return err
	}

	cache := decision.NewCache(logger.Slog())
	if cfg.Cache.Path != "" {
		if err := cache.Load(cfg.Cache.Path); err != nil {
			logger.Warn("decision cache not loaded, starting empty",
				"path", cfg.Cache.Path, "error", err.Error())
		}
	}
	if len(cfg.Cache.WatchDirs) > 0 {
		watcher, err := decision.NewWatcher(cache, cfg.Cache.WatchDirs, logger.Slog())
		if err != nil {
			logger.Warn("cache invalidation watcher unavailable", "error", err.Error())
		} else {
			defer watcher.Close()
		}
	}

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		return fmt.Errorf("building agent registry: %w", err)
	}

	coordinator, err := agent.NewCoordinator(registry, cache, cfg.Strategy.CoordinatorConfig(), logger.Slog())
	if err != nil {
		return fmt.Errorf("creating coordinator: %w", err)
	}

	convergeCfg := cfg.Strategy.ConvergeConfig()
	convergeCfg.Root = cfg.WorkDir

	controller, err := converge.NewController(
		collector,
		coordinator,
		filelock.NewManager(logger.Slog()),
		validate.NewContentValidator(0),
		convergeCfg,
		logger.Slog(),
	)
	if err != nil {
		return fmt.Errorf("creating controller: %w", err)
	}

	report := controller.Run(ctx)
	printReport(report)

	if cfg.Cache.Path != "" {
		if err := cache.Save(cfg.Cache.Path); err != nil {
			logger.Warn("decision cache not saved",
				"path", cfg.Cache.Path, "error", err.Error())
		}
	}

	if !report.Success {
		os.Exit(2)
	}
	return nil
}

// buildRegistry assembles the builtin agents in priority order. The
// order matters: it is the tie-break when two agents report the same
// confidence.
func buildRegistry(cfg *config.Config, logger *logging.Logger) (*agent.Registry, error) {
	workDir := cfg.WorkDir

	list := []agent.Agent{
		agents.NewFormatAgent(workDir, logger.Slog()),
		agents.NewLintFixAgent(workDir, logger.Slog()),
	}

	ruffDiff, err := agents.NewPatchAgent(
		"ruff-diff",
		"ruff",
		[]string{"check", "--diff", "--quiet"},
		map[issue.Type]float64{
			issue.TypeDocumentation: 0.75,
			issue.TypeComplexity:    0.7,
		},
		workDir,
		logger.Slog(),
	)
	if err != nil {
		return nil, err
	}
	list = append(list, ruffDiff)

	return agent.NewRegistry(list...)
}

// printReport renders the terminal convergence report.
func printReport(report *converge.Report) {
	fmt.Printf("\nStatus:     %s\n", report.Status)
	fmt.Printf("Iterations: %d\n", report.Iterations)
	fmt.Printf("History:    %v\n", report.History)

	if report.Success {
		fmt.Println("\nAll issues resolved.")
		return
	}

	fmt.Printf("\n%d issues unresolved:\n", len(report.Unresolved))
	for _, is := range report.Unresolved {
		fmt.Printf("  %s:%d [%s/%s] %s (%s)\n",
			is.FilePath, is.LineNumber, is.Type, is.Severity, is.Message, is.Tool)
	}
}
