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
	"log/slog"

	"github.com/AleutianAI/mend/services/autofix/config"
	"github.com/AleutianAI/mend/services/autofix/converge"
	"github.com/AleutianAI/mend/services/autofix/hook"
	"github.com/AleutianAI/mend/services/autofix/issue"
	"github.com/AleutianAI/mend/services/autofix/normalize"
)

// newCollector wires the hook scheduler and normalizer for a stage
// into the controller's issue source.
func newCollector(cfg *config.Config, stage hook.Stage, logger *slog.Logger) (converge.Collector, error) {
	defs := cfg.StageDefinitions(stage)
	if len(defs) == 0 {
		return nil, fmt.Errorf("no hooks configured for stage %q", stage)
	}

	runner := &hook.ExecRunner{WorkDir: cfg.WorkDir}
	scheduler, err := hook.NewScheduler(runner, cfg.Strategy.SchedulerConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}
	normalizer := normalize.NewNormalizer(logger)

	return converge.CollectorFunc(func(ctx context.Context) ([]issue.Issue, error) {
		results, err := scheduler.Execute(ctx, defs)
		if err != nil {
			return nil, err
		}
		return normalizer.Normalize(results, string(stage)), nil
	}), nil
}

// parseStage validates the --stage flag value.
func parseStage(value string) (hook.Stage, error) {
	switch value {
	case string(hook.StageFast):
		return hook.StageFast, nil
	case string(hook.StageComprehensive):
		return hook.StageComprehensive, nil
	default:
		return "", fmt.Errorf("unknown stage %q (want %s or %s)",
			value, hook.StageFast, hook.StageComprehensive)
	}
}
