// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates the tool's YAML configuration:
// hook definitions, convergence strategy, and cache settings.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/mend/services/autofix/agent"
	"github.com/AleutianAI/mend/services/autofix/converge"
	"github.com/AleutianAI/mend/services/autofix/hook"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrInvalidConfig indicates the configuration failed validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrCrossStageDependency indicates a hook depends on a hook in a
	// different stage. Stages run independently, so such a dependency
	// could never be satisfied.
	ErrCrossStageDependency = errors.New("hook depends on a hook in a different stage")
)

var validate = validator.New()

// =============================================================================
// Schema
// =============================================================================

// HookSpec is one hook entry in the YAML file.
type HookSpec struct {
	Name           string   `yaml:"name" validate:"required"`
	Command        string   `yaml:"command" validate:"required"`
	Args           []string `yaml:"args"`
	Stage          string   `yaml:"stage" validate:"required,oneof=fast comprehensive"`
	TimeoutSeconds int      `yaml:"timeout_seconds" validate:"gte=0,lte=3600"`
	DependsOn      []string `yaml:"depends_on"`
	RetryPolicy    string   `yaml:"retry_policy" validate:"omitempty,oneof=none formatting-only"`
	Formatting     bool     `yaml:"formatting"`
}

// Definition converts the YAML entry to the scheduler's hook definition.
func (h HookSpec) Definition() hook.Definition {
	def := hook.Definition{
		Name:       h.Name,
		Command:    h.Command,
		Args:       h.Args,
		Stage:      hook.Stage(h.Stage),
		DependsOn:  h.DependsOn,
		Formatting: h.Formatting,
	}
	if h.TimeoutSeconds > 0 {
		def.Timeout = time.Duration(h.TimeoutSeconds) * time.Second
	}
	if h.RetryPolicy != "" {
		def.RetryPolicy = hook.RetryPolicy(h.RetryPolicy)
	}
	return def
}

// StrategySpec configures convergence and agent selection.
type StrategySpec struct {
	MaxIterations            int     `yaml:"max_iterations" validate:"gte=0,lte=50"`
	NoProgressLimit          int     `yaml:"no_progress_limit" validate:"gte=0,lte=20"`
	IterationTimeoutSeconds  int     `yaml:"iteration_timeout_seconds" validate:"gte=0,lte=7200"`
	MinConfidence            float64 `yaml:"min_confidence" validate:"gte=0,lte=1"`
	Workers                  int     `yaml:"workers" validate:"gte=0,lte=64"`
	HookRetryIntervalSeconds int     `yaml:"hook_retry_interval_seconds" validate:"gte=0,lte=600"`
}

// ConvergeConfig converts the strategy settings into the controller's config.
func (s StrategySpec) ConvergeConfig() converge.Config {
	return converge.Config{
		MaxIterations:    s.MaxIterations,
		NoProgressLimit:  s.NoProgressLimit,
		IterationTimeout: time.Duration(s.IterationTimeoutSeconds) * time.Second,
	}
}

// CoordinatorConfig converts the strategy settings into the coordinator's config.
func (s StrategySpec) CoordinatorConfig() agent.CoordinatorConfig {
	return agent.CoordinatorConfig{MinConfidence: s.MinConfidence}
}

// SchedulerConfig converts the strategy settings into the scheduler's config.
func (s StrategySpec) SchedulerConfig() hook.SchedulerConfig {
	return hook.SchedulerConfig{
		Workers:       s.Workers,
		RetryInterval: time.Duration(s.HookRetryIntervalSeconds) * time.Second,
	}
}

// CacheSpec configures decision cache persistence.
type CacheSpec struct {
	// Path is where the cache file lives. Empty disables persistence.
	Path string `yaml:"path"`

	// WatchDirs are directories whose file changes invalidate cached
	// decisions for the touched files.
	WatchDirs []string `yaml:"watch_dirs"`
}

// Config is the full tool configuration.
type Config struct {
	WorkDir  string       `yaml:"work_dir"`
	Hooks    []HookSpec   `yaml:"hooks" validate:"required,min=1,dive"`
	Strategy StrategySpec `yaml:"strategy"`
	Cache    CacheSpec    `yaml:"cache"`
}

// Definitions returns all hooks as scheduler definitions.
func (c *Config) Definitions() []hook.Definition {
	defs := make([]hook.Definition, 0, len(c.Hooks))
	for _, h := range c.Hooks {
		defs = append(defs, h.Definition())
	}
	return defs
}

// StageDefinitions returns the hooks for one stage.
func (c *Config) StageDefinitions(stage hook.Stage) []hook.Definition {
	return hook.FilterStage(c.Definitions(), stage)
}

// =============================================================================
// Validation
// =============================================================================

// Validate checks structural and semantic constraints.
//
// Description:
//
//	Runs tag validation, then the cross-hook checks the tag layer
//	cannot express: unique names, dependencies that exist, and
//	dependencies confined to the hook's own stage. Cycle detection is
//	left to the scheduler, which must perform it anyway.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	byName := make(map[string]HookSpec, len(c.Hooks))
	for _, h := range c.Hooks {
		if _, dup := byName[h.Name]; dup {
			return fmt.Errorf("%w: duplicate hook name %q", ErrInvalidConfig, h.Name)
		}
		byName[h.Name] = h
	}

	for _, h := range c.Hooks {
		for _, dep := range h.DependsOn {
			target, ok := byName[dep]
			if !ok {
				return fmt.Errorf("%w: hook %q depends on unknown hook %q", ErrInvalidConfig, h.Name, dep)
			}
			if target.Stage != h.Stage {
				return fmt.Errorf("%w: %q (%s) -> %q (%s)",
					ErrCrossStageDependency, h.Name, h.Stage, dep, target.Stage)
			}
		}
	}

	return nil
}
