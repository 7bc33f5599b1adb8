// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads and validates a configuration file.
//
// Inputs:
//
//	path - Path to the YAML file.
//
// Outputs:
//
//	*Config - The validated configuration.
//	error - Non-nil on read, parse, or validation failure. Unknown
//	YAML keys are errors: a typo in a hook field should fail loudly,
//	not silently run the hook with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses and validates configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration suitable for a Go project with the
// standard toolchain installed. Used when no config file exists.
func Default() *Config {
	return &Config{
		Hooks: []HookSpec{
			{
				Name:           "gofmt",
				Command:        "gofmt",
				Args:           []string{"-l", "."},
				Stage:          "fast",
				TimeoutSeconds: 30,
				RetryPolicy:    "formatting-only",
				Formatting:     true,
			},
			{
				Name:           "govet",
				Command:        "go",
				Args:           []string{"vet", "./..."},
				Stage:          "fast",
				TimeoutSeconds: 120,
				DependsOn:      []string{"gofmt"},
			},
			{
				Name:           "golangci-lint",
				Command:        "golangci-lint",
				Args:           []string{"run", "--output.json.path", "stdout"},
				Stage:          "comprehensive",
				TimeoutSeconds: 300,
			},
		},
		Strategy: StrategySpec{
			MaxIterations:           10,
			NoProgressLimit:         3,
			IterationTimeoutSeconds: 600,
			MinConfidence:           0.7,
			Workers:                 4,
		},
	}
}
