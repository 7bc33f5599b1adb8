// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command mend runs static-analysis hooks over a project, routes
// their findings to fix agents, and iterates until the tree is clean
// or progress stalls.
//
// Usage:
//
//	mend check --stage fast
//	mend run --stage comprehensive --config mend.yaml
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/mend/pkg/logging"
	"github.com/AleutianAI/mend/services/autofix/config"
)

var (
	flagConfig   string
	flagLogLevel string
	flagJSONLogs bool
	flagQuiet    bool
)

var rootCmd = &cobra.Command{
	Use:           "mend",
	Short:         "Issue-driven autofix for project trees",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "mend.yaml", "path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&flagJSONLogs, "json-logs", false, "emit logs as JSON")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress log output")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(runCmd)
}

// loadConfig reads the config file, falling back to built-in defaults
// when the default path does not exist and no explicit path was given.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if _, err := os.Stat(flagConfig); os.IsNotExist(err) && !cmd.Flags().Changed("config") {
		return config.Default(), nil
	}
	return config.Load(flagConfig)
}

// newLogger builds the process logger from the persistent flags.
func newLogger() *logging.Logger {
	level := logging.LevelInfo
	switch flagLogLevel {
	case "debug":
		level = logging.LevelDebug
	case "warn":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	}

	return logging.New(logging.Config{
		Level:   level,
		Service: "mend",
		JSON:    flagJSONLogs,
		Quiet:   flagQuiet,
	})
}
