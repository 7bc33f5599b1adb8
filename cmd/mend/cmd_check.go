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
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/mend/services/autofix/issue"
)

var checkStage string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the configured hooks and report issues without fixing",
	RunE:  runCheckCommand,
}

func init() {
	checkCmd.Flags().StringVar(&checkStage, "stage", "fast", "hook stage to run: fast or comprehensive")
}

func runCheckCommand(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer logger.Close()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	stage, err := parseStage(checkStage)
	if err != nil {
		return err
	}

	collector, err := newCollector(cfg, stage, logger.Slog())
	if err != nil {
		return err
	}

	issues, err := collector.Collect(cmd.Context())
	if err != nil {
		return fmt.Errorf("running hooks: %w", err)
	}

	printIssues(issues)
	if len(issues) > 0 {
		os.Exit(2)
	}
	return nil
}

// printIssues renders issues grouped by file.
func printIssues(issues []issue.Issue) {
	if len(issues) == 0 {
		fmt.Println("No issues found.")
		return
	}

	byFile := issue.CountByFile(issues)
	files := make([]string, 0, len(byFile))
	for file := range byFile {
		files = append(files, file)
	}
	sort.Strings(files)

	fmt.Printf("Found %d issues in %d files:\n\n", len(issues), len(files))
	for _, is := range issues {
		fmt.Printf("  %s:%d [%s/%s] %s (%s)\n",
			is.FilePath, is.LineNumber, is.Type, is.Severity, is.Message, is.Tool)
	}
}
