// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/weftworks/weft/pkg/workflow"
)

var validateCmd = &cobra.Command{
	Use:   "validate <path>...",
	Short: "Validate definition files",
	Long: `Validate agent and workflow definition files without executing
anything. Directories are scanned recursively for *.agent.yaml and
*.workflow.yaml (and .json) files.

Examples:
  weft validate ./pipelines/etl.workflow.yaml
  weft validate ./definitions/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	var failures int
	var worst error

	for _, path := range args {
		info, err := os.Stat(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ %s: %v\n", path, err)
			failures++
			worst = keepWorst(worst, workflow.ErrFileNotFound)
			continue
		}

		files := []string{path}
		if info.IsDir() {
			workflows, agents, err := workflow.DiscoverFiles(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "❌ %s: %v\n", path, err)
				failures++
				worst = keepWorst(worst, err)
				continue
			}
			files = append(agents, workflows...)
			if len(files) == 0 {
				fmt.Printf("⚠️  %s: no definition files found\n", path)
				continue
			}
		}

		for _, file := range files {
			if err := validateDefinitionFile(file); err != nil {
				fmt.Fprintf(os.Stderr, "❌ %s: %v\n", file, err)
				failures++
				worst = keepWorst(worst, err)
				continue
			}
			fmt.Printf("✅ %s\n", file)
		}
	}

	if failures > 0 {
		return &exitError{
			code: exitCodeFor(worst),
			err:  fmt.Errorf("%d definition(s) failed validation", failures),
		}
	}
	return nil
}

// validateDefinitionFile loads a single file through the matching loader.
// Agent files are recognized by suffix; everything else is treated as a
// workflow definition.
func validateDefinitionFile(path string) error {
	if workflow.IsAgentFile(path) {
		_, err := workflow.LoadAgentFile(path)
		return err
	}
	_, err := workflow.LoadFile(path)
	return err
}

// keepWorst keeps the error that maps to the most specific exit code, so a
// batch with a cycle among plain validation failures still exits 3.
func keepWorst(current, candidate error) error {
	if current == nil {
		return candidate
	}
	if exitCodeFor(candidate) > exitCodeFor(current) {
		return candidate
	}
	return current
}
