// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/weftworks/weft/pkg/types"
	"github.com/weftworks/weft/pkg/workflow"
)

var runCmd = &cobra.Command{
	Use:   "run <workflow|file>",
	Short: "Execute a workflow",
	Long: `Execute a workflow by registered name or definition file path.

Inputs are passed as repeated --input key=value flags; values parse as
JSON where possible (numbers, booleans, arrays), otherwise as strings.

Examples:
  weft run deploy-pipeline --input env=staging --input replicas=3
  weft run ./pipelines/etl.workflow.yaml --input 'tables=["users","orders"]'`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var resumeCmd = &cobra.Command{
	Use:   "resume <workflow|file>",
	Short: "Resume a checkpointed run",
	Long: `Resume a previous run from its last checkpoint. Steps that already
completed are restored from the checkpoint and skipped.

Example:
  weft resume deploy-pipeline --run-id 4f8a2c`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)

	runCmd.Flags().StringArray("input", nil, "workflow input as key=value (repeatable)")
	runCmd.Flags().String("run-id", "", "explicit run ID (generated when empty)")
	runCmd.Flags().Bool("json", false, "print the full result as JSON")

	resumeCmd.Flags().StringArray("input", nil, "workflow input as key=value (repeatable)")
	resumeCmd.Flags().String("run-id", "", "run ID to resume (required)")
	resumeCmd.Flags().Bool("json", false, "print the full result as JSON")
	_ = resumeCmd.MarkFlagRequired("run-id")
}

func runRun(cmd *cobra.Command, args []string) error {
	runID, _ := cmd.Flags().GetString("run-id")
	return executeWorkflow(cmd, args[0], runID)
}

func runResume(cmd *cobra.Command, args []string) error {
	runID, _ := cmd.Flags().GetString("run-id")
	return executeWorkflow(cmd, args[0], runID)
}

func executeWorkflow(cmd *cobra.Command, ref, runID string) error {
	pairs, _ := cmd.Flags().GetStringArray("input")
	asJSON, _ := cmd.Flags().GetBool("json")

	inputs, err := parseInputs(pairs)
	if err != nil {
		return &exitError{code: exitInvalidDefinition, err: err}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, closeEngine, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeEngine()

	if err := loadDefinitions(eng, cfg.Definitions.Dir); err != nil {
		return &exitError{code: exitCodeFor(err), err: err}
	}

	def, err := resolveWorkflow(eng, ref)
	if err != nil {
		return &exitError{code: exitCodeFor(err), err: err}
	}
	if def.Execution.ParallelLimit == 0 {
		def.Execution.ParallelLimit = cfg.Execution.DefaultParallelLimit
	}

	result, err := eng.Executor().Execute(ctx, def, inputs, workflow.ExecuteOptions{RunID: runID})
	if err != nil {
		if ctx.Err() != nil {
			return &exitError{code: exitCancelled, err: err}
		}
		return &exitError{code: exitCodeFor(err), err: err}
	}

	if asJSON {
		if err := printJSON(result); err != nil {
			return err
		}
	} else {
		printRunSummary(def.Name, result)
	}

	switch result.Status {
	case types.RunSuccess, types.RunSkipped:
		return nil
	default:
		if wasCancelled(result) {
			return &exitError{code: exitCancelled}
		}
		return &exitError{code: exitRunFailed}
	}
}

func wasCancelled(result *types.WorkflowResult) bool {
	for _, sr := range result.StepResults {
		if sr.Error == workflow.ErrKindCancelled {
			return true
		}
	}
	return false
}

func printRunSummary(name string, result *types.WorkflowResult) {
	fmt.Printf("Workflow: %s\n", name)
	fmt.Printf("Run ID:   %s\n", result.RunID)
	fmt.Printf("Status:   %s\n", result.Status)
	fmt.Printf("Steps:    %d executed in %dms\n", result.StepsExecuted, result.DurationMS)

	for _, sr := range result.StepResults {
		mark := "✅"
		switch sr.Status {
		case types.StepFailed:
			mark = "❌"
		case types.StepSkipped:
			mark = "⏭️"
		}
		line := fmt.Sprintf("  %s %s (%dms", mark, sr.StepID, sr.DurationMS)
		if sr.Attempts > 1 {
			line += fmt.Sprintf(", %d attempts", sr.Attempts)
		}
		line += ")"
		if sr.ErrorDetail != "" {
			line += ": " + sr.ErrorDetail
		}
		fmt.Println(line)
	}

	if len(result.Outputs) > 0 {
		fmt.Println("Outputs:")
		for k, v := range result.Outputs {
			fmt.Printf("  %s: %v\n", k, v)
		}
	}
}
