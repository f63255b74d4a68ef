// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/weftworks/weft/pkg/workflow"
)

var planCmd = &cobra.Command{
	Use:   "plan <workflow|file>",
	Short: "Show the execution plan without running anything",
	Long: `Resolve a workflow's dependency graph and print the planned
execution order, layer by layer. No action is dispatched.

Examples:
  weft plan deploy-pipeline
  weft plan ./pipelines/etl.workflow.yaml --json`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.Flags().Bool("json", false, "print the plan as JSON")
}

func runPlan(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	eng, closeEngine, err := buildEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeEngine()

	if err := loadDefinitions(eng, cfg.Definitions.Dir); err != nil {
		return &exitError{code: exitCodeFor(err), err: err}
	}

	def, err := resolveWorkflow(eng, args[0])
	if err != nil {
		return &exitError{code: exitCodeFor(err), err: err}
	}

	plan, err := workflow.Plan(def)
	if err != nil {
		return &exitError{code: exitCodeFor(err), err: err}
	}

	if asJSON {
		return printJSON(plan)
	}

	fmt.Printf("Workflow: %s (%s mode, %d steps)\n", plan.WorkflowName, plan.Mode, plan.TotalSteps)
	for i, group := range plan.ParallelGroups {
		fmt.Printf("  Layer %d: %s\n", i+1, strings.Join(group, ", "))
	}
	for _, sp := range plan.Steps {
		line := fmt.Sprintf("  %s [%s]", sp.ID, sp.Action)
		if len(sp.DependsOn) > 0 {
			line += " after " + strings.Join(sp.DependsOn, ", ")
		}
		if sp.Condition != "" {
			line += fmt.Sprintf(" when (%s)", sp.Condition)
		}
		fmt.Println(line)
	}
	return nil
}
