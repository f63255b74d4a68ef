// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package workflow

import (
	"github.com/google/uuid"

	"github.com/weftworks/weft/pkg/types"
)

// StepPlan describes how one step would execute.
type StepPlan struct {
	ID        string   `json:"id"`
	Action    Action   `json:"action"`
	Agent     string   `json:"agent,omitempty"`
	Command   string   `json:"command,omitempty"`
	DependsOn []string `json:"depends_on,omitempty"`
	Condition string   `json:"condition,omitempty"`
	Layer     int      `json:"layer"`
}

// ExecutionPlan is the dry-run output: the layer structure and per-step
// plan of a workflow, without executing any action.
type ExecutionPlan struct {
	WorkflowName   string        `json:"workflow_name"`
	Mode           ExecutionMode `json:"mode"`
	TotalSteps     int           `json:"total_steps"`
	ExecutionOrder []string      `json:"execution_order"`
	ParallelGroups [][]string    `json:"parallel_groups"`
	Steps          []StepPlan    `json:"per_step_plan"`
}

// Plan builds the execution plan for a workflow.
func Plan(def *Definition) (*ExecutionPlan, error) {
	def.ApplyDefaults()

	layers, err := BuildLayers(def.Steps)
	if err != nil {
		return nil, err
	}

	plan := &ExecutionPlan{
		WorkflowName:   def.Name,
		Mode:           def.Execution.Mode,
		TotalSteps:     len(def.Steps),
		ParallelGroups: layers,
	}

	layerOf := make(map[string]int, len(def.Steps))
	for li, layer := range layers {
		for _, id := range layer {
			layerOf[id] = li
			plan.ExecutionOrder = append(plan.ExecutionOrder, id)
		}
	}

	for i := range def.Steps {
		s := &def.Steps[i]
		plan.Steps = append(plan.Steps, StepPlan{
			ID:        s.ID,
			Action:    s.Action,
			Agent:     s.Agent,
			Command:   s.Command,
			DependsOn: s.DependsOn,
			Condition: s.Condition,
			Layer:     layerOf[s.ID],
		})
	}

	return plan, nil
}

// dryRun surfaces the plan through the normal result shape so callers get
// one return type either way.
func (e *Executor) dryRun(def *Definition, opts ExecuteOptions) (*types.WorkflowResult, error) {
	plan, err := Plan(def)
	if err != nil {
		return nil, err
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	return &types.WorkflowResult{
		RunID:  runID,
		Status: types.RunSkipped,
		Outputs: map[string]any{
			"dry_run": true,
			"plan":    plan,
		},
	}, nil
}
