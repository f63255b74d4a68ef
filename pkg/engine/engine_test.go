// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/llm/mock"
	"github.com/weftworks/weft/pkg/sensor"
	"github.com/weftworks/weft/pkg/types"
	"github.com/weftworks/weft/pkg/workflow"
)

func testEngine() *Engine {
	return New(Config{Router: mock.New("")})
}

func TestEngineRegisterAndGet(t *testing.T) {
	e := testEngine()

	require.NoError(t, e.RegisterAgent(&agent.Definition{
		Name:        "summarizer",
		Version:     "1.0.0",
		Role:        agent.RoleWorker,
		Description: "Summarizes text.",
	}))
	require.NoError(t, e.RegisterWorkflow(&workflow.Definition{
		Name:    "daily-digest",
		Version: "1.0.0",
		Steps: []workflow.Step{
			{ID: "collect", Action: workflow.ActionTransform, Inputs: map[string]any{"expression": "1"}},
		},
	}))

	a, err := e.GetAgent("summarizer")
	require.NoError(t, err)
	assert.Equal(t, "summarizer", a.Name)

	w, err := e.GetWorkflow("daily-digest")
	require.NoError(t, err)
	assert.Equal(t, "daily-digest", w.Name)

	_, err = e.GetAgent("nobody")
	assert.ErrorIs(t, err, agent.ErrNotFound)
}

func TestEngineInvokeAgent(t *testing.T) {
	e := testEngine()
	require.NoError(t, e.RegisterAgent(&agent.Definition{
		Name:        "echoer",
		Version:     "1.0.0",
		Role:        agent.RoleWorker,
		Description: "Echoes input.",
	}))

	result, err := e.InvokeAgent(context.Background(), "echoer", map[string]any{"text": "hi"}, agent.InvokeOptions{})
	require.NoError(t, err)
	assert.Contains(t, result.Output, "echo")
}

func TestEngineExecuteWorkflow(t *testing.T) {
	e := testEngine()
	require.NoError(t, e.RegisterWorkflow(&workflow.Definition{
		Name:    "math",
		Version: "1.0.0",
		Steps: []workflow.Step{
			{ID: "double", Action: workflow.ActionTransform, Inputs: map[string]any{"expression": "n * 2"}},
		},
	}))

	result, err := e.ExecuteWorkflow(context.Background(), "math", map[string]any{"n": 3}, workflow.ExecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, types.RunSuccess, result.Status)
	assert.Equal(t, int64(6), result.Outputs["result"])
}

func TestEnginePlanWorkflow(t *testing.T) {
	e := testEngine()
	require.NoError(t, e.RegisterWorkflow(&workflow.Definition{
		Name:    "two-step",
		Version: "1.0.0",
		Steps: []workflow.Step{
			{ID: "a", Action: workflow.ActionTransform},
			{ID: "b", Action: workflow.ActionTransform, DependsOn: []string{"a"}},
		},
	}))

	plan, err := e.PlanWorkflow("two-step")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, plan.ExecutionOrder)
}

func TestEngineSensorsDriveExecutor(t *testing.T) {
	e := testEngine()
	require.NoError(t, e.RegisterWorkflow(&workflow.Definition{
		Name:    "on-drop",
		Version: "1.0.0",
		Inputs: map[string]types.Parameter{
			"path": {Type: types.ParamString, Required: true},
		},
		Steps: []workflow.Step{
			{ID: "note", Action: workflow.ActionTransform, Inputs: map[string]any{"expression": "path"}},
		},
	}))
	require.NoError(t, e.Sensors().Register(&sensor.Definition{
		ID:   "drops",
		Type: sensor.TypeManual,
		Target: sensor.Target{
			Workflow:      "on-drop",
			InputBindings: map[string]string{"path": "event.path"},
		},
	}))

	fired, err := e.Sensors().Offer(context.Background(), "drops",
		sensor.NewEvent("test", map[string]any{"path": "/in.csv"}))
	require.NoError(t, err)
	assert.True(t, fired)
}

func TestEngineLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "helper.agent.yaml"), []byte(`
name: helper
version: 1.0.0
role: worker
description: Helps out.
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tidy.workflow.yaml"), []byte(`
name: tidy
version: 1.0.0
steps:
  - id: sweep
    action: run-command
    command: "true"
`), 0o644))

	e := testEngine()
	agents, workflows, err := e.LoadDirectory(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, agents)
	assert.Equal(t, 1, workflows)

	_, err = e.GetWorkflow("tidy")
	assert.NoError(t, err)
}

func TestEngineWithoutRouter(t *testing.T) {
	e := New(Config{})
	require.NoError(t, e.RegisterAgent(&agent.Definition{
		Name:        "stranded",
		Version:     "1.0.0",
		Role:        agent.RoleWorker,
		Description: "Cannot run without a router.",
	}))

	_, err := e.InvokeAgent(context.Background(), "stranded", nil, agent.InvokeOptions{})
	assert.Error(t, err)
}
