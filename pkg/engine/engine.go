// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package engine assembles the orchestration core behind one facade: the
// registries, the LLM router, the agent runtime, the workflow executor,
// and the sensor kernel. Callers (the CLI, an HTTP layer) talk to Engine
// instead of wiring the packages themselves.
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/checkpoint"
	"github.com/weftworks/weft/pkg/sensor"
	"github.com/weftworks/weft/pkg/types"
	"github.com/weftworks/weft/pkg/workflow"
)

// Config wires an engine.
type Config struct {
	// Router dispatches agent completion requests (required for agent
	// invocation; workflows without invoke-agent steps run without it)
	Router agent.Router

	// DefaultModel backs agents that name no model
	DefaultModel string

	// Checkpoints persists run progress (optional)
	Checkpoints checkpoint.Store

	// Progress receives step lifecycle events (optional)
	Progress types.ProgressCallback

	// Alert receives sensor alert notifications (optional)
	Alert sensor.AlertFunc

	// Logger for engine events (default: no-op)
	Logger *zap.Logger
}

// Engine is the programmatic API surface of the orchestration core.
type Engine struct {
	agents    *agent.Registry
	workflows *workflow.Registry
	runtime   *agent.Runtime
	executor  *workflow.Executor
	sensors   *sensor.Kernel
	logger    *zap.Logger
}

// New assembles an engine.
func New(config Config) *Engine {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	agents := agent.NewRegistry()
	workflows := workflow.NewRegistry()

	var runtime *agent.Runtime
	if config.Router != nil {
		runtime = agent.NewRuntime(agent.RuntimeConfig{
			Router:       config.Router,
			DefaultModel: config.DefaultModel,
			Logger:       config.Logger.Named("agent"),
		})
	}

	executor := workflow.NewExecutor(workflow.ExecutorConfig{
		Agents:      agents,
		Runtime:     runtime,
		Checkpoints: config.Checkpoints,
		Progress:    config.Progress,
		Logger:      config.Logger.Named("executor"),
	})

	sensors := sensor.NewKernel(sensor.KernelConfig{
		Workflows: workflows,
		Runner:    executor,
		Alert:     config.Alert,
		Logger:    config.Logger.Named("sensor"),
	})

	return &Engine{
		agents:    agents,
		workflows: workflows,
		runtime:   runtime,
		executor:  executor,
		sensors:   sensors,
		logger:    config.Logger,
	}
}

// RegisterAgent validates and stores an agent definition.
func (e *Engine) RegisterAgent(def *agent.Definition) error {
	return e.agents.Register(def)
}

// RegisterWorkflow validates and stores a workflow definition.
func (e *Engine) RegisterWorkflow(def *workflow.Definition) error {
	return e.workflows.Register(def)
}

// GetAgent returns the newest version of the named agent.
func (e *Engine) GetAgent(name string) (*agent.Definition, error) {
	return e.agents.Get(name)
}

// GetWorkflow returns the newest version of the named workflow.
func (e *Engine) GetWorkflow(name string) (*workflow.Definition, error) {
	return e.workflows.Get(name)
}

// InvokeAgent runs one agent call.
func (e *Engine) InvokeAgent(ctx context.Context, name string, inputs map[string]any, opts agent.InvokeOptions) (*types.AgentResult, error) {
	if e.runtime == nil {
		return nil, fmt.Errorf("no LLM router configured")
	}
	def, err := e.agents.Get(name)
	if err != nil {
		return nil, err
	}
	return e.runtime.Invoke(ctx, def, inputs, opts)
}

// ExecuteWorkflow runs the named workflow to completion.
func (e *Engine) ExecuteWorkflow(ctx context.Context, name string, inputs map[string]any, opts workflow.ExecuteOptions) (*types.WorkflowResult, error) {
	def, err := e.workflows.Get(name)
	if err != nil {
		return nil, err
	}
	return e.executor.Execute(ctx, def, inputs, opts)
}

// PlanWorkflow builds the dry-run execution plan for the named workflow.
func (e *Engine) PlanWorkflow(name string) (*workflow.ExecutionPlan, error) {
	def, err := e.workflows.Get(name)
	if err != nil {
		return nil, err
	}
	return workflow.Plan(def)
}

// LoadDirectory discovers <name>.agent.* and <name>.workflow.* files under
// dir and registers everything found. It returns how many definitions of
// each kind were registered.
func (e *Engine) LoadDirectory(dir string) (agentCount, workflowCount int, err error) {
	workflowFiles, agentFiles, err := workflow.DiscoverFiles(dir)
	if err != nil {
		return 0, 0, err
	}

	// Agents first so workflows can reference them.
	for _, path := range agentFiles {
		def, err := workflow.LoadAgentFile(path)
		if err != nil {
			return agentCount, workflowCount, fmt.Errorf("%s: %w", path, err)
		}
		if err := e.agents.Register(def); err != nil {
			return agentCount, workflowCount, fmt.Errorf("%s: %w", path, err)
		}
		agentCount++
	}
	for _, path := range workflowFiles {
		def, err := workflow.LoadFile(path)
		if err != nil {
			return agentCount, workflowCount, fmt.Errorf("%s: %w", path, err)
		}
		if err := e.workflows.Register(def); err != nil {
			return agentCount, workflowCount, fmt.Errorf("%s: %w", path, err)
		}
		workflowCount++
	}

	e.logger.Info("definitions loaded",
		zap.String("dir", dir),
		zap.Int("agents", agentCount),
		zap.Int("workflows", workflowCount),
	)
	return agentCount, workflowCount, nil
}

// Agents exposes the agent registry.
func (e *Engine) Agents() *agent.Registry {
	return e.agents
}

// Workflows exposes the workflow registry.
func (e *Engine) Workflows() *workflow.Registry {
	return e.workflows
}

// Executor exposes the workflow executor, e.g. to register custom action
// handlers.
func (e *Engine) Executor() *workflow.Executor {
	return e.executor
}

// Sensors exposes the sensor kernel.
func (e *Engine) Sensors() *sensor.Kernel {
	return e.sensors
}
