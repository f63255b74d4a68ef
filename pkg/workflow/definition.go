// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package workflow implements declarative DAG workflows: definitions, layer
// planning, action handlers, and the executor that drives a run.
package workflow

import (
	"fmt"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/types"
)

// Action names the seven step handler kinds.
type Action string

const (
	ActionInvokeAgent   Action = "invoke-agent"
	ActionRunCommand    Action = "run-command"
	ActionValidate      Action = "validate"
	ActionTransform     Action = "transform"
	ActionConditional   Action = "conditional"
	ActionParallelGroup Action = "parallel-group"
	ActionWait          Action = "wait"
)

var validActions = map[Action]bool{
	ActionInvokeAgent:   true,
	ActionRunCommand:    true,
	ActionValidate:      true,
	ActionTransform:     true,
	ActionConditional:   true,
	ActionParallelGroup: true,
	ActionWait:          true,
}

// ExecutionMode selects how the executor schedules steps.
type ExecutionMode string

const (
	// ModeSequential runs steps one at a time in declaration order.
	ModeSequential ExecutionMode = "sequential"

	// ModeParallel runs every step as soon as its dependencies settle,
	// bounded only by the parallel limit.
	ModeParallel ExecutionMode = "parallel"

	// ModeDependencyAware runs layer by layer; layers act as barriers.
	ModeDependencyAware ExecutionMode = "dependency-aware"
)

// Execution defaults.
const (
	DefaultParallelLimit = 4
	MaxParallelLimit     = 32
)

// RetryPolicy bounds per-step retry behavior.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts (1-10, default 1)
	MaxAttempts int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`

	// DelaySeconds is the pause between attempts (minimum 1)
	DelaySeconds int `json:"delay_seconds,omitempty" yaml:"delay_seconds,omitempty"`
}

// Step is one node of a workflow DAG.
type Step struct {
	ID     string `json:"id" yaml:"id"`
	Action Action `json:"action" yaml:"action"`

	// Agent names the agent for invoke-agent steps
	Agent string `json:"agent,omitempty" yaml:"agent,omitempty"`

	// Command is the shell command for run-command steps
	Command string `json:"command,omitempty" yaml:"command,omitempty"`

	// Inputs are handler arguments; string values are template expressions
	Inputs map[string]any `json:"inputs,omitempty" yaml:"inputs,omitempty"`

	// Outputs documents what the step produces; not enforced
	Outputs map[string]types.Parameter `json:"outputs,omitempty" yaml:"outputs,omitempty"`

	// Condition is a predicate; false skips the step
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`

	// DependsOn lists step IDs that must complete first
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`

	Retry          *RetryPolicy `json:"retry,omitempty" yaml:"retry,omitempty"`
	TimeoutSeconds int          `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`

	// Steps are the children of a parallel-group
	Steps []Step `json:"steps,omitempty" yaml:"steps,omitempty"`

	// Then and Else are the branches of a conditional
	Then []Step `json:"then,omitempty" yaml:"then,omitempty"`
	Else []Step `json:"else,omitempty" yaml:"else,omitempty"`

	// DurationSeconds and WaitCondition configure wait steps
	DurationSeconds int    `json:"duration_seconds,omitempty" yaml:"duration_seconds,omitempty"`
	WaitCondition   string `json:"wait_condition,omitempty" yaml:"wait_condition,omitempty"`
}

// MaxAttempts returns the retry budget, defaulting to a single attempt.
func (s *Step) MaxAttempts() int {
	if s.Retry == nil || s.Retry.MaxAttempts < 1 {
		return 1
	}
	return s.Retry.MaxAttempts
}

// ExecutionConfig controls scheduling for a whole workflow.
type ExecutionConfig struct {
	Mode            ExecutionMode `json:"mode,omitempty" yaml:"mode,omitempty"`
	ParallelLimit   int           `json:"parallel_limit,omitempty" yaml:"parallel_limit,omitempty"`
	ContinueOnError bool          `json:"continue_on_error,omitempty" yaml:"continue_on_error,omitempty"`
	FailFast        *bool         `json:"fail_fast,omitempty" yaml:"fail_fast,omitempty"`
	TimeoutSeconds  int           `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	DryRun          bool          `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
}

// FailFastEnabled reports the fail_fast setting, defaulting to true.
func (c *ExecutionConfig) FailFastEnabled() bool {
	if c.FailFast == nil {
		return true
	}
	return *c.FailFast
}

// Triggers declares what may start a workflow. Consumed by the sensor
// kernel; the executor ignores them.
type Triggers struct {
	Manual   bool     `json:"manual,omitempty" yaml:"manual,omitempty"`
	Schedule string   `json:"schedule,omitempty" yaml:"schedule,omitempty"`
	OnChange []string `json:"on_change,omitempty" yaml:"on_change,omitempty"`
	OnEvent  []string `json:"on_event,omitempty" yaml:"on_event,omitempty"`
}

// Definition is a declarative DAG of steps.
type Definition struct {
	Name      string                     `json:"name" yaml:"name"`
	Version   string                     `json:"version" yaml:"version"`
	Inputs    map[string]types.Parameter `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs   map[string]types.Parameter `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Steps     []Step                     `json:"steps" yaml:"steps"`
	Execution ExecutionConfig            `json:"execution,omitempty" yaml:"execution,omitempty"`
	Triggers  Triggers                   `json:"triggers,omitempty" yaml:"triggers,omitempty"`
}

// ApplyDefaults fills zero-valued execution settings in place.
func (d *Definition) ApplyDefaults() {
	if d.Execution.Mode == "" {
		d.Execution.Mode = ModeDependencyAware
	}
	if d.Execution.ParallelLimit == 0 {
		d.Execution.ParallelLimit = DefaultParallelLimit
	}
}

// Step returns the top-level step with the given ID, or nil.
func (d *Definition) Step(id string) *Step {
	for i := range d.Steps {
		if d.Steps[i].ID == id {
			return &d.Steps[i]
		}
	}
	return nil
}

// Validate checks a definition against the registration rules, including
// per-step structural invariants and dependency references. Cycle detection
// happens separately at layer-build time.
func (d *Definition) Validate() error {
	if !agent.ValidName(d.Name) {
		return &agent.ValidationError{Field: "name", Reason: "must match ^[a-z][a-z0-9-]*$ and be 2-64 characters"}
	}
	if !agent.ValidSemver(d.Version) {
		return &agent.ValidationError{Field: "version", Reason: "must be a MAJOR.MINOR.PATCH semantic version"}
	}
	if len(d.Steps) == 0 {
		return &agent.ValidationError{Field: "steps", Reason: "workflow must declare at least one step"}
	}

	e := d.Execution
	if e.Mode != "" && e.Mode != ModeSequential && e.Mode != ModeParallel && e.Mode != ModeDependencyAware {
		return &agent.ValidationError{Field: "execution.mode", Reason: fmt.Sprintf("unknown mode %q", e.Mode)}
	}
	if e.ParallelLimit < 0 || e.ParallelLimit > MaxParallelLimit {
		return &agent.ValidationError{Field: "execution.parallel_limit", Reason: "must be in [1, 32]"}
	}
	if e.TimeoutSeconds != 0 && (e.TimeoutSeconds < 60 || e.TimeoutSeconds > 86400) {
		return &agent.ValidationError{Field: "execution.timeout_seconds", Reason: "must be in [60, 86400]"}
	}

	ids := make(map[string]bool, len(d.Steps))
	for i := range d.Steps {
		if err := validateStep(&d.Steps[i], ids); err != nil {
			return err
		}
	}

	// depends_on may only name top-level steps; sub-step IDs are scoped
	// inside their parents.
	for i := range d.Steps {
		step := &d.Steps[i]
		for _, dep := range step.DependsOn {
			if dep == step.ID {
				return &agent.ValidationError{
					Field:  "steps." + step.ID + ".depends_on",
					Reason: "step cannot depend on itself",
				}
			}
			if topLevel := d.Step(dep); topLevel == nil {
				return &agent.ValidationError{
					Field:  "steps." + step.ID + ".depends_on",
					Reason: fmt.Sprintf("unknown step %q", dep),
				}
			}
		}
	}

	return nil
}

// validateStep checks one step and, recursively, its children. The ids map
// accumulates every ID seen so far, including scoped sub-step IDs, so no ID
// repeats anywhere in the workflow.
func validateStep(s *Step, ids map[string]bool) error {
	if !agent.ValidStepID(s.ID) {
		return &agent.ValidationError{Field: "steps", Reason: fmt.Sprintf("invalid step id %q", s.ID)}
	}
	if ids[s.ID] {
		return &agent.ValidationError{Field: "steps." + s.ID, Reason: "duplicate step id"}
	}
	ids[s.ID] = true

	field := "steps." + s.ID
	if !validActions[s.Action] {
		return &agent.ValidationError{Field: field + ".action", Reason: fmt.Sprintf("unknown action %q", s.Action)}
	}

	switch s.Action {
	case ActionInvokeAgent:
		if s.Agent == "" {
			return &agent.ValidationError{Field: field + ".agent", Reason: "invoke-agent requires an agent name"}
		}
	case ActionRunCommand:
		if s.Command == "" {
			return &agent.ValidationError{Field: field + ".command", Reason: "run-command requires a command"}
		}
	case ActionParallelGroup:
		if len(s.Steps) == 0 {
			return &agent.ValidationError{Field: field + ".steps", Reason: "parallel-group requires sub-steps"}
		}
	case ActionConditional:
		if s.Condition == "" {
			return &agent.ValidationError{Field: field + ".condition", Reason: "conditional requires a condition"}
		}
		if len(s.Then) == 0 && len(s.Else) == 0 {
			return &agent.ValidationError{Field: field, Reason: "conditional requires a then or else branch"}
		}
	case ActionWait:
		if s.DurationSeconds <= 0 && s.WaitCondition == "" {
			return &agent.ValidationError{Field: field, Reason: "wait requires duration_seconds or wait_condition"}
		}
	}

	// Action-specific fields are mutually exclusive.
	if s.Action != ActionInvokeAgent && s.Agent != "" {
		return &agent.ValidationError{Field: field + ".agent", Reason: fmt.Sprintf("agent is not valid for action %q", s.Action)}
	}
	if s.Action != ActionRunCommand && s.Command != "" {
		return &agent.ValidationError{Field: field + ".command", Reason: fmt.Sprintf("command is not valid for action %q", s.Action)}
	}
	if s.Action != ActionParallelGroup && len(s.Steps) > 0 {
		return &agent.ValidationError{Field: field + ".steps", Reason: fmt.Sprintf("steps is not valid for action %q", s.Action)}
	}
	if s.Action != ActionConditional && (len(s.Then) > 0 || len(s.Else) > 0) {
		return &agent.ValidationError{Field: field, Reason: fmt.Sprintf("then/else is not valid for action %q", s.Action)}
	}
	if s.Action != ActionWait && (s.DurationSeconds > 0 || s.WaitCondition != "") {
		return &agent.ValidationError{Field: field, Reason: fmt.Sprintf("wait settings are not valid for action %q", s.Action)}
	}

	if s.Retry != nil {
		if s.Retry.MaxAttempts < 1 || s.Retry.MaxAttempts > 10 {
			return &agent.ValidationError{Field: field + ".retry.max_attempts", Reason: "must be in [1, 10]"}
		}
		if s.Retry.DelaySeconds < 1 {
			return &agent.ValidationError{Field: field + ".retry.delay_seconds", Reason: "must be at least 1"}
		}
	}
	if s.TimeoutSeconds != 0 && s.TimeoutSeconds < 10 {
		return &agent.ValidationError{Field: field + ".timeout_seconds", Reason: "must be at least 10"}
	}

	// Sub-steps are validated recursively with their IDs scoped into the
	// same namespace so they cannot shadow outer steps.
	children := make([]Step, 0, len(s.Steps)+len(s.Then)+len(s.Else))
	children = append(children, s.Steps...)
	children = append(children, s.Then...)
	children = append(children, s.Else...)
	for i := range children {
		child := &children[i]
		if len(child.DependsOn) > 0 && s.Action == ActionParallelGroup {
			return &agent.ValidationError{
				Field:  "steps." + child.ID + ".depends_on",
				Reason: "parallel-group sub-steps cannot declare dependencies",
			}
		}
		if err := validateStep(child, ids); err != nil {
			return err
		}
	}

	return nil
}
