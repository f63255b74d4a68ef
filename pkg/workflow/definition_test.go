// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package workflow

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/agent"
)

func validDefinition() *Definition {
	return &Definition{
		Name:    "data-pipeline",
		Version: "1.0.0",
		Steps: []Step{
			{ID: "fetch", Action: ActionRunCommand, Command: "true"},
			{ID: "shape", Action: ActionTransform, DependsOn: []string{"fetch"}},
		},
	}
}

func TestDefinitionValidateAccepts(t *testing.T) {
	require.NoError(t, validDefinition().Validate())
}

func TestDefinitionAcceptsSingleLetterStepIDs(t *testing.T) {
	def := &Definition{
		Name:    "tiny-chain",
		Version: "1.0.0",
		Steps: []Step{
			{ID: "a", Action: ActionRunCommand, Command: "true"},
			{ID: "b", Action: ActionRunCommand, Command: "true", DependsOn: []string{"a"}},
			{ID: "c", Action: ActionRunCommand, Command: "true", DependsOn: []string{"b"}},
		},
	}
	require.NoError(t, def.Validate())
}

func TestStepIDRules(t *testing.T) {
	defWithStepID := func(id string) *Definition {
		return &Definition{
			Name:    "data-pipeline",
			Version: "1.0.0",
			Steps:   []Step{{ID: id, Action: ActionRunCommand, Command: "true"}},
		}
	}

	for _, id := range []string{"a", "fetch", "step-2"} {
		assert.NoError(t, defWithStepID(id).Validate(), id)
	}
	for _, id := range []string{"", "2fast", "Fetch", "fetch_data", strings.Repeat("a", 65)} {
		assert.Error(t, defWithStepID(id).Validate(), id)
	}
}

func TestDefinitionValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Definition)
		field  string
	}{
		{
			name:   "bad name",
			mutate: func(d *Definition) { d.Name = "Data Pipeline" },
			field:  "name",
		},
		{
			name:   "bad version",
			mutate: func(d *Definition) { d.Version = "1.0" },
			field:  "version",
		},
		{
			name:   "no steps",
			mutate: func(d *Definition) { d.Steps = nil },
			field:  "steps",
		},
		{
			name:   "unknown mode",
			mutate: func(d *Definition) { d.Execution.Mode = "eventually" },
			field:  "execution.mode",
		},
		{
			name:   "parallel limit too high",
			mutate: func(d *Definition) { d.Execution.ParallelLimit = 64 },
			field:  "execution.parallel_limit",
		},
		{
			name:   "workflow timeout too low",
			mutate: func(d *Definition) { d.Execution.TimeoutSeconds = 30 },
			field:  "execution.timeout_seconds",
		},
		{
			name:   "unknown action",
			mutate: func(d *Definition) { d.Steps[0].Action = "teleport" },
			field:  "steps.fetch.action",
		},
		{
			name:   "duplicate step id",
			mutate: func(d *Definition) { d.Steps[1].ID = "fetch" },
			field:  "steps.fetch",
		},
		{
			name:   "invoke-agent without agent",
			mutate: func(d *Definition) { d.Steps[0] = Step{ID: "fetch", Action: ActionInvokeAgent} },
			field:  "steps.fetch.agent",
		},
		{
			name:   "run-command without command",
			mutate: func(d *Definition) { d.Steps[0].Command = "" },
			field:  "steps.fetch.command",
		},
		{
			name:   "agent on a transform step",
			mutate: func(d *Definition) { d.Steps[1].Agent = "summarizer" },
			field:  "steps.shape.agent",
		},
		{
			name:   "command on a transform step",
			mutate: func(d *Definition) { d.Steps[1].Command = "true" },
			field:  "steps.shape.command",
		},
		{
			name:   "retry attempts out of range",
			mutate: func(d *Definition) { d.Steps[0].Retry = &RetryPolicy{MaxAttempts: 11, DelaySeconds: 1} },
			field:  "steps.fetch.retry.max_attempts",
		},
		{
			name:   "retry delay below minimum",
			mutate: func(d *Definition) { d.Steps[0].Retry = &RetryPolicy{MaxAttempts: 2} },
			field:  "steps.fetch.retry.delay_seconds",
		},
		{
			name:   "step timeout below minimum",
			mutate: func(d *Definition) { d.Steps[0].TimeoutSeconds = 5 },
			field:  "steps.fetch.timeout_seconds",
		},
		{
			name:   "self dependency",
			mutate: func(d *Definition) { d.Steps[0].DependsOn = []string{"fetch"} },
			field:  "steps.fetch.depends_on",
		},
		{
			name:   "unknown dependency",
			mutate: func(d *Definition) { d.Steps[1].DependsOn = []string{"missing"} },
			field:  "steps.shape.depends_on",
		},
		{
			name: "conditional without branches",
			mutate: func(d *Definition) {
				d.Steps[1] = Step{ID: "shape", Action: ActionConditional, Condition: "true"}
			},
			field: "steps.shape",
		},
		{
			name: "wait without duration or condition",
			mutate: func(d *Definition) {
				d.Steps[1] = Step{ID: "shape", Action: ActionWait}
			},
			field: "steps.shape",
		},
		{
			name: "parallel-group sub-step with depends_on",
			mutate: func(d *Definition) {
				d.Steps[1] = Step{
					ID:     "shape",
					Action: ActionParallelGroup,
					Steps: []Step{
						{ID: "left", Action: ActionTransform},
						{ID: "right", Action: ActionTransform, DependsOn: []string{"left"}},
					},
				}
			},
			field: "steps.right.depends_on",
		},
		{
			name: "sub-step shadows outer step id",
			mutate: func(d *Definition) {
				d.Steps[1] = Step{
					ID:     "shape",
					Action: ActionParallelGroup,
					Steps:  []Step{{ID: "fetch", Action: ActionTransform}},
				}
			},
			field: "steps.fetch",
		},
		{
			name: "outer depends_on cannot name a sub-step",
			mutate: func(d *Definition) {
				d.Steps[1] = Step{
					ID:        "shape",
					Action:    ActionConditional,
					Condition: "true",
					Then:      []Step{{ID: "inner", Action: ActionTransform}},
				}
				d.Steps = append(d.Steps, Step{
					ID:        "after",
					Action:    ActionTransform,
					DependsOn: []string{"inner"},
				})
			},
			field: "steps.after.depends_on",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDefinition()
			tt.mutate(def)
			err := def.Validate()
			require.Error(t, err)

			var ve *agent.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestDefinitionApplyDefaults(t *testing.T) {
	def := validDefinition()
	def.ApplyDefaults()

	assert.Equal(t, ModeDependencyAware, def.Execution.Mode)
	assert.Equal(t, DefaultParallelLimit, def.Execution.ParallelLimit)
	assert.True(t, def.Execution.FailFastEnabled())
	assert.False(t, def.Execution.ContinueOnError)
}

func TestStepMaxAttempts(t *testing.T) {
	s := Step{ID: "x", Action: ActionTransform}
	assert.Equal(t, 1, s.MaxAttempts())

	s.Retry = &RetryPolicy{MaxAttempts: 3, DelaySeconds: 1}
	assert.Equal(t, 3, s.MaxAttempts())
}

func TestFailFastExplicitFalse(t *testing.T) {
	off := false
	c := ExecutionConfig{FailFast: &off}
	assert.False(t, c.FailFastEnabled())
}
