// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/workflow"
)

func TestParseInputs(t *testing.T) {
	inputs, err := parseInputs([]string{
		"env=staging",
		"replicas=3",
		"force=true",
		`tables=["users","orders"]`,
		"note=just a string with = signs",
	})
	require.NoError(t, err)

	assert.Equal(t, "staging", inputs["env"])
	assert.Equal(t, float64(3), inputs["replicas"])
	assert.Equal(t, true, inputs["force"])
	assert.Equal(t, []any{"users", "orders"}, inputs["tables"])
	assert.Equal(t, "just a string with = signs", inputs["note"])
}

func TestParseInputsRejectsBarePair(t *testing.T) {
	_, err := parseInputs([]string{"no-equals-sign"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key=value")

	_, err = parseInputs([]string{"=value"})
	require.Error(t, err)
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"plain failure", errors.New("boom"), exitRunFailed},
		{"cycle", &workflow.CycleError{Path: []string{"a", "b", "a"}}, exitCycle},
		{"wrapped cycle", fmt.Errorf("plan: %w", &workflow.CycleError{Path: []string{"a", "a"}}), exitCycle},
		{"validation", &agent.ValidationError{Field: "name", Reason: "bad"}, exitInvalidDefinition},
		{"malformed file", fmt.Errorf("x.yaml: %w", workflow.ErrMalformed), exitInvalidDefinition},
		{"missing file", fmt.Errorf("x.yaml: %w", workflow.ErrFileNotFound), exitInvalidDefinition},
		{"unknown workflow", workflow.ErrNotFound, exitInvalidDefinition},
		{"unknown agent", agent.ErrNotFound, exitInvalidDefinition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCodeFor(tt.err))
		})
	}
}

func TestKeepWorst(t *testing.T) {
	val := &agent.ValidationError{Field: "steps", Reason: "empty"}
	cycle := &workflow.CycleError{Path: []string{"a", "a"}}

	assert.Equal(t, error(val), keepWorst(nil, val))
	assert.Equal(t, error(cycle), keepWorst(val, cycle))
	assert.Equal(t, error(cycle), keepWorst(cycle, val))
}

func TestIsDefinitionFile(t *testing.T) {
	assert.True(t, isDefinitionFile("etl.workflow.yaml"))
	assert.True(t, isDefinitionFile("./a/b/c.JSON"))
	assert.False(t, isDefinitionFile("deploy-pipeline"))
}
