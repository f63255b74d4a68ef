// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/checkpoint"
	"github.com/weftworks/weft/pkg/llm/mock"
	"github.com/weftworks/weft/pkg/types"
)

func transformStep(id, expression string, deps ...string) Step {
	return Step{
		ID:        id,
		Action:    ActionTransform,
		Inputs:    map[string]any{"expression": expression},
		DependsOn: deps,
	}
}

func definitionOf(mode ExecutionMode, steps ...Step) *Definition {
	return &Definition{
		Name:      "under-test",
		Version:   "1.0.0",
		Steps:     steps,
		Execution: ExecutionConfig{Mode: mode},
	}
}

func stepResult(t *testing.T, result *types.WorkflowResult, id string) *types.StepResult {
	t.Helper()
	for i := range result.StepResults {
		if result.StepResults[i].StepID == id {
			return &result.StepResults[i]
		}
	}
	t.Fatalf("no result recorded for step %q", id)
	return nil
}

func TestExecuteSequentialChain(t *testing.T) {
	def := definitionOf(ModeSequential,
		transformStep("square", "input_n ** 2"),
		transformStep("add-one", "square.result + 1", "square"),
	)

	e := NewExecutor(ExecutorConfig{})
	result, err := e.Execute(context.Background(), def, map[string]any{"input_n": 4}, ExecuteOptions{})
	require.NoError(t, err)

	assert.Equal(t, types.RunSuccess, result.Status)
	assert.Equal(t, 2, result.StepsExecuted)
	assert.NotEmpty(t, result.RunID)

	assert.Equal(t, int64(16), stepResult(t, result, "square").Outputs["result"])
	assert.Equal(t, int64(17), stepResult(t, result, "add-one").Outputs["result"])
	assert.Equal(t, int64(17), result.Outputs["result"])
}

func TestExecuteConditionSkip(t *testing.T) {
	def := definitionOf(ModeSequential,
		Step{
			ID:     "check",
			Action: ActionTransform,
			Inputs: map[string]any{"template": map[string]any{"ready": false}},
		},
		Step{
			ID:        "deploy",
			Action:    ActionTransform,
			Inputs:    map[string]any{"expression": "1"},
			Condition: "steps['check'].ready",
			DependsOn: []string{"check"},
		},
	)

	e := NewExecutor(ExecutorConfig{})
	result, err := e.Execute(context.Background(), def, nil, ExecuteOptions{})
	require.NoError(t, err)

	assert.Equal(t, types.RunSuccess, result.Status)
	assert.Equal(t, 1, result.StepsExecuted)

	skipped := stepResult(t, result, "deploy")
	assert.Equal(t, types.StepSkipped, skipped.Status)
	assert.Equal(t, "condition_false", skipped.Outputs["reason"])
}

func TestExecuteDependencyFailedPropagates(t *testing.T) {
	off := false
	def := definitionOf(ModeDependencyAware,
		Step{ID: "boom", Action: ActionRunCommand, Command: "exit 3"},
		transformStep("solo", "1 + 1"),
		transformStep("after", "2", "boom"),
	)
	def.Execution.FailFast = &off

	e := NewExecutor(ExecutorConfig{})
	result, err := e.Execute(context.Background(), def, nil, ExecuteOptions{})
	require.NoError(t, err)

	assert.Equal(t, types.RunPartial, result.Status)
	assert.Equal(t, 2, result.StepsExecuted)

	boom := stepResult(t, result, "boom")
	assert.Equal(t, types.StepFailed, boom.Status)
	assert.Equal(t, ErrKindHandler, boom.Error)
	assert.Contains(t, boom.ErrorDetail, "3")

	after := stepResult(t, result, "after")
	assert.Equal(t, types.StepFailed, after.Status)
	assert.Equal(t, ErrKindDependencyFailed, after.Error)
	assert.Contains(t, after.ErrorDetail, "boom")

	assert.Equal(t, types.StepSuccess, stepResult(t, result, "solo").Status)
}

func TestExecuteFailFastStopsRun(t *testing.T) {
	def := definitionOf(ModeSequential,
		Step{ID: "boom", Action: ActionRunCommand, Command: "exit 1"},
		transformStep("never", "1"),
	)

	e := NewExecutor(ExecutorConfig{})
	result, err := e.Execute(context.Background(), def, nil, ExecuteOptions{})
	require.NoError(t, err)

	assert.Equal(t, types.RunFailed, result.Status)
	require.Len(t, result.StepResults, 1)
	assert.Equal(t, "boom", result.StepResults[0].StepID)
}

func TestExecuteFailFastMarksDownstreamDependencyFailed(t *testing.T) {
	// init succeeds; x fails while its sibling y succeeds; finalize depends
	// on both. With fail-fast the run aborts after that layer, but finalize
	// must still settle as dependency_failed rather than vanish from the
	// results.
	def := definitionOf(ModeDependencyAware,
		transformStep("init", "1"),
		Step{ID: "x", Action: ActionRunCommand, Command: "exit 2", DependsOn: []string{"init"}},
		transformStep("y", "2", "init"),
		transformStep("finalize", "3", "x", "y"),
		transformStep("report", "4", "finalize"),
	)

	e := NewExecutor(ExecutorConfig{})
	result, err := e.Execute(context.Background(), def, nil, ExecuteOptions{})
	require.NoError(t, err)

	assert.Equal(t, types.RunPartial, result.Status)
	assert.Equal(t, types.StepSuccess, stepResult(t, result, "init").Status)
	assert.Equal(t, types.StepFailed, stepResult(t, result, "x").Status)
	assert.Equal(t, types.StepSuccess, stepResult(t, result, "y").Status)

	finalize := stepResult(t, result, "finalize")
	assert.Equal(t, types.StepFailed, finalize.Status)
	assert.Equal(t, ErrKindDependencyFailed, finalize.Error)
	assert.Contains(t, finalize.ErrorDetail, "x")

	// The chain extends transitively through finalize.
	report := stepResult(t, result, "report")
	assert.Equal(t, types.StepFailed, report.Status)
	assert.Equal(t, ErrKindDependencyFailed, report.Error)
}

func TestExecuteExpressionError(t *testing.T) {
	def := definitionOf(ModeSequential, transformStep("bad", "no_such_var + 1"))

	e := NewExecutor(ExecutorConfig{})
	result, err := e.Execute(context.Background(), def, nil, ExecuteOptions{})
	require.NoError(t, err)

	assert.Equal(t, types.RunFailed, result.Status)
	assert.Equal(t, ErrKindExpression, stepResult(t, result, "bad").Error)
}

func TestExecuteRetrySucceedsEventually(t *testing.T) {
	var calls atomic.Int32
	e := NewExecutor(ExecutorConfig{})
	e.Dispatcher().Register("flaky", func(ctx context.Context, req *ActionRequest) (map[string]any, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("transient")
		}
		return map[string]any{"ok": true}, nil
	})

	def := definitionOf(ModeSequential, Step{
		ID:     "shaky",
		Action: "flaky",
		Retry:  &RetryPolicy{MaxAttempts: 3, DelaySeconds: 1},
	})

	result, err := e.Execute(context.Background(), def, nil, ExecuteOptions{})
	require.NoError(t, err)

	assert.Equal(t, types.RunSuccess, result.Status)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, stepResult(t, result, "shaky").Attempts)
}

func TestExecuteRetryExhausted(t *testing.T) {
	var calls atomic.Int32
	e := NewExecutor(ExecutorConfig{})
	e.Dispatcher().Register("broken", func(ctx context.Context, req *ActionRequest) (map[string]any, error) {
		calls.Add(1)
		return nil, errors.New("still broken")
	})

	def := definitionOf(ModeSequential, Step{
		ID:     "doomed",
		Action: "broken",
		Retry:  &RetryPolicy{MaxAttempts: 2, DelaySeconds: 1},
	})

	result, err := e.Execute(context.Background(), def, nil, ExecuteOptions{})
	require.NoError(t, err)

	assert.Equal(t, types.RunFailed, result.Status)
	assert.Equal(t, int32(2), calls.Load())

	doomed := stepResult(t, result, "doomed")
	assert.Equal(t, ErrKindHandler, doomed.Error)
	assert.Contains(t, doomed.ErrorDetail, "still broken")
}

func TestExecuteCancellation(t *testing.T) {
	def := definitionOf(ModeSequential, Step{
		ID:              "stall",
		Action:          ActionWait,
		DurationSeconds: 30,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	e := NewExecutor(ExecutorConfig{})
	result, err := e.Execute(ctx, def, nil, ExecuteOptions{})
	require.NoError(t, err)

	assert.Equal(t, types.RunFailed, result.Status)
	assert.Equal(t, ErrKindCancelled, stepResult(t, result, "stall").Error)
}

func TestExecuteParallelRespectsLimit(t *testing.T) {
	var active, peak atomic.Int32
	e := NewExecutor(ExecutorConfig{})
	e.Dispatcher().Register("probe", func(ctx context.Context, req *ActionRequest) (map[string]any, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		active.Add(-1)
		return map[string]any{"done": true}, nil
	})

	steps := make([]Step, 6)
	for i, id := range []string{"p1", "p2", "p3", "p4", "p5", "p6"} {
		steps[i] = Step{ID: id, Action: "probe"}
	}
	def := definitionOf(ModeParallel, steps...)
	def.Execution.ParallelLimit = 2

	result, err := e.Execute(context.Background(), def, nil, ExecuteOptions{})
	require.NoError(t, err)

	assert.Equal(t, types.RunSuccess, result.Status)
	assert.Equal(t, 6, result.StepsExecuted)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestExecuteParallelHonorsDependencies(t *testing.T) {
	var mu sync.Mutex
	var order []string

	e := NewExecutor(ExecutorConfig{})
	e.Dispatcher().Register("trace", func(ctx context.Context, req *ActionRequest) (map[string]any, error) {
		mu.Lock()
		order = append(order, req.Step.ID)
		mu.Unlock()
		return map[string]any{}, nil
	})

	def := definitionOf(ModeParallel,
		Step{ID: "first", Action: "trace"},
		Step{ID: "second", Action: "trace", DependsOn: []string{"first"}},
		Step{ID: "third", Action: "trace", DependsOn: []string{"second"}},
	)

	result, err := e.Execute(context.Background(), def, nil, ExecuteOptions{})
	require.NoError(t, err)

	assert.Equal(t, types.RunSuccess, result.Status)
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestExecuteResumeSkipsCompletedSteps(t *testing.T) {
	var oneCalls, twoCalls atomic.Int32
	var failFirst atomic.Bool
	failFirst.Store(true)

	e := NewExecutor(ExecutorConfig{Checkpoints: checkpoint.NewMemoryStore()})
	e.Dispatcher().Register("count-one", func(ctx context.Context, req *ActionRequest) (map[string]any, error) {
		return map[string]any{"n": oneCalls.Add(1)}, nil
	})
	e.Dispatcher().Register("fail-once", func(ctx context.Context, req *ActionRequest) (map[string]any, error) {
		twoCalls.Add(1)
		if failFirst.Swap(false) {
			return nil, errors.New("first run fails")
		}
		return map[string]any{"ok": true}, nil
	})

	def := definitionOf(ModeSequential,
		Step{ID: "one", Action: "count-one"},
		Step{ID: "two", Action: "fail-once", DependsOn: []string{"one"}},
	)

	first, err := e.Execute(context.Background(), def, nil, ExecuteOptions{RunID: "run-1"})
	require.NoError(t, err)
	assert.Equal(t, types.RunPartial, first.Status)

	second, err := e.Execute(context.Background(), def, nil, ExecuteOptions{RunID: "run-1"})
	require.NoError(t, err)
	assert.Equal(t, types.RunSuccess, second.Status)

	// Step one ran only in the first execution; the resume skipped it.
	assert.Equal(t, int32(1), oneCalls.Load())
	assert.Equal(t, int32(2), twoCalls.Load())
	assert.Equal(t, 1, second.StepsExecuted)
}

func TestExecuteRequiredInputMissing(t *testing.T) {
	def := definitionOf(ModeSequential, transformStep("s", "1"))
	def.Inputs = map[string]types.Parameter{
		"source": {Type: types.ParamString, Required: true},
	}

	e := NewExecutor(ExecutorConfig{})
	_, err := e.Execute(context.Background(), def, nil, ExecuteOptions{})
	require.Error(t, err)

	var ve *agent.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestExecuteInputDefaultApplied(t *testing.T) {
	def := definitionOf(ModeSequential, transformStep("double", "factor * 2"))
	def.Inputs = map[string]types.Parameter{
		"factor": {Type: types.ParamNumber, Default: 21},
	}

	e := NewExecutor(ExecutorConfig{})
	result, err := e.Execute(context.Background(), def, nil, ExecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(42), stepResult(t, result, "double").Outputs["result"])
}

func TestExecuteDeclaredOutputsFilterMerge(t *testing.T) {
	def := definitionOf(ModeSequential,
		Step{ID: "a", Action: ActionTransform, Inputs: map[string]any{"template": map[string]any{"keep": 1, "drop": 2}}},
	)
	def.Outputs = map[string]types.Parameter{"keep": {Type: types.ParamNumber}}

	e := NewExecutor(ExecutorConfig{})
	result, err := e.Execute(context.Background(), def, nil, ExecuteOptions{})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"keep": 1}, result.Outputs)
}

func TestExecuteInvokeAgentThroughMockProvider(t *testing.T) {
	agents := agent.NewRegistry()
	require.NoError(t, agents.Register(&agent.Definition{
		Name:        "echoer",
		Version:     "1.0.0",
		Role:        agent.RoleWorker,
		Description: "Echoes its input back.",
	}))

	provider := mock.New("")
	runtime := agent.NewRuntime(agent.RuntimeConfig{Router: provider})

	e := NewExecutor(ExecutorConfig{Agents: agents, Runtime: runtime})
	def := definitionOf(ModeSequential, Step{
		ID:     "ask",
		Action: ActionInvokeAgent,
		Agent:  "echoer",
		Inputs: map[string]any{"text": "hello"},
	})

	result, err := e.Execute(context.Background(), def, nil, ExecuteOptions{})
	require.NoError(t, err)

	assert.Equal(t, types.RunSuccess, result.Status)
	ask := stepResult(t, result, "ask")
	assert.Equal(t, types.StepSuccess, ask.Status)
	assert.Contains(t, ask.Outputs, "echo")
	require.Len(t, provider.Calls(), 1)
}

func TestExecuteInvokeAgentUnknownAgent(t *testing.T) {
	runtime := agent.NewRuntime(agent.RuntimeConfig{Router: mock.New("")})
	e := NewExecutor(ExecutorConfig{Agents: agent.NewRegistry(), Runtime: runtime})

	def := definitionOf(ModeSequential, Step{
		ID:     "ask",
		Action: ActionInvokeAgent,
		Agent:  "ghost",
	})

	result, err := e.Execute(context.Background(), def, nil, ExecuteOptions{})
	require.NoError(t, err)

	assert.Equal(t, types.RunFailed, result.Status)
	assert.Equal(t, ErrKindHandler, stepResult(t, result, "ask").Error)
}

func TestExecuteDryRun(t *testing.T) {
	def := definitionOf(ModeDependencyAware,
		transformStep("a", "1"),
		transformStep("b", "2", "a"),
	)

	e := NewExecutor(ExecutorConfig{})
	result, err := e.Execute(context.Background(), def, nil, ExecuteOptions{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, types.RunSkipped, result.Status)
	assert.Equal(t, 0, result.StepsExecuted)
	assert.Equal(t, true, result.Outputs["dry_run"])

	plan, ok := result.Outputs["plan"].(*ExecutionPlan)
	require.True(t, ok)
	assert.Equal(t, 2, plan.TotalSteps)
	assert.Equal(t, []string{"a", "b"}, plan.ExecutionOrder)
}
