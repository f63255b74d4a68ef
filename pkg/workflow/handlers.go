// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package workflow

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/expr"
)

// waitPollInterval is how often a wait step re-evaluates its condition.
const waitPollInterval = 2 * time.Second

func (e *Executor) registerBuiltins() {
	e.dispatcher.Register(ActionInvokeAgent, e.handleInvokeAgent)
	e.dispatcher.Register(ActionRunCommand, e.handleRunCommand)
	e.dispatcher.Register(ActionValidate, e.handleValidate)
	e.dispatcher.Register(ActionTransform, e.handleTransform)
	e.dispatcher.Register(ActionConditional, e.handleConditional)
	e.dispatcher.Register(ActionParallelGroup, e.handleParallelGroup)
	e.dispatcher.Register(ActionWait, e.handleWait)
}

// handleInvokeAgent looks up the named agent and invokes it with the step's
// resolved inputs. The agent's parsed outputs become the step outputs.
func (e *Executor) handleInvokeAgent(ctx context.Context, req *ActionRequest) (map[string]any, error) {
	if e.agents == nil || e.runtime == nil {
		return nil, fmt.Errorf("executor has no agent runtime configured")
	}

	def, err := e.agents.Get(req.Step.Agent)
	if err != nil {
		return nil, err
	}

	result, err := e.runtime.Invoke(ctx, def, req.Inputs, agent.InvokeOptions{})
	if err != nil {
		return nil, err
	}
	return result.Output, nil
}

// handleRunCommand launches the step's command in a shell with the resolved
// inputs exported as environment variables.
func (e *Executor) handleRunCommand(ctx context.Context, req *ActionRequest) (map[string]any, error) {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", req.Step.Command)

	env := os.Environ()
	for k, v := range req.Inputs {
		env = append(env, fmt.Sprintf("%s=%s", envName(k), expr.Stringify(v)))
	}
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		exitCode := -1
		if ee, ok := err.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		}
		return nil, &CommandError{ExitCode: exitCode, Stderr: stderr.String()}
	}

	return map[string]any{
		"stdout":      stdout.String(),
		"stderr":      stderr.String(),
		"return_code": 0,
	}, nil
}

// envName rewrites an input name into environment-variable form.
func envName(k string) string {
	return strings.ToUpper(strings.ReplaceAll(k, "-", "_"))
}

// handleValidate checks the step's data against an optional JSON schema and
// an optional predicate expression. Both checks must pass.
func (e *Executor) handleValidate(ctx context.Context, req *ActionRequest) (map[string]any, error) {
	data := req.Inputs["data"]
	var failures []string

	if schema, ok := req.Inputs["schema"]; ok {
		result, err := gojsonschema.Validate(
			gojsonschema.NewGoLoader(schema),
			gojsonschema.NewGoLoader(data),
		)
		if err != nil {
			return nil, fmt.Errorf("schema validation failed to run: %w", err)
		}
		for _, desc := range result.Errors() {
			failures = append(failures, desc.String())
		}
	}

	if raw, ok := req.Inputs["expression"].(string); ok && raw != "" {
		evalCtx := req.ExprCtx
		if data != nil {
			evalCtx = withBinding(evalCtx, "data", data)
		}
		ok, err := expr.EvaluatePredicate(raw, evalCtx)
		if err != nil {
			return nil, err
		}
		if !ok {
			failures = append(failures, fmt.Sprintf("expression %q evaluated false", raw))
		}
	}

	if len(failures) > 0 {
		return nil, &CheckError{Errors: failures}
	}
	return map[string]any{"valid": true, "errors": []any{}}, nil
}

func withBinding(ctx map[string]any, name string, v any) map[string]any {
	out := make(map[string]any, len(ctx)+1)
	for k, val := range ctx {
		out[k] = val
	}
	out[name] = v
	return out
}

// handleTransform reshapes data. A template map passes through resolved; an
// expression evaluates to {result: value}; otherwise the data input echoes
// back wrapped.
func (e *Executor) handleTransform(ctx context.Context, req *ActionRequest) (map[string]any, error) {
	if tmpl, ok := req.Inputs["template"].(map[string]any); ok {
		return tmpl, nil
	}
	if raw, ok := req.Inputs["expression"].(string); ok && raw != "" {
		v, err := expr.Evaluate(raw, req.ExprCtx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"result": v}, nil
	}
	return map[string]any{"result": req.Inputs["data"]}, nil
}

// handleConditional evaluates the step's condition and runs the matching
// branch as a scoped sub-DAG. Branch step outputs merge into the step's
// outputs alongside the branch taken.
func (e *Executor) handleConditional(ctx context.Context, req *ActionRequest) (map[string]any, error) {
	cond, err := expr.EvaluatePredicate(req.Step.Condition, req.ExprCtx)
	if err != nil {
		return nil, err
	}

	branch := "then"
	steps := req.Step.Then
	if !cond {
		branch = "else"
		steps = req.Step.Else
	}

	outputs := map[string]any{
		"branch":           branch,
		"condition_result": cond,
	}

	subOutputs, err := e.runSubSequential(ctx, req.rc, steps)
	for id, out := range subOutputs {
		outputs[id] = out
	}
	if err != nil {
		return nil, err
	}
	return outputs, nil
}

// handleParallelGroup runs the group's sub-steps concurrently, bounded by
// the workflow's parallel limit, and collects outputs keyed by sub-step ID.
// Partial failure follows the workflow's continue_on_error setting.
func (e *Executor) handleParallelGroup(ctx context.Context, req *ActionRequest) (map[string]any, error) {
	rc := req.rc
	sem := semaphore.NewWeighted(int64(rc.def.Execution.ParallelLimit))

	var mu sync.Mutex
	results := make(map[string]any, len(req.Step.Steps))
	var errs []any

	var wg sync.WaitGroup
	for i := range req.Step.Steps {
		sub := &req.Step.Steps[i]
		wg.Add(1)
		go func(sub *Step) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Sprintf("%s: %v", sub.ID, err))
				mu.Unlock()
				return
			}
			defer sem.Release(1)

			out, err := e.runSubStep(ctx, rc, sub, nil)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", sub.ID, err))
				return
			}
			results[sub.ID] = out
		}(sub)
	}
	wg.Wait()

	outputs := map[string]any{"results": results, "errors": errs}
	if len(errs) > 0 && !rc.def.Execution.ContinueOnError {
		return nil, fmt.Errorf("parallel group: %d of %d sub-steps failed",
			len(errs), len(req.Step.Steps))
	}
	return outputs, nil
}

// handleWait sleeps for a fixed duration or polls a condition until truthy.
func (e *Executor) handleWait(ctx context.Context, req *ActionRequest) (map[string]any, error) {
	started := time.Now()

	if req.Step.DurationSeconds > 0 {
		select {
		case <-time.After(time.Duration(req.Step.DurationSeconds) * time.Second):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return map[string]any{
			"waited_seconds": int64(time.Since(started).Seconds()),
			"condition_met":  true,
		}, nil
	}

	// Poll the condition against live run state; other steps may satisfy
	// it while we wait.
	for {
		met, err := expr.EvaluatePredicate(req.Step.WaitCondition, req.rc.exprContext())
		if err != nil {
			return nil, err
		}
		if met {
			return map[string]any{
				"waited_seconds": int64(time.Since(started).Seconds()),
				"condition_met":  true,
			}, nil
		}

		select {
		case <-time.After(waitPollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// runSubSequential runs a branch's steps in declaration order. Sub-step
// outputs become visible to later sub-steps under their normalized IDs.
func (e *Executor) runSubSequential(ctx context.Context, rc *run, steps []Step) (map[string]any, error) {
	outputs := make(map[string]any, len(steps))
	local := make(map[string]map[string]any, len(steps))

	for i := range steps {
		sub := &steps[i]
		out, err := e.runSubStep(ctx, rc, sub, local)
		if err != nil {
			return outputs, fmt.Errorf("sub-step %s: %w", sub.ID, err)
		}
		if out != nil {
			outputs[sub.ID] = out
			local[sub.ID] = out
		}
	}
	return outputs, nil
}

// runSubStep applies the guard/resolve/retry envelope to one scoped
// sub-step. local carries sibling outputs already produced in this scope.
func (e *Executor) runSubStep(ctx context.Context, rc *run, sub *Step, local map[string]map[string]any) (map[string]any, error) {
	exprCtx := rc.exprContext()
	for id, out := range local {
		exprCtx[expr.NormalizeIdent(id)] = out
		if steps, ok := exprCtx["steps"].(map[string]any); ok {
			steps[id] = out
		}
	}

	// Conditional sub-steps keep their condition for branch selection.
	if sub.Condition != "" && sub.Action != ActionConditional {
		ok, err := expr.EvaluatePredicate(sub.Condition, exprCtx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return map[string]any{"skipped": true, "reason": "condition_false"}, nil
		}
	}

	resolved, err := expr.ResolveInputs(sub.Inputs, exprCtx)
	if err != nil {
		return nil, err
	}

	req := &ActionRequest{
		Step:    sub,
		Inputs:  resolved,
		State:   rc.snapshot(),
		ExprCtx: exprCtx,
		rc:      rc,
	}

	attempts := sub.MaxAttempts()
	var out map[string]any
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		out, lastErr = e.dispatchOnce(ctx, req)
		if lastErr == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return nil, lastErr
		}

		e.logger.Warn("sub-step attempt failed",
			zap.String("run_id", rc.id),
			zap.String("step", sub.ID),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)

		if attempt < attempts && sub.Retry != nil {
			select {
			case <-time.After(time.Duration(sub.Retry.DelaySeconds) * time.Second):
			case <-ctx.Done():
				return nil, lastErr
			}
		}
	}
	return nil, lastErr
}
