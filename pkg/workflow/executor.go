// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/checkpoint"
	"github.com/weftworks/weft/pkg/expr"
	"github.com/weftworks/weft/pkg/types"
)

// ExecutorConfig wires an executor's collaborators.
type ExecutorConfig struct {
	// Agents resolves invoke-agent steps (required for that action)
	Agents *agent.Registry

	// Runtime performs agent invocations (required for invoke-agent)
	Runtime *agent.Runtime

	// Checkpoints persists run state after steps settle (optional)
	Checkpoints checkpoint.Store

	// Logger for run events (default: no-op)
	Logger *zap.Logger

	// Progress receives step lifecycle events (optional)
	Progress types.ProgressCallback
}

// Executor drives workflow runs: it plans layers, schedules steps under a
// concurrency cap, applies per-step guard/retry envelopes, merges outputs
// into run state, and checkpoints progress.
type Executor struct {
	agents      *agent.Registry
	runtime     *agent.Runtime
	checkpoints checkpoint.Store
	dispatcher  *Dispatcher
	logger      *zap.Logger
	progress    types.ProgressCallback

	// serialized guards agents with parallel_allowed=false
	serialized sync.Map // agent name -> *sync.Mutex
}

// ExecuteOptions adjust a single run.
type ExecuteOptions struct {
	// RunID resumes (or names) a run; generated when empty
	RunID string

	// DryRun plans the workflow without dispatching any action
	DryRun bool
}

// NewExecutor creates an executor with the seven built-in action handlers
// registered.
func NewExecutor(config ExecutorConfig) *Executor {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	e := &Executor{
		agents:      config.Agents,
		runtime:     config.Runtime,
		checkpoints: config.Checkpoints,
		dispatcher:  NewDispatcher(),
		logger:      config.Logger,
		progress:    config.Progress,
	}
	e.registerBuiltins()
	return e
}

// Dispatcher exposes the action registry so callers can add handlers.
func (e *Executor) Dispatcher() *Dispatcher {
	return e.dispatcher
}

// run carries the mutable state of one execution.
type run struct {
	def   *Definition
	id    string
	state types.State
	sem   *semaphore.Weighted

	mu       sync.Mutex
	results  map[string]*types.StepResult
	order    []string
	executed int
	aborted  bool
}

// Execute runs a workflow to completion and returns its result. The
// returned error is non-nil only for pre-run failures (bad inputs, cycle,
// resume errors); step failures are reported through the result status.
func (e *Executor) Execute(ctx context.Context, def *Definition, inputs map[string]any, opts ExecuteOptions) (*types.WorkflowResult, error) {
	def.ApplyDefaults()

	if opts.DryRun || def.Execution.DryRun {
		return e.dryRun(def, opts)
	}

	state, err := buildInitialState(def, inputs)
	if err != nil {
		return nil, err
	}

	runID := opts.RunID
	resumed := map[string]bool{}
	if runID == "" {
		runID = uuid.NewString()
	} else if e.checkpoints != nil {
		rec, err := e.checkpoints.LoadLatest(ctx, runID)
		if err != nil && !errors.Is(err, checkpoint.ErrNoCheckpoint) {
			return nil, fmt.Errorf("failed to load checkpoint: %w", err)
		}
		if rec != nil {
			state = rec.State
			for i := range def.Steps {
				if _, ok := state[def.Steps[i].ID]; ok {
					resumed[def.Steps[i].ID] = true
				}
			}
			e.logger.Info("resuming run from checkpoint",
				zap.String("run_id", runID),
				zap.String("last_step", rec.StepID),
				zap.Int("completed_steps", len(resumed)),
			)
		}
	}

	layers, err := BuildLayers(def.Steps)
	if err != nil {
		return nil, err
	}

	if def.Execution.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(def.Execution.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	rc := &run{
		def:     def,
		id:      runID,
		state:   state,
		sem:     semaphore.NewWeighted(int64(def.Execution.ParallelLimit)),
		results: make(map[string]*types.StepResult),
	}

	e.emit(rc, "", "run started")
	started := time.Now()

	switch def.Execution.Mode {
	case ModeSequential:
		e.runSequential(ctx, rc, resumed)
	case ModeParallel:
		e.runParallel(ctx, rc, resumed)
	default:
		e.runLayered(ctx, rc, layers, resumed)
	}

	result := rc.finalize(time.Since(started))
	e.emit(rc, "", "run finished: "+string(result.Status))
	e.logger.Info("workflow run finished",
		zap.String("run_id", runID),
		zap.String("workflow", def.Name),
		zap.String("status", string(result.Status)),
		zap.Int("steps_executed", result.StepsExecuted),
		zap.Int64("duration_ms", result.DurationMS),
	)
	return result, nil
}

// buildInitialState validates caller inputs against the declared parameters
// and seeds run state with them, applying declared defaults.
func buildInitialState(def *Definition, inputs map[string]any) (types.State, error) {
	state := make(types.State, len(inputs)+len(def.Steps))
	for k, v := range inputs {
		state[k] = v
	}
	for name, p := range def.Inputs {
		if _, ok := state[name]; ok {
			continue
		}
		if p.Default != nil {
			state[name] = p.Default
			continue
		}
		if p.Required {
			return nil, &agent.ValidationError{Field: name, Reason: "required workflow input missing"}
		}
	}
	return state, nil
}

// runLayered executes dependency-aware mode: layers are barriers, steps in
// one layer run concurrently under the parallel limit.
func (e *Executor) runLayered(ctx context.Context, rc *run, layers [][]string, resumed map[string]bool) {
	failFast := rc.def.Execution.FailFastEnabled() && !rc.def.Execution.ContinueOnError

	for _, layer := range layers {
		var wg sync.WaitGroup
		for _, id := range layer {
			if resumed[id] || rc.settled(id) {
				continue
			}
			step := rc.def.Step(id)
			if failedDep := rc.failedDependency(step); failedDep != "" {
				rc.record(depFailedResult(step.ID, failedDep))
				continue
			}

			wg.Add(1)
			go func(step *Step) {
				defer wg.Done()
				if err := rc.sem.Acquire(ctx, 1); err != nil {
					rc.record(cancelledResult(step.ID))
					return
				}
				defer rc.sem.Release(1)
				e.runStep(ctx, rc, step)
			}(step)
		}
		wg.Wait()

		e.saveCheckpoint(ctx, rc)

		if failFast && rc.anyFailed() {
			rc.abort()
			return
		}
	}
}

// runSequential executes steps one at a time in declaration order.
func (e *Executor) runSequential(ctx context.Context, rc *run, resumed map[string]bool) {
	failFast := rc.def.Execution.FailFastEnabled() && !rc.def.Execution.ContinueOnError

	for i := range rc.def.Steps {
		step := &rc.def.Steps[i]
		if resumed[step.ID] {
			continue
		}
		if failedDep := rc.failedDependency(step); failedDep != "" {
			rc.record(depFailedResult(step.ID, failedDep))
			continue
		}

		e.runStep(ctx, rc, step)
		e.saveCheckpoint(ctx, rc)

		if failFast && rc.anyFailed() {
			rc.abort()
			return
		}
	}
}

// runParallel executes every step as soon as its dependencies settle,
// bounded only by the parallel limit. Dependency edges still order steps;
// layer boundaries do not.
func (e *Executor) runParallel(ctx context.Context, rc *run, resumed map[string]bool) {
	failFast := rc.def.Execution.FailFastEnabled() && !rc.def.Execution.ContinueOnError

	done := make(map[string]chan struct{}, len(rc.def.Steps))
	for i := range rc.def.Steps {
		done[rc.def.Steps[i].ID] = make(chan struct{})
	}

	var abort atomic.Bool
	var wg sync.WaitGroup

	for i := range rc.def.Steps {
		step := &rc.def.Steps[i]
		wg.Add(1)
		go func(step *Step) {
			defer wg.Done()
			defer close(done[step.ID])

			if resumed[step.ID] {
				return
			}

			for _, dep := range step.DependsOn {
				select {
				case <-done[dep]:
				case <-ctx.Done():
					rc.record(cancelledResult(step.ID))
					return
				}
			}

			if failedDep := rc.failedDependency(step); failedDep != "" {
				rc.record(depFailedResult(step.ID, failedDep))
				return
			}
			if abort.Load() {
				return
			}

			if err := rc.sem.Acquire(ctx, 1); err != nil {
				rc.record(cancelledResult(step.ID))
				return
			}
			e.runStep(ctx, rc, step)
			rc.sem.Release(1)

			e.saveCheckpoint(ctx, rc)

			if failFast && rc.failed(step.ID) {
				abort.Store(true)
			}
		}(step)
	}
	wg.Wait()

	if abort.Load() {
		rc.abort()
	}
}

// runStep applies the full per-step envelope: condition guard, input
// resolution, retry with timeout, and result recording.
func (e *Executor) runStep(ctx context.Context, rc *run, step *Step) {
	started := time.Now()
	e.emit(rc, step.ID, "step started")

	exprCtx := rc.exprContext()

	// Condition guard. Conditional steps are exempt: their condition picks
	// the then/else branch inside the handler instead of gating the step.
	if step.Condition != "" && step.Action != ActionConditional {
		ok, err := expr.EvaluatePredicate(step.Condition, exprCtx)
		if err != nil {
			rc.record(failedResult(step.ID, ErrKindExpression, err, time.Since(started), 0))
			return
		}
		if !ok {
			rc.record(&types.StepResult{
				StepID:     step.ID,
				Status:     types.StepSkipped,
				Outputs:    map[string]any{"skipped": true, "reason": "condition_false"},
				DurationMS: time.Since(started).Milliseconds(),
			})
			rc.merge(step.ID, map[string]any{"skipped": true, "reason": "condition_false"})
			e.emit(rc, step.ID, "step skipped")
			return
		}
	}

	// Input resolution.
	resolved, err := expr.ResolveInputs(step.Inputs, exprCtx)
	if err != nil {
		rc.record(failedResult(step.ID, ErrKindExpression, err, time.Since(started), 0))
		return
	}

	req := &ActionRequest{
		Step:    step,
		Inputs:  resolved,
		State:   rc.snapshot(),
		ExprCtx: exprCtx,
		rc:      rc,
	}

	rc.mu.Lock()
	rc.executed++
	rc.mu.Unlock()

	// Retry envelope.
	attempts := step.MaxAttempts()
	var outputs map[string]any
	var lastErr error
	attempt := 0
	for attempt = 1; attempt <= attempts; attempt++ {
		outputs, lastErr = e.dispatchOnce(ctx, req)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			break
		}

		e.logger.Warn("step attempt failed",
			zap.String("run_id", rc.id),
			zap.String("step", step.ID),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(lastErr),
		)

		if attempt < attempts && step.Retry != nil {
			select {
			case <-time.After(time.Duration(step.Retry.DelaySeconds) * time.Second):
			case <-ctx.Done():
			}
		}
	}
	if attempt > attempts {
		attempt = attempts
	}

	if lastErr != nil {
		rc.record(failedResult(step.ID, kindOf(ctx, lastErr), lastErr, time.Since(started), attempt))
		e.emit(rc, step.ID, "step failed")
		return
	}

	rc.record(&types.StepResult{
		StepID:     step.ID,
		Status:     types.StepSuccess,
		Outputs:    outputs,
		DurationMS: time.Since(started).Milliseconds(),
		Attempts:   attempt,
	})
	rc.merge(step.ID, outputs)
	e.emit(rc, step.ID, "step succeeded")
}

// dispatchOnce runs the handler under the step timeout and, for serialized
// agents, the per-agent mutex.
func (e *Executor) dispatchOnce(ctx context.Context, req *ActionRequest) (map[string]any, error) {
	if req.Step.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.Step.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	if unlock := e.lockSerializedAgent(req.Step); unlock != nil {
		defer unlock()
	}

	return e.dispatcher.Dispatch(ctx, req)
}

// lockSerializedAgent takes the per-agent mutex when the step invokes an
// agent with parallel_allowed=false. It returns nil when no lock is needed.
func (e *Executor) lockSerializedAgent(step *Step) func() {
	if step.Action != ActionInvokeAgent || e.agents == nil {
		return nil
	}
	def, err := e.agents.Get(step.Agent)
	if err != nil || def.ParallelAllowed() {
		return nil
	}

	v, _ := e.serialized.LoadOrStore(def.Name, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (e *Executor) saveCheckpoint(ctx context.Context, rc *run) {
	if e.checkpoints == nil {
		return
	}

	rc.mu.Lock()
	lastStep := ""
	for _, id := range rc.order {
		if rc.results[id].Status == types.StepSuccess {
			lastStep = id
		}
	}
	snapshot := rc.state.Clone()
	rc.mu.Unlock()

	if lastStep == "" {
		return
	}

	// Checkpoint writes use a fresh context so a cancelled run still
	// records what it finished.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if _, err := e.checkpoints.Save(saveCtx, rc.id, lastStep, snapshot); err != nil {
		e.logger.Error("checkpoint write failed",
			zap.String("run_id", rc.id),
			zap.Error(err),
		)
	}
}

func (e *Executor) emit(rc *run, stepID, message string) {
	if e.progress == nil {
		return
	}
	e.progress(types.ProgressEvent{
		RunID:     rc.id,
		StepID:    stepID,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// ----------------------------------------------------------------------------
// run state helpers
// ----------------------------------------------------------------------------

func (rc *run) exprContext() map[string]any {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	inputs := make(map[string]any)
	steps := make(map[string]map[string]any)
	for k, v := range rc.state {
		if m, ok := v.(map[string]any); ok && rc.isStep(k) {
			steps[k] = m
			continue
		}
		inputs[k] = v
	}
	return expr.BuildContext(inputs, steps)
}

func (rc *run) isStep(id string) bool {
	return rc.def.Step(id) != nil
}

func (rc *run) snapshot() types.State {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.state.Clone()
}

func (rc *run) merge(stepID string, outputs map[string]any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.state[stepID] = outputs
}

func (rc *run) record(res *types.StepResult) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if _, ok := rc.results[res.StepID]; ok {
		return
	}
	rc.results[res.StepID] = res
	rc.order = append(rc.order, res.StepID)
}

// abort stops the run and records dependency_failed results for every step
// that never executed but depends, transitively, on a failed step. Steps
// with no failed ancestry are simply left unrun.
func (rc *run) abort() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.aborted = true

	for changed := true; changed; {
		changed = false
		for i := range rc.def.Steps {
			step := &rc.def.Steps[i]
			if _, ok := rc.results[step.ID]; ok {
				continue
			}
			for _, dep := range step.DependsOn {
				if res, ok := rc.results[dep]; ok && res.Status == types.StepFailed {
					rc.results[step.ID] = depFailedResult(step.ID, dep)
					rc.order = append(rc.order, step.ID)
					changed = true
					break
				}
			}
		}
	}
}

func (rc *run) settled(id string) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	_, ok := rc.results[id]
	return ok
}

func (rc *run) failed(id string) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	res, ok := rc.results[id]
	return ok && res.Status == types.StepFailed
}

func (rc *run) anyFailed() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for _, res := range rc.results {
		if res.Status == types.StepFailed {
			return true
		}
	}
	return false
}

// failedDependency returns the ID of a failed dependency, or "".
func (rc *run) failedDependency(step *Step) string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for _, dep := range step.DependsOn {
		if res, ok := rc.results[dep]; ok && res.Status == types.StepFailed {
			return dep
		}
	}
	return ""
}

// finalize determines run status and assembles the workflow result.
func (rc *run) finalize(elapsed time.Duration) *types.WorkflowResult {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	var succeeded, failed int
	stepResults := make([]types.StepResult, 0, len(rc.order))
	for _, id := range rc.order {
		res := rc.results[id]
		stepResults = append(stepResults, *res)
		switch res.Status {
		case types.StepSuccess:
			succeeded++
		case types.StepFailed:
			failed++
		}
	}

	var status types.RunStatus
	switch {
	case failed > 0 && succeeded > 0:
		status = types.RunPartial
	case failed > 0:
		status = types.RunFailed
	case rc.executed == 0:
		status = types.RunSkipped
	default:
		status = types.RunSuccess
	}

	return &types.WorkflowResult{
		RunID:         rc.id,
		Status:        status,
		Outputs:       rc.mergedOutputs(),
		StepsExecuted: rc.executed,
		StepResults:   stepResults,
		DurationMS:    elapsed.Milliseconds(),
	}
}

// mergedOutputs unions successful step outputs in completion order. When the
// workflow declares outputs, the union is filtered to the declared names.
// Caller must hold rc.mu.
func (rc *run) mergedOutputs() map[string]any {
	merged := make(map[string]any)
	for _, id := range rc.order {
		res := rc.results[id]
		if res.Status != types.StepSuccess {
			continue
		}
		for k, v := range res.Outputs {
			merged[k] = v
		}
	}

	if len(rc.def.Outputs) == 0 {
		return merged
	}
	filtered := make(map[string]any, len(rc.def.Outputs))
	for name := range rc.def.Outputs {
		if v, ok := merged[name]; ok {
			filtered[name] = v
		}
	}
	return filtered
}

// ----------------------------------------------------------------------------
// result constructors
// ----------------------------------------------------------------------------

func failedResult(stepID, kind string, err error, elapsed time.Duration, attempts int) *types.StepResult {
	return &types.StepResult{
		StepID:      stepID,
		Status:      types.StepFailed,
		Error:       kind,
		ErrorDetail: err.Error(),
		DurationMS:  elapsed.Milliseconds(),
		Attempts:    attempts,
	}
}

func depFailedResult(stepID, dep string) *types.StepResult {
	return &types.StepResult{
		StepID:      stepID,
		Status:      types.StepFailed,
		Error:       ErrKindDependencyFailed,
		ErrorDetail: fmt.Sprintf("dependency %q failed", dep),
	}
}

func cancelledResult(stepID string) *types.StepResult {
	return &types.StepResult{
		StepID:      stepID,
		Status:      types.StepFailed,
		Error:       ErrKindCancelled,
		ErrorDetail: "run cancelled before step could execute",
	}
}

// kindOf classifies a step failure for the result record. Run-level
// cancellation (explicit cancel or workflow timeout) reports as cancelled;
// a deadline hit inside the step envelope reports as timeout.
func kindOf(ctx context.Context, err error) string {
	var ee *expr.Error
	switch {
	case ctx.Err() != nil:
		return ErrKindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrKindTimeout
	case errors.As(err, &ee):
		return ErrKindExpression
	default:
		return ErrKindHandler
	}
}
