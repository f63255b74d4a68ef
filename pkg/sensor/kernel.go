// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package sensor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/weftworks/weft/pkg/expr"
	"github.com/weftworks/weft/pkg/types"
	"github.com/weftworks/weft/pkg/workflow"
)

// DefaultDedupCapacity bounds the per-sensor fingerprint window.
const DefaultDedupCapacity = 128

// Kernel errors.
var (
	ErrNotFound  = errors.New("sensor not found")
	ErrDuplicate = errors.New("sensor already registered")
	ErrDisabled  = errors.New("sensor disabled")
)

// Runner is the slice of the executor the kernel depends on.
type Runner interface {
	Execute(ctx context.Context, def *workflow.Definition, inputs map[string]any, opts workflow.ExecuteOptions) (*types.WorkflowResult, error)
}

// AlertFunc receives alerts from sensors under the alert error policy.
type AlertFunc func(sensorID string, consecutiveFailures int, err error)

// KernelConfig wires a kernel's collaborators.
type KernelConfig struct {
	// Workflows resolves target workflow names (required)
	Workflows *workflow.Registry

	// Runner executes target workflows (required)
	Runner Runner

	// Alert receives alert-policy notifications (optional)
	Alert AlertFunc

	// DedupCapacity bounds the fingerprint window (default: 128)
	DedupCapacity int

	// Logger for kernel events (default: no-op)
	Logger *zap.Logger
}

// sensorState is the mutable runtime side of one registered sensor.
type sensorState struct {
	def      *Definition
	disabled bool
	metrics  Metrics

	lastFire time.Time

	// fingerprints is a bounded FIFO window of recently seen events
	fingerprints []string
	seen         map[string]bool

	consecutiveFailures int
}

// Kernel routes sensor events to workflow runs. It owns debounce,
// deduplication, input binding resolution, and failure policy.
type Kernel struct {
	workflows *workflow.Registry
	runner    Runner
	alert     AlertFunc
	dedupCap  int
	logger    *zap.Logger

	// now is swapped in tests
	now func() time.Time

	mu      sync.Mutex
	sensors map[string]*sensorState
}

// NewKernel creates a sensor kernel.
func NewKernel(config KernelConfig) *Kernel {
	if config.DedupCapacity <= 0 {
		config.DedupCapacity = DefaultDedupCapacity
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Kernel{
		workflows: config.Workflows,
		runner:    config.Runner,
		alert:     config.Alert,
		dedupCap:  config.DedupCapacity,
		logger:    config.Logger,
		now:       time.Now,
		sensors:   make(map[string]*sensorState),
	}
}

// Register validates and stores a sensor. The target workflow must already
// be registered.
func (k *Kernel) Register(def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if _, err := k.workflows.Get(def.Target.Workflow); err != nil {
		return fmt.Errorf("sensor %q: target: %w", def.ID, err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if _, exists := k.sensors[def.ID]; exists {
		return fmt.Errorf("%s: %w", def.ID, ErrDuplicate)
	}

	stored := *def
	k.sensors[def.ID] = &sensorState{
		def:      &stored,
		disabled: !stored.EnabledOrDefault(),
		seen:     make(map[string]bool),
	}
	return nil
}

// Enable re-enables a sensor and clears its failure counter.
func (k *Kernel) Enable(id string) error {
	return k.setDisabled(id, false)
}

// Disable stops a sensor from firing.
func (k *Kernel) Disable(id string) error {
	return k.setDisabled(id, true)
}

func (k *Kernel) setDisabled(id string, disabled bool) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	st, ok := k.sensors[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	st.disabled = disabled
	if !disabled {
		st.consecutiveFailures = 0
	}
	return nil
}

// Metrics returns a copy of one sensor's counters.
func (k *Kernel) Metrics(id string) (Metrics, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	st, ok := k.sensors[id]
	if !ok {
		return Metrics{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return st.metrics, nil
}

// List returns registered sensor IDs, sorted.
func (k *Kernel) List() []string {
	k.mu.Lock()
	defer k.mu.Unlock()

	out := make([]string, 0, len(k.sensors))
	for id := range k.sensors {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Offer delivers an event to a sensor. It returns true when the event
// fired the target workflow. Discards (debounce, dedup, filter) return
// false with a nil error; a target workflow failure returns the failure
// after the error policy has been applied.
func (k *Kernel) Offer(ctx context.Context, sensorID string, event Event) (bool, error) {
	k.mu.Lock()
	st, ok := k.sensors[sensorID]
	if !ok {
		k.mu.Unlock()
		return false, fmt.Errorf("%s: %w", sensorID, ErrNotFound)
	}

	st.metrics.EventsSeen++

	if st.disabled {
		k.mu.Unlock()
		return false, fmt.Errorf("%s: %w", sensorID, ErrDisabled)
	}

	now := k.now()
	window := time.Duration(st.def.Trigger.DebounceSeconds) * time.Second
	if window > 0 && !st.lastFire.IsZero() && now.Sub(st.lastFire) < window {
		st.metrics.EventsDebounced++
		k.mu.Unlock()
		return false, nil
	}

	fp := event.Fingerprint()
	if st.seen[fp] {
		st.metrics.EventsDeduped++
		k.mu.Unlock()
		return false, nil
	}

	passed, err := passesTrigger(st.def.Trigger, event)
	if err != nil {
		k.mu.Unlock()
		return false, fmt.Errorf("sensor %q: trigger: %w", sensorID, err)
	}
	if !passed {
		st.metrics.EventsFiltered++
		k.mu.Unlock()
		return false, nil
	}

	// The event fires: record it before releasing the lock so concurrent
	// duplicates are suppressed while the workflow runs.
	st.lastFire = now
	k.remember(st, fp)
	st.metrics.EventsFired++
	def := st.def
	k.mu.Unlock()

	inputs, err := resolveBindings(def.Target.InputBindings, event)
	if err != nil {
		return false, k.recordFailure(sensorID, fmt.Errorf("sensor %q: bindings: %w", sensorID, err))
	}

	target, err := k.workflows.Get(def.Target.Workflow)
	if err != nil {
		return false, k.recordFailure(sensorID, err)
	}

	k.logger.Info("sensor fired",
		zap.String("sensor", sensorID),
		zap.String("workflow", target.Name),
		zap.String("event", event.ID),
	)

	result, err := k.runner.Execute(ctx, target, inputs, workflow.ExecuteOptions{})
	if err != nil {
		return true, k.recordFailure(sensorID, err)
	}
	if result.Status == types.RunFailed || result.Status == types.RunPartial {
		return true, k.recordFailure(sensorID, fmt.Errorf("workflow %q finished %s", target.Name, result.Status))
	}

	k.mu.Lock()
	st.consecutiveFailures = 0
	k.mu.Unlock()
	return true, nil
}

// remember adds a fingerprint to the bounded window, evicting the oldest.
// Caller must hold k.mu.
func (k *Kernel) remember(st *sensorState, fp string) {
	if len(st.fingerprints) >= k.dedupCap {
		oldest := st.fingerprints[0]
		st.fingerprints = st.fingerprints[1:]
		delete(st.seen, oldest)
	}
	st.fingerprints = append(st.fingerprints, fp)
	st.seen[fp] = true
}

// recordFailure applies the sensor's error policy and returns err.
func (k *Kernel) recordFailure(sensorID string, err error) error {
	k.mu.Lock()
	st, ok := k.sensors[sensorID]
	if !ok {
		k.mu.Unlock()
		return err
	}

	st.metrics.Failures++
	st.consecutiveFailures++
	failures := st.consecutiveFailures
	policy := st.def.ErrorPolicy

	disabled := false
	if policy.Kind == PolicyDisable && policy.MaxRetries > 0 && failures >= policy.MaxRetries {
		st.disabled = true
		disabled = true
	}
	k.mu.Unlock()

	switch {
	case disabled:
		k.logger.Error("sensor disabled after repeated failures",
			zap.String("sensor", sensorID),
			zap.Int("failures", failures),
			zap.Error(err),
		)
	case policy.Kind == PolicyAlert && failures >= policy.AlertAfter && policy.AlertAfter > 0:
		k.logger.Error("sensor alert",
			zap.String("sensor", sensorID),
			zap.Int("failures", failures),
			zap.Error(err),
		)
		if k.alert != nil {
			k.alert(sensorID, failures, err)
		}
	default:
		k.logger.Warn("sensor target failed",
			zap.String("sensor", sensorID),
			zap.Int("failures", failures),
			zap.Error(err),
		)
	}
	return err
}

// eventContext builds the expression context bindings evaluate in: the
// payload keys top-level plus the whole payload under "event".
func eventContext(event Event) map[string]any {
	inputs := make(map[string]any, len(event.Payload)+1)
	for key, v := range event.Payload {
		inputs[key] = v
	}
	inputs["event"] = event.Payload
	return expr.BuildContext(inputs, nil)
}

func passesTrigger(trigger Trigger, event Event) (bool, error) {
	ctx := eventContext(event)
	for _, predicate := range []string{trigger.Condition, trigger.Filter} {
		if predicate == "" {
			continue
		}
		ok, err := expr.EvaluatePredicate(predicate, ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func resolveBindings(bindings map[string]string, event Event) (map[string]any, error) {
	if len(bindings) == 0 {
		return nil, nil
	}
	ctx := eventContext(event)
	inputs := make(map[string]any, len(bindings))
	for name, expression := range bindings {
		v, err := expr.Evaluate(expression, ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		inputs[name] = v
	}
	return inputs, nil
}
