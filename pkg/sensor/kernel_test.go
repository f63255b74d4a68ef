// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package sensor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/types"
	"github.com/weftworks/weft/pkg/workflow"
)

type fakeRunner struct {
	mu     sync.Mutex
	inputs []map[string]any
	err    error
	status types.RunStatus
}

func (f *fakeRunner) Execute(ctx context.Context, def *workflow.Definition, inputs map[string]any, opts workflow.ExecuteOptions) (*types.WorkflowResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, inputs)
	if f.err != nil {
		return nil, f.err
	}
	status := f.status
	if status == "" {
		status = types.RunSuccess
	}
	return &types.WorkflowResult{RunID: "r", Status: status}, nil
}

func (f *fakeRunner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

func targetRegistry(t *testing.T) *workflow.Registry {
	t.Helper()
	r := workflow.NewRegistry()
	require.NoError(t, r.Register(&workflow.Definition{
		Name:    "target-flow",
		Version: "1.0.0",
		Steps:   []workflow.Step{{ID: "noop", Action: workflow.ActionTransform}},
	}))
	return r
}

func fileSensor(id string) *Definition {
	return &Definition{
		ID:     id,
		Type:   TypeManual,
		Target: Target{Workflow: "target-flow"},
	}
}

func newTestKernel(t *testing.T, runner Runner, opts ...func(*KernelConfig)) *Kernel {
	t.Helper()
	config := KernelConfig{Workflows: targetRegistry(t), Runner: runner}
	for _, opt := range opts {
		opt(&config)
	}
	return NewKernel(config)
}

func TestKernelRegisterValidates(t *testing.T) {
	k := newTestKernel(t, &fakeRunner{})

	require.NoError(t, k.Register(fileSensor("manual-1")))
	assert.ErrorIs(t, k.Register(fileSensor("manual-1")), ErrDuplicate)

	err := k.Register(&Definition{ID: "bad", Type: "volcano", Target: Target{Workflow: "target-flow"}})
	assert.Error(t, err)

	err = k.Register(&Definition{ID: "ghost", Type: TypeManual, Target: Target{Workflow: "missing"}})
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestKernelOfferFiresWithBindings(t *testing.T) {
	runner := &fakeRunner{}
	k := newTestKernel(t, runner)

	def := fileSensor("push")
	def.Target.InputBindings = map[string]string{
		"source": "event.path",
		"width":  "event.size * 2",
	}
	require.NoError(t, k.Register(def))

	fired, err := k.Offer(context.Background(), "push", NewEvent("test", map[string]any{
		"path": "/data/in.csv",
		"size": 21,
	}))
	require.NoError(t, err)
	assert.True(t, fired)

	require.Equal(t, 1, runner.calls())
	assert.Equal(t, "/data/in.csv", runner.inputs[0]["source"])
	assert.Equal(t, int64(42), runner.inputs[0]["width"])

	m, err := k.Metrics("push")
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.EventsSeen)
	assert.Equal(t, int64(1), m.EventsFired)
}

func TestKernelDebounce(t *testing.T) {
	runner := &fakeRunner{}
	k := newTestKernel(t, runner)

	def := fileSensor("bursty")
	def.Trigger.DebounceSeconds = 10
	require.NoError(t, k.Register(def))

	base := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	k.now = func() time.Time { return base }

	fired, err := k.Offer(context.Background(), "bursty", NewEvent("t", map[string]any{"n": 1}))
	require.NoError(t, err)
	assert.True(t, fired)

	// Inside the window: discarded.
	k.now = func() time.Time { return base.Add(5 * time.Second) }
	fired, err = k.Offer(context.Background(), "bursty", NewEvent("t", map[string]any{"n": 2}))
	require.NoError(t, err)
	assert.False(t, fired)

	// Past the window: fires again.
	k.now = func() time.Time { return base.Add(11 * time.Second) }
	fired, err = k.Offer(context.Background(), "bursty", NewEvent("t", map[string]any{"n": 3}))
	require.NoError(t, err)
	assert.True(t, fired)

	m, _ := k.Metrics("bursty")
	assert.Equal(t, int64(1), m.EventsDebounced)
	assert.Equal(t, int64(2), m.EventsFired)
}

func TestKernelDeduplication(t *testing.T) {
	runner := &fakeRunner{}
	k := newTestKernel(t, runner)
	require.NoError(t, k.Register(fileSensor("dedup")))

	payload := map[string]any{"path": "/same"}

	fired, err := k.Offer(context.Background(), "dedup", NewEvent("a", payload))
	require.NoError(t, err)
	assert.True(t, fired)

	// Same payload, different delivery: suppressed.
	fired, err = k.Offer(context.Background(), "dedup", NewEvent("b", payload))
	require.NoError(t, err)
	assert.False(t, fired)

	// Different payload fires.
	fired, err = k.Offer(context.Background(), "dedup", NewEvent("c", map[string]any{"path": "/other"}))
	require.NoError(t, err)
	assert.True(t, fired)

	m, _ := k.Metrics("dedup")
	assert.Equal(t, int64(1), m.EventsDeduped)
}

func TestKernelDedupWindowIsBounded(t *testing.T) {
	runner := &fakeRunner{}
	k := newTestKernel(t, runner, func(c *KernelConfig) { c.DedupCapacity = 2 })
	require.NoError(t, k.Register(fileSensor("window")))

	offer := func(n int) bool {
		fired, err := k.Offer(context.Background(), "window", NewEvent("t", map[string]any{"n": n}))
		require.NoError(t, err)
		return fired
	}

	assert.True(t, offer(1))
	assert.True(t, offer(2))
	assert.True(t, offer(3)) // evicts fingerprint of 1
	assert.False(t, offer(3))
	assert.True(t, offer(1)) // evicted, so it fires again
}

func TestKernelTriggerCondition(t *testing.T) {
	runner := &fakeRunner{}
	k := newTestKernel(t, runner)

	def := fileSensor("picky")
	def.Trigger.Condition = "event.size > 100"
	require.NoError(t, k.Register(def))

	fired, err := k.Offer(context.Background(), "picky", NewEvent("t", map[string]any{"size": 10}))
	require.NoError(t, err)
	assert.False(t, fired)

	fired, err = k.Offer(context.Background(), "picky", NewEvent("t", map[string]any{"size": 500}))
	require.NoError(t, err)
	assert.True(t, fired)

	m, _ := k.Metrics("picky")
	assert.Equal(t, int64(1), m.EventsFiltered)
}

func TestKernelDisablePolicy(t *testing.T) {
	runner := &fakeRunner{err: errors.New("target down")}
	k := newTestKernel(t, runner)

	def := fileSensor("fragile")
	def.ErrorPolicy = ErrorPolicy{Kind: PolicyDisable, MaxRetries: 2}
	require.NoError(t, k.Register(def))

	_, err := k.Offer(context.Background(), "fragile", NewEvent("t", map[string]any{"n": 1}))
	require.Error(t, err)
	_, err = k.Offer(context.Background(), "fragile", NewEvent("t", map[string]any{"n": 2}))
	require.Error(t, err)

	// Two consecutive failures hit max_retries: the sensor is disabled.
	_, err = k.Offer(context.Background(), "fragile", NewEvent("t", map[string]any{"n": 3}))
	assert.ErrorIs(t, err, ErrDisabled)

	// Re-enabling clears the failure counter.
	require.NoError(t, k.Enable("fragile"))
	runner.err = nil
	fired, err := k.Offer(context.Background(), "fragile", NewEvent("t", map[string]any{"n": 4}))
	require.NoError(t, err)
	assert.True(t, fired)
}

func TestKernelAlertPolicy(t *testing.T) {
	runner := &fakeRunner{status: types.RunFailed}
	var alerts []int
	k := newTestKernel(t, runner, func(c *KernelConfig) {
		c.Alert = func(sensorID string, failures int, err error) {
			alerts = append(alerts, failures)
		}
	})

	def := fileSensor("watched")
	def.ErrorPolicy = ErrorPolicy{Kind: PolicyAlert, AlertAfter: 2}
	require.NoError(t, k.Register(def))

	for n := 1; n <= 3; n++ {
		_, err := k.Offer(context.Background(), "watched", NewEvent("t", map[string]any{"n": n}))
		require.Error(t, err)
	}

	// The first failure stays quiet; the second and third alert.
	assert.Equal(t, []int{2, 3}, alerts)
}

func TestKernelUnknownSensor(t *testing.T) {
	k := newTestKernel(t, &fakeRunner{})
	_, err := k.Offer(context.Background(), "ghost", NewEvent("t", nil))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEventFingerprintIsContentAddressed(t *testing.T) {
	a := NewEvent("x", map[string]any{"path": "/f", "op": "write"})
	b := NewEvent("y", map[string]any{"op": "write", "path": "/f"})
	c := NewEvent("z", map[string]any{"path": "/g", "op": "write"})

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}
