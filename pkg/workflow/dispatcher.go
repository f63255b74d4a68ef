// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/weftworks/weft/pkg/types"
)

// ActionRequest is what a handler receives: the step record, its resolved
// inputs, a read-only snapshot of run state, and the expression context the
// inputs were resolved against.
type ActionRequest struct {
	Step    *Step
	Inputs  map[string]any
	State   types.State
	ExprCtx map[string]any

	// rc lets built-in control-flow handlers recurse into sub-steps
	rc *run
}

// Handler executes one step action and returns the step's outputs.
type Handler func(ctx context.Context, req *ActionRequest) (map[string]any, error)

// Dispatcher maps action names to handlers. The executor registers the
// seven built-in handlers; callers may add or replace handlers before a run.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Action]Handler
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[Action]Handler),
	}
}

// Register binds a handler to an action name, replacing any previous one.
func (d *Dispatcher) Register(action Action, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[action] = h
}

// Dispatch runs the handler registered for the step's action.
func (d *Dispatcher) Dispatch(ctx context.Context, req *ActionRequest) (map[string]any, error) {
	d.mu.RLock()
	h, ok := d.handlers[req.Step.Action]
	d.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no handler registered for action %q", req.Step.Action)
	}
	return h(ctx, req)
}

// Actions returns the registered action names.
func (d *Dispatcher) Actions() []Action {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Action, 0, len(d.handlers))
	for a := range d.handlers {
		out = append(out, a)
	}
	return out
}
