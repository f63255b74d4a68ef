// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package statechart

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Hooks bind the guard and action names a definition references to code.
type Hooks struct {
	Guards  map[string]Guard
	Actions map[string]Action

	// Logger for transition events (default: no-op)
	Logger *zap.Logger
}

// Machine is a running statechart instance. It owns a mutable context map
// that guards read and actions write. Methods are safe for concurrent use.
type Machine struct {
	def    *Definition
	hooks  Hooks
	logger *zap.Logger

	mu      sync.Mutex
	current string
	history []string
	context map[string]any

	// sub is the active nested machine, when the current state has one
	sub *Machine
}

// NewMachine validates the definition, resolves every referenced guard and
// action name, and starts the machine in its initial state. The initial
// state's entry actions run before NewMachine returns.
func NewMachine(def *Definition, hooks Hooks) (*Machine, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if err := resolveNames(def, hooks); err != nil {
		return nil, err
	}
	if hooks.Logger == nil {
		hooks.Logger = zap.NewNop()
	}

	m := &Machine{
		def:     def,
		hooks:   hooks,
		logger:  hooks.Logger,
		current: def.InitialState,
		history: []string{def.InitialState},
		context: cloneContext(def.Context),
	}
	m.enterLocked(def.InitialState)
	return m, nil
}

// resolveNames checks that every guard and action the definition references
// exists in the hooks, recursing into sub-machines.
func resolveNames(def *Definition, hooks Hooks) error {
	check := func(names []string, table map[string]Action, kind error) error {
		for _, name := range names {
			if _, ok := table[name]; !ok {
				return fmt.Errorf("statechart %q: %q: %w", def.ID, name, kind)
			}
		}
		return nil
	}

	for _, state := range def.States {
		if err := check(state.Entry, hooks.Actions, ErrUnknownAction); err != nil {
			return err
		}
		if err := check(state.Exit, hooks.Actions, ErrUnknownAction); err != nil {
			return err
		}
		for _, transitions := range state.On {
			for _, tr := range transitions {
				if tr.Guard != "" {
					if _, ok := hooks.Guards[tr.Guard]; !ok {
						return fmt.Errorf("statechart %q: %q: %w", def.ID, tr.Guard, ErrUnknownGuard)
					}
				}
				if err := check(tr.Actions, hooks.Actions, ErrUnknownAction); err != nil {
					return err
				}
			}
		}
		if state.SubMachine != nil {
			if err := resolveNames(state.SubMachine, hooks); err != nil {
				return err
			}
		}
	}
	return nil
}

// Current returns the current state name. When a sub-machine is active, the
// innermost state is reported as "outer.inner".
func (m *Machine) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sub != nil {
		return m.current + "." + m.sub.Current()
	}
	return m.current
}

// History returns the sequence of states this machine has visited, oldest
// first, starting with the initial state.
func (m *Machine) History() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.history))
	copy(out, m.history)
	return out
}

// Context returns a shallow copy of the machine context.
func (m *Machine) Context() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneContext(m.context)
}

// InFinal reports whether the machine reached a final state.
func (m *Machine) InFinal() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.def.States[m.current].Final
}

// Send delivers one event. Events route to the innermost active machine;
// the escape event is never delivered inward and instead closes the active
// sub-machine and fires in the enclosing state. Delivering an event to a
// machine in a final state returns a FinalStateError.
func (m *Machine) Send(event string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sendLocked(event)
}

func (m *Machine) sendLocked(event string) error {
	state := m.def.States[m.current]
	if state.Final {
		return &FinalStateError{State: m.current, Event: event}
	}

	if m.sub != nil && event != Escape {
		return m.sub.Send(event)
	}
	if m.sub != nil {
		// Escape closes the nested machine; the event then fires here.
		m.sub = nil
	}

	tr, ok := m.selectTransition(state, event)
	if !ok {
		return &UnhandledEventError{State: m.current, Event: event}
	}

	// Internal transition: actions only, no state change.
	if tr.Target == "" {
		m.runActions(tr.Actions)
		return nil
	}

	m.runActions(state.Exit)
	m.runActions(tr.Actions)

	m.logger.Debug("statechart transition",
		zap.String("machine", m.def.ID),
		zap.String("from", m.current),
		zap.String("event", event),
		zap.String("to", tr.Target),
	)

	m.current = tr.Target
	m.history = append(m.history, tr.Target)
	m.enterLocked(tr.Target)
	return nil
}

// selectTransition picks the first candidate for event whose guard passes.
func (m *Machine) selectTransition(state State, event string) (Transition, bool) {
	for _, tr := range state.On[event] {
		if tr.Guard == "" || m.hooks.Guards[tr.Guard](m.context) {
			return tr, true
		}
	}
	return Transition{}, false
}

// enterLocked runs a state's entry actions and activates its sub-machine.
func (m *Machine) enterLocked(name string) {
	state := m.def.States[name]
	m.runActions(state.Entry)

	if state.SubMachine != nil {
		// Guard and action names were resolved against the same hooks at
		// construction, so this cannot fail.
		sub, err := NewMachine(state.SubMachine, m.hooks)
		if err != nil {
			m.logger.Error("sub-machine start failed",
				zap.String("machine", m.def.ID),
				zap.String("state", name),
				zap.Error(err),
			)
			return
		}
		m.sub = sub
	}
}

func (m *Machine) runActions(names []string) {
	for _, name := range names {
		m.hooks.Actions[name](m.context)
	}
}

// Execute delivers events in order, stopping after the first event that
// lands the machine in a final state. Remaining events are not delivered.
func (m *Machine) Execute(events []string) error {
	for i, event := range events {
		if err := m.Send(event); err != nil {
			return fmt.Errorf("event %d (%q): %w", i, event, err)
		}
		if m.InFinal() {
			return nil
		}
	}
	return nil
}

func cloneContext(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		out[k] = v
	}
	return out
}
