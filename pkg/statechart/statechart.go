// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package statechart implements a reactive state machine for long-lived,
// event-driven flows: named states with entry/exit actions, guarded
// transitions, final states, and nested sub-machines.
package statechart

import (
	"errors"
	"fmt"
)

// Escape is the event that bubbles out of an active sub-machine. It is
// never delivered to the inner machine; the enclosing state handles it.
const Escape = "escape"

// Guard decides whether a transition may fire. It must not mutate the
// context.
type Guard func(ctx map[string]any) bool

// Action mutates the machine context. Actions run on state entry, state
// exit, and during transitions.
type Action func(ctx map[string]any)

// Transition moves the machine to Target when its guard passes. A
// transition without a target is internal: its actions run but the state
// does not change and no exit or entry actions fire.
type Transition struct {
	Target  string   `json:"target,omitempty" yaml:"target,omitempty"`
	Guard   string   `json:"guard,omitempty" yaml:"guard,omitempty"`
	Actions []string `json:"actions,omitempty" yaml:"actions,omitempty"`
}

// State is one node of a statechart.
type State struct {
	// Entry and Exit name actions run when the state is entered or left
	Entry []string `json:"entry,omitempty" yaml:"entry,omitempty"`
	Exit  []string `json:"exit,omitempty" yaml:"exit,omitempty"`

	// On maps an event to its candidate transitions; the first whose
	// guard passes fires
	On map[string][]Transition `json:"on,omitempty" yaml:"on,omitempty"`

	// Final marks a terminal state; a machine in a final state refuses
	// further events
	Final bool `json:"final,omitempty" yaml:"final,omitempty"`

	// SubMachine nests a statechart inside this state
	SubMachine *Definition `json:"sub_machine,omitempty" yaml:"sub_machine,omitempty"`
}

// Definition is a declarative statechart.
type Definition struct {
	ID           string           `json:"id" yaml:"id"`
	InitialState string           `json:"initial_state" yaml:"initial_state"`
	Context      map[string]any   `json:"context,omitempty" yaml:"context,omitempty"`
	States       map[string]State `json:"states" yaml:"states"`
}

// Definition errors.
var (
	ErrUnknownState  = errors.New("unknown state")
	ErrUnknownGuard  = errors.New("unknown guard")
	ErrUnknownAction = errors.New("unknown action")
)

// FinalStateError reports an event delivered to a machine that already
// reached a final state.
type FinalStateError struct {
	State string
	Event string
}

func (e *FinalStateError) Error() string {
	return fmt.Sprintf("machine halted in final state %q, cannot deliver event %q", e.State, e.Event)
}

// UnhandledEventError reports an event with no firing transition in the
// current state.
type UnhandledEventError struct {
	State string
	Event string
}

func (e *UnhandledEventError) Error() string {
	return fmt.Sprintf("state %q has no transition for event %q", e.State, e.Event)
}

// Validate checks the structural rules: the initial state exists, every
// transition target exists, and final states declare no outgoing
// transitions. Guard and action names are resolved later, at machine
// construction.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return errors.New("statechart requires an id")
	}
	if len(d.States) == 0 {
		return fmt.Errorf("statechart %q declares no states", d.ID)
	}
	if _, ok := d.States[d.InitialState]; !ok {
		return fmt.Errorf("statechart %q: initial state %q: %w", d.ID, d.InitialState, ErrUnknownState)
	}

	for name, state := range d.States {
		if state.Final && len(state.On) > 0 {
			return fmt.Errorf("statechart %q: final state %q declares transitions", d.ID, name)
		}
		for event, transitions := range state.On {
			for _, tr := range transitions {
				if tr.Target == "" {
					continue
				}
				if _, ok := d.States[tr.Target]; !ok {
					return fmt.Errorf("statechart %q: state %q, event %q: target %q: %w",
						d.ID, name, event, tr.Target, ErrUnknownState)
				}
			}
		}
		if state.SubMachine != nil {
			if err := state.SubMachine.Validate(); err != nil {
				return fmt.Errorf("statechart %q: state %q: %w", d.ID, name, err)
			}
		}
	}
	return nil
}
