// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package agent

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned when no definition matches a lookup.
var ErrNotFound = errors.New("agent not found")

// ErrDuplicate is returned when a (name, version) pair is registered twice.
var ErrDuplicate = errors.New("agent already registered")

// Registry stores validated agent definitions. Several versions of one name
// may coexist; lookups without a version return the newest.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]map[string]*Definition // name -> version -> def
}

// NewRegistry creates an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{
		agents: make(map[string]map[string]*Definition),
	}
}

// Register validates and stores a definition. Definitions are copied on the
// way in so callers cannot mutate a registered agent.
func (r *Registry) Register(def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	stored := *def
	stored.ApplyDefaults()

	r.mu.Lock()
	defer r.mu.Unlock()

	versions, ok := r.agents[stored.Name]
	if !ok {
		versions = make(map[string]*Definition)
		r.agents[stored.Name] = versions
	}
	if _, exists := versions[stored.Version]; exists {
		return fmt.Errorf("%s@%s: %w", stored.Name, stored.Version, ErrDuplicate)
	}
	versions[stored.Version] = &stored
	return nil
}

// Get returns the newest version of the named agent.
func (r *Registry) Get(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.agents[name]
	if !ok || len(versions) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}

	var latest *Definition
	for _, def := range versions {
		if latest == nil || CompareVersions(def.Version, latest.Version) > 0 {
			latest = def
		}
	}
	return latest, nil
}

// GetVersion returns one exact version of the named agent.
func (r *Registry) GetVersion(name, version string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if def, ok := r.agents[name][version]; ok {
		return def, nil
	}
	return nil, fmt.Errorf("%s@%s: %w", name, version, ErrNotFound)
}

// List returns the newest version of every registered agent, sorted by name.
func (r *Registry) List() []*Definition {
	r.mu.RLock()
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)

	out := make([]*Definition, 0, len(names))
	for _, name := range names {
		if def, err := r.Get(name); err == nil {
			out = append(out, def)
		}
	}
	return out
}

// ListByRole returns the newest version of every agent with the given role.
func (r *Registry) ListByRole(role Role) []*Definition {
	var out []*Definition
	for _, def := range r.List() {
		if def.Role == role {
			out = append(out, def)
		}
	}
	return out
}
