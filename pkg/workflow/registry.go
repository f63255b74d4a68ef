// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package workflow

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/weftworks/weft/pkg/agent"
)

// ErrNotFound is returned when no workflow matches a lookup.
var ErrNotFound = errors.New("workflow not found")

// ErrDuplicate is returned when a (name, version) pair is registered twice.
var ErrDuplicate = errors.New("workflow already registered")

// Registry stores validated workflow definitions. Several versions of one
// name may coexist; lookups without a version return the newest.
type Registry struct {
	mu        sync.RWMutex
	workflows map[string]map[string]*Definition // name -> version -> def
}

// NewRegistry creates an empty workflow registry.
func NewRegistry() *Registry {
	return &Registry{
		workflows: make(map[string]map[string]*Definition),
	}
}

// Register validates and stores a definition. Layer construction runs once
// here so cyclic workflows are rejected at registration, not at run time.
func (r *Registry) Register(def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if _, err := BuildLayers(def.Steps); err != nil {
		return err
	}

	stored := *def
	stored.ApplyDefaults()

	r.mu.Lock()
	defer r.mu.Unlock()

	versions, ok := r.workflows[stored.Name]
	if !ok {
		versions = make(map[string]*Definition)
		r.workflows[stored.Name] = versions
	}
	if _, exists := versions[stored.Version]; exists {
		return fmt.Errorf("%s@%s: %w", stored.Name, stored.Version, ErrDuplicate)
	}
	versions[stored.Version] = &stored
	return nil
}

// Get returns the newest version of the named workflow.
func (r *Registry) Get(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.workflows[name]
	if !ok || len(versions) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}

	var latest *Definition
	for _, def := range versions {
		if latest == nil || agent.CompareVersions(def.Version, latest.Version) > 0 {
			latest = def
		}
	}
	return latest, nil
}

// GetVersion returns one exact version of the named workflow.
func (r *Registry) GetVersion(name, version string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if def, ok := r.workflows[name][version]; ok {
		return def, nil
	}
	return nil, fmt.Errorf("%s@%s: %w", name, version, ErrNotFound)
}

// List returns the newest version of every registered workflow, sorted by
// name.
func (r *Registry) List() []*Definition {
	r.mu.RLock()
	names := make([]string, 0, len(r.workflows))
	for name := range r.workflows {
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
