// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package agent defines typed agent definitions and the runtime that turns
// a definition plus an input map into a structured result via an LLM.
package agent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/weftworks/weft/pkg/types"
)

// Role classifies what an agent is for. Roles are advisory; the runtime
// treats them as prompt material and discovery keys only.
type Role string

const (
	RoleOrchestrator Role = "orchestrator"
	RoleDirector     Role = "director"
	RoleWorker       Role = "worker"
	RoleReviewer     Role = "reviewer"
	RoleResearcher   Role = "researcher"
	RoleValidator    Role = "validator"
)

var validRoles = map[Role]bool{
	RoleOrchestrator: true,
	RoleDirector:     true,
	RoleWorker:       true,
	RoleReviewer:     true,
	RoleResearcher:   true,
	RoleValidator:    true,
}

// Constraints bound an agent's resource usage.
type Constraints struct {
	// MaxTokens caps the completion length (100-200000, default 4096)
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`

	// TimeoutSeconds bounds a single LLM call (10-3600, default 120)
	TimeoutSeconds int `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`

	// MaxRetries is how many times a failed call is retried (0-10, default 2)
	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`

	// ParallelAllowed permits concurrent invocations of this agent within
	// one workflow run (default true)
	ParallelAllowed *bool `json:"parallel_allowed,omitempty" yaml:"parallel_allowed,omitempty"`
}

// Default constraint values applied by ApplyDefaults.
const (
	DefaultMaxTokens      = 4096
	DefaultTimeoutSeconds = 120
	DefaultMaxRetries     = 2
)

// Prompts carries optional explicit templates. When absent, the runtime
// synthesizes a system prompt from the definition.
type Prompts struct {
	System string `json:"system,omitempty" yaml:"system,omitempty"`
	User   string `json:"user,omitempty" yaml:"user,omitempty"`
}

// Metadata is opaque descriptive information about a definition.
type Metadata struct {
	Author string   `json:"author,omitempty" yaml:"author,omitempty"`
	Tags   []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Definition is a typed prompt template over an LLM. Definitions are
// immutable once registered.
type Definition struct {
	Name         string                     `json:"name" yaml:"name"`
	Version      string                     `json:"version" yaml:"version"`
	Role         Role                       `json:"role" yaml:"role"`
	Description  string                     `json:"description" yaml:"description"`
	Capabilities []string                   `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Model        string                     `json:"model,omitempty" yaml:"model,omitempty"`
	Inputs       map[string]types.Parameter `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs      map[string]types.Parameter `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Prompts      *Prompts                   `json:"prompts,omitempty" yaml:"prompts,omitempty"`
	Constraints  Constraints                `json:"constraints,omitempty" yaml:"constraints,omitempty"`
	Metadata     Metadata                   `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// ParallelAllowed reports whether concurrent invocations are permitted.
func (d *Definition) ParallelAllowed() bool {
	if d.Constraints.ParallelAllowed == nil {
		return true
	}
	return *d.Constraints.ParallelAllowed
}

// ApplyDefaults fills zero-valued constraints in place.
func (d *Definition) ApplyDefaults() {
	if d.Constraints.MaxTokens == 0 {
		d.Constraints.MaxTokens = DefaultMaxTokens
	}
	if d.Constraints.TimeoutSeconds == 0 {
		d.Constraints.TimeoutSeconds = DefaultTimeoutSeconds
	}
}

// ValidationError reports why a definition or an invocation was rejected.
type ValidationError struct {
	// Field is the offending field or input name
	Field string

	// Reason is a human-readable explanation
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

var (
	nameRe   = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)
	semverRe = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)$`)
)

// ValidName reports whether s is a legal agent or workflow name.
func ValidName(s string) bool {
	return len(s) >= 2 && len(s) <= 64 && nameRe.MatchString(s)
}

// ValidStepID reports whether s is a legal step identifier. Step IDs share
// the name alphabet but have no minimum length, so "a" is a valid step.
func ValidStepID(s string) bool {
	return len(s) >= 1 && len(s) <= 64 && nameRe.MatchString(s)
}

// ValidSemver reports whether s is a MAJOR.MINOR.PATCH version string.
func ValidSemver(s string) bool {
	return semverRe.MatchString(s)
}

// CompareVersions orders two semantic versions. It returns a negative value
// when a < b, zero when equal, positive when a > b. Both must already have
// passed ValidSemver.
func CompareVersions(a, b string) int {
	as := strings.SplitN(a, ".", 3)
	bs := strings.SplitN(b, ".", 3)
	for i := 0; i < 3; i++ {
		an, _ := strconv.Atoi(as[i])
		bn, _ := strconv.Atoi(bs[i])
		if an != bn {
			return an - bn
		}
	}
	return 0
}

// Validate checks a definition against the registration rules.
func (d *Definition) Validate() error {
	if !ValidName(d.Name) {
		return &ValidationError{Field: "name", Reason: "must match ^[a-z][a-z0-9-]*$ and be 2-64 characters"}
	}
	if !ValidSemver(d.Version) {
		return &ValidationError{Field: "version", Reason: "must be a MAJOR.MINOR.PATCH semantic version"}
	}
	if !validRoles[d.Role] {
		return &ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", d.Role)}
	}
	if len(d.Description) > 500 {
		return &ValidationError{Field: "description", Reason: "must be at most 500 characters"}
	}

	for name, p := range d.Inputs {
		if !types.ValidParamType(p.Type) {
			return &ValidationError{
				Field:  "inputs." + name,
				Reason: fmt.Sprintf("unknown parameter type %q", p.Type),
			}
		}
	}
	for name, p := range d.Outputs {
		if !types.ValidParamType(p.Type) {
			return &ValidationError{
				Field:  "outputs." + name,
				Reason: fmt.Sprintf("unknown parameter type %q", p.Type),
			}
		}
	}

	c := d.Constraints
	if c.MaxTokens != 0 && (c.MaxTokens < 100 || c.MaxTokens > 200000) {
		return &ValidationError{Field: "constraints.max_tokens", Reason: "must be in [100, 200000]"}
	}
	if c.TimeoutSeconds != 0 && (c.TimeoutSeconds < 10 || c.TimeoutSeconds > 3600) {
		return &ValidationError{Field: "constraints.timeout_seconds", Reason: "must be in [10, 3600]"}
	}
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return &ValidationError{Field: "constraints.max_retries", Reason: "must be in [0, 10]"}
	}

	return nil
}
