// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package types contains shared types used across the weft engine.
// This package breaks import cycles by providing common types that the
// agent, llm, and workflow packages all depend on.
package types

import (
	"context"
	"time"
)

// ============================================================================
// Parameter Descriptors
// ============================================================================

// ParamType enumerates the value types a declared parameter may take.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
	ParamArray   ParamType = "array"
	ParamObject  ParamType = "object"
	ParamPath    ParamType = "path"
)

// ValidParamType reports whether t names a known parameter type.
func ValidParamType(t ParamType) bool {
	switch t {
	case ParamString, ParamNumber, ParamBoolean, ParamArray, ParamObject, ParamPath:
		return true
	}
	return false
}

// Parameter describes a declared input or output of an agent or workflow.
type Parameter struct {
	Type        ParamType `json:"type" yaml:"type"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool      `json:"required,omitempty" yaml:"required,omitempty"`
	Default     any       `json:"default,omitempty" yaml:"default,omitempty"`
	Enum        []any     `json:"enum,omitempty" yaml:"enum,omitempty"`
}

// ============================================================================
// LLM Types
// ============================================================================

// Role identifies the sender of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role is the message sender (system, user, assistant)
	Role Role

	// Content is the message text
	Content string
}

// CompleteRequest carries the parameters of a single completion call.
type CompleteRequest struct {
	// Model is the model identifier (e.g. "gpt-4.1", "claude-sonnet-4-5")
	Model string

	// Messages is the conversation to complete
	Messages []Message

	// Temperature controls sampling randomness (0.0-2.0)
	Temperature float64

	// MaxTokens bounds the completion length
	MaxTokens int
}

// LLMResponse represents a response from an LLM provider.
type LLMResponse struct {
	// Content is the raw text response
	Content string

	// Model is the model that produced the response
	Model string

	// PromptTokens is the number of input tokens consumed
	PromptTokens int

	// CompletionTokens is the number of output tokens produced
	CompletionTokens int
}

// TotalTokens returns the combined prompt and completion token count.
func (r *LLMResponse) TotalTokens() int {
	return r.PromptTokens + r.CompletionTokens
}

// Provider defines the interface for LLM providers.
// This allows pluggable backends (OpenAI, Anthropic, mocks for tests).
type Provider interface {
	// Complete sends a conversation to the LLM and returns the response.
	Complete(ctx context.Context, req CompleteRequest) (*LLMResponse, error)

	// ListModels returns the model identifiers the provider serves.
	ListModels(ctx context.Context) ([]string, error)

	// Name returns the provider name (e.g. "openai").
	Name() string
}

// AgentResult is the outcome of a single agent invocation.
type AgentResult struct {
	// Output is the parsed, structured output keyed by declared output field
	Output map[string]any

	// RawResponse is the unparsed LLM response text
	RawResponse string

	// TokensUsed is the total token count of the invocation
	TokensUsed int

	// Model is the model that served the invocation
	Model string
}

// ============================================================================
// Workflow Execution Types
// ============================================================================

// StepStatus is the terminal status of a single step.
type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// StepResult records the outcome of one step within a run.
type StepResult struct {
	// StepID is the step identifier within the workflow
	StepID string `json:"step_id"`

	// Status is the terminal step status
	Status StepStatus `json:"status"`

	// Outputs holds whatever the step's handler returned
	Outputs map[string]any `json:"outputs,omitempty"`

	// Error carries the error kind tag when Status is failed
	// (e.g. "cancelled", "dependency_failed", "timeout")
	Error string `json:"error,omitempty"`

	// ErrorDetail carries the narrative error message, if any
	ErrorDetail string `json:"error_detail,omitempty"`

	// DurationMS is the wall-clock step duration in milliseconds
	DurationMS int64 `json:"duration_ms"`

	// Attempts is how many times the handler was invoked
	Attempts int `json:"attempts"`
}

// RunStatus is the terminal status of a whole run.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
	RunPartial RunStatus = "partial"
	RunSkipped RunStatus = "skipped"
)

// WorkflowResult is the outcome of a workflow run.
type WorkflowResult struct {
	// RunID identifies the run
	RunID string `json:"run_id"`

	// Status is the terminal run status
	Status RunStatus `json:"status"`

	// Outputs is the merged output map advertised by the workflow
	Outputs map[string]any `json:"outputs,omitempty"`

	// StepsExecuted is the number of steps that ran (skipped steps excluded)
	StepsExecuted int `json:"steps_executed"`

	// StepResults lists every step's result in completion order
	StepResults []StepResult `json:"step_results"`

	// DurationMS is the total run duration in milliseconds
	DurationMS int64 `json:"duration_ms"`
}

// Result returns the step result for the given step ID, or nil.
func (r *WorkflowResult) Result(stepID string) *StepResult {
	for i := range r.StepResults {
		if r.StepResults[i].StepID == stepID {
			return &r.StepResults[i]
		}
	}
	return nil
}

// State is the accumulated run state: workflow inputs at the top level plus
// completed step outputs nested under each step ID.
type State map[string]any

// Clone returns a copy one level deep. Step output maps are copied so a
// snapshot handed to a handler is isolated from later merges.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		if m, ok := v.(map[string]any); ok {
			inner := make(map[string]any, len(m))
			for ik, iv := range m {
				inner[ik] = iv
			}
			out[k] = inner
			continue
		}
		out[k] = v
	}
	return out
}

// ProgressEvent reports executor progress to an optional callback.
type ProgressEvent struct {
	// RunID identifies the run
	RunID string

	// StepID is the step the event concerns (empty for run-level events)
	StepID string

	// Message is a human-readable description
	Message string

	// Timestamp when the event occurred
	Timestamp time.Time
}

// ProgressCallback is called during workflow execution to report progress.
type ProgressCallback func(event ProgressEvent)
