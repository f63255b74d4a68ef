// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package mock provides a deterministic in-memory provider for tests and
// dry runs.
package mock

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/weftworks/weft/pkg/types"
)

// Provider is a canned-response provider. Responses are keyed by the last
// user message; unmatched prompts echo a JSON envelope around the prompt so
// agent output parsing always has something to chew on.
type Provider struct {
	name string

	mu        sync.Mutex
	responses map[string]string
	errs      []error
	calls     []types.CompleteRequest
}

// New creates a mock provider. The name defaults to "mock".
func New(name string) *Provider {
	if name == "" {
		name = "mock"
	}
	return &Provider{
		name:      name,
		responses: make(map[string]string),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return p.name
}

// Respond registers a canned response for prompts whose last user message
// equals prompt.
func (p *Provider) Respond(prompt, response string) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses[prompt] = response
	return p
}

// FailWith queues errors to return before any response. Each queued error is
// consumed by one Complete call, so tests can script transient failures.
func (p *Provider) FailWith(errs ...error) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs = append(p.errs, errs...)
	return p
}

// Calls returns a copy of every request seen so far.
func (p *Provider) Calls() []types.CompleteRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.CompleteRequest, len(p.calls))
	copy(out, p.calls)
	return out
}

// Complete returns the canned response for the last user message, or an echo
// of the prompt when none is registered.
func (p *Provider) Complete(ctx context.Context, req types.CompleteRequest) (*types.LLMResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.calls = append(p.calls, req)
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		p.mu.Unlock()
		return nil, err
	}

	prompt := lastUserMessage(req.Messages)
	content, ok := p.responses[prompt]
	p.mu.Unlock()

	if !ok {
		quoted, _ := json.Marshal(prompt)
		content = `{"echo": ` + string(quoted) + `}`
	}

	return &types.LLMResponse{
		Content:          content,
		Model:            req.Model,
		PromptTokens:     len(prompt) / 4,
		CompletionTokens: len(content) / 4,
	}, nil
}

// ListModels returns a single synthetic model identifier.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	return []string{p.name + "-model"}, nil
}

func lastUserMessage(messages []types.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == types.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

var _ types.Provider = (*Provider)(nil)
