// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/weftworks/weft/pkg/types"
)

// ErrLLMFailed is returned when every attempt against the provider failed.
var ErrLLMFailed = errors.New("agent llm call failed")

// Router is the slice of the LLM layer the runtime depends on.
type Router interface {
	Complete(ctx context.Context, req types.CompleteRequest) (*types.LLMResponse, error)
}

// RuntimeConfig configures an agent runtime.
type RuntimeConfig struct {
	// Router dispatches completion requests (required)
	Router Router

	// DefaultModel is used when a definition names no model
	// (default: "gpt-4.1")
	DefaultModel string

	// RetryDelay is the pause between failed attempts (default: 1s)
	RetryDelay time.Duration

	// Logger for invocation events (default: no-op)
	Logger *zap.Logger
}

// Runtime invokes agents: it synthesizes the prompt, calls the router with
// retry inside the agent's timeout, and parses the response into the
// declared output fields.
type Runtime struct {
	router       Router
	defaultModel string
	retryDelay   time.Duration
	logger       *zap.Logger
}

// InvokeOptions override per-call model selection and sampling.
type InvokeOptions struct {
	Model       string
	Temperature float64
}

// NewRuntime creates an agent runtime.
func NewRuntime(config RuntimeConfig) *Runtime {
	if config.DefaultModel == "" {
		config.DefaultModel = "gpt-4.1"
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = time.Second
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Runtime{
		router:       config.Router,
		defaultModel: config.DefaultModel,
		retryDelay:   config.RetryDelay,
		logger:       config.Logger,
	}
}

// Invoke runs one agent call end to end.
func (rt *Runtime) Invoke(ctx context.Context, def *Definition, inputs map[string]any, opts InvokeOptions) (*types.AgentResult, error) {
	for name, p := range def.Inputs {
		if p.Required {
			if _, ok := inputs[name]; !ok {
				return nil, &ValidationError{Field: name, Reason: "required input missing"}
			}
		}
	}

	model := opts.Model
	if model == "" {
		model = def.Model
	}
	if model == "" {
		model = rt.defaultModel
	}

	req := types.CompleteRequest{
		Model:       model,
		Temperature: opts.Temperature,
		MaxTokens:   def.Constraints.MaxTokens,
		Messages: []types.Message{
			{Role: types.RoleSystem, Content: SynthesizeSystemPrompt(def)},
			{Role: types.RoleUser, Content: BuildUserMessage(inputs)},
		},
	}

	timeout := time.Duration(def.Constraints.TimeoutSeconds) * time.Second
	attempts := def.Constraints.MaxRetries + 1

	var resp *types.LLMResponse
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, lastErr = rt.completeOnce(ctx, req, timeout)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		rt.logger.Warn("agent invocation attempt failed",
			zap.String("agent", def.Name),
			zap.String("model", model),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(lastErr),
		)

		if attempt < attempts {
			select {
			case <-time.After(rt.retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("agent %q after %d attempts: %w: %w",
			def.Name, attempts, ErrLLMFailed, lastErr)
	}

	result := &types.AgentResult{
		Output:      ParseOutput(resp.Content, declaredOutputs(def)),
		RawResponse: resp.Content,
		TokensUsed:  resp.TotalTokens(),
		Model:       resp.Model,
	}

	rt.logger.Debug("agent invocation complete",
		zap.String("agent", def.Name),
		zap.String("model", result.Model),
		zap.Int("tokens_used", result.TokensUsed),
	)
	return result, nil
}

func (rt *Runtime) completeOnce(ctx context.Context, req types.CompleteRequest, timeout time.Duration) (*types.LLMResponse, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return rt.router.Complete(ctx, req)
}

func declaredOutputs(def *Definition) []string {
	out := make([]string, 0, len(def.Outputs))
	for name := range def.Outputs {
		out = append(out, name)
	}
	return out
}
