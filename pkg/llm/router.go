// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package llm routes completion requests to LLM providers by model name and
// wraps calls with retry and rate limiting.
package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/weftworks/weft/pkg/types"
)

// Default retry policy for transient provider failures.
const (
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 1 * time.Second
	DefaultBackoffFactor  = 2
)

// RouterConfig configures a Router.
type RouterConfig struct {
	// MaxAttempts bounds the total attempts per request (default: 3)
	MaxAttempts int

	// InitialBackoff is the delay before the first retry (default: 1s).
	// It doubles after every failed attempt.
	InitialBackoff time.Duration

	// DefaultProvider serves models that match no prefix rule (optional)
	DefaultProvider string

	// Logger for routing and retry events (default: no-op)
	Logger *zap.Logger
}

// Router dispatches completion requests to a registered provider selected by
// the request's model name. Model prefixes map to provider names; the rule
// with the longest matching prefix wins.
type Router struct {
	mu        sync.RWMutex
	providers map[string]types.Provider
	rules     []routeRule

	maxAttempts     int
	initialBackoff  time.Duration
	defaultProvider string
	logger          *zap.Logger
}

type routeRule struct {
	prefix   string
	provider string
}

// NewRouter creates a router preloaded with the standard model-prefix rules.
func NewRouter(config RouterConfig) *Router {
	if config.MaxAttempts == 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = DefaultInitialBackoff
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	r := &Router{
		providers:       make(map[string]types.Provider),
		maxAttempts:     config.MaxAttempts,
		initialBackoff:  config.InitialBackoff,
		defaultProvider: config.DefaultProvider,
		logger:          config.Logger,
	}

	// Built-in prefix rules. "ft:gpt-" outranks "gpt-" because matching is
	// longest-prefix-first.
	r.AddRule("gpt-", "openai")
	r.AddRule("o1", "openai")
	r.AddRule("o3", "openai")
	r.AddRule("ft:gpt-", "openai")
	r.AddRule("claude-", "anthropic")

	return r
}

// Register makes a provider available under its Name().
func (r *Router) Register(p types.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// AddRule maps a model-name prefix to a provider name. Re-adding a prefix
// replaces the previous rule.
func (r *Router) AddRule(prefix, provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.rules {
		if r.rules[i].prefix == prefix {
			r.rules[i].provider = provider
			return
		}
	}
	r.rules = append(r.rules, routeRule{prefix: prefix, provider: provider})

	// Keep rules sorted longest prefix first so matching is a linear scan.
	sort.SliceStable(r.rules, func(i, j int) bool {
		return len(r.rules[i].prefix) > len(r.rules[j].prefix)
	})
}

// SetDefaultProvider names the provider that serves models matching no
// prefix rule.
func (r *Router) SetDefaultProvider(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultProvider = name
}

// Resolve returns the provider that serves the given model name. Models that
// match no prefix rule fall back to the default provider, when one is set.
func (r *Router) Resolve(model string) (types.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name := ""
	for _, rule := range r.rules {
		if strings.HasPrefix(model, rule.prefix) {
			name = rule.provider
			break
		}
	}
	if name == "" {
		name = r.defaultProvider
	}
	if name == "" {
		return nil, fmt.Errorf("model %q matches no routing rule: %w", model, ErrProviderMissing)
	}

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("model %q requires provider %q: %w", model, name, ErrProviderMissing)
	}
	return p, nil
}

// Complete routes the request to a provider and retries transient failures
// with exponential backoff. Non-retriable errors propagate immediately.
func (r *Router) Complete(ctx context.Context, req types.CompleteRequest) (*types.LLMResponse, error) {
	provider, err := r.Resolve(req.Model)
	if err != nil {
		return nil, err
	}

	backoff := r.initialBackoff
	var lastErr error

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		resp, err := provider.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !IsRetriable(err) {
			return nil, err
		}
		if attempt == r.maxAttempts {
			break
		}

		r.logger.Warn("provider call failed, retrying",
			zap.String("provider", provider.Name()),
			zap.String("model", req.Model),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-time.After(backoff):
			backoff *= DefaultBackoffFactor
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", r.maxAttempts, lastErr)
}

// Providers returns the registered provider names, sorted.
func (r *Router) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
