// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package llm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/llm"
	"github.com/weftworks/weft/pkg/llm/mock"
	"github.com/weftworks/weft/pkg/types"
)

func newTestRouter(t *testing.T) (*llm.Router, *mock.Provider, *mock.Provider) {
	t.Helper()

	r := llm.NewRouter(llm.RouterConfig{
		InitialBackoff: time.Millisecond,
	})
	openaiMock := mock.New("openai")
	anthropicMock := mock.New("anthropic")
	r.Register(openaiMock)
	r.Register(anthropicMock)
	return r, openaiMock, anthropicMock
}

func TestRouter_PrefixDispatch(t *testing.T) {
	tests := []struct {
		model    string
		provider string
	}{
		{"gpt-4.1", "openai"},
		{"o1-preview", "openai"},
		{"o3-mini", "openai"},
		{"ft:gpt-4o:acme::abc123", "openai"},
		{"claude-sonnet-4-5", "anthropic"},
	}

	r, _, _ := newTestRouter(t)
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			p, err := r.Resolve(tt.model)
			require.NoError(t, err)
			assert.Equal(t, tt.provider, p.Name())
		})
	}
}

func TestRouter_LongestPrefixWins(t *testing.T) {
	r, _, _ := newTestRouter(t)

	local := mock.New("local")
	r.Register(local)
	r.AddRule("gpt-4-local", "local")

	p, err := r.Resolve("gpt-4-local-q4")
	require.NoError(t, err)
	assert.Equal(t, "local", p.Name())

	// The shorter "gpt-" rule still serves everything else.
	p, err = r.Resolve("gpt-4.1")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
}

func TestRouter_ProviderMissing(t *testing.T) {
	r := llm.NewRouter(llm.RouterConfig{})

	// Rule exists but no provider was registered.
	_, err := r.Resolve("gpt-4.1")
	assert.ErrorIs(t, err, llm.ErrProviderMissing)

	// No rule matches and no default provider is configured.
	_, err = r.Resolve("llama-3")
	assert.ErrorIs(t, err, llm.ErrProviderMissing)
}

func TestRouter_DefaultProviderFallback(t *testing.T) {
	r := llm.NewRouter(llm.RouterConfig{DefaultProvider: "anthropic"})
	r.Register(mock.New("openai"))
	r.Register(mock.New("anthropic"))

	// Unknown model families route to the default provider.
	p, err := r.Resolve("llama-3-70b")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())

	// Prefix rules still outrank the default.
	p, err = r.Resolve("gpt-4.1")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	// A matched rule whose provider is unregistered stays a hard error.
	r.AddRule("mistral-", "mistral")
	_, err = r.Resolve("mistral-large")
	assert.ErrorIs(t, err, llm.ErrProviderMissing)

	// The default can be changed after construction.
	r.SetDefaultProvider("openai")
	p, err = r.Resolve("llama-3-70b")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
}

func TestRouter_RetriesTransientErrors(t *testing.T) {
	r, openaiMock, _ := newTestRouter(t)

	openaiMock.
		FailWith(&llm.ProviderError{Provider: "openai", StatusCode: 429, Retriable: true}).
		FailWith(&llm.ProviderError{Provider: "openai", StatusCode: 503, Retriable: true}).
		Respond("hi", "hello")

	resp, err := r.Complete(context.Background(), types.CompleteRequest{
		Model:    "gpt-4.1",
		Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Len(t, openaiMock.Calls(), 3)
}

func TestRouter_ExhaustsAttempts(t *testing.T) {
	r, openaiMock, _ := newTestRouter(t)

	throttle := &llm.ProviderError{Provider: "openai", StatusCode: 429, Retriable: true}
	openaiMock.FailWith(throttle, throttle, throttle, throttle)

	_, err := r.Complete(context.Background(), types.CompleteRequest{
		Model:    "gpt-4.1",
		Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.Len(t, openaiMock.Calls(), 3)

	var pe *llm.ProviderError
	assert.ErrorAs(t, err, &pe)
}

func TestRouter_NonRetriablePropagatesImmediately(t *testing.T) {
	r, openaiMock, _ := newTestRouter(t)

	openaiMock.FailWith(&llm.ProviderError{Provider: "openai", StatusCode: 401, Message: "bad key"})

	_, err := r.Complete(context.Background(), types.CompleteRequest{
		Model:    "gpt-4.1",
		Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.Len(t, openaiMock.Calls(), 1)
}

func TestRouter_CancelDuringBackoff(t *testing.T) {
	r := llm.NewRouter(llm.RouterConfig{InitialBackoff: time.Minute})
	p := mock.New("openai")
	p.FailWith(&llm.ProviderError{Provider: "openai", StatusCode: 429, Retriable: true})
	r.Register(p)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Complete(ctx, types.CompleteRequest{
		Model:    "gpt-4.1",
		Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}},
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIsRetriable(t *testing.T) {
	assert.True(t, llm.IsRetriable(&llm.ProviderError{Retriable: true}))
	assert.False(t, llm.IsRetriable(&llm.ProviderError{}))
	assert.False(t, llm.IsRetriable(errors.New("boom")))
	assert.False(t, llm.IsRetriable(context.Canceled))
}
