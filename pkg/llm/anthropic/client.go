// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package anthropic implements the provider interface against the Anthropic
// messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/weftworks/weft/pkg/llm"
	"github.com/weftworks/weft/pkg/types"
)

// Client implements types.Provider for Anthropic's API.
type Client struct {
	apiKey      string
	endpoint    string
	httpClient  *http.Client
	rateLimiter *llm.RateLimiter
}

// Config holds configuration for the Anthropic client.
type Config struct {
	APIKey      string
	Endpoint    string        // Default: https://api.anthropic.com/v1
	Timeout     time.Duration // Default: 60s
	RateLimiter *llm.RateLimiter
}

// Default Anthropic configuration values.
// The endpoint can be overridden via ANTHROPIC_API_ENDPOINT or
// WEFT_LLM_ANTHROPIC_ENDPOINT.
const (
	DefaultEndpoint  = "https://api.anthropic.com/v1"
	DefaultTimeout   = 60 * time.Second
	DefaultMaxTokens = 4096
	anthropicVersion = "2023-06-01"
)

// NewClient creates a new Anthropic client.
func NewClient(config Config) *Client {
	if config.Endpoint == "" {
		if env := os.Getenv("ANTHROPIC_API_ENDPOINT"); env != "" {
			config.Endpoint = env
		} else if env := os.Getenv("WEFT_LLM_ANTHROPIC_ENDPOINT"); env != "" {
			config.Endpoint = env
		} else {
			config.Endpoint = DefaultEndpoint
		}
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	return &Client{
		apiKey:      config.APIKey,
		endpoint:    strings.TrimRight(config.Endpoint, "/"),
		rateLimiter: config.RateLimiter,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "anthropic"
}

// Complete sends a conversation to Anthropic and returns the response.
func (c *Client) Complete(ctx context.Context, req types.CompleteRequest) (*types.LLMResponse, error) {
	apiReq := &messagesRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if apiReq.MaxTokens == 0 {
		apiReq.MaxTokens = DefaultMaxTokens
	}

	// Anthropic takes the system prompt as a dedicated field, not a message.
	for _, msg := range req.Messages {
		if msg.Role == types.RoleSystem {
			if apiReq.System != "" {
				apiReq.System += "\n\n"
			}
			apiReq.System += msg.Content
			continue
		}
		apiReq.Messages = append(apiReq.Messages, apiMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	resp, err := c.callAPI(ctx, apiReq)
	if err != nil {
		return nil, err
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &types.LLMResponse{
		Content:          content.String(),
		Model:            resp.Model,
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
	}, nil
}

// ListModels returns the models this client is configured to serve. The
// Anthropic API has no discovery endpoint, so this is a static list.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	return []string{
		"claude-sonnet-4-5",
		"claude-opus-4-1",
		"claude-haiku-3-5",
	}, nil
}

func (c *Client) callAPI(ctx context.Context, req *messagesRequest) (*messagesResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.endpoint+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &llm.ProviderError{
			Provider:  c.Name(),
			Message:   err.Error(),
			Retriable: true,
		}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		msg := string(respBody)
		var errResp messagesResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != nil {
			msg = errResp.Error.Message
		}
		return nil, &llm.ProviderError{
			Provider:   c.Name(),
			StatusCode: httpResp.StatusCode,
			Message:    msg,
			Retriable:  llm.RetriableStatus(httpResp.StatusCode),
		}
	}

	var resp messagesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if resp.Error != nil {
		return nil, &llm.ProviderError{
			Provider: c.Name(),
			Message:  fmt.Sprintf("%s (type: %s)", resp.Error.Message, resp.Error.Type),
		}
	}

	return &resp, nil
}

// Ensure Client implements the provider interface.
var _ types.Provider = (*Client)(nil)
