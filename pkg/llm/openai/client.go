// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package openai implements the provider interface against the OpenAI chat
// completions API.
package openai

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

// Client implements types.Provider for OpenAI's API.
type Client struct {
	apiKey      string
	endpoint    string
	httpClient  *http.Client
	rateLimiter *llm.RateLimiter
}

// Config holds configuration for the OpenAI client.
type Config struct {
	APIKey      string
	Endpoint    string        // Default: https://api.openai.com/v1
	Timeout     time.Duration // Default: 60s
	RateLimiter *llm.RateLimiter
}

// Default OpenAI configuration values.
// The endpoint can be overridden via OPENAI_API_ENDPOINT or
// WEFT_LLM_OPENAI_ENDPOINT.
const (
	DefaultEndpoint = "https://api.openai.com/v1"
	DefaultTimeout  = 60 * time.Second
)

// NewClient creates a new OpenAI client.
func NewClient(config Config) *Client {
	if config.Endpoint == "" {
		if env := os.Getenv("OPENAI_API_ENDPOINT"); env != "" {
			config.Endpoint = env
		} else if env := os.Getenv("WEFT_LLM_OPENAI_ENDPOINT"); env != "" {
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
	return "openai"
}

// Complete sends a conversation to OpenAI and returns the response.
func (c *Client) Complete(ctx context.Context, req types.CompleteRequest) (*types.LLMResponse, error) {
	apiReq := &chatCompletionRequest{
		Model:       req.Model,
		Messages:    convertMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	resp, err := c.callAPI(ctx, apiReq)
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, &llm.ProviderError{
			Provider: c.Name(),
			Message:  "response contained no choices",
		}
	}

	return &types.LLMResponse{
		Content:          resp.Choices[0].Message.Content,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// ListModels returns the model identifiers the account can use.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.endpoint+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.doRequest(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, &llm.ProviderError{
			Provider:   c.Name(),
			StatusCode: httpResp.StatusCode,
			Message:    string(respBody),
			Retriable:  llm.RetriableStatus(httpResp.StatusCode),
		}
	}

	var models modelsResponse
	if err := json.Unmarshal(respBody, &models); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	ids := make([]string, 0, len(models.Data))
	for _, m := range models.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func convertMessages(messages []types.Message) []chatMessage {
	apiMessages := make([]chatMessage, 0, len(messages))
	for _, msg := range messages {
		apiMessages = append(apiMessages, chatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return apiMessages
}

func (c *Client) callAPI(ctx context.Context, req *chatCompletionRequest) (*chatCompletionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.doRequest(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		msg := string(respBody)
		var errResp chatCompletionResponse
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

	var resp chatCompletionResponse
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

// doRequest sends the request through the rate limiter when one is set.
// Transport failures surface as retriable provider errors.
func (c *Client) doRequest(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := c.httpClient.Do(req)
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
	return resp, nil
}

// Ensure Client implements the provider interface.
var _ types.Provider = (*Client)(nil)
