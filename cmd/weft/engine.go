// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/weftworks/weft/internal/config"
	"github.com/weftworks/weft/internal/log"
	"github.com/weftworks/weft/pkg/checkpoint"
	"github.com/weftworks/weft/pkg/engine"
	"github.com/weftworks/weft/pkg/llm"
	"github.com/weftworks/weft/pkg/llm/anthropic"
	"github.com/weftworks/weft/pkg/llm/openai"
	"github.com/weftworks/weft/pkg/workflow"
)

// buildEngine assembles the engine from configuration: provider clients
// behind a router, the checkpoint store, and the registries. The returned
// close function releases the store.
func buildEngine(ctx context.Context, cfg *config.Config) (*engine.Engine, func(), error) {
	logger := log.Logger()

	var limiter *llm.RateLimiter
	if cfg.LLM.RateLimit.Enabled {
		limiter = llm.NewRateLimiter(llm.RateLimiterConfig{
			Enabled:           true,
			RequestsPerSecond: cfg.LLM.RateLimit.RequestsPerSecond,
			BurstCapacity:     cfg.LLM.RateLimit.BurstCapacity,
			Logger:            logger.Named("ratelimit"),
		})
	}

	router := llm.NewRouter(llm.RouterConfig{
		MaxAttempts:     cfg.LLM.MaxAttempts,
		DefaultProvider: cfg.LLM.DefaultProvider,
		Logger:          logger.Named("llm"),
	})
	timeout := time.Duration(cfg.LLM.TimeoutSeconds) * time.Second
	if cfg.LLM.OpenAIAPIKey != "" {
		router.Register(openai.NewClient(openai.Config{
			APIKey:      cfg.LLM.OpenAIAPIKey,
			Endpoint:    cfg.LLM.OpenAIEndpoint,
			Timeout:     timeout,
			RateLimiter: limiter,
		}))
	}
	if cfg.LLM.AnthropicAPIKey != "" {
		router.Register(anthropic.NewClient(anthropic.Config{
			APIKey:      cfg.LLM.AnthropicAPIKey,
			Endpoint:    cfg.LLM.AnthropicEndpoint,
			Timeout:     timeout,
			RateLimiter: limiter,
		}))
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	eng := engine.New(engine.Config{
		Router:       router,
		DefaultModel: cfg.LLM.DefaultModel,
		Checkpoints:  store,
		Logger:       logger,
	})
	return eng, closeStore, nil
}

func openStore(ctx context.Context, cfg *config.Config) (checkpoint.Store, func(), error) {
	if cfg.Database.Path == ":memory:" {
		return checkpoint.NewMemoryStore(), func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating data directory: %w", err)
	}
	store, err := checkpoint.NewSQLiteStore(ctx, cfg.Database.Path, log.Logger().Named("checkpoint"))
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

// loadDefinitions fills the registries from the definitions directory, when
// it exists. A missing default directory is not an error; the caller may be
// running a single workflow file.
func loadDefinitions(eng *engine.Engine, dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	agents, workflows, err := eng.LoadDirectory(dir)
	if err != nil {
		return err
	}
	log.Debug("definitions loaded",
		zap.String("dir", dir),
		zap.Int("agents", agents),
		zap.Int("workflows", workflows))
	return nil
}

// resolveWorkflow accepts a registered workflow name or a definition file
// path. Files are registered on the fly so cross-workflow lookups still work.
func resolveWorkflow(eng *engine.Engine, ref string) (*workflow.Definition, error) {
	if isDefinitionFile(ref) {
		def, err := workflow.LoadFile(ref)
		if err != nil {
			return nil, err
		}
		if _, lookupErr := eng.GetWorkflow(def.Name); lookupErr != nil {
			if err := eng.RegisterWorkflow(def); err != nil {
				return nil, err
			}
		}
		return def, nil
	}
	return eng.GetWorkflow(ref)
}

func isDefinitionFile(ref string) bool {
	switch strings.ToLower(filepath.Ext(ref)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// parseInputs turns repeated key=value flags into a workflowInputs map.
// Values are decoded as JSON when possible so numbers, booleans, and
// structured values survive; anything else passes through as a string.
func parseInputs(pairs []string) (map[string]any, error) {
	inputs := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid input %q, expected key=value", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		inputs[key] = v
	}
	return inputs, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
