// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package agent

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"gopkg.in/yaml.v3"
)

// ParseOutput turns a raw model response into a structured output map. Every
// response string maps to some dict; parsing never fails outright.
//
// Resolution order:
//  1. strip one enclosing code fence
//  2. structured parse (JSON, repaired JSON, then YAML); objects win as-is
//  3. parsed scalars and arrays wrap as {"result": value}
//  4. unparseable text binds whole to the single declared output field
//  5. unparseable text with zero or many output fields binds to "result"
func ParseOutput(raw string, declared []string) map[string]any {
	text := stripCodeFence(strings.TrimSpace(raw))

	if v, ok := parseStructured(text); ok {
		if obj, isObj := v.(map[string]any); isObj {
			return obj
		}
		return map[string]any{"result": v}
	}

	if len(declared) == 1 {
		return map[string]any{declared[0]: text}
	}
	return map[string]any{"result": text}
}

// parseStructured tries JSON first, then a repaired-JSON pass for the usual
// model sloppiness (trailing commas, single quotes), then YAML.
func parseStructured(text string) (any, bool) {
	if text == "" {
		return nil, false
	}

	var v any
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		return v, true
	}

	// Only attempt salvage on text that plausibly wants to be structured.
	if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") {
		if repaired, err := jsonrepair.JSONRepair(text); err == nil {
			if err := json.Unmarshal([]byte(repaired), &v); err == nil {
				return v, true
			}
		}
		var yv map[string]any
		if err := yaml.Unmarshal([]byte(text), &yv); err == nil && yv != nil {
			return normalizeYAML(yv), true
		}
	}

	return nil, false
}

// stripCodeFence removes a single enclosing markdown code fence. The fence
// tag (json, yaml, ...) is discarded.
func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}

	rest := text[3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// Anything on the fence line itself is a language tag.
		rest = rest[nl+1:]
	}

	end := strings.LastIndex(rest, "```")
	if end < 0 {
		return text
	}
	return strings.TrimSpace(rest[:end])
}

// normalizeYAML rewrites yaml.v3's map[string]any values so nested maps use
// string keys, matching what json.Unmarshal produces.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeYAML(val)
		}
		return out
	default:
		return v
	}
}
