// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/weftworks/weft/pkg/types"
)

// SynthesizeSystemPrompt builds a deterministic system prompt from a
// definition. Schema sections list parameters in sorted name order so the
// same definition always yields byte-identical prompts.
func SynthesizeSystemPrompt(def *Definition) string {
	if def.Prompts != nil && def.Prompts.System != "" {
		return def.Prompts.System
	}

	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, a %s agent.\n", def.Name, def.Role)
	if def.Description != "" {
		b.WriteString("\n")
		b.WriteString(def.Description)
		b.WriteString("\n")
	}

	if len(def.Capabilities) > 0 {
		caps := append([]string(nil), def.Capabilities...)
		sort.Strings(caps)
		b.WriteString("\nCapabilities:\n")
		for _, c := range caps {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}

	if len(def.Inputs) > 0 {
		b.WriteString("\nInputs:\n")
		writeSchema(&b, def.Inputs)
	}
	if len(def.Outputs) > 0 {
		b.WriteString("\nOutputs:\n")
		writeSchema(&b, def.Outputs)
	}

	fmt.Fprintf(&b, "\nConstraints: max %d tokens, %d second timeout.\n",
		def.Constraints.MaxTokens, def.Constraints.TimeoutSeconds)

	b.WriteString("\nRespond with a single JSON object containing exactly these fields: ")
	b.WriteString(strings.Join(sortedKeys(def.Outputs), ", "))
	b.WriteString(". Do not include any other text.")

	return b.String()
}

// BuildUserMessage serializes the input map as pretty-printed JSON.
func BuildUserMessage(inputs map[string]any) string {
	data, err := json.MarshalIndent(inputs, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", inputs)
	}
	return string(data)
}

func writeSchema(b *strings.Builder, params map[string]types.Parameter) {
	for _, name := range sortedKeys(params) {
		p := params[name]
		fmt.Fprintf(b, "- %s (%s)", name, p.Type)
		if p.Required {
			b.WriteString(" [required]")
		}
		if p.Description != "" {
			fmt.Fprintf(b, ": %s", p.Description)
		}
		b.WriteString("\n")
	}
}

func sortedKeys(params map[string]types.Parameter) []string {
	keys := make([]string, 0, len(params))
	for name := range params {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys
}
