// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/weftworks/weft/pkg/agent"
)

// Loader errors.
var (
	ErrFileNotFound      = errors.New("definition file not found")
	ErrUnsupportedFormat = errors.New("unsupported definition format")
	ErrMalformed         = errors.New("malformed definition")
)

// LoadFile reads a workflow definition from a YAML or JSON file. The
// definition is validated and defaulted before it is returned.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrFileNotFound)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".json":
		return ParseJSON(data)
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
}

// ParseYAML parses, validates, and defaults a YAML workflow definition.
func ParseYAML(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return finishLoad(&def)
}

// ParseJSON parses, validates, and defaults a JSON workflow definition.
func ParseJSON(data []byte) (*Definition, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return finishLoad(&def)
}

func finishLoad(def *Definition) (*Definition, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	def.ApplyDefaults()
	return def, nil
}

// LoadAgentFile reads an agent definition from a YAML or JSON file.
func LoadAgentFile(path string) (*agent.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrFileNotFound)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var def agent.Definition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	def.ApplyDefaults()
	return &def, nil
}

// IsAgentFile reports whether path follows the <name>.agent.* naming
// convention.
func IsAgentFile(path string) bool {
	return strings.Contains(strings.ToLower(filepath.Base(path)), ".agent.")
}

// DiscoverFiles finds definition files under dir matching the naming
// conventions <name>.workflow.{yaml,yml,json} and
// <name>.agent.{yaml,yml,json}. It returns the two lists sorted by path.
func DiscoverFiles(dir string) (workflows, agents []string, err error) {
	entries := []struct {
		marker string
		out    *[]string
	}{
		{".workflow.", &workflows},
		{".agent.", &agents},
	}

	walkErr := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			return nil
		}
		for _, e := range entries {
			if strings.Contains(strings.ToLower(filepath.Base(path)), e.marker) {
				*e.out = append(*e.out, path)
			}
		}
		return nil
	})
	if walkErr != nil {
		return nil, nil, fmt.Errorf("failed to scan %s: %w", dir, walkErr)
	}

	sort.Strings(workflows)
	sort.Strings(agents)
	return workflows, agents, nil
}
