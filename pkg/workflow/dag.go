// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package workflow

import (
	"fmt"
	"sort"
	"strings"
)

// CycleError reports a dependency cycle among steps.
type CycleError struct {
	// Path is one offending cycle, closed (first element repeated last)
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Path, " -> "))
}

// BuildLayers orders the top-level steps of a workflow into execution
// layers using Kahn's algorithm. Each layer contains only steps whose
// dependencies all live in earlier layers. Steps within a layer are sorted
// by ID so planning output is deterministic.
func BuildLayers(steps []Step) ([][]string, error) {
	indegree := make(map[string]int, len(steps))
	successors := make(map[string][]string, len(steps))
	for i := range steps {
		indegree[steps[i].ID] = len(steps[i].DependsOn)
		for _, dep := range steps[i].DependsOn {
			successors[dep] = append(successors[dep], steps[i].ID)
		}
	}

	var layers [][]string
	placed := 0
	for placed < len(steps) {
		var layer []string
		for i := range steps {
			if indegree[steps[i].ID] == 0 {
				layer = append(layer, steps[i].ID)
			}
		}
		if len(layer) == 0 {
			return nil, &CycleError{Path: findCycle(steps, indegree)}
		}
		sort.Strings(layer)

		for _, id := range layer {
			// -1 marks the step as placed so later passes skip it.
			indegree[id] = -1
			for _, succ := range successors[id] {
				indegree[succ]--
			}
		}

		layers = append(layers, layer)
		placed += len(layer)
	}

	return layers, nil
}

// findCycle walks the unplaced remainder of the graph to report one
// concrete cycle path.
func findCycle(steps []Step, indegree map[string]int) []string {
	deps := make(map[string][]string, len(steps))
	for i := range steps {
		if indegree[steps[i].ID] < 0 {
			continue
		}
		for _, dep := range steps[i].DependsOn {
			if indegree[dep] >= 0 {
				deps[steps[i].ID] = append(deps[steps[i].ID], dep)
			}
		}
	}

	// Every remaining node sits on or leads into a cycle; follow dependency
	// edges until a node repeats.
	var start string
	for i := range steps {
		if indegree[steps[i].ID] >= 0 {
			start = steps[i].ID
			break
		}
	}

	seen := make(map[string]int)
	var path []string
	cur := start
	for {
		if at, ok := seen[cur]; ok {
			cycle := append([]string{}, path[at:]...)
			return append(cycle, cur)
		}
		seen[cur] = len(path)
		path = append(path, cur)

		next := deps[cur]
		if len(next) == 0 {
			return path
		}
		sort.Strings(next)
		cur = next[0]
	}
}
