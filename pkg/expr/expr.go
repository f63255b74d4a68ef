// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package expr implements the sandboxed template language used for step
// inputs, conditions, and wait predicates. Expressions are parsed into a
// small AST and evaluated against a context map; there is no access to
// runtime internals and no side effects.
package expr

import (
	"fmt"
	"strings"
)

// Kind classifies an expression failure.
type Kind string

const (
	// KindParse indicates the expression text could not be parsed.
	KindParse Kind = "parse"

	// KindUnknownName indicates a lookup of an undefined symbol or key.
	KindUnknownName Kind = "unknown_name"

	// KindBadType indicates an operator or function applied to an
	// incompatible value.
	KindBadType Kind = "bad_type"

	// KindBadCall indicates a call to a function outside the allowlist
	// or with the wrong arity.
	KindBadCall Kind = "bad_call"
)

// Error is the failure type for all evaluation errors.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("expression error (%s): %s", e.Kind, e.Message)
}

func errf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Evaluate parses and evaluates a bare expression against ctx.
// The result preserves the native type of the expression value.
func Evaluate(expression string, ctx map[string]any) (any, error) {
	node, err := parse(expression)
	if err != nil {
		return nil, err
	}
	return eval(node, ctx)
}

// EvaluatePredicate evaluates a bare expression and reduces the result to a
// boolean using the language truthiness rules: empty, zero, false, and null
// values are false, everything else is true.
func EvaluatePredicate(expression string, ctx map[string]any) (bool, error) {
	v, err := Evaluate(expression, ctx)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

// BuildContext assembles the evaluation context for a run: every workflow
// input at the top level, a "steps" mapping keyed by step ID, and each step's
// outputs bound at the top level under a normalized identifier (hyphens
// rewritten to underscores).
func BuildContext(inputs map[string]any, steps map[string]map[string]any) map[string]any {
	ctx := make(map[string]any, len(inputs)+len(steps)+1)
	for k, v := range inputs {
		ctx[k] = v
	}

	stepsValue := make(map[string]any, len(steps))
	for id, outputs := range steps {
		asAny := make(map[string]any, len(outputs))
		for k, v := range outputs {
			asAny[k] = v
		}
		stepsValue[id] = asAny
		ctx[NormalizeIdent(id)] = asAny
	}
	ctx["steps"] = stepsValue
	return ctx
}

// NormalizeIdent rewrites a step ID into a legal expression identifier.
func NormalizeIdent(id string) string {
	return strings.ReplaceAll(id, "-", "_")
}

// truthy implements the predicate truth rules shared by conditions, wait
// predicates, and {% if %} template blocks.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int64:
		return x != 0
	case float64:
		return x != 0
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}
