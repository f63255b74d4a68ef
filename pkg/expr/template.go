// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package expr

import "strings"

// Template surface: "{{ expr }}" interpolates a value, "{% if expr %}" /
// "{% else %}" / "{% endif %}" conditionally includes literal segments.
// A string that is exactly one interpolation preserves the value's type;
// any mixed string renders to a string.

// HasTemplate reports whether s contains template delimiters.
func HasTemplate(s string) bool {
	return strings.Contains(s, "{{") || strings.Contains(s, "{%")
}

// RenderTemplate resolves a template string against ctx.
func RenderTemplate(s string, ctx map[string]any) (any, error) {
	// Single whole-string interpolation keeps the native type.
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") {
		inner := trimmed[2 : len(trimmed)-2]
		if !strings.Contains(inner, "{{") && !strings.Contains(inner, "}}") {
			return Evaluate(inner, ctx)
		}
	}

	parts, err := scanTemplate(s)
	if err != nil {
		return nil, err
	}
	tree, rest, err := buildTemplate(parts, false)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, errf(KindParse, "unexpected %q outside an if block", rest[0].text)
	}

	var sb strings.Builder
	if err := renderParts(&sb, tree, ctx); err != nil {
		return nil, err
	}
	return sb.String(), nil
}

// ResolveValue resolves templates inside an arbitrary value: strings render,
// maps and lists resolve element-wise, everything else passes through.
func ResolveValue(v any, ctx map[string]any) (any, error) {
	switch x := v.(type) {
	case string:
		if !HasTemplate(x) {
			return x, nil
		}
		return RenderTemplate(x, ctx)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			resolved, err := ResolveValue(item, ctx)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			resolved, err := ResolveValue(item, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	}
	return v, nil
}

// ResolveInputs resolves a step input map against ctx, preserving value
// types for whole-string interpolations.
func ResolveInputs(inputs map[string]any, ctx map[string]any) (map[string]any, error) {
	resolved, err := ResolveValue(inputs, ctx)
	if err != nil {
		return nil, err
	}
	if resolved == nil {
		return map[string]any{}, nil
	}
	return resolved.(map[string]any), nil
}

type partKind int

const (
	partText partKind = iota
	partInterp
	partTag
)

type templatePart struct {
	kind partKind
	text string // literal text, expression, or tag body
}

// renderable template tree
type renderNode struct {
	kind     partKind // partText or partInterp, or partTag for if nodes
	text     string
	cond     string
	thenTree []renderNode
	elseTree []renderNode
}

func scanTemplate(s string) ([]templatePart, error) {
	var parts []templatePart
	for len(s) > 0 {
		iInterp := strings.Index(s, "{{")
		iTag := strings.Index(s, "{%")

		next, kind := -1, partText
		if iInterp >= 0 && (iTag < 0 || iInterp < iTag) {
			next, kind = iInterp, partInterp
		} else if iTag >= 0 {
			next, kind = iTag, partTag
		}

		if next < 0 {
			parts = append(parts, templatePart{kind: partText, text: s})
			break
		}
		if next > 0 {
			parts = append(parts, templatePart{kind: partText, text: s[:next]})
			s = s[next:]
		}

		closer := "}}"
		if kind == partTag {
			closer = "%}"
		}
		end := strings.Index(s[2:], closer)
		if end < 0 {
			return nil, errf(KindParse, "unterminated %q in template", s[:2])
		}
		body := strings.TrimSpace(s[2 : 2+end])
		parts = append(parts, templatePart{kind: kind, text: body})
		s = s[2+end+len(closer):]
	}
	return parts, nil
}

// buildTemplate consumes parts into a render tree. When insideIf is true it
// stops at an else/endif tag and returns the remainder.
func buildTemplate(parts []templatePart, insideIf bool) ([]renderNode, []templatePart, error) {
	var tree []renderNode
	for len(parts) > 0 {
		p := parts[0]
		switch p.kind {
		case partText, partInterp:
			tree = append(tree, renderNode{kind: p.kind, text: p.text})
			parts = parts[1:]

		case partTag:
			fields := strings.Fields(p.text)
			if len(fields) == 0 {
				return nil, nil, errf(KindParse, "empty template tag")
			}
			switch fields[0] {
			case "if":
				cond := strings.TrimSpace(strings.TrimPrefix(p.text, "if"))
				if cond == "" {
					return nil, nil, errf(KindParse, "if tag needs a condition")
				}
				thenTree, rest, err := buildTemplate(parts[1:], true)
				if err != nil {
					return nil, nil, err
				}
				var elseTree []renderNode
				if len(rest) > 0 && rest[0].kind == partTag && rest[0].text == "else" {
					elseTree, rest, err = buildTemplate(rest[1:], true)
					if err != nil {
						return nil, nil, err
					}
				}
				if len(rest) == 0 || rest[0].kind != partTag || rest[0].text != "endif" {
					return nil, nil, errf(KindParse, "unterminated if block")
				}
				tree = append(tree, renderNode{kind: partTag, cond: cond, thenTree: thenTree, elseTree: elseTree})
				parts = rest[1:]

			case "else", "endif":
				if !insideIf {
					return nil, nil, errf(KindParse, "%q outside an if block", fields[0])
				}
				return tree, parts, nil

			default:
				return nil, nil, errf(KindParse, "unknown template tag %q", fields[0])
			}
		}
	}
	if insideIf {
		return tree, nil, nil
	}
	return tree, nil, nil
}

func renderParts(sb *strings.Builder, tree []renderNode, ctx map[string]any) error {
	for _, n := range tree {
		switch n.kind {
		case partText:
			sb.WriteString(n.text)
		case partInterp:
			v, err := Evaluate(n.text, ctx)
			if err != nil {
				return err
			}
			sb.WriteString(Stringify(v))
		case partTag:
			ok, err := EvaluatePredicate(n.cond, ctx)
			if err != nil {
				return err
			}
			branch := n.thenTree
			if !ok {
				branch = n.elseTree
			}
			if err := renderParts(sb, branch, ctx); err != nil {
				return err
			}
		}
	}
	return nil
}
