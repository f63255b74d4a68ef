// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package expr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() map[string]any {
	return map[string]any{
		"name":  "weft",
		"count": 3,
		"ratio": 0.5,
		"ready": true,
		"items": []any{int64(1), int64(2), int64(3)},
		"steps": map[string]any{
			"check": map[string]any{"ready": false, "score": 42},
		},
		"fetch_data": map[string]any{"rows": int64(10)},
	}
}

func TestEvaluate_Literals(t *testing.T) {
	tests := []struct {
		expr string
		want any
	}{
		{"42", int64(42)},
		{"3.5", 3.5},
		{"'hello'", "hello"},
		{`"world"`, "world"},
		{"true", true},
		{"false", false},
		{"null", nil},
		{"[1, 2, 3]", []any{int64(1), int64(2), int64(3)}},
		{"{'a': 1}", map[string]any{"a": int64(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Evaluate(tt.expr, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_Arithmetic(t *testing.T) {
	tests := []struct {
		expr string
		want any
	}{
		{"1 + 2 * 3", int64(7)},
		{"(1 + 2) * 3", int64(9)},
		{"10 / 4", 2.5},
		{"10 % 3", int64(1)},
		{"3 ** 2", int64(9)},
		{"2 ** 3 ** 2", int64(512)}, // right-associative
		{"-5 + 2", int64(-3)},
		{"1 + 0.5", 1.5},
		{"'a' + 'b'", "ab"},
		{"count + 1", int64(4)},
	}

	ctx := testContext()
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Evaluate(tt.expr, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_ComparisonAndBool(t *testing.T) {
	tests := []struct {
		expr string
		want bool
	}{
		{"1 < 2", true},
		{"2 <= 2", true},
		{"3 > 4", false},
		{"1 == 1.0", true},
		{"'a' != 'b'", true},
		{"true and false", false},
		{"true or false", true},
		{"not false", true},
		{"count > 2 and ready", true},
		{"2 in items", true},
		{"'ef' in name", true},
		{"not (count == 3)", false},
	}

	ctx := testContext()
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Evaluate(tt.expr, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_AccessPaths(t *testing.T) {
	ctx := testContext()

	got, err := Evaluate("steps.check.score", ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)

	got, err = Evaluate("steps['check'].ready", ctx)
	require.NoError(t, err)
	assert.Equal(t, false, got)

	got, err = Evaluate("items[0]", ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)

	got, err = Evaluate("items[-1]", ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got)

	// Hyphenated step IDs are reachable through their normalized form.
	got, err = Evaluate("fetch_data.rows", ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got)
}

func TestEvaluate_Functions(t *testing.T) {
	tests := []struct {
		expr string
		want any
	}{
		{"len('abc')", int64(3)},
		{"len(items)", int64(3)},
		{"str(42)", "42"},
		{"int('7')", int64(7)},
		{"int(3.9)", int64(3)},
		{"float(2)", 2.0},
		{"bool('')", false},
		{"bool(items)", true},
		{"range(3)", []any{int64(0), int64(1), int64(2)}},
		{"range(1, 4)", []any{int64(1), int64(2), int64(3)}},
		{"list('ab')", []any{"a", "b"}},
	}

	ctx := testContext()
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Evaluate(tt.expr, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_DisallowedFunction(t *testing.T) {
	_, err := Evaluate("open('/etc/passwd')", nil)
	var ee *Error
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, KindBadCall, ee.Kind)
}

func TestEvaluate_UnknownName(t *testing.T) {
	_, err := Evaluate("missing + 1", testContext())
	var ee *Error
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, KindUnknownName, ee.Kind)

	_, err = Evaluate("steps.nope", testContext())
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, KindUnknownName, ee.Kind)
}

func TestEvaluate_BadType(t *testing.T) {
	_, err := Evaluate("'a' - 1", testContext())
	var ee *Error
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, KindBadType, ee.Kind)

	_, err = Evaluate("1 / 0", nil)
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, KindBadType, ee.Kind)
}

func TestEvaluate_Filters(t *testing.T) {
	got, err := Evaluate("items | tojson", testContext())
	require.NoError(t, err)
	assert.Equal(t, "[1,2,3]", got)

	got, err = Evaluate(`'{"a": 5}' | fromjson`, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(5)}, got)
}

// Determinism: the same expression over the same context always yields the
// same value.
func TestEvaluate_Deterministic(t *testing.T) {
	ctx := testContext()
	first, err := Evaluate("count * 2 + steps.check.score", ctx)
	require.NoError(t, err)
	for range 50 {
		got, err := Evaluate("count * 2 + steps.check.score", ctx)
		require.NoError(t, err)
		assert.Equal(t, first, got)
	}
}

func TestRenderTemplate_TypePreservation(t *testing.T) {
	ctx := testContext()

	// A whole-string interpolation keeps the native type.
	got, err := RenderTemplate("{{ count }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got)

	got, err = RenderTemplate("{{ items }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, got)

	// Mixed strings always render to strings.
	got, err = RenderTemplate("n={{ count }}!", ctx)
	require.NoError(t, err)
	assert.Equal(t, "n=3!", got)
}

func TestRenderTemplate_IfBlocks(t *testing.T) {
	ctx := testContext()

	got, err := RenderTemplate("{% if ready %}go{% else %}wait{% endif %}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "go", got)

	got, err = RenderTemplate("{% if count > 10 %}big{% else %}small{% endif %}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "small", got)

	_, err = RenderTemplate("{% if ready %}dangling", ctx)
	require.Error(t, err)
}

func TestResolveInputs(t *testing.T) {
	ctx := testContext()
	inputs := map[string]any{
		"greeting": "hello {{ name }}",
		"n":        "{{ count }}",
		"nested":   map[string]any{"score": "{{ steps.check.score }}"},
		"plain":    42,
	}

	resolved, err := ResolveInputs(inputs, ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello weft", resolved["greeting"])
	assert.Equal(t, int64(3), resolved["n"])
	assert.Equal(t, int64(42), resolved["nested"].(map[string]any)["score"])
	assert.Equal(t, 42, resolved["plain"])
}

func TestBuildContext(t *testing.T) {
	ctx := BuildContext(
		map[string]any{"env": "prod"},
		map[string]map[string]any{
			"fetch-data": {"rows": 10},
		},
	)

	assert.Equal(t, "prod", ctx["env"])

	v, err := Evaluate("steps['fetch-data'].rows", ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), v)

	v, err = Evaluate("fetch_data.rows", ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), v)
}

func TestEvaluatePredicate_Truthiness(t *testing.T) {
	tests := []struct {
		expr string
		want bool
	}{
		{"''", false},
		{"'x'", true},
		{"0", false},
		{"0.0", false},
		{"1", true},
		{"[]", false},
		{"items", true},
		{"null", false},
		{"steps.check.ready", false},
	}

	ctx := testContext()
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := EvaluatePredicate(tt.expr, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_ParseErrors(t *testing.T) {
	for _, bad := range []string{"1 +", "(1", "a.[", "'unterminated", "a ! b"} {
		_, err := Evaluate(bad, nil)
		var ee *Error
		require.True(t, errors.As(err, &ee), "expected parse failure for %q", bad)
		assert.Equal(t, KindParse, ee.Kind, "expression %q", bad)
	}
}
