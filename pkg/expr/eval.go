// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package expr

import (
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

func eval(n node, ctx map[string]any) (any, error) {
	switch x := n.(type) {
	case litNode:
		return x.val, nil

	case identNode:
		v, ok := ctx[x.name]
		if !ok {
			return nil, errf(KindUnknownName, "unknown name %q", x.name)
		}
		return normalize(v), nil

	case listNode:
		items := make([]any, 0, len(x.items))
		for _, item := range x.items {
			v, err := eval(item, ctx)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil

	case dictNode:
		out := make(map[string]any, len(x.keys))
		for i := range x.keys {
			kv, err := eval(x.keys[i], ctx)
			if err != nil {
				return nil, err
			}
			key, ok := kv.(string)
			if !ok {
				return nil, errf(KindBadType, "dict keys must be strings, got %T", kv)
			}
			vv, err := eval(x.vals[i], ctx)
			if err != nil {
				return nil, err
			}
			out[key] = vv
		}
		return out, nil

	case attrNode:
		target, err := eval(x.target, ctx)
		if err != nil {
			return nil, err
		}
		return lookupKey(target, x.name)

	case indexNode:
		target, err := eval(x.target, ctx)
		if err != nil {
			return nil, err
		}
		key, err := eval(x.key, ctx)
		if err != nil {
			return nil, err
		}
		return index(target, key)

	case callNode:
		return evalCall(x, ctx)

	case unaryNode:
		operand, err := eval(x.operand, ctx)
		if err != nil {
			return nil, err
		}
		switch x.op {
		case "not":
			return !truthy(operand), nil
		case "-":
			switch v := operand.(type) {
			case int64:
				return -v, nil
			case float64:
				return -v, nil
			}
			return nil, errf(KindBadType, "cannot negate %T", operand)
		}
		return nil, errf(KindParse, "unknown unary operator %q", x.op)

	case binNode:
		return evalBinary(x, ctx)

	case pipeNode:
		return evalPipe(x, ctx)
	}
	return nil, errf(KindParse, "unknown expression node %T", n)
}

func evalBinary(b binNode, ctx map[string]any) (any, error) {
	// Short-circuit boolean operators.
	if b.op == "and" || b.op == "or" {
		left, err := eval(b.left, ctx)
		if err != nil {
			return nil, err
		}
		if b.op == "and" && !truthy(left) {
			return false, nil
		}
		if b.op == "or" && truthy(left) {
			return true, nil
		}
		right, err := eval(b.right, ctx)
		if err != nil {
			return nil, err
		}
		return truthy(right), nil
	}

	left, err := eval(b.left, ctx)
	if err != nil {
		return nil, err
	}
	right, err := eval(b.right, ctx)
	if err != nil {
		return nil, err
	}

	switch b.op {
	case "==":
		return looseEqual(left, right), nil
	case "!=":
		return !looseEqual(left, right), nil
	case "<", "<=", ">", ">=":
		return compare(b.op, left, right)
	case "in":
		return contains(right, left)
	case "+", "-", "*", "/", "%", "**":
		return arithmetic(b.op, left, right)
	}
	return nil, errf(KindParse, "unknown operator %q", b.op)
}

func arithmetic(op string, left, right any) (any, error) {
	if op == "+" {
		if ls, ok := left.(string); ok {
			if rs, ok := right.(string); ok {
				return ls + rs, nil
			}
		}
		if ll, ok := left.([]any); ok {
			if rl, ok := right.([]any); ok {
				return append(append([]any{}, ll...), rl...), nil
			}
		}
	}

	li, lf, lKind := numeric(left)
	ri, rf, rKind := numeric(right)
	if lKind == numNone || rKind == numNone {
		return nil, errf(KindBadType, "operator %q needs numbers, got %T and %T", op, left, right)
	}

	bothInt := lKind == numInt && rKind == numInt
	switch op {
	case "+":
		if bothInt {
			return li + ri, nil
		}
		return lf + rf, nil
	case "-":
		if bothInt {
			return li - ri, nil
		}
		return lf - rf, nil
	case "*":
		if bothInt {
			return li * ri, nil
		}
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, errf(KindBadType, "division by zero")
		}
		return lf / rf, nil
	case "%":
		if !bothInt {
			return nil, errf(KindBadType, "operator %% needs integers")
		}
		if ri == 0 {
			return nil, errf(KindBadType, "division by zero")
		}
		return li % ri, nil
	case "**":
		if bothInt && ri >= 0 {
			result := int64(1)
			for n := int64(0); n < ri; n++ {
				result *= li
			}
			return result, nil
		}
		return math.Pow(lf, rf), nil
	}
	return nil, errf(KindParse, "unknown arithmetic operator %q", op)
}

func compare(op string, left, right any) (any, error) {
	if ls, ok := left.(string); ok {
		if rs, ok := right.(string); ok {
			switch op {
			case "<":
				return ls < rs, nil
			case "<=":
				return ls <= rs, nil
			case ">":
				return ls > rs, nil
			case ">=":
				return ls >= rs, nil
			}
		}
	}

	_, lf, lKind := numeric(left)
	_, rf, rKind := numeric(right)
	if lKind == numNone || rKind == numNone {
		return nil, errf(KindBadType, "cannot compare %T with %T", left, right)
	}
	switch op {
	case "<":
		return lf < rf, nil
	case "<=":
		return lf <= rf, nil
	case ">":
		return lf > rf, nil
	case ">=":
		return lf >= rf, nil
	}
	return nil, errf(KindParse, "unknown comparison %q", op)
}

func contains(container, item any) (any, error) {
	switch c := container.(type) {
	case string:
		s, ok := item.(string)
		if !ok {
			return nil, errf(KindBadType, "'in' on a string needs a string operand")
		}
		return strings.Contains(c, s), nil
	case []any:
		for _, v := range c {
			if looseEqual(v, item) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		s, ok := item.(string)
		if !ok {
			return false, nil
		}
		_, present := c[s]
		return present, nil
	}
	return nil, errf(KindBadType, "'in' needs a string, list, or dict, got %T", container)
}

func evalPipe(p pipeNode, ctx map[string]any) (any, error) {
	v, err := eval(p.target, ctx)
	if err != nil {
		return nil, err
	}
	switch p.filter {
	case "tojson":
		data, err := json.Marshal(v)
		if err != nil {
			return nil, errf(KindBadType, "value is not JSON-serializable: %v", err)
		}
		return string(data), nil
	case "fromjson":
		s, ok := v.(string)
		if !ok {
			return nil, errf(KindBadType, "fromjson needs a string, got %T", v)
		}
		var out any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, errf(KindBadType, "invalid JSON: %v", err)
		}
		return normalize(out), nil
	}
	return nil, errf(KindBadCall, "unknown filter %q", p.filter)
}

func evalCall(c callNode, ctx map[string]any) (any, error) {
	args := make([]any, 0, len(c.args))
	for _, a := range c.args {
		v, err := eval(a, ctx)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	switch c.fn {
	case "range":
		return callRange(args)
	case "len":
		if len(args) != 1 {
			return nil, errf(KindBadCall, "len takes exactly one argument")
		}
		switch v := args[0].(type) {
		case string:
			return int64(len(v)), nil
		case []any:
			return int64(len(v)), nil
		case map[string]any:
			return int64(len(v)), nil
		}
		return nil, errf(KindBadType, "len of %T", args[0])
	case "str":
		if len(args) != 1 {
			return nil, errf(KindBadCall, "str takes exactly one argument")
		}
		return Stringify(args[0]), nil
	case "int":
		if len(args) != 1 {
			return nil, errf(KindBadCall, "int takes exactly one argument")
		}
		return callInt(args[0])
	case "float":
		if len(args) != 1 {
			return nil, errf(KindBadCall, "float takes exactly one argument")
		}
		return callFloat(args[0])
	case "bool":
		if len(args) != 1 {
			return nil, errf(KindBadCall, "bool takes exactly one argument")
		}
		return truthy(args[0]), nil
	case "list":
		if len(args) != 1 {
			return nil, errf(KindBadCall, "list takes exactly one argument")
		}
		return callList(args[0])
	case "dict":
		if len(args) == 0 {
			return map[string]any{}, nil
		}
		if len(args) == 1 {
			if m, ok := args[0].(map[string]any); ok {
				return m, nil
			}
		}
		return nil, errf(KindBadType, "dict takes a dict argument")
	}
	return nil, errf(KindBadCall, "function %q is not allowed", c.fn)
}

func callRange(args []any) (any, error) {
	ints := make([]int64, len(args))
	for i, a := range args {
		n, ok := a.(int64)
		if !ok {
			return nil, errf(KindBadType, "range arguments must be integers")
		}
		ints[i] = n
	}
	var start, stop, step int64
	switch len(ints) {
	case 1:
		start, stop, step = 0, ints[0], 1
	case 2:
		start, stop, step = ints[0], ints[1], 1
	case 3:
		start, stop, step = ints[0], ints[1], ints[2]
		if step == 0 {
			return nil, errf(KindBadCall, "range step must not be zero")
		}
	default:
		return nil, errf(KindBadCall, "range takes 1 to 3 arguments")
	}

	var out []any
	if step > 0 {
		for v := start; v < stop; v += step {
			out = append(out, v)
		}
	} else {
		for v := start; v > stop; v += step {
			out = append(out, v)
		}
	}
	return out, nil
}

func callInt(v any) (any, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case float64:
		return int64(x), nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return nil, errf(KindBadType, "cannot convert %q to int", x)
		}
		return n, nil
	}
	return nil, errf(KindBadType, "cannot convert %T to int", v)
}

func callFloat(v any) (any, error) {
	switch x := v.(type) {
	case int64:
		return float64(x), nil
	case float64:
		return x, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil, errf(KindBadType, "cannot convert %q to float", x)
		}
		return f, nil
	}
	return nil, errf(KindBadType, "cannot convert %T to float", v)
}

func callList(v any) (any, error) {
	switch x := v.(type) {
	case []any:
		return x, nil
	case string:
		out := make([]any, 0, len(x))
		for _, r := range x {
			out = append(out, string(r))
		}
		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = k
		}
		return out, nil
	}
	return nil, errf(KindBadType, "cannot convert %T to list", v)
}

func lookupKey(target any, name string) (any, error) {
	m, ok := asMap(target)
	if !ok {
		return nil, errf(KindBadType, "cannot access attribute %q on %T", name, target)
	}
	v, ok := m[name]
	if !ok {
		return nil, errf(KindUnknownName, "unknown attribute %q", name)
	}
	return normalize(v), nil
}

func index(target, key any) (any, error) {
	switch t := target.(type) {
	case []any:
		i, ok := key.(int64)
		if !ok {
			return nil, errf(KindBadType, "list index must be an integer, got %T", key)
		}
		if i < 0 {
			i += int64(len(t))
		}
		if i < 0 || i >= int64(len(t)) {
			return nil, errf(KindBadType, "list index %d out of range", i)
		}
		return normalize(t[i]), nil
	}
	if m, ok := asMap(target); ok {
		s, ok := key.(string)
		if !ok {
			return nil, errf(KindBadType, "dict key must be a string, got %T", key)
		}
		v, ok := m[s]
		if !ok {
			return nil, errf(KindUnknownName, "unknown key %q", s)
		}
		return normalize(v), nil
	}
	return nil, errf(KindBadType, "cannot subscript %T", target)
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	}
	return nil, false
}

// normalize rewrites Go numeric types so the evaluator only ever sees
// int64 and float64, and widens typed containers to their any forms.
func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	case map[string]string:
		out := make(map[string]any, len(x))
		for k, s := range x {
			out[k] = s
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	}
	return v
}

func looseEqual(a, b any) bool {
	_, af, aKind := numeric(a)
	_, bf, bKind := numeric(b)
	if aKind != numNone && bKind != numNone {
		return af == bf
	}
	return reflect.DeepEqual(a, b)
}

type numKind int

const (
	numNone numKind = iota
	numInt
	numFloat
)

func numeric(v any) (int64, float64, numKind) {
	switch x := normalize(v).(type) {
	case int64:
		return x, float64(x), numInt
	case float64:
		return int64(x), x, numFloat
	}
	return 0, 0, numNone
}

// Stringify renders a value the way interpolation embeds it in a string.
// Scalars render bare; composites render as compact JSON.
func Stringify(v any) string {
	switch x := normalize(v).(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(data)
	}
}
