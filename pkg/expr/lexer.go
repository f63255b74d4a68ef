// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package expr

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenType int

const (
	tokEOF tokenType = iota
	tokIdent
	tokNumber
	tokString
	tokOp // punctuation and operators
)

type token struct {
	typ tokenType
	val string
	pos int
}

// multi-character operators, longest first
var multiOps = []string{"**", "==", "!=", "<=", ">="}

func lex(input string) ([]token, error) {
	var toks []token
	i := 0
	n := len(input)

	for i < n {
		c := rune(input[i])

		switch {
		case unicode.IsSpace(c):
			i++

		case c == '\'' || c == '"':
			quote := byte(c)
			j := i + 1
			var sb strings.Builder
			for j < n && input[j] != quote {
				if input[j] == '\\' && j+1 < n {
					j++
					switch input[j] {
					case 'n':
						sb.WriteByte('\n')
					case 't':
						sb.WriteByte('\t')
					default:
						sb.WriteByte(input[j])
					}
				} else {
					sb.WriteByte(input[j])
				}
				j++
			}
			if j >= n {
				return nil, errf(KindParse, "unterminated string at offset %d", i)
			}
			toks = append(toks, token{typ: tokString, val: sb.String(), pos: i})
			i = j + 1

		case unicode.IsDigit(c):
			j := i
			seenDot := false
			for j < n {
				d := input[j]
				if d == '.' && !seenDot && j+1 < n && unicode.IsDigit(rune(input[j+1])) {
					seenDot = true
					j++
					continue
				}
				if !unicode.IsDigit(rune(d)) {
					break
				}
				j++
			}
			toks = append(toks, token{typ: tokNumber, val: input[i:j], pos: i})
			i = j

		case unicode.IsLetter(c) || c == '_':
			j := i
			for j < n && (unicode.IsLetter(rune(input[j])) || unicode.IsDigit(rune(input[j])) || input[j] == '_') {
				j++
			}
			toks = append(toks, token{typ: tokIdent, val: input[i:j], pos: i})
			i = j

		default:
			matched := false
			for _, op := range multiOps {
				if strings.HasPrefix(input[i:], op) {
					toks = append(toks, token{typ: tokOp, val: op, pos: i})
					i += len(op)
					matched = true
					break
				}
			}
			if matched {
				continue
			}
			if strings.ContainsRune("+-*/%<>()[]{},.:|!", c) {
				toks = append(toks, token{typ: tokOp, val: string(c), pos: i})
				i++
				continue
			}
			return nil, errf(KindParse, "unexpected character %q at offset %d", c, i)
		}
	}

	toks = append(toks, token{typ: tokEOF, pos: n})
	return toks, nil
}

func (t token) String() string {
	if t.typ == tokEOF {
		return "end of expression"
	}
	return fmt.Sprintf("%q", t.val)
}
