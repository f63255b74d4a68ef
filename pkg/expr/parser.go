// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package expr

import "strconv"

// AST node kinds. The tree is deliberately small: there is no statement
// level, only expressions.
type node interface{}

type litNode struct{ val any }

type identNode struct{ name string }

type listNode struct{ items []node }

type dictNode struct {
	keys []node
	vals []node
}

type attrNode struct {
	target node
	name   string
}

type indexNode struct {
	target node
	key    node
}

type callNode struct {
	fn   string
	args []node
}

type unaryNode struct {
	op      string
	operand node
}

type binNode struct {
	op          string
	left, right node
}

type pipeNode struct {
	target node
	filter string
}

type parser struct {
	toks []token
	i    int
}

// parse turns a bare expression string into an AST.
func parse(input string) (node, error) {
	toks, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	n, err := p.expression()
	if err != nil {
		return nil, err
	}
	if p.cur().typ != tokEOF {
		return nil, errf(KindParse, "unexpected %s after expression", p.cur())
	}
	return n, nil
}

func (p *parser) cur() token { return p.toks[p.i] }

func (p *parser) acceptOp(op string) bool {
	if p.cur().typ == tokOp && p.cur().val == op {
		p.i++
		return true
	}
	return false
}

func (p *parser) acceptIdent(name string) bool {
	if p.cur().typ == tokIdent && p.cur().val == name {
		p.i++
		return true
	}
	return false
}

func (p *parser) expectOp(op string) error {
	if !p.acceptOp(op) {
		return errf(KindParse, "expected %q, found %s", op, p.cur())
	}
	return nil
}

// expression := or-expr { "|" filter-name }
func (p *parser) expression() (node, error) {
	left, err := p.orExpr()
	if err != nil {
		return nil, err
	}
	for p.acceptOp("|") {
		if p.cur().typ != tokIdent {
			return nil, errf(KindParse, "expected filter name after '|', found %s", p.cur())
		}
		left = pipeNode{target: left, filter: p.cur().val}
		p.i++
	}
	return left, nil
}

func (p *parser) orExpr() (node, error) {
	left, err := p.andExpr()
	if err != nil {
		return nil, err
	}
	for p.acceptIdent("or") {
		right, err := p.andExpr()
		if err != nil {
			return nil, err
		}
		left = binNode{op: "or", left: left, right: right}
	}
	return left, nil
}

func (p *parser) andExpr() (node, error) {
	left, err := p.notExpr()
	if err != nil {
		return nil, err
	}
	for p.acceptIdent("and") {
		right, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		left = binNode{op: "and", left: left, right: right}
	}
	return left, nil
}

func (p *parser) notExpr() (node, error) {
	if p.acceptIdent("not") {
		operand, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: "not", operand: operand}, nil
	}
	return p.comparison()
}

func (p *parser) comparison() (node, error) {
	left, err := p.additive()
	if err != nil {
		return nil, err
	}
	for {
		op := ""
		if p.cur().typ == tokOp {
			switch p.cur().val {
			case "==", "!=", "<", "<=", ">", ">=":
				op = p.cur().val
			}
		} else if p.cur().typ == tokIdent && p.cur().val == "in" {
			op = "in"
		}
		if op == "" {
			return left, nil
		}
		p.i++
		right, err := p.additive()
		if err != nil {
			return nil, err
		}
		left = binNode{op: op, left: left, right: right}
	}
}

func (p *parser) additive() (node, error) {
	left, err := p.multiplicative()
	if err != nil {
		return nil, err
	}
	for p.cur().typ == tokOp && (p.cur().val == "+" || p.cur().val == "-") {
		op := p.cur().val
		p.i++
		right, err := p.multiplicative()
		if err != nil {
			return nil, err
		}
		left = binNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) multiplicative() (node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.cur().typ == tokOp && (p.cur().val == "*" || p.cur().val == "/" || p.cur().val == "%") {
		op := p.cur().val
		p.i++
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = binNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) unary() (node, error) {
	if p.acceptOp("-") {
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: "-", operand: operand}, nil
	}
	return p.power()
}

// power is right-associative: 2 ** 3 ** 2 == 2 ** (3 ** 2).
func (p *parser) power() (node, error) {
	base, err := p.postfix()
	if err != nil {
		return nil, err
	}
	if p.acceptOp("**") {
		exp, err := p.unary()
		if err != nil {
			return nil, err
		}
		return binNode{op: "**", left: base, right: exp}, nil
	}
	return base, nil
}

func (p *parser) postfix() (node, error) {
	target, err := p.primary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.acceptOp("."):
			if p.cur().typ != tokIdent {
				return nil, errf(KindParse, "expected attribute name after '.', found %s", p.cur())
			}
			target = attrNode{target: target, name: p.cur().val}
			p.i++

		case p.acceptOp("["):
			key, err := p.expression()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp("]"); err != nil {
				return nil, err
			}
			target = indexNode{target: target, key: key}

		case p.acceptOp("("):
			ident, ok := target.(identNode)
			if !ok {
				return nil, errf(KindBadCall, "only allowlisted functions may be called")
			}
			var args []node
			if !p.acceptOp(")") {
				for {
					arg, err := p.expression()
					if err != nil {
						return nil, err
					}
					args = append(args, arg)
					if p.acceptOp(",") {
						continue
					}
					if err := p.expectOp(")"); err != nil {
						return nil, err
					}
					break
				}
			}
			target = callNode{fn: ident.name, args: args}

		default:
			return target, nil
		}
	}
}

func (p *parser) primary() (node, error) {
	t := p.cur()
	switch t.typ {
	case tokNumber:
		p.i++
		if i, err := strconv.ParseInt(t.val, 10, 64); err == nil {
			return litNode{val: i}, nil
		}
		f, err := strconv.ParseFloat(t.val, 64)
		if err != nil {
			return nil, errf(KindParse, "invalid number %q", t.val)
		}
		return litNode{val: f}, nil

	case tokString:
		p.i++
		return litNode{val: t.val}, nil

	case tokIdent:
		switch t.val {
		case "true":
			p.i++
			return litNode{val: true}, nil
		case "false":
			p.i++
			return litNode{val: false}, nil
		case "null", "none":
			p.i++
			return litNode{val: nil}, nil
		}
		p.i++
		return identNode{name: t.val}, nil

	case tokOp:
		switch t.val {
		case "(":
			p.i++
			inner, err := p.expression()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return inner, nil

		case "[":
			p.i++
			var items []node
			if !p.acceptOp("]") {
				for {
					item, err := p.expression()
					if err != nil {
						return nil, err
					}
					items = append(items, item)
					if p.acceptOp(",") {
						continue
					}
					if err := p.expectOp("]"); err != nil {
						return nil, err
					}
					break
				}
			}
			return listNode{items: items}, nil

		case "{":
			p.i++
			var keys, vals []node
			if !p.acceptOp("}") {
				for {
					key, err := p.expression()
					if err != nil {
						return nil, err
					}
					if err := p.expectOp(":"); err != nil {
						return nil, err
					}
					val, err := p.expression()
					if err != nil {
						return nil, err
					}
					keys = append(keys, key)
					vals = append(vals, val)
					if p.acceptOp(",") {
						continue
					}
					if err := p.expectOp("}"); err != nil {
						return nil, err
					}
					break
				}
			}
			return dictNode{keys: keys, vals: vals}, nil
		}
	}
	return nil, errf(KindParse, "unexpected %s", t)
}
