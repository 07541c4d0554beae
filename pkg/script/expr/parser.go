// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package expr

import (
	"strconv"
)

// Precedence, lowest first:
//
//	or, ||
//	and, &&
//	not, !
//	comparisons, in, not in
//	+ -
//	* / %
//	unary - +
//	call, attribute, index
type parser struct {
	tokens []token
	pos    int
}

func parseExpression(src string) (node, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	p.skipSeparators()
	if p.peek().kind == tokenEOF {
		return nil, &SyntaxError{Pos: 0, Msg: "empty expression"}
	}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	p.skipSeparators()
	if tok := p.peek(); tok.kind != tokenEOF {
		return nil, &SyntaxError{Pos: tok.pos, Msg: "unexpected '" + tok.text + "'"}
	}
	return n, nil
}

func parseStatements(src string) ([]assignment, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	var res []assignment
	for {
		p.skipSeparators()
		tok := p.peek()
		if tok.kind == tokenEOF {
			break
		}
		if tok.kind != tokenIdent {
			return nil, &SyntaxError{Pos: tok.pos, Msg: "expected assignment target"}
		}
		p.advance()
		opTok := p.peek()
		if opTok.kind != tokenOperator || !isAssignOp(opTok.text) {
			return nil, &SyntaxError{Pos: opTok.pos, Msg: "expected assignment operator after '" + tok.text + "'"}
		}
		p.advance()
		value, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		res = append(res, assignment{name: tok.text, op: opTok.text, value: value})
		if next := p.peek(); next.kind != tokenSeparator && next.kind != tokenEOF {
			return nil, &SyntaxError{Pos: next.pos, Msg: "unexpected '" + next.text + "'"}
		}
	}
	if len(res) == 0 {
		return nil, &SyntaxError{Pos: 0, Msg: "empty statement"}
	}
	return res, nil
}

func isAssignOp(op string) bool {
	switch op {
	case "=", "+=", "-=", "*=", "/=":
		return true
	}
	return false
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) peekAt(offset int) token {
	if p.pos+offset >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+offset]
}

func (p *parser) advance() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) skipSeparators() {
	for p.peek().kind == tokenSeparator {
		p.advance()
	}
}

func (p *parser) isOp(texts ...string) bool {
	tok := p.peek()
	if tok.kind != tokenOperator && tok.kind != tokenKeyword {
		return false
	}
	for _, t := range texts {
		if tok.text == t {
			return true
		}
	}
	return false
}

func (p *parser) expect(text string) error {
	tok := p.peek()
	if tok.kind != tokenOperator || tok.text != text {
		if tok.kind == tokenEOF {
			return &SyntaxError{Pos: tok.pos, Msg: "expected '" + text + "' but reached end of input"}
		}
		return &SyntaxError{Pos: tok.pos, Msg: "expected '" + text + "' but found '" + tok.text + "'"}
	}
	p.advance()
	return nil
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isOp("or", "||") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = logical{op: "or", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isOp("and", "&&") {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = logical{op: "and", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (node, error) {
	if p.isOp("not", "!") {
		op := p.advance().text
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return unary{op: op, operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *parser) comparisonOp() (string, bool) {
	tok := p.peek()
	switch {
	case tok.kind == tokenOperator && (tok.text == "==" || tok.text == "!=" || tok.text == "<" ||
		tok.text == "<=" || tok.text == ">" || tok.text == ">="):
		p.advance()
		return tok.text, true
	case tok.kind == tokenKeyword && tok.text == "in":
		p.advance()
		return "in", true
	case tok.kind == tokenKeyword && tok.text == "not" && p.peekAt(1).kind == tokenKeyword && p.peekAt(1).text == "in":
		p.advance()
		p.advance()
		return "not in", true
	}
	return "", false
}

func (p *parser) parseComparison() (node, error) {
	first, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	cmp := comparison{operands: []node{first}}
	for {
		op, ok := p.comparisonOp()
		if !ok {
			break
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		cmp.ops = append(cmp.ops, op)
		cmp.operands = append(cmp.operands, right)
	}
	if len(cmp.ops) == 0 {
		return first, nil
	}
	return cmp, nil
}

func (p *parser) parseAdditive() (node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokenOperator && p.isOp("+", "-") {
		op := p.advance().text
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = binary{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokenOperator && p.isOp("*", "/", "%") {
		op := p.advance().text
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binary{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.peek().kind == tokenOperator && p.isOp("-", "+") {
		op := p.advance().text
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unary{op: op, operand: operand}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (node, error) {
	n, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.peek().kind == tokenOperator && p.peek().text == ".":
			p.advance()
			tok := p.advance()
			if tok.kind != tokenIdent {
				return nil, &SyntaxError{Pos: tok.pos, Msg: "expected attribute name after '.'"}
			}
			n = attribute{target: n, name: tok.text}
		case p.peek().kind == tokenOperator && p.peek().text == "[":
			p.advance()
			idx, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if err := p.expect("]"); err != nil {
				return nil, err
			}
			n = indexAccess{target: n, index: idx}
		default:
			return n, nil
		}
	}
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.advance()
	switch tok.kind {
	case tokenInt:
		i, err := strconv.ParseInt(tok.text, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(tok.text, 64)
			if ferr != nil {
				return nil, &SyntaxError{Pos: tok.pos, Msg: "invalid integer literal"}
			}
			return literal{value: f}, nil
		}
		return literal{value: i}, nil
	case tokenFloat:
		f, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, &SyntaxError{Pos: tok.pos, Msg: "invalid float literal"}
		}
		return literal{value: f}, nil
	case tokenString:
		return literal{value: tok.text}, nil
	case tokenKeyword:
		switch tok.text {
		case "True", "true":
			return literal{value: true}, nil
		case "False", "false":
			return literal{value: false}, nil
		case "None", "null":
			return literal{value: nil}, nil
		}
		return nil, &SyntaxError{Pos: tok.pos, Msg: "unexpected keyword '" + tok.text + "'"}
	case tokenIdent:
		if p.peek().kind == tokenOperator && p.peek().text == "(" {
			return p.parseCall(tok)
		}
		return identifier{name: tok.text}, nil
	case tokenOperator:
		switch tok.text {
		case "(":
			n, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return n, nil
		case "[":
			return p.parseList()
		}
	case tokenEOF:
		return nil, &SyntaxError{Pos: tok.pos, Msg: "unexpected end of input"}
	}
	return nil, &SyntaxError{Pos: tok.pos, Msg: "unexpected '" + tok.text + "'"}
}

func (p *parser) parseList() (node, error) {
	list := listLiteral{}
	if p.peek().kind == tokenOperator && p.peek().text == "]" {
		p.advance()
		return list, nil
	}
	for {
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		list.elements = append(list.elements, e)
		if p.peek().kind == tokenOperator && p.peek().text == "," {
			p.advance()
			if p.peek().kind == tokenOperator && p.peek().text == "]" {
				p.advance()
				return list, nil
			}
			continue
		}
		if err := p.expect("]"); err != nil {
			return nil, err
		}
		return list, nil
	}
}

func (p *parser) parseCall(name token) (node, error) {
	fn, ok := builtins[name.text]
	if !ok {
		return nil, &SyntaxError{Pos: name.pos, Msg: "unknown function '" + name.text + "'"}
	}
	p.advance() // (
	c := call{name: name.text, fn: fn}
	if p.peek().kind == tokenOperator && p.peek().text == ")" {
		p.advance()
		return c, nil
	}
	for {
		arg, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		c.args = append(c.args, arg)
		if p.peek().kind == tokenOperator && p.peek().text == "," {
			p.advance()
			continue
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return c, nil
	}
}
