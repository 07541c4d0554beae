// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package expr

import (
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenSeparator
	tokenIdent
	tokenInt
	tokenFloat
	tokenString
	tokenOperator
	tokenKeyword
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

var keywords = map[string]bool{
	"and":   true,
	"or":    true,
	"not":   true,
	"in":    true,
	"True":  true,
	"False": true,
	"None":  true,
	"true":  true,
	"false": true,
	"null":  true,
}

// longest operators first
var operators = []string{
	"==", "!=", "<=", ">=", "&&", "||", "+=", "-=", "*=", "/=",
	"+", "-", "*", "/", "%", "<", ">", "=", "!", "(", ")", "[", "]", ",", ".",
}

type lexer struct {
	src    []rune
	pos    int
	depth  int
	tokens []token
}

func tokenize(src string) ([]token, error) {
	l := &lexer{src: []rune(src)}
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		l.tokens = append(l.tokens, tok)
		if tok.kind == tokenEOF {
			return l.tokens, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == '\n' && l.depth == 0 {
			break
		}
		if c == '#' {
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
			continue
		}
		if !unicode.IsSpace(c) {
			break
		}
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokenEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.src[l.pos]
	switch {
	case c == '\n' || c == ';':
		l.pos++
		return token{kind: tokenSeparator, text: string(c), pos: start}, nil
	case c == '"' || c == '\'':
		return l.lexString(c)
	case unicode.IsDigit(c):
		return l.lexNumber()
	case c == '.' && l.pos+1 < len(l.src) && unicode.IsDigit(l.src[l.pos+1]):
		return l.lexNumber()
	case c == '_' || unicode.IsLetter(c):
		for l.pos < len(l.src) && (l.src[l.pos] == '_' || unicode.IsLetter(l.src[l.pos]) || unicode.IsDigit(l.src[l.pos])) {
			l.pos++
		}
		word := string(l.src[start:l.pos])
		if keywords[word] {
			return token{kind: tokenKeyword, text: word, pos: start}, nil
		}
		return token{kind: tokenIdent, text: word, pos: start}, nil
	}

	rest := string(l.src[l.pos:])
	for _, op := range operators {
		if strings.HasPrefix(rest, op) {
			l.pos += len([]rune(op))
			switch op {
			case "(", "[":
				l.depth++
			case ")", "]":
				if l.depth > 0 {
					l.depth--
				}
			}
			return token{kind: tokenOperator, text: op, pos: start}, nil
		}
	}
	return token{}, &SyntaxError{Pos: start, Msg: "unexpected character '" + string(c) + "'"}
}

func (l *lexer) lexString(quote rune) (token, error) {
	start := l.pos
	l.pos++
	var sb strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch c {
		case quote:
			l.pos++
			return token{kind: tokenString, text: sb.String(), pos: start}, nil
		case '\\':
			if l.pos+1 >= len(l.src) {
				return token{}, &SyntaxError{Pos: l.pos, Msg: "unterminated escape sequence"}
			}
			l.pos++
			switch e := l.src[l.pos]; e {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case 'r':
				sb.WriteRune('\r')
			default:
				sb.WriteRune(e)
			}
		case '\n':
			return token{}, &SyntaxError{Pos: start, Msg: "unterminated string literal"}
		default:
			sb.WriteRune(c)
		}
		l.pos++
	}
	return token{}, &SyntaxError{Pos: start, Msg: "unterminated string literal"}
}

func (l *lexer) lexNumber() (token, error) {
	start := l.pos
	kind := tokenInt
	for l.pos < len(l.src) && unicode.IsDigit(l.src[l.pos]) {
		l.pos++
	}
	if l.pos < len(l.src) && l.src[l.pos] == '.' {
		kind = tokenFloat
		l.pos++
		for l.pos < len(l.src) && unicode.IsDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
		save := l.pos
		l.pos++
		if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
			l.pos++
		}
		if l.pos < len(l.src) && unicode.IsDigit(l.src[l.pos]) {
			kind = tokenFloat
			for l.pos < len(l.src) && unicode.IsDigit(l.src[l.pos]) {
				l.pos++
			}
		} else {
			l.pos = save
		}
	}
	if l.pos < len(l.src) && (l.src[l.pos] == '_' || unicode.IsLetter(l.src[l.pos])) {
		return token{}, &SyntaxError{Pos: start, Msg: "invalid number literal"}
	}
	return token{kind: kind, text: string(l.src[start:l.pos]), pos: start}, nil
}
