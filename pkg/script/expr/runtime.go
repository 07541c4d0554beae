// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

// Package expr is a small interpreter for the condition and action language used by
// gateways, edges and rule sets. The grammar is closed: literals, variables, arithmetic,
// comparisons, boolean logic, membership tests, a fixed set of builtin functions and
// assignment statements. There is no access to the host environment.
package expr

import (
	"fmt"
	"maps"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pbinitiative/zendecision/pkg/script"
)

const DefaultCacheSize = 1024

// Expression is a compiled, reusable expression.
type Expression struct {
	source string
	root   node
}

func (e *Expression) String() string {
	return e.source
}

// recoverEval turns a panic raised while evaluating into an EvalError.
func recoverEval(err *error) {
	if r := recover(); r != nil {
		*err = &EvalError{Msg: fmt.Sprintf("evaluation aborted: %v", r)}
	}
}

// Eval computes the expression against vars.
func (e *Expression) Eval(vars map[string]any) (_ any, err error) {
	defer recoverEval(&err)
	if vars == nil {
		vars = map[string]any{}
	}
	return e.root.eval(vars)
}

// Statements is a compiled sequence of assignments.
type Statements struct {
	source      string
	assignments []assignment
}

func (s *Statements) String() string {
	return s.source
}

// Exec applies the assignments to a copy of vars and returns the bindings that were
// introduced or changed.
func (s *Statements) Exec(vars map[string]any) (_ map[string]any, err error) {
	defer recoverEval(&err)
	working := maps.Clone(vars)
	if working == nil {
		working = map[string]any{}
	}
	for _, a := range s.assignments {
		if err := a.apply(working); err != nil {
			return nil, err
		}
	}
	changes := make(map[string]any)
	for k, v := range working {
		old, existed := vars[k]
		if !existed || !Equal(old, v) {
			changes[k] = v
		}
	}
	return changes, nil
}

func Compile(expression string) (*Expression, error) {
	root, err := parseExpression(expression)
	if err != nil {
		return nil, err
	}
	return &Expression{source: expression, root: root}, nil
}

func CompileStatements(statements string) (*Statements, error) {
	assignments, err := parseStatements(statements)
	if err != nil {
		return nil, err
	}
	return &Statements{source: statements, assignments: assignments}, nil
}

// Runtime implements script.Runtime and keeps compiled programs in an LRU cache keyed by
// their source text.
type Runtime struct {
	expressions *lru.Cache[string, *Expression]
	statements  *lru.Cache[string, *Statements]
}

var _ script.Runtime = &Runtime{}

func NewRuntime(cacheSize int) *Runtime {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	// lru.New fails only for non-positive sizes
	expressions, _ := lru.New[string, *Expression](cacheSize)
	statements, _ := lru.New[string, *Statements](cacheSize)
	return &Runtime{
		expressions: expressions,
		statements:  statements,
	}
}

func (r *Runtime) compile(expression string) (*Expression, error) {
	if e, ok := r.expressions.Get(expression); ok {
		return e, nil
	}
	e, err := Compile(expression)
	if err != nil {
		return nil, err
	}
	r.expressions.Add(expression, e)
	return e, nil
}

func (r *Runtime) Evaluate(expression string, variableContext map[string]any) (any, error) {
	e, err := r.compile(expression)
	if err != nil {
		return nil, err
	}
	return e.Eval(variableContext)
}

func (r *Runtime) Condition(expression string, variableContext map[string]any) (bool, error) {
	v, err := r.Evaluate(expression, variableContext)
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}

func (r *Runtime) Execute(statements string, variableContext map[string]any) (map[string]any, error) {
	s, ok := r.statements.Get(statements)
	if !ok {
		var err error
		s, err = CompileStatements(statements)
		if err != nil {
			return nil, err
		}
		r.statements.Add(statements, s)
	}
	return s.Exec(variableContext)
}
