// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package expr

type node interface {
	eval(vars map[string]any) (any, error)
}

type literal struct {
	value any
}

type listLiteral struct {
	elements []node
}

type identifier struct {
	name string
}

type attribute struct {
	target node
	name   string
}

type indexAccess struct {
	target node
	index  node
}

type unary struct {
	op      string
	operand node
}

type binary struct {
	op          string
	left, right node
}

type logical struct {
	op          string // "and" | "or"
	left, right node
}

// comparison holds a chain like `a < b <= c`; len(ops) == len(operands)-1
type comparison struct {
	operands []node
	ops      []string
}

type call struct {
	name string
	fn   builtin
	args []node
}

type assignment struct {
	name  string
	op    string // "=", "+=", "-=", "*=", "/="
	value node
}

func (n literal) eval(map[string]any) (any, error) {
	return n.value, nil
}

func (n listLiteral) eval(vars map[string]any) (any, error) {
	res := make([]any, 0, len(n.elements))
	for _, e := range n.elements {
		v, err := e.eval(vars)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, nil
}

func (n identifier) eval(vars map[string]any) (any, error) {
	v, ok := vars[n.name]
	if !ok {
		return nil, newEvalErrorf("name '%s' is not defined", n.name)
	}
	return normalize(v), nil
}

func (n attribute) eval(vars map[string]any) (any, error) {
	target, err := n.target.eval(vars)
	if err != nil {
		return nil, err
	}
	m, ok := target.(map[string]any)
	if !ok {
		return nil, newEvalErrorf("'%s' has no attribute '%s'", typeName(target), n.name)
	}
	v, ok := m[n.name]
	if !ok {
		return nil, newEvalErrorf("attribute '%s' is not defined", n.name)
	}
	return normalize(v), nil
}

func (n indexAccess) eval(vars map[string]any) (any, error) {
	target, err := n.target.eval(vars)
	if err != nil {
		return nil, err
	}
	idx, err := n.index.eval(vars)
	if err != nil {
		return nil, err
	}
	switch t := target.(type) {
	case map[string]any:
		key, ok := idx.(string)
		if !ok {
			return nil, newEvalErrorf("map index must be a string, got %s", typeName(idx))
		}
		v, ok := t[key]
		if !ok {
			return nil, newEvalErrorf("key '%s' is not defined", key)
		}
		return normalize(v), nil
	case []any:
		i, ok := idx.(int64)
		if !ok {
			return nil, newEvalErrorf("list index must be an integer, got %s", typeName(idx))
		}
		if i < 0 {
			i += int64(len(t))
		}
		if i < 0 || i >= int64(len(t)) {
			return nil, newEvalErrorf("list index out of range")
		}
		return normalize(t[i]), nil
	case string:
		i, ok := idx.(int64)
		if !ok {
			return nil, newEvalErrorf("string index must be an integer, got %s", typeName(idx))
		}
		runes := []rune(t)
		if i < 0 {
			i += int64(len(runes))
		}
		if i < 0 || i >= int64(len(runes)) {
			return nil, newEvalErrorf("string index out of range")
		}
		return string(runes[i]), nil
	}
	return nil, newEvalErrorf("'%s' is not indexable", typeName(target))
}

func (n unary) eval(vars map[string]any) (any, error) {
	v, err := n.operand.eval(vars)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "not", "!":
		return !Truthy(v), nil
	case "-":
		switch x := v.(type) {
		case int64:
			return -x, nil
		case float64:
			return -x, nil
		}
		return nil, newEvalErrorf("bad operand type for unary -: '%s'", typeName(v))
	case "+":
		switch v.(type) {
		case int64, float64:
			return v, nil
		}
		return nil, newEvalErrorf("bad operand type for unary +: '%s'", typeName(v))
	}
	return nil, newEvalErrorf("unknown unary operator %s", n.op)
}

func (n binary) eval(vars map[string]any) (any, error) {
	left, err := n.left.eval(vars)
	if err != nil {
		return nil, err
	}
	right, err := n.right.eval(vars)
	if err != nil {
		return nil, err
	}
	return arithmetic(n.op, left, right)
}

func (n logical) eval(vars map[string]any) (any, error) {
	left, err := n.left.eval(vars)
	if err != nil {
		return nil, err
	}
	if n.op == "and" {
		if !Truthy(left) {
			return left, nil
		}
		return n.right.eval(vars)
	}
	if Truthy(left) {
		return left, nil
	}
	return n.right.eval(vars)
}

func (n comparison) eval(vars map[string]any) (any, error) {
	left, err := n.operands[0].eval(vars)
	if err != nil {
		return nil, err
	}
	for i, op := range n.ops {
		right, err := n.operands[i+1].eval(vars)
		if err != nil {
			return nil, err
		}
		ok, err := compare(op, left, right)
		if err != nil {
			return nil, err
		}
		if !ok {
			return false, nil
		}
		left = right
	}
	return true, nil
}

func (n call) eval(vars map[string]any) (any, error) {
	args := make([]any, 0, len(n.args))
	for _, a := range n.args {
		v, err := a.eval(vars)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return n.fn(args)
}

func (a assignment) apply(vars map[string]any) error {
	value, err := a.value.eval(vars)
	if err != nil {
		return err
	}
	if a.op != "=" {
		current, ok := vars[a.name]
		if !ok {
			return newEvalErrorf("name '%s' is not defined", a.name)
		}
		value, err = arithmetic(a.op[:1], normalize(current), value)
		if err != nil {
			return err
		}
	}
	vars[a.name] = value
	return nil
}
