// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package expr

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

type builtin func(args []any) (any, error)

var builtins = map[string]builtin{
	"len":        builtinLen,
	"abs":        builtinAbs,
	"min":        func(args []any) (any, error) { return extremum("min", args, "<") },
	"max":        func(args []any) (any, error) { return extremum("max", args, ">") },
	"round":      builtinRound,
	"str":        builtinStr,
	"int":        builtinInt,
	"float":      builtinFloat,
	"bool":       builtinBool,
	"lower":      stringFn("lower", strings.ToLower),
	"upper":      stringFn("upper", strings.ToUpper),
	"contains":   builtinContains,
	"startswith": stringPredicate("startswith", strings.HasPrefix),
	"endswith":   stringPredicate("endswith", strings.HasSuffix),
}

func arity(name string, args []any, lo, hi int) error {
	if len(args) < lo || len(args) > hi {
		if lo == hi {
			return newEvalErrorf("%s() takes exactly %d argument(s) (%d given)", name, lo, len(args))
		}
		return newEvalErrorf("%s() takes %d to %d arguments (%d given)", name, lo, hi, len(args))
	}
	return nil
}

func builtinLen(args []any) (any, error) {
	if err := arity("len", args, 1, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case string:
		return int64(utf8.RuneCountInString(x)), nil
	case []any:
		return int64(len(x)), nil
	case map[string]any:
		return int64(len(x)), nil
	}
	return nil, newEvalErrorf("object of type '%s' has no len()", typeName(args[0]))
}

func builtinAbs(args []any) (any, error) {
	if err := arity("abs", args, 1, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case int64:
		if x < 0 {
			return -x, nil
		}
		return x, nil
	case float64:
		return math.Abs(x), nil
	}
	return nil, newEvalErrorf("bad operand type for abs(): '%s'", typeName(args[0]))
}

func extremum(name string, args []any, op string) (any, error) {
	values := args
	if len(args) == 1 {
		list, ok := args[0].([]any)
		if !ok {
			return nil, newEvalErrorf("'%s' object is not iterable", typeName(args[0]))
		}
		values = make([]any, len(list))
		for i, v := range list {
			values[i] = normalize(v)
		}
	}
	if len(values) == 0 {
		return nil, newEvalErrorf("%s() arg is an empty sequence", name)
	}
	best := values[0]
	for _, v := range values[1:] {
		better, err := compare(op, v, best)
		if err != nil {
			return nil, err
		}
		if better {
			best = v
		}
	}
	return best, nil
}

func builtinRound(args []any) (any, error) {
	if err := arity("round", args, 1, 2); err != nil {
		return nil, err
	}
	f, ok := toFloat(args[0])
	if !ok {
		return nil, newEvalErrorf("type %s doesn't define round()", typeName(args[0]))
	}
	if len(args) == 1 {
		return int64(math.RoundToEven(f)), nil
	}
	digits, ok := args[1].(int64)
	if !ok {
		return nil, newEvalErrorf("round() ndigits must be an integer")
	}
	if i, isInt := args[0].(int64); isInt && digits >= 0 {
		return i, nil
	}
	scale := math.Pow(10, float64(digits))
	return math.RoundToEven(f*scale) / scale, nil
}

func builtinStr(args []any) (any, error) {
	if err := arity("str", args, 1, 1); err != nil {
		return nil, err
	}
	return Format(args[0]), nil
}

func builtinInt(args []any) (any, error) {
	if err := arity("int", args, 1, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
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
		i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return nil, newEvalErrorf("invalid literal for int(): '%s'", x)
		}
		return i, nil
	}
	return nil, newEvalErrorf("int() argument must be a string or a number, not '%s'", typeName(args[0]))
}

func builtinFloat(args []any) (any, error) {
	if err := arity("float", args, 1, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case int64:
		return float64(x), nil
	case float64:
		return x, nil
	case bool:
		return boolToFloat(x), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, newEvalErrorf("could not convert string to float: '%s'", x)
		}
		return f, nil
	}
	return nil, newEvalErrorf("float() argument must be a string or a number, not '%s'", typeName(args[0]))
}

func builtinBool(args []any) (any, error) {
	if err := arity("bool", args, 1, 1); err != nil {
		return nil, err
	}
	return Truthy(args[0]), nil
}

func builtinContains(args []any) (any, error) {
	if err := arity("contains", args, 2, 2); err != nil {
		return nil, err
	}
	return contains(args[0], args[1])
}

func stringFn(name string, f func(string) string) builtin {
	return func(args []any) (any, error) {
		if err := arity(name, args, 1, 1); err != nil {
			return nil, err
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, newEvalErrorf("%s() argument must be str, not '%s'", name, typeName(args[0]))
		}
		return f(s), nil
	}
}

func stringPredicate(name string, f func(string, string) bool) builtin {
	return func(args []any) (any, error) {
		if err := arity(name, args, 2, 2); err != nil {
			return nil, err
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, newEvalErrorf("%s() first argument must be str, not '%s'", name, typeName(args[0]))
		}
		p, ok := args[1].(string)
		if !ok {
			return nil, newEvalErrorf("%s() second argument must be str, not '%s'", name, typeName(args[1]))
		}
		return f(s, p), nil
	}
}
