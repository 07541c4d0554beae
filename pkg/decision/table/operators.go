// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package table

import (
	"encoding/json"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pbinitiative/zendecision/pkg/script/expr"
)

type Operator string

const (
	OperatorEq         Operator = "=="
	OperatorNotEq      Operator = "!="
	OperatorGt         Operator = ">"
	OperatorGtEq       Operator = ">="
	OperatorLt         Operator = "<"
	OperatorLtEq       Operator = "<="
	OperatorIn         Operator = "IN"
	OperatorNotIn      Operator = "NOT IN"
	OperatorContains   Operator = "CONTAINS"
	OperatorStartsWith Operator = "STARTS_WITH"
	OperatorEndsWith   Operator = "ENDS_WITH"
	OperatorRegex      Operator = "REGEX"
	OperatorBetween    Operator = "BETWEEN"
	OperatorAny        Operator = "ANY"
	OperatorDash       Operator = "-"
)

var knownOperators = map[Operator]bool{
	OperatorEq: true, OperatorNotEq: true, OperatorGt: true, OperatorGtEq: true, OperatorLt: true,
	OperatorLtEq: true, OperatorIn: true, OperatorNotIn: true, OperatorContains: true,
	OperatorStartsWith: true, OperatorEndsWith: true, OperatorRegex: true, OperatorBetween: true,
	OperatorAny: true, OperatorDash: true,
}

func (o Operator) Known() bool {
	return knownOperators[o]
}

func (o Operator) matchesAnything() bool {
	return o == OperatorAny || o == OperatorDash
}

var regexCache, _ = lru.New[string, *regexp.Regexp](256)

// EvaluateCondition applies operator to an input value and the value declared in a rule cell.
// Comparisons that cannot be carried out, such as a non-numeric operand of ">" or an invalid
// pattern, are a non-match rather than an error.
func EvaluateCondition(conditionValue any, operator Operator, inputValue any) bool {
	switch operator {
	case OperatorEq:
		return equal(inputValue, conditionValue)
	case OperatorNotEq:
		return !equal(inputValue, conditionValue)
	case OperatorGt, OperatorGtEq, OperatorLt, OperatorLtEq:
		in, ok := toNumber(inputValue)
		if !ok {
			return false
		}
		cond, ok := toNumber(conditionValue)
		if !ok {
			return false
		}
		switch operator {
		case OperatorGt:
			return in > cond
		case OperatorGtEq:
			return in >= cond
		case OperatorLt:
			return in < cond
		default:
			return in <= cond
		}
	case OperatorIn:
		return member(inputValue, conditionValue)
	case OperatorNotIn:
		return !member(inputValue, conditionValue)
	case OperatorContains:
		if list, ok := asList(inputValue); ok {
			for _, e := range list {
				if equal(e, conditionValue) {
					return true
				}
			}
			return false
		}
		return strings.Contains(expr.Format(inputValue), expr.Format(conditionValue))
	case OperatorStartsWith:
		return strings.HasPrefix(expr.Format(inputValue), expr.Format(conditionValue))
	case OperatorEndsWith:
		return strings.HasSuffix(expr.Format(inputValue), expr.Format(conditionValue))
	case OperatorRegex:
		re, err := compileAnchored(expr.Format(conditionValue))
		if err != nil {
			return false
		}
		return re.MatchString(expr.Format(inputValue))
	case OperatorBetween:
		return between(inputValue, conditionValue)
	case OperatorAny, OperatorDash:
		return true
	}
	return false
}

// compileAnchored anchors the pattern at the start of the input only.
func compileAnchored(pattern string) (*regexp.Regexp, error) {
	if re, ok := regexCache.Get(pattern); ok {
		return re, nil
	}
	re, err := regexp.Compile(`^(?:` + pattern + `)`)
	if err != nil {
		return nil, err
	}
	regexCache.Add(pattern, re)
	return re, nil
}

// equal compares numerically when both sides are numbers or numeric strings, and as text
// otherwise.
func equal(a, b any) bool {
	an, aok := toNumber(a)
	bn, bok := toNumber(b)
	if aok && bok {
		return an == bn
	}
	return expr.Format(a) == expr.Format(b)
}

func member(inputValue, conditionValue any) bool {
	if list, ok := asList(conditionValue); ok {
		for _, e := range list {
			if expr.Equal(inputValue, e) {
				return true
			}
		}
		return false
	}
	needle := expr.Format(inputValue)
	for _, part := range strings.Split(expr.Format(conditionValue), ",") {
		if strings.TrimSpace(part) == needle {
			return true
		}
	}
	return false
}

func between(inputValue, conditionValue any) bool {
	var bounds []any
	if list, ok := asList(conditionValue); ok {
		bounds = list
	} else if s, ok := conditionValue.(string); ok {
		for _, part := range strings.Split(s, ",") {
			bounds = append(bounds, strings.TrimSpace(part))
		}
	}
	if len(bounds) != 2 {
		return false
	}
	lo, ok := toNumber(bounds[0])
	if !ok {
		return false
	}
	hi, ok := toNumber(bounds[1])
	if !ok {
		return false
	}
	v, ok := toNumber(inputValue)
	if !ok {
		return false
	}
	return lo <= v && v <= hi
}

func asList(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if l, ok := v.([]any); ok {
		return l, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	res := make([]any, rv.Len())
	for i := range res {
		res[i] = rv.Index(i).Interface()
	}
	return res, true
}

func toNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}
