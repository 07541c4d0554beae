// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package expr

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// normalize maps Go values coming from variable contexts onto the interpreter's value set:
// nil, bool, int64, float64, string, []any and map[string]any.
func normalize(v any) any {
	switch x := v.(type) {
	case nil, bool, int64, float64, string, []any, map[string]any:
		return v
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
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		res := make([]any, rv.Len())
		for i := range res {
			res[i] = rv.Index(i).Interface()
		}
		return res
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		res := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			res[iter.Key().String()] = iter.Value().Interface()
		}
		return res
	case reflect.String:
		return rv.String()
	}
	return v
}

// Truthy reduces a value to a boolean the way Python does: zero numbers, empty strings,
// empty collections, None and False are false.
func Truthy(v any) bool {
	switch x := normalize(v).(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	return true
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "NoneType"
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "str"
	case []any:
		return "list"
	case map[string]any:
		return "dict"
	}
	return reflect.TypeOf(v).String()
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// maxStringLength bounds strings built by repetition.
const maxStringLength = 1 << 20

// arithmetic applies op and rejects results that cannot be stored as JSON numbers.
func arithmetic(op string, left, right any) (any, error) {
	res, err := arithmeticValue(op, left, right)
	if err != nil {
		return nil, err
	}
	if f, ok := res.(float64); ok && (math.IsInf(f, 0) || math.IsNaN(f)) {
		return nil, newEvalErrorf("numeric result of %s is out of range", op)
	}
	return res, nil
}

func arithmeticValue(op string, left, right any) (any, error) {
	li, lInt := left.(int64)
	ri, rInt := right.(int64)
	lf, lNum := toFloat(left)
	rf, rNum := toFloat(right)

	switch op {
	case "+":
		if lInt && rInt {
			return li + ri, nil
		}
		if lNum && rNum {
			return lf + rf, nil
		}
		if ls, ok := left.(string); ok {
			if rs, ok := right.(string); ok {
				return ls + rs, nil
			}
		}
		if ll, ok := left.([]any); ok {
			if rl, ok := right.([]any); ok {
				res := make([]any, 0, len(ll)+len(rl))
				res = append(res, ll...)
				return append(res, rl...), nil
			}
		}
	case "-":
		if lInt && rInt {
			return li - ri, nil
		}
		if lNum && rNum {
			return lf - rf, nil
		}
	case "*":
		if lInt && rInt {
			return li * ri, nil
		}
		if lNum && rNum {
			return lf * rf, nil
		}
		if ls, ok := left.(string); ok && rInt {
			if ri <= 0 || ls == "" {
				return "", nil
			}
			if ri > int64(maxStringLength/len(ls)) {
				return nil, newEvalErrorf("repeated string exceeds %d bytes", maxStringLength)
			}
			return strings.Repeat(ls, int(ri)), nil
		}
	case "/":
		if lNum && rNum {
			if rf == 0 {
				return nil, newEvalErrorf("division by zero")
			}
			return lf / rf, nil
		}
	case "%":
		if lInt && rInt {
			if ri == 0 {
				return nil, newEvalErrorf("modulo by zero")
			}
			m := li % ri
			if m != 0 && (m < 0) != (ri < 0) {
				m += ri
			}
			return m, nil
		}
		if lNum && rNum {
			if rf == 0 {
				return nil, newEvalErrorf("modulo by zero")
			}
			m := math.Mod(lf, rf)
			if m != 0 && (m < 0) != (rf < 0) {
				m += rf
			}
			return m, nil
		}
	}
	return nil, newEvalErrorf("unsupported operand type(s) for %s: '%s' and '%s'", op, typeName(left), typeName(right))
}

// Equal compares two values with numeric awareness across int and float and deep
// equality for lists and maps. Values of unrelated types are never equal.
func Equal(left, right any) bool {
	left, right = normalize(left), normalize(right)
	if lf, ok := toFloat(left); ok {
		if rf, ok := toFloat(right); ok {
			return lf == rf
		}
		if rb, ok := right.(bool); ok {
			return lf == boolToFloat(rb)
		}
		return false
	}
	switch l := left.(type) {
	case nil:
		return right == nil
	case bool:
		switch r := right.(type) {
		case bool:
			return l == r
		case int64, float64:
			rf, _ := toFloat(r)
			return boolToFloat(l) == rf
		}
		return false
	case string:
		r, ok := right.(string)
		return ok && l == r
	case []any:
		r, ok := right.([]any)
		if !ok || len(l) != len(r) {
			return false
		}
		for i := range l {
			if !Equal(l[i], r[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		r, ok := right.(map[string]any)
		if !ok || len(l) != len(r) {
			return false
		}
		for k, lv := range l {
			rv, ok := r[k]
			if !ok || !Equal(lv, rv) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(left, right)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func compare(op string, left, right any) (bool, error) {
	switch op {
	case "==":
		return Equal(left, right), nil
	case "!=":
		return !Equal(left, right), nil
	case "in":
		return contains(right, left)
	case "not in":
		found, err := contains(right, left)
		return !found, err
	}

	if lf, ok := toFloat(left); ok {
		if rf, ok := toFloat(right); ok {
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
		}
	}
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
	return false, newEvalErrorf("'%s' not supported between instances of '%s' and '%s'", op, typeName(left), typeName(right))
}

func contains(container, item any) (bool, error) {
	switch c := normalize(container).(type) {
	case []any:
		for _, e := range c {
			if Equal(e, item) {
				return true, nil
			}
		}
		return false, nil
	case string:
		s, ok := item.(string)
		if !ok {
			return false, newEvalErrorf("'in <string>' requires string as left operand, not %s", typeName(item))
		}
		return strings.Contains(c, s), nil
	case map[string]any:
		s, ok := item.(string)
		if !ok {
			return false, nil
		}
		_, found := c[s]
		return found, nil
	}
	return false, newEvalErrorf("argument of type '%s' is not iterable", typeName(container))
}

// Format renders a value the way Python's str() does for the supported value set.
func Format(v any) string {
	switch x := normalize(v).(type) {
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return formatFloat(x)
	case string:
		return x
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			if s, ok := e.(string); ok {
				parts[i] = "'" + s + "'"
			} else {
				parts[i] = Format(e)
			}
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func formatFloat(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if math.IsNaN(f) {
		return "nan"
	}
	if math.Abs(f) >= 1e16 || (f != 0 && math.Abs(f) < 1e-4) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
