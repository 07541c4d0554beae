// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package runtime

import (
	"bytes"
	"encoding/json"
	"reflect"
)

// DecodeJSON unmarshals data into dest keeping integers as int64. Numbers held in untyped
// values (variables, form data, rule outputs) become int64 when they have no fraction or
// exponent and float64 otherwise, so a value survives a store and load with its kind intact.
func DecodeJSON(data []byte, dest any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(dest); err != nil {
		return err
	}
	normalizeValue(reflect.ValueOf(dest))
	return nil
}

// NormalizeNumbers replaces json.Number values inside nested maps and lists.
func NormalizeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		for k, e := range x {
			x[k] = NormalizeNumbers(e)
		}
	case []any:
		for i, e := range x {
			x[i] = NormalizeNumbers(e)
		}
	}
	return v
}

func normalizeValue(v reflect.Value) {
	switch v.Kind() {
	case reflect.Pointer:
		if !v.IsNil() {
			normalizeValue(v.Elem())
		}
	case reflect.Struct:
		for i := range v.NumField() {
			if v.Type().Field(i).IsExported() {
				normalizeValue(v.Field(i))
			}
		}
	case reflect.Slice, reflect.Array:
		for i := range v.Len() {
			normalizeValue(v.Index(i))
		}
	case reflect.Map:
		for _, key := range v.MapKeys() {
			// map values are not addressable, fix a copy and put it back
			e := reflect.New(v.Type().Elem()).Elem()
			e.Set(v.MapIndex(key))
			normalizeValue(e)
			v.SetMapIndex(key, e)
		}
	case reflect.Interface:
		if !v.IsNil() && v.CanSet() && v.Type().NumMethod() == 0 {
			v.Set(reflect.ValueOf(NormalizeNumbers(v.Interface())))
		}
	}
}
