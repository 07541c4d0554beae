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
	"fmt"
	"maps"
	"math"
	"strconv"
)

// VariableHolder is the variable context of one process instance. Keys are only ever added or
// overwritten, never removed.
type VariableHolder struct {
	variables map[string]any
}

// NewVariableHolder creates a holder seeded with a deep copy of variables.
func NewVariableHolder(variables map[string]any) VariableHolder {
	vh := VariableHolder{variables: make(map[string]any, len(variables))}
	for k, v := range variables {
		vh.variables[k] = deepCopy(v)
	}
	return vh
}

func (vh *VariableHolder) init() {
	if vh.variables == nil {
		vh.variables = make(map[string]any)
	}
}

// Variables exposes the live map. Callers that hand it to user code should use Snapshot.
func (vh *VariableHolder) Variables() map[string]any {
	vh.init()
	return vh.variables
}

func (vh *VariableHolder) GetVariable(key string) any {
	return vh.variables[key]
}

func (vh *VariableHolder) SetVariable(key string, val any) {
	vh.init()
	vh.variables[key] = val
}

// SetVariables merges variables into the holder, overwriting existing keys.
func (vh *VariableHolder) SetVariables(variables map[string]any) {
	vh.init()
	maps.Copy(vh.variables, variables)
}

// Snapshot returns a deep copy of the current variables. Nested maps and lists of JSON
// compatible values are copied as well.
func (vh *VariableHolder) Snapshot() map[string]any {
	res := make(map[string]any, len(vh.variables))
	for k, v := range vh.variables {
		res[k] = deepCopy(v)
	}
	return res
}

func deepCopy(v any) any {
	switch x := v.(type) {
	case map[string]any:
		res := make(map[string]any, len(x))
		for k, e := range x {
			res[k] = deepCopy(e)
		}
		return res
	case []any:
		res := make([]any, len(x))
		for i, e := range x {
			res[i] = deepCopy(e)
		}
		return res
	}
	return v
}

func (vh VariableHolder) MarshalJSON() ([]byte, error) {
	if vh.variables == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(exactFloats(vh.variables))
}

// exactFloat encodes whole floats with a fraction ("2.0") so they decode as floats again
type exactFloat float64

func (f exactFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil, fmt.Errorf("unsupported number %v", v)
	}
	b := strconv.AppendFloat(nil, v, 'g', -1, 64)
	if !bytes.ContainsAny(b, ".eE") {
		b = append(b, ".0"...)
	}
	return b, nil
}

func exactFloats(v any) any {
	switch x := v.(type) {
	case float64:
		return exactFloat(x)
	case map[string]any:
		res := make(map[string]any, len(x))
		for k, e := range x {
			res[k] = exactFloats(e)
		}
		return res
	case []any:
		res := make([]any, len(x))
		for i, e := range x {
			res[i] = exactFloats(e)
		}
		return res
	}
	return v
}

func (vh *VariableHolder) UnmarshalJSON(data []byte) error {
	var variables map[string]any
	if err := DecodeJSON(data, &variables); err != nil {
		return err
	}
	vh.variables = variables
	vh.init()
	return nil
}
