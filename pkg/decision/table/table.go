// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

// Package table evaluates decision tables: ordered rule rows matched against named input
// columns and resolved by a hit policy.
package table

import (
	"fmt"
	"slices"
	"strings"

	"github.com/mitchellh/mapstructure"
)

type HitPolicy string

const (
	HitPolicyFirst    HitPolicy = "FIRST"
	HitPolicyCollect  HitPolicy = "COLLECT"
	HitPolicyPriority HitPolicy = "PRIORITY"
	HitPolicyAny      HitPolicy = "ANY"
)

const NoMatchMessage = "No matching rules found"

type UnknownHitPolicyError struct {
	HitPolicy HitPolicy
}

func (e *UnknownHitPolicyError) Error() string {
	return fmt.Sprintf("unknown hit policy: %s", e.HitPolicy)
}

type Column struct {
	Name  string `json:"name" yaml:"name" mapstructure:"name"`
	Label string `json:"label,omitempty" yaml:"label,omitempty" mapstructure:"label"`
	Type  string `json:"type,omitempty" yaml:"type,omitempty" mapstructure:"type"`
}

type DecisionTable struct {
	Id          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	HitPolicy   HitPolicy `json:"hit_policy" yaml:"hit_policy"`
	Conditions  []Column  `json:"conditions" yaml:"conditions"`
	Actions     []Column  `json:"actions" yaml:"actions"`
	Status      string    `json:"status,omitempty" yaml:"status,omitempty"`
	Rules       []Rule    `json:"rules" yaml:"rules"`
}

// Rule is one row. A condition cell is either a plain value, compared with "==", or a map
// with "operator" and "value" keys.
type Rule struct {
	Id         string         `json:"id,omitempty" yaml:"id,omitempty"`
	RuleNumber int            `json:"rule_number" yaml:"rule_number"`
	Conditions map[string]any `json:"conditions" yaml:"conditions"`
	Actions    map[string]any `json:"actions" yaml:"actions"`
	Priority   int            `json:"priority" yaml:"priority"`
	Enabled    *bool          `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

func (r Rule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

type ConditionSpec struct {
	Operator Operator `mapstructure:"operator"`
	Value    any      `mapstructure:"value"`
}

// ParseCondition turns a condition cell into an operator and operand.
func ParseCondition(cell any) (ConditionSpec, error) {
	switch cell.(type) {
	case map[string]any, map[any]any:
		var spec ConditionSpec
		if err := mapstructure.Decode(cell, &spec); err != nil {
			return ConditionSpec{}, fmt.Errorf("failed to decode condition %v: %w", cell, err)
		}
		if spec.Operator == "" {
			spec.Operator = OperatorEq
		}
		spec.Operator = Operator(strings.ToUpper(strings.TrimSpace(string(spec.Operator))))
		return spec, nil
	}
	return ConditionSpec{Operator: OperatorEq, Value: cell}, nil
}

type MatchedRule struct {
	Id         string `json:"id,omitempty"`
	RuleNumber int    `json:"rule_number"`
	Priority   int    `json:"priority"`
}

type Result struct {
	Matched      bool           `json:"matched"`
	Output       map[string]any `json:"output"`
	MatchedRules []MatchedRule  `json:"matched_rules"`
	HitPolicy    HitPolicy      `json:"hit_policy,omitempty"`
	Message      string         `json:"message,omitempty"`
}

func normalizeHitPolicy(p HitPolicy) (HitPolicy, error) {
	if p == "" {
		return HitPolicyFirst, nil
	}
	p = HitPolicy(strings.ToUpper(strings.TrimSpace(string(p))))
	switch p {
	case HitPolicyFirst, HitPolicyCollect, HitPolicyPriority, HitPolicyAny:
		return p, nil
	}
	return p, &UnknownHitPolicyError{HitPolicy: p}
}

// MatchRule reports whether every condition the rule declares for a table column holds for
// input. Columns the rule does not mention are skipped. "ANY" and "-" match even when the input
// value is absent; any other operator fails on a missing input.
func MatchRule(rule Rule, input map[string]any, columns []Column) bool {
	for _, column := range columns {
		cell, ok := rule.Conditions[column.Name]
		if !ok {
			continue
		}
		spec, err := ParseCondition(cell)
		if err != nil {
			return false
		}
		if spec.Operator.matchesAnything() {
			continue
		}
		value, ok := input[column.Name]
		if !ok || value == nil {
			return false
		}
		if !EvaluateCondition(spec.Value, spec.Operator, value) {
			return false
		}
	}
	return true
}

// Execute evaluates enabled rules in descending priority, ties in declaration order, and
// resolves the matches with the table's hit policy. When nothing matches the result has
// Matched false, an empty output and NoMatchMessage.
func Execute(dt *DecisionTable, input map[string]any) (Result, error) {
	hitPolicy, err := normalizeHitPolicy(dt.HitPolicy)
	if err != nil {
		return Result{}, err
	}

	rules := slices.Clone(dt.Rules)
	slices.SortStableFunc(rules, func(a, b Rule) int {
		return b.Priority - a.Priority
	})

	var matched []Rule
	for _, rule := range rules {
		if !rule.IsEnabled() {
			continue
		}
		if MatchRule(rule, input, dt.Conditions) {
			matched = append(matched, rule)
			if hitPolicy == HitPolicyFirst {
				break
			}
		}
	}

	if len(matched) == 0 {
		return Result{
			Matched:      false,
			Output:       map[string]any{},
			MatchedRules: []MatchedRule{},
			Message:      NoMatchMessage,
		}, nil
	}

	output := make(map[string]any)
	switch hitPolicy {
	case HitPolicyFirst, HitPolicyPriority:
		for _, action := range dt.Actions {
			if v, ok := matched[0].Actions[action.Name]; ok {
				output[action.Name] = v
			}
		}
	case HitPolicyCollect:
		for _, action := range dt.Actions {
			values := []any{}
			for _, rule := range matched {
				if v, ok := rule.Actions[action.Name]; ok {
					values = append(values, v)
				}
			}
			output[action.Name] = values
		}
	case HitPolicyAny:
		for _, action := range dt.Actions {
			for _, rule := range matched {
				if v, ok := rule.Actions[action.Name]; ok {
					output[action.Name] = v
					break
				}
			}
		}
	}

	matchedRules := make([]MatchedRule, 0, len(matched))
	for _, rule := range matched {
		matchedRules = append(matchedRules, MatchedRule{Id: rule.Id, RuleNumber: rule.RuleNumber, Priority: rule.Priority})
	}
	return Result{
		Matched:      true,
		Output:       output,
		MatchedRules: matchedRules,
		HitPolicy:    hitPolicy,
	}, nil
}

type Validation struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Validate checks the structure of a table without evaluating it.
func Validate(dt *DecisionTable) Validation {
	v := Validation{Errors: []string{}, Warnings: []string{}}
	if len(dt.Rules) == 0 {
		v.Errors = append(v.Errors, "Decision table must have at least one rule")
	}
	if len(dt.Conditions) == 0 {
		v.Errors = append(v.Errors, "Decision table must have at least one condition column")
	}
	if len(dt.Actions) == 0 {
		v.Errors = append(v.Errors, "Decision table must have at least one action column")
	}
	if _, err := normalizeHitPolicy(dt.HitPolicy); err != nil {
		v.Errors = append(v.Errors, err.Error())
	}

	seen := make(map[int]bool, len(dt.Rules))
	duplicate := false
	for _, rule := range dt.Rules {
		if seen[rule.RuleNumber] {
			duplicate = true
		}
		seen[rule.RuleNumber] = true
	}
	if duplicate {
		v.Errors = append(v.Errors, "Duplicate rule numbers found")
	}

	declared := make(map[string]bool, len(dt.Conditions))
	for _, c := range dt.Conditions {
		declared[c.Name] = true
	}
	for _, rule := range dt.Rules {
		if len(rule.Conditions) == 0 {
			v.Warnings = append(v.Warnings, fmt.Sprintf("Rule %d has no conditions", rule.RuleNumber))
		}
		if len(rule.Actions) == 0 {
			v.Warnings = append(v.Warnings, fmt.Sprintf("Rule %d has no actions", rule.RuleNumber))
		}
		names := make([]string, 0, len(rule.Conditions))
		for name := range rule.Conditions {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			if !declared[name] {
				v.Warnings = append(v.Warnings, fmt.Sprintf("Rule %d references undeclared condition column %s", rule.RuleNumber, name))
				continue
			}
			spec, err := ParseCondition(rule.Conditions[name])
			if err != nil {
				v.Errors = append(v.Errors, fmt.Sprintf("Rule %d column %s: %v", rule.RuleNumber, name, err))
				continue
			}
			if !spec.Operator.Known() {
				v.Errors = append(v.Errors, fmt.Sprintf("Rule %d column %s: unknown operator %s", rule.RuleNumber, name, spec.Operator))
			}
		}
	}
	v.Valid = len(v.Errors) == 0
	return v
}
