// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

// Package ruleset fires prioritized condition/action rules against a variable context.
package ruleset

import (
	"context"
	"maps"
	"slices"

	"github.com/pbinitiative/zendecision/pkg/script"
	"github.com/pbinitiative/zendecision/pkg/script/expr"
)

type RuleSet struct {
	Id          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Status      string `json:"status,omitempty" yaml:"status,omitempty"`
	Rules       []Rule `json:"rules" yaml:"rules"`
}

type Rule struct {
	Id          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Condition   string         `json:"condition" yaml:"condition"`
	Action      string         `json:"action" yaml:"action"`
	Priority    int            `json:"priority" yaml:"priority"`
	Enabled     *bool          `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

func (r Rule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

type FiredRule struct {
	RuleId    string         `json:"rule_id"`
	RuleName  string         `json:"rule_name"`
	Condition string         `json:"condition"`
	Action    string         `json:"action"`
	Result    map[string]any `json:"result"`
	Error     string         `json:"error,omitempty"`
}

type Result struct {
	FiredRules   []FiredRule    `json:"fired_rules"`
	FinalContext map[string]any `json:"final_context"`
	// Changes holds every binding of FinalContext that is new or differs from the input.
	Changes map[string]any `json:"changes"`
}

// Execute evaluates all enabled rules in descending priority, ties in declaration order. A
// condition that fails to evaluate counts as false. When a condition holds, the action runs
// against a copy of the running context and only the bindings it introduced or changed are
// merged back, so later rules observe them. An action that fails is recorded on its fired rule
// entry and merges nothing. input is not modified.
func Execute(ctx context.Context, rt script.Runtime, rs *RuleSet, input map[string]any) (Result, error) {
	rules := slices.Clone(rs.Rules)
	slices.SortStableFunc(rules, func(a, b Rule) int {
		return b.Priority - a.Priority
	})

	running := maps.Clone(input)
	if running == nil {
		running = map[string]any{}
	}
	res := Result{FiredRules: []FiredRule{}}
	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if !rule.IsEnabled() {
			continue
		}
		if !script.SafeCondition(rt, rule.Condition, running) {
			continue
		}
		changes, errMsg := script.SafeExecute(rt, rule.Action, running)
		res.FiredRules = append(res.FiredRules, FiredRule{
			RuleId:    rule.Id,
			RuleName:  rule.Name,
			Condition: rule.Condition,
			Action:    rule.Action,
			Result:    changes,
			Error:     errMsg,
		})
		maps.Copy(running, changes)
	}

	res.FinalContext = running
	res.Changes = make(map[string]any)
	for k, v := range running {
		old, ok := input[k]
		if !ok || !expr.Equal(old, v) {
			res.Changes[k] = v
		}
	}
	return res, nil
}
