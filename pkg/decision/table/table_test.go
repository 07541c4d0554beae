// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package table

import (
	"errors"
	"testing"

	"github.com/pbinitiative/zendecision/pkg/ptr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_operators(t *testing.T) {
	tests := []struct {
		name      string
		operator  Operator
		condition any
		input     any
		expected  bool
	}{
		{"eq string", OperatorEq, "GOLD", "GOLD", true},
		{"eq numeric across types", OperatorEq, "700", 700.0, true},
		{"eq int and float", OperatorEq, 1, 1.0, true},
		{"eq mismatch", OperatorEq, "GOLD", "SILVER", false},
		{"not eq", OperatorNotEq, "GOLD", "SILVER", true},
		{"gt", OperatorGt, 700, 720, true},
		{"gt equal", OperatorGt, 700, 700, false},
		{"gte", OperatorGtEq, 700, 700, true},
		{"lt", OperatorLt, "5.5", 5, true},
		{"lte", OperatorLtEq, 5, 5, true},
		{"gt non numeric input", OperatorGt, 700, "abc", false},
		{"gt non numeric condition", OperatorGt, "abc", 700, false},
		{"in list", OperatorIn, []any{"A", "B"}, "B", true},
		{"in list numeric", OperatorIn, []any{1, 2}, 2.0, true},
		{"in csv", OperatorIn, "A, B,C", "B", true},
		{"in csv miss", OperatorIn, "A,B", "C", false},
		{"not in list", OperatorNotIn, []any{"A", "B"}, "C", true},
		{"not in csv", OperatorNotIn, "A,B", "A", false},
		{"contains substring", OperatorContains, "oo", "foobar", true},
		{"contains list element", OperatorContains, "vip", []any{"new", "vip"}, true},
		{"starts with", OperatorStartsWith, "foo", "foobar", true},
		{"ends with", OperatorEndsWith, "bar", "foobar", true},
		{"ends with miss", OperatorEndsWith, "foo", "foobar", false},
		{"regex anchored at start", OperatorRegex, "[A-Z]{2}", "AB123", true},
		{"regex not searched", OperatorRegex, "[0-9]+", "AB123", false},
		{"regex invalid", OperatorRegex, "(", "AB", false},
		{"between list inclusive", OperatorBetween, []any{10, 20}, 20, true},
		{"between csv", OperatorBetween, "10,20", 15, true},
		{"between outside", OperatorBetween, []any{10, 20}, 21, false},
		{"between bad bounds", OperatorBetween, []any{10}, 10, false},
		{"any", OperatorAny, nil, "x", true},
		{"dash", OperatorDash, nil, nil, true},
		{"unknown operator", Operator("LIKE"), "x", "x", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EvaluateCondition(tt.condition, tt.operator, tt.input))
		})
	}
}

func Test_parse_condition(t *testing.T) {
	spec, err := ParseCondition(map[string]any{"operator": "not in", "value": []any{"A"}})
	require.NoError(t, err)
	assert.Equal(t, OperatorNotIn, spec.Operator)
	assert.Equal(t, []any{"A"}, spec.Value)

	spec, err = ParseCondition("GOLD")
	require.NoError(t, err)
	assert.Equal(t, OperatorEq, spec.Operator)
	assert.Equal(t, "GOLD", spec.Value)

	spec, err = ParseCondition(map[string]any{"value": 3})
	require.NoError(t, err)
	assert.Equal(t, OperatorEq, spec.Operator)
}

func loanTable(policy HitPolicy) *DecisionTable {
	return &DecisionTable{
		Id:        "loan",
		HitPolicy: policy,
		Conditions: []Column{
			{Name: "score"},
			{Name: "segment"},
		},
		Actions: []Column{{Name: "decision"}, {Name: "limit"}},
		Rules: []Rule{
			{
				RuleNumber: 1,
				Priority:   1,
				Conditions: map[string]any{"score": map[string]any{"operator": ">=", "value": 600}},
				Actions:    map[string]any{"decision": "REVIEW"},
			},
			{
				RuleNumber: 2,
				Priority:   5,
				Conditions: map[string]any{
					"score":   map[string]any{"operator": ">=", "value": 700},
					"segment": "RETAIL",
				},
				Actions: map[string]any{"decision": "APPROVE", "limit": 5000},
			},
			{
				RuleNumber: 3,
				Priority:   5,
				Conditions: map[string]any{
					"score":   map[string]any{"operator": ">=", "value": 650},
					"segment": map[string]any{"operator": "ANY"},
				},
				Actions: map[string]any{"limit": 1000},
			},
			{
				RuleNumber: 4,
				Priority:   9,
				Enabled:    ptr.To(false),
				Conditions: map[string]any{},
				Actions:    map[string]any{"decision": "DISABLED"},
			},
		},
	}
}

func Test_hit_policies(t *testing.T) {
	input := map[string]any{"score": 720, "segment": "RETAIL"}

	t.Run("first stops at highest priority match", func(t *testing.T) {
		res, err := Execute(loanTable(""), input)
		require.NoError(t, err)
		assert.True(t, res.Matched)
		assert.Equal(t, HitPolicyFirst, res.HitPolicy)
		assert.Equal(t, map[string]any{"decision": "APPROVE", "limit": 5000}, res.Output)
		require.Len(t, res.MatchedRules, 1)
		assert.Equal(t, 2, res.MatchedRules[0].RuleNumber)
	})
	t.Run("collect gathers values in priority order", func(t *testing.T) {
		res, err := Execute(loanTable(HitPolicyCollect), input)
		require.NoError(t, err)
		assert.Equal(t, []any{"APPROVE", "REVIEW"}, res.Output["decision"])
		assert.Equal(t, []any{5000, 1000}, res.Output["limit"])
		assert.Len(t, res.MatchedRules, 3)
	})
	t.Run("priority uses the top match only", func(t *testing.T) {
		res, err := Execute(loanTable(HitPolicyPriority), input)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"decision": "APPROVE", "limit": 5000}, res.Output)
		assert.Len(t, res.MatchedRules, 3)
	})
	t.Run("any takes first rule defining each column", func(t *testing.T) {
		res, err := Execute(loanTable("any"), map[string]any{"score": 660, "segment": "SME"})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"decision": "REVIEW", "limit": 1000}, res.Output)
		assert.Equal(t, []int{3, 1}, []int{res.MatchedRules[0].RuleNumber, res.MatchedRules[1].RuleNumber})
	})
	t.Run("unknown policy", func(t *testing.T) {
		_, err := Execute(loanTable("UNIQUE"), input)
		var policyErr *UnknownHitPolicyError
		assert.True(t, errors.As(err, &policyErr))
	})
}

func Test_missing_input_fails_required_column_but_not_any(t *testing.T) {
	// segment missing: rule 2 needs it, rule 3 uses ANY
	res, err := Execute(loanTable(HitPolicyCollect), map[string]any{"score": 720})

	require.NoError(t, err)
	assert.Equal(t, []any{"REVIEW"}, res.Output["decision"])
	assert.Equal(t, []any{1000}, res.Output["limit"])
}

func Test_no_match_is_distinct_from_empty_output(t *testing.T) {
	t.Run("no enabled rules", func(t *testing.T) {
		dt := &DecisionTable{
			Conditions: []Column{{Name: "x"}},
			Actions:    []Column{{Name: "y"}},
			Rules:      []Rule{{RuleNumber: 1, Enabled: ptr.To(false), Actions: map[string]any{"y": 1}}},
		}
		res, err := Execute(dt, map[string]any{"x": 1})
		require.NoError(t, err)
		assert.False(t, res.Matched)
		assert.Equal(t, map[string]any{}, res.Output)
		assert.Equal(t, NoMatchMessage, res.Message)
	})
	t.Run("matched rule without actions", func(t *testing.T) {
		dt := &DecisionTable{
			Conditions: []Column{{Name: "x"}},
			Actions:    []Column{{Name: "y"}},
			Rules:      []Rule{{RuleNumber: 1, Conditions: map[string]any{"x": 1}}},
		}
		res, err := Execute(dt, map[string]any{"x": 1})
		require.NoError(t, err)
		assert.True(t, res.Matched)
		assert.Empty(t, res.Output)
		assert.Empty(t, res.Message)
	})
}

func Test_first_equals_priority_ordered_scan(t *testing.T) {
	dt := loanTable(HitPolicyFirst)
	inputs := []map[string]any{
		{"score": 500},
		{"score": 610, "segment": "SME"},
		{"score": 655},
		{"score": 800, "segment": "RETAIL"},
	}
	for _, input := range inputs {
		first, err := Execute(dt, input)
		require.NoError(t, err)
		all, err := Execute(&DecisionTable{
			HitPolicy: HitPolicyPriority, Conditions: dt.Conditions, Actions: dt.Actions, Rules: dt.Rules,
		}, input)
		require.NoError(t, err)
		assert.Equal(t, all.Matched, first.Matched)
		assert.Equal(t, all.Output, first.Output)
	}
}

func Test_validate(t *testing.T) {
	t.Run("valid table", func(t *testing.T) {
		v := Validate(loanTable(HitPolicyFirst))
		assert.True(t, v.Valid)
		assert.Empty(t, v.Errors)
		assert.Contains(t, v.Warnings, "Rule 4 has no conditions")
	})
	t.Run("structural errors", func(t *testing.T) {
		v := Validate(&DecisionTable{HitPolicy: "SOMETIMES"})
		assert.False(t, v.Valid)
		assert.Contains(t, v.Errors, "Decision table must have at least one rule")
		assert.Contains(t, v.Errors, "Decision table must have at least one condition column")
		assert.Contains(t, v.Errors, "Decision table must have at least one action column")
		assert.Contains(t, v.Errors, "unknown hit policy: SOMETIMES")
	})
	t.Run("rule errors", func(t *testing.T) {
		v := Validate(&DecisionTable{
			Conditions: []Column{{Name: "x"}},
			Actions:    []Column{{Name: "y"}},
			Rules: []Rule{
				{RuleNumber: 1, Conditions: map[string]any{"x": map[string]any{"operator": "LIKE"}}, Actions: map[string]any{"y": 1}},
				{RuleNumber: 1, Conditions: map[string]any{"z": 1}, Actions: map[string]any{"y": 2}},
			},
		})
		assert.False(t, v.Valid)
		assert.Contains(t, v.Errors, "Duplicate rule numbers found")
		assert.Contains(t, v.Errors, "Rule 1 column x: unknown operator LIKE")
		assert.Contains(t, v.Warnings, "Rule 1 references undeclared condition column z")
	})
}
