// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package expr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_conditions_evaluate_against_variables(t *testing.T) {
	rt := NewRuntime(16)
	vars := map[string]any{
		"credit_score": 720,
		"income":       float64(5200.5),
		"status":       "GOLD",
		"approved":     true,
		"tags":         []string{"vip", "new"},
		"applicant":    map[string]any{"age": 34, "country": "DE"},
		"missing":      nil,
	}

	tests := []struct {
		expression string
		expected   bool
	}{
		{"credit_score >= 700", true},
		{"credit_score > 700 and income < 5000", false},
		{"credit_score > 700 && income > 5000", true},
		{"credit_score < 600 or status == 'GOLD'", true},
		{"credit_score < 600 || status == \"SILVER\"", false},
		{"not approved", false},
		{"!approved", false},
		{"status in ['GOLD', 'PLATINUM']", true},
		{"status not in ['GOLD', 'PLATINUM']", false},
		{"'vip' in tags", true},
		{"'OL' in status", true},
		{"600 <= credit_score < 750", true},
		{"600 <= credit_score < 700", false},
		{"applicant.age >= 18", true},
		{"applicant['country'] == 'DE'", true},
		{"tags[0] == 'vip'", true},
		{"tags[-1] == 'new'", true},
		{"credit_score == 720.0", true},
		{"credit_score * 2 == 1440", true},
		{"(credit_score - 20) / 100 == 7", true},
		{"credit_score % 100 == 20", true},
		{"missing == None", true},
		{"len(tags) == 2", true},
		{"lower(status) == 'gold'", true},
		{"max(1, credit_score, 3) == 720", true},
		{"min([5, 2, 9]) == 2", true},
		{"round(income) == 5200", true},
		{"str(credit_score) == '720'", true},
		{"float('1.5') + 1 == 2.5", true},
		{"startswith(status, 'GO')", true},
		{"approved == True", true},
		{"approved == true", true},
		{"income", true},
		{"''", false},
		{"[]", false},
	}
	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			// when
			res, err := rt.Condition(tt.expression, vars)

			// then
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, res)
		})
	}
}

func Test_evaluation_preserves_int_and_float_kinds(t *testing.T) {
	rt := NewRuntime(0)

	v, err := rt.Evaluate("a + b", map[string]any{"a": 2, "b": 3})
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)

	v, err = rt.Evaluate("a / b", map[string]any{"a": 3, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)

	v, err = rt.Evaluate("a + 0.5", map[string]any{"a": 2})
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)

	v, err = rt.Evaluate("-7 % 3", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func Test_and_or_short_circuit_skip_failing_operand(t *testing.T) {
	rt := NewRuntime(0)

	res, err := rt.Condition("False and undefined_name > 1", map[string]any{})
	assert.NoError(t, err)
	assert.False(t, res)

	res, err = rt.Condition("True or undefined_name > 1", map[string]any{})
	assert.NoError(t, err)
	assert.True(t, res)
}

func Test_evaluation_errors(t *testing.T) {
	rt := NewRuntime(0)
	vars := map[string]any{"score": 10, "name": "x"}

	tests := map[string]string{
		"undefined variable":    "unknown > 1",
		"type mismatch":         "score > 'abc'",
		"division by zero":      "score / 0 > 1",
		"bad string operand":    "name - 1",
		"missing attribute":     "name.first == 'a'",
		"index out of range":    "[1, 2][5] == 1",
		"in with non-container": "1 in score",
		"oversized repetition":  `"ab" * 9223372036854775807 == ""`,
		"float overflow":        "1e308 * 10 > 1",
		"infinite float":        "float('inf') > 1",
		"not a number":          "float('nan') == 1",
	}
	for name, expression := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := rt.Condition(expression, vars)

			var evalErr *EvalError
			assert.True(t, errors.As(err, &evalErr), "expected EvalError, got %v", err)
		})
	}
}

func Test_syntax_errors(t *testing.T) {
	rt := NewRuntime(0)

	tests := map[string]string{
		"empty":             "",
		"dangling operator": "score >",
		"unclosed paren":    "(score > 1",
		"unknown function":  "eval('1')",
		"unterminated":      "name == 'abc",
		"import attempt":    "__import__('os')",
		"bad character":     "score @ 2",
		"assignment":        "score = 1",
		"trailing token":    "score 1",
	}
	for name, expression := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := rt.Evaluate(expression, map[string]any{"score": 1, "name": "a"})

			var syntaxErr *SyntaxError
			assert.True(t, errors.As(err, &syntaxErr), "expected SyntaxError, got %v", err)
		})
	}
}

func Test_execute_returns_only_changed_and_new_bindings(t *testing.T) {
	// given
	rt := NewRuntime(0)
	vars := map[string]any{"score": 700, "risk": "LOW", "limit": 1000}

	// when
	changes, err := rt.Execute("risk = 'LOW'; limit = limit * 2\nbonus = score > 650", vars)

	// then
	assert.NoError(t, err)
	assert.Equal(t, map[string]any{"limit": int64(2000), "bonus": true}, changes)
	assert.Equal(t, 1000, vars["limit"], "input context must not be mutated")
}

func Test_execute_later_statements_observe_earlier_assignments(t *testing.T) {
	rt := NewRuntime(0)

	changes, err := rt.Execute("a = 1; a += 2; b = a * 10", map[string]any{})

	assert.NoError(t, err)
	assert.Equal(t, map[string]any{"a": int64(3), "b": int64(30)}, changes)
}

func Test_execute_rejects_non_assignment(t *testing.T) {
	rt := NewRuntime(0)

	_, err := rt.Execute("score > 1", map[string]any{"score": 2})

	var syntaxErr *SyntaxError
	assert.True(t, errors.As(err, &syntaxErr))
}

func Test_compiled_expressions_are_cached(t *testing.T) {
	rt := NewRuntime(2)

	_, err := rt.Evaluate("1 + 1", nil)
	require.NoError(t, err)
	first, ok := rt.expressions.Get("1 + 1")
	require.True(t, ok)

	_, err = rt.Evaluate("1 + 1", nil)
	require.NoError(t, err)
	second, _ := rt.expressions.Get("1 + 1")

	assert.Same(t, first, second)
}

func Test_format_follows_python_str(t *testing.T) {
	assert.Equal(t, "5.0", Format(5.0))
	assert.Equal(t, "2.5", Format(2.5))
	assert.Equal(t, "7", Format(7))
	assert.Equal(t, "True", Format(true))
	assert.Equal(t, "None", Format(nil))
	assert.Equal(t, "['a', 1]", Format([]any{"a", 1}))
}

func Test_execute_rejects_non_finite_results(t *testing.T) {
	rt := NewRuntime(0)

	changes, err := rt.Execute("huge = big * 10", map[string]any{"big": 1e308})

	var evalErr *EvalError
	assert.ErrorAs(t, err, &evalErr)
	assert.Nil(t, changes)
}

func Test_string_repetition_within_limit(t *testing.T) {
	rt := NewRuntime(0)

	v, err := rt.Evaluate("'ab' * 3", nil)
	require.NoError(t, err)
	assert.Equal(t, "ababab", v)

	v, err = rt.Evaluate("'ab' * -2", nil)
	require.NoError(t, err)
	assert.Equal(t, "", v)
}

func Test_panics_during_evaluation_become_eval_errors(t *testing.T) {
	run := func() (err error) {
		defer recoverEval(&err)
		var m map[string]any
		m["x"] = 1
		return nil
	}

	err := run()

	var evalErr *EvalError
	require.ErrorAs(t, err, &evalErr)
	assert.Contains(t, evalErr.Msg, "evaluation aborted")
}
