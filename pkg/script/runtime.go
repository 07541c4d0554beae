// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

// Package script defines the contract between the engines and the expression language
// used in gateway conditions, edge conditions and rule sets.
package script

type Runtime interface {
	// Evaluate computes the value of an expression against the variable context.
	Evaluate(expression string, variableContext map[string]any) (any, error)

	// Condition evaluates an expression and reduces its value to a boolean.
	Condition(expression string, variableContext map[string]any) (bool, error)

	// Execute runs assignment statements against a copy of variableContext and returns
	// only the bindings that were introduced or changed. variableContext is never mutated.
	Execute(statements string, variableContext map[string]any) (map[string]any, error)
}

// SafeCondition evaluates a condition and treats every evaluation failure as false.
func SafeCondition(rt Runtime, expression string, variableContext map[string]any) bool {
	res, err := rt.Condition(expression, variableContext)
	if err != nil {
		return false
	}
	return res
}

// SafeExecute runs statements and degrades a failure to an empty set of bindings. The error
// message is returned so callers can record it.
func SafeExecute(rt Runtime, statements string, variableContext map[string]any) (map[string]any, string) {
	changes, err := rt.Execute(statements, variableContext)
	if err != nil {
		return map[string]any{}, err.Error()
	}
	return changes, ""
}
