// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"strings"
)

// normalizeExpression trims the expression and drops a leading '=' so expressions written in
// the FEEL style of other modelers are accepted.
func normalizeExpression(expression string) string {
	expression = strings.TrimSpace(expression)
	return strings.TrimSpace(strings.TrimPrefix(expression, "="))
}

func (engine *Engine) evaluateExpression(nodeId string, expression string, variableContext map[string]any) (any, error) {
	expression = normalizeExpression(expression)
	res, err := engine.script.Evaluate(expression, variableContext)
	if err != nil {
		return nil, &GatewayEvaluationError{
			NodeId:     nodeId,
			Expression: expression,
			Err:        err,
		}
	}
	return res, nil
}

func (engine *Engine) evaluateCondition(nodeId string, expression string, variableContext map[string]any) (bool, error) {
	expression = normalizeExpression(expression)
	res, err := engine.script.Condition(expression, variableContext)
	if err != nil {
		return false, &GatewayEvaluationError{
			NodeId:     nodeId,
			Expression: expression,
			Err:        err,
		}
	}
	return res, nil
}
