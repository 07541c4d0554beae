// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package decision

import "fmt"

type UnknownRuleTypeError struct {
	RuleType RuleType
}

func (e *UnknownRuleTypeError) Error() string {
	return fmt.Sprintf("unknown rule type: %s", e.RuleType)
}

type RuleNotFoundError struct {
	RuleType RuleType
	RuleId   string
}

func (e *RuleNotFoundError) Error() string {
	return fmt.Sprintf("%s [%s] doesn't exist", e.RuleType, e.RuleId)
}

// RuleEvaluationError wraps a failure of the model itself, e.g. a tree that does not compile.
type RuleEvaluationError struct {
	RuleType RuleType
	RuleId   string
	Err      error
}

func (e *RuleEvaluationError) Error() string {
	return fmt.Sprintf("failed to evaluate %s [%s]: %v", e.RuleType, e.RuleId, e.Err)
}

func (e *RuleEvaluationError) Unwrap() error {
	return e.Err
}

// MissingRuleConfigError is returned for business rule nodes without rule_type or rule_id.
type MissingRuleConfigError struct {
	NodeId string
}

func (e *MissingRuleConfigError) Error() string {
	return fmt.Sprintf("node %s is missing rule configuration (rule_type, rule_id)", e.NodeId)
}
