// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package otel

const (
	Prefix                        = "zendecision-"
	AttributeProcessInstanceId    = Prefix + "instance-id"
	AttributeProcessId            = Prefix + "process-id"
	AttributeProcessDefinitionKey = Prefix + "definition-key"
	AttributeNodeId               = Prefix + "node-id"
	AttributeNodeType             = Prefix + "node-type"
	AttributeNodeLabel            = Prefix + "node-label"
	AttributeRuleType             = "rule_type"
	AttributeRuleId               = Prefix + "rule-id"
	AttributeTaskId               = Prefix + "task-id"
	AttributeInstanceStatus       = Prefix + "instance-status"

	AttributeQuery = "sql-query"
	AttributeExec  = "sql-exec"
	AttributeArgs  = "sql-args"
)
