// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package storage

import (
	"context"
	"errors"

	"github.com/pbinitiative/zendecision/pkg/bpmn/runtime"
	"github.com/pbinitiative/zendecision/pkg/decision/ruleset"
	"github.com/pbinitiative/zendecision/pkg/decision/scorecard"
	"github.com/pbinitiative/zendecision/pkg/decision/table"
	"github.com/pbinitiative/zendecision/pkg/decision/tree"
)

var ErrNotFound = errors.New("not found")

// ErrConflict is returned by compare-and-swap updates when the stored version moved on.
var ErrConflict = errors.New("version conflict")

// Storage interface for reading and writing process and rule data into a (persistent) state.
// Interface is used by the process and decision engines to interact with state.
//
// Methods that are expected to return exactly one match MUST return ErrNotFound when the result does not exist
type Storage interface {
	ProcessDefinitionStorageReader
	ProcessDefinitionStorageWriter
	ProcessInstanceStorageReader
	ProcessInstanceStorageWriter
	NodeInstanceStorageReader
	NodeInstanceStorageWriter
	HumanTaskStorageReader
	HumanTaskStorageWriter
	TaskAssignmentStorageReader
	TaskAssignmentStorageWriter
	AuditLogStorageReader
	AuditLogStorageWriter
	RuleStorageReader
	RuleStorageWriter

	GenerateId() int64
	NewBatch() Batch
}

type Batch interface {
	ProcessDefinitionStorageWriter
	ProcessInstanceStorageWriter
	NodeInstanceStorageWriter
	HumanTaskStorageWriter
	TaskAssignmentStorageWriter
	AuditLogStorageWriter

	// Flush applies the queued statements as one unit and prepares the batch for new statements.
	// When a compare-and-swap statement fails nothing of the batch is applied.
	Flush(ctx context.Context) error
}

type ProcessDefinitionStorageReader interface {
	FindLatestProcessDefinitionById(ctx context.Context, processDefinitionId string) (runtime.ProcessDefinition, error)

	FindProcessDefinitionByKey(ctx context.Context, processDefinitionKey int64) (runtime.ProcessDefinition, error)

	// FindProcessDefinitionsById return zero or many registered processes with given ID
	// result array is ordered by version number, from 1 (first) and largest version (last)
	FindProcessDefinitionsById(ctx context.Context, processId string) ([]runtime.ProcessDefinition, error)
}

type ProcessDefinitionStorageWriter interface {
	// SaveProcessDefinition persists a ProcessDefinition
	// and potentially overwrites prior data stored with the given Key
	SaveProcessDefinition(ctx context.Context, definition runtime.ProcessDefinition) error
}

// ProcessInstanceFilter narrows FindProcessInstances. Zero fields do not filter.
type ProcessInstanceFilter struct {
	DefinitionKey int64
	ProcessId     string
	Status        runtime.InstanceStatus
}

type ProcessInstanceStorageReader interface {
	FindProcessInstanceById(ctx context.Context, instanceId string) (runtime.ProcessInstance, error)

	// FindProcessInstances returns the matching instances ordered by start time, oldest first
	FindProcessInstances(ctx context.Context, filter ProcessInstanceFilter) ([]runtime.ProcessInstance, error)
}

type ProcessInstanceStorageWriter interface {
	// CreateProcessInstance inserts a new instance and returns ErrConflict when the
	// instance id is already taken
	CreateProcessInstance(ctx context.Context, processInstance runtime.ProcessInstance) error

	// SaveProcessInstance persists the instance
	// and potentially overwrites prior data stored with given instance id
	SaveProcessInstance(ctx context.Context, processInstance runtime.ProcessInstance) error
}

type NodeInstanceStorageReader interface {
	FindNodeInstanceByKey(ctx context.Context, key int64) (runtime.NodeInstance, error)

	// FindNodeInstances returns the node history of an instance ordered by trigger time, then key
	FindNodeInstances(ctx context.Context, instanceId string) ([]runtime.NodeInstance, error)
}

type NodeInstanceStorageWriter interface {
	SaveNodeInstance(ctx context.Context, nodeInstance runtime.NodeInstance) error
}

type HumanTaskStorageReader interface {
	FindHumanTaskById(ctx context.Context, taskId string) (runtime.HumanTask, error)

	// FindHumanTasksByInstance returns tasks of an instance ordered by creation time
	FindHumanTasksByInstance(ctx context.Context, instanceId string) ([]runtime.HumanTask, error)

	// FindHumanTasksForUser returns tasks assigned to userId or listing it as a candidate user,
	// restricted to the given statuses, ordered by priority descending then creation time
	FindHumanTasksForUser(ctx context.Context, userId string, statuses []runtime.HumanTaskStatus) ([]runtime.HumanTask, error)
}

type HumanTaskStorageWriter interface {
	// CreateHumanTask inserts a new task and returns ErrConflict when the task id is already taken
	CreateHumanTask(ctx context.Context, task runtime.HumanTask) error

	// SaveHumanTask inserts the task or overwrites it unconditionally
	SaveHumanTask(ctx context.Context, task runtime.HumanTask) error

	// UpdateHumanTask overwrites the task only when the stored version equals expectedVersion,
	// otherwise it returns ErrConflict
	UpdateHumanTask(ctx context.Context, task runtime.HumanTask, expectedVersion int64) error
}

type TaskAssignmentStorageReader interface {
	// FindTaskAssignments returns the assignments of a task, oldest first
	FindTaskAssignments(ctx context.Context, taskId string) ([]runtime.TaskAssignment, error)
}

type TaskAssignmentStorageWriter interface {
	SaveTaskAssignment(ctx context.Context, assignment runtime.TaskAssignment) error
}

type AuditLogStorageReader interface {
	// FindAuditLogs returns the audit trail of an entity, oldest first
	FindAuditLogs(ctx context.Context, entityType runtime.AuditEntityType, entityId string) ([]runtime.AuditLog, error)
}

type AuditLogStorageWriter interface {
	SaveAuditLog(ctx context.Context, log runtime.AuditLog) error
}

type RuleStorageReader interface {
	FindDecisionTreeById(ctx context.Context, id string) (tree.DecisionTree, error)
	FindScorecardById(ctx context.Context, id string) (scorecard.Scorecard, error)
	FindDecisionTableById(ctx context.Context, id string) (table.DecisionTable, error)
	FindRuleSetById(ctx context.Context, id string) (ruleset.RuleSet, error)
}

type RuleStorageWriter interface {
	SaveDecisionTree(ctx context.Context, dt tree.DecisionTree) error
	SaveScorecard(ctx context.Context, sc scorecard.Scorecard) error
	SaveDecisionTable(ctx context.Context, dt table.DecisionTable) error
	SaveRuleSet(ctx context.Context, rs ruleset.RuleSet) error
}
