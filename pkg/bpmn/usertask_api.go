// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/pbinitiative/zendecision/pkg/bpmn/runtime"
	"github.com/pbinitiative/zendecision/pkg/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	otelPkg "github.com/pbinitiative/zendecision/pkg/otel"
)

// TaskDetails is a task together with its assignments and audit trail, newest first
type TaskDetails struct {
	Task        runtime.HumanTask        `json:"task"`
	Assignments []runtime.TaskAssignment `json:"assignments"`
	History     []runtime.AuditLog       `json:"history"`
}

// ListTasksFor returns the tasks assigned to userId or listing it as a candidate user.
// Without statuses READY and RESERVED tasks are returned.
func (engine *Engine) ListTasksFor(ctx context.Context, userId string, statuses ...runtime.HumanTaskStatus) ([]runtime.HumanTask, error) {
	if len(statuses) == 0 {
		statuses = []runtime.HumanTaskStatus{runtime.HumanTaskStatusReady, runtime.HumanTaskStatusReserved}
	}
	return engine.persistence.FindHumanTasksForUser(ctx, userId, statuses)
}

func (engine *Engine) ListTasksByInstance(ctx context.Context, instanceId string) ([]runtime.HumanTask, error) {
	return engine.persistence.FindHumanTasksByInstance(ctx, instanceId)
}

func (engine *Engine) GetTask(ctx context.Context, taskId string) (runtime.HumanTask, error) {
	return engine.persistence.FindHumanTaskById(ctx, taskId)
}

func (engine *Engine) GetTaskDetails(ctx context.Context, taskId string) (TaskDetails, error) {
	task, err := engine.persistence.FindHumanTaskById(ctx, taskId)
	if err != nil {
		return TaskDetails{}, err
	}
	assignments, err := engine.persistence.FindTaskAssignments(ctx, taskId)
	if err != nil {
		return TaskDetails{}, fmt.Errorf("failed to load assignments of task %s: %w", taskId, err)
	}
	history, err := engine.persistence.FindAuditLogs(ctx, runtime.AuditEntityHumanTask, taskId)
	if err != nil {
		return TaskDetails{}, fmt.Errorf("failed to load audit log of task %s: %w", taskId, err)
	}
	slices.Reverse(assignments)
	slices.Reverse(history)
	return TaskDetails{
		Task:        task,
		Assignments: assignments,
		History:     history,
	}, nil
}

// ClaimTask reserves a READY task for userId. Only one of concurrent claims succeeds.
func (engine *Engine) ClaimTask(ctx context.Context, taskId string, userId string) (runtime.HumanTask, error) {
	task, err := engine.findOpenTask(ctx, taskId, "claim")
	if err != nil {
		return runtime.HumanTask{}, err
	}
	if task.Status != runtime.HumanTaskStatusReady {
		return runtime.HumanTask{}, &TaskStateError{TaskId: taskId, Status: task.Status, Operation: "claim"}
	}
	if task.Assignee != "" && task.Assignee != userId {
		return runtime.HumanTask{}, &AuthorizationError{TaskId: taskId, UserId: userId, Reason: "task is assigned to another user"}
	}
	if !task.IsCandidate(userId) {
		return runtime.HumanTask{}, &AuthorizationError{TaskId: taskId, UserId: userId, Reason: "user is not a candidate user"}
	}

	now := time.Now()
	expectedVersion := task.Version
	oldStatus := task.Status
	task.Status = runtime.HumanTaskStatusReserved
	task.Assignee = userId
	task.ClaimedAt = &now

	batch := engine.persistence.NewBatch()
	err = engine.queueTaskTransition(ctx, batch, &task, expectedVersion,
		engine.newAuditLog(runtime.AuditTaskClaimed, runtime.AuditEntityHumanTask, taskId, userId, string(oldStatus), string(task.Status), nil),
		&runtime.TaskAssignment{AssignmentType: runtime.AssignmentTypeClaim, AssigneeId: userId, AssignedBy: userId, AssignedAt: now},
	)
	if err != nil {
		return runtime.HumanTask{}, err
	}
	if err := engine.flushTaskTransition(ctx, batch, task, oldStatus, "claim"); err != nil {
		return runtime.HumanTask{}, err
	}
	engine.logger.Info("human task claimed", "taskId", taskId, "userId", userId)
	return task, nil
}

// StartTask marks a RESERVED task as being worked on by its assignee
func (engine *Engine) StartTask(ctx context.Context, taskId string, userId string) (runtime.HumanTask, error) {
	task, err := engine.findOpenTask(ctx, taskId, "start")
	if err != nil {
		return runtime.HumanTask{}, err
	}
	if task.Status != runtime.HumanTaskStatusReserved {
		return runtime.HumanTask{}, &TaskStateError{TaskId: taskId, Status: task.Status, Operation: "start"}
	}
	if task.Assignee != userId {
		return runtime.HumanTask{}, &AuthorizationError{TaskId: taskId, UserId: userId, Reason: "task is not assigned to the user"}
	}

	now := time.Now()
	expectedVersion := task.Version
	oldStatus := task.Status
	task.Status = runtime.HumanTaskStatusInProgress
	task.StartedAt = &now

	batch := engine.persistence.NewBatch()
	err = engine.queueTaskTransition(ctx, batch, &task, expectedVersion,
		engine.newAuditLog(runtime.AuditTaskStarted, runtime.AuditEntityHumanTask, taskId, userId, string(oldStatus), string(task.Status), nil),
		nil,
	)
	if err != nil {
		return runtime.HumanTask{}, err
	}
	if err := engine.flushTaskTransition(ctx, batch, task, oldStatus, "start"); err != nil {
		return runtime.HumanTask{}, err
	}
	return task, nil
}

// ReleaseTask hands a RESERVED or IN_PROGRESS task back to the pool of candidates
func (engine *Engine) ReleaseTask(ctx context.Context, taskId string, userId string) (runtime.HumanTask, error) {
	task, err := engine.findOpenTask(ctx, taskId, "release")
	if err != nil {
		return runtime.HumanTask{}, err
	}
	if task.Status != runtime.HumanTaskStatusReserved && task.Status != runtime.HumanTaskStatusInProgress {
		return runtime.HumanTask{}, &TaskStateError{TaskId: taskId, Status: task.Status, Operation: "release"}
	}
	if task.Assignee != userId {
		return runtime.HumanTask{}, &AuthorizationError{TaskId: taskId, UserId: userId, Reason: "task is not assigned to the user"}
	}

	expectedVersion := task.Version
	oldStatus := task.Status
	task.Status = runtime.HumanTaskStatusReady
	task.Assignee = ""
	task.ClaimedAt = nil
	task.StartedAt = nil

	batch := engine.persistence.NewBatch()
	err = engine.queueTaskTransition(ctx, batch, &task, expectedVersion,
		engine.newAuditLog(runtime.AuditTaskReleased, runtime.AuditEntityHumanTask, taskId, userId, string(oldStatus), string(task.Status), map[string]any{"previous_assignee": userId}),
		nil,
	)
	if err != nil {
		return runtime.HumanTask{}, err
	}
	if err := engine.flushTaskTransition(ctx, batch, task, oldStatus, "release"); err != nil {
		return runtime.HumanTask{}, err
	}
	engine.logger.Info("human task released", "taskId", taskId, "userId", userId)
	return task, nil
}

// DelegateTask moves the assignment from fromUserId to toUserId without changing the status.
// The delegating user becomes the owner of the task.
func (engine *Engine) DelegateTask(ctx context.Context, taskId string, fromUserId string, toUserId string) (runtime.HumanTask, error) {
	if toUserId == "" {
		return runtime.HumanTask{}, newEngineErrorf("task %s can not be delegated to an empty user", taskId)
	}
	task, err := engine.findOpenTask(ctx, taskId, "delegate")
	if err != nil {
		return runtime.HumanTask{}, err
	}
	if task.Status == runtime.HumanTaskStatusCompleted {
		return runtime.HumanTask{}, &TaskStateError{TaskId: taskId, Status: task.Status, Operation: "delegate"}
	}
	if task.Assignee != fromUserId {
		return runtime.HumanTask{}, &AuthorizationError{TaskId: taskId, UserId: fromUserId, Reason: "task is not assigned to the user"}
	}

	now := time.Now()
	expectedVersion := task.Version
	task.Assignee = toUserId
	task.Owner = fromUserId

	batch := engine.persistence.NewBatch()
	err = engine.queueTaskTransition(ctx, batch, &task, expectedVersion,
		engine.newAuditLog(runtime.AuditTaskDelegated, runtime.AuditEntityHumanTask, taskId, fromUserId, fromUserId, toUserId, nil),
		&runtime.TaskAssignment{AssignmentType: runtime.AssignmentTypeDelegate, AssigneeId: toUserId, AssignedBy: fromUserId, AssignedAt: now},
	)
	if err != nil {
		return runtime.HumanTask{}, err
	}
	if err := engine.flushTaskTransition(ctx, batch, task, task.Status, "delegate"); err != nil {
		return runtime.HumanTask{}, err
	}
	engine.logger.Info("human task delegated", "taskId", taskId, "from", fromUserId, "to", toUserId)
	return task, nil
}

// CompleteTask completes a task of its assignee and resumes the instance from the task's node.
// output is merged into the task form data and into the instance variables.
func (engine *Engine) CompleteTask(ctx context.Context, taskId string, userId string, output map[string]any) (ExecutionResult, error) {
	task, err := engine.persistence.FindHumanTaskById(ctx, taskId)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("failed to find task %s: %w", taskId, err)
	}

	engine.runningInstances.lockInstance(task.InstanceId)
	defer engine.runningInstances.unlockInstance(task.InstanceId)

	task, err = engine.findOpenTask(ctx, taskId, "complete")
	if err != nil {
		return ExecutionResult{}, err
	}
	if task.Status != runtime.HumanTaskStatusReserved && task.Status != runtime.HumanTaskStatusInProgress {
		return ExecutionResult{}, &TaskStateError{TaskId: taskId, Status: task.Status, Operation: "complete"}
	}
	if task.Assignee != userId {
		return ExecutionResult{}, &AuthorizationError{TaskId: taskId, UserId: userId, Reason: "task is not assigned to the user"}
	}

	instance, err := engine.persistence.FindProcessInstanceById(ctx, task.InstanceId)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("failed to find process instance %s: %w", task.InstanceId, err)
	}
	definition, err := engine.persistence.FindProcessDefinitionByKey(ctx, instance.DefinitionKey)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("failed to find process definition %d: %w", instance.DefinitionKey, err)
	}
	nodeInstance, err := engine.persistence.FindNodeInstanceByKey(ctx, task.NodeInstanceKey)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("failed to find node instance %d of task %s: %w", task.NodeInstanceKey, taskId, err)
	}
	if nodeInstance.Status != runtime.NodeInstanceStatusActive {
		return ExecutionResult{}, newEngineErrorf("node instance %d of task %s is %s", nodeInstance.Key, taskId, nodeInstance.Status)
	}
	visited, err := engine.visitedNodes(ctx, instance.InstanceId)
	if err != nil {
		return ExecutionResult{}, err
	}

	now := time.Now()
	expectedVersion := task.Version
	oldStatus := task.Status
	task.Status = runtime.HumanTaskStatusCompleted
	task.CompletedAt = &now
	task.CompletedBy = userId
	if task.FormData == nil {
		task.FormData = map[string]any{}
	}
	maps.Copy(task.FormData, output)

	batch := engine.persistence.NewBatch()
	err = engine.queueTaskTransition(ctx, batch, &task, expectedVersion,
		engine.newAuditLog(runtime.AuditTaskCompleted, runtime.AuditEntityHumanTask, taskId, userId, string(oldStatus), string(task.Status), output),
		nil,
	)
	if err != nil {
		return ExecutionResult{}, err
	}

	nodeOutput := maps.Clone(nodeInstance.Output)
	if nodeOutput == nil {
		nodeOutput = map[string]any{}
	}
	maps.Copy(nodeOutput, output)
	nodeOutput["task_status"] = string(runtime.HumanTaskStatusCompleted)

	failure, err := engine.run(ctx, batch, &definition, &instance, visited, []command{continueActivityCommand{
		nodeInstance: nodeInstance,
		output:       nodeOutput,
	}})
	if err != nil {
		return ExecutionResult{}, engine.taskFlushError(err, taskId, oldStatus, "complete")
	}
	engine.metrics.UserTasksCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String(otelPkg.AttributeProcessId, instance.ProcessId)))
	engine.logger.Info("human task completed", "taskId", taskId, "userId", userId, "instanceStatus", instance.Status)
	return newExecutionResult(instance, failure), nil
}

// findOpenTask loads a task whose instance still accepts task transitions
func (engine *Engine) findOpenTask(ctx context.Context, taskId string, operation string) (runtime.HumanTask, error) {
	task, err := engine.persistence.FindHumanTaskById(ctx, taskId)
	if err != nil {
		return runtime.HumanTask{}, fmt.Errorf("failed to find task %s: %w", taskId, err)
	}
	instance, err := engine.persistence.FindProcessInstanceById(ctx, task.InstanceId)
	if err != nil {
		return runtime.HumanTask{}, fmt.Errorf("failed to find process instance %s of task %s: %w", task.InstanceId, taskId, err)
	}
	if instance.Status != runtime.InstanceStatusRunning {
		return runtime.HumanTask{}, &InstanceStateError{InstanceId: instance.InstanceId, Status: instance.Status, Operation: operation + " task"}
	}
	return task, nil
}

// queueTaskTransition bumps the task version and queues the compare-and-swap update together
// with its audit log and assignment
func (engine *Engine) queueTaskTransition(ctx context.Context, batch storage.Batch, task *runtime.HumanTask, expectedVersion int64, audit runtime.AuditLog, assignment *runtime.TaskAssignment) error {
	task.Version = expectedVersion + 1
	err := batch.UpdateHumanTask(ctx, *task, expectedVersion)
	if err != nil {
		return errors.Join(newEngineErrorf("failed to add update of task %s into batch", task.TaskId), err)
	}
	if assignment != nil {
		assignment.Key = engine.generateKey()
		assignment.TaskId = task.TaskId
		err = batch.SaveTaskAssignment(ctx, *assignment)
		if err != nil {
			return errors.Join(newEngineErrorf("failed to add assignment of task %s into batch", task.TaskId), err)
		}
	}
	err = batch.SaveAuditLog(ctx, audit)
	if err != nil {
		return errors.Join(newEngineErrorf("failed to add audit log of task %s into batch", task.TaskId), err)
	}
	return nil
}

func (engine *Engine) flushTaskTransition(ctx context.Context, batch storage.Batch, task runtime.HumanTask, oldStatus runtime.HumanTaskStatus, operation string) error {
	err := batch.Flush(ctx)
	if err != nil {
		return engine.taskFlushError(err, task.TaskId, oldStatus, operation)
	}
	return nil
}

// taskFlushError reports a lost compare-and-swap as an illegal transition
func (engine *Engine) taskFlushError(err error, taskId string, status runtime.HumanTaskStatus, operation string) error {
	if errors.Is(err, storage.ErrConflict) {
		engine.logger.Debug("concurrent task transition lost", "taskId", taskId, "operation", operation)
		return &TaskStateError{TaskId: taskId, Status: status, Operation: operation, Err: storage.ErrConflict}
	}
	return errors.Join(newEngineErrorf("failed to %s task %s", operation, taskId), err)
}
