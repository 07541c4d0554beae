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
	"time"

	"github.com/pbinitiative/zendecision/internal/appcontext"
	"github.com/pbinitiative/zendecision/pkg/bpmn/runtime"
	"github.com/pbinitiative/zendecision/pkg/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	otelPkg "github.com/pbinitiative/zendecision/pkg/otel"
)

// ExecutionResult describes an instance after a synchronous run. An instance waiting for a
// human task is returned with status RUNNING.
type ExecutionResult struct {
	InstanceId    string                 `json:"instance_id"`
	Status        runtime.InstanceStatus `json:"status"`
	Variables     map[string]any         `json:"variables"`
	DurationMs    int64                  `json:"duration_ms"`
	CurrentNodeId string                 `json:"current_node_id,omitempty"`
	// Error is the cause of a FAILED status
	Error        error  `json:"-"`
	ErrorMessage string `json:"error,omitempty"`
}

func newExecutionResult(instance runtime.ProcessInstance, failure error) ExecutionResult {
	res := ExecutionResult{
		InstanceId:    instance.InstanceId,
		Status:        instance.Status,
		Variables:     instance.VariableHolder.Snapshot(),
		DurationMs:    instance.DurationMs,
		CurrentNodeId: instance.CurrentNodeId,
		Error:         failure,
		ErrorMessage:  instance.ErrorMessage,
	}
	if !instance.Status.IsTerminal() {
		res.DurationMs = time.Since(instance.StartTime).Milliseconds()
	}
	return res
}

// StartOrExecute creates an instance of the stored definition with the given key and runs it
// until it ends or waits for a human task.
// Traversal failures are reported through the FAILED status of the result, the returned error
// is reserved for problems that prevented running an instance at all.
func (engine *Engine) StartOrExecute(ctx context.Context, definitionKey int64, input map[string]any) (ExecutionResult, error) {
	definition, err := engine.persistence.FindProcessDefinitionByKey(ctx, definitionKey)
	if err != nil {
		return ExecutionResult{}, errors.Join(newEngineErrorf("failed to load process definition with key: %d", definitionKey), err)
	}
	return engine.startInstance(ctx, definition, input)
}

// StartOrExecuteById is StartOrExecute for the latest version of the definition with processId
func (engine *Engine) StartOrExecuteById(ctx context.Context, processId string, input map[string]any) (ExecutionResult, error) {
	definition, err := engine.persistence.FindLatestProcessDefinitionById(ctx, processId)
	if err != nil {
		return ExecutionResult{}, errors.Join(newEngineErrorf("no process with id=%s was found (prior loaded into the engine)", processId), err)
	}
	return engine.startInstance(ctx, definition, input)
}

// Execute stores the definition (see SaveProcessDefinition) and runs a new instance of it
func (engine *Engine) Execute(ctx context.Context, definition runtime.ProcessDefinition, input map[string]any) (ExecutionResult, error) {
	stored, err := engine.SaveProcessDefinition(ctx, definition)
	if err != nil {
		return ExecutionResult{}, err
	}
	return engine.startInstance(ctx, stored, input)
}

func (engine *Engine) startInstance(ctx context.Context, definition runtime.ProcessDefinition, input map[string]any) (ExecutionResult, error) {
	if _, err := ValidateDefinition(definition); err != nil {
		return ExecutionResult{}, err
	}
	start := definition.FindStartNodes()[0]

	now := time.Now()
	instanceId, err := engine.newInstanceId(ctx, now)
	if err != nil {
		return ExecutionResult{}, err
	}
	instance := runtime.ProcessInstance{
		InstanceId:     instanceId,
		DefinitionKey:  definition.Key,
		ProcessId:      definition.Id,
		Status:         runtime.InstanceStatusRunning,
		VariableHolder: runtime.NewVariableHolder(input),
		StartTime:      now,
	}
	instance.StartedBy, _ = appcontext.UserIdFromContext(ctx)
	instance.VariableHolder.SetVariable("instance_id", instance.InstanceId)
	instance.VariableHolder.SetVariable("process_id", definition.Id)

	engine.runningInstances.lockInstance(instance.InstanceId)
	defer engine.runningInstances.unlockInstance(instance.InstanceId)

	batch := engine.persistence.NewBatch()
	if err := batch.CreateProcessInstance(ctx, instance); err != nil {
		return ExecutionResult{}, errors.Join(newEngineErrorf("failed to add process instance %s into batch", instance.InstanceId), err)
	}
	err = batch.SaveAuditLog(ctx, engine.newAuditLog(runtime.AuditProcessStarted, runtime.AuditEntityProcessInstance, instance.InstanceId, instance.StartedBy, "", string(runtime.InstanceStatusRunning), map[string]any{
		"process_id":     definition.Id,
		"definition_key": definition.Key,
		"version":        definition.Version,
	}))
	if err != nil {
		return ExecutionResult{}, errors.Join(newEngineErrorf("failed to add audit log of instance %s into batch", instance.InstanceId), err)
	}

	engine.exportProcessInstanceEvent(definition, instance)
	engine.metrics.ProcessesStarted.Add(ctx, 1, metric.WithAttributes(attribute.String(otelPkg.AttributeProcessId, definition.Id)))
	engine.metrics.ProcessesRunning.Add(ctx, 1, metric.WithAttributes(attribute.String(otelPkg.AttributeProcessId, definition.Id)))
	engine.logger.Info("process instance started", "instanceId", instance.InstanceId, "processId", definition.Id, "definitionKey", definition.Key)

	failure, err := engine.run(ctx, batch, &definition, &instance, map[string]bool{}, []command{activityCommand{node: start}})
	if err != nil {
		// nothing of the instance was stored
		engine.metrics.ProcessesRunning.Add(ctx, -1, metric.WithAttributes(attribute.String(otelPkg.AttributeProcessId, definition.Id)))
		return ExecutionResult{InstanceId: instance.InstanceId}, errors.Join(newEngineErrorf("failed to run process instance %s", instance.InstanceId), err)
	}
	return newExecutionResult(instance, failure), nil
}

// AbortInstance moves a RUNNING instance to ABORTED. Variables and node history stay as they are.
func (engine *Engine) AbortInstance(ctx context.Context, instanceId string, actorId string) error {
	engine.runningInstances.lockInstance(instanceId)
	defer engine.runningInstances.unlockInstance(instanceId)

	instance, err := engine.persistence.FindProcessInstanceById(ctx, instanceId)
	if err != nil {
		return fmt.Errorf("failed to find process instance %s: %w", instanceId, err)
	}
	if instance.Status != runtime.InstanceStatusRunning {
		return &InstanceStateError{InstanceId: instanceId, Status: instance.Status, Operation: "abort"}
	}
	instance.Finish(runtime.InstanceStatusAborted, time.Now())

	batch := engine.persistence.NewBatch()
	err = batch.SaveAuditLog(ctx, engine.newAuditLog(runtime.AuditProcessAborted, runtime.AuditEntityProcessInstance, instanceId, actorId, string(runtime.InstanceStatusRunning), string(runtime.InstanceStatusAborted), map[string]any{
		"current_node_id": instance.CurrentNodeId,
	}))
	if err != nil {
		return errors.Join(newEngineErrorf("failed to add audit log of instance %s into batch", instanceId), err)
	}
	if err := batch.SaveProcessInstance(ctx, instance); err != nil {
		return errors.Join(newEngineErrorf("failed to add save process instance %s into batch", instanceId), err)
	}
	if err := batch.Flush(ctx); err != nil {
		return errors.Join(newEngineErrorf("failed to flush batch for %s", instanceId), err)
	}

	engine.metrics.ProcessesEnded.Add(ctx, 1, metric.WithAttributes(
		attribute.String(otelPkg.AttributeProcessId, instance.ProcessId),
		attribute.String(otelPkg.AttributeInstanceStatus, string(instance.Status)),
	))
	engine.metrics.ProcessesRunning.Add(ctx, -1, metric.WithAttributes(attribute.String(otelPkg.AttributeProcessId, instance.ProcessId)))
	if definition, err := engine.persistence.FindProcessDefinitionByKey(ctx, instance.DefinitionKey); err == nil {
		engine.exportEndProcessEvent(definition, instance)
	}
	engine.logger.Info("process instance aborted", "instanceId", instanceId, "actor", actorId)
	return nil
}

// GetInstance returns the stored snapshot of an instance
func (engine *Engine) GetInstance(ctx context.Context, instanceId string) (runtime.ProcessInstance, error) {
	return engine.persistence.FindProcessInstanceById(ctx, instanceId)
}

// GetNodeHistory returns the node visits of an instance ordered by trigger time
func (engine *Engine) GetNodeHistory(ctx context.Context, instanceId string) ([]runtime.NodeInstance, error) {
	if _, err := engine.persistence.FindProcessInstanceById(ctx, instanceId); err != nil {
		return nil, fmt.Errorf("failed to find process instance %s: %w", instanceId, err)
	}
	return engine.persistence.FindNodeInstances(ctx, instanceId)
}

// GetInstanceAuditLog returns the lifecycle events of an instance, oldest first
func (engine *Engine) GetInstanceAuditLog(ctx context.Context, instanceId string) ([]runtime.AuditLog, error) {
	return engine.persistence.FindAuditLogs(ctx, runtime.AuditEntityProcessInstance, instanceId)
}

func (engine *Engine) ListInstances(ctx context.Context, filter storage.ProcessInstanceFilter) ([]runtime.ProcessInstance, error) {
	return engine.persistence.FindProcessInstances(ctx, filter)
}

// GetProcessDefinition returns the stored definition with the given key
func (engine *Engine) GetProcessDefinition(ctx context.Context, definitionKey int64) (runtime.ProcessDefinition, error) {
	return engine.persistence.FindProcessDefinitionByKey(ctx, definitionKey)
}

// FindProcessesById returns all registered processes with given ID
// result array is ordered by version number, from 1 (first) and largest version (last)
func (engine *Engine) FindProcessesById(ctx context.Context, id string) ([]runtime.ProcessDefinition, error) {
	return engine.persistence.FindProcessDefinitionsById(ctx, id)
}
