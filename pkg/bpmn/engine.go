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
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hashicorp/go-hclog"
	"github.com/pbinitiative/zendecision/internal/appcontext"
	"github.com/pbinitiative/zendecision/pkg/bpmn/exporter"
	"github.com/pbinitiative/zendecision/pkg/bpmn/runtime"
	"github.com/pbinitiative/zendecision/pkg/decision"
	"github.com/pbinitiative/zendecision/pkg/script"
	"github.com/pbinitiative/zendecision/pkg/script/expr"
	"github.com/pbinitiative/zendecision/pkg/storage"
	"github.com/pbinitiative/zendecision/pkg/storage/inmemory"
	"github.com/senseyeio/duration"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	otelPkg "github.com/pbinitiative/zendecision/pkg/otel"
)

type Engine struct {
	name             string
	taskHandlers     []*taskHandler
	taskhandlersMu   *sync.RWMutex
	exporters        []exporter.EventExporter
	snowflake        *snowflake.Node
	persistence      storage.Storage
	decisions        *decision.Engine
	script           script.Runtime
	runningInstances *RunningInstancesCache
	logger           hclog.Logger
	tracer           trace.Tracer
	metrics          *otelPkg.EngineMetrics
	defaultTaskDue   *duration.Duration
}

// NewEngine creates a new instance of the process engine. Without EngineWithStorage the
// engine keeps its state in memory.
func NewEngine(options ...EngineOption) Engine {
	name := fmt.Sprintf("Bpmn-Engine-%d", getGlobalSnowflakeIdGenerator().Generate().Int64())
	engine := Engine{
		name:             name,
		taskHandlers:     []*taskHandler{},
		taskhandlersMu:   &sync.RWMutex{},
		snowflake:        getGlobalSnowflakeIdGenerator(),
		exporters:        []exporter.EventExporter{},
		persistence:      nil,
		runningInstances: newRunningInstancesCache(),
		logger:           hclog.Default().Named("bpmn-engine"),
		tracer:           otel.Tracer("bpmn-engine"),
	}

	for _, option := range options {
		option(&engine)
	}

	if engine.persistence == nil {
		engine.persistence = inmemory.NewStorage()
	}
	if engine.metrics == nil {
		engine.metrics = otelPkg.NoopMetrics()
	}
	if engine.script == nil {
		engine.script = expr.NewRuntime(expr.DefaultCacheSize)
	}
	if engine.decisions == nil {
		engine.decisions = decision.NewEngine(engine.persistence,
			decision.EngineWithScriptRuntime(engine.script),
			decision.EngineWithMetrics(engine.metrics),
		)
	}
	return engine
}

// Name returns the name of the engine, only useful in case you control multiple ones
func (engine *Engine) Name() string {
	return engine.name
}

// Persistence returns the storage the engine reads and writes
func (engine *Engine) Persistence() storage.Storage {
	return engine.persistence
}

// Decisions returns the dispatcher used by businessRule nodes
func (engine *Engine) Decisions() *decision.Engine {
	return engine.decisions
}

func (engine *Engine) newAuditLog(eventType runtime.AuditEventType, entityType runtime.AuditEntityType, entityId string, userId string, oldValue string, newValue string, details map[string]any) runtime.AuditLog {
	return runtime.AuditLog{
		Key:        engine.generateKey(),
		EventType:  eventType,
		EntityType: entityType,
		EntityId:   entityId,
		UserId:     userId,
		OldValue:   oldValue,
		NewValue:   newValue,
		Details:    details,
		Timestamp:  time.Now(),
	}
}

// visitedNodes returns the ids of nodes the instance already passed, used by the cycle guard
func (engine *Engine) visitedNodes(ctx context.Context, instanceId string) (map[string]bool, error) {
	history, err := engine.persistence.FindNodeInstances(ctx, instanceId)
	if err != nil {
		return nil, fmt.Errorf("failed to load node history of instance %s: %w", instanceId, err)
	}
	visited := make(map[string]bool, len(history))
	for _, ni := range history {
		visited[ni.NodeId] = true
	}
	return visited, nil
}

// run processes the command queue until the instance ends, fails or suspends, then stores the
// instance and flushes the batch. The caller must hold the instance lock.
// failure is the reason the traversal failed the instance; err means nothing was stored.
func (engine *Engine) run(ctx context.Context, batch storage.Batch, definition *runtime.ProcessDefinition, instance *runtime.ProcessInstance, visited map[string]bool, commandQueue []command) (failure error, err error) {
	executionKey := engine.snowflake.Generate().Int64()
	ctx = context.WithValue(ctx, appcontext.ExecutionKey, executionKey)
	ctx, span := engine.tracer.Start(ctx, fmt.Sprintf("instance:%s", instance.InstanceId), trace.WithAttributes(
		attribute.String(otelPkg.AttributeProcessInstanceId, instance.InstanceId),
		attribute.String(otelPkg.AttributeProcessId, definition.Id),
		attribute.Int64(otelPkg.AttributeProcessDefinitionKey, definition.Key),
	))
	defer func() {
		span.SetAttributes(attribute.String(otelPkg.AttributeInstanceStatus, string(instance.Status)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else if failure != nil {
			span.RecordError(failure)
			span.SetStatus(codes.Error, failure.Error())
		}
		span.End()
	}()

	// *** MAIN LOOP ***
	for len(commandQueue) > 0 {
		cmd := commandQueue[0]
		commandQueue = commandQueue[1:]

		switch tCmd := cmd.(type) {
		case flowTransitionCommand:
			engine.exportEdgeEvent(*definition, *instance, tCmd.edge)
			target, ok := definition.FindNode(tCmd.edge.Target)
			if !ok {
				commandQueue = append(commandQueue, errorCommand{
					err: &DefinitionError{
						DefinitionId: definition.Id,
						Reason:       fmt.Sprintf("edge %s has unknown target %s", edgeName(tCmd.edge), tCmd.edge.Target),
						Err:          ErrDanglingEdge,
					},
					nodeId: tCmd.sourceId,
				})
				continue
			}
			commandQueue = append(commandQueue, activityCommand{
				sourceEdgeId: edgeName(tCmd.edge),
				node:         target,
			})
		case activityCommand:
			if visited[tCmd.node.Id] {
				commandQueue = append(commandQueue, errorCommand{
					err: &RoutingError{
						InstanceId: instance.InstanceId,
						NodeId:     tCmd.node.Id,
						Reason:     ErrCycleDetected,
					},
					nodeId:    tCmd.node.Id,
					nodeLabel: tCmd.node.Label,
				})
				continue
			}
			visited[tCmd.node.Id] = true
			nextCommands, err := engine.handleNode(ctx, batch, definition, instance, tCmd.node)
			if err != nil {
				return nil, errors.Join(newEngineErrorf("failed to handle node %s", tCmd.node.Id), err)
			}
			commandQueue = append(commandQueue, nextCommands...)
		case continueActivityCommand:
			node, ok := definition.FindNode(tCmd.nodeInstance.NodeId)
			if !ok {
				return nil, newEngineErrorf("node %s of instance %s is not part of definition %d", tCmd.nodeInstance.NodeId, instance.InstanceId, definition.Key)
			}
			instance.VariableHolder.SetVariables(tCmd.output)
			nextCommands, err := engine.leaveNode(ctx, batch, definition, instance, node, tCmd.nodeInstance, tCmd.output)
			if err != nil {
				return nil, errors.Join(newEngineErrorf("failed to continue node %s", node.Id), err)
			}
			commandQueue = append(commandQueue, nextCommands...)
		case errorCommand:
			failure = tCmd.err
			instance.ErrorMessage = tCmd.err.Error()
			instance.Finish(runtime.InstanceStatusFailed, time.Now())
			engine.logger.Warn("process instance failed", "instanceId", instance.InstanceId, "nodeId", tCmd.nodeId, "error", tCmd.err)
			commandQueue = nil
		default:
			panic("[invariant check] command type check not fully implemented")
		}
	}

	if instance.Status.IsTerminal() {
		eventType := runtime.AuditProcessCompleted
		if instance.Status == runtime.InstanceStatusFailed {
			eventType = runtime.AuditProcessFailed
		}
		details := map[string]any{"duration_ms": instance.DurationMs}
		if instance.ErrorMessage != "" {
			details["error"] = instance.ErrorMessage
		}
		err = batch.SaveAuditLog(ctx, engine.newAuditLog(eventType, runtime.AuditEntityProcessInstance, instance.InstanceId, instance.StartedBy, string(runtime.InstanceStatusRunning), string(instance.Status), details))
		if err != nil {
			return failure, errors.Join(newEngineErrorf("failed to add audit log of instance %s into batch", instance.InstanceId), err)
		}
	}
	err = batch.SaveProcessInstance(ctx, *instance)
	if err != nil {
		return failure, errors.Join(newEngineErrorf("failed to add save process instance %s into batch", instance.InstanceId), err)
	}

	err = batch.Flush(ctx)
	if err != nil {
		return failure, errors.Join(newEngineErrorf("failed to flush batch for %s", instance.InstanceId), err)
	}

	if instance.Status.IsTerminal() {
		engine.exportEndProcessEvent(*definition, *instance)
		attrs := metric.WithAttributes(
			attribute.String(otelPkg.AttributeProcessId, definition.Id),
			attribute.String(otelPkg.AttributeInstanceStatus, string(instance.Status)),
		)
		engine.metrics.ProcessesEnded.Add(ctx, 1, attrs)
		engine.metrics.ProcessesRunning.Add(ctx, -1, metric.WithAttributes(attribute.String(otelPkg.AttributeProcessId, definition.Id)))
		if instance.Status == runtime.InstanceStatusFailed {
			engine.metrics.ProcessesFailed.Add(ctx, 1, attrs)
		}
		engine.logger.Info("process instance finished", "instanceId", instance.InstanceId, "status", instance.Status, "durationMs", instance.DurationMs)
	}
	return failure, nil
}

// handleNode records a visit of node, runs it and decides how the traversal goes on.
func (engine *Engine) handleNode(ctx context.Context, batch storage.Batch, definition *runtime.ProcessDefinition, instance *runtime.ProcessInstance, node runtime.Node) (nextCommands []command, retErr error) {
	ctx, span := engine.tracer.Start(ctx, fmt.Sprintf("node:%s", node.Id), trace.WithAttributes(
		attribute.String(otelPkg.AttributeProcessInstanceId, instance.InstanceId),
		attribute.String(otelPkg.AttributeNodeId, node.Id),
		attribute.String(otelPkg.AttributeNodeType, string(node.Type)),
		attribute.String(otelPkg.AttributeNodeLabel, node.Label),
	))
	defer func() {
		if retErr != nil {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
		span.End()
	}()

	nodeInstance := runtime.NodeInstance{
		Key:         engine.generateKey(),
		InstanceId:  instance.InstanceId,
		NodeId:      node.Id,
		NodeType:    node.Type,
		NodeLabel:   node.Label,
		Status:      runtime.NodeInstanceStatusActive,
		TriggerTime: time.Now(),
		Variables:   instance.VariableHolder.Snapshot(),
	}
	instance.CurrentNodeId = node.Id
	engine.exportNodeEvent(*definition, *instance, nodeInstance, exporter.ElementActivated)
	engine.metrics.NodesExecuted.Add(ctx, 1, metric.WithAttributes(attribute.String(otelPkg.AttributeNodeType, string(node.Type))))
	engine.logger.Debug("executing node", "instanceId", instance.InstanceId, "nodeId", node.Id, "nodeType", node.Type)

	result, err := engine.executeNode(ctx, batch, instance, node, nodeInstance)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return engine.failNode(ctx, batch, definition, instance, nodeInstance, err)
	}
	instance.VariableHolder.SetVariables(result.output)

	if result.suspend {
		nodeInstance.Output = result.output
		if err := batch.SaveNodeInstance(ctx, nodeInstance); err != nil {
			return nil, fmt.Errorf("failed to save node instance %d: %w", nodeInstance.Key, err)
		}
		engine.logger.Debug("process instance suspended", "instanceId", instance.InstanceId, "nodeId", node.Id)
		return nil, nil
	}
	return engine.leaveNode(ctx, batch, definition, instance, node, nodeInstance, result.output)
}

// leaveNode completes the node instance and queues the transition along the resolved edge.
// An end node finishes the instance.
func (engine *Engine) leaveNode(ctx context.Context, batch storage.Batch, definition *runtime.ProcessDefinition, instance *runtime.ProcessInstance, node runtime.Node, nodeInstance runtime.NodeInstance, output map[string]any) ([]command, error) {
	now := time.Now()
	if node.Type == runtime.NodeTypeEnd {
		nodeInstance.Complete(output, now)
		if err := batch.SaveNodeInstance(ctx, nodeInstance); err != nil {
			return nil, fmt.Errorf("failed to save node instance %d: %w", nodeInstance.Key, err)
		}
		engine.exportNodeEvent(*definition, *instance, nodeInstance, exporter.ElementCompleted)
		instance.Finish(runtime.InstanceStatusCompleted, now)
		return nil, nil
	}

	edge, err := engine.resolveEdge(definition, instance, node)
	if err != nil {
		nodeInstance.Output = output
		return engine.failNode(ctx, batch, definition, instance, nodeInstance, err)
	}
	nodeInstance.Complete(output, now)
	if err := batch.SaveNodeInstance(ctx, nodeInstance); err != nil {
		return nil, fmt.Errorf("failed to save node instance %d: %w", nodeInstance.Key, err)
	}
	engine.exportNodeEvent(*definition, *instance, nodeInstance, exporter.ElementCompleted)
	return []command{flowTransitionCommand{
		sourceId: node.Id,
		edge:     edge,
	}}, nil
}

func (engine *Engine) failNode(ctx context.Context, batch storage.Batch, definition *runtime.ProcessDefinition, instance *runtime.ProcessInstance, nodeInstance runtime.NodeInstance, cause error) ([]command, error) {
	nodeInstance.Fail(cause, time.Now())
	if err := batch.SaveNodeInstance(ctx, nodeInstance); err != nil {
		return nil, fmt.Errorf("failed to save node instance %d: %w", nodeInstance.Key, err)
	}
	engine.exportNodeEvent(*definition, *instance, nodeInstance, exporter.ElementFailed)
	return []command{errorCommand{
		err:       cause,
		nodeId:    nodeInstance.NodeId,
		nodeLabel: nodeInstance.NodeLabel,
	}}, nil
}
