// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"context"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pbinitiative/zendecision/pkg/bpmn/runtime"
	"github.com/pbinitiative/zendecision/pkg/decision"
	"github.com/pbinitiative/zendecision/pkg/storage"
	"github.com/senseyeio/duration"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	otelPkg "github.com/pbinitiative/zendecision/pkg/otel"
)

// nodeResult is what a node contributes to the instance. suspend keeps the node ACTIVE and
// stops the traversal until the node is continued from the outside.
type nodeResult struct {
	output  map[string]any
	suspend bool
}

type businessRuleConfig struct {
	RuleType       string `mapstructure:"rule_type"`
	RuleId         string `mapstructure:"rule_id"`
	ResultVariable string `mapstructure:"result_variable"`
}

type gatewayConfig struct {
	Condition string `mapstructure:"condition"`
}

type serviceTaskConfig struct {
	Service string `mapstructure:"service"`
}

type userTaskConfig struct {
	Name            string         `mapstructure:"name"`
	Description     string         `mapstructure:"description"`
	Priority        int            `mapstructure:"priority"`
	FormKey         string         `mapstructure:"form_key"`
	FormData        map[string]any `mapstructure:"form_data"`
	Assignee        string         `mapstructure:"assignee"`
	CandidateUsers  []string       `mapstructure:"candidate_users"`
	CandidateGroups []string       `mapstructure:"candidate_groups"`
	Due             string         `mapstructure:"due"`
}

func decodeNodeConfig[T any](node runtime.Node) (T, error) {
	var cfg T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return cfg, err
	}
	if err := decoder.Decode(node.Config); err != nil {
		return cfg, fmt.Errorf("%w of node %s: %w", ErrInvalidNodeConfig, node.Id, err)
	}
	return cfg, nil
}

// executeNode runs the node type specific behavior. Errors returned fail the node.
func (engine *Engine) executeNode(ctx context.Context, batch storage.Batch, instance *runtime.ProcessInstance, node runtime.Node, nodeInstance runtime.NodeInstance) (nodeResult, error) {
	switch node.Type {
	case runtime.NodeTypeStart, runtime.NodeTypeEnd:
		return nodeResult{output: map[string]any{}}, nil
	case runtime.NodeTypeBusinessRule:
		return engine.executeBusinessRule(ctx, node, nodeInstance)
	case runtime.NodeTypeGateway:
		return engine.executeGateway(node, nodeInstance)
	case runtime.NodeTypeServiceTask:
		return engine.executeServiceTask(ctx, instance, node, nodeInstance)
	case runtime.NodeTypeUserTask:
		return engine.executeUserTask(ctx, batch, instance, node, nodeInstance)
	default:
		return nodeResult{}, &DefinitionError{
			DefinitionId: instance.ProcessId,
			Reason:       fmt.Sprintf("node %s has type '%s'", node.Id, node.Type),
			Err:          ErrUnknownNodeType,
		}
	}
}

func (engine *Engine) executeBusinessRule(ctx context.Context, node runtime.Node, nodeInstance runtime.NodeInstance) (nodeResult, error) {
	cfg, err := decodeNodeConfig[businessRuleConfig](node)
	if err != nil {
		return nodeResult{}, err
	}
	if cfg.RuleType == "" || cfg.RuleId == "" {
		return nodeResult{}, &decision.MissingRuleConfigError{NodeId: node.Id}
	}
	ruleType, err := decision.ParseRuleType(cfg.RuleType)
	if err != nil {
		return nodeResult{}, err
	}
	res, err := engine.decisions.Execute(ctx, ruleType, cfg.RuleId, nodeInstance.Variables)
	if err != nil {
		return nodeResult{}, err
	}
	output := make(map[string]any, len(res.Output)+1)
	for k, v := range res.Output {
		output[k] = v
	}
	if cfg.ResultVariable != "" {
		output[cfg.ResultVariable] = ruleResultVariable(res)
	}
	return nodeResult{output: output}, nil
}

// ruleResultVariable flattens a rule result into plain variable values
func ruleResultVariable(res decision.Result) map[string]any {
	summary := map[string]any{
		"rule_type": string(res.RuleType),
		"rule_id":   res.RuleId,
		"matched":   res.Matched,
		"output":    res.Output,
	}
	if res.Score != nil {
		summary["score"] = *res.Score
	}
	if res.Probability != nil {
		summary["probability"] = *res.Probability
	}
	if res.Prediction != nil {
		summary["prediction"] = res.Prediction.Label
		summary["leaf_node_id"] = res.Prediction.NodeId
	}
	return summary
}

func (engine *Engine) executeGateway(node runtime.Node, nodeInstance runtime.NodeInstance) (nodeResult, error) {
	cfg, err := decodeNodeConfig[gatewayConfig](node)
	if err != nil {
		return nodeResult{}, err
	}
	if normalizeExpression(cfg.Condition) == "" {
		return nodeResult{output: map[string]any{}}, nil
	}
	res, err := engine.evaluateExpression(node.Id, cfg.Condition, nodeInstance.Variables)
	if err != nil {
		return nodeResult{}, err
	}
	return nodeResult{output: map[string]any{"gateway_result": res}}, nil
}

func (engine *Engine) executeServiceTask(ctx context.Context, instance *runtime.ProcessInstance, node runtime.Node, nodeInstance runtime.NodeInstance) (nodeResult, error) {
	cfg, err := decodeNodeConfig[serviceTaskConfig](node)
	if err != nil {
		return nodeResult{}, err
	}
	handler := engine.findTaskHandler(node, cfg.Service)
	if handler == nil {
		return nodeResult{output: map[string]any{"service_executed": cfg.Service}}, nil
	}
	output, err := handler(ctx, ServiceTaskContext{
		InstanceId: instance.InstanceId,
		ProcessId:  instance.ProcessId,
		Node:       node,
		Service:    cfg.Service,
		Variables:  instance.VariableHolder.Snapshot(),
	})
	if err != nil {
		return nodeResult{}, &ServiceTaskError{
			NodeId:  node.Id,
			Service: cfg.Service,
			Err:     err,
		}
	}
	if output == nil {
		output = map[string]any{}
	}
	return nodeResult{output: output}, nil
}

func (engine *Engine) executeUserTask(ctx context.Context, batch storage.Batch, instance *runtime.ProcessInstance, node runtime.Node, nodeInstance runtime.NodeInstance) (nodeResult, error) {
	cfg, err := decodeNodeConfig[userTaskConfig](node)
	if err != nil {
		return nodeResult{}, err
	}
	now := nodeInstance.TriggerTime
	dueDate, err := engine.taskDueDate(cfg.Due, now)
	if err != nil {
		return nodeResult{}, fmt.Errorf("%w of node %s: due: %w", ErrInvalidNodeConfig, node.Id, err)
	}
	name := cfg.Name
	if name == "" {
		name = node.Label
	}
	if name == "" {
		name = "User Task"
	}
	formData := cfg.FormData
	if formData == nil {
		formData = map[string]any{}
	}
	taskId, err := engine.newTaskId(ctx, now)
	if err != nil {
		return nodeResult{}, err
	}
	task := runtime.HumanTask{
		TaskId:          taskId,
		InstanceId:      instance.InstanceId,
		NodeId:          node.Id,
		NodeInstanceKey: nodeInstance.Key,
		Name:            name,
		Description:     cfg.Description,
		Status:          runtime.HumanTaskStatusReady,
		Assignee:        cfg.Assignee,
		CandidateUsers:  cfg.CandidateUsers,
		CandidateGroups: cfg.CandidateGroups,
		FormKey:         cfg.FormKey,
		FormData:        formData,
		Priority:        cfg.Priority,
		DueDate:         dueDate,
		CreatedAt:       now,
		Version:         1,
	}
	if err := batch.CreateHumanTask(ctx, task); err != nil {
		return nodeResult{}, fmt.Errorf("failed to save human task for node %s: %w", node.Id, err)
	}
	err = batch.SaveAuditLog(ctx, engine.newAuditLog(runtime.AuditTaskCreated, runtime.AuditEntityHumanTask, task.TaskId, instance.StartedBy, "", string(task.Status), map[string]any{
		"process_instance_id": instance.InstanceId,
		"node_id":             node.Id,
	}))
	if err != nil {
		return nodeResult{}, fmt.Errorf("failed to save audit log for task %s: %w", task.TaskId, err)
	}
	engine.metrics.UserTasksCreated.Add(ctx, 1, metric.WithAttributes(attribute.String(otelPkg.AttributeProcessId, instance.ProcessId)))
	engine.logger.Info("human task created", "instanceId", instance.InstanceId, "taskId", task.TaskId, "nodeId", node.Id)
	return nodeResult{
		output: map[string]any{
			"task_id":     task.TaskId,
			"task_status": string(task.Status),
		},
		suspend: true,
	}, nil
}

func (engine *Engine) taskDueDate(due string, now time.Time) (*time.Time, error) {
	if due == "" {
		if engine.defaultTaskDue == nil {
			return nil, nil
		}
		res := engine.defaultTaskDue.Shift(now)
		return &res, nil
	}
	d, err := duration.ParseISO8601(due)
	if err != nil {
		return nil, err
	}
	res := d.Shift(now)
	return &res, nil
}
