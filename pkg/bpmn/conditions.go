// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"github.com/pbinitiative/zendecision/pkg/bpmn/runtime"
)

// resolveEdge picks exactly one outgoing edge of node. Edges are tried in declared order and the
// first one without a condition, or with a condition evaluating to true, is taken.
// A condition that can not be evaluated fails the routing instead of counting as false.
func (engine *Engine) resolveEdge(definition *runtime.ProcessDefinition, instance *runtime.ProcessInstance, node runtime.Node) (runtime.Edge, error) {
	variables := instance.VariableHolder.Snapshot()
	for _, edge := range definition.OutgoingEdges(node.Id) {
		if normalizeExpression(edge.Condition) == "" {
			return edge, nil
		}
		ok, err := engine.evaluateCondition(node.Id, edge.Condition, variables)
		if err != nil {
			return runtime.Edge{}, err
		}
		if ok {
			return edge, nil
		}
	}
	return runtime.Edge{}, &RoutingError{
		InstanceId: instance.InstanceId,
		NodeId:     node.Id,
		Reason:     ErrNoRoute,
	}
}
