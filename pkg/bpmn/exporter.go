// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"encoding/hex"

	"github.com/pbinitiative/zendecision/pkg/bpmn/exporter"
	"github.com/pbinitiative/zendecision/pkg/bpmn/runtime"
)

// AddEventExporter registers an EventExporter instance
func (engine *Engine) AddEventExporter(exporter exporter.EventExporter) {
	engine.exporters = append(engine.exporters, exporter)
}

func (engine *Engine) exportNewProcessEvent(definition runtime.ProcessDefinition, resourceName string) {
	event := exporter.ProcessEvent{
		ProcessId:    definition.Id,
		ProcessKey:   definition.Key,
		Version:      definition.Version,
		ResourceName: resourceName,
		Checksum:     hex.EncodeToString(definition.Checksum[:]),
	}
	for _, exp := range engine.exporters {
		exp.NewProcessEvent(&event)
	}
}

func instanceEvent(definition runtime.ProcessDefinition, instance runtime.ProcessInstance) exporter.ProcessInstanceEvent {
	return exporter.ProcessInstanceEvent{
		ProcessId:         definition.Id,
		ProcessKey:        definition.Key,
		Version:           definition.Version,
		ProcessInstanceId: instance.InstanceId,
		Status:            string(instance.Status),
	}
}

func (engine *Engine) exportEndProcessEvent(definition runtime.ProcessDefinition, instance runtime.ProcessInstance) {
	event := instanceEvent(definition, instance)
	for _, exp := range engine.exporters {
		exp.EndProcessEvent(&event)
	}
}

func (engine *Engine) exportProcessInstanceEvent(definition runtime.ProcessDefinition, instance runtime.ProcessInstance) {
	event := instanceEvent(definition, instance)
	for _, exp := range engine.exporters {
		exp.NewProcessInstanceEvent(&event)
	}
}

func (engine *Engine) exportNodeEvent(definition runtime.ProcessDefinition, instance runtime.ProcessInstance, nodeInstance runtime.NodeInstance, intent exporter.Intent) {
	event := instanceEvent(definition, instance)
	info := exporter.ElementInfo{
		ElementType: string(nodeInstance.NodeType),
		ElementId:   nodeInstance.NodeId,
		ElementKey:  nodeInstance.Key,
		Intent:      string(intent),
	}
	for _, exp := range engine.exporters {
		exp.NewElementEvent(&event, &info)
	}
}

func (engine *Engine) exportEdgeEvent(definition runtime.ProcessDefinition, instance runtime.ProcessInstance, edge runtime.Edge) {
	event := instanceEvent(definition, instance)
	info := exporter.ElementInfo{
		ElementType: "edge",
		ElementId:   edgeName(edge),
		Intent:      string(exporter.SequenceFlowTaken),
	}
	for _, exp := range engine.exporters {
		exp.NewElementEvent(&event, &info)
	}
}

func edgeName(edge runtime.Edge) string {
	if edge.Id != "" {
		return edge.Id
	}
	return edge.Source + "->" + edge.Target
}
