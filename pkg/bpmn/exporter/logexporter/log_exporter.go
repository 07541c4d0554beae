// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

// Package logexporter writes engine lifecycle events to a structured logger.
package logexporter

import (
	"github.com/hashicorp/go-hclog"
	"github.com/pbinitiative/zendecision/pkg/bpmn/exporter"
)

type Exporter struct {
	logger hclog.Logger
	level  hclog.Level
}

var _ exporter.EventExporter = &Exporter{}

// NewExporter logs every event with level. Element events are noisy, Debug is a good default.
func NewExporter(logger hclog.Logger, level hclog.Level) *Exporter {
	if logger == nil {
		logger = hclog.Default().Named("event-exporter")
	}
	return &Exporter{
		logger: logger,
		level:  level,
	}
}

func (e *Exporter) NewProcessEvent(event *exporter.ProcessEvent) {
	e.logger.Log(e.level, "process definition deployed",
		"processId", event.ProcessId,
		"processKey", event.ProcessKey,
		"version", event.Version,
		"resource", event.ResourceName,
		"checksum", event.Checksum,
	)
}

func (e *Exporter) EndProcessEvent(event *exporter.ProcessInstanceEvent) {
	e.logger.Log(e.level, "process instance ended", instanceArgs(event)...)
}

func (e *Exporter) NewProcessInstanceEvent(event *exporter.ProcessInstanceEvent) {
	e.logger.Log(e.level, "process instance created", instanceArgs(event)...)
}

func (e *Exporter) NewElementEvent(event *exporter.ProcessInstanceEvent, elementInfo *exporter.ElementInfo) {
	args := append(instanceArgs(event),
		"elementId", elementInfo.ElementId,
		"elementType", elementInfo.ElementType,
		"elementKey", elementInfo.ElementKey,
		"intent", elementInfo.Intent,
	)
	e.logger.Log(e.level, "element event", args...)
}

func instanceArgs(event *exporter.ProcessInstanceEvent) []any {
	return []any{
		"processId", event.ProcessId,
		"processKey", event.ProcessKey,
		"version", event.Version,
		"instanceId", event.ProcessInstanceId,
		"status", event.Status,
	}
}
