// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package exporter

type EventExporter interface {
	NewProcessEvent(event *ProcessEvent)
	EndProcessEvent(event *ProcessInstanceEvent)
	NewProcessInstanceEvent(event *ProcessInstanceEvent)
	NewElementEvent(event *ProcessInstanceEvent, elementInfo *ElementInfo)
}

type Intent string

const (
	ElementActivated  Intent = "ELEMENT_ACTIVATED"
	ElementCompleted  Intent = "ELEMENT_COMPLETED"
	ElementFailed     Intent = "ELEMENT_FAILED"
	SequenceFlowTaken Intent = "SEQUENCE_FLOW_TAKEN"
	Created           Intent = "CREATED"
)

type ProcessEvent struct {
	ProcessId    string
	ProcessKey   int64
	Version      int32
	ResourceName string
	Checksum     string
}

type ProcessInstanceEvent struct {
	ProcessId         string
	ProcessKey        int64
	Version           int32
	ProcessInstanceId string
	// Status is the instance status at the time of the event
	Status string
}

type ElementInfo struct {
	ElementType string
	ElementId   string
	ElementKey  int64
	Intent      string // ELEMENT_ACTIVATED || ELEMENT_COMPLETED || ELEMENT_FAILED || SEQUENCE_FLOW_TAKEN
}
