// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package runtime

import (
	"slices"
	"time"
)

type NodeType string

const (
	NodeTypeStart        NodeType = "start"
	NodeTypeEnd          NodeType = "end"
	NodeTypeUserTask     NodeType = "userTask"
	NodeTypeServiceTask  NodeType = "serviceTask"
	NodeTypeBusinessRule NodeType = "businessRule"
	NodeTypeGateway      NodeType = "gateway"
)

func (t NodeType) Known() bool {
	switch t {
	case NodeTypeStart, NodeTypeEnd, NodeTypeUserTask, NodeTypeServiceTask, NodeTypeBusinessRule, NodeTypeGateway:
		return true
	}
	return false
}

type Node struct {
	Id     string         `json:"id" yaml:"id"`
	Type   NodeType       `json:"type" yaml:"type"`
	Label  string         `json:"label,omitempty" yaml:"label,omitempty"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

type Edge struct {
	Id        string `json:"id,omitempty" yaml:"id,omitempty"`
	Source    string `json:"source_node_id" yaml:"source_node_id"`
	Target    string `json:"target_node_id" yaml:"target_node_id"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

type ProcessDefinition struct {
	Id          string    `json:"id" yaml:"id"` // The ID as defined in the source document, shared by all versions
	Key         int64     `json:"key" yaml:"-"` // The engines key for this given process with version
	Version     int32     `json:"version" yaml:"-"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Nodes       []Node    `json:"nodes" yaml:"nodes"`
	Edges       []Edge    `json:"edges" yaml:"edges"`
	Checksum    [16]byte  `json:"checksum" yaml:"-"` // internal checksum to identify different versions
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
}

func (d *ProcessDefinition) FindNode(id string) (Node, bool) {
	for _, n := range d.Nodes {
		if n.Id == id {
			return n, true
		}
	}
	return Node{}, false
}

// FindStartNodes returns every node of type start in declared order.
func (d *ProcessDefinition) FindStartNodes() []Node {
	var res []Node
	for _, n := range d.Nodes {
		if n.Type == NodeTypeStart {
			res = append(res, n)
		}
	}
	return res
}

// OutgoingEdges returns the edges leaving nodeId in declared order.
func (d *ProcessDefinition) OutgoingEdges(nodeId string) []Edge {
	var res []Edge
	for _, e := range d.Edges {
		if e.Source == nodeId {
			res = append(res, e)
		}
	}
	return res
}

type InstanceStatus string

const (
	InstanceStatusRunning   InstanceStatus = "RUNNING"
	InstanceStatusCompleted InstanceStatus = "COMPLETED"
	InstanceStatusFailed    InstanceStatus = "FAILED"
	InstanceStatusAborted   InstanceStatus = "ABORTED"
)

func (s InstanceStatus) IsTerminal() bool {
	return s != InstanceStatusRunning
}

type ProcessInstance struct {
	InstanceId     string         `json:"instance_id"`
	DefinitionKey  int64          `json:"definition_key"`
	ProcessId      string         `json:"process_id"`
	Status         InstanceStatus `json:"status"`
	VariableHolder VariableHolder `json:"variables"`
	CurrentNodeId  string         `json:"current_node_id,omitempty"`
	StartedBy      string         `json:"started_by,omitempty"`
	StartTime      time.Time      `json:"start_time"`
	EndTime        *time.Time     `json:"end_time,omitempty"`
	DurationMs     int64          `json:"duration_ms"`
	ErrorMessage   string         `json:"error_message,omitempty"`
}

// Finish moves the instance into a terminal status and stamps end time and duration.
func (pi *ProcessInstance) Finish(status InstanceStatus, now time.Time) {
	pi.Status = status
	pi.EndTime = &now
	pi.DurationMs = now.Sub(pi.StartTime).Milliseconds()
}

type NodeInstanceStatus string

const (
	NodeInstanceStatusActive    NodeInstanceStatus = "ACTIVE"
	NodeInstanceStatusCompleted NodeInstanceStatus = "COMPLETED"
	NodeInstanceStatusFailed    NodeInstanceStatus = "FAILED"
)

// NodeInstance records one visit of a node. Variables is the snapshot taken on entry.
type NodeInstance struct {
	Key            int64              `json:"key"`
	InstanceId     string             `json:"instance_id"`
	NodeId         string             `json:"node_id"`
	NodeType       NodeType           `json:"node_type"`
	NodeLabel      string             `json:"node_label,omitempty"`
	Status         NodeInstanceStatus `json:"status"`
	TriggerTime    time.Time          `json:"trigger_time"`
	CompletionTime *time.Time         `json:"completion_time,omitempty"`
	DurationMs     int64              `json:"duration_ms"`
	Variables      map[string]any     `json:"variables"`
	Output         map[string]any     `json:"output,omitempty"`
	ErrorMessage   string             `json:"error_message,omitempty"`
}

func (ni *NodeInstance) Complete(output map[string]any, now time.Time) {
	ni.Status = NodeInstanceStatusCompleted
	ni.Output = output
	ni.CompletionTime = &now
	ni.DurationMs = now.Sub(ni.TriggerTime).Milliseconds()
}

func (ni *NodeInstance) Fail(err error, now time.Time) {
	ni.Status = NodeInstanceStatusFailed
	ni.ErrorMessage = err.Error()
	ni.CompletionTime = &now
	ni.DurationMs = now.Sub(ni.TriggerTime).Milliseconds()
}

type HumanTaskStatus string

const (
	HumanTaskStatusReady      HumanTaskStatus = "READY"
	HumanTaskStatusReserved   HumanTaskStatus = "RESERVED"
	HumanTaskStatusInProgress HumanTaskStatus = "IN_PROGRESS"
	HumanTaskStatusCompleted  HumanTaskStatus = "COMPLETED"
)

// HumanTask is created when an instance reaches a userTask node. Version is bumped on every
// stored transition and is used for compare-and-swap updates.
type HumanTask struct {
	TaskId          string          `json:"task_id"`
	InstanceId      string          `json:"process_instance_id"`
	NodeId          string          `json:"node_id"`
	NodeInstanceKey int64           `json:"node_instance_key"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	Status          HumanTaskStatus `json:"status"`
	Assignee        string          `json:"assignee,omitempty"`
	Owner           string          `json:"owner,omitempty"`
	CandidateUsers  []string        `json:"candidate_users,omitempty"`
	CandidateGroups []string        `json:"candidate_groups,omitempty"`
	FormKey         string          `json:"form_key,omitempty"`
	FormData        map[string]any  `json:"form_data,omitempty"`
	Priority        int             `json:"priority"`
	DueDate         *time.Time      `json:"due_date,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	ClaimedAt       *time.Time      `json:"claimed_at,omitempty"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	CompletedBy     string          `json:"completed_by,omitempty"`
	Version         int64           `json:"version"`
}

// IsCandidate reports whether userId may act on the task. An empty candidate user list admits
// everyone.
func (t *HumanTask) IsCandidate(userId string) bool {
	return len(t.CandidateUsers) == 0 || slices.Contains(t.CandidateUsers, userId)
}

// IsVisibleTo reports whether the task belongs in the work list of userId.
func (t *HumanTask) IsVisibleTo(userId string) bool {
	return t.Assignee == userId || slices.Contains(t.CandidateUsers, userId)
}

type AssignmentType string

const (
	AssignmentTypeClaim    AssignmentType = "CLAIM"
	AssignmentTypeDelegate AssignmentType = "DELEGATE"
)

type TaskAssignment struct {
	Key            int64          `json:"key"`
	TaskId         string         `json:"task_id"`
	AssignmentType AssignmentType `json:"assignment_type"`
	AssigneeId     string         `json:"assignee_id"`
	AssignedBy     string         `json:"assigned_by"`
	AssignedAt     time.Time      `json:"assigned_at"`
}

type AuditEventType string

const (
	AuditProcessStarted   AuditEventType = "PROCESS_STARTED"
	AuditProcessCompleted AuditEventType = "PROCESS_COMPLETED"
	AuditProcessFailed    AuditEventType = "PROCESS_FAILED"
	AuditProcessAborted   AuditEventType = "PROCESS_ABORTED"
	AuditTaskCreated      AuditEventType = "TASK_CREATED"
	AuditTaskClaimed      AuditEventType = "TASK_CLAIMED"
	AuditTaskStarted      AuditEventType = "TASK_STARTED"
	AuditTaskCompleted    AuditEventType = "TASK_COMPLETED"
	AuditTaskReleased     AuditEventType = "TASK_RELEASED"
	AuditTaskDelegated    AuditEventType = "TASK_DELEGATED"
)

type AuditEntityType string

const (
	AuditEntityProcessInstance AuditEntityType = "PROCESS_INSTANCE"
	AuditEntityHumanTask       AuditEntityType = "HUMAN_TASK"
)

type AuditLog struct {
	Key        int64           `json:"key"`
	EventType  AuditEventType  `json:"event_type"`
	EntityType AuditEntityType `json:"entity_type"`
	EntityId   string          `json:"entity_id"`
	UserId     string          `json:"user_id,omitempty"`
	OldValue   string          `json:"old_value,omitempty"`
	NewValue   string          `json:"new_value,omitempty"`
	Details    map[string]any  `json:"details,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}
