// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"errors"
	"fmt"

	"github.com/pbinitiative/zendecision/pkg/bpmn/runtime"
)

type BpmnEngineError struct {
	Msg string
}

func (e *BpmnEngineError) Error() string {
	return e.Msg
}

// newEngineErrorf uses fmt.Sprintf(format, a...) to format the message
func newEngineErrorf(format string, a ...interface{}) error {
	return &BpmnEngineError{
		Msg: fmt.Sprintf(format, a...),
	}
}

var (
	ErrNoStartNode        = errors.New("no start node")
	ErrAmbiguousStartNode = errors.New("more than one start node")
	ErrDanglingEdge       = errors.New("edge references unknown node")
	ErrDuplicateNode      = errors.New("duplicate node id")
	ErrUnknownNodeType    = errors.New("unknown node type")
	ErrMissingId          = errors.New("missing id")
	ErrInvalidNodeConfig  = errors.New("invalid node config")

	ErrNoRoute       = errors.New("no outgoing edge resolves")
	ErrCycleDetected = errors.New("node visited twice")
)

// DefinitionError means the definition can not be run at all. No instance is created.
type DefinitionError struct {
	DefinitionId string
	Reason       string
	Err          error
}

func (e *DefinitionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid process definition %s: %v", e.DefinitionId, e.Err)
	}
	return fmt.Sprintf("invalid process definition %s: %v: %s", e.DefinitionId, e.Err, e.Reason)
}

func (e *DefinitionError) Unwrap() error {
	return e.Err
}

// RoutingError fails the instance when traversal can not continue from NodeId.
type RoutingError struct {
	InstanceId string
	NodeId     string
	Reason     error
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("routing failed at node %s of instance %s: %v", e.NodeId, e.InstanceId, e.Reason)
}

func (e *RoutingError) Unwrap() error {
	return e.Reason
}

type GatewayEvaluationError struct {
	NodeId     string
	Expression string
	Err        error
}

func (e *GatewayEvaluationError) Error() string {
	return fmt.Sprintf("failed to evaluate condition '%s' at node %s: %v", e.Expression, e.NodeId, e.Err)
}

func (e *GatewayEvaluationError) Unwrap() error {
	return e.Err
}

type ServiceTaskError struct {
	NodeId  string
	Service string
	Err     error
}

func (e *ServiceTaskError) Error() string {
	return fmt.Sprintf("service %s failed at node %s: %v", e.Service, e.NodeId, e.Err)
}

func (e *ServiceTaskError) Unwrap() error {
	return e.Err
}

// AuthorizationError is returned when a user acts on a task it may not touch. Nothing is changed.
type AuthorizationError struct {
	TaskId string
	UserId string
	Reason string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("user %s is not allowed to act on task %s: %s", e.UserId, e.TaskId, e.Reason)
}

// TaskStateError is returned for transitions the task status does not allow, including
// transitions that lost a race against a concurrent one.
type TaskStateError struct {
	TaskId    string
	Status    runtime.HumanTaskStatus
	Operation string
	Err       error
}

func (e *TaskStateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("can not %s task %s in status %s: %v", e.Operation, e.TaskId, e.Status, e.Err)
	}
	return fmt.Sprintf("can not %s task %s in status %s", e.Operation, e.TaskId, e.Status)
}

func (e *TaskStateError) Unwrap() error {
	return e.Err
}

type InstanceStateError struct {
	InstanceId string
	Status     runtime.InstanceStatus
	Operation  string
}

func (e *InstanceStateError) Error() string {
	return fmt.Sprintf("can not %s process instance %s in status %s", e.Operation, e.InstanceId, e.Status)
}
