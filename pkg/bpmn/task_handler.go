// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"context"
	"slices"

	"github.com/pbinitiative/zendecision/pkg/bpmn/runtime"
)

// ServiceTaskContext is handed to service task handlers. Variables is a copy, handlers
// contribute to the instance only through their returned output.
type ServiceTaskContext struct {
	InstanceId string
	ProcessId  string
	Node       runtime.Node
	Service    string
	Variables  map[string]any
}

type ServiceTaskHandler func(ctx context.Context, task ServiceTaskContext) (map[string]any, error)

type taskMatcher func(node runtime.Node, service string) bool

type taskHandlerType string

const (
	taskHandlerForId      = "TASK_HANDLER_ID"
	taskHandlerForService = "TASK_HANDLER_SERVICE"
)

type taskHandler struct {
	handlerType taskHandlerType
	matches     taskMatcher
	handler     ServiceTaskHandler
}

type newTaskHandlerCommand struct {
	handlerType taskHandlerType
	matcher     taskMatcher
	append      func(handler *taskHandler)
}

type NewTaskHandlerCommand2 interface {
	// Handler is the actual handler to be executed
	Handler(f ServiceTaskHandler) *taskHandler
}

type NewTaskHandlerCommand1 interface {
	// Id defines a handler for a given node ID (as defined in the process definition).
	// This is 1:1 relation between a handler and a node, since IDs are unique.
	Id(id string) NewTaskHandlerCommand2

	// Service defines a handler for every service task with the given 'service' config value.
	Service(service string) NewTaskHandlerCommand2
}

// NewTaskHandler registers a handler function to be called for service tasks
func (engine *Engine) NewTaskHandler() NewTaskHandlerCommand1 {
	cmd := newTaskHandlerCommand{
		append: func(handler *taskHandler) {
			engine.taskhandlersMu.Lock()
			defer engine.taskhandlersMu.Unlock()
			engine.taskHandlers = append(engine.taskHandlers, handler)
		},
	}
	return cmd
}

// Id implements NewTaskHandlerCommand1
func (thc newTaskHandlerCommand) Id(id string) NewTaskHandlerCommand2 {
	thc.matcher = func(node runtime.Node, _ string) bool {
		return node.Id == id
	}
	thc.handlerType = taskHandlerForId
	return thc
}

// Service implements NewTaskHandlerCommand1
func (thc newTaskHandlerCommand) Service(service string) NewTaskHandlerCommand2 {
	thc.matcher = func(_ runtime.Node, nodeService string) bool {
		return nodeService == service
	}
	thc.handlerType = taskHandlerForService
	return thc
}

// Handler implements NewTaskHandlerCommand2
func (thc newTaskHandlerCommand) Handler(f ServiceTaskHandler) *taskHandler {
	th := taskHandler{
		handlerType: thc.handlerType,
		matches:     thc.matcher,
		handler:     f,
	}
	thc.append(&th)
	return &th
}

// RemoveHandler removes the handler created by Handler method
func (engine *Engine) RemoveHandler(handler *taskHandler) {
	engine.taskhandlersMu.Lock()
	defer engine.taskhandlersMu.Unlock()
	for i, hand := range engine.taskHandlers {
		if hand == handler {
			engine.taskHandlers = slices.Delete(engine.taskHandlers, i, i+1)
			return
		}
	}
}

// findTaskHandler prefers handlers registered for the node id over handlers for the service name
func (engine *Engine) findTaskHandler(node runtime.Node, service string) ServiceTaskHandler {
	engine.taskhandlersMu.RLock()
	defer engine.taskhandlersMu.RUnlock()
	searchOrder := []taskHandlerType{taskHandlerForId, taskHandlerForService}
	for _, handlerType := range searchOrder {
		for _, handler := range engine.taskHandlers {
			if handler.handlerType == handlerType && handler.matches(node, service) {
				return handler.handler
			}
		}
	}
	return nil
}
