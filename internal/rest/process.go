// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package rest

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pbinitiative/zendecision/internal/appcontext"
	"github.com/pbinitiative/zendecision/pkg/bpmn"
	"github.com/pbinitiative/zendecision/pkg/bpmn/runtime"
	"github.com/pbinitiative/zendecision/pkg/storage"
)

type DefinitionResponse struct {
	Definition runtime.ProcessDefinition `json:"definition"`
	Warnings   []string                  `json:"warnings"`
}

type ExecuteRequest struct {
	Variables map[string]any `json:"variables"`
}

type AbortRequest struct {
	UserId string `json:"user_id"`
}

// CreateProcessDefinition accepts a YAML or JSON definition document
func (s *Server) CreateProcessDefinition(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	definition, err := bpmn.ParseDefinition(body)
	if err != nil {
		s.handleError(w, r, badRequest("%s", err))
		return
	}
	stored, err := s.engine.SaveProcessDefinition(r.Context(), definition)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	warnings, _ := bpmn.ValidateDefinition(stored)
	if warnings == nil {
		warnings = []string{}
	}
	writeJSON(w, r, http.StatusCreated, DefinitionResponse{
		Definition: stored,
		Warnings:   warnings,
	})
}

func definitionKeyParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "key")
	key, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, badRequest("invalid process definition key: %s", raw)
	}
	return key, nil
}

func (s *Server) GetProcessDefinition(w http.ResponseWriter, r *http.Request) {
	key, err := definitionKeyParam(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	definition, err := s.engine.GetProcessDefinition(r.Context(), key)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, definition)
}

func (s *Server) GetProcessVersions(w http.ResponseWriter, r *http.Request) {
	definitions, err := s.engine.FindProcessesById(r.Context(), chi.URLParam(r, "processId"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	if len(definitions) == 0 {
		s.handleError(w, r, storage.ErrNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, definitions)
}

func (s *Server) ExecuteProcessDefinition(w http.ResponseWriter, r *http.Request) {
	key, err := definitionKeyParam(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	var req ExecuteRequest
	if err := decodeBody(r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}
	res, err := s.engine.StartOrExecute(r.Context(), key, req.Variables)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// ExecuteProcess runs the latest version of a process
func (s *Server) ExecuteProcess(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := decodeBody(r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}
	res, err := s.engine.StartOrExecuteById(r.Context(), chi.URLParam(r, "processId"), req.Variables)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) ListProcessInstances(w http.ResponseWriter, r *http.Request) {
	page, size, err := pagination(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	query := r.URL.Query()
	filter := storage.ProcessInstanceFilter{
		ProcessId: query.Get("processId"),
		Status:    runtime.InstanceStatus(query.Get("status")),
	}
	if raw := query.Get("definitionKey"); raw != "" {
		filter.DefinitionKey, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.handleError(w, r, badRequest("invalid definitionKey parameter: %s", raw))
			return
		}
	}
	instances, err := s.engine.ListInstances(r.Context(), filter)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, paginate(instances, page, size))
}

func (s *Server) GetProcessInstance(w http.ResponseWriter, r *http.Request) {
	instance, err := s.engine.GetInstance(r.Context(), chi.URLParam(r, "instanceId"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, instance)
}

func (s *Server) GetNodeHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.engine.GetNodeHistory(r.Context(), chi.URLParam(r, "instanceId"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, history)
}

func (s *Server) GetInstanceAuditLog(w http.ResponseWriter, r *http.Request) {
	instanceId := chi.URLParam(r, "instanceId")
	if _, err := s.engine.GetInstance(r.Context(), instanceId); err != nil {
		s.handleError(w, r, err)
		return
	}
	logs, err := s.engine.GetInstanceAuditLog(r.Context(), instanceId)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, logs)
}

func (s *Server) GetInstanceTasks(w http.ResponseWriter, r *http.Request) {
	instanceId := chi.URLParam(r, "instanceId")
	if _, err := s.engine.GetInstance(r.Context(), instanceId); err != nil {
		s.handleError(w, r, err)
		return
	}
	tasks, err := s.engine.ListTasksByInstance(r.Context(), instanceId)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, tasks)
}

func (s *Server) AbortProcessInstance(w http.ResponseWriter, r *http.Request) {
	var req AbortRequest
	if err := decodeBody(r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}
	actor := req.UserId
	if actor == "" {
		actor, _ = appcontext.UserIdFromContext(r.Context())
	}
	instanceId := chi.URLParam(r, "instanceId")
	if err := s.engine.AbortInstance(r.Context(), instanceId, actor); err != nil {
		s.handleError(w, r, err)
		return
	}
	instance, err := s.engine.GetInstance(r.Context(), instanceId)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, instance)
}
