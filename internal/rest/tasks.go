// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package rest

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pbinitiative/zendecision/internal/appcontext"
	apierror "github.com/pbinitiative/zendecision/internal/rest/error"
	"github.com/pbinitiative/zendecision/pkg/bpmn/runtime"
)

// TaskActionRequest is the body of the claim, start, complete, release and delegate calls.
// UserId defaults to the caller identified by the X-User-Id header.
type TaskActionRequest struct {
	UserId   string         `json:"user_id"`
	ToUserId string         `json:"to_user_id,omitempty"`
	Output   map[string]any `json:"output,omitempty"`
}

func (s *Server) ListTasks(w http.ResponseWriter, r *http.Request) {
	page, size, err := pagination(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	query := r.URL.Query()
	userId := query.Get("user")
	if userId == "" {
		userId, _ = appcontext.UserIdFromContext(r.Context())
	}
	if userId == "" {
		s.handleError(w, r, badRequest("user parameter is required"))
		return
	}
	var statuses []runtime.HumanTaskStatus
	for _, raw := range query["status"] {
		for _, status := range strings.Split(raw, ",") {
			if status = strings.TrimSpace(status); status != "" {
				statuses = append(statuses, runtime.HumanTaskStatus(strings.ToUpper(status)))
			}
		}
	}
	tasks, err := s.engine.ListTasksFor(r.Context(), userId, statuses...)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, paginate(tasks, page, size))
}

// GetTask returns the task with its assignment history
func (s *Server) GetTask(w http.ResponseWriter, r *http.Request) {
	details, err := s.engine.GetTaskDetails(r.Context(), chi.URLParam(r, "taskId"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, details)
}

func (s *Server) TaskAction(w http.ResponseWriter, r *http.Request) {
	var req TaskActionRequest
	if err := decodeBody(r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}
	if req.UserId == "" {
		req.UserId, _ = appcontext.UserIdFromContext(r.Context())
	}
	if req.UserId == "" {
		s.handleError(w, r, badRequest("user_id is required"))
		return
	}
	ctx := r.Context()
	taskId := chi.URLParam(r, "taskId")

	var (
		task runtime.HumanTask
		err  error
	)
	switch action := chi.URLParam(r, "action"); action {
	case "claim":
		task, err = s.engine.ClaimTask(ctx, taskId, req.UserId)
	case "start":
		task, err = s.engine.StartTask(ctx, taskId, req.UserId)
	case "release":
		task, err = s.engine.ReleaseTask(ctx, taskId, req.UserId)
	case "delegate":
		if req.ToUserId == "" {
			s.handleError(w, r, badRequest("to_user_id is required"))
			return
		}
		task, err = s.engine.DelegateTask(ctx, taskId, req.UserId, req.ToUserId)
	case "complete":
		res, err := s.engine.CompleteTask(ctx, taskId, req.UserId, req.Output)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, res)
		return
	default:
		s.handleError(w, r, apierror.ApiError{
			Message: "unknown task action " + action,
			Type:    apierror.TypeNotFound,
		})
		return
	}
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, task)
}
