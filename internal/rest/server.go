// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/go-hclog"
	"github.com/pbinitiative/zendecision/internal/config"
	apierror "github.com/pbinitiative/zendecision/internal/rest/error"
	"github.com/pbinitiative/zendecision/internal/rest/middleware"
	"github.com/pbinitiative/zendecision/pkg/bpmn"
	"github.com/pbinitiative/zendecision/pkg/bpmn/runtime"
	"github.com/pbinitiative/zendecision/pkg/decision"
	"github.com/pbinitiative/zendecision/pkg/decision/tree"
	"github.com/pbinitiative/zendecision/pkg/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	PaginationDefaultPage int32 = 1
	PaginationDefaultSize int32 = 10

	maxBodySize = 10 << 20
)

type Server struct {
	engine    *bpmn.Engine
	addr      string
	server    *http.Server
	logger    hclog.Logger
	startedAt time.Time
}

// Page is the envelope of list endpoints
type Page[T any] struct {
	Items []T   `json:"items"`
	Page  int32 `json:"page"`
	Size  int32 `json:"size"`
	Count int   `json:"count"`
}

func NewServer(engine *bpmn.Engine, conf config.Config) *Server {
	r := chi.NewRouter()
	s := Server{
		engine: engine,
		addr:   conf.Server.Addr,
		server: &http.Server{
			ReadHeaderTimeout: 3 * time.Second,
			Handler:           r,
			Addr:              conf.Server.Addr,
		},
		logger:    hclog.Default().Named("rest"),
		startedAt: time.Now(),
	}
	r.Use(middleware.Cors(conf.Server.AllowedOrigins))
	r.Use(middleware.Opentelemetry(conf))
	r.Use(middleware.UserId())
	r.Use(middleware.StripEmptyQueryParams())

	contextPath := strings.TrimSuffix(conf.Server.Context, "/")
	if contextPath == "" {
		s.routes(r)
	} else {
		r.Route(contextPath, s.routes)
	}
	return &s
}

func (s *Server) routes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Route("/process-definitions", func(r chi.Router) {
			r.Post("/", s.CreateProcessDefinition)
			r.Get("/{key}", s.GetProcessDefinition)
			r.Post("/{key}/execute", s.ExecuteProcessDefinition)
		})
		r.Route("/processes/{processId}", func(r chi.Router) {
			r.Get("/", s.GetProcessVersions)
			r.Post("/execute", s.ExecuteProcess)
		})
		r.Route("/process-instances", func(r chi.Router) {
			r.Get("/", s.ListProcessInstances)
			r.Get("/{instanceId}", s.GetProcessInstance)
			r.Get("/{instanceId}/history", s.GetNodeHistory)
			r.Get("/{instanceId}/audit", s.GetInstanceAuditLog)
			r.Get("/{instanceId}/tasks", s.GetInstanceTasks)
			r.Post("/{instanceId}/abort", s.AbortProcessInstance)
		})
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.ListTasks)
			r.Get("/{taskId}", s.GetTask)
			r.Post("/{taskId}/{action}", s.TaskAction)
		})
		r.Route("/rules/{ruleType}/{ruleId}", func(r chi.Router) {
			r.Put("/", s.SaveRule)
			r.Post("/execute", s.ExecuteRule)
		})
		r.Post("/decision-trees/{ruleId}/train", s.TrainDecisionTree)
		r.Post("/decision-tables/{ruleId}/validate", s.ValidateDecisionTable)
	})
	// register system endpoints
	r.Route("/system", func(r chi.Router) {
		r.Get("/metrics", promhttp.Handler().ServeHTTP)
		r.Get("/status", s.Status)
	})
}

func (s *Server) Start() net.Listener {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.logger.Error("failed to listen", "addr", s.addr, "err", err)
		return nil
	}
	s.logger.Info(fmt.Sprintf("ZenDecision REST server listening on %s", listener.Addr()))
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Error starting server", "err", err)
		}
	}()
	return listener
}

func (s *Server) Stop(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := s.server.Shutdown(ctx)
	if err != nil {
		s.logger.Error("Error stopping server", "err", err)
	}
}

func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"name":       s.engine.Name(),
		"status":     "UP",
		"started_at": s.startedAt,
		"uptime_ms":  time.Since(s.startedAt).Milliseconds(),
	})
}

// errorResponse maps engine errors onto the status code and type returned to clients
func errorResponse(err error) (int, apierror.ApiError) {
	var (
		apiErr       apierror.ApiError
		ruleNotFound *decision.RuleNotFoundError
		authErr      *bpmn.AuthorizationError
		taskErr      *bpmn.TaskStateError
		instanceErr  *bpmn.InstanceStateError
		definition   *bpmn.DefinitionError
		ruleType     *decision.UnknownRuleTypeError
		training     *tree.TrainingDataError
		invalidTree  *tree.InvalidTreeError
	)
	resp := apierror.ApiError{Message: err.Error()}
	switch {
	case errors.As(err, &apiErr):
		return statusOf(apiErr.Type), apiErr
	case errors.As(err, &authErr):
		resp.Type = apierror.TypeForbidden
	case errors.As(err, &taskErr), errors.As(err, &instanceErr), errors.Is(err, storage.ErrConflict):
		resp.Type = apierror.TypeConflict
	case errors.Is(err, storage.ErrNotFound), errors.As(err, &ruleNotFound):
		resp.Type = apierror.TypeNotFound
	case errors.As(err, &ruleType):
		resp.Type = apierror.TypeBadRequest
	case errors.As(err, &definition), errors.As(err, &training), errors.As(err, &invalidTree),
		errors.Is(err, tree.ErrNoTrainingData), errors.Is(err, decision.ErrInvalidRule):
		resp.Type = apierror.TypeUnprocessable
	default:
		resp.Type = apierror.TypeError
	}
	return statusOf(resp.Type), resp
}

func statusOf(errType string) int {
	switch errType {
	case apierror.TypeBadRequest:
		return http.StatusBadRequest
	case apierror.TypeNotFound:
		return http.StatusNotFound
	case apierror.TypeForbidden:
		return http.StatusForbidden
	case apierror.TypeConflict:
		return http.StatusConflict
	case apierror.TypeUnprocessable:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func badRequest(format string, a ...any) error {
	return apierror.ApiError{
		Message: fmt.Sprintf(format, a...),
		Type:    apierror.TypeBadRequest,
	}
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := errorResponse(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "err", err)
	}
	writeError(w, r, status, resp)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, resp interface{}) {
	writeJSON(w, r, status, resp)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, resp interface{}) {
	body, err := json.Marshal(resp)
	if err != nil {
		hclog.Default().Error("Server error", "path", r.URL.Path, "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, badRequest("failed to read request body: %s", err)
	}
	return body, nil
}

// decodeBody decodes a JSON body into dest. An empty body leaves dest untouched.
func decodeBody(r *http.Request, dest any) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	if err := runtime.DecodeJSON(body, dest); err != nil {
		return badRequest("invalid request body: %s", err)
	}
	return nil
}

func pagination(r *http.Request) (page int32, size int32, err error) {
	var pagePtr, sizePtr *int32
	for name, target := range map[string]**int32{"page": &pagePtr, "size": &sizePtr} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			continue
		}
		v, perr := strconv.ParseInt(raw, 10, 32)
		if perr != nil || v < 1 {
			return 0, 0, badRequest("invalid %s parameter: %s", name, raw)
		}
		v32 := int32(v)
		*target = &v32
	}
	defaultPagination(&pagePtr, &sizePtr)
	return *pagePtr, *sizePtr, nil
}

func defaultPagination(page **int32, size **int32) {
	if *page == nil {
		p := PaginationDefaultPage
		*page = &p
	}
	if *size == nil {
		s := PaginationDefaultSize
		*size = &s
	}
}

func paginate[T any](items []T, page int32, size int32) Page[T] {
	start := int(page-1) * int(size)
	if start > len(items) {
		start = len(items)
	}
	end := min(start+int(size), len(items))
	pageItems := make([]T, 0, end-start)
	return Page[T]{
		Items: append(pageItems, items[start:end]...),
		Page:  page,
		Size:  size,
		Count: len(items),
	}
}
