// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package rest

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pbinitiative/zendecision/pkg/decision"
	"github.com/pbinitiative/zendecision/pkg/decision/table"
	"github.com/pbinitiative/zendecision/pkg/decision/tree"
	"github.com/pbinitiative/zendecision/pkg/storage"
)

type TrainRequest struct {
	Name           string           `json:"name"`
	Description    string           `json:"description"`
	TargetVariable string           `json:"target_variable"`
	Features       []string         `json:"features"`
	Samples        []map[string]any `json:"samples"`
	// Validation samples prune the trained tree when present
	Validation []map[string]any `json:"validation,omitempty"`
	Config     *tree.Config     `json:"config,omitempty"`
}

func (s *Server) SaveRule(w http.ResponseWriter, r *http.Request) {
	ruleType, err := decision.ParseRuleType(chi.URLParam(r, "ruleType"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	body, err := readBody(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	ref, err := decision.SaveRule(r.Context(), s.engine.Persistence(), ruleType, chi.URLParam(r, "ruleId"), body)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.engine.Decisions().Evict(ref.RuleType, ref.RuleId)
	writeJSON(w, r, http.StatusOK, ref)
}

func (s *Server) ExecuteRule(w http.ResponseWriter, r *http.Request) {
	ruleType, err := decision.ParseRuleType(chi.URLParam(r, "ruleType"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	var req ExecuteRequest
	if err := decodeBody(r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}
	res, err := s.engine.Decisions().Execute(r.Context(), ruleType, chi.URLParam(r, "ruleId"), req.Variables)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// TrainDecisionTree trains the tree from the request samples and stores it. Name, description,
// target and config of an already stored tree are kept unless the request overrides them.
func (s *Server) TrainDecisionTree(w http.ResponseWriter, r *http.Request) {
	ruleId := chi.URLParam(r, "ruleId")
	var req TrainRequest
	if err := decodeBody(r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}
	ctx := r.Context()
	persistence := s.engine.Persistence()

	existing, err := persistence.FindDecisionTreeById(ctx, ruleId)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.handleError(w, r, err)
		return
	}
	if req.Name != "" {
		existing.Name = req.Name
	}
	if req.Description != "" {
		existing.Description = req.Description
	}
	if req.TargetVariable != "" {
		existing.TargetVariable = req.TargetVariable
	}
	if req.Config != nil {
		existing.Config = *req.Config
	}
	if existing.TargetVariable == "" {
		s.handleError(w, r, badRequest("target_variable is required"))
		return
	}

	trained, err := tree.Train(req.Samples, req.Features, existing.TargetVariable, existing.Config)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	if len(req.Validation) > 0 {
		model, err := tree.Compile(trained)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		trained.Nodes = model.Prune(req.Validation, trained.TargetVariable).Nodes()
	}
	trained.Id, trained.Name, trained.Description = ruleId, existing.Name, existing.Description
	if err := persistence.SaveDecisionTree(ctx, *trained); err != nil {
		s.handleError(w, r, err)
		return
	}
	s.engine.Decisions().Evict(decision.RuleTypeDecisionTree, ruleId)
	s.logger.Info("decision tree trained", "ruleId", ruleId, "nodes", len(trained.Nodes), "samples", len(req.Samples))
	writeJSON(w, r, http.StatusOK, trained)
}

func (s *Server) ValidateDecisionTable(w http.ResponseWriter, r *http.Request) {
	dt, err := s.engine.Persistence().FindDecisionTableById(r.Context(), chi.URLParam(r, "ruleId"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, table.Validate(&dt))
}
