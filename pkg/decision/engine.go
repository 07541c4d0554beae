// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

// Package decision routes a rule invocation to the decision tree, scorecard, decision table or
// rule set it names and shapes the model result into variables for the calling process.
package decision

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pbinitiative/zendecision/pkg/decision/ruleset"
	"github.com/pbinitiative/zendecision/pkg/decision/scorecard"
	"github.com/pbinitiative/zendecision/pkg/decision/table"
	"github.com/pbinitiative/zendecision/pkg/decision/tree"
	"github.com/pbinitiative/zendecision/pkg/otel"
	"github.com/pbinitiative/zendecision/pkg/script"
	"github.com/pbinitiative/zendecision/pkg/script/expr"
	"github.com/pbinitiative/zendecision/pkg/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type RuleType string

const (
	RuleTypeDecisionTree  RuleType = "DECISION_TREE"
	RuleTypeScorecard     RuleType = "SCORECARD"
	RuleTypeDecisionTable RuleType = "DECISION_TABLE"
	RuleTypeRuleSet       RuleType = "RULE_SET"
)

const DefaultModelCacheSize = 128

// ParseRuleType accepts rule types in any case, e.g. "scorecard".
func ParseRuleType(s string) (RuleType, error) {
	rt := RuleType(strings.ToUpper(strings.TrimSpace(s)))
	switch rt {
	case RuleTypeDecisionTree, RuleTypeScorecard, RuleTypeDecisionTable, RuleTypeRuleSet:
		return rt, nil
	}
	return rt, &UnknownRuleTypeError{RuleType: RuleType(s)}
}

// Repository gives read access to persisted rule models.
type Repository interface {
	storage.RuleStorageReader
}

type Result struct {
	RuleType RuleType `json:"rule_type"`
	RuleId   string   `json:"rule_id"`
	RuleName string   `json:"rule_name"`
	// Output is merged into the variables of the calling process.
	Output      map[string]any   `json:"output"`
	Score       *float64         `json:"score,omitempty"`
	Probability *float64         `json:"probability,omitempty"`
	Prediction  *tree.Prediction `json:"prediction,omitempty"`
	Matched     bool             `json:"matched"`
	// Details holds the model specific result, e.g. the scorecard breakdown or the fired rules.
	Details any `json:"details,omitempty"`
}

type Engine struct {
	repository    Repository
	runtime       script.Runtime
	models        *lru.Cache[string, any]
	modelCacheCap int
	logger        hclog.Logger
	metrics       *otel.EngineMetrics
}

type EngineOption = func(*Engine)

// EngineWithScriptRuntime sets the runtime used by rule sets
func EngineWithScriptRuntime(rt script.Runtime) EngineOption {
	return func(engine *Engine) {
		engine.runtime = rt
	}
}

// EngineWithModelCacheSize bounds the number of compiled trees and scorecards kept in memory
func EngineWithModelCacheSize(size int) EngineOption {
	return func(engine *Engine) {
		engine.modelCacheCap = size
	}
}

func EngineWithLogger(logger hclog.Logger) EngineOption {
	return func(engine *Engine) {
		engine.logger = logger
	}
}

func EngineWithMetrics(metrics *otel.EngineMetrics) EngineOption {
	return func(engine *Engine) {
		engine.metrics = metrics
	}
}

func NewEngine(repository Repository, options ...EngineOption) *Engine {
	engine := Engine{
		repository:    repository,
		modelCacheCap: DefaultModelCacheSize,
		logger:        hclog.Default().Named("decision-engine"),
	}
	for _, option := range options {
		option(&engine)
	}
	if engine.runtime == nil {
		engine.runtime = expr.NewRuntime(expr.DefaultCacheSize)
	}
	if engine.metrics == nil {
		engine.metrics = otel.NoopMetrics()
	}
	if engine.modelCacheCap <= 0 {
		engine.modelCacheCap = DefaultModelCacheSize
	}
	engine.models, _ = lru.New[string, any](engine.modelCacheCap)
	return &engine
}

func cacheKey(ruleType RuleType, ruleId string) string {
	return string(ruleType) + "/" + ruleId
}

// Evict drops the compiled model so the next execution reads the stored one again.
func (engine *Engine) Evict(ruleType RuleType, ruleId string) {
	engine.models.Remove(cacheKey(ruleType, ruleId))
}

// Execute evaluates the rule of the given type against variables. variables is not modified.
func (engine *Engine) Execute(ctx context.Context, ruleType RuleType, ruleId string, variables map[string]any) (Result, error) {
	if variables == nil {
		variables = map[string]any{}
	}
	var res Result
	var err error
	switch ruleType {
	case RuleTypeDecisionTree:
		res, err = engine.executeDecisionTree(ctx, ruleId, variables)
	case RuleTypeScorecard:
		res, err = engine.executeScorecard(ctx, ruleId, variables)
	case RuleTypeDecisionTable:
		res, err = engine.executeDecisionTable(ctx, ruleId, variables)
	case RuleTypeRuleSet:
		res, err = engine.executeRuleSet(ctx, ruleId, variables)
	default:
		return Result{}, &UnknownRuleTypeError{RuleType: ruleType}
	}
	if err != nil {
		engine.logger.Warn("Rule execution failed", "ruleType", ruleType, "ruleId", ruleId, "err", err)
		return Result{}, err
	}
	res.RuleType = ruleType
	res.RuleId = ruleId
	engine.metrics.RulesExecuted.Add(ctx, 1, metric.WithAttributes(
		attribute.String(otel.AttributeRuleType, string(ruleType)),
	))
	engine.logger.Debug("Rule executed", "ruleType", ruleType, "ruleId", ruleId, "matched", res.Matched)
	return res, nil
}

func notFound(ruleType RuleType, ruleId string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return &RuleNotFoundError{RuleType: ruleType, RuleId: ruleId}
	}
	return fmt.Errorf("failed to load %s [%s]: %w", ruleType, ruleId, err)
}

type compiledTree struct {
	name  string
	model *tree.Model
}

func (engine *Engine) loadDecisionTree(ctx context.Context, ruleId string) (compiledTree, error) {
	key := cacheKey(RuleTypeDecisionTree, ruleId)
	if cached, ok := engine.models.Get(key); ok {
		return cached.(compiledTree), nil
	}
	dt, err := engine.repository.FindDecisionTreeById(ctx, ruleId)
	if err != nil {
		return compiledTree{}, notFound(RuleTypeDecisionTree, ruleId, err)
	}
	model, err := tree.Compile(&dt)
	if err != nil {
		return compiledTree{}, &RuleEvaluationError{RuleType: RuleTypeDecisionTree, RuleId: ruleId, Err: err}
	}
	res := compiledTree{name: dt.Name, model: model}
	engine.models.Add(key, res)
	return res, nil
}

func (engine *Engine) executeDecisionTree(ctx context.Context, ruleId string, variables map[string]any) (Result, error) {
	compiled, err := engine.loadDecisionTree(ctx, ruleId)
	if err != nil {
		return Result{}, err
	}
	prediction := compiled.model.Predict(variables)
	return Result{
		RuleName:   compiled.name,
		Output:     map[string]any{"prediction": prediction.Label},
		Prediction: &prediction,
		Matched:    true,
		Details:    prediction,
	}, nil
}

func (engine *Engine) loadScorecard(ctx context.Context, ruleId string) (*scorecard.Scorecard, error) {
	key := cacheKey(RuleTypeScorecard, ruleId)
	if cached, ok := engine.models.Get(key); ok {
		return cached.(*scorecard.Scorecard), nil
	}
	sc, err := engine.repository.FindScorecardById(ctx, ruleId)
	if err != nil {
		return nil, notFound(RuleTypeScorecard, ruleId, err)
	}
	compiled := scorecard.Compile(&sc)
	engine.models.Add(key, compiled)
	return compiled, nil
}

func (engine *Engine) executeScorecard(ctx context.Context, ruleId string, variables map[string]any) (Result, error) {
	sc, err := engine.loadScorecard(ctx, ruleId)
	if err != nil {
		return Result{}, err
	}
	scored := scorecard.Score(sc, variables)
	return Result{
		RuleName: sc.Name,
		Output: map[string]any{
			"credit_score": scored.Score,
			"probability":  scored.Probability,
		},
		Score:       &scored.Score,
		Probability: &scored.Probability,
		Matched:     true,
		Details:     scored,
	}, nil
}

func (engine *Engine) executeDecisionTable(ctx context.Context, ruleId string, variables map[string]any) (Result, error) {
	dt, err := engine.repository.FindDecisionTableById(ctx, ruleId)
	if err != nil {
		return Result{}, notFound(RuleTypeDecisionTable, ruleId, err)
	}
	executed, err := table.Execute(&dt, variables)
	if err != nil {
		return Result{}, &RuleEvaluationError{RuleType: RuleTypeDecisionTable, RuleId: ruleId, Err: err}
	}
	output := map[string]any{}
	if executed.Matched {
		output = maps.Clone(executed.Output)
	}
	return Result{
		RuleName: dt.Name,
		Output:   output,
		Matched:  executed.Matched,
		Details:  executed,
	}, nil
}

func (engine *Engine) executeRuleSet(ctx context.Context, ruleId string, variables map[string]any) (Result, error) {
	rs, err := engine.repository.FindRuleSetById(ctx, ruleId)
	if err != nil {
		return Result{}, notFound(RuleTypeRuleSet, ruleId, err)
	}
	executed, err := ruleset.Execute(ctx, engine.runtime, &rs, variables)
	if err != nil {
		return Result{}, &RuleEvaluationError{RuleType: RuleTypeRuleSet, RuleId: ruleId, Err: err}
	}
	return Result{
		RuleName: rs.Name,
		Output:   executed.Changes,
		Matched:  len(executed.FiredRules) > 0,
		Details:  executed,
	}, nil
}
