// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package decision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pbinitiative/zendecision/pkg/decision/ruleset"
	"github.com/pbinitiative/zendecision/pkg/decision/scorecard"
	"github.com/pbinitiative/zendecision/pkg/decision/table"
	"github.com/pbinitiative/zendecision/pkg/decision/tree"
	"github.com/pbinitiative/zendecision/pkg/storage"
	"gopkg.in/yaml.v3"
)

var ErrInvalidRule = errors.New("invalid rule model")

// RuleRef identifies a stored rule model.
type RuleRef struct {
	RuleType RuleType `json:"rule_type"`
	RuleId   string   `json:"rule_id"`
}

// ruleDocument is one YAML document of a rules file:
//
//	type: SCORECARD
//	model:
//	  id: credit
//	  ...
//
// Decision trees without nodes may carry a training section instead and are trained on load.
type ruleDocument struct {
	Type     string    `yaml:"type"`
	Model    yaml.Node `yaml:"model"`
	Training *struct {
		Features []string         `yaml:"features"`
		Samples  []map[string]any `yaml:"samples"`
	} `yaml:"training"`
}

// LoadRules decodes every YAML document in data and stores the models through writer.
func LoadRules(ctx context.Context, writer storage.RuleStorageWriter, data []byte) ([]RuleRef, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	refs := make([]RuleRef, 0)
	for {
		var doc ruleDocument
		err := decoder.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return refs, fmt.Errorf("failed to parse rule document %d: %w", len(refs)+1, err)
		}
		ref, err := storeRule(ctx, writer, doc)
		if err != nil {
			return refs, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// LoadRulesFromDir loads every .yaml/.yml file of dir in file name order.
func LoadRulesFromDir(ctx context.Context, writer storage.RuleStorageWriter, dir string) ([]RuleRef, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules directory %s: %w", dir, err)
	}
	slices.SortFunc(entries, func(a, b os.DirEntry) int {
		return strings.Compare(a.Name(), b.Name())
	})
	refs := make([]RuleRef, 0)
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return refs, fmt.Errorf("failed to read %s: %w", e.Name(), err)
		}
		loaded, err := LoadRules(ctx, writer, data)
		refs = append(refs, loaded...)
		if err != nil {
			return refs, fmt.Errorf("%s: %w", e.Name(), err)
		}
	}
	return refs, nil
}

func storeRule(ctx context.Context, writer storage.RuleStorageWriter, doc ruleDocument) (RuleRef, error) {
	ruleType, err := ParseRuleType(doc.Type)
	if err != nil {
		return RuleRef{}, err
	}
	ref := RuleRef{RuleType: ruleType}
	var save func() error
	switch ruleType {
	case RuleTypeDecisionTree:
		var dt tree.DecisionTree
		if err := doc.Model.Decode(&dt); err != nil {
			return ref, fmt.Errorf("%w: failed to decode decision tree: %w", ErrInvalidRule, err)
		}
		if len(dt.Nodes) == 0 && doc.Training != nil {
			trained, err := tree.Train(doc.Training.Samples, doc.Training.Features, dt.TargetVariable, dt.Config)
			if err != nil {
				return ref, fmt.Errorf("failed to train decision tree %s: %w", dt.Id, err)
			}
			trained.Id, trained.Name, trained.Description = dt.Id, dt.Name, dt.Description
			dt = *trained
		}
		ref.RuleId = dt.Id
		save = func() error { return writer.SaveDecisionTree(ctx, dt) }
	case RuleTypeScorecard:
		var sc scorecard.Scorecard
		if err := doc.Model.Decode(&sc); err != nil {
			return ref, fmt.Errorf("%w: failed to decode scorecard: %w", ErrInvalidRule, err)
		}
		ref.RuleId = sc.Id
		save = func() error { return writer.SaveScorecard(ctx, sc) }
	case RuleTypeDecisionTable:
		var dt table.DecisionTable
		if err := doc.Model.Decode(&dt); err != nil {
			return ref, fmt.Errorf("%w: failed to decode decision table: %w", ErrInvalidRule, err)
		}
		ref.RuleId = dt.Id
		save = func() error { return writer.SaveDecisionTable(ctx, dt) }
	case RuleTypeRuleSet:
		var rs ruleset.RuleSet
		if err := doc.Model.Decode(&rs); err != nil {
			return ref, fmt.Errorf("%w: failed to decode rule set: %w", ErrInvalidRule, err)
		}
		ref.RuleId = rs.Id
		save = func() error { return writer.SaveRuleSet(ctx, rs) }
	}
	if ref.RuleId == "" {
		return ref, fmt.Errorf("%w: %s without id", ErrInvalidRule, ruleType)
	}
	if err := save(); err != nil {
		return ref, fmt.Errorf("failed to store %s [%s]: %w", ruleType, ref.RuleId, err)
	}
	return ref, nil
}

// SaveRule stores a single JSON or YAML encoded model under ruleId. A model without an id gets
// ruleId, a model carrying a different id is rejected.
func SaveRule(ctx context.Context, writer storage.RuleStorageWriter, ruleType RuleType, ruleId string, model []byte) (RuleRef, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(model, &root); err != nil {
		return RuleRef{}, fmt.Errorf("%w: %w", ErrInvalidRule, err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) != 1 || root.Content[0].Kind != yaml.MappingNode {
		return RuleRef{}, fmt.Errorf("%w: %s model must be an object", ErrInvalidRule, ruleType)
	}
	mapping := root.Content[0]
	hasId := false
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value != "id" {
			continue
		}
		hasId = true
		if mapping.Content[i+1].Value != ruleId {
			return RuleRef{}, fmt.Errorf("%w: model id %s does not match %s", ErrInvalidRule, mapping.Content[i+1].Value, ruleId)
		}
	}
	if !hasId {
		mapping.Content = append(mapping.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "id"},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: ruleId},
		)
	}
	return storeRule(ctx, writer, ruleDocument{Type: string(ruleType), Model: *mapping})
}
