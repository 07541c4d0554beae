// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

// Package tree trains and evaluates binary-split classification trees.
//
// A trained tree is persisted as a flat list of nodes addressed by path ids: the root is "0"
// and the children of node p are "p-L" and "p-R". Compile turns the flat list into an indexed
// Model once, so prediction never has to look nodes up by id.
package tree

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type Algorithm string

const (
	AlgorithmGini    Algorithm = "gini"
	AlgorithmEntropy Algorithm = "entropy"
)

const (
	RootNodeId      = "0"
	OperatorLessEq  = "<="
	UnknownLabel    = "UNKNOWN"
	StatusDraft     = "draft"
	StatusTrained   = "trained"
	leftSuffix      = "-L"
	rightSuffix     = "-R"
	defaultMaxDepth = 5
)

type Config struct {
	Algorithm       Algorithm `json:"algorithm" yaml:"algorithm" mapstructure:"algorithm"`
	MaxDepth        int       `json:"max_depth" yaml:"max_depth" mapstructure:"max_depth"`
	MinSamplesSplit int       `json:"min_samples_split" yaml:"min_samples_split" mapstructure:"min_samples_split"`
	MinSamplesLeaf  int       `json:"min_samples_leaf" yaml:"min_samples_leaf" mapstructure:"min_samples_leaf"`
}

// WithDefaults fills zero values with max depth 5, min samples split 2, min samples leaf 1
// and the gini algorithm.
func (c Config) WithDefaults() Config {
	if c.Algorithm == "" {
		c.Algorithm = AlgorithmGini
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = defaultMaxDepth
	}
	if c.MinSamplesSplit <= 0 {
		c.MinSamplesSplit = 2
	}
	if c.MinSamplesLeaf <= 0 {
		c.MinSamplesLeaf = 1
	}
	return c
}

// DecisionTree is the persisted form of a tree.
type DecisionTree struct {
	Id               string   `json:"id" yaml:"id"`
	Name             string   `json:"name" yaml:"name"`
	Description      string   `json:"description,omitempty" yaml:"description,omitempty"`
	TargetVariable   string   `json:"target_variable" yaml:"target_variable"`
	Config           Config   `json:"config" yaml:"config"`
	Status           string   `json:"status" yaml:"status"`
	TrainingAccuracy *float64 `json:"training_accuracy,omitempty" yaml:"training_accuracy,omitempty"`
	Nodes            []Node   `json:"nodes" yaml:"nodes"`
}

// Node is one row of the flat tree. Internal nodes carry the majority ClassLabel of the samples
// that reached them so a prediction can stop early when a feature is missing.
type Node struct {
	NodeId     string         `json:"node_id" yaml:"node_id"`
	ParentId   string         `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	Feature    string         `json:"feature,omitempty" yaml:"feature,omitempty"`
	Threshold  float64        `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Operator   string         `json:"operator,omitempty" yaml:"operator,omitempty"`
	IsLeaf     bool           `json:"is_leaf" yaml:"is_leaf"`
	ClassLabel string         `json:"class_label,omitempty" yaml:"class_label,omitempty"`
	Samples    int            `json:"samples" yaml:"samples"`
	Gini       *float64       `json:"gini,omitempty" yaml:"gini,omitempty"`
	Entropy    *float64       `json:"entropy,omitempty" yaml:"entropy,omitempty"`
	Value      map[string]int `json:"value,omitempty" yaml:"value,omitempty"`
}

func LeftChildId(nodeId string) string {
	return nodeId + leftSuffix
}

func RightChildId(nodeId string) string {
	return nodeId + rightSuffix
}

// Gini returns 1 - sum(p^2) over the class distribution.
func Gini(counts map[string]int) float64 {
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return 0
	}
	impurity := 1.0
	for _, c := range counts {
		p := float64(c) / float64(total)
		impurity -= p * p
	}
	return impurity
}

// Entropy returns -sum(p*log2(p)) over the class distribution.
func Entropy(counts map[string]int) float64 {
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return 0
	}
	entropy := 0.0
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy
}

func impurity(algorithm Algorithm, counts map[string]int) float64 {
	if algorithm == AlgorithmEntropy {
		return Entropy(counts)
	}
	return Gini(counts)
}

// Label renders a target value as a class label.
func Label(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "True"
		}
		return "False"
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return Label(float64(x))
	case json.Number:
		return x.String()
	}
	return fmt.Sprint(v)
}

// featureValue reads a numeric feature from a sample. Non-numeric values count as missing.
func featureValue(sample map[string]any, feature string) (float64, bool) {
	v, ok := sample[feature]
	if !ok || v == nil {
		return 0, false
	}
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}
