// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package tree

import (
	"errors"
	"fmt"
	"slices"

	"github.com/pbinitiative/zendecision/pkg/ptr"
)

var ErrNoTrainingData = errors.New("training data and features are required")

type TrainingDataError struct {
	Row     int
	Feature string
	Msg     string
}

func (e *TrainingDataError) Error() string {
	if e.Feature == "" {
		return fmt.Sprintf("training row %d: %s", e.Row, e.Msg)
	}
	return fmt.Sprintf("training row %d, feature %s: %s", e.Row, e.Feature, e.Msg)
}

type trainer struct {
	cfg      Config
	features []string
	x        [][]float64
	y        []string
	nodes    []Node
}

// Train builds a tree from samples. Every sample must carry a numeric value for each feature
// and a value for target. The returned tree has status "trained" and its training accuracy set.
func Train(samples []map[string]any, features []string, target string, cfg Config) (*DecisionTree, error) {
	if len(samples) == 0 || len(features) == 0 {
		return nil, ErrNoTrainingData
	}
	t := &trainer{
		cfg:      cfg.WithDefaults(),
		features: features,
		x:        make([][]float64, len(samples)),
		y:        make([]string, len(samples)),
	}
	for i, s := range samples {
		label, ok := s[target]
		if !ok || label == nil {
			return nil, &TrainingDataError{Row: i, Feature: target, Msg: "missing target value"}
		}
		t.y[i] = Label(label)
		row := make([]float64, len(features))
		for j, f := range features {
			v, ok := featureValue(s, f)
			if !ok {
				return nil, &TrainingDataError{Row: i, Feature: f, Msg: "missing or non-numeric value"}
			}
			row[j] = v
		}
		t.x[i] = row
	}

	idx := make([]int, len(samples))
	for i := range idx {
		idx[i] = i
	}
	t.build(idx, 0, RootNodeId, "")

	dt := &DecisionTree{
		TargetVariable: target,
		Config:         t.cfg,
		Status:         StatusTrained,
		Nodes:          t.nodes,
	}
	model, err := Compile(dt)
	if err != nil {
		return nil, err
	}
	dt.TrainingAccuracy = ptr.To(model.Accuracy(samples, target))
	return dt, nil
}

func (t *trainer) build(idx []int, depth int, nodeId, parentId string) {
	counts, order := t.distribution(idx)
	node := Node{
		NodeId:     nodeId,
		ParentId:   parentId,
		ClassLabel: majority(counts, order),
		Samples:    len(idx),
		Value:      counts,
	}
	if t.cfg.Algorithm == AlgorithmEntropy {
		node.Entropy = ptr.To(Entropy(counts))
	} else {
		node.Gini = ptr.To(Gini(counts))
	}

	if depth >= t.cfg.MaxDepth || len(idx) < t.cfg.MinSamplesSplit || len(counts) == 1 {
		t.leaf(node)
		return
	}

	feature, threshold, found := t.bestSplit(idx, counts)
	if !found {
		t.leaf(node)
		return
	}
	var left, right []int
	for _, i := range idx {
		if t.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < t.cfg.MinSamplesLeaf || len(right) < t.cfg.MinSamplesLeaf {
		t.leaf(node)
		return
	}

	node.Feature = t.features[feature]
	node.Threshold = threshold
	node.Operator = OperatorLessEq
	t.nodes = append(t.nodes, node)
	t.build(left, depth+1, LeftChildId(nodeId), nodeId)
	t.build(right, depth+1, RightChildId(nodeId), nodeId)
}

func (t *trainer) leaf(node Node) {
	node.IsLeaf = true
	t.nodes = append(t.nodes, node)
}

// bestSplit picks the feature and midpoint threshold with the largest strictly positive gain.
// Ties keep the earlier feature and the lower threshold.
func (t *trainer) bestSplit(idx []int, parentCounts map[string]int) (int, float64, bool) {
	parentImpurity := impurity(t.cfg.Algorithm, parentCounts)
	n := float64(len(idx))
	bestGain := 0.0
	bestFeature := -1
	bestThreshold := 0.0

	for f := range t.features {
		values := make([]float64, 0, len(idx))
		for _, i := range idx {
			values = append(values, t.x[i][f])
		}
		slices.Sort(values)
		values = slices.Compact(values)

		for k := 0; k+1 < len(values); k++ {
			threshold := (values[k] + values[k+1]) / 2
			leftCounts := map[string]int{}
			rightCounts := map[string]int{}
			nLeft, nRight := 0, 0
			for _, i := range idx {
				if t.x[i][f] <= threshold {
					leftCounts[t.y[i]]++
					nLeft++
				} else {
					rightCounts[t.y[i]]++
					nRight++
				}
			}
			if nLeft == 0 || nRight == 0 {
				continue
			}
			gain := parentImpurity -
				(float64(nLeft)/n*impurity(t.cfg.Algorithm, leftCounts) +
					float64(nRight)/n*impurity(t.cfg.Algorithm, rightCounts))
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = threshold
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

func (t *trainer) distribution(idx []int) (map[string]int, []string) {
	counts := make(map[string]int)
	var order []string
	for _, i := range idx {
		if _, seen := counts[t.y[i]]; !seen {
			order = append(order, t.y[i])
		}
		counts[t.y[i]]++
	}
	return counts, order
}

// majority returns the most frequent label, ties resolved by first appearance.
func majority(counts map[string]int, order []string) string {
	best := ""
	bestCount := -1
	for _, label := range order {
		if counts[label] > bestCount {
			best = label
			bestCount = counts[label]
		}
	}
	return best
}
