// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package tree

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_impurity_measures(t *testing.T) {
	assert.Equal(t, 0.0, Gini(map[string]int{"a": 4}))
	assert.InDelta(t, 0.5, Gini(map[string]int{"a": 2, "b": 2}), 1e-12)
	assert.Equal(t, 0.0, Entropy(map[string]int{"a": 4}))
	assert.InDelta(t, 1.0, Entropy(map[string]int{"a": 2, "b": 2}), 1e-12)
	assert.Equal(t, 0.0, Gini(map[string]int{}))
}

func creditSamples() []map[string]any {
	return []map[string]any{
		{"income": 1000, "age": 22, "risk": "HIGH"},
		{"income": 1500, "age": 45, "risk": "HIGH"},
		{"income": 2000, "age": 30, "risk": "HIGH"},
		{"income": 4000, "age": 25, "risk": "LOW"},
		{"income": 5000, "age": 50, "risk": "LOW"},
		{"income": 6000, "age": 35, "risk": "LOW"},
	}
}

func Test_train_splits_on_midpoint_of_best_feature(t *testing.T) {
	// when
	dt, err := Train(creditSamples(), []string{"age", "income"}, "risk", Config{})

	// then
	require.NoError(t, err)
	assert.Equal(t, StatusTrained, dt.Status)
	require.Len(t, dt.Nodes, 3)

	root := dt.Nodes[0]
	assert.Equal(t, "0", root.NodeId)
	assert.False(t, root.IsLeaf)
	assert.Equal(t, "income", root.Feature)
	assert.Equal(t, 3000.0, root.Threshold)
	assert.Equal(t, OperatorLessEq, root.Operator)
	assert.Equal(t, 6, root.Samples)
	require.NotNil(t, root.Gini)
	assert.InDelta(t, 0.5, *root.Gini, 1e-12)
	assert.Nil(t, root.Entropy)

	assert.Equal(t, "0-L", dt.Nodes[1].NodeId)
	assert.Equal(t, "0", dt.Nodes[1].ParentId)
	assert.Equal(t, "HIGH", dt.Nodes[1].ClassLabel)
	assert.True(t, dt.Nodes[1].IsLeaf)
	assert.Equal(t, "0-R", dt.Nodes[2].NodeId)
	assert.Equal(t, "LOW", dt.Nodes[2].ClassLabel)

	require.NotNil(t, dt.TrainingAccuracy)
	assert.Equal(t, 1.0, *dt.TrainingAccuracy)
}

func Test_train_stops_at_leaf_conditions(t *testing.T) {
	t.Run("max depth zero is replaced by default", func(t *testing.T) {
		dt, err := Train(creditSamples(), []string{"income"}, "risk", Config{MaxDepth: 0})
		require.NoError(t, err)
		assert.Len(t, dt.Nodes, 3)
	})
	t.Run("min samples split above sample count", func(t *testing.T) {
		dt, err := Train(creditSamples(), []string{"income"}, "risk", Config{MinSamplesSplit: 7})
		require.NoError(t, err)
		require.Len(t, dt.Nodes, 1)
		assert.True(t, dt.Nodes[0].IsLeaf)
		assert.Equal(t, "HIGH", dt.Nodes[0].ClassLabel)
	})
	t.Run("pure node", func(t *testing.T) {
		samples := []map[string]any{{"x": 1, "y": "A"}, {"x": 2, "y": "A"}}
		dt, err := Train(samples, []string{"x"}, "y", Config{})
		require.NoError(t, err)
		require.Len(t, dt.Nodes, 1)
		assert.Equal(t, "A", dt.Nodes[0].ClassLabel)
	})
	t.Run("min samples leaf", func(t *testing.T) {
		samples := []map[string]any{
			{"x": 1, "y": "A"}, {"x": 2, "y": "B"}, {"x": 3, "y": "B"}, {"x": 4, "y": "B"},
		}
		dt, err := Train(samples, []string{"x"}, "y", Config{MinSamplesLeaf: 2})
		require.NoError(t, err)
		require.Len(t, dt.Nodes, 1)
		assert.Equal(t, "B", dt.Nodes[0].ClassLabel)
	})
	t.Run("no positive gain", func(t *testing.T) {
		samples := []map[string]any{{"x": 1, "y": "A"}, {"x": 1, "y": "B"}}
		dt, err := Train(samples, []string{"x"}, "y", Config{})
		require.NoError(t, err)
		require.Len(t, dt.Nodes, 1)
		assert.Equal(t, "A", dt.Nodes[0].ClassLabel)
	})
}

func Test_train_with_entropy_records_entropy(t *testing.T) {
	dt, err := Train(creditSamples(), []string{"income"}, "risk", Config{Algorithm: AlgorithmEntropy})

	require.NoError(t, err)
	require.NotNil(t, dt.Nodes[0].Entropy)
	assert.InDelta(t, 1.0, *dt.Nodes[0].Entropy, 1e-12)
	assert.Nil(t, dt.Nodes[0].Gini)
}

func Test_train_rejects_invalid_data(t *testing.T) {
	_, err := Train(nil, []string{"x"}, "y", Config{})
	assert.ErrorIs(t, err, ErrNoTrainingData)

	_, err = Train([]map[string]any{{"x": "abc", "y": "A"}}, []string{"x"}, "y", Config{})
	var dataErr *TrainingDataError
	assert.True(t, errors.As(err, &dataErr))
	assert.Equal(t, "x", dataErr.Feature)

	_, err = Train([]map[string]any{{"x": 1}}, []string{"x"}, "y", Config{})
	assert.True(t, errors.As(err, &dataErr))
}

func handBuiltTree() *DecisionTree {
	return &DecisionTree{
		Id:             "tree-1",
		TargetVariable: "risk",
		Nodes: []Node{
			{NodeId: "0-R", ParentId: "0", IsLeaf: true, ClassLabel: "LOW", Samples: 3},
			{NodeId: "0", Feature: "income", Threshold: 3000, Operator: "<=", ClassLabel: "HIGH", Samples: 6},
			{NodeId: "0-L", ParentId: "0", Feature: "age", Threshold: 30, Operator: "<=", ClassLabel: "HIGH", Samples: 3},
			{NodeId: "0-L-L", ParentId: "0-L", IsLeaf: true, ClassLabel: "HIGH", Samples: 2},
			{NodeId: "0-L-R", ParentId: "0-L", IsLeaf: true, ClassLabel: "MEDIUM", Samples: 1},
		},
	}
}

func Test_predict(t *testing.T) {
	model, err := Compile(handBuiltTree())
	require.NoError(t, err)

	t.Run("value at threshold routes left", func(t *testing.T) {
		p := model.Predict(map[string]any{"income": 3000, "age": 30})
		assert.Equal(t, "HIGH", p.Label)
		assert.Equal(t, "0-L-L", p.NodeId)
		assert.Equal(t, []string{"0", "0-L", "0-L-L"}, p.Path)
	})
	t.Run("right branch", func(t *testing.T) {
		p := model.Predict(map[string]any{"income": 3000.01})
		assert.Equal(t, "LOW", p.Label)
	})
	t.Run("missing feature returns current best guess", func(t *testing.T) {
		p := model.Predict(map[string]any{"income": 100})
		assert.Equal(t, "HIGH", p.Label)
		assert.Equal(t, "0-L", p.NodeId)
	})
	t.Run("non numeric value counts as missing", func(t *testing.T) {
		p := model.Predict(map[string]any{"income": "lots"})
		assert.Equal(t, "0", p.NodeId)
	})
	t.Run("deterministic", func(t *testing.T) {
		sample := map[string]any{"income": 1200, "age": 40}
		assert.Equal(t, model.Predict(sample), model.Predict(sample))
	})
}

func Test_compile_rejects_broken_trees(t *testing.T) {
	dt := handBuiltTree()
	dt.Nodes = dt.Nodes[:4]
	_, err := Compile(dt)
	var treeErr *InvalidTreeError
	require.True(t, errors.As(err, &treeErr))
	assert.Equal(t, "0-L-R", treeErr.NodeId)

	_, err = Compile(&DecisionTree{Id: "empty"})
	assert.True(t, errors.As(err, &treeErr))
}

func Test_accuracy(t *testing.T) {
	model, err := Compile(handBuiltTree())
	require.NoError(t, err)

	acc := model.Accuracy([]map[string]any{
		{"income": 5000, "risk": "LOW"},
		{"income": 1000, "age": 20, "risk": "HIGH"},
		{"income": 1000, "age": 40, "risk": "HIGH"},
		{"income": 1000, "age": 40, "risk": "MEDIUM"},
		{"income": 1000},
	}, "risk")

	assert.InDelta(t, 0.75, acc, 1e-12)
	assert.Equal(t, 0.0, model.Accuracy(nil, "risk"))
}

func Test_prune_collapses_subtree_that_does_not_help(t *testing.T) {
	// given
	model, err := Compile(handBuiltTree())
	require.NoError(t, err)
	validation := []map[string]any{
		{"income": 1000, "age": 20, "risk": "HIGH"},
		{"income": 1000, "age": 40, "risk": "HIGH"},
		{"income": 5000, "age": 40, "risk": "LOW"},
		{"income": 6000, "risk": "LOW"},
	}

	// when
	pruned := model.Prune(validation, "risk")

	// then
	nodes := pruned.Nodes()
	require.Len(t, nodes, 3)
	assert.Equal(t, "0-L", nodes[1].NodeId)
	assert.True(t, nodes[1].IsLeaf)
	assert.Equal(t, "HIGH", nodes[1].ClassLabel)
	assert.Equal(t, 1, pruned.Depth())
	assert.Equal(t, 2, model.Depth(), "original model is untouched")
	assert.Equal(t, 1.0, pruned.Accuracy(validation, "risk"))
}

func Test_prune_keeps_useful_subtree(t *testing.T) {
	model, err := Compile(handBuiltTree())
	require.NoError(t, err)
	validation := []map[string]any{
		{"income": 1000, "age": 20, "risk": "HIGH"},
		{"income": 1000, "age": 40, "risk": "MEDIUM"},
		{"income": 1000, "age": 41, "risk": "MEDIUM"},
		{"income": 5000, "risk": "LOW"},
	}

	pruned := model.Prune(validation, "risk")

	assert.Len(t, pruned.Nodes(), 5)
}

func Test_label_formats_target_values(t *testing.T) {
	assert.Equal(t, "1", Label(1))
	assert.Equal(t, "1", Label(1.0))
	assert.Equal(t, "1.5", Label(1.5))
	assert.Equal(t, "True", Label(true))
	assert.Equal(t, "x", Label("x"))
	assert.False(t, math.IsNaN(Gini(map[string]int{"a": 1})))
}
