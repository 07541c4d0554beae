// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package tree

import (
	"fmt"
	"slices"
)

type InvalidTreeError struct {
	TreeId string
	NodeId string
	Msg    string
}

func (e *InvalidTreeError) Error() string {
	if e.NodeId == "" {
		return fmt.Sprintf("invalid decision tree %s: %s", e.TreeId, e.Msg)
	}
	return fmt.Sprintf("invalid decision tree %s, node %s: %s", e.TreeId, e.NodeId, e.Msg)
}

type arenaNode struct {
	Node
	left  int
	right int
}

// Model is a compiled tree. Children are addressed by index into nodes.
type Model struct {
	treeId string
	target string
	nodes  []arenaNode
	root   int
}

type Prediction struct {
	Label  string   `json:"label"`
	NodeId string   `json:"node_id"`
	Path   []string `json:"path"`
}

// Compile resolves the flat node list of dt into a Model. Every internal node reachable from
// the root needs both children.
func Compile(dt *DecisionTree) (*Model, error) {
	byId := make(map[string]int, len(dt.Nodes))
	for i, n := range dt.Nodes {
		if _, dup := byId[n.NodeId]; dup {
			return nil, &InvalidTreeError{TreeId: dt.Id, NodeId: n.NodeId, Msg: "duplicate node id"}
		}
		byId[n.NodeId] = i
	}
	if _, ok := byId[RootNodeId]; !ok {
		return nil, &InvalidTreeError{TreeId: dt.Id, Msg: "root node is missing"}
	}

	m := &Model{treeId: dt.Id, target: dt.TargetVariable}
	var link func(id string) (int, error)
	link = func(id string) (int, error) {
		src, ok := byId[id]
		if !ok {
			return -1, &InvalidTreeError{TreeId: dt.Id, NodeId: id, Msg: "node is missing"}
		}
		idx := len(m.nodes)
		m.nodes = append(m.nodes, arenaNode{Node: dt.Nodes[src], left: -1, right: -1})
		if dt.Nodes[src].IsLeaf {
			return idx, nil
		}
		if dt.Nodes[src].Feature == "" {
			return -1, &InvalidTreeError{TreeId: dt.Id, NodeId: id, Msg: "internal node has no feature"}
		}
		left, err := link(LeftChildId(id))
		if err != nil {
			return -1, err
		}
		right, err := link(RightChildId(id))
		if err != nil {
			return -1, err
		}
		m.nodes[idx].left = left
		m.nodes[idx].right = right
		return idx, nil
	}
	root, err := link(RootNodeId)
	if err != nil {
		return nil, err
	}
	m.root = root
	return m, nil
}

func (m *Model) TargetVariable() string {
	return m.target
}

// Predict walks the tree from the root. A value equal to the threshold goes left. When the
// split feature is missing from sample the label of the current node is returned.
func (m *Model) Predict(sample map[string]any) Prediction {
	return m.predictFrom(m.root, sample)
}

func (m *Model) predictFrom(i int, sample map[string]any) Prediction {
	var path []string
	for {
		n := &m.nodes[i]
		path = append(path, n.NodeId)
		if n.IsLeaf {
			return Prediction{Label: n.ClassLabel, NodeId: n.NodeId, Path: path}
		}
		v, ok := featureValue(sample, n.Feature)
		if !ok {
			label := n.ClassLabel
			if label == "" {
				label = UnknownLabel
			}
			return Prediction{Label: label, NodeId: n.NodeId, Path: path}
		}
		if v <= n.Threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
}

// Accuracy is the fraction of samples whose prediction equals their target value. Samples
// without a target value are ignored.
func (m *Model) Accuracy(samples []map[string]any, target string) float64 {
	total, correct := 0, 0
	for _, s := range samples {
		actual, ok := s[target]
		if !ok || actual == nil {
			continue
		}
		total++
		if m.Predict(s).Label == Label(actual) {
			correct++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total)
}

// Prune applies reduced error pruning top down: an internal node becomes a leaf when its own
// label classifies the validation samples that reach it at least as well as its subtree.
// Subtrees no validation sample reaches are kept. The receiver is not modified.
func (m *Model) Prune(validation []map[string]any, target string) *Model {
	c := &Model{
		treeId: m.treeId,
		target: m.target,
		nodes:  slices.Clone(m.nodes),
		root:   m.root,
	}
	var labelled []map[string]any
	for _, s := range validation {
		if v, ok := s[target]; ok && v != nil {
			labelled = append(labelled, s)
		}
	}
	c.prune(c.root, labelled, target)
	return c
}

func (m *Model) prune(i int, samples []map[string]any, target string) {
	n := &m.nodes[i]
	if n.IsLeaf || len(samples) == 0 {
		return
	}
	subtreeCorrect, leafCorrect := 0, 0
	for _, s := range samples {
		actual := Label(s[target])
		if m.predictFrom(i, s).Label == actual {
			subtreeCorrect++
		}
		if n.ClassLabel == actual {
			leafCorrect++
		}
	}
	if leafCorrect >= subtreeCorrect {
		n.IsLeaf = true
		n.Feature = ""
		n.Threshold = 0
		n.Operator = ""
		n.left, n.right = -1, -1
		return
	}

	var left, right []map[string]any
	for _, s := range samples {
		v, ok := featureValue(s, n.Feature)
		if !ok {
			continue
		}
		if v <= n.Threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}
	l, r := n.left, n.right
	m.prune(l, left, target)
	m.prune(r, right, target)
}

// Nodes flattens the reachable part of the model in pre-order, ready to be persisted.
func (m *Model) Nodes() []Node {
	res := make([]Node, 0, len(m.nodes))
	var walk func(i int, parentId string)
	walk = func(i int, parentId string) {
		n := m.nodes[i].Node
		n.ParentId = parentId
		res = append(res, n)
		if m.nodes[i].IsLeaf {
			return
		}
		walk(m.nodes[i].left, n.NodeId)
		walk(m.nodes[i].right, n.NodeId)
	}
	walk(m.root, "")
	return res
}

// Depth is the number of edges on the longest root to leaf path.
func (m *Model) Depth() int {
	var depth func(i int) int
	depth = func(i int) int {
		if m.nodes[i].IsLeaf {
			return 0
		}
		return 1 + max(depth(m.nodes[i].left), depth(m.nodes[i].right))
	}
	return depth(m.root)
}
