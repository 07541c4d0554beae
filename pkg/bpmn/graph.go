// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"fmt"
	"io"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
	"github.com/pbinitiative/zendecision/pkg/bpmn/runtime"
)

var nodeShapes = map[runtime.NodeType]string{
	runtime.NodeTypeStart:        "circle",
	runtime.NodeTypeEnd:          "doublecircle",
	runtime.NodeTypeGateway:      "diamond",
	runtime.NodeTypeUserTask:     "box",
	runtime.NodeTypeServiceTask:  "box",
	runtime.NodeTypeBusinessRule: "component",
}

// WriteDOT renders a valid definition in Graphviz DOT format. Nodes visited by an instance can
// be highlighted by passing their statuses.
func WriteDOT(definition runtime.ProcessDefinition, statuses map[string]runtime.NodeInstanceStatus, w io.Writer) error {
	if _, err := ValidateDefinition(definition); err != nil {
		return err
	}
	g := graph.New(nodeHash, graph.Directed())
	for _, n := range definition.Nodes {
		label := n.Id
		if n.Label != "" {
			label = n.Label
		}
		attributes := []func(*graph.VertexProperties){
			graph.VertexAttribute("label", fmt.Sprintf("%s\n(%s)", label, n.Type)),
			graph.VertexAttribute("shape", nodeShapes[n.Type]),
		}
		switch statuses[n.Id] {
		case runtime.NodeInstanceStatusCompleted:
			attributes = append(attributes, graph.VertexAttribute("style", "filled"), graph.VertexAttribute("fillcolor", "#00FF00"))
		case runtime.NodeInstanceStatusActive:
			attributes = append(attributes, graph.VertexAttribute("style", "filled"), graph.VertexAttribute("fillcolor", "#89CFF0"))
		case runtime.NodeInstanceStatusFailed:
			attributes = append(attributes, graph.VertexAttribute("style", "filled"), graph.VertexAttribute("fillcolor", "#FF6347"))
		}
		if err := g.AddVertex(n, attributes...); err != nil {
			return fmt.Errorf("failed to add node %s: %w", n.Id, err)
		}
	}
	for _, e := range definition.Edges {
		err := g.AddEdge(e.Source, e.Target, graph.EdgeAttribute("label", normalizeExpression(e.Condition)))
		if err == graph.ErrEdgeAlreadyExists {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to add edge %s: %w", edgeName(e), err)
		}
	}
	return draw.DOT(g, w)
}
