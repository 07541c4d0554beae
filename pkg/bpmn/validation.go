// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"fmt"

	"github.com/dominikbraun/graph"
	"github.com/pbinitiative/zendecision/pkg/bpmn/runtime"
)

func nodeHash(n runtime.Node) string {
	return n.Id
}

// ValidateDefinition checks that a definition can be run: ids are present and unique, node
// types are known, there is exactly one start node and every edge references existing nodes.
// Unreachable nodes and cycles do not prevent running and are returned as warnings.
func ValidateDefinition(definition runtime.ProcessDefinition) (warnings []string, err error) {
	invalid := func(cause error, format string, a ...any) error {
		return &DefinitionError{
			DefinitionId: definition.Id,
			Reason:       fmt.Sprintf(format, a...),
			Err:          cause,
		}
	}
	if definition.Id == "" {
		return nil, invalid(ErrMissingId, "process definition has no id")
	}

	g := graph.New(nodeHash, graph.Directed())
	for i, n := range definition.Nodes {
		if n.Id == "" {
			return nil, invalid(ErrMissingId, "node at position %d has no id", i)
		}
		if !n.Type.Known() {
			return nil, invalid(ErrUnknownNodeType, "node %s has type '%s'", n.Id, n.Type)
		}
		err := g.AddVertex(n)
		if err == graph.ErrVertexAlreadyExists {
			return nil, invalid(ErrDuplicateNode, "node %s", n.Id)
		}
		if err != nil {
			return nil, invalid(err, "node %s", n.Id)
		}
	}

	starts := definition.FindStartNodes()
	switch len(starts) {
	case 0:
		return nil, invalid(ErrNoStartNode, "")
	case 1:
	default:
		return nil, invalid(ErrAmbiguousStartNode, "%d start nodes", len(starts))
	}

	added := map[[2]string]bool{}
	cyclic := false
	for _, e := range definition.Edges {
		if _, ok := definition.FindNode(e.Source); !ok {
			return nil, invalid(ErrDanglingEdge, "edge %s has unknown source %s", edgeName(e), e.Source)
		}
		if _, ok := definition.FindNode(e.Target); !ok {
			return nil, invalid(ErrDanglingEdge, "edge %s has unknown target %s", edgeName(e), e.Target)
		}
		pair := [2]string{e.Source, e.Target}
		if added[pair] {
			continue
		}
		if !cyclic {
			createsCycle, err := graph.CreatesCycle(g, e.Source, e.Target)
			if err == nil && createsCycle {
				cyclic = true
				warnings = append(warnings, fmt.Sprintf("edge %s closes a cycle, instances fail when they revisit a node", edgeName(e)))
			}
		}
		if err := g.AddEdge(e.Source, e.Target); err != nil {
			return nil, invalid(err, "edge %s", edgeName(e))
		}
		added[pair] = true
	}

	reached := map[string]bool{}
	err = graph.BFS(g, starts[0].Id, func(k string) bool {
		reached[k] = true
		return false
	})
	if err != nil {
		return nil, invalid(err, "failed to walk definition graph")
	}
	for _, n := range definition.Nodes {
		if !reached[n.Id] {
			warnings = append(warnings, fmt.Sprintf("node %s is not reachable from start node %s", n.Id, starts[0].Id))
		}
	}
	return warnings, nil
}
