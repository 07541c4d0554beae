// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"testing"

	"github.com/pbinitiative/zendecision/pkg/bpmn/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDefinitionErrors(t *testing.T) {
	start := runtime.Node{Id: "start", Type: runtime.NodeTypeStart}
	end := runtime.Node{Id: "end", Type: runtime.NodeTypeEnd}

	tests := map[string]struct {
		definition runtime.ProcessDefinition
		expected   error
	}{
		"missing definition id": {
			definition: runtime.ProcessDefinition{Nodes: []runtime.Node{start}},
			expected:   ErrMissingId,
		},
		"missing node id": {
			definition: runtime.ProcessDefinition{Id: "p", Nodes: []runtime.Node{start, {Type: runtime.NodeTypeEnd}}},
			expected:   ErrMissingId,
		},
		"unknown node type": {
			definition: runtime.ProcessDefinition{Id: "p", Nodes: []runtime.Node{start, {Id: "timer", Type: "timer"}}},
			expected:   ErrUnknownNodeType,
		},
		"duplicate node": {
			definition: runtime.ProcessDefinition{Id: "p", Nodes: []runtime.Node{start, end, {Id: "end", Type: runtime.NodeTypeServiceTask}}},
			expected:   ErrDuplicateNode,
		},
		"no start node": {
			definition: runtime.ProcessDefinition{Id: "p", Nodes: []runtime.Node{end}},
			expected:   ErrNoStartNode,
		},
		"two start nodes": {
			definition: runtime.ProcessDefinition{Id: "p", Nodes: []runtime.Node{start, {Id: "start-2", Type: runtime.NodeTypeStart}, end}},
			expected:   ErrAmbiguousStartNode,
		},
		"edge with unknown source": {
			definition: runtime.ProcessDefinition{
				Id:    "p",
				Nodes: []runtime.Node{start, end},
				Edges: []runtime.Edge{{Source: "ghost", Target: "end"}},
			},
			expected: ErrDanglingEdge,
		},
		"edge with unknown target": {
			definition: runtime.ProcessDefinition{
				Id:    "p",
				Nodes: []runtime.Node{start, end},
				Edges: []runtime.Edge{{Source: "start", Target: "ghost"}},
			},
			expected: ErrDanglingEdge,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			// when
			warnings, err := ValidateDefinition(test.definition)

			// then
			assert.Nil(t, warnings)
			var defErr *DefinitionError
			require.ErrorAs(t, err, &defErr)
			assert.ErrorIs(t, err, test.expected)
			assert.Equal(t, test.definition.Id, defErr.DefinitionId)
		})
	}
}

func TestValidateDefinitionWarnings(t *testing.T) {
	t.Run("valid definition", func(t *testing.T) {
		warnings, err := ValidateDefinition(linear("valid", runtime.Node{Id: "task", Type: runtime.NodeTypeServiceTask}))
		require.NoError(t, err)
		assert.Empty(t, warnings)
	})

	t.Run("unreachable node", func(t *testing.T) {
		// given
		definition := linear("unreachable")
		definition.Nodes = append(definition.Nodes, runtime.Node{Id: "orphan", Type: runtime.NodeTypeServiceTask})

		// when
		warnings, err := ValidateDefinition(definition)

		// then
		require.NoError(t, err)
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0], "orphan")
	})

	t.Run("cycle", func(t *testing.T) {
		// given
		definition := linear("cyclic", runtime.Node{Id: "a", Type: runtime.NodeTypeServiceTask}, runtime.Node{Id: "b", Type: runtime.NodeTypeServiceTask})
		definition.Edges = append(definition.Edges, runtime.Edge{Id: "back", Source: "b", Target: "a", Condition: "retry"})

		// when
		warnings, err := ValidateDefinition(definition)

		// then
		require.NoError(t, err)
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0], "back")
	})

	t.Run("parallel edges between the same nodes", func(t *testing.T) {
		// given
		definition := linear("parallel-edges", runtime.Node{Id: "check", Type: runtime.NodeTypeGateway})
		definition.Edges = append(definition.Edges, runtime.Edge{Source: "check", Target: "end", Condition: "x > 1"})

		// when
		warnings, err := ValidateDefinition(definition)

		// then
		require.NoError(t, err)
		assert.Empty(t, warnings)
	})
}
