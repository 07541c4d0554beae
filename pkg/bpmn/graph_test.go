// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"bytes"
	"os"
	"testing"

	"github.com/pbinitiative/zendecision/pkg/bpmn/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDOT(t *testing.T) {
	// given
	data, err := os.ReadFile("./test-cases/loan-approval.yaml")
	require.NoError(t, err)
	definition, err := ParseDefinition(data)
	require.NoError(t, err)

	// when
	var out bytes.Buffer
	err = WriteDOT(definition, map[string]runtime.NodeInstanceStatus{
		"start":  runtime.NodeInstanceStatusCompleted,
		"review": runtime.NodeInstanceStatusActive,
	}, &out)

	// then
	require.NoError(t, err)
	dot := out.String()
	assert.Contains(t, dot, "digraph")
	assert.Contains(t, dot, `"amount-check" -> "review"`)
	assert.Contains(t, dot, "gateway_result")
	assert.Contains(t, dot, "#89CFF0")
	assert.Contains(t, dot, "diamond")
}

func TestWriteDOTRejectsInvalidDefinition(t *testing.T) {
	data, err := os.ReadFile("./test-cases/invalid-dangling-edge.yaml")
	require.NoError(t, err)
	definition, err := ParseDefinition(data)
	require.NoError(t, err)

	err = WriteDOT(definition, nil, &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrDanglingEdge)
}
