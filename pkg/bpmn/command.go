// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"github.com/pbinitiative/zendecision/pkg/bpmn/runtime"
)

type command interface {
}

// ---------------------------------------------------------------------

type flowTransitionCommand struct {
	sourceId string
	edge     runtime.Edge
}

// ---------------------------------------------------------------------

type activityCommand struct {
	sourceEdgeId string
	node         runtime.Node
}

// ---------------------------------------------------------------------

// continueActivityCommand leaves a suspended node once its user task is completed.
type continueActivityCommand struct {
	nodeInstance runtime.NodeInstance
	output       map[string]any
}

// ---------------------------------------------------------------------

type errorCommand struct {
	err       error
	nodeId    string
	nodeLabel string
}
