// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"github.com/hashicorp/go-hclog"
	"github.com/pbinitiative/zendecision/pkg/bpmn/exporter"
	"github.com/pbinitiative/zendecision/pkg/decision"
	"github.com/pbinitiative/zendecision/pkg/otel"
	"github.com/pbinitiative/zendecision/pkg/script"
	"github.com/pbinitiative/zendecision/pkg/storage"
	"github.com/senseyeio/duration"
)

type EngineOption = func(*Engine)

func EngineWithExporter(exporter exporter.EventExporter) EngineOption {
	return func(engine *Engine) { engine.AddEventExporter(exporter) }
}

func EngineWithStorage(persistence storage.Storage) EngineOption {
	return func(engine *Engine) {
		engine.persistence = persistence
	}
}

func EngineWithName(name string) EngineOption {
	return func(engine *Engine) {
		engine.name = name
	}
}

// EngineWithDecisionEngine sets the dispatcher used by businessRule nodes. By default a
// dispatcher reading models from the engine storage is created.
func EngineWithDecisionEngine(decisions *decision.Engine) EngineOption {
	return func(engine *Engine) {
		engine.decisions = decisions
	}
}

// EngineWithScriptRuntime sets the runtime evaluating gateway and edge conditions
func EngineWithScriptRuntime(rt script.Runtime) EngineOption {
	return func(engine *Engine) {
		engine.script = rt
	}
}

func EngineWithLogger(logger hclog.Logger) EngineOption {
	return func(engine *Engine) {
		engine.logger = logger
	}
}

func EngineWithMetrics(metrics *otel.EngineMetrics) EngineOption {
	return func(engine *Engine) {
		engine.metrics = metrics
	}
}

// EngineWithDefaultTaskDue sets the due date offset for user tasks that do not declare one
func EngineWithDefaultTaskDue(due duration.Duration) EngineOption {
	return func(engine *Engine) {
		engine.defaultTaskDue = &due
	}
}
