// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package otel

import (
	"errors"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type EngineMetrics struct {
	ProcessesStarted   metric.Int64Counter
	ProcessesEnded     metric.Int64Counter
	ProcessesRunning   metric.Int64UpDownCounter
	ProcessesFailed    metric.Int64Counter
	NodesExecuted      metric.Int64Counter
	UserTasksCreated   metric.Int64Counter
	UserTasksCompleted metric.Int64Counter
	RulesExecuted      metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*EngineMetrics, error) {
	var errJoin error

	processesStarted, err := meter.Int64Counter("processes_started", metric.WithDescription("Number of process instances started"))
	errJoin = errors.Join(errJoin, err)

	processesEnded, err := meter.Int64Counter("processes_ended", metric.WithDescription("Number of process instances that reached a terminal state"))
	errJoin = errors.Join(errJoin, err)

	processesRunning, err := meter.Int64UpDownCounter("processes_running", metric.WithDescription("Number of process instances currently running"))
	errJoin = errors.Join(errJoin, err)

	processesFailed, err := meter.Int64Counter("processes_failed", metric.WithDescription("Number of process instances failed"))
	errJoin = errors.Join(errJoin, err)

	nodesExecuted, err := meter.Int64Counter("nodes_executed", metric.WithDescription("Number of node visits"))
	errJoin = errors.Join(errJoin, err)

	userTasksCreated, err := meter.Int64Counter("user_tasks_created", metric.WithDescription("Number of human tasks created"))
	errJoin = errors.Join(errJoin, err)

	userTasksCompleted, err := meter.Int64Counter("user_tasks_completed", metric.WithDescription("Number of human tasks completed"))
	errJoin = errors.Join(errJoin, err)

	rulesExecuted, err := meter.Int64Counter("rules_executed", metric.WithDescription("Number of rule model evaluations"))
	errJoin = errors.Join(errJoin, err)

	metrics := EngineMetrics{
		ProcessesStarted:   processesStarted,
		ProcessesEnded:     processesEnded,
		ProcessesRunning:   processesRunning,
		ProcessesFailed:    processesFailed,
		NodesExecuted:      nodesExecuted,
		UserTasksCreated:   userTasksCreated,
		UserTasksCompleted: userTasksCompleted,
		RulesExecuted:      rulesExecuted,
	}
	return &metrics, errJoin
}

// NoopMetrics returns instruments that record nothing.
func NoopMetrics() *EngineMetrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter("noop"))
	return m
}
