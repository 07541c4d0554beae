// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"fmt"
	"testing"

	"github.com/pbinitiative/zendecision/pkg/bpmn/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracer(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tracerprovider := trace.NewTracerProvider(
		trace.WithSyncer(exporter),
	)
	origTracer := otel.GetTracerProvider()
	defer otel.SetTracerProvider(origTracer)
	otel.SetTracerProvider(tracerprovider)

	engine := NewEngine()
	ctx, parent := tracerprovider.Tracer("test-tracer").Start(t.Context(), "parent-test-span")

	res, err := engine.Execute(ctx, linear("traced", runtime.Node{Id: "task", Type: runtime.NodeTypeServiceTask}), nil)
	require.NoError(t, err)
	assert.Equal(t, runtime.InstanceStatusCompleted, res.Status)

	parent.End()

	spans := exporter.GetSpans()
	names := []string{}
	for _, span := range spans {
		names = append(names, span.Name)
		assert.Equal(t, parent.SpanContext().TraceID(), span.SpanContext.TraceID())
	}
	assert.ElementsMatch(t, []string{
		"node:start",
		"node:task",
		"node:end",
		fmt.Sprintf("instance:%s", res.InstanceId),
		"parent-test-span",
	}, names)
}

func TestTracerRecordsFailure(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tracerprovider := trace.NewTracerProvider(
		trace.WithSyncer(exporter),
	)
	origTracer := otel.GetTracerProvider()
	defer otel.SetTracerProvider(origTracer)
	otel.SetTracerProvider(tracerprovider)

	engine := NewEngine()
	res, err := engine.Execute(t.Context(), gatewayDefinition("traced-failure", "amount >"), map[string]any{"amount": 1})
	require.NoError(t, err)
	require.Equal(t, runtime.InstanceStatusFailed, res.Status)

	failed := map[string]bool{}
	for _, span := range exporter.GetSpans() {
		if span.Status.Code == codes.Error {
			failed[span.Name] = true
		}
	}
	assert.True(t, failed["node:check"])
	assert.True(t, failed[fmt.Sprintf("instance:%s", res.InstanceId)])
	assert.False(t, failed["node:start"])
}
