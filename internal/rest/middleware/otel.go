// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package middleware

import (
	"context"
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/go-chi/chi/v5"
	"github.com/pbinitiative/zendecision/internal/config"
	otelint "github.com/pbinitiative/zendecision/internal/otel"
	otelPkg "github.com/pbinitiative/zendecision/pkg/otel"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Opentelemetry returns middleware that traces and meters incoming requests. The server span
// is named after the matched chi route and carries the engine ids found in the path.
func Opentelemetry(conf config.Config) func(next http.Handler) http.Handler {
	transferHeaders := conf.Tracing.TransferHeaders
	return func(next http.Handler) http.Handler {
		observed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			span := trace.SpanFromContext(r.Context())
			span.SetAttributes(transferHeaderAttributes(r, transferHeaders)...)
			r = r.WithContext(transferHeadersCtx(r.Context(), r, transferHeaders))

			served := httpsnoop.CaptureMetrics(next, w, r)

			routePattern := ""
			if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
				routePattern = routeCtx.RoutePattern()
				span.SetAttributes(routeParamAttributes(routeCtx)...)
			}
			if routePattern != "" {
				span.SetName(r.Method + " " + routePattern)
				span.SetAttributes(semconv.HTTPRoute(routePattern))
			}
			recordRequest(r, routePattern, served)
		})
		return otelhttp.NewHandler(observed, conf.Tracing.Name,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method
			}),
		)
	}
}

func recordRequest(r *http.Request, routePattern string, served httpsnoop.Metrics) {
	tags := metric.WithAttributes(
		attribute.String("path", routePattern),
		attribute.String("method", r.Method),
		attribute.Int("status", served.Code),
	)
	otelint.RequestTotal.Add(r.Context(), 1)
	otelint.RequestUriTotal.Add(r.Context(), 1, tags)
	if r.ContentLength > 0 {
		otelint.RequestBodySize.Add(r.Context(), float64(r.ContentLength), tags)
	}
	if served.Written > 0 {
		otelint.ResponseBodySize.Add(r.Context(), float64(served.Written), tags)
	}
	otelint.RequestDuration.Record(r.Context(), float64(served.Duration.Microseconds())/1000, tags)
}

// routeParamAttributes links the request span to the engine entities named in the path
func routeParamAttributes(routeCtx *chi.Context) []attribute.KeyValue {
	attributes := []attribute.KeyValue{}
	for i, key := range routeCtx.URLParams.Keys {
		if i >= len(routeCtx.URLParams.Values) {
			break
		}
		name, ok := routeParamAttributeNames[key]
		if !ok {
			continue
		}
		attributes = append(attributes, attribute.String(name, routeCtx.URLParams.Values[i]))
	}
	return attributes
}

var routeParamAttributeNames = map[string]string{
	"key":        otelPkg.AttributeProcessDefinitionKey,
	"processId":  otelPkg.AttributeProcessId,
	"instanceId": otelPkg.AttributeProcessInstanceId,
	"taskId":     otelPkg.AttributeTaskId,
	"ruleType":   otelPkg.AttributeRuleType,
	"ruleId":     otelPkg.AttributeRuleId,
}

func transferHeadersCtx(ctx context.Context, r *http.Request, transferHeaders []string) context.Context {
	for _, header := range transferHeaders {
		ctx = context.WithValue(ctx, otelint.TransferHeaderKey(header), r.Header.Get(header))
	}
	return ctx
}

func transferHeaderAttributes(r *http.Request, transferHeaders []string) []attribute.KeyValue {
	attributes := make([]attribute.KeyValue, len(transferHeaders))
	for i, header := range transferHeaders {
		attributes[i] = attribute.String(header, r.Header.Get(header))
	}
	return attributes
}
