// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/pbinitiative/zendecision/internal/config"
	otelint "github.com/pbinitiative/zendecision/internal/otel"
	otelPkg "github.com/pbinitiative/zendecision/pkg/otel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestOpentelemetry(t *testing.T) {
	o, err := otelint.SetupOtel(config.Tracing{Name: "middleware-test"})
	require.NoError(t, err)
	t.Cleanup(func() { o.Stop(t.Context()) })

	recorder := tracetest.NewSpanRecorder()
	origTracer := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(origTracer) })
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	conf := config.Config{Tracing: config.Tracing{Name: "middleware-test", TransferHeaders: []string{"X-Tenant"}}}
	var tenant any
	router := chi.NewRouter()
	router.Use(Opentelemetry(conf))
	router.Get("/v1/process-instances/{instanceId}/tasks/{taskId}", func(w http.ResponseWriter, r *http.Request) {
		tenant = r.Context().Value(otelint.TransferHeaderKey("X-Tenant"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	})

	t.Run("span is named after the route and carries path ids", func(t *testing.T) {
		// given
		req := httptest.NewRequest(http.MethodGet, "/v1/process-instances/PI-20240101120000-a1b2c3/tasks/TASK-1", nil)
		req.Header.Set("X-Tenant", "acme")
		rec := httptest.NewRecorder()

		// when
		router.ServeHTTP(rec, req)

		// then
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "acme", tenant)
		spans := recorder.Ended()
		require.Len(t, spans, 1)
		span := spans[0]
		assert.Equal(t, "GET /v1/process-instances/{instanceId}/tasks/{taskId}", span.Name())
		attributes := map[attribute.Key]attribute.Value{}
		for _, kv := range span.Attributes() {
			attributes[kv.Key] = kv.Value
		}
		assert.Equal(t, "PI-20240101120000-a1b2c3", attributes[attribute.Key(otelPkg.AttributeProcessInstanceId)].AsString())
		assert.Equal(t, "TASK-1", attributes[attribute.Key(otelPkg.AttributeTaskId)].AsString())
		assert.Equal(t, "acme", attributes["X-Tenant"].AsString())
		assert.Equal(t, "/v1/process-instances/{instanceId}/tasks/{taskId}", attributes["http.route"].AsString())
	})
}
