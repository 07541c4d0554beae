// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package middleware

import (
	"net/http"
	"strings"

	"github.com/pbinitiative/zendecision/internal/appcontext"
	otelint "github.com/pbinitiative/zendecision/internal/otel"
	"go.opentelemetry.io/otel/trace"
)

const UserIdHeader = "X-User-Id"

// UserId stores the caller from the X-User-Id header in the request context
func UserId() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userId := strings.TrimSpace(r.Header.Get(UserIdHeader))
			if userId != "" {
				trace.SpanFromContext(r.Context()).SetAttributes(otelint.EndUserIdKey.String(userId))
				r = r.WithContext(appcontext.WithUserId(r.Context(), userId))
			}
			next.ServeHTTP(w, r)
		})
	}
}
