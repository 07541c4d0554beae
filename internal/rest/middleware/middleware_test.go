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

	"github.com/pbinitiative/zendecision/internal/appcontext"
	"github.com/stretchr/testify/assert"
)

func TestStripEmptyQueryParams(t *testing.T) {
	// given
	var got string
	handler := StripEmptyQueryParams()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.RawQuery
	}))
	req := httptest.NewRequest(http.MethodGet, "/v1/tasks?user=alice&status=&status=%20READY%20&page=", nil)

	// when
	handler.ServeHTTP(httptest.NewRecorder(), req)

	// then
	assert.Equal(t, "status=READY&user=alice", got)
}

func TestUserId(t *testing.T) {
	var (
		userId string
		found  bool
	)
	handler := UserId()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userId, found = appcontext.UserIdFromContext(r.Context())
	}))

	t.Run("header is stored in context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(UserIdHeader, " alice ")

		handler.ServeHTTP(httptest.NewRecorder(), req)

		assert.True(t, found)
		assert.Equal(t, "alice", userId)
	})

	t.Run("no header", func(t *testing.T) {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		assert.False(t, found)
	})
}

func TestCorsAllowsUserIdHeader(t *testing.T) {
	// given
	handler := Cors([]string{"https://tasks.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodOptions, "/v1/tasks", nil)
	req.Header.Set("Origin", "https://tasks.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", UserIdHeader)
	rec := httptest.NewRecorder()

	// when
	handler.ServeHTTP(rec, req)

	// then
	assert.Equal(t, "https://tasks.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}
