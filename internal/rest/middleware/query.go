// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package middleware

import (
	"net/http"
	"net/url"
	"strings"
)

// StripEmptyQueryParams trims query values and drops the blank ones, so `?status=&page=`
// behaves like the parameters were never sent.
func StripEmptyQueryParams() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.RawQuery == "" {
				next.ServeHTTP(w, r)
				return
			}
			r.URL.RawQuery = cleanQuery(r.URL.Query()).Encode()
			next.ServeHTTP(w, r)
		})
	}
}

func cleanQuery(query url.Values) url.Values {
	cleaned := make(url.Values, len(query))
	for key, values := range query {
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				cleaned[key] = append(cleaned[key], v)
			}
		}
	}
	return cleaned
}
