// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package appcontext

import (
	"context"
)

type EXECUTION_CONTEXT string

var (
	ExecutionKey EXECUTION_CONTEXT = "executionKey"
	UserIdKey    EXECUTION_CONTEXT = "userId"
)

func GetExecutionContext(ctx context.Context) (int64, bool) {
	executionContextKey, ok := ctx.Value(ExecutionKey).(int64)
	return executionContextKey, ok
}

// WithUserId marks ctx as acting on behalf of userId. The process engine records it as the
// starter of new instances.
func WithUserId(ctx context.Context, userId string) context.Context {
	return context.WithValue(ctx, UserIdKey, userId)
}

func UserIdFromContext(ctx context.Context) (string, bool) {
	userId, ok := ctx.Value(UserIdKey).(string)
	return userId, ok && userId != ""
}
