// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package appcontext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserId(t *testing.T) {
	ctx := WithUserId(context.Background(), "alice")

	valFromCtx, found := UserIdFromContext(ctx)
	assert.True(t, found)
	assert.Equal(t, "alice", valFromCtx)

	valFromCtx, found = UserIdFromContext(context.Background())
	assert.False(t, found)
	assert.Equal(t, "", valFromCtx)

	_, found = UserIdFromContext(WithUserId(context.Background(), ""))
	assert.False(t, found)
}

func TestExecutionKey(t *testing.T) {
	ctx := context.WithValue(context.Background(), ExecutionKey, int64(42))

	key, found := GetExecutionContext(ctx)
	assert.True(t, found)
	assert.Equal(t, int64(42), key)

	_, found = GetExecutionContext(context.Background())
	assert.False(t, found)
}
