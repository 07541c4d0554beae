// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package script_test

import (
	"testing"

	"github.com/pbinitiative/zendecision/pkg/script"
	"github.com/pbinitiative/zendecision/pkg/script/expr"
	"github.com/stretchr/testify/assert"
)

func Test_safe_condition_degrades_errors_to_false(t *testing.T) {
	rt := expr.NewRuntime(8)

	assert.True(t, script.SafeCondition(rt, "a > 1", map[string]any{"a": 2}))
	assert.False(t, script.SafeCondition(rt, "b > 1", map[string]any{"a": 2}))
	assert.False(t, script.SafeCondition(rt, "a >", map[string]any{"a": 2}))
}

func Test_safe_execute_degrades_errors_to_no_bindings(t *testing.T) {
	rt := expr.NewRuntime(8)

	changes, msg := script.SafeExecute(rt, "x = a + 1", map[string]any{"a": 2})
	assert.Empty(t, msg)
	assert.Equal(t, map[string]any{"x": int64(3)}, changes)

	changes, msg = script.SafeExecute(rt, "x = missing + 1", map[string]any{"a": 2})
	assert.NotEmpty(t, msg)
	assert.Empty(t, changes)
}
