// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSONKeepsIntegers(t *testing.T) {
	t.Run("untyped values inside structs", func(t *testing.T) {
		// given
		data := []byte(`{"task_id":"TASK-1","priority":3,"form_data":{"limit":10,"rate":0.25,"tiers":[1,2.5,{"n":7}]}}`)

		// when
		var task HumanTask
		err := DecodeJSON(data, &task)

		// then
		require.NoError(t, err)
		assert.Equal(t, 3, task.Priority)
		assert.Equal(t, int64(10), task.FormData["limit"])
		assert.Equal(t, 0.25, task.FormData["rate"])
		assert.Equal(t, []any{int64(1), 2.5, map[string]any{"n": int64(7)}}, task.FormData["tiers"])
	})

	t.Run("plain map", func(t *testing.T) {
		var input map[string]any

		require.NoError(t, DecodeJSON([]byte(`{"grade":1,"items":["a","b"],"score":1e3}`), &input))

		assert.Equal(t, int64(1), input["grade"])
		assert.Equal(t, 1000.0, input["score"])
	})

	t.Run("slice of maps", func(t *testing.T) {
		var samples []map[string]any

		require.NoError(t, DecodeJSON([]byte(`[{"income":4000},{"income":6000.5}]`), &samples))

		assert.Equal(t, int64(4000), samples[0]["income"])
		assert.Equal(t, 6000.5, samples[1]["income"])
	})

	t.Run("invalid document", func(t *testing.T) {
		var input map[string]any

		assert.Error(t, DecodeJSON([]byte(`{"grade":`), &input))
	})
}
