// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"errors"
	"testing"
	"time"

	"github.com/pbinitiative/zendecision/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimedIds(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.FixedZone("CET", 3600))

	instanceId, err := bpmnEngine.newInstanceId(t.Context(), now)
	require.NoError(t, err)
	taskId, err := bpmnEngine.newTaskId(t.Context(), now)
	require.NoError(t, err)

	assert.Regexp(t, `^PI-20240309130507-[0-9a-f]{6}$`, instanceId)
	assert.Regexp(t, `^TASK-20240309130507-[0-9a-f]{6}$`, taskId)
	assert.NotEqual(t, instanceId, newTimedId("PI", now))
}

func TestUnusedTimedIdSkipsTakenIds(t *testing.T) {
	now := time.Now()

	t.Run("redraws while the id exists", func(t *testing.T) {
		// given
		var tried []string

		// when
		id, err := unusedTimedId(t.Context(), "PI", now, func(id string) error {
			tried = append(tried, id)
			if len(tried) < 3 {
				return nil
			}
			return storage.ErrNotFound
		})

		// then
		require.NoError(t, err)
		assert.Len(t, tried, 3)
		assert.Equal(t, tried[2], id)
	})

	t.Run("gives up when every id is taken", func(t *testing.T) {
		_, err := unusedTimedId(t.Context(), "TASK", now, func(string) error { return nil })

		var engineErr *BpmnEngineError
		assert.ErrorAs(t, err, &engineErr)
	})

	t.Run("storage failure", func(t *testing.T) {
		failure := errors.New("disk gone")

		_, err := unusedTimedId(t.Context(), "PI", now, func(string) error { return failure })

		assert.ErrorIs(t, err, failure)
	})
}

func TestGeneratedKeysAreUnique(t *testing.T) {
	seen := map[int64]bool{}
	for range 1000 {
		key := bpmnEngine.generateKey()
		assert.False(t, seen[key])
		seen[key] = true
	}
}
