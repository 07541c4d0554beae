// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMigrationsAreOrdered(t *testing.T) {
	migs, err := GetMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migs)
	assert.Equal(t, "001_init.sql", migs[0].Name)
	assert.Contains(t, migs[0].Statement, "CREATE TABLE IF NOT EXISTS human_task")
	for i := 1; i < len(migs); i++ {
		assert.Less(t, migs[i-1].Name, migs[i].Name)
	}
}

func TestToNullString(t *testing.T) {
	assert.False(t, ToNullString("").Valid)
	assert.Equal(t, "alice", ToNullString("alice").String)
}
