// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package main

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewApp(t *testing.T) {
	t.Run("registers every command", func(t *testing.T) {
		app := newApp()

		for _, name := range []string{"serve", "run", "validate", "graph"} {
			assert.NotNil(t, app.Command(name), name)
		}
	})

	t.Run("command errors are returned to main", func(t *testing.T) {
		// given
		app := newApp()
		app.Writer = io.Discard
		app.ErrWriter = io.Discard

		// when
		err := app.Run([]string{"zendecision", "validate"})

		// then
		assert.ErrorContains(t, err, "definition")
	})
}
