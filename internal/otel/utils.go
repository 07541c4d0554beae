// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package otel

import (
	"go.opentelemetry.io/otel/attribute"
)

// EndUserIdKey holds the caller taken from the X-User-Id header
const EndUserIdKey = attribute.Key("enduser.id")

// used by middleware to create context key for configured transfer headers
type TransferHeaderKey string
