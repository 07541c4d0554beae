// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

// Package profile selects environment dependent defaults from the PROFILE variable.
package profile

import (
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

type ProfileType string

var Current = DEV // dev profile as default

const (
	DEV  ProfileType = "DEV"
	TEST ProfileType = "TEST"
	PROD ProfileType = "PROD"
)

func Parse(value string) (ProfileType, bool) {
	switch ProfileType(strings.ToUpper(strings.TrimSpace(value))) {
	case DEV:
		return DEV, true
	case TEST:
		return TEST, true
	case PROD:
		return PROD, true
	}
	return DEV, false
}

func InitProfile() {
	if p, ok := Parse(os.Getenv("PROFILE")); ok {
		Current = p
	}
}

// LoggerOptions returns the defaults of the process wide logger: colored text while developing,
// JSON in production.
func (p ProfileType) LoggerOptions(name string) *hclog.LoggerOptions {
	opts := &hclog.LoggerOptions{
		Name:  name,
		Level: hclog.Info,
	}
	switch p {
	case PROD:
		opts.JSONFormat = true
	case DEV:
		opts.Color = hclog.AutoColor
		opts.Level = hclog.Debug
	}
	return opts
}
