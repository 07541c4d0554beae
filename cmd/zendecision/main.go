// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package main

import (
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/pbinitiative/zendecision/cmd/zendecision/command"
	"github.com/pbinitiative/zendecision/internal/profile"
	"github.com/urfave/cli/v2"
)

func main() {
	profile.InitProfile()

	if err := newApp().Run(os.Args); err != nil {
		hclog.Default().Error("zendecision failed", "err", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "zendecision",
		Usage: "process orchestration with embedded decision models",
		Commands: []*cli.Command{
			&command.Serve,
			&command.Run,
			&command.Validate,
			&command.Graph,
		},
	}
}
