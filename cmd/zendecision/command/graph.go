// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package command

import (
	"github.com/pbinitiative/zendecision/pkg/bpmn"
	"github.com/urfave/cli/v2"
)

var Graph = cli.Command{
	Name:  "graph",
	Usage: "print a process definition in Graphviz DOT format",
	Flags: []cli.Flag{
		&cli.PathFlag{Name: "definition", Aliases: []string{"f"}, Usage: "the process definition YAML file", Required: true},
	},
	Action: func(c *cli.Context) error {
		definition, err := readDefinition(c.Path("definition"))
		if err != nil {
			return err
		}
		return bpmn.WriteDOT(definition, nil, c.App.Writer)
	},
}
