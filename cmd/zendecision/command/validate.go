// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package command

import (
	"fmt"

	"github.com/pbinitiative/zendecision/pkg/bpmn"
	"github.com/urfave/cli/v2"
)

var Validate = cli.Command{
	Name:  "validate",
	Usage: "check a process definition without running it",
	Flags: []cli.Flag{
		&cli.PathFlag{Name: "definition", Aliases: []string{"f"}, Usage: "the process definition YAML file", Required: true},
	},
	Action: func(c *cli.Context) error {
		definition, err := readDefinition(c.Path("definition"))
		if err != nil {
			return err
		}
		warnings, err := bpmn.ValidateDefinition(definition)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		for _, w := range warnings {
			fmt.Fprintf(c.App.Writer, "warning: %s\n", w)
		}
		fmt.Fprintf(c.App.Writer, "%s is valid: %d nodes, %d edges\n", definition.Id, len(definition.Nodes), len(definition.Edges))
		return nil
	},
}
