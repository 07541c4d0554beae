// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package command

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pbinitiative/zendecision/internal/appcontext"
	"github.com/pbinitiative/zendecision/internal/config"
	"github.com/pbinitiative/zendecision/pkg/bpmn/runtime"
	"github.com/urfave/cli/v2"
)

var Run = cli.Command{
	Name:  "run",
	Usage: "execute a process definition once against in-memory storage and print the result",
	Flags: []cli.Flag{
		&cli.PathFlag{Name: "definition", Aliases: []string{"f"}, Usage: "the process definition YAML file", Required: true},
		rulesFlag(),
		&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "the input variables, as a JSON object"},
		&cli.PathFlag{Name: "input-file", Usage: "the input variables, as a JSON file"},
		&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "the user starting the instance"},
		configFlag(),
	},
	Action: func(c *cli.Context) error {
		conf, err := config.Load(c.Path(configFlagName))
		if err != nil {
			return err
		}
		conf.Storage.Driver = config.StorageDriverInMemory
		logger := setupLogger(conf)

		input, err := readInput(c)
		if err != nil {
			return err
		}
		definition, err := readDefinition(c.Path("definition"))
		if err != nil {
			return err
		}

		ctx := c.Context
		if user := c.String("user"); user != "" {
			ctx = appcontext.WithUserId(ctx, user)
		}
		store, closeStore, err := openStorage(ctx, conf.Storage)
		if err != nil {
			return err
		}
		defer closeStore()
		engine, err := newEngine(conf, store, logger, nil)
		if err != nil {
			return err
		}
		if err := loadRules(ctx, c, store, logger); err != nil {
			return err
		}

		res, err := engine.Execute(ctx, definition, input)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, string(out))
		if res.Status == runtime.InstanceStatusFailed {
			return cli.Exit(fmt.Sprintf("process instance %s failed: %s", res.InstanceId, res.ErrorMessage), 2)
		}
		return nil
	},
}

func readInput(c *cli.Context) (map[string]any, error) {
	data := []byte(c.String("input"))
	if path := c.Path("input-file"); path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}
	input := map[string]any{}
	if len(data) == 0 {
		return input, nil
	}
	if err := runtime.DecodeJSON(data, &input); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	return input, nil
}
