// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package command

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/pbinitiative/zendecision/internal/otel"
	"github.com/pbinitiative/zendecision/internal/rest"
	"github.com/urfave/cli/v2"
)

var Serve = cli.Command{
	Name:  "serve",
	Usage: "start the REST server",
	Flags: []cli.Flag{
		configFlag(),
		rulesFlag(),
		&cli.PathFlag{Name: "definitions", Aliases: []string{"d"}, Usage: "directory with process definitions deployed on start"},
	},
	Action: func(c *cli.Context) error {
		appContext, ctxCancel := context.WithCancel(c.Context)
		defer ctxCancel()

		conf, err := loadConfig(c)
		if err != nil {
			return err
		}
		logger := setupLogger(conf)

		openTelemetry, err := otel.SetupOtel(conf.Tracing)
		if err != nil {
			return fmt.Errorf("failed to set up OTEL: %w", err)
		}
		defer openTelemetry.Stop(context.Background())

		store, closeStore, err := openStorage(appContext, conf.Storage)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		defer func() {
			if err := closeStore(); err != nil {
				logger.Error("failed to close storage", "err", err)
			}
		}()

		engine, err := newEngine(conf, store, logger, openTelemetry.EngineMetrics)
		if err != nil {
			return err
		}
		if err := loadRules(appContext, c, store, logger); err != nil {
			return err
		}
		if dir := c.Path("definitions"); dir != "" {
			definitions, err := loadDefinitions(appContext, &engine, dir)
			if err != nil {
				return err
			}
			for _, d := range definitions {
				logger.Info("process definition deployed", "processId", d.Id, "key", d.Key, "version", d.Version)
			}
		}

		svr := rest.NewServer(&engine, conf)
		if svr.Start() == nil {
			return fmt.Errorf("failed to start REST server on %s", conf.Server.Addr)
		}

		appStop := make(chan os.Signal, 2)
		handleSigterm(appStop, logger)

		ctxCancel()
		svr.Stop(context.Background())
		return nil
	},
}

func handleSigterm(appStop chan os.Signal, logger hclog.Logger) {
	signal.Notify(appStop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	sig := <-appStop
	logger.Info(fmt.Sprintf("Received %s. Shutting down", sig.String()))
}
