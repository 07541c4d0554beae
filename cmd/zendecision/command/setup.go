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
	"path/filepath"
	"slices"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/pbinitiative/zendecision/internal/config"
	"github.com/pbinitiative/zendecision/internal/profile"
	"github.com/pbinitiative/zendecision/pkg/bpmn"
	"github.com/pbinitiative/zendecision/pkg/bpmn/exporter/logexporter"
	"github.com/pbinitiative/zendecision/pkg/bpmn/runtime"
	"github.com/pbinitiative/zendecision/pkg/decision"
	pkgotel "github.com/pbinitiative/zendecision/pkg/otel"
	"github.com/pbinitiative/zendecision/pkg/script/expr"
	"github.com/pbinitiative/zendecision/pkg/storage"
	"github.com/pbinitiative/zendecision/pkg/storage/inmemory"
	"github.com/pbinitiative/zendecision/pkg/storage/sqlite"
	"github.com/urfave/cli/v2"
)

const sqliteNodeId = 1

const (
	configFlagName = "config"
	rulesFlagName  = "rules"
)

func configFlag() cli.Flag {
	return &cli.PathFlag{Name: configFlagName, Aliases: []string{"c"}, Usage: "configuration file, defaults to $CONFIG_FILE or ./conf.yaml"}
}

func rulesFlag() cli.Flag {
	return &cli.PathFlag{Name: rulesFlagName, Aliases: []string{"r"}, Usage: "directory with rule model YAML files"}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	if path := c.Path(configFlagName); path != "" {
		return config.Load(path)
	}
	return config.InitConfig(), nil
}

// setupLogger replaces the default hclog logger. Explicit log configuration wins over the profile defaults.
func setupLogger(conf config.Config) hclog.Logger {
	opts := profile.Current.LoggerOptions(conf.Name)
	if conf.Log.Level != "" {
		opts.Level = conf.Log.HclogLevel()
	}
	if conf.Log.Json {
		opts.JSONFormat = true
		opts.Color = hclog.ColorOff
	}
	logger := hclog.New(opts)
	hclog.SetDefault(logger)
	return logger
}

func openStorage(ctx context.Context, conf config.Storage) (storage.Storage, func() error, error) {
	switch conf.Driver {
	case config.StorageDriverSqlite:
		store, err := sqlite.New(ctx, conf.Dsn, sqliteNodeId)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.StorageDriverInMemory, "":
		return inmemory.NewStorage(), func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", conf.Driver)
}

func newEngine(conf config.Config, store storage.Storage, logger hclog.Logger, metrics *pkgotel.EngineMetrics) (bpmn.Engine, error) {
	scripts := expr.NewRuntime(conf.Engine.ExpressionCacheSize)
	if metrics == nil {
		metrics = pkgotel.NoopMetrics()
	}
	decisions := decision.NewEngine(store,
		decision.EngineWithModelCacheSize(conf.Engine.ModelCacheSize),
		decision.EngineWithScriptRuntime(scripts),
		decision.EngineWithLogger(logger.Named("decision-engine")),
		decision.EngineWithMetrics(metrics),
	)
	options := []bpmn.EngineOption{
		bpmn.EngineWithStorage(store),
		bpmn.EngineWithName(conf.Name),
		bpmn.EngineWithDecisionEngine(decisions),
		bpmn.EngineWithScriptRuntime(scripts),
		bpmn.EngineWithLogger(logger.Named("bpmn-engine")),
		bpmn.EngineWithMetrics(metrics),
		bpmn.EngineWithExporter(logexporter.NewExporter(logger.Named("events"), hclog.Debug)),
	}
	due, err := conf.Engine.DefaultTaskDueDuration()
	if err != nil {
		return bpmn.Engine{}, err
	}
	if due != nil {
		options = append(options, bpmn.EngineWithDefaultTaskDue(*due))
	}
	return bpmn.NewEngine(options...), nil
}

func loadRules(ctx context.Context, c *cli.Context, store storage.Storage, logger hclog.Logger) error {
	dir := c.Path(rulesFlagName)
	if dir == "" {
		return nil
	}
	refs, err := decision.LoadRulesFromDir(ctx, store, dir)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		logger.Info("rule loaded", "ruleType", ref.RuleType, "ruleId", ref.RuleId)
	}
	return nil
}

// loadDefinitions deploys every .yaml/.yml file of dir
func loadDefinitions(ctx context.Context, engine *bpmn.Engine, dir string) ([]*runtime.ProcessDefinition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions directory %s: %w", dir, err)
	}
	slices.SortFunc(entries, func(a, b os.DirEntry) int {
		return strings.Compare(a.Name(), b.Name())
	})
	definitions := make([]*runtime.ProcessDefinition, 0, len(entries))
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		definition, err := engine.LoadFromFile(ctx, filepath.Join(dir, e.Name()))
		if err != nil {
			return definitions, fmt.Errorf("%s: %w", e.Name(), err)
		}
		definitions = append(definitions, definition)
	}
	return definitions, nil
}

func readDefinition(path string) (runtime.ProcessDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return runtime.ProcessDefinition{}, err
	}
	return bpmn.ParseDefinition(data)
}
