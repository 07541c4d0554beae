// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/senseyeio/duration"
)

const (
	StorageDriverInMemory = "inmemory"
	StorageDriverSqlite   = "sqlite"
)

type Config struct {
	Name    string  `yaml:"name" json:"name" env:"APP_NAME" env-default:"zendecision"` // used for OTEL as an application identifier
	Server  Server  `yaml:"server" json:"server"`                                      // configuration of the public REST server
	Storage Storage `yaml:"storage" json:"storage"`
	Engine  Engine  `yaml:"engine" json:"engine"`
	Tracing Tracing `yaml:"tracing" json:"tracing"`
	Log     Log     `yaml:"log" json:"log"`
}

type Server struct {
	Context string `yaml:"context" json:"context" env:"REST_API_CONTEXT" env-default:"/"`
	Addr    string `yaml:"addr" json:"addr" env:"REST_API_ADDR" env-default:":8080"`
	// AllowedOrigins of cross-origin requests, all origins when empty
	AllowedOrigins []string `yaml:"allowedOrigins" json:"allowedOrigins" env:"REST_API_ALLOWED_ORIGINS"`
}

type Storage struct {
	// Driver is one of inmemory, sqlite
	Driver string `yaml:"driver" json:"driver" env:"STORAGE_DRIVER" env-default:"inmemory"`
	Dsn    string `yaml:"dsn" json:"dsn" env:"STORAGE_DSN" env-default:"file:zendecision.db?_pragma=journal_mode(WAL)"`
}

type Engine struct {
	ModelCacheSize      int `yaml:"modelCacheSize" json:"modelCacheSize" env:"ENGINE_MODEL_CACHE_SIZE" env-default:"128"`
	ExpressionCacheSize int `yaml:"expressionCacheSize" json:"expressionCacheSize" env:"ENGINE_EXPRESSION_CACHE_SIZE" env-default:"1024"`
	// DefaultTaskDue is an ISO-8601 duration applied to user tasks without their own due
	DefaultTaskDue string `yaml:"defaultTaskDue" json:"defaultTaskDue" env:"ENGINE_DEFAULT_TASK_DUE"`
}

type Tracing struct {
	Enabled         bool     `yaml:"enabled" json:"enabled" env:"OTEL_ENABLED" env-default:"false"`
	Endpoint        string   `yaml:"endpoint" json:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TransferHeaders []string `yaml:"transferHeaders" json:"transferHeaders" env:"OTEL_TRANSFER_HEADERS"`
	Name            string   `yaml:"-" json:"-"`
}

type Log struct {
	Level string `yaml:"level" json:"level" env:"LOG_LEVEL" env-default:"info"`
	Json  bool   `yaml:"json" json:"json" env:"LOG_JSON" env-default:"false"`
}

// DefaultTaskDueDuration parses Engine.DefaultTaskDue. nil means tasks have no default due date.
func (e Engine) DefaultTaskDueDuration() (*duration.Duration, error) {
	if e.DefaultTaskDue == "" {
		return nil, nil
	}
	d, err := duration.ParseISO8601(e.DefaultTaskDue)
	if err != nil {
		return nil, fmt.Errorf("invalid engine.defaultTaskDue %q: %w", e.DefaultTaskDue, err)
	}
	return &d, nil
}

// HclogLevel maps Log.Level to a hclog level, unknown values fall back to info
func (l Log) HclogLevel() hclog.Level {
	level := hclog.LevelFromString(l.Level)
	if level == hclog.NoLevel {
		return hclog.Info
	}
	return level
}

func (c Config) defaults() Config {
	c.Tracing.Name = c.Name
	return c
}

func (c Config) validate() error {
	switch c.Storage.Driver {
	case StorageDriverInMemory, StorageDriverSqlite:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == StorageDriverSqlite && c.Storage.Dsn == "" {
		return errors.New("storage.dsn is required for the sqlite driver")
	}
	if _, err := c.Engine.DefaultTaskDueDuration(); err != nil {
		return err
	}
	return nil
}

// Load reads the configuration from fileName. When the file does not exist the configuration
// is read from environment variables only.
func Load(fileName string) (Config, error) {
	c := Config{}
	var err error
	if _, perr := os.Stat(fileName); errors.Is(perr, os.ErrNotExist) {
		err = cleanenv.ReadEnv(&c)
	} else {
		err = cleanenv.ReadConfig(fileName, &c)
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read configuration: %w", err)
	}
	c = c.defaults()
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// InitConfig loads the file named by CONFIG_FILE, conf.yaml of the working directory by default
func InitConfig() Config {
	fileName := os.Getenv("CONFIG_FILE")
	if fileName == "" {
		wd, err := os.Getwd()
		if err != nil {
			panic(err)
		}
		fileName = filepath.Join(wd, "conf.yaml")
	}
	if _, err := os.Stat(fileName); errors.Is(err, os.ErrNotExist) {
		fmt.Printf("Configuration file %s not found. Reading config from ENV.\n", fileName)
	}
	c, err := Load(fileName)
	if err != nil {
		fmt.Printf("Error occurred while reading the configuration: %s\n", err)
		panic(err)
	}
	return c
}
