// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pbinitiative/zendecision/pkg/bpmn/runtime"
	"github.com/pbinitiative/zendecision/pkg/storage"
	"gopkg.in/yaml.v3"
)

// ParseDefinition decodes a process definition from YAML. JSON documents are valid YAML.
func ParseDefinition(data []byte) (runtime.ProcessDefinition, error) {
	var definition runtime.ProcessDefinition
	if err := yaml.Unmarshal(data, &definition); err != nil {
		return definition, fmt.Errorf("failed to unmarshal process definition: %w", err)
	}
	return definition, nil
}

// LoadFromFile loads a given definition file by filename into the engine
// and returns the stored definition
func (engine *Engine) LoadFromFile(ctx context.Context, filename string) (*runtime.ProcessDefinition, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to load from file: %w", err)
	}
	return engine.load(ctx, data, filename)
}

// LoadFromBytes loads a given definition document into the engine
// and returns the stored definition
func (engine *Engine) LoadFromBytes(ctx context.Context, data []byte, resourceName string) (*runtime.ProcessDefinition, error) {
	def, err := engine.load(ctx, data, resourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to load from bytes: %w", err)
	}
	return def, nil
}

func (engine *Engine) load(ctx context.Context, data []byte, resourceName string) (*runtime.ProcessDefinition, error) {
	definition, err := ParseDefinition(data)
	if err != nil {
		return nil, err
	}
	stored, err := engine.saveProcessDefinition(ctx, definition, resourceName)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// SaveProcessDefinition validates the definition and stores it as the next version of its id.
// When the latest stored version has the same content it is returned instead.
func (engine *Engine) SaveProcessDefinition(ctx context.Context, definition runtime.ProcessDefinition) (runtime.ProcessDefinition, error) {
	return engine.saveProcessDefinition(ctx, definition, "")
}

func (engine *Engine) saveProcessDefinition(ctx context.Context, definition runtime.ProcessDefinition, resourceName string) (runtime.ProcessDefinition, error) {
	warnings, err := ValidateDefinition(definition)
	if err != nil {
		return runtime.ProcessDefinition{}, err
	}
	for _, w := range warnings {
		engine.logger.Warn("process definition warning", "processId", definition.Id, "warning", w)
	}
	checksum, err := definitionChecksum(definition)
	if err != nil {
		return runtime.ProcessDefinition{}, err
	}

	definition.Version = 1
	definition.Checksum = checksum
	latest, err := engine.persistence.FindLatestProcessDefinitionById(ctx, definition.Id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return runtime.ProcessDefinition{}, fmt.Errorf("failed to load processes by id %s: %w", definition.Id, err)
	case latest.Checksum == checksum:
		return latest, nil
	default:
		definition.Version = latest.Version + 1
	}
	definition.Key = engine.generateKey()
	definition.CreatedAt = time.Now()

	err = engine.persistence.SaveProcessDefinition(ctx, definition)
	if err != nil {
		return runtime.ProcessDefinition{}, fmt.Errorf("failed to save process definition: %w", err)
	}
	engine.logger.Info("process definition saved", "processId", definition.Id, "key", definition.Key, "version", definition.Version)
	engine.exportNewProcessEvent(definition, resourceName)
	return definition, nil
}

// definitionChecksum identifies the content of a definition, independent of key and version
func definitionChecksum(definition runtime.ProcessDefinition) ([16]byte, error) {
	content, err := json.Marshal(struct {
		Id          string         `json:"id"`
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Nodes       []runtime.Node `json:"nodes"`
		Edges       []runtime.Edge `json:"edges"`
	}{definition.Id, definition.Name, definition.Description, definition.Nodes, definition.Edges})
	if err != nil {
		return [16]byte{}, fmt.Errorf("failed to compute checksum of %s: %w", definition.Id, err)
	}
	return md5.Sum(content), nil
}
