// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"context"
	"errors"
	"fmt"
	"hash/adler32"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/pbinitiative/zendecision/pkg/storage"
)

const maxIdAttempts = 5

var (
	globalIdGenerator     *snowflake.Node
	globalIdGeneratorOnce sync.Once
)

func (engine *Engine) generateKey() int64 {
	return engine.snowflake.Generate().Int64()
}

// getGlobalSnowflakeIdGenerator the global ID generator
// constraints: see also CreateSnowflakeIdGenerator
func getGlobalSnowflakeIdGenerator() *snowflake.Node {
	globalIdGeneratorOnce.Do(func() {
		globalIdGenerator = CreateSnowflakeIdGenerator()
	})
	return globalIdGenerator
}

// CreateSnowflakeIdGenerator a new ID generator, the node number is derived from the environment,
// constraints: two processes with the same environment share the node number
func CreateSnowflakeIdGenerator() *snowflake.Node {
	hash32 := adler32.New()
	for _, e := range os.Environ() {
		hash32.Write([]byte(e))
	}
	snowflakeNode, err := snowflake.NewNode(int64(hash32.Sum32() % 1024))
	if err != nil {
		panic("can't initialize snowflake ID generator. Message: " + err.Error())
	}
	return snowflakeNode
}

// newInstanceId returns ids like PI-20240101120000-a1b2c3 not yet used by a stored instance
func (engine *Engine) newInstanceId(ctx context.Context, now time.Time) (string, error) {
	return unusedTimedId(ctx, "PI", now, func(id string) error {
		_, err := engine.persistence.FindProcessInstanceById(ctx, id)
		return err
	})
}

func (engine *Engine) newTaskId(ctx context.Context, now time.Time) (string, error) {
	return unusedTimedId(ctx, "TASK", now, func(id string) error {
		_, err := engine.persistence.FindHumanTaskById(ctx, id)
		return err
	})
}

// unusedTimedId draws ids until find reports one as not found. The insert of the new
// entity still fails with storage.ErrConflict if a concurrent caller took the same id.
func unusedTimedId(ctx context.Context, prefix string, now time.Time, find func(id string) error) (string, error) {
	for range maxIdAttempts {
		id := newTimedId(prefix, now)
		err := find(id)
		if errors.Is(err, storage.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check id %s: %w", id, err)
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", newEngineErrorf("no unused %s id after %d attempts", prefix, maxIdAttempts)
}

func newTimedId(prefix string, now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s-%s-%s", prefix, now.UTC().Format("20060102150405"), random[:6])
}
