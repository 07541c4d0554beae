// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"sync"
)

type RunningInstance struct {
	mu      sync.Mutex
	holders int
}

// RunningInstancesCache serializes work on a single process instance. Entries live only
// while somebody holds or waits for the instance.
type RunningInstancesCache struct {
	processInstances map[string]*RunningInstance
	mu               sync.Mutex
}

func newRunningInstancesCache() *RunningInstancesCache {
	return &RunningInstancesCache{
		processInstances: map[string]*RunningInstance{},
	}
}

func (c *RunningInstancesCache) lockInstance(instanceId string) {
	c.mu.Lock()
	ins, ok := c.processInstances[instanceId]
	if !ok {
		ins = &RunningInstance{}
		c.processInstances[instanceId] = ins
	}
	ins.holders++
	c.mu.Unlock()

	ins.mu.Lock()
}

func (c *RunningInstancesCache) unlockInstance(instanceId string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ins, ok := c.processInstances[instanceId]
	if !ok {
		return
	}
	ins.holders--
	if ins.holders == 0 {
		delete(c.processInstances, instanceId)
	}
	ins.mu.Unlock()
}
