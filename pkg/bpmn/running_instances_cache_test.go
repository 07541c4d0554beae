// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunningInstancesCacheSerializesSameInstance(t *testing.T) {
	// given
	cache := newRunningInstancesCache()
	counter := 0
	var wg sync.WaitGroup

	// when
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.lockInstance("PI-1")
			defer cache.unlockInstance("PI-1")
			current := counter
			time.Sleep(time.Microsecond)
			counter = current + 1
		}()
	}
	wg.Wait()

	// then
	assert.Equal(t, 50, counter)
	assert.Empty(t, cache.processInstances)
}

func TestRunningInstancesCacheDoesNotBlockOtherInstances(t *testing.T) {
	// given
	cache := newRunningInstancesCache()
	cache.lockInstance("PI-1")
	defer cache.unlockInstance("PI-1")
	done := make(chan struct{})

	// when
	go func() {
		cache.lockInstance("PI-2")
		cache.unlockInstance("PI-2")
		close(done)
	}()

	// then
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock of another instance was blocked")
	}
}
