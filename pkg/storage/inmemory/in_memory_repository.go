// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package inmemory

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/pbinitiative/zendecision/pkg/bpmn/runtime"
	"github.com/pbinitiative/zendecision/pkg/decision/ruleset"
	"github.com/pbinitiative/zendecision/pkg/decision/scorecard"
	"github.com/pbinitiative/zendecision/pkg/decision/table"
	"github.com/pbinitiative/zendecision/pkg/decision/tree"
	"github.com/pbinitiative/zendecision/pkg/storage"
)

// Storage keeps process information in memory,
// please use NewStorage to create a new object of this type.
// Values are deep copied on the way in and out so callers never alias stored state.
type Storage struct {
	mu *sync.RWMutex

	ProcessDefinitions map[int64]runtime.ProcessDefinition
	ProcessInstances   map[string]runtime.ProcessInstance
	NodeInstances      map[int64]runtime.NodeInstance
	HumanTasks         map[string]runtime.HumanTask
	TaskAssignments    map[int64]runtime.TaskAssignment
	AuditLogs          map[int64]runtime.AuditLog
	DecisionTrees      map[string]tree.DecisionTree
	Scorecards         map[string]scorecard.Scorecard
	DecisionTables     map[string]table.DecisionTable
	RuleSets           map[string]ruleset.RuleSet

	ids *snowflake.Node
}

func NewStorage() *Storage {
	node, err := snowflake.NewNode(0)
	if err != nil {
		panic("can't initialize snowflake ID generator. Message: " + err.Error())
	}
	return &Storage{
		mu:                 &sync.RWMutex{},
		ProcessDefinitions: make(map[int64]runtime.ProcessDefinition),
		ProcessInstances:   make(map[string]runtime.ProcessInstance),
		NodeInstances:      make(map[int64]runtime.NodeInstance),
		HumanTasks:         make(map[string]runtime.HumanTask),
		TaskAssignments:    make(map[int64]runtime.TaskAssignment),
		AuditLogs:          make(map[int64]runtime.AuditLog),
		DecisionTrees:      make(map[string]tree.DecisionTree),
		Scorecards:         make(map[string]scorecard.Scorecard),
		DecisionTables:     make(map[string]table.DecisionTable),
		RuleSets:           make(map[string]ruleset.RuleSet),
		ids:                node,
	}
}

func (mem *Storage) GenerateId() int64 {
	return mem.ids.Generate().Int64()
}

var _ storage.Storage = &Storage{}

func (mem *Storage) NewBatch() storage.Batch {
	return &StorageBatch{
		db:        mem,
		stmtToRun: make([]func() error, 0, 10),
	}
}

func clone[T any](v T) (T, error) {
	var res T
	data, err := json.Marshal(v)
	if err != nil {
		return res, fmt.Errorf("failed to copy %T: %w", v, err)
	}
	if err := runtime.DecodeJSON(data, &res); err != nil {
		return res, fmt.Errorf("failed to copy %T: %w", v, err)
	}
	return res, nil
}

func put[K comparable, V any](m map[K]V, key K, v V) error {
	c, err := clone(v)
	if err != nil {
		return err
	}
	m[key] = c
	return nil
}

func absent[K comparable, V any](m map[K]V, key K) error {
	if _, ok := m[key]; ok {
		return fmt.Errorf("%v already exists: %w", key, storage.ErrConflict)
	}
	return nil
}

func get[K comparable, V any](m map[K]V, key K) (V, error) {
	v, ok := m[key]
	if !ok {
		var zero V
		return zero, storage.ErrNotFound
	}
	return clone(v)
}

func collect[K comparable, V any](m map[K]V, keep func(V) bool, order func(a, b V) int) ([]V, error) {
	res := make([]V, 0)
	for _, v := range m {
		if !keep(v) {
			continue
		}
		c, err := clone(v)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	slices.SortFunc(res, order)
	return res, nil
}

var _ storage.ProcessDefinitionStorageReader = &Storage{}

func (mem *Storage) FindLatestProcessDefinitionById(ctx context.Context, processDefinitionId string) (runtime.ProcessDefinition, error) {
	definitions, err := mem.FindProcessDefinitionsById(ctx, processDefinitionId)
	if err != nil {
		return runtime.ProcessDefinition{}, err
	}
	if len(definitions) == 0 {
		return runtime.ProcessDefinition{}, storage.ErrNotFound
	}
	return definitions[len(definitions)-1], nil
}

func (mem *Storage) FindProcessDefinitionByKey(ctx context.Context, processDefinitionKey int64) (runtime.ProcessDefinition, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	return get(mem.ProcessDefinitions, processDefinitionKey)
}

func (mem *Storage) FindProcessDefinitionsById(ctx context.Context, processId string) ([]runtime.ProcessDefinition, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	return collect(mem.ProcessDefinitions,
		func(d runtime.ProcessDefinition) bool { return d.Id == processId },
		func(a, b runtime.ProcessDefinition) int { return cmp.Compare(a.Version, b.Version) },
	)
}

var _ storage.ProcessDefinitionStorageWriter = &Storage{}

func (mem *Storage) SaveProcessDefinition(ctx context.Context, definition runtime.ProcessDefinition) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	return put(mem.ProcessDefinitions, definition.Key, definition)
}

var _ storage.ProcessInstanceStorageReader = &Storage{}

func (mem *Storage) FindProcessInstanceById(ctx context.Context, instanceId string) (runtime.ProcessInstance, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	return get(mem.ProcessInstances, instanceId)
}

func (mem *Storage) FindProcessInstances(ctx context.Context, filter storage.ProcessInstanceFilter) ([]runtime.ProcessInstance, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	return collect(mem.ProcessInstances,
		func(pi runtime.ProcessInstance) bool {
			if filter.DefinitionKey != 0 && pi.DefinitionKey != filter.DefinitionKey {
				return false
			}
			if filter.ProcessId != "" && pi.ProcessId != filter.ProcessId {
				return false
			}
			if filter.Status != "" && pi.Status != filter.Status {
				return false
			}
			return true
		},
		func(a, b runtime.ProcessInstance) int {
			return cmp.Or(a.StartTime.Compare(b.StartTime), cmp.Compare(a.InstanceId, b.InstanceId))
		},
	)
}

var _ storage.ProcessInstanceStorageWriter = &Storage{}

func (mem *Storage) CreateProcessInstance(ctx context.Context, processInstance runtime.ProcessInstance) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	if err := absent(mem.ProcessInstances, processInstance.InstanceId); err != nil {
		return err
	}
	return put(mem.ProcessInstances, processInstance.InstanceId, processInstance)
}

func (mem *Storage) SaveProcessInstance(ctx context.Context, processInstance runtime.ProcessInstance) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	return put(mem.ProcessInstances, processInstance.InstanceId, processInstance)
}

var _ storage.NodeInstanceStorageReader = &Storage{}

func (mem *Storage) FindNodeInstanceByKey(ctx context.Context, key int64) (runtime.NodeInstance, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	return get(mem.NodeInstances, key)
}

func (mem *Storage) FindNodeInstances(ctx context.Context, instanceId string) ([]runtime.NodeInstance, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	return collect(mem.NodeInstances,
		func(ni runtime.NodeInstance) bool { return ni.InstanceId == instanceId },
		func(a, b runtime.NodeInstance) int {
			return cmp.Or(a.TriggerTime.Compare(b.TriggerTime), cmp.Compare(a.Key, b.Key))
		},
	)
}

var _ storage.NodeInstanceStorageWriter = &Storage{}

func (mem *Storage) SaveNodeInstance(ctx context.Context, nodeInstance runtime.NodeInstance) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	return put(mem.NodeInstances, nodeInstance.Key, nodeInstance)
}

var _ storage.HumanTaskStorageReader = &Storage{}

func (mem *Storage) FindHumanTaskById(ctx context.Context, taskId string) (runtime.HumanTask, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	return get(mem.HumanTasks, taskId)
}

func (mem *Storage) FindHumanTasksByInstance(ctx context.Context, instanceId string) ([]runtime.HumanTask, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	return collect(mem.HumanTasks,
		func(t runtime.HumanTask) bool { return t.InstanceId == instanceId },
		func(a, b runtime.HumanTask) int {
			return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.TaskId, b.TaskId))
		},
	)
}

func (mem *Storage) FindHumanTasksForUser(ctx context.Context, userId string, statuses []runtime.HumanTaskStatus) ([]runtime.HumanTask, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	return collect(mem.HumanTasks,
		func(t runtime.HumanTask) bool {
			if len(statuses) > 0 && !slices.Contains(statuses, t.Status) {
				return false
			}
			return t.IsVisibleTo(userId)
		},
		func(a, b runtime.HumanTask) int {
			return cmp.Or(cmp.Compare(b.Priority, a.Priority), a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.TaskId, b.TaskId))
		},
	)
}

var _ storage.HumanTaskStorageWriter = &Storage{}

func (mem *Storage) CreateHumanTask(ctx context.Context, task runtime.HumanTask) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	if err := absent(mem.HumanTasks, task.TaskId); err != nil {
		return err
	}
	return put(mem.HumanTasks, task.TaskId, task)
}

func (mem *Storage) SaveHumanTask(ctx context.Context, task runtime.HumanTask) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	return put(mem.HumanTasks, task.TaskId, task)
}

func (mem *Storage) UpdateHumanTask(ctx context.Context, task runtime.HumanTask, expectedVersion int64) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	if err := mem.checkHumanTaskVersion(task.TaskId, expectedVersion); err != nil {
		return err
	}
	return put(mem.HumanTasks, task.TaskId, task)
}

func (mem *Storage) checkHumanTaskVersion(taskId string, expectedVersion int64) error {
	stored, ok := mem.HumanTasks[taskId]
	if !ok {
		return storage.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return fmt.Errorf("task %s has version %d, expected %d: %w", taskId, stored.Version, expectedVersion, storage.ErrConflict)
	}
	return nil
}

var _ storage.TaskAssignmentStorageReader = &Storage{}

func (mem *Storage) FindTaskAssignments(ctx context.Context, taskId string) ([]runtime.TaskAssignment, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	return collect(mem.TaskAssignments,
		func(a runtime.TaskAssignment) bool { return a.TaskId == taskId },
		func(a, b runtime.TaskAssignment) int {
			return cmp.Or(a.AssignedAt.Compare(b.AssignedAt), cmp.Compare(a.Key, b.Key))
		},
	)
}

var _ storage.TaskAssignmentStorageWriter = &Storage{}

func (mem *Storage) SaveTaskAssignment(ctx context.Context, assignment runtime.TaskAssignment) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	return put(mem.TaskAssignments, assignment.Key, assignment)
}

var _ storage.AuditLogStorageReader = &Storage{}

func (mem *Storage) FindAuditLogs(ctx context.Context, entityType runtime.AuditEntityType, entityId string) ([]runtime.AuditLog, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	return collect(mem.AuditLogs,
		func(l runtime.AuditLog) bool { return l.EntityType == entityType && l.EntityId == entityId },
		func(a, b runtime.AuditLog) int {
			return cmp.Or(a.Timestamp.Compare(b.Timestamp), cmp.Compare(a.Key, b.Key))
		},
	)
}

var _ storage.AuditLogStorageWriter = &Storage{}

func (mem *Storage) SaveAuditLog(ctx context.Context, log runtime.AuditLog) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	return put(mem.AuditLogs, log.Key, log)
}

var _ storage.RuleStorageReader = &Storage{}

func (mem *Storage) FindDecisionTreeById(ctx context.Context, id string) (tree.DecisionTree, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	return get(mem.DecisionTrees, id)
}

func (mem *Storage) FindScorecardById(ctx context.Context, id string) (scorecard.Scorecard, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	return get(mem.Scorecards, id)
}

func (mem *Storage) FindDecisionTableById(ctx context.Context, id string) (table.DecisionTable, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	return get(mem.DecisionTables, id)
}

func (mem *Storage) FindRuleSetById(ctx context.Context, id string) (ruleset.RuleSet, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	return get(mem.RuleSets, id)
}

var _ storage.RuleStorageWriter = &Storage{}

func (mem *Storage) SaveDecisionTree(ctx context.Context, dt tree.DecisionTree) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	return put(mem.DecisionTrees, dt.Id, dt)
}

func (mem *Storage) SaveScorecard(ctx context.Context, sc scorecard.Scorecard) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	return put(mem.Scorecards, sc.Id, sc)
}

func (mem *Storage) SaveDecisionTable(ctx context.Context, dt table.DecisionTable) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	return put(mem.DecisionTables, dt.Id, dt)
}

func (mem *Storage) SaveRuleSet(ctx context.Context, rs ruleset.RuleSet) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	return put(mem.RuleSets, rs.Id, rs)
}

// StorageBatch queues statements and applies them under one write lock on Flush.
// Values are copied when queued, later changes by the caller are not picked up.
type StorageBatch struct {
	db            *Storage
	preconditions []func() error
	stmtToRun     []func() error
}

var _ storage.Batch = &StorageBatch{}

func (b *StorageBatch) Flush(ctx context.Context) error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()

	var joinErr error
	for _, check := range b.preconditions {
		joinErr = errors.Join(joinErr, check())
	}
	if joinErr != nil {
		return joinErr
	}
	for _, stmt := range b.stmtToRun {
		err := stmt()
		if err != nil {
			joinErr = errors.Join(joinErr, err)
		}
	}
	if joinErr != nil {
		return joinErr
	}
	b.preconditions = nil
	b.stmtToRun = make([]func() error, 0)
	return nil
}

func queue[K comparable, V any](b *StorageBatch, m map[K]V, key K, v V) error {
	c, err := clone(v)
	if err != nil {
		return err
	}
	b.stmtToRun = append(b.stmtToRun, func() error {
		m[key] = c
		return nil
	})
	return nil
}

var _ storage.ProcessDefinitionStorageWriter = &StorageBatch{}

func (b *StorageBatch) SaveProcessDefinition(ctx context.Context, definition runtime.ProcessDefinition) error {
	return queue(b, b.db.ProcessDefinitions, definition.Key, definition)
}

var _ storage.ProcessInstanceStorageWriter = &StorageBatch{}

func (b *StorageBatch) CreateProcessInstance(ctx context.Context, processInstance runtime.ProcessInstance) error {
	b.preconditions = append(b.preconditions, func() error {
		return absent(b.db.ProcessInstances, processInstance.InstanceId)
	})
	return queue(b, b.db.ProcessInstances, processInstance.InstanceId, processInstance)
}

func (b *StorageBatch) SaveProcessInstance(ctx context.Context, processInstance runtime.ProcessInstance) error {
	return queue(b, b.db.ProcessInstances, processInstance.InstanceId, processInstance)
}

var _ storage.NodeInstanceStorageWriter = &StorageBatch{}

func (b *StorageBatch) SaveNodeInstance(ctx context.Context, nodeInstance runtime.NodeInstance) error {
	return queue(b, b.db.NodeInstances, nodeInstance.Key, nodeInstance)
}

var _ storage.HumanTaskStorageWriter = &StorageBatch{}

func (b *StorageBatch) CreateHumanTask(ctx context.Context, task runtime.HumanTask) error {
	b.preconditions = append(b.preconditions, func() error {
		return absent(b.db.HumanTasks, task.TaskId)
	})
	return queue(b, b.db.HumanTasks, task.TaskId, task)
}

func (b *StorageBatch) SaveHumanTask(ctx context.Context, task runtime.HumanTask) error {
	return queue(b, b.db.HumanTasks, task.TaskId, task)
}

func (b *StorageBatch) UpdateHumanTask(ctx context.Context, task runtime.HumanTask, expectedVersion int64) error {
	b.preconditions = append(b.preconditions, func() error {
		return b.db.checkHumanTaskVersion(task.TaskId, expectedVersion)
	})
	return queue(b, b.db.HumanTasks, task.TaskId, task)
}

var _ storage.TaskAssignmentStorageWriter = &StorageBatch{}

func (b *StorageBatch) SaveTaskAssignment(ctx context.Context, assignment runtime.TaskAssignment) error {
	return queue(b, b.db.TaskAssignments, assignment.Key, assignment)
}

var _ storage.AuditLogStorageWriter = &StorageBatch{}

func (b *StorageBatch) SaveAuditLog(ctx context.Context, log runtime.AuditLog) error {
	return queue(b, b.db.AuditLogs, log.Key, log)
}
