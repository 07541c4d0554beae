// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package storagetest

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	stdruntime "runtime"

	"github.com/pbinitiative/zendecision/pkg/bpmn/runtime"
	"github.com/pbinitiative/zendecision/pkg/decision/ruleset"
	"github.com/pbinitiative/zendecision/pkg/decision/scorecard"
	"github.com/pbinitiative/zendecision/pkg/decision/table"
	"github.com/pbinitiative/zendecision/pkg/decision/tree"
	"github.com/pbinitiative/zendecision/pkg/ptr"
	"github.com/pbinitiative/zendecision/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type StorageTestFunc func(s storage.Storage, t *testing.T) func(t *testing.T)

type StorageTester struct {
	processDefinition runtime.ProcessDefinition
	processInstance   runtime.ProcessInstance
}

func (st *StorageTester) GetTests() map[string]StorageTestFunc {
	tests := map[string]StorageTestFunc{}

	// all test functions need to be registered here
	functions := []StorageTestFunc{
		st.TestProcessDefinitionStorageWriter,
		st.TestProcessDefinitionStorageReader,
		st.TestProcessInstanceStorageWriter,
		st.TestProcessInstanceStorageReader,
		st.TestNodeInstanceStorage,
		st.TestHumanTaskStorageWriter,
		st.TestHumanTaskStorageReader,
		st.TestHumanTaskCompareAndSwap,
		st.TestBatchIsAppliedAtomically,
		st.TestTaskAssignmentStorage,
		st.TestAuditLogStorage,
		st.TestRuleStorage,
		st.TestNotFound,
		st.TestCreateRejectsTakenIds,
		st.TestVariablesKeepNumberKinds,
	}

	for _, function := range functions {
		funcName := getFunctionName(function)
		strippedName := funcName[strings.LastIndex(funcName, ".")+1:]
		strippedName = strings.TrimSuffix(strippedName, "-fm")
		tests[strippedName] = function
	}
	return tests
}

func getFunctionName(i any) string {
	return stdruntime.FuncForPC(reflect.ValueOf(i).Pointer()).Name()
}

func getProcessDefinition(r int64) runtime.ProcessDefinition {
	return runtime.ProcessDefinition{
		Id:      fmt.Sprintf("id-%d", r),
		Key:     r,
		Version: 1,
		Name:    fmt.Sprintf("process %d", r),
		Nodes: []runtime.Node{
			{Id: "start", Type: runtime.NodeTypeStart},
			{Id: "rule", Type: runtime.NodeTypeBusinessRule, Config: map[string]any{"rule_type": "SCORECARD", "rule_id": "sc-1"}},
			{Id: "end", Type: runtime.NodeTypeEnd},
		},
		Edges: []runtime.Edge{
			{Source: "start", Target: "rule"},
			{Source: "rule", Target: "end", Condition: "credit_score > 500"},
		},
		Checksum:  [16]byte{1},
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func getProcessInstance(r int64, definition runtime.ProcessDefinition) runtime.ProcessInstance {
	return runtime.ProcessInstance{
		InstanceId:     fmt.Sprintf("PI-%d", r),
		DefinitionKey:  definition.Key,
		ProcessId:      definition.Id,
		Status:         runtime.InstanceStatusRunning,
		VariableHolder: runtime.NewVariableHolder(map[string]any{"income": 2000.0, "name": "test"}),
		StartTime:      time.Now().UTC().Truncate(time.Millisecond),
	}
}

func getHumanTask(r int64, instanceId string) runtime.HumanTask {
	return runtime.HumanTask{
		TaskId:         fmt.Sprintf("TASK-%d", r),
		InstanceId:     instanceId,
		NodeId:         "approve",
		Name:           "Approve",
		Status:         runtime.HumanTaskStatusReady,
		CandidateUsers: []string{fmt.Sprintf("alice-%d", r), fmt.Sprintf("bob-%d", r)},
		FormData:       map[string]any{"amount": 100.0},
		CreatedAt:      time.Now().UTC().Truncate(time.Millisecond),
		Version:        1,
	}
}

// PrepareTestData will prepare common data for the tests
func (st *StorageTester) PrepareTestData(s storage.Storage, t *testing.T) {
	r := s.GenerateId()

	st.processDefinition = getProcessDefinition(r)
	err := s.SaveProcessDefinition(t.Context(), st.processDefinition)
	assert.NoError(t, err)

	st.processInstance = getProcessInstance(r, st.processDefinition)
	err = s.SaveProcessInstance(t.Context(), st.processInstance)
	assert.NoError(t, err)
}

func (st *StorageTester) TestProcessDefinitionStorageWriter(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		r := s.GenerateId()

		def := getProcessDefinition(r)

		err := s.SaveProcessDefinition(t.Context(), def)
		assert.NoError(t, err)

		definition, err := s.FindProcessDefinitionByKey(t.Context(), r)
		assert.NoError(t, err)
		assert.Equal(t, r, definition.Key)
		assert.Equal(t, def.Nodes, definition.Nodes)
		assert.Equal(t, def.Edges, definition.Edges)
		assert.Equal(t, def.Checksum, definition.Checksum)
	}
}

func (st *StorageTester) TestProcessDefinitionStorageReader(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		r := s.GenerateId()

		def := getProcessDefinition(r)
		err := s.SaveProcessDefinition(t.Context(), def)
		assert.NoError(t, err)

		def2 := def
		def2.Key = s.GenerateId()
		def2.Version = 2
		err = s.SaveProcessDefinition(t.Context(), def2)
		assert.NoError(t, err)

		definition, err := s.FindLatestProcessDefinitionById(t.Context(), def.Id)
		assert.NoError(t, err)
		assert.Equal(t, def2.Key, definition.Key)

		definitions, err := s.FindProcessDefinitionsById(t.Context(), def.Id)
		assert.NoError(t, err)
		assert.Len(t, definitions, 2)
		assert.Equal(t, int32(1), definitions[0].Version)
		assert.Equal(t, int32(2), definitions[1].Version)

		definitions, err = s.FindProcessDefinitionsById(t.Context(), "no-such-id")
		assert.NoError(t, err)
		assert.NotNil(t, definitions)
		assert.Empty(t, definitions)
	}
}

func (st *StorageTester) TestProcessInstanceStorageWriter(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		r := s.GenerateId()
		inst := getProcessInstance(r, st.processDefinition)

		err := s.SaveProcessInstance(t.Context(), inst)
		assert.NoError(t, err)

		inst.Status = runtime.InstanceStatusCompleted
		inst.VariableHolder.SetVariable("approved", true)
		inst.Finish(runtime.InstanceStatusCompleted, inst.StartTime.Add(1500*time.Millisecond))
		err = s.SaveProcessInstance(t.Context(), inst)
		assert.NoError(t, err)

		stored, err := s.FindProcessInstanceById(t.Context(), inst.InstanceId)
		assert.NoError(t, err)
		assert.Equal(t, runtime.InstanceStatusCompleted, stored.Status)
		assert.Equal(t, true, stored.VariableHolder.GetVariable("approved"))
		assert.Equal(t, "test", stored.VariableHolder.GetVariable("name"))
		assert.Equal(t, int64(1500), stored.DurationMs)
		require.NotNil(t, stored.EndTime)
	}
}

func (st *StorageTester) TestProcessInstanceStorageReader(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		r := s.GenerateId()
		def := getProcessDefinition(r)
		assert.NoError(t, s.SaveProcessDefinition(t.Context(), def))

		first := getProcessInstance(r, def)
		second := getProcessInstance(s.GenerateId(), def)
		second.StartTime = first.StartTime.Add(time.Second)
		second.Status = runtime.InstanceStatusFailed
		assert.NoError(t, s.SaveProcessInstance(t.Context(), second))
		assert.NoError(t, s.SaveProcessInstance(t.Context(), first))

		instances, err := s.FindProcessInstances(t.Context(), storage.ProcessInstanceFilter{DefinitionKey: def.Key})
		assert.NoError(t, err)
		require.Len(t, instances, 2)
		assert.Equal(t, first.InstanceId, instances[0].InstanceId)
		assert.Equal(t, second.InstanceId, instances[1].InstanceId)

		instances, err = s.FindProcessInstances(t.Context(), storage.ProcessInstanceFilter{ProcessId: def.Id, Status: runtime.InstanceStatusFailed})
		assert.NoError(t, err)
		require.Len(t, instances, 1)
		assert.Equal(t, second.InstanceId, instances[0].InstanceId)
	}
}

func (st *StorageTester) TestNodeInstanceStorage(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Millisecond)
		later := runtime.NodeInstance{
			Key:         s.GenerateId(),
			InstanceId:  st.processInstance.InstanceId,
			NodeId:      "rule",
			NodeType:    runtime.NodeTypeBusinessRule,
			Status:      runtime.NodeInstanceStatusActive,
			TriggerTime: now.Add(time.Millisecond),
			Variables:   map[string]any{"income": 2000.0},
		}
		earlier := runtime.NodeInstance{
			Key:         s.GenerateId(),
			InstanceId:  st.processInstance.InstanceId,
			NodeId:      "start",
			NodeType:    runtime.NodeTypeStart,
			Status:      runtime.NodeInstanceStatusCompleted,
			TriggerTime: now,
			Variables:   map[string]any{},
		}
		assert.NoError(t, s.SaveNodeInstance(t.Context(), later))
		assert.NoError(t, s.SaveNodeInstance(t.Context(), earlier))

		later.Fail(fmt.Errorf("rule not found"), now.Add(3*time.Millisecond))
		assert.NoError(t, s.SaveNodeInstance(t.Context(), later))

		history, err := s.FindNodeInstances(t.Context(), st.processInstance.InstanceId)
		assert.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, "start", history[0].NodeId)
		assert.Equal(t, "rule", history[1].NodeId)
		assert.Equal(t, runtime.NodeInstanceStatusFailed, history[1].Status)
		assert.Equal(t, "rule not found", history[1].ErrorMessage)
		assert.Equal(t, map[string]any{"income": 2000.0}, history[1].Variables)

		stored, err := s.FindNodeInstanceByKey(t.Context(), earlier.Key)
		assert.NoError(t, err)
		assert.Equal(t, earlier.NodeId, stored.NodeId)
	}
}

func (st *StorageTester) TestHumanTaskStorageWriter(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		r := s.GenerateId()
		task := getHumanTask(r, st.processInstance.InstanceId)
		task.DueDate = ptr.To(task.CreatedAt.Add(24 * time.Hour))

		err := s.SaveHumanTask(t.Context(), task)
		assert.NoError(t, err)

		stored, err := s.FindHumanTaskById(t.Context(), task.TaskId)
		assert.NoError(t, err)
		assert.Equal(t, task.CandidateUsers, stored.CandidateUsers)
		assert.Equal(t, task.FormData, stored.FormData)
		require.NotNil(t, stored.DueDate)
		assert.True(t, task.DueDate.Equal(*stored.DueDate))
		assert.Empty(t, stored.Assignee)

		// stored state is not aliased by the caller
		task.FormData["amount"] = 999.0
		stored, err = s.FindHumanTaskById(t.Context(), task.TaskId)
		assert.NoError(t, err)
		assert.Equal(t, 100.0, stored.FormData["amount"])
	}
}

func (st *StorageTester) TestHumanTaskStorageReader(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		r := s.GenerateId()
		instanceId := fmt.Sprintf("PI-tasks-%d", r)
		user := fmt.Sprintf("carol-%d", r)

		low := getHumanTask(s.GenerateId(), instanceId)
		low.CandidateUsers = []string{user}
		low.Priority = 1

		high := getHumanTask(s.GenerateId(), instanceId)
		high.CandidateUsers = []string{user}
		high.Priority = 5
		high.CreatedAt = low.CreatedAt.Add(time.Second)

		assigned := getHumanTask(s.GenerateId(), instanceId)
		assigned.CandidateUsers = nil
		assigned.Assignee = user
		assigned.Status = runtime.HumanTaskStatusReserved
		assigned.CreatedAt = low.CreatedAt.Add(2 * time.Second)

		done := getHumanTask(s.GenerateId(), instanceId)
		done.Assignee = user
		done.Status = runtime.HumanTaskStatusCompleted

		for _, task := range []runtime.HumanTask{low, high, assigned, done} {
			assert.NoError(t, s.SaveHumanTask(t.Context(), task))
		}

		tasks, err := s.FindHumanTasksForUser(t.Context(), user, []runtime.HumanTaskStatus{runtime.HumanTaskStatusReady, runtime.HumanTaskStatusReserved})
		assert.NoError(t, err)
		require.Len(t, tasks, 3)
		assert.Equal(t, high.TaskId, tasks[0].TaskId)
		assert.Equal(t, low.TaskId, tasks[1].TaskId)
		assert.Equal(t, assigned.TaskId, tasks[2].TaskId)

		tasks, err = s.FindHumanTasksForUser(t.Context(), user, nil)
		assert.NoError(t, err)
		assert.Len(t, tasks, 4)

		tasks, err = s.FindHumanTasksForUser(t.Context(), "nobody", nil)
		assert.NoError(t, err)
		assert.Empty(t, tasks)

		tasks, err = s.FindHumanTasksByInstance(t.Context(), instanceId)
		assert.NoError(t, err)
		assert.Len(t, tasks, 4)
	}
}

func (st *StorageTester) TestHumanTaskCompareAndSwap(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		// given
		task := getHumanTask(s.GenerateId(), st.processInstance.InstanceId)
		assert.NoError(t, s.SaveHumanTask(t.Context(), task))

		first := task
		first.Status = runtime.HumanTaskStatusReserved
		first.Assignee = "first"
		first.Version = task.Version + 1

		second := task
		second.Status = runtime.HumanTaskStatusReserved
		second.Assignee = "second"
		second.Version = task.Version + 1

		// when
		errFirst := s.UpdateHumanTask(t.Context(), first, task.Version)
		errSecond := s.UpdateHumanTask(t.Context(), second, task.Version)

		// then
		assert.NoError(t, errFirst)
		assert.ErrorIs(t, errSecond, storage.ErrConflict)
		stored, err := s.FindHumanTaskById(t.Context(), task.TaskId)
		assert.NoError(t, err)
		assert.Equal(t, "first", stored.Assignee)
		assert.Equal(t, task.Version+1, stored.Version)

		missing := getHumanTask(s.GenerateId(), st.processInstance.InstanceId)
		err = s.UpdateHumanTask(t.Context(), missing, 1)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	}
}

func (st *StorageTester) TestBatchIsAppliedAtomically(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		// given
		task := getHumanTask(s.GenerateId(), st.processInstance.InstanceId)
		assert.NoError(t, s.SaveHumanTask(t.Context(), task))
		audit := runtime.AuditLog{
			Key:        s.GenerateId(),
			EventType:  runtime.AuditTaskClaimed,
			EntityType: runtime.AuditEntityHumanTask,
			EntityId:   task.TaskId,
			Timestamp:  time.Now().UTC(),
		}

		// when
		stale := task
		stale.Assignee = "late"
		stale.Version = task.Version + 1
		batch := s.NewBatch()
		assert.NoError(t, batch.SaveAuditLog(t.Context(), audit))
		assert.NoError(t, batch.UpdateHumanTask(t.Context(), stale, task.Version-1))
		err := batch.Flush(t.Context())

		// then
		assert.ErrorIs(t, err, storage.ErrConflict)
		logs, err := s.FindAuditLogs(t.Context(), runtime.AuditEntityHumanTask, task.TaskId)
		assert.NoError(t, err)
		assert.Empty(t, logs)
		stored, err := s.FindHumanTaskById(t.Context(), task.TaskId)
		assert.NoError(t, err)
		assert.Empty(t, stored.Assignee)

		// and a valid batch is applied
		fresh := task
		fresh.Assignee = "on-time"
		fresh.Version = task.Version + 1
		batch = s.NewBatch()
		assert.NoError(t, batch.SaveAuditLog(t.Context(), audit))
		assert.NoError(t, batch.UpdateHumanTask(t.Context(), fresh, task.Version))
		assert.NoError(t, batch.Flush(t.Context()))

		logs, err = s.FindAuditLogs(t.Context(), runtime.AuditEntityHumanTask, task.TaskId)
		assert.NoError(t, err)
		assert.Len(t, logs, 1)
		stored, err = s.FindHumanTaskById(t.Context(), task.TaskId)
		assert.NoError(t, err)
		assert.Equal(t, "on-time", stored.Assignee)
	}
}

func (st *StorageTester) TestTaskAssignmentStorage(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		taskId := fmt.Sprintf("TASK-assign-%d", s.GenerateId())
		now := time.Now().UTC().Truncate(time.Millisecond)
		claim := runtime.TaskAssignment{
			Key: s.GenerateId(), TaskId: taskId, AssignmentType: runtime.AssignmentTypeClaim,
			AssigneeId: "alice", AssignedBy: "alice", AssignedAt: now,
		}
		delegate := runtime.TaskAssignment{
			Key: s.GenerateId(), TaskId: taskId, AssignmentType: runtime.AssignmentTypeDelegate,
			AssigneeId: "bob", AssignedBy: "alice", AssignedAt: now.Add(time.Second),
		}
		assert.NoError(t, s.SaveTaskAssignment(t.Context(), delegate))
		assert.NoError(t, s.SaveTaskAssignment(t.Context(), claim))

		assignments, err := s.FindTaskAssignments(t.Context(), taskId)
		assert.NoError(t, err)
		require.Len(t, assignments, 2)
		assert.Equal(t, runtime.AssignmentTypeClaim, assignments[0].AssignmentType)
		assert.Equal(t, "bob", assignments[1].AssigneeId)
	}
}

func (st *StorageTester) TestAuditLogStorage(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Millisecond)
		started := runtime.AuditLog{
			Key: s.GenerateId(), EventType: runtime.AuditProcessStarted, EntityType: runtime.AuditEntityProcessInstance,
			EntityId: st.processInstance.InstanceId, NewValue: "RUNNING", Timestamp: now,
			Details: map[string]any{"process_id": st.processDefinition.Id},
		}
		aborted := runtime.AuditLog{
			Key: s.GenerateId(), EventType: runtime.AuditProcessAborted, EntityType: runtime.AuditEntityProcessInstance,
			EntityId: st.processInstance.InstanceId, UserId: "admin", OldValue: "RUNNING", NewValue: "ABORTED",
			Timestamp: now.Add(time.Second),
		}
		assert.NoError(t, s.SaveAuditLog(t.Context(), aborted))
		assert.NoError(t, s.SaveAuditLog(t.Context(), started))

		logs, err := s.FindAuditLogs(t.Context(), runtime.AuditEntityProcessInstance, st.processInstance.InstanceId)
		assert.NoError(t, err)
		require.Len(t, logs, 2)
		assert.Equal(t, runtime.AuditProcessStarted, logs[0].EventType)
		assert.Equal(t, st.processDefinition.Id, logs[0].Details["process_id"])
		assert.Equal(t, "ABORTED", logs[1].NewValue)

		logs, err = s.FindAuditLogs(t.Context(), runtime.AuditEntityHumanTask, st.processInstance.InstanceId)
		assert.NoError(t, err)
		assert.Empty(t, logs)
	}
}

func (st *StorageTester) TestRuleStorage(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		r := s.GenerateId()

		dt := tree.DecisionTree{
			Id:             fmt.Sprintf("tree-%d", r),
			TargetVariable: "risk",
			Config:         tree.Config{}.WithDefaults(),
			Status:         tree.StatusTrained,
			Nodes: []tree.Node{
				{NodeId: "0", Feature: "income", Threshold: 3000, Operator: tree.OperatorLessEq, ClassLabel: "LOW", Samples: 4},
				{NodeId: "0-L", ParentId: "0", IsLeaf: true, ClassLabel: "HIGH", Samples: 2},
				{NodeId: "0-R", ParentId: "0", IsLeaf: true, ClassLabel: "LOW", Samples: 2},
			},
		}
		assert.NoError(t, s.SaveDecisionTree(t.Context(), dt))
		storedTree, err := s.FindDecisionTreeById(t.Context(), dt.Id)
		assert.NoError(t, err)
		assert.Equal(t, dt.Nodes, storedTree.Nodes)

		sc := scorecard.Scorecard{
			Id: fmt.Sprintf("sc-%d", r), BaseScore: 600, Pdo: 20, BaseOdds: 50,
			Characteristics: []scorecard.Characteristic{{
				Name: "income", Weight: 1,
				Attributes: []scorecard.Attribute{{Attribute: "low", MinValue: ptr.To(0.0), MaxValue: ptr.To(3000.0), Woe: ptr.To(-0.5)}},
			}},
		}
		assert.NoError(t, s.SaveScorecard(t.Context(), sc))
		storedScorecard, err := s.FindScorecardById(t.Context(), sc.Id)
		assert.NoError(t, err)
		assert.Equal(t, sc, storedScorecard)

		tbl := table.DecisionTable{
			Id: fmt.Sprintf("table-%d", r), HitPolicy: table.HitPolicyFirst,
			Conditions: []table.Column{{Name: "score"}}, Actions: []table.Column{{Name: "decision"}},
			Rules: []table.Rule{{RuleNumber: 1, Conditions: map[string]any{"score": map[string]any{"operator": ">=", "value": 700.0}}, Actions: map[string]any{"decision": "APPROVE"}}},
		}
		assert.NoError(t, s.SaveDecisionTable(t.Context(), tbl))
		storedTable, err := s.FindDecisionTableById(t.Context(), tbl.Id)
		assert.NoError(t, err)
		assert.Equal(t, tbl, storedTable)

		rs := ruleset.RuleSet{
			Id:    fmt.Sprintf("rs-%d", r),
			Rules: []ruleset.Rule{{Id: "r1", Condition: "score > 0", Action: "limit = 1000", Priority: 1, Enabled: ptr.To(true)}},
		}
		assert.NoError(t, s.SaveRuleSet(t.Context(), rs))
		storedRuleSet, err := s.FindRuleSetById(t.Context(), rs.Id)
		assert.NoError(t, err)
		assert.Equal(t, rs, storedRuleSet)
	}
}

func (st *StorageTester) TestNotFound(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		_, err := s.FindProcessDefinitionByKey(t.Context(), -1)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = s.FindLatestProcessDefinitionById(t.Context(), "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = s.FindProcessInstanceById(t.Context(), "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = s.FindNodeInstanceByKey(t.Context(), -1)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = s.FindHumanTaskById(t.Context(), "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = s.FindDecisionTreeById(t.Context(), "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = s.FindScorecardById(t.Context(), "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = s.FindDecisionTableById(t.Context(), "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = s.FindRuleSetById(t.Context(), "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	}
}

func (st *StorageTester) TestCreateRejectsTakenIds(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		r := s.GenerateId()
		inst := getProcessInstance(r, st.processDefinition)
		require.NoError(t, s.CreateProcessInstance(t.Context(), inst))

		other := getProcessInstance(r, st.processDefinition)
		other.VariableHolder.SetVariable("name", "other")
		err := s.CreateProcessInstance(t.Context(), other)
		assert.ErrorIs(t, err, storage.ErrConflict)

		stored, err := s.FindProcessInstanceById(t.Context(), inst.InstanceId)
		require.NoError(t, err)
		assert.Equal(t, "test", stored.VariableHolder.GetVariable("name"))

		task := getHumanTask(r, inst.InstanceId)
		require.NoError(t, s.CreateHumanTask(t.Context(), task))
		duplicate := task
		duplicate.Name = "other"
		assert.ErrorIs(t, s.CreateHumanTask(t.Context(), duplicate), storage.ErrConflict)

		batch := s.NewBatch()
		require.NoError(t, batch.CreateHumanTask(t.Context(), duplicate))
		assert.ErrorIs(t, batch.Flush(t.Context()), storage.ErrConflict)

		storedTask, err := s.FindHumanTaskById(t.Context(), task.TaskId)
		require.NoError(t, err)
		assert.Equal(t, task.Name, storedTask.Name)
	}
}

func (st *StorageTester) TestVariablesKeepNumberKinds(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		inst := getProcessInstance(s.GenerateId(), st.processDefinition)
		inst.VariableHolder.SetVariables(map[string]any{
			"grade":  int64(1),
			"ratio":  0.5,
			"whole":  2.0,
			"nested": map[string]any{"count": 3, "items": []any{int64(4), 1.5}},
		})
		require.NoError(t, s.SaveProcessInstance(t.Context(), inst))

		stored, err := s.FindProcessInstanceById(t.Context(), inst.InstanceId)
		require.NoError(t, err)

		assert.Equal(t, int64(1), stored.VariableHolder.GetVariable("grade"))
		assert.Equal(t, 0.5, stored.VariableHolder.GetVariable("ratio"))
		assert.Equal(t, 2.0, stored.VariableHolder.GetVariable("whole"))
		assert.Equal(t, map[string]any{"count": int64(3), "items": []any{int64(4), 1.5}}, stored.VariableHolder.GetVariable("nested"))

		task := getHumanTask(s.GenerateId(), inst.InstanceId)
		task.FormData = map[string]any{"limit": 10}
		require.NoError(t, s.SaveHumanTask(t.Context(), task))
		storedTask, err := s.FindHumanTaskById(t.Context(), task.TaskId)
		require.NoError(t, err)
		assert.Equal(t, int64(10), storedTask.FormData["limit"])
	}
}
