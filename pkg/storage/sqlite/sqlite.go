// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

// Package sqlite implements storage.Storage on top of SQLite. Every entity is stored as a JSON
// document next to the columns used for lookups and ordering.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/hashicorp/go-hclog"
	zsql "github.com/pbinitiative/zendecision/internal/sql"
	"github.com/pbinitiative/zendecision/pkg/bpmn/runtime"
	otelPkg "github.com/pbinitiative/zendecision/pkg/otel"
	"github.com/pbinitiative/zendecision/pkg/decision/ruleset"
	"github.com/pbinitiative/zendecision/pkg/decision/scorecard"
	"github.com/pbinitiative/zendecision/pkg/decision/table"
	"github.com/pbinitiative/zendecision/pkg/decision/tree"
	"github.com/pbinitiative/zendecision/pkg/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	_ "modernc.org/sqlite" // SQLite driver
)

const (
	ruleTypeDecisionTree  = "DECISION_TREE"
	ruleTypeScorecard     = "SCORECARD"
	ruleTypeDecisionTable = "DECISION_TABLE"
	ruleTypeRuleSet       = "RULE_SET"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Storage struct {
	db     *sql.DB
	ids    *snowflake.Node
	logger hclog.Logger
	tracer trace.Tracer
}

// New opens the database at dsn and applies pending migrations.
func New(ctx context.Context, dsn string, nodeId int64) (*Storage, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := zsql.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	ids, err := snowflake.NewNode(nodeId)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create id generator: %w", err)
	}
	s := &Storage{
		db:     db,
		ids:    ids,
		logger: hclog.Default().Named("sqlite-storage"),
		tracer: otel.GetTracerProvider().Tracer("sqlite-storage"),
	}
	s.logger.Info("Storage opened", "dsn", dsn)
	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) GenerateId() int64 {
	return s.ids.Generate().Int64()
}

var _ storage.Storage = &Storage{}

func (s *Storage) NewBatch() storage.Batch {
	return &StorageBatch{
		db:        s,
		stmtToRun: make([]func(ctx context.Context, q querier) error, 0, 10),
	}
}

// tracedQuerier records a span for every statement it runs
type tracedQuerier struct {
	q      querier
	tracer trace.Tracer
}

func (s *Storage) querier() querier {
	return &tracedQuerier{q: s.db, tracer: s.tracer}
}

func (t *tracedQuerier) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, span := t.tracer.Start(ctx, "sqlite-exec", trace.WithAttributes(
		attribute.String(otelPkg.AttributeExec, query),
		attribute.String(otelPkg.AttributeArgs, fmt.Sprintf("%v", args)),
	))
	defer span.End()
	res, err := t.q.ExecContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (t *tracedQuerier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	ctx, span := t.tracer.Start(ctx, "sqlite-query", trace.WithAttributes(
		attribute.String(otelPkg.AttributeQuery, query),
		attribute.String(otelPkg.AttributeArgs, fmt.Sprintf("%v", args)),
	))
	defer span.End()
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return rows, err
}

func (t *tracedQuerier) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	ctx, span := t.tracer.Start(ctx, "sqlite-query", trace.WithAttributes(
		attribute.String(otelPkg.AttributeQuery, query),
		attribute.String(otelPkg.AttributeArgs, fmt.Sprintf("%v", args)),
	))
	defer span.End()
	return t.q.QueryRowContext(ctx, query, args...)
}

func (s *Storage) inTx(ctx context.Context, f func(q querier) error) (err error) {
	ctx, span := s.tracer.Start(ctx, "sqlite-tx")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = errors.Join(err, rbErr)
			}
		}
	}()
	if err = f(&tracedQuerier{q: tx, tracer: s.tracer}); err != nil {
		return err
	}
	return tx.Commit()
}

func marshal(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %T: %w", v, err)
	}
	return string(data), nil
}

func getOne[T any](ctx context.Context, q querier, query string, args ...any) (T, error) {
	var res T
	var data string
	err := q.QueryRowContext(ctx, query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return res, storage.ErrNotFound
	}
	if err != nil {
		return res, err
	}
	if err := runtime.DecodeJSON([]byte(data), &res); err != nil {
		return res, fmt.Errorf("failed to unmarshal %T: %w", res, err)
	}
	return res, nil
}

func getMany[T any](ctx context.Context, q querier, query string, args ...any) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := make([]T, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var v T
		if err := runtime.DecodeJSON([]byte(data), &v); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %T: %w", v, err)
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

var _ storage.ProcessDefinitionStorageReader = &Storage{}

func (s *Storage) FindLatestProcessDefinitionById(ctx context.Context, processDefinitionId string) (runtime.ProcessDefinition, error) {
	return getOne[runtime.ProcessDefinition](ctx, s.querier(),
		`SELECT data FROM process_definition WHERE id = ? ORDER BY version DESC LIMIT 1`, processDefinitionId)
}

func (s *Storage) FindProcessDefinitionByKey(ctx context.Context, processDefinitionKey int64) (runtime.ProcessDefinition, error) {
	return getOne[runtime.ProcessDefinition](ctx, s.querier(),
		`SELECT data FROM process_definition WHERE key = ?`, processDefinitionKey)
}

func (s *Storage) FindProcessDefinitionsById(ctx context.Context, processId string) ([]runtime.ProcessDefinition, error) {
	return getMany[runtime.ProcessDefinition](ctx, s.querier(),
		`SELECT data FROM process_definition WHERE id = ? ORDER BY version ASC`, processId)
}

var _ storage.ProcessDefinitionStorageWriter = &Storage{}

func (s *Storage) SaveProcessDefinition(ctx context.Context, definition runtime.ProcessDefinition) error {
	return saveProcessDefinition(ctx, s.querier(), definition)
}

func saveProcessDefinition(ctx context.Context, q querier, definition runtime.ProcessDefinition) error {
	data, err := marshal(definition)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO process_definition (key, id, version, data) VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET id = excluded.id, version = excluded.version, data = excluded.data`,
		definition.Key, definition.Id, definition.Version, data)
	if err != nil {
		return fmt.Errorf("failed to save process definition %d: %w", definition.Key, err)
	}
	return nil
}

var _ storage.ProcessInstanceStorageReader = &Storage{}

func (s *Storage) FindProcessInstanceById(ctx context.Context, instanceId string) (runtime.ProcessInstance, error) {
	return getOne[runtime.ProcessInstance](ctx, s.querier(),
		`SELECT data FROM process_instance WHERE instance_id = ?`, instanceId)
}

func (s *Storage) FindProcessInstances(ctx context.Context, filter storage.ProcessInstanceFilter) ([]runtime.ProcessInstance, error) {
	var where []string
	var args []any
	if filter.DefinitionKey != 0 {
		where = append(where, "definition_key = ?")
		args = append(args, filter.DefinitionKey)
	}
	if filter.ProcessId != "" {
		where = append(where, "process_id = ?")
		args = append(args, filter.ProcessId)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	query := `SELECT data FROM process_instance`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY start_time ASC, instance_id ASC`
	return getMany[runtime.ProcessInstance](ctx, s.querier(), query, args...)
}

var _ storage.ProcessInstanceStorageWriter = &Storage{}

func (s *Storage) CreateProcessInstance(ctx context.Context, processInstance runtime.ProcessInstance) error {
	return createProcessInstance(ctx, s.querier(), processInstance)
}

func createProcessInstance(ctx context.Context, q querier, pi runtime.ProcessInstance) error {
	data, err := marshal(pi)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO process_instance (instance_id, definition_key, process_id, status, start_time, data) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (instance_id) DO NOTHING`,
		pi.InstanceId, pi.DefinitionKey, pi.ProcessId, string(pi.Status), zsql.UnixNano(pi.StartTime), data)
	if err != nil {
		return fmt.Errorf("failed to create process instance %s: %w", pi.InstanceId, err)
	}
	return inserted(res, "process instance "+pi.InstanceId)
}

// inserted reports ErrConflict when an insert ignored on conflict did not add a row
func inserted(res sql.Result, what string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%s already exists: %w", what, storage.ErrConflict)
	}
	return nil
}

func (s *Storage) SaveProcessInstance(ctx context.Context, processInstance runtime.ProcessInstance) error {
	return saveProcessInstance(ctx, s.querier(), processInstance)
}

func saveProcessInstance(ctx context.Context, q querier, pi runtime.ProcessInstance) error {
	data, err := marshal(pi)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO process_instance (instance_id, definition_key, process_id, status, start_time, data) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (instance_id) DO UPDATE SET status = excluded.status, data = excluded.data`,
		pi.InstanceId, pi.DefinitionKey, pi.ProcessId, string(pi.Status), zsql.UnixNano(pi.StartTime), data)
	if err != nil {
		return fmt.Errorf("failed to save process instance %s: %w", pi.InstanceId, err)
	}
	return nil
}

var _ storage.NodeInstanceStorageReader = &Storage{}

func (s *Storage) FindNodeInstanceByKey(ctx context.Context, key int64) (runtime.NodeInstance, error) {
	return getOne[runtime.NodeInstance](ctx, s.querier(), `SELECT data FROM node_instance WHERE key = ?`, key)
}

func (s *Storage) FindNodeInstances(ctx context.Context, instanceId string) ([]runtime.NodeInstance, error) {
	return getMany[runtime.NodeInstance](ctx, s.querier(),
		`SELECT data FROM node_instance WHERE instance_id = ? ORDER BY trigger_time ASC, key ASC`, instanceId)
}

var _ storage.NodeInstanceStorageWriter = &Storage{}

func (s *Storage) SaveNodeInstance(ctx context.Context, nodeInstance runtime.NodeInstance) error {
	return saveNodeInstance(ctx, s.querier(), nodeInstance)
}

func saveNodeInstance(ctx context.Context, q querier, ni runtime.NodeInstance) error {
	data, err := marshal(ni)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO node_instance (key, instance_id, trigger_time, data) VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET data = excluded.data`,
		ni.Key, ni.InstanceId, zsql.UnixNano(ni.TriggerTime), data)
	if err != nil {
		return fmt.Errorf("failed to save node instance %d: %w", ni.Key, err)
	}
	return nil
}

var _ storage.HumanTaskStorageReader = &Storage{}

func (s *Storage) FindHumanTaskById(ctx context.Context, taskId string) (runtime.HumanTask, error) {
	return getOne[runtime.HumanTask](ctx, s.querier(), `SELECT data FROM human_task WHERE task_id = ?`, taskId)
}

func (s *Storage) FindHumanTasksByInstance(ctx context.Context, instanceId string) ([]runtime.HumanTask, error) {
	return getMany[runtime.HumanTask](ctx, s.querier(),
		`SELECT data FROM human_task WHERE instance_id = ? ORDER BY created_at ASC, task_id ASC`, instanceId)
}

func (s *Storage) FindHumanTasksForUser(ctx context.Context, userId string, statuses []runtime.HumanTaskStatus) ([]runtime.HumanTask, error) {
	query := `SELECT data FROM human_task
		WHERE (assignee = ? OR task_id IN (SELECT task_id FROM human_task_candidate WHERE user_id = ?))`
	args := []any{userId, userId}
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += ` AND status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY priority DESC, created_at ASC, task_id ASC`
	return getMany[runtime.HumanTask](ctx, s.querier(), query, args...)
}

var _ storage.HumanTaskStorageWriter = &Storage{}

func (s *Storage) CreateHumanTask(ctx context.Context, task runtime.HumanTask) error {
	return s.inTx(ctx, func(q querier) error {
		return createHumanTask(ctx, q, task)
	})
}

func createHumanTask(ctx context.Context, q querier, task runtime.HumanTask) error {
	data, err := marshal(task)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO human_task (task_id, instance_id, status, assignee, priority, created_at, version, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (task_id) DO NOTHING`,
		task.TaskId, task.InstanceId, string(task.Status), zsql.ToNullString(task.Assignee), task.Priority,
		zsql.UnixNano(task.CreatedAt), task.Version, data)
	if err != nil {
		return fmt.Errorf("failed to create human task %s: %w", task.TaskId, err)
	}
	if err := inserted(res, "human task "+task.TaskId); err != nil {
		return err
	}
	return saveCandidates(ctx, q, task)
}

func (s *Storage) SaveHumanTask(ctx context.Context, task runtime.HumanTask) error {
	return s.inTx(ctx, func(q querier) error {
		return saveHumanTask(ctx, q, task)
	})
}

func (s *Storage) UpdateHumanTask(ctx context.Context, task runtime.HumanTask, expectedVersion int64) error {
	return s.inTx(ctx, func(q querier) error {
		return updateHumanTask(ctx, q, task, expectedVersion)
	})
}

func saveHumanTask(ctx context.Context, q querier, task runtime.HumanTask) error {
	data, err := marshal(task)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO human_task (task_id, instance_id, status, assignee, priority, created_at, version, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (task_id) DO UPDATE SET status = excluded.status, assignee = excluded.assignee,
			priority = excluded.priority, version = excluded.version, data = excluded.data`,
		task.TaskId, task.InstanceId, string(task.Status), zsql.ToNullString(task.Assignee), task.Priority,
		zsql.UnixNano(task.CreatedAt), task.Version, data)
	if err != nil {
		return fmt.Errorf("failed to save human task %s: %w", task.TaskId, err)
	}
	return saveCandidates(ctx, q, task)
}

func updateHumanTask(ctx context.Context, q querier, task runtime.HumanTask, expectedVersion int64) error {
	data, err := marshal(task)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `
		UPDATE human_task SET status = ?, assignee = ?, priority = ?, version = ?, data = ?
		WHERE task_id = ? AND version = ?`,
		string(task.Status), zsql.ToNullString(task.Assignee), task.Priority, task.Version, data,
		task.TaskId, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update human task %s: %w", task.TaskId, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var version int64
		err := q.QueryRowContext(ctx, `SELECT version FROM human_task WHERE task_id = ?`, task.TaskId).Scan(&version)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("task %s has version %d, expected %d: %w", task.TaskId, version, expectedVersion, storage.ErrConflict)
	}
	return saveCandidates(ctx, q, task)
}

func saveCandidates(ctx context.Context, q querier, task runtime.HumanTask) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM human_task_candidate WHERE task_id = ?`, task.TaskId); err != nil {
		return fmt.Errorf("failed to clear candidates of %s: %w", task.TaskId, err)
	}
	for _, user := range task.CandidateUsers {
		_, err := q.ExecContext(ctx, `INSERT OR IGNORE INTO human_task_candidate (task_id, user_id) VALUES (?, ?)`, task.TaskId, user)
		if err != nil {
			return fmt.Errorf("failed to save candidate %s of %s: %w", user, task.TaskId, err)
		}
	}
	return nil
}

var _ storage.TaskAssignmentStorageReader = &Storage{}

func (s *Storage) FindTaskAssignments(ctx context.Context, taskId string) ([]runtime.TaskAssignment, error) {
	return getMany[runtime.TaskAssignment](ctx, s.querier(),
		`SELECT data FROM task_assignment WHERE task_id = ? ORDER BY assigned_at ASC, key ASC`, taskId)
}

var _ storage.TaskAssignmentStorageWriter = &Storage{}

func (s *Storage) SaveTaskAssignment(ctx context.Context, assignment runtime.TaskAssignment) error {
	return saveTaskAssignment(ctx, s.querier(), assignment)
}

func saveTaskAssignment(ctx context.Context, q querier, a runtime.TaskAssignment) error {
	data, err := marshal(a)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO task_assignment (key, task_id, assigned_at, data) VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET data = excluded.data`,
		a.Key, a.TaskId, zsql.UnixNano(a.AssignedAt), data)
	if err != nil {
		return fmt.Errorf("failed to save task assignment %d: %w", a.Key, err)
	}
	return nil
}

var _ storage.AuditLogStorageReader = &Storage{}

func (s *Storage) FindAuditLogs(ctx context.Context, entityType runtime.AuditEntityType, entityId string) ([]runtime.AuditLog, error) {
	return getMany[runtime.AuditLog](ctx, s.querier(),
		`SELECT data FROM audit_log WHERE entity_type = ? AND entity_id = ? ORDER BY timestamp ASC, key ASC`,
		string(entityType), entityId)
}

var _ storage.AuditLogStorageWriter = &Storage{}

func (s *Storage) SaveAuditLog(ctx context.Context, log runtime.AuditLog) error {
	return saveAuditLog(ctx, s.querier(), log)
}

func saveAuditLog(ctx context.Context, q querier, l runtime.AuditLog) error {
	data, err := marshal(l)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO audit_log (key, entity_type, entity_id, timestamp, data) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET data = excluded.data`,
		l.Key, string(l.EntityType), l.EntityId, zsql.UnixNano(l.Timestamp), data)
	if err != nil {
		return fmt.Errorf("failed to save audit log %d: %w", l.Key, err)
	}
	return nil
}

var _ storage.RuleStorageReader = &Storage{}

func (s *Storage) findRule(ctx context.Context, ruleType, id string, dest any) error {
	var data string
	err := s.querier().QueryRowContext(ctx, `SELECT data FROM rule_model WHERE rule_type = ? AND id = ?`, ruleType, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := runtime.DecodeJSON([]byte(data), dest); err != nil {
		return fmt.Errorf("failed to unmarshal %s %s: %w", ruleType, id, err)
	}
	return nil
}

func (s *Storage) FindDecisionTreeById(ctx context.Context, id string) (tree.DecisionTree, error) {
	var res tree.DecisionTree
	err := s.findRule(ctx, ruleTypeDecisionTree, id, &res)
	return res, err
}

func (s *Storage) FindScorecardById(ctx context.Context, id string) (scorecard.Scorecard, error) {
	var res scorecard.Scorecard
	err := s.findRule(ctx, ruleTypeScorecard, id, &res)
	return res, err
}

func (s *Storage) FindDecisionTableById(ctx context.Context, id string) (table.DecisionTable, error) {
	var res table.DecisionTable
	err := s.findRule(ctx, ruleTypeDecisionTable, id, &res)
	return res, err
}

func (s *Storage) FindRuleSetById(ctx context.Context, id string) (ruleset.RuleSet, error) {
	var res ruleset.RuleSet
	err := s.findRule(ctx, ruleTypeRuleSet, id, &res)
	return res, err
}

var _ storage.RuleStorageWriter = &Storage{}

func (s *Storage) saveRule(ctx context.Context, ruleType, id string, model any) error {
	data, err := marshal(model)
	if err != nil {
		return err
	}
	_, err = s.querier().ExecContext(ctx, `
		INSERT INTO rule_model (rule_type, id, data) VALUES (?, ?, ?)
		ON CONFLICT (rule_type, id) DO UPDATE SET data = excluded.data`,
		ruleType, id, data)
	if err != nil {
		return fmt.Errorf("failed to save %s %s: %w", ruleType, id, err)
	}
	return nil
}

func (s *Storage) SaveDecisionTree(ctx context.Context, dt tree.DecisionTree) error {
	return s.saveRule(ctx, ruleTypeDecisionTree, dt.Id, dt)
}

func (s *Storage) SaveScorecard(ctx context.Context, sc scorecard.Scorecard) error {
	return s.saveRule(ctx, ruleTypeScorecard, sc.Id, sc)
}

func (s *Storage) SaveDecisionTable(ctx context.Context, dt table.DecisionTable) error {
	return s.saveRule(ctx, ruleTypeDecisionTable, dt.Id, dt)
}

func (s *Storage) SaveRuleSet(ctx context.Context, rs ruleset.RuleSet) error {
	return s.saveRule(ctx, ruleTypeRuleSet, rs.Id, rs)
}

// StorageBatch collects statements and runs them in one transaction on Flush.
type StorageBatch struct {
	db        *Storage
	stmtToRun []func(ctx context.Context, q querier) error
}

var _ storage.Batch = &StorageBatch{}

func (b *StorageBatch) Flush(ctx context.Context) error {
	if len(b.stmtToRun) == 0 {
		return nil
	}
	err := b.db.inTx(ctx, func(q querier) error {
		for _, stmt := range b.stmtToRun {
			if err := stmt(ctx, q); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	b.stmtToRun = make([]func(ctx context.Context, q querier) error, 0)
	return nil
}

// add freezes v at queue time, later changes by the caller are not picked up.
func add[T any](b *StorageBatch, v T, save func(ctx context.Context, q querier, v T) error) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %T: %w", v, err)
	}
	var frozen T
	if err := runtime.DecodeJSON(data, &frozen); err != nil {
		return fmt.Errorf("failed to unmarshal %T: %w", v, err)
	}
	b.stmtToRun = append(b.stmtToRun, func(ctx context.Context, q querier) error {
		return save(ctx, q, frozen)
	})
	return nil
}

func (b *StorageBatch) SaveProcessDefinition(ctx context.Context, definition runtime.ProcessDefinition) error {
	return add(b, definition, saveProcessDefinition)
}

func (b *StorageBatch) CreateProcessInstance(ctx context.Context, processInstance runtime.ProcessInstance) error {
	return add(b, processInstance, createProcessInstance)
}

func (b *StorageBatch) SaveProcessInstance(ctx context.Context, processInstance runtime.ProcessInstance) error {
	return add(b, processInstance, saveProcessInstance)
}

func (b *StorageBatch) SaveNodeInstance(ctx context.Context, nodeInstance runtime.NodeInstance) error {
	return add(b, nodeInstance, saveNodeInstance)
}

func (b *StorageBatch) CreateHumanTask(ctx context.Context, task runtime.HumanTask) error {
	return add(b, task, createHumanTask)
}

func (b *StorageBatch) SaveHumanTask(ctx context.Context, task runtime.HumanTask) error {
	return add(b, task, saveHumanTask)
}

func (b *StorageBatch) UpdateHumanTask(ctx context.Context, task runtime.HumanTask, expectedVersion int64) error {
	return add(b, task, func(ctx context.Context, q querier, task runtime.HumanTask) error {
		return updateHumanTask(ctx, q, task, expectedVersion)
	})
}

func (b *StorageBatch) SaveTaskAssignment(ctx context.Context, assignment runtime.TaskAssignment) error {
	return add(b, assignment, saveTaskAssignment)
}

func (b *StorageBatch) SaveAuditLog(ctx context.Context, log runtime.AuditLog) error {
	return add(b, log, saveAuditLog)
}
