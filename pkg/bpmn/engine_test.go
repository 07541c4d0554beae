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
	"os"
	"testing"

	"github.com/pbinitiative/zendecision/internal/appcontext"
	"github.com/pbinitiative/zendecision/pkg/bpmn/runtime"
	"github.com/pbinitiative/zendecision/pkg/decision"
	"github.com/pbinitiative/zendecision/pkg/decision/scorecard"
	otelPkg "github.com/pbinitiative/zendecision/pkg/otel"
	"github.com/pbinitiative/zendecision/pkg/ptr"
	"github.com/pbinitiative/zendecision/pkg/storage"
	"github.com/pbinitiative/zendecision/pkg/storage/inmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

var bpmnEngine Engine
var engineStorage *inmemory.Storage

func TestMain(m *testing.M) {
	engineStorage = inmemory.NewStorage()

	var exitCode int

	defer func() {
		os.Exit(exitCode)
	}()

	bpmnEngine = NewEngine(EngineWithStorage(engineStorage))

	// Run the tests
	exitCode = m.Run()
}

// linear builds start -> nodes... -> end with unconditional edges
func linear(id string, nodes ...runtime.Node) runtime.ProcessDefinition {
	all := append([]runtime.Node{{Id: "start", Type: runtime.NodeTypeStart}}, nodes...)
	all = append(all, runtime.Node{Id: "end", Type: runtime.NodeTypeEnd})
	edges := make([]runtime.Edge, 0, len(all)-1)
	for i := 1; i < len(all); i++ {
		edges = append(edges, runtime.Edge{Source: all[i-1].Id, Target: all[i].Id})
	}
	return runtime.ProcessDefinition{
		Id:    id,
		Name:  id,
		Nodes: all,
		Edges: edges,
	}
}

func creditScorecard(id string) scorecard.Scorecard {
	return scorecard.Scorecard{
		Id:        id,
		Name:      "Credit score",
		BaseScore: 600,
		Pdo:       20,
		BaseOdds:  50,
		Characteristics: []scorecard.Characteristic{
			{
				Name:   "income",
				Weight: 1,
				Attributes: []scorecard.Attribute{
					{Attribute: "low", MinValue: ptr.To(0.0), MaxValue: ptr.To(3000.0), Woe: ptr.To(-0.5)},
				},
			},
		},
	}
}

func nodeStatuses(t *testing.T, instanceId string) map[string]runtime.NodeInstanceStatus {
	history, err := bpmnEngine.GetNodeHistory(t.Context(), instanceId)
	require.NoError(t, err)
	res := map[string]runtime.NodeInstanceStatus{}
	for _, ni := range history {
		res[ni.NodeId] = ni.Status
	}
	return res
}

func TestExecuteScorecardProcess(t *testing.T) {
	// given
	require.NoError(t, engineStorage.SaveScorecard(t.Context(), creditScorecard("credit-e2e")))
	definition := linear("scorecard-process", runtime.Node{
		Id:   "score",
		Type: runtime.NodeTypeBusinessRule,
		Config: map[string]any{
			"rule_type": "SCORECARD",
			"rule_id":   "credit-e2e",
		},
	})

	// when
	res, err := bpmnEngine.Execute(t.Context(), definition, map[string]any{"income": 2000})

	// then
	require.NoError(t, err)
	assert.Equal(t, runtime.InstanceStatusCompleted, res.Status)
	assert.NoError(t, res.Error)
	assert.InDelta(t, 1072.7, res.Variables["credit_score"], 0.001)
	assert.Contains(t, res.Variables, "probability")
	assert.Equal(t, res.InstanceId, res.Variables["instance_id"])
	assert.Equal(t, "scorecard-process", res.Variables["process_id"])
	assert.Regexp(t, `^PI-\d{14}-[0-9a-f]{6}$`, res.InstanceId)

	history, err := bpmnEngine.GetNodeHistory(t.Context(), res.InstanceId)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []string{"start", "score", "end"}, []string{history[0].NodeId, history[1].NodeId, history[2].NodeId})
	for _, ni := range history {
		assert.Equal(t, runtime.NodeInstanceStatusCompleted, ni.Status)
		assert.NotNil(t, ni.CompletionTime)
	}
	assert.NotContains(t, history[1].Variables, "credit_score")
	assert.InDelta(t, 1072.7, history[1].Output["credit_score"], 0.001)

	instance, err := bpmnEngine.GetInstance(t.Context(), res.InstanceId)
	require.NoError(t, err)
	assert.Equal(t, runtime.InstanceStatusCompleted, instance.Status)
	assert.NotNil(t, instance.EndTime)
	assert.Equal(t, "end", instance.CurrentNodeId)
}

func TestBusinessRuleResultVariable(t *testing.T) {
	// given
	require.NoError(t, engineStorage.SaveScorecard(t.Context(), creditScorecard("credit-result-var")))
	definition := linear("result-variable", runtime.Node{
		Id:   "score",
		Type: runtime.NodeTypeBusinessRule,
		Config: map[string]any{
			"rule_type":       "scorecard",
			"rule_id":         "credit-result-var",
			"result_variable": "scoring",
		},
	})

	// when
	res, err := bpmnEngine.Execute(t.Context(), definition, map[string]any{"income": 1000})

	// then
	require.NoError(t, err)
	require.Equal(t, runtime.InstanceStatusCompleted, res.Status)
	scoring, ok := res.Variables["scoring"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "SCORECARD", scoring["rule_type"])
	assert.Equal(t, "credit-result-var", scoring["rule_id"])
	assert.Equal(t, true, scoring["matched"])
	assert.InDelta(t, 1072.7, scoring["score"], 0.001)
}

func TestBusinessRuleFailures(t *testing.T) {
	t.Run("missing rule config fails the node", func(t *testing.T) {
		// given
		definition := linear("missing-rule-config", runtime.Node{Id: "rule", Type: runtime.NodeTypeBusinessRule})

		// when
		res, err := bpmnEngine.Execute(t.Context(), definition, nil)

		// then
		require.NoError(t, err)
		assert.Equal(t, runtime.InstanceStatusFailed, res.Status)
		var configErr *decision.MissingRuleConfigError
		require.ErrorAs(t, res.Error, &configErr)
		assert.Equal(t, "rule", configErr.NodeId)
		assert.Equal(t, runtime.NodeInstanceStatusFailed, nodeStatuses(t, res.InstanceId)["rule"])
	})

	t.Run("unknown rule fails the instance", func(t *testing.T) {
		// given
		definition := linear("unknown-rule", runtime.Node{
			Id:     "rule",
			Type:   runtime.NodeTypeBusinessRule,
			Config: map[string]any{"rule_type": "DECISION_TREE", "rule_id": "does-not-exist"},
		})

		// when
		res, err := bpmnEngine.Execute(t.Context(), definition, nil)

		// then
		require.NoError(t, err)
		assert.Equal(t, runtime.InstanceStatusFailed, res.Status)
		var notFound *decision.RuleNotFoundError
		assert.ErrorAs(t, res.Error, &notFound)
		assert.NotEmpty(t, res.ErrorMessage)

		history, err := bpmnEngine.GetNodeHistory(t.Context(), res.InstanceId)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, runtime.NodeInstanceStatusFailed, history[1].Status)
		assert.Equal(t, res.ErrorMessage, history[1].ErrorMessage)
	})

	t.Run("unknown rule type fails the instance", func(t *testing.T) {
		// given
		definition := linear("unknown-rule-type", runtime.Node{
			Id:     "rule",
			Type:   runtime.NodeTypeBusinessRule,
			Config: map[string]any{"rule_type": "NEURAL_NET", "rule_id": "x"},
		})

		// when
		res, err := bpmnEngine.Execute(t.Context(), definition, nil)

		// then
		require.NoError(t, err)
		assert.Equal(t, runtime.InstanceStatusFailed, res.Status)
		var typeErr *decision.UnknownRuleTypeError
		assert.ErrorAs(t, res.Error, &typeErr)
	})
}

func gatewayDefinition(id string, condition string) runtime.ProcessDefinition {
	return runtime.ProcessDefinition{
		Id: id,
		Nodes: []runtime.Node{
			{Id: "start", Type: runtime.NodeTypeStart},
			{Id: "check", Type: runtime.NodeTypeGateway, Config: map[string]any{"condition": condition}},
			{Id: "high", Type: runtime.NodeTypeServiceTask, Config: map[string]any{"service": "high"}},
			{Id: "low", Type: runtime.NodeTypeServiceTask, Config: map[string]any{"service": "low"}},
			{Id: "end-high", Type: runtime.NodeTypeEnd},
			{Id: "end-low", Type: runtime.NodeTypeEnd},
		},
		Edges: []runtime.Edge{
			{Source: "start", Target: "check"},
			{Id: "to-high", Source: "check", Target: "high", Condition: "amount > 1000"},
			{Id: "to-low", Source: "check", Target: "low", Condition: "amount <= 1000"},
			{Source: "high", Target: "end-high"},
			{Source: "low", Target: "end-low"},
		},
	}
}

func TestGatewayRouting(t *testing.T) {
	definition := gatewayDefinition("gateway-routing", "amount > 1000")

	t.Run("takes the first edge whose condition holds", func(t *testing.T) {
		// when
		res, err := bpmnEngine.Execute(t.Context(), definition, map[string]any{"amount": 5000})

		// then
		require.NoError(t, err)
		assert.Equal(t, runtime.InstanceStatusCompleted, res.Status)
		assert.Equal(t, true, res.Variables["gateway_result"])
		assert.Equal(t, "high", res.Variables["service_executed"])
		statuses := nodeStatuses(t, res.InstanceId)
		assert.Contains(t, statuses, "end-high")
		assert.NotContains(t, statuses, "low")
	})

	t.Run("falls through to the next edge", func(t *testing.T) {
		// when
		res, err := bpmnEngine.Execute(t.Context(), definition, map[string]any{"amount": 10})

		// then
		require.NoError(t, err)
		assert.Equal(t, runtime.InstanceStatusCompleted, res.Status)
		assert.Equal(t, false, res.Variables["gateway_result"])
		assert.Equal(t, "low", res.Variables["service_executed"])
	})

	t.Run("accepts a leading equals sign", func(t *testing.T) {
		// given
		def := gatewayDefinition("gateway-feel-style", "= amount > 1000")

		// when
		res, err := bpmnEngine.Execute(t.Context(), def, map[string]any{"amount": 5000})

		// then
		require.NoError(t, err)
		assert.Equal(t, runtime.InstanceStatusCompleted, res.Status)
		assert.Equal(t, true, res.Variables["gateway_result"])
	})
}

func TestGatewayEvaluationErrorFailsInstance(t *testing.T) {
	t.Run("unparseable gateway condition", func(t *testing.T) {
		// given
		definition := gatewayDefinition("gateway-broken-condition", "amount >")

		// when
		res, err := bpmnEngine.Execute(t.Context(), definition, map[string]any{"amount": 5000})

		// then
		require.NoError(t, err)
		assert.Equal(t, runtime.InstanceStatusFailed, res.Status)
		var gwErr *GatewayEvaluationError
		require.ErrorAs(t, res.Error, &gwErr)
		assert.Equal(t, "check", gwErr.NodeId)
		assert.Equal(t, "check", res.CurrentNodeId)
		assert.Equal(t, runtime.NodeInstanceStatusFailed, nodeStatuses(t, res.InstanceId)["check"])
	})

	t.Run("edge condition on an undefined variable", func(t *testing.T) {
		// given
		definition := gatewayDefinition("gateway-undefined-variable", "")

		// when
		res, err := bpmnEngine.Execute(t.Context(), definition, map[string]any{"other": 1})

		// then
		require.NoError(t, err)
		assert.Equal(t, runtime.InstanceStatusFailed, res.Status)
		var gwErr *GatewayEvaluationError
		require.ErrorAs(t, res.Error, &gwErr)
		assert.Equal(t, "amount > 1000", gwErr.Expression)
		assert.NotContains(t, res.Variables, "gateway_result")
	})

	t.Run("oversized string repetition", func(t *testing.T) {
		// given
		definition := gatewayDefinition("gateway-oversized-repetition", `"ab" * 9223372036854775807 == ""`)

		// when
		res, err := bpmnEngine.Execute(t.Context(), definition, map[string]any{"amount": 5000})

		// then
		require.NoError(t, err)
		assert.Equal(t, runtime.InstanceStatusFailed, res.Status)
		var gwErr *GatewayEvaluationError
		require.ErrorAs(t, res.Error, &gwErr)
		stored, err := bpmnEngine.GetInstance(t.Context(), res.InstanceId)
		require.NoError(t, err)
		assert.Equal(t, runtime.InstanceStatusFailed, stored.Status)
	})
}

func TestNoRouteFailsInstance(t *testing.T) {
	// given
	definition := runtime.ProcessDefinition{
		Id: "no-route",
		Nodes: []runtime.Node{
			{Id: "start", Type: runtime.NodeTypeStart},
			{Id: "check", Type: runtime.NodeTypeGateway},
			{Id: "end", Type: runtime.NodeTypeEnd},
		},
		Edges: []runtime.Edge{
			{Source: "start", Target: "check"},
			{Source: "check", Target: "end", Condition: "amount > 1000"},
		},
	}

	// when
	res, err := bpmnEngine.Execute(t.Context(), definition, map[string]any{"amount": 5})

	// then
	require.NoError(t, err)
	assert.Equal(t, runtime.InstanceStatusFailed, res.Status)
	assert.ErrorIs(t, res.Error, ErrNoRoute)
	var routingErr *RoutingError
	require.ErrorAs(t, res.Error, &routingErr)
	assert.Equal(t, "check", routingErr.NodeId)
	assert.Equal(t, res.InstanceId, routingErr.InstanceId)
	assert.Equal(t, runtime.NodeInstanceStatusFailed, nodeStatuses(t, res.InstanceId)["check"])

	logs, err := bpmnEngine.GetInstanceAuditLog(t.Context(), res.InstanceId)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, runtime.AuditProcessStarted, logs[0].EventType)
	assert.Equal(t, runtime.AuditProcessFailed, logs[1].EventType)
	assert.Equal(t, string(runtime.InstanceStatusFailed), logs[1].NewValue)
}

func TestNodeWithoutOutgoingEdgeHasNoRoute(t *testing.T) {
	// given
	definition := runtime.ProcessDefinition{
		Id: "dead-end",
		Nodes: []runtime.Node{
			{Id: "start", Type: runtime.NodeTypeStart},
			{Id: "task", Type: runtime.NodeTypeServiceTask},
		},
		Edges: []runtime.Edge{
			{Source: "start", Target: "task"},
		},
	}

	// when
	res, err := bpmnEngine.Execute(t.Context(), definition, nil)

	// then
	require.NoError(t, err)
	assert.Equal(t, runtime.InstanceStatusFailed, res.Status)
	assert.ErrorIs(t, res.Error, ErrNoRoute)
}

func TestCycleFailsInstance(t *testing.T) {
	// given
	definition := runtime.ProcessDefinition{
		Id: "cycle",
		Nodes: []runtime.Node{
			{Id: "start", Type: runtime.NodeTypeStart},
			{Id: "a", Type: runtime.NodeTypeServiceTask, Config: map[string]any{"service": "a"}},
			{Id: "b", Type: runtime.NodeTypeServiceTask, Config: map[string]any{"service": "b"}},
			{Id: "end", Type: runtime.NodeTypeEnd},
		},
		Edges: []runtime.Edge{
			{Source: "start", Target: "a"},
			{Source: "a", Target: "b"},
			{Source: "b", Target: "a"},
			{Source: "b", Target: "end"},
		},
	}

	// when
	res, err := bpmnEngine.Execute(t.Context(), definition, nil)

	// then
	require.NoError(t, err)
	assert.Equal(t, runtime.InstanceStatusFailed, res.Status)
	assert.ErrorIs(t, res.Error, ErrCycleDetected)
	var routingErr *RoutingError
	require.ErrorAs(t, res.Error, &routingErr)
	assert.Equal(t, "a", routingErr.NodeId)

	history, err := bpmnEngine.GetNodeHistory(t.Context(), res.InstanceId)
	require.NoError(t, err)
	assert.Len(t, history, 3)
	for _, ni := range history {
		assert.Equal(t, runtime.NodeInstanceStatusCompleted, ni.Status)
	}
}

func TestServiceTaskHandlers(t *testing.T) {
	definition := linear("service-task", runtime.Node{
		Id:     "enrich",
		Type:   runtime.NodeTypeServiceTask,
		Config: map[string]any{"service": "enrichment"},
	})

	t.Run("without handler the service name is recorded", func(t *testing.T) {
		// when
		res, err := bpmnEngine.Execute(t.Context(), definition, nil)

		// then
		require.NoError(t, err)
		assert.Equal(t, runtime.InstanceStatusCompleted, res.Status)
		assert.Equal(t, "enrichment", res.Variables["service_executed"])
	})

	t.Run("service handler output is merged", func(t *testing.T) {
		// given
		var seen ServiceTaskContext
		h := bpmnEngine.NewTaskHandler().Service("enrichment").Handler(func(ctx context.Context, task ServiceTaskContext) (map[string]any, error) {
			seen = task
			task.Variables["customer"] = "mutated"
			return map[string]any{"segment": "retail"}, nil
		})
		defer bpmnEngine.RemoveHandler(h)

		// when
		res, err := bpmnEngine.Execute(t.Context(), definition, map[string]any{"customer": "c-1"})

		// then
		require.NoError(t, err)
		assert.Equal(t, runtime.InstanceStatusCompleted, res.Status)
		assert.Equal(t, "retail", res.Variables["segment"])
		assert.Equal(t, "c-1", res.Variables["customer"])
		assert.NotContains(t, res.Variables, "service_executed")
		assert.Equal(t, res.InstanceId, seen.InstanceId)
		assert.Equal(t, "enrich", seen.Node.Id)
		assert.Equal(t, "enrichment", seen.Service)
	})

	t.Run("id handler wins over service handler", func(t *testing.T) {
		// given
		byService := bpmnEngine.NewTaskHandler().Service("enrichment").Handler(func(ctx context.Context, task ServiceTaskContext) (map[string]any, error) {
			return map[string]any{"handled_by": "service"}, nil
		})
		defer bpmnEngine.RemoveHandler(byService)
		byId := bpmnEngine.NewTaskHandler().Id("enrich").Handler(func(ctx context.Context, task ServiceTaskContext) (map[string]any, error) {
			return map[string]any{"handled_by": "id"}, nil
		})
		defer bpmnEngine.RemoveHandler(byId)

		// when
		res, err := bpmnEngine.Execute(t.Context(), definition, nil)

		// then
		require.NoError(t, err)
		assert.Equal(t, "id", res.Variables["handled_by"])
	})

	t.Run("handler error fails the instance", func(t *testing.T) {
		// given
		cause := errors.New("upstream unavailable")
		h := bpmnEngine.NewTaskHandler().Id("enrich").Handler(func(ctx context.Context, task ServiceTaskContext) (map[string]any, error) {
			return nil, cause
		})
		defer bpmnEngine.RemoveHandler(h)

		// when
		res, err := bpmnEngine.Execute(t.Context(), definition, nil)

		// then
		require.NoError(t, err)
		assert.Equal(t, runtime.InstanceStatusFailed, res.Status)
		var serviceErr *ServiceTaskError
		require.ErrorAs(t, res.Error, &serviceErr)
		assert.Equal(t, "enrichment", serviceErr.Service)
		assert.ErrorIs(t, res.Error, cause)
	})
}

func TestStartOrExecute(t *testing.T) {
	// given
	stored, err := bpmnEngine.SaveProcessDefinition(t.Context(), linear("start-or-execute"))
	require.NoError(t, err)

	t.Run("by key", func(t *testing.T) {
		res, err := bpmnEngine.StartOrExecute(t.Context(), stored.Key, map[string]any{"a": 1})
		require.NoError(t, err)
		assert.Equal(t, runtime.InstanceStatusCompleted, res.Status)
		assert.Equal(t, 1, res.Variables["a"])
	})

	t.Run("by process id", func(t *testing.T) {
		res, err := bpmnEngine.StartOrExecuteById(t.Context(), "start-or-execute", nil)
		require.NoError(t, err)
		assert.Equal(t, runtime.InstanceStatusCompleted, res.Status)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := bpmnEngine.StartOrExecute(t.Context(), -1, nil)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("unknown process id", func(t *testing.T) {
		_, err := bpmnEngine.StartOrExecuteById(t.Context(), "never-loaded", nil)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestInputIsNotMutated(t *testing.T) {
	// given
	input := map[string]any{"nested": map[string]any{"a": 1}}
	h := bpmnEngine.NewTaskHandler().Id("mutate").Handler(func(ctx context.Context, task ServiceTaskContext) (map[string]any, error) {
		task.Variables["nested"].(map[string]any)["a"] = 2
		return nil, nil
	})
	defer bpmnEngine.RemoveHandler(h)

	// when
	res, err := bpmnEngine.Execute(t.Context(), linear("no-mutation", runtime.Node{Id: "mutate", Type: runtime.NodeTypeServiceTask}), input)

	// then
	require.NoError(t, err)
	assert.Equal(t, runtime.InstanceStatusCompleted, res.Status)
	assert.Equal(t, map[string]any{"nested": map[string]any{"a": 1}}, input)
	assert.NotContains(t, input, "instance_id")
}

func TestInvalidDefinitionDoesNotStart(t *testing.T) {
	// given
	definition := runtime.ProcessDefinition{
		Id:    "no-start",
		Nodes: []runtime.Node{{Id: "end", Type: runtime.NodeTypeEnd}},
	}

	// when
	_, err := bpmnEngine.Execute(t.Context(), definition, nil)

	// then
	var defErr *DefinitionError
	require.ErrorAs(t, err, &defErr)
	assert.ErrorIs(t, err, ErrNoStartNode)
	instances, err := bpmnEngine.ListInstances(t.Context(), storage.ProcessInstanceFilter{ProcessId: "no-start"})
	require.NoError(t, err)
	assert.Empty(t, instances)
}

func TestStartedByComesFromContext(t *testing.T) {
	// given
	ctx := appcontext.WithUserId(t.Context(), "alice")

	// when
	res, err := bpmnEngine.Execute(ctx, linear("started-by"), nil)

	// then
	require.NoError(t, err)
	instance, err := bpmnEngine.GetInstance(t.Context(), res.InstanceId)
	require.NoError(t, err)
	assert.Equal(t, "alice", instance.StartedBy)
	logs, err := bpmnEngine.GetInstanceAuditLog(t.Context(), res.InstanceId)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, "alice", logs[0].UserId)
}

func TestListInstances(t *testing.T) {
	// given
	definition := gatewayDefinition("list-instances", "")
	ok, err := bpmnEngine.Execute(t.Context(), definition, map[string]any{"amount": 1})
	require.NoError(t, err)
	failed, err := bpmnEngine.Execute(t.Context(), definition, map[string]any{})
	require.NoError(t, err)

	// when
	all, err := bpmnEngine.ListInstances(t.Context(), storage.ProcessInstanceFilter{ProcessId: "list-instances"})
	require.NoError(t, err)
	onlyFailed, err := bpmnEngine.ListInstances(t.Context(), storage.ProcessInstanceFilter{ProcessId: "list-instances", Status: runtime.InstanceStatusFailed})
	require.NoError(t, err)

	// then
	require.Len(t, all, 2)
	assert.Equal(t, ok.InstanceId, all[0].InstanceId)
	require.Len(t, onlyFailed, 1)
	assert.Equal(t, failed.InstanceId, onlyFailed[0].InstanceId)
}

func TestAbortInstance(t *testing.T) {
	// given
	res, err := bpmnEngine.Execute(t.Context(), linear("abort", runtime.Node{Id: "review", Type: runtime.NodeTypeUserTask}), map[string]any{"amount": 10})
	require.NoError(t, err)
	require.Equal(t, runtime.InstanceStatusRunning, res.Status)
	tasks, err := bpmnEngine.ListTasksByInstance(t.Context(), res.InstanceId)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	// when
	err = bpmnEngine.AbortInstance(t.Context(), res.InstanceId, "admin")

	// then
	require.NoError(t, err)
	instance, err := bpmnEngine.GetInstance(t.Context(), res.InstanceId)
	require.NoError(t, err)
	assert.Equal(t, runtime.InstanceStatusAborted, instance.Status)
	assert.NotNil(t, instance.EndTime)
	assert.EqualValues(t, 10, instance.VariableHolder.GetVariable("amount"))

	logs, err := bpmnEngine.GetInstanceAuditLog(t.Context(), res.InstanceId)
	require.NoError(t, err)
	last := logs[len(logs)-1]
	assert.Equal(t, runtime.AuditProcessAborted, last.EventType)
	assert.Equal(t, "admin", last.UserId)
	assert.Equal(t, string(runtime.InstanceStatusRunning), last.OldValue)
	assert.Equal(t, string(runtime.InstanceStatusAborted), last.NewValue)

	t.Run("second abort is rejected", func(t *testing.T) {
		err := bpmnEngine.AbortInstance(t.Context(), res.InstanceId, "admin")
		var stateErr *InstanceStateError
		require.ErrorAs(t, err, &stateErr)
		assert.Equal(t, runtime.InstanceStatusAborted, stateErr.Status)
	})

	t.Run("open task can not be claimed anymore", func(t *testing.T) {
		_, err := bpmnEngine.ClaimTask(t.Context(), tasks[0].TaskId, "alice")
		var stateErr *InstanceStateError
		assert.ErrorAs(t, err, &stateErr)

		task, err := bpmnEngine.GetTask(t.Context(), tasks[0].TaskId)
		require.NoError(t, err)
		assert.Equal(t, runtime.HumanTaskStatusReady, task.Status)
	})

	t.Run("unknown instance", func(t *testing.T) {
		err := bpmnEngine.AbortInstance(t.Context(), "PI-unknown", "admin")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestGetNodeHistoryOfUnknownInstance(t *testing.T) {
	_, err := bpmnEngine.GetNodeHistory(t.Context(), "PI-unknown")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEngineName(t *testing.T) {
	engine := NewEngine(EngineWithName("named"))
	assert.Equal(t, "named", engine.Name())
	assert.NotNil(t, engine.Persistence())
	assert.NotNil(t, engine.Decisions())
}

// instanceFlushFailure fails every batch that carries a new process instance
type instanceFlushFailure struct {
	storage.Storage
}

func (s instanceFlushFailure) NewBatch() storage.Batch {
	return &instanceFlushFailureBatch{Batch: s.Storage.NewBatch()}
}

type instanceFlushFailureBatch struct {
	storage.Batch
	createsInstance bool
}

func (b *instanceFlushFailureBatch) CreateProcessInstance(ctx context.Context, instance runtime.ProcessInstance) error {
	b.createsInstance = true
	return b.Batch.CreateProcessInstance(ctx, instance)
}

func (b *instanceFlushFailureBatch) Flush(ctx context.Context) error {
	if b.createsInstance {
		return errors.New("disk full")
	}
	return b.Batch.Flush(ctx)
}

func TestRunningGaugeWhenStartIsNotStored(t *testing.T) {
	// given
	reader := sdkmetric.NewManualReader()
	metrics, err := otelPkg.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("engine-test"))
	require.NoError(t, err)
	engine := NewEngine(
		EngineWithStorage(instanceFlushFailure{Storage: inmemory.NewStorage()}),
		EngineWithMetrics(metrics),
	)

	// when
	_, err = engine.Execute(t.Context(), linear("unstored-start"), map[string]any{"amount": 1})

	// then
	assert.ErrorContains(t, err, "disk full")
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(t.Context(), &rm))
	running := int64(0)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != "processes_running" {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				running += dp.Value
			}
		}
	}
	assert.Equal(t, int64(0), running)
}
