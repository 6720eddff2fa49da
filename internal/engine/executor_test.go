package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/flowmesh/internal/nodes"
	"github.com/flowmesh/flowmesh/internal/streaming"
	"github.com/flowmesh/flowmesh/pkg/schema"
)

// spyHandler records every invocation and delegates to fn.
type spyHandler struct {
	name string
	fn   func(req nodes.Request) (any, error)

	mu    sync.Mutex
	calls []nodes.Request
}

func (s *spyHandler) Name() string { return s.name }

func (s *spyHandler) Describe() nodes.HandlerInfo {
	return nodes.HandlerInfo{Name: s.name}
}

func (s *spyHandler) Validate(config map[string]any) error { return nil }

func (s *spyHandler) Execute(ctx context.Context, req nodes.Request) (any, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(req)
	}
	return req.Input, nil
}

func (s *spyHandler) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func echoRegistry(t *testing.T, spies ...*spyHandler) *nodes.Registry {
	t.Helper()
	r := nodes.NewRegistry()
	for _, s := range spies {
		require.NoError(t, r.Register(s))
	}
	return r
}

func echoNode(id string) schema.Node {
	return schema.Node{ID: id, Type: "echo"}
}

func TestExecute_CyclicGraphRunsNothing(t *testing.T) {
	spy := &spyHandler{name: "echo"}
	exec := New(echoRegistry(t, spy), Options{})

	wf := &schema.Workflow{
		Nodes: []schema.Node{echoNode("a"), echoNode("b")},
		Edges: edges([2]string{"a", "b"}, [2]string{"b", "a"}),
	}
	result := exec.Execute(context.Background(), wf, nil, nil)

	assert.Equal(t, schema.RunStatusFailed, result.Status)
	assert.Equal(t, 0, result.CompletedNodes)
	assert.Empty(t, result.NodeResults)
	require.NotNil(t, result.Error)
	assert.Equal(t, schema.ErrCodeCycleDetected, result.Error.Code)
	assert.Equal(t, 0, spy.callCount(), "no capability may be invoked for a cyclic graph")
}

func TestExecute_EmptyWorkflow(t *testing.T) {
	exec := New(nodes.NewRegistry(), Options{})
	result := exec.Execute(context.Background(), &schema.Workflow{}, nil, nil)

	assert.Equal(t, schema.RunStatusFailed, result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, schema.ErrCodeEmptyWorkflow, result.Error.Code)
}

func TestExecute_TopologicalResultOrder(t *testing.T) {
	spy := &spyHandler{name: "echo"}
	exec := New(echoRegistry(t, spy), Options{})

	es := edges(
		[2]string{"a", "b"},
		[2]string{"a", "c"},
		[2]string{"b", "d"},
		[2]string{"c", "d"},
	)
	wf := &schema.Workflow{
		Nodes: []schema.Node{echoNode("d"), echoNode("c"), echoNode("b"), echoNode("a")},
		Edges: es,
	}
	result := exec.Execute(context.Background(), wf, map[string]any{}, nil)
	require.Equal(t, schema.RunStatusSuccess, result.Status)
	require.Len(t, result.NodeResults, 4)

	pos := make(map[string]int, 4)
	for i, nr := range result.NodeResults {
		pos[nr.NodeID] = i
	}
	for _, e := range es {
		assert.Less(t, pos[e.Source], pos[e.Target])
	}
}

func TestExecute_FailFast(t *testing.T) {
	spy := &spyHandler{name: "echo"}
	boom := &spyHandler{name: "boom", fn: func(nodes.Request) (any, error) {
		return nil, errors.New("execution failed: upstream exploded")
	}}
	exec := New(echoRegistry(t, spy, boom), Options{})

	wf := &schema.Workflow{
		Nodes: []schema.Node{
			echoNode("n1"),
			{ID: "n2", Type: "boom"},
			echoNode("n3"),
		},
		Edges: edges([2]string{"n1", "n2"}, [2]string{"n2", "n3"}),
	}
	result := exec.Execute(context.Background(), wf, map[string]any{"k": "v"}, nil)

	assert.Equal(t, schema.RunStatusFailed, result.Status)
	require.Len(t, result.NodeResults, 2, "node after the failure must not appear")
	assert.Equal(t, schema.NodeStatusSuccess, result.NodeResults[0].Status)
	assert.Equal(t, schema.NodeStatusFailed, result.NodeResults[1].Status)
	assert.Equal(t, 1, result.CompletedNodes)
	assert.Equal(t, 3, result.TotalNodes)
	assert.Equal(t, "n2", result.FailedAtNode)
	assert.Contains(t, result.Summary, `"n2"`)
	assert.Contains(t, result.Summary, "1 of 3")
	require.NotNil(t, result.NodeResults[1].Error)
	assert.NotEmpty(t, result.NodeResults[1].Error.Code)
}

func TestExecute_SinglePredecessorPassthrough(t *testing.T) {
	producer := &spyHandler{name: "producer", fn: func(nodes.Request) (any, error) {
		return map[string]any{"a": float64(1)}, nil
	}}
	consumer := &spyHandler{name: "consumer"}
	exec := New(echoRegistry(t, producer, consumer), Options{})

	wf := &schema.Workflow{
		Nodes: []schema.Node{
			{ID: "p", Type: "producer"},
			{ID: "c", Type: "consumer"},
		},
		Edges: edges([2]string{"p", "c"}),
	}
	result := exec.Execute(context.Background(), wf, nil, nil)
	require.Equal(t, schema.RunStatusSuccess, result.Status)

	require.Len(t, consumer.calls, 1)
	assert.Equal(t, map[string]any{"a": float64(1)}, consumer.calls[0].Input)
}

func TestExecute_FinalOutputSingleTerminal(t *testing.T) {
	spy := &spyHandler{name: "echo"}
	exec := New(echoRegistry(t, spy), Options{})

	trigger := map[string]any{"payload": true}
	wf := &schema.Workflow{
		Nodes: []schema.Node{echoNode("a"), echoNode("b")},
		Edges: edges([2]string{"a", "b"}),
	}
	result := exec.Execute(context.Background(), wf, trigger, nil)
	require.Equal(t, schema.RunStatusSuccess, result.Status)
	assert.Equal(t, trigger, result.FinalOutput)
	assert.Contains(t, result.Summary, "All 2 nodes executed successfully")
}

func TestExecute_FinalOutputMergesMultipleTerminals(t *testing.T) {
	left := &spyHandler{name: "left", fn: func(nodes.Request) (any, error) {
		return map[string]any{"l": float64(1)}, nil
	}}
	right := &spyHandler{name: "right", fn: func(nodes.Request) (any, error) {
		return map[string]any{"r": float64(2)}, nil
	}}
	root := &spyHandler{name: "echo"}
	exec := New(echoRegistry(t, root, left, right), Options{})

	wf := &schema.Workflow{
		Nodes: []schema.Node{
			echoNode("root"),
			{ID: "l", Type: "left"},
			{ID: "r", Type: "right"},
		},
		Edges: edges([2]string{"root", "l"}, [2]string{"root", "r"}),
	}
	result := exec.Execute(context.Background(), wf, map[string]any{}, nil)
	require.Equal(t, schema.RunStatusSuccess, result.Status)

	merged, ok := result.FinalOutput.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), merged["l"])
	assert.Equal(t, float64(2), merged["r"])
	assert.Contains(t, merged, "_from_l")
	assert.Contains(t, merged, "_from_r")
}

func TestExecute_TemplateResolutionReachesHandler(t *testing.T) {
	spy := &spyHandler{name: "echo"}
	exec := New(echoRegistry(t, spy), Options{})

	wf := &schema.Workflow{
		Nodes: []schema.Node{{
			ID:   "greet",
			Type: "echo",
			Config: map[string]any{
				"message": "Hello {{inputData.name}}",
			},
		}},
	}
	result := exec.Execute(context.Background(), wf, map[string]any{"name": "Ada"}, nil)
	require.Equal(t, schema.RunStatusSuccess, result.Status)

	require.Len(t, spy.calls, 1)
	assert.Equal(t, "Hello Ada", spy.calls[0].Config["message"])
}

func TestExecute_DefaultsFillMissingConfigKeys(t *testing.T) {
	spy := &spyHandler{name: "echo"}
	exec := New(echoRegistry(t, spy), Options{})

	wf := &schema.Workflow{
		Defaults: map[string]any{"region": "eu-west", "retryable": false},
		Nodes: []schema.Node{{
			ID:     "n",
			Type:   "echo",
			Config: map[string]any{"region": "us-east"},
		}},
	}
	result := exec.Execute(context.Background(), wf, nil, nil)
	require.Equal(t, schema.RunStatusSuccess, result.Status)

	require.Len(t, spy.calls, 1)
	assert.Equal(t, "us-east", spy.calls[0].Config["region"], "node config wins over defaults")
	assert.Equal(t, false, spy.calls[0].Config["retryable"], "defaults fill unset keys")
}

func TestExecute_CustomNodeEndToEnd(t *testing.T) {
	exec := New(nodes.NewRegistry(), Options{})

	wf := &schema.Workflow{
		Nodes: []schema.Node{{
			ID:         "calc",
			CustomCode: "return { doubled: input.n * 2 };",
		}},
	}
	result := exec.Execute(context.Background(), wf, map[string]any{"n": 21}, nil)
	require.Equal(t, schema.RunStatusSuccess, result.Status)

	out, ok := result.FinalOutput.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 42, out["doubled"])
}

func TestExecute_UnknownLibraryNode(t *testing.T) {
	exec := New(nodes.NewRegistry(), Options{})

	wf := &schema.Workflow{
		Nodes: []schema.Node{{ID: "n", Type: "does.not.exist"}},
	}
	result := exec.Execute(context.Background(), wf, nil, nil)

	assert.Equal(t, schema.RunStatusFailed, result.Status)
	require.Len(t, result.NodeResults, 1)
	require.NotNil(t, result.NodeResults[0].Error)
	assert.Equal(t, schema.ErrCodeNodeNotFound, result.NodeResults[0].Error.Code)
}

// captureHub records published events in order.
type captureHub struct {
	mu     sync.Mutex
	events []streaming.StreamEvent
}

func (h *captureHub) Publish(_ context.Context, ev streaming.StreamEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	return nil
}

func (h *captureHub) Subscribe(context.Context, streaming.EventFilter) (<-chan streaming.StreamEvent, func(), error) {
	return nil, func() {}, nil
}

func (h *captureHub) types() []schema.EventType {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]schema.EventType, len(h.events))
	for i, ev := range h.events {
		out[i] = ev.EventType
	}
	return out
}

func TestExecute_PublishesRunLifecycleAndLogEvents(t *testing.T) {
	logger := &spyHandler{name: "logger", fn: nil}
	logger.fn = func(req nodes.Request) (any, error) {
		req.Logs.Append("info", "checkpoint", nil)
		return req.Input, nil
	}
	hub := &captureHub{}
	exec := New(echoRegistry(t, logger), Options{Hub: hub})

	wf := &schema.Workflow{Nodes: []schema.Node{{ID: "n", Type: "logger"}}}
	result := exec.Execute(context.Background(), wf, nil, nil)
	require.Equal(t, schema.RunStatusSuccess, result.Status)

	assert.Equal(t, []schema.EventType{
		schema.EventRunStarted,
		schema.EventNodeStarted,
		schema.EventLogEntry,
		schema.EventNodeCompleted,
		schema.EventRunCompleted,
	}, hub.types())

	for _, ev := range hub.events {
		assert.Equal(t, result.ID, ev.RunID)
	}
}

func TestExecute_FailedNodePublishesFailureEvents(t *testing.T) {
	boom := &spyHandler{name: "boom", fn: func(nodes.Request) (any, error) {
		return nil, errors.New("exploded")
	}}
	hub := &captureHub{}
	exec := New(echoRegistry(t, boom), Options{Hub: hub})

	wf := &schema.Workflow{Nodes: []schema.Node{{ID: "n", Type: "boom"}}}
	result := exec.Execute(context.Background(), wf, nil, nil)
	require.Equal(t, schema.RunStatusFailed, result.Status)

	types := hub.types()
	assert.Contains(t, types, schema.EventNodeFailed)
	assert.Equal(t, schema.EventRunFailed, types[len(types)-1])
}

func TestExecute_ParallelModeMatchesSequentialOutputs(t *testing.T) {
	spy := &spyHandler{name: "echo"}
	exec := New(echoRegistry(t, spy), Options{Parallel: true, PoolSize: 2})

	wf := &schema.Workflow{
		Nodes: []schema.Node{echoNode("a"), echoNode("b"), echoNode("c"), echoNode("d")},
		Edges: edges(
			[2]string{"a", "b"},
			[2]string{"a", "c"},
			[2]string{"b", "d"},
			[2]string{"c", "d"},
		),
	}
	trigger := map[string]any{"seed": float64(7)}
	result := exec.Execute(context.Background(), wf, trigger, nil)

	require.Equal(t, schema.RunStatusSuccess, result.Status)
	assert.Equal(t, 4, result.CompletedNodes)
	// d is the only terminal; echo chain propagates the merged input of b+c.
	assert.NotNil(t, result.FinalOutput)
}

func TestExecute_ParallelFailFastSkipsLaterLevels(t *testing.T) {
	spy := &spyHandler{name: "echo"}
	boom := &spyHandler{name: "boom", fn: func(nodes.Request) (any, error) {
		return nil, errors.New("branch failed")
	}}
	exec := New(echoRegistry(t, spy, boom), Options{Parallel: true, PoolSize: 2})

	wf := &schema.Workflow{
		Nodes: []schema.Node{
			echoNode("root"),
			{ID: "bad", Type: "boom"},
			echoNode("good"),
			echoNode("tail"),
		},
		Edges: edges(
			[2]string{"root", "bad"},
			[2]string{"root", "good"},
			[2]string{"bad", "tail"},
			[2]string{"good", "tail"},
		),
	}
	result := exec.Execute(context.Background(), wf, map[string]any{}, nil)

	assert.Equal(t, schema.RunStatusFailed, result.Status)
	assert.Equal(t, "bad", result.FailedAtNode)
	for _, nr := range result.NodeResults {
		assert.NotEqual(t, "tail", nr.NodeID, "level after the failure must not run")
	}
}
