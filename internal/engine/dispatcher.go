package engine

import (
	"context"

	"github.com/flowmesh/flowmesh/internal/nodes"
	"github.com/flowmesh/flowmesh/internal/runtime"
	"github.com/flowmesh/flowmesh/internal/sandbox"
	"github.com/flowmesh/flowmesh/pkg/schema"
)

// Dispatcher routes a node to its implementation: custom nodes go to the
// sandbox, library nodes to their registered handler.
type Dispatcher struct {
	registry *nodes.Registry
	sandbox  *sandbox.Sandbox
}

// NewDispatcher creates a Dispatcher over an explicit registry and sandbox.
func NewDispatcher(registry *nodes.Registry, sb *sandbox.Sandbox) *Dispatcher {
	return &Dispatcher{registry: registry, sandbox: sb}
}

// Dispatch executes one node and returns its output together with the logs
// it produced. The returned error is the raw failure; normalization happens
// at the executor level where the node hint is known.
func (d *Dispatcher) Dispatch(ctx context.Context, node *schema.Node, input any, config map[string]any, xctx *runtime.ExecutionContext) (any, []schema.LogEntry, error) {
	if node.IsCustom() {
		if node.CustomCode == "" {
			return nil, nil, schema.NewErrorf(schema.ErrCodeInvalidCustomCode,
				"node %s is declared custom but has no code", node.ID).WithNode(node.ID)
		}
		res := d.sandbox.Run(ctx, node.CustomCode, input, config, xctx)
		if !res.Success {
			return nil, res.Logs, res.Err
		}
		return res.Value, res.Logs, nil
	}

	handler, err := d.registry.Get(node.HandlerName())
	if err != nil {
		return nil, nil, err
	}

	logs := runtime.NewLogCollector()
	out, err := handler.Execute(ctx, nodes.Request{
		Input:   input,
		Config:  config,
		Context: xctx,
		Logs:    logs,
	})
	if err != nil {
		return nil, logs.Entries(), err
	}
	return out, logs.Entries(), nil
}
