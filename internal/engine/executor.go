// Package engine orchestrates a single workflow run: graph construction and
// topological ordering, per-node input assembly, template resolution,
// dispatch to library handlers or the sandbox, and run-level bookkeeping.
// One Executor serves many runs; all per-run state lives on the stack of
// Execute.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dario.cat/mergo"
	"github.com/google/uuid"

	"github.com/flowmesh/flowmesh/internal/expressions"
	"github.com/flowmesh/flowmesh/internal/logging"
	"github.com/flowmesh/flowmesh/internal/nodes"
	"github.com/flowmesh/flowmesh/internal/normalize"
	"github.com/flowmesh/flowmesh/internal/runtime"
	"github.com/flowmesh/flowmesh/internal/sandbox"
	"github.com/flowmesh/flowmesh/internal/secrets"
	"github.com/flowmesh/flowmesh/internal/streaming"
	"github.com/flowmesh/flowmesh/pkg/schema"
)

// Recorder persists finished run results. Implemented by store.RunStore;
// intermediate per-node state is never persisted, only the final record.
type Recorder interface {
	SaveRun(ctx context.Context, result *schema.WorkflowExecutionResult) error
}

// Options configures an Executor. The zero value is a working sequential
// executor with no vault, no streaming, and no persistence.
type Options struct {
	// Parallel enables level-parallel execution of independent nodes.
	// Off by default: it changes log ordering and is an explicit opt-in.
	Parallel bool
	// PoolSize bounds in-flight nodes when Parallel is on.
	PoolSize int
	// Vault backs {{secrets.*}} template paths. May be nil.
	Vault secrets.Vault
	// Hub receives live run/node events. May be nil.
	Hub streaming.EventHub
	// Recorder persists final run results. May be nil.
	Recorder Recorder
	// SandboxTimeout bounds each custom-code node. Zero means the default.
	SandboxTimeout time.Duration
	// Logger is the engine's diagnostic sink. Nil means slog.Default.
	Logger *slog.Logger
}

// Executor runs workflows. Safe for concurrent use: each Execute call owns
// its per-run state exclusively.
type Executor struct {
	dispatcher *Dispatcher
	resolver   *expressions.Resolver
	opts       Options
	logger     *slog.Logger
}

// New creates an Executor over an explicit node registry.
func New(registry *nodes.Registry, opts Options) *Executor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		dispatcher: NewDispatcher(registry, sandbox.New(opts.SandboxTimeout)),
		resolver:   expressions.NewResolver(opts.Vault),
		opts:       opts,
		logger:     logger,
	}
}

// Execute runs a workflow to completion against a trigger payload. The run
// is fail-fast: the first node failure aborts everything downstream. Run
// failures are reported inside the result, not as a returned error; the
// returned result is never nil.
func (e *Executor) Execute(ctx context.Context, wf *schema.Workflow, trigger any, xctx *runtime.ExecutionContext) *schema.WorkflowExecutionResult {
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	startedAt := time.Now().UTC()

	if wf.Timeout != "" {
		if d, err := time.ParseDuration(wf.Timeout); err == nil && d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
	}

	result := &schema.WorkflowExecutionResult{
		ID:         runID,
		Status:     schema.RunStatusFailed,
		StartedAt:  startedAt,
		TotalNodes: len(wf.Nodes),
	}

	e.publish(ctx, streaming.StreamEvent{
		RunID:     runID,
		EventType: schema.EventRunStarted,
		Payload:   map[string]any{"totalNodes": len(wf.Nodes)},
	})

	dag, err := BuildDAG(wf.Nodes, wf.Edges)
	if err != nil {
		// Validation failure: nothing ran, no partial side effects.
		result.Error = normalize.NormalizeError(err, nil)
		result.Summary = fmt.Sprintf("Workflow validation failed: %s", result.Error.Message)
		e.finish(ctx, result)
		return result
	}

	e.logger.InfoContext(ctx, "run started",
		slog.Int("nodes", len(dag.Sorted)),
		slog.Bool("parallel", e.opts.Parallel))

	outputs := make(map[string]any, len(dag.Sorted))
	executed := make(map[string]bool, len(dag.Sorted))
	var lastExecuted string
	var failed *nodeOutcome

	if e.opts.Parallel {
		failed = e.runLevels(ctx, dag, wf, trigger, xctx, outputs, executed, &lastExecuted, result)
	} else {
		failed = e.runSequential(ctx, dag, wf, trigger, xctx, outputs, executed, &lastExecuted, result)
	}

	result.CompletedNodes = countSuccesses(result.NodeResults)

	if failed != nil {
		result.Status = schema.RunStatusFailed
		result.FailedAtNode = failed.nodeID
		result.Error = failed.result.Error
		result.Summary = fmt.Sprintf("Workflow failed at node %q: %d of %d nodes completed",
			failed.nodeID, result.CompletedNodes, result.TotalNodes)
	} else {
		result.Status = schema.RunStatusSuccess
		result.FinalOutput = e.selectFinalOutput(dag, executed, lastExecuted, outputs)
		result.Summary = fmt.Sprintf("All %d nodes executed successfully", result.CompletedNodes)
	}

	e.finish(ctx, result)
	return result
}

// runSequential walks the topological order one node at a time, stopping at
// the first failure.
func (e *Executor) runSequential(ctx context.Context, dag *DAG, wf *schema.Workflow, trigger any, xctx *runtime.ExecutionContext, outputs map[string]any, executed map[string]bool, lastExecuted *string, result *schema.WorkflowExecutionResult) *nodeOutcome {
	for _, id := range dag.Sorted {
		outcome := e.runNode(ctx, dag, wf, id, trigger, xctx, outputs)
		result.NodeResults = append(result.NodeResults, outcome.result)
		if outcome.err != nil {
			return &outcome
		}
		outputs[id] = outcome.output
		executed[id] = true
		*lastExecuted = id
	}
	return nil
}

// runLevels executes one DAG level at a time: nodes within a level run
// concurrently, outputs commit only once the whole level finishes. A failure
// anywhere in a level lets its siblings finish, then aborts the run.
func (e *Executor) runLevels(ctx context.Context, dag *DAG, wf *schema.Workflow, trigger any, xctx *runtime.ExecutionContext, outputs map[string]any, executed map[string]bool, lastExecuted *string, result *schema.WorkflowExecutionResult) *nodeOutcome {
	pool := newWorkerPool(e.opts.PoolSize)

	for _, level := range dag.Levels {
		tasks := make([]levelTask, len(level))
		for i, id := range level {
			id := id
			tasks[i] = levelTask{
				nodeID: id,
				run: func(ctx context.Context) nodeOutcome {
					return e.runNode(ctx, dag, wf, id, trigger, xctx, outputs)
				},
			}
		}

		outcomes := pool.runLevel(ctx, tasks)

		var firstFailure *nodeOutcome
		for i := range outcomes {
			result.NodeResults = append(result.NodeResults, outcomes[i].result)
			if outcomes[i].err != nil {
				if firstFailure == nil {
					firstFailure = &outcomes[i]
				}
				continue
			}
			outputs[outcomes[i].nodeID] = outcomes[i].output
			executed[outcomes[i].nodeID] = true
			*lastExecuted = outcomes[i].nodeID
		}
		if firstFailure != nil {
			return firstFailure
		}
	}
	return nil
}

// runNode assembles input, resolves templates, dispatches, and builds the
// node's execution record. Never mutates shared run state.
func (e *Executor) runNode(ctx context.Context, dag *DAG, wf *schema.Workflow, nodeID string, trigger any, xctx *runtime.ExecutionContext, outputs map[string]any) nodeOutcome {
	node := dag.Nodes[nodeID]
	ctx = logging.WithNodeID(ctx, nodeID)
	start := time.Now()

	e.publish(ctx, streaming.StreamEvent{
		RunID:     logging.RunID(ctx),
		NodeID:    nodeID,
		EventType: schema.EventNodeStarted,
	})

	outcome := nodeOutcome{nodeID: nodeID}

	input, err := assembleInput(dag, nodeID, trigger, outputs)
	if err == nil {
		config := e.nodeConfig(node, wf.Defaults)
		preds := predecessorOutputs(dag, nodeID, outputs)
		resolved, _ := e.resolver.Resolve(ctx, config, input, preds).(map[string]any)

		var logs []schema.LogEntry
		outcome.output, logs, err = e.dispatcher.Dispatch(ctx, node, input, resolved, xctx)
		outcome.result.Logs = logs
	}

	outcome.result.NodeID = nodeID
	outcome.result.Label = node.Label
	outcome.result.DurationMs = time.Since(start).Milliseconds()

	for _, entry := range outcome.result.Logs {
		e.publish(ctx, streaming.StreamEvent{
			RunID:     logging.RunID(ctx),
			NodeID:    nodeID,
			EventType: schema.EventLogEntry,
			Payload:   entry,
		})
	}

	if err != nil {
		outcome.err = err
		outcome.result.Status = schema.NodeStatusFailed
		outcome.result.Error = normalize.NormalizeError(err, &normalize.Hint{
			NodeName: node.DisplayName(),
			NodeType: node.HandlerName(),
			Provider: providerHint(node),
		})
		e.logger.ErrorContext(ctx, "node failed",
			slog.String("code", outcome.result.Error.Code),
			slog.String("message", outcome.result.Error.Message))
		e.publish(ctx, streaming.StreamEvent{
			RunID:     logging.RunID(ctx),
			NodeID:    nodeID,
			EventType: schema.EventNodeFailed,
			Payload:   outcome.result.Error,
		})
		return outcome
	}

	outcome.result.Status = schema.NodeStatusSuccess
	outcome.result.Output = outcome.output
	e.logger.InfoContext(ctx, "node completed",
		slog.Int64("duration_ms", outcome.result.DurationMs))
	e.publish(ctx, streaming.StreamEvent{
		RunID:     logging.RunID(ctx),
		NodeID:    nodeID,
		EventType: schema.EventNodeCompleted,
		Payload:   map[string]any{"durationMs": outcome.result.DurationMs},
	})
	return outcome
}

// nodeConfig clones the node's config and fills in workflow-level defaults
// for keys the node leaves unset.
func (e *Executor) nodeConfig(node *schema.Node, defaults map[string]any) map[string]any {
	config := make(map[string]any, len(node.Config))
	for k, v := range node.Config {
		config[k] = v
	}
	if len(defaults) > 0 {
		// Defaults never overwrite node-level settings.
		_ = mergo.Merge(&config, defaults)
	}
	return config
}

// selectFinalOutput picks the run's final output from the terminal nodes:
// none → last executed node's output; one → verbatim; several → the same
// merge rule used for multi-predecessor input assembly.
func (e *Executor) selectFinalOutput(dag *DAG, executed map[string]bool, lastExecuted string, outputs map[string]any) any {
	terminals := dag.Terminals(executed)
	switch len(terminals) {
	case 0:
		return outputs[lastExecuted]
	case 1:
		return outputs[terminals[0]]
	}

	objAcc := make(map[string]any)
	var arrAcc []any
	sawArray := false
	for _, id := range terminals {
		switch v := outputs[id].(type) {
		case map[string]any:
			for k, val := range v {
				objAcc[k] = val
			}
			objAcc["_from_"+id] = v
		case []any:
			arrAcc = append(arrAcc, v...)
			sawArray = true
		default:
			objAcc["_from_"+id] = v
		}
	}
	if sawArray {
		return arrAcc
	}
	return objAcc
}

// finish stamps the run record, emits the terminal event, and hands the
// result to the recorder.
func (e *Executor) finish(ctx context.Context, result *schema.WorkflowExecutionResult) {
	result.CompletedAt = time.Now().UTC()
	result.DurationMs = result.CompletedAt.Sub(result.StartedAt).Milliseconds()

	eventType := schema.EventRunCompleted
	if result.Status == schema.RunStatusFailed {
		eventType = schema.EventRunFailed
	}
	e.publish(ctx, streaming.StreamEvent{
		RunID:     result.ID,
		EventType: eventType,
		Payload: map[string]any{
			"status":         result.Status,
			"completedNodes": result.CompletedNodes,
			"totalNodes":     result.TotalNodes,
			"summary":        result.Summary,
		},
	})

	e.logger.InfoContext(ctx, "run finished",
		slog.String("status", string(result.Status)),
		slog.Int64("duration_ms", result.DurationMs),
		slog.Int("completed", result.CompletedNodes))

	if e.opts.Recorder != nil {
		if err := e.opts.Recorder.SaveRun(ctx, result); err != nil {
			e.logger.WarnContext(ctx, "failed to persist run result",
				slog.String("error", err.Error()))
		}
	}
}

// publish sends a stream event if a hub is configured. Event delivery is
// best-effort and never affects the run.
func (e *Executor) publish(ctx context.Context, ev streaming.StreamEvent) {
	if e.opts.Hub == nil {
		return
	}
	if err := e.opts.Hub.Publish(ctx, ev); err != nil {
		e.logger.DebugContext(ctx, "event publish failed", slog.String("error", err.Error()))
	}
}

func countSuccesses(results []schema.NodeExecutionResult) int {
	n := 0
	for _, r := range results {
		if r.Status == schema.NodeStatusSuccess {
			n++
		}
	}
	return n
}

// providerHint extracts an explicit provider hint from the node config when
// present; otherwise classification falls back to the node type and text.
func providerHint(node *schema.Node) string {
	if node.Config == nil {
		return ""
	}
	if s, ok := node.Config["provider"].(string); ok {
		return s
	}
	return ""
}
