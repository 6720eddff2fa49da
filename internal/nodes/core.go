package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/flowmesh/flowmesh/internal/expressions"
	"github.com/flowmesh/flowmesh/pkg/schema"
)

// --- logic.filter ---

// FilterHandler gates data flow on a CEL condition: a truthy result passes
// the input through verbatim, a falsy result yields a null output.
type FilterHandler struct {
	engine *expressions.CELEngine
}

// NewFilterHandler creates the logic.filter handler.
func NewFilterHandler() (*FilterHandler, error) {
	engine, err := expressions.NewCELEngine()
	if err != nil {
		return nil, err
	}
	return &FilterHandler{engine: engine}, nil
}

func (h *FilterHandler) Name() string { return "logic.filter" }

func (h *FilterHandler) Describe() HandlerInfo {
	return HandlerInfo{
		Name:        "logic.filter",
		Description: "Pass the input through when a CEL condition holds, otherwise emit null.",
	}
}

func (h *FilterHandler) Validate(config map[string]any) error {
	if stringParam(config, "condition", "") == "" {
		return schema.NewError(schema.ErrCodeValidation, "logic.filter requires a non-empty 'condition' config")
	}
	return nil
}

func (h *FilterHandler) Execute(ctx context.Context, req Request) (any, error) {
	if err := h.Validate(req.Config); err != nil {
		return nil, err
	}

	out, err := h.engine.Evaluate(ctx, stringParam(req.Config, "condition", ""), map[string]any{
		"input":  req.Input,
		"config": req.Config,
	})
	if err != nil {
		return nil, err
	}

	pass, ok := out.(bool)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"logic.filter condition must evaluate to a boolean, got %T", out)
	}
	if req.Logs != nil {
		req.Logs.Append("debug", fmt.Sprintf("filter condition evaluated to %v", pass), nil)
	}
	if !pass {
		return nil, nil
	}
	return req.Input, nil
}

// --- core.delay ---

// DelayHandler pauses the run for a configured duration, then passes the
// input through. This is an in-run wait, not a recurring schedule.
type DelayHandler struct{}

// NewDelayHandler creates the core.delay handler.
func NewDelayHandler() *DelayHandler {
	return &DelayHandler{}
}

func (h *DelayHandler) Name() string { return "core.delay" }

func (h *DelayHandler) Describe() HandlerInfo {
	return HandlerInfo{
		Name:        "core.delay",
		Description: "Wait for a duration (e.g. \"500ms\", \"10s\") before passing the input through.",
	}
}

func (h *DelayHandler) Validate(config map[string]any) error {
	raw := stringParam(config, "duration", "")
	if raw == "" {
		return schema.NewError(schema.ErrCodeValidation, "core.delay requires a 'duration' config")
	}
	if _, err := time.ParseDuration(raw); err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "core.delay: invalid duration %q", raw)
	}
	return nil
}

func (h *DelayHandler) Execute(ctx context.Context, req Request) (any, error) {
	if err := h.Validate(req.Config); err != nil {
		return nil, err
	}
	d, _ := time.ParseDuration(stringParam(req.Config, "duration", ""))

	select {
	case <-time.After(d):
		return req.Input, nil
	case <-ctx.Done():
		return nil, schema.NewError(schema.ErrCodeCancelled, "delay interrupted").WithCause(ctx.Err())
	}
}

// --- core.log ---

// LogHandler records a message into the node's log stream and passes the
// input through unchanged. Useful for debugging data flow mid-graph.
type LogHandler struct{}

// NewLogHandler creates the core.log handler.
func NewLogHandler() *LogHandler {
	return &LogHandler{}
}

func (h *LogHandler) Name() string { return "core.log" }

func (h *LogHandler) Describe() HandlerInfo {
	return HandlerInfo{
		Name:        "core.log",
		Description: "Log a message (templates already resolved) and pass the input through.",
	}
}

func (h *LogHandler) Validate(config map[string]any) error {
	return nil
}

func (h *LogHandler) Execute(ctx context.Context, req Request) (any, error) {
	message := stringParam(req.Config, "message", "")
	if message == "" {
		message = "core.log"
	}
	level := stringParam(req.Config, "level", "info")
	switch level {
	case "info", "warn", "error", "debug":
	default:
		level = "info"
	}
	if req.Logs != nil {
		req.Logs.Append(level, message, nil)
	}
	if req.Context != nil {
		req.Context.Log().InfoContext(ctx, message)
	}
	return req.Input, nil
}
