package nodes

import (
	"context"

	"github.com/flowmesh/flowmesh/internal/expressions"
	"github.com/flowmesh/flowmesh/pkg/schema"
)

// transformScope builds the evaluation environment shared by the transform
// handlers: the node input under "input", the config under "config".
func transformScope(req Request) map[string]any {
	return map[string]any{
		"input":  req.Input,
		"config": req.Config,
	}
}

// --- transform.jq ---

// JQTransformHandler reshapes node input with a jq expression.
type JQTransformHandler struct {
	engine *expressions.GoJQEngine
}

// NewJQTransformHandler creates the transform.jq handler.
func NewJQTransformHandler() *JQTransformHandler {
	return &JQTransformHandler{engine: expressions.NewGoJQEngine()}
}

func (h *JQTransformHandler) Name() string { return "transform.jq" }

func (h *JQTransformHandler) Describe() HandlerInfo {
	return HandlerInfo{
		Name:        "transform.jq",
		Description: "Reshape the node input with a jq expression (input is available as .input).",
	}
}

func (h *JQTransformHandler) Validate(config map[string]any) error {
	if stringParam(config, "expression", "") == "" {
		return schema.NewError(schema.ErrCodeValidation, "transform.jq requires a non-empty 'expression' config")
	}
	return nil
}

func (h *JQTransformHandler) Execute(ctx context.Context, req Request) (any, error) {
	if err := h.Validate(req.Config); err != nil {
		return nil, err
	}
	return h.engine.Evaluate(ctx, stringParam(req.Config, "expression", ""), transformScope(req))
}

// --- transform.expr ---

// ExprTransformHandler evaluates an Expr expression over the node input.
type ExprTransformHandler struct {
	engine *expressions.ExprEngine
}

// NewExprTransformHandler creates the transform.expr handler.
func NewExprTransformHandler() *ExprTransformHandler {
	return &ExprTransformHandler{engine: expressions.NewExprEngine()}
}

func (h *ExprTransformHandler) Name() string { return "transform.expr" }

func (h *ExprTransformHandler) Describe() HandlerInfo {
	return HandlerInfo{
		Name:        "transform.expr",
		Description: "Evaluate an Expr expression against the node input (available as 'input').",
	}
}

func (h *ExprTransformHandler) Validate(config map[string]any) error {
	if stringParam(config, "expression", "") == "" {
		return schema.NewError(schema.ErrCodeValidation, "transform.expr requires a non-empty 'expression' config")
	}
	return nil
}

func (h *ExprTransformHandler) Execute(ctx context.Context, req Request) (any, error) {
	if err := h.Validate(req.Config); err != nil {
		return nil, err
	}
	return h.engine.Evaluate(ctx, stringParam(req.Config, "expression", ""), transformScope(req))
}
