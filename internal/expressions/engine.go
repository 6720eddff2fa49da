package expressions

import "context"

// Engine evaluates expressions within built-in library nodes.
// Three implementations: CEL (filters/conditions), GoJQ (transforms),
// Expr (logic).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
