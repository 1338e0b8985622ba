package expressions

import "context"

// Engine evaluates expressions used by the editor.
// Three implementations: CEL (edge conditions), Expr (assignment rules),
// GoJQ (catalog response extraction).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
