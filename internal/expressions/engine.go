package expressions

import "context"

// Engine evaluates an expression against a data map.
// Implementations: CEL (trigger filters), GoJQ and Expr (built-in transform
// integrations).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
