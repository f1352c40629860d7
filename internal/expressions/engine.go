package expressions

import "context"

// Engine evaluates expressions against execution or event data.
// Three implementations: CEL (trigger conditions), Expr (conditional steps),
// GoJQ (transform steps).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
