package expressions

import "context"

// Engine compiles and evaluates one expression language. CEL backs catalog
// guards, expr backs row filters and formulas, jq backs response envelopes.
type Engine interface {
	Name() string
	// Check compiles expression without running it.
	Check(expression string) error
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
