package expressions

import (
	"context"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rendis/pyflow/pkg/schema"
)

// ExprEngine compiles the row filters and computed-column formulas that
// flows carry in expr syntax. The static analyzer checks every formula it
// emits; Evaluate runs one against a single row.
type ExprEngine struct {
	// programs maps expression text to its compiled *vm.Program.
	programs sync.Map
	options  []expr.Option
}

// NewExprEngine creates an ExprEngine. Column names are unknown until a
// row is supplied, so undefined identifiers compile.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{options: []expr.Option{
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
	}}
}

// Name returns the engine identifier.
func (e *ExprEngine) Name() string {
	return "expr"
}

// Check reports whether formula compiles.
func (e *ExprEngine) Check(formula string) error {
	_, err := e.program(formula)
	return err
}

// Evaluate runs formula against row, whose keys are column names.
func (e *ExprEngine) Evaluate(ctx context.Context, formula string, row map[string]any) (any, error) {
	prg, err := e.program(formula)
	if err != nil {
		return nil, err
	}
	if row == nil {
		row = map[string]any{}
	}
	out, err := vm.Run(prg, row)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExpression, "formula %q failed: %s", formula, err).
			WithCause(err).
			WithDetails(map[string]any{"expression": formula})
	}
	return out, nil
}

func (e *ExprEngine) program(formula string) (*vm.Program, error) {
	if strings.TrimSpace(formula) == "" {
		return nil, schema.NewError(schema.ErrCodeExpression, "empty formula")
	}
	if cached, ok := e.programs.Load(formula); ok {
		return cached.(*vm.Program), nil
	}
	prg, err := expr.Compile(formula, e.options...)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExpression, "formula %q does not compile: %s", formula, err).
			WithCause(err).
			WithDetails(map[string]any{"expression": formula})
	}
	actual, _ := e.programs.LoadOrStore(formula, prg)
	return actual.(*vm.Program), nil
}

func (e *ExprEngine) cached() int {
	n := 0
	e.programs.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

var _ Engine = (*ExprEngine)(nil)
