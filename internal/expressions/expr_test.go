package expressions

import (
	"context"
	"sync"
	"testing"

	"github.com/rendis/pyflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExprEngine(t *testing.T) {
	e := NewExprEngine()
	assert.Equal(t, "expr", e.Name())
}

func TestExpr_RowCondition(t *testing.T) {
	e := NewExprEngine()
	row := map[string]any{"amount": 150, "status": "active", "region": nil}

	tests := []struct {
		expr string
		want any
	}{
		{`amount > 100 and status == "active"`, true},
		{`amount > 100 and status == "closed"`, false},
		{`status in ["active", "pending"]`, true},
		{`region == nil`, true},
		{`status startsWith "act"`, true},
		{`amount * 2`, 300},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			out, err := e.Evaluate(context.Background(), tt.expr, row)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestExpr_QuotedColumn(t *testing.T) {
	e := NewExprEngine()
	out, err := e.Evaluate(context.Background(), `$env["unit price"] > 2`, map[string]any{"unit price": 3})
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestExpr_Check(t *testing.T) {
	e := NewExprEngine()
	assert.NoError(t, e.Check(`price * quantity`))

	err := e.Check(`price *`)
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeExpression))
	assert.Error(t, e.Check(""))
}

func TestExpr_RuntimeError(t *testing.T) {
	e := NewExprEngine()
	_, err := e.Evaluate(context.Background(), `a.b.c`, map[string]any{"a": 1})
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeExpression))
}

func TestExpr_NilData(t *testing.T) {
	e := NewExprEngine()
	out, err := e.Evaluate(context.Background(), `1 + 1`, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, out)
}

func TestExpr_Concurrent(t *testing.T) {
	e := NewExprEngine()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			out, err := e.Evaluate(context.Background(), `x + 1`, map[string]any{"x": n})
			assert.NoError(t, err)
			assert.Equal(t, n+1, out)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, e.cached())
}
