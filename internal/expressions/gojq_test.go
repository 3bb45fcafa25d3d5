package expressions

import (
	"context"
	"testing"

	"github.com/rendis/pyflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGoJQEngine(t *testing.T) {
	e := NewGoJQEngine()
	assert.Equal(t, "jq", e.Name())
}

func TestGoJQ_EnvelopeSelection(t *testing.T) {
	e := NewGoJQEngine()
	const envelope = `if type == "array" then {steps: .} else {steps: (.steps // .data_steps // .operations // [])} end`

	tests := []struct {
		name  string
		input any
	}{
		{"steps", map[string]any{"steps": []any{map[string]any{"step_number": 1}}}},
		{"data_steps", map[string]any{"data_steps": []any{map[string]any{"step_number": 1}}}},
		{"bare array", []any{map[string]any{"step_number": 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := e.Run(context.Background(), envelope, tt.input)
			require.NoError(t, err)
			require.Len(t, out, 1)
			steps := out[0].(map[string]any)["steps"].([]any)
			assert.Len(t, steps, 1)
		})
	}
}

func TestGoJQ_Evaluate(t *testing.T) {
	e := NewGoJQEngine()

	out, err := e.Evaluate(context.Background(), `.a`, map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, out)

	out, err = e.Evaluate(context.Background(), `.xs[]`, map[string]any{"xs": []any{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, out)

	out, err = e.Evaluate(context.Background(), `empty`, map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestGoJQ_NormalizesIntegers(t *testing.T) {
	e := NewGoJQEngine()
	out, err := e.Run(context.Background(), `.n + 1`, map[string]any{"n": int64(2)})
	require.NoError(t, err)
	assert.Equal(t, []any{float64(3)}, out)
}

func TestGoJQ_Errors(t *testing.T) {
	e := NewGoJQEngine()

	_, err := e.Run(context.Background(), `.a |||`, nil)
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeExpression))

	_, err = e.Run(context.Background(), `error("boom")`, nil)
	require.Error(t, err)

	_, err = e.Run(context.Background(), "", nil)
	assert.Error(t, err)
}

func TestGoJQ_EnvironSandboxed(t *testing.T) {
	e := NewGoJQEngine()
	out, err := e.Run(context.Background(), `$ENV | length`, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{0}, out)
}
