package static

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/pyflow/internal/pysrc"
)

func renderExpr(t *testing.T, src string) (expression, bool) {
	t.Helper()
	mod, err := pysrc.Parse(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, mod.Statements(), 1)

	a := New()
	a.syms = newSymbols()
	a.syms.bind("df", frameValue("df"))
	return a.render(mod.Statements()[0].Child(0))
}

func TestRender_ConditionalTakesFrameFromAnyBranch(t *testing.T) {
	e, ok := renderExpr(t, `df["a"] if True else 0`)
	require.True(t, ok)
	assert.Equal(t, "true ? a : 0", e.text)
	assert.Equal(t, "df", e.frame)

	e, ok = renderExpr(t, `1 if False else df["b"]`)
	require.True(t, ok)
	assert.Equal(t, "df", e.frame)
}

func TestFirstFrame(t *testing.T) {
	assert.Empty(t, firstFrame())
	assert.Empty(t, firstFrame(expression{text: "1"}, expression{text: "2"}))
	assert.Equal(t, "b", firstFrame(expression{}, expression{frame: "b"}, expression{frame: "c"}))
}
