package pysrc

import (
	"context"
	"testing"

	"github.com/rendis/pyflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, src string) *Module {
	t.Helper()
	m, err := Parse(context.Background(), src)
	require.NoError(t, err)
	return m
}

func TestParse_Statements(t *testing.T) {
	m := parse(t, "import pandas as pd\n\ndf = pd.read_csv('a.csv')\n# comment\ndf.head()\n")
	stmts := m.Statements()
	require.Len(t, stmts, 3)
	assert.Equal(t, KindImport, stmts[0].Kind)
	assert.Equal(t, 3, stmts[1].Line)
	assert.Equal(t, 5, stmts[2].Line)

	assign := stmts[1].Child(0)
	require.True(t, assign.Is(KindAssignment))
	assert.Equal(t, "df", assign.Field("left").Text)

	call := assign.Field("right")
	require.True(t, call.Is(KindCall))
	assert.Equal(t, "pd.read_csv", DottedName(call.Field("function")))
}

func TestParse_SyntaxError(t *testing.T) {
	_, err := Parse(context.Background(), "import pandas as pd\ndf = pd.read_csv('a.csv'\nx = 1\n")
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeSyntax))

	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.GreaterOrEqual(t, fe.Line, 2)
}

func TestParse_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Parse(ctx, "x = 1\n")
	// Tiny inputs may finish before the first progress check.
	if err != nil {
		assert.True(t, schema.HasCode(err, schema.ErrCodeInternal))
	}
}

func TestOperator(t *testing.T) {
	m := parse(t, "a = x not in y\nb = x + 1\nc -= 2\n")
	stmts := m.Statements()

	cmp := stmts[0].Child(0).Field("right")
	require.True(t, cmp.Is(KindComparison))
	assert.Equal(t, "not in", cmp.Operator())

	bin := stmts[1].Child(0).Field("right")
	assert.Equal(t, "+", bin.Operator())

	aug := stmts[2].Child(0)
	require.True(t, aug.Is(KindAugAssignment))
	assert.Equal(t, "-=", aug.Operator())
}

func TestLiteral(t *testing.T) {
	tests := []struct {
		src  string
		want any
	}{
		{`"abc"`, "abc"},
		{`'it\'s'`, "it's"},
		{`r"\d+"`, `\d+`},
		{`"a\tb"`, "a\tb"},
		{`"""doc"""`, "doc"},
		{`"a" "b"`, "ab"},
		{`f"plain"`, "plain"},
		{`42`, 42},
		{`1_000`, 1000},
		{`0x1F`, 31},
		{`-3`, -3},
		{`2.5`, 2.5},
		{`-0.5`, -0.5},
		{`True`, true},
		{`None`, nil},
		{`[1, "a", False]`, []any{1, "a", false}},
		{`("x", "y")`, []any{"x", "y"}},
		{`{"a": 1, 2: [3]}`, map[string]any{"a": 1, "2": []any{3}}},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			m := parse(t, "v = "+tt.src+"\n")
			got, ok := Literal(m.Statements()[0].Child(0).Field("right"))
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLiteral_NotConstant(t *testing.T) {
	for _, src := range []string{`x`, `f"{x}"`, `[1, y]`, `{"a": f()}`, `b"bytes"`, `-x`} {
		t.Run(src, func(t *testing.T) {
			m := parse(t, "v = "+src+"\n")
			_, ok := Literal(m.Statements()[0].Child(0).Field("right"))
			assert.False(t, ok)
		})
	}
}

func TestIdentifiers(t *testing.T) {
	m := parse(t, "a, b = f()\nc = 1\nd[0] = 2\n")
	stmts := m.Statements()
	assert.Equal(t, []string{"a", "b"}, Identifiers(stmts[0].Child(0).Field("left")))
	assert.Equal(t, []string{"c"}, Identifiers(stmts[1].Child(0).Field("left")))
	assert.Nil(t, Identifiers(stmts[2].Child(0).Field("left")))
}

func TestWalkAndBody(t *testing.T) {
	m := parse(t, "for i in range(3):\n    df = df.dropna()\n    print(i)\n")
	loop := m.Statements()[0]
	require.True(t, loop.Is(KindFor))
	assert.Len(t, Body(loop, "body"), 2)

	var calls []string
	Walk(loop, func(n *Node) bool {
		if n.Is(KindCall) {
			calls = append(calls, DottedName(n.Field("function")))
		}
		return true
	})
	assert.Equal(t, []string{"range", "df.dropna", "print"}, calls)
}
