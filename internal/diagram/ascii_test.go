package diagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderASCIILinear(t *testing.T) {
	model, err := Build(linearFlow())
	require.NoError(t, err)

	output := RenderASCII(model)
	assert.Contains(t, output, "=== sales ===")

	// Datasets use rounded corners, recipes square ones.
	assert.Contains(t, output, "╭")
	assert.Contains(t, output, "╯")
	assert.Contains(t, output, "┌")
	assert.Contains(t, output, "┘")
	assert.Contains(t, output, "▼")

	assert.Contains(t, output, "raw [IN]")
	assert.Contains(t, output, "summary [OUT]")
	assert.Contains(t, output, "grouping_2")

	assert.Contains(t, output, "--- prepare_1 ---")
	assert.Contains(t, output, "1. RemoveRowsOnEmpty")
	assert.NotContains(t, output, "--- warnings ---")
}

func TestRenderASCIIWarnings(t *testing.T) {
	model, err := Build(joinFlow())
	require.NoError(t, err)

	output := RenderASCII(model)
	assert.Contains(t, output, "users [?] [!]")
	assert.Contains(t, output, "python_2 [CODE]")
	assert.Contains(t, output, "--- warnings ---")
	assert.Contains(t, output, "users: users was never loaded")
}

func TestRenderASCIISideBySide(t *testing.T) {
	model, err := Build(joinFlow())
	require.NoError(t, err)

	output := RenderASCII(model)
	var row string
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "orders") {
			row = line
			break
		}
	}
	assert.Contains(t, row, "users", "roots share one row")
}

func TestRenderASCIIEmpty(t *testing.T) {
	assert.Empty(t, RenderASCII(&DiagramModel{}))
}
