package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	scripts := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(scripts, "sales.py"), []byte(`import pandas as pd
df = pd.read_csv("in.csv")
df = df.dropna()
result = df.groupby("cat").agg({"x": "count"})
result.to_csv("out.csv")
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(scripts, "broken.py"), []byte("df = (\n"), 0o644))
	out := filepath.Join(t.TempDir(), "assets")

	var log bytes.Buffer
	err := generate(context.Background(), scripts, filepath.Join("..", "..", "examples", "rules"), out, t.TempDir(), &log)
	require.NoError(t, err)

	for _, f := range []string{"sales-ascii.txt", "sales-mermaid.md", "sales.svg"} {
		assert.FileExists(t, filepath.Join(out, f))
	}
	assert.NoFileExists(t, filepath.Join(out, "broken.svg"))
	assert.Contains(t, log.String(), "=== sales.py")
	assert.Contains(t, log.String(), "broken.py:")
}

func TestGenerate_NoScripts(t *testing.T) {
	err := generate(context.Background(), t.TempDir(), t.TempDir(), t.TempDir(), t.TempDir(), &bytes.Buffer{})
	assert.ErrorContains(t, err, "no scripts")
}

func TestGenerate_Examples(t *testing.T) {
	out := t.TempDir()
	var log bytes.Buffer
	root := filepath.Join("..", "..", "examples")
	require.NoError(t, generate(context.Background(), filepath.Join(root, "scripts"), filepath.Join(root, "rules"), out, t.TempDir(), &log))
	assert.FileExists(t, filepath.Join(out, "sales_report.svg"))
	assert.Contains(t, log.String(), "sales_report.py")
}
