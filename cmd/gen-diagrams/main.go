// gen-diagrams renders the example scripts for the README.
// Run: go run ./cmd/gen-diagrams
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/rendis/pyflow/internal/catalog"
	"github.com/rendis/pyflow/internal/diagram"
	"github.com/rendis/pyflow/internal/translate"
)

func main() {
	scripts := flag.String("scripts", filepath.Join("examples", "scripts"), "directory of example scripts")
	rules := flag.String("rules", filepath.Join("examples", "rules"), "directory of rule packs")
	outDir := flag.String("out", filepath.Join("docs", "assets"), "output directory")
	flag.Parse()

	home, _ := os.UserHomeDir()
	binDir := filepath.Join(home, ".pyflow", "bin")
	if err := generate(context.Background(), *scripts, *rules, *outDir, binDir, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "gen-diagrams: %v\n", err)
		os.Exit(1)
	}
}

// generate writes an ascii, mermaid and svg rendering of every script.
// It returns an error only when no script could be rendered.
func generate(ctx context.Context, scriptDir, rulesDir, outDir, binDir string, w io.Writer) error {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cat := catalog.New(catalog.WithLogger(logger))
	packs, _ := filepath.Glob(filepath.Join(rulesDir, "*.yaml"))
	for _, p := range packs {
		if _, err := cat.LoadRulesFile(p); err != nil {
			return err
		}
	}

	tr, err := translate.New(
		translate.WithCatalog(cat),
		translate.WithLogger(logger),
		translate.WithConfig(translate.Config{Mode: translate.ModeStatic, Optimize: true}),
	)
	if err != nil {
		return err
	}

	files, err := filepath.Glob(filepath.Join(scriptDir, "*.py"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no scripts in %s", scriptDir)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	rendered := 0
	for _, path := range files {
		name := strings.TrimSuffix(filepath.Base(path), ".py")
		if err := render(ctx, tr, path, filepath.Join(outDir, name), binDir, w); err != nil {
			fmt.Fprintf(w, "%s: %v\n", path, err)
			continue
		}
		rendered++
	}
	if rendered == 0 {
		return fmt.Errorf("no script could be rendered")
	}
	return nil
}

func render(ctx context.Context, tr *translate.Translator, path, base, binDir string, w io.Writer) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	res, err := tr.Translate(ctx, translate.Script{Name: filepath.Base(path), Source: string(src)})
	if err != nil {
		return err
	}
	model, err := diagram.Build(res.Flow)
	if err != nil {
		return err
	}

	ascii := diagram.RenderASCIIAuto(model, binDir)
	if err := os.WriteFile(base+"-ascii.txt", []byte(ascii), 0o644); err != nil {
		return err
	}
	mermaid := diagram.RenderMermaid(model)
	if err := os.WriteFile(base+"-mermaid.md", []byte("```mermaid\n"+mermaid+"\n```\n"), 0o644); err != nil {
		return err
	}
	svg, err := diagram.RenderImage(ctx, model, diagram.FormatSVG)
	if err != nil {
		return err
	}
	if err := os.WriteFile(base+".svg", svg, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(w, "=== %s (%s) ===\n%s\n", filepath.Base(path), res, ascii)
	return nil
}
