package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/rendis/pyflow/internal/diagram"
	"github.com/rendis/pyflow/pkg/schema"
)

// Flow output formats shared by translate, render and history show.
const (
	formatJSON    = "json"
	formatYAML    = "yaml"
	formatMermaid = "mermaid"
	formatASCII   = "ascii"
	formatSummary = "summary"
	formatSVG     = "svg"
	formatPNG     = "png"
	formatDOT     = "dot"
)

var textFormats = []string{formatJSON, formatYAML, formatMermaid, formatASCII, formatSummary}

// encodeFlow renders flow in one of the text or image formats.
func (a *app) encodeFlow(ctx context.Context, flow *schema.Flow, format string) ([]byte, error) {
	switch format {
	case formatJSON:
		b, err := json.MarshalIndent(flow, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(b, '\n'), nil
	case formatYAML:
		return yaml.Marshal(flow)
	case formatSummary:
		var sb strings.Builder
		writeSummary(&sb, flow)
		return []byte(sb.String()), nil
	}

	model, err := diagram.Build(flow)
	if err != nil {
		return nil, err
	}
	switch format {
	case formatMermaid:
		return []byte(diagram.RenderMermaid(model)), nil
	case formatASCII:
		return []byte(diagram.RenderASCIIAuto(model, a.cfg.BinDir)), nil
	case formatSVG, formatPNG, formatDOT:
		imgFormat, err := diagram.ParseImageFormat(format)
		if err != nil {
			return nil, err
		}
		return diagram.RenderImage(ctx, model, imgFormat)
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// emit writes data to path, or to w when path is empty or "-".
func emit(w io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := w.Write(data)
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// writeSummary prints counts, recipes and notes in a human-readable form.
func writeSummary(w io.Writer, flow *schema.Flow) {
	fmt.Fprintf(w, "flow %s: %d datasets, %d recipes\n", flow.Name, len(flow.Datasets), len(flow.Recipes))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range flow.Recipes {
		fmt.Fprintf(tw, "  %s\t%s\t%s -> %s\n", r.Name, r.Type,
			strings.Join(r.Inputs, ","), strings.Join(r.Outputs, ","))
	}
	_ = tw.Flush()
	if flow.Scenario != nil {
		fmt.Fprintf(w, "scenario %s: %s\n", flow.Scenario.Name, flow.Scenario.Cron)
	}
	for _, n := range flow.Notes {
		ref := ""
		if n.Ref != "" {
			ref = " (" + n.Ref + ")"
		}
		fmt.Fprintf(w, "  %s %s%s: %s\n", n.Severity, n.Code, ref, n.Message)
	}
}

// readFlowFile loads a flow document; .yaml and .yml files are YAML,
// everything else JSON.
func readFlowFile(path string) (*schema.Flow, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, err
	}
	var flow schema.Flow
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &flow)
	default:
		err = json.Unmarshal(data, &flow)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &flow, nil
}

// readInput reads a file, or stdin when path is "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func oneOf(value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("unsupported format %q: use one of %s", value, strings.Join(allowed, ", "))
}
