package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rendis/pyflow/internal/streaming"
	"github.com/rendis/pyflow/internal/translate"
	"github.com/rendis/pyflow/pkg/schema"
)

// translateFlags are the translation overrides shared by translate and batch.
type translateFlags struct {
	mode      string
	optimize  bool
	recommend bool
	strict    bool
	prefix    string
	suffix    string
}

func (f *translateFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.mode, "mode", "auto", "analysis mode: static, semantic or auto")
	fs.BoolVar(&f.optimize, "optimize", true, "merge prepare chains and remove orphan datasets")
	fs.BoolVar(&f.recommend, "recommend", true, "add optimization recommendations as notes")
	fs.BoolVar(&f.strict, "strict", false, "fail on references to undefined datasets")
	fs.StringVar(&f.prefix, "prefix", "", "prefix for generated dataset names")
	fs.StringVar(&f.suffix, "suffix", "", "suffix for generated dataset names")
}

// apply overlays the flags that were set on the command line onto cfg.
func (f *translateFlags) apply(cmd *cobra.Command, cfg *Config) error {
	fs := cmd.Flags()
	if fs.Changed("mode") {
		if _, err := translate.ParseMode(f.mode); err != nil {
			return err
		}
		cfg.Mode = f.mode
	}
	if fs.Changed("optimize") {
		cfg.Optimize = f.optimize
	}
	if fs.Changed("recommend") {
		cfg.Recommend = f.recommend
	}
	if fs.Changed("strict") {
		cfg.Strict = f.strict
	}
	if fs.Changed("prefix") {
		cfg.Prefix = f.prefix
	}
	if fs.Changed("suffix") {
		cfg.Suffix = f.suffix
	}
	return nil
}

// printProgress writes every hub event to w until the returned stop func
// is called.
func printProgress(ctx context.Context, hub streaming.Hub, w io.Writer) (func(), error) {
	ch, cancel, err := hub.Subscribe(ctx, streaming.Filter{})
	if err != nil {
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range ch {
			label := e.Type
			if e.Phase != "" {
				label += " " + e.Phase
			}
			if e.Payload != nil {
				b, _ := json.Marshal(e.Payload)
				fmt.Fprintf(w, "%-32s %s\n", label, b)
				continue
			}
			fmt.Fprintln(w, label)
		}
	}()
	return func() {
		cancel()
		<-done
	}, nil
}

func newTranslateCmd(get func() *app) *cobra.Command {
	var (
		tf       translateFlags
		format   string
		out      string
		name     string
		cron     string
		scenario string
		progress bool
		explain  bool
	)

	cmd := &cobra.Command{
		Use:   "translate <script.py | ->",
		Short: "Translate one script into a flow",
		Example: `  pyflow translate etl/sales.py
  pyflow translate etl/sales.py --mode static -f mermaid
  cat job.py | pyflow translate - --name job.py -f yaml -o job.flow.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := oneOf(format, textFormats...); err != nil {
				return err
			}
			a := get()
			ctx := cmd.Context()

			source, err := readInput(args[0])
			if err != nil {
				return err
			}
			if name == "" {
				name = args[0]
				if name == "-" {
					name = "stdin.py"
				}
			}

			if err := tf.apply(cmd, &a.cfg); err != nil {
				return err
			}
			stop := func() {}
			if progress {
				a.hub = streaming.NewMemoryHub(0)
				if stop, err = printProgress(ctx, a.hub, a.stderr); err != nil {
					return err
				}
				defer stop()
			}
			tr, err := a.translator(ctx)
			if err != nil {
				return err
			}
			cfg := tr.Config()
			cfg.Cron = cron
			cfg.ScenarioName = scenario
			cfg.Explain = explain

			res, err := tr.TranslateWith(ctx, translate.Script{Name: filepath.Base(name), Source: string(source)}, cfg)
			stop()
			if err != nil {
				return err
			}
			if res.FellBack {
				fmt.Fprintln(a.stderr, "warning: language model unavailable, flow built by static analysis")
			}
			if res.Explanation != "" {
				fmt.Fprintf(a.stderr, "%s\n\n", res.Explanation)
			}
			for _, n := range schema.FilterNotes(res.Flow.Notes, schema.SeverityWarning) {
				a.logger.Warn(n.Message, "code", n.Code, "ref", n.Ref)
			}

			data, err := a.encodeFlow(ctx, res.Flow, format)
			if err != nil {
				return err
			}
			if err := emit(a.stdout, out, data); err != nil {
				return err
			}
			if out != "" && out != "-" {
				fmt.Fprintf(a.stdout, "%s -> %s\n", res, out)
			}
			return nil
		},
	}
	tf.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", formatJSON, "output format: json, yaml, mermaid, ascii, summary")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write output to this file instead of stdout")
	cmd.Flags().StringVar(&name, "name", "", "script name used to name the flow (default: file name)")
	cmd.Flags().StringVar(&cron, "cron", "", "attach a time-based scenario with this cron expression")
	cmd.Flags().StringVar(&scenario, "scenario", "", "scenario name (default: <flow>_schedule)")
	cmd.Flags().BoolVar(&progress, "progress", false, "print pipeline phases to stderr as they complete")
	cmd.Flags().BoolVar(&explain, "explain", false, "print a language model summary of the script to stderr")
	return cmd
}
