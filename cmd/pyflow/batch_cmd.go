package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rendis/pyflow/internal/translate"
)

func newBatchCmd(get func() *app) *cobra.Command {
	var (
		tf          translateFlags
		concurrency int
		outDir      string
		format      string
	)

	cmd := &cobra.Command{
		Use:   "batch <path>...",
		Short: "Translate many scripts concurrently",
		Long:  "Translate every .py file named on the command line or found under the given directories. One failing script does not stop the others.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := oneOf(format, formatJSON, formatYAML); err != nil {
				return err
			}
			a := get()
			ctx := cmd.Context()

			paths, err := collectScripts(args)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no .py files found")
			}
			scripts := make([]translate.Script, 0, len(paths))
			for _, p := range paths {
				src, err := os.ReadFile(p)
				if err != nil {
					return err
				}
				scripts = append(scripts, translate.Script{Name: p, Source: string(src)})
			}

			if err := tf.apply(cmd, &a.cfg); err != nil {
				return err
			}
			tr, err := a.translator(ctx)
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("concurrency") {
				concurrency = a.cfg.Concurrency
			}
			results := tr.TranslateBatch(ctx, scripts, concurrency)

			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			for _, r := range results {
				if r.Err != nil {
					fmt.Fprintf(tw, "FAIL\t%s\t%s\n", r.Script.Name, r.Err)
					continue
				}
				line := fmt.Sprintf("ok\t%s\t%d datasets, %d recipes (%s)",
					r.Script.Name, len(r.Result.Flow.Datasets), len(r.Result.Flow.Recipes), r.Result.Mode)
				if outDir != "" {
					target := filepath.Join(outDir, flowFileName(r.Script.Name, format))
					data, err := a.encodeFlow(ctx, r.Result.Flow, format)
					if err == nil {
						err = emit(a.stdout, target, data)
					}
					if err != nil {
						return fmt.Errorf("write %s: %w", target, err)
					}
					line += "\t" + target
				}
				fmt.Fprintln(tw, line)
			}
			_ = tw.Flush()

			if failed := translate.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d of %d scripts failed", len(failed), len(results))
			}
			return nil
		},
	}
	tf.register(cmd)
	cmd.Flags().IntVarP(&concurrency, "concurrency", "j", 4, "scripts translated at once (0 = unbounded)")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "write one flow file per script into this directory")
	cmd.Flags().StringVarP(&format, "format", "f", formatJSON, "flow file format: json or yaml")
	return cmd
}

// collectScripts expands directories into their .py files, sorted.
func collectScripts(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() && strings.HasPrefix(d.Name(), ".") && path != arg {
				return filepath.SkipDir
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".py") {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// flowFileName maps jobs/sales.py to sales.flow.json.
func flowFileName(script, format string) string {
	base := strings.TrimSuffix(filepath.Base(script), filepath.Ext(script))
	return base + ".flow." + format
}
