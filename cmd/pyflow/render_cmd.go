package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rendis/pyflow/pkg/schema"
)

func newRenderCmd(get func() *app) *cobra.Command {
	var (
		id     string
		format string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "render [flow.json | flow.yaml]",
		Short: "Draw a flow as a diagram",
		Example: `  pyflow render sales.flow.json
  pyflow render --id 3f2a... -f svg -o sales.svg`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := oneOf(format, formatASCII, formatMermaid, formatSVG, formatPNG, formatDOT); err != nil {
				return err
			}
			if (id == "") == (len(args) == 0) {
				return fmt.Errorf("give either a flow file or --id")
			}
			a := get()
			ctx := cmd.Context()

			var flow *schema.Flow
			if id != "" {
				s, err := a.openStore(ctx)
				if err != nil {
					return err
				}
				t, err := s.GetTranslation(ctx, id)
				if err != nil {
					return err
				}
				if flow, err = t.DecodeFlow(); err != nil {
					return err
				}
				if flow == nil {
					return fmt.Errorf("translation %s has no flow (status %s)", id, t.Status)
				}
			} else {
				var err error
				if flow, err = readFlowFile(args[0]); err != nil {
					return err
				}
			}

			data, err := a.encodeFlow(ctx, flow, format)
			if err != nil {
				return err
			}
			return emit(a.stdout, out, data)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "render a translation from history")
	cmd.Flags().StringVarP(&format, "format", "f", formatASCII, "diagram format: ascii, mermaid, svg, png, dot")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the diagram to this file")
	return cmd
}
