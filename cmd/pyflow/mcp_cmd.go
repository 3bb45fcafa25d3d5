package main

import (
	"github.com/spf13/cobra"

	"github.com/rendis/pyflow/internal/streaming"
	pyflowmcp "github.com/rendis/pyflow/pkg/mcp"
)

func newMCPCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the pyflow tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			ctx := cmd.Context()

			a.hub = streaming.NewMemoryHub(0)
			tr, err := a.translator(ctx)
			if err != nil {
				return err
			}
			v, err := a.flowValidator()
			if err != nil {
				return err
			}
			deps := pyflowmcp.PyflowServerDeps{
				Translator: tr,
				Validator:  v,
				Hub:        a.hub,
				Logger:     a.logger,
			}
			if a.cfg.History {
				s, err := a.openStore(ctx)
				if err != nil {
					return err
				}
				deps.Store = s
				deps.Timelines = s.Events()
			}

			a.logger.Info("mcp server starting", "history", a.cfg.History, "llm", a.cfg.LLM.Enabled())
			return pyflowmcp.NewPyflowServer(deps).Serve(ctx)
		},
	}
}
