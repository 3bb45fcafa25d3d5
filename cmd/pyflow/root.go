package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// execute runs the CLI and returns the process exit code.
func execute(args []string) int {
	return run(args, os.Stdout, os.Stderr)
}

func run(args []string, stdout, stderr io.Writer) int {
	root, cleanup := newRootCmd(stdout, stderr)
	defer cleanup()
	root.SetArgs(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// newRootCmd builds the command tree. Subcommands receive the app through
// the getter, which is valid once PersistentPreRunE has resolved the
// configuration. The returned cleanup closes whatever the app opened.
func newRootCmd(stdout, stderr io.Writer) (*cobra.Command, func()) {
	var (
		configPath string
		logLevel   string
		logFormat  string
		dbPath     string
		noHistory  bool
		state      *app
	)

	rootCmd := &cobra.Command{
		Use:           "pyflow",
		Short:         "Translate Python data scripts into Flow DAGs",
		Long:          "pyflow reads pandas, numpy and scikit-learn scripts and builds a DSS-style Flow of datasets and recipes.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			// Flags win over every other layer.
			flags := cmd.Flags()
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("log-format") {
				cfg.LogFormat = logFormat
			}
			if flags.Changed("db") {
				cfg.DBPath = dbPath
			}
			if noHistory {
				cfg.History = false
			}
			state = newApp(cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return nil
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "settings file (default: ~/.pyflow/settings.yaml)")
	pf.StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	pf.StringVar(&logFormat, "log-format", "text", "log format: text or json")
	pf.StringVar(&dbPath, "db", "", "history database path (default: ~/.pyflow/history.db)")
	pf.BoolVar(&noHistory, "no-history", false, "do not record translations")

	get := func() *app { return state }
	rootCmd.AddCommand(
		newTranslateCmd(get),
		newBatchCmd(get),
		newValidateCmd(get),
		newRenderCmd(get),
		newHistoryCmd(get),
		newMCPCmd(get),
		newInstallToolsCmd(get),
		newVersionCmd(),
	)
	cleanup := func() {
		if state != nil {
			state.close()
		}
	}
	return rootCmd, cleanup
}
