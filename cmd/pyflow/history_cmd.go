package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/pyflow/internal/store"
)

func newHistoryCmd(get func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded translations",
	}
	cmd.AddCommand(
		newHistoryListCmd(get),
		newHistoryShowCmd(get),
		newHistoryTimelineCmd(get),
		newHistoryDeleteCmd(get),
		newHistoryVacuumCmd(get),
	)
	return cmd
}

func newHistoryListCmd(get func() *app) *cobra.Command {
	var (
		script string
		status string
		mode   string
		since  time.Duration
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List translations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			ctx := cmd.Context()
			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			filter := store.TranslationFilter{ScriptName: script, Status: status, Mode: mode, Limit: limit}
			if since > 0 {
				t := time.Now().Add(-since)
				filter.Since = &t
			}
			list, err := s.ListTranslations(ctx, filter)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSCRIPT\tMODE\tSTATUS\tDATASETS\tRECIPES\tDURATION\tCREATED")
			for _, t := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%dms\t%s\n",
					t.ID, t.ScriptName, t.Mode, t.Status, t.DatasetCount, t.RecipeCount,
					t.DurationMs, t.CreatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&script, "script", "", "only this script name")
	fs.StringVar(&status, "status", "", "only this status: running, succeeded, failed")
	fs.StringVar(&mode, "mode", "", "only this mode: static, semantic")
	fs.DurationVar(&since, "since", 0, "only translations newer than this, e.g. 24h")
	fs.IntVarP(&limit, "limit", "n", 20, "maximum rows")
	return cmd
}

func newHistoryShowCmd(get func() *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a recorded translation and its flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := oneOf(format, textFormats...); err != nil {
				return err
			}
			a := get()
			ctx := cmd.Context()
			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			t, err := s.GetTranslation(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stderr, "%s %s (%s) %s in %dms\n", t.ID, t.ScriptName, t.Mode, t.Status, t.DurationMs)
			if t.Status == store.StatusFailed {
				return fmt.Errorf("[%s] %s", t.ErrorCode, t.ErrorMessage)
			}
			flow, err := t.DecodeFlow()
			if err != nil {
				return err
			}
			if flow == nil {
				return fmt.Errorf("translation %s has no flow", t.ID)
			}
			data, err := a.encodeFlow(ctx, flow, format)
			if err != nil {
				return err
			}
			return emit(a.stdout, "", data)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatSummary, "output format: json, yaml, mermaid, ascii, summary")
	return cmd
}

func newHistoryTimelineCmd(get func() *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "timeline <id>",
		Short: "Replay the phase log of a translation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			ctx := cmd.Context()
			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			tl, err := s.Events().Replay(ctx, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(tl)
			}

			fmt.Fprintf(a.stdout, "%s %s", tl.TranslationID, tl.Status)
			if tl.FellBack {
				fmt.Fprint(a.stdout, " (fell back to static)")
			}
			fmt.Fprintf(a.stdout, " %s\n", tl.Duration().Round(time.Millisecond))
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			for _, p := range tl.Phases {
				offset := time.Duration(0)
				if tl.StartedAt != nil {
					offset = p.CompletedAt.Sub(*tl.StartedAt)
				}
				fmt.Fprintf(tw, "  %s\t+%s\t%s\n", p.Phase, offset.Round(time.Millisecond), p.Payload)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if len(tl.Error) > 0 {
				fmt.Fprintf(a.stdout, "  error\t%s\n", tl.Error)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the timeline as JSON")
	return cmd
}

func newHistoryDeleteCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete translations and their events",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			ctx := cmd.Context()
			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			for _, id := range args {
				if err := s.DeleteTranslation(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "deleted %s\n", id)
			}
			return nil
		},
	}
}

func newHistoryVacuumCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "vacuum",
		Short: "Compact the history database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			s, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			return s.Vacuum(cmd.Context())
		},
	}
}
