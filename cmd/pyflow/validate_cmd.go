package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <flow.json | flow.yaml | ->",
		Short: "Check a flow document for structural, reference and graph errors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			flow, err := readFlowFile(args[0])
			if err != nil {
				return err
			}
			v, err := a.flowValidator()
			if err != nil {
				return err
			}
			result := v.Validate(flow)
			for _, w := range result.Warnings {
				fmt.Fprintf(a.stdout, "warning %s [%s] %s\n", w.Path, w.Code, w.Message)
			}
			for _, e := range result.Errors {
				fmt.Fprintf(a.stdout, "error   %s [%s] %s\n", e.Path, e.Code, e.Message)
			}
			if !result.Valid() {
				return fmt.Errorf("%s: %d errors", args[0], len(result.Errors))
			}
			fmt.Fprintf(a.stdout, "%s: valid (%d warnings)\n", args[0], len(result.Warnings))
			return nil
		},
	}
}
