package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/support-iq/internal/bootstrap"
)

var adaptCmd = &cobra.Command{
	Use:   "adapt",
	Short: "Run one feedback cycle and print the resulting threshold",
	RunE:  runAdapt,
}

func runAdapt(cmd *cobra.Command, _ []string) error {
	return withRuntime(cmd.Context(), func(ctx context.Context, rt *bootstrap.Runtime) error {
		result, err := rt.Tickets.RunFeedbackCycle(ctx)
		if err != nil {
			return fmt.Errorf("feedback cycle: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Signals:   %d (%d positive)\n", result.Total, result.Positive)
		fmt.Fprintf(out, "Threshold: v%d %.3f -> v%d %.3f\n",
			result.Previous.Version, result.Previous.Value, result.Current.Version, result.Current.Value)
		if !result.Changed {
			fmt.Fprintln(out, "No change.")
		}
		fmt.Fprintf(out, "Articles:  %d weights updated\n", result.ArticlesUpdated)
		return nil
	})
}
