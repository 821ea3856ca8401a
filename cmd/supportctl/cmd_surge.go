package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/support-iq/internal/bootstrap"
)

var surgeCmd = &cobra.Command{
	Use:   "surge",
	Short: "Sweep active components once and print ghost ticket alerts",
	RunE:  runSurge,
}

func runSurge(cmd *cobra.Command, _ []string) error {
	return withRuntime(cmd.Context(), func(ctx context.Context, rt *bootstrap.Runtime) error {
		alerts, err := rt.Tickets.SweepSurges(ctx)
		out := cmd.OutOrStdout()
		for _, a := range alerts {
			deployment := "-"
			if a.DeploymentID != nil {
				deployment = *a.DeploymentID
			}
			fmt.Fprintf(out, "%-20s observed=%d rate=%.2f/h baseline=%.2f/h confidence=%.2f deployment=%s\n",
				a.Component, a.ObservedCount, a.ProjectedRate, a.Baseline, a.Confidence, deployment)
		}
		if err != nil {
			return fmt.Errorf("surge sweep: %w", err)
		}
		if len(alerts) == 0 {
			fmt.Fprintln(out, "No surges detected.")
		}
		return nil
	})
}
