package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/support-iq/internal/bootstrap"
)

var (
	kbDays       int
	kbMinTickets int
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Maintain the knowledge base",
}

var kbDraftsCmd = &cobra.Command{
	Use:   "drafts",
	Short: "Draft an article for every component without knowledge-base coverage",
	RunE:  runKBDrafts,
}

var kbApproveCmd = &cobra.Command{
	Use:   "approve <article-id>",
	Short: "Publish a draft article",
	Args:  cobra.ExactArgs(1),
	RunE:  runKBApprove,
}

func init() {
	kbDraftsCmd.Flags().IntVar(&kbDays, "days", 30, "lookback window in days")
	kbDraftsCmd.Flags().IntVar(&kbMinTickets, "min-tickets", 5, "tickets needed before a component counts as a gap")
	kbCmd.AddCommand(kbDraftsCmd, kbApproveCmd)
}

func runKBDrafts(cmd *cobra.Command, _ []string) error {
	return withRuntime(cmd.Context(), func(ctx context.Context, rt *bootstrap.Runtime) error {
		drafts, err := rt.Knowledge.DraftGapArticles(ctx, time.Duration(kbDays)*24*time.Hour, kbMinTickets)
		out := cmd.OutOrStdout()
		for _, d := range drafts {
			fmt.Fprintf(out, "%-28s %s\n", d.ID, d.Title)
		}
		if err != nil {
			return fmt.Errorf("draft knowledge gaps: %w", err)
		}
		if len(drafts) == 0 {
			fmt.Fprintln(out, "No knowledge gaps found.")
		}
		return nil
	})
}

func runKBApprove(cmd *cobra.Command, args []string) error {
	return withRuntime(cmd.Context(), func(ctx context.Context, rt *bootstrap.Runtime) error {
		article, err := rt.Knowledge.ApproveArticle(ctx, args[0])
		if err != nil {
			return fmt.Errorf("approve %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s published (component %q)\n", article.ID, article.Component)
		return nil
	})
}
