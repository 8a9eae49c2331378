// ABOUTME: usage command summarizing the perspective usage ledger
// ABOUTME: Optional filters narrow the summary to one user and a trailing window

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/polydev-ai/polydev-mcp/internal/store"
)

func newUsageCmd(load configLoader) *cobra.Command {
	var userID string
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Summarize get_perspectives provider usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := usageFilter(userID, since, time.Now())
			return withStore(load, func(s store.Store) error {
				return printUsage(cmd.Context(), s, cmd.OutOrStdout(), filter)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "only this user")
	cmd.Flags().DurationVar(&since, "since", 0, "only the trailing window, e.g. 24h")
	return cmd
}

func usageFilter(userID string, since time.Duration, now time.Time) store.UsageFilter {
	var f store.UsageFilter
	if userID != "" {
		f.UserID = &userID
	}
	if since > 0 {
		t := now.Add(-since)
		f.Since = &t
	}
	return f
}

func printUsage(ctx context.Context, s store.UsageStore, out io.Writer, filter store.UsageFilter) error {
	summary, err := s.GetUsageSummary(ctx, filter)
	if err != nil {
		return fmt.Errorf("loading usage: %w", err)
	}

	succeeded := summary.Invocations - summary.Failures
	fmt.Fprintf(out, "Invocations: %d\n", summary.Invocations)
	fmt.Fprintf(out, "Succeeded:   %d\n", succeeded)
	fmt.Fprintf(out, "Failed:      %d\n", summary.Failures)
	fmt.Fprintf(out, "Tokens:      %d\n", summary.TotalTokens)
	return nil
}
