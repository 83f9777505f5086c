package cmd

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pezzottify/catalog-engine/internal/store/queue"
)

//nolint:gochecknoglobals,lll // Cobra command requires a global definition for proper command-line parsing and execution.
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and administer the download queue.",
}

//nolint:gochecknoglobals,lll
var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print a count of queue items by status.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withQueueStore(cmd.Context(), func(ctx context.Context, store *queue.Store) error {
			stats, err := store.GetQueueStats(ctx)
			if err != nil {
				return fmt.Errorf("get queue stats: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pending:       %s\n", humanize.Comma(stats.Pending))
			fmt.Fprintf(out, "in progress:   %s\n", humanize.Comma(stats.InProgress))
			fmt.Fprintf(out, "retry waiting: %s\n", humanize.Comma(stats.RetryWaiting))
			fmt.Fprintf(out, "completed:     %s\n", humanize.Comma(stats.Completed))
			fmt.Fprintf(out, "failed:        %s\n", humanize.Comma(stats.Failed))

			return nil
		})
	},
}

//nolint:gochecknoglobals,lll
var queueFailedCmd = &cobra.Command{
	Use:   "failed",
	Short: "List queue items in the Failed status.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withQueueStore(cmd.Context(), func(ctx context.Context, store *queue.Store) error {
			items, err := store.GetFailedItems(ctx)
			if err != nil {
				return fmt.Errorf("get failed items: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, item := range items {
				fmt.Fprintf(out, "%s  %-12s %-20s %s\n",
					item.ID, item.ContentType.String(), item.ContentID, item.ErrorMessage)
			}

			return nil
		})
	},
}

//nolint:gochecknoglobals,lll
var queueRetryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Promote a Failed or RetryWaiting queue item back to Pending.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid queue item id: %w", err)
		}

		return withQueueStore(cmd.Context(), func(ctx context.Context, store *queue.Store) error {
			promoted, err := store.PromoteRetryToPending(ctx, id)
			if err != nil {
				return fmt.Errorf("promote retry: %w", err)
			}

			if !promoted {
				if promoted, err = store.ResetFailedToPending(ctx, id); err != nil {
					return fmt.Errorf("reset failed: %w", err)
				}
			}

			if !promoted {
				fmt.Fprintf(cmd.OutOrStdout(), "%s was not RetryWaiting or Failed; nothing to do\n", id)

				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s promoted to Pending\n", id)

			return nil
		})
	},
}

//nolint:gochecknoinits // Cobra requires the init function to register subcommands.
func init() {
	queueCmd.AddCommand(queueStatsCmd, queueFailedCmd, queueRetryCmd)
	rootCmd.AddCommand(queueCmd)
}

func withQueueStore(ctx context.Context, fn func(context.Context, *queue.Store) error) error {
	store, err := queue.Open(ctx, appConfig.QueueDBPath)
	if err != nil {
		return fmt.Errorf("open queue store: %w", err)
	}
	defer store.Close() //nolint:errcheck // Best-effort close on command exit.

	return fn(ctx, store)
}
