package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"example.com/gymlog/internal/outbox"
	"example.com/gymlog/internal/persistence/postgres"
)

var (
	dlqOnce      bool
	dlqBatchSize int
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Manage the outbox dead-letter queue",
}

var dlqRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Requeue or quarantine failed outbox events",
	Long: `Process outbox_dlq entries that are due for retry.

Entries are copied back into the outbox with exponential backoff
(DLQ_BASE_DELAY, doubling per attempt, capped at one hour) and are
quarantined after DLQ_MAX_RETRIES attempts. Without --once the command
keeps polling every DLQ_POLL_INTERVAL until interrupted.

Requires STORE_DRIVER=postgres.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pool, err := postgres.Connect(ctx, cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()

		manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay, logger)
		if dlqOnce {
			processed, err := manager.RunOnce(ctx, dlqBatchSize)
			fmt.Fprintf(cmd.OutOrStdout(), "processed %d entries\n", processed)
			return err
		}

		logger.WithField("interval", cfg.DLQPollInterval).Info("dlq manager started")
		manager.Run(ctx, cfg.DLQPollInterval, dlqBatchSize)
		if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	dlqRunCmd.Flags().BoolVar(&dlqOnce, "once", false, "process a single batch and exit")
	dlqRunCmd.Flags().IntVar(&dlqBatchSize, "batch", 50, "entries to process per pass")
	dlqCmd.AddCommand(dlqRunCmd)
	rootCmd.AddCommand(dlqCmd)
}
