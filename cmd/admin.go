package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meodash/meorank/internal/store/postgres"
)

func openStore(ctx context.Context) (*postgres.JobStore, error) {
	store, err := postgres.New(ctx, postgres.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(cfg.DB.LifetimeMins) * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("init job store: %w", err)
	}
	return store, nil
}

func newSweepCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Requeue running jobs abandoned by a crashed worker",
		Long: `sweep resets jobs stuck in running longer than the threshold back to
queued. Run it from cron; the worker never does this on its own, so a live
worker's in-flight job is safe as long as the threshold exceeds the longest
plausible search.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.RequeueStale(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			logger.Info("sweep finished", zap.Int64("requeued", n), zap.Duration("older_than", olderThan))
			fmt.Fprintf(cmd.OutOrStdout(), "requeued=%d\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 2*time.Hour, "running-age threshold")
	return cmd
}

func newPurgeCmd() *cobra.Command {
	var beforeStr string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete terminal job rows older than a cutoff",
		RunE: func(cmd *cobra.Command, _ []string) error {
			before, err := parseDate(beforeStr)
			if err != nil {
				return err
			}

			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.PurgeFinishedBefore(cmd.Context(), before)
			if err != nil {
				return err
			}
			logger.Info("purge finished", zap.Int64("deleted", n), zap.Time("before", before))
			fmt.Fprintf(cmd.OutOrStdout(), "deleted=%d\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&beforeStr, "before", "", "cutoff date YYYY-MM-DD (required)")
	_ = cmd.MarkFlagRequired("before")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}
			logger.Info("schema applied")
			return nil
		},
	}
}
