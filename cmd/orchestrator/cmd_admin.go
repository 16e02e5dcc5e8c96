package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ignite/outreach-orchestrator/internal/pkg/logger"
	"github.com/ignite/outreach-orchestrator/internal/repository/postgres"
)

var cleanupLocksCmd = &cobra.Command{
	Use:   "cleanup-locks",
	Short: "Delete expired campaign locks left by crashed workers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.locks.CleanupStale(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired locks\n", n)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the PostgreSQL schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Store.Backend != "postgres" {
			return fmt.Errorf("migrate requires the postgres store backend (got %q)", cfg.Store.Backend)
		}
		ctx, stop := signalContext()
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := postgres.Migrate(ctx, a.db); err != nil {
			return err
		}
		logger.Info("schema_migrated", "statements", len(postgres.Schema))
		return nil
	},
}
