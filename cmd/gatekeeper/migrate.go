package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	repositoryimpl "github.com/foxseedlab/gatekeeper/external/repository"
	"github.com/spf13/cobra"
)

const migrateTimeout = 30 * time.Second

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the call store schema",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()
		initLogger(cfg)
		if cfg.DatabaseURL == "" {
			slog.Error("DATABASE_URL is required for migrate")
			os.Exit(1)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), migrateTimeout)
		defer cancel()

		pool, err := repositoryimpl.OpenPool(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connect failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := repositoryimpl.RunMigration(ctx, pool); err != nil {
			slog.Error("migration failed", "error", err)
			os.Exit(1)
		}
		slog.Info("migration completed")
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
