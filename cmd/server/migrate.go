package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ayush/fitness-ai/backend/internal/config"
	"github.com/ayush/fitness-ai/backend/internal/logging"
	"github.com/ayush/fitness-ai/backend/internal/store"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the users and plans tables, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if err := cfg.Validate(); err != nil {
				return err
			}
			log, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx := cmd.Context()
			pool, err := connectPostgres(ctx, cfg.PostgresDSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := store.NewPostgresStore(pool).Migrate(ctx); err != nil {
				return err
			}
			log.Info("migrations applied", zap.String("component", "postgres"))
			return nil
		},
	}
}
