package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"instructapi/internal/config"
	"instructapi/internal/database"
	"instructapi/internal/database/migration"
	"instructapi/internal/logging"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the document tables when they are missing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			log := logging.Init(cfg.Log)

			db, err := database.NewPostgres(cmd.Context(), cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			return migration.EnsureMigrated(cmd.Context(), db, log, cfg.Database.Host)
		},
	}
}
