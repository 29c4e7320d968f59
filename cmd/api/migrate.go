package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BradenHooton/usermgmt/internal/config"
	"github.com/BradenHooton/usermgmt/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		logger := newLogger(cfg.Server.LogLevel)

		db, dialect, err := openMigrationDB(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		return runMigrations(cmd.Context(), db, dialect, logger)
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		logger := newLogger(cfg.Server.LogLevel)

		db, dialect, err := openMigrationDB(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		statuses, err := database.Status(cmd.Context(), db, dialect)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, s := range statuses {
			state := "pending"
			if s.Applied {
				state = "applied"
			}
			fmt.Fprintf(out, "%05d  %-8s %s\n", s.Version, state, s.Source)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateStatusCmd)
}
