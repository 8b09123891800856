// =============================================================================
// Tally Import - Migrate Command
// =============================================================================
//
// This file defines the 'migrate' command, which applies or rolls back the
// customers and invoices schema. The migrations are embedded in the binary.
//
// COMMAND USAGE:
//   tally-import migrate up
//   tally-import migrate down
//
// =============================================================================

package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ginjaninja78/tally-import/internal/logging"
	"github.com/ginjaninja78/tally-import/internal/storage/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		url, err := databaseURL()
		if err != nil {
			return err
		}
		if err := postgres.RunMigrations(url); err != nil {
			return err
		}
		logger.Info("schema is up to date", zap.String("database", logging.RedactURL(url)))
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back all migrations (drops the customers and invoices tables)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		url, err := databaseURL()
		if err != nil {
			return err
		}
		if err := postgres.RunMigrationsDown(url); err != nil {
			return err
		}
		logger.Info("schema rolled back", zap.String("database", logging.RedactURL(url)))
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
	rootCmd.AddCommand(migrateCmd)
}

// databaseURL returns the configured PostgreSQL URL.
func databaseURL() (string, error) {
	url := mainConfig.Storage.DatabaseURL
	if url == "" {
		return "", errors.New("no database configured (storage.database_url or DATABASE_URL)")
	}
	return url, nil
}
