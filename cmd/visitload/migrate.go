package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/gyeh/visitload/internal/config"
	"github.com/gyeh/visitload/internal/db"
	"github.com/gyeh/visitload/internal/exitcode"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply Postgres schema migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := cmd.Context()

	if cfg.Driver != config.DriverPostgres {
		log.Error().Str("driver", cfg.Driver).Msg("migrate only applies to the postgres driver; sqlite and mongo create their schema on open")
		os.Exit(exitcode.UsageError)
	}
	if cfg.DSN == "" {
		log.Error().Msg("--dsn or DATABASE_URL is required")
		os.Exit(exitcode.UsageError)
	}

	pool, err := db.NewPool(ctx, cfg.DSN)
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		os.Exit(exitcode.StoreConnError)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool, log); err != nil {
		log.Error().Err(err).Msg("migration failed")
		pool.Close()
		os.Exit(exitcode.StoreConnError)
	}

	log.Info().Msg("all migrations applied successfully")
	return nil
}
