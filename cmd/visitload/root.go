package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gyeh/visitload/internal/config"
	"github.com/gyeh/visitload/internal/logging"
)

var cfg config.Config

var env = config.LoadEnv()

var rootCmd = &cobra.Command{
	Use:          "visitload",
	Short:        "Patient visit spreadsheet → patient/visit store loader",
	Long:         "Reads home-health visit exports (xlsx, csv or html) and merges them into patient and visit records in Postgres, MongoDB or SQLite.",
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfg.DSN, "dsn", env.DatabaseURL, "Store connection string or SQLite path (or set DATABASE_URL)")
	pf.StringVar(&cfg.Driver, "driver", env.StoreDriver, "Store driver: postgres, mongo or sqlite (or set STORE_DRIVER)")
	pf.StringVar(&cfg.LogFormat, "log-format", env.LogFormat, "Log format: text or json")
	pf.StringVar(&cfg.LogLevel, "log-level", env.LogLevel, "Log level: debug, info, warn or error")
	pf.StringVar(&cfg.ProfilePath, "profile", env.Profile, "YAML column profile (or set INTAKE_PROFILE)")
}

func newLogger() zerolog.Logger {
	return logging.New(os.Stderr, cfg.LogFormat, cfg.LogLevel)
}
