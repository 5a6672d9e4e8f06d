package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/gyeh/visitload/internal/exitcode"
)

var mergedCmd = &cobra.Command{
	Use:   "merged",
	Short: "Print the merged patient/visit view as JSON",
	RunE:  runMerged,
}

func init() {
	rootCmd.AddCommand(mergedCmd)
}

func runMerged(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := cmd.Context()

	if err := cfg.ValidateStore(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}

	st, err := openStore(ctx, log)
	if err != nil {
		log.Error().Err(err).Str("driver", cfg.Driver).Msg("store connection failed")
		os.Exit(exitcode.StoreConnError)
	}
	defer st.Close()

	rows, err := st.MergedView(ctx)
	if err != nil {
		log.Error().Err(err).Msg("merged view query failed")
		st.Close()
		os.Exit(exitcode.StoreConnError)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}
