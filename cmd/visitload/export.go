package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gyeh/visitload/internal/exitcode"
	"github.com/gyeh/visitload/internal/parquetio"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the merged patient/visit view to a Parquet file",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&cfg.OutPath, "out", "", "Destination .parquet file (required)")
	_ = exportCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
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

	n, err := parquetio.WriteMergedFile(cfg.OutPath, rows)
	if err != nil {
		log.Error().Err(err).Str("out", cfg.OutPath).Msg("parquet write failed")
		st.Close()
		os.Exit(exitcode.ExportError)
	}
	if err := parquetio.Verify(cfg.OutPath, n); err != nil {
		log.Error().Err(err).Str("out", cfg.OutPath).Msg("parquet verification failed")
		st.Close()
		os.Exit(exitcode.ExportError)
	}

	log.Info().Int64("rows", n).Str("out", cfg.OutPath).Msg("export complete")
	fmt.Printf("Export complete: %d merged rows written to %s\n", n, cfg.OutPath)
	return nil
}
