package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gyeh/visitload/internal/config"
	"github.com/gyeh/visitload/internal/exitcode"
	"github.com/gyeh/visitload/internal/ingest"
	"github.com/gyeh/visitload/internal/merge"
	"github.com/gyeh/visitload/internal/model"
	"github.com/gyeh/visitload/internal/store"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Merge a visit spreadsheet into the store",
	RunE:  runIngest,
}

func init() {
	f := ingestCmd.Flags()
	f.StringVar(&cfg.FilePath, "file", "", "Path to .xlsx, .csv or .html upload (required)")
	f.BoolVar(&cfg.DryRun, "dry-run", false, "Transform and validate every row without writing")
	f.BoolVar(&cfg.Archive, "archive", true, "Archive every merged record with its batch ID")
	f.BoolVar(&cfg.Migrate, "migrate", false, "Apply Postgres migrations before ingesting")
	_ = ingestCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := cmd.Context()

	if err := validateIngest(&cfg); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}
	if err := cfg.LoadProfile(); err != nil {
		log.Error().Err(err).Str("profile", cfg.ProfilePath).Msg("profile load failed")
		os.Exit(exitcode.UsageError)
	}

	proc, closeStore, err := newIngestProcessor(ctx, &cfg, log, openStore)
	if err != nil {
		log.Error().Err(err).Str("driver", cfg.Driver).Msg("store connection failed")
		os.Exit(exitcode.StoreConnError)
	}
	defer closeStore()

	res, err := proc.Run(ctx, cfg.FilePath)
	if err != nil {
		if res != nil {
			printSummary("Ingest aborted", res.Summary)
		}
		code := exitcode.MergeError
		var pe *ingest.PipelineError
		if errors.As(err, &pe) {
			log.Error().Err(pe.Err).Str("phase", pe.Phase).Int("row", pe.Row).Msg("ingest failed")
			code = exitcode.ForPhase(pe.Phase)
		} else {
			log.Error().Err(err).Msg("ingest failed")
		}
		closeStore()
		os.Exit(code)
	}

	if cfg.DryRun {
		fmt.Printf("Dry run: %d rows read, %d records valid, nothing written\n",
			res.Summary.RowsRead, len(res.Records))
		return nil
	}
	printSummary("Ingest complete", res.Summary)
	return nil
}

// validateIngest checks the flags an ingest needs. A dry run never touches
// the store, so it needs no driver or DSN.
func validateIngest(c *config.Config) error {
	if c.DryRun {
		return c.Validate()
	}
	return c.ValidateWithDSN()
}

type storeOpener func(ctx context.Context, log zerolog.Logger) (backend, error)

// newIngestProcessor wires the processor for c. Dry runs get a processor with
// no merger or archiver and never call open.
func newIngestProcessor(ctx context.Context, c *config.Config, log zerolog.Logger, open storeOpener) (*ingest.Processor, func(), error) {
	if c.DryRun {
		return ingest.NewProcessor(c.Profile, nil, nil, log).DryRun(), func() {}, nil
	}

	st, err := open(ctx, log)
	if err != nil {
		return nil, nil, err
	}
	var archiver store.Archiver
	if c.Archive {
		archiver = st
	}
	proc := ingest.NewProcessor(c.Profile, merge.NewEngine(st, log), archiver, log)
	return proc, func() { _ = st.Close() }, nil
}

func printSummary(title string, s *model.IngestSummary) {
	if s == nil {
		return
	}
	fmt.Printf("%s: %d rows read, %d skipped, %d merged (%d patients created, %d visits created, %d visits merged), %d archived (%.1fs)\n",
		title, s.RowsRead, s.RowsSkipped, s.RecordsMerged,
		s.PatientsCreated, s.VisitsCreated, s.VisitsMerged,
		s.RecordsArchived, s.DurationTotal.Seconds())
	if s.IngestBatchID != "" {
		fmt.Printf("Batch:  %s\n", s.IngestBatchID)
	}
}
