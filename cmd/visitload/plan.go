package main

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gyeh/visitload/internal/exitcode"
	"github.com/gyeh/visitload/internal/ingest"
	"github.com/gyeh/visitload/internal/model"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Dry-run validation and stats (no writes)",
	RunE:  runPlan,
}

func init() {
	planCmd.Flags().StringVar(&cfg.FilePath, "file", "", "Path to .xlsx, .csv or .html upload (required)")
	_ = planCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	log := newLogger()

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}
	if err := cfg.LoadProfile(); err != nil {
		log.Error().Err(err).Str("profile", cfg.ProfilePath).Msg("profile load failed")
		os.Exit(exitcode.UsageError)
	}

	stat, err := os.Stat(cfg.FilePath)
	if err != nil {
		log.Error().Err(err).Msg("failed to stat file")
		os.Exit(exitcode.ValidationError)
	}

	proc := ingest.NewProcessor(cfg.Profile, nil, nil, zerolog.Nop()).DryRun()
	res, err := proc.Run(cmd.Context(), cfg.FilePath)
	if err != nil {
		var pe *ingest.PipelineError
		if errors.As(err, &pe) {
			log.Error().Err(pe.Err).Str("phase", pe.Phase).Int("row", pe.Row).Msg("plan failed")
			os.Exit(exitcode.ForPhase(pe.Phase))
		}
		log.Error().Err(err).Msg("plan failed")
		os.Exit(exitcode.ValidationError)
	}

	p := summarize(res.Records)
	s := res.Summary

	fmt.Println("=== visitload plan ===")
	fmt.Printf("File:         %s\n", cfg.FilePath)
	fmt.Printf("SHA-256:      %s\n", s.FileSHA256)
	fmt.Printf("Size:         %d bytes\n", stat.Size())
	fmt.Printf("Rows read:    %d\n", s.RowsRead)
	fmt.Printf("Rows skipped: %d\n", s.RowsSkipped)
	fmt.Printf("Records:      %d\n", len(res.Records))
	fmt.Printf("Patients:     %d distinct MRNs\n", p.patients)
	fmt.Printf("Visits:       %d distinct visit keys\n", p.visits)
	fmt.Println()
	fmt.Println("ICD code frequency:")
	for _, c := range p.codes {
		fmt.Printf("  %-10s %6d\n", c.code, c.count)
	}
	fmt.Println("Header validation: OK")
	return nil
}

type codeCount struct {
	code  string
	count int
}

type planStats struct {
	patients int
	visits   int
	codes    []codeCount
}

// summarize counts distinct patients and visits and how many records carry
// each ICD code, most frequent first.
func summarize(recs []model.ProcessedRecord) planStats {
	mrns := make(map[string]bool)
	keys := make(map[model.VisitKey]bool)
	freq := make(map[string]int)
	for i := range recs {
		mrns[recs[i].MRN] = true
		keys[recs[i].VisitKey()] = true
		for _, c := range recs[i].ICDCodes {
			freq[c]++
		}
	}

	codes := make([]codeCount, 0, len(freq))
	for c, n := range freq {
		codes = append(codes, codeCount{code: c, count: n})
	}
	sort.Slice(codes, func(i, j int) bool {
		if codes[i].count != codes[j].count {
			return codes[i].count > codes[j].count
		}
		return codes[i].code < codes[j].code
	})
	return planStats{patients: len(mrns), visits: len(keys), codes: codes}
}
