package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gyeh/visitload/internal/config"
	"github.com/gyeh/visitload/internal/merge"
	"github.com/gyeh/visitload/internal/model"
	"github.com/gyeh/visitload/internal/normalize"
	"github.com/gyeh/visitload/internal/store"
	"github.com/gyeh/visitload/internal/tabular"
)

// Merger applies one processed record to stored state.
type Merger interface {
	Merge(ctx context.Context, rec *model.ProcessedRecord) (*merge.Outcome, error)
}

// Result is the batch result of one upload.
type Result struct {
	Records []model.ProcessedRecord
	Summary *model.IngestSummary
}

// Processor runs uploads through headers → transform → validate → merge →
// archive, one row at a time in file order.
type Processor struct {
	transformer *Transformer
	required    []string
	merger      Merger
	archiver    store.Archiver
	log         zerolog.Logger
	dryRun      bool
}

// NewProcessor builds a Processor. merger may be nil only in dry-run mode;
// archiver may be nil to disable archiving.
func NewProcessor(p config.Profile, merger Merger, archiver store.Archiver, log zerolog.Logger) *Processor {
	return &Processor{
		transformer: NewTransformer(p).WithLogger(log),
		required:    p.RequiredHeaders,
		merger:      merger,
		archiver:    archiver,
		log:         log,
	}
}

// DryRun makes Process transform and validate every row without merging or
// archiving anything.
func (p *Processor) DryRun() *Processor {
	p.dryRun = true
	return p
}

// Transformer exposes the row transformer, mainly so callers can pin its clock.
func (p *Processor) Transformer() *Transformer {
	return p.transformer
}

// Process consumes rr. Processing stops at the first error; records merged
// before it stay committed and are still archived. On error the returned
// Result holds the records merged so far.
func (p *Processor) Process(ctx context.Context, rr tabular.RowReader) (*Result, error) {
	start := time.Now()
	batchID := uuid.New()
	summary := &model.IngestSummary{IngestBatchID: batchID.String()}
	res := &Result{Records: []model.ProcessedRecord{}, Summary: summary}

	err := p.processRows(ctx, rr, res)

	if archErr := p.archive(ctx, batchID, res); archErr != nil {
		if err == nil {
			err = archErr
		} else {
			p.log.Error().Err(archErr).Msg("archiving partial batch failed")
		}
	}

	summary.DurationTotal = time.Since(start)
	if err != nil {
		p.log.Error().
			Err(err).
			Str("batch_id", summary.IngestBatchID).
			Int64("records_merged", summary.RecordsMerged).
			Msg("ingest aborted")
		return res, err
	}

	p.log.Info().
		Str("batch_id", summary.IngestBatchID).
		Int64("rows_read", summary.RowsRead).
		Int64("rows_skipped", summary.RowsSkipped).
		Int64("records_merged", summary.RecordsMerged).
		Int64("patients_created", summary.PatientsCreated).
		Int64("visits_created", summary.VisitsCreated).
		Int64("visits_merged", summary.VisitsMerged).
		Str("total_duration", summary.DurationTotal.String()).
		Msg("ingest complete")
	return res, nil
}

func (p *Processor) processRows(ctx context.Context, rr tabular.RowReader, res *Result) error {
	summary := res.Summary
	var headers []string
	rowNum := 0

	for rr.Next() {
		rowNum++
		row := rr.Values()
		if rowNum == 1 {
			headers = headerNames(row)
			if err := ValidateHeaders(headers, p.required); err != nil {
				return &PipelineError{Phase: PhaseHeaders, Err: err}
			}
			continue
		}
		if err := ctx.Err(); err != nil {
			return &PipelineError{Phase: PhaseMerge, Row: rowNum, Err: err}
		}

		summary.RowsRead++
		rec, skipped, err := p.prepare(row, headers, rowNum)
		if err != nil {
			return err
		}
		if skipped {
			summary.RowsSkipped++
			continue
		}
		if p.dryRun {
			res.Records = append(res.Records, *rec)
			continue
		}

		mergeStart := time.Now()
		out, err := p.merger.Merge(ctx, rec)
		summary.DurationMerge += time.Since(mergeStart)
		if err != nil {
			return &PipelineError{Phase: PhaseMerge, Row: rowNum, Err: err}
		}
		summary.RecordsMerged++
		if out.PatientCreated {
			summary.PatientsCreated++
		}
		if out.VisitCreated {
			summary.VisitsCreated++
		} else {
			summary.VisitsMerged++
		}
		res.Records = append(res.Records, *rec)
	}
	if err := rr.Err(); err != nil {
		return &PipelineError{Phase: PhasePreflight, Row: rowNum, Err: err}
	}
	if rowNum == 0 {
		return &PipelineError{Phase: PhaseHeaders, Err: errors.New("upload has no header row")}
	}
	return nil
}

// prepare transforms and validates one data row. skipped is true for rows
// whose cells are all blank.
func (p *Processor) prepare(row []model.Cell, headers []string, rowNum int) (*model.ProcessedRecord, bool, error) {
	if isBlank(row) {
		return nil, true, nil
	}
	rec, err := p.transformer.TransformRow(row, headers)
	if err != nil {
		return nil, false, &PipelineError{Phase: PhaseTransform, Row: rowNum, Err: err}
	}
	if err := ValidateRecord(rec); err != nil {
		return nil, false, &PipelineError{Phase: PhaseValidate, Row: rowNum, Err: err}
	}
	return rec, false, nil
}

func (p *Processor) archive(ctx context.Context, batchID uuid.UUID, res *Result) error {
	if p.dryRun || p.archiver == nil || len(res.Records) == 0 {
		return nil
	}
	start := time.Now()
	n, err := p.archiver.ArchiveRecords(ctx, batchID, res.Records)
	if err != nil {
		return &PipelineError{Phase: PhaseArchive, Err: fmt.Errorf("archive records: %w", err)}
	}
	res.Summary.RecordsArchived = n
	p.log.Info().
		Int64("records_archived", n).
		Dur("duration", time.Since(start)).
		Msg("archive complete")
	return nil
}

func headerNames(row []model.Cell) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = c.Text()
	}
	return out
}

// Run processes the spreadsheet at path, recording its SHA-256 in the
// summary.
func (p *Processor) Run(ctx context.Context, path string) (*Result, error) {
	start := time.Now()
	sha, err := normalize.FileHash(path)
	if err != nil {
		return nil, &PipelineError{Phase: PhasePreflight, Err: fmt.Errorf("hash file: %w", err)}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &PipelineError{Phase: PhasePreflight, Err: fmt.Errorf("open file: %w", err)}
	}
	defer f.Close()

	rr, err := tabular.Open(path, f)
	if err != nil {
		return nil, &PipelineError{Phase: PhasePreflight, Err: err}
	}
	defer rr.Close()

	p.log.Info().
		Str("file", path).
		Str("sha256", sha).
		Dur("duration", time.Since(start)).
		Msg("preflight complete")

	res, err := p.Process(ctx, rr)
	if res != nil {
		res.Summary.FilePath = path
		res.Summary.FileSHA256 = sha
	}
	return res, err
}
