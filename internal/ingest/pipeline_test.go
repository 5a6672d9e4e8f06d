package ingest_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/gyeh/visitload/internal/config"
	"github.com/gyeh/visitload/internal/ingest"
	"github.com/gyeh/visitload/internal/merge"
	"github.com/gyeh/visitload/internal/model"
	"github.com/gyeh/visitload/internal/store/sqlitestore"
	"github.com/gyeh/visitload/internal/tabular"
)

var headerRow = []string{
	"patient", "MRN", "chart_status", "PayorSourceName", "BranchCode",
	"form", "form_status", "admitDate", "M1023(1)", "M1023(2)", "Pain(1)", "Pain(2)",
}

func dataRow(mrn, date, icd1, icd2, pain1, pain2 string) []string {
	return []string{"Doe, Jane", mrn, "Open", "Medicare", "BR1", "SOC", "Completed", date, icd1, icd2, pain1, pain2}
}

func grid(rows ...[]string) tabular.RowReader {
	out := make([][]model.Cell, len(rows))
	for i, r := range rows {
		out[i] = model.StringCells(r...)
	}
	return tabular.NewSliceReader(out)
}

func mkXLSX(rows [][]any) []byte {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	buf := bytes.NewBuffer(nil)
	_, _ = f.WriteTo(buf)
	return buf.Bytes()
}

type fixture struct {
	st   *sqlitestore.Store
	proc *ingest.Processor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := sqlitestore.Open(filepath.Join(t.TempDir(), "visits.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	eng := merge.NewEngine(st, zerolog.Nop())
	proc := ingest.NewProcessor(config.DefaultProfile(), eng, st, zerolog.Nop())
	return &fixture{st: st, proc: proc}
}

func TestProcess_MergesRowsInOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.proc.Process(ctx, grid(
		headerRow,
		dataRow("M1", "2024-01-15", "I10", "", "3", ""),
		dataRow("M2", "2024-01-16", "", "", "", ""),
	))
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "M1", res.Records[0].MRN)
	assert.Equal(t, "M2", res.Records[1].MRN)

	s := res.Summary
	assert.Equal(t, int64(2), s.RowsRead)
	assert.Equal(t, int64(2), s.RecordsMerged)
	assert.Equal(t, int64(2), s.PatientsCreated)
	assert.Equal(t, int64(2), s.VisitsCreated)
	assert.Equal(t, int64(2), s.RecordsArchived)
	assert.NotEmpty(t, s.IngestBatchID)
}

func TestProcess_UnionWithinBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.proc.Process(ctx, grid(
		headerRow,
		dataRow("M1", "2024-01-15", "I10", "", "3", ""),
		dataRow("M1", "01/15/2024", "E11.9", "I10", "4", "3"),
	))
	require.NoError(t, err)
	assert.Len(t, res.Records, 2, "every merged row is returned")
	assert.Equal(t, int64(1), res.Summary.VisitsCreated)
	assert.Equal(t, int64(1), res.Summary.VisitsMerged)

	v, err := f.st.FindVisit(ctx, model.VisitKey{MRN: "M1", VisitType: "SOC", VisitDate: "2024-01-15"})
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, []string{"I10", "E11.9"}, v.ICDCodes)
	assert.Equal(t, []any{"3", "4"}, v.Questionnaire["Pain"])
}

func TestProcess_IdempotentAcrossBatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rows := [][]string{headerRow, dataRow("M1", "2024-01-15", "I10", "", "3", "")}

	_, err := f.proc.Process(ctx, grid(rows...))
	require.NoError(t, err)
	first, err := f.st.MergedView(ctx)
	require.NoError(t, err)

	res, err := f.proc.Process(ctx, grid(rows...))
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Summary.PatientsCreated)
	assert.Equal(t, int64(0), res.Summary.VisitsCreated)

	second, err := f.st.MergedView(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestProcess_SkipsEmptyRows(t *testing.T) {
	f := newFixture(t)

	res, err := f.proc.Process(context.Background(), grid(
		headerRow,
		make([]string, len(headerRow)),
		dataRow("M1", "2024-01-15", "", "", "", ""),
		[]string{"  ", ""},
	))
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)
	assert.Equal(t, int64(3), res.Summary.RowsRead)
	assert.Equal(t, int64(2), res.Summary.RowsSkipped)
}

func TestProcess_HeaderErrorWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.proc.Process(ctx, grid(
		[]string{"patient", "MRN", "form"},
		[]string{"Doe, Jane", "M1", "SOC"},
	))
	require.Error(t, err)

	var pe *ingest.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ingest.PhaseHeaders, pe.Phase)

	var he *ingest.HeaderError
	require.ErrorAs(t, err, &he)
	assert.ElementsMatch(t, []string{"BranchCode", "admitDate"}, he.Missing)

	rows, err := f.st.MergedView(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestProcess_MidBatchFailureKeepsEarlierRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.proc.Process(ctx, grid(
		headerRow,
		dataRow("M1", "2024-01-15", "", "", "", ""),
		dataRow("M2", "not a date", "", "", "", ""),
		dataRow("M3", "2024-01-17", "", "", "", ""),
	))
	require.Error(t, err)

	var pe *ingest.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ingest.PhaseTransform, pe.Phase)
	assert.Equal(t, 3, pe.Row)

	require.NotNil(t, res)
	assert.Len(t, res.Records, 1)
	assert.Equal(t, int64(1), res.Summary.RecordsArchived, "partial batch is still archived")

	rows, err := f.st.MergedView(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "M1", rows[0].MRN)
}

func TestProcess_ValidationFailure(t *testing.T) {
	f := newFixture(t)

	row := dataRow("M1", "2024-01-15", "", "", "", "")
	row[2] = "" // chart_status
	_, err := f.proc.Process(context.Background(), grid(headerRow, row))

	var ve *ingest.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"charStatus"}, ve.FieldNames())
}

func TestProcess_USExportDateTime(t *testing.T) {
	f := newFixture(t)

	res, err := f.proc.Process(context.Background(), grid(
		headerRow,
		dataRow("M1", "8/20/2024 12:00:00 AM", "I10", "", "", ""),
		dataRow("M1", "2024/8/20", "E11.9", "", "", ""),
	))
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "2024-08-20", res.Records[0].VisitDate)
	assert.Equal(t, int64(1), res.Summary.VisitsCreated)
	assert.Equal(t, int64(1), res.Summary.VisitsMerged)
}

func TestProcess_MinimalHeaderRowFailsValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.proc.Process(ctx, grid(
		[]string{"patient", "MRN", "form", "admitDate", "BranchCode", "PayorSourceName"},
		[]string{"SP First, SP Last", "SD00004386002", "PT00", "2024-08-20", "GSD", "SHARP COMMUNITY MEDICAL GROUP MA PER VISIT"},
	))

	var pe *ingest.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ingest.PhaseValidate, pe.Phase)
	assert.Equal(t, 2, pe.Row)
	var ve *ingest.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"charStatus", "status"}, ve.FieldNames())
	assert.Empty(t, res.Records)

	rows, err := f.st.MergedView(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestProcess_NoHeaderRow(t *testing.T) {
	f := newFixture(t)
	_, err := f.proc.Process(context.Background(), grid())

	var pe *ingest.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ingest.PhaseHeaders, pe.Phase)
}

func TestProcess_DryRunWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	proc := ingest.NewProcessor(config.DefaultProfile(), nil, nil, zerolog.Nop()).DryRun()

	res, err := proc.Process(ctx, grid(headerRow, dataRow("M1", "2024-01-15", "", "", "", "")))
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)
	assert.Zero(t, res.Summary.RecordsMerged)

	rows, err := f.st.MergedView(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

type failingArchiver struct{}

var errArchive = errors.New("archive down")

func (failingArchiver) ArchiveRecords(context.Context, uuid.UUID, []model.ProcessedRecord) (int64, error) {
	return 0, errArchive
}

func TestProcess_ArchiveFailureFailsBatch(t *testing.T) {
	f := newFixture(t)
	proc := ingest.NewProcessor(config.DefaultProfile(), merge.NewEngine(f.st, zerolog.Nop()), failingArchiver{}, zerolog.Nop())

	_, err := proc.Process(context.Background(), grid(headerRow, dataRow("M1", "2024-01-15", "", "", "", "")))
	var pe *ingest.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ingest.PhaseArchive, pe.Phase)
	assert.ErrorIs(t, err, errArchive)
}

func TestRun_XLSXFileRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rows := [][]any{make([]any, len(headerRow))}
	for i, h := range headerRow {
		rows[0][i] = h
	}
	data := dataRow("M1", "2024-01-15", "I10", "E11.9", "3", "")
	rec := make([]any, len(data))
	for i, v := range data {
		rec[i] = v
	}
	rows = append(rows, rec)

	path := filepath.Join(t.TempDir(), "upload.xlsx")
	require.NoError(t, os.WriteFile(path, mkXLSX(rows), 0o644))

	res, err := f.proc.Run(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, path, res.Summary.FilePath)
	assert.Len(t, res.Summary.FileSHA256, 64)
	require.Len(t, res.Records, 1)
	assert.Equal(t, []string{"I10", "E11.9"}, res.Records[0].ICDCodes)

	merged, err := f.st.MergedView(ctx)
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, "Doe", merged[0].FirstName)
	assert.Equal(t, []any{"3"}, merged[0].Questionnaire["Pain"])
}

func TestRun_UnsupportedFile(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "upload.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o644))

	_, err := f.proc.Run(context.Background(), path)
	var pe *ingest.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ingest.PhasePreflight, pe.Phase)
}
