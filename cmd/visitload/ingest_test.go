package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyeh/visitload/internal/config"
)

const ingestCSV = "patient,MRN,chart_status,PayorSourceName,BranchCode,form,form_status,admitDate\n" +
	"\"Doe, Jane\",M1,Open,Medicare,BR1,SOC,Completed,8/20/2024 10:30 AM\n"

func writeUpload(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "visits.csv")
	require.NoError(t, os.WriteFile(path, []byte(ingestCSV), 0o644))
	return path
}

func TestValidateIngest_DryRunNeedsNoDSN(t *testing.T) {
	c := &config.Config{FilePath: writeUpload(t), DryRun: true}
	assert.NoError(t, validateIngest(c))

	c.DryRun = false
	assert.ErrorContains(t, validateIngest(c), "unknown store driver")

	c.Driver = config.DriverSQLite
	assert.ErrorContains(t, validateIngest(c), "DATABASE_URL")
}

func TestNewIngestProcessor_DryRunSkipsStore(t *testing.T) {
	c := &config.Config{FilePath: writeUpload(t), DryRun: true, Archive: true, Profile: config.DefaultProfile()}
	open := func(context.Context, zerolog.Logger) (backend, error) {
		t.Fatal("dry run must not open the store")
		return nil, nil
	}

	proc, closeStore, err := newIngestProcessor(context.Background(), c, zerolog.Nop(), open)
	require.NoError(t, err)
	defer closeStore()

	res, err := proc.Run(context.Background(), c.FilePath)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "2024-08-20", res.Records[0].VisitDate)
	assert.Zero(t, res.Summary.RecordsMerged)
	assert.Zero(t, res.Summary.RecordsArchived)
}

func TestNewIngestProcessor_StoreError(t *testing.T) {
	c := &config.Config{Driver: config.DriverSQLite, DSN: "x", Profile: config.DefaultProfile()}
	open := func(context.Context, zerolog.Logger) (backend, error) {
		return nil, errors.New("connection refused")
	}

	_, _, err := newIngestProcessor(context.Background(), c, zerolog.Nop(), open)
	assert.ErrorContains(t, err, "connection refused")
}

func TestNewIngestProcessor_MergesIntoStore(t *testing.T) {
	c := &config.Config{
		Driver:  config.DriverSQLite,
		DSN:     filepath.Join(t.TempDir(), "visits.db"),
		Archive: true,
		Profile: config.DefaultProfile(),
	}
	saved := cfg
	cfg = *c
	t.Cleanup(func() { cfg = saved })

	proc, closeStore, err := newIngestProcessor(context.Background(), c, zerolog.Nop(), openStore)
	require.NoError(t, err)
	defer closeStore()

	res, err := proc.Run(context.Background(), writeUpload(t))
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Summary.RecordsMerged)
	assert.Equal(t, int64(1), res.Summary.RecordsArchived)
}
