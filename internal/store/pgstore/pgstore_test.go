package pgstore_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyeh/visitload/internal/db"
	"github.com/gyeh/visitload/internal/merge"
	"github.com/gyeh/visitload/internal/model"
	"github.com/gyeh/visitload/internal/store/pgstore"
)

const (
	testPort     = 15433
	testDB       = "visittest"
	testUser     = "postgres"
	testPassword = "postgres"
)

var testDSN string

func TestMain(m *testing.M) {
	if os.Getenv("VISITLOAD_EMBEDDED_PG") != "1" {
		fmt.Fprintln(os.Stderr, "SKIP: set VISITLOAD_EMBEDDED_PG=1 to run Postgres store tests")
		os.Exit(0)
	}

	testDSN = fmt.Sprintf("postgresql://%s:%s@localhost:%d/%s?sslmode=disable",
		testUser, testPassword, testPort, testDB)

	pg := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(uint32(testPort)).
			Database(testDB).
			Username(testUser).
			Password(testPassword).
			Version(embeddedpostgres.V16).
			StartTimeout(30 * time.Second),
	)

	if err := pg.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start embedded postgres: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	if err := pg.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to stop embedded postgres: %v\n", err)
	}

	os.Exit(code)
}

// setupStore drops the intake schema, reapplies migrations and returns a
// fresh store.
func setupStore(t *testing.T) *pgstore.Store {
	t.Helper()
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, testDSN)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, "DROP SCHEMA IF EXISTS intake CASCADE")
	require.NoError(t, err)
	require.NoError(t, db.ApplyMigrations(ctx, pool, zerolog.Nop()))

	st := pgstore.New(pool, zerolog.Nop())
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func record(mrn, date string, codes []string, q model.Questionnaire) *model.ProcessedRecord {
	return &model.ProcessedRecord{
		FullName: "Doe, Jane", FirstName: "Jane", LastName: "Doe",
		MRN: mrn, CharStatus: "Open", PayerSourceName: "Medicare", BranchCode: "BR1",
		VisitType: "SOC", Status: "Completed", VisitDate: date, ZipCode: "00000",
		ICDCodes: codes, Questionnaire: q,
	}
}

func TestMigrations_Idempotent(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	require.NoError(t, db.ApplyMigrations(ctx, st.Pool(), zerolog.Nop()))

	applied, err := db.AppliedMigrations(ctx, st.Pool())
	require.NoError(t, err)
	assert.Equal(t, []string{"001_intake.sql"}, applied)

	for _, tbl := range []string{"intake.patients", "intake.visits", "intake.processed_records"} {
		var exists bool
		err := st.Pool().QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema || '.' || table_name = $1)", tbl).
			Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "table %s should exist after migrations", tbl)
	}
}

func TestUnionText_PreservesFirstSeenOrder(t *testing.T) {
	st := setupStore(t)
	var got []string
	err := st.Pool().QueryRow(context.Background(),
		"SELECT intake.union_text($1, $2)", []string{"b", "a"}, []string{"a", "c", "b", "d"}).Scan(&got)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c", "d"}, got)
}

func TestUpsertPatient_CreateThenOverwrite(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	p1, created, err := st.UpsertPatient(ctx, &model.Patient{MRN: "M1", FirstName: "Jane", LastName: "Doe"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, uuid.Nil, p1.ID)

	p2, created, err := st.UpsertPatient(ctx, &model.Patient{MRN: "M1", FirstName: "Janet", LastName: "Doe"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, p1.ID, p2.ID)
	assert.Equal(t, "Janet", p2.FirstName)
}

func TestEngine_MergesVisitInDatabase(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	eng := merge.NewEngine(st, zerolog.Nop())

	_, err := eng.Merge(ctx, record("M1", "2024-01-15", []string{"I10"}, model.Questionnaire{"Q": {"x"}}))
	require.NoError(t, err)

	second := record("M1", "2024-01-15", []string{"I10", "E11.9"}, model.Questionnaire{"Q": {"x", "y"}, "R": {float64(3)}})
	second.Status = "Reviewed"
	out, err := eng.Merge(ctx, second)
	require.NoError(t, err)
	assert.False(t, out.PatientCreated)
	assert.False(t, out.VisitCreated)

	v, err := st.FindVisit(ctx, model.VisitKey{MRN: "M1", VisitType: "SOC", VisitDate: "2024-01-15"})
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "Reviewed", v.Status)
	assert.Equal(t, []string{"I10", "E11.9"}, v.ICDCodes)
	assert.Equal(t, []any{"x", "y"}, v.Questionnaire["Q"])
	assert.Equal(t, []any{float64(3)}, v.Questionnaire["R"])
}

func TestMergedView_JoinsPatientsAndVisits(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	eng := merge.NewEngine(st, zerolog.Nop())

	_, err := eng.Merge(ctx, record("M1", "2024-01-15", nil, model.Questionnaire{}))
	require.NoError(t, err)
	_, err = eng.Merge(ctx, record("M1", "2024-02-01", nil, model.Questionnaire{}))
	require.NoError(t, err)

	rows, err := st.MergedView(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-01-15", rows[0].VisitDate)
	assert.Equal(t, "Jane", rows[0].FirstName)
	assert.Equal(t, rows[0].PatientID, rows[1].PatientID)
}

func TestArchiveRecords_CopiesBatch(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	batch := uuid.New()

	recs := []model.ProcessedRecord{
		*record("M1", "2024-01-15", []string{"I10"}, model.Questionnaire{"Q": {"x"}}),
		*record("M2", "2024-01-16", nil, nil),
	}
	n, err := st.ArchiveRecords(ctx, batch, recs)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var count int
	err = st.Pool().QueryRow(ctx,
		"SELECT count(*) FROM intake.processed_records WHERE batch_id = $1", batch).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
