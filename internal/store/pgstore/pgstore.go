// Package pgstore is the Postgres implementation of store.Store. Upserts
// are single INSERT ... ON CONFLICT statements, so concurrent uploads that
// touch the same patient or visit cannot lose updates.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/gyeh/visitload/internal/db"
	"github.com/gyeh/visitload/internal/model"
	embedsql "github.com/gyeh/visitload/internal/sql"
	"github.com/gyeh/visitload/internal/store"
)

// Store persists patients, visits and archived records in the intake schema.
type Store struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

var (
	_ store.Store    = (*Store)(nil)
	_ store.Upserter = (*Store)(nil)
	_ store.Archiver = (*Store)(nil)
)

// Open connects to dsn. When migrate is true the embedded migrations are
// applied before returning.
func Open(ctx context.Context, dsn string, migrate bool, log zerolog.Logger) (*Store, error) {
	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := db.ApplyMigrations(ctx, pool, log); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return New(pool, log), nil
}

// New wraps an existing pool. The caller keeps ownership of migrations.
func New(pool *pgxpool.Pool, log zerolog.Logger) *Store {
	return &Store{pool: pool, log: log}
}

// Pool exposes the underlying pool for migrations and tests.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) FindPatient(ctx context.Context, mrn string) (*model.Patient, error) {
	var p model.Patient
	err := s.pool.QueryRow(ctx, embedsql.SelectPatient, mrn).
		Scan(&p.ID, &p.MRN, &p.FirstName, &p.LastName, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select patient: %w", err)
	}
	return &p, nil
}

func (s *Store) CreatePatient(ctx context.Context, p *model.Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx, embedsql.InsertPatient, p.ID, p.MRN, p.FirstName, p.LastName).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (s *Store) UpdatePatient(ctx context.Context, mrn string, ch store.PatientChanges) error {
	if _, err := s.pool.Exec(ctx, embedsql.UpdatePatient, mrn, ch.FirstName, ch.LastName); err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	return nil
}

func (s *Store) FindVisit(ctx context.Context, key model.VisitKey) (*model.Visit, error) {
	row := s.pool.QueryRow(ctx, embedsql.SelectVisit, key.MRN, key.VisitType, key.VisitDate)
	v, err := scanVisit(row, nil)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select visit: %w", err)
	}
	return v, nil
}

func (s *Store) CreateVisit(ctx context.Context, v *model.Visit) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx, embedsql.InsertVisit, visitArgs(v)...).
		Scan(&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	return nil
}

func (s *Store) UpdateVisit(ctx context.Context, key model.VisitKey, ch store.VisitChanges) error {
	codes, q := nonNilCodes(ch.ICDCodes), nonNilQuestionnaire(ch.Questionnaire)
	_, err := s.pool.Exec(ctx, embedsql.UpdateVisit,
		key.MRN, key.VisitType, key.VisitDate,
		ch.BranchCode, ch.Status, ch.PayerSourceName, codes, q)
	if err != nil {
		return fmt.Errorf("update visit: %w", err)
	}
	return nil
}

// UpsertPatient inserts the patient or overwrites its names in one statement.
func (s *Store) UpsertPatient(ctx context.Context, p *model.Patient) (*model.Patient, bool, error) {
	id := p.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	var out model.Patient
	var inserted bool
	err := s.pool.QueryRow(ctx, embedsql.UpsertPatient, id, p.MRN, p.FirstName, p.LastName).
		Scan(&out.ID, &out.MRN, &out.FirstName, &out.LastName, &out.CreatedAt, &out.UpdatedAt, &inserted)
	if err != nil {
		return nil, false, fmt.Errorf("upsert patient: %w", err)
	}
	return &out, inserted, nil
}

// UpsertVisit inserts the visit or merges it into the stored one. The list
// unions run inside Postgres (intake.union_text, intake.merge_answer_lists).
func (s *Store) UpsertVisit(ctx context.Context, v *model.Visit) (*model.Visit, bool, error) {
	in := *v
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	var inserted bool
	out, err := scanVisit(s.pool.QueryRow(ctx, embedsql.UpsertVisit, visitArgs(&in)...), &inserted)
	if err != nil {
		return nil, false, fmt.Errorf("upsert visit: %w", err)
	}
	return out, inserted, nil
}

func (s *Store) MergedView(ctx context.Context) ([]model.MergedRecord, error) {
	rows, err := s.pool.Query(ctx, embedsql.MergedView)
	if err != nil {
		return nil, fmt.Errorf("query merged view: %w", err)
	}
	defer rows.Close()

	out := []model.MergedRecord{}
	for rows.Next() {
		var m model.MergedRecord
		if err := rows.Scan(&m.PatientID, &m.MRN, &m.FirstName, &m.LastName,
			&m.VisitType, &m.VisitDate, &m.Status, &m.PayerSourceName, &m.BranchCode,
			&m.Questionnaire); err != nil {
			return nil, fmt.Errorf("scan merged row: %w", err)
		}
		if m.Questionnaire == nil {
			m.Questionnaire = model.Questionnaire{}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate merged view: %w", err)
	}
	return out, nil
}

// ArchiveRecords streams recs into intake.processed_records via COPY.
func (s *Store) ArchiveRecords(ctx context.Context, batchID uuid.UUID, recs []model.ProcessedRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	start := time.Now()
	rows := model.ArchiveBatch(batchID, recs, start.UTC())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan *model.ArchivedRecord, 64)
	go func() {
		defer close(ch)
		for i := range rows {
			select {
			case ch <- &rows[i]:
			case <-ctx.Done():
				return
			}
		}
	}()

	n, err := s.pool.CopyFrom(ctx, pgx.Identifier(embedsql.ArchiveTable), embedsql.ArchiveColumns, db.NewChannelSource(ch))
	if err != nil {
		return 0, fmt.Errorf("copy processed records: %w", err)
	}
	s.log.Debug().
		Str("batch_id", batchID.String()).
		Int64("rows", n).
		Dur("duration", time.Since(start)).
		Msg("processed records archived")
	return n, nil
}

func visitArgs(v *model.Visit) []any {
	return []any{
		v.ID, v.PatientID, v.MRN, v.VisitType, v.VisitDate, v.CharStatus,
		v.PayerSourceName, v.BranchCode, v.Status, v.ZipCode,
		v.HCHBCalculation, v.TotalPmt,
		nonNilCodes(v.ICDCodes), nonNilQuestionnaire(v.Questionnaire),
	}
}

// scanVisit reads the visit column list shared by the select and upsert
// queries. When inserted is non-nil one more boolean column is expected.
func scanVisit(row pgx.Row, inserted *bool) (*model.Visit, error) {
	var v model.Visit
	dest := []any{
		&v.ID, &v.PatientID, &v.MRN, &v.VisitType, &v.VisitDate, &v.CharStatus,
		&v.PayerSourceName, &v.BranchCode, &v.Status, &v.ZipCode,
		&v.HCHBCalculation, &v.TotalPmt, &v.ICDCodes, &v.Questionnaire,
		&v.CreatedAt, &v.UpdatedAt,
	}
	if inserted != nil {
		dest = append(dest, inserted)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	v.ICDCodes = nonNilCodes(v.ICDCodes)
	v.Questionnaire = nonNilQuestionnaire(v.Questionnaire)
	return &v, nil
}

func nonNilCodes(c []string) []string {
	if c == nil {
		return []string{}
	}
	return c
}

func nonNilQuestionnaire(q model.Questionnaire) model.Questionnaire {
	if q == nil {
		return model.Questionnaire{}
	}
	return q
}
