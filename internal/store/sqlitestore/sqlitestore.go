// Package sqlitestore keeps patients and visits in a local SQLite file. It
// offers only the find/create/update primitives; the merge engine serializes
// writes per MRN around them.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/gyeh/visitload/internal/model"
	"github.com/gyeh/visitload/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS patients (
  id TEXT PRIMARY KEY,
  mrn TEXT NOT NULL UNIQUE,
  first_name TEXT NOT NULL DEFAULT '',
  last_name TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS visits (
  id TEXT PRIMARY KEY,
  patient_id TEXT NOT NULL,
  mrn TEXT NOT NULL,
  visit_type TEXT NOT NULL,
  visit_date TEXT NOT NULL,
  char_status TEXT NOT NULL DEFAULT '',
  payer_source_name TEXT NOT NULL DEFAULT '',
  branch_code TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT '',
  zip_code TEXT NOT NULL DEFAULT '',
  hchb_calculation TEXT,
  total_pmt TEXT,
  icd_codes TEXT NOT NULL DEFAULT '[]',
  questionnaire TEXT NOT NULL DEFAULT '{}',
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  UNIQUE(mrn, visit_type, visit_date),
  FOREIGN KEY(patient_id) REFERENCES patients(id)
);
CREATE INDEX IF NOT EXISTS idx_visits_patient_id ON visits(patient_id);

CREATE TABLE IF NOT EXISTS processed_records (
  batch_id TEXT NOT NULL,
  row_seq INTEGER NOT NULL,
  mrn TEXT NOT NULL,
  visit_type TEXT NOT NULL,
  visit_date TEXT NOT NULL,
  record_json TEXT NOT NULL,
  archived_at TEXT NOT NULL,
  PRIMARY KEY(batch_id, row_seq)
);
`

const visitColumns = `id, patient_id, mrn, visit_type, visit_date, char_status, payer_source_name,
  branch_code, status, zip_code, hchb_calculation, total_pmt, icd_codes, questionnaire,
  created_at, updated_at`

// Store is a SQLite-backed store.Store.
type Store struct {
	conn *sql.DB
	now  func() time.Time
}

var (
	_ store.Store    = (*Store)(nil)
	_ store.Archiver = (*Store)(nil)
)

// Open opens (creating if needed) the database at path and ensures the
// schema exists. ":memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: SQLite has a single writer, and ":memory:" databases
	// are per connection.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if path != ":memory:" {
		if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{conn: conn, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func (s *Store) stamp() string {
	return s.now().Format(time.RFC3339Nano)
}

func (s *Store) FindPatient(ctx context.Context, mrn string) (*model.Patient, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, mrn, first_name, last_name, created_at, updated_at FROM patients WHERE mrn = ?`, mrn)

	var p model.Patient
	var id, created, updated string
	err := row.Scan(&id, &p.MRN, &p.FirstName, &p.LastName, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select patient: %w", err)
	}
	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("patient id: %w", err)
	}
	p.CreatedAt = parseStamp(created)
	p.UpdatedAt = parseStamp(updated)
	return &p, nil
}

func (s *Store) CreatePatient(ctx context.Context, p *model.Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := s.stamp()
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO patients (id, mrn, first_name, last_name, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.MRN, p.FirstName, p.LastName, now, now)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	p.CreatedAt = parseStamp(now)
	p.UpdatedAt = p.CreatedAt
	return nil
}

func (s *Store) UpdatePatient(ctx context.Context, mrn string, ch store.PatientChanges) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE patients SET first_name = ?, last_name = ?, updated_at = ? WHERE mrn = ?`,
		ch.FirstName, ch.LastName, s.stamp(), mrn)
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	return nil
}

func (s *Store) FindVisit(ctx context.Context, key model.VisitKey) (*model.Visit, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+visitColumns+` FROM visits WHERE mrn = ? AND visit_type = ? AND visit_date = ?`,
		key.MRN, key.VisitType, key.VisitDate)
	v, err := scanVisit(row)
	if errors.Is(err, sql.ErrNoRows) {
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
	codes, q, err := encodeLists(v.ICDCodes, v.Questionnaire)
	if err != nil {
		return err
	}
	now := s.stamp()
	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO visits (`+visitColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID.String(), v.PatientID.String(), v.MRN, v.VisitType, v.VisitDate, v.CharStatus,
		v.PayerSourceName, v.BranchCode, v.Status, v.ZipCode,
		nullString(v.HCHBCalculation), nullString(v.TotalPmt), codes, q, now, now)
	if err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	v.CreatedAt = parseStamp(now)
	v.UpdatedAt = v.CreatedAt
	return nil
}

func (s *Store) UpdateVisit(ctx context.Context, key model.VisitKey, ch store.VisitChanges) error {
	codes, q, err := encodeLists(ch.ICDCodes, ch.Questionnaire)
	if err != nil {
		return err
	}
	_, err = s.conn.ExecContext(ctx,
		`UPDATE visits SET branch_code = ?, status = ?, payer_source_name = ?, icd_codes = ?, questionnaire = ?, updated_at = ?
		 WHERE mrn = ? AND visit_type = ? AND visit_date = ?`,
		ch.BranchCode, ch.Status, ch.PayerSourceName, codes, q, s.stamp(),
		key.MRN, key.VisitType, key.VisitDate)
	if err != nil {
		return fmt.Errorf("update visit: %w", err)
	}
	return nil
}

func (s *Store) MergedView(ctx context.Context) ([]model.MergedRecord, error) {
	rows, err := s.conn.QueryContext(ctx, `
SELECT p.id, p.mrn, p.first_name, p.last_name,
  v.visit_type, v.visit_date, v.status, v.payer_source_name, v.branch_code, v.questionnaire
FROM patients p
JOIN visits v ON v.patient_id = p.id
WHERE v.mrn <> '' AND v.visit_date <> ''
ORDER BY p.mrn, v.visit_date, v.visit_type`)
	if err != nil {
		return nil, fmt.Errorf("query merged view: %w", err)
	}
	defer rows.Close()

	out := []model.MergedRecord{}
	for rows.Next() {
		var m model.MergedRecord
		var id, q string
		if err := rows.Scan(&id, &m.MRN, &m.FirstName, &m.LastName,
			&m.VisitType, &m.VisitDate, &m.Status, &m.PayerSourceName, &m.BranchCode, &q); err != nil {
			return nil, fmt.Errorf("scan merged row: %w", err)
		}
		if m.PatientID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("patient id: %w", err)
		}
		m.Questionnaire = model.Questionnaire{}
		if err := json.Unmarshal([]byte(q), &m.Questionnaire); err != nil {
			return nil, fmt.Errorf("decode questionnaire: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate merged view: %w", err)
	}
	return out, nil
}

// ArchiveRecords stores recs as JSON documents in one transaction.
func (s *Store) ArchiveRecords(ctx context.Context, batchID uuid.UUID, recs []model.ProcessedRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin archive: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO processed_records (batch_id, row_seq, mrn, visit_type, visit_date, record_json, archived_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare archive: %w", err)
	}
	defer stmt.Close()

	now := s.stamp()
	for _, a := range model.ArchiveBatch(batchID, recs, s.now()) {
		doc, err := json.Marshal(a.Record)
		if err != nil {
			return 0, fmt.Errorf("encode record %d: %w", a.Seq, err)
		}
		if _, err := stmt.ExecContext(ctx, batchID.String(), a.Seq,
			a.Record.MRN, a.Record.VisitType, a.Record.VisitDate, string(doc), now); err != nil {
			return 0, fmt.Errorf("insert record %d: %w", a.Seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit archive: %w", err)
	}
	return int64(len(recs)), nil
}

// ArchivedCount returns the number of archived records for batchID.
func (s *Store) ArchivedCount(ctx context.Context, batchID uuid.UUID) (int64, error) {
	var n int64
	err := s.conn.QueryRowContext(ctx,
		`SELECT count(*) FROM processed_records WHERE batch_id = ?`, batchID.String()).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVisit(row scanner) (*model.Visit, error) {
	var v model.Visit
	var id, patientID, codes, q, created, updated string
	var hchb, total sql.NullString
	if err := row.Scan(&id, &patientID, &v.MRN, &v.VisitType, &v.VisitDate, &v.CharStatus,
		&v.PayerSourceName, &v.BranchCode, &v.Status, &v.ZipCode, &hchb, &total,
		&codes, &q, &created, &updated); err != nil {
		return nil, err
	}

	var err error
	if v.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("visit id: %w", err)
	}
	if v.PatientID, err = uuid.Parse(patientID); err != nil {
		return nil, fmt.Errorf("patient id: %w", err)
	}
	v.ICDCodes = []string{}
	if err := json.Unmarshal([]byte(codes), &v.ICDCodes); err != nil {
		return nil, fmt.Errorf("decode icd codes: %w", err)
	}
	v.Questionnaire = model.Questionnaire{}
	if err := json.Unmarshal([]byte(q), &v.Questionnaire); err != nil {
		return nil, fmt.Errorf("decode questionnaire: %w", err)
	}
	if hchb.Valid {
		v.HCHBCalculation = &hchb.String
	}
	if total.Valid {
		v.TotalPmt = &total.String
	}
	v.CreatedAt = parseStamp(created)
	v.UpdatedAt = parseStamp(updated)
	return &v, nil
}

func encodeLists(codes []string, q model.Questionnaire) (string, string, error) {
	if codes == nil {
		codes = []string{}
	}
	if q == nil {
		q = model.Questionnaire{}
	}
	cb, err := json.Marshal(codes)
	if err != nil {
		return "", "", fmt.Errorf("encode icd codes: %w", err)
	}
	qb, err := json.Marshal(q)
	if err != nil {
		return "", "", fmt.Errorf("encode questionnaire: %w", err)
	}
	return string(cb), string(qb), nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func parseStamp(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
