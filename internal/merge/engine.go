// Package merge reconciles processed records with stored patient and visit
// state.
package merge

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gyeh/visitload/internal/model"
	"github.com/gyeh/visitload/internal/store"
)

// PersistenceError wraps a store failure with the operation that failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Outcome describes what one Merge call did.
type Outcome struct {
	Patient        *model.Patient
	Visit          *model.Visit
	PatientCreated bool
	VisitCreated   bool
}

// Engine upserts the patient and then the visit of each processed record.
// It keeps no state between calls besides per-MRN locks.
type Engine struct {
	st    store.Store
	log   zerolog.Logger
	locks *keyLocks
}

// NewEngine returns an Engine writing to st.
func NewEngine(st store.Store, log zerolog.Logger) *Engine {
	return &Engine{st: st, log: log, locks: newKeyLocks()}
}

// Merge applies rec. A failed visit upsert does not roll back the patient
// upsert that preceded it.
func (e *Engine) Merge(ctx context.Context, rec *model.ProcessedRecord) (*Outcome, error) {
	if up, ok := e.st.(store.Upserter); ok {
		return e.mergeAtomic(ctx, up, rec)
	}

	unlock := e.locks.Lock(rec.MRN)
	defer unlock()
	return e.mergeStepwise(ctx, rec)
}

func (e *Engine) mergeAtomic(ctx context.Context, up store.Upserter, rec *model.ProcessedRecord) (*Outcome, error) {
	patient, pCreated, err := up.UpsertPatient(ctx, model.NewPatient(rec))
	if err != nil {
		return nil, &PersistenceError{Op: "upsert patient " + rec.MRN, Err: err}
	}
	e.logPatient(patient, pCreated)

	visit, vCreated, err := up.UpsertVisit(ctx, model.NewVisit(rec, patient.ID))
	if err != nil {
		return nil, &PersistenceError{Op: "upsert visit " + rec.VisitKey().String(), Err: err}
	}
	e.logVisit(visit, vCreated)

	return &Outcome{Patient: patient, Visit: visit, PatientCreated: pCreated, VisitCreated: vCreated}, nil
}

func (e *Engine) mergeStepwise(ctx context.Context, rec *model.ProcessedRecord) (*Outcome, error) {
	patient, pCreated, err := e.upsertPatient(ctx, rec)
	if err != nil {
		return nil, &PersistenceError{Op: "upsert patient " + rec.MRN, Err: err}
	}
	e.logPatient(patient, pCreated)

	visit, vCreated, err := e.upsertVisit(ctx, rec, patient.ID)
	if err != nil {
		return nil, &PersistenceError{Op: "upsert visit " + rec.VisitKey().String(), Err: err}
	}
	e.logVisit(visit, vCreated)

	return &Outcome{Patient: patient, Visit: visit, PatientCreated: pCreated, VisitCreated: vCreated}, nil
}

func (e *Engine) upsertPatient(ctx context.Context, rec *model.ProcessedRecord) (*model.Patient, bool, error) {
	existing, err := e.st.FindPatient(ctx, rec.MRN)
	if err != nil {
		return nil, false, fmt.Errorf("find: %w", err)
	}
	if existing == nil {
		p := model.NewPatient(rec)
		p.ID = uuid.New()
		if err := e.st.CreatePatient(ctx, p); err != nil {
			return nil, false, fmt.Errorf("create: %w", err)
		}
		return p, true, nil
	}

	ch := store.PatientChanges{FirstName: rec.FirstName, LastName: rec.LastName}
	if err := e.st.UpdatePatient(ctx, rec.MRN, ch); err != nil {
		return nil, false, fmt.Errorf("update: %w", err)
	}
	existing.FirstName, existing.LastName = ch.FirstName, ch.LastName
	return existing, false, nil
}

func (e *Engine) upsertVisit(ctx context.Context, rec *model.ProcessedRecord, patientID uuid.UUID) (*model.Visit, bool, error) {
	key := rec.VisitKey()
	existing, err := e.st.FindVisit(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("find: %w", err)
	}
	if existing == nil {
		v := model.NewVisit(rec, patientID)
		v.ID = uuid.New()
		v.ICDCodes = UnionStrings(nil, v.ICDCodes)
		v.Questionnaire = UnionQuestionnaires(nil, v.Questionnaire)
		if err := e.st.CreateVisit(ctx, v); err != nil {
			return nil, false, fmt.Errorf("create: %w", err)
		}
		return v, true, nil
	}

	ch := store.VisitChanges{
		BranchCode:      rec.BranchCode,
		Status:          rec.Status,
		PayerSourceName: rec.PayerSourceName,
		ICDCodes:        UnionStrings(existing.ICDCodes, rec.ICDCodes),
		Questionnaire:   UnionQuestionnaires(existing.Questionnaire, rec.Questionnaire),
	}
	if err := e.st.UpdateVisit(ctx, key, ch); err != nil {
		return nil, false, fmt.Errorf("update: %w", err)
	}
	existing.BranchCode = ch.BranchCode
	existing.Status = ch.Status
	existing.PayerSourceName = ch.PayerSourceName
	existing.ICDCodes = ch.ICDCodes
	existing.Questionnaire = ch.Questionnaire
	return existing, false, nil
}

func (e *Engine) logPatient(p *model.Patient, created bool) {
	e.log.Debug().
		Str("mrn", p.MRN).
		Str("patient_id", p.ID.String()).
		Bool("created", created).
		Msg("patient upserted")
}

func (e *Engine) logVisit(v *model.Visit, created bool) {
	e.log.Debug().
		Str("mrn", v.MRN).
		Str("visit_type", v.VisitType).
		Str("visit_date", v.VisitDate).
		Str("visit_id", v.ID.String()).
		Bool("created", created).
		Msg("visit upserted")
}
