// Package store defines the persistence contract the merge engine needs.
//
// Every store provides exact-match find, create and update primitives per
// entity. Stores whose engine can apply an upsert-with-merge atomically also
// implement Upserter, and the merge engine prefers it.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/gyeh/visitload/internal/model"
)

// PatientChanges are the fields overwritten when a known MRN is seen again.
type PatientChanges struct {
	FirstName string
	LastName  string
}

// VisitChanges replace a stored visit's mutable fields. ICDCodes and
// Questionnaire carry the full merged values, not a delta.
type VisitChanges struct {
	BranchCode      string
	Status          string
	PayerSourceName string
	ICDCodes        []string
	Questionnaire   model.Questionnaire
}

// PatientStore holds patients keyed by MRN.
type PatientStore interface {
	// FindPatient returns nil, nil when no patient has the MRN.
	FindPatient(ctx context.Context, mrn string) (*model.Patient, error)
	CreatePatient(ctx context.Context, p *model.Patient) error
	UpdatePatient(ctx context.Context, mrn string, ch PatientChanges) error
}

// VisitStore holds visits keyed by (MRN, visit type, visit date).
type VisitStore interface {
	// FindVisit returns nil, nil when no visit has the key.
	FindVisit(ctx context.Context, key model.VisitKey) (*model.Visit, error)
	CreateVisit(ctx context.Context, v *model.Visit) error
	UpdateVisit(ctx context.Context, key model.VisitKey, ch VisitChanges) error
}

// Store is the full contract shared by every backend.
type Store interface {
	PatientStore
	VisitStore
	// MergedView joins every patient with its visits, skipping visits that
	// lack an MRN or visit date.
	MergedView(ctx context.Context) ([]model.MergedRecord, error)
	Ping(ctx context.Context) error
	Close() error
}

// Upserter is implemented by stores that can apply each upsert as a single
// atomic operation against its key.
type Upserter interface {
	// UpsertPatient creates the patient or overwrites its names.
	UpsertPatient(ctx context.Context, p *model.Patient) (saved *model.Patient, created bool, err error)
	// UpsertVisit creates the visit or overwrites BranchCode, Status and
	// PayerSourceName and set-unions ICDCodes and each questionnaire list.
	UpsertVisit(ctx context.Context, v *model.Visit) (saved *model.Visit, created bool, err error)
}

// Archiver keeps a copy of every processed record merged in a batch.
type Archiver interface {
	ArchiveRecords(ctx context.Context, batchID uuid.UUID, recs []model.ProcessedRecord) (int64, error)
}
