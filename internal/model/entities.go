package model

import (
	"time"

	"github.com/google/uuid"
)

// Patient is keyed by MRN; names are last-write-wins.
type Patient struct {
	ID        uuid.UUID `json:"id"`
	MRN       string    `json:"mrn"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Visit is keyed by (MRN, VisitType, VisitDate). PatientID references the
// owning Patient.
type Visit struct {
	ID              uuid.UUID     `json:"id"`
	PatientID       uuid.UUID     `json:"patientId"`
	MRN             string        `json:"mrn"`
	VisitType       string        `json:"visitType"`
	VisitDate       string        `json:"visitDate"`
	CharStatus      string        `json:"charStatus"`
	PayerSourceName string        `json:"payerSourceName"`
	BranchCode      string        `json:"branchCode"`
	Status          string        `json:"status"`
	ZipCode         string        `json:"zipCode"`
	HCHBCalculation *string       `json:"hchbCalculation,omitempty"`
	TotalPmt        *string       `json:"totalPmt,omitempty"`
	ICDCodes        []string      `json:"icdCodes"`
	Questionnaire   Questionnaire `json:"questionnaire"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// Key returns the visit's natural identity.
func (v *Visit) Key() VisitKey {
	return VisitKey{MRN: v.MRN, VisitType: v.VisitType, VisitDate: v.VisitDate}
}

// NewPatient builds a patient entity from a processed record.
func NewPatient(rec *ProcessedRecord) *Patient {
	return &Patient{MRN: rec.MRN, FirstName: rec.FirstName, LastName: rec.LastName}
}

// NewVisit builds a visit entity from a processed record for the given patient.
func NewVisit(rec *ProcessedRecord, patientID uuid.UUID) *Visit {
	codes := rec.ICDCodes
	if codes == nil {
		codes = []string{}
	}
	q := rec.Questionnaire
	if q == nil {
		q = Questionnaire{}
	}
	return &Visit{
		PatientID:       patientID,
		MRN:             rec.MRN,
		VisitType:       rec.VisitType,
		VisitDate:       rec.VisitDate,
		CharStatus:      rec.CharStatus,
		PayerSourceName: rec.PayerSourceName,
		BranchCode:      rec.BranchCode,
		Status:          rec.Status,
		ZipCode:         rec.ZipCode,
		HCHBCalculation: rec.HCHBCalculation,
		TotalPmt:        rec.TotalPmt,
		ICDCodes:        codes,
		Questionnaire:   q,
	}
}

// MergedRecord is one row of the patient x visit reporting view.
type MergedRecord struct {
	PatientID       uuid.UUID     `json:"patientId"`
	MRN             string        `json:"mrn"`
	FirstName       string        `json:"firstName"`
	LastName        string        `json:"lastName"`
	VisitType       string        `json:"visitType"`
	VisitDate       string        `json:"visitDate"`
	Status          string        `json:"status"`
	PayerSourceName string        `json:"payerSourceName"`
	BranchCode      string        `json:"branchCode"`
	Questionnaire   Questionnaire `json:"questionnaire"`
}
