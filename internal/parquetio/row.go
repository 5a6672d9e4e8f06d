// Package parquetio writes the merged patient/visit view to Parquet and
// reads it back.
package parquetio

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/gyeh/visitload/internal/model"
)

// MergedRow is the Parquet shape of model.MergedRecord. The questionnaire
// has no fixed schema, so it is stored as a JSON string.
type MergedRow struct {
	PatientID       string `parquet:"patient_id"`
	MRN             string `parquet:"mrn"`
	FirstName       string `parquet:"first_name"`
	LastName        string `parquet:"last_name"`
	VisitType       string `parquet:"visit_type"`
	VisitDate       string `parquet:"visit_date"`
	Status          string `parquet:"status"`
	PayerSourceName string `parquet:"payer_source_name"`
	BranchCode      string `parquet:"branch_code"`
	Questionnaire   string `parquet:"questionnaire_json"`
}

// RequiredColumns must be present in any merged-view Parquet file.
var RequiredColumns = []string{"patient_id", "mrn", "visit_type", "visit_date", "questionnaire_json"}

// FromMerged converts a merged record to its Parquet row.
func FromMerged(m *model.MergedRecord) (MergedRow, error) {
	q := m.Questionnaire
	if q == nil {
		q = model.Questionnaire{}
	}
	b, err := json.Marshal(q)
	if err != nil {
		return MergedRow{}, fmt.Errorf("encode questionnaire for %s: %w", m.MRN, err)
	}
	return MergedRow{
		PatientID:       m.PatientID.String(),
		MRN:             m.MRN,
		FirstName:       m.FirstName,
		LastName:        m.LastName,
		VisitType:       m.VisitType,
		VisitDate:       m.VisitDate,
		Status:          m.Status,
		PayerSourceName: m.PayerSourceName,
		BranchCode:      m.BranchCode,
		Questionnaire:   string(b),
	}, nil
}

// ToMerged converts a Parquet row back to a merged record.
func (r *MergedRow) ToMerged() (model.MergedRecord, error) {
	id, err := uuid.Parse(r.PatientID)
	if err != nil {
		return model.MergedRecord{}, fmt.Errorf("patient id %q: %w", r.PatientID, err)
	}
	q := model.Questionnaire{}
	if r.Questionnaire != "" {
		if err := json.Unmarshal([]byte(r.Questionnaire), &q); err != nil {
			return model.MergedRecord{}, fmt.Errorf("decode questionnaire for %s: %w", r.MRN, err)
		}
	}
	return model.MergedRecord{
		PatientID:       id,
		MRN:             r.MRN,
		FirstName:       r.FirstName,
		LastName:        r.LastName,
		VisitType:       r.VisitType,
		VisitDate:       r.VisitDate,
		Status:          r.Status,
		PayerSourceName: r.PayerSourceName,
		BranchCode:      r.BranchCode,
		Questionnaire:   q,
	}, nil
}
