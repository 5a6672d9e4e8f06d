package mongostore

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gyeh/visitload/internal/model"
)

type patientDoc struct {
	ID        string    `bson:"_id"`
	MRN       string    `bson:"mrn"`
	FirstName string    `bson:"firstName"`
	LastName  string    `bson:"lastName"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func fromPatient(p *model.Patient) patientDoc {
	return patientDoc{
		ID: p.ID.String(), MRN: p.MRN, FirstName: p.FirstName, LastName: p.LastName,
		CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}

func (d *patientDoc) toModel() (*model.Patient, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("patient id %q: %w", d.ID, err)
	}
	return &model.Patient{
		ID: id, MRN: d.MRN, FirstName: d.FirstName, LastName: d.LastName,
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}, nil
}

type visitDoc struct {
	ID              string           `bson:"_id"`
	PatientID       string           `bson:"patientId"`
	MRN             string           `bson:"mrn"`
	VisitType       string           `bson:"visitType"`
	VisitDate       string           `bson:"visitDate"`
	CharStatus      string           `bson:"charStatus"`
	PayerSourceName string           `bson:"payerSourceName"`
	BranchCode      string           `bson:"branchCode"`
	Status          string           `bson:"status"`
	ZipCode         string           `bson:"zipCode"`
	HCHBCalculation *string          `bson:"hchbCalculation"`
	TotalPmt        *string          `bson:"totalPmt"`
	ICDCodes        []string         `bson:"icdCodes"`
	Questionnaire   map[string][]any `bson:"questionnaire"`
	CreatedAt       time.Time        `bson:"createdAt"`
	UpdatedAt       time.Time        `bson:"updatedAt"`
}

func fromVisit(v *model.Visit) visitDoc {
	codes := v.ICDCodes
	if codes == nil {
		codes = []string{}
	}
	return visitDoc{
		ID: v.ID.String(), PatientID: v.PatientID.String(),
		MRN: v.MRN, VisitType: v.VisitType, VisitDate: v.VisitDate,
		CharStatus: v.CharStatus, PayerSourceName: v.PayerSourceName,
		BranchCode: v.BranchCode, Status: v.Status, ZipCode: v.ZipCode,
		HCHBCalculation: v.HCHBCalculation, TotalPmt: v.TotalPmt,
		ICDCodes: codes, Questionnaire: encodeQuestionnaire(v.Questionnaire),
		CreatedAt: v.CreatedAt, UpdatedAt: v.UpdatedAt,
	}
}

func (d *visitDoc) toModel() (*model.Visit, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("visit id %q: %w", d.ID, err)
	}
	pid, err := uuid.Parse(d.PatientID)
	if err != nil {
		return nil, fmt.Errorf("patient id %q: %w", d.PatientID, err)
	}
	codes := d.ICDCodes
	if codes == nil {
		codes = []string{}
	}
	return &model.Visit{
		ID: id, PatientID: pid,
		MRN: d.MRN, VisitType: d.VisitType, VisitDate: d.VisitDate,
		CharStatus: d.CharStatus, PayerSourceName: d.PayerSourceName,
		BranchCode: d.BranchCode, Status: d.Status, ZipCode: d.ZipCode,
		HCHBCalculation: d.HCHBCalculation, TotalPmt: d.TotalPmt,
		ICDCodes: codes, Questionnaire: decodeQuestionnaire(d.Questionnaire),
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}, nil
}

type mergedDoc struct {
	VisitType       string           `bson:"visitType"`
	VisitDate       string           `bson:"visitDate"`
	Status          string           `bson:"status"`
	PayerSourceName string           `bson:"payerSourceName"`
	BranchCode      string           `bson:"branchCode"`
	Questionnaire   map[string][]any `bson:"questionnaire"`
	Patient         patientDoc       `bson:"patient"`
}

type archivedDoc struct {
	BatchID    string                `bson:"batchId"`
	Seq        int                   `bson:"seq"`
	Record     model.ProcessedRecord `bson:"record"`
	ArchivedAt time.Time             `bson:"archivedAt"`
}

func fromArchived(a *model.ArchivedRecord) archivedDoc {
	rec := a.Record
	rec.Questionnaire = encodeQuestionnaire(rec.Questionnaire)
	return archivedDoc{BatchID: a.BatchID.String(), Seq: a.Seq, Record: rec, ArchivedAt: a.ArchivedAt}
}

// Question keys become field names, and update paths treat "." and a
// leading "$" specially, so both are escaped along with the escape char.
var (
	keyEscaper   = strings.NewReplacer("%", "%25", ".", "%2E", "$", "%24")
	keyUnescaper = strings.NewReplacer("%25", "%", "%2E", ".", "%24", "$")
)

func escapeKey(k string) string   { return keyEscaper.Replace(k) }
func unescapeKey(k string) string { return keyUnescaper.Replace(k) }

func encodeQuestionnaire(q model.Questionnaire) map[string][]any {
	out := make(map[string][]any, len(q))
	for k, v := range q {
		out[escapeKey(k)] = v
	}
	return out
}

func decodeQuestionnaire(m map[string][]any) model.Questionnaire {
	out := make(model.Questionnaire, len(m))
	for k, v := range m {
		out[unescapeKey(k)] = normalizeAnswers(v)
	}
	return out
}

// normalizeAnswers maps BSON integers back to float64 so answers compare
// equal to what the readers produce.
func normalizeAnswers(vals []any) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		switch n := v.(type) {
		case int32:
			out[i] = float64(n)
		case int64:
			out[i] = float64(n)
		default:
			out[i] = v
		}
	}
	return out
}
