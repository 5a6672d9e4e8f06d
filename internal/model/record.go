package model

// Questionnaire maps a cleaned question key to the ordered answers found for
// it in one row. Answers are strings or float64 numbers.
type Questionnaire map[string][]any

// ProcessedRecord is the canonical, validated representation of one
// spreadsheet row. MRN, VisitType and VisitDate form the visit's natural key.
type ProcessedRecord struct {
	FullName        string        `json:"fullName"`
	FirstName       string        `json:"firstName"`
	LastName        string        `json:"lastName"`
	MRN             string        `json:"mrn"`
	CharStatus      string        `json:"charStatus"`
	PayerSourceName string        `json:"payerSourceName"`
	BranchCode      string        `json:"branchCode"`
	VisitType       string        `json:"visitType"`
	Status          string        `json:"status"`
	VisitDate       string        `json:"visitDate"`
	ZipCode         string        `json:"zipCode"`
	HCHBCalculation *string       `json:"hchbCalculation,omitempty"`
	TotalPmt        *string       `json:"totalPmt,omitempty"`
	ICDCodes        []string      `json:"icdCodes"`
	Questionnaire   Questionnaire `json:"questionnaire"`
}

// VisitKey returns the natural identity of the visit this record describes.
func (r *ProcessedRecord) VisitKey() VisitKey {
	return VisitKey{MRN: r.MRN, VisitType: r.VisitType, VisitDate: r.VisitDate}
}

// VisitKey is the (mrn, visitType, visitDate) triple identifying one visit.
type VisitKey struct {
	MRN       string `json:"mrn"`
	VisitType string `json:"visitType"`
	VisitDate string `json:"visitDate"`
}

func (k VisitKey) String() string {
	return k.MRN + "/" + k.VisitType + "/" + k.VisitDate
}
