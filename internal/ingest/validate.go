package ingest

import "github.com/gyeh/visitload/internal/model"

// ValidateRecord enforces the required-field constraints of a processed
// record. HCHBCalculation and TotalPmt are optional; ICDCodes may be empty.
func ValidateRecord(rec *model.ProcessedRecord) error {
	required := []struct {
		name  string
		value string
	}{
		{"fullName", rec.FullName},
		{"firstName", rec.FirstName},
		{"lastName", rec.LastName},
		{"mrn", rec.MRN},
		{"charStatus", rec.CharStatus},
		{"payerSourceName", rec.PayerSourceName},
		{"branchCode", rec.BranchCode},
		{"visitType", rec.VisitType},
		{"status", rec.Status},
		{"visitDate", rec.VisitDate},
		{"zipCode", rec.ZipCode},
	}

	var fields []FieldError
	for _, r := range required {
		if r.value == "" {
			fields = append(fields, FieldError{Field: r.name, Message: "should not be empty"})
		}
	}
	if rec.ICDCodes == nil {
		fields = append(fields, FieldError{Field: "icdCodes", Message: "must be an array"})
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
