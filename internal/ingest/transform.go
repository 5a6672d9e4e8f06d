package ingest

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/gyeh/visitload/internal/config"
	"github.com/gyeh/visitload/internal/extract"
	"github.com/gyeh/visitload/internal/model"
	"github.com/gyeh/visitload/internal/normalize"
)

// Source column names the transformer reads scalar fields from.
const (
	ColPatient         = "patient"
	ColMRN             = "MRN"
	ColChartStatus     = "chart_status"
	ColPayorSourceName = "PayorSourceName"
	ColBranchCode      = "BranchCode"
	ColForm            = "form"
	ColFormStatus      = "form_status"
	ColAdmitDate       = "admitDate"
	ColZipCode         = "blink"
	ColVisitCount      = "VisitCntAll"
	ColTiming          = "Timing"
)

// Transformer turns one raw row into a processed record according to a
// column profile.
type Transformer struct {
	profile  config.Profile
	excluded map[string]bool
	now      func() time.Time
	log      zerolog.Logger
}

// NewTransformer returns a Transformer for the given profile using the
// process clock for the missing-admit-date fallback.
func NewTransformer(p config.Profile) *Transformer {
	return &Transformer{
		profile:  p,
		excluded: extract.ExclusionSet(p.ExcludedColumns),
		now:      time.Now,
		log:      zerolog.Nop(),
	}
}

// WithLogger sets the logger used for per-row warnings.
func (t *Transformer) WithLogger(log zerolog.Logger) *Transformer {
	t.log = log
	return t
}

// WithClock replaces the clock used for the missing-admit-date fallback.
func (t *Transformer) WithClock(now func() time.Time) *Transformer {
	t.now = now
	return t
}

// TransformRow builds the processed record for one non-empty row. An
// unparseable admit date fails with *normalize.DateFormatError; an empty one
// falls back to today's UTC date.
func (t *Transformer) TransformRow(row []model.Cell, headers []string) (*model.ProcessedRecord, error) {
	fm := extract.MapRow(row, headers)

	fullName := normalize.SanitizeString(fm.GetOr(ColPatient, ""))
	firstName, lastName := normalize.SplitFullName(fullName)

	visitDate, err := normalize.FormatDate(normalize.SanitizeString(fm.GetOr(ColAdmitDate, "")))
	if err != nil {
		return nil, err
	}
	if visitDate == "" {
		visitDate = t.now().UTC().Format(normalize.CanonicalDateLayout)
		t.log.Warn().
			Str("mrn", fm.GetOr(ColMRN, "")).
			Str("visit_date", visitDate).
			Msg("admit date missing, using current date")
	}

	return &model.ProcessedRecord{
		FullName:        fullName,
		FirstName:       firstName,
		LastName:        lastName,
		MRN:             fm.GetOr(ColMRN, ""),
		CharStatus:      fm.GetOr(ColChartStatus, ""),
		PayerSourceName: fm.GetOr(ColPayorSourceName, ""),
		BranchCode:      fm.GetOr(ColBranchCode, ""),
		VisitType:       fm.GetOr(ColForm, ""),
		Status:          fm.GetOr(ColFormStatus, ""),
		VisitDate:       visitDate,
		ZipCode:         fm.GetOr(ColZipCode, t.profile.DefaultZipCode),
		HCHBCalculation: optional(fm, ColVisitCount),
		TotalPmt:        optional(fm, ColTiming),
		ICDCodes:        extract.IndexedValues(fm, t.profile.ICD.Start, t.profile.ICD.End, t.profile.ICD.Prefix),
		Questionnaire:   extract.Questionnaire(headers, row, t.excluded),
	}, nil
}

func optional(fm extract.FieldMap, key string) *string {
	v, ok := fm.Get(key)
	if !ok {
		return nil
	}
	return &v
}
