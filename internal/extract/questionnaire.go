package extract

import (
	"regexp"
	"strings"

	"github.com/gyeh/visitload/internal/model"
)

var indexSuffix = regexp.MustCompile(`\(\d+\)`)

// DefaultExcludedColumns are identity and administrative columns that never
// become questionnaire answers.
var DefaultExcludedColumns = []string{
	"EpiID", "patient", "MRN", "chart_status", "PayorSourceName", "BranchCode",
	"form", "form_status", "form_date", "user", "date_modified", "blink",
	"admitDate",
}

// CleanHeader removes every "(i)" index group from a column name.
func CleanHeader(h string) string {
	return indexSuffix.ReplaceAllString(h, "")
}

// Questionnaire folds every non-excluded column with a present raw value into
// a map from cleaned header to the ordered values found for it. Values are
// the row's raw cells (strings untrimmed, numbers as float64), so answers
// spread over H(1), H(2), ... accumulate under H in column order. Columns
// whose cleaned header is blank, such as "" or "(1)", are skipped.
func Questionnaire(headers []string, row []model.Cell, excluded map[string]bool) model.Questionnaire {
	q := model.Questionnaire{}
	for i, h := range headers {
		key := CleanHeader(h)
		if strings.TrimSpace(key) == "" || excluded[key] || i >= len(row) {
			continue
		}
		c := row[i]
		if !isAnswer(c) {
			continue
		}
		q[key] = append(q[key], c.Raw())
	}
	return q
}

func isAnswer(c model.Cell) bool {
	switch c.Kind {
	case model.CellNumber:
		return true
	case model.CellString:
		return c.Str != "NULL" && strings.TrimSpace(c.Str) != ""
	}
	return false
}

// ExclusionSet builds the lookup used by Questionnaire.
func ExclusionSet(columns []string) map[string]bool {
	set := make(map[string]bool, len(columns))
	for _, c := range columns {
		set[c] = true
	}
	return set
}
