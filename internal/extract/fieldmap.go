// Package extract turns one spreadsheet row into keyed values: the field map,
// suffix-indexed column families and the questionnaire.
//
// Upstream column convention: a repeated or coded field is exported as a
// family of columns named PREFIX(i), one per repetition i (for example
// M1023(1)..M1023(15) for ICD code slots). All other column names are used
// verbatim.
package extract

import (
	"strings"

	"github.com/gyeh/visitload/internal/model"
	"github.com/gyeh/visitload/internal/normalize"
)

// FieldMap maps a header name to its sanitized cell value. Absent values
// (blank, the NULL sentinel, non-string or missing cells) have no entry.
type FieldMap map[string]string

// Get returns the value stored for key and whether it is present.
func (m FieldMap) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// GetOr returns the value stored for key, or fallback when it is absent.
func (m FieldMap) GetOr(key, fallback string) string {
	if v, ok := m[key]; ok {
		return v
	}
	return fallback
}

// MapRow zips headers with row cells. Each header maps to
// NullIfEmpty(SanitizeInput(cell)); cells past the end of the row are
// absent and cells past the last header are ignored. When a header repeats,
// the later column wins, including when its value is absent.
func MapRow(row []model.Cell, headers []string) FieldMap {
	m := make(FieldMap, len(headers))
	for i, h := range headers {
		var c model.Cell
		if i < len(row) {
			c = row[i]
		}
		if v, ok := normalize.NullIfEmpty(normalize.SanitizeInput(c)); ok {
			m[h] = v
		} else {
			delete(m, h)
		}
	}
	return m
}

// IsRowEmpty reports whether every cell is empty or whitespace-only text.
// Numeric cells count as content, including zero.
func IsRowEmpty(row []model.Cell) bool {
	for _, c := range row {
		switch c.Kind {
		case model.CellNumber:
			return false
		case model.CellString:
			if strings.TrimSpace(c.Str) != "" {
				return false
			}
		}
	}
	return true
}
