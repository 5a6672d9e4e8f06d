package normalize

import (
	"regexp"
	"strings"

	"github.com/gyeh/visitload/internal/model"
)

// NullSentinel is the literal spreadsheet exporters write for a missing value.
const NullSentinel = "NULL"

var (
	tagMarkup  = regexp.MustCompile(`<[^>]*>?`)
	multiSpace = regexp.MustCompile(`\s+`)
)

// SanitizeInput strips tag markup from a string cell, collapses whitespace
// runs left behind by the removed markup, and trims the result. Any
// non-string cell sanitizes to "".
func SanitizeInput(c model.Cell) string {
	if !c.IsString() {
		return ""
	}
	return SanitizeString(c.Str)
}

// SanitizeString is SanitizeInput for a value already known to be text.
func SanitizeString(s string) string {
	s = tagMarkup.ReplaceAllString(s, "")
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NullIfEmpty reports ok=false when v is "" or the NULL sentinel, which
// callers treat as an absent value. Any other value, including "0", is
// returned unchanged.
func NullIfEmpty(v string) (string, bool) {
	if v == "" || v == NullSentinel {
		return "", false
	}
	return v, true
}
