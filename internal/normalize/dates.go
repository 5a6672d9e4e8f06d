package normalize

import (
	"fmt"
	"strings"
	"time"
)

// CanonicalDateLayout is the YYYY-MM-DD form every visit date is stored in.
const CanonicalDateLayout = "2006-01-02"

// Date formats found in visit exports. Excel's default short date renders as
// "01-02-06" through excelize; US locale exports add a 12-hour time and
// drop leading zeros.
var dateFormats = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"1-2-2006",
	"01-02-06",
	"1-2-06",
	"1/2/06",
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 Jan 2006",
	"02-Jan-2006",
	"Mon Jan 2 2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z",
	time.RFC3339,
	time.RFC3339Nano,
	"01/02/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/06 15:04",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"1/2/06 3:04 PM",
	"2006-1-2",
	"2006/1/2",
	"2 January 2006",
	"January 2 2006",
}

// DateFormatError reports an admit date that none of the known layouts parse.
type DateFormatError struct {
	Value string
}

func (e *DateFormatError) Error() string {
	return fmt.Sprintf("invalid date format: %s", e.Value)
}

// ParseDate attempts to parse a date string in multiple common formats.
// Layouts without a zone are read as UTC; zoned values are converted to UTC.
// Returns nil if the input is empty or unparseable.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// FormatDate normalizes a free-text date to YYYY-MM-DD (UTC). Empty input
// yields "" so the caller can apply its own fallback.
func FormatDate(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	t := ParseDate(s)
	if t == nil {
		return "", &DateFormatError{Value: s}
	}
	return t.Format(CanonicalDateLayout), nil
}
