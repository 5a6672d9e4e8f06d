package extract

import "strconv"

// Default ICD code column family.
const (
	ICDPrefix = "M1023"
	ICDStart  = 1
	ICDEnd    = 15
)

// Mode selects what Extract collects from an indexed column family.
type Mode int

const (
	// RawMode collects present cell values.
	RawMode Mode = iota
	// FlagMode collects the index i of every column whose value is "1".
	FlagMode
)

// IndexedKey returns the synthetic column name PREFIX(i).
func IndexedKey(prefix string, i int) string {
	return prefix + "(" + strconv.Itoa(i) + ")"
}

// Extract walks PREFIX(start)..PREFIX(end) inclusive in ascending order.
// In RawMode the result holds strings, in FlagMode ints.
func Extract(fm FieldMap, start, end int, prefix string, mode Mode) []any {
	var out []any
	if mode == FlagMode {
		for _, i := range IndexedFlags(fm, start, end, prefix) {
			out = append(out, i)
		}
		return out
	}
	for _, v := range IndexedValues(fm, start, end, prefix) {
		out = append(out, v)
	}
	return out
}

// IndexedValues collects the present values of PREFIX(start)..PREFIX(end),
// skipping absent cells and the NULL sentinel.
func IndexedValues(fm FieldMap, start, end int, prefix string) []string {
	out := []string{}
	for i := start; i <= end; i++ {
		v, ok := fm.Get(IndexedKey(prefix, i))
		if !ok || v == "" || v == "NULL" {
			continue
		}
		out = append(out, v)
	}
	return out
}

// IndexedFlags turns a one-hot column family into the list of indices whose
// value is "1".
func IndexedFlags(fm FieldMap, start, end int, prefix string) []int {
	out := []int{}
	for i := start; i <= end; i++ {
		if v, ok := fm.Get(IndexedKey(prefix, i)); ok && v == "1" {
			out = append(out, i)
		}
	}
	return out
}

// ICDCodes extracts the default M1023(1..15) ICD code family.
func ICDCodes(fm FieldMap) []string {
	return IndexedValues(fm, ICDStart, ICDEnd, ICDPrefix)
}
