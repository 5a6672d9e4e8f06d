package normalize

import "strings"

// SplitFullName splits a "Last, First" style patient column on ", " into its
// first two parts, trimming each. Missing parts are "".
func SplitFullName(fullName string) (first, last string) {
	parts := strings.Split(fullName, ", ")
	if len(parts) > 0 {
		first = strings.TrimSpace(parts[0])
	}
	if len(parts) > 1 {
		last = strings.TrimSpace(parts[1])
	}
	return first, last
}
