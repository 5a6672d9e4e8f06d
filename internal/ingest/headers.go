package ingest

// ValidateHeaders fails with a *HeaderError naming every required column the
// header row lacks. Names are matched verbatim.
func ValidateHeaders(headers, required []string) error {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}
	var missing []string
	for _, r := range required {
		if !present[r] {
			missing = append(missing, r)
		}
	}
	if len(missing) > 0 {
		return &HeaderError{Missing: missing}
	}
	return nil
}
