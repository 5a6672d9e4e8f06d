package ingest

import (
	"fmt"
	"strings"
)

// Pipeline phases reported by PipelineError.
const (
	PhasePreflight = "preflight"
	PhaseHeaders   = "headers"
	PhaseTransform = "transform"
	PhaseValidate  = "validate"
	PhaseMerge     = "merge"
	PhaseArchive   = "archive"
)

// PipelineError wraps an error with the phase where it occurred and, for
// row-level phases, the 1-based spreadsheet row number (the header is row 1).
type PipelineError struct {
	Phase string
	Row   int
	Err   error
}

func (e *PipelineError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("%s: row %d: %s", e.Phase, e.Row, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Phase, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// HeaderError lists every required column missing from the header row.
type HeaderError struct {
	Missing []string
}

func (e *HeaderError) Error() string {
	parts := make([]string, len(e.Missing))
	for i, h := range e.Missing {
		parts[i] = h + " is missing"
	}
	return "the following required fields are missing: " + strings.Join(parts, ", ")
}

// FieldError is one violated constraint on a processed record.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError aggregates every constraint a processed record violates.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + " " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// FieldNames returns the names of the violated fields in check order.
func (e *ValidationError) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Field
	}
	return names
}
