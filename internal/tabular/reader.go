// Package tabular reads uploaded spreadsheets into ordered rows of cells.
// Row 0 is always the header row.
package tabular

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gyeh/visitload/internal/model"
)

// Kind is a supported upload format.
type Kind string

const (
	KindXLSX Kind = "xlsx"
	KindCSV  Kind = "csv"
	KindHTML Kind = "html"
)

// RowReader iterates the rows of one upload in file order.
type RowReader interface {
	// Next advances to the next row. Returns false at the end or on error.
	Next() bool
	// Values returns the current row's cells.
	Values() []model.Cell
	// Err returns the first error encountered during iteration.
	Err() error
	Close() error
}

// KindOf picks the format from a file name's extension.
func KindOf(name string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return KindXLSX, nil
	case ".csv":
		return KindCSV, nil
	case ".html", ".htm", ".xls":
		return KindHTML, nil
	}
	return "", &FileTypeError{Name: name}
}

// FileTypeError rejects an upload whose type is not a supported spreadsheet.
type FileTypeError struct {
	Name     string
	MIMEType string
}

func (e *FileTypeError) Error() string {
	if e.MIMEType != "" {
		return fmt.Sprintf("invalid file type: %s. Please upload an Excel or CSV file", e.MIMEType)
	}
	return fmt.Sprintf("unsupported file type: %q", filepath.Ext(e.Name))
}

// Open returns a RowReader for r, choosing the format from name.
func Open(name string, r io.Reader) (RowReader, error) {
	kind, err := KindOf(name)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindXLSX:
		return openXLSX(r)
	case KindCSV:
		return openCSV(r), nil
	default:
		return openHTML(r)
	}
}

var allowedMIMETypes = map[string]bool{
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"application/vnd.ms-excel": true,
	"text/csv":                 true,
	"text/html":                true,
}

// Allowed rejects uploads that are neither an Excel, CSV nor HTML export.
// A generic or missing MIME type defers to the file extension.
func Allowed(name, mimeType string) error {
	mt := strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	if allowedMIMETypes[mt] {
		return nil
	}
	if mt == "" || mt == "application/octet-stream" {
		if _, err := KindOf(name); err == nil {
			return nil
		}
	}
	if mt == "" {
		return &FileTypeError{Name: name}
	}
	return &FileTypeError{Name: name, MIMEType: mimeType}
}

// sliceReader serves rows already held in memory.
type sliceReader struct {
	rows [][]model.Cell
	pos  int
}

// NewSliceReader returns a RowReader over rows.
func NewSliceReader(rows [][]model.Cell) RowReader {
	return &sliceReader{rows: rows, pos: -1}
}

func (s *sliceReader) Next() bool {
	if s.pos+1 >= len(s.rows) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceReader) Values() []model.Cell { return s.rows[s.pos] }
func (s *sliceReader) Err() error           { return nil }
func (s *sliceReader) Close() error         { return nil }

// ReadAll drains r into memory.
func ReadAll(r RowReader) ([][]model.Cell, error) {
	var rows [][]model.Cell
	for r.Next() {
		rows = append(rows, r.Values())
	}
	return rows, r.Err()
}
