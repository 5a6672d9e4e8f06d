package model

import "strconv"

// CellKind identifies the loosely-typed scalar held by a spreadsheet cell.
type CellKind uint8

const (
	CellEmpty CellKind = iota
	CellString
	CellNumber
)

// Cell is one value produced by a tabular reader. Readers never produce
// anything other than an empty cell, a string or a number.
type Cell struct {
	Kind CellKind
	Str  string
	Num  float64
}

// StringCell returns a string cell. An empty string is still a string cell;
// only missing trailing cells are CellEmpty.
func StringCell(s string) Cell { return Cell{Kind: CellString, Str: s} }

// NumberCell returns a numeric cell.
func NumberCell(n float64) Cell { return Cell{Kind: CellNumber, Num: n} }

// IsString reports whether the cell holds a string.
func (c Cell) IsString() bool { return c.Kind == CellString }

// Text renders the cell as text: strings verbatim, numbers in their shortest
// decimal form, empty cells as "".
func (c Cell) Text() string {
	switch c.Kind {
	case CellString:
		return c.Str
	case CellNumber:
		return strconv.FormatFloat(c.Num, 'f', -1, 64)
	}
	return ""
}

// Raw returns the underlying Go value (string, float64 or nil), which is what
// questionnaire answers store.
func (c Cell) Raw() any {
	switch c.Kind {
	case CellString:
		return c.Str
	case CellNumber:
		return c.Num
	}
	return nil
}

// StringCells is a convenience for building rows in readers and tests.
func StringCells(values ...string) []Cell {
	out := make([]Cell, len(values))
	for i, v := range values {
		out[i] = StringCell(v)
	}
	return out
}
