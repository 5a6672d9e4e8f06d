package tabular

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/gyeh/visitload/internal/model"
)

// xlsxReader streams the first sheet of a workbook.
type xlsxReader struct {
	f    *excelize.File
	rows *excelize.Rows
	cur  []model.Cell
	err  error
}

func openXLSX(r io.Reader) (*xlsxReader, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, fmt.Errorf("open xlsx: workbook has no sheets")
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open xlsx sheet %q: %w", sheets[0], err)
	}
	return &xlsxReader{f: f, rows: rows}, nil
}

func (x *xlsxReader) Next() bool {
	if x.err != nil || !x.rows.Next() {
		return false
	}
	cols, err := x.rows.Columns()
	if err != nil {
		x.err = fmt.Errorf("read xlsx row: %w", err)
		return false
	}
	x.cur = model.StringCells(cols...)
	return true
}

func (x *xlsxReader) Values() []model.Cell { return x.cur }

func (x *xlsxReader) Err() error {
	if x.err != nil {
		return x.err
	}
	return x.rows.Error()
}

func (x *xlsxReader) Close() error {
	if err := x.rows.Close(); err != nil {
		x.f.Close()
		return err
	}
	return x.f.Close()
}
