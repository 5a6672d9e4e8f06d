package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/gyeh/visitload/internal/model"
)

const utf8BOM = "\ufeff"

// csvReader streams a CSV file; rows may have differing lengths.
type csvReader struct {
	r     *csv.Reader
	cur   []model.Cell
	err   error
	first bool
}

func openCSV(r io.Reader) *csvReader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return &csvReader{r: cr, first: true}
}

func (c *csvReader) Next() bool {
	if c.err != nil {
		return false
	}
	rec, err := c.r.Read()
	if err == io.EOF {
		return false
	}
	if err != nil {
		c.err = fmt.Errorf("read csv: %w", err)
		return false
	}
	if c.first && len(rec) > 0 {
		rec[0] = strings.TrimPrefix(rec[0], utf8BOM)
	}
	c.first = false
	c.cur = model.StringCells(rec...)
	return true
}

func (c *csvReader) Values() []model.Cell { return c.cur }
func (c *csvReader) Err() error           { return c.err }
func (c *csvReader) Close() error         { return nil }
