package tabular

import (
	"fmt"
	"io"

	"github.com/PuerkitoBio/goquery"

	"github.com/gyeh/visitload/internal/model"
)

// openHTML reads the first <table> of an HTML export (reporting tools often
// save these with an .xls extension). Every row, header included, is a <tr>.
func openHTML(r io.Reader) (RowReader, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("parse html: no table found")
	}

	var rows [][]model.Cell
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, cell.Text())
		})
		rows = append(rows, model.StringCells(cells...))
	})
	return NewSliceReader(rows), nil
}
