package ingest

import (
	"github.com/gyeh/visitload/internal/extract"
	"github.com/gyeh/visitload/internal/model"
)

func isBlank(row []model.Cell) bool {
	return extract.IsRowEmpty(row)
}
