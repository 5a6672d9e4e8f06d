package parquetio

import (
	"fmt"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/gyeh/visitload/internal/model"
)

// ValidateSchema checks that schema carries every merged-view column.
func ValidateSchema(schema *parquet.Schema) error {
	columns := make(map[string]bool)
	for _, field := range schema.Fields() {
		columns[strings.ToLower(field.Name())] = true
	}

	var missing []string
	for _, col := range RequiredColumns {
		if !columns[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Verify reopens an export and checks that it decodes to exactly wantRows
// merged records.
func Verify(path string, wantRows int64) error {
	r, err := Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	if got := r.Visits(); got != wantRows {
		return fmt.Errorf("merged export has %d rows, expected %d", got, wantRows)
	}
	var decoded int64
	if err := r.Each(func(model.MergedRecord) error { decoded++; return nil }); err != nil {
		return err
	}
	if decoded != wantRows {
		return fmt.Errorf("merged export decoded %d rows, expected %d", decoded, wantRows)
	}
	return nil
}
