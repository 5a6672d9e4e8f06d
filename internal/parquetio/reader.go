package parquetio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/gyeh/visitload/internal/model"
)

const readBatch = 256

// Reader streams an exported merged view back as model.MergedRecord values.
// Open rejects files that lack the merged-view columns.
type Reader struct {
	file   *os.File
	rows   *parquet.GenericReader[MergedRow]
	buf    []MergedRow
	pos    int64
	closed bool
}

// Open opens an export written by WriteMergedFile.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open merged export: %w", err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat merged export: %w", err)
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	if err := ValidateSchema(pf.Schema()); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s is not a merged-view export: %w", path, err)
	}

	return &Reader{
		file: f,
		rows: parquet.NewGenericReader[MergedRow](pf),
		buf:  make([]MergedRow, readBatch),
	}, nil
}

// Visits returns the number of visit rows in the export.
func (r *Reader) Visits() int64 {
	return r.rows.NumRows()
}

// Each decodes every remaining row in file order and calls fn with it.
// Decode errors name the 1-based row that failed.
func (r *Reader) Each(fn func(model.MergedRecord) error) error {
	for {
		n, err := r.rows.Read(r.buf)
		for i := 0; i < n; i++ {
			r.pos++
			rec, derr := r.buf[i].ToMerged()
			if derr != nil {
				return fmt.Errorf("row %d: %w", r.pos, derr)
			}
			if ferr := fn(rec); ferr != nil {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read merged rows after row %d: %w", r.pos, err)
		}
	}
}

// Close releases the parquet reader and the file.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	err := r.rows.Close()
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// ReadAll decodes the whole export at path.
func ReadAll(path string) ([]model.MergedRecord, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	out := make([]model.MergedRecord, 0, r.Visits())
	err = r.Each(func(rec model.MergedRecord) error {
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
