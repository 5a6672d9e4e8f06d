package parquetio

import (
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/gyeh/visitload/internal/model"
)

const writeBatch = 512

// WriteMerged encodes recs as Parquet into w and returns the row count.
func WriteMerged(w io.Writer, recs []model.MergedRecord) (int64, error) {
	pw := parquet.NewGenericWriter[MergedRow](w)

	buf := make([]MergedRow, 0, writeBatch)
	var written int64
	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		n, err := pw.Write(buf)
		written += int64(n)
		buf = buf[:0]
		if err != nil {
			return fmt.Errorf("write parquet rows: %w", err)
		}
		return nil
	}

	for i := range recs {
		row, err := FromMerged(&recs[i])
		if err != nil {
			return written, err
		}
		buf = append(buf, row)
		if len(buf) == writeBatch {
			if err := flush(); err != nil {
				return written, err
			}
		}
	}
	if err := flush(); err != nil {
		return written, err
	}
	if err := pw.Close(); err != nil {
		return written, fmt.Errorf("close parquet writer: %w", err)
	}
	return written, nil
}

// WriteMergedFile writes recs to path, replacing any existing file.
func WriteMergedFile(path string, recs []model.MergedRecord) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create parquet file: %w", err)
	}
	n, err := WriteMerged(f, recs)
	if err != nil {
		f.Close()
		return n, err
	}
	return n, f.Close()
}
