package corpus

import (
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"

	"github.com/textprep/textprep/tokenizers/api"
)

// Parquet returns a stream over the string values of one column of a parquet
// file. The schema must be flat and the column must hold byte-array (string)
// values; rows where the column is null are skipped. Each pass re-opens the
// file.
func Parquet(path, column string) Stream {
	return func(yield func(string, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield("", errors.Wrapf(err, "opening %q", path))
			return
		}
		defer func() { _ = f.Close() }()

		info, err := f.Stat()
		if err != nil {
			yield("", errors.Wrapf(err, "stating %q", path))
			return
		}
		pf, err := parquet.OpenFile(f, info.Size())
		if err != nil {
			yield("", errors.Wrapf(err, "parsing parquet file %q", path))
			return
		}

		leaf, ok := pf.Schema().Lookup(column)
		if !ok {
			yield("", errors.Wrapf(api.ErrInvalidConfig, "parquet file %q has no column %q", path, column))
			return
		}
		if kind := leaf.Node.Type().Kind(); kind != parquet.ByteArray {
			yield("", errors.Wrapf(api.ErrInvalidConfig, "parquet column %q holds %s values, want byte array", column, kind))
			return
		}

		buf := make([]parquet.Row, 256)
		for _, rg := range pf.RowGroups() {
			rows := rg.Rows()
			ok := readGroup(rows, buf, leaf.ColumnIndex, path, yield)
			if closeErr := rows.Close(); closeErr != nil && ok {
				yield("", errors.Wrapf(closeErr, "closing row reader for %q", path))
				return
			}
			if !ok {
				return
			}
		}
	}
}

// readGroup drains one row group, reporting false once the consumer stopped
// or an error was yielded; the stream must not yield anything after that.
func readGroup(rows parquet.Rows, buf []parquet.Row, columnIndex int, path string, yield func(string, error) bool) bool {
	for {
		n, err := rows.ReadRows(buf)
		for _, row := range buf[:n] {
			for _, v := range row {
				if v.Column() != columnIndex || v.IsNull() {
					continue
				}
				if !yield(v.String(), nil) {
					return false
				}
				break
			}
		}
		if err == io.EOF {
			return true
		}
		if err != nil {
			yield("", errors.Wrapf(err, "reading rows from %q", path))
			return false
		}
		if n == 0 {
			return true
		}
	}
}
