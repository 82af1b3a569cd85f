// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package records

import (
	"io"
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
)

// parquetBatchSize is the number of rows read at a time.
const parquetBatchSize = 256

// readParquet reads a Parquet file. Each leaf column becomes a feature named after its path (joined
// by "."); repeated columns yield lists. Null values are left out of the record.
func readParquet(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %q", path)
	}
	defer func() { _ = f.Close() }()

	reader := parquet.NewReader(f)
	defer func() { _ = reader.Close() }()
	var columnNames []string
	for _, columnPath := range reader.Schema().Columns() {
		columnNames = append(columnNames, strings.Join(columnPath, "."))
	}

	recs := make([]Record, 0, reader.NumRows())
	rows := make([]parquet.Row, parquetBatchSize)
	for {
		n, err := reader.ReadRows(rows)
		for _, row := range rows[:n] {
			rec, convErr := parquetRowToRecord(row, columnNames)
			if convErr != nil {
				return nil, errors.WithMessagef(convErr, "while reading %q row %d", path, len(recs))
			}
			recs = append(recs, rec)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read rows of %q", path)
		}
	}
	return recs, nil
}

func parquetRowToRecord(row parquet.Row, columnNames []string) (Record, error) {
	rec := make(Record, len(columnNames))
	for _, v := range row {
		if v.IsNull() {
			continue
		}
		columnIdx := v.Column()
		if columnIdx < 0 || columnIdx >= len(columnNames) {
			return nil, errors.Errorf("value for unknown column #%d", columnIdx)
		}
		name := columnNames[columnIdx]
		current := rec[name]
		switch v.Kind() {
		case parquet.Boolean:
			var b int64
			if v.Boolean() {
				b = 1
			}
			current.Kind = KindInt64
			current.Int64s = append(current.Int64s, b)
		case parquet.Int32:
			current.Kind = KindInt64
			current.Int64s = append(current.Int64s, int64(v.Int32()))
		case parquet.Int64:
			current.Kind = KindInt64
			current.Int64s = append(current.Int64s, v.Int64())
		case parquet.Float:
			current.Kind = KindFloat
			current.Floats = append(current.Floats, v.Float())
		case parquet.Double:
			current.Kind = KindFloat
			current.Floats = append(current.Floats, float32(v.Double()))
		case parquet.ByteArray, parquet.FixedLenByteArray:
			current.Kind = KindBytes
			current.Bytes = append(current.Bytes, append([]byte(nil), v.ByteArray()...))
		default:
			return nil, errors.Errorf("column %q has unsupported parquet type %s", name, v.Kind())
		}
		rec[name] = current
	}
	return rec, nil
}
