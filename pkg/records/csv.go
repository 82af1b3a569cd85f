// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package records

import (
	"io"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"
)

// readCSV reads a CSV with a header row. Column types are detected by gota: integer columns become
// int64 values, float columns float values, booleans 0/1 int64 values and anything else bytes.
//
// Missing (NA) numeric cells are left out of the record, so the feature default applies.
func readCSV(r io.Reader) ([]Record, error) {
	df := dataframe.ReadCSV(r, dataframe.HasHeader(true), dataframe.DetectTypes(true))
	if df.Err != nil {
		return nil, errors.Wrap(df.Err, "failed to parse CSV")
	}
	numRows := df.Nrow()
	recs := make([]Record, numRows)
	for ii := range recs {
		recs[ii] = make(Record, df.Ncol())
	}
	for _, name := range df.Names() {
		col := df.Col(name)
		if err := setCSVColumn(recs, name, col); err != nil {
			return nil, errors.WithMessagef(err, "CSV column %q", name)
		}
	}
	return recs, nil
}

func setCSVColumn(recs []Record, name string, col series.Series) error {
	switch col.Type() {
	case series.Int:
		for ii := range recs {
			elem := col.Elem(ii)
			if elem.IsNA() {
				continue
			}
			v, err := elem.Int()
			if err != nil {
				return errors.Wrapf(err, "row %d", ii)
			}
			recs[ii][name] = Int64s(int64(v))
		}
	case series.Bool:
		for ii := range recs {
			elem := col.Elem(ii)
			if elem.IsNA() {
				continue
			}
			b, err := elem.Bool()
			if err != nil {
				return errors.Wrapf(err, "row %d", ii)
			}
			var v int64
			if b {
				v = 1
			}
			recs[ii][name] = Int64s(v)
		}
	case series.Float:
		for ii := range recs {
			elem := col.Elem(ii)
			if elem.IsNA() {
				continue
			}
			recs[ii][name] = Floats(float32(elem.Float()))
		}
	default:
		for ii, s := range col.Records() {
			recs[ii][name] = Bytes(s)
		}
	}
	return nil
}
