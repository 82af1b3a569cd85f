// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package records reads the raw examples stored in a data directory.
//
// A data directory holds any number of data files, in one of the supported formats (selected by the
// file extension):
//
//   - ".tfrecord", ".tfrecords" (optionally ".gz"): TFRecord files of serialized tf.train.Example.
//   - ".csv" (optionally ".gz"): CSV files with a header row.
//   - ".parquet": Parquet files with a flat schema.
//
// Files whose names start with "_" or "." (e.g. "_SUCCESS" or "_feature_spec") are ignored.
//
// Each example is returned as a Record: a map of feature name to Value, which mirrors a tf.train.Feature:
// a list of int64, float32 or bytes values.
package records

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// Kind of the values held by a Value.
type Kind int

const (
	KindEmpty Kind = iota
	KindInt64
	KindFloat
	KindBytes
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindInt64:
		return "int64"
	case KindFloat:
		return "float"
	case KindBytes:
		return "bytes"
	default:
		return "empty"
	}
}

// Value of one feature of one example. Only the list matching Kind is used.
type Value struct {
	Kind   Kind
	Int64s []int64
	Floats []float32
	Bytes  [][]byte
}

// Int64s returns a Value holding the given int64 values.
func Int64s(values ...int64) Value { return Value{Kind: KindInt64, Int64s: values} }

// Floats returns a Value holding the given float32 values.
func Floats(values ...float32) Value { return Value{Kind: KindFloat, Floats: values} }

// Bytes returns a Value holding the given strings as bytes.
func Bytes(values ...string) Value {
	v := Value{Kind: KindBytes, Bytes: make([][]byte, len(values))}
	for ii, s := range values {
		v.Bytes[ii] = []byte(s)
	}
	return v
}

// Len returns the number of values.
func (v Value) Len() int {
	switch v.Kind {
	case KindInt64:
		return len(v.Int64s)
	case KindFloat:
		return len(v.Floats)
	case KindBytes:
		return len(v.Bytes)
	}
	return 0
}

// Record is one example: feature name to value.
type Record map[string]Value

// Names returns the sorted feature names of the record.
func (r Record) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Format of a data file.
type Format int

const (
	FormatUnknown Format = iota
	FormatTFRecord
	FormatCSV
	FormatParquet
)

// String implements fmt.Stringer.
func (f Format) String() string {
	switch f {
	case FormatTFRecord:
		return "tfrecord"
	case FormatCSV:
		return "csv"
	case FormatParquet:
		return "parquet"
	default:
		return "unknown"
	}
}

// FormatOf returns the format of the file based on its name, and whether it is gzip compressed.
func FormatOf(path string) (format Format, compressed bool) {
	name := strings.ToLower(filepath.Base(path))
	if strings.HasSuffix(name, ".gz") {
		compressed = true
		name = strings.TrimSuffix(name, ".gz")
	}
	switch filepath.Ext(name) {
	case ".tfrecord", ".tfrecords":
		format = FormatTFRecord
	case ".csv":
		format = FormatCSV
	case ".parquet":
		if !compressed {
			format = FormatParquet
		}
	}
	return
}

// isHidden files are skipped when listing a data directory.
func isHidden(name string) bool {
	return strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")
}

// Files lists the data files in dir, sorted by name.
// Sub-directories, hidden files and files of unknown format are skipped.
func Files(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list data directory %q", dir)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || isHidden(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if format, _ := FormatOf(path); format == FormatUnknown {
			klog.V(1).Infof("Skipping file %q with unknown data format", path)
			continue
		}
		files = append(files, path)
	}
	return files, nil
}

// progressBarMinFiles is the number of files from which ReadDir displays a progress bar.
const progressBarMinFiles = 16

// ReadDir reads all records of all data files in dir, in file name order.
// It also returns the sorted union of the feature names found.
//
// It returns an error if dir has no data files.
func ReadDir(dir string) (recs []Record, names []string, err error) {
	files, err := Files(dir)
	if err != nil {
		return nil, nil, err
	}
	if len(files) == 0 {
		return nil, nil, errors.Errorf("no data files (.tfrecord, .csv or .parquet) found in %q", dir)
	}
	var bar *progressbar.ProgressBar
	if len(files) >= progressBarMinFiles {
		bar = progressbar.Default(int64(len(files)), "reading "+filepath.Base(dir))
	}
	var totalBytes int64
	for _, path := range files {
		fileRecs, err := ReadFile(path)
		if err != nil {
			return nil, nil, err
		}
		recs = append(recs, fileRecs...)
		if info, statErr := os.Stat(path); statErr == nil {
			totalBytes += info.Size()
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Close()
	}
	seen := make(map[string]bool)
	for _, rec := range recs {
		for name := range rec {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	slices.Sort(names)
	klog.Infof("Read %d records with %d features from %d files (%s) in %q",
		len(recs), len(names), len(files), humanize.Bytes(uint64(totalBytes)), dir)
	return recs, names, nil
}

// ReadFile reads all records of one data file.
func ReadFile(path string) ([]Record, error) {
	format, compressed := FormatOf(path)
	if format == FormatUnknown {
		return nil, errors.Errorf("unknown data format for file %q", path)
	}
	if format == FormatParquet {
		return readParquet(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %q", path)
	}
	defer func() { _ = f.Close() }()
	var r io.Reader = f
	if compressed {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to decompress %q", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	var recs []Record
	switch format {
	case FormatTFRecord:
		recs, err = readTFRecordExamples(r)
	case FormatCSV:
		recs, err = readCSV(r)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "while reading %q", path)
	}
	return recs, nil
}
