// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package features

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/trainer/pkg/records"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSpec(t *testing.T) {
	spec, err := NewSpec([]string{"b", "a", "target"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "target"}, spec.Names())
	for _, f := range spec.Features {
		assert.Equal(t, FixedLen, f.Kind)
		assert.Equal(t, dtypes.Int64, f.DType)
		assert.Equal(t, int64(0), f.Default)
		assert.Empty(t, f.Dimensions)
	}
	assert.Equal(t, []string{"b", "a"}, spec.Without(DefaultLabel).Names())
	_, found := spec.Lookup("a")
	assert.True(t, found)
	_, found = spec.Lookup("c")
	assert.False(t, found)

	// Custom mapping: skipping, errors and unsupported dtypes.
	spec, err = NewSpec([]string{"x", "id"}, func(name string) (Feature, error) {
		if name == "id" {
			return Feature{}, ErrSkip
		}
		return FixedLenFeature("", dtypes.Float32, float32(1), 2), nil
	})
	require.NoError(t, err)
	require.Len(t, spec.Features, 1)
	assert.Equal(t, "x", spec.Features[0].Name, "empty names are filled in")
	assert.Equal(t, 2, spec.Features[0].Size())

	_, err = NewSpec([]string{"x"}, func(name string) (Feature, error) { return Feature{}, errors.New("boom") })
	require.ErrorContains(t, err, "boom")
	_, err = NewSpec([]string{"x"}, func(name string) (Feature, error) {
		return FixedLenFeature(name, dtypes.Bool, false), nil
	})
	require.ErrorContains(t, err, "unsupported dtype")
}

func TestReadNames(t *testing.T) {
	dir := t.TempDir()
	names, found, err := ReadNames(dir)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, names)

	require.NoError(t, os.WriteFile(filepath.Join(dir, SpecFileName), []byte("# comment\nage\n\n  target \n"), 0644))
	names, found, err = ReadNames(dir)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"age", "target"}, names)
}

func TestParse(t *testing.T) {
	recs := []records.Record{
		{"x": records.Int64s(3), "v": records.Floats(1, 2, 3), "target": records.Int64s(1)},
		{"v": records.Int64s(4), "target": records.Int64s(0), "p": records.Floats(0.5, 0.25)},
	}
	spec := &Spec{Features: []Feature{
		FixedLenFeature("x", dtypes.Int64, int64(7)),
		VarLenFeature("v", dtypes.Float32),
		FixedLenFeature("p", dtypes.Float64, -1, 2),
		FixedLenFeature("target", dtypes.Int32, 0),
	}}
	parsed, err := Parse(spec, recs)
	require.NoError(t, err)
	assert.Equal(t, 2, parsed.NumExamples())
	assert.Equal(t, []string{"x", "v", "p", "target"}, parsed.Names())

	x, found := parsed.Get("x")
	require.True(t, found)
	assert.Equal(t, []int64{3, 7}, x.Value(), "missing feature takes the default")

	v, _ := parsed.Get("v")
	assert.Equal(t, [][]float32{{1, 2, 3}, {4, 0, 0}}, v.Value(), "VarLen is padded")

	p, _ := parsed.Get("p")
	assert.Equal(t, [][]float64{{-1, -1}, {0.5, 0.25}}, p.Value())

	target, _ := parsed.Get("target")
	assert.Equal(t, dtypes.Int32, target.DType())
	assert.Equal(t, []int32{1, 0}, target.Value())

	inputs, label, err := DefaultSplit(parsed)
	require.NoError(t, err)
	assert.Same(t, target, label)
	assert.Equal(t, []string{"x", "v", "p"}, inputs.Names())
	assert.Len(t, inputs.Tensors(), 3)
	_, _, err = DefaultSplit(inputs)
	require.ErrorContains(t, err, "label feature \"target\" not found")
}

func TestParseErrors(t *testing.T) {
	recs := []records.Record{{"x": records.Int64s(1)}, {"y": records.Int64s(1, 2)}}

	_, err := Parse(&Spec{Features: []Feature{FixedLenFeature("y", dtypes.Int64, nil)}}, recs)
	require.ErrorContains(t, err, "missing from record #0")

	_, err = Parse(&Spec{Features: []Feature{FixedLenFeature("y", dtypes.Int64, 0)}}, recs)
	require.ErrorContains(t, err, "record #1 has 2 values")

	_, err = Parse(&Spec{Features: []Feature{FixedLenFeature("x", dtypes.Int64, 0)}},
		[]records.Record{{"x": records.Floats(1.5)}})
	require.ErrorContains(t, err, "float values")

	_, err = Parse(&Spec{Features: []Feature{FixedLenFeature("x", dtypes.Float32, 0)}},
		[]records.Record{{"x": records.Bytes("a")}})
	require.ErrorContains(t, err, "bytes values")

	_, err = Parse(&Spec{}, nil)
	require.Error(t, err)
}

func TestInferMapping(t *testing.T) {
	recs := []records.Record{
		{"a": records.Int64s(1), "b": records.Floats(1, 2), "c": records.Int64s(1), "s": records.Bytes("x"),
			"target": records.Int64s(1)},
		{"a": records.Int64s(2), "b": records.Floats(3, 4), "c": records.Int64s(1, 2, 3)},
	}
	mapping := InferMapping(recs, DefaultLabel)
	spec, err := NewSpec([]string{"a", "b", "c", "s", "target"}, mapping)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "target"}, spec.Names())

	a, _ := spec.Lookup("a")
	assert.Equal(t, FixedLenFeature("a", dtypes.Int64, int64(0)), a)
	b, _ := spec.Lookup("b")
	assert.Equal(t, dtypes.Float32, b.DType)
	assert.Equal(t, []int{2}, b.Dimensions)
	c, _ := spec.Lookup("c")
	assert.Equal(t, VarLen, c.Kind)

	parsed, err := Parse(spec, recs)
	require.NoError(t, err)
	target, _ := parsed.Get("target")
	assert.Equal(t, []int64{1, 0}, target.Value())

	_, err = mapping("unknown")
	require.Error(t, err)

	// Float labels, e.g. regression targets, are parsed as Float32 scalars.
	recs = []records.Record{
		{"x": records.Int64s(1), "price": records.Floats(1.5)},
		{"x": records.Int64s(2), "price": records.Int64s(3)},
		{"x": records.Int64s(3)},
	}
	spec, err = NewSpec([]string{"x", "price"}, InferMapping(recs, "price"))
	require.NoError(t, err)
	price, _ := spec.Lookup("price")
	assert.Equal(t, FixedLenFeature("price", dtypes.Float32, float32(0)), price)
	parsed, err = Parse(spec, recs)
	require.NoError(t, err)
	priceValues, _ := parsed.Get("price")
	assert.Equal(t, []float32{1.5, 3, 0}, priceValues.Value())

	// A label missing from every record keeps the default mapping, a bytes label is an error.
	label, err := InferMapping(recs, "missing")("missing")
	require.NoError(t, err)
	assert.Equal(t, dtypes.Int64, label.DType)
	_, err = InferMapping([]records.Record{{"s": records.Bytes("x")}}, "s")("s")
	require.Error(t, err)
}
