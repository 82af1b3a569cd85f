// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package features

import (
	"slices"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/trainer/pkg/records"
	"github.com/pkg/errors"
)

// Parsed holds the features parsed from a list of records, one tensor per feature, each with a leading
// examples axis. It keeps the order of the Spec used to parse it.
type Parsed struct {
	names       []string
	tensors     map[string]*tensors.Tensor
	numExamples int
}

// NewParsed returns an empty Parsed collection for numExamples examples.
func NewParsed(numExamples int) *Parsed {
	return &Parsed{tensors: make(map[string]*tensors.Tensor), numExamples: numExamples}
}

// Set adds or replaces the named tensor. New names are appended to the end.
func (p *Parsed) Set(name string, t *tensors.Tensor) {
	if _, found := p.tensors[name]; !found {
		p.names = append(p.names, name)
	}
	p.tensors[name] = t
}

// Names of the parsed features, in order.
func (p *Parsed) Names() []string { return slices.Clone(p.names) }

// Len returns the number of features.
func (p *Parsed) Len() int { return len(p.names) }

// NumExamples returns the size of the leading axis of every tensor.
func (p *Parsed) NumExamples() int { return p.numExamples }

// Get returns the tensor for the named feature.
func (p *Parsed) Get(name string) (t *tensors.Tensor, found bool) {
	t, found = p.tensors[name]
	return
}

// Pop removes the named feature and returns its tensor.
func (p *Parsed) Pop(name string) (t *tensors.Tensor, found bool) {
	t, found = p.tensors[name]
	if !found {
		return nil, false
	}
	delete(p.tensors, name)
	p.names = slices.DeleteFunc(p.names, func(n string) bool { return n == name })
	return t, true
}

// Tensors returns the tensors in order.
func (p *Parsed) Tensors() []*tensors.Tensor {
	ts := make([]*tensors.Tensor, len(p.names))
	for ii, name := range p.names {
		ts[ii] = p.tensors[name]
	}
	return ts
}

// Parse converts the records to one tensor per feature of spec, shaped [numExamples, ...].
//
// FixedLen features missing from a record take their Default value (it is an error if Default is nil),
// and must otherwise hold exactly Feature.Size() values. VarLen features are padded with their Default
// (or zero) to the longest example, and are shaped [numExamples, maxLen].
func Parse(spec *Spec, recs []records.Record) (*Parsed, error) {
	if len(recs) == 0 {
		return nil, errors.New("no records to parse")
	}
	parsed := NewParsed(len(recs))
	for _, feature := range spec.Features {
		t, err := parseFeature(feature, recs)
		if err != nil {
			return nil, err
		}
		parsed.Set(feature.Name, t)
	}
	return parsed, nil
}

// column accumulates the values of one feature: integer dtypes in ints, float dtypes in floats.
type column struct {
	isFloat bool
	ints    []int64
	floats  []float64
}

func (c *column) appendValue(value records.Value) error {
	switch value.Kind {
	case records.KindInt64:
		if c.isFloat {
			for _, v := range value.Int64s {
				c.floats = append(c.floats, float64(v))
			}
		} else {
			c.ints = append(c.ints, value.Int64s...)
		}
	case records.KindFloat:
		if !c.isFloat {
			return errors.New("has float values but is parsed to an integer dtype")
		}
		for _, v := range value.Floats {
			c.floats = append(c.floats, float64(v))
		}
	case records.KindBytes:
		return errors.New("has bytes values, which can't be parsed to a numeric tensor")
	}
	return nil
}

func (c *column) appendDefault(defaultValue any, count int) error {
	if c.isFloat {
		v, err := defaultAsFloat(defaultValue)
		if err != nil {
			return err
		}
		for range count {
			c.floats = append(c.floats, v)
		}
		return nil
	}
	v, err := defaultAsInt(defaultValue)
	if err != nil {
		return err
	}
	for range count {
		c.ints = append(c.ints, v)
	}
	return nil
}

func parseFeature(feature Feature, recs []records.Record) (*tensors.Tensor, error) {
	col := &column{isFloat: feature.DType.IsFloat()}
	var dims []int
	switch feature.Kind {
	case FixedLen:
		size := feature.Size()
		for ii, rec := range recs {
			value, found := rec[feature.Name]
			if !found || value.Len() == 0 {
				if feature.Default == nil {
					return nil, errors.Errorf("feature %q missing from record #%d and it has no default value",
						feature.Name, ii)
				}
				if err := col.appendDefault(feature.Default, size); err != nil {
					return nil, errors.WithMessagef(err, "feature %q", feature.Name)
				}
				continue
			}
			if value.Len() != size {
				return nil, errors.Errorf("feature %q in record #%d has %d values, expected %d for dimensions %v",
					feature.Name, ii, value.Len(), size, feature.Dimensions)
			}
			if err := col.appendValue(value); err != nil {
				return nil, errors.WithMessagef(err, "feature %q in record #%d", feature.Name, ii)
			}
		}
		dims = append([]int{len(recs)}, feature.Dimensions...)

	case VarLen:
		maxLen := 1
		for _, rec := range recs {
			maxLen = max(maxLen, rec[feature.Name].Len())
		}
		padding := feature.Default
		if padding == nil {
			padding = 0
		}
		for ii, rec := range recs {
			value := rec[feature.Name]
			if err := col.appendValue(value); err != nil {
				return nil, errors.WithMessagef(err, "feature %q in record #%d", feature.Name, ii)
			}
			if err := col.appendDefault(padding, maxLen-value.Len()); err != nil {
				return nil, errors.WithMessagef(err, "feature %q", feature.Name)
			}
		}
		dims = []int{len(recs), maxLen}

	default:
		return nil, errors.Errorf("feature %q has unknown kind %d", feature.Name, feature.Kind)
	}
	return col.toTensor(feature.DType, dims)
}

func (c *column) toTensor(dtype dtypes.DType, dims []int) (*tensors.Tensor, error) {
	switch dtype {
	case dtypes.Int64:
		return tensors.FromFlatDataAndDimensions(c.ints, dims...), nil
	case dtypes.Int32:
		return tensors.FromFlatDataAndDimensions(convertSlice[int64, int32](c.ints), dims...), nil
	case dtypes.Float64:
		return tensors.FromFlatDataAndDimensions(c.floats, dims...), nil
	case dtypes.Float32:
		return tensors.FromFlatDataAndDimensions(convertSlice[float64, float32](c.floats), dims...), nil
	}
	return nil, errors.Errorf("unsupported feature dtype %s", dtype)
}

func convertSlice[From, To int64 | int32 | float64 | float32](values []From) []To {
	out := make([]To, len(values))
	for ii, v := range values {
		out[ii] = To(v)
	}
	return out
}

func defaultAsInt(v any) (int64, error) {
	switch d := v.(type) {
	case int:
		return int64(d), nil
	case int32:
		return int64(d), nil
	case int64:
		return d, nil
	case float32:
		return int64(d), nil
	case float64:
		return int64(d), nil
	case bool:
		if d {
			return 1, nil
		}
		return 0, nil
	}
	return 0, errors.Errorf("default value %v (%T) is not a number", v, v)
}

func defaultAsFloat(v any) (float64, error) {
	switch d := v.(type) {
	case float32:
		return float64(d), nil
	case float64:
		return d, nil
	}
	i, err := defaultAsInt(v)
	return float64(i), err
}
