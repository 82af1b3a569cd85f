// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package features describes how raw records are converted to tensors (the feature "spec"), and how the
// parsed features are split into model inputs and the label.
//
// By default, every feature is mapped to a fixed-length int64 scalar with default value 0 (see
// DefaultMapping), and the feature named "target" is used as the label (see DefaultSplit).
package features

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/pkg/errors"
)

// SpecFileName is the optional file in a data directory listing one feature name per line.
// Empty lines and lines starting with "#" are ignored.
const SpecFileName = "_feature_spec"

// Kind of feature.
type Kind int

const (
	// FixedLen features have the same shape for every example.
	FixedLen Kind = iota

	// VarLen features have a variable number of values per example. They are padded with the
	// default value to the longest example.
	VarLen
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k == VarLen {
		return "VarLen"
	}
	return "FixedLen"
}

// Feature describes how one feature is parsed.
type Feature struct {
	Name string
	Kind Kind

	// DType of the parsed tensor: only integer and float dtypes are supported.
	DType dtypes.DType

	// Dimensions of one example of a FixedLen feature. Empty for scalars.
	Dimensions []int

	// Default value used for missing FixedLen features and for padding VarLen features.
	// If nil, a missing FixedLen feature is an error.
	Default any
}

// FixedLenFeature returns a fixed-length feature with the given default value and per-example dimensions.
func FixedLenFeature(name string, dtype dtypes.DType, defaultValue any, dimensions ...int) Feature {
	return Feature{Name: name, Kind: FixedLen, DType: dtype, Default: defaultValue, Dimensions: dimensions}
}

// VarLenFeature returns a variable-length feature, padded with zeros.
func VarLenFeature(name string, dtype dtypes.DType) Feature {
	return Feature{Name: name, Kind: VarLen, DType: dtype, Default: 0}
}

// Size returns the number of values of one example of a FixedLen feature.
func (f Feature) Size() int {
	size := 1
	for _, dim := range f.Dimensions {
		size *= dim
	}
	return size
}

// String implements fmt.Stringer.
func (f Feature) String() string {
	if f.Kind == VarLen {
		return fmt.Sprintf("%s: VarLen(%s)", f.Name, f.DType)
	}
	return fmt.Sprintf("%s: FixedLen(%s%v, default=%v)", f.Name, f.DType, f.Dimensions, f.Default)
}

// MappingFn maps a feature name to how it should be parsed.
// It can return ErrSkip to leave the feature out.
type MappingFn func(name string) (Feature, error)

// ErrSkip is returned by a MappingFn for features that should not be parsed.
var ErrSkip = errors.New("skip feature")

// SupportedDTypes of parsed features.
var SupportedDTypes = []dtypes.DType{dtypes.Int32, dtypes.Int64, dtypes.Float32, dtypes.Float64}

// DefaultMapping maps every feature to a scalar int64 with default 0.
func DefaultMapping(name string) (Feature, error) {
	return FixedLenFeature(name, dtypes.Int64, int64(0)), nil
}

// Spec is the ordered list of features parsed from a data directory.
type Spec struct {
	Features []Feature
}

// NewSpec applies mapping (DefaultMapping if nil) to each feature name.
// Feature order follows names, and skipped features are left out.
func NewSpec(names []string, mapping MappingFn) (*Spec, error) {
	if mapping == nil {
		mapping = DefaultMapping
	}
	spec := &Spec{Features: make([]Feature, 0, len(names))}
	for _, name := range names {
		feature, err := mapping(name)
		if errors.Is(err, ErrSkip) {
			continue
		}
		if err != nil {
			return nil, errors.WithMessagef(err, "feature mapping failed for %q", name)
		}
		if feature.Name == "" {
			feature.Name = name
		}
		if slices.Index(SupportedDTypes, feature.DType) == -1 {
			return nil, errors.Errorf("feature %q mapped to unsupported dtype %s, supported dtypes are %v",
				name, feature.DType, SupportedDTypes)
		}
		spec.Features = append(spec.Features, feature)
	}
	return spec, nil
}

// Names of the features, in order.
func (s *Spec) Names() []string {
	names := make([]string, len(s.Features))
	for ii, f := range s.Features {
		names[ii] = f.Name
	}
	return names
}

// Lookup returns the feature with the given name.
func (s *Spec) Lookup(name string) (Feature, bool) {
	idx := slices.IndexFunc(s.Features, func(f Feature) bool { return f.Name == name })
	if idx == -1 {
		return Feature{}, false
	}
	return s.Features[idx], true
}

// Without returns a copy of the spec without the named features.
func (s *Spec) Without(names ...string) *Spec {
	out := &Spec{}
	for _, f := range s.Features {
		if slices.Index(names, f.Name) == -1 {
			out.Features = append(out.Features, f)
		}
	}
	return out
}

// String implements fmt.Stringer. It is also what identifies the spec for the compiled graphs.
func (s *Spec) String() string {
	parts := make([]string, len(s.Features))
	for ii, f := range s.Features {
		parts[ii] = f.String()
	}
	return "Spec{" + strings.Join(parts, "; ") + "}"
}

// ReadNames reads the feature names listed in the SpecFileName file of dir.
// It returns found=false if there is no such file.
func ReadNames(dir string) (names []string, found bool, err error) {
	path := filepath.Join(dir, SpecFileName)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "failed to open %q", path)
	}
	defer func() { _ = f.Close() }()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err = scanner.Err(); err != nil {
		return nil, false, errors.Wrapf(err, "failed to read %q", path)
	}
	return names, true, nil
}
