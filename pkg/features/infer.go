// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package features

import (
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/trainer/pkg/records"
	"github.com/pkg/errors"
)

// InferMapping returns a MappingFn that picks each feature's parsing from the values found in recs:
//
//   - Features with any float value become Float32, otherwise Int64.
//   - Features with the same number of values in every record where present become FixedLen (scalars if
//     that number is 1), with default 0. Others become VarLen.
//   - Bytes features are skipped.
//
// The label feature (if given) is always a scalar with default 0: Float32 if it has any float value,
// Int64 otherwise (also when no record has it), as DefaultMapping does.
func InferMapping(recs []records.Record, label string) MappingFn {
	type stats struct {
		hasFloat, hasBytes bool
		length             int
		varying            bool
	}
	all := make(map[string]*stats)
	for _, rec := range recs {
		for name, value := range rec {
			s, found := all[name]
			if !found {
				s = &stats{length: -1}
				all[name] = s
			}
			switch value.Kind {
			case records.KindFloat:
				s.hasFloat = true
			case records.KindBytes:
				s.hasBytes = true
			}
			if s.length == -1 {
				s.length = value.Len()
			} else if s.length != value.Len() {
				s.varying = true
			}
		}
	}

	return func(name string) (Feature, error) {
		s, found := all[name]
		if name == label {
			switch {
			case !found:
				return DefaultMapping(name)
			case s.hasBytes:
				return Feature{}, errors.Errorf("label %q has bytes values", name)
			case s.hasFloat:
				return FixedLenFeature(name, dtypes.Float32, float32(0)), nil
			}
			return DefaultMapping(name)
		}
		if !found {
			return Feature{}, errors.Errorf("feature %q not present in any record", name)
		}
		if s.hasBytes {
			return Feature{}, ErrSkip
		}
		dtype := dtypes.Int64
		var defaultValue any = int64(0)
		if s.hasFloat {
			dtype = dtypes.Float32
			defaultValue = float32(0)
		}
		if s.varying {
			f := VarLenFeature(name, dtype)
			f.Default = defaultValue
			return f, nil
		}
		if s.length == 1 {
			return FixedLenFeature(name, dtype, defaultValue), nil
		}
		return FixedLenFeature(name, dtype, defaultValue, s.length), nil
	}
}
