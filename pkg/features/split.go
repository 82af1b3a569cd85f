// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package features

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// DefaultLabel is the name of the feature used as label by DefaultSplit.
const DefaultLabel = "target"

// SplitFn separates the parsed features into the model inputs and the label.
type SplitFn func(parsed *Parsed) (inputs *Parsed, label *tensors.Tensor, err error)

// DefaultSplit uses the DefaultLabel ("target") feature as label, and everything else as inputs.
func DefaultSplit(parsed *Parsed) (*Parsed, *tensors.Tensor, error) {
	return SplitOn(DefaultLabel)(parsed)
}

// SplitOn returns a SplitFn that pops the named feature as the label.
func SplitOn(labelName string) SplitFn {
	return func(parsed *Parsed) (*Parsed, *tensors.Tensor, error) {
		label, found := parsed.Pop(labelName)
		if !found {
			return nil, nil, errors.Errorf("label feature %q not found in parsed features %v",
				labelName, parsed.Names())
		}
		return parsed, label, nil
	}
}
