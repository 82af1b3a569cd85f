// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package inputs builds the datasets fed to training and evaluation from a data directory.
//
// A directory is read in full (see package records), parsed according to a features.Spec and split
// into inputs and label. The result is held in a datasets.InMemoryDataset, and a Pipeline configures
// how it is iterated: shuffle, batch, take and prefetch, in that order.
package inputs

import (
	"slices"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/trainer/pkg/features"
	"github.com/gomlx/trainer/pkg/flags"
	"github.com/gomlx/trainer/pkg/records"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Pipeline configures how a loaded dataset is iterated.
type Pipeline struct {
	// ShuffleBufferSize enables shuffling if > 0. The whole dataset is in memory, so every epoch is
	// fully shuffled, whatever the value.
	ShuffleBufferSize int

	// BatchSize groups examples in batches if > 0. The last batch of an epoch may be smaller.
	BatchSize int

	// TakeCount limits the number of batches yielded per epoch, if >= 0.
	TakeCount int

	// PrefetchBufferSize is the number of batches read ahead in the background, if > 0.
	PrefetchBufferSize int

	// Infinite makes the dataset loop over its epochs indefinitely.
	// It is ignored if TakeCount >= 0.
	Infinite bool
}

// PipelineFromFlags returns the Pipeline configured by f.
func PipelineFromFlags(f *flags.Flags) Pipeline {
	return Pipeline{
		ShuffleBufferSize:  f.ShuffleBufferSize,
		BatchSize:          f.BatchSize,
		TakeCount:          f.TakeCount,
		PrefetchBufferSize: f.PrefetchBufferSize,
	}
}

// Apply configures mds and wraps it according to the pipeline.
func (p Pipeline) Apply(mds *datasets.InMemoryDataset) train.Dataset {
	if p.ShuffleBufferSize > 0 {
		mds.Shuffle()
	}
	if p.BatchSize > 0 {
		mds.BatchSize(p.BatchSize, false)
	}
	var ds train.Dataset = mds
	if p.TakeCount >= 0 {
		ds = datasets.Take(ds, p.TakeCount)
	} else if p.Infinite {
		mds.Infinite(true)
	}
	if p.PrefetchBufferSize > 0 {
		ds = datasets.ReadAhead(ds, p.PrefetchBufferSize)
	}
	return ds
}

// InputFn creates a dataset on the given backend. It is called once per experiment run.
type InputFn func(backend backends.Backend) (train.Dataset, error)

// Load reads the data directory into an InMemoryDataset named name.
//
// Feature names are read from the features.SpecFileName file if present, otherwise every feature found in
// the records is used. They are mapped with mapping (features.DefaultMapping if nil), parsed, and
// split with split (features.DefaultSplit if nil). The inputs are yielded in spec order, the label as the
// only label tensor, and the yielded spec is the *features.Spec of the inputs.
func Load(backend backends.Backend, name, dir string, mapping features.MappingFn, split features.SplitFn) (
	*datasets.InMemoryDataset, error) {
	if len(name) < 3 {
		return nil, errors.Errorf("dataset name %q must have at least 3 characters", name)
	}
	if split == nil {
		split = features.DefaultSplit
	}
	recs, recordNames, err := records.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names, found, err := features.ReadNames(dir)
	if err != nil {
		return nil, err
	}
	if !found {
		names = recordNames
	}
	spec, err := features.NewSpec(names, mapping)
	if err != nil {
		return nil, errors.WithMessagef(err, "dataset %q", name)
	}
	klog.V(1).Infof("Dataset %q features: %s", name, spec)
	parsed, err := features.Parse(spec, recs)
	if err != nil {
		return nil, errors.WithMessagef(err, "while parsing %q", dir)
	}
	inputs, label, err := split(parsed)
	if err != nil {
		return nil, errors.WithMessagef(err, "while splitting features of %q", dir)
	}
	if inputs.Len() == 0 {
		return nil, errors.Errorf("no input features left in %q after splitting the label", dir)
	}
	inputNames := inputs.Names()
	inputSpec := spec.Without(slices.DeleteFunc(spec.Names(), func(n string) bool {
		return slices.Contains(inputNames, n)
	})...)

	inputsAny := make([]any, 0, inputs.Len())
	for _, t := range inputs.Tensors() {
		inputsAny = append(inputsAny, t)
	}
	mds, err := datasets.InMemoryFromData(backend, name, inputsAny, []any{label})
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create dataset %q", name)
	}
	mds.WithSpec(inputSpec)
	klog.Infof("Dataset %q: %d examples, %d input features, from %q", name, mds.NumExamples(), inputs.Len(), dir)
	return mds, nil
}

// NewInputFn returns an InputFn that loads dir (see Load) and applies the pipeline to it.
func NewInputFn(name, dir string, mapping features.MappingFn, split features.SplitFn, pipeline Pipeline) InputFn {
	return func(backend backends.Backend) (train.Dataset, error) {
		mds, err := Load(backend, name, dir, mapping, split)
		if err != nil {
			return nil, err
		}
		return pipeline.Apply(mds), nil
	}
}
