// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package trainer trains and evaluates an estimator with sensible defaults for everything else.
//
// The data directories, run configuration and input pipelines all default to values derived from the
// process flags (see package flags), so the simplest program is:
//
//	func main() {
//		klog.InitFlags(nil)
//		flag.Parse()
//		report, err := trainer.Run(estimator.NewDNNClassifier(context.New()))
//		if err != nil {
//			klog.Fatalf("%+v", err)
//		}
//		fmt.Println(report)
//	}
//
// Any default can be overridden with the builder returned by New:
//
//	report, err := trainer.New(est).
//		TrainingDataDir("/data/train").
//		SplitFeaturesLabel(features.SplitOn("label")).
//		Run()
package trainer

import (
	"path/filepath"
	"sync"

	"github.com/gomlx/trainer/pkg/estimator"
	"github.com/gomlx/trainer/pkg/experiment"
	"github.com/gomlx/trainer/pkg/features"
	"github.com/gomlx/trainer/pkg/flags"
	"github.com/gomlx/trainer/pkg/inputs"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Run trains and evaluates est with every setting derived from flags.Default.
func Run(est *estimator.Estimator) (*experiment.Report, error) {
	return New(est).Run()
}

// Config holds the settings of a run. Create it with New, override what is needed and call Run.
// Settings left empty (or nil) take their defaults when Run is called.
type Config struct {
	est             *estimator.Estimator
	flags           *flags.Flags
	trainingDataDir string
	evalDataDir     string
	mapping         features.MappingFn
	split           features.SplitFn
	runConfig       *experiment.RunConfig
	experimentFn    experiment.Fn
}

// New returns a Config to run est.
func New(est *estimator.Estimator) *Config {
	return &Config{est: est}
}

// Flags sets the flags the defaults are derived from. Default is flags.Default.
func (c *Config) Flags(f *flags.Flags) *Config {
	c.flags = f
	return c
}

// TrainingDataDir sets the directory with the training data. Default is DefaultTrainingDataDir.
func (c *Config) TrainingDataDir(dir string) *Config {
	c.trainingDataDir = dir
	return c
}

// EvalDataDir sets the directory with the evaluation data. Default is DefaultEvalDataDir.
func (c *Config) EvalDataDir(dir string) *Config {
	c.evalDataDir = dir
	return c
}

// FeatureMapping sets how features are parsed. Default is features.DefaultMapping.
func (c *Config) FeatureMapping(mapping features.MappingFn) *Config {
	c.mapping = mapping
	return c
}

// SplitFeaturesLabel sets how the parsed features are split into inputs and label.
// Default is features.DefaultSplit.
func (c *Config) SplitFeaturesLabel(split features.SplitFn) *Config {
	c.split = split
	return c
}

// RunConfig sets the configuration of the experiment run. Default is derived from the flags,
// with the model saved to the job directory.
func (c *Config) RunConfig(runConfig *experiment.RunConfig) *Config {
	c.runConfig = runConfig
	return c
}

// ExperimentFn sets the function that builds the experiment. If set, the data directories, feature
// mapping and split settings are only used for logging: the experiment function builds its own inputs.
func (c *Config) ExperimentFn(fn experiment.Fn) *Config {
	c.experimentFn = fn
	return c
}

// Run resolves the defaults and runs the experiment. The report and error of experiment.Run are
// returned unchanged.
func (c *Config) Run() (*experiment.Report, error) {
	if c.est == nil {
		return nil, errors.New("trainer.Run requires an estimator")
	}
	f := c.flags
	if f == nil {
		f = flags.Default
	}
	trainingDataDir := c.trainingDataDir
	if trainingDataDir == "" {
		trainingDataDir = DefaultTrainingDataDir(f)
	}
	evalDataDir := c.evalDataDir
	if evalDataDir == "" {
		evalDataDir = DefaultEvalDataDir(f)
	}
	mapping := c.mapping
	if mapping == nil {
		mapping = features.DefaultMapping
	}
	split := c.split
	if split == nil {
		split = features.DefaultSplit
	}
	runConfig := c.runConfig
	if runConfig == nil {
		var err error
		runConfig, err = experiment.RunConfigFromFlags(f)
		if err != nil {
			return nil, err
		}
	}
	experimentFn := c.experimentFn
	if experimentFn == nil {
		experimentFn = defaultExperimentFn(c.est, f, trainingDataDir, evalDataDir, mapping, split)
	}

	klog.Infof("Training data directory: %q", trainingDataDir)
	klog.Infof("Evaluation data directory: %q", evalDataDir)
	return experiment.Run(experimentFn, runConfig)
}

// DefaultTrainingDataDir is the TrainSubdir of the TrainingSet directory.
func DefaultTrainingDataDir(f *flags.Flags) string {
	return filepath.Join(f.TrainingSet, f.TrainSubdir)
}

// DefaultEvalDataDir is the EvalSubdir of the TrainingSet directory.
func DefaultEvalDataDir(f *flags.Flags) string {
	return filepath.Join(f.TrainingSet, f.EvalSubdir)
}

var (
	defaultRunConfigOnce sync.Once
	defaultRunConfig     *experiment.RunConfig
	defaultRunConfigErr  error
)

// DefaultRunConfig returns the RunConfig derived from flags.Default.
//
// It is built on the first call, so flags must be parsed before. Later calls return the same
// RunConfig (and RunID), even if the flags change.
func DefaultRunConfig() (*experiment.RunConfig, error) {
	defaultRunConfigOnce.Do(func() {
		defaultRunConfig, defaultRunConfigErr = experiment.RunConfigFromFlags(flags.Default)
	})
	return defaultRunConfig, defaultRunConfigErr
}

// defaultExperimentFn builds the experiment from the estimator and the input pipelines configured in f.
//
// If TrainSteps is set and the number of batches is not limited, the training input repeats
// indefinitely, so training stops at TrainSteps.
func defaultExperimentFn(est *estimator.Estimator, f *flags.Flags, trainingDataDir, evalDataDir string,
	mapping features.MappingFn, split features.SplitFn) experiment.Fn {
	return func(config *experiment.RunConfig) (*experiment.Experiment, error) {
		trainPipeline := inputs.PipelineFromFlags(f)
		trainPipeline.Infinite = config.TrainSteps > 0 && trainPipeline.TakeCount < 0
		evalPipeline := inputs.PipelineFromFlags(f)
		return &experiment.Experiment{
			Estimator:    est,
			TrainInputFn: inputs.NewInputFn("train", trainingDataDir, mapping, split, trainPipeline),
			EvalInputFn:  inputs.NewInputFn("eval", evalDataDir, mapping, split, evalPipeline),
		}, nil
	}
}
