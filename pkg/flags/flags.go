// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package flags holds the process-wide settings used to derive defaults for a training run:
// where the data lives, where the model is written, and how the input pipeline is configured.
//
// Values are resolved in three layers: built-in defaults, then environment variables
// (prefixed with EnvPrefix), then command-line flags. The Default instance is registered on
// flag.CommandLine at init, so a program only needs to call flag.Parse:
//
//	func main() {
//		klog.InitFlags(nil)
//		flag.Parse()
//		report, err := trainer.Run(myEstimator)
//		...
//	}
package flags

import (
	"flag"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// EnvPrefix is prepended to the environment variable names of every setting.
const EnvPrefix = "TRAINER_"

// Valid values for Flags.Schedule.
const (
	ScheduleTrain            = "train"
	ScheduleEvaluate         = "evaluate"
	ScheduleTrainAndEvaluate = "train_and_evaluate"
)

// Schedules lists the accepted values of Flags.Schedule.
var Schedules = []string{ScheduleTrain, ScheduleEvaluate, ScheduleTrainAndEvaluate}

// Flags holds the settings used for defaults. Field tags give the environment variable names
// (without EnvPrefix).
type Flags struct {
	// TrainingSet is the base directory of the data, holding TrainSubdir and EvalSubdir.
	TrainingSet string `env:"TRAINING_SET"`
	TrainSubdir string `env:"TRAIN_SUBDIR"`
	EvalSubdir  string `env:"EVAL_SUBDIR"`

	// JobDir is where checkpoints and reports are written. If empty nothing is saved.
	JobDir string `env:"JOB_DIR"`

	// Input pipeline.
	ShuffleBufferSize  int `env:"SHUFFLE_BUFFER_SIZE"`
	BatchSize          int `env:"BATCH_SIZE"`
	TakeCount          int `env:"TAKE_COUNT"`
	PrefetchBufferSize int `env:"PREFETCH_BUFFER_SIZE"`

	// Run configuration.
	TrainSteps       int           `env:"TRAIN_STEPS"`
	EvalSteps        int           `env:"EVAL_STEPS"`
	EvalEverySteps   int           `env:"EVAL_EVERY_STEPS"`
	NumCheckpoints   int           `env:"NUM_CHECKPOINTS"`
	CheckpointPeriod time.Duration `env:"CHECKPOINT_PERIOD"`
	Schedule         string        `env:"SCHEDULE"`
}

// Default is the process-wide instance, registered on flag.CommandLine.
var Default = New()

func init() {
	if err := Default.ApplyEnv(); err != nil {
		klog.Warningf("Ignoring trainer environment settings: %v", err)
	}
	Default.Register(flag.CommandLine)
}

// New returns Flags with the built-in defaults.
func New() *Flags {
	return &Flags{
		TrainSubdir:        "train",
		EvalSubdir:         "eval",
		ShuffleBufferSize:  512,
		BatchSize:          128,
		TakeCount:          -1,
		PrefetchBufferSize: -1,
		NumCheckpoints:     3,
		CheckpointPeriod:   time.Minute,
		Schedule:           ScheduleTrainAndEvaluate,
	}
}

// ApplyEnv overrides the current values with the environment variables that are set.
// Unset variables leave the fields untouched.
func (f *Flags) ApplyEnv() error {
	err := env.ParseWithOptions(f, env.Options{Prefix: EnvPrefix})
	if err != nil {
		return errors.Wrapf(err, "failed to parse %s* environment variables", EnvPrefix)
	}
	return nil
}

// Register binds the fields to flags in fs, using the current values as the flag defaults.
// It must be called before fs is parsed.
func (f *Flags) Register(fs *flag.FlagSet) {
	fs.StringVar(&f.TrainingSet, "training_set", f.TrainingSet,
		"Base directory of the training set. Training and evaluation data are read from its sub-directories.")
	fs.StringVar(&f.TrainSubdir, "train_subdir", f.TrainSubdir,
		"Sub-directory of -training_set with the training data.")
	fs.StringVar(&f.EvalSubdir, "eval_subdir", f.EvalSubdir,
		"Sub-directory of -training_set with the evaluation data.")
	fs.StringVar(&f.JobDir, "job_dir", f.JobDir,
		"Directory where checkpoints and reports are written. If empty, the model is not saved.")
	fs.IntVar(&f.ShuffleBufferSize, "shuffle_buffer_size", f.ShuffleBufferSize,
		"If > 0, examples are shuffled before batching.")
	fs.IntVar(&f.BatchSize, "batch_size", f.BatchSize,
		"If > 0, examples are grouped in batches of this size.")
	fs.IntVar(&f.TakeCount, "take_count", f.TakeCount,
		"Number of batches to take from each dataset. Negative values take all.")
	fs.IntVar(&f.PrefetchBufferSize, "prefetch_buffer_size", f.PrefetchBufferSize,
		"If > 0, number of batches read ahead in the background.")
	fs.IntVar(&f.TrainSteps, "train_steps", f.TrainSteps,
		"Target global step to train to. If 0, trains one pass over the training data.")
	fs.IntVar(&f.EvalSteps, "eval_steps", f.EvalSteps,
		"Maximum number of evaluation batches. If 0, evaluates over the whole evaluation data.")
	fs.IntVar(&f.EvalEverySteps, "eval_every_steps", f.EvalEverySteps,
		"If > 0, evaluates every that many training steps, and plots the results in -job_dir.")
	fs.IntVar(&f.NumCheckpoints, "num_checkpoints", f.NumCheckpoints,
		"Number of checkpoints to keep in -job_dir.")
	fs.DurationVar(&f.CheckpointPeriod, "checkpoint_period", f.CheckpointPeriod,
		"Period between checkpoint saves during training. A final checkpoint is always saved.")
	fs.StringVar(&f.Schedule, "schedule", f.Schedule,
		"What to run, one of \"train\", \"evaluate\" or \"train_and_evaluate\".")
}

// Validate returns an error for settings that can't be used.
func (f *Flags) Validate() error {
	if f.BatchSize < 0 {
		return errors.Errorf("invalid -batch_size=%d, it must be >= 0", f.BatchSize)
	}
	if f.NumCheckpoints < 0 {
		return errors.Errorf("invalid -num_checkpoints=%d, it must be >= 0", f.NumCheckpoints)
	}
	if f.TrainSteps < 0 || f.EvalSteps < 0 || f.EvalEverySteps < 0 {
		return errors.Errorf("invalid steps (-train_steps=%d, -eval_steps=%d, -eval_every_steps=%d), they must be >= 0",
			f.TrainSteps, f.EvalSteps, f.EvalEverySteps)
	}
	if slices.Index(Schedules, f.Schedule) == -1 {
		return errors.Errorf("invalid -schedule=%q, valid values are %q", f.Schedule, Schedules)
	}
	return nil
}
