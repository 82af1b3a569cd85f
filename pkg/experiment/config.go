// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package experiment

import (
	"fmt"
	"time"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/trainer/pkg/flags"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Schedule selects what an experiment runs.
type Schedule string

const (
	// Train only trains the model.
	Train Schedule = flags.ScheduleTrain

	// Evaluate only evaluates the latest checkpoint of the model.
	Evaluate Schedule = flags.ScheduleEvaluate

	// TrainAndEvaluate trains and then evaluates the model.
	TrainAndEvaluate Schedule = flags.ScheduleTrainAndEvaluate
)

// ParseSchedule converts s to a Schedule.
func ParseSchedule(s string) (Schedule, error) {
	switch Schedule(s) {
	case Train, Evaluate, TrainAndEvaluate:
		return Schedule(s), nil
	}
	return "", errors.Errorf("unknown schedule %q, valid values are %q", s, flags.Schedules)
}

// Trains returns whether the schedule includes training.
func (s Schedule) Trains() bool { return s == Train || s == TrainAndEvaluate }

// Evaluates returns whether the schedule includes evaluation.
func (s Schedule) Evaluates() bool { return s == Evaluate || s == TrainAndEvaluate }

// RunConfig configures how an experiment is run.
type RunConfig struct {
	// ModelDir is where checkpoints, plots and the report are saved. If a checkpoint already exists there,
	// training continues from it. If empty, nothing is saved.
	ModelDir string

	// NumCheckpoints to keep in ModelDir. If 0, all checkpoints are kept.
	NumCheckpoints int

	// CheckpointPeriod is the time between checkpoints during training. If 0, only the final
	// checkpoint is saved.
	CheckpointPeriod time.Duration

	// TrainSteps is the global step to train to. If 0, trains for one pass over the training input.
	// If the training input ends before, training stops there.
	TrainSteps int

	// EvalSteps is the maximum number of batches evaluated. If 0, evaluates the whole input.
	EvalSteps int

	// EvalEverySteps, if > 0, evaluates the model that often during training, and records the results
	// in the Report history.
	EvalEverySteps int

	Schedule Schedule

	// RunID identifies this run in logs and in the report.
	RunID uuid.UUID

	// Backend to use. If nil, Run creates one with backends.New(), returning its error.
	Backend backends.Backend

	// ExcludeParams lists context hyperparameters not loaded from an existing checkpoint, so the values
	// currently set are used instead.
	ExcludeParams []string

	// ProgressBar attaches a command-line progress bar to training.
	ProgressBar bool
}

// NewRunConfig returns a RunConfig with default values saving to modelDir.
func NewRunConfig(modelDir string) *RunConfig {
	return &RunConfig{
		ModelDir:         modelDir,
		NumCheckpoints:   3,
		CheckpointPeriod: time.Minute,
		Schedule:         TrainAndEvaluate,
		RunID:            uuid.New(),
		ProgressBar:      true,
	}
}

// RunConfigFromFlags returns a RunConfig saving to f.JobDir and configured by the other run flags.
func RunConfigFromFlags(f *flags.Flags) (*RunConfig, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	schedule, err := ParseSchedule(f.Schedule)
	if err != nil {
		return nil, err
	}
	config := NewRunConfig(f.JobDir)
	config.NumCheckpoints = f.NumCheckpoints
	config.CheckpointPeriod = f.CheckpointPeriod
	config.TrainSteps = f.TrainSteps
	config.EvalSteps = f.EvalSteps
	config.EvalEverySteps = f.EvalEverySteps
	config.Schedule = schedule
	return config, nil
}

// Validate returns an error if the configuration can't be used.
func (c *RunConfig) Validate() error {
	if _, err := ParseSchedule(string(c.Schedule)); err != nil {
		return err
	}
	if c.TrainSteps < 0 || c.EvalSteps < 0 || c.EvalEverySteps < 0 {
		return errors.Errorf("invalid RunConfig: TrainSteps=%d, EvalSteps=%d and EvalEverySteps=%d must be >= 0",
			c.TrainSteps, c.EvalSteps, c.EvalEverySteps)
	}
	if c.NumCheckpoints < 0 {
		return errors.Errorf("invalid RunConfig: NumCheckpoints=%d must be >= 0", c.NumCheckpoints)
	}
	if c.Schedule == Evaluate && c.ModelDir == "" {
		return errors.New("schedule \"evaluate\" requires a ModelDir with a checkpoint to evaluate")
	}
	return nil
}

// String implements fmt.Stringer.
func (c *RunConfig) String() string {
	return fmt.Sprintf("RunConfig{run=%s, schedule=%s, model_dir=%q, train_steps=%d, eval_steps=%d, eval_every_steps=%d}",
		c.RunID, c.Schedule, c.ModelDir, c.TrainSteps, c.EvalSteps, c.EvalEverySteps)
}
