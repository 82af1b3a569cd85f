// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package experiment

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train/metrics"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/gomlx/ui/plots"
	"github.com/gomlx/trainer/pkg/estimator"
	"github.com/gomlx/trainer/pkg/features"
	"github.com/gomlx/trainer/pkg/flags"
	"github.com/gomlx/trainer/pkg/inputs"
	"github.com/gomlx/trainer/pkg/records"
	"github.com/gomlx/trainer/ui/report"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/simplego"
)

func init() {
	if _, found := os.LookupEnv(backends.ConfigEnvVar); !found {
		must.M(os.Setenv(backends.ConfigEnvVar, "go"))
	}
}

func TestParseSchedule(t *testing.T) {
	for _, s := range flags.Schedules {
		schedule, err := ParseSchedule(s)
		require.NoError(t, err)
		assert.Equal(t, s, string(schedule))
	}
	_, err := ParseSchedule("predict")
	require.Error(t, err)

	assert.True(t, TrainAndEvaluate.Trains())
	assert.True(t, TrainAndEvaluate.Evaluates())
	assert.False(t, Train.Evaluates())
	assert.False(t, Evaluate.Trains())
}

func TestRunConfig(t *testing.T) {
	config := NewRunConfig("/tmp/job")
	assert.Equal(t, "/tmp/job", config.ModelDir)
	assert.Equal(t, TrainAndEvaluate, config.Schedule)
	assert.Equal(t, 3, config.NumCheckpoints)
	assert.NotEqual(t, NewRunConfig("").RunID, config.RunID, "every config gets its own run id")
	require.NoError(t, config.Validate())

	config.TrainSteps = -1
	require.Error(t, config.Validate())

	config = NewRunConfig("")
	config.Schedule = Evaluate
	require.ErrorContains(t, config.Validate(), "requires a ModelDir")
	config.Schedule = "predict"
	require.Error(t, config.Validate())

	f := flags.New()
	f.JobDir = "/tmp/other"
	f.TrainSteps = 100
	f.EvalEverySteps = 10
	f.CheckpointPeriod = 0
	f.Schedule = flags.ScheduleTrain
	config, err := RunConfigFromFlags(f)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other", config.ModelDir)
	assert.Equal(t, 100, config.TrainSteps)
	assert.Equal(t, 10, config.EvalEverySteps)
	assert.Equal(t, time.Duration(0), config.CheckpointPeriod)
	assert.Equal(t, Train, config.Schedule)

	f.Schedule = "predict"
	_, err = RunConfigFromFlags(f)
	require.Error(t, err)
}

// writeDataDir writes numExamples linearly separable records: "x" in [-1, 1] and "target" = x > 0.
func writeDataDir(t *testing.T, numExamples int) string {
	t.Helper()
	dir := t.TempDir()
	var buf bytes.Buffer
	w := records.NewTFRecordWriter(&buf)
	for ii := range numExamples {
		x := 2*float32(ii)/float32(numExamples-1) - 1
		target := int64(0)
		if x > 0 {
			target = 1
		}
		require.NoError(t, w.WriteExample(records.Record{
			"x":      records.Floats(x),
			"target": records.Int64s(target),
		}))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "part-00000.tfrecord"), buf.Bytes(), 0644))
	return dir
}

// floatInputs maps the label with the default mapping, and every other feature to a float32 scalar.
func floatInputs(name string) (features.Feature, error) {
	if name == features.DefaultLabel {
		return features.DefaultMapping(name)
	}
	return features.FixedLenFeature(name, dtypes.Float32, float32(0)), nil
}

// newExperimentFn returns an experiment function training a linear classifier on dataDir.
func newExperimentFn(dataDir string, ctx *context.Context) Fn {
	return func(config *RunConfig) (*Experiment, error) {
		trainPipeline := inputs.Pipeline{ShuffleBufferSize: 1, BatchSize: 8, TakeCount: -1, Infinite: true}
		evalPipeline := inputs.Pipeline{BatchSize: 16, TakeCount: -1}
		return &Experiment{
			Estimator:    estimator.NewLinearClassifier(ctx),
			TrainInputFn: inputs.NewInputFn("train", dataDir, floatInputs, nil, trainPipeline),
			EvalInputFn:  inputs.NewInputFn("eval", dataDir, floatInputs, nil, evalPipeline),
		}, nil
	}
}

func newTestConfig(modelDir string) *RunConfig {
	config := NewRunConfig(modelDir)
	config.Backend = backends.MustNew()
	config.ProgressBar = false
	config.CheckpointPeriod = 0
	return config
}

func TestRunErrors(t *testing.T) {
	_, err := Run(nil, NewRunConfig(""))
	require.Error(t, err)

	config := newTestConfig("")
	_, err = Run(func(*RunConfig) (*Experiment, error) { return &Experiment{}, nil }, config)
	require.ErrorContains(t, err, "no estimator")

	_, err = Run(func(*RunConfig) (*Experiment, error) {
		return &Experiment{Estimator: estimator.NewLinearRegressor(context.New())}, nil
	}, config)
	require.ErrorContains(t, err, "requires a training input function")

	// Evaluating requires a checkpoint.
	config = newTestConfig(t.TempDir())
	config.Schedule = Evaluate
	_, err = Run(newExperimentFn(writeDataDir(t, 16), context.New()), config)
	require.ErrorContains(t, err, "no checkpoint to evaluate")
}

func TestRun(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping training test in short mode.")
	}
	dataDir := writeDataDir(t, 64)
	modelDir := t.TempDir()

	ctx := context.New()
	ctx.SetParam(optimizers.ParamLearningRate, 0.1)
	config := newTestConfig(modelDir)
	config.TrainSteps = 50
	config.EvalEverySteps = 10
	r, err := Run(newExperimentFn(dataDir, ctx), config)
	require.NoError(t, err)
	assert.Equal(t, int64(50), r.GlobalStep)
	assert.Equal(t, config.RunID, r.RunID)

	acc, found := r.Metric("#acc")
	require.True(t, found)
	assert.Greater(t, acc.Value, 0.7)
	assert.Equal(t, "eval", acc.Dataset)
	assert.Contains(t, r.String(), "Mean Accuracy")

	// 5 evaluations, each with train and eval metrics.
	require.NotEmpty(t, r.History)
	assert.Equal(t, 10.0, r.History[0].Step)
	assert.Equal(t, 50.0, r.History[len(r.History)-1].Step)
	saved, err := plots.LoadPoints(filepath.Join(modelDir, plots.TrainingPlotFileName))
	require.NoError(t, err)
	assert.Len(t, saved, len(r.History))
	assert.FileExists(t, filepath.Join(modelDir, report.PlotFileName))

	// Training continues from the checkpoint, with a fresh context.
	config = newTestConfig(modelDir)
	config.TrainSteps = 60
	r, err = Run(newExperimentFn(dataDir, context.New()), config)
	require.NoError(t, err)
	assert.Equal(t, int64(60), r.GlobalStep)

	// Target already reached: only evaluates.
	r, err = Run(newExperimentFn(dataDir, context.New()), config)
	require.NoError(t, err)
	assert.Equal(t, int64(60), r.GlobalStep)
	assert.NotEmpty(t, r.Metrics)

	// Evaluate only.
	config = newTestConfig(modelDir)
	config.Schedule = Evaluate
	config.EvalSteps = 1
	r, err = Run(newExperimentFn(dataDir, context.New()), config)
	require.NoError(t, err)
	assert.Equal(t, int64(60), r.GlobalStep)
	_, found = r.Metric("Mean Accuracy")
	assert.True(t, found)
}

func TestRunNaNMetric(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping training test in short mode.")
	}
	dataDir := writeDataDir(t, 64)
	modelDir := t.TempDir()
	ratio := metrics.NewMeanMetric("Ratio", "ratio", "ratio",
		func(_ *context.Context, _, predictions []*graph.Node) *graph.Node {
			zeros := graph.ZerosLike(predictions[0])
			return graph.ReduceAllMean(graph.Div(zeros, zeros))
		}, nil)
	fn := func(config *RunConfig) (*Experiment, error) {
		exp, err := newExperimentFn(dataDir, context.New())(config)
		if err != nil {
			return nil, err
		}
		exp.Estimator.EvalMetrics(ratio)
		return exp, nil
	}
	config := newTestConfig(modelDir)
	config.TrainSteps = 10
	config.EvalEverySteps = 5
	r, err := Run(fn, config)
	require.NoError(t, err)
	assert.Equal(t, int64(10), r.GlobalStep)

	final, found := r.Metric("ratio")
	require.True(t, found)
	assert.True(t, math.IsNaN(final.Value))

	// The NaN values are left out of the history, and the other metrics are kept.
	require.NotEmpty(t, r.History)
	for _, point := range r.History {
		assert.False(t, math.IsNaN(point.Value), "point %+v", point)
		assert.NotEqual(t, "Ratio on eval", point.MetricName)
	}
	saved, err := plots.LoadPoints(filepath.Join(modelDir, plots.TrainingPlotFileName))
	require.NoError(t, err)
	assert.Equal(t, r.History, saved)
	assert.FileExists(t, filepath.Join(modelDir, report.PlotFileName))
}

func TestRunTrainOnePass(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping training test in short mode.")
	}
	dataDir := writeDataDir(t, 64)
	config := newTestConfig("")
	config.Schedule = Train
	fn := func(config *RunConfig) (*Experiment, error) {
		return &Experiment{
			Estimator: estimator.NewLinearClassifier(context.New()),
			TrainInputFn: inputs.NewInputFn("train", dataDir, floatInputs, nil,
				inputs.Pipeline{BatchSize: 8, TakeCount: -1}),
		}, nil
	}
	r, err := Run(fn, config)
	require.NoError(t, err)
	assert.Equal(t, int64(8), r.GlobalStep, "one pass over 64 examples in batches of 8")
	assert.Empty(t, r.Metrics)
	assert.Empty(t, r.History)
}
